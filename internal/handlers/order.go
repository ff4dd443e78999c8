package handlers

import (
	"errors"

	"rtoshield/internal/middleware"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/training"
	"rtoshield/internal/utils/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OutcomeInput reports the terminal delivery outcome of an order.
type OutcomeInput struct {
	Outcome string `json:"outcome" validate:"required,oneof=delivered rto"`
}

// DecisionInput records the staff decision taken on a scored order.
type DecisionInput struct {
	Action string `json:"action" validate:"required,oneof=approve verify block"`
}

var decisionStatus = map[string]string{
	"approve": models.OrderStatusApproved,
	"verify":  models.OrderStatusVerified,
	"block":   models.OrderStatusBlocked,
}

// OrderHandler serves per-order reads and state transitions: score
// lookup, staff decisions and delivery outcomes.
type OrderHandler struct {
	orders   repositories.OrderRepository
	scores   repositories.ScoreRepository
	recorder training.Recorder
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orders repositories.OrderRepository, scores repositories.ScoreRepository, recorder training.Recorder, logger *zap.Logger) *OrderHandler {
	if orders == nil || scores == nil || recorder == nil {
		panic("order handler dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{
		orders:   orders,
		scores:   scores,
		recorder: recorder,
		validate: validator.New(),
		logger:   logger,
	}
}

// GetScore handles GET /api/orders/:id/score.
func (h *OrderHandler) GetScore(c *fiber.Ctx) error {
	order, err := h.loadTenantOrder(c)
	if err != nil {
		return err
	}

	score, err := h.scores.GetByOrderID(c.Context(), order.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrScoreNotFound) {
			return response.Success(c, "order not scored yet", fiber.Map{
				"order_id": order.ID,
				"status":   order.Status,
			})
		}
		return response.ServerError(c, "could not load score")
	}

	return response.Success(c, "score", fiber.Map{
		"order_id":       order.ID,
		"status":         order.Status,
		"final_score":    score.FinalScore,
		"risk_level":     score.RiskLevel,
		"recommendation": score.Recommendation,
		"confidence":     score.Confidence,
		"reasons":        score.Reasons,
		"signals":        score.Signals,
		"model_version":  score.ModelVersion,
		"scored_at":      score.ScoredAt,
	})
}

// Decide handles POST /api/orders/:id/decision.
func (h *OrderHandler) Decide(c *fiber.Ctx) error {
	order, err := h.loadTenantOrder(c)
	if err != nil {
		return err
	}

	var input DecisionInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(&input); err != nil {
		return response.ValidationError(c, "action must be approve, verify or block")
	}

	if order.HasOutcome() {
		return response.BadRequest(c, "order already has a delivery outcome")
	}

	to := decisionStatus[input.Action]
	if err := h.orders.SetStatus(c.Context(), order.ID, to); err != nil {
		h.logger.Error("decision update failed", zap.Uint("order_id", order.ID), zap.Error(err))
		return response.ServerError(c, "could not record decision")
	}

	return response.Success(c, "decision recorded", fiber.Map{
		"order_id": order.ID,
		"status":   to,
	})
}

// RecordOutcome handles POST /api/orders/:id/outcome.
func (h *OrderHandler) RecordOutcome(c *fiber.Ctx) error {
	order, err := h.loadTenantOrder(c)
	if err != nil {
		return err
	}

	var input OutcomeInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(&input); err != nil {
		return response.ValidationError(c, "outcome must be delivered or rto")
	}

	isRTO := input.Outcome == models.OrderStatusRTO
	recorded, err := h.recorder.RecordOutcome(c.Context(), order.ID, isRTO, models.OutcomeSourceScan)
	if err != nil {
		if errors.Is(err, training.ErrNoScore) {
			return response.BadRequest(c, "order has not been scored yet")
		}
		h.logger.Error("outcome recording failed", zap.Uint("order_id", order.ID), zap.Error(err))
		return response.ServerError(c, "could not record outcome")
	}

	message := "outcome recorded"
	if !recorded {
		message = "outcome already recorded"
	}
	return response.Success(c, message, fiber.Map{
		"order_id": order.ID,
		"outcome":  input.Outcome,
		"recorded": recorded,
	})
}

// loadTenantOrder resolves :id and enforces that the order belongs to
// the authenticated tenant. A cross-tenant id reads as not found.
func (h *OrderHandler) loadTenantOrder(c *fiber.Ctx) (*models.Order, error) {
	tenant, ok := middleware.TenantFromCtx(c)
	if !ok {
		return nil, response.Unauthorized(c, "missing tenant")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, response.BadRequest(c, "invalid order id")
	}

	order, err := h.orders.GetByID(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, response.NotFound(c, "order not found")
		}
		return nil, response.ServerError(c, "could not load order")
	}
	if order.TenantID != tenant.ID {
		return nil, response.NotFound(c, "order not found")
	}
	return order, nil
}
