package handlers

import (
	"errors"
	"strings"
	"time"

	"rtoshield/internal/errs"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/phone"
	"rtoshield/internal/services/scoring"
	"rtoshield/internal/services/training"
	"rtoshield/internal/utils/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const dlqListLimit = 100

// BlacklistInput creates one blacklist entry.
type BlacklistInput struct {
	TenantID  uint       `json:"tenant_id" validate:"required"`
	Type      string     `json:"type" validate:"required,oneof=phone email ip"`
	Value     string     `json:"value" validate:"required"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// AdminHandler serves the staff operations surface: dead letters,
// blacklist management and training readiness.
type AdminHandler struct {
	queue      scoring.Queue
	blacklist  repositories.BlacklistRepository
	recorder   training.Recorder
	normalizer *phone.Normalizer
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewAdminHandler(
	queue scoring.Queue,
	blacklist repositories.BlacklistRepository,
	recorder training.Recorder,
	normalizer *phone.Normalizer,
	logger *zap.Logger,
) *AdminHandler {
	if queue == nil || blacklist == nil || recorder == nil || normalizer == nil {
		panic("admin handler dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		queue:      queue,
		blacklist:  blacklist,
		recorder:   recorder,
		normalizer: normalizer,
		validate:   validator.New(),
		logger:     logger,
	}
}

// ListDeadLetters handles GET /api/admin/dlq.
func (h *AdminHandler) ListDeadLetters(c *fiber.Ctx) error {
	letters, err := h.queue.DeadLetters(c.Context(), dlqListLimit)
	if err != nil {
		h.logger.Error("dead letter listing failed", zap.Error(err))
		return response.ServerError(c, "could not read dead letters")
	}
	return response.Success(c, "dead letters", fiber.Map{
		"count":   len(letters),
		"letters": letters,
	})
}

// ReplayDeadLetter handles POST /api/admin/dlq/replay.
func (h *AdminHandler) ReplayDeadLetter(c *fiber.Ctx) error {
	replayed, err := h.queue.ReplayOldest(c.Context())
	if err != nil {
		h.logger.Error("dead letter replay failed", zap.Error(err))
		return response.ServerError(c, "could not replay dead letter")
	}
	if !replayed {
		return response.Success(c, "dead letter queue is empty", nil)
	}
	return response.Success(c, "oldest dead letter requeued", nil)
}

// ListBlacklist handles GET /api/admin/blacklist.
func (h *AdminHandler) ListBlacklist(c *fiber.Ctx) error {
	tenantID := c.QueryInt("tenant_id")
	if tenantID <= 0 {
		return response.BadRequest(c, "tenant_id query parameter is required")
	}
	entries, err := h.blacklist.List(c.Context(), uint(tenantID))
	if err != nil {
		return response.ServerError(c, "could not list blacklist entries")
	}
	return response.Success(c, "blacklist entries", entries)
}

// CreateBlacklistEntry handles POST /api/admin/blacklist.
func (h *AdminHandler) CreateBlacklistEntry(c *fiber.Ctx) error {
	var input BlacklistInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(&input); err != nil {
		return response.ValidationError(c, "tenant_id, type (phone|email|ip) and value are required")
	}

	normalized, err := h.normalizeValue(input.Type, input.Value)
	if err != nil {
		return response.ValidationError(c, err.Error())
	}

	entry := &models.BlacklistEntry{
		TenantID:        input.TenantID,
		Type:            input.Type,
		Value:           input.Value,
		NormalizedValue: normalized,
		Reason:          input.Reason,
		ExpiresAt:       input.ExpiresAt,
	}
	if err := h.blacklist.Create(c.Context(), entry); err != nil {
		h.logger.Error("blacklist create failed", zap.Error(err))
		return response.ServerError(c, "could not create blacklist entry")
	}

	h.logger.Info("blacklist entry created",
		zap.Uint("tenant_id", entry.TenantID),
		zap.String("type", entry.Type))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "blacklist entry created",
		"data":    entry,
	})
}

// DeleteBlacklistEntry handles DELETE /api/admin/blacklist/:id.
func (h *AdminHandler) DeleteBlacklistEntry(c *fiber.Ctx) error {
	tenantID := c.QueryInt("tenant_id")
	if tenantID <= 0 {
		return response.BadRequest(c, "tenant_id query parameter is required")
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "invalid entry id")
	}
	if err := h.blacklist.Delete(c.Context(), uint(tenantID), uint(id)); err != nil {
		return response.ServerError(c, "could not delete blacklist entry")
	}
	return response.Success(c, "blacklist entry deleted", nil)
}

// TrainingReadiness handles GET /api/admin/training/readiness.
func (h *AdminHandler) TrainingReadiness(c *fiber.Ctx) error {
	tenantID := c.QueryInt("tenant_id")
	if tenantID <= 0 {
		return response.BadRequest(c, "tenant_id query parameter is required")
	}
	count, ready, err := h.recorder.Readiness(c.Context(), uint(tenantID))
	if err != nil {
		return response.ServerError(c, "could not compute training readiness")
	}
	return response.Success(c, "training readiness", fiber.Map{
		"unused_events": count,
		"threshold":     training.RetrainThreshold,
		"ready":         ready,
	})
}

// TrainingConsumeInput acknowledges a completed retraining run.
type TrainingConsumeInput struct {
	TenantID uint `json:"tenant_id"`
	UpTo     uint `json:"up_to" validate:"required"`
}

// ConsumeTrainingEvents handles POST /api/admin/training/consume. The
// retraining pipeline calls it after exporting events so readiness
// counts only what the next run will see.
func (h *AdminHandler) ConsumeTrainingEvents(c *fiber.Ctx) error {
	var input TrainingConsumeInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(&input); err != nil {
		return response.ValidationError(c, "up_to event id is required")
	}

	if err := h.recorder.MarkConsumed(c.Context(), input.TenantID, input.UpTo); err != nil {
		if errs.IsRejectable(err) {
			return response.ValidationError(c, err.Error())
		}
		h.logger.Error("training consumption failed",
			zap.Uint("tenant_id", input.TenantID), zap.Error(err))
		return response.ServerError(c, "could not mark training events consumed")
	}
	return response.Success(c, "training events marked consumed", fiber.Map{
		"tenant_id": input.TenantID,
		"up_to":     input.UpTo,
	})
}

func (h *AdminHandler) normalizeValue(entryType, value string) (string, error) {
	switch entryType {
	case models.BlacklistTypePhone:
		n := h.normalizer.Normalize(value)
		if !n.IsValid {
			return "", errors.New("phone value could not be normalized")
		}
		return n.E164, nil
	case models.BlacklistTypeEmail:
		return strings.ToLower(strings.TrimSpace(value)), nil
	default:
		return strings.TrimSpace(value), nil
	}
}
