// Package handlers exposes the HTTP surface: webhook ingestion, outcome
// reporting, score reads, admin operations and health.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"rtoshield/internal/errs"
	"rtoshield/internal/metrics"
	"rtoshield/internal/middleware"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/phone"
	"rtoshield/internal/services/platform"
	"rtoshield/internal/services/scoring"
	"rtoshield/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	// TimestampHeader is the optional replay-protection header. When
	// present it must be a unix timestamp within replayWindow of now.
	TimestampHeader = "X-Webhook-Timestamp"

	replayWindow = 5 * time.Minute
)

// WebhookHandler ingests raw platform webhooks: verify, normalize,
// persist, enqueue. Everything past the enqueue is asynchronous and
// invisible to the caller.
type WebhookHandler struct {
	registry   *platform.Registry
	normalizer *phone.Normalizer
	orders     repositories.OrderRepository
	queue      scoring.Queue
	metrics    metrics.Collector
	logger     *zap.Logger
}

func NewWebhookHandler(
	registry *platform.Registry,
	normalizer *phone.Normalizer,
	orders repositories.OrderRepository,
	queue scoring.Queue,
	collector metrics.Collector,
	logger *zap.Logger,
) *WebhookHandler {
	if registry == nil || normalizer == nil || orders == nil || queue == nil {
		panic("webhook handler dependencies are required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		registry:   registry,
		normalizer: normalizer,
		orders:     orders,
		queue:      queue,
		metrics:    collector,
		logger:     logger,
	}
}

// Receive handles POST /api/webhooks/:platform.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	tenant, ok := middleware.TenantFromCtx(c)
	if !ok {
		return response.Unauthorized(c, "missing tenant")
	}

	adapter, ok := h.registry.Get(c.Params("platform"))
	if !ok {
		return response.BadRequest(c, platform.ErrUnknownPlatform.Error())
	}

	if err := checkReplayWindow(c.Get(TimestampHeader), time.Now()); err != nil {
		h.metrics.RecordError("webhook_ingest", "replay")
		return reject(c, errs.Auth("webhook_ingest", err))
	}

	rawBody := c.Body()
	if adapter.SignatureHeader() != "" {
		if !adapter.ValidateSignature(func(name string) string { return c.Get(name) }, rawBody, tenant.WebhookSecret) {
			h.metrics.RecordError("webhook_ingest", "signature")
			return reject(c, errs.Auth("webhook_ingest", errors.New("invalid webhook signature")))
		}
	}

	normalized, err := adapter.Normalize(rawBody)
	if err != nil {
		if !errors.Is(err, platform.ErrMissingOrderID) && !errors.Is(err, platform.ErrMalformedPayload) {
			h.logger.Error("payload normalization failed",
				zap.String("platform", adapter.Platform()), zap.Error(err))
			err = errors.New("unprocessable payload")
		}
		return reject(c, errs.Validation("webhook_ingest", err))
	}

	order := h.buildOrder(tenant, adapter.Platform(), normalized)

	created, err := h.orders.GetOrCreate(c.Context(), order)
	if err != nil {
		h.logger.Error("order persist failed",
			zap.String("external_id", normalized.ExternalID), zap.Error(err))
		return response.ServerError(c, "could not persist order")
	}
	if !created {
		return response.Success(c, "duplicate delivery, order already received", fiber.Map{
			"order_id": order.ID,
			"status":   order.Status,
		})
	}

	// Enqueue failures are deliberately not surfaced: the order is
	// persisted in PENDING and the recovery sweep will pick it up.
	queued, err := h.queue.Enqueue(c.Context(), scoring.Job{
		OrderID:    order.ID,
		TenantID:   tenant.ID,
		Priority:   tenant.PlanPriority(),
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("enqueue failed, sweep will recover",
			zap.Uint("order_id", order.ID), zap.Error(err))
	}

	h.logger.Info("order ingested",
		zap.Uint("order_id", order.ID),
		zap.Uint("tenant_id", tenant.ID),
		zap.String("platform", adapter.Platform()),
		zap.Bool("queued", queued && err == nil))

	return response.Accepted(c, "order accepted for scoring", fiber.Map{
		"order_id": order.ID,
		"status":   order.Status,
	})
}

func (h *WebhookHandler) buildOrder(tenant *models.Tenant, platformTag string, n *platform.NormalizedOrder) *models.Order {
	normalized := h.normalizer.Normalize(n.CustomerPhone)

	order := &models.Order{
		TenantID:        tenant.ID,
		ExternalID:      n.ExternalID,
		Platform:        platformTag,
		OrderNumber:     n.OrderNumber,
		CustomerName:    n.CustomerName,
		CustomerEmail:   strings.ToLower(strings.TrimSpace(n.CustomerEmail)),
		CustomerPhone:   n.CustomerPhone,
		PhoneCarrier:    normalized.Carrier,
		CustomerIP:      n.CustomerIP,
		ShippingAddress: n.ShippingAddress,
		AddressKey:      addressKey(tenant.ID, n.ShippingAddress),
		ShippingCity:    strings.TrimSpace(n.ShippingCity),
		PaymentMethod:   n.PaymentMethod,
		Amount:          n.Amount,
		ItemCount:       n.ItemCount,
		DiscountPercent: n.DiscountPercent,
		Status:          models.OrderStatusPending,
		PlacedAt:        n.PlacedAt,
	}
	if normalized.IsValid {
		order.PhoneNormalized = normalized.E164
	}
	if order.PlacedAt.IsZero() {
		order.PlacedAt = time.Now()
	}
	return order
}

// reject maps a classified ingestion failure to its HTTP status: auth
// problems get 401, validation problems 400, anything else is a server
// fault that must not look like a caller mistake.
func reject(c *fiber.Ctx, err error) error {
	var e *errs.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Err.Error()
	}
	if !errs.IsRejectable(err) {
		return response.ServerError(c, msg)
	}
	if errs.KindOf(err) == errs.KindAuth {
		return response.Unauthorized(c, msg)
	}
	return response.ValidationError(c, msg)
}

func checkReplayWindow(header string, now time.Time) error {
	if header == "" {
		return nil
	}
	ts, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return errors.New("unreadable webhook timestamp")
	}
	sent := time.Unix(ts, 0)
	if sent.Before(now.Add(-replayWindow)) || sent.After(now.Add(replayWindow)) {
		return errors.New("webhook timestamp outside the accepted window")
	}
	return nil
}

// addressKey fingerprints the shipping address so the same destination
// groups together regardless of spacing and case differences.
func addressKey(tenantID uint, address string) string {
	fields := strings.Fields(strings.ToLower(address))
	if len(fields) == 0 {
		return ""
	}
	canonical := strings.Join(fields, " ")
	sum := sha256.Sum256([]byte(strconv.FormatUint(uint64(tenantID), 10) + ":" + canonical))
	return hex.EncodeToString(sum[:16])
}
