package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"rtoshield/internal/config"
	"rtoshield/internal/middleware"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/phone"
	"rtoshield/internal/services/platform"
	"rtoshield/internal/services/scoring"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type stubQueue struct {
	mu       sync.Mutex
	jobs     []scoring.Job
	letters  []scoring.DeadLetter
	enqueued func(scoring.Job)
}

func (q *stubQueue) Enqueue(ctx context.Context, job scoring.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	if q.enqueued != nil {
		q.enqueued(job)
	}
	return true, nil
}

func (q *stubQueue) Dequeue(ctx context.Context) (*scoring.Job, error) { return nil, nil }

func (q *stubQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *stubQueue) PushDeadLetter(ctx context.Context, dl scoring.DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.letters = append(q.letters, dl)
	return nil
}

func (q *stubQueue) DeadLetters(ctx context.Context, limit int64) ([]scoring.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]scoring.DeadLetter(nil), q.letters...), nil
}

func (q *stubQueue) ReplayOldest(ctx context.Context) (bool, error) { return false, nil }

type MockOrderRepo struct {
	mock.Mock
}

func (m *MockOrderRepo) GetOrCreate(ctx context.Context, order *models.Order) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepo) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepo) GetByExternalID(ctx context.Context, tenantID uint, externalID string) (*models.Order, error) {
	args := m.Called(ctx, tenantID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, id uint, from, to string) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockOrderRepo) SetStatus(ctx context.Context, id uint, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOrderRepo) StalePending(ctx context.Context, grace, ceiling time.Duration) ([]models.Order, error) {
	args := m.Called(ctx, grace, ceiling)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepo) CustomerHistory(ctx context.Context, tenantID uint, phone, email string, before time.Time) (*repositories.CustomerHistory, error) {
	args := m.Called(ctx, tenantID, phone, email, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.CustomerHistory), args.Error(1)
}

func (m *MockOrderRepo) AwaitingOutcome(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func testCarrierTable() *config.CarrierTable {
	return &config.CarrierTable{
		Version:      3,
		CountryCode:  "92",
		MobilePrefix: "3",
		LocalLength:  11,
		Ranges: []config.CarrierRange{
			{Start: "0300", End: "0309", Name: "Jazz"},
			{Start: "0310", End: "0319", Name: "Zong"},
		},
	}
}

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:            7,
		Name:          "Khas Store",
		Plan:          models.PlanPro,
		WebhookSecret: "whsec_test",
		Active:        true,
	}
}

type webhookFixture struct {
	app    *fiber.App
	orders *MockOrderRepo
	queue  *stubQueue
}

func newWebhookFixture(t *testing.T, tenant *models.Tenant) *webhookFixture {
	t.Helper()

	orders := new(MockOrderRepo)
	queue := &stubQueue{}
	handler := NewWebhookHandler(
		platform.DefaultRegistry(),
		phone.NewNormalizer(testCarrierTable()),
		orders,
		queue,
		nil,
		zap.NewNop(),
	)

	app := fiber.New()
	app.Post("/api/webhooks/:platform", func(c *fiber.Ctx) error {
		c.Locals(middleware.TenantLocal, tenant)
		return handler.Receive(c)
	})

	return &webhookFixture{app: app, orders: orders, queue: queue}
}

func customPayload() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"order_id":     "CUST-1001",
		"order_number": "1001",
		"customer": map[string]string{
			"name":  "Ahmed Raza",
			"email": "Ahmed@Example.com",
			"phone": "0300 1234567",
			"ip":    "39.45.12.8",
		},
		"shipping": map[string]string{
			"address": "House 12, Street 5, DHA Phase 6",
			"city":    "Lahore",
		},
		"amount":         4500,
		"payment_method": "cod",
		"item_count":     2,
	})
	return body
}

func TestWebhookReceive_CustomOrderAccepted(t *testing.T) {
	fx := newWebhookFixture(t, testTenant())

	fx.orders.On("GetOrCreate", mock.Anything, mock.AnythingOfType("*models.Order")).
		Run(func(args mock.Arguments) {
			order := args.Get(1).(*models.Order)
			order.ID = 42
		}).
		Return(true, nil).Once()

	req := httptest.NewRequest("POST", "/api/webhooks/custom", bytes.NewReader(customPayload()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	order := fx.orders.Calls[0].Arguments.Get(1).(*models.Order)
	assert.Equal(t, uint(7), order.TenantID)
	assert.Equal(t, "CUST-1001", order.ExternalID)
	assert.Equal(t, "custom", order.Platform)
	assert.Equal(t, "+923001234567", order.PhoneNormalized)
	assert.Equal(t, "Jazz", order.PhoneCarrier)
	assert.Equal(t, "ahmed@example.com", order.CustomerEmail)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.NotEmpty(t, order.AddressKey)
	assert.False(t, order.PlacedAt.IsZero())

	assert.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, uint(42), fx.queue.jobs[0].OrderID)
	assert.Equal(t, 1, fx.queue.jobs[0].Priority)
}

func TestWebhookReceive_UnknownPlatform(t *testing.T) {
	fx := newWebhookFixture(t, testTenant())

	req := httptest.NewRequest("POST", "/api/webhooks/magento", bytes.NewReader(customPayload()))
	resp, err := fx.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	fx.orders.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
}

func TestWebhookReceive_MissingOrderID(t *testing.T) {
	fx := newWebhookFixture(t, testTenant())

	req := httptest.NewRequest("POST", "/api/webhooks/custom", bytes.NewReader([]byte(`{"amount": 100}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fx.queue.jobs)
}

func TestWebhookReceive_ShopifySignature(t *testing.T) {
	tenant := testTenant()
	body := []byte(`{"id": 99887, "order_number": 1088, "email": "ali@example.com", "total_price": "2500.00", "payment_gateway_names": ["Cash on Delivery (COD)"], "shipping_address": {"name": "Ali", "address1": "Gulshan Block 2", "city": "Karachi", "phone": "03111234567"}}`)

	mac := hmac.New(sha256.New, []byte(tenant.WebhookSecret))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name       string
		signature  string
		wantStatus int
	}{
		{"valid signature", signature, fiber.StatusAccepted},
		{"tampered signature", base64.StdEncoding.EncodeToString([]byte("nope")), fiber.StatusUnauthorized},
		{"missing signature", "", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newWebhookFixture(t, tenant)
			fx.orders.On("GetOrCreate", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { args.Get(1).(*models.Order).ID = 5 }).
				Return(true, nil).Maybe()

			req := httptest.NewRequest("POST", "/api/webhooks/shopify", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.signature != "" {
				req.Header.Set("X-Shopify-Hmac-Sha256", tt.signature)
			}

			resp, err := fx.app.Test(req, -1)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestWebhookReceive_DuplicateDelivery(t *testing.T) {
	fx := newWebhookFixture(t, testTenant())

	fx.orders.On("GetOrCreate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			order := args.Get(1).(*models.Order)
			order.ID = 42
			order.Status = models.OrderStatusScored
		}).
		Return(false, nil).Once()

	req := httptest.NewRequest("POST", "/api/webhooks/custom", bytes.NewReader(customPayload()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := fx.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, fx.queue.jobs)

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Contains(t, parsed["message"], "duplicate")
}

func TestWebhookReceive_ReplayWindow(t *testing.T) {
	tests := []struct {
		name       string
		timestamp  string
		wantStatus int
	}{
		{"fresh timestamp", strconv.FormatInt(time.Now().Unix(), 10), fiber.StatusAccepted},
		{"stale timestamp", strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10), fiber.StatusUnauthorized},
		{"future timestamp", strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10), fiber.StatusUnauthorized},
		{"garbage timestamp", "yesterday", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newWebhookFixture(t, testTenant())
			fx.orders.On("GetOrCreate", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { args.Get(1).(*models.Order).ID = 9 }).
				Return(true, nil).Maybe()

			req := httptest.NewRequest("POST", "/api/webhooks/custom", bytes.NewReader(customPayload()))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(TimestampHeader, tt.timestamp)

			resp, err := fx.app.Test(req, -1)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, fmt.Sprintf("timestamp %q", tt.timestamp))
		})
	}
}
