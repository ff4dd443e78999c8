package training

import (
	"context"
	"testing"
	"time"

	"rtoshield/internal/errs"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrders struct{ mock.Mock }

func (m *MockOrders) GetOrCreate(ctx context.Context, order *models.Order) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrders) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrders) GetByExternalID(ctx context.Context, tenantID uint, externalID string) (*models.Order, error) {
	args := m.Called(ctx, tenantID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrders) UpdateStatus(ctx context.Context, id uint, from, to string) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *MockOrders) SetStatus(ctx context.Context, id uint, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOrders) StalePending(ctx context.Context, grace, ceiling time.Duration) ([]models.Order, error) {
	args := m.Called(ctx, grace, ceiling)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrders) AwaitingOutcome(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrders) CustomerHistory(ctx context.Context, tenantID uint, phone, email string, before time.Time) (*repositories.CustomerHistory, error) {
	args := m.Called(ctx, tenantID, phone, email, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.CustomerHistory), args.Error(1)
}

type MockScores struct{ mock.Mock }

func (m *MockScores) Upsert(ctx context.Context, score *models.FraudScore) error {
	return m.Called(ctx, score).Error(0)
}

func (m *MockScores) GetByOrderID(ctx context.Context, orderID uint) (*models.FraudScore, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FraudScore), args.Error(1)
}

type MockEvents struct{ mock.Mock }

func (m *MockEvents) InsertIgnore(ctx context.Context, event *models.TrainingEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockEvents) CountUnused(ctx context.Context, tenantID uint) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEvents) MarkUsed(ctx context.Context, tenantID uint, upTo uint) error {
	return m.Called(ctx, tenantID, upTo).Error(0)
}

type MockPhones struct{ mock.Mock }

func (m *MockPhones) GetByNormalized(ctx context.Context, phone string) (*models.PhoneRecord, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PhoneRecord), args.Error(1)
}

func (m *MockPhones) RecordOrder(ctx context.Context, phone, carrier string, valid, mobile bool, at time.Time) error {
	return m.Called(ctx, phone, carrier, valid, mobile, at).Error(0)
}

func (m *MockPhones) RecordOutcome(ctx context.Context, phone string, isRTO bool) error {
	return m.Called(ctx, phone, isRTO).Error(0)
}

type MockAggs struct{ mock.Mock }

func (m *MockAggs) GetAddress(ctx context.Context, tenantID uint, addressKey string) (*models.AddressStat, error) {
	args := m.Called(ctx, tenantID, addressKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AddressStat), args.Error(1)
}

func (m *MockAggs) GetCity(ctx context.Context, city string) (*models.CityStat, error) {
	args := m.Called(ctx, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CityStat), args.Error(1)
}

func (m *MockAggs) RecordOrder(ctx context.Context, tenantID uint, addressKey, city string, newPhone bool) error {
	return m.Called(ctx, tenantID, addressKey, city, newPhone).Error(0)
}

func (m *MockAggs) RecordOutcome(ctx context.Context, tenantID uint, addressKey, city string, isRTO bool) error {
	return m.Called(ctx, tenantID, addressKey, city, isRTO).Error(0)
}

type fixture struct {
	recorder Recorder
	orders   *MockOrders
	scores   *MockScores
	events   *MockEvents
	phones   *MockPhones
	aggs     *MockAggs
}

func newFixture() *fixture {
	fx := &fixture{
		orders: new(MockOrders),
		scores: new(MockScores),
		events: new(MockEvents),
		phones: new(MockPhones),
		aggs:   new(MockAggs),
	}
	fx.recorder = NewRecorder(fx.orders, fx.scores, fx.events, fx.phones, fx.aggs, DefaultConfig(), nil)
	return fx
}

func scoredOrder() *models.Order {
	return &models.Order{
		ID:              21,
		TenantID:        3,
		PhoneNormalized: "+923211234567",
		AddressKey:      "k1",
		ShippingCity:    "Multan",
		Status:          models.OrderStatusScored,
	}
}

func persistedScore() *models.FraudScore {
	return &models.FraudScore{
		OrderID:    21,
		TenantID:   3,
		FinalScore: 72,
		Features:   models.NewJSON(map[string]interface{}{"order_amount": 3000.0}),
	}
}

func TestRecordOutcome_RTOScan(t *testing.T) {
	fx := newFixture()
	fx.orders.On("GetByID", mock.Anything, uint(21)).Return(scoredOrder(), nil)
	fx.scores.On("GetByOrderID", mock.Anything, uint(21)).Return(persistedScore(), nil)

	var event *models.TrainingEvent
	fx.events.On("InsertIgnore", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { event = args.Get(1).(*models.TrainingEvent) }).
		Return(true, nil)
	fx.phones.On("RecordOutcome", mock.Anything, "+923211234567", true).Return(nil).Once()
	fx.aggs.On("RecordOutcome", mock.Anything, uint(3), "k1", "Multan", true).Return(nil).Once()
	fx.orders.On("SetStatus", mock.Anything, uint(21), models.OrderStatusRTO).Return(nil).Once()

	inserted, err := fx.recorder.RecordOutcome(context.Background(), 21, true, models.OutcomeSourceScan)
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NotNil(t, event)
	assert.Equal(t, 1, event.TrueLabel)
	assert.Equal(t, 72.0, event.PredictedScore)
	assert.True(t, event.PredictionCorrect, "a high score followed by an RTO was a correct call")
	assert.Equal(t, models.OutcomeSourceScan, event.OutcomeSource)
	assert.NotEmpty(t, event.EventID)

	fx.phones.AssertExpectations(t)
	fx.aggs.AssertExpectations(t)
	fx.orders.AssertExpectations(t)
}

func TestRecordOutcome_DeliveredTimeout(t *testing.T) {
	fx := newFixture()
	fx.orders.On("GetByID", mock.Anything, uint(21)).Return(scoredOrder(), nil)
	fx.scores.On("GetByOrderID", mock.Anything, uint(21)).Return(persistedScore(), nil)

	var event *models.TrainingEvent
	fx.events.On("InsertIgnore", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { event = args.Get(1).(*models.TrainingEvent) }).
		Return(true, nil)
	fx.phones.On("RecordOutcome", mock.Anything, "+923211234567", false).Return(nil)
	fx.aggs.On("RecordOutcome", mock.Anything, uint(3), "k1", "Multan", false).Return(nil)
	fx.orders.On("SetStatus", mock.Anything, uint(21), models.OrderStatusDelivered).Return(nil).Once()

	inserted, err := fx.recorder.RecordOutcome(context.Background(), 21, false, models.OutcomeSourceTimeout)
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Equal(t, 0, event.TrueLabel)
	assert.False(t, event.PredictionCorrect, "score 72 predicted a return that never happened")
	assert.Equal(t, models.OutcomeSourceTimeout, event.OutcomeSource)
}

func TestRecordOutcome_SecondOutcomeIgnored(t *testing.T) {
	fx := newFixture()
	done := scoredOrder()
	done.Status = models.OrderStatusRTO
	fx.orders.On("GetByID", mock.Anything, uint(21)).Return(done, nil)

	inserted, err := fx.recorder.RecordOutcome(context.Background(), 21, false, models.OutcomeSourceTimeout)
	require.NoError(t, err)
	assert.False(t, inserted)

	fx.events.AssertNotCalled(t, "InsertIgnore", mock.Anything, mock.Anything)
	fx.phones.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordOutcome_RaceLosesToExistingEvent(t *testing.T) {
	// Scan and timeout sweep can race: both see a pre-outcome order,
	// only one insert wins and only the winner touches the aggregates.
	fx := newFixture()
	fx.orders.On("GetByID", mock.Anything, uint(21)).Return(scoredOrder(), nil)
	fx.scores.On("GetByOrderID", mock.Anything, uint(21)).Return(persistedScore(), nil)
	fx.events.On("InsertIgnore", mock.Anything, mock.Anything).Return(false, nil)
	fx.orders.On("SetStatus", mock.Anything, uint(21), models.OrderStatusDelivered).Return(nil)

	inserted, err := fx.recorder.RecordOutcome(context.Background(), 21, false, models.OutcomeSourceTimeout)
	require.NoError(t, err)
	assert.False(t, inserted)

	fx.phones.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything)
	fx.aggs.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordOutcome_UnscoredOrder(t *testing.T) {
	fx := newFixture()
	order := scoredOrder()
	order.Status = models.OrderStatusPending
	fx.orders.On("GetByID", mock.Anything, uint(21)).Return(order, nil)
	fx.scores.On("GetByOrderID", mock.Anything, uint(21)).Return(nil, repositories.ErrScoreNotFound)

	_, err := fx.recorder.RecordOutcome(context.Background(), 21, true, models.OutcomeSourceScan)
	assert.ErrorIs(t, err, ErrNoScore)
}

func TestSweepTimeouts_PresumesDelivered(t *testing.T) {
	fx := newFixture()
	fx.orders.On("AwaitingOutcome", mock.Anything, mock.Anything).Return([]models.Order{
		{ID: 21}, {ID: 22},
	}, nil)

	for _, id := range []uint{21, 22} {
		order := scoredOrder()
		order.ID = id
		fx.orders.On("GetByID", mock.Anything, id).Return(order, nil)
		fx.scores.On("GetByOrderID", mock.Anything, id).Return(persistedScore(), nil)
		fx.orders.On("SetStatus", mock.Anything, id, models.OrderStatusDelivered).Return(nil)
	}
	fx.events.On("InsertIgnore", mock.Anything, mock.Anything).Return(true, nil)
	fx.phones.On("RecordOutcome", mock.Anything, mock.Anything, false).Return(nil)
	fx.aggs.On("RecordOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything, false).Return(nil)

	recorded, err := fx.recorder.SweepTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)
}

func TestReadiness(t *testing.T) {
	fx := newFixture()
	fx.events.On("CountUnused", mock.Anything, uint(0)).Return(int64(120), nil).Once()

	count, ready, err := fx.recorder.Readiness(context.Background(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 120, count)
	assert.False(t, ready)

	fx.events.On("CountUnused", mock.Anything, uint(0)).Return(int64(RetrainThreshold), nil).Once()
	_, ready, err = fx.recorder.Readiness(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestMarkConsumed(t *testing.T) {
	fx := newFixture()
	fx.events.On("MarkUsed", mock.Anything, uint(3), uint(900)).Return(nil).Once()

	require.NoError(t, fx.recorder.MarkConsumed(context.Background(), 3, 900))
	fx.events.AssertExpectations(t)
}

func TestMarkConsumed_RequiresUpTo(t *testing.T) {
	fx := newFixture()

	err := fx.recorder.MarkConsumed(context.Background(), 3, 0)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	fx.events.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything, mock.Anything)
}
