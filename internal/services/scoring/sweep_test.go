package scoring

import (
	"context"
	"testing"
	"time"

	"rtoshield/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSweep_RequeuesStalePending(t *testing.T) {
	queue := newMemQueue()
	orders := new(MockOrderLoader)
	tenants := new(MockTenantLoader)

	cfg := DefaultSweepConfig()
	orders.On("StalePending", mock.Anything, cfg.Grace, cfg.Ceiling).Return([]models.Order{
		{ID: 1, TenantID: 7, Status: models.OrderStatusPending},
		{ID: 2, TenantID: 7, Status: models.OrderStatusPending},
	}, nil)
	tenants.On("GetByID", mock.Anything, uint(7)).Return(&models.Tenant{ID: 7, Plan: models.PlanPro}, nil).Once()

	sweeper := NewSweeper(orders, tenants, queue, cfg, nil)
	require.NoError(t, sweeper.Sweep(context.Background()))

	depth, _ := queue.Depth(context.Background())
	assert.EqualValues(t, 2, depth)

	job, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, job.Priority, "pro plan maps to priority band 1")

	// Tenant priorities are looked up once per tenant per sweep.
	tenants.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestSweep_DedupAgainstQueuedOrder(t *testing.T) {
	queue := newMemQueue()
	orders := new(MockOrderLoader)
	tenants := new(MockTenantLoader)

	_, err := queue.Enqueue(context.Background(), Job{OrderID: 1, TenantID: 7})
	require.NoError(t, err)

	cfg := DefaultSweepConfig()
	orders.On("StalePending", mock.Anything, cfg.Grace, cfg.Ceiling).Return([]models.Order{
		{ID: 1, TenantID: 7, Status: models.OrderStatusPending},
	}, nil)
	tenants.On("GetByID", mock.Anything, uint(7)).Return(&models.Tenant{ID: 7}, nil)

	sweeper := NewSweeper(orders, tenants, queue, cfg, nil)
	require.NoError(t, sweeper.Sweep(context.Background()))

	depth, _ := queue.Depth(context.Background())
	assert.EqualValues(t, 1, depth, "sweep must not double-queue an order")
}

func TestSweep_NothingStale(t *testing.T) {
	queue := newMemQueue()
	orders := new(MockOrderLoader)
	tenants := new(MockTenantLoader)

	cfg := DefaultSweepConfig()
	orders.On("StalePending", mock.Anything, cfg.Grace, cfg.Ceiling).Return([]models.Order{}, nil)

	sweeper := NewSweeper(orders, tenants, queue, cfg, nil)
	require.NoError(t, sweeper.Sweep(context.Background()))

	tenants.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestSweep_TenantLookupFailureSkipsOrder(t *testing.T) {
	queue := newMemQueue()
	orders := new(MockOrderLoader)
	tenants := new(MockTenantLoader)

	cfg := DefaultSweepConfig()
	orders.On("StalePending", mock.Anything, cfg.Grace, cfg.Ceiling).Return([]models.Order{
		{ID: 1, TenantID: 7},
		{ID: 2, TenantID: 8},
	}, nil)
	tenants.On("GetByID", mock.Anything, uint(7)).Return(nil, assert.AnError)
	tenants.On("GetByID", mock.Anything, uint(8)).Return(&models.Tenant{ID: 8}, nil)

	sweeper := NewSweeper(orders, tenants, queue, cfg, nil)
	require.NoError(t, sweeper.Sweep(context.Background()))

	depth, _ := queue.Depth(context.Background())
	assert.EqualValues(t, 1, depth)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	queue := newMemQueue()
	orders := new(MockOrderLoader)
	tenants := new(MockTenantLoader)
	orders.On("StalePending", mock.Anything, mock.Anything, mock.Anything).Return([]models.Order{}, nil).Maybe()

	sweeper := NewSweeper(orders, tenants, queue, SweepConfig{Interval: time.Millisecond, Grace: time.Minute, Ceiling: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
