package ml

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.Error(t, b.Execute(func() error { return errBoom }))
		assert.Equal(t, StateClosed, b.State())
	}
	assert.Error(t, b.Execute(func() error { return errBoom }))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpenShortCircuits(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.Execute(func() error { return errBoom })

	called := false
	err := b.Execute(func() error { called = true; return nil })

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit must not invoke the operation")
}

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	assert.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.Execute(func() error { return errBoom })

	*now = now.Add(2 * time.Minute)
	assert.Error(t, b.Execute(func() error { return errBoom }))
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	b.now = func() time.Time { return now }

	b.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Minute)
	b.Execute(func() error { return nil })

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}
