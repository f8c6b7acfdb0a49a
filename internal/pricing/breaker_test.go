package pricing

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("src", 3, time.Minute, testLogger())

	for i := 0; i < 2; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow(), "open breaker must short-circuit")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("src", 3, time.Minute, testLogger())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("src", 1, 20*time.Millisecond, testLogger())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)

	// Cooldown elapsed: exactly one probe is admitted.
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "second caller must wait for the probe")

	// Successful probe closes the breaker.
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("src", 1, 20*time.Millisecond, testLogger())

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)

	assert.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow(), "failed probe restarts the cooldown")
}
