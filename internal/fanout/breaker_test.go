package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsAndProbes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(2, 10*time.Second)
	b.now = func() time.Time { return now }

	assert.True(t, b.TryAcquire())
	b.OnFailure()
	assert.True(t, b.TryAcquire(), "below threshold stays closed")
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	now = now.Add(11 * time.Second)
	assert.True(t, b.TryAcquire(), "one probe after cool-down")
	assert.False(t, b.TryAcquire(), "only one probe in flight")

	b.OnFailure()
	assert.False(t, b.TryAcquire(), "failed probe re-opens")

	now = now.Add(11 * time.Second)
	assert.True(t, b.TryAcquire())
	b.OnSuccess()
	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire(), "closed breaker admits every call")
}
