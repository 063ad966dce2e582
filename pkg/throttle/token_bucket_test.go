package throttle

import (
	"testing"
	"time"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_Allow(t *testing.T) {
	t.Run("Grants exactly capacity acquisitions within one window", func(t *testing.T) {
		mc := clock.NewManualClock(time.Unix(0, 0))
		tb := NewTokenBucket(5, time.Second, mc)
		for i := 0; i < 5; i++ {
			assert.True(t, tb.Allow())
		}
		assert.False(t, tb.Allow())
		assert.False(t, tb.Allow())
	})

	t.Run("Refills after a full interval elapses", func(t *testing.T) {
		mc := clock.NewManualClock(time.Unix(0, 0))
		tb := NewTokenBucket(1, time.Second, mc)
		assert.True(t, tb.Allow())
		assert.False(t, tb.Allow())
		mc.Advance(time.Second)
		assert.True(t, tb.Allow())
		assert.False(t, tb.Allow())
	})

	t.Run("Does not refill before the interval elapses", func(t *testing.T) {
		mc := clock.NewManualClock(time.Unix(0, 0))
		tb := NewTokenBucket(2, time.Second, mc)
		assert.True(t, tb.Allow())
		assert.True(t, tb.Allow())
		mc.Advance(999 * time.Millisecond)
		assert.False(t, tb.Allow())
	})

	t.Run("Reports the remaining budget", func(t *testing.T) {
		mc := clock.NewManualClock(time.Unix(0, 0))
		tb := NewTokenBucket(3, time.Second, mc)
		tb.Allow()
		assert.Equal(t, int64(2), tb.Remaining())
	})
}
