package throttle

import (
	"sync"
	"time"

	"github.com/argus-apm/argus/pkg/clock"
)

// Throttler bounds the rate of an operation. Allow reports whether the caller
// may proceed; a false return means the current window's budget is spent.
type Throttler interface {
	Allow() bool
}

// TokenBucket grants up to capacity operations per refill interval. The
// bucket refills fully once an entire interval has elapsed, rather than
// dripping tokens continuously.
type TokenBucket struct {
	capacity       int64
	refillInterval time.Duration
	clock          clock.Clock

	mu         sync.Mutex
	tokens     int64
	lastRefill time.Time
}

func NewTokenBucket(capacity int64, refillInterval time.Duration, clk clock.Clock) *TokenBucket {
	return &TokenBucket{
		capacity:       capacity,
		refillInterval: refillInterval,
		clock:          clk,
		tokens:         capacity,
		lastRefill:     clk.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	if now.Sub(tb.lastRefill) >= tb.refillInterval {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}

// Remaining reports the unspent budget of the current window.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokens
}
