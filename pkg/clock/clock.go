package clock

import (
	"sync"
	"time"
)

// Clock abstracts the engine's time source so that duration and eviction
// logic can be driven deterministically in tests. SystemClock timestamps
// carry Go's monotonic reading, so Since is safe against wall-clock jumps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type SystemClock struct{}

func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// ManualClock is a test clock advanced explicitly by the caller.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (mc *ManualClock) Now() time.Time {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.now
}

func (mc *ManualClock) Since(t time.Time) time.Duration {
	return mc.Now().Sub(t)
}

func (mc *ManualClock) Advance(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.now = mc.now.Add(d)
}

// ToMillis converts a timestamp to milliseconds since the Unix epoch.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// MillisBetween returns the elapsed milliseconds from start to end as a float
// so that sub-millisecond spans keep their fractional duration.
func MillisBetween(start time.Time, end time.Time) float64 {
	return float64(end.Sub(start).Nanoseconds()) / float64(time.Millisecond)
}
