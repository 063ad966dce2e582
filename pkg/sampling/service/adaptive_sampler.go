package service

import (
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/sampling/model"
	"go.uber.org/zap"
)

const (
	arrivalWindow = time.Second

	// Above memoryCriticalRatio of the budget the rate pins to the floor;
	// above memoryPressureRatio the throughput-derived rate is halved.
	memoryCriticalRatio = 0.9
	memoryPressureRatio = 0.75
)

type AdaptiveSamplerConfig struct {
	TargetTracesPerSecond float64
	MaxMemoryUsageMB      float64
	MinSamplingRate       float64
	MaxSamplingRate       float64
}

// AdaptiveSampler tunes the sampling rate from two signals: trace arrival
// throughput over a sliding window, and process heap usage against a budget.
// The returned rate never leaves [MinSamplingRate, MaxSamplingRate], and
// memory pressure overrides any throughput-driven raise.
type AdaptiveSampler struct {
	config AdaptiveSamplerConfig
	clock  clock.Clock
	logger *zap.Logger

	// memFn reports the current heap usage in bytes; swapped in tests.
	memFn  func() uint64
	randFn func() float64

	mu       sync.Mutex
	arrivals []time.Time
}

func NewAdaptiveSampler(
	config AdaptiveSamplerConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *AdaptiveSampler {
	return &AdaptiveSampler{
		config: config,
		clock:  clk,
		logger: logger,
		memFn:  heapAllocBytes,
		randFn: rand.Float64,
	}
}

// ShouldSample records one arrival, recomputes the current rate from the
// window and memory signals, and draws against it.
func (as *AdaptiveSampler) ShouldSample() model.SamplingDecision {
	now := as.clock.Now()

	as.mu.Lock()
	as.arrivals = append(as.arrivals, now)
	as.pruneLocked(now)
	arrivalsPerSecond := float64(len(as.arrivals))
	as.mu.Unlock()

	rate := as.rateFor(arrivalsPerSecond, as.memFn())
	return model.SamplingDecision{
		ShouldSample: as.draw(rate),
		CurrentRate:  rate,
	}
}

// CurrentRate recomputes the rate without recording an arrival.
func (as *AdaptiveSampler) CurrentRate() float64 {
	now := as.clock.Now()
	as.mu.Lock()
	as.pruneLocked(now)
	arrivalsPerSecond := float64(len(as.arrivals))
	as.mu.Unlock()
	return as.rateFor(arrivalsPerSecond, as.memFn())
}

func (as *AdaptiveSampler) rateFor(arrivalsPerSecond float64, heapBytes uint64) float64 {
	rate := as.config.MaxSamplingRate
	if as.config.TargetTracesPerSecond > 0 && arrivalsPerSecond > as.config.TargetTracesPerSecond {
		rate = as.config.TargetTracesPerSecond / arrivalsPerSecond
	}

	if as.config.MaxMemoryUsageMB > 0 {
		memoryRatio := float64(heapBytes) / (as.config.MaxMemoryUsageMB * 1024 * 1024)
		switch {
		case memoryRatio >= memoryCriticalRatio:
			rate = as.config.MinSamplingRate
		case memoryRatio >= memoryPressureRatio:
			rate = rate / 2
		}
	}

	return as.clamp(rate)
}

func (as *AdaptiveSampler) clamp(rate float64) float64 {
	if rate < as.config.MinSamplingRate {
		return as.config.MinSamplingRate
	}
	if rate > as.config.MaxSamplingRate {
		return as.config.MaxSamplingRate
	}
	return rate
}

func (as *AdaptiveSampler) draw(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return as.randFn() < rate
}

func (as *AdaptiveSampler) pruneLocked(now time.Time) {
	cutoff := now.Add(-arrivalWindow)
	firstLive := 0
	for firstLive < len(as.arrivals) && !as.arrivals[firstLive].After(cutoff) {
		firstLive++
	}
	if firstLive > 0 {
		as.arrivals = append([]time.Time(nil), as.arrivals[firstLive:]...)
	}
}

func heapAllocBytes() uint64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return memStats.HeapAlloc
}
