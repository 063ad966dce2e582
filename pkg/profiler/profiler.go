package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/event"
	"github.com/argus-apm/argus/pkg/identifier"
	metricService "github.com/argus-apm/argus/pkg/metrics/service"
	samplingService "github.com/argus-apm/argus/pkg/sampling/service"
	"github.com/argus-apm/argus/pkg/stats"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
	traceService "github.com/argus-apm/argus/pkg/trace/service"
)

const (
	DefaultFlushInterval = 10 * time.Second
	DefaultMaxTraceAge   = 5 * time.Minute
	ErrorTraceName       = "error"
)

type Config struct {
	Enabled          bool
	SamplingRate     float64
	AdaptiveSampling bool
	AdaptiveConfig   samplingService.AdaptiveSamplerConfig
	BufferMaxSize    int
	FlushInterval    time.Duration
	MaxTraceAge      time.Duration
	ConsoleOutput    bool
}

// ProfilerCore is the façade consumed by instrumentation producers. It owns
// one trace collector and one metric buffer, and runs the periodic cleanup
// ticker off the hot path. Every operation is a silent no-op while the core
// is inactive, so producer call sites are safe even when monitoring is off.
type ProfilerCore struct {
	config    Config
	collector traceService.TraceCollector
	metrics   metricService.MetricBuffer
	clock     clock.Clock
	logger    *zap.Logger

	mu     sync.Mutex
	active bool
	stopCh chan struct{}
	done   sync.WaitGroup
}

func New(config Config, logger *zap.Logger) *ProfilerCore {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.MaxTraceAge <= 0 {
		config.MaxTraceAge = DefaultMaxTraceAge
	}
	clk := clock.NewSystemClock()

	var sampler traceService.Sampler
	if config.AdaptiveSampling {
		sampler = samplingService.NewAdaptiveSampler(config.AdaptiveConfig, clk, logger)
	}

	bus := EventBus.New()
	collector := traceService.NewTraceCollectorImpl(
		traceService.Config{
			Enabled:      config.Enabled,
			SamplingRate: config.SamplingRate,
			MaxSize:      config.BufferMaxSize,
		},
		sampler,
		clk,
		identifier.NewGeneratorImpl(clk),
		event.NewLifecycleBus[event.TraceEvent](bus, logger),
		event.NewLifecycleBus[event.SpanEvent](bus, logger),
		logger,
	)
	return &ProfilerCore{
		config:    config,
		collector: collector,
		metrics:   metricService.NewMetricBufferImpl(config.BufferMaxSize, clk, logger),
		clock:     clk,
		logger:    logger,
	}
}

// Init activates the core and starts the cleanup ticker. Calling Init on an
// already-active core is a no-op.
func (pc *ProfilerCore) Init() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.active {
		return
	}
	pc.active = true
	pc.stopCh = make(chan struct{})
	pc.done.Add(1)
	go pc.runTicker(pc.stopCh)
	pc.logger.Info("Profiler core started",
		zap.Bool("adaptive_sampling", pc.config.AdaptiveSampling),
		zap.Float64("sampling_rate", pc.config.SamplingRate),
	)
}

// Stop deactivates the core. Idempotent; already-collected data stays
// readable.
func (pc *ProfilerCore) Stop() {
	pc.mu.Lock()
	if !pc.active {
		pc.mu.Unlock()
		return
	}
	pc.active = false
	close(pc.stopCh)
	pc.mu.Unlock()
	pc.done.Wait()
	pc.logger.Info("Profiler core stopped")
}

func (pc *ProfilerCore) isActive() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.active
}

func (pc *ProfilerCore) StartTrace(
	name string,
	metadata traceModel.Metadata,
) (*traceModel.TraceHandle, error) {
	if !pc.isActive() {
		return nil, nil
	}
	return pc.collector.StartTrace(name, metadata)
}

func (pc *ProfilerCore) StartSpan(
	traceId string,
	name string,
	spanType traceModel.SpanType,
	parentId string,
) (*traceModel.SpanHandle, error) {
	if !pc.isActive() {
		return nil, nil
	}
	return pc.collector.StartSpan(traceId, name, spanType, parentId)
}

func (pc *ProfilerCore) CompleteSpan(
	spanId string,
	status traceModel.Status,
	metadata traceModel.Metadata,
) {
	if !pc.isActive() {
		return
	}
	pc.collector.CompleteSpan(spanId, status, metadata)
}

func (pc *ProfilerCore) AddSpanError(spanId string, err error) {
	if !pc.isActive() {
		return
	}
	pc.collector.AddSpanError(spanId, err)
}

func (pc *ProfilerCore) CompleteTrace(traceId string, status traceModel.Status) {
	if !pc.isActive() {
		return
	}
	pc.collector.CompleteTrace(traceId, status)
}

// RecordMetric stores the measurement in the metric ring and mirrors it as
// an immediately-completed trace so trace-querying consumers still see it.
func (pc *ProfilerCore) RecordMetric(name string, data map[string]interface{}) {
	if !pc.isActive() || name == "" {
		return
	}
	pc.metrics.Record(name, data)
	handle, err := pc.collector.StartTrace(name, data)
	if err != nil || handle == nil {
		return
	}
	pc.collector.CompleteTrace(handle.TraceId, traceModel.StatusSuccess)
}

// RecordError records err as a completed trace named "error" carrying the
// serialized error record in its metadata.
func (pc *ProfilerCore) RecordError(err error, context map[string]interface{}) {
	if !pc.isActive() {
		return
	}
	record := traceModel.NewErrorRecord(err, pc.clock.Now())
	metadata := traceModel.MergeMetadata(nil, context)
	metadata = traceModel.MergeMetadata(metadata, traceModel.Metadata{
		"error_name":    record.Name,
		"error_message": record.Message,
		"error_stack":   record.Stack,
	})
	handle, startErr := pc.collector.StartTrace(ErrorTraceName, metadata)
	if startErr != nil || handle == nil {
		return
	}
	pc.collector.CompleteTrace(handle.TraceId, traceModel.StatusError)
}

func (pc *ProfilerCore) GetTrace(id string) *traceModel.Trace {
	return pc.collector.GetTrace(id)
}

func (pc *ProfilerCore) GetAllTraces() []*traceModel.Trace {
	return pc.collector.GetAllTraces()
}

func (pc *ProfilerCore) GetTracesByTimeRange(from time.Time, to time.Time) []*traceModel.Trace {
	return pc.collector.GetTracesByTimeRange(from, to)
}

func (pc *ProfilerCore) GetStats() traceService.CollectorStats {
	return pc.collector.GetStats()
}

func (pc *ProfilerCore) GetMetrics() metricService.MetricBuffer {
	return pc.metrics
}

func (pc *ProfilerCore) Export(format traceService.ExportFormat) (string, error) {
	return pc.collector.Export(format)
}

func (pc *ProfilerCore) OnTraceEvent(topic string, handler func(event.TraceEvent)) error {
	return pc.collector.OnTraceEvent(topic, handler)
}

func (pc *ProfilerCore) OnSpanEvent(topic string, handler func(event.SpanEvent)) error {
	return pc.collector.OnSpanEvent(topic, handler)
}

// Cleanup evicts traces older than the configured max age. The ticker calls
// this periodically; it is exported for operator-driven flushes.
func (pc *ProfilerCore) Cleanup() {
	pc.collector.Cleanup(pc.config.MaxTraceAge)
}

func (pc *ProfilerCore) runTicker(stopCh chan struct{}) {
	defer pc.done.Done()
	ticker := time.NewTicker(pc.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pc.Cleanup()
			if pc.config.ConsoleOutput {
				pc.logSummary()
			}
		case <-stopCh:
			return
		}
	}
}

func (pc *ProfilerCore) logSummary() {
	collectorStats := pc.collector.GetStats()
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	pc.logger.Info("Collector summary",
		zap.Int("completed_traces", collectorStats.Traces.Count),
		zap.Int("completed_spans", collectorStats.Spans.Count),
		zap.String("trace_p95", stats.FormatDuration(collectorStats.Traces.P95)),
		zap.String("trace_p99", stats.FormatDuration(collectorStats.Traces.P99)),
		zap.String("heap_alloc", stats.FormatBytes(memStats.HeapAlloc)),
	)
}
