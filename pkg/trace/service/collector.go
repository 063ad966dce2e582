package service

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/event"
	"github.com/argus-apm/argus/pkg/identifier"
	"github.com/argus-apm/argus/pkg/sampling/model"
	"github.com/argus-apm/argus/pkg/stats"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
	"go.uber.org/zap"
)

var ErrEmptyName = errors.New("name must not be empty")

// Sampler decides whether an arriving trace is observed at all. The fixed
// Bernoulli gate and the adaptive sampler both satisfy it.
type Sampler interface {
	ShouldSample() model.SamplingDecision
}

// CollectorStats aggregates duration summaries over completed traces and
// completed spans.
type CollectorStats struct {
	Traces stats.Summary `json:"traces"`
	Spans  stats.Summary `json:"spans"`
}

// TraceCollector owns the in-memory trace/span store: lifecycle transitions,
// the sampling gate, time-based eviction, aggregate statistics, export, and
// the lifecycle event feed.
type TraceCollector interface {
	StartTrace(name string, metadata traceModel.Metadata) (*traceModel.TraceHandle, error)
	StartSpan(traceId string, name string, spanType traceModel.SpanType, parentId string) (*traceModel.SpanHandle, error)
	CompleteSpan(spanId string, status traceModel.Status, metadata traceModel.Metadata)
	AddSpanError(spanId string, err error)
	CompleteTrace(traceId string, status traceModel.Status)
	GetTrace(id string) *traceModel.Trace
	GetAllTraces() []*traceModel.Trace
	GetTracesByTimeRange(from time.Time, to time.Time) []*traceModel.Trace
	GetStats() CollectorStats
	Cleanup(maxAge time.Duration)
	Export(format ExportFormat) (string, error)
	OnTraceEvent(topic string, handler func(event.TraceEvent)) error
	OnSpanEvent(topic string, handler func(event.SpanEvent)) error
	OrphanSpanCount() int64
}

type Config struct {
	Enabled      bool
	SamplingRate float64
	MaxSize      int
}

type TraceCollectorImpl struct {
	config   Config
	sampler  Sampler
	clock    clock.Clock
	idGen    identifier.Generator
	traceBus event.LifecycleBus[event.TraceEvent]
	spanBus  event.LifecycleBus[event.SpanEvent]
	logger   *zap.Logger
	randFn   func() float64

	mu        sync.Mutex
	traces    map[string]*traceModel.Trace
	spanIndex map[string]string

	orphanSpans atomic.Int64
}

// NewTraceCollectorImpl creates a collector. sampler may be nil, in which
// case the fixed SamplingRate gates admission.
func NewTraceCollectorImpl(
	config Config,
	sampler Sampler,
	clk clock.Clock,
	idGen identifier.Generator,
	traceBus event.LifecycleBus[event.TraceEvent],
	spanBus event.LifecycleBus[event.SpanEvent],
	logger *zap.Logger,
) *TraceCollectorImpl {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	return &TraceCollectorImpl{
		config:    config,
		sampler:   sampler,
		clock:     clk,
		idGen:     idGen,
		traceBus:  traceBus,
		spanBus:   spanBus,
		logger:    logger,
		randFn:    rand.Float64,
		traces:    make(map[string]*traceModel.Trace),
		spanIndex: make(map[string]string),
	}
}

const DefaultMaxSize = 1000

func (tc *TraceCollectorImpl) StartTrace(
	name string,
	metadata traceModel.Metadata,
) (*traceModel.TraceHandle, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if !tc.shouldSample() {
		return nil, nil
	}

	now := tc.clock.Now()
	trace := &traceModel.Trace{
		Id:        tc.idGen.TraceId(),
		Name:      name,
		Status:    traceModel.StatusPending,
		StartedAt: now,
		Metadata:  traceModel.SanitizeMetadata(metadata),
		Spans:     []*traceModel.Span{},
	}

	tc.mu.Lock()
	tc.evictForCapacityLocked()
	tc.traces[trace.Id] = trace
	tc.mu.Unlock()

	tc.traceBus.Publish(event.TopicTraceStarted, event.TraceEvent{
		TraceId:   trace.Id,
		Name:      trace.Name,
		Status:    string(trace.Status),
		Timestamp: now,
	})
	return &traceModel.TraceHandle{
		TraceId:  trace.Id,
		Name:     trace.Name,
		Metadata: copyMetadata(trace.Metadata),
	}, nil
}

func (tc *TraceCollectorImpl) StartSpan(
	traceId string,
	name string,
	spanType traceModel.SpanType,
	parentId string,
) (*traceModel.SpanHandle, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	now := tc.clock.Now()
	tc.mu.Lock()
	trace, ok := tc.traces[traceId]
	if !ok || trace.IsCompleted() {
		tc.mu.Unlock()
		// Expected condition: late producer call against an unsampled or
		// already-completed trace.
		tc.logger.Debug("Dropping span for unknown or completed trace",
			zap.String("trace_id", traceId),
			zap.String("span_name", name),
		)
		return nil, nil
	}

	if parentId != "" && !spanExistsLocked(trace, parentId) {
		tc.orphanSpans.Add(1)
		tc.logger.Debug("Parent span not found, treating span as root",
			zap.String("trace_id", traceId),
			zap.String("parent_id", parentId),
		)
		parentId = ""
	}

	span := &traceModel.Span{
		Id:        tc.idGen.SpanId(),
		TraceId:   traceId,
		ParentId:  parentId,
		Name:      name,
		Type:      spanType,
		Status:    traceModel.StatusPending,
		StartedAt: now,
	}
	trace.Spans = append(trace.Spans, span)
	tc.spanIndex[span.Id] = traceId
	tc.mu.Unlock()

	tc.spanBus.Publish(event.TopicSpanStarted, event.SpanEvent{
		SpanId:    span.Id,
		TraceId:   traceId,
		ParentId:  parentId,
		Name:      name,
		Type:      string(spanType),
		Status:    string(traceModel.StatusPending),
		Timestamp: now,
	})
	return &traceModel.SpanHandle{SpanId: span.Id, TraceId: traceId, Name: name}, nil
}

func (tc *TraceCollectorImpl) CompleteSpan(
	spanId string,
	status traceModel.Status,
	metadata traceModel.Metadata,
) {
	now := tc.clock.Now()
	tc.mu.Lock()
	span := tc.findSpanLocked(spanId)
	if span == nil || span.IsCompleted() {
		tc.mu.Unlock()
		return
	}
	completedAt := now
	span.CompletedAt = &completedAt
	span.DurationMillis = clock.MillisBetween(span.StartedAt, completedAt)
	span.Status = status
	span.Metadata = traceModel.MergeMetadata(span.Metadata, metadata)
	snapshot := event.SpanEvent{
		SpanId:         span.Id,
		TraceId:        span.TraceId,
		ParentId:       span.ParentId,
		Name:           span.Name,
		Type:           string(span.Type),
		Status:         string(span.Status),
		DurationMillis: span.DurationMillis,
		Timestamp:      completedAt,
	}
	tc.mu.Unlock()

	tc.spanBus.Publish(event.TopicSpanCompleted, snapshot)
}

func (tc *TraceCollectorImpl) AddSpanError(spanId string, err error) {
	now := tc.clock.Now()
	tc.mu.Lock()
	defer tc.mu.Unlock()
	span := tc.findSpanLocked(spanId)
	if span == nil {
		return
	}
	span.Errors = append(span.Errors, traceModel.NewErrorRecord(err, now))
}

func (tc *TraceCollectorImpl) CompleteTrace(traceId string, status traceModel.Status) {
	now := tc.clock.Now()
	tc.mu.Lock()
	trace, ok := tc.traces[traceId]
	if !ok || trace.IsCompleted() {
		tc.mu.Unlock()
		return
	}
	completedAt := now
	trace.CompletedAt = &completedAt
	trace.DurationMillis = clock.MillisBetween(trace.StartedAt, completedAt)
	trace.Status = status
	snapshot := event.TraceEvent{
		TraceId:        trace.Id,
		Name:           trace.Name,
		Status:         string(trace.Status),
		DurationMillis: trace.DurationMillis,
		Timestamp:      completedAt,
	}
	tc.mu.Unlock()

	tc.traceBus.Publish(event.TopicTraceCompleted, snapshot)
}

func (tc *TraceCollectorImpl) GetTrace(id string) *traceModel.Trace {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	trace, ok := tc.traces[id]
	if !ok {
		return nil
	}
	return copyTrace(trace)
}

func (tc *TraceCollectorImpl) GetAllTraces() []*traceModel.Trace {
	tc.mu.Lock()
	snapshot := make([]*traceModel.Trace, 0, len(tc.traces))
	for _, trace := range tc.traces {
		snapshot = append(snapshot, copyTrace(trace))
	}
	tc.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].StartedAt.Equal(snapshot[j].StartedAt) {
			return snapshot[i].Id < snapshot[j].Id
		}
		return snapshot[i].StartedAt.Before(snapshot[j].StartedAt)
	})
	return snapshot
}

func (tc *TraceCollectorImpl) GetTracesByTimeRange(
	from time.Time,
	to time.Time,
) []*traceModel.Trace {
	traces := tc.GetAllTraces()
	inRange := make([]*traceModel.Trace, 0, len(traces))
	for _, trace := range traces {
		if !trace.StartedAt.Before(from) && !trace.StartedAt.After(to) {
			inRange = append(inRange, trace)
		}
	}
	return inRange
}

func (tc *TraceCollectorImpl) GetStats() CollectorStats {
	tc.mu.Lock()
	var traceDurations []float64
	var spanDurations []float64
	for _, trace := range tc.traces {
		if trace.IsCompleted() {
			traceDurations = append(traceDurations, trace.DurationMillis)
		}
		for _, span := range trace.Spans {
			if span.IsCompleted() {
				spanDurations = append(spanDurations, span.DurationMillis)
			}
		}
	}
	tc.mu.Unlock()

	return CollectorStats{
		Traces: stats.Calculate(traceDurations),
		Spans:  stats.Calculate(spanDurations),
	}
}

// Cleanup evicts traces whose StartedAt is older than maxAge, regardless of
// completion state. A stuck pending trace is acceptable data loss against
// unbounded memory.
func (tc *TraceCollectorImpl) Cleanup(maxAge time.Duration) {
	cutoff := tc.clock.Now().Add(-maxAge)
	tc.mu.Lock()
	defer tc.mu.Unlock()

	var expired []string
	for id, trace := range tc.traces {
		if trace.StartedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		tc.removeTraceLocked(id)
	}
	if len(expired) > 0 {
		tc.logger.Debug("Evicted expired traces", zap.Int("count", len(expired)))
	}
}

func (tc *TraceCollectorImpl) OnTraceEvent(topic string, handler func(event.TraceEvent)) error {
	return tc.traceBus.Subscribe(topic, handler)
}

func (tc *TraceCollectorImpl) OnSpanEvent(topic string, handler func(event.SpanEvent)) error {
	return tc.spanBus.Subscribe(topic, handler)
}

// OrphanSpanCount reports how many spans named a parent that was not present
// in their trace and were demoted to roots. A rising count points at a
// misbehaving producer.
func (tc *TraceCollectorImpl) OrphanSpanCount() int64 {
	return tc.orphanSpans.Load()
}

func (tc *TraceCollectorImpl) shouldSample() bool {
	if !tc.config.Enabled {
		return false
	}
	if tc.sampler != nil {
		return tc.sampler.ShouldSample().ShouldSample
	}
	rate := tc.config.SamplingRate
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return tc.randFn() < rate
}

// evictForCapacityLocked makes room for one insertion, preferring the oldest
// completed trace and falling back to the oldest pending one.
func (tc *TraceCollectorImpl) evictForCapacityLocked() {
	if len(tc.traces) < tc.config.MaxSize {
		return
	}
	var oldestCompleted, oldest *traceModel.Trace
	for _, trace := range tc.traces {
		if oldest == nil || trace.StartedAt.Before(oldest.StartedAt) {
			oldest = trace
		}
		if trace.IsCompleted() &&
			(oldestCompleted == nil || trace.StartedAt.Before(oldestCompleted.StartedAt)) {
			oldestCompleted = trace
		}
	}
	victim := oldestCompleted
	if victim == nil {
		victim = oldest
	}
	if victim != nil {
		tc.removeTraceLocked(victim.Id)
	}
}

func (tc *TraceCollectorImpl) removeTraceLocked(id string) {
	trace, ok := tc.traces[id]
	if !ok {
		return
	}
	for _, span := range trace.Spans {
		delete(tc.spanIndex, span.Id)
	}
	delete(tc.traces, id)
}

func (tc *TraceCollectorImpl) findSpanLocked(spanId string) *traceModel.Span {
	traceId, ok := tc.spanIndex[spanId]
	if !ok {
		return nil
	}
	trace, ok := tc.traces[traceId]
	if !ok {
		return nil
	}
	for _, span := range trace.Spans {
		if span.Id == spanId {
			return span
		}
	}
	return nil
}

func spanExistsLocked(trace *traceModel.Trace, spanId string) bool {
	for _, span := range trace.Spans {
		if span.Id == spanId {
			return true
		}
	}
	return false
}

func copyTrace(trace *traceModel.Trace) *traceModel.Trace {
	clone := *trace
	clone.Metadata = copyMetadata(trace.Metadata)
	clone.Spans = make([]*traceModel.Span, len(trace.Spans))
	for i, span := range trace.Spans {
		spanClone := *span
		spanClone.Metadata = copyMetadata(span.Metadata)
		if len(span.Errors) > 0 {
			spanClone.Errors = append([]traceModel.ErrorRecord(nil), span.Errors...)
		}
		clone.Spans[i] = &spanClone
	}
	return &clone
}

func copyMetadata(metadata traceModel.Metadata) traceModel.Metadata {
	if metadata == nil {
		return nil
	}
	clone := make(traceModel.Metadata, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}
