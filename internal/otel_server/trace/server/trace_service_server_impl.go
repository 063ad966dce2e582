package server

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/profiler"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
)

const unknownServiceName = "unknown_service"

// pendingTraceTTL bounds how long id mappings for a trace whose root span
// never arrives are retained before being swept.
const pendingTraceTTL = 5 * time.Minute

// pendingTrace carries the id mappings for one OTLP trace that has not been
// completed yet. The whole entry is dropped when the trace completes or when
// it outlives pendingTraceTTL, so the bridge holds no per-span state for
// traces it is done with.
type pendingTrace struct {
	traceId  string
	spanIds  map[string]string
	lastSeen time.Time
}

// TraceServiceServerImpl bridges OTLP trace exports onto the profiler core's
// public API. Spans arrive already completed, so each one is recorded as an
// immediate start/complete pair with the original wire timing attached as
// metadata. Spans are ingested per trace in start-time order so parents are
// registered before their children, and a trace is closed out only after the
// whole batch has been ingested, once a root span for it has been seen.
type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	core   *profiler.ProfilerCore
	logger *zap.Logger
	clock  clock.Clock

	mu      sync.Mutex
	pending map[string]*pendingTrace
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	core *profiler.ProfilerCore,
) *TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return &TraceServiceServerImpl{
		core:    core,
		logger:  logger,
		clock:   clock.NewSystemClock(),
		pending: make(map[string]*pendingTrace),
	}
}

func (tss *TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	groups := make(map[string][]spanWithService)
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == unknownServiceName {
			tss.logger.Warn("Service name not found in resource span")
		}
		for _, scopeSpan := range resourceSpan.ScopeSpans {
			for _, span := range scopeSpan.Spans {
				otlpTraceId := hex.EncodeToString(span.TraceId)
				groups[otlpTraceId] = append(groups[otlpTraceId], spanWithService{span, serviceName})
			}
		}
	}

	for otlpTraceId, group := range groups {
		tss.ingestTraceGroup(otlpTraceId, group)
	}
	tss.sweepStale()
	return &protoTrace.ExportTraceServiceResponse{}, nil
}

type spanWithService struct {
	span        *v1.Span
	serviceName string
}

func (tss *TraceServiceServerImpl) ingestTraceGroup(otlpTraceId string, group []spanWithService) {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].span.StartTimeUnixNano < group[j].span.StartTimeUnixNano
	})

	entry := tss.resolveTrace(otlpTraceId, group[0].serviceName)
	if entry == nil {
		return
	}

	var rootStatus *traceModel.Status
	for _, e := range group {
		tss.ingestSpan(entry, e.span)
		if len(e.span.ParentSpanId) == 0 {
			status := getStatus(e.span)
			rootStatus = &status
		}
	}

	if rootStatus != nil {
		tss.core.CompleteTrace(entry.traceId, *rootStatus)
		tss.mu.Lock()
		delete(tss.pending, otlpTraceId)
		tss.mu.Unlock()
	}
}

func (tss *TraceServiceServerImpl) ingestSpan(entry *pendingTrace, span *v1.Span) {
	otlpSpanId := hex.EncodeToString(span.SpanId)

	parentId := ""
	if len(span.ParentSpanId) > 0 {
		tss.mu.Lock()
		parentId = entry.spanIds[hex.EncodeToString(span.ParentSpanId)]
		tss.mu.Unlock()
	}

	handle, err := tss.core.StartSpan(entry.traceId, span.Name, inferSpanType(span), parentId)
	if err != nil || handle == nil {
		return
	}
	tss.mu.Lock()
	entry.spanIds[otlpSpanId] = handle.SpanId
	tss.mu.Unlock()

	tss.core.CompleteSpan(handle.SpanId, getStatus(span), traceModel.Metadata{
		"otlp_span_id":     otlpSpanId,
		"otlp_start_ns":    span.StartTimeUnixNano,
		"otlp_end_ns":      span.EndTimeUnixNano,
		"otlp_duration_ms": wireDurationMillis(span),
		"span_kind":        span.Kind.String(),
	})
}

func (tss *TraceServiceServerImpl) resolveTrace(otlpTraceId string, serviceName string) *pendingTrace {
	now := tss.clock.Now()
	tss.mu.Lock()
	if entry, ok := tss.pending[otlpTraceId]; ok {
		entry.lastSeen = now
		tss.mu.Unlock()
		return entry
	}
	tss.mu.Unlock()

	handle, err := tss.core.StartTrace(serviceName, traceModel.Metadata{
		"otlp_trace_id": otlpTraceId,
	})
	if err != nil {
		tss.logger.Error("Failed to start trace for OTLP export", zap.Error(err))
		return nil
	}
	if handle == nil {
		// Not sampled, or the core is inactive.
		return nil
	}
	entry := &pendingTrace{
		traceId:  handle.TraceId,
		spanIds:  make(map[string]string),
		lastSeen: now,
	}
	tss.mu.Lock()
	tss.pending[otlpTraceId] = entry
	tss.mu.Unlock()
	return entry
}

// sweepStale drops mappings for traces whose root span never arrived. The
// stored trace itself is left to the collector's own age-based cleanup.
func (tss *TraceServiceServerImpl) sweepStale() {
	cutoff := tss.clock.Now().Add(-pendingTraceTTL)
	tss.mu.Lock()
	defer tss.mu.Unlock()
	for otlpTraceId, entry := range tss.pending {
		if entry.lastSeen.Before(cutoff) {
			delete(tss.pending, otlpTraceId)
			tss.logger.Debug("Swept id mappings for a trace with no root span",
				zap.String("otlp_trace_id", otlpTraceId),
			)
		}
	}
}

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	if resourceSpan.Resource == nil {
		return unknownServiceName
	}
	for _, attr := range resourceSpan.Resource.Attributes {
		if attr.Key == "service.name" {
			return attr.Value.GetStringValue()
		}
	}
	return unknownServiceName
}

func inferSpanType(span *v1.Span) traceModel.SpanType {
	for _, attr := range span.Attributes {
		switch {
		case strings.HasPrefix(attr.Key, "http."):
			return traceModel.SpanTypeHttpRequest
		case strings.HasPrefix(attr.Key, "db."):
			return traceModel.SpanTypeDbQuery
		case strings.HasPrefix(attr.Key, "cache."):
			return traceModel.SpanTypeCacheOperation
		}
	}
	switch span.Kind {
	case v1.Span_SPAN_KIND_SERVER, v1.Span_SPAN_KIND_CLIENT:
		return traceModel.SpanTypeHttpRequest
	case v1.Span_SPAN_KIND_INTERNAL:
		return traceModel.SpanTypeFunctionCall
	default:
		return traceModel.SpanTypeCustom
	}
}

func getStatus(span *v1.Span) traceModel.Status {
	if span.Status != nil && span.Status.Code == v1.Status_STATUS_CODE_ERROR {
		return traceModel.StatusError
	}
	return traceModel.StatusSuccess
}

func wireDurationMillis(span *v1.Span) float64 {
	if span.EndTimeUnixNano <= span.StartTimeUnixNano {
		return 0
	}
	return float64(span.EndTimeUnixNano-span.StartTimeUnixNano) / float64(time.Millisecond)
}
