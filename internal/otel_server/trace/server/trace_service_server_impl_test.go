package server

import (
	"context"
	"testing"
	"time"

	collectorTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonV1 "go.opentelemetry.io/proto/otlp/common/v1"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	traceV1 "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/profiler"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
)

func TestTraceServiceServerImpl_Export(t *testing.T) {
	t.Run("Maps an OTLP batch onto one stored trace with nested spans", func(t *testing.T) {
		core := getTestCore()
		core.Init()
		defer core.Stop()
		tss := NewTraceServiceServerImpl(zap.NewNop(), core)

		_, err := tss.Export(context.Background(), getTestRequest())
		require.Nil(t, err)

		traces := core.GetAllTraces()
		require.Len(t, traces, 1)
		trace := traces[0]
		assert.Equal(t, "checkout", trace.Name)
		assert.True(t, trace.IsCompleted())
		require.Len(t, trace.Spans, 2)
		assert.Equal(t, "GET /cart", trace.Spans[0].Name)
		assert.Equal(t, traceModel.SpanTypeHttpRequest, trace.Spans[0].Type)
		assert.Equal(t, "SELECT items", trace.Spans[1].Name)
		assert.Equal(t, traceModel.SpanTypeDbQuery, trace.Spans[1].Type)
		assert.Equal(t, trace.Spans[0].Id, trace.Spans[1].ParentId)
	})

	t.Run("Marks the trace as errored when the root span failed", func(t *testing.T) {
		core := getTestCore()
		core.Init()
		defer core.Stop()
		tss := NewTraceServiceServerImpl(zap.NewNop(), core)

		req := getTestRequest()
		spans := req.ResourceSpans[0].ScopeSpans[0].Spans
		spans[1].Status = &traceV1.Status{Code: traceV1.Status_STATUS_CODE_ERROR}

		_, err := tss.Export(context.Background(), req)
		require.Nil(t, err)
		traces := core.GetAllTraces()
		require.Len(t, traces, 1)
		assert.Equal(t, traceModel.StatusError, traces[0].Status)
	})

	t.Run("Records nothing while the core is inactive", func(t *testing.T) {
		core := getTestCore()
		tss := NewTraceServiceServerImpl(zap.NewNop(), core)
		_, err := tss.Export(context.Background(), getTestRequest())
		require.Nil(t, err)
		assert.Empty(t, core.GetAllTraces())
	})
}

func TestTraceServiceServerImpl_IdMappings(t *testing.T) {
	t.Run("Retains no id mappings once a trace completes", func(t *testing.T) {
		core := profiler.New(profiler.Config{
			Enabled:       true,
			SamplingRate:  1,
			BufferMaxSize: 10,
			FlushInterval: time.Hour,
			MaxTraceAge:   time.Hour,
		}, zap.NewNop())
		core.Init()
		defer core.Stop()
		tss := NewTraceServiceServerImpl(zap.NewNop(), core)

		for i := 0; i < 500; i++ {
			_, err := tss.Export(context.Background(), getSingleSpanRequest(i, true))
			require.Nil(t, err)
		}

		assert.Len(t, core.GetAllTraces(), 10)
		tss.mu.Lock()
		assert.Empty(t, tss.pending)
		tss.mu.Unlock()
	})

	t.Run("Sweeps mappings for traces whose root span never arrives", func(t *testing.T) {
		core := getTestCore()
		core.Init()
		defer core.Stop()
		tss := NewTraceServiceServerImpl(zap.NewNop(), core)
		mc := clock.NewManualClock(time.Unix(1700000000, 0))
		tss.clock = mc

		_, err := tss.Export(context.Background(), getSingleSpanRequest(1, false))
		require.Nil(t, err)
		tss.mu.Lock()
		assert.Len(t, tss.pending, 1)
		tss.mu.Unlock()

		mc.Advance(pendingTraceTTL + time.Second)
		_, err = tss.Export(context.Background(), getSingleSpanRequest(2, true))
		require.Nil(t, err)

		tss.mu.Lock()
		assert.Empty(t, tss.pending)
		tss.mu.Unlock()
	})
}

func getTestCore() *profiler.ProfilerCore {
	return profiler.New(profiler.Config{
		Enabled:       true,
		SamplingRate:  1,
		BufferMaxSize: 100,
		FlushInterval: time.Hour,
		MaxTraceAge:   time.Hour,
	}, zap.NewNop())
}

// getSingleSpanRequest builds a one-span OTLP batch with a trace id derived
// from seq. When root is false the span names a parent that never arrives, so
// the trace can never be completed through ingestion.
func getSingleSpanRequest(seq int, root bool) *collectorTrace.ExportTraceServiceRequest {
	traceId := make([]byte, 16)
	traceId[14] = byte(seq >> 8)
	traceId[15] = byte(seq)
	span := &traceV1.Span{
		TraceId:           traceId,
		SpanId:            []byte{9, 9, 9, 9, 9, 9, 9, 9},
		Name:              "handle request",
		Kind:              traceV1.Span_SPAN_KIND_SERVER,
		StartTimeUnixNano: uint64(time.Now().UnixNano()),
		EndTimeUnixNano:   uint64(time.Now().Add(time.Millisecond).UnixNano()),
	}
	if !root {
		span.ParentSpanId = []byte{8, 8, 8, 8, 8, 8, 8, 8}
	}

	return &collectorTrace.ExportTraceServiceRequest{
		ResourceSpans: []*traceV1.ResourceSpans{
			{
				Resource: &resourceV1.Resource{
					Attributes: []*commonV1.KeyValue{
						{
							Key: "service.name",
							Value: &commonV1.AnyValue{
								Value: &commonV1.AnyValue_StringValue{StringValue: "checkout"},
							},
						},
					},
				},
				ScopeSpans: []*traceV1.ScopeSpans{{Spans: []*traceV1.Span{span}}},
			},
		},
	}
}

// getTestRequest builds a two-span OTLP batch: a DB query nested under an
// HTTP root span. The child precedes the root in the payload so ingestion
// must not depend on arrival order of non-root spans relative to roots.
func getTestRequest() *collectorTrace.ExportTraceServiceRequest {
	traceId := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	rootSpanId := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	childSpanId := []byte{2, 2, 2, 2, 2, 2, 2, 2}
	base := uint64(time.Now().Add(-time.Second).UnixNano())

	return &collectorTrace.ExportTraceServiceRequest{
		ResourceSpans: []*traceV1.ResourceSpans{
			{
				Resource: &resourceV1.Resource{
					Attributes: []*commonV1.KeyValue{
						{
							Key: "service.name",
							Value: &commonV1.AnyValue{
								Value: &commonV1.AnyValue_StringValue{StringValue: "checkout"},
							},
						},
					},
				},
				ScopeSpans: []*traceV1.ScopeSpans{
					{
						Spans: []*traceV1.Span{
							{
								TraceId:           traceId,
								SpanId:            childSpanId,
								ParentSpanId:      rootSpanId,
								Name:              "SELECT items",
								Kind:              traceV1.Span_SPAN_KIND_CLIENT,
								StartTimeUnixNano: base + 10_000_000,
								EndTimeUnixNano:   base + 40_000_000,
								Attributes: []*commonV1.KeyValue{
									{
										Key: "db.system",
										Value: &commonV1.AnyValue{
											Value: &commonV1.AnyValue_StringValue{StringValue: "postgres"},
										},
									},
								},
							},
							{
								TraceId:           traceId,
								SpanId:            rootSpanId,
								Name:              "GET /cart",
								Kind:              traceV1.Span_SPAN_KIND_SERVER,
								StartTimeUnixNano: base,
								EndTimeUnixNano:   base + 80_000_000,
								Attributes: []*commonV1.KeyValue{
									{
										Key: "http.method",
										Value: &commonV1.AnyValue{
											Value: &commonV1.AnyValue_StringValue{StringValue: "GET"},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}
