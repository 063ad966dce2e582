package service

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	traceModel "github.com/argus-apm/argus/pkg/trace/model"
)

func TestTraceCollectorImpl_ExportJson(t *testing.T) {
	t.Run("Round-trips a trace with nested spans", func(t *testing.T) {
		tc, mc := getTestCollector(Config{Enabled: true, SamplingRate: 1})
		trace, _ := tc.StartTrace("request", nil)
		rootSpan, _ := tc.StartSpan(trace.TraceId, "A", traceModel.SpanTypeFunctionCall, "")
		childSpan, _ := tc.StartSpan(trace.TraceId, "B", traceModel.SpanTypeDbQuery, rootSpan.SpanId)
		mc.Advance(5 * time.Millisecond)
		tc.CompleteSpan(childSpan.SpanId, traceModel.StatusSuccess, nil)
		tc.CompleteSpan(rootSpan.SpanId, traceModel.StatusSuccess, nil)
		tc.CompleteTrace(trace.TraceId, traceModel.StatusSuccess)

		out, err := tc.Export(ExportFormatJson)
		require.Nil(t, err)

		var decoded []traceModel.Trace
		require.Nil(t, json.Unmarshal([]byte(out), &decoded))
		require.Len(t, decoded, 1)
		require.Len(t, decoded[0].Spans, 2)
		assert.Equal(t, "A", decoded[0].Spans[0].Name)
		assert.Equal(t, rootSpan.SpanId, decoded[0].Spans[1].ParentId)
	})

	t.Run("Exports an empty store as an empty array", func(t *testing.T) {
		tc, _ := getTestCollector(Config{Enabled: true, SamplingRate: 1})
		out, err := tc.Export(ExportFormatJson)
		assert.Nil(t, err)
		assert.Equal(t, "[]", out)
	})
}

func TestTraceCollectorImpl_ExportCsv(t *testing.T) {
	t.Run("Emits the exact stable header", func(t *testing.T) {
		tc, _ := getTestCollector(Config{Enabled: true, SamplingRate: 1})
		out, err := tc.Export(ExportFormatCsv)
		require.Nil(t, err)
		assert.Equal(t,
			"traceId,spanId,name,type,status,duration,startedAt,completedAt",
			strings.Split(out, "\n")[0],
		)
	})

	t.Run("Emits one row per span", func(t *testing.T) {
		tc, mc := getTestCollector(Config{Enabled: true, SamplingRate: 1})
		trace, _ := tc.StartTrace("request", nil)
		span, _ := tc.StartSpan(trace.TraceId, "work", traceModel.SpanTypeHttpRequest, "")
		mc.Advance(15 * time.Millisecond)
		tc.CompleteSpan(span.SpanId, traceModel.StatusSuccess, nil)
		tc.CompleteTrace(trace.TraceId, traceModel.StatusSuccess)

		out, err := tc.Export(ExportFormatCsv)
		require.Nil(t, err)

		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.Nil(t, err)
		require.Len(t, records, 2)
		row := records[1]
		assert.Equal(t, trace.TraceId, row[0])
		assert.Equal(t, span.SpanId, row[1])
		assert.Equal(t, "work", row[2])
		assert.Equal(t, "http_request", row[3])
		assert.Equal(t, "success", row[4])
		assert.Equal(t, "15", row[5])
	})

	t.Run("Emits a summary row for a span-less trace", func(t *testing.T) {
		tc, _ := getTestCollector(Config{Enabled: true, SamplingRate: 1})
		trace, _ := tc.StartTrace("metric", nil)
		tc.CompleteTrace(trace.TraceId, traceModel.StatusSuccess)

		out, err := tc.Export(ExportFormatCsv)
		require.Nil(t, err)
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.Nil(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, trace.TraceId, records[1][0])
		assert.Equal(t, "", records[1][1])
		assert.Equal(t, "trace", records[1][3])
	})
}

func TestTraceCollectorImpl_ExportUnknownFormat(t *testing.T) {
	t.Run("Fails loudly on an unsupported format", func(t *testing.T) {
		tc, _ := getTestCollector(Config{Enabled: true, SamplingRate: 1})
		_, err := tc.Export("xml")
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "unsupported export format")
	})
}
