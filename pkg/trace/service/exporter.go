package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	traceModel "github.com/argus-apm/argus/pkg/trace/model"
)

type ExportFormat string

const (
	ExportFormatJson ExportFormat = "json"
	ExportFormatCsv  ExportFormat = "csv"
)

// csvHeader is parsed by downstream tooling; column order is part of the
// contract and must not change.
var csvHeader = []string{
	"traceId", "spanId", "name", "type", "status", "duration", "startedAt", "completedAt",
}

// Export renders a snapshot of the store in the requested format. The read
// path is operator-driven, so an unsupported format is a loud error rather
// than a silent no-op.
func (tc *TraceCollectorImpl) Export(format ExportFormat) (string, error) {
	traces := tc.GetAllTraces()
	switch format {
	case ExportFormatJson:
		return exportJson(traces)
	case ExportFormatCsv:
		return exportCsv(traces)
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

func exportJson(traces []*traceModel.Trace) (string, error) {
	encoded, err := json.Marshal(traces)
	if err != nil {
		return "", fmt.Errorf("failed to marshal traces: %w", err)
	}
	return string(encoded), nil
}

// exportCsv emits one row per span. A trace with no spans still contributes
// a single summary row keyed by its trace id.
func exportCsv(traces []*traceModel.Trace) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)
	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, trace := range traces {
		if len(trace.Spans) == 0 {
			row := []string{
				trace.Id,
				"",
				trace.Name,
				"trace",
				string(trace.Status),
				formatDurationField(trace.DurationMillis, trace.CompletedAt),
				trace.StartedAt.UTC().Format(time.RFC3339Nano),
				formatTimeField(trace.CompletedAt),
			}
			if err := writer.Write(row); err != nil {
				return "", fmt.Errorf("failed to write csv row: %w", err)
			}
			continue
		}
		for _, span := range trace.Spans {
			row := []string{
				trace.Id,
				span.Id,
				span.Name,
				string(span.Type),
				string(span.Status),
				formatDurationField(span.DurationMillis, span.CompletedAt),
				span.StartedAt.UTC().Format(time.RFC3339Nano),
				formatTimeField(span.CompletedAt),
			}
			if err := writer.Write(row); err != nil {
				return "", fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return sb.String(), nil
}

func formatDurationField(durationMillis float64, completedAt *time.Time) string {
	if completedAt == nil {
		return ""
	}
	return strconv.FormatFloat(durationMillis, 'f', -1, 64)
}

func formatTimeField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
