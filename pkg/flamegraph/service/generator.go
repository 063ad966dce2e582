package service

import (
	"errors"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/flamegraph/model"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
)

var ErrNilTrace = errors.New("trace must not be nil")

// GenerateFromTrace derives the frame tree of a trace. Spans nest under
// their parents; a span whose parent cannot be resolved becomes a root
// child of the trace frame. The transform is pure and keeps the span
// insertion order within each parent.
func GenerateFromTrace(trace *traceModel.Trace) (*model.Frame, error) {
	if trace == nil {
		return nil, ErrNilTrace
	}

	root := &model.Frame{
		Name:           trace.Name,
		DurationMillis: traceDuration(trace),
		Depth:          0,
	}

	frames := make(map[string]*model.Frame, len(trace.Spans))
	for _, span := range trace.Spans {
		frames[span.Id] = &model.Frame{
			Name:              span.Name,
			StartOffsetMillis: clock.MillisBetween(trace.StartedAt, span.StartedAt),
			DurationMillis:    spanDuration(span),
		}
	}

	// Spans are stored in causal start order, so a parent's frame always
	// precedes its children here.
	for _, span := range trace.Spans {
		frame := frames[span.Id]
		parent := root
		if span.ParentId != "" {
			if p, ok := frames[span.ParentId]; ok {
				parent = p
			}
		}
		frame.Depth = parent.Depth + 1
		parent.Children = append(parent.Children, frame)
	}

	return root, nil
}

func traceDuration(trace *traceModel.Trace) float64 {
	if trace.CompletedAt != nil {
		return trace.DurationMillis
	}
	var latest float64
	for _, span := range trace.Spans {
		end := clock.MillisBetween(trace.StartedAt, span.StartedAt) + spanDuration(span)
		if end > latest {
			latest = end
		}
	}
	return latest
}

func spanDuration(span *traceModel.Span) float64 {
	if span.CompletedAt != nil {
		return span.DurationMillis
	}
	return 0
}
