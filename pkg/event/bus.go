package event

import (
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Lifecycle topics published by the trace collector. Handlers are invoked
// synchronously, after the corresponding state mutation has committed and the
// collector's lock has been released, so a handler observes committed state
// but must not assume it still holds.
const (
	TopicTraceStarted   = "trace:started"
	TopicTraceCompleted = "trace:completed"
	TopicSpanStarted    = "span:started"
	TopicSpanCompleted  = "span:completed"
)

// TraceEvent is the copy-on-notify snapshot published for trace topics.
type TraceEvent struct {
	TraceId        string
	Name           string
	Status         string
	DurationMillis float64
	Timestamp      time.Time
}

// SpanEvent is the copy-on-notify snapshot published for span topics.
type SpanEvent struct {
	SpanId         string
	TraceId        string
	ParentId       string
	Name           string
	Type           string
	Status         string
	DurationMillis float64
	Timestamp      time.Time
}

// LifecycleBus delivers collector lifecycle events to subscribed handlers.
type LifecycleBus[EventType any] interface {
	Subscribe(topic string, handler func(event EventType)) error
	Publish(topic string, event EventType)
}

type LifecycleBusImpl[EventType any] struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewLifecycleBus[EventType any](
	eventBus EventBus.Bus,
	logger *zap.Logger,
) LifecycleBus[EventType] {
	return &LifecycleBusImpl[EventType]{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (lb *LifecycleBusImpl[EventType]) Subscribe(
	topic string,
	handler func(event EventType),
) error {
	err := lb.eventBus.Subscribe(topic, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

func (lb *LifecycleBusImpl[EventType]) Publish(topic string, event EventType) {
	lb.eventBus.Publish(topic, event)
}
