package event

import (
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLifecycleBus(t *testing.T) {
	t.Run("Delivers published events to subscribed handlers synchronously", func(t *testing.T) {
		bus := NewLifecycleBus[TraceEvent](EventBus.New(), zap.NewNop())
		var received []TraceEvent
		err := bus.Subscribe(TopicTraceStarted, func(event TraceEvent) {
			received = append(received, event)
		})
		assert.Nil(t, err)

		bus.Publish(TopicTraceStarted, TraceEvent{TraceId: "t1", Name: "op"})
		assert.Len(t, received, 1)
		assert.Equal(t, "t1", received[0].TraceId)
	})

	t.Run("Does not deliver events published on other topics", func(t *testing.T) {
		bus := NewLifecycleBus[TraceEvent](EventBus.New(), zap.NewNop())
		var received []TraceEvent
		err := bus.Subscribe(TopicTraceCompleted, func(event TraceEvent) {
			received = append(received, event)
		})
		assert.Nil(t, err)

		bus.Publish(TopicTraceStarted, TraceEvent{TraceId: "t1"})
		assert.Empty(t, received)
	})

	t.Run("Supports multiple handlers on one topic", func(t *testing.T) {
		bus := NewLifecycleBus[SpanEvent](EventBus.New(), zap.NewNop())
		count := 0
		assert.Nil(t, bus.Subscribe(TopicSpanCompleted, func(event SpanEvent) { count++ }))
		assert.Nil(t, bus.Subscribe(TopicSpanCompleted, func(event SpanEvent) { count++ }))

		bus.Publish(TopicSpanCompleted, SpanEvent{SpanId: "s1"})
		assert.Equal(t, 2, count)
	})
}
