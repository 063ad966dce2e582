package identifier

import (
	"sort"
	"testing"
	"time"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestGeneratorImpl(t *testing.T) {
	t.Run("Issues unique ids", func(t *testing.T) {
		gen := NewGeneratorImpl(clock.NewSystemClock())
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := gen.TraceId()
			assert.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("Ids sort by creation time", func(t *testing.T) {
		mc := clock.NewManualClock(time.Unix(0, 1000))
		gen := NewGeneratorImpl(mc)
		first := gen.TraceId()
		mc.Advance(time.Millisecond)
		second := gen.SpanId()
		mc.Advance(time.Millisecond)
		third := gen.TraceId()
		ids := []string{third, first, second}
		sort.Strings(ids)
		assert.Equal(t, []string{first, second, third}, ids)
	})
}

func TestShort(t *testing.T) {
	t.Run("Returns the id tail for display", func(t *testing.T) {
		assert.Equal(t, "abcd1234", Short("0000018f1c2d3e4f-abcd1234"))
	})

	t.Run("Leaves short ids untouched", func(t *testing.T) {
		assert.Equal(t, "tiny", Short("tiny"))
	})
}
