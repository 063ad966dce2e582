package identifier

import (
	"fmt"
	"sync/atomic"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/google/uuid"
)

const shortLength = 8

// Generator issues unique, lexically sortable trace and span ids. Ids are a
// zero-padded nanosecond timestamp followed by a slice of a random UUID, so
// sorting ids sorts by creation time.
type Generator interface {
	TraceId() string
	SpanId() string
}

type GeneratorImpl struct {
	clock clock.Clock
}

func NewGeneratorImpl(clk clock.Clock) *GeneratorImpl {
	return &GeneratorImpl{clock: clk}
}

func (g *GeneratorImpl) TraceId() string {
	return g.newId()
}

func (g *GeneratorImpl) SpanId() string {
	return g.newId()
}

func (g *GeneratorImpl) newId() string {
	return fmt.Sprintf("%016x-%s", g.clock.Now().UnixNano(), uuid.NewString()[:shortLength])
}

// Short returns a fixed-width display form of an id.
func Short(id string) string {
	if len(id) <= shortLength {
		return id
	}
	return id[len(id)-shortLength:]
}

// SequenceGenerator issues predictable ids for tests.
type SequenceGenerator struct {
	prefix  string
	counter atomic.Int64
}

func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

func (g *SequenceGenerator) TraceId() string {
	return fmt.Sprintf("%s-trace-%d", g.prefix, g.counter.Add(1))
}

func (g *SequenceGenerator) SpanId() string {
	return fmt.Sprintf("%s-span-%d", g.prefix, g.counter.Add(1))
}
