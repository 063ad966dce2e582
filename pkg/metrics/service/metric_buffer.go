package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/argus-apm/argus/pkg/clock"
	"github.com/argus-apm/argus/pkg/metrics/model"
	traceModel "github.com/argus-apm/argus/pkg/trace/model"
	"go.uber.org/zap"
)

const DefaultCapacity = 10000

// MetricBuffer is an append-only ring of recent metric events, kept apart
// from the trace store so metric volume never inflates trace statistics.
// When full, the oldest entry is overwritten.
type MetricBuffer interface {
	Record(name string, data map[string]interface{})
	GetAll() []model.Metric
	ByName(name string) []model.Metric
	Export() (string, error)
	Len() int
}

type MetricBufferImpl struct {
	capacity int
	clock    clock.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	entries []model.Metric
	next    int
	filled  bool
}

func NewMetricBufferImpl(capacity int, clk clock.Clock, logger *zap.Logger) *MetricBufferImpl {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MetricBufferImpl{
		capacity: capacity,
		clock:    clk,
		logger:   logger,
		entries:  make([]model.Metric, capacity),
	}
}

func (mb *MetricBufferImpl) Record(name string, data map[string]interface{}) {
	metric := model.Metric{
		Name:       name,
		Data:       traceModel.SanitizeMetadata(data),
		RecordedAt: mb.clock.Now(),
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.entries[mb.next] = metric
	mb.next++
	if mb.next == mb.capacity {
		mb.next = 0
		mb.filled = true
	}
}

// GetAll returns the buffered metrics oldest first.
func (mb *MetricBufferImpl) GetAll() []model.Metric {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if !mb.filled {
		return append([]model.Metric(nil), mb.entries[:mb.next]...)
	}
	ordered := make([]model.Metric, 0, mb.capacity)
	ordered = append(ordered, mb.entries[mb.next:]...)
	ordered = append(ordered, mb.entries[:mb.next]...)
	return ordered
}

func (mb *MetricBufferImpl) ByName(name string) []model.Metric {
	var matched []model.Metric
	for _, metric := range mb.GetAll() {
		if metric.Name == name {
			matched = append(matched, metric)
		}
	}
	return matched
}

func (mb *MetricBufferImpl) Export() (string, error) {
	encoded, err := json.Marshal(mb.GetAll())
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return string(encoded), nil
}

func (mb *MetricBufferImpl) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.filled {
		return mb.capacity
	}
	return mb.next
}
