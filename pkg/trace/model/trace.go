package model

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type SpanType string

const (
	SpanTypeHttpRequest    SpanType = "http_request"
	SpanTypeDbQuery        SpanType = "db_query"
	SpanTypeCacheOperation SpanType = "cache_operation"
	SpanTypeFunctionCall   SpanType = "function_call"
	SpanTypeRender         SpanType = "render"
	SpanTypeCustom         SpanType = "custom"
)

type Metadata map[string]interface{}

// Trace is one end-to-end observed operation. The trace is the sole owner of
// its spans; span back-references carry the trace id only. Spans are kept in
// causal start order.
type Trace struct {
	Id             string     `json:"id"`
	Name           string     `json:"name"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMillis float64    `json:"duration_millis"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	Spans          []*Span    `json:"spans"`
}

func (t *Trace) IsCompleted() bool {
	return t.Status != StatusPending
}

// Span is one timed sub-operation within a trace. ParentId, when set, names
// another span of the same trace; a span without a parent is a root span.
type Span struct {
	Id             string        `json:"id"`
	TraceId        string        `json:"trace_id"`
	ParentId       string        `json:"parent_id,omitempty"`
	Name           string        `json:"name"`
	Type           SpanType      `json:"type"`
	Status         Status        `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	DurationMillis float64       `json:"duration_millis"`
	Metadata       Metadata      `json:"metadata,omitempty"`
	Errors         []ErrorRecord `json:"errors,omitempty"`
}

func (s *Span) IsCompleted() bool {
	return s.Status != StatusPending
}

// TraceHandle is the by-value handle returned to producers on acceptance.
// Metadata is the producer's own copy; producers cannot reach the stored
// record through the handle.
type TraceHandle struct {
	TraceId  string
	Name     string
	Metadata Metadata
}

type SpanHandle struct {
	SpanId  string
	TraceId string
	Name    string
}
