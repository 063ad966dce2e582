package model

import "time"

// Metric is one recorded scalar measurement. Data carries the numeric value
// and any tags the producer attached.
type Metric struct {
	Name       string                 `json:"name"`
	Data       map[string]interface{} `json:"data,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}
