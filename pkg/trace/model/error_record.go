package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnserializableValue replaces any metadata or error value that cannot be
// serialized. The write path must never fail on producer-supplied data.
const UnserializableValue = "<unserializable>"

type ErrorRecord struct {
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StackProvider is implemented by errors that carry a captured stack trace.
type StackProvider interface {
	Stack() string
}

// NewErrorRecord serializes err into an ErrorRecord at the given timestamp.
// A nil error produces a record with the sentinel message.
func NewErrorRecord(err error, timestamp time.Time) ErrorRecord {
	record := ErrorRecord{
		Name:      "error",
		Message:   UnserializableValue,
		Timestamp: timestamp,
	}
	if err == nil {
		return record
	}
	record.Name = fmt.Sprintf("%T", err)
	record.Message = safeString(func() string { return err.Error() })
	if sp, ok := err.(StackProvider); ok {
		record.Stack = safeString(sp.Stack)
	}
	return record
}

// SanitizeMetadata returns a copy of metadata with every value that cannot be
// JSON-serialized replaced by the sentinel string. A nil map yields nil.
func SanitizeMetadata(metadata Metadata) Metadata {
	if metadata == nil {
		return nil
	}
	sanitized := make(Metadata, len(metadata))
	for key, value := range metadata {
		if _, err := json.Marshal(value); err != nil {
			sanitized[key] = UnserializableValue
		} else {
			sanitized[key] = value
		}
	}
	return sanitized
}

// MergeMetadata merges src into dst, allocating dst when needed. Values from
// src win on key collision.
func MergeMetadata(dst Metadata, src Metadata) Metadata {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(Metadata, len(src))
	}
	for key, value := range SanitizeMetadata(src) {
		dst[key] = value
	}
	return dst
}

func safeString(fn func() string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = UnserializableValue
		}
	}()
	return fn()
}
