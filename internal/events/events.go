// Package events provides event publishing for refresh lifecycle events.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of refresh event.
type EventType string

const (
	// SourceRefreshed fires after a successful commit for a source.
	SourceRefreshed EventType = "source.refreshed"
	// SourceFailed fires when a refresh exhausts its retries.
	SourceFailed EventType = "source.failed"
	// SourceDefunct fires when a source is confirmed permanently gone.
	SourceDefunct EventType = "source.defunct"
)

// Event is the payload published to the stream.
type Event struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
	// TopicCount is set for SourceRefreshed.
	TopicCount int `json:"topic_count,omitempty"`
	// Error is set for SourceFailed and SourceDefunct.
	Error string `json:"error,omitempty"`
}
