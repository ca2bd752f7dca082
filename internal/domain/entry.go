package domain

import "time"

// ErrorInfo records the most recent fetch failure for a source.
type ErrorInfo struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CacheEntry holds the last known state for one source. Entries are replaced
// atomically as a whole: topics, fetch timestamp, and error always come from
// the same commit.
type CacheEntry struct {
	SourceID string `json:"source_id"`
	// Topics preserves the upstream's returned order.
	Topics []Topic `json:"topics"`
	// FetchedAt is the time of the last successful fetch; zero if the
	// source has never been fetched.
	FetchedAt time.Time  `json:"fetched_at,omitempty"`
	LastError *ErrorInfo `json:"last_error,omitempty"`
	// Defunct is sticky: once a source is confirmed permanently gone it
	// stays flagged until an explicit admin reset.
	Defunct bool `json:"defunct"`
}

// Populated reports whether the entry has ever been successfully fetched.
func (e CacheEntry) Populated() bool {
	return !e.FetchedAt.IsZero()
}

// Stats summarizes cache health for operational visibility.
type Stats struct {
	SourceCount     int       `json:"source_count"`
	FreshCount      int       `json:"fresh_count"`
	ErrorCount      int       `json:"error_count"`
	DefunctCount    int       `json:"defunct_count"`
	OldestFetchedAt time.Time `json:"oldest_fetched_at,omitempty"`
}
