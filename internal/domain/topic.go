package domain

import "time"

// Topic is a normalized discussion unit from any upstream source.
type Topic struct {
	// ExternalID is the upstream's identifier for the topic.
	ExternalID string `json:"external_id"`
	// RefID is the stable composite key "sourceID:externalID". It is unique
	// across all sources and stable across refreshes, so downstream
	// bookmark and read-state tracking can correlate on it.
	RefID     string   `json:"ref_id"`
	Title     string   `json:"title"`
	Permalink string   `json:"permalink"`
	Tags      []string `json:"tags,omitempty"`

	ReplyCount int `json:"reply_count"`
	ViewCount  int `json:"view_count"`
	LikeCount  int `json:"like_count"`
	// EngagementScore carries vote-style scores for sources that have no
	// reply counts (e.g. Snapshot proposals). Zero when not applicable.
	EngagementScore float64 `json:"engagement_score,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	Pinned   bool `json:"pinned"`
	Closed   bool `json:"closed"`
	Archived bool `json:"archived"`

	Excerpt    string `json:"excerpt,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
}

// MakeRefID builds the composite ref ID for a topic.
func MakeRefID(sourceID, externalID string) string {
	return sourceID + ":" + externalID
}
