// Package domain provides the data model shared across the aggregation
// pipeline: source descriptors, normalized topics, and cache entries.
package domain

// SourceKind identifies the upstream API family a source speaks.
type SourceKind string

const (
	// KindDiscourse is a Discourse forum exposing the JSON API.
	KindDiscourse SourceKind = "discourse-forum"
	// KindGitHubDiscussions is a GitHub Discussions GraphQL source.
	KindGitHubDiscussions SourceKind = "github-discussions"
	// KindSnapshot is a Snapshot governance space GraphQL source.
	KindSnapshot SourceKind = "snapshot-space"
	// KindResearchForum is a research-forum style JSON API.
	KindResearchForum SourceKind = "research-forum"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case KindDiscourse, KindGitHubDiscussions, KindSnapshot, KindResearchForum:
		return true
	default:
		return false
	}
}

// Source tiers. Tier 1 sources are refreshed most often.
const (
	TierMajor    = 1
	TierStandard = 2
	TierEmerging = 3
)

// SourceDescriptor is the immutable configuration for one upstream source.
// Descriptors are created at process start and never mutated.
type SourceDescriptor struct {
	ID          string     `json:"id" yaml:"id"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	BaseURL     string     `json:"base_url" yaml:"base_url"`
	Kind        SourceKind `json:"kind" yaml:"kind"`
	CategoryTag string     `json:"category_tag" yaml:"category_tag"`
	// Tier is the priority class, 1 (major) through 3 (emerging).
	Tier    int  `json:"tier" yaml:"tier"`
	Enabled bool `json:"enabled" yaml:"enabled"`
}
