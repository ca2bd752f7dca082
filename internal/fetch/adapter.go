package fetch

import (
	"fmt"
	"net/http"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// SourceAdapter maps one upstream API family onto the common Topic shape.
// Adapters share the output contract but are fully isolated in their parsing
// logic: one source's schema change cannot break another kind's adapter.
type SourceAdapter interface {
	// BuildRequest constructs the upstream HTTP request for a source.
	BuildRequest(src domain.SourceDescriptor) (*http.Request, error)
	// Parse converts the raw response body into normalized topics.
	// A body that parses but lacks the expected schema marker must return
	// a defunct-classified error.
	Parse(src domain.SourceDescriptor, body []byte) ([]domain.Topic, error)
}

// AdapterSet resolves the adapter for a source kind.
type AdapterSet struct {
	adapters map[domain.SourceKind]SourceAdapter
}

// NewAdapterSet builds the full adapter set. GitHub and Snapshot credentials
// may be empty; Snapshot works unauthenticated and GitHub sources will fail
// with an auth error at fetch time rather than at startup.
func NewAdapterSet(userAgent, githubToken, snapshotKey string) *AdapterSet {
	return &AdapterSet{
		adapters: map[domain.SourceKind]SourceAdapter{
			domain.KindDiscourse:         &DiscourseAdapter{UserAgent: userAgent},
			domain.KindGitHubDiscussions: &GitHubDiscussionsAdapter{UserAgent: userAgent, Token: githubToken},
			domain.KindSnapshot:          &SnapshotAdapter{UserAgent: userAgent, APIKey: snapshotKey},
			domain.KindResearchForum:     &ResearchForumAdapter{UserAgent: userAgent},
		},
	}
}

// For returns the adapter for kind.
func (s *AdapterSet) For(kind domain.SourceKind) (SourceAdapter, error) {
	a, ok := s.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for source kind %q", kind)
	}
	return a, nil
}

// dedupeTopics drops topics whose RefID repeats within a batch, keeping the
// first occurrence. Upstreams occasionally return pinned topics twice.
func dedupeTopics(topics []domain.Topic) []domain.Topic {
	seen := make(map[string]struct{}, len(topics))
	out := topics[:0]
	for _, t := range topics {
		if _, dup := seen[t.RefID]; dup {
			continue
		}
		seen[t.RefID] = struct{}{}
		out = append(out, t)
	}
	return out
}
