package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// ResearchForumAdapter reads research-forum style APIs that expose a plain
// JSON topic listing at {base}/api/topics.
type ResearchForumAdapter struct {
	UserAgent string
}

// researchListing is the expected response shape; the topics key is the
// schema marker.
type researchListing struct {
	Topics []researchTopic `json:"topics"`
}

type researchTopic struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Tags      []string `json:"tags"`
	Replies   int      `json:"replies"`
	Views     int      `json:"views"`
	Likes     int      `json:"likes"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Pinned    bool     `json:"pinned"`
	Closed    bool     `json:"closed"`
	Author    string   `json:"author"`
	Summary   string   `json:"summary"`
}

// BuildRequest constructs the topic listing request.
func (a *ResearchForumAdapter) BuildRequest(src domain.SourceDescriptor) (*http.Request, error) {
	u := strings.TrimSuffix(src.BaseURL, "/") + "/api/topics"
	req, err := http.NewRequest(http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("research forum request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.UserAgent)
	return req, nil
}

// Parse converts the listing into topics.
func (a *ResearchForumAdapter) Parse(src domain.SourceDescriptor, body []byte) ([]domain.Topic, error) {
	var listing researchListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, newError(KindDefunct, src.ID, 0, fmt.Errorf("not research forum json: %w", err))
	}
	if listing.Topics == nil {
		return nil, newError(KindDefunct, src.ID, 0, errors.New("response missing topics"))
	}

	topics := make([]domain.Topic, 0, len(listing.Topics))
	for i := range listing.Topics {
		rt := &listing.Topics[i]
		if rt.ID == "" || rt.Title == "" {
			continue
		}

		topics = append(topics, domain.Topic{
			ExternalID:     rt.ID,
			RefID:          domain.MakeRefID(src.ID, rt.ID),
			Title:          rt.Title,
			Permalink:      rt.URL,
			Tags:           rt.Tags,
			ReplyCount:     rt.Replies,
			ViewCount:      rt.Views,
			LikeCount:      rt.Likes,
			CreatedAt:      parseISOTime(rt.CreatedAt),
			LastActivityAt: parseISOTime(rt.UpdatedAt),
			Pinned:         rt.Pinned,
			Closed:         rt.Closed,
			Excerpt:        rt.Summary,
			AuthorName:     rt.Author,
		})
	}

	return dedupeTopics(topics), nil
}
