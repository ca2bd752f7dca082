package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// DiscourseAdapter reads the Discourse JSON API (`GET {base}/latest.json`).
type DiscourseAdapter struct {
	UserAgent string
}

// discourseLatest mirrors the subset of the /latest.json response we consume.
// The topic_list key doubles as the schema marker: its absence on a 200
// response means the host no longer runs Discourse.
type discourseLatest struct {
	TopicList *struct {
		Topics []discourseTopic `json:"topics"`
	} `json:"topic_list"`
}

type discourseTopic struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Slug         string   `json:"slug"`
	Tags         []string `json:"tags"`
	PostsCount   int      `json:"posts_count"`
	ReplyCount   int      `json:"reply_count"`
	Views        int      `json:"views"`
	LikeCount    int      `json:"like_count"`
	CreatedAt    string   `json:"created_at"`
	LastPostedAt string   `json:"last_posted_at"`
	BumpedAt     string   `json:"bumped_at"`
	Pinned       bool     `json:"pinned"`
	Closed       bool     `json:"closed"`
	Archived     bool     `json:"archived"`
	Excerpt      string   `json:"excerpt"`
}

// BuildRequest constructs the latest-topics request.
func (a *DiscourseAdapter) BuildRequest(src domain.SourceDescriptor) (*http.Request, error) {
	u := strings.TrimSuffix(src.BaseURL, "/") + "/latest.json"
	req, err := http.NewRequest(http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("discourse request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.UserAgent)
	return req, nil
}

// Parse converts a /latest.json body into topics. Individual topics missing
// required fields are skipped; the batch succeeds with the rest.
func (a *DiscourseAdapter) Parse(src domain.SourceDescriptor, body []byte) ([]domain.Topic, error) {
	var latest discourseLatest
	if err := json.Unmarshal(body, &latest); err != nil {
		return nil, newError(KindDefunct, src.ID, 0, fmt.Errorf("not discourse json: %w", err))
	}
	if latest.TopicList == nil {
		return nil, newError(KindDefunct, src.ID, 0, errors.New("response missing topic_list"))
	}

	topics := make([]domain.Topic, 0, len(latest.TopicList.Topics))
	for i := range latest.TopicList.Topics {
		dt := &latest.TopicList.Topics[i]
		if dt.ID == 0 || dt.Title == "" {
			continue
		}

		externalID := strconv.Itoa(dt.ID)
		topics = append(topics, domain.Topic{
			ExternalID:     externalID,
			RefID:          domain.MakeRefID(src.ID, externalID),
			Title:          dt.Title,
			Permalink:      strings.TrimSuffix(src.BaseURL, "/") + "/t/" + dt.Slug + "/" + externalID,
			Tags:           dt.Tags,
			ReplyCount:     dt.ReplyCount,
			ViewCount:      dt.Views,
			LikeCount:      dt.LikeCount,
			CreatedAt:      parseISOTime(dt.CreatedAt),
			LastActivityAt: lastActivity(dt),
			Pinned:         dt.Pinned,
			Closed:         dt.Closed,
			Archived:       dt.Archived,
			Excerpt:        dt.Excerpt,
		})
	}

	return dedupeTopics(topics), nil
}

// lastActivity prefers bumped_at, falling back to last_posted_at.
func lastActivity(dt *discourseTopic) time.Time {
	if ts := parseISOTime(dt.BumpedAt); !ts.IsZero() {
		return ts
	}
	return parseISOTime(dt.LastPostedAt)
}

// parseISOTime parses upstream ISO8601 timestamps, returning the zero time
// for empty or malformed values.
func parseISOTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
