package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// snapshotEndpoint is the Snapshot hub GraphQL endpoint.
const snapshotEndpoint = "https://hub.snapshot.org/graphql"

// snapshotProposalsQuery fetches recent proposals for a space.
const snapshotProposalsQuery = `
query($space: String!) {
  proposals(first: 30, where: {space: $space}, orderBy: "created", orderDirection: desc) {
    id
    title
    body
    author
    created
    end
    state
    scores_total
    votes
    discussion
  }
}`

// SnapshotAdapter reads governance proposals from a Snapshot space. The
// source BaseURL is the space URL (https://snapshot.org/#/{space}).
type SnapshotAdapter struct {
	UserAgent string
	APIKey    string
}

type snapshotResponse struct {
	Data *struct {
		Proposals []snapshotProposal `json:"proposals"`
	} `json:"data"`
}

type snapshotProposal struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	Created     int64   `json:"created"`
	End         int64   `json:"end"`
	State       string  `json:"state"`
	ScoresTotal float64 `json:"scores_total"`
	Votes       int     `json:"votes"`
	Discussion  string  `json:"discussion"`
}

// BuildRequest constructs the GraphQL POST for the space's proposals.
func (a *SnapshotAdapter) BuildRequest(src domain.SourceDescriptor) (*http.Request, error) {
	space, err := spaceFromURL(src.BaseURL)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"query":     snapshotProposalsQuery,
		"variables": map[string]string{"space": space},
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot request payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, snapshotEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", a.UserAgent)
	if a.APIKey != "" {
		req.Header.Set("X-Api-Key", a.APIKey)
	}
	return req, nil
}

// Parse converts proposals into topics. Vote totals map to the engagement
// score since Snapshot has no reply counts; vote count maps to replies so
// digest consumers still see participation.
func (a *SnapshotAdapter) Parse(src domain.SourceDescriptor, body []byte) ([]domain.Topic, error) {
	var resp snapshotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindDefunct, src.ID, 0, fmt.Errorf("not graphql json: %w", err))
	}
	if resp.Data == nil {
		return nil, newError(KindDefunct, src.ID, 0, errors.New("response missing data"))
	}

	topics := make([]domain.Topic, 0, len(resp.Data.Proposals))
	for i := range resp.Data.Proposals {
		p := &resp.Data.Proposals[i]
		if p.ID == "" || p.Title == "" {
			continue
		}

		created := time.Unix(p.Created, 0).UTC()
		topics = append(topics, domain.Topic{
			ExternalID:      p.ID,
			RefID:           domain.MakeRefID(src.ID, p.ID),
			Title:           p.Title,
			Permalink:       strings.TrimSuffix(src.BaseURL, "/") + "/proposal/" + p.ID,
			Tags:            []string{p.State},
			ReplyCount:      p.Votes,
			EngagementScore: p.ScoresTotal,
			CreatedAt:       created,
			LastActivityAt:  lastProposalActivity(p, created),
			Closed:          p.State == "closed",
			Excerpt:         truncate(p.Body, 280),
			AuthorName:      p.Author,
		})
	}

	return dedupeTopics(topics), nil
}

// lastProposalActivity treats a closed proposal's end time as its last
// activity; open proposals use the creation time.
func lastProposalActivity(p *snapshotProposal, created time.Time) time.Time {
	if p.State == "closed" && p.End > 0 {
		return time.Unix(p.End, 0).UTC()
	}
	return created
}

// spaceFromURL extracts the space name from a snapshot.org space URL.
func spaceFromURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("snapshot space url: %w", err)
	}
	// Space URLs look like https://snapshot.org/#/ens.eth; the space name
	// rides in the fragment.
	space := strings.TrimPrefix(u.Fragment, "/")
	if space == "" {
		space = strings.Trim(u.Path, "/")
	}
	if space == "" {
		return "", fmt.Errorf("no space in url: %s", baseURL)
	}
	return space, nil
}

// truncate shortens s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
