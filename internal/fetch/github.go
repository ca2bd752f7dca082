package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// githubGraphQLEndpoint is the single endpoint for all GitHub GraphQL calls.
const githubGraphQLEndpoint = "https://api.github.com/graphql"

// githubDiscussionsQuery fetches the most recently updated discussions for a
// repository. Owner and name are passed as variables.
const githubDiscussionsQuery = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    discussions(first: 30, orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        number
        title
        url
        createdAt
        updatedAt
        closed
        upvoteCount
        comments { totalCount }
        author { login }
        category { name }
        labels(first: 10) { nodes { name } }
      }
    }
  }
}`

// GitHubDiscussionsAdapter reads GitHub Discussions over GraphQL. The source
// BaseURL is the repository URL (https://github.com/{owner}/{repo}).
type GitHubDiscussionsAdapter struct {
	UserAgent string
	Token     string
}

type githubResponse struct {
	Data *struct {
		Repository *struct {
			Discussions struct {
				Nodes []githubDiscussion `json:"nodes"`
			} `json:"discussions"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type githubDiscussion struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	Closed      bool   `json:"closed"`
	UpvoteCount int    `json:"upvoteCount"`
	Comments    struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
}

// BuildRequest constructs the authenticated GraphQL POST.
func (a *GitHubDiscussionsAdapter) BuildRequest(src domain.SourceDescriptor) (*http.Request, error) {
	owner, name, err := splitRepoURL(src.BaseURL)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"query": githubDiscussionsQuery,
		"variables": map[string]string{
			"owner": owner,
			"name":  name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("github request payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, githubGraphQLEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("github request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", a.UserAgent)
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	return req, nil
}

// Parse converts a GraphQL response into topics. Comment counts map to
// replies and upvotes to the engagement score.
func (a *GitHubDiscussionsAdapter) Parse(src domain.SourceDescriptor, body []byte) ([]domain.Topic, error) {
	var resp githubResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindDefunct, src.ID, 0, fmt.Errorf("not graphql json: %w", err))
	}
	if len(resp.Errors) > 0 {
		return nil, newError(KindMalformed, src.ID, 0, fmt.Errorf("graphql error: %s", resp.Errors[0].Message))
	}
	if resp.Data == nil || resp.Data.Repository == nil {
		return nil, newError(KindDefunct, src.ID, 0, errors.New("response missing repository"))
	}

	nodes := resp.Data.Repository.Discussions.Nodes
	topics := make([]domain.Topic, 0, len(nodes))
	for i := range nodes {
		d := &nodes[i]
		if d.Number == 0 || d.Title == "" {
			continue
		}

		externalID := fmt.Sprintf("%d", d.Number)
		t := domain.Topic{
			ExternalID:      externalID,
			RefID:           domain.MakeRefID(src.ID, externalID),
			Title:           d.Title,
			Permalink:       d.URL,
			ReplyCount:      d.Comments.TotalCount,
			EngagementScore: float64(d.UpvoteCount),
			CreatedAt:       parseISOTime(d.CreatedAt),
			LastActivityAt:  parseISOTime(d.UpdatedAt),
			Closed:          d.Closed,
		}
		if d.Author != nil {
			t.AuthorName = d.Author.Login
		}
		if d.Category != nil && d.Category.Name != "" {
			t.Tags = append(t.Tags, d.Category.Name)
		}
		for _, l := range d.Labels.Nodes {
			t.Tags = append(t.Tags, l.Name)
		}
		topics = append(topics, t)
	}

	return dedupeTopics(topics), nil
}

// splitRepoURL extracts owner and repo from a github.com repository URL.
func splitRepoURL(baseURL string) (owner, name string, err error) {
	trimmed := strings.TrimSuffix(baseURL, "/")
	idx := strings.Index(trimmed, "github.com/")
	if idx < 0 {
		return "", "", fmt.Errorf("not a github repository url: %s", baseURL)
	}
	parts := strings.Split(trimmed[idx+len("github.com/"):], "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("not a github repository url: %s", baseURL)
	}
	return parts[0], parts[1], nil
}
