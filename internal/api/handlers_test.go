package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SovereignSignal/discusswatch/internal/cache"
	"github.com/SovereignSignal/discusswatch/internal/config"
	"github.com/SovereignSignal/discusswatch/internal/digest"
	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/metrics"
	"github.com/SovereignSignal/discusswatch/internal/query"
	"github.com/SovereignSignal/discusswatch/internal/ratelimit"
	"github.com/SovereignSignal/discusswatch/internal/refresh"
	"github.com/SovereignSignal/discusswatch/internal/sources"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, src domain.SourceDescriptor) ([]domain.Topic, error) {
	externalID := src.ID + "-t1"
	return []domain.Topic{{
		ExternalID: externalID,
		RefID:      domain.MakeRefID(src.ID, externalID),
		Title:      "from " + src.ID,
	}}, nil
}

type testEnv struct {
	router *gin.Engine
	store  *cache.Store
	orch   *refresh.Orchestrator
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	yaml := `sources:
  - id: eth-forum
    display_name: Eth Forum
    base_url: https://forum-eth.example.org
    kind: discourse-forum
    category_tag: ethereum
    tier: 1
    enabled: true
  - id: op-forum
    display_name: OP Forum
    base_url: https://forum-op.example.org
    kind: discourse-forum
    category_tag: optimism
    tier: 2
    enabled: true
`
	registry, err := sources.Parse([]byte(yaml))
	require.NoError(t, err)

	store := cache.NewStore()
	cfg := config.CacheConfig{
		Tier1TTL: 3 * time.Minute, Tier2TTL: 10 * time.Minute, Tier3TTL: 20 * time.Minute,
		MaxConcurrentFetches: 4, RefreshInterval: time.Minute,
	}
	orch := refresh.New(registry, store, stubFetcher{}, nil, metrics.NewNop(), cfg, logger.NewNop())
	t.Cleanup(orch.Close)

	facade := query.New(registry, store, orch, logger.NewNop())
	handler := NewHandler(facade, registry, orch, logger.NewNop())

	router := gin.New()
	router.GET("/health", handler.HealthCheck)
	SetupRoutes(router.Group("/api/v1"), handler)

	return &testEnv{router: router, store: store, orch: orch}
}

func (e *testEnv) request(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func seedTopic(refID, title string, replies int) domain.Topic {
	return domain.Topic{
		RefID:          refID,
		Title:          title,
		ReplyCount:     replies,
		CreatedAt:      time.Now().Add(-24 * time.Hour),
		LastActivityAt: time.Now().Add(-time.Hour),
	}
}

func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t)
	w := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestListSources(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.Commit("eth-forum", []domain.Topic{seedTopic("eth-forum:1", "t", 1)}, 1))

	w := env.request(t, http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SourcesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "eth-forum", resp.Sources[0].Source.ID)
	assert.Equal(t, 1, resp.Sources[0].TopicCount)
	assert.Equal(t, 0, resp.Sources[1].TopicCount)
}

func TestGetFeeds_FiltersBySourcesParam(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.Commit("eth-forum", []domain.Topic{seedTopic("eth-forum:1", "a", 1)}, 1))
	require.True(t, env.store.Commit("op-forum", []domain.Topic{seedTopic("op-forum:1", "b", 1)}, 1))

	w := env.request(t, http.MethodGet, "/api/v1/feeds?sources=op-forum", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp FeedsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "op-forum", resp.Entries[0].SourceID)

	w = env.request(t, http.MethodGet, "/api/v1/feeds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)
}

func TestGetBriefs_CategoryFilter(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.Commit("eth-forum", []domain.Topic{seedTopic("eth-forum:1", "eth topic", 9)}, 1))
	require.True(t, env.store.Commit("op-forum", []domain.Topic{seedTopic("op-forum:1", "op topic", 9)}, 1))

	w := env.request(t, http.MethodGet, "/api/v1/briefs?category=ethereum", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp BriefResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Hot, 1)
	assert.Equal(t, "eth topic", resp.Hot[0].Title)
}

func TestGetDigest(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.Commit("eth-forum", []domain.Topic{
		seedTopic("eth-forum:1", "Delegate report February", 12),
		seedTopic("eth-forum:2", "Restaking roundup", 6),
		seedTopic("eth-forum:3", "Client release notes", 3),
	}, 1))

	w := env.request(t, http.MethodGet, "/api/v1/digest?focus=restaking", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d digest.Digest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	require.Len(t, d.Sections, 3, "delegate, focus, and general sections")

	require.Len(t, d.Sections[0].Hot, 1)
	assert.Equal(t, "eth-forum:1", d.Sections[0].Hot[0].RefID)
	require.Len(t, d.Sections[1].Hot, 1)
	assert.Equal(t, "eth-forum:2", d.Sections[1].Hot[0].RefID)

	// Without focus terms the keyword section is dropped.
	w = env.request(t, http.MethodGet, "/api/v1/digest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Len(t, d.Sections, 2)
}

func TestSearch(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.Commit("eth-forum", []domain.Topic{
		seedTopic("eth-forum:1", "Restaking risks", 1),
		seedTopic("eth-forum:2", "Other", 1),
	}, 1))

	w := env.request(t, http.MethodGet, "/api/v1/search?q=restaking", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)

	// Missing q and bad limits are client errors.
	assert.Equal(t, http.StatusBadRequest, env.request(t, http.MethodGet, "/api/v1/search", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.request(t, http.MethodGet, "/api/v1/search?q=x&limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.request(t, http.MethodGet, "/api/v1/search?q=x&limit=0", nil).Code)
}

func TestGetStats(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.Commit("eth-forum", []domain.Topic{seedTopic("eth-forum:1", "x", 1)}, 1))

	w := env.request(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.SourceCount)
	assert.Equal(t, 1, stats.FreshCount)
}

func TestRefresh_Returns202AndRunsInBackground(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/refresh", []byte(`{"sources": ["eth-forum"]}`))
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		return env.store.Get("eth-forum").Populated()
	}, time.Second, 10*time.Millisecond)

	// Empty body means refresh everything.
	w = env.request(t, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/refresh", []byte(`{"sources": 12}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetDefunct(t *testing.T) {
	env := setupTestEnv(t)
	require.True(t, env.store.CommitError("eth-forum", domain.ErrorInfo{Kind: "defunct"}, true, 1))

	w := env.request(t, http.MethodPost, "/api/v1/sources/eth-forum/reset-defunct", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.store.Get("eth-forum").Defunct)

	w = env.request(t, http.MethodPost, "/api/v1/sources/nope/reset-defunct", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := ratelimit.New(100)
	cfg := config.RateLimitConfig{InboundWindow: time.Minute, InboundMax: 2}

	router := gin.New()
	router.Use(RateLimitMiddleware(limiter, cfg, metrics.NewNop(), logger.NewNop()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("request %d", i))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
