package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SovereignSignal/discusswatch/internal/cache"
	"github.com/SovereignSignal/discusswatch/internal/config"
	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/fetch"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/metrics"
	"github.com/SovereignSignal/discusswatch/internal/sources"
)

// mockFetcher counts calls per source and tracks concurrency. Behavior per
// source is overridable via fail.
type mockFetcher struct {
	mu        sync.Mutex
	calls     map[string]int
	inFlight  int
	maxSeen   int
	delay     time.Duration
	fail      map[string]error
	topicsFor func(src domain.SourceDescriptor) []domain.Topic
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (m *mockFetcher) Fetch(ctx context.Context, src domain.SourceDescriptor) ([]domain.Topic, error) {
	m.mu.Lock()
	m.calls[src.ID]++
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	delay := m.delay
	failErr := m.fail[src.ID]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.done()
			return nil, ctx.Err()
		}
	}
	m.done()

	if failErr != nil {
		return nil, failErr
	}
	externalID := fmt.Sprintf("%s-topic", src.ID)
	return []domain.Topic{{
		ExternalID: externalID,
		RefID:      domain.MakeRefID(src.ID, externalID),
		Title:      "topic from " + src.ID,
	}}, nil
}

func (m *mockFetcher) done() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *mockFetcher) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func testRegistry(t *testing.T, n int) *sources.Registry {
	t.Helper()
	yaml := "sources:\n"
	for i := 0; i < n; i++ {
		yaml += fmt.Sprintf(`  - id: src-%d
    display_name: Source %d
    base_url: https://forum-%d.example.org
    kind: discourse-forum
    category_tag: test
    tier: %d
    enabled: true
`, i, i, i, i%3+1)
	}
	registry, err := sources.Parse([]byte(yaml))
	require.NoError(t, err)
	return registry
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Tier1TTL:             3 * time.Minute,
		Tier2TTL:             10 * time.Minute,
		Tier3TTL:             20 * time.Minute,
		MaxConcurrentFetches: 4,
		RefreshInterval:      time.Minute,
	}
}

func newTestOrchestrator(t *testing.T, n int, fetcher Fetcher, cfg config.CacheConfig) (*Orchestrator, *cache.Store, *sources.Registry) {
	t.Helper()
	registry := testRegistry(t, n)
	store := cache.NewStore()
	orch := New(registry, store, fetcher, nil, metrics.NewNop(), cfg, logger.NewNop())
	t.Cleanup(orch.Close)
	return orch, store, registry
}

func TestRefreshNow_CommitsTopics(t *testing.T) {
	fetcher := newMockFetcher()
	orch, store, _ := newTestOrchestrator(t, 2, fetcher, testCacheConfig())

	summary := orch.RefreshNow(context.Background(), []string{"src-0"})
	assert.Equal(t, Summary{Refreshed: 1}, summary)

	entry := store.Get("src-0")
	require.Len(t, entry.Topics, 1)
	assert.True(t, entry.Populated())
	assert.Equal(t, 1, fetcher.callCount("src-0"))
	assert.Equal(t, 0, fetcher.callCount("src-1"))
}

func TestRefreshNow_UnknownSourceSkipped(t *testing.T) {
	fetcher := newMockFetcher()
	orch, _, _ := newTestOrchestrator(t, 1, fetcher, testCacheConfig())

	summary := orch.RefreshNow(context.Background(), []string{"src-0", "no-such"})
	assert.Equal(t, Summary{Refreshed: 1, Skipped: 1}, summary)
}

func TestRefreshNow_ConcurrentCallsShareOneFetch(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.delay = 100 * time.Millisecond
	orch, _, _ := newTestOrchestrator(t, 1, fetcher, testCacheConfig())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Summary, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = orch.RefreshNow(context.Background(), []string{"src-0"})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fetcher.callCount("src-0"), "concurrent refreshes of one source must share a single upstream call")
	for _, s := range results {
		assert.Equal(t, Summary{Refreshed: 1}, s)
	}
}

func TestRefreshAll_BoundedFanOut(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.delay = 30 * time.Millisecond

	cfg := testCacheConfig()
	cfg.MaxConcurrentFetches = 3
	orch, _, _ := newTestOrchestrator(t, 12, fetcher, cfg)

	summary := orch.RefreshAll(context.Background())
	assert.Equal(t, 12, summary.Refreshed)

	fetcher.mu.Lock()
	maxSeen := fetcher.maxSeen
	fetcher.mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 3, "in-flight fetches must respect the semaphore")
	assert.Greater(t, maxSeen, 1, "fetches should actually overlap")
}

func TestRefreshAll_PartialFailureCommitsSuccesses(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.fail["src-1"] = &fetch.Error{Kind: fetch.KindTransient, SourceID: "src-1", StatusCode: 502, Cause: errors.New("bad gateway")}
	orch, store, _ := newTestOrchestrator(t, 3, fetcher, testCacheConfig())

	summary := orch.RefreshAll(context.Background())
	assert.Equal(t, Summary{Refreshed: 2, Failed: 1}, summary)

	assert.True(t, store.Get("src-0").Populated())
	assert.True(t, store.Get("src-2").Populated())

	failed := store.Get("src-1")
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "transient", failed.LastError.Kind)
	assert.Equal(t, 502, failed.LastError.StatusCode)
	assert.False(t, failed.Defunct)
}

func TestDefunct_RequiresTwoConsecutiveSignals(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.fail["src-0"] = &fetch.Error{Kind: fetch.KindDefunct, SourceID: "src-0", Cause: errors.New("redirected off-host")}
	orch, store, _ := newTestOrchestrator(t, 1, fetcher, testCacheConfig())

	orch.RefreshNow(context.Background(), []string{"src-0"})
	entry := store.Get("src-0")
	require.NotNil(t, entry.LastError)
	assert.False(t, entry.Defunct, "one defunct signal is not confirmation")

	orch.RefreshNow(context.Background(), []string{"src-0"})
	assert.True(t, store.Get("src-0").Defunct, "second consecutive signal confirms")

	// Confirmed defunct sources drop out of the due set and forced
	// refreshes skip them.
	assert.Empty(t, orch.Due(time.Now()))
	summary := orch.RefreshNow(context.Background(), []string{"src-0"})
	assert.Equal(t, Summary{Skipped: 1}, summary)
}

func TestDefunct_InterveningSuccessResetsStrikes(t *testing.T) {
	fetcher := newMockFetcher()
	defunctErr := &fetch.Error{Kind: fetch.KindDefunct, SourceID: "src-0", Cause: errors.New("html response")}
	orch, store, _ := newTestOrchestrator(t, 1, fetcher, testCacheConfig())

	fetcher.mu.Lock()
	fetcher.fail["src-0"] = defunctErr
	fetcher.mu.Unlock()
	orch.RefreshNow(context.Background(), []string{"src-0"})

	fetcher.mu.Lock()
	delete(fetcher.fail, "src-0")
	fetcher.mu.Unlock()
	orch.RefreshNow(context.Background(), []string{"src-0"})

	fetcher.mu.Lock()
	fetcher.fail["src-0"] = defunctErr
	fetcher.mu.Unlock()
	orch.RefreshNow(context.Background(), []string{"src-0"})

	assert.False(t, store.Get("src-0").Defunct, "non-consecutive signals must not confirm")
}

func TestResetDefunct(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.fail["src-0"] = &fetch.Error{Kind: fetch.KindDefunct, SourceID: "src-0", Cause: errors.New("gone")}
	orch, store, _ := newTestOrchestrator(t, 1, fetcher, testCacheConfig())

	orch.RefreshNow(context.Background(), []string{"src-0"})
	orch.RefreshNow(context.Background(), []string{"src-0"})
	require.True(t, store.Get("src-0").Defunct)

	require.NoError(t, orch.ResetDefunct("src-0"))
	assert.False(t, store.Get("src-0").Defunct)
	assert.Len(t, orch.Due(time.Now()), 1, "reset source rejoins the rotation")

	assert.Error(t, orch.ResetDefunct("missing"))
}

func TestDue_NeverFetchedFirstThenTierTTL(t *testing.T) {
	fetcher := newMockFetcher()
	orch, _, _ := newTestOrchestrator(t, 3, fetcher, testCacheConfig())

	// Nothing fetched yet: everything is due, unfetched order preserved.
	due := orch.Due(time.Now())
	require.Len(t, due, 3)

	// src-0 is tier 1 (3m TTL), src-1 tier 2 (10m), src-2 tier 3 (20m).
	orch.RefreshAll(context.Background())

	assert.Empty(t, orch.Due(time.Now()), "freshly fetched sources are not due")

	due = orch.Due(time.Now().Add(5 * time.Minute))
	require.Len(t, due, 1)
	assert.Equal(t, "src-0", due[0].ID)

	due = orch.Due(time.Now().Add(15 * time.Minute))
	require.Len(t, due, 2)

	due = orch.Due(time.Now().Add(25 * time.Minute))
	require.Len(t, due, 3)
}

func TestDue_NeverFetchedBeforeExpired(t *testing.T) {
	fetcher := newMockFetcher()
	orch, _, _ := newTestOrchestrator(t, 2, fetcher, testCacheConfig())

	// Fetch only src-0, then look far enough ahead that it has expired.
	orch.RefreshNow(context.Background(), []string{"src-0"})

	due := orch.Due(time.Now().Add(time.Hour))
	require.Len(t, due, 2)
	assert.Equal(t, "src-1", due[0].ID, "never-fetched sources come first")
	assert.Equal(t, "src-0", due[1].ID)
}

func TestRefreshSource_CallerTimeoutDoesNotKillSharedFlight(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.delay = 80 * time.Millisecond
	orch, store, _ := newTestOrchestrator(t, 1, fetcher, testCacheConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	summary := orch.RefreshNow(ctx, []string{"src-0"})
	assert.Equal(t, Summary{Skipped: 1}, summary, "abandoning caller sees a skip")

	// The flight keeps running under the orchestrator's own context and
	// still commits.
	assert.Eventually(t, func() bool {
		return store.Get("src-0").Populated()
	}, time.Second, 10*time.Millisecond)
}
