// Package query is the read-side façade over the cache. Every method serves
// from the last committed snapshot; nothing here waits on an upstream fetch.
package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/cache"
	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/refresh"
	"github.com/SovereignSignal/discusswatch/internal/sources"
)

// triggerTimeout bounds a background refresh kicked off by TriggerRefresh.
const triggerTimeout = 90 * time.Second

// DefaultSearchLimit caps search results when the caller asks for none.
const DefaultSearchLimit = 20

// SearchHit is one search result with its owning source attached.
type SearchHit struct {
	SourceID string       `json:"source_id"`
	Topic    domain.Topic `json:"topic"`
}

// Facade is the single entry point for readers: HTTP handlers, the digest
// builder, and CLI commands all go through it.
type Facade struct {
	registry *sources.Registry
	store    *cache.Store
	orch     *refresh.Orchestrator
	log      logger.Logger
	now      func() time.Time
}

// New creates a Facade.
func New(registry *sources.Registry, store *cache.Store, orch *refresh.Orchestrator, log logger.Logger) *Facade {
	return &Facade{
		registry: registry,
		store:    store,
		orch:     orch,
		log:      log,
		now:      time.Now,
	}
}

// GetCached returns entries for the given source IDs in request order.
// Unknown IDs yield empty entries rather than an error; a feed asking for a
// source that was removed from the registry still renders.
func (f *Facade) GetCached(ids []string) []domain.CacheEntry {
	out := make([]domain.CacheEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.store.Get(id))
	}
	return out
}

// GetAll returns entries for every registered source, in registry order.
func (f *Facade) GetAll() []domain.CacheEntry {
	all := f.registry.All()
	out := make([]domain.CacheEntry, 0, len(all))
	for _, src := range all {
		out = append(out, f.store.Get(src.ID))
	}
	return out
}

// TriggerRefresh starts a background refresh of the given sources (all
// registered sources when ids is empty) and returns immediately. The caller
// never waits on upstream.
func (f *Facade) TriggerRefresh(ids []string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()

		var summary refresh.Summary
		if len(ids) == 0 {
			summary = f.orch.RefreshAll(ctx)
		} else {
			summary = f.orch.RefreshNow(ctx, ids)
		}
		f.log.Info("triggered refresh finished",
			logger.Int("refreshed", summary.Refreshed),
			logger.Int("failed", summary.Failed),
			logger.Int("skipped", summary.Skipped),
		)
	}()
}

// Stats summarizes cache health across all registered sources. A source is
// fresh when its entry is inside the tier TTL.
func (f *Facade) Stats() domain.Stats {
	now := f.now()
	stats := domain.Stats{}
	for _, src := range f.registry.All() {
		entry := f.store.Get(src.ID)
		stats.SourceCount++
		if entry.Defunct {
			stats.DefunctCount++
		}
		if entry.LastError != nil {
			stats.ErrorCount++
		}
		if !entry.Populated() {
			continue
		}
		if now.Sub(entry.FetchedAt) < f.orch.TierTTL(src.Tier) {
			stats.FreshCount++
		}
		if stats.OldestFetchedAt.IsZero() || entry.FetchedAt.Before(stats.OldestFetchedAt) {
			stats.OldestFetchedAt = entry.FetchedAt
		}
	}
	return stats
}

// Search matches q case-insensitively against topic titles and tags in the
// snapshot. Results order by last activity, newest first.
func (f *Facade) Search(q string, limit int) []SearchHit {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var hits []SearchHit
	for _, entry := range f.store.Snapshot() {
		for _, t := range entry.Topics {
			if matches(t, q) {
				hits = append(hits, SearchHit{SourceID: entry.SourceID, Topic: t})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Topic.LastActivityAt.After(hits[j].Topic.LastActivityAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func matches(t domain.Topic, q string) bool {
	if strings.Contains(strings.ToLower(t.Title), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
