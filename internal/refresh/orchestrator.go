// Package refresh drives the polling loop: it decides which sources are due,
// fans fetches out under a concurrency bound, deduplicates concurrent
// requests for one source, and commits results to the cache.
package refresh

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SovereignSignal/discusswatch/internal/cache"
	"github.com/SovereignSignal/discusswatch/internal/config"
	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/events"
	"github.com/SovereignSignal/discusswatch/internal/fetch"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/metrics"
	"github.com/SovereignSignal/discusswatch/internal/sources"
)

// defunctStrikeThreshold is the number of consecutive defunct signals
// required before a source is flagged defunct. A single redirect or content
// hiccup is treated as transient.
const defunctStrikeThreshold = 2

// Fetcher is the upstream call the orchestrator depends on.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.SourceDescriptor) ([]domain.Topic, error)
}

// Summary reports the outcome of a refresh pass.
type Summary struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Orchestrator coordinates refreshes. It is safe for concurrent use; all
// paths into a source's refresh funnel through one in-flight fetch.
type Orchestrator struct {
	registry  *sources.Registry
	store     *cache.Store
	fetcher   Fetcher
	publisher *events.Publisher
	metrics   *metrics.Metrics
	log       logger.Logger
	cfg       config.CacheConfig

	flights singleflight.Group
	sem     chan struct{}

	// baseCtx outlives any single caller so a shared flight is not killed
	// by the first caller abandoning it.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	strikes map[string]int

	now func() time.Time
}

// New creates an Orchestrator. publisher may be nil.
func New(
	registry *sources.Registry,
	store *cache.Store,
	fetcher Fetcher,
	publisher *events.Publisher,
	m *metrics.Metrics,
	cfg config.CacheConfig,
	log logger.Logger,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	maxConcurrent := cfg.MaxConcurrentFetches
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Orchestrator{
		registry:  registry,
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		metrics:   m,
		log:       log,
		cfg:       cfg,
		sem:       make(chan struct{}, maxConcurrent),
		baseCtx:   ctx,
		cancel:    cancel,
		strikes:   make(map[string]int),
		now:       time.Now,
	}
}

// Close stops all in-flight shared fetches.
func (o *Orchestrator) Close() {
	o.cancel()
}

// TierTTL exposes the configured freshness window per tier.
func (o *Orchestrator) TierTTL(tier int) time.Duration {
	return o.cfg.TierTTL(tier)
}

// Due returns enabled sources whose cache entry is missing or past its tier
// TTL at now, never-fetched sources first. Defunct sources are excluded;
// only an admin reset brings them back.
func (o *Orchestrator) Due(now time.Time) []domain.SourceDescriptor {
	var never, expired []domain.SourceDescriptor
	for _, src := range o.registry.Enabled() {
		entry := o.store.Get(src.ID)
		if entry.Defunct {
			continue
		}
		if !entry.Populated() {
			never = append(never, src)
			continue
		}
		if now.Sub(entry.FetchedAt) >= o.cfg.TierTTL(src.Tier) {
			expired = append(expired, src)
		}
	}
	// Expired sources go oldest-first so the stalest data refreshes
	// before a tick runs out of semaphore slots.
	sort.SliceStable(expired, func(i, j int) bool {
		return o.store.Get(expired[i].ID).FetchedAt.Before(o.store.Get(expired[j].ID).FetchedAt)
	})
	return append(never, expired...)
}

// RefreshAll refreshes every due source and returns a summary. Sources not
// due are not counted.
func (o *Orchestrator) RefreshAll(ctx context.Context) Summary {
	return o.refreshBatch(ctx, o.Due(o.now()))
}

// RefreshNow forces a refresh of the named sources regardless of TTL.
// Unknown and defunct sources are counted as skipped.
func (o *Orchestrator) RefreshNow(ctx context.Context, ids []string) Summary {
	var batch []domain.SourceDescriptor
	skipped := 0
	for _, id := range ids {
		src, err := o.registry.Get(id)
		if err != nil {
			o.log.Warn("refresh requested for unknown source", logger.String("source_id", id))
			skipped++
			continue
		}
		if o.store.Get(src.ID).Defunct {
			skipped++
			continue
		}
		batch = append(batch, src)
	}
	summary := o.refreshBatch(ctx, batch)
	summary.Skipped += skipped
	return summary
}

func (o *Orchestrator) refreshBatch(ctx context.Context, batch []domain.SourceDescriptor) Summary {
	if len(batch) == 0 {
		return Summary{}
	}

	start := o.now()
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	summary := Summary{}

	for _, src := range batch {
		wg.Add(1)
		go func(src domain.SourceDescriptor) {
			defer wg.Done()
			err := o.refreshSource(ctx, src)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Refreshed++
			case err == context.Canceled || err == context.DeadlineExceeded:
				summary.Skipped++
			default:
				summary.Failed++
			}
		}(src)
	}
	wg.Wait()

	o.updateGauges()
	o.log.Info("refresh pass complete",
		logger.Int("refreshed", summary.Refreshed),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", summary.Skipped),
		logger.Duration("elapsed", o.now().Sub(start)),
	)
	return summary
}

// refreshSource joins or starts the single flight for src. The flight itself
// runs under the orchestrator's context; ctx only governs how long this
// caller waits for the shared result.
func (o *Orchestrator) refreshSource(ctx context.Context, src domain.SourceDescriptor) error {
	ch := o.flights.DoChan(src.ID, func() (interface{}, error) {
		return nil, o.doRefresh(src)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRefresh performs one fetch-and-commit cycle for src. Exactly one runs
// per source at a time.
func (o *Orchestrator) doRefresh(src domain.SourceDescriptor) error {
	select {
	case o.sem <- struct{}{}:
	case <-o.baseCtx.Done():
		return o.baseCtx.Err()
	}
	defer func() { <-o.sem }()

	seq := o.store.Seq(src.ID) + 1
	start := o.now()

	o.metrics.InFlightFetches.Inc()
	topics, err := o.fetcher.Fetch(o.baseCtx, src)
	o.metrics.InFlightFetches.Dec()
	o.metrics.FetchDuration.Observe(o.now().Sub(start).Seconds())

	if err != nil {
		return o.commitFailure(src, seq, err)
	}

	o.resetStrikes(src.ID)
	o.store.Commit(src.ID, topics, seq)
	o.metrics.FetchTotal.WithLabelValues(src.ID, "success").Inc()
	o.log.Debug("source refreshed",
		logger.String("source_id", src.ID),
		logger.Int("topics", len(topics)),
	)
	o.publisher.PublishAsync(events.Event{
		EventType:  events.SourceRefreshed,
		SourceID:   src.ID,
		TopicCount: len(topics),
	})
	return nil
}

func (o *Orchestrator) commitFailure(src domain.SourceDescriptor, seq uint64, err error) error {
	kind := fetch.KindOf(err)
	errInfo := domain.ErrorInfo{
		Kind:       string(kind),
		Message:    err.Error(),
		StatusCode: fetch.StatusOf(err),
		OccurredAt: o.now(),
	}

	defunct := false
	if kind == fetch.KindDefunct {
		defunct = o.addStrike(src.ID) >= defunctStrikeThreshold
	} else {
		o.resetStrikes(src.ID)
	}

	o.store.CommitError(src.ID, errInfo, defunct, seq)
	o.metrics.FetchTotal.WithLabelValues(src.ID, string(kind)).Inc()

	if defunct {
		o.log.Warn("source confirmed defunct",
			logger.String("source_id", src.ID),
			logger.Error(err),
		)
		o.publisher.PublishAsync(events.Event{
			EventType: events.SourceDefunct,
			SourceID:  src.ID,
			Error:     err.Error(),
		})
	} else {
		o.log.Warn("source refresh failed",
			logger.String("source_id", src.ID),
			logger.String("kind", string(kind)),
			logger.Error(err),
		)
		o.publisher.PublishAsync(events.Event{
			EventType: events.SourceFailed,
			SourceID:  src.ID,
			Error:     err.Error(),
		})
	}
	return err
}

// ResetDefunct clears the sticky defunct flag for id so the source rejoins
// the polling rotation.
func (o *Orchestrator) ResetDefunct(id string) error {
	if _, err := o.registry.Get(id); err != nil {
		return err
	}
	o.store.ClearDefunct(id)
	o.resetStrikes(id)
	o.log.Info("defunct flag cleared", logger.String("source_id", id))
	return nil
}

func (o *Orchestrator) addStrike(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strikes[id]++
	return o.strikes[id]
}

func (o *Orchestrator) resetStrikes(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.strikes, id)
}

func (o *Orchestrator) updateGauges() {
	fresh, errored := 0, 0
	now := o.now()
	for _, src := range o.registry.Enabled() {
		entry := o.store.Get(src.ID)
		if entry.LastError != nil || entry.Defunct {
			errored++
		}
		if entry.Populated() && now.Sub(entry.FetchedAt) < o.cfg.TierTTL(src.Tier) {
			fresh++
		}
	}
	o.metrics.FreshSources.Set(float64(fresh))
	o.metrics.ErrorSources.Set(float64(errored))
}
