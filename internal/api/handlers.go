package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SovereignSignal/discusswatch/internal/digest"
	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/query"
	"github.com/SovereignSignal/discusswatch/internal/rank"
	"github.com/SovereignSignal/discusswatch/internal/refresh"
	"github.com/SovereignSignal/discusswatch/internal/sources"
)

// Handler handles HTTP requests for the discusswatch API.
type Handler struct {
	facade   *query.Facade
	registry *sources.Registry
	orch     *refresh.Orchestrator
	log      logger.Logger
	now      func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(facade *query.Facade, registry *sources.Registry, orch *refresh.Orchestrator, log logger.Logger) *Handler {
	return &Handler{
		facade:   facade,
		registry: registry,
		orch:     orch,
		log:      log,
		now:      time.Now,
	}
}

// SourceStatus pairs a registry descriptor with its cache state.
type SourceStatus struct {
	Source     domain.SourceDescriptor `json:"source"`
	TopicCount int                     `json:"topic_count"`
	FetchedAt  time.Time               `json:"fetched_at,omitempty"`
	LastError  *domain.ErrorInfo       `json:"last_error,omitempty"`
	Defunct    bool                    `json:"defunct"`
}

// SourcesResponse lists all registered sources with cache status.
type SourcesResponse struct {
	Sources []SourceStatus `json:"sources"`
	Total   int            `json:"total"`
}

// FeedsResponse returns cache entries for the requested sources.
type FeedsResponse struct {
	Entries []domain.CacheEntry `json:"entries"`
}

// BriefResponse holds the ranked hot and fresh lists for a category.
type BriefResponse struct {
	Category    string         `json:"category,omitempty"`
	Hot         []domain.Topic `json:"hot"`
	Fresh       []domain.Topic `json:"fresh"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// SearchResponse lists search hits.
type SearchResponse struct {
	Query   string            `json:"query"`
	Results []query.SearchHit `json:"results"`
	Total   int               `json:"total"`
}

// RefreshRequest names the sources to refresh; empty means all.
type RefreshRequest struct {
	Sources []string `json:"sources"`
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListSources handles GET /api/v1/sources.
func (h *Handler) ListSources(c *gin.Context) {
	all := h.registry.All()
	statuses := make([]SourceStatus, 0, len(all))
	for i, entry := range h.facade.GetAll() {
		statuses = append(statuses, SourceStatus{
			Source:     all[i],
			TopicCount: len(entry.Topics),
			FetchedAt:  entry.FetchedAt,
			LastError:  entry.LastError,
			Defunct:    entry.Defunct,
		})
	}
	c.JSON(http.StatusOK, SourcesResponse{Sources: statuses, Total: len(statuses)})
}

// GetFeeds handles GET /api/v1/feeds?sources=a,b. With no filter it returns
// every source's entry.
func (h *Handler) GetFeeds(c *gin.Context) {
	var entries []domain.CacheEntry
	if raw := c.Query("sources"); raw != "" {
		entries = h.facade.GetCached(splitList(raw))
	} else {
		entries = h.facade.GetAll()
	}
	c.JSON(http.StatusOK, FeedsResponse{Entries: entries})
}

// GetBriefs handles GET /api/v1/briefs?category=. Topics from defunct
// sources are excluded; stale entries still contribute.
func (h *Handler) GetBriefs(c *gin.Context) {
	category := c.Query("category")

	var pool []domain.Topic
	for _, src := range h.registry.All() {
		if category != "" && src.CategoryTag != category {
			continue
		}
		entry := h.facade.GetCached([]string{src.ID})[0]
		if entry.Defunct {
			continue
		}
		pool = append(pool, entry.Topics...)
	}

	now := h.now()
	res := rank.RankHotAndNew(pool, now, rank.DefaultOptions())
	c.JSON(http.StatusOK, BriefResponse{
		Category:    category,
		Hot:         res.Hot,
		Fresh:       res.Fresh,
		GeneratedAt: now,
	})
}

// GetDigest handles GET /api/v1/digest?focus=a,b. Sections are assembled
// from the cached snapshot with the standing layout; focus terms add an
// extra keyword section.
func (h *Handler) GetDigest(c *gin.Context) {
	var focus []string
	if raw := c.Query("focus"); raw != "" {
		focus = splitList(raw)
	}
	d := digest.Build(h.facade.GetAll(), h.now(), digest.DefaultSections(focus))
	c.JSON(http.StatusOK, d)
}

// Search handles GET /api/v1/search?q=&limit=.
func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	hits := h.facade.Search(q, limit)
	c.JSON(http.StatusOK, SearchResponse{Query: q, Results: hits, Total: len(hits)})
}

// GetStats handles GET /api/v1/stats.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.facade.Stats())
}

// Refresh handles POST /api/v1/refresh. The refresh runs in the background;
// the response only acknowledges the request.
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.facade.TriggerRefresh(req.Sources)
	c.JSON(http.StatusAccepted, gin.H{
		"status":  "refresh started",
		"sources": len(req.Sources),
	})
}

// ResetDefunct handles POST /api/v1/sources/:id/reset-defunct.
func (h *Handler) ResetDefunct(c *gin.Context) {
	id := c.Param("id")
	if err := h.orch.ResetDefunct(id); err != nil {
		if errors.Is(err, sources.ErrUnknownSource) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + id})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "defunct flag cleared", "source_id": id})
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
