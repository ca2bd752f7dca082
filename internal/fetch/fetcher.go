// Package fetch issues HTTP calls to upstream forum APIs, normalizes their
// heterogeneous responses into the common Topic shape, and classifies
// failures for the refresh orchestrator.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/ratelimit"
)

// maxResponseBodyBytes limits the size of upstream responses.
const maxResponseBodyBytes = 5 * 1024 * 1024 // 5 MB

// HTTP status boundaries used in classification.
const (
	statusTooManyRequests = 429
	statusForbidden       = 403
	statusServerErrLow    = 500
	statusServerErrHigh   = 599
)

// Config configures the Fetcher.
type Config struct {
	RequestTimeout time.Duration
	// OutboundWindow and OutboundMax bound requests per upstream host.
	OutboundWindow time.Duration
	OutboundMax    int
	Retry          RetryConfig
}

// Fetcher fetches one source's topics with rate limiting, retries, and
// defunct detection.
type Fetcher struct {
	client   *http.Client
	adapters *AdapterSet
	limiter  *ratelimit.Limiter
	retrier  *Retrier
	cfg      Config
	log      logger.Logger
}

// New creates a Fetcher. The limiter is the shared outbound limiter; every
// internal feature that talks to upstreams must go through it so the
// per-host budget holds across the whole process.
func New(cfg Config, adapters *AdapterSet, limiter *ratelimit.Limiter, log logger.Logger) *Fetcher {
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		// Redirects are followed, but the final URL is inspected after the
		// fact: a redirect that lands on a different host is the strongest
		// defunct signal we get.
	}
	return &Fetcher{
		client:   client,
		adapters: adapters,
		limiter:  limiter,
		retrier:  NewRetrier(cfg.Retry, log),
		cfg:      cfg,
		log:      log,
	}
}

// Fetch retrieves and normalizes the latest topics for src. Transient
// failures are retried within the caller's deadline; the returned error is
// always a classified *Error (or a context error).
func (f *Fetcher) Fetch(ctx context.Context, src domain.SourceDescriptor) ([]domain.Topic, error) {
	adapter, err := f.adapters.For(src.Kind)
	if err != nil {
		return nil, newError(KindDefunct, src.ID, 0, err)
	}

	var topics []domain.Topic
	op := func() error {
		var opErr error
		topics, opErr = f.fetchOnce(ctx, src, adapter)
		return opErr
	}

	if err := f.retrier.Do(ctx, src.ID, op); err != nil {
		return nil, err
	}
	return topics, nil
}

// fetchOnce performs a single rate-limited upstream call.
func (f *Fetcher) fetchOnce(ctx context.Context, src domain.SourceDescriptor, adapter SourceAdapter) ([]domain.Topic, error) {
	req, err := adapter.BuildRequest(src)
	if err != nil {
		return nil, newError(KindDefunct, src.ID, 0, err)
	}
	req = req.WithContext(ctx)

	// The outbound budget is keyed by the host actually being called,
	// which for GraphQL kinds is the API endpoint, not the source URL.
	host := req.URL.Host
	if waitErr := f.limiter.WaitUntilAllowed(ctx, host, f.cfg.OutboundWindow, f.cfg.OutboundMax); waitErr != nil {
		return nil, fmt.Errorf("outbound limit wait for %s: %w", host, waitErr)
	}

	resp, doErr := f.client.Do(req)
	if doErr != nil {
		if errors.Is(doErr, context.Canceled) || errors.Is(doErr, context.DeadlineExceeded) {
			return nil, doErr
		}
		return nil, newError(KindTransient, src.ID, 0, doErr)
	}
	defer resp.Body.Close()

	if classified := classifyResponse(src, req.URL, resp); classified != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
		return nil, classified
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if readErr != nil {
		return nil, newError(KindTransient, src.ID, resp.StatusCode, readErr)
	}

	topics, parseErr := adapter.Parse(src, body)
	if parseErr != nil {
		return nil, parseErr
	}

	f.log.Debug("source fetched",
		logger.String("source_id", src.ID),
		logger.Int("topics", len(topics)),
	)
	return topics, nil
}

// classifyResponse maps response-level signals to fetch errors. Returns nil
// when the response should proceed to parsing.
func classifyResponse(src domain.SourceDescriptor, requested *url.URL, resp *http.Response) *Error {
	// A redirect chain that left the original host means the forum moved.
	if finalURL := resp.Request.URL; finalURL != nil && finalURL.Host != requested.Host {
		return newError(KindDefunct, src.ID, resp.StatusCode,
			fmt.Errorf("redirected from %s to %s", requested.Host, finalURL.Host))
	}

	switch {
	case resp.StatusCode == statusTooManyRequests:
		return newError(KindUpstreamRateLimited, src.ID, resp.StatusCode, errors.New("upstream throttled"))
	case resp.StatusCode == statusForbidden && resp.Header.Get("x-ratelimit-remaining") == "0":
		return newError(KindUpstreamRateLimited, src.ID, resp.StatusCode, errors.New("upstream budget exhausted"))
	case resp.StatusCode >= statusServerErrLow && resp.StatusCode <= statusServerErrHigh:
		return newError(KindTransient, src.ID, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return newError(KindTransient, src.ID, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	// A JSON API answering with HTML is the other defunct signal: the
	// host is alive but no longer serves the expected API.
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "json") {
		return newError(KindDefunct, src.ID, resp.StatusCode,
			fmt.Errorf("unexpected content type %q", contentType))
	}

	return nil
}
