// Package rank scores and ranks cached topics. All functions are pure:
// output depends only on the input slice and the supplied clock value, so
// ranking is fully testable without a cache or network.
package rank

import (
	"sort"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// Weights controls the engagement score formula.
type Weights struct {
	Reply float64
	Like  float64
	View  float64
}

// DefaultWeights weighs replies heaviest, then likes, with views as a weak
// tiebreaker so a viral-but-quiet thread doesn't drown out live discussion.
func DefaultWeights() Weights {
	return Weights{
		Reply: 10,
		Like:  3,
		View:  1.0 / 500.0,
	}
}

// Options configures RankHotAndNew.
type Options struct {
	Weights     Weights
	Window      time.Duration
	HotLimit    int
	FreshLimit  int
	IncludePins bool
}

// DefaultOptions returns a 7-day window with five hot and five fresh slots.
func DefaultOptions() Options {
	return Options{
		Weights:    DefaultWeights(),
		Window:     7 * 24 * time.Hour,
		HotLimit:   5,
		FreshLimit: 5,
	}
}

// Result holds the two disjoint ranked lists.
type Result struct {
	Hot   []domain.Topic
	Fresh []domain.Topic
}

// Score computes the engagement score for a topic. Sources that don't expose
// reply counts report a precomputed EngagementScore instead; when present and
// the counters are all zero, it is used directly.
func Score(t domain.Topic, w Weights) float64 {
	if t.ReplyCount == 0 && t.LikeCount == 0 && t.ViewCount == 0 && t.EngagementScore > 0 {
		return t.EngagementScore
	}
	return float64(t.ReplyCount)*w.Reply + float64(t.LikeCount)*w.Like + float64(t.ViewCount)*w.View
}

// RankHotAndNew ranks topics into hot (top by score) and fresh (newest by
// CreatedAt, excluding hot winners). Pinned topics and topics whose last
// activity falls outside the window are excluded. Deterministic for a given
// input and now: ties break by later LastActivityAt, then RefID.
func RankHotAndNew(topics []domain.Topic, now time.Time, opts Options) Result {
	cutoff := now.Add(-opts.Window)

	eligible := make([]domain.Topic, 0, len(topics))
	for _, t := range topics {
		if t.Pinned && !opts.IncludePins {
			continue
		}
		if t.LastActivityAt.Before(cutoff) {
			continue
		}
		eligible = append(eligible, t)
	}

	byScore := make([]domain.Topic, len(eligible))
	copy(byScore, eligible)
	sort.SliceStable(byScore, func(i, j int) bool {
		si, sj := Score(byScore[i], opts.Weights), Score(byScore[j], opts.Weights)
		if si != sj {
			return si > sj
		}
		if !byScore[i].LastActivityAt.Equal(byScore[j].LastActivityAt) {
			return byScore[i].LastActivityAt.After(byScore[j].LastActivityAt)
		}
		return byScore[i].RefID < byScore[j].RefID
	})

	hotLimit := opts.HotLimit
	if hotLimit > len(byScore) {
		hotLimit = len(byScore)
	}
	hot := byScore[:hotLimit]

	taken := make(map[string]struct{}, len(hot))
	for _, t := range hot {
		taken[t.RefID] = struct{}{}
	}

	rest := make([]domain.Topic, 0, len(eligible))
	for _, t := range eligible {
		if _, ok := taken[t.RefID]; ok {
			continue
		}
		rest = append(rest, t)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		if !rest[i].CreatedAt.Equal(rest[j].CreatedAt) {
			return rest[i].CreatedAt.After(rest[j].CreatedAt)
		}
		return rest[i].RefID < rest[j].RefID
	})

	freshLimit := opts.FreshLimit
	if freshLimit > len(rest) {
		freshLimit = len(rest)
	}

	return Result{
		Hot:   append([]domain.Topic(nil), hot...),
		Fresh: append([]domain.Topic(nil), rest[:freshLimit]...),
	}
}
