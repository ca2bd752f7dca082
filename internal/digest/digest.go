// Package digest assembles periodic digest sections from cached topics.
// It is a pure consumer of rank: sections are built from a snapshot of
// entries, never from live upstream calls. Rendering (text, HTML, mail) is
// out of scope; the output is structured data a renderer can consume.
package digest

import (
	"strings"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/domain"
	"github.com/SovereignSignal/discusswatch/internal/rank"
)

// SectionKind identifies how a section selects its topics.
type SectionKind string

const (
	// SectionKeyword selects topics whose title or tags match configured
	// keywords.
	SectionKeyword SectionKind = "keyword"
	// SectionDelegate selects delegate and governance process threads.
	SectionDelegate SectionKind = "delegate"
	// SectionGeneral selects from everything left over.
	SectionGeneral SectionKind = "general"
)

// SectionSpec configures one digest section.
type SectionSpec struct {
	Title    string
	Kind     SectionKind
	Keywords []string
	Options  rank.Options
}

// Section is one ranked slice of the digest.
type Section struct {
	Title string         `json:"title"`
	Kind  SectionKind    `json:"kind"`
	Hot   []domain.Topic `json:"hot"`
	Fresh []domain.Topic `json:"fresh"`
}

// Digest is a built digest: ordered sections plus the build time the
// rankings were computed against.
type Digest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// delegateKeywords match governance process threads across forum naming
// conventions.
var delegateKeywords = []string{
	"delegate", "delegation", "steward", "governance call",
	"voting", "quorum", "proposal",
}

// DefaultSections returns the standing digest layout: a delegate section, a
// keyword section for the given focus terms, and a general catch-all. The
// delegate section weighs replies higher since process threads are
// discussion-driven; general keeps the default balance.
func DefaultSections(focus []string) []SectionSpec {
	delegateOpts := rank.DefaultOptions()
	delegateOpts.Weights = rank.Weights{Reply: 15, Like: 2, View: 1.0 / 1000.0}

	specs := []SectionSpec{
		{
			Title:    "Delegate & Governance",
			Kind:     SectionDelegate,
			Keywords: delegateKeywords,
			Options:  delegateOpts,
		},
	}
	if len(focus) > 0 {
		specs = append(specs, SectionSpec{
			Title:    "In Focus",
			Kind:     SectionKeyword,
			Keywords: focus,
			Options:  rank.DefaultOptions(),
		})
	}
	specs = append(specs, SectionSpec{
		Title:   "Around the Forums",
		Kind:    SectionGeneral,
		Options: rank.DefaultOptions(),
	})
	return specs
}

// Build assembles a digest from cache entries. Topics claimed by an earlier
// section are not offered to later ones, so each topic appears at most once.
func Build(entries []domain.CacheEntry, now time.Time, specs []SectionSpec) Digest {
	pool := make([]domain.Topic, 0, 64)
	for _, e := range entries {
		if e.Defunct {
			continue
		}
		pool = append(pool, e.Topics...)
	}

	d := Digest{GeneratedAt: now}
	claimed := make(map[string]struct{})

	for _, spec := range specs {
		candidates := selectCandidates(pool, spec, claimed)
		res := rank.RankHotAndNew(candidates, now, spec.Options)

		for _, t := range res.Hot {
			claimed[t.RefID] = struct{}{}
		}
		for _, t := range res.Fresh {
			claimed[t.RefID] = struct{}{}
		}

		d.Sections = append(d.Sections, Section{
			Title: spec.Title,
			Kind:  spec.Kind,
			Hot:   res.Hot,
			Fresh: res.Fresh,
		})
	}
	return d
}

func selectCandidates(pool []domain.Topic, spec SectionSpec, claimed map[string]struct{}) []domain.Topic {
	out := make([]domain.Topic, 0, len(pool))
	for _, t := range pool {
		if _, ok := claimed[t.RefID]; ok {
			continue
		}
		if spec.Kind == SectionGeneral || matchesKeywords(t, spec.Keywords) {
			out = append(out, t)
		}
	}
	return out
}

func matchesKeywords(t domain.Topic, keywords []string) bool {
	title := strings.ToLower(t.Title)
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(title, kw) {
			return true
		}
		for _, tag := range t.Tags {
			if strings.Contains(strings.ToLower(tag), kw) {
				return true
			}
		}
	}
	return false
}
