// Package sources provides loading and validation of the source registry
// from a YAML configuration file.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

var (
	// ErrNoSources indicates no sources were found in the configuration.
	ErrNoSources = errors.New("no sources found in configuration")
	// ErrUnknownSource indicates a lookup for a source ID that is not registered.
	ErrUnknownSource = errors.New("unknown source")
)

// registryFile is the on-disk shape of the source registry.
type registryFile struct {
	Sources []domain.SourceDescriptor `yaml:"sources"`
}

// Registry holds the immutable set of configured sources.
type Registry struct {
	byID  map[string]domain.SourceDescriptor
	order []string
}

// Load reads a registry from the YAML file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw YAML.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	if len(file.Sources) == 0 {
		return nil, ErrNoSources
	}

	reg := &Registry{
		byID:  make(map[string]domain.SourceDescriptor, len(file.Sources)),
		order: make([]string, 0, len(file.Sources)),
	}

	for i := range file.Sources {
		src := file.Sources[i]
		if err := validate(src); err != nil {
			return nil, fmt.Errorf("source %q: %w", src.ID, err)
		}
		if _, dup := reg.byID[src.ID]; dup {
			return nil, fmt.Errorf("source %q: duplicate id", src.ID)
		}
		reg.byID[src.ID] = src
		reg.order = append(reg.order, src.ID)
	}

	return reg, nil
}

// validate checks required fields on a single descriptor.
func validate(src domain.SourceDescriptor) error {
	if src.ID == "" {
		return errors.New("missing id")
	}
	if src.DisplayName == "" {
		return errors.New("missing display_name")
	}
	if !src.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", src.Kind)
	}
	if src.Tier < domain.TierMajor || src.Tier > domain.TierEmerging {
		return fmt.Errorf("tier %d out of range", src.Tier)
	}

	u, err := url.Parse(src.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", src.BaseURL)
	}

	return nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (domain.SourceDescriptor, error) {
	src, ok := r.byID[id]
	if !ok {
		return domain.SourceDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return src, nil
}

// All returns every configured source in file order.
func (r *Registry) All() []domain.SourceDescriptor {
	out := make([]domain.SourceDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Enabled returns enabled sources in file order.
func (r *Registry) Enabled() []domain.SourceDescriptor {
	out := make([]domain.SourceDescriptor, 0, len(r.order))
	for _, id := range r.order {
		if src := r.byID[id]; src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// Categories returns the distinct category tags across all sources, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]struct{})
	for _, src := range r.byID {
		if src.CategoryTag != "" {
			seen[src.CategoryTag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of configured sources.
func (r *Registry) Len() int {
	return len(r.byID)
}
