package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

const validYAML = `sources:
  - id: ethresearch
    display_name: Ethereum Research
    base_url: https://ethresear.ch
    kind: discourse-forum
    category_tag: ethereum
    tier: 1
    enabled: true
  - id: ens-snapshot
    display_name: ENS Snapshot
    base_url: https://snapshot.org/#/ens.eth
    kind: snapshot-space
    category_tag: ens
    tier: 2
    enabled: false
`

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	src, err := reg.Get("ethresearch")
	require.NoError(t, err)
	assert.Equal(t, domain.KindDiscourse, src.Kind)
	assert.Equal(t, domain.TierMajor, src.Tier)
	assert.True(t, src.Enabled)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty file", ""},
		{"no sources key", "other: true"},
		{"not yaml", "{{{{"},
		{"missing id", `sources:
  - display_name: X
    base_url: https://x.org
    kind: discourse-forum
    tier: 1`},
		{"missing display name", `sources:
  - id: x
    base_url: https://x.org
    kind: discourse-forum
    tier: 1`},
		{"bad kind", `sources:
  - id: x
    display_name: X
    base_url: https://x.org
    kind: mailing-list
    tier: 1`},
		{"tier out of range", `sources:
  - id: x
    display_name: X
    base_url: https://x.org
    kind: discourse-forum
    tier: 4`},
		{"relative url", `sources:
  - id: x
    display_name: X
    base_url: not-a-url
    kind: discourse-forum
    tier: 1`},
		{"duplicate id", `sources:
  - id: x
    display_name: X
    base_url: https://x.org
    kind: discourse-forum
    tier: 1
  - id: x
    display_name: X2
    base_url: https://x2.org
    kind: discourse-forum
    tier: 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestGet_UnknownSource(t *testing.T) {
	reg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	_, err = reg.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestAll_PreservesFileOrder(t *testing.T) {
	reg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "ethresearch", all[0].ID)
	assert.Equal(t, "ens-snapshot", all[1].ID)
}

func TestEnabled_FiltersDisabled(t *testing.T) {
	reg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "ethresearch", enabled[0].ID)
}

func TestCategories(t *testing.T) {
	reg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"ens", "ethereum"}, reg.Categories())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}
