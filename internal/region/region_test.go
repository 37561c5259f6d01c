package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByNameDefaults(t *testing.T) {
	c, err := New("name", nil)
	require.NoError(t, err)

	cases := map[string]struct {
		region model.Region
		ok     bool
	}{
		"ticket-eu-0042":   {model.RegionEU, true},
		"TICKET-ASIA-7":    {model.RegionASIA, true},
		"ticket-na-12":     {"", false},
		"eu-asia-conflict": {model.RegionEU, true},
	}
	for name, want := range cases {
		got, ok := c.Classify(Input{ChannelName: name})
		assert.Equal(t, want.ok, ok, name)
		assert.Equal(t, want.region, got, name)
	}
}

func TestByMention(t *testing.T) {
	c, err := New("mention", nil)
	require.NoError(t, err)

	got, ok := c.Classify(Input{ChannelName: "ticket-eu-1", RoleNames: []string{"Staff", "Asia Support"}})
	assert.True(t, ok)
	assert.Equal(t, model.RegionASIA, got)

	_, ok = c.Classify(Input{ChannelName: "ticket-eu-1"})
	assert.False(t, ok, "mention strategy ignores the channel name")
}

func TestChainOrder(t *testing.T) {
	c, err := New("mention,name", nil)
	require.NoError(t, err)
	assert.True(t, UsesRoles(c))

	got, ok := c.Classify(Input{ChannelName: "ticket-eu-1", RoleNames: []string{"asia-team"}})
	assert.True(t, ok)
	assert.Equal(t, model.RegionASIA, got)

	got, ok = c.Classify(Input{ChannelName: "ticket-eu-1"})
	assert.True(t, ok)
	assert.Equal(t, model.RegionEU, got)
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New("geoip", nil)
	assert.Error(t, err)

	c, err := New("name", nil)
	require.NoError(t, err)
	assert.False(t, UsesRoles(c))
}

func TestFromConfigRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategy: name
rules:
  - region: na
    keywords: ["us-", "na-", "canada"]
  - region: EU
    keywords: ["europe"]
`), 0o600))

	c, err := FromConfig("mention", path)
	require.NoError(t, err)

	got, ok := c.Classify(Input{ChannelName: "ticket-us-5"})
	assert.True(t, ok)
	assert.Equal(t, model.RegionNA, got)

	_, ok = c.Classify(Input{ChannelName: "ticket-eu-5"})
	assert.False(t, ok, "file rules replace the defaults")
}

func TestLoadRulesValidation(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - region: MARS\n    keywords: [mars]\n"), 0o600))
	_, err := LoadRules(bad)
	assert.ErrorContains(t, err, "unknown region")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules:\n  - region: EU\n"), 0o600))
	_, err = LoadRules(empty)
	assert.ErrorContains(t, err, "no keywords")

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
