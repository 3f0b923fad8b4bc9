package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serp-rank-tracker/internal/config"
)

func TestDefaultRegions(t *testing.T) {
	t.Parallel()

	regions, err := DefaultRegions()
	require.NoError(t, err)
	require.Equal(t, "Russia", regions["RU"].Name)

	lang, ok := regions.Language("FR")
	require.True(t, ok)
	require.Equal(t, "fr", lang)

	_, ok = regions.Language("XX")
	require.False(t, ok)
}

func TestLoadRegionsFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("us: {name: USA, language: en}\nbr: {name: Brasil, language: pt-BR}\n"), 0o600))

	regions, err := LoadRegions(path)
	require.NoError(t, err)
	require.Len(t, regions, 2)
	require.Equal(t, "pt-BR", regions["BR"].Language)

	_, err = LoadRegions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseRegionsRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseRegions([]byte("- just\n- a list\n"))
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	s, err := FromConfig(config.TrackerConfig{
		Provider:       " xmlriver ",
		Credentials:    "user:key",
		DelayMs:        2500,
		RetryOnFailure: true,
		Timezone:       "Europe/Moscow",
	})
	require.NoError(t, err)
	require.Equal(t, "xmlriver", s.ProviderID)
	require.Equal(t, "user:key", s.Credentials)
	require.Equal(t, 2500*time.Millisecond, s.Delay)
	require.True(t, s.RetryOnFailure)
	require.Equal(t, "Europe/Moscow", s.Location.String())
	require.NotEmpty(t, s.Regions)

	_, err = FromConfig(config.TrackerConfig{Timezone: "Nowhere/Land"})
	require.Error(t, err)
}
