package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.RequestDelay)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
	assert.True(t, cfg.PreferHTTPS)
	assert.True(t, cfg.ExcludeTor)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERXNG_REQUEST_DELAY", "250ms")
	t.Setenv("SERXNG_EXCLUDE_TOR", "false")
	t.Setenv("SERXNG_KNOWN_ENGINES", "duckduckgo, brave ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.RequestDelay)
	assert.False(t, cfg.ExcludeTor)
	assert.Equal(t, []string{"duckduckgo", "brave"}, cfg.KnownEngines)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SERXNG_DEFAULT_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"- url: https://searx.example.org\n"+
			"- url: http://searxabcdef.onion\n"+
			"  tor: true\n"), 0644))

	seeds, err := LoadSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "https://searx.example.org", seeds[0].URL)
	assert.False(t, seeds[0].Tor)
	assert.True(t, seeds[1].Tor)
}

func TestLoadSeeds_MissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- tor: true\n"), 0644))

	_, err := LoadSeeds(path)
	require.Error(t, err)
}

func TestLoadSeeds_MissingFile(t *testing.T) {
	_, err := LoadSeeds(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
