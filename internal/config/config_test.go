package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "deepquery.sqlite3", cfg.DBPath)
	assert.Equal(t, "panako query", cfg.EngineQuery)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 2*time.Minute, cfg.QueryTimeout)
	assert.Equal(t, models.DefaultParams(), cfg.Params())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.LibraryRoot)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEEPQUERY_DB_PATH", "/var/lib/deepquery/runs.db")
	t.Setenv("DEEPQUERY_ENGINE_COMMAND", "java -jar panako.jar query")
	t.Setenv("DEEPQUERY_SEGMENT_LENGTH", "20")
	t.Setenv("DEEPQUERY_QUERY_TIMEOUT", "45s")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/deepquery/runs.db", cfg.DBPath)
	assert.Equal(t, "java -jar panako.jar query", cfg.EngineQuery)
	assert.Equal(t, 20.0, cfg.SegmentLength)
	assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	yaml := "overlap: 5\nmin_segments: 3\nlog_level: debug\nlibrary_root: /srv/music\nallow_origins:\n  - https://app.example\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Overlap)
	assert.Equal(t, 3, cfg.MinSegments)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/music", cfg.LibraryRoot)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
}

func TestLoadDiscoversWorkingDirFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deepquery.yaml"), []byte("cache_size: 7\n"), 0o644))

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CacheSize)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEEPQUERY_OVERLAP", "15")

	_, err := Load(viper.New(), "")
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load(viper.New(), "/nonexistent/deepquery.yaml")
	assert.Error(t, err)
}
