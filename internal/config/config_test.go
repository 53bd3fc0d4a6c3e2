package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, AuthAPIKey, cfg.AuthMode)
	assert.Equal(t, SyncStore, cfg.SyncMode)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 2*time.Second, cfg.SuggestionDebounce)
	assert.Equal(t, 100, cfg.ActivityLimit)
	assert.Equal(t, 50, cfg.CompletedOperationLimit)
	assert.Equal(t, 720*time.Hour, cfg.Retention)
	assert.Equal(t, workspace.KnownModes, cfg.Modes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("SYNC_INTERVAL", "5s")
	t.Setenv("MAX_WORKSPACES", "12")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 12, cfg.MaxWorkspaces)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOriginList())
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		os.Clearenv()
		cfg, err := Load()
		require.NoError(t, err)
		cfg.APIKey = "k"
		return cfg
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.APIKey = ""
	assert.ErrorContains(t, cfg.Validate(), "API_KEY")

	cfg = base()
	cfg.AuthMode = AuthJWT
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg = base()
	cfg.AuthMode = "magic"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.SyncMode = SyncHTTP
	assert.ErrorContains(t, cfg.Validate(), "SYNC_URL")

	cfg = base()
	cfg.MaxWorkspaces = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.RetentionInterval = 0
	assert.ErrorContains(t, cfg.Validate(), "RETENTION_INTERVAL")

	cfg = base()
	cfg.Retention = -time.Hour
	assert.ErrorContains(t, cfg.Validate(), "RETENTION")
}

func TestWorkspaceConfig(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	wc := cfg.Workspace()
	assert.Equal(t, workspace.DefaultConfig(), wc)
}

const sampleCatalog = `
modes: [workspace, translation, documents]
tracker:
  sync_interval: 1m
  suggestion_debounce: 500ms
  translation_threshold: 5
limits:
  activities: 20
sync:
  mode: http
  url: ${TEST_SYNC_URL}
  token: $TEST_SYNC_TOKEN
retention:
  max_age: 48h
`

func TestParseCatalog_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_SYNC_URL", "https://sync.example/v1")
	t.Setenv("TEST_SYNC_TOKEN", "tok")

	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, []string{"workspace", "translation", "documents"}, cat.Modes)
	assert.Equal(t, time.Minute, cat.Tracker.SyncInterval)
	assert.Equal(t, 500*time.Millisecond, cat.Tracker.SuggestionDebounce)
	assert.Equal(t, "https://sync.example/v1", cat.Sync.URL)
	assert.Equal(t, "tok", cat.Sync.Token)
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("modes: [\"\"]"))
	assert.Error(t, err)
	_, err = ParseCatalog([]byte("tracker: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_WithCatalog(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))
	t.Setenv("WORKSPACE_CATALOG_PATH", path)
	t.Setenv("TEST_SYNC_URL", "https://sync.example/v1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []workspace.Mode{"workspace", "translation", "documents"}, cfg.Modes)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 5, cfg.TranslationThreshold)
	assert.Equal(t, 20, cfg.ActivityLimit)
	assert.Equal(t, 50, cfg.CompletedOperationLimit, "unset catalog values keep env defaults")
	assert.Equal(t, SyncHTTP, cfg.SyncMode)
	assert.Equal(t, "https://sync.example/v1", cfg.SyncURL)
	assert.Equal(t, 48*time.Hour, cfg.Retention)
}

func TestLoad_MissingCatalog(t *testing.T) {
	t.Setenv("WORKSPACE_CATALOG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
