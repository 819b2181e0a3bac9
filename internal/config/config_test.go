package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
store:
  path: `+filepath.Join(dir, "store.sqlite")+`
ai:
  url: http://annotator.local/api
  timeout: 5s
logging:
  level: debug
`), 0o600))

	t.Setenv("QGENIE_LOGGING_FORMAT", "console")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "store.sqlite"), cfg.Store.Path)
	assert.Equal(t, "http://annotator.local/api", cfg.AI.URL)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "http", cfg.AI.Provider)
	assert.Equal(t, 10*time.Second, cfg.Store.BusyTimeout)
	assert.Equal(t, "http://localhost:35816/api/v1/chat", cfg.AI.ChatURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
