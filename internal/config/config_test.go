package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.Workers)
	require.Equal(t, 3, cfg.HTTP.ConnectTimeoutSeconds)
	require.Equal(t, 10, cfg.HTTP.ReadTimeoutSeconds)
	require.Equal(t, 5, cfg.Sitemap.MaxDocuments)
	require.Equal(t, 1000, cfg.Sitemap.MaxURLsPerDoc)
	require.Equal(t, 50, cfg.Parser.MaxURLsToProcess)
	require.Equal(t, 5, cfg.Parser.FormScoreThreshold)
	require.False(t, cfg.AI.Enabled)
	require.Equal(t, "memory", cfg.DB.Provider)
	require.Contains(t, cfg.Parser.EmailExcludes, "example.com")
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  port: 9090
crawler:
  workers: 2
parser:
  form_score_threshold: 7
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2, cfg.Crawler.Workers)
	require.Equal(t, 7, cfg.Parser.FormScoreThreshold)
	// untouched keys keep their defaults
	require.Equal(t, 50, cfg.Parser.MaxURLsToProcess)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Crawler.Workers = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.AI.Enabled = true
	require.Error(t, bad.Validate())

	bad = cfg
	bad.DB.Provider = "postgres"
	require.Error(t, bad.Validate())
}
