package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
db:
  dsn: postgres://localhost/channelindex
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "channels", cfg.DB.Table)
	require.Equal(t, "https://open.video/channels-sitemap.xml", cfg.Sitemap.URL)
	require.Equal(t, "channelindex-bot/0.1", cfg.Crawler.UserAgent)
	require.Equal(t, 500*time.Millisecond, cfg.Delay())
	require.Equal(t, 30*time.Second, cfg.SitemapTimeout())
	require.Equal(t, 15*time.Second, cfg.PageTimeout())
	require.Equal(t, "local", cfg.Export.Provider)
	require.Equal(t, "channels_index.json", cfg.Export.Object)
	require.True(t, cfg.Logging.Development)
	require.Empty(t, cfg.Cron.Secret)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
db:
  dsn: postgres://localhost/channelindex
  table: video_channels
sitemap:
  url: https://example.com/sitemap.xml
crawler:
  delay_ms: 50
  page_timeout_seconds: 5
cron:
  secret: hunter2
export:
  provider: gcs
  gcs_bucket: channelindex-exports
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "video_channels", cfg.DB.Table)
	require.Equal(t, "https://example.com/sitemap.xml", cfg.Sitemap.URL)
	require.Equal(t, 50*time.Millisecond, cfg.Delay())
	require.Equal(t, 5*time.Second, cfg.PageTimeout())
	require.Equal(t, "hunter2", cfg.Cron.Secret)
	require.Equal(t, "gcs", cfg.Export.Provider)
	require.Equal(t, "channelindex-exports", cfg.Export.GCSBucket)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080},
			DB:      DBConfig{DSN: "postgres://localhost/channelindex"},
			Sitemap: SitemapConfig{URL: "https://open.video/channels-sitemap.xml"},
			Crawler: CrawlerConfig{
				SitemapTimeoutSeconds: 30,
				PageTimeoutSeconds:    15,
			},
			Export: ExportConfig{Provider: "local"},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.DB.DSN = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Sitemap.URL = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Crawler.DelayMs = -1
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Crawler.PageTimeoutSeconds = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Export.Provider = "s3"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Export.Provider = "gcs"
	cfg.Export.GCSBucket = ""
	require.Error(t, cfg.Validate())
}
