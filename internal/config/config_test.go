package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 5000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, "th", cfg.Pipeline.TargetLanguage)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	assert.Equal(t, []string{"today", "trends"}, cfg.Scheduler.Jobs)
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "thehackernews", cfg.Sites[0].Adapter)
	assert.Len(t, cfg.Sites[0].Categories, 4)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  level: debug
database:
  driver: postgres
  dsn: postgres://file
scheduler:
  cronExpression: "0 * * * *"
  timezone: Asia/Bangkok
pipeline:
  workers: 8
  imageTimeout: 5s
translator:
  provider: chatgpt
  model: gpt-4o-mini
sites:
  - name: example
    adapter: generic
    options:
      linkSelector: a.post
    categories:
      - name: Home
        url: https://example.com/
        incremental: true
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env")
	t.Setenv(chatGPTAPIKeyEnv, "sk-test")
	t.Setenv(kafkaBrokersEnv, "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "0 * * * *", cfg.Scheduler.CronExpression)
	assert.Equal(t, "Asia/Bangkok", cfg.Scheduler.Location().String())
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.ImageTimeout)
	assert.Equal(t, 5000, cfg.Pipeline.ChunkSize, "unset fields keep defaults")
	assert.Equal(t, "sk-test", cfg.Translator.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "a.post", cfg.Sites[0].Options["linkSelector"])
	assert.True(t, cfg.Sites[0].Categories[0].Incremental)
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [oops"), 0o600))
	t.Setenv(configPathEnv, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Database.Driver = "oracle"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Images.Backend = "s3"
	assert.Error(t, bad.Validate(), "s3 needs a bucket")

	bad = Default()
	bad.Pipeline.ChunkSize = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Scheduler.Jobs = []string{"today", "nightly"}
	assert.Error(t, bad.Validate())
}

func TestIntOption(t *testing.T) {
	site := SiteConfig{Options: map[string]string{"maxPages": "3", "broken": "x"}}
	assert.Equal(t, 3, site.IntOption("maxPages", 0))
	assert.Equal(t, 7, site.IntOption("broken", 7))
	assert.Equal(t, 1, site.IntOption("missing", 1))
}
