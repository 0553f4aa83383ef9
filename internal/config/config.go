package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "NEWS_HARVESTER_CONFIG"

	logLevelEnv           = "LOG_LEVEL"
	httpAddrEnv           = "HTTP_ADDR"
	databaseDriverEnv     = "DATABASE_DRIVER"
	databaseDSNEnv        = "DATABASE_DSN"
	translatorProviderEnv = "TRANSLATOR_PROVIDER"
	googleTranslateKeyEnv = "GOOGLE_TRANSLATE_API_KEY"
	chatGPTAPIKeyEnv      = "CHATGPT_API_KEY"
	chatGPTModelEnv       = "CHATGPT_MODEL"
	libreTranslateKeyEnv  = "LIBRETRANSLATE_API_KEY"
	redisAddrEnv          = "REDIS_ADDR"
	redisPasswordEnv      = "REDIS_PASS"
	kafkaBrokersEnv       = "KAFKA_BOOTSTRAP_SERVERS"
	telegramTokenEnv      = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv     = "TELEGRAM_CHAT_ID"
	s3BucketEnv           = "IMAGES_S3_BUCKET"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Translator    TranslatorConfig   `yaml:"translator"`
	Images        ImagesConfig       `yaml:"images"`
	Redis         RedisConfig        `yaml:"redis"`
	Kafka         KafkaConfig        `yaml:"kafka"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig configures the query API listener.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	Release bool   `yaml:"release"`
}

// DatabaseConfig selects the article store. Driver is postgres, sqlite3 or mongo.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

// SchedulerConfig defines when the pipeline should run. Jobs run in order on every
// trigger: today, backfill, reclassify or trends.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	Disabled       bool           `yaml:"disabled"`
	Jobs           []string       `yaml:"jobs"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// FetcherConfig picks the page fetching engine. Engine is http or chrome.
type FetcherConfig struct {
	Engine      string        `yaml:"engine"`
	UserAgent   string        `yaml:"userAgent"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxSessions int           `yaml:"maxSessions"`
	Headful     bool          `yaml:"headful"`
}

// PipelineConfig bounds per-run concurrency and per-operation timeouts.
type PipelineConfig struct {
	Workers          int           `yaml:"workers"`
	TargetLanguage   string        `yaml:"targetLanguage"`
	ChunkSize        int           `yaml:"chunkSize"`
	ImageTimeout     time.Duration `yaml:"imageTimeout"`
	TranslateTimeout time.Duration `yaml:"translateTimeout"`
	MaxImageBytes    int64         `yaml:"maxImageBytes"`
	MaxImageWidth    int           `yaml:"maxImageWidth"`
}

// TranslatorConfig selects the remote translation backend: google, chatgpt or libretranslate.
// An empty Endpoint falls back to the provider's public API.
type TranslatorConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"apiKey"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// ImagesConfig selects where archived images are written. Backend is file or s3.
type ImagesConfig struct {
	Backend   string   `yaml:"backend"`
	Directory string   `yaml:"directory"`
	S3        S3Config `yaml:"s3"`
}

// S3Config describes the bucket used by the s3 image backend.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// RedisConfig enables the cross-process run lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockKey  string        `yaml:"lockKey"`
	LockTTL  time.Duration `yaml:"lockTtl"`
}

// KafkaConfig enables created-article events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SiteConfig describes a single site with its adapter.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Adapter    string            `yaml:"adapter"`
	Categories []CategoryConfig  `yaml:"categories"`
	Trending   []string          `yaml:"trending"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig is one listing endpoint and the passes that walk it.
type CategoryConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Incremental bool   `yaml:"incremental"`
	Backfill    bool   `yaml:"backfill"`
	Reclassify  bool   `yaml:"reclassify"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		fileCfg, err := Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	return fileCfg, nil
}

// Validate rejects configurations the application cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3", "mongo":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Translator.Provider {
	case "", "google", "chatgpt", "libretranslate":
	default:
		return fmt.Errorf("config: unsupported translator provider %q", c.Translator.Provider)
	}
	switch c.Fetcher.Engine {
	case "http", "chrome":
	default:
		return fmt.Errorf("config: unsupported fetcher engine %q", c.Fetcher.Engine)
	}
	switch c.Images.Backend {
	case "file", "s3":
	default:
		return fmt.Errorf("config: unsupported image backend %q", c.Images.Backend)
	}
	if c.Images.Backend == "s3" && c.Images.S3.Bucket == "" {
		return fmt.Errorf("config: s3 image backend requires a bucket")
	}
	for _, job := range c.Scheduler.Jobs {
		switch job {
		case "today", "backfill", "reclassify", "trends":
		default:
			return fmt.Errorf("config: unknown scheduler job %q", job)
		}
	}
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("config: pipeline.chunkSize must be positive")
	}
	for _, site := range c.Sites {
		if site.Name == "" || site.Adapter == "" {
			return fmt.Errorf("config: every site needs a name and an adapter")
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(translatorProviderEnv); v != "" {
		c.Translator.Provider = v
	}

	switch c.Translator.Provider {
	case "google":
		if v := os.Getenv(googleTranslateKeyEnv); v != "" {
			c.Translator.APIKey = v
		}
	case "chatgpt":
		if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
			c.Translator.APIKey = v
		}
		if v := os.Getenv(chatGPTModelEnv); v != "" {
			c.Translator.Model = v
		}
	case "libretranslate":
		if v := os.Getenv(libreTranslateKeyEnv); v != "" {
			c.Translator.APIKey = v
		}
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(s3BucketEnv); v != "" {
		c.Images.Backend = "s3"
		c.Images.S3.Bucket = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	base.HTTP.Release = base.HTTP.Release || override.HTTP.Release

	if override.Database.Driver != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	base.Scheduler.Disabled = base.Scheduler.Disabled || override.Scheduler.Disabled
	if len(override.Scheduler.Jobs) > 0 {
		base.Scheduler.Jobs = override.Scheduler.Jobs
	}

	base.Fetcher = mergeFetcher(base.Fetcher, override.Fetcher)
	base.Pipeline = mergePipeline(base.Pipeline, override.Pipeline)

	if override.Translator.Provider != "" {
		base.Translator = override.Translator
	}

	if override.Images.Backend != "" {
		base.Images.Backend = override.Images.Backend
	}
	if override.Images.Directory != "" {
		base.Images.Directory = override.Images.Directory
	}
	if override.Images.S3.Bucket != "" {
		base.Images.S3 = override.Images.S3
	}

	if override.Redis.Addr != "" {
		base.Redis.Addr = override.Redis.Addr
		base.Redis.Password = override.Redis.Password
		base.Redis.DB = override.Redis.DB
	}
	if override.Redis.LockKey != "" {
		base.Redis.LockKey = override.Redis.LockKey
	}
	if override.Redis.LockTTL > 0 {
		base.Redis.LockTTL = override.Redis.LockTTL
	}

	if len(override.Kafka.Brokers) > 0 {
		base.Kafka.Brokers = override.Kafka.Brokers
	}
	if override.Kafka.Topic != "" {
		base.Kafka.Topic = override.Kafka.Topic
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func mergeFetcher(base, override FetcherConfig) FetcherConfig {
	if override.Engine != "" {
		base.Engine = override.Engine
	}
	if override.UserAgent != "" {
		base.UserAgent = override.UserAgent
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	if override.MaxSessions > 0 {
		base.MaxSessions = override.MaxSessions
	}
	base.Headful = base.Headful || override.Headful
	return base
}

func mergePipeline(base, override PipelineConfig) PipelineConfig {
	if override.Workers > 0 {
		base.Workers = override.Workers
	}
	if override.TargetLanguage != "" {
		base.TargetLanguage = override.TargetLanguage
	}
	if override.ChunkSize > 0 {
		base.ChunkSize = override.ChunkSize
	}
	if override.ImageTimeout > 0 {
		base.ImageTimeout = override.ImageTimeout
	}
	if override.TranslateTimeout > 0 {
		base.TranslateTimeout = override.TranslateTimeout
	}
	if override.MaxImageBytes > 0 {
		base.MaxImageBytes = override.MaxImageBytes
	}
	if override.MaxImageWidth > 0 {
		base.MaxImageWidth = override.MaxImageWidth
	}
	return base
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "file:news.db?_busy_timeout=5000"},
		Scheduler: SchedulerConfig{
			CronExpression: "*/15 * * * *",
			Timezone:       defaultTimezone,
			Jobs:           []string{"today", "trends"},
			location:       tz,
		},
		Fetcher: FetcherConfig{
			Engine:      "http",
			UserAgent:   "NewsHarvester/1.0",
			Timeout:     30 * time.Second,
			MaxSessions: 4,
		},
		Pipeline: PipelineConfig{
			Workers:          4,
			TargetLanguage:   "th",
			ChunkSize:        5000,
			ImageTimeout:     20 * time.Second,
			TranslateTimeout: 30 * time.Second,
			MaxImageBytes:    10 << 20,
			MaxImageWidth:    1600,
		},
		Translator: TranslatorConfig{
			Provider: "google",
		},
		Images: ImagesConfig{Backend: "file", Directory: "images"},
		Redis: RedisConfig{
			LockKey: "newsharvester:pipeline:lock",
			LockTTL: time.Hour,
		},
		Kafka: KafkaConfig{Topic: "news-articles-created"},
		Sites: []SiteConfig{
			{
				Name:    "thehackernews",
				Adapter: "thehackernews",
				Categories: []CategoryConfig{
					{Name: "Home", URL: "https://thehackernews.com/", Incremental: true},
					{Name: "Data Breach", URL: "https://thehackernews.com/search/label/data%20breach", Backfill: true},
					{Name: "CyberAttack", URL: "https://thehackernews.com/search/label/Cyber%20Attack", Backfill: true, Reclassify: true},
					{Name: "Vulnerability", URL: "https://thehackernews.com/search/label/Vulnerability", Backfill: true, Reclassify: true},
				},
				Trending: []string{"https://thehackernews.com/"},
				Options:  map[string]string{"excludeLinks": "thn.news"},
			},
		},
	}
}

// Default returns the built-in configuration with the timezone bound.
func Default() Config {
	return defaultConfig()
}

// IntOption reads an integer site option, falling back to def.
func (s SiteConfig) IntOption(key string, def int) int {
	if v, ok := s.Options[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
