// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// It is built once at startup and passed explicitly into component
// constructors; nothing reads ambient global state afterwards.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sitemap   SitemapConfig   `mapstructure:"sitemap"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Search    SearchConfig    `mapstructure:"search"`
	AI        AIConfig        `mapstructure:"ai"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs worker pool and per-site crawl behavior.
type CrawlerConfig struct {
	Workers          int    `mapstructure:"workers"`
	QueueDepth       int    `mapstructure:"queue_depth"`
	UserAgent        string `mapstructure:"user_agent"`
	PageConcurrency  int    `mapstructure:"page_concurrency"`
	BatchConcurrency int    `mapstructure:"batch_concurrency"`
}

// HTTPConfig configures fetch timeout and retry behavior.
type HTTPConfig struct {
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int `mapstructure:"read_timeout_seconds"`
	MaxRetries            int `mapstructure:"max_retries"`
	BackoffInitialMs      int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs          int `mapstructure:"backoff_max_ms"`
}

// SitemapConfig bounds sitemap traversal per site.
type SitemapConfig struct {
	MaxDocuments    int `mapstructure:"max_documents"`
	MaxURLsPerDoc   int `mapstructure:"max_urls_per_sitemap"`
	MaxDocumentSize int `mapstructure:"max_size_mb"`
}

// ParserConfig governs the extraction pipeline.
type ParserConfig struct {
	MaxURLsToProcess   int      `mapstructure:"max_urls_to_process"`
	FormScoreThreshold int      `mapstructure:"form_score_threshold"`
	EmailExcludes      []string `mapstructure:"email_excludes"`
}

// SearchConfig holds search provider credentials.
type SearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	CX       string `mapstructure:"cx"`
	Endpoint string `mapstructure:"endpoint"`
}

// AIConfig controls the optional AI form validator.
type AIConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RequestsPerSec float64 `mapstructure:"requests_per_second"`
}

// HeadlessConfig configures the optional headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinHTMLBytes  int  `mapstructure:"min_html_bytes"`
}

// DBConfig controls access to the relational task store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ArchiveConfig configures optional raw page snapshot storage.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig holds metadata for task completion notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONTACTCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "contactcrawler/1.0")
	v.SetDefault("crawler.page_concurrency", 4)
	v.SetDefault("crawler.batch_concurrency", 3)
	v.SetDefault("http.connect_timeout_seconds", 3)
	v.SetDefault("http.read_timeout_seconds", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("sitemap.max_documents", 5)
	v.SetDefault("sitemap.max_urls_per_sitemap", 1000)
	v.SetDefault("sitemap.max_size_mb", 10)
	v.SetDefault("parser.max_urls_to_process", 50)
	v.SetDefault("parser.form_score_threshold", 5)
	v.SetDefault("parser.email_excludes", []string{
		".png", ".jpg", ".jpeg", ".gif", ".css", ".js",
		"example.com", "test@", "@example", "noreply@",
	})
	v.SetDefault("search.endpoint", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout_seconds", 10)
	v.SetDefault("ai.requests_per_second", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.min_html_bytes", 2000)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("publisher.provider", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.HTTP.ConnectTimeoutSeconds <= 0 || c.HTTP.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("http timeouts must be > 0")
	}
	if c.Sitemap.MaxDocuments <= 0 {
		return fmt.Errorf("sitemap.max_documents must be > 0")
	}
	if c.Parser.MaxURLsToProcess <= 0 {
		return fmt.Errorf("parser.max_urls_to_process must be > 0")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key must be set when ai is enabled")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ConnectTimeout returns the dial timeout as a duration.
func (c HTTPConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// ReadTimeout returns the per-request timeout as a duration.
func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}
