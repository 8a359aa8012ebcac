package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Site           SiteConfig           `mapstructure:"site"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	SMTP           SMTPConfig           `mapstructure:"smtp"`
	Sitemap        SitemapConfig        `mapstructure:"sitemap"`
	BrokenLink     BrokenLinkConfig     `mapstructure:"broken_link"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type SiteConfig struct {
	Name string `mapstructure:"name"`
	// URL is the public address of the site; its host decides whether a
	// referrer is internal. Empty means "use the Host of each request".
	URL string `mapstructure:"url"`
	// Upstream is the origin the HTTP front proxies to.
	Upstream string `mapstructure:"upstream"`
}

type NotificationConfig struct {
	RecipientEmail string `mapstructure:"recipient_email"`
	AdminEmail     string `mapstructure:"admin_email"`
	MaxPerHour     int    `mapstructure:"max_per_hour"` // 0 = unlimited
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"` // empty = log-only delivery
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	UseTLS   bool   `mapstructure:"use_tls"` // implicit TLS (port 465); otherwise STARTTLS when offered
}

type SitemapConfig struct {
	URL          string        `mapstructure:"url"` // empty = sitemap monitoring disabled
	Schedule     string        `mapstructure:"schedule"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	CheckOnStart bool          `mapstructure:"check_on_start"`
}

type BrokenLinkConfig struct {
	IgnoreRules []string `mapstructure:"ignore_rules"`
}

type RateLimitConfig struct {
	Policy        string        `mapstructure:"policy"`  // "cooldown" or "none"
	Backend       string        `mapstructure:"backend"` // "memory" or "redis"
	Cooldown      time.Duration `mapstructure:"cooldown"`
	HashAlgorithm string        `mapstructure:"hash_algorithm"`
	OnStoreError  string        `mapstructure:"on_store_error"` // "allow" or "deny"
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// NotificationSettings is the subset of configuration read at decision time.
type NotificationSettings struct {
	RecipientEmail string
	AdminEmail     string
	SiteName       string
	SiteURL        string
	SitemapURL     string
}

func (c *Config) NotificationSettings() NotificationSettings {
	return NotificationSettings{
		RecipientEmail: c.Notification.RecipientEmail,
		AdminEmail:     c.Notification.AdminEmail,
		SiteName:       c.Site.Name,
		SiteURL:        c.Site.URL,
		SitemapURL:     c.Sitemap.URL,
	}
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
