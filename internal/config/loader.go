package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"sitewatch/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvPrefix("SITEWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return decode()
}

func decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("site.name", constants.ServiceName)
	viper.SetDefault("site.url", "")
	viper.SetDefault("site.upstream", "")

	viper.SetDefault("notification.recipient_email", "")
	viper.SetDefault("notification.admin_email", "")
	viper.SetDefault("notification.max_per_hour", 0)

	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", constants.DefaultSMTPPort)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
	viper.SetDefault("smtp.from_name", "")
	viper.SetDefault("smtp.use_tls", false)

	viper.SetDefault("sitemap.url", "")
	viper.SetDefault("sitemap.schedule", constants.DefaultSitemapSchedule)
	viper.SetDefault("sitemap.timeout", constants.DefaultSitemapTimeout)
	viper.SetDefault("sitemap.max_redirects", constants.DefaultSitemapMaxRedirects)
	viper.SetDefault("sitemap.check_on_start", false)

	viper.SetDefault("broken_link.ignore_rules", []string{})

	viper.SetDefault("rate_limit.policy", constants.RateLimitPolicyCooldown)
	viper.SetDefault("rate_limit.backend", constants.RateLimitBackendMemory)
	viper.SetDefault("rate_limit.cooldown", constants.DefaultCooldown)
	viper.SetDefault("rate_limit.hash_algorithm", constants.HashAlgorithmSHA256)
	viper.SetDefault("rate_limit.on_store_error", constants.FallbackAllow)

	viper.SetDefault("database.redis.host", "")
	viper.SetDefault("database.redis.port", 0)
	viper.SetDefault("database.redis.password", "")
	viper.SetDefault("database.redis.db", 0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", constants.ServiceName)
}

// bindEnvVariables maps the unprefixed variable names used by container
// deployments onto config keys.
func bindEnvVariables() {
	viper.BindEnv("smtp.host", "SITEWATCH_SMTP_HOST", "SMTP_HOST")
	viper.BindEnv("smtp.username", "SITEWATCH_SMTP_USERNAME", "SMTP_USERNAME")
	viper.BindEnv("smtp.password", "SITEWATCH_SMTP_PASSWORD", "SMTP_PASSWORD")

	viper.BindEnv("database.redis.host", "SITEWATCH_DATABASE_REDIS_HOST", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "SITEWATCH_DATABASE_REDIS_PORT", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "SITEWATCH_DATABASE_REDIS_PASSWORD", "DATABASE_REDIS_PASSWORD")

	viper.BindEnv("logging.level", "SITEWATCH_LOGGING_LEVEL", "LOGGING_LEVEL")
	viper.BindEnv("tracing.otlp.endpoint", "SITEWATCH_TRACING_OTLP_ENDPOINT", "TRACING_OTLP_ENDPOINT")
}
