package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	LogLevel      string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	RedisURL              string        `mapstructure:"REDIS_URL"`
	QuestionnaireCacheTTL time.Duration `mapstructure:"QUESTIONNAIRE_CACHE_TTL"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	MaxTextResponseSize          int    `mapstructure:"MAX_TEXT_RESPONSE_SIZE"`
	RequireRepeatingGroupAnswers bool   `mapstructure:"REQUIRE_REPEATING_GROUP_ANSWERS"`
	ValueSetFile                 string `mapstructure:"VALUESET_FILE"`
	MetricsEnabled               bool   `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"REDIS_URL", "QUESTIONNAIRE_CACHE_TTL", "AMQP_URL", "AMQP_EXCHANGE",
	"MAX_TEXT_RESPONSE_SIZE", "REQUIRE_REPEATING_GROUP_ANSWERS", "VALUESET_FILE", "METRICS_ENABLED",
}

// Load reads .env (when present) and the environment. Only DATABASE_URL is
// mandatory; Validate checks the rest.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("QUESTIONNAIRE_CACHE_TTL", "10m")
	v.SetDefault("AMQP_EXCHANGE", "ehr.events")
	v.SetDefault("MAX_TEXT_RESPONSE_SIZE", 5000)
	v.SetDefault("REQUIRE_REPEATING_GROUP_ANSWERS", false)
	v.SetDefault("METRICS_ENABLED", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("ENV=development: unauthenticated requests are treated as admin; do not use in production")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) CacheEnabled() bool { return c.RedisURL != "" }

func (c *Config) EventsEnabled() bool { return c.AMQPURL != "" }

// Validate rejects configurations that would run without authentication
// outside development or with a nonsensical submission limit.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.Env == "production" && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development only; configure AUTH_ISSUER in production")
	}
	if c.MaxTextResponseSize <= 0 {
		return fmt.Errorf("MAX_TEXT_RESPONSE_SIZE must be positive, got %d", c.MaxTextResponseSize)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.CacheEnabled() && c.QuestionnaireCacheTTL <= 0 {
		return fmt.Errorf("QUESTIONNAIRE_CACHE_TTL must be positive when REDIS_URL is set")
	}
	return nil
}
