package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthSecret   string `mapstructure:"AUTH_SECRET"`

	AuditWriteTimeout time.Duration `mapstructure:"AUDIT_WRITE_TIMEOUT"`
	VerifyBatchSize   int           `mapstructure:"VERIFY_BATCH_SIZE"`
	StatsRecentWindow time.Duration `mapstructure:"STATS_RECENT_WINDOW"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUDIT_WRITE_TIMEOUT", "3s")
	v.SetDefault("VERIFY_BATCH_SIZE", 500)
	v.SetDefault("STATS_RECENT_WINDOW", "24h")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUDIT_WRITE_TIMEOUT")
	v.BindEnv("VERIFY_BATCH_SIZE")
	v.BindEnv("STATS_RECENT_WINDOW")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside
// development mode an AUTH_SECRET is required so the audit endpoints are
// never exposed unauthenticated, and the write timeout must be positive
// so best-effort logging cannot hang a business request.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV is %q", c.Env)
	}
	if c.AuditWriteTimeout <= 0 {
		return fmt.Errorf("AUDIT_WRITE_TIMEOUT must be positive, got %s", c.AuditWriteTimeout)
	}
	if c.VerifyBatchSize <= 0 {
		return fmt.Errorf("VERIFY_BATCH_SIZE must be positive, got %d", c.VerifyBatchSize)
	}
	return nil
}
