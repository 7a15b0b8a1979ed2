package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Points      PointsConfig      `mapstructure:"points"`
	Tips        TipsConfig        `mapstructure:"tips"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	BaseURL     string   `mapstructure:"base_url"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Store selects the persistence backend: "postgres" or "memory".
	Store string `mapstructure:"store"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	Migrate         bool          `mapstructure:"migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type AuthConfig struct {
	JWTSecret                string        `mapstructure:"jwt_secret"`
	AccessTokenTTL           time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL          time.Duration `mapstructure:"refresh_token_ttl"`
	ConfirmationTTL          time.Duration `mapstructure:"confirmation_ttl"`
	RequireEmailConfirmation bool          `mapstructure:"require_email_confirmation"`
	ResendLimit              int           `mapstructure:"resend_limit"`
	ResendWindow             time.Duration `mapstructure:"resend_window"`
}

// PointsConfig holds the crediting rules applied when tips and check-ins are recorded.
type PointsConfig struct {
	TipMultiplier    int64 `mapstructure:"tip_multiplier"`
	PerVolunteerHour int64 `mapstructure:"per_volunteer_hour"`
}

type TipsConfig struct {
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type LeaderboardConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type CatalogConfig struct {
	Seed bool   `mapstructure:"seed"`
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional config file and TAPKIND_* env vars,
// in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TAPKIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.store", "postgres")

	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_idle_time", "5m")
	v.SetDefault("db.migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "1h")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.confirmation_ttl", "48h")
	v.SetDefault("auth.require_email_confirmation", true)
	v.SetDefault("auth.resend_limit", 3)
	v.SetDefault("auth.resend_window", "15m")

	v.SetDefault("points.tip_multiplier", 10)
	v.SetDefault("points.per_volunteer_hour", 25)

	v.SetDefault("tips.rate_limit", 20)
	v.SetDefault("tips.rate_window", "1m")

	v.SetDefault("leaderboard.cache_ttl", "30s")

	v.SetDefault("catalog.seed", true)
	v.SetDefault("catalog.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	switch c.Server.Store {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("config: db.url is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown server.store %q", c.Server.Store)
	}
	if c.Points.TipMultiplier < 0 || c.Points.PerVolunteerHour < 0 {
		return errors.New("config: points multipliers must not be negative")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("config: token ttls must be positive")
	}
	return nil
}
