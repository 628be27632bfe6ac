// Package config loads server settings from an optional TOML file, then lets
// environment variables (and a .env file) override them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Auth     AuthConfig     `toml:"auth"`
	Export   ExportConfig   `toml:"export"`
	Context  ContextConfig  `toml:"context"`
}

type ServerConfig struct {
	Port         string        `toml:"port"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	RateLimit    int           `toml:"rate_limit"`
	RateWindow   time.Duration `toml:"rate_window"`
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	MaxConns int    `toml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AuthConfig struct {
	JWTSecret string        `toml:"jwt_secret"`
	Issuer    string        `toml:"issuer"`
	TokenTTL  time.Duration `toml:"token_ttl"`
}

type ExportConfig struct {
	OutboxDir        string        `toml:"outbox_dir"`
	QueueSize        int           `toml:"queue_size"`
	RetryInterval    time.Duration `toml:"retry_interval"`
	MaxAttempts      int           `toml:"max_attempts"`
	RetriesPerSecond float64       `toml:"retries_per_second"`
}

// ContextConfig overrides the default context settings handed to users who
// never saved their own.
type ContextConfig struct {
	TimeSlots   []domain.TimeSlot `toml:"time_slots"`
	WeekendDays []string          `toml:"weekend_days"`
	Locations   []domain.Location `toml:"locations"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			RateLimit:    100,
			RateWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "kanso_user",
			Password: "secret",
			Name:     "kanso_db",
			MaxConns: 25,
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    "6379",
		},
		Auth: AuthConfig{
			Issuer:   "kanso-routines",
			TokenTTL: 72 * time.Hour,
		},
		Export: ExportConfig{
			OutboxDir:        "./data",
			QueueSize:        100,
			RetryInterval:    5 * time.Second,
			MaxAttempts:      10,
			RetriesPerSecond: 20,
		},
	}
}

// LoadFile decodes path over the defaults. It ignores the environment, so
// offline tools can read the context section without server secrets.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if _, err := cfg.ContextDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads path (skipped when empty), then .env, then the environment.
func Load(path string) (*Config, error) {
	loaded, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := *loaded

	_ = godotenv.Load()
	applyEnv(&cfg)

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Redis.Host, "REDIS_HOST")
	setString(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Export.OutboxDir, "OUTBOX_DIR")

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ContextDefaults builds the context settings new users start from.
func (c Config) ContextDefaults() (domain.ContextSettings, error) {
	settings := domain.DefaultContextSettings()

	if len(c.Context.TimeSlots) > 0 {
		settings.TimeSlots = c.Context.TimeSlots
	}

	if len(c.Context.WeekendDays) > 0 {
		categories := make(map[time.Weekday]string, 7)
		for _, d := range weekdayNames {
			categories[d] = domain.DayWeekday
		}
		for _, name := range c.Context.WeekendDays {
			d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return settings, fmt.Errorf("unknown weekday %q", name)
			}
			categories[d] = domain.DayWeekend
		}
		settings.DayCategories = categories
	}

	if len(c.Context.Locations) > 0 {
		settings.Locations = c.Context.Locations
	}

	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("context defaults: %w", err)
	}
	return settings, nil
}
