package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ncastellanos/vecino/internal/auth"
	"github.com/ncastellanos/vecino/internal/cache"
)

// Config represents the runtime configuration for the Vecino backend and panel agent.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Panic      PanicConfig      `mapstructure:"panic"`
	Panel      PanelConfig      `mapstructure:"panel"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisClientConfig converts the cache section into the cache package config.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Redis.Address,
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Timeout:  c.Redis.Timeout,
	}
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures token validation settings. Identity itself is resolved
// by the upstream auth provider; the backend only validates signed tokens.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access token validation.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// JWTServiceConfig converts the auth section into the auth package config.
func (a AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret: a.JWT.Secret,
		Issuer: a.JWT.Issuer,
		TTL:    a.JWT.TTL,
	}
}

// PanicConfig carries the panic-alert pipeline defaults. Per-resident settings
// stored in the database override the recipient and capture fields.
type PanicConfig struct {
	HoldTime             time.Duration `mapstructure:"hold_time"`
	ClickWindow          time.Duration `mapstructure:"click_window"`
	AlertDurationMinutes int           `mapstructure:"alert_duration_minutes"`
	SubmitTimeout        time.Duration `mapstructure:"submit_timeout"`
	LocationTimeout      time.Duration `mapstructure:"location_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`

	NotifyAll         bool     `mapstructure:"notify_all"`
	EmergencyContacts []string `mapstructure:"emergency_contacts"`

	ExtremeModeEnabled bool `mapstructure:"extreme_mode_enabled"`
	AutoRecordVideo    bool `mapstructure:"auto_record_video"`
	ShareGPSLocation   bool `mapstructure:"share_gps_location"`
}

// PanelConfig configures the panel agent binary.
type PanelConfig struct {
	ServerURL     string `mapstructure:"server_url"`
	AccessToken   string `mapstructure:"access_token"`
	Location      string `mapstructure:"location"`
	ActivatedFrom string `mapstructure:"activated_from"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("VECINO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/vecino.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "vecino")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("panic.hold_time", "5s")
	v.SetDefault("panic.click_window", "800ms")
	v.SetDefault("panic.alert_duration_minutes", 60)
	v.SetDefault("panic.submit_timeout", "10s")
	v.SetDefault("panic.location_timeout", "5s")
	v.SetDefault("panic.ping_interval", "30s")
	v.SetDefault("panic.notify_all", false)
	v.SetDefault("panic.extreme_mode_enabled", false)
	v.SetDefault("panic.auto_record_video", false)
	v.SetDefault("panic.share_gps_location", true)

	v.SetDefault("panel.server_url", "http://127.0.0.1:8000")
	v.SetDefault("panel.location", "")
	v.SetDefault("panel.activated_from", "panel")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
