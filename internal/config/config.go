package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "ANNOTATOR"

// AnonymousAccess controls what an unauthenticated caller may do.
type AnonymousAccess string

const (
	// AnonymousPermissive grants every capability (the historical behaviour).
	AnonymousPermissive AnonymousAccess = "permissive"
	// AnonymousReadOnly grants view and download only.
	AnonymousReadOnly AnonymousAccess = "read_only"
	// AnonymousDeny grants nothing.
	AnonymousDeny AnonymousAccess = "deny"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). postgres:// selects PostgreSQL, anything else SQLite.
	DatabaseURL string `mapstructure:"database_url"`

	// Server bind address (host:port)
	ServerAddr string `mapstructure:"server_addr"`

	// APIPrefix is the path every resource namespace is mounted under.
	APIPrefix string `mapstructure:"api_prefix"`

	// SecretKey signs bearer tokens.
	SecretKey string `mapstructure:"secret_key"`

	// TokenTTL is the lifetime of issued bearer tokens.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// SessionTTL is the lifetime of cookie sessions.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// AllowRegistration permits new accounts once the first user exists.
	AllowRegistration bool `mapstructure:"allow_registration"`

	// LoginDisabled turns endpoints that require a login into anonymous ones.
	LoginDisabled bool `mapstructure:"login_disabled"`

	// AnonymousAccess is the capability policy applied to the anonymous principal.
	AnonymousAccess AnonymousAccess `mapstructure:"anonymous_access"`

	// LiveWindow is how recently a user must have been seen to count as live.
	LiveWindow time.Duration `mapstructure:"live_window"`

	// DatasetRoot is the directory new datasets are created under.
	DatasetRoot string `mapstructure:"dataset_root"`

	// MaxImagePixels rejects uploads and stored files whose declared
	// dimensions exceed this many pixels.
	MaxImagePixels int `mapstructure:"max_image_pixels"`

	// Maximum database connection pool size
	MaxDBConnections int `mapstructure:"max_db_connections"`

	// Enable debug logging
	Debug bool `mapstructure:"debug"`

	Thumbnail     ThumbnailConfig     `mapstructure:"thumbnail"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ThumbnailConfig configures derived image generation and the render cache.
type ThumbnailConfig struct {
	// MaxSize bounds the longest edge of a generated thumbnail file.
	MaxSize int `mapstructure:"max_size"`
	// CacheSize is the number of rendered responses kept in process.
	CacheSize int `mapstructure:"cache_size"`
	// CacheTTL bounds how long a shared (redis) cache entry lives.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// RedisURL switches the render cache to a shared redis instance when set.
	RedisURL string `mapstructure:"redis_url"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "file:annotator.db?cache=shared")
	v.SetDefault("server_addr", "localhost:5000")
	v.SetDefault("api_prefix", "/api")
	v.SetDefault("secret_key", "")
	v.SetDefault("token_ttl", "300m")
	v.SetDefault("session_ttl", "12h")
	v.SetDefault("allow_registration", true)
	v.SetDefault("login_disabled", false)
	v.SetDefault("anonymous_access", string(AnonymousPermissive))
	v.SetDefault("live_window", "3m")
	v.SetDefault("dataset_root", "/datasets")
	v.SetDefault("max_image_pixels", 89478485)
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("debug", false)
	v.SetDefault("thumbnail.max_size", 512)
	v.SetDefault("thumbnail.cache_size", 256)
	v.SetDefault("thumbnail.cache_ttl", "1h")
	v.SetDefault("thumbnail.redis_url", "")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:8080", "http://127.0.0.1:8080"})
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http/protobuf")
	v.SetDefault("observability.otlp_insecure", true)
	v.SetDefault("observability.service_name", "annotatorapi")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
}

// Load reads configuration from the global viper instance: defaults, then an
// optional config file already registered by the CLI, then .env and
// ANNOTATOR_ prefixed environment variables (highest precedence).
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes configuration out of the provided viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	if c.SecretKey == "" {
		return errors.New("secret_key is required (env: ANNOTATOR_SECRET_KEY)")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	switch c.AnonymousAccess {
	case AnonymousPermissive, AnonymousReadOnly, AnonymousDeny:
	default:
		return fmt.Errorf("anonymous_access must be one of permissive, read_only, deny; got %q", c.AnonymousAccess)
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("api_prefix must start with '/', got %q", c.APIPrefix)
	}
	c.APIPrefix = strings.TrimSuffix(c.APIPrefix, "/")
	if c.APIPrefix == "" {
		return errors.New("api_prefix must name a path below '/'")
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max_image_pixels must be positive, got %d", c.MaxImagePixels)
	}
	if c.Thumbnail.MaxSize <= 0 {
		return fmt.Errorf("thumbnail.max_size must be positive, got %d", c.Thumbnail.MaxSize)
	}
	return nil
}
