// Package config loads the YAML settings file shared by the CLI and the
// dashboard server and turns it into explicit client configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/rickmorty-client/pkg/cache"
	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Settings is the content of a settings file. Durations use Go syntax
// ("30s", "1m").
type Settings struct {
	API    API    `yaml:"api"`
	Retry  Retry  `yaml:"retry"`
	Cache  Cache  `yaml:"cache"`
	Output Output `yaml:"output"`
	Log    Log    `yaml:"log"`
	Server Server `yaml:"server"`
}

// API describes the upstream endpoints.
type API struct {
	RESTBaseURL    string        `yaml:"rest_base_url"`
	GraphQLURL     string        `yaml:"graphql_url"`
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// Retry mirrors client.RetryConfig.
type Retry struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	Jitter            float64       `yaml:"jitter"`
	RespectRetryAfter bool          `yaml:"respect_retry_after"`
}

// Cache configures the optional Redis response cache and shared rate-limit
// state. An empty RedisURL disables both.
type Cache struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Output configures exported files.
type Output struct {
	Dir string `yaml:"dir"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Server configures the dashboard server.
type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() Settings {
	cc := client.DefaultConfig()
	return Settings{
		API: API{
			RESTBaseURL:    cc.RESTBaseURL,
			GraphQLURL:     cc.GraphQLURL,
			UserAgent:      cc.UserAgent,
			Timeout:        cc.Timeout,
			MaxConcurrency: cc.MaxConcurrency,
		},
		Retry: Retry{
			MaxRetries:        cc.Retry.MaxRetries,
			InitialBackoff:    cc.Retry.InitialBackoff,
			BackoffMultiplier: cc.Retry.BackoffMultiplier,
			MaxBackoff:        cc.Retry.MaxBackoff,
			Jitter:            cc.Retry.Jitter,
			RespectRetryAfter: cc.Retry.RespectRetryAfter,
		},
		Cache:  Cache{TTL: cache.DefaultTTL},
		Output: Output{Dir: "output"},
		Log:    Log{Level: string(logging.LevelInfo), Pretty: true},
		Server: Server{Addr: ":8000"},
	}
}

// Load reads path over the defaults and validates the result. Keys absent
// from the file keep their default value.
func Load(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &s, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Settings, error) {
	if path == "" {
		s := Default()
		return &s, nil
	}
	return Load(path)
}

// Validate checks the settings and fills zero values with defaults.
func (s *Settings) Validate() error {
	def := Default()
	if s.API.RESTBaseURL == "" {
		s.API.RESTBaseURL = def.API.RESTBaseURL
	}
	if s.API.GraphQLURL == "" {
		s.API.GraphQLURL = def.API.GraphQLURL
	}
	if s.API.UserAgent == "" {
		s.API.UserAgent = def.API.UserAgent
	}
	if s.API.Timeout == 0 {
		s.API.Timeout = def.API.Timeout
	}
	if s.API.MaxConcurrency == 0 {
		s.API.MaxConcurrency = def.API.MaxConcurrency
	}
	if s.Cache.TTL == 0 {
		s.Cache.TTL = def.Cache.TTL
	}
	if s.Output.Dir == "" {
		s.Output.Dir = def.Output.Dir
	}
	if s.Log.Level == "" {
		s.Log.Level = def.Log.Level
	}
	if s.Server.Addr == "" {
		s.Server.Addr = def.Server.Addr
	}

	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if s.Cache.TTL < 0 {
		return errors.New("cache: ttl must be >= 0")
	}
	if s.Cache.RedisURL != "" {
		if _, err := redis.ParseURL(s.Cache.RedisURL); err != nil {
			return fmt.Errorf("cache: redis_url: %w", err)
		}
	}
	return s.ClientConfig(nil).Validate()
}

// ClientConfig builds the client configuration. rdb may be nil.
func (s *Settings) ClientConfig(rdb *redis.Client) client.Config {
	return client.Config{
		RESTBaseURL:    s.API.RESTBaseURL,
		GraphQLURL:     s.API.GraphQLURL,
		UserAgent:      s.API.UserAgent,
		Timeout:        s.API.Timeout,
		MaxConcurrency: s.API.MaxConcurrency,
		Retry: client.RetryConfig{
			MaxRetries:        s.Retry.MaxRetries,
			InitialBackoff:    s.Retry.InitialBackoff,
			BackoffMultiplier: s.Retry.BackoffMultiplier,
			MaxBackoff:        s.Retry.MaxBackoff,
			Jitter:            s.Retry.Jitter,
			RespectRetryAfter: s.Retry.RespectRetryAfter,
		},
		Redis:    rdb,
		CacheTTL: s.Cache.TTL,
	}
}

// OpenRedis connects to the configured Redis, or returns nil when none is
// configured.
func (s *Settings) OpenRedis() (*redis.Client, error) {
	if s.Cache.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(s.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// LoggingConfig builds the logger configuration.
func (s *Settings) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(s.Log.Level)
	cfg.Pretty = s.Log.Pretty
	return cfg
}

// Overrides are command-line or environment values that replace settings
// from the file. Zero values leave the setting untouched.
type Overrides struct {
	RESTBaseURL    string
	GraphQLURL     string
	RedisURL       string
	OutputDir      string
	LogLevel       string
	Addr           string
	MaxConcurrency int

	// MaxRetries is applied when >= 0.
	MaxRetries int
}

// NoRetryOverride leaves Retry.MaxRetries as loaded.
const NoRetryOverride = -1

// Apply merges o into s and validates the result.
func (s *Settings) Apply(o Overrides) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.API.RESTBaseURL, o.RESTBaseURL)
	set(&s.API.GraphQLURL, o.GraphQLURL)
	set(&s.Cache.RedisURL, o.RedisURL)
	set(&s.Output.Dir, o.OutputDir)
	set(&s.Log.Level, o.LogLevel)
	set(&s.Server.Addr, o.Addr)
	if o.MaxConcurrency != 0 {
		s.API.MaxConcurrency = o.MaxConcurrency
	}
	if o.MaxRetries >= 0 {
		s.Retry.MaxRetries = o.MaxRetries
	}
	return s.Validate()
}
