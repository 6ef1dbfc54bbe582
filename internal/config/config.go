package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourcePattern names the array path template serving one hazard type.
type SourcePattern struct {
	HazardType string
	Pattern    string
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Raster store.
	StoreBackend     string // "memory" or "badger"
	StorePath        string
	CompressionLevel int

	// Retrieval.
	Interpolation string
	Workers       int
	Sources       []SourcePattern

	// Spatial cache for the remote provider.
	CacheBackend          string // "memory", "badger" or "memcached"
	CachePath             string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	// Remote flood provider.
	FloodAPIEnabled  bool
	FloodAPIURL      string
	FloodAPIKey      string
	FloodAPITimeout  time.Duration
	FloodMaxRequests int
	FloodBatchSize   int
	FloodConcurrency int
	RemoteHazardTypes []string

	GeocoderBackend string // "static" or "google"
	GoogleAPIKey    string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Store struct {
		Backend          string `yaml:"backend"`
		Path             string `yaml:"path"`
		CompressionLevel int    `yaml:"compression_level"`
	} `yaml:"store"`

	Retrieval struct {
		Interpolation string `yaml:"interpolation"`
		Workers       int    `yaml:"workers"`
		Sources       []struct {
			HazardType string `yaml:"hazard_type"`
			Pattern    string `yaml:"pattern"`
		} `yaml:"sources"`
	} `yaml:"retrieval"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Path      string `yaml:"path"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	FloodAPI struct {
		Enabled     bool     `yaml:"enabled"`
		URL         string   `yaml:"url"`
		Timeout     string   `yaml:"timeout"`
		MaxRequests int      `yaml:"max_requests"`
		BatchSize   int      `yaml:"batch_size"`
		Concurrency int      `yaml:"concurrency"`
		HazardTypes []string `yaml:"hazard_types"`
	} `yaml:"flood_api"`

	Geocoder struct {
		Backend string `yaml:"backend"`
	} `yaml:"geocoder"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	FloodAPIKey  string `yaml:"flood_api_key"`
	GoogleAPIKey string `yaml:"google_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. The flood API and geocoder keys come from
// FLOOD_API_KEY / GOOGLE_API_KEY env or the secrets file. Call from
// project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "badger"
	}
	cfg.StorePath = fc.Store.Path
	if cfg.StorePath == "" {
		cfg.StorePath = "data/hazard"
	}
	cfg.CompressionLevel = fc.Store.CompressionLevel
	if cfg.CompressionLevel <= 0 {
		cfg.CompressionLevel = 1
	}

	cfg.Interpolation = strings.TrimSpace(strings.ToLower(fc.Retrieval.Interpolation))
	if cfg.Interpolation == "" {
		cfg.Interpolation = "floor"
	}
	cfg.Workers = fc.Retrieval.Workers
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	for _, s := range fc.Retrieval.Sources {
		cfg.Sources = append(cfg.Sources, SourcePattern{HazardType: s.HazardType, Pattern: s.Pattern})
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "memory"
	}
	cfg.CachePath = fc.Cache.Path
	if cfg.CachePath == "" {
		cfg.CachePath = "data/cache"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.FloodAPIEnabled = fc.FloodAPI.Enabled
	cfg.FloodAPIURL = fc.FloodAPI.URL
	cfg.FloodAPITimeout = parseDuration(fc.FloodAPI.Timeout, 30*time.Second)
	cfg.FloodMaxRequests = fc.FloodAPI.MaxRequests
	if cfg.FloodMaxRequests <= 0 {
		cfg.FloodMaxRequests = 100
	}
	cfg.FloodBatchSize = fc.FloodAPI.BatchSize
	if cfg.FloodBatchSize <= 0 {
		cfg.FloodBatchSize = 100
	}
	cfg.FloodConcurrency = fc.FloodAPI.Concurrency
	if cfg.FloodConcurrency <= 0 {
		cfg.FloodConcurrency = 8
	}
	cfg.RemoteHazardTypes = fc.FloodAPI.HazardTypes

	cfg.FloodAPIKey = os.Getenv("FLOOD_API_KEY")
	if cfg.FloodAPIKey == "" {
		cfg.FloodAPIKey = sec.FloodAPIKey
	}
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	if cfg.GoogleAPIKey == "" {
		cfg.GoogleAPIKey = sec.GoogleAPIKey
	}

	cfg.GeocoderBackend = strings.TrimSpace(strings.ToLower(fc.Geocoder.Backend))
	if cfg.GeocoderBackend == "" {
		cfg.GeocoderBackend = "static"
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case "memory", "badger":
	default:
		return fmt.Errorf("store.backend must be memory or badger, got %q", cfg.StoreBackend)
	}
	switch cfg.CacheBackend {
	case "memory", "badger", "memcached":
	default:
		return fmt.Errorf("cache.backend must be memory, badger or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.Interpolation {
	case "floor", "linear", "max", "min":
	default:
		return fmt.Errorf("retrieval.interpolation must be floor, linear, max or min, got %q", cfg.Interpolation)
	}
	if cfg.CompressionLevel > 4 {
		return fmt.Errorf("store.compression_level must be 1-4, got %d", cfg.CompressionLevel)
	}
	if cfg.FloodAPIEnabled {
		if cfg.FloodAPIURL == "" {
			return fmt.Errorf("flood_api.url required when flood_api.enabled")
		}
		if cfg.FloodAPIKey == "" {
			return fmt.Errorf("FLOOD_API_KEY required when flood_api.enabled (set env or config/secrets.yaml flood_api_key)")
		}
	}
	if cfg.GeocoderBackend == "google" && cfg.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY required for google geocoder (set env or config/secrets.yaml google_api_key)")
	}
	switch cfg.GeocoderBackend {
	case "static", "google":
	default:
		return fmt.Errorf("geocoder.backend must be static or google, got %q", cfg.GeocoderBackend)
	}
	return nil
}
