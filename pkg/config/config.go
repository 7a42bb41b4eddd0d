// Package config provides configuration loading and management for medidenoise.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Normalization modes
const (
	// ModeFixed255 divides every intensity by 255 regardless of bit depth
	ModeFixed255 = "fixed255"
	// ModeDynamic divides by the image's observed maximum
	ModeDynamic = "dynamic"
)

// Inference backends
const (
	BackendHTTP     = "http"
	BackendONNX     = "onnx"
	BackendShearlet = "shearlet"
)

// Session backends
const (
	SessionMemory   = "memory"
	SessionPostgres = "postgres"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Server parameters for the HTTP surface
	Server struct {
		// Addr is the listen address, e.g. ":8080"
		Addr string `yaml:"addr"`

		// MaxUploadMB bounds the multipart body accepted by /upload
		MaxUploadMB int64 `yaml:"maxUploadMB"`

		// MaxPixels bounds width*height of decoded images
		MaxPixels int `yaml:"maxPixels"`

		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`

		// AllowOrigin is written to Access-Control-Allow-Origin
		AllowOrigin string `yaml:"allowOrigin"`
	} `yaml:"server"`

	// Normalization parameters
	Normalization struct {
		// Mode selects fixed255 (divide by 255) or dynamic (divide by observed max)
		Mode string `yaml:"mode"`

		// Size is the square edge length of the canonical image
		Size int `yaml:"size"`
	} `yaml:"normalization"`

	// Inference parameters for the denoising model
	Inference struct {
		// Backend is one of http, onnx or shearlet
		Backend string `yaml:"backend"`

		// URL of the remote prediction endpoint (http backend)
		URL string `yaml:"url"`

		// HealthURL is probed at startup and by /health (http backend)
		HealthURL string `yaml:"healthURL"`

		// Timeout bounds a single model invocation
		Timeout time.Duration `yaml:"timeout"`

		// ClampOutput clips model output to [0,1] before it leaves the adapter
		ClampOutput bool `yaml:"clampOutput"`

		// ONNX runtime parameters (onnx backend)
		ONNX struct {
			LibraryPath string `yaml:"libraryPath"`
			ModelPath   string `yaml:"modelPath"`
			InputName   string `yaml:"inputName"`
			OutputName  string `yaml:"outputName"`
		} `yaml:"onnx"`
	} `yaml:"inference"`

	// Session parameters for the original-image store
	Session struct {
		// Backend is memory or postgres
		Backend string `yaml:"backend"`

		// TTL is how long an uploaded original stays available for denoise
		TTL time.Duration `yaml:"ttl"`

		// DatabaseURL is the PostgreSQL connection string (postgres backend)
		DatabaseURL string `yaml:"databaseURL"`

		// MaxEntries caps the memory backend; the oldest session is evicted
		// when full. Zero means unbounded.
		MaxEntries int `yaml:"maxEntries"`
	} `yaml:"session"`

	// Logging parameters
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Addr = ":8080"
	cfg.Server.MaxUploadMB = 50
	cfg.Server.MaxPixels = 50_000_000
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 90 * time.Second
	cfg.Server.AllowOrigin = "*"

	cfg.Normalization.Mode = ModeFixed255
	cfg.Normalization.Size = 200

	cfg.Inference.Backend = BackendShearlet
	cfg.Inference.URL = "http://localhost:8501/v1/models/autoencoder_noise:predict"
	cfg.Inference.HealthURL = "http://localhost:8501/v1/models/autoencoder_noise"
	cfg.Inference.Timeout = 30 * time.Second
	cfg.Inference.ClampOutput = false
	cfg.Inference.ONNX.ModelPath = "models/autoencoder_noise.onnx"
	cfg.Inference.ONNX.InputName = "input"
	cfg.Inference.ONNX.OutputName = "output"

	cfg.Session.Backend = SessionMemory
	cfg.Session.TTL = time.Hour
	cfg.Session.DatabaseURL = "postgres://localhost:5432/medidenoise"
	cfg.Session.MaxEntries = 256

	cfg.Logging.Level = "info"
	cfg.Logging.JSON = false

	return cfg
}

// LoadConfig loads configuration from a YAML file and applies environment overrides.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides selected fields from MEDIDENOISE_* variables
func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("MEDIDENOISE_ADDR", c.Server.Addr)
	c.Inference.Backend = getEnv("MEDIDENOISE_INFERENCE_BACKEND", c.Inference.Backend)
	c.Inference.URL = getEnv("MEDIDENOISE_INFERENCE_URL", c.Inference.URL)
	c.Session.Backend = getEnv("MEDIDENOISE_SESSION_BACKEND", c.Session.Backend)
	c.Session.DatabaseURL = getEnv("MEDIDENOISE_DATABASE_URL", c.Session.DatabaseURL)
	c.Normalization.Mode = getEnv("MEDIDENOISE_NORMALIZATION", c.Normalization.Mode)
	c.Logging.Level = getEnv("MEDIDENOISE_LOG_LEVEL", c.Logging.Level)

	if v := os.Getenv("MEDIDENOISE_CLAMP_OUTPUT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MEDIDENOISE_CLAMP_OUTPUT %q: %w", v, err)
		}
		c.Inference.ClampOutput = b
	}
	return nil
}

// Validate checks enumerations and numeric bounds
func (c *Config) Validate() error {
	switch c.Normalization.Mode {
	case ModeFixed255, ModeDynamic:
	default:
		return fmt.Errorf("unknown normalization mode %q", c.Normalization.Mode)
	}
	if c.Normalization.Size <= 0 {
		return fmt.Errorf("normalization size must be positive, got %d", c.Normalization.Size)
	}

	switch c.Inference.Backend {
	case BackendHTTP:
		if c.Inference.URL == "" {
			return fmt.Errorf("inference url is required for the http backend")
		}
	case BackendONNX:
		if c.Inference.ONNX.ModelPath == "" {
			return fmt.Errorf("onnx modelPath is required for the onnx backend")
		}
	case BackendShearlet:
	default:
		return fmt.Errorf("unknown inference backend %q", c.Inference.Backend)
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}

	switch c.Session.Backend {
	case SessionMemory:
	case SessionPostgres:
		if c.Session.DatabaseURL == "" {
			return fmt.Errorf("databaseURL is required for the postgres session backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.MaxEntries < 0 {
		return fmt.Errorf("session maxEntries must not be negative")
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("maxUploadMB must be positive")
	}
	if c.Server.MaxPixels <= 0 {
		return fmt.Errorf("maxPixels must be positive")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
