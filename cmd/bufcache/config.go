package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/hupe1980/bufcache/cache"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config")
)

// MinIOConfig configures the minio backend.
type MinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"` //nolint:tagliatelle // snake_case for config file
	SecretKey string `json:"secret_key"` //nolint:tagliatelle
	Secure    bool   `json:"secure,omitempty"`
}

// S3Config configures the s3 backend.
type S3Config struct {
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Config holds all configuration options.
type Config struct {
	Backend   string `json:"backend"`
	Slots     int    `json:"slots"`
	BlockSize int    `json:"block_size"` //nolint:tagliatelle
	Blocks    int64  `json:"blocks"`
	Prefix    string `json:"prefix,omitempty"`

	L2Dir     string `json:"l2_dir,omitempty"`      //nolint:tagliatelle
	L2Mem     int64  `json:"l2_mem,omitempty"`      //nolint:tagliatelle
	L2MaxSize int64  `json:"l2_max_size,omitempty"` //nolint:tagliatelle
	L2Codec   string `json:"l2_codec,omitempty"`    //nolint:tagliatelle
	L2Writers int64  `json:"l2_writers,omitempty"`  //nolint:tagliatelle

	MemoryLimit int64 `json:"memory_limit,omitempty"` //nolint:tagliatelle
	IOLimit     int64 `json:"io_limit,omitempty"`     //nolint:tagliatelle

	LogLevel string `json:"log_level,omitempty"` //nolint:tagliatelle
	JSONLog  bool   `json:"json_log,omitempty"`  //nolint:tagliatelle

	MinIO MinIOConfig `json:"minio"`
	S3    S3Config    `json:"s3"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Backend:   "file",
		Slots:     256,
		BlockSize: 4096,
		Blocks:    1024,
		L2MaxSize: 64 << 20,
		L2Codec:   "lz4",
		LogLevel:  "info",
	}
}

// loadConfigFile reads a JSONC config file.
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}
		return Config{}, err
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Backend != "" {
		base.Backend = overlay.Backend
	}
	if overlay.Slots != 0 {
		base.Slots = overlay.Slots
	}
	if overlay.BlockSize != 0 {
		base.BlockSize = overlay.BlockSize
	}
	if overlay.Blocks != 0 {
		base.Blocks = overlay.Blocks
	}
	if overlay.Prefix != "" {
		base.Prefix = overlay.Prefix
	}
	if overlay.L2Dir != "" {
		base.L2Dir = overlay.L2Dir
	}
	if overlay.L2Mem != 0 {
		base.L2Mem = overlay.L2Mem
	}
	if overlay.L2MaxSize != 0 {
		base.L2MaxSize = overlay.L2MaxSize
	}
	if overlay.L2Codec != "" {
		base.L2Codec = overlay.L2Codec
	}
	if overlay.L2Writers != 0 {
		base.L2Writers = overlay.L2Writers
	}
	if overlay.MemoryLimit != 0 {
		base.MemoryLimit = overlay.MemoryLimit
	}
	if overlay.IOLimit != 0 {
		base.IOLimit = overlay.IOLimit
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.JSONLog {
		base.JSONLog = true
	}
	if overlay.MinIO != (MinIOConfig{}) {
		base.MinIO = overlay.MinIO
	}
	if overlay.S3 != (S3Config{}) {
		base.S3 = overlay.S3
	}
	return base
}

func validateConfig(cfg Config) error {
	switch cfg.Backend {
	case "file", "memory", "local", "minio", "s3":
	default:
		return fmt.Errorf("%w: unknown backend %q", errConfigInvalid, cfg.Backend)
	}
	if cfg.Slots <= 0 {
		return fmt.Errorf("%w: slots must be positive", errConfigInvalid)
	}
	if cfg.BlockSize <= 0 || cfg.BlockSize%512 != 0 {
		return fmt.Errorf("%w: block_size must be a positive multiple of 512", errConfigInvalid)
	}
	if cfg.Blocks <= 0 {
		return fmt.Errorf("%w: blocks must be positive", errConfigInvalid)
	}
	if cfg.L2Writers < 0 {
		return fmt.Errorf("%w: l2_writers must not be negative", errConfigInvalid)
	}
	if _, err := cache.ParseCodec(cfg.L2Codec); err != nil {
		return fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	if cfg.Backend == "minio" && cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("%w: minio backend needs minio.endpoint", errConfigInvalid)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// FormatConfig returns the config as formatted JSON.
func FormatConfig(cfg Config) (string, error) {
	cfg.MinIO.SecretKey = strings.Repeat("*", len(cfg.MinIO.SecretKey))
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	return string(data), nil
}
