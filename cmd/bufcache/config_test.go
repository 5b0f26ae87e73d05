package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bufcache.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `{
		// RAM disk for experiments
		"backend": "memory",
		"slots": 8,
		"block_size": 1024,
		"l2_mem": 65536, // small on purpose
		"minio": {"endpoint": "localhost:9000", "access_key": "ak", "secret_key": "sk"},
	}`)

	cfg, err := loadConfigFile(path)
	require.NoError(t, err)

	want := Config{
		Backend:   "memory",
		Slots:     8,
		BlockSize: 1024,
		L2Mem:     65536,
		MinIO:     MinIOConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile_NotFound(t *testing.T) {
	_, err := loadConfigFile(filepath.Join(t.TempDir(), "missing.jsonc"))
	require.ErrorIs(t, err, errConfigFileNotFound)
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	path := writeConfig(t, `{"slots": "many"}`)
	_, err := loadConfigFile(path)
	require.ErrorIs(t, err, errConfigInvalid)
}

func TestMergeConfig(t *testing.T) {
	base := DefaultConfig()
	got := mergeConfig(base, Config{Slots: 32, L2Codec: "zstd", JSONLog: true})

	want := base
	want.Slots = 32
	want.L2Codec = "zstd"
	want.JSONLog = true
	assert.Equal(t, want, got)

	assert.Equal(t, base, mergeConfig(base, Config{}))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"memory backend", func(c *Config) { c.Backend = "memory" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "tape" }, false},
		{"zero slots", func(c *Config) { c.Slots = 0 }, false},
		{"odd block size", func(c *Config) { c.BlockSize = 1000 }, false},
		{"no blocks", func(c *Config) { c.Blocks = 0 }, false},
		{"unknown codec", func(c *Config) { c.L2Codec = "gzip" }, false},
		{"no codec", func(c *Config) { c.L2Codec = "" }, true},
		{"negative l2 writers", func(c *Config) { c.L2Writers = -1 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"debug log level", func(c *Config) { c.LogLevel = "debug" }, true},
		{"minio without endpoint", func(c *Config) { c.Backend = "minio" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := validateConfig(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errConfigInvalid)
			}
		})
	}
}

func TestFormatConfig_MasksSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinIO.SecretKey = "hunter2"

	out, err := FormatConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"secret_key": "*******"`)
	assert.Equal(t, "hunter2", cfg.MinIO.SecretKey)
}
