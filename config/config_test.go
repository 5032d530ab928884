package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccfarm/seqbuf/engine"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:6379", cfg.Addr)
	assert.Equal(t, engine.DefaultBlockNumber, cfg.BlockNumber)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqbuf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: 127.0.0.1:7000\nblock_number: 16\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, 16, cfg.BlockNumber)
	// untouched keys keep their defaults
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, engine.DefaultBlockCapacity, cfg.BlockCapacity)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("block_number: [1"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestFlagsOverride(t *testing.T) {
	cfg := Default()
	cfg.BlockNumber = 16

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--addr", ":7001", "--log-level", "debug"}))

	assert.Equal(t, ":7001", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 16, cfg.BlockNumber)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"no blocks", func(c *Config) { c.BlockNumber = 0 }},
		{"tiny blocks", func(c *Config) { c.BlockCapacity = 16 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
