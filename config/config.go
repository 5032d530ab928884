// Package config holds the server settings. Values come from defaults, an
// optional YAML file and command line flags, in that order.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ccfarm/seqbuf/buffer"
	"github.com/ccfarm/seqbuf/engine"
)

type Config struct {
	// Addr is the TCP address the RESP server listens on.
	Addr string `yaml:"addr"`

	// LogLevel is a zap level name: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// BlockNumber is the number of store shards.
	BlockNumber int `yaml:"block_number"`

	// BlockCapacity is the size in bytes of each shard.
	BlockCapacity int `yaml:"block_capacity"`
}

func Default() *Config {
	return &Config{
		Addr:          "0.0.0.0:6379",
		LogLevel:      "info",
		BlockNumber:   engine.DefaultBlockNumber,
		BlockCapacity: engine.DefaultBlockCapacity,
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// AddFlags binds the fields to flags. Flags left unset keep the current
// values, so call it after Load.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&c.BlockNumber, "block-number", c.BlockNumber, "number of store shards")
	fs.IntVar(&c.BlockCapacity, "block-capacity", c.BlockCapacity, "bytes per store shard")
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is empty")
	}
	if c.BlockNumber <= 0 {
		return errors.Errorf("block_number must be positive, got %d", c.BlockNumber)
	}
	// a block must at least hold one entry the size of a read window
	if c.BlockCapacity < buffer.ReaderCapacity {
		return errors.Errorf("block_capacity must be at least %d, got %d", buffer.ReaderCapacity, c.BlockCapacity)
	}
	return nil
}
