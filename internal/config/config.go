package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional blkcopy configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. A nil field means unset.
type DefaultsConfig struct {
	Engine    *string  `toml:"engine"`
	Emulate   *bool    `toml:"emulate"`
	BlockSize *string  `toml:"bs"`
	Ranges    *int     `toml:"ranges"`
	MaxRanges *int     `toml:"max_ranges"`
	Units     *int     `toml:"units"`
	Rate      *float64 `toml:"rate"`
	Verify    *bool    `toml:"verify"`
	Direct    *bool    `toml:"direct"`
	IOURing   *bool    `toml:"iouring"`

	OutputFormat *string `toml:"output_format"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "blkcopy", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile reads the config file at path. Unlike Load, a missing file is an
// error, and so is any key the file sets that Config does not know.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}
