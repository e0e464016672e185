// Package config loads himecc's compilation configuration: settings that
// aren't convenient to spell out on the command line (default table
// method, output directory, template expansion limits), read from a TOML
// file via toml.Unmarshal into a tagged struct.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/dekarrin/ictiobus/internal/lr"
)

// Config is himecc's top-level configuration file shape.
type Config struct {
	Method           string `toml:"method"` // "lr0", "slr", "lr1", "lalr1", "rnglr1", "rnglalr1"
	AllowAmbiguous   bool   `toml:"allow_ambiguous"`
	MaxTemplateDepth int    `toml:"max_template_depth"`
	OutputDir        string `toml:"output_dir"`
}

// Default returns himecc's built-in defaults, used when no config file is
// given and no flag overrides a field.
func Default() Config {
	return Config{
		Method:           "lalr1",
		AllowAmbiguous:   false,
		MaxTemplateDepth: 64,
		OutputDir:        ".",
	}
}

// Load reads and decodes a TOML config file, starting from Default() so
// any field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LRMethod resolves the configured Method string to an lr.Method,
// defaulting to LALR1 for an unrecognized or empty value.
func (c Config) LRMethod() lr.Method {
	switch c.Method {
	case "lr0":
		return lr.LR0
	case "slr":
		return lr.SLR
	case "lr1":
		return lr.LR1
	case "lalr1":
		return lr.LALR1
	default:
		return lr.LALR1
	}
}
