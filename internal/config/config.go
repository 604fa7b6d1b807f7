// Package config loads the converter configuration from a TOML file and
// validates it.  Everything has a default; the file and the CLI flags only
// override.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Params is the full configuration of one conversion run.
type Params struct {
	Convert ConvertParams `toml:"convert"`
	Idle    IdleParams    `toml:"idle"`
}

// ConvertParams controls the pipeline and download pool.
type ConvertParams struct {
	// ChunkSize is the number of messages per output file.
	ChunkSize int `toml:"chunk_size" validate:"gt=0"`
	// Workers is the download worker count.
	Workers int `toml:"workers" validate:"gt=0"`
	// Retries is the per-file download attempt count.
	Retries int `toml:"retries" validate:"gt=0"`
}

// IdleParams tunes the long-term-idle classifier.  These are deliberately
// configuration, not constants: the right values depend on the age and
// volume of the history being imported.
type IdleParams struct {
	// WindowSeconds is the recency window.
	WindowSeconds int `toml:"window_seconds" validate:"gt=0"`
	// Threshold is the sent-message count above which a user is kept
	// materialised regardless of recency.
	Threshold int `toml:"threshold" validate:"gt=0"`
}

// Window returns the recency window as a duration.
func (p IdleParams) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// Default returns the configuration used when no file is given.
func Default() Params {
	return Params{
		Convert: ConvertParams{ChunkSize: 1000, Workers: 4, Retries: 3},
		Idle:    IdleParams{WindowSeconds: 60, Threshold: 10},
	}
}

var validate = validator.New()

// Load reads the TOML file at path on top of the defaults.  An empty path
// returns the defaults.
func Load(path string) (Params, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("config: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := validate.Struct(&p); err != nil {
		return Params{}, fmt.Errorf("config: invalid values in %s: %w", path, err)
	}
	return p, nil
}
