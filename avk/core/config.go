package core

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// DescriptorConfig drives how the descriptor cache sizes new pools.
type DescriptorConfig struct {
	// Multiplier applied to an allocation request when a fresh pool is created.
	PoolSizeFactor uint32 `toml:"pool_size_factor"`
	// Multiplier used on drivers that accept pools mixing descriptor types freely.
	LenientPoolSizeFactor uint32 `toml:"lenient_pool_size_factor"`
	// Upper bound for any multiplier after retries have grown it.
	MaxPoolSizeFactor uint32 `toml:"max_pool_size_factor"`
	// Allow vkFreeDescriptorSets on cache owned pools.
	FreeDescriptorSets bool `toml:"free_descriptor_sets"`
}

type ShaderConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type Config struct {
	LogLevel          string           `toml:"log_level"`
	MaxFramesInFlight uint32           `toml:"max_frames_in_flight"`
	Descriptors       DescriptorConfig `toml:"descriptors"`
	Shaders           ShaderConfig     `toml:"shaders"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:          "info",
		MaxFramesInFlight: 2,
		Descriptors: DescriptorConfig{
			PoolSizeFactor:        2,
			LenientPoolSizeFactor: 8,
			MaxPoolSizeFactor:     64,
		},
		Shaders: ShaderConfig{
			Dir: "shaders",
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()
	return DecodeConfig(f)
}

func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	d := c.Descriptors
	if d.PoolSizeFactor == 0 || d.LenientPoolSizeFactor == 0 {
		return errors.Wrap(ErrInvalidConfig, "descriptor pool size factors must be at least 1")
	}
	if d.MaxPoolSizeFactor < d.PoolSizeFactor || d.MaxPoolSizeFactor < d.LenientPoolSizeFactor {
		return errors.Wrapf(ErrInvalidConfig, "max_pool_size_factor %d is below a base factor", d.MaxPoolSizeFactor)
	}
	if c.MaxFramesInFlight == 0 {
		return errors.Wrap(ErrInvalidConfig, "max_frames_in_flight must be at least 1")
	}
	return nil
}
