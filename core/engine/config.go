package engine

import (
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/xerrors"
)

// Config is the configuration of the ensemble. Every field can be set from the
// environment.
type Config struct {
	ChainID         string        `env:"FADROMA_CHAIN_ID"         envDefault:"fadroma-ensemble-testnet"`
	Denom           string        `env:"FADROMA_DENOM"            envDefault:"uscrt"`
	UnbondingPeriod time.Duration `env:"FADROMA_UNBONDING_PERIOD" envDefault:"504h"`
	BlockInterval   time.Duration `env:"FADROMA_BLOCK_INTERVAL"   envDefault:"5s"`
	GenesisHeight   uint64        `env:"FADROMA_GENESIS_HEIGHT"   envDefault:"1"`
	GenesisTime     time.Time     `env:"FADROMA_GENESIS_TIME"     envDefault:"2022-01-01T00:00:00Z"`
}

// DefaultConfig returns the configuration with the default values.
func DefaultConfig() Config {
	cfg, err := LoadConfigFrom(map[string]string{})
	if err != nil {
		panic("invalid default configuration: " + err.Error())
	}

	return cfg
}

// LoadConfig reads the configuration from the environment of the process.
func LoadConfig() (Config, error) {
	var cfg Config

	err := env.Parse(&cfg)
	if err != nil {
		return cfg, xerrors.Errorf("failed to parse env: %v", err)
	}

	return cfg, cfg.Validate()
}

// LoadConfigFrom reads the configuration from the given environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config

	err := env.ParseWithOptions(&cfg, env.Options{Environment: environ})
	if err != nil {
		return cfg, xerrors.Errorf("failed to parse env: %v", err)
	}

	return cfg, cfg.Validate()
}

// Validate returns an error if a field has an invalid value.
func (cfg Config) Validate() error {
	if cfg.Denom == "" {
		return xerrors.New("denomination must not be empty")
	}

	if cfg.BlockInterval < 0 || cfg.UnbondingPeriod < 0 {
		return xerrors.New("durations must not be negative")
	}

	return nil
}
