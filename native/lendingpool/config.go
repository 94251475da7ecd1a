package lendingpool

import (
	"fmt"
	"math/big"

	"github.com/BurntSushi/toml"

	"lendpool/crypto"
)

// Config captures the deployable parameters of the lending pool module.
type Config struct {
	// FlashLoanFeeE6 is the pool-wide flash loan fee at E6 scale.
	FlashLoanFeeE6 *big.Int `toml:"FlashLoanFeeE6"`
	// PriceFeedProvider and FeeReductionProvider are bech32 addresses of the
	// external collaborators the host wires in. Both optional.
	PriceFeedProvider    string `toml:"PriceFeedProvider"`
	FeeReductionProvider string `toml:"FeeReductionProvider"`
}

// DefaultConfig returns the configuration applied when no file is present.
func DefaultConfig() Config {
	return Config{
		// 0.1% flash loan fee.
		FlashLoanFeeE6: big.NewInt(1_000),
	}
}

// EnsureDefaults fills unset fields with their defaults.
func (c *Config) EnsureDefaults() {
	if c.FlashLoanFeeE6 == nil {
		c.FlashLoanFeeE6 = DefaultConfig().FlashLoanFeeE6
	}
}

// Validate rejects configurations the engine would refuse at runtime.
func (c *Config) Validate() error {
	c.EnsureDefaults()
	if c.FlashLoanFeeE6.Sign() < 0 || c.FlashLoanFeeE6.Cmp(oneE6) > 0 {
		return fmt.Errorf("lending pool: flash loan fee %s out of [0, 1e6]", c.FlashLoanFeeE6)
	}
	if c.PriceFeedProvider != "" {
		if _, err := crypto.DecodeAddress(c.PriceFeedProvider); err != nil {
			return fmt.Errorf("lending pool: invalid price feed provider: %w", err)
		}
	}
	if c.FeeReductionProvider != "" {
		if _, err := crypto.DecodeAddress(c.FeeReductionProvider); err != nil {
			return fmt.Errorf("lending pool: invalid fee reduction provider: %w", err)
		}
	}
	return nil
}

// LoadConfig reads a TOML config file and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyConfig seeds the engine state from the configuration. It is meant to
// run once at genesis or module upgrade.
func (e *Engine) ApplyConfig(cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fail := func(err error) error {
		e.state.Discard()
		return err
	}
	if err := e.state.PutFlashLoanFeeE6(cfg.FlashLoanFeeE6); err != nil {
		return fail(err)
	}
	if cfg.PriceFeedProvider != "" {
		addr, err := crypto.DecodeAddress(cfg.PriceFeedProvider)
		if err != nil {
			return fail(err)
		}
		if err := e.state.PutPriceFeedProviderAddress(addr.Bytes()); err != nil {
			return fail(err)
		}
	}
	if cfg.FeeReductionProvider != "" {
		addr, err := crypto.DecodeAddress(cfg.FeeReductionProvider)
		if err != nil {
			return fail(err)
		}
		if err := e.state.PutFeeReductionProviderAddress(addr.Bytes()); err != nil {
			return fail(err)
		}
	}
	return e.state.Commit()
}
