package lendingpool

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.EnsureDefaults()
	require.Zero(t, cfg.FlashLoanFeeE6.Cmp(big.NewInt(1_000)))
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateBounds(t *testing.T) {
	cfg := Config{FlashLoanFeeE6: big.NewInt(1_000_001)}
	require.Error(t, cfg.Validate())

	cfg = Config{FlashLoanFeeE6: big.NewInt(-1)}
	require.Error(t, cfg.Validate())

	cfg = Config{PriceFeedProvider: "not-a-bech32-address"}
	require.Error(t, cfg.Validate())

	cfg = Config{PriceFeedProvider: makeAddress(0x42).String()}
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lendingpool.toml")
	provider := makeAddress(0x42).String()
	body := "FlashLoanFeeE6 = \"2500\"\nPriceFeedProvider = \"" + provider + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Zero(t, cfg.FlashLoanFeeE6.Cmp(big.NewInt(2_500)))
	require.Equal(t, provider, cfg.PriceFeedProvider)
}

func TestApplyConfigSeedsState(t *testing.T) {
	env := newTestEnv(t)
	provider := makeAddress(0x42)
	cfg := Config{
		FlashLoanFeeE6:    big.NewInt(3_000),
		PriceFeedProvider: provider.String(),
	}
	require.NoError(t, env.engine.ApplyConfig(cfg))

	fee, err := env.store.FlashLoanFeeE6()
	require.NoError(t, err)
	require.Zero(t, fee.Cmp(big.NewInt(3_000)))

	raw, err := env.store.PriceFeedProviderAddress()
	require.NoError(t, err)
	require.Equal(t, provider.Bytes(), raw)
}
