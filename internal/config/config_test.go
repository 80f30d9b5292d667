package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)

	assert.Equal(t, "sepolia", reg.ChainName(11155111))
	assert.Equal(t, "", reg.ChainName(5))

	addrs := reg.Addresses(11155111, ContractsConfig{})
	assert.Equal(t, common.HexToAddress("0xbb4498b24fc56157de369214b271588c401173fb"), addrs.Bank)
	assert.Equal(t, common.HexToAddress("0x4c375836912a872989f504c81b90d14272d249ba"), addrs.Market)

	d, ok := reg.FallbackDomain(11155111, common.HexToAddress("0x304E1260F58F501B5AD37C2FB064C4FF3A3DE9DF"))
	require.True(t, ok)
	assert.Equal(t, Domain{Name: "MyToken", Version: "1"}, d)
}

func TestRegistryOverrides(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)

	override := "0x00000000000000000000000000000000000000aa"
	addrs := reg.Addresses(11155111, ContractsConfig{Bank: override})
	assert.Equal(t, common.HexToAddress(override), addrs.Bank)

	unknown := reg.Addresses(5, ContractsConfig{})
	assert.Equal(t, common.Address{}, unknown.Token)
	assert.Error(t, Require(map[string]common.Address{"token": unknown.Token}))
}

func TestParseRegistryRejectsBadAddress(t *testing.T) {
	_, err := ParseRegistry([]byte(`
chains:
  "1":
    name: mainnet
    contracts:
      token: "not-an-address"
`))
	require.Error(t, err)
}

func TestLoadGlobal(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"TOKENBANK_RPC_URL=http://localhost:8545\n"+
			"TOKENBANK_WATCH_INTERVAL=2s\n"+
			"TOKENBANK_SIGNER_PRIVATE_KEY=0x01\n"), 0600))

	t.Cleanup(func() {
		os.Unsetenv("TOKENBANK_RPC_URL")
		os.Unsetenv("TOKENBANK_WATCH_INTERVAL")
		os.Unsetenv("TOKENBANK_SIGNER_PRIVATE_KEY")
	})

	cfg, err := LoadGlobal(envFile)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, 2*time.Second, cfg.WatchInterval)
	assert.Equal(t, time.Hour, cfg.DefaultDeadline)
	assert.True(t, cfg.DomainStrict)
	assert.Equal(t, "m/44'/60'/0'/0/0", cfg.Signer.HDPath)
	assert.Equal(t, 1, cfg.Signer.Sources())
}

func TestValidate(t *testing.T) {
	base := func() *Configuration {
		return &Configuration{
			RPCURL:          "http://localhost:8545",
			WatchInterval:   time.Second,
			ReceiptTimeout:  time.Minute,
			DefaultDeadline: time.Hour,
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("two signer sources", func(t *testing.T) {
		cfg := base()
		cfg.Signer.PrivateKey = "0x01"
		cfg.Signer.Ledger = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad override", func(t *testing.T) {
		cfg := base()
		cfg.Contracts.Market = "0x123"
		assert.Error(t, cfg.Validate())
	})
}
