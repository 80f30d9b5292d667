package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	anvilMnemonic = "test test test test test test test test test test test junk"
	anvilKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var (
	anvilAccount0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	anvilAccount1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	chainID       = big.NewInt(31337)
)

func TestNewKeyWallet(t *testing.T) {
	w, err := NewKeyWallet(anvilKey, chainID)
	require.NoError(t, err)
	assert.Equal(t, anvilAccount0, w.Address())
	assert.Equal(t, chainID, w.ChainID())

	_, err = NewKeyWallet("0xnothex", chainID)
	assert.Error(t, err)
}

func TestFromMnemonic(t *testing.T) {
	for _, tt := range []struct {
		path string
		want common.Address
	}{
		{"m/44'/60'/0'/0/0", anvilAccount0},
		{"m/44'/60'/0'/0/1", anvilAccount1},
	} {
		w, err := New(config.SignerConfig{Mnemonic: anvilMnemonic, HDPath: tt.path}, chainID)
		require.NoError(t, err)
		assert.Equal(t, tt.want, w.Address(), tt.path)
	}

	_, err := New(config.SignerConfig{Mnemonic: "not a valid mnemonic", HDPath: "m/44'/60'/0'/0/0"}, chainID)
	assert.Error(t, err)
}

func TestNewRequiresOneSource(t *testing.T) {
	_, err := New(config.SignerConfig{HDPath: "m/44'/60'/0'/0/0"}, chainID)
	assert.ErrorIs(t, err, ErrNoSigner)

	_, err = New(config.SignerConfig{PrivateKey: anvilKey, Mnemonic: anvilMnemonic, HDPath: "m/44'/60'/0'/0/0"}, chainID)
	assert.ErrorIs(t, err, ErrNoSigner)

	_, err = New(config.SignerConfig{PrivateKey: anvilKey, HDPath: "not/a/path"}, chainID)
	assert.Error(t, err)
}

func TestSignTypedDataRecovers(t *testing.T) {
	w, err := NewKeyWallet(anvilKey, chainID)
	require.NoError(t, err)

	td := eip712.Permit(eip712.Domain{
		Name:              "PermitToken",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress("0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0"),
	}, eip712.PermitMessage{
		Owner:    w.Address(),
		Spender:  common.HexToAddress("0xcf7ed3acca5a467e9e704c703e8d87f634fb0fc9"),
		Value:    big.NewInt(1000),
		Nonce:    big.NewInt(0),
		Deadline: big.NewInt(1893456000),
	})

	raw, err := w.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	require.Len(t, raw, 65)
	assert.Contains(t, []byte{27, 28}, raw[64])

	sig, err := eip712.SplitSignature(raw)
	require.NoError(t, err)
	h, err := eip712.Hash(td)
	require.NoError(t, err)

	signer, err := eip712.Recover(h.Digest, sig)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), signer)
}

func TestSignTypedDataHonoursCancelledContext(t *testing.T) {
	w, err := NewKeyWallet(anvilKey, chainID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.SignTypedData(ctx, eip712.PermitBuy(eip712.Domain{Name: "NFTMarket"}, eip712.PermitBuyMessage{
		ListingID: big.NewInt(1), Deadline: big.NewInt(1),
	}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSignTx(t *testing.T) {
	w, err := NewKeyWallet(anvilKey, chainID)
	require.NoError(t, err)

	to := common.HexToAddress("0x01")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	})
	signed, err := w.SignTx(context.Background(), tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, anvilAccount0, from)
}

func TestDeclined(t *testing.T) {
	assert.True(t, declined(errors.New("ledger: user denied the request")))
	assert.True(t, declined(errors.New("APDU error 0x6985")))
	assert.False(t, declined(errors.New("device disconnected")))
	assert.False(t, declined(nil))
}
