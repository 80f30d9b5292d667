package transaction

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/test/fakechain"
	"github.com/jackchuma/tokenbank/internal/wallet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenAddr = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

func setup(t *testing.T) (*fakechain.Chain, *fakechain.PermitToken, *wallet.KeyWallet, *Sender) {
	t.Helper()
	chain := fakechain.New(31337)
	tok := fakechain.NewPermitToken(chain, tokenAddr, "MyToken", 18)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := wallet.FromKey(key, big.NewInt(31337))

	sender := NewSender(chain, w, big.NewInt(31337), time.Second).WithPollInterval(10 * time.Millisecond)
	return chain, tok, w, sender
}

func TestSendAndWait(t *testing.T) {
	ctx := context.Background()
	chain, tok, w, sender := setup(t)
	tok.Mint(w.Address(), big.NewInt(100))

	to := common.HexToAddress("0x02")
	data, err := contracts.NewToken(tokenAddr, chain).PackTransfer(to, big.NewInt(40))
	require.NoError(t, err)

	hash, err := sender.Send(ctx, tokenAddr, data)
	require.NoError(t, err)

	receipt, err := sender.Wait(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, big.NewInt(40), tok.BalanceOf(to))

	require.Len(t, chain.Sent, 1)
	tx := chain.Sent[0]
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, uint64(0), tx.Nonce())
	// fee cap is twice the base fee plus the tip
	assert.Equal(t, big.NewInt(2_001_000_000), tx.GasFeeCap())
}

func TestSendRequiresBaseFee(t *testing.T) {
	ctx := context.Background()
	chain, tok, w, sender := setup(t)
	tok.Mint(w.Address(), big.NewInt(100))
	chain.SetBaseFee(nil)

	data, err := contracts.NewToken(tokenAddr, chain).PackTransfer(common.HexToAddress("0x02"), big.NewInt(1))
	require.NoError(t, err)

	_, err = sender.Send(ctx, tokenAddr, data)
	assert.ErrorIs(t, err, ErrNoBaseFee)
	assert.Empty(t, chain.Sent)
}

func TestSendSurfacesRevertReason(t *testing.T) {
	ctx := context.Background()
	chain, _, _, sender := setup(t)

	data, err := contracts.NewToken(tokenAddr, chain).PackTransfer(common.HexToAddress("0x02"), big.NewInt(1))
	require.NoError(t, err)

	_, err = sender.Send(ctx, tokenAddr, data)
	require.Error(t, err)

	var revert *contracts.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "ERC20: transfer amount exceeds balance", revert.Reason)
	assert.Empty(t, chain.Sent)
}

func TestWaitReplaysFailedTransaction(t *testing.T) {
	ctx := context.Background()
	chain, tok, w, sender := setup(t)
	tok.Mint(w.Address(), big.NewInt(10))

	data, err := contracts.NewToken(tokenAddr, chain).PackTransfer(common.HexToAddress("0x02"), big.NewInt(10))
	require.NoError(t, err)

	// the estimate passes, then the balance moves before the transaction lands
	tx, err := sender.CreateTransaction(ctx, tokenAddr, data)
	require.NoError(t, err)
	signed, err := w.SignTx(ctx, tx)
	require.NoError(t, err)

	chain.Handle(tokenAddr, "transfer", func(c *fakechain.Call) ([]interface{}, error) {
		return nil, fakechain.Revert("paused")
	})
	require.NoError(t, chain.SendTransaction(ctx, signed))
	sender.sent.Store(signed.Hash(), sentTx{to: signed.To(), data: signed.Data()})

	receipt, err := sender.Wait(ctx, signed.Hash())
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	var revert *contracts.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "paused", revert.Reason)
}

func TestWaitTimesOut(t *testing.T) {
	_, _, _, sender := setup(t)
	sender.timeout = 50 * time.Millisecond

	_, err := sender.Wait(context.Background(), common.HexToHash("0x1234"))
	assert.ErrorIs(t, err, ErrReceiptTimeout)
}
