package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LedgerWallet signs on a Ledger device running the Ethereum app.
type LedgerWallet struct {
	wallet  accounts.Wallet
	account accounts.Account
	chainID *big.Int
}

// OpenLedger opens the index-th connected Ledger and derives path.
func OpenLedger(index int, path accounts.DerivationPath, chainID *big.Int) (*LedgerWallet, error) {
	log := logrus.WithField("component", "ledger")

	ledgerHub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, errors.Wrap(err, "error starting ledger")
	}

	wallets := ledgerHub.Wallets()
	if len(wallets) == 0 {
		return nil, errors.New("no ledgers found, please connect your ledger")
	} else if len(wallets) > 1 {
		log.Infof("Found %d ledgers, using index %d", len(wallets), index)
	}

	if index < 0 || index >= len(wallets) {
		return nil, errors.New("ledger index out of range")
	}

	wallet := wallets[index]
	if err := wallet.Open(""); err != nil {
		return nil, errors.Wrap(err, "error opening ledger")
	}

	account, err := wallet.Derive(path, true)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving ledger account (please unlock and open the Ethereum app)")
	}

	return &LedgerWallet{
		wallet:  wallet,
		account: account,
		chainID: new(big.Int).Set(chainID),
	}, nil
}

func (w *LedgerWallet) Address() common.Address {
	return w.account.Address
}

func (w *LedgerWallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// SignTypedData asks the device to sign the 0x1901 || domain || struct
// preimage. The device shows both hashes for the holder to compare.
func (w *LedgerWallet) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := eip712.Hash(td)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"component":    "ledger",
		"domain_hash":  h.DomainSeparator.Hex(),
		"message_hash": h.StructHash.Hex(),
	}).Info("Confirm the typed data signature on your device")

	sig, err := w.wallet.SignData(w.account, accounts.MimetypeTypedData, h.Preimage())
	if err != nil {
		if declined(err) {
			return nil, errors.Wrap(ErrSignatureCancelled, err.Error())
		}
		return nil, errors.Wrap(err, "ledger failed to sign typed data")
	}
	return sig, nil
}

func (w *LedgerWallet) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signed, err := w.wallet.SignTx(w.account, tx, w.chainID)
	if err != nil {
		if declined(err) {
			return nil, errors.Wrap(ErrSignatureCancelled, err.Error())
		}
		return nil, errors.Wrap(err, "ledger failed to sign transaction")
	}
	return signed, nil
}

// Close releases the device.
func (w *LedgerWallet) Close() error {
	return w.wallet.Close()
}
