// Package wallet provides the connected account: the signer behind typed data
// signatures and transactions.
package wallet

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSignatureCancelled is returned when the account holder declines.
	ErrSignatureCancelled = errors.New("signature cancelled")
	// ErrNoSigner is returned when no signer source is configured.
	ErrNoSigner = errors.New("one (and only one) of private key, ledger, mnemonic must be set")
)

// Wallet is a connected account.
type Wallet interface {
	Address() common.Address
	ChainID() *big.Int
	// SignTypedData returns a 65 byte r || s || v signature of the EIP-712
	// digest of td.
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// New creates the wallet selected by cfg.
func New(cfg config.SignerConfig, chainID *big.Int) (Wallet, error) {
	if cfg.Sources() != 1 {
		return nil, ErrNoSigner
	}

	log := logrus.WithField("component", "wallet")

	path, err := accounts.ParseDerivationPath(cfg.HDPath)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid derivation path %q", cfg.HDPath)
	}

	switch {
	case cfg.PrivateKey != "":
		log.Debug("using private key signer")
		return NewKeyWallet(cfg.PrivateKey, chainID)
	case cfg.Mnemonic != "":
		log.WithField("path", path.String()).Debug("using mnemonic signer")
		return FromMnemonic(cfg.Mnemonic, path, chainID)
	default:
		log.WithFields(logrus.Fields{"index": cfg.LedgerIndex, "path": path.String()}).Debug("using ledger signer")
		return OpenLedger(cfg.LedgerIndex, path, chainID)
	}
}

// declined reports whether a device error means the holder refused to sign.
func declined(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"denied", "rejected", "cancel", "0x6985", "condition of use not satisfied"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
