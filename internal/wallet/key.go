package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// KeyWallet signs with an in-memory private key.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// NewKeyWallet parses a hex private key, with or without 0x.
func NewKeyWallet(privateKey string, chainID *big.Int) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "error parsing private key")
	}
	return FromKey(key, chainID), nil
}

// FromKey wraps an existing key.
func FromKey(key *ecdsa.PrivateKey, chainID *big.Int) *KeyWallet {
	return &KeyWallet{key: key, chainID: new(big.Int).Set(chainID)}
}

// FromMnemonic derives the key at path from a BIP-39 mnemonic.
func FromMnemonic(mnemonic string, path accounts.DerivationPath, chainID *big.Int) (*KeyWallet, error) {
	key, err := derivePrivateKey(mnemonic, path)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving key from mnemonic")
	}
	return FromKey(key, chainID), nil
}

func (w *KeyWallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

func (w *KeyWallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

func (w *KeyWallet) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := eip712.Hash(td)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(h.Digest.Bytes(), w.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign typed data")
	}
	sig[64] += 27
	return sig, nil
}

func (w *KeyWallet) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
}

func derivePrivateKey(mnemonic string, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	// Parse the seed string into the master BIP32 key.
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), "")
	if err != nil {
		return nil, err
	}

	privKey, err := hdkeychain.NewMaster(seed, fakeNetworkParams{})
	if err != nil {
		return nil, err
	}

	for _, child := range path {
		privKey, err = privKey.ChildBIP32Std(child)
		if err != nil {
			return nil, err
		}
	}

	rawPrivKey, err := privKey.SerializedPrivKey()
	if err != nil {
		return nil, err
	}

	return crypto.ToECDSA(rawPrivKey)
}

// hdkeychain wants network version bytes; they only matter for serialising
// extended keys, which never happens here.
type fakeNetworkParams struct{}

func (f fakeNetworkParams) HDPrivKeyVersion() [4]byte {
	return [4]byte{}
}

func (f fakeNetworkParams) HDPubKeyVersion() [4]byte {
	return [4]byte{}
}
