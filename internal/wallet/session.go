package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackchuma/tokenbank/internal/chain"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Session is an open connection to a node plus, optionally, the account that
// signs on it. It is created once per command and passed down explicitly.
type Session struct {
	Client  *ethclient.Client
	Wallet  Wallet
	ChainID *big.Int
	Chain   chain.Chain
}

// Connect dials the configured node. When withSigner is set the configured
// signer is opened as well.
func Connect(ctx context.Context, cfg *config.Configuration, withSigner bool) (*Session, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the Ethereum client")
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to get chain ID")
	}

	if err := chain.EnsureChain(cfg.ChainID, chainID); err != nil {
		client.Close()
		return nil, err
	}

	c, err := chain.Lookup(chainID)
	if err != nil {
		logrus.WithField("chain_id", chainID).Warn("Connected to an unknown chain")
		c = chain.Chain{ID: chainID.Int64(), Name: "unknown"}
	}

	s := &Session{Client: client, ChainID: chainID, Chain: c}
	if withSigner {
		s.Wallet, err = New(cfg.Signer, chainID)
		if err != nil {
			client.Close()
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"component": "wallet",
			"address":   s.Wallet.Address().Hex(),
			"chain":     c.Name,
		}).Info("Wallet connected")
	}

	return s, nil
}

// Close releases the node connection and any device.
func (s *Session) Close() {
	if closer, ok := s.Wallet.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close wallet")
		}
	}
	s.Client.Close()
}
