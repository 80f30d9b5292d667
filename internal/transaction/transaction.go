package transaction

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Backend is the node surface needed to send and confirm transactions.
type Backend interface {
	contracts.Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

var (
	// ErrReceiptTimeout is returned by Wait when the transaction is not mined
	// in time. The transaction may still be mined later.
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")
	// ErrNoBaseFee is returned for chains without EIP-1559 support.
	ErrNoBaseFee = errors.New("latest header has no base fee, EIP-1559 is not supported by this chain")
)

// GasMargin is added to the estimate, in percent.
const GasMargin = 20

// Sender builds, signs and broadcasts EIP-1559 transactions. It never retries.
type Sender struct {
	backend      Backend
	signer       Signer
	chainID      *big.Int
	pollInterval time.Duration
	timeout      time.Duration
	log          *logrus.Entry
	sent         sync.Map
}

type sentTx struct {
	to   *common.Address
	data []byte
}

// NewSender returns a sender for signer's account.
func NewSender(backend Backend, signer Signer, chainID *big.Int, timeout time.Duration) *Sender {
	return &Sender{
		backend:      backend,
		signer:       signer,
		chainID:      new(big.Int).Set(chainID),
		pollInterval: time.Second,
		timeout:      timeout,
		log:          logrus.WithField("component", "transaction"),
	}
}

// WithPollInterval changes how often Wait asks for the receipt.
func (s *Sender) WithPollInterval(d time.Duration) *Sender {
	s.pollInterval = d
	return s
}

// From is the sending account.
func (s *Sender) From() common.Address {
	return s.signer.Address()
}

// CreateTransaction fills in nonce, fees and gas for a call to `to`. A call
// that would revert fails here with the contract's revert reason.
func (s *Sender) CreateTransaction(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := s.signer.Address()

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending nonce")
	}

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas tip")
	}

	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest header")
	}
	if head.BaseFee == nil {
		return nil, ErrNoBaseFee
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		if revert := contracts.AsRevert("", err); revert != nil {
			return nil, revert
		}
		return nil, errors.Wrap(err, "failed to estimate gas")
	}
	gas += gas * GasMargin / 100

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

// Send signs and broadcasts a call to `to`, returning the transaction hash.
// ctx is only honoured until the transaction has been handed to the node.
func (s *Sender) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	tx, err := s.CreateTransaction(ctx, to, data)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := s.signer.SignTx(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to send transaction")
	}
	s.sent.Store(signed.Hash(), sentTx{to: signed.To(), data: signed.Data()})

	s.log.WithFields(logrus.Fields{
		"tx":    signed.Hash().Hex(),
		"to":    to.Hex(),
		"nonce": signed.Nonce(),
	}).Info("Transaction sent")
	return signed.Hash(), nil
}

// Wait polls for the receipt of hash. A reverted transaction is replayed as a
// call at its block to recover the revert reason, returned as a
// *contracts.RevertError together with the receipt.
func (s *Sender) Wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, s.revertReason(ctx, hash, receipt)
			}
			s.log.WithFields(logrus.Fields{"tx": hash.Hex(), "block": receipt.BlockNumber}).Info("Transaction confirmed")
			return receipt, nil
		}
		if ctx.Err() == nil && !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "failed to get transaction receipt")
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrReceiptTimeout, "transaction %s", hash.Hex())
		case <-ticker.C:
		}
	}
}

func (s *Sender) revertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) error {
	v, ok := s.sent.Load(hash)
	if !ok {
		return &contracts.RevertError{Reason: "transaction reverted"}
	}
	sent := v.(sentTx)

	_, err := s.backend.CallContract(ctx, ethereum.CallMsg{
		From: s.signer.Address(),
		To:   sent.to,
		Data: sent.data,
	}, receipt.BlockNumber)
	if revert := contracts.AsRevert("", err); revert != nil {
		return revert
	}
	return &contracts.RevertError{Reason: "transaction reverted"}
}
