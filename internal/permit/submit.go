package permit

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Contract methods that consume a permit signature.
const (
	MethodPermit        = "permit"
	MethodPermitDeposit = "permitDeposit"
	MethodPermitBuy     = "permitBuy"
)

// Transactor sends a call and waits for it to be mined.
// *transaction.Sender implements it.
type Transactor interface {
	From() common.Address
	Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	Wait(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// SubmitRequest is a permit supplied as text, for example pasted from another
// session. Value is in token units.
type SubmitRequest struct {
	Owner    string `json:"owner"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Deadline string `json:"deadline"`
	V        string `json:"v"`
	R        string `json:"r"`
	S        string `json:"s"`
}

// Permit is a parsed permit ready to be packed into a call.
type Permit struct {
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Deadline  *big.Int
	Signature eip712.Signature
}

// FromResult turns a generated signature into call arguments.
func FromResult(r *Result) Permit {
	return Permit{
		Owner:     r.Owner,
		Spender:   r.Spender,
		Value:     r.Value,
		Deadline:  r.Deadline,
		Signature: r.Signature,
	}
}

// Submission is a mined permit call.
type Submission struct {
	Method  string         `json:"method"`
	TxHash  common.Hash    `json:"txHash"`
	Receipt *types.Receipt `json:"-"`
}

// Submitter sends permits to the token or the bank. It checks field presence
// and format only; whether the signature is valid is for the contract to
// decide.
type Submitter struct {
	Token   *contracts.Token
	Bank    *contracts.Bank
	Sender  Transactor
	Now     func() time.Time
	Metrics *metrics.Metrics
}

func (s *Submitter) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Parse validates req and scales its value by the token's decimals.
func (s *Submitter) Parse(ctx context.Context, req SubmitRequest) (Permit, error) {
	var p Permit
	var err error

	if p.Owner, err = ParseAddress("owner", req.Owner); err != nil {
		return p, err
	}
	if p.Spender, err = ParseAddress("spender", req.Spender); err != nil {
		return p, err
	}
	if err = checkValue(req.Value); err != nil {
		return p, err
	}
	if p.Deadline, err = ParseDeadline(req.Deadline, s.now()); err != nil {
		return p, err
	}
	for _, f := range [][2]string{{"v", req.V}, {"r", req.R}, {"s", req.S}} {
		if strings.TrimSpace(f[1]) == "" {
			return p, validationError("missing_"+f[0], ErrMissingField, "%s is required", f[0])
		}
	}
	if p.Signature, err = eip712.ParseSignatureParts(req.V, req.R, req.S); err != nil {
		return p, validationError("invalid_signature", ErrInvalidSignature, "%v", err)
	}

	decimals, err := s.Token.Decimals(ctx)
	if err != nil {
		return p, errors.Wrap(err, "failed to read decimals")
	}
	if p.Value, err = scaleValue(req.Value, decimals); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Submitter) pack(method string, p Permit) (common.Address, []byte, error) {
	switch method {
	case MethodPermit:
		data, err := s.Token.PackPermit(p.Owner, p.Spender, p.Value, p.Deadline, p.Signature)
		return s.Token.Address, data, err
	case MethodPermitDeposit:
		if s.Bank == nil {
			return common.Address{}, nil, errors.New("no bank configured")
		}
		if p.Spender != s.Bank.Address {
			return common.Address{}, nil, validationError("invalid_spender", ErrInvalidAddress,
				"permitDeposit needs the bank %s as spender, got %s", s.Bank.Address.Hex(), p.Spender.Hex())
		}
		data, err := s.Bank.PackPermitDeposit(p.Owner, p.Value, p.Deadline, p.Signature)
		return s.Bank.Address, data, err
	}
	return common.Address{}, nil, errors.Errorf("unknown method %s", method)
}

// Dispatch broadcasts the call without waiting for it. An expired deadline
// is rejected before the wallet sees the transaction.
func (s *Submitter) Dispatch(ctx context.Context, method string, p Permit) (common.Hash, error) {
	if p.Deadline == nil || p.Deadline.Cmp(big.NewInt(s.now().Unix())) <= 0 {
		return common.Hash{}, validationError("deadline_passed", ErrDeadlinePassed,
			"deadline %v has passed", p.Deadline)
	}

	to, data, err := s.pack(method, p)
	if err != nil {
		return common.Hash{}, err
	}

	hash, err := s.Sender.Send(ctx, to, data)
	if err != nil {
		s.Metrics.Submitted(method, metrics.OutcomeFailed)
		return common.Hash{}, err
	}
	logrus.WithFields(logrus.Fields{"method": method, "tx": hash.Hex(), "owner": p.Owner.Hex()}).Info("Permit submitted")
	return hash, nil
}

// Confirm waits for a dispatched call.
func (s *Submitter) Confirm(ctx context.Context, method string, hash common.Hash) (*Submission, error) {
	start := time.Now()
	receipt, err := s.Sender.Wait(ctx, hash)
	s.Metrics.ReceiptWait(time.Since(start))
	if err != nil {
		s.Metrics.Submitted(method, metrics.OutcomeFailed)
		return &Submission{Method: method, TxHash: hash, Receipt: receipt}, err
	}
	s.Metrics.Submitted(method, metrics.OutcomeConfirmed)
	return &Submission{Method: method, TxHash: hash, Receipt: receipt}, nil
}

func (s *Submitter) submit(ctx context.Context, method string, p Permit) (*Submission, error) {
	hash, err := s.Dispatch(ctx, method, p)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, method, hash)
}

// SubmitPermit calls permit on the token.
func (s *Submitter) SubmitPermit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	p, err := s.Parse(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodPermit, p)
}

// SubmitPermitDeposit calls permitDeposit on the bank. The spender must be the
// bank.
func (s *Submitter) SubmitPermitDeposit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	p, err := s.Parse(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodPermitDeposit, p)
}
