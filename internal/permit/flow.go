// Package permit produces and submits EIP-2612 permit signatures.
package permit

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TokenReader is the read side of a permit token. *contracts.Token
// implements it.
type TokenReader interface {
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
	Domain(ctx context.Context) (contracts.DomainInfo, error)
	DomainSeparator(ctx context.Context) (common.Hash, error)
}

// Signer is the connected account as seen by the flow.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

// Config wires a Flow.
type Config struct {
	Token        TokenReader
	TokenAddress common.Address
	Signer       Signer

	// Strict refuses to sign when eip712Domain() cannot be read. With Strict
	// unset, Fallback is used instead and the result is flagged.
	Strict   bool
	Fallback *config.Domain

	Now     func() time.Time
	Metrics *metrics.Metrics
}

// ContractData is the on-chain state a signature is built from.
type ContractData struct {
	Owner           common.Address
	Nonce           *big.Int
	Decimals        uint8
	Domain          *contracts.DomainInfo
	DomainErr       error
	DomainSeparator common.Hash
	LoadedAt        time.Time
}

// Request is a signature request as typed by the user. Value is in token
// units, Deadline in Unix seconds or RFC 3339.
type Request struct {
	Owner    string `json:"owner"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Deadline string `json:"deadline"`
}

// Result is a signed permit, ready to be used as call arguments.
type Result struct {
	Owner          common.Address   `json:"owner"`
	Spender        common.Address   `json:"spender"`
	Value          *big.Int         `json:"value"`
	Nonce          *big.Int         `json:"nonce"`
	Deadline       *big.Int         `json:"deadline"`
	Signature      eip712.Signature `json:"-"`
	Raw            hexutil.Bytes    `json:"signature"`
	Digest         common.Hash      `json:"digest"`
	Domain         eip712.Domain    `json:"-"`
	DomainFallback bool             `json:"domainFallback"`
}

// TypedData rebuilds the payload that was signed.
func (r *Result) TypedData() apitypes.TypedData {
	return eip712.Permit(r.Domain, eip712.PermitMessage{
		Owner:    r.Owner,
		Spender:  r.Spender,
		Value:    r.Value,
		Nonce:    r.Nonce,
		Deadline: r.Deadline,
	})
}

// Flow turns permit requests into signatures for one token and one connected
// account. Nonces are whatever was last loaded: the flow never increments
// them itself.
type Flow struct {
	cfg Config
	log *logrus.Entry

	mu   sync.Mutex
	data *ContractData
}

func NewFlow(cfg Config) *Flow {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Flow{
		cfg: cfg,
		log: logrus.WithFields(logrus.Fields{"component": "permit", "token": cfg.TokenAddress.Hex()}),
	}
}

// Signer is the connected account.
func (f *Flow) Signer() Signer {
	return f.cfg.Signer
}

// Load reads the owner's nonce, the token decimals and the token's domain.
// A domain read failure is recorded rather than returned; GenerateSignature
// decides what to do with it.
func (f *Flow) Load(ctx context.Context, owner common.Address) (*ContractData, error) {
	nonce, err := f.cfg.Token.Nonces(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read nonce")
	}

	decimals, err := f.cfg.Token.Decimals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read decimals")
	}

	data := &ContractData{
		Owner:    owner,
		Nonce:    nonce,
		Decimals: decimals,
		LoadedAt: f.cfg.Now(),
	}

	domain, err := f.cfg.Token.Domain(ctx)
	if err != nil {
		data.DomainErr = err
		f.log.WithError(err).Warn("Failed to read eip712Domain")
	} else {
		data.Domain = &domain
	}

	if sep, err := f.cfg.Token.DomainSeparator(ctx); err == nil {
		data.DomainSeparator = sep
	} else {
		f.log.WithError(err).Debug("DOMAIN_SEPARATOR not available")
	}

	f.mu.Lock()
	f.data = data
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{"owner": owner.Hex(), "nonce": nonce, "decimals": decimals}).Debug("Contract data loaded")
	return data, nil
}

// Refresh reloads the contract data for the last loaded owner.
func (f *Flow) Refresh(ctx context.Context) (*ContractData, error) {
	f.mu.Lock()
	data := f.data
	f.mu.Unlock()
	if data == nil {
		return nil, ErrContractDataNotReady
	}
	return f.Load(ctx, data.Owner)
}

// Data returns the current snapshot, or nil before the first Load.
func (f *Flow) Data() *ContractData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

// Check performs every check GenerateSignature does before prompting the
// wallet.
func (f *Flow) Check(req Request) error {
	_, _, _, _, err := f.precheck(req)
	return err
}

func (f *Flow) precheck(req Request) (owner, spender common.Address, deadline *big.Int, data *ContractData, err error) {
	if owner, err = ParseAddress("owner", req.Owner); err != nil {
		return
	}
	if spender, err = ParseAddress("spender", req.Spender); err != nil {
		return
	}
	if err = checkValue(req.Value); err != nil {
		return
	}
	if deadline, err = ParseDeadline(req.Deadline, f.cfg.Now()); err != nil {
		return
	}

	if connected := f.cfg.Signer.Address(); owner != connected {
		err = validationError("owner_mismatch", ErrOwnerMismatch,
			"owner must be the connected wallet: connected %s, owner %s", connected.Hex(), owner.Hex())
		return
	}

	data = f.Data()
	if data == nil || data.Owner != owner {
		err = newError(KindValidation, "contract_data_not_ready", ErrContractDataNotReady,
			"contract data not ready: nonce and domain for %s have not been loaded", owner.Hex())
		return
	}
	return
}

// domain assembles the signing domain from the snapshot.
func (f *Flow) domain(data *ContractData) (eip712.Domain, bool, error) {
	chainID := f.cfg.Signer.ChainID()

	var (
		d        eip712.Domain
		fallback bool
	)
	switch {
	case data.Domain != nil:
		if data.Domain.VerifyingContract != f.cfg.TokenAddress {
			return d, false, newError(KindContract, "domain_mismatch", ErrDomainMismatch,
				"token reports verifying contract %s, expected %s", data.Domain.VerifyingContract.Hex(), f.cfg.TokenAddress.Hex())
		}
		if data.Domain.ChainID.Cmp(chainID) != 0 {
			return d, false, newError(KindWallet, "chain_mismatch", ErrChainMismatch,
				"token domain is for chain %s, wallet is connected to chain %s", data.Domain.ChainID, chainID)
		}
		d = data.Domain.EIP712()
	case f.cfg.Strict || f.cfg.Fallback == nil:
		return d, false, newError(KindContract, "domain_unavailable", ErrDomainUnavailable,
			"cannot sign: eip712Domain() failed on %s: %v", f.cfg.TokenAddress.Hex(), data.DomainErr)
	default:
		f.log.WithError(data.DomainErr).WithFields(logrus.Fields{
			"name":    f.cfg.Fallback.Name,
			"version": f.cfg.Fallback.Version,
		}).Warn("Signing with the configured fallback domain; the token may reject this signature")
		d = eip712.Domain{Name: f.cfg.Fallback.Name, Version: f.cfg.Fallback.Version}
		fallback = true
	}

	d.ChainID = chainID
	d.VerifyingContract = f.cfg.TokenAddress
	if err := d.Validate(); err != nil {
		return d, false, newError(KindContract, "domain_invalid", ErrDomainMismatch, "invalid domain: %v", err)
	}
	return d, fallback, nil
}

// GenerateSignature validates req, builds the permit typed data from the
// loaded contract data and asks the connected wallet to sign it. Nothing
// reaches the wallet unless every check passes.
func (f *Flow) GenerateSignature(ctx context.Context, req Request) (*Result, error) {
	owner, spender, deadline, data, err := f.precheck(req)
	if err != nil {
		return nil, err
	}

	domain, fallback, err := f.domain(data)
	if err != nil {
		return nil, err
	}

	value, err := scaleValue(req.Value, data.Decimals)
	if err != nil {
		return nil, err
	}

	td := eip712.Permit(domain, eip712.PermitMessage{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    data.Nonce,
		Deadline: deadline,
	})
	h, err := eip712.Hash(td)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash permit")
	}

	if data.DomainSeparator != (common.Hash{}) && data.DomainSeparator != h.DomainSeparator {
		return nil, newError(KindContract, "domain_mismatch", ErrDomainMismatch,
			"domain separator %s does not match the token's DOMAIN_SEPARATOR %s",
			h.DomainSeparator.Hex(), data.DomainSeparator.Hex())
	}

	f.log.WithFields(logrus.Fields{
		"owner":    owner.Hex(),
		"spender":  spender.Hex(),
		"value":    value,
		"nonce":    data.Nonce,
		"deadline": deadline,
	}).Info("Requesting permit signature")

	raw, err := f.cfg.Signer.SignTypedData(ctx, td)
	if err != nil {
		if errors.Is(err, ErrSignatureCancelled) || errors.Is(err, context.Canceled) {
			return nil, newError(KindWallet, "signature_cancelled", ErrSignatureCancelled, "signature cancelled")
		}
		return nil, newError(KindWallet, "signing_failed", err, "wallet failed to sign: %v", err)
	}
	if len(raw) == 0 {
		return nil, newError(KindWallet, "signature_cancelled", ErrSignatureCancelled, "signature cancelled")
	}

	sig, err := eip712.SplitSignature(raw)
	if err != nil {
		return nil, newError(KindWallet, "invalid_signature", ErrInvalidSignature, "wallet returned an unusable signature: %v", err)
	}

	f.cfg.Metrics.SignatureGenerated(eip712.PrimaryPermit)

	return &Result{
		Owner:          owner,
		Spender:        spender,
		Value:          value,
		Nonce:          new(big.Int).Set(data.Nonce),
		Deadline:       deadline,
		Signature:      sig,
		Raw:            sig.Bytes(),
		Digest:         h.Digest,
		Domain:         domain,
		DomainFallback: fallback,
	}, nil
}

// Verify recovers the signer of r and checks it is the owner.
func Verify(r *Result) error {
	h, err := eip712.Hash(r.TypedData())
	if err != nil {
		return err
	}
	signer, err := eip712.Recover(h.Digest, r.Signature)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if signer != r.Owner {
		return errors.Wrapf(ErrInvalidSignature, "signed by %s, owner is %s", signer.Hex(), r.Owner.Hex())
	}
	return nil
}
