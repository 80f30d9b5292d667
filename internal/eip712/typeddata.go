// Package eip712 builds and hashes the typed data signed for permits and
// whitelist buys, and decodes the resulting signatures.
package eip712

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

const (
	PrimaryPermit    = "Permit"
	PrimaryPermitBuy = "PermitBuy"
	domainType       = "EIP712Domain"
)

// Domain is the EIP-712 domain separator input.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// PermitTypes are the EIP-2612 Permit fields.
var PermitTypes = []apitypes.Type{
	{Name: "owner", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// PermitBuyTypes are the fields of the market's whitelist buy authorisation.
var PermitBuyTypes = []apitypes.Type{
	{Name: "buyer", Type: "address"},
	{Name: "listingId", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// Validate rejects domains that would hash but never verify on chain.
func (d Domain) Validate() error {
	if d.Name == "" {
		return errors.New("domain name is empty")
	}
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return errors.New("domain chain id must be positive")
	}
	if d.VerifyingContract == (common.Address{}) {
		return errors.New("domain verifying contract is the zero address")
	}
	return nil
}

// fields lists the domain members in canonical order, omitting unset ones the
// same way apitypes.TypedDataDomain.Map does.
func (d Domain) fields() []apitypes.Type {
	var fields []apitypes.Type
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainID != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != (common.Address{}) {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	return fields
}

func (d Domain) typed() apitypes.TypedDataDomain {
	td := apitypes.TypedDataDomain{
		Name:    d.Name,
		Version: d.Version,
	}
	if d.ChainID != nil {
		td.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID))
	}
	if d.VerifyingContract != (common.Address{}) {
		td.VerifyingContract = d.VerifyingContract.Hex()
	}
	return td
}

// TypedData assembles the payload handed to a wallet.
func TypedData(domain Domain, fields []apitypes.Type, primaryType string, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			domainType:  domain.fields(),
			primaryType: fields,
		},
		PrimaryType: primaryType,
		Domain:      domain.typed(),
		Message:     message,
	}
}

// PermitMessage is the EIP-2612 message.
type PermitMessage struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// Permit builds the typed data for an EIP-2612 permit.
func Permit(domain Domain, msg PermitMessage) apitypes.TypedData {
	return TypedData(domain, PermitTypes, PrimaryPermit, apitypes.TypedDataMessage{
		"owner":    msg.Owner.Hex(),
		"spender":  msg.Spender.Hex(),
		"value":    new(big.Int).Set(msg.Value),
		"nonce":    new(big.Int).Set(msg.Nonce),
		"deadline": new(big.Int).Set(msg.Deadline),
	})
}

// PermitBuyMessage authorises buyer to purchase a listing before deadline.
type PermitBuyMessage struct {
	Buyer     common.Address
	ListingID *big.Int
	Deadline  *big.Int
}

// PermitBuy builds the typed data for a whitelist buy.
func PermitBuy(domain Domain, msg PermitBuyMessage) apitypes.TypedData {
	return TypedData(domain, PermitBuyTypes, PrimaryPermitBuy, apitypes.TypedDataMessage{
		"buyer":     msg.Buyer.Hex(),
		"listingId": new(big.Int).Set(msg.ListingID),
		"deadline":  new(big.Int).Set(msg.Deadline),
	})
}

// Hashes are the parts of a typed data digest.
type Hashes struct {
	Digest          common.Hash
	DomainSeparator common.Hash
	StructHash      common.Hash
}

// Hash computes keccak256(0x19 0x01 || domainSeparator || structHash).
func Hash(td apitypes.TypedData) (Hashes, error) {
	domainSeparator, err := td.HashStruct(domainType, td.Domain.Map())
	if err != nil {
		return Hashes{}, errors.Wrap(err, "failed to hash domain")
	}

	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return Hashes{}, errors.Wrap(err, "failed to hash struct")
	}

	h := Hashes{
		DomainSeparator: common.BytesToHash(domainSeparator),
		StructHash:      common.BytesToHash(structHash),
	}
	h.Digest = crypto.Keccak256Hash(h.Preimage())
	return h, nil
}

// Preimage is the 66 byte string whose keccak is the digest. Hardware wallets
// sign it as typed data.
func (h Hashes) Preimage() []byte {
	raw := make([]byte, 0, 66)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, h.DomainSeparator.Bytes()...)
	return append(raw, h.StructHash.Bytes()...)
}

// SplitPreimage parses a 0x1901 prefixed hex preimage into its domain and
// message hashes.
func SplitPreimage(input string) (Hashes, error) {
	raw := common.FromHex(input)
	if len(raw) != 66 {
		return Hashes{}, errors.Errorf("expected EIP-712 hex string with 66 bytes, got %d bytes", len(raw))
	}
	if raw[0] != 0x19 || raw[1] != 0x01 {
		return Hashes{}, errors.Errorf("expected 0x1901 prefix, got 0x%x", raw[:2])
	}

	h := Hashes{
		DomainSeparator: common.BytesToHash(raw[2:34]),
		StructHash:      common.BytesToHash(raw[34:66]),
	}
	h.Digest = crypto.Keccak256Hash(raw)
	return h, nil
}
