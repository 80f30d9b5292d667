package template

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/events"
	"github.com/jackchuma/tokenbank/internal/permit"
)

// JSON types for tools that consume signatures without the markdown report.
type SignatureReport struct {
	ChainID        string          `json:"chain_id"`
	Chain          string          `json:"chain"`
	Domain         DomainReport    `json:"domain"`
	Message        PermitMessage   `json:"message"`
	Signature      SignatureFields `json:"signature"`
	Digest         string          `json:"digest"`
	DomainFallback bool            `json:"domain_fallback"`
}

type DomainReport struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	VerifyingContract string `json:"verifying_contract"`
	ContractName      string `json:"contract_name"`
	DomainHash        string `json:"domain_hash"`
}

type PermitMessage struct {
	Owner    string `json:"owner"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Nonce    string `json:"nonce"`
	Deadline string `json:"deadline"`
}

// SignatureFields are the permit call arguments as strings, the same shape
// the submit commands and the relay accept.
type SignatureFields struct {
	V         uint8  `json:"v"`
	R         string `json:"r"`
	S         string `json:"s"`
	Signature string `json:"signature"`
}

type EventSummary struct {
	Market string         `json:"market"`
	Counts map[string]int `json:"counts"`
	Kinds  []string       `json:"kinds"`
}

// NewSignatureReport flattens a permit result.
func NewSignatureReport(names Names, r *permit.Result) (*SignatureReport, error) {
	h, err := eip712.Hash(r.TypedData())
	if err != nil {
		return nil, err
	}
	return &SignatureReport{
		ChainID: r.Domain.ChainID.String(),
		Chain:   names.Chain,
		Domain: DomainReport{
			Name:              r.Domain.Name,
			Version:           r.Domain.Version,
			VerifyingContract: r.Domain.VerifyingContract.Hex(),
			ContractName:      names.contract(r.Domain.VerifyingContract),
			DomainHash:        h.DomainSeparator.Hex(),
		},
		Message: PermitMessage{
			Owner:    r.Owner.Hex(),
			Spender:  r.Spender.Hex(),
			Value:    r.Value.String(),
			Nonce:    r.Nonce.String(),
			Deadline: r.Deadline.String(),
		},
		Signature: SignatureFields{
			V:         r.Signature.V,
			R:         common.Hash(r.Signature.R).Hex(),
			S:         common.Hash(r.Signature.S).Hex(),
			Signature: r.Signature.Hex(),
		},
		Digest:         r.Digest.Hex(),
		DomainFallback: r.DomainFallback,
	}, nil
}

// NewEventSummary counts records per kind.
func NewEventSummary(names Names, snap events.Snapshot) EventSummary {
	counts := map[events.Kind]int{
		events.KindListed:    len(snap.Listed),
		events.KindSold:      len(snap.Sold),
		events.KindCancelled: len(snap.Cancelled),
	}
	summary := EventSummary{Market: names.Addresses.Market.Hex(), Counts: make(map[string]int)}
	for _, k := range sortedKinds(counts) {
		if counts[k] == 0 {
			continue
		}
		summary.Counts[string(k)] = counts[k]
		summary.Kinds = append(summary.Kinds, string(k))
	}
	return summary
}
