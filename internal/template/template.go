package template

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/events"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/units"
)

const DEFAULT_CONTRACT = "<<ContractName>>"

var signatureTemplate = `# Permit Signature

This document describes an EIP-2612 permit produced by the connected wallet. Anyone holding it can submit it until the deadline.

> [!NOTE]
>
> Names are resolved from the contract registry. All that matters is that the addresses and hashes below match what your wallet displayed.

The steps are:

1. [Validate the domain](#domain)
2. [Validate the message](#message)
3. [Submit the signature](#signature)

<<StartFallbackWarning>>

> [!WARNING]
>
> The token did not report its EIP-712 domain. This signature was built from the registry's fallback domain and may be rejected on submission.

<<EndFallbackWarning>>

## Domain

<<Domain>>

## Message

<<Message>>

## Signature

<<Signature>>

`

var eventsTemplate = `# Market Events

Events observed on <<Market>>, newest first.

<<StartListed>>

## Listed

<<Listed>>

<<EndListed>>

<<StartSold>>

## Sold

<<Sold>>

<<EndSold>>

<<StartCancelled>>

## Cancelled

<<Cancelled>>

<<EndCancelled>>

`

// Names resolves contract names for a deployment.
type Names struct {
	Chain     string
	Addresses config.Addresses
}

func (n Names) contract(addr common.Address) string {
	switch addr {
	case common.Address{}:
		return DEFAULT_CONTRACT
	case n.Addresses.PermitToken:
		return "PermitToken"
	case n.Addresses.Token:
		return "MyToken"
	case n.Addresses.PermitBank:
		return "PermitTokenBank"
	case n.Addresses.Bank:
		return "TokenBank"
	case n.Addresses.NFT:
		return "NFT"
	case n.Addresses.Market:
		return "NFTMarket"
	}
	return DEFAULT_CONTRACT
}

func (n Names) label(addr common.Address) string {
	return fmt.Sprintf("%s (`%s`)", n.contract(addr), addr.Hex())
}

// BuildSignatureReport renders a markdown report for a permit. Amounts are
// shown both raw and scaled by decimals.
func BuildSignatureReport(names Names, decimals uint8, r *permit.Result) ([]byte, error) {
	h, err := eip712.Hash(r.TypedData())
	if err != nil {
		return nil, err
	}

	template := handleDomain(signatureTemplate, names, r.Domain, h)
	template = handleMessage(template, names, decimals, r)
	template = handleSignature(template, r)
	template = handleSection(template, "FallbackWarning", r.DomainFallback)
	return []byte(strings.TrimSuffix(template, "\n")), nil
}

func handleDomain(template string, names Names, d eip712.Domain, h eip712.Hashes) string {
	var domain string
	domain += fmt.Sprintf("- **Name**: `%s`\n", d.Name)
	domain += fmt.Sprintf("- **Version**: `%s`\n", d.Version)
	domain += fmt.Sprintf("- **Chain ID**: `%s` (%s)\n", d.ChainID, names.Chain)
	domain += fmt.Sprintf("- **Verifying Contract**: %s\n", names.label(d.VerifyingContract))
	domain += fmt.Sprintf("- **Domain Hash**: `%s`", h.DomainSeparator.Hex())
	return strings.Replace(template, "<<Domain>>", domain, 1)
}

func handleMessage(template string, names Names, decimals uint8, r *permit.Result) string {
	var message string
	message += fmt.Sprintf("- **Owner**: `%s`\n", r.Owner.Hex())
	message += fmt.Sprintf("- **Spender**: %s\n", names.label(r.Spender))
	message += fmt.Sprintf("- **Value**: `%s` (%s tokens)\n", r.Value, formatAmount(r.Value, decimals))
	message += fmt.Sprintf("- **Nonce**: `%s`\n", r.Nonce)
	message += fmt.Sprintf("- **Deadline**: `%s` (%s)\n", r.Deadline, formatDeadline(r.Deadline))
	message += fmt.Sprintf("- **Digest**: `%s`", r.Digest.Hex())
	return strings.Replace(template, "<<Message>>", message, 1)
}

func handleSignature(template string, r *permit.Result) string {
	var signature string
	signature += fmt.Sprintf("- **v**: `%d`\n", r.Signature.V)
	signature += fmt.Sprintf("- **r**: `%s`\n", common.Hash(r.Signature.R).Hex())
	signature += fmt.Sprintf("- **s**: `%s`\n", common.Hash(r.Signature.S).Hex())
	signature += fmt.Sprintf("- **Signature**: `%s`", r.Signature.Hex())
	return strings.Replace(template, "<<Signature>>", signature, 1)
}

// handleSection keeps or removes the text between <<Start{name}>> and
// <<End{name}>>.
func handleSection(template, name string, keep bool) string {
	startKey := "<<Start" + name + ">>\n\n"
	endKey := "<<End" + name + ">>\n\n"

	if keep {
		template = strings.Replace(template, startKey, "", 1)
		return strings.Replace(template, endKey, "", 1)
	}

	startIdx := strings.Index(template, startKey)
	endIdx := strings.Index(template, endKey)
	if startIdx < 0 || endIdx < startIdx {
		return template
	}
	return template[:startIdx] + template[endIdx+len(endKey):]
}

// BuildEventReport renders the feed snapshot as markdown. Empty kinds are
// omitted.
func BuildEventReport(names Names, decimals uint8, snap events.Snapshot) []byte {
	template := strings.Replace(eventsTemplate, "<<Market>>", names.label(names.Addresses.Market), 1)

	var listed []string
	for _, e := range snap.Listed {
		listed = append(listed, fmt.Sprintf("- **#%s** token `%s` of %s listed by `%s` for %s <br/>\n  %s",
			e.ListingID, e.TokenID, names.label(e.NFTContract), e.Seller.Hex(), formatAmount(e.Price, decimals), location(e.Meta)))
	}
	var sold []string
	for _, e := range snap.Sold {
		sold = append(sold, fmt.Sprintf("- **#%s** token `%s` sold by `%s` to `%s` for %s <br/>\n  %s",
			e.ListingID, e.TokenID, e.Seller.Hex(), e.Buyer.Hex(), formatAmount(e.Price, decimals), location(e.Meta)))
	}
	var cancelled []string
	for _, e := range snap.Cancelled {
		cancelled = append(cancelled, fmt.Sprintf("- **#%s** cancelled <br/>\n  %s", e.ListingID, location(e.Meta)))
	}

	for _, section := range []struct {
		name  string
		lines []string
	}{{"Listed", listed}, {"Sold", sold}, {"Cancelled", cancelled}} {
		template = strings.Replace(template, "<<"+section.name+">>", strings.Join(section.lines, "\n"), 1)
		template = handleSection(template, section.name, len(section.lines) > 0)
	}
	return []byte(strings.TrimSuffix(template, "\n"))
}

func location(m events.Meta) string {
	at := "unknown time"
	if !m.Timestamp.IsZero() {
		at = m.Timestamp.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("block %d, tx `%s`, %s", m.BlockNumber, m.TxHash.Hex(), at)
}

func formatAmount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return v.String()
	}
	return units.FormatUnits(u, decimals)
}

func formatDeadline(deadline *big.Int) string {
	if deadline == nil || !deadline.IsInt64() {
		return "never"
	}
	return time.Unix(deadline.Int64(), 0).UTC().Format(time.RFC3339)
}

// sortedKinds lists event kinds alphabetically.
func sortedKinds(counts map[events.Kind]int) []events.Kind {
	kinds := make([]events.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
