package command

import (
	"encoding/json"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/template"
	"github.com/pkg/errors"
)

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(in io.Reader, name string) ([]byte, error) {
	if name == "" || name == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, errors.Wrap(err, "error reading from stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", name)
	}
	return data, nil
}

// extract returns the part of input between prefix and suffix. Missing
// markers leave that side untouched, so plain JSON passes through.
func extract(input []byte, prefix, suffix string) []byte {
	if index := strings.Index(string(input), prefix); prefix != "" && index >= 0 {
		input = input[index+len(prefix):]
	}
	if index := strings.Index(string(input), suffix); suffix != "" && index >= 0 {
		input = input[:index]
	}
	return []byte(strings.TrimSpace(string(input)))
}

func bigString(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Errorf("report %s is not a non-negative integer: %q", field, s)
	}
	return v, nil
}

// decodeReport turns a JSON signature report back into a permit result.
func decodeReport(data []byte) (*permit.Result, error) {
	var r template.SignatureReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "input is not a signature report")
	}

	chainID, err := bigString("chain_id", r.ChainID)
	if err != nil {
		return nil, err
	}
	for field, addr := range map[string]string{
		"verifying_contract": r.Domain.VerifyingContract,
		"owner":              r.Message.Owner,
		"spender":            r.Message.Spender,
	} {
		if !common.IsHexAddress(addr) {
			return nil, errors.Errorf("report %s is not an address: %q", field, addr)
		}
	}

	res := &permit.Result{
		Owner:   common.HexToAddress(r.Message.Owner),
		Spender: common.HexToAddress(r.Message.Spender),
		Domain: eip712.Domain{
			Name:              r.Domain.Name,
			Version:           r.Domain.Version,
			ChainID:           chainID,
			VerifyingContract: common.HexToAddress(r.Domain.VerifyingContract),
		},
		DomainFallback: r.DomainFallback,
	}
	if res.Value, err = bigString("value", r.Message.Value); err != nil {
		return nil, err
	}
	if res.Nonce, err = bigString("nonce", r.Message.Nonce); err != nil {
		return nil, err
	}
	if res.Deadline, err = bigString("deadline", r.Message.Deadline); err != nil {
		return nil, err
	}
	if res.Signature, err = eip712.SplitSignatureHex(r.Signature.Signature); err != nil {
		return nil, err
	}
	res.Raw = res.Signature.Bytes()

	h, err := eip712.Hash(res.TypedData())
	if err != nil {
		return nil, err
	}
	res.Digest = h.Digest
	if r.Digest != "" && common.HexToHash(r.Digest) != h.Digest {
		return nil, errors.Errorf("report digest %s does not match the recomputed digest %s", r.Digest, h.Digest.Hex())
	}
	return res, nil
}
