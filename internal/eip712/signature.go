package eip712

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SignatureLength is the size of an r || s || v signature.
const SignatureLength = 65

var bytes32Pattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Signature is a secp256k1 signature in the form contracts take as arguments.
// V is always 27 or 28.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// SplitSignature decodes a 65 byte signature. A recovery id of 0 or 1 is
// lifted to 27 or 28.
func SplitSignature(sig []byte) (Signature, error) {
	if len(sig) != SignatureLength {
		return Signature{}, errors.Errorf("invalid signature length: %d", len(sig))
	}

	var s Signature
	copy(s.R[:], sig[0:32])
	copy(s.S[:], sig[32:64])
	v, err := normalizeV(sig[64])
	if err != nil {
		return Signature{}, err
	}
	s.V = v
	return s, nil
}

// normalizeV accepts 0, 1, 27 and 28 and returns 27 or 28.
func normalizeV(v uint8) (uint8, error) {
	switch v {
	case 0, 1:
		return v + 27, nil
	case 27, 28:
		return v, nil
	}
	return 0, errors.Errorf("invalid recovery id: %d", v)
}

// SplitSignatureHex decodes a 0x prefixed hex signature.
func SplitSignatureHex(sig string) (Signature, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(sig))
	if err != nil {
		return Signature{}, errors.Wrap(err, "invalid signature hex")
	}
	return SplitSignature(raw)
}

// ParseSignatureParts reads externally supplied components. Only the format is
// checked, the signature itself is left for the receiving contract to judge.
func ParseSignatureParts(v, r, s string) (Signature, error) {
	var sig Signature

	v = strings.TrimSpace(v)
	if v == "" {
		return sig, errors.New("v is required")
	}
	base := 10
	if strings.HasPrefix(v, "0x") {
		v, base = v[2:], 16
	}
	n, err := strconv.ParseUint(v, base, 8)
	if err != nil {
		return sig, errors.Errorf("invalid v: %q", v)
	}
	if sig.V, err = normalizeV(uint8(n)); err != nil {
		return sig, errors.Wrap(err, "invalid v")
	}

	for _, part := range []struct {
		name  string
		value string
		dst   *[32]byte
	}{{"r", r, &sig.R}, {"s", s, &sig.S}} {
		value := strings.TrimSpace(part.value)
		if value == "" {
			return sig, errors.Errorf("%s is required", part.name)
		}
		if !bytes32Pattern.MatchString(value) {
			return sig, errors.Errorf("invalid %s: expected 0x followed by 64 hex characters", part.name)
		}
		copy(part.dst[:], common.FromHex(value))
	}

	return sig, nil
}

// Bytes re-assembles r || s || v.
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	copy(out[0:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// Hex is the 0x prefixed form of Bytes.
func (s Signature) Hex() string {
	return hexutil.Encode(s.Bytes())
}

// Recover returns the address that produced sig over digest.
func Recover(digest common.Hash, sig Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, errors.Errorf("invalid recovery id: %d", sig.V)
	}

	raw := sig.Bytes()
	raw[64] -= 27

	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
