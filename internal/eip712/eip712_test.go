package eip712

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDomain() Domain {
	return Domain{
		Name:              "PermitToken",
		Version:           "1",
		ChainID:           big.NewInt(11155111),
		VerifyingContract: common.HexToAddress("0x304e1260f58f501b5ad37c2fb064c4ff3a3de9df"),
	}
}

func TestHashMatchesApitypes(t *testing.T) {
	td := Permit(testDomain(), PermitMessage{
		Owner:    common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Spender:  common.HexToAddress("0xbb4498b24fc56157de369214b271588c401173fb"),
		Value:    new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		Nonce:    big.NewInt(3),
		Deadline: big.NewInt(1893456000),
	})

	h, err := Hash(td)
	require.NoError(t, err)

	want, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(want), h.Digest)

	split, err := SplitPreimage(common.Bytes2Hex(h.Preimage()))
	require.NoError(t, err)
	assert.Equal(t, h, split)
}

func TestDomainFieldsFollowSetMembers(t *testing.T) {
	d := testDomain()
	d.Version = ""
	td := PermitBuy(d, PermitBuyMessage{
		Buyer:     common.HexToAddress("0x01"),
		ListingID: big.NewInt(7),
		Deadline:  big.NewInt(1893456000),
	})

	names := make([]string, 0, 3)
	for _, f := range td.Types[domainType] {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "chainId", "verifyingContract"}, names)

	_, err := Hash(td)
	require.NoError(t, err)
}

func TestDomainValidate(t *testing.T) {
	assert.NoError(t, testDomain().Validate())

	d := testDomain()
	d.Name = ""
	assert.Error(t, d.Validate())

	d = testDomain()
	d.ChainID = big.NewInt(0)
	assert.Error(t, d.Validate())

	d = testDomain()
	d.VerifyingContract = common.Address{}
	assert.Error(t, d.Validate())
}

func TestSignSplitRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	td := Permit(testDomain(), PermitMessage{
		Owner:    owner,
		Spender:  common.HexToAddress("0xbb4498b24fc56157de369214b271588c401173fb"),
		Value:    big.NewInt(1),
		Nonce:    big.NewInt(0),
		Deadline: big.NewInt(1893456000),
	})
	h, err := Hash(td)
	require.NoError(t, err)

	raw, err := crypto.Sign(h.Digest.Bytes(), key)
	require.NoError(t, err)

	sig, err := SplitSignature(raw)
	require.NoError(t, err)
	assert.Contains(t, []uint8{27, 28}, sig.V)
	assert.Equal(t, raw[0:32], sig.R[:])
	assert.Equal(t, raw[32:64], sig.S[:])

	again, err := SplitSignatureHex(sig.Hex())
	require.NoError(t, err)
	assert.Equal(t, sig, again)

	recovered, err := Recover(h.Digest, sig)
	require.NoError(t, err)
	assert.Equal(t, owner, recovered)
}

func TestSplitSignature(t *testing.T) {
	_, err := SplitSignature(make([]byte, 64))
	assert.Error(t, err)

	raw := make([]byte, 65)
	raw[64] = 1
	sig, err := SplitSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(28), sig.V)

	raw[64] = 29
	_, err = SplitSignature(raw)
	assert.Error(t, err)

	_, err = SplitSignatureHex("0xzz")
	assert.Error(t, err)
}

func TestParseSignatureParts(t *testing.T) {
	r := "0x" + strings.Repeat("ab", 32)
	s := "0x" + strings.Repeat("cd", 32)

	sig, err := ParseSignatureParts("27", r, s)
	require.NoError(t, err)
	assert.Equal(t, uint8(27), sig.V)
	assert.Equal(t, byte(0xab), sig.R[0])
	assert.Equal(t, byte(0xcd), sig.S[31])

	sig, err = ParseSignatureParts("0x1c", r, s)
	require.NoError(t, err)
	assert.Equal(t, uint8(28), sig.V)

	sig, err = ParseSignatureParts("0", r, s)
	require.NoError(t, err)
	assert.Equal(t, uint8(27), sig.V)

	sig, err = ParseSignatureParts("1", r, s)
	require.NoError(t, err)
	assert.Equal(t, uint8(28), sig.V)

	tests := []struct {
		name    string
		v, r, s string
	}{
		{"missing v", "", r, s},
		{"v overflow", "300", r, s},
		{"v out of range", "29", r, s},
		{"v max byte", "255", r, s},
		{"v two", "2", r, s},
		{"missing r", "27", "", s},
		{"short s", "27", r, "0x1234"},
		{"r without prefix", "27", strings.Repeat("ab", 32), s},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignatureParts(tt.v, tt.r, tt.s)
			assert.Error(t, err)
		})
	}
}
