package command

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/jackchuma/tokenbank/internal/eip712"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/template"
	"github.com/jackchuma/tokenbank/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	permitToken = common.HexToAddress("0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0")
	permitBank  = common.HexToAddress("0xcf7ed3acca5a467e9e704c703e8d87f634fb0fc9")
	names       = template.Names{
		Chain:     "anvil",
		Addresses: config.Addresses{PermitToken: permitToken, PermitBank: permitBank},
	}
)

func signedReport(t *testing.T) (*permit.Result, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := wallet.FromKey(key, big.NewInt(31337))

	domain := eip712.Domain{Name: "PermitToken", Version: "1", ChainID: big.NewInt(31337), VerifyingContract: permitToken}
	msg := eip712.PermitMessage{
		Owner:    w.Address(),
		Spender:  permitBank,
		Value:    big.NewInt(5e18),
		Nonce:    big.NewInt(2),
		Deadline: big.NewInt(1_900_000_000),
	}
	td := eip712.Permit(domain, msg)
	raw, err := w.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	sig, err := eip712.SplitSignature(raw)
	require.NoError(t, err)
	h, err := eip712.Hash(td)
	require.NoError(t, err)

	res := &permit.Result{
		Owner: msg.Owner, Spender: msg.Spender, Value: msg.Value, Nonce: msg.Nonce, Deadline: msg.Deadline,
		Signature: sig, Raw: sig.Bytes(), Digest: h.Digest, Domain: domain,
	}
	r, err := template.NewSignatureReport(names, res)
	require.NoError(t, err)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return res, data
}

func execute(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	root := RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(bytes.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name, input, want string
	}{
		{"no markers", " {\"a\":1}\n", `{"a":1}`},
		{"both markers", "log line\nvvvvvvvv\n{\"a\":1}\n^^^^^^^^\ntrailer", `{"a":1}`},
		{"prefix only", "noise vvvvvvvv{}", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(extract([]byte(tt.input), defaultPrefix, defaultSuffix)))
		})
	}
}

func TestDecodeReportRoundTrip(t *testing.T) {
	res, data := signedReport(t)

	got, err := decodeReport(data)
	require.NoError(t, err)
	assert.Equal(t, res.Owner, got.Owner)
	assert.Equal(t, res.Value, got.Value)
	assert.Equal(t, res.Digest, got.Digest)
	assert.Equal(t, res.Signature, got.Signature)
	assert.NoError(t, permit.Verify(got))
}

func TestDecodeReportRejectsDigestMismatch(t *testing.T) {
	_, data := signedReport(t)
	var r template.SignatureReport
	require.NoError(t, json.Unmarshal(data, &r))
	r.Message.Nonce = "3"
	tampered, err := json.Marshal(r)
	require.NoError(t, err)

	_, err = decodeReport(tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match the recomputed digest")

	_, err = decodeReport([]byte("not json"))
	assert.Error(t, err)
}

func TestPermitVerifyCommand(t *testing.T) {
	res, data := signedReport(t)

	wrapped := append(append([]byte("forge output\nvvvvvvvv\n"), data...), []byte("\n^^^^^^^^\n")...)
	out, err := execute(t, wrapped, "permit", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Signature is valid: signed by "+res.Owner.Hex())

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	out, err = execute(t, nil, "permit", "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, res.Digest.Hex())
}

func TestPermitVerifyCommandRejectsForeignSignature(t *testing.T) {
	_, data := signedReport(t)
	_, other := signedReport(t)

	var r, o template.SignatureReport
	require.NoError(t, json.Unmarshal(data, &r))
	require.NoError(t, json.Unmarshal(other, &o))
	r.Signature = o.Signature
	r.Digest = ""
	mixed, err := json.Marshal(r)
	require.NoError(t, err)

	_, err = execute(t, mixed, "permit", "verify")
	require.Error(t, err)
	assert.ErrorIs(t, err, permit.ErrInvalidSignature)
}

func TestUnknownFormat(t *testing.T) {
	_, err := execute(t, nil, "--format", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")

	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestCommandTree(t *testing.T) {
	root := RootCommand()
	for _, path := range [][]string{
		{"balance"}, {"token", "info"}, {"approve"}, {"transfer"},
		{"bank", "deposit"}, {"bank", "withdraw"}, {"bank", "balance"},
		{"permit", "sign"}, {"permit", "verify"}, {"permit", "submit"}, {"permit", "deposit"},
		{"nft", "mint"}, {"nft", "list"}, {"nft", "buy"}, {"nft", "cancel"}, {"nft", "info"},
		{"nft", "permit-sign"}, {"nft", "permit-buy"},
		{"events", "watch"}, {"serve"}, {"version"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestParseHelpers(t *testing.T) {
	v, err := parseAmount("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500_000), v)

	_, err = parseAmount("0", 18)
	assert.Error(t, err)
	_, err = parseAmount("1.1234567", 6)
	assert.Error(t, err)

	id, err := parseID("listing_id", " 12 ")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12), id)

	_, err = parseID("listing_id", "x")
	var e *permit.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "invalid_listing_id", e.Code)

	assert.Equal(t, "2.5", formatBig(big.NewInt(25e17), 18))
}

func TestSignRequestDefaults(t *testing.T) {
	account := common.HexToAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	other := common.HexToAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")

	req, err := signRequest(account, permitBank, "", "", "1.5", "1900000000")
	require.NoError(t, err)
	assert.Equal(t, account.Hex(), req.Owner)
	assert.Equal(t, permitBank.Hex(), req.Spender)
	assert.Equal(t, "1.5", req.Value)

	req, err = signRequest(account, permitBank, other.Hex(), permitToken.Hex(), "1", "1900000000")
	require.NoError(t, err)
	assert.Equal(t, other.Hex(), req.Owner)
	assert.Equal(t, permitToken.Hex(), req.Spender)

	_, err = signRequest(account, common.Address{}, "", "", "1", "1900000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no permit bank contract configured")

	req, err = signRequest(account, common.Address{}, "", other.Hex(), "1", "1900000000")
	require.NoError(t, err)
	assert.Equal(t, other.Hex(), req.Spender)
}
