package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domainInfo(fields byte) DomainInfo {
	return DomainInfo{
		Fields:            [1]byte{fields},
		Name:              "PermitToken",
		Version:           "1",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0"),
	}
}

func TestDomainInfoEIP712FollowsFieldBits(t *testing.T) {
	full := domainInfo(0x0f)
	require.NoError(t, full.Check())
	d := full.EIP712()
	assert.Equal(t, "PermitToken", d.Name)
	assert.Equal(t, "1", d.Version)
	assert.Equal(t, big.NewInt(31337), d.ChainID)
	assert.Equal(t, full.VerifyingContract, d.VerifyingContract)

	noVersion := domainInfo(FieldName | FieldChainID | FieldVerifyingContract)
	require.NoError(t, noVersion.Check())
	d = noVersion.EIP712()
	assert.Equal(t, "PermitToken", d.Name)
	assert.Empty(t, d.Version)
}

func TestDomainInfoCheck(t *testing.T) {
	tests := []struct {
		name string
		info DomainInfo
		msg  string
	}{
		{"salt", domainInfo(0x1f), "unsupported fields 0x1f"},
		{"no chain id", domainInfo(FieldName | FieldVersion | FieldVerifyingContract), "omit chainId"},
		{"no verifying contract", domainInfo(FieldName | FieldVersion | FieldChainID), "omit chainId or verifyingContract"},
		{"extensions", func() DomainInfo {
			d := domainInfo(0x0f)
			d.Extensions = []*big.Int{big.NewInt(1)}
			return d
		}(), "1 extensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Check()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
