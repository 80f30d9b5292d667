package units

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
		err      error
	}{
		{name: "whole tokens", amount: "10", decimals: 18, want: "10000000000000000000"},
		{name: "fraction", amount: "0.25", decimals: 18, want: "250000000000000000"},
		{name: "leading point", amount: ".5", decimals: 6, want: "500000"},
		{name: "trailing zeros beyond decimals", amount: "1.500000", decimals: 2, want: "150"},
		{name: "zero decimals", amount: "42", decimals: 0, want: "42"},
		{name: "zero", amount: "0.0", decimals: 18, want: "0"},
		{name: "whitespace", amount: " 3 ", decimals: 1, want: "30"},
		{name: "empty", amount: "", decimals: 18, err: ErrEmptyAmount},
		{name: "negative", amount: "-1", decimals: 18, err: ErrNegativeAmount},
		{name: "letters", amount: "1e18", decimals: 18, err: ErrInvalidAmount},
		{name: "lone point", amount: ".", decimals: 18, err: ErrInvalidAmount},
		{name: "two points", amount: "1.2.3", decimals: 18, err: ErrInvalidAmount},
		{name: "too precise", amount: "0.001", decimals: 2, err: ErrTooManyDecimals},
		{
			name:     "overflow",
			amount:   "115792089237316195423570985008687907853269984665640564039458",
			decimals: 18,
			err:      ErrAmountOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.amount, tt.decimals)
			if tt.err != nil {
				require.Error(t, err)
				assert.Equal(t, tt.err, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Dec())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		value    string
		decimals uint8
		want     string
	}{
		{"10000000000000000000", 18, "10"},
		{"250000000000000000", 18, "0.25"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0"},
		{"123", 0, "123"},
		{"150", 2, "1.5"},
	}

	for _, tt := range tests {
		v := uint256.MustFromDecimal(tt.value)
		assert.Equal(t, tt.want, FormatUnits(v, tt.decimals), tt.value)
	}
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestCheckAmount(t *testing.T) {
	assert.NoError(t, CheckAmount("10"))
	assert.NoError(t, CheckAmount("0.0001"))
	assert.NoError(t, CheckAmount("1000000000000000000000000000000000000000000000000000000000000000000000000000000000"))

	for amount, want := range map[string]error{
		"":    ErrEmptyAmount,
		"-3":  ErrNegativeAmount,
		"0":   ErrNotPositive,
		"0.0": ErrNotPositive,
		"abc": ErrInvalidAmount,
		".":   ErrInvalidAmount,
	} {
		assert.Equal(t, want, errors.Cause(CheckAmount(amount)), amount)
	}
}

func TestPositiveAmount(t *testing.T) {
	assert.ErrorIs(t, PositiveAmount(nil), ErrNotPositive)
	assert.ErrorIs(t, PositiveAmount(new(uint256.Int)), ErrNotPositive)
	assert.NoError(t, PositiveAmount(uint256.NewInt(1)))
}
