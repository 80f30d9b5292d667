// Package units converts between human readable token amounts and base units.
package units

import (
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// MaxDecimals bounds the decimals a token may report. 10^78 already exceeds
// the uint256 range.
const MaxDecimals = 77

var (
	ErrEmptyAmount     = errors.New("amount is empty")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrInvalidAmount   = errors.New("amount is not a decimal number")
	ErrTooManyDecimals = errors.New("amount has more fractional digits than the token supports")
	ErrAmountOverflow  = errors.New("amount does not fit in uint256")
	ErrNotPositive     = errors.New("amount must be greater than zero")
)

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ParseUnits scales a decimal amount such as "10" or "0.25" by 10^decimals.
func ParseUnits(amount string, decimals uint8) (*uint256.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(amount, "-") {
		return nil, ErrNegativeAmount
	}
	if decimals > MaxDecimals {
		return nil, errors.Errorf("unsupported decimals %d", decimals)
	}

	whole, frac, hasPoint := strings.Cut(amount, ".")
	if hasPoint && whole == "" && frac == "" {
		return nil, ErrInvalidAmount
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, errors.Wrapf(ErrInvalidAmount, "%q", amount)
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, errors.Wrapf(ErrTooManyDecimals, "%q has %d, token has %d", amount, len(frac), decimals)
	}

	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", int(decimals)-len(frac)), "0")
	if digits == "" {
		return new(uint256.Int), nil
	}

	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, errors.Wrapf(ErrAmountOverflow, "%q", amount)
	}
	return v, nil
}

// FormatUnits renders base units as a decimal amount, trimming trailing zeros.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	s := v.Dec()
	if decimals == 0 {
		return s
	}

	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// CheckAmount validates a decimal amount without scaling it: it must be a
// well formed non-negative number greater than zero.
func CheckAmount(amount string) error {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return ErrEmptyAmount
	}
	if strings.HasPrefix(amount, "-") {
		return ErrNegativeAmount
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if (whole == "" && frac == "") || !isDigits(whole) || !isDigits(frac) {
		return errors.Wrapf(ErrInvalidAmount, "%q", amount)
	}
	if strings.Trim(whole+frac, "0") == "" {
		return ErrNotPositive
	}
	return nil
}

// PositiveAmount rejects nil and zero amounts.
func PositiveAmount(v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return ErrNotPositive
	}
	return nil
}
