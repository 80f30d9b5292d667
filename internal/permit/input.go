package permit

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackchuma/tokenbank/internal/units"
	"github.com/pkg/errors"
)

// ParseAddress checks a hex address field.
func ParseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, validationError("missing_"+field, ErrMissingField, "%s is required", field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, validationError("invalid_"+field, ErrInvalidAddress, "%s is not a valid address: %s", field, value)
	}
	return common.HexToAddress(value), nil
}

// ParseDeadline accepts Unix seconds or an RFC 3339 timestamp and requires the
// result to be strictly after now.
func ParseDeadline(value string, now time.Time) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, validationError("missing_deadline", ErrMissingField, "deadline is required")
	}

	deadline, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, validationError("invalid_deadline", ErrInvalidDeadline, "deadline is neither a Unix timestamp nor RFC 3339: %s", value)
		}
		deadline = big.NewInt(t.Unix())
	}
	if deadline.Sign() <= 0 {
		return nil, validationError("invalid_deadline", ErrInvalidDeadline, "deadline must be a positive Unix timestamp")
	}
	if deadline.Cmp(big.NewInt(now.Unix())) <= 0 {
		return nil, validationError("deadline_passed", ErrDeadlinePassed,
			"deadline %s is not in the future (now %d)", deadline, now.Unix())
	}
	return deadline, nil
}

func checkValue(value string) error {
	if err := units.CheckAmount(value); err != nil {
		if errors.Cause(err) == units.ErrEmptyAmount {
			return validationError("missing_value", ErrMissingField, "value is required")
		}
		return validationError("invalid_value", ErrInvalidValue, "value must be a positive amount: %v", err)
	}
	return nil
}

func scaleValue(value string, decimals uint8) (*big.Int, error) {
	scaled, err := units.ParseUnits(value, decimals)
	if err != nil {
		return nil, validationError("invalid_value", ErrInvalidValue, "value cannot be expressed with %d decimals: %v", decimals, err)
	}
	if err := units.PositiveAmount(scaled); err != nil {
		return nil, validationError("invalid_value", ErrInvalidValue, "value must be greater than zero")
	}
	return scaled.ToBig(), nil
}
