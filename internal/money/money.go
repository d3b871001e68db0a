// Package money normalizes monetary input into fixed-point decimals with
// exactly two fractional digits.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for non-numeric input and for amounts that are
// not strictly positive after rounding.
var ErrInvalidAmount = errors.New("invalid amount")

// Normalize converts numeric or numeric-string input into a positive decimal
// rounded half-up to two fractional digits. Rounding is applied rather than
// rejected so that float input noise (e.g. 10.00000001) is tolerated.
func Normalize(raw any) (decimal.Decimal, error) {
	var d decimal.Decimal
	var err error

	switch v := raw.(type) {
	case string:
		d, err = decimal.NewFromString(v)
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case decimal.Decimal:
		d = v
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, raw)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not numeric", ErrInvalidAmount, raw)
	}

	// Round half-up to 2 decimals; shopspring rounds half away from zero,
	// which is half-up for the positive amounts we accept.
	d = d.Round(2)
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return d, nil
}
