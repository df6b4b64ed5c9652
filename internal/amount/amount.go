// Package amount converts between human decimal amounts and on-chain base
// units for tokens of any decimal precision.
//
// All on-chain amounts are carried as *big.Int in the token's smallest unit
// (1 USDC = 1,000,000 units, 1 ETH = 10^18 wei).
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrInvalid  = errors.New("invalid amount")
	ErrNegative = errors.New("amount must not be negative")
)

// GweiDecimals is the decimal shift between wei and gwei.
const GweiDecimals = 9

// Parse converts a decimal string (e.g. "1.50") to base units for a token
// with the given decimals.
//
// Rules:
//   - Empty string is invalid
//   - Negative amounts are rejected
//   - Fractional digits beyond decimals are truncated
func Parse(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if d.IsNegative() {
		return nil, ErrNegative
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}

// MustParse is Parse for constants in tests and tables.
func MustParse(s string, decimals int32) *big.Int {
	v, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseRaw parses a base-unit integer string.
func ParseRaw(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegative
	}
	return v, nil
}

// Format converts base units to a human-readable decimal string with
// trailing zeros trimmed (e.g. 1500000 at 6 decimals is "1.5").
func Format(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// FormatFixed is Format with exactly places fractional digits.
func FormatFixed(raw *big.Int, decimals int32, places int32) string {
	if raw == nil {
		raw = new(big.Int)
	}
	return decimal.NewFromBigInt(raw, -decimals).StringFixed(places)
}

// ToDecimal returns base units as a decimal value.
func ToDecimal(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// ToFloat returns base units as a float64, for display and scoring only.
func ToFloat(raw *big.Int, decimals int32) float64 {
	f, _ := ToDecimal(raw, decimals).Float64()
	return f
}

// ToGwei converts wei to gwei.
func ToGwei(wei *big.Int) decimal.Decimal {
	return ToDecimal(wei, GweiDecimals)
}

// FromGwei converts a gwei amount to wei.
func FromGwei(gwei decimal.Decimal) *big.Int {
	return gwei.Shift(GweiDecimals).Truncate(0).BigInt()
}

// Split breaks "10 USDC" into its value and symbol. A bare number returns
// an empty symbol.
func Split(s string) (value string, symbol string, err error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return fields[0], "", nil
	case 2:
		return fields[0], strings.ToUpper(fields[1]), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
}
