// Package units converts between user-facing decimal strings and on-chain
// integer base units. All arithmetic is exact; floats are only used for USD
// valuations reported by upstream services.
package units

import (
	stdmath "math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"

	"github.com/yourorg/swell-ops-ea/internal/errs"
)

var hundred = decimal.NewFromInt(100)

const (
	// MaxDecimalLength bounds user-supplied decimal strings.
	MaxDecimalLength = 100

	// maxUint256Digits is the digit count of 2^256-1.
	maxUint256Digits = 78
)

// ParseDecimal parses a non-negative plain decimal string. Exponent notation
// is rejected.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errs.New(errs.KindMissingParameter, "amount is required")
	}
	if len(s) > MaxDecimalLength {
		return decimal.Zero, errs.New(errs.KindInvalidParameter, "decimal is longer than %d characters", MaxDecimalLength)
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, errs.New(errs.KindInvalidParameter, "invalid decimal %q: exponent notation is not accepted", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errs.Wrap(errs.KindInvalidParameter, err, "invalid decimal %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, errs.New(errs.KindInvalidParameter, "amount %q must not be negative", s)
	}
	return d, nil
}

// ParseUnits converts a decimal string to base units with the given number of
// decimals. More fractional digits than the token supports is an error rather
// than a silent truncation.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := ParseDecimal(amount)
	if err != nil {
		return nil, err
	}
	return ToBaseUnits(d, decimals)
}

// ToBaseUnits scales d by 10^decimals and requires the result to be integral
// and to fit in a uint256.
func ToBaseUnits(d decimal.Decimal, decimals uint8) (*big.Int, error) {
	// integer digits of the scaled value, known before any scaling happens
	if !d.IsZero() && int64(d.NumDigits())+int64(d.Exponent())+int64(decimals) > maxUint256Digits {
		return nil, errs.New(errs.KindInvalidParameter, "amount %s exceeds the uint256 range", d.String())
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errs.New(errs.KindInvalidParameter, "amount %s has more than %d decimal places", d.String(), decimals)
	}
	v := scaled.BigInt()
	if v.Cmp(math.MaxBig256) > 0 {
		return nil, errs.New(errs.KindInvalidParameter, "amount %s exceeds the uint256 range", d.String())
	}
	return v, nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ParseSlippage validates a percent string in [0, 100).
func ParseSlippage(s string) (decimal.Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		if errs.Is(err, errs.KindMissingParameter) {
			return decimal.Zero, errs.New(errs.KindMissingParameter, "slippage is required")
		}
		return decimal.Zero, err
	}
	if d.GreaterThanOrEqual(hundred) {
		return decimal.Zero, errs.New(errs.KindInvalidParameter, "slippage %s%% must be below 100", d.String())
	}
	return d, nil
}

// MinOutput computes amount × (100 − slippage) / 100 rounded to decimals and
// returns it in base units of that precision.
func MinOutput(amount, slippagePercent string, decimals uint8) (*big.Int, error) {
	a, err := ParseDecimal(amount)
	if err != nil {
		return nil, err
	}
	s, err := ParseSlippage(slippagePercent)
	if err != nil {
		return nil, err
	}
	guard := a.Mul(hundred.Sub(s)).Shift(-2).Round(int32(decimals))
	return guard.Shift(int32(decimals)).BigInt(), nil
}

// SlippageFraction converts a percent string ("0.5") to the fraction the quote
// service expects ("0.005").
func SlippageFraction(slippagePercent string) (string, error) {
	s, err := ParseSlippage(slippagePercent)
	if err != nil {
		return "", err
	}
	return s.Shift(-2).String(), nil
}

// PriceImpact returns |out/in − 1| × 100. A zero input valuation yields zero.
func PriceImpact(amountInUSD, amountOutUSD float64) float64 {
	if amountInUSD == 0 {
		return 0
	}
	return stdmath.Abs(amountOutUSD/amountInUSD-1) * 100
}
