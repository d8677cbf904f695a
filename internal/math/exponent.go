package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// All on-chain quantities arrive as integer mantissas: a value scaled by a
// known power of ten. Conversions back to decimals must truncate, never
// round, to match the protocol's on-chain truncation exactly.

const (
	// MantissaDecimals is the fixed-point base used by the protocol's Exp
	// arithmetic (10^18).
	MantissaDecimals int32 = 18

	// TokenDecimals is the decimal precision of every market's issued token.
	TokenDecimals int32 = 8
)

var (
	MantissaFactor = Exponent(MantissaDecimals)
	TokenFactor    = Exponent(TokenDecimals)

	Zero = decimal.Zero
	One  = decimal.New(1, 0)
)

func init() {
	// Quotients carry enough digits that a subsequent Truncate reproduces
	// the on-chain truncation behavior for every precision we use (<= 18).
	decimal.DivisionPrecision = 38
}

// Exponent returns 10^decimals as an exact decimal.
func Exponent(decimals int32) decimal.Decimal {
	return decimal.New(1, decimals)
}

// FromMantissa converts an integer mantissa to mantissa / 10^decimals.
// The rescale is exact; no rounding can occur.
func FromMantissa(m *big.Int, decimals int32) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(m, -decimals)
}

// Truncated converts a mantissa and truncates the result to at most
// precision fractional digits.
func Truncated(m *big.Int, decimals, precision int32) decimal.Decimal {
	return FromMantissa(m, decimals).Truncate(precision)
}

// AnnualRate converts a per-period interest rate mantissa into an annualized
// decimal rate: rate * periodsPerYear / 10^18, truncated to 18 digits.
func AnnualRate(perPeriod *big.Int, periodsPerYear int64) decimal.Decimal {
	return FromMantissa(perPeriod, 0).
		Mul(decimal.NewFromInt(periodsPerYear)).
		Div(MantissaFactor).
		Truncate(MantissaDecimals)
}
