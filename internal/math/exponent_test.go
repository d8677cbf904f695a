package math_test

import (
	"math/big"
	"testing"

	fpmath "LendLedger/internal/math"

	"github.com/shopspring/decimal"
)

func TestExponent(t *testing.T) {
	cases := []struct {
		decimals int32
		want     string
	}{
		{0, "1"},
		{1, "10"},
		{6, "1000000"},
		{18, "1000000000000000000"},
	}
	for _, c := range cases {
		got := fpmath.Exponent(c.decimals)
		if got.String() != c.want {
			t.Errorf("Exponent(%d) = %s, want %s", c.decimals, got, c.want)
		}
	}
}

func TestFromMantissa_Exact(t *testing.T) {
	got := fpmath.FromMantissa(big.NewInt(1_234_567), 6)
	want := decimal.RequireFromString("1.234567")
	if !got.Equal(want) {
		t.Errorf("FromMantissa(1234567, 6) = %s, want %s", got, want)
	}
}

func TestTruncated_TruncatesNotRounds(t *testing.T) {
	// 1.234567891 at 6 digits must become 1.234567, never 1.234568.
	got := fpmath.Truncated(big.NewInt(1_234_567_891), 9, 6)
	want := decimal.RequireFromString("1.234567")
	if !got.Equal(want) {
		t.Errorf("Truncated(1234567891, 9, 6) = %s, want %s", got, want)
	}

	// A trailing 9 run would round up under half-up rounding; truncation
	// must drop it.
	got = fpmath.Truncated(big.NewInt(999_999_999), 9, 6)
	want = decimal.RequireFromString("0.999999")
	if !got.Equal(want) {
		t.Errorf("Truncated(999999999, 9, 6) = %s, want %s", got, want)
	}
}

func TestFromMantissa_Nil(t *testing.T) {
	if !fpmath.FromMantissa(nil, 18).IsZero() {
		t.Error("FromMantissa(nil) should be zero")
	}
}

func TestAnnualRate(t *testing.T) {
	// 1e9 per second * 31_536_000 seconds / 1e18 = 0.031536
	perSecond, _ := new(big.Int).SetString("1000000000", 10)
	got := fpmath.AnnualRate(perSecond, 31_536_000)
	want := decimal.RequireFromString("0.031536")
	if !got.Equal(want) {
		t.Errorf("AnnualRate = %s, want %s", got, want)
	}
}

func TestDivisionThenTruncate(t *testing.T) {
	// The borrow-index ratio path: stored * index / accountIndex.
	stored := decimal.RequireFromString("100")
	index := decimal.RequireFromString("1.1")
	accountIndex := decimal.RequireFromString("1.0")

	got := stored.Mul(index).Div(accountIndex)
	want := decimal.RequireFromString("110")
	if !got.Equal(want) {
		t.Errorf("100 * 1.1 / 1.0 = %s, want %s", got, want)
	}
}
