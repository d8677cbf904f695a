package testutil

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"LendLedger/internal/event"
)

// Addr derives a deterministic test address from a label.
func Addr(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[:20])
}

// Mantissa builds value * 10^decimals as a big.Int.
func Mantissa(value int64, decimals int64) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return new(big.Int).Mul(big.NewInt(value), exp)
}

// Raw builds log coordinates for a contract at (block, logIndex). The tx
// hash is derived from the coordinates so distinct coordinates always yield
// distinct event ids.
func Raw(contract common.Address, block, logIndex uint64, blockTime int64) event.Raw {
	return event.Raw{
		Contract: contract,
		Tx:       common.BytesToHash(crypto.Keccak256([]byte(fmt.Sprintf("tx-%d", block)))),
		Log:      logIndex,
		Block:    block,
		Time:     blockTime,
	}
}

// PrimeMarket loads a StaticCaller with a full fixture for one market so
// getOrCreateMarket and refreshMarket both succeed against it.
func PrimeMarket(c *StaticCaller, market common.Address, underlyingDecimals uint8) {
	underlying := Addr("underlying-of-" + market.Hex())
	c.Underlyings[key(market)] = underlying
	c.Tokens[key(underlying)] = TokenMeta{
		Name:     "Test Underlying",
		Symbol:   "TUND",
		Decimals: underlyingDecimals,
	}
	c.Tokens[key(market)] = TokenMeta{
		Name:     "Lend Test Token",
		Symbol:   "lTEST",
		Decimals: 8,
	}
	c.RateModels[key(market)] = Addr("rate-model")
	c.ReserveFactors[key(market)] = Mantissa(1, 17) // 10%
	c.TotalSupplies[key(market)] = Mantissa(1000, 8)
	// Exchange rate 0.02, stored scale 10^(18 + underlying - 8).
	c.ExchangeRates[key(market)] = Mantissa(2, int64(10+underlyingDecimals)-2)
	c.TotalReserve[key(market)] = Mantissa(5, int64(underlyingDecimals))
	c.BorrowRates[key(market)] = big.NewInt(1_000_000_000) // per second
	c.SupplyRates[key(market)] = big.NewInt(500_000_000)
}
