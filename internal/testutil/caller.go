package testutil

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/chain"
)

// ErrReverted is what StaticCaller returns for any configured failure or
// missing fixture, standing in for a reverted eth_call.
var ErrReverted = errors.New("execution reverted")

// TokenMeta is the ERC-20 metadata fixture for one token address.
type TokenMeta struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// StaticCaller is a chain.Caller test double serving canned values from
// per-method maps keyed by lowercase address. Unset entries revert, entries
// in Fail revert, and Calls counts every read so tests can assert on the
// staleness gating.
type StaticCaller struct {
	Underlyings    map[string]common.Address
	Tokens         map[string]TokenMeta
	TotalSupplies  map[string]*big.Int
	ExchangeRates  map[string]*big.Int
	TotalReserve   map[string]*big.Int
	RateModels     map[string]common.Address
	ReserveFactors map[string]*big.Int
	BorrowRates    map[string]*big.Int
	SupplyRates    map[string]*big.Int
	Aggregators    map[string]common.Address
	Prices         map[string]*big.Int
	Limits         map[string]chain.AccountLimits

	// Fail reverts a specific (method, address) pair, e.g. "supplyRate:0xabc…".
	Fail map[string]bool

	// Calls counts reads per method name.
	Calls map[string]int
}

func NewStaticCaller() *StaticCaller {
	return &StaticCaller{
		Underlyings:    make(map[string]common.Address),
		Tokens:         make(map[string]TokenMeta),
		TotalSupplies:  make(map[string]*big.Int),
		ExchangeRates:  make(map[string]*big.Int),
		TotalReserve:   make(map[string]*big.Int),
		RateModels:     make(map[string]common.Address),
		ReserveFactors: make(map[string]*big.Int),
		BorrowRates:    make(map[string]*big.Int),
		SupplyRates:    make(map[string]*big.Int),
		Aggregators:    make(map[string]common.Address),
		Prices:         make(map[string]*big.Int),
		Limits:         make(map[string]chain.AccountLimits),
		Fail:           make(map[string]bool),
		Calls:          make(map[string]int),
	}
}

func key(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func (c *StaticCaller) record(method string, addr common.Address) bool {
	c.Calls[method]++
	return c.Fail[method+":"+key(addr)]
}

func (c *StaticCaller) Underlying(_ context.Context, market common.Address) (common.Address, error) {
	if c.record("underlying", market) {
		return common.Address{}, ErrReverted
	}
	v, ok := c.Underlyings[key(market)]
	if !ok {
		return common.Address{}, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) TotalSupply(_ context.Context, market common.Address) (*big.Int, error) {
	if c.record("totalSupply", market) {
		return nil, ErrReverted
	}
	v, ok := c.TotalSupplies[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) ExchangeRateStored(_ context.Context, market common.Address) (*big.Int, error) {
	if c.record("exchangeRate", market) {
		return nil, ErrReverted
	}
	v, ok := c.ExchangeRates[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) TotalReserves(_ context.Context, market common.Address) (*big.Int, error) {
	if c.record("totalReserves", market) {
		return nil, ErrReverted
	}
	v, ok := c.TotalReserve[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) InterestRateModel(_ context.Context, market common.Address) (common.Address, error) {
	if c.record("interestRateModel", market) {
		return common.Address{}, ErrReverted
	}
	v, ok := c.RateModels[key(market)]
	if !ok {
		return common.Address{}, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) ReserveFactorMantissa(_ context.Context, market common.Address) (*big.Int, error) {
	if c.record("reserveFactor", market) {
		return nil, ErrReverted
	}
	v, ok := c.ReserveFactors[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) BorrowRatePerPeriod(_ context.Context, market common.Address) (*big.Int, error) {
	if c.record("borrowRate", market) {
		return nil, ErrReverted
	}
	v, ok := c.BorrowRates[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) SupplyRatePerPeriod(_ context.Context, market common.Address) (*big.Int, error) {
	if c.record("supplyRate", market) {
		return nil, ErrReverted
	}
	v, ok := c.SupplyRates[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) TokenName(_ context.Context, token common.Address) (string, error) {
	if c.record("name", token) {
		return "", ErrReverted
	}
	v, ok := c.Tokens[key(token)]
	if !ok {
		return "", ErrReverted
	}
	return v.Name, nil
}

func (c *StaticCaller) TokenSymbol(_ context.Context, token common.Address) (string, error) {
	if c.record("symbol", token) {
		return "", ErrReverted
	}
	v, ok := c.Tokens[key(token)]
	if !ok {
		return "", ErrReverted
	}
	return v.Symbol, nil
}

func (c *StaticCaller) TokenDecimals(_ context.Context, token common.Address) (uint8, error) {
	if c.record("decimals", token) {
		return 0, ErrReverted
	}
	v, ok := c.Tokens[key(token)]
	if !ok {
		return 0, ErrReverted
	}
	return v.Decimals, nil
}

func (c *StaticCaller) PriceAggregator(_ context.Context, _, market common.Address) (common.Address, error) {
	if c.record("aggregators", market) {
		return common.Address{}, ErrReverted
	}
	// Absent aggregator reads back as the zero address, not a revert.
	return c.Aggregators[key(market)], nil
}

func (c *StaticCaller) UnderlyingPrice(_ context.Context, _, market common.Address) (*big.Int, error) {
	if c.record("underlyingPrice", market) {
		return nil, ErrReverted
	}
	v, ok := c.Prices[key(market)]
	if !ok {
		return nil, ErrReverted
	}
	return v, nil
}

func (c *StaticCaller) AccountLimits(_ context.Context, _, _, account common.Address) (chain.AccountLimits, error) {
	if c.record("accountLimits", account) {
		return chain.AccountLimits{}, ErrReverted
	}
	v, ok := c.Limits[key(account)]
	if !ok {
		return chain.AccountLimits{}, ErrReverted
	}
	return v, nil
}
