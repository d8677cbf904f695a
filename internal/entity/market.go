package entity

import "github.com/shopspring/decimal"

// Market is the point-in-time snapshot of one listed lending instrument,
// keyed by the market contract address (lowercase hex). Created on the first
// MarketListed event (or lazily by a Mint against an unseen market); mutated
// only by the market refresh path; never deleted.
type Market struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	UnderlyingAddress  string `json:"underlyingAddress"`
	UnderlyingName     string `json:"underlyingName"`
	UnderlyingSymbol   string `json:"underlyingSymbol"`
	UnderlyingDecimals int32  `json:"underlyingDecimals"`

	UnderlyingPriceUSD decimal.Decimal `json:"underlyingPriceUSD"`
	ExchangeRate       decimal.Decimal `json:"exchangeRate"`
	BorrowIndex        decimal.Decimal `json:"borrowIndex"`
	TotalSupply        decimal.Decimal `json:"totalSupply"`
	TotalBorrows       decimal.Decimal `json:"totalBorrows"`
	Cash               decimal.Decimal `json:"cash"`
	Reserves           decimal.Decimal `json:"reserves"`
	BorrowRate         decimal.Decimal `json:"borrowRate"`
	SupplyRate         decimal.Decimal `json:"supplyRate"`
	CollateralFactor   decimal.Decimal `json:"collateralFactor"`

	// ReserveFactor is kept in raw mantissa form, as reported on chain.
	ReserveFactor            decimal.Decimal `json:"reserveFactor"`
	InterestRateModelAddress string          `json:"interestRateModelAddress"`

	// TotalInterestAccumulatedExact is the running mantissa sum of
	// InterestAccumulated event params; the decimal form is derived from it.
	TotalInterestAccumulatedExact decimal.Decimal `json:"totalInterestAccumulatedExact"`
	TotalInterestAccumulated      decimal.Decimal `json:"totalInterestAccumulated"`

	// AccrualTimestamp is monotonically non-decreasing; a refresh is skipped
	// entirely when an event carries the same timestamp.
	AccrualTimestamp int64 `json:"accrualTimestamp"`
	BlockTimestamp   int64 `json:"blockTimestamp"`
}

func (m *Market) Kind() string     { return KindMarket }
func (m *Market) EntityID() string { return m.ID }

// Comptroller is the protocol-level singleton (id "1") holding the global
// governance parameters. CloseFactor and LiquidationIncentive stay in
// mantissa form.
type Comptroller struct {
	ID                   string          `json:"id"`
	CloseFactor          decimal.Decimal `json:"closeFactor"`
	LiquidationIncentive decimal.Decimal `json:"liquidationIncentive"`
	PriceOracle          string          `json:"priceOracle"`
}

// ComptrollerID is the fixed singleton key.
const ComptrollerID = "1"

func (c *Comptroller) Kind() string     { return KindComptroller }
func (c *Comptroller) EntityID() string { return c.ID }
