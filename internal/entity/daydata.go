package entity

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// SecondsPerDay partitions event timestamps into UTC day buckets.
const SecondsPerDay int64 = 86_400

// DayIndex returns floor(timestamp / 86400).
func DayIndex(timestamp int64) int64 {
	return timestamp / SecondsPerDay
}

// MarketDayData accumulates one market's activity for one UTC day, keyed
// "marketID-dayIndex". Date is the start-of-day timestamp. txCount counts
// every folded event; supply totals move on mint/redeem, borrow totals on
// borrow/repay. USD totals are running sums of point-in-time valuations at
// the market's price when each event was folded, so intraday price movement
// is reflected rather than a single closing price.
type MarketDayData struct {
	ID      string `json:"id"`
	Date    int64  `json:"date"`
	Market  string `json:"market"`
	TxCount int32  `json:"txCount"`

	TotalSupply     decimal.Decimal `json:"totalSupply"`
	TotalSupplyUSD  decimal.Decimal `json:"totalSupplyUSD"`
	TotalBorrows    decimal.Decimal `json:"totalBorrows"`
	TotalBorrowsUSD decimal.Decimal `json:"totalBorrowsUSD"`
}

func (d *MarketDayData) Kind() string     { return KindMarketDayData }
func (d *MarketDayData) EntityID() string { return d.ID }

// MarketDayDataID derives the bucket key for a market and event timestamp.
func MarketDayDataID(marketID string, timestamp int64) string {
	return marketID + "-" + strconv.FormatInt(DayIndex(timestamp), 10)
}

// LiquidationDayData accumulates liquidations for one UTC day. In the
// market-pair shape the key is "collateralMarket-repayMarket-dayIndex"; the
// single-market shape keys by the repay market alone and leaves
// CollateralMarket empty in the key (but not in the row).
type LiquidationDayData struct {
	ID               string `json:"id"`
	Date             int64  `json:"date"`
	CollateralMarket string `json:"collateralMarket"`
	RepayMarket      string `json:"repayMarket"`
	TxCount          int32  `json:"txCount"`

	TokenSymbol      string `json:"tokenSymbol"`
	UnderlyingSymbol string `json:"underlyingSymbol"`

	SeizedTokens          decimal.Decimal `json:"seizedTokens"`
	SeizedUSD             decimal.Decimal `json:"seizedUSD"`
	UnderlyingRepayAmount decimal.Decimal `json:"underlyingRepayAmount"`
	RepayUSD              decimal.Decimal `json:"repayUSD"`
}

func (d *LiquidationDayData) Kind() string     { return KindLiquidationDayData }
func (d *LiquidationDayData) EntityID() string { return d.ID }

// LiquidationDayDataID derives the bucket key; byPair selects the
// market-pair shape.
func LiquidationDayDataID(collateralMarket, repayMarket string, timestamp int64, byPair bool) string {
	day := strconv.FormatInt(DayIndex(timestamp), 10)
	if byPair {
		return collateralMarket + "-" + repayMarket + "-" + day
	}
	return repayMarket + "-" + day
}
