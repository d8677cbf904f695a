package core

import (
	"LendLedger/internal/entity"
	fpmath "LendLedger/internal/math"
)

// Day buckets fold journal entries into per-day aggregates. A bucket is
// created with zeroed accumulators on the first event of its day and
// accumulated in place afterwards; its metadata is fixed at creation. USD
// totals value each delta at the market's price when the event was folded,
// so intraday price movement accumulates instead of a single closing price.

func (e *Engine) marketDay(m *entity.Market, timestamp int64) *entity.MarketDayData {
	id := entity.MarketDayDataID(m.ID, timestamp)
	if ent, ok := e.store.Get(entity.KindMarketDayData, id); ok {
		return ent.(*entity.MarketDayData)
	}
	return &entity.MarketDayData{
		ID:              id,
		Date:            entity.DayIndex(timestamp) * entity.SecondsPerDay,
		Market:          m.ID,
		TotalSupply:     fpmath.Zero,
		TotalSupplyUSD:  fpmath.Zero,
		TotalBorrows:    fpmath.Zero,
		TotalBorrowsUSD: fpmath.Zero,
	}
}

func (e *Engine) foldMintDay(m *entity.Market, mint *entity.MintEvent) {
	d := e.marketDay(m, mint.BlockTime)
	d.TxCount++
	d.TotalSupply = d.TotalSupply.Add(mint.Amount)
	d.TotalSupplyUSD = d.TotalSupplyUSD.Add(mint.UnderlyingAmount.Mul(m.UnderlyingPriceUSD))
	e.store.Put(d)
}

func (e *Engine) foldRedeemDay(m *entity.Market, redeem *entity.RedeemEvent) {
	d := e.marketDay(m, redeem.BlockTime)
	d.TxCount++
	d.TotalSupply = d.TotalSupply.Sub(redeem.Amount)
	d.TotalSupplyUSD = d.TotalSupplyUSD.Sub(redeem.UnderlyingAmount.Mul(m.UnderlyingPriceUSD))
	e.store.Put(d)
}

func (e *Engine) foldBorrowDay(m *entity.Market, borrow *entity.BorrowEvent) {
	d := e.marketDay(m, borrow.BlockTime)
	d.TxCount++
	d.TotalBorrows = d.TotalBorrows.Add(borrow.Amount)
	d.TotalBorrowsUSD = d.TotalBorrowsUSD.Add(borrow.Amount.Mul(m.UnderlyingPriceUSD))
	e.store.Put(d)
}

func (e *Engine) foldRepayDay(m *entity.Market, repay *entity.RepayEvent) {
	d := e.marketDay(m, repay.BlockTime)
	d.TxCount++
	d.TotalBorrows = d.TotalBorrows.Sub(repay.Amount)
	d.TotalBorrowsUSD = d.TotalBorrowsUSD.Sub(repay.Amount.Mul(m.UnderlyingPriceUSD))
	e.store.Put(d)
}

// foldLiquidationDay tracks both sides of a liquidation as parallel running
// totals: the seized collateral tokens (valued through the collateral
// market's exchange rate and price) and the repaid underlying (valued at the
// repay market's price).
func (e *Engine) foldLiquidationDay(collateral, repay *entity.Market, liq *entity.LiquidationEvent) {
	id := entity.LiquidationDayDataID(collateral.ID, repay.ID, liq.BlockTime, e.cfg.LiquidationBucketByPair)

	var d *entity.LiquidationDayData
	if ent, ok := e.store.Get(entity.KindLiquidationDayData, id); ok {
		d = ent.(*entity.LiquidationDayData)
	} else {
		d = &entity.LiquidationDayData{
			ID:                    id,
			Date:                  entity.DayIndex(liq.BlockTime) * entity.SecondsPerDay,
			CollateralMarket:      collateral.ID,
			RepayMarket:           repay.ID,
			TokenSymbol:           liq.TokenSymbol,
			UnderlyingSymbol:      liq.UnderlyingSymbol,
			SeizedTokens:          fpmath.Zero,
			SeizedUSD:             fpmath.Zero,
			UnderlyingRepayAmount: fpmath.Zero,
			RepayUSD:              fpmath.Zero,
		}
	}

	seizedUnderlying := liq.Amount.
		Mul(collateral.ExchangeRate).
		Truncate(collateral.UnderlyingDecimals)

	d.TxCount++
	d.SeizedTokens = d.SeizedTokens.Add(liq.Amount)
	d.SeizedUSD = d.SeizedUSD.Add(seizedUnderlying.Mul(collateral.UnderlyingPriceUSD))
	d.UnderlyingRepayAmount = d.UnderlyingRepayAmount.Add(liq.UnderlyingRepayAmount)
	d.RepayUSD = d.RepayUSD.Add(liq.UnderlyingRepayAmount.Mul(repay.UnderlyingPriceUSD))
	e.store.Put(d)
}
