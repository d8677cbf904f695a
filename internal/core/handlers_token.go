package core

import (
	"context"
	"fmt"

	"LendLedger/internal/entity"
	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
)

// handleAccrueInterest refreshes the market snapshot. The host delivers this
// event before every other log of the market in the same transaction, so the
// other handlers never refresh themselves.
func (e *Engine) handleAccrueInterest(ctx context.Context, ev *event.AccrueInterest) error {
	_, err := e.refreshMarket(ctx, ev)
	return err
}

// handleMint records a supply. The paired Transfer event maintains position
// balances, so only the journal entry, the audit row, and the day bucket are
// written here. A mint against a never-listed market creates it.
func (e *Engine) handleMint(ctx context.Context, ev *event.Mint) error {
	market, err := e.getOrCreateMarket(ctx, ev.Emitter())
	if err != nil {
		return err
	}
	minterID := addrID(ev.Minter)

	pos := e.touchPosition(market, minterID, ev)
	e.store.Put(pos)

	mint := &entity.MintEvent{
		ID:               ev.EventID(),
		Amount:           fpmath.Truncated(ev.MintTokens, fpmath.TokenDecimals, fpmath.TokenDecimals),
		UnderlyingAmount: fpmath.Truncated(ev.MintAmount, market.UnderlyingDecimals, market.UnderlyingDecimals),
		From:             market.ID,
		To:               minterID,
		BlockNumber:      ev.BlockNumber(),
		BlockTime:        ev.BlockTime(),
		TokenSymbol:      market.Symbol,
	}
	e.store.Put(mint)

	e.foldMintDay(market, mint)
	return nil
}

// handleRedeem mirrors handleMint for withdrawals; position balances are
// again left to the paired Transfer.
func (e *Engine) handleRedeem(ctx context.Context, ev *event.Redeem) error {
	market, ok := e.loadMarket(addrID(ev.Emitter()))
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotListed, addrID(ev.Emitter()))
	}
	redeemerID := addrID(ev.Redeemer)

	pos := e.touchPosition(market, redeemerID, ev)
	e.store.Put(pos)

	redeem := &entity.RedeemEvent{
		ID:               ev.EventID(),
		Amount:           fpmath.Truncated(ev.RedeemTokens, fpmath.TokenDecimals, fpmath.TokenDecimals),
		UnderlyingAmount: fpmath.Truncated(ev.RedeemAmount, market.UnderlyingDecimals, market.UnderlyingDecimals),
		From:             redeemerID,
		To:               market.ID,
		BlockNumber:      ev.BlockNumber(),
		BlockTime:        ev.BlockTime(),
		TokenSymbol:      market.Symbol,
	}
	e.store.Put(redeem)

	e.foldRedeemDay(market, redeem)
	return nil
}

// handleBorrow advances the borrower's position through the borrow-index
// compounding step, then journals the event and folds the day bucket.
func (e *Engine) handleBorrow(ctx context.Context, ev *event.Borrow) error {
	market, ok := e.loadMarket(addrID(ev.Emitter()))
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotListed, addrID(ev.Emitter()))
	}
	borrowerID := addrID(ev.Borrower)

	account := e.getOrCreateAccount(borrowerID)
	account.HasBorrowed = true
	e.store.Put(account)

	pos := e.touchPosition(market, borrowerID, ev)

	// Lifetime totals accumulate the untruncated amount.
	borrowAmount := fpmath.FromMantissa(ev.BorrowAmount, market.UnderlyingDecimals)

	pos.StoredBorrowBalance = fpmath.Truncated(
		ev.AccountBorrows, market.UnderlyingDecimals, market.UnderlyingDecimals)

	// Dividing the current market index by the index at the position's last
	// touch compounds the interest accrued since. A zero position index
	// (fresh position) means no interval to compound: identity multiplier.
	if pos.AccountBorrowIndex.IsZero() {
		pos.BorrowBalanceUnderlying = pos.StoredBorrowBalance
	} else {
		pos.BorrowBalanceUnderlying = pos.StoredBorrowBalance.
			Mul(market.BorrowIndex).
			Div(pos.AccountBorrowIndex)
	}

	pos.AccountBorrowIndex = market.BorrowIndex
	pos.TotalUnderlyingBorrowed = pos.TotalUnderlyingBorrowed.Add(borrowAmount)
	pos.LifetimeBorrowInterestAccrued = pos.BorrowBalanceUnderlying.
		Sub(pos.TotalUnderlyingBorrowed).
		Add(pos.TotalUnderlyingRepaid)
	e.store.Put(pos)

	e.refreshAccountRisk(ctx, account)

	borrow := &entity.BorrowEvent{
		ID:     ev.EventID(),
		Amount: fpmath.Truncated(ev.BorrowAmount, market.UnderlyingDecimals, market.UnderlyingDecimals),
		AccountBorrows: fpmath.Truncated(
			ev.AccountBorrows, market.UnderlyingDecimals, market.UnderlyingDecimals),
		Borrower:         borrowerID,
		BlockNumber:      ev.BlockNumber(),
		BlockTime:        ev.BlockTime(),
		UnderlyingSymbol: market.UnderlyingSymbol,
	}
	e.store.Put(borrow)

	e.foldBorrowDay(market, borrow)
	return nil
}

// handleRepayBorrow is the borrow handler's mirror image. A full repayment
// leaves the position's borrow index at the market's value rather than
// resetting it; the next borrow compounds from there.
func (e *Engine) handleRepayBorrow(ctx context.Context, ev *event.RepayBorrow) error {
	market, ok := e.loadMarket(addrID(ev.Emitter()))
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotListed, addrID(ev.Emitter()))
	}
	borrowerID := addrID(ev.Borrower)

	account := e.getOrCreateAccount(borrowerID)
	pos := e.touchPosition(market, borrowerID, ev)

	repayAmount := fpmath.FromMantissa(ev.RepayAmount, market.UnderlyingDecimals)

	pos.StoredBorrowBalance = fpmath.Truncated(
		ev.AccountBorrows, market.UnderlyingDecimals, market.UnderlyingDecimals)

	if pos.AccountBorrowIndex.IsZero() {
		pos.BorrowBalanceUnderlying = pos.StoredBorrowBalance
	} else {
		pos.BorrowBalanceUnderlying = pos.StoredBorrowBalance.
			Mul(market.BorrowIndex).
			Div(pos.AccountBorrowIndex)
	}

	pos.AccountBorrowIndex = market.BorrowIndex
	pos.TotalUnderlyingRepaid = pos.TotalUnderlyingRepaid.Add(repayAmount)
	pos.LifetimeBorrowInterestAccrued = pos.BorrowBalanceUnderlying.
		Sub(pos.TotalUnderlyingBorrowed).
		Add(pos.TotalUnderlyingRepaid)
	e.store.Put(pos)

	e.refreshAccountRisk(ctx, account)

	repay := &entity.RepayEvent{
		ID:     ev.EventID(),
		Amount: fpmath.Truncated(ev.RepayAmount, market.UnderlyingDecimals, market.UnderlyingDecimals),
		AccountBorrows: fpmath.Truncated(
			ev.AccountBorrows, market.UnderlyingDecimals, market.UnderlyingDecimals),
		Borrower:         borrowerID,
		Payer:            addrID(ev.Payer),
		BlockNumber:      ev.BlockNumber(),
		BlockTime:        ev.BlockTime(),
		UnderlyingSymbol: market.UnderlyingSymbol,
	}
	e.store.Put(repay)

	e.foldRepayDay(market, repay)
	return nil
}

// handleLiquidateBorrow bumps the liquidation counters and journals both
// sides of the liquidation. The repay and seizure balance changes arrive via
// the accompanying RepayBorrow and Transfer events, so no position is
// mutated here.
func (e *Engine) handleLiquidateBorrow(ctx context.Context, ev *event.LiquidateBorrow) error {
	liquidator := e.getOrCreateAccount(addrID(ev.Liquidator))
	liquidator.CountLiquidator++
	e.store.Put(liquidator)

	borrower := e.getOrCreateAccount(addrID(ev.Borrower))
	borrower.CountLiquidated++
	e.store.Put(borrower)

	// The liquidator pays down the emitting market's underlying and seizes
	// issued tokens of the collateral market named in the event.
	repayMarket, ok := e.loadMarket(addrID(ev.Emitter()))
	if !ok {
		return fmt.Errorf("%w: repay market %s", ErrMarketNotListed, addrID(ev.Emitter()))
	}
	collateralMarket, ok := e.loadMarket(addrID(ev.TokenCollateral))
	if !ok {
		return fmt.Errorf("%w: collateral market %s", ErrMarketNotListed, addrID(ev.TokenCollateral))
	}

	liq := &entity.LiquidationEvent{
		ID:     ev.EventID(),
		Amount: fpmath.Truncated(ev.SeizeTokens, fpmath.TokenDecimals, fpmath.TokenDecimals),
		UnderlyingRepayAmount: fpmath.Truncated(
			ev.RepayAmount, repayMarket.UnderlyingDecimals, repayMarket.UnderlyingDecimals),
		From:             addrID(ev.Borrower),
		To:               addrID(ev.Liquidator),
		CollateralMarket: collateralMarket.ID,
		RepayMarket:      repayMarket.ID,
		BlockNumber:      ev.BlockNumber(),
		BlockTime:        ev.BlockTime(),
		TokenSymbol:      collateralMarket.Symbol,
		UnderlyingSymbol: repayMarket.UnderlyingSymbol,
	}
	e.store.Put(liq)

	e.foldLiquidationDay(collateralMarket, repayMarket, liq)
	return nil
}

// handleTransfer observes every movement of a market's issued token: the
// transfers paired with mints (sender is the market), redeems (receiver is
// the market), liquidation seizures, and plain wallet-to-wallet transfers.
// Each non-market party's position is updated through the supply-side
// interest bookkeeping. A counterparty that coincidentally equals the market
// address outside a mint/redeem goes unrecorded; carried over as a known gap.
func (e *Engine) handleTransfer(ctx context.Context, ev *event.Transfer) error {
	market, ok := e.loadMarket(addrID(ev.Emitter()))
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotListed, addrID(ev.Emitter()))
	}

	tokenAmount := fpmath.FromMantissa(ev.Amount, fpmath.TokenDecimals)
	amountUnderlying := market.ExchangeRate.Mul(tokenAmount)
	amountUnderlyingTruncated := amountUnderlying.Truncate(market.UnderlyingDecimals)

	fromID := addrID(ev.From)
	if fromID != market.ID {
		accountFrom := e.getOrCreateAccount(fromID)
		posFrom := e.touchPosition(market, fromID, ev)

		posFrom.TotalUnderlyingRedeemed = posFrom.TotalUnderlyingRedeemed.Add(amountUnderlyingTruncated)
		posFrom.SupplyBalanceUnderlying = posFrom.TokenBalance.Mul(market.ExchangeRate)
		posFrom.LifetimeSupplyInterestAccrued = posFrom.SupplyBalanceUnderlying.
			Sub(posFrom.TotalUnderlyingSupplied).
			Add(posFrom.TotalUnderlyingRedeemed)
		e.store.Put(posFrom)

		e.refreshAccountRisk(ctx, accountFrom)
	}

	toID := addrID(ev.To)
	if toID != market.ID {
		accountTo := e.getOrCreateAccount(toID)
		posTo := e.touchPosition(market, toID, ev)

		posTo.TotalUnderlyingSupplied = posTo.TotalUnderlyingSupplied.Add(amountUnderlyingTruncated)
		posTo.SupplyBalanceUnderlying = posTo.TokenBalance.Mul(market.ExchangeRate)
		posTo.LifetimeSupplyInterestAccrued = posTo.SupplyBalanceUnderlying.
			Sub(posTo.TotalUnderlyingSupplied).
			Add(posTo.TotalUnderlyingRedeemed)
		e.store.Put(posTo)

		e.refreshAccountRisk(ctx, accountTo)
	}

	e.store.Put(&entity.TransferEvent{
		ID:          ev.EventID(),
		Amount:      tokenAmount,
		From:        fromID,
		To:          toID,
		BlockNumber: ev.BlockNumber(),
		BlockTime:   ev.BlockTime(),
		TokenSymbol: market.Symbol,
	})
	return nil
}

// handleNewReserveFactor overwrites the market's reserve factor, kept in raw
// mantissa form.
func (e *Engine) handleNewReserveFactor(ctx context.Context, ev *event.NewReserveFactor) error {
	market, ok := e.loadMarket(addrID(ev.Emitter()))
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotListed, addrID(ev.Emitter()))
	}
	market.ReserveFactor = fpmath.FromMantissa(ev.NewReserveFactorMantissa, 0)
	e.store.Put(market)
	return nil
}

// handleNewMarketInterestRateModel records the swapped model contract; this
// event can precede the market's listing, so the market is created lazily.
func (e *Engine) handleNewMarketInterestRateModel(ctx context.Context, ev *event.NewMarketInterestRateModel) error {
	market, err := e.getOrCreateMarket(ctx, ev.Emitter())
	if err != nil {
		return err
	}
	market.InterestRateModelAddress = addrID(ev.NewInterestRateModel)
	e.store.Put(market)
	return nil
}
