package core

import (
	"context"
	"fmt"

	"LendLedger/internal/entity"
	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
)

// handleMarketListed admits a new market. Denylisted addresses are dropped
// without effect.
func (e *Engine) handleMarketListed(ctx context.Context, ev *event.MarketListed) error {
	if e.denylist[addrID(ev.Token)] {
		e.skipEvent(ev, "denylisted")
		return nil
	}
	_, err := e.getOrCreateMarket(ctx, ev.Token)
	return err
}

// handleMarketEntered flags the (market, account) position as collateral.
// The listing event for a brand-new market can arrive after membership
// events referencing it; those are skipped rather than failed.
func (e *Engine) handleMarketEntered(ctx context.Context, ev *event.MarketEntered) error {
	return e.setMarketMembership(ev, addrID(ev.Token), addrID(ev.Account), true)
}

// handleMarketExited clears the collateral flag.
func (e *Engine) handleMarketExited(ctx context.Context, ev *event.MarketExited) error {
	return e.setMarketMembership(ev, addrID(ev.Token), addrID(ev.Account), false)
}

func (e *Engine) setMarketMembership(ev event.Event, marketID, accountID string, entered bool) error {
	market, ok := e.loadMarket(marketID)
	if !ok {
		e.skipEvent(ev, "market_not_listed")
		return nil
	}

	e.getOrCreateAccount(accountID)

	pos := e.touchPosition(market, accountID, ev)
	pos.EnteredMarket = entered
	e.store.Put(pos)
	return nil
}

// handleNewCloseFactor sets the repayable fraction per liquidation. This is
// among the first governance events a deployment emits, so it creates the
// comptroller singleton when absent.
func (e *Engine) handleNewCloseFactor(ev *event.NewCloseFactor) error {
	comp, ok := e.loadComptroller()
	if !ok {
		comp = newComptroller()
	}
	comp.CloseFactor = fpmath.FromMantissa(ev.NewCloseFactorMantissa, 0)
	e.store.Put(comp)
	return nil
}

// handleNewCollateralFactor overwrites one market's collateral factor,
// normalized out of mantissa form. Unlisted markets are skipped.
func (e *Engine) handleNewCollateralFactor(ev *event.NewCollateralFactor) error {
	market, ok := e.loadMarket(addrID(ev.Token))
	if !ok {
		e.skipEvent(ev, "market_not_listed")
		return nil
	}
	market.CollateralFactor = fpmath.
		FromMantissa(ev.NewCollateralFactorMantissa, 0).
		Div(fpmath.MantissaFactor)
	e.store.Put(market)
	return nil
}

// handleNewLiquidationIncentive assumes the singleton was already created by
// an earlier governance event; its absence is unrecoverable for this event.
func (e *Engine) handleNewLiquidationIncentive(ev *event.NewLiquidationIncentive) error {
	comp, ok := e.loadComptroller()
	if !ok {
		return fmt.Errorf("%w: %s", ErrComptrollerNotInitialized, ev.EventID())
	}
	comp.LiquidationIncentive = fpmath.FromMantissa(ev.NewLiquidationIncentiveMantissa, 0)
	e.store.Put(comp)
	return nil
}

// handleNewPriceOracle records the oracle contract address. Oracle rotation
// is the very first governance event on most deployments, so this creates
// the singleton when absent.
func (e *Engine) handleNewPriceOracle(ev *event.NewPriceOracle) error {
	comp, ok := e.loadComptroller()
	if !ok {
		comp = newComptroller()
	}
	comp.PriceOracle = addrID(ev.Oracle)
	e.store.Put(comp)
	return nil
}

func newComptroller() *entity.Comptroller {
	return &entity.Comptroller{
		ID:                   entity.ComptrollerID,
		CloseFactor:          fpmath.Zero,
		LiquidationIncentive: fpmath.Zero,
	}
}
