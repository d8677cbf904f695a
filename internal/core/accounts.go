package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/entity"
	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
)

func (e *Engine) getOrCreateAccount(id string) *entity.Account {
	if ent, ok := e.store.Get(entity.KindAccount, id); ok {
		return ent.(*entity.Account)
	}
	a := &entity.Account{
		ID:                      id,
		Health:                  fpmath.Zero,
		TotalCollateralValueUSD: fpmath.Zero,
		TotalBorrowValueUSD:     fpmath.Zero,
	}
	e.store.Put(a)
	return a
}

// touchPosition get-or-creates the (market, account) position and appends
// exactly one audit row for the triggering event, deduplicated by
// (position, tx hash, log index). The position's accrual timestamp is
// advanced; the caller mutates the returned position and persists it.
func (e *Engine) touchPosition(m *entity.Market, accountID string, ev event.Event) *entity.Position {
	id := entity.PositionID(m.ID, accountID)

	var pos *entity.Position
	if ent, ok := e.store.Get(entity.KindPosition, id); ok {
		pos = ent.(*entity.Position)
	} else {
		pos = &entity.Position{
			ID:      id,
			Market:  m.ID,
			Account: accountID,
			Symbol:  m.Symbol,

			TokenBalance:            fpmath.Zero,
			SupplyBalanceUnderlying: fpmath.Zero,
			StoredBorrowBalance:     fpmath.Zero,
			BorrowBalanceUnderlying: fpmath.Zero,
			AccountBorrowIndex:      fpmath.Zero,

			TotalUnderlyingSupplied: fpmath.Zero,
			TotalUnderlyingRedeemed: fpmath.Zero,
			TotalUnderlyingBorrowed: fpmath.Zero,
			TotalUnderlyingRepaid:   fpmath.Zero,

			LifetimeSupplyInterestAccrued: fpmath.Zero,
			LifetimeBorrowInterestAccrued: fpmath.Zero,
		}
	}

	auditID := fmt.Sprintf("%s-%s-%d", id, ev.TxHash().Hex(), ev.LogIndex())
	if _, ok := e.store.Get(entity.KindPositionTransaction, auditID); !ok {
		e.store.Put(&entity.PositionTransaction{
			ID:        auditID,
			Position:  id,
			TxHash:    ev.TxHash().Hex(),
			Timestamp: ev.BlockTime(),
			Block:     ev.BlockNumber(),
			LogIndex:  ev.LogIndex(),
		})
	}

	pos.AccrualTimestamp = ev.BlockTime()
	return pos
}

// refreshAccountRisk overwrites the account's collateral value, borrow value
// and health factor from the lens contract's risk aggregation. Best-effort:
// a reverted read leaves the prior values intact and surfaces nothing.
func (e *Engine) refreshAccountRisk(ctx context.Context, account *entity.Account) {
	limits, err := e.caller.AccountLimits(
		ctx,
		e.cfg.LensAddress,
		e.cfg.ComptrollerAddress,
		common.HexToAddress(account.ID),
	)
	if err != nil {
		e.log.Debug().Str("account", account.ID).Msg("account limits call reverted")
		return
	}

	account.TotalCollateralValueUSD = fpmath.Truncated(
		limits.TotalCollateralValueUSD, fpmath.MantissaDecimals, fpmath.MantissaDecimals)
	account.TotalBorrowValueUSD = fpmath.Truncated(
		limits.TotalBorrowValueUSD, fpmath.MantissaDecimals, fpmath.MantissaDecimals)
	account.Health = fpmath.Truncated(
		limits.HealthFactor, fpmath.MantissaDecimals, fpmath.MantissaDecimals)
	e.store.Put(account)
}
