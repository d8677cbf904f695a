package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"LendLedger/internal/entity"
	"LendLedger/internal/store"
)

// StateLoader rehydrates the in-memory entity store from lend.entities on
// startup. The table always holds the latest version of every entity (the
// worker upserts in the same transaction as the checkpoint), so loading it
// back reproduces the exact state the checkpoint describes; no event replay
// is needed.
type StateLoader struct {
	db *sql.DB
}

func NewStateLoader(db *sql.DB) *StateLoader {
	return &StateLoader{db: db}
}

// LoadInto reads every entity row into st and returns the count.
func (l *StateLoader) LoadInto(ctx context.Context, st *store.MemoryStore) (int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT kind, id, data FROM lend.entities`)
	if err != nil {
		return 0, fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			kind, id string
			data     []byte
		)
		if err := rows.Scan(&kind, &id, &data); err != nil {
			return count, err
		}

		ent, err := decodeEntity(kind, data)
		if err != nil {
			return count, fmt.Errorf("decode %s/%s: %w", kind, id, err)
		}
		st.Put(ent)
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	// Loading is not a mutation; start the first event with a clean slate.
	st.DrainDirty()
	return count, nil
}

func decodeEntity(kind string, data []byte) (entity.Entity, error) {
	var ent entity.Entity
	switch kind {
	case entity.KindMarket:
		ent = &entity.Market{}
	case entity.KindAccount:
		ent = &entity.Account{}
	case entity.KindPosition:
		ent = &entity.Position{}
	case entity.KindPositionTransaction:
		ent = &entity.PositionTransaction{}
	case entity.KindMintEvent:
		ent = &entity.MintEvent{}
	case entity.KindRedeemEvent:
		ent = &entity.RedeemEvent{}
	case entity.KindBorrowEvent:
		ent = &entity.BorrowEvent{}
	case entity.KindRepayEvent:
		ent = &entity.RepayEvent{}
	case entity.KindLiquidationEvent:
		ent = &entity.LiquidationEvent{}
	case entity.KindTransferEvent:
		ent = &entity.TransferEvent{}
	case entity.KindMarketDayData:
		ent = &entity.MarketDayData{}
	case entity.KindLiquidationDayData:
		ent = &entity.LiquidationDayData{}
	case entity.KindComptroller:
		ent = &entity.Comptroller{}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	if err := json.Unmarshal(data, ent); err != nil {
		return nil, err
	}
	return ent, nil
}
