package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/entity"
	"LendLedger/internal/observability"
	"LendLedger/internal/projection"
)

// ErrNotFound marks lookups against ids that were never indexed.
var ErrNotFound = sql.ErrNoRows

// Service provides read-only access to the indexed state: entity snapshots
// and the chain-event log in Postgres, plus the in-memory activity feed.
type Service struct {
	db       *sql.DB
	activity *projection.ActivityProjection
	metrics  *observability.Metrics
}

func NewService(db *sql.DB, activity *projection.ActivityProjection, metrics *observability.Metrics) *Service {
	return &Service{db: db, activity: activity, metrics: metrics}
}

// GetMarket returns one market snapshot by address id.
func (s *Service) GetMarket(ctx context.Context, id string) (resp *MarketResponse, err error) {
	defer s.observe("get_market", time.Now(), &err)

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	var m entity.Market
	if err := s.getEntity(ctx, entity.KindMarket, id, &m); err != nil {
		return nil, err
	}
	return &MarketResponse{Market: &m, AsOfSequence: asOf}, nil
}

// ListMarkets returns every market snapshot.
func (s *Service) ListMarkets(ctx context.Context) (resp *MarketsResponse, err error) {
	defer s.observe("list_markets", time.Now(), &err)

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM lend.entities WHERE kind = $1 ORDER BY id
	`, entity.KindMarket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp = &MarketsResponse{AsOfSequence: asOf}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m entity.Market
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode market: %w", err)
		}
		resp.Markets = append(resp.Markets, &m)
	}
	return resp, rows.Err()
}

// GetAccount returns an account with all its positions.
func (s *Service) GetAccount(ctx context.Context, id string) (resp *AccountResponse, err error) {
	defer s.observe("get_account", time.Now(), &err)

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	var a entity.Account
	if err := s.getEntity(ctx, entity.KindAccount, id, &a); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM lend.entities
		WHERE kind = $1 AND data ->> 'account' = $2
		ORDER BY id
	`, entity.KindPosition, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp = &AccountResponse{Account: &a, AsOfSequence: asOf}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p entity.Position
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
		resp.Positions = append(resp.Positions, &p)
	}
	return resp, rows.Err()
}

// GetMarketDayData returns a market's day buckets within [from, to],
// newest first. from/to are unix timestamps; zero disables the bound.
func (s *Service) GetMarketDayData(
	ctx context.Context,
	marketID string,
	from, to int64,
	limit int,
) (resp *MarketDayDataResponse, err error) {
	defer s.observe("market_day_data", time.Now(), &err)

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT data FROM lend.entities
		WHERE kind = $1 AND data ->> 'market' = $2
	`
	args := []interface{}{entity.KindMarketDayData, marketID}
	argIdx := 3

	if from > 0 {
		query += fmt.Sprintf(" AND (data ->> 'date')::BIGINT >= $%d", argIdx)
		args = append(args, from)
		argIdx++
	}
	if to > 0 {
		query += fmt.Sprintf(" AND (data ->> 'date')::BIGINT <= $%d", argIdx)
		args = append(args, to)
		argIdx++
	}

	query += " ORDER BY (data ->> 'date')::BIGINT DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp = &MarketDayDataResponse{AsOfSequence: asOf}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var d entity.MarketDayData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode day bucket: %w", err)
		}
		resp.Days = append(resp.Days, &d)
	}
	return resp, rows.Err()
}

// GetLiquidationDayData returns liquidation day buckets within [from, to],
// newest first, optionally filtered by repay market.
func (s *Service) GetLiquidationDayData(
	ctx context.Context,
	repayMarket string,
	from, to int64,
	limit int,
) (resp *LiquidationDayDataResponse, err error) {
	defer s.observe("liquidation_day_data", time.Now(), &err)

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT data FROM lend.entities
		WHERE kind = $1
	`
	args := []interface{}{entity.KindLiquidationDayData}
	argIdx := 2

	if repayMarket != "" {
		query += fmt.Sprintf(" AND data ->> 'repayMarket' = $%d", argIdx)
		args = append(args, repayMarket)
		argIdx++
	}
	if from > 0 {
		query += fmt.Sprintf(" AND (data ->> 'date')::BIGINT >= $%d", argIdx)
		args = append(args, from)
		argIdx++
	}
	if to > 0 {
		query += fmt.Sprintf(" AND (data ->> 'date')::BIGINT <= $%d", argIdx)
		args = append(args, to)
		argIdx++
	}

	query += " ORDER BY (data ->> 'date')::BIGINT DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp = &LiquidationDayDataResponse{AsOfSequence: asOf}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var d entity.LiquidationDayData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode liquidation bucket: %w", err)
		}
		resp.Days = append(resp.Days, &d)
	}
	return resp, rows.Err()
}

// GetComptroller returns the protocol governance singleton.
func (s *Service) GetComptroller(ctx context.Context) (resp *ComptrollerResponse, err error) {
	defer s.observe("get_comptroller", time.Now(), &err)

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	var c entity.Comptroller
	if err := s.getEntity(ctx, entity.KindComptroller, entity.ComptrollerID, &c); err != nil {
		return nil, err
	}
	return &ComptrollerResponse{Comptroller: &c, AsOfSequence: asOf}, nil
}

// GetWatermark returns the persisted resume point.
func (s *Service) GetWatermark(ctx context.Context) (resp *WatermarkResponse, err error) {
	defer s.observe("get_watermark", time.Now(), &err)

	resp = &WatermarkResponse{}
	var (
		block     int64
		logIndex  int64
		stateHash []byte
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT sequence, block_number, log_index, state_hash
		FROM lend.checkpoint WHERE id = 1
	`).Scan(&resp.Sequence, &block, &logIndex, &stateHash)
	if err != nil {
		return nil, err
	}

	resp.BlockNumber = uint64(block)
	resp.LogIndex = uint64(logIndex)
	resp.StateHash = hex.EncodeToString(stateHash)
	return resp, nil
}

// RecentActivity returns the newest applied events from the in-memory feed.
func (s *Service) RecentActivity(ctx context.Context, emitter string, limit int) (resp *ActivityResponse, err error) {
	defer s.observe("recent_activity", time.Now(), &err)

	if s.activity == nil {
		return &ActivityResponse{}, nil
	}

	asOf, err := s.watermarkSequence(ctx)
	if err != nil {
		return nil, err
	}

	return &ActivityResponse{
		Entries:      s.activity.Recent(emitter, limit),
		AsOfSequence: asOf,
	}, nil
}

// VerifyIntegrity walks the chain-event log and reports every point where
// an envelope's prev_hash disagrees with its predecessor's state_hash.
func (s *Service) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer s.observe("verify_integrity", time.Now(), &err)

	report = &IntegrityReport{}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lend.chain_events
	`).Scan(&report.CheckedEvents); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM lend.chain_events e1
		JOIN lend.chain_events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) getEntity(ctx context.Context, kind, id string, dst interface{}) error {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM lend.entities WHERE kind = $1 AND id = $2
	`, kind, id).Scan(&data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *Service) watermarkSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence FROM lend.checkpoint WHERE id = 1
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err := *errp; err != nil {
		status = "error"
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
		}
		s.metrics.QueryErrors.WithLabelValues(op, status).Inc()
	}
	s.metrics.QueryRequests.WithLabelValues(op, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
