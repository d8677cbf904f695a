package query

import (
	"LendLedger/internal/entity"
	"LendLedger/internal/projection"
)

// Responses carry AsOfSequence, the engine sequence of the last persisted
// batch, so callers can reason about freshness.

type MarketsResponse struct {
	Markets      []*entity.Market `json:"markets"`
	AsOfSequence int64            `json:"asOfSequence"`
}

type MarketResponse struct {
	Market       *entity.Market `json:"market"`
	AsOfSequence int64          `json:"asOfSequence"`
}

type AccountResponse struct {
	Account      *entity.Account    `json:"account"`
	Positions    []*entity.Position `json:"positions"`
	AsOfSequence int64              `json:"asOfSequence"`
}

type MarketDayDataResponse struct {
	Days         []*entity.MarketDayData `json:"days"`
	AsOfSequence int64                   `json:"asOfSequence"`
}

type LiquidationDayDataResponse struct {
	Days         []*entity.LiquidationDayData `json:"days"`
	AsOfSequence int64                        `json:"asOfSequence"`
}

type ComptrollerResponse struct {
	Comptroller  *entity.Comptroller `json:"comptroller"`
	AsOfSequence int64               `json:"asOfSequence"`
}

type WatermarkResponse struct {
	Sequence    int64  `json:"sequence"`
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint64 `json:"logIndex"`
	StateHash   string `json:"stateHash"`
}

type ActivityResponse struct {
	Entries      []projection.ActivityEntry `json:"entries"`
	AsOfSequence int64                      `json:"asOfSequence"`
}

// IntegrityReport is the admin view over the hash chain: every envelope's
// prev_hash must equal its predecessor's state_hash.
type IntegrityReport struct {
	CheckedEvents   int64   `json:"checkedEvents"`
	HashChainBreaks []int64 `json:"hashChainBreaks"`
	IsHealthy       bool    `json:"isHealthy"`
}
