package entity

import "github.com/shopspring/decimal"

// Journal entities: one immutable row per (tx hash, log index), holding the
// decimal-normalized amounts of the event. They are the append-only source
// of truth every aggregate is derived from.

// MintEvent records a supply. Amount is in issued-token units, From is the
// market contract (mints originate from the market, not the zero address).
type MintEvent struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	UnderlyingAmount decimal.Decimal `json:"underlyingAmount"`
	From             string          `json:"from"`
	To               string          `json:"to"`
	BlockNumber      uint64          `json:"blockNumber"`
	BlockTime        int64           `json:"blockTime"`
	TokenSymbol      string          `json:"tokenSymbol"`
}

func (e *MintEvent) Kind() string     { return KindMintEvent }
func (e *MintEvent) EntityID() string { return e.ID }

// RedeemEvent records a withdrawal of supply.
type RedeemEvent struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	UnderlyingAmount decimal.Decimal `json:"underlyingAmount"`
	From             string          `json:"from"`
	To               string          `json:"to"`
	BlockNumber      uint64          `json:"blockNumber"`
	BlockTime        int64           `json:"blockTime"`
	TokenSymbol      string          `json:"tokenSymbol"`
}

func (e *RedeemEvent) Kind() string     { return KindRedeemEvent }
func (e *RedeemEvent) EntityID() string { return e.ID }

// BorrowEvent records a borrow; AccountBorrows is the borrower's post-event
// total in underlying units.
type BorrowEvent struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	AccountBorrows   decimal.Decimal `json:"accountBorrows"`
	Borrower         string          `json:"borrower"`
	BlockNumber      uint64          `json:"blockNumber"`
	BlockTime        int64           `json:"blockTime"`
	UnderlyingSymbol string          `json:"underlyingSymbol"`
}

func (e *BorrowEvent) Kind() string     { return KindBorrowEvent }
func (e *BorrowEvent) EntityID() string { return e.ID }

// RepayEvent records a repayment; Payer may differ from Borrower.
type RepayEvent struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	AccountBorrows   decimal.Decimal `json:"accountBorrows"`
	Borrower         string          `json:"borrower"`
	Payer            string          `json:"payer"`
	BlockNumber      uint64          `json:"blockNumber"`
	BlockTime        int64           `json:"blockTime"`
	UnderlyingSymbol string          `json:"underlyingSymbol"`
}

func (e *RepayEvent) Kind() string     { return KindRepayEvent }
func (e *RepayEvent) EntityID() string { return e.ID }

// LiquidationEvent carries both sides of a liquidation: the seized
// issued-token amount of the collateral market and the repaid underlying of
// the emitting market.
type LiquidationEvent struct {
	ID                    string          `json:"id"`
	Amount                decimal.Decimal `json:"amount"` // seized tokens
	UnderlyingRepayAmount decimal.Decimal `json:"underlyingRepayAmount"`
	From                  string          `json:"from"` // borrower
	To                    string          `json:"to"`   // liquidator
	CollateralMarket      string          `json:"collateralMarket"`
	RepayMarket           string          `json:"repayMarket"`
	BlockNumber           uint64          `json:"blockNumber"`
	BlockTime             int64           `json:"blockTime"`
	TokenSymbol           string          `json:"tokenSymbol"` // collateral market symbol
	UnderlyingSymbol      string          `json:"underlyingSymbol"`
}

func (e *LiquidationEvent) Kind() string     { return KindLiquidationEvent }
func (e *LiquidationEvent) EntityID() string { return e.ID }

// TransferEvent records any movement of a market's issued token, including
// the transfers paired with mints, redeems, and seizures.
type TransferEvent struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	BlockNumber uint64          `json:"blockNumber"`
	BlockTime   int64           `json:"blockTime"`
	TokenSymbol string          `json:"tokenSymbol"`
}

func (e *TransferEvent) Kind() string     { return KindTransferEvent }
func (e *TransferEvent) EntityID() string { return e.ID }
