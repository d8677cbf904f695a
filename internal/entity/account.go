package entity

import "github.com/shopspring/decimal"

// Account is one protocol participant, keyed by wallet address. Created
// lazily on first interaction. Health, collateral and borrow values are
// refreshed best-effort from the lens contract; a failed read leaves the
// prior values intact.
type Account struct {
	ID              string          `json:"id"`
	HasBorrowed     bool            `json:"hasBorrowed"`
	CountLiquidated int32           `json:"countLiquidated"`
	CountLiquidator int32           `json:"countLiquidator"`
	Health          decimal.Decimal `json:"health"`

	TotalCollateralValueUSD decimal.Decimal `json:"totalCollateralValueUSD"`
	TotalBorrowValueUSD     decimal.Decimal `json:"totalBorrowValueUSD"`
}

func (a *Account) Kind() string     { return KindAccount }
func (a *Account) EntityID() string { return a.ID }

// Position is the per-(market, account) stats record, keyed
// "marketID-accountID".
//
// AccountBorrowIndex is the market borrow index at the last borrow or repay
// touching this position; dividing the current market index by it captures
// compounding since. It is zero until the first borrow, which callers must
// special-case as an identity multiplier.
type Position struct {
	ID      string `json:"id"`
	Market  string `json:"market"`
	Account string `json:"account"`
	Symbol  string `json:"symbol"`

	EnteredMarket    bool  `json:"enteredMarket"`
	AccrualTimestamp int64 `json:"accrualTimestamp"`

	TokenBalance            decimal.Decimal `json:"tokenBalance"`
	SupplyBalanceUnderlying decimal.Decimal `json:"supplyBalanceUnderlying"`
	StoredBorrowBalance     decimal.Decimal `json:"storedBorrowBalance"`
	BorrowBalanceUnderlying decimal.Decimal `json:"borrowBalanceUnderlying"`
	AccountBorrowIndex      decimal.Decimal `json:"accountBorrowIndex"`

	TotalUnderlyingSupplied decimal.Decimal `json:"totalUnderlyingSupplied"`
	TotalUnderlyingRedeemed decimal.Decimal `json:"totalUnderlyingRedeemed"`
	TotalUnderlyingBorrowed decimal.Decimal `json:"totalUnderlyingBorrowed"`
	TotalUnderlyingRepaid   decimal.Decimal `json:"totalUnderlyingRepaid"`

	LifetimeSupplyInterestAccrued decimal.Decimal `json:"lifetimeSupplyInterestAccrued"`
	LifetimeBorrowInterestAccrued decimal.Decimal `json:"lifetimeBorrowInterestAccrued"`
}

func (p *Position) Kind() string     { return KindPosition }
func (p *Position) EntityID() string { return p.ID }

// PositionID derives the composite key for a (market, account) pair.
func PositionID(marketID, accountID string) string {
	return marketID + "-" + accountID
}

// PositionTransaction is the append-only audit trail: one row per
// (position, tx hash, log index), recording that some event touched the
// position. Never mutated after creation.
type PositionTransaction struct {
	ID        string `json:"id"`
	Position  string `json:"position"`
	TxHash    string `json:"txHash"`
	Timestamp int64  `json:"timestamp"`
	Block     uint64 `json:"block"`
	LogIndex  uint64 `json:"logIndex"`
}

func (t *PositionTransaction) Kind() string     { return KindPositionTransaction }
func (t *PositionTransaction) EntityID() string { return t.ID }
