package entity

// Entity is anything the store persists: a flat attribute set behind a
// string id, unique within its kind. Cross-references between entities are
// plain id strings resolved by re-loading.
type Entity interface {
	Kind() string
	EntityID() string
}

// Kind names double as the persistence discriminator; they never change once
// rows exist.
const (
	KindMarket              = "market"
	KindAccount             = "account"
	KindPosition            = "account_position"
	KindPositionTransaction = "position_transaction"
	KindMintEvent           = "mint_event"
	KindRedeemEvent         = "redeem_event"
	KindBorrowEvent         = "borrow_event"
	KindRepayEvent          = "repay_event"
	KindLiquidationEvent    = "liquidation_event"
	KindTransferEvent       = "transfer_event"
	KindMarketDayData       = "market_day_data"
	KindLiquidationDayData  = "liquidation_day_data"
	KindComptroller         = "comptroller"
)
