package event

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for decoded chain events.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAccrueInterest
	EventTypeMarketListed
	EventTypeMarketEntered
	EventTypeMarketExited
	EventTypeMint
	EventTypeRedeem
	EventTypeBorrow
	EventTypeRepayBorrow
	EventTypeLiquidateBorrow
	EventTypeTransfer
	EventTypeNewCloseFactor
	EventTypeNewCollateralFactor
	EventTypeNewLiquidationIncentive
	EventTypeNewPriceOracle
	EventTypeNewReserveFactor
	EventTypeNewMarketInterestRateModel
)

// Event is the interface every decoded chain event implements. The host
// delivers events strictly in chain order: block number, then transaction
// order, then log index. Within one transaction the market's AccrueInterest
// log always precedes the other logs referencing that market — the ordering
// guard in core relies on that contract.
type Event interface {
	// EventID returns the stable "txhash-logindex" identity used for
	// idempotent journal and audit keys.
	EventID() string

	EventType() EventType

	// Emitter is the contract address that emitted the log (the market for
	// token events, the comptroller for governance events).
	Emitter() common.Address

	BlockNumber() uint64
	LogIndex() uint64
	BlockTime() int64
	TxHash() common.Hash
}

// Raw carries the log coordinates shared by every event.
type Raw struct {
	Contract common.Address `json:"contract"`
	Tx       common.Hash    `json:"txHash"`
	Log      uint64         `json:"logIndex"`
	Block    uint64         `json:"blockNumber"`
	Time     int64          `json:"blockTime"`
}

func (r Raw) EventID() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(r.Tx.Hex()), r.Log)
}

func (r Raw) Emitter() common.Address { return r.Contract }
func (r Raw) BlockNumber() uint64     { return r.Block }
func (r Raw) LogIndex() uint64        { return r.Log }
func (r Raw) BlockTime() int64        { return r.Time }
func (r Raw) TxHash() common.Hash     { return r.Tx }

func (et EventType) String() string {
	switch et {
	case EventTypeAccrueInterest:
		return "AccrueInterest"
	case EventTypeMarketListed:
		return "MarketListed"
	case EventTypeMarketEntered:
		return "MarketEntered"
	case EventTypeMarketExited:
		return "MarketExited"
	case EventTypeMint:
		return "Mint"
	case EventTypeRedeem:
		return "Redeem"
	case EventTypeBorrow:
		return "Borrow"
	case EventTypeRepayBorrow:
		return "RepayBorrow"
	case EventTypeLiquidateBorrow:
		return "LiquidateBorrow"
	case EventTypeTransfer:
		return "Transfer"
	case EventTypeNewCloseFactor:
		return "NewCloseFactor"
	case EventTypeNewCollateralFactor:
		return "NewCollateralFactor"
	case EventTypeNewLiquidationIncentive:
		return "NewLiquidationIncentive"
	case EventTypeNewPriceOracle:
		return "NewPriceOracle"
	case EventTypeNewReserveFactor:
		return "NewReserveFactor"
	case EventTypeNewMarketInterestRateModel:
		return "NewMarketInterestRateModel"
	default:
		return "Unknown"
	}
}
