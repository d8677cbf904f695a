package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mint: an account supplies underlying into a market and receives issued
// tokens. MintAmount is underlying, MintTokens the issued token amount.
// A Transfer event is always emitted alongside; position balances are
// maintained there, not here.
type Mint struct {
	Raw
	Minter     common.Address `json:"minter"`
	MintAmount *big.Int       `json:"mintAmount"`
	MintTokens *big.Int       `json:"mintTokens"`
}

func (e *Mint) EventType() EventType { return EventTypeMint }

// Redeem: an account returns issued tokens for underlying.
type Redeem struct {
	Raw
	Redeemer     common.Address `json:"redeemer"`
	RedeemAmount *big.Int       `json:"redeemAmount"`
	RedeemTokens *big.Int       `json:"redeemTokens"`
}

func (e *Redeem) EventType() EventType { return EventTypeRedeem }

// Borrow: underlying borrowed from a market. AccountBorrows is the
// borrower's post-event total, TotalBorrows the market's.
type Borrow struct {
	Raw
	Borrower       common.Address `json:"borrower"`
	BorrowAmount   *big.Int       `json:"borrowAmount"`
	AccountBorrows *big.Int       `json:"accountBorrows"`
	TotalBorrows   *big.Int       `json:"totalBorrows"`
}

func (e *Borrow) EventType() EventType { return EventTypeBorrow }

// RepayBorrow: anyone may repay any borrower's balance.
type RepayBorrow struct {
	Raw
	Payer          common.Address `json:"payer"`
	Borrower       common.Address `json:"borrower"`
	RepayAmount    *big.Int       `json:"repayAmount"`
	AccountBorrows *big.Int       `json:"accountBorrows"`
	TotalBorrows   *big.Int       `json:"totalBorrows"`
}

func (e *RepayBorrow) EventType() EventType { return EventTypeRepayBorrow }

// LiquidateBorrow: a liquidator repays underlying of the emitting market and
// seizes issued tokens of TokenCollateral from the borrower. The repay and
// seize balance changes arrive via the accompanying RepayBorrow and Transfer
// events; this event only carries the identities and amounts.
type LiquidateBorrow struct {
	Raw
	Liquidator      common.Address `json:"liquidator"`
	Borrower        common.Address `json:"borrower"`
	RepayAmount     *big.Int       `json:"repayAmount"`
	TokenCollateral common.Address `json:"tokenCollateral"`
	SeizeTokens     *big.Int       `json:"seizeTokens"`
}

func (e *LiquidateBorrow) EventType() EventType { return EventTypeLiquidateBorrow }

// Transfer of the market's issued token. Emitted for mints (from = market),
// redeems (to = market), liquidation seizures, and plain transfers.
type Transfer struct {
	Raw
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (e *Transfer) EventType() EventType { return EventTypeTransfer }

// AccrueInterest precedes every other log of a market within a transaction
// and carries the freshly compounded market aggregates.
type AccrueInterest struct {
	Raw
	CashPrior           *big.Int `json:"cashPrior"`
	InterestAccumulated *big.Int `json:"interestAccumulated"`
	BorrowIndex         *big.Int `json:"borrowIndex"`
	TotalBorrows        *big.Int `json:"totalBorrows"`
}

func (e *AccrueInterest) EventType() EventType { return EventTypeAccrueInterest }

// NewReserveFactor is emitted by the market when its reserve factor changes.
type NewReserveFactor struct {
	Raw
	NewReserveFactorMantissa *big.Int `json:"newReserveFactorMantissa"`
}

func (e *NewReserveFactor) EventType() EventType { return EventTypeNewReserveFactor }

// NewMarketInterestRateModel is emitted by the market when its interest rate
// model contract is swapped.
type NewMarketInterestRateModel struct {
	Raw
	NewInterestRateModel common.Address `json:"newInterestRateModel"`
}

func (e *NewMarketInterestRateModel) EventType() EventType {
	return EventTypeNewMarketInterestRateModel
}
