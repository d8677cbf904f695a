package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketListed: the comptroller admits a new market.
type MarketListed struct {
	Raw
	Token common.Address `json:"token"`
}

func (e *MarketListed) EventType() EventType { return EventTypeMarketListed }

// MarketEntered: an account enables a market as collateral.
type MarketEntered struct {
	Raw
	Token   common.Address `json:"token"`
	Account common.Address `json:"account"`
}

func (e *MarketEntered) EventType() EventType { return EventTypeMarketEntered }

// MarketExited: an account disables a market as collateral.
type MarketExited struct {
	Raw
	Token   common.Address `json:"token"`
	Account common.Address `json:"account"`
}

func (e *MarketExited) EventType() EventType { return EventTypeMarketExited }

// NewCloseFactor: governance sets the fraction of a borrow repayable in one
// liquidation. The first governance event observed creates the comptroller
// singleton.
type NewCloseFactor struct {
	Raw
	NewCloseFactorMantissa *big.Int `json:"newCloseFactorMantissa"`
}

func (e *NewCloseFactor) EventType() EventType { return EventTypeNewCloseFactor }

// NewCollateralFactor: governance sets a market's collateral factor.
type NewCollateralFactor struct {
	Raw
	Token                       common.Address `json:"token"`
	NewCollateralFactorMantissa *big.Int       `json:"newCollateralFactorMantissa"`
}

func (e *NewCollateralFactor) EventType() EventType { return EventTypeNewCollateralFactor }

// NewLiquidationIncentive: governance sets the liquidator bonus.
type NewLiquidationIncentive struct {
	Raw
	NewLiquidationIncentiveMantissa *big.Int `json:"newLiquidationIncentiveMantissa"`
}

func (e *NewLiquidationIncentive) EventType() EventType {
	return EventTypeNewLiquidationIncentive
}

// NewPriceOracle: governance swaps the price oracle contract.
type NewPriceOracle struct {
	Raw
	Oracle common.Address `json:"oracle"`
}

func (e *NewPriceOracle) EventType() EventType { return EventTypeNewPriceOracle }
