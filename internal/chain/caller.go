package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountLimits is the lens contract's risk aggregation for one account,
// all values 18-decimal mantissas.
type AccountLimits struct {
	TotalCollateralValueUSD *big.Int
	TotalBorrowValueUSD     *big.Int
	HealthFactor            *big.Int
}

// Caller provides synchronous reads against contracts at the current block.
// Every method either returns a value or an error; an error stands for a
// reverted call (or an unreachable node) and is an expected, handled branch
// for the methods the core treats as fallible — never an exception to
// propagate.
type Caller interface {
	// Market (issued token) reads.
	Underlying(ctx context.Context, market common.Address) (common.Address, error)
	TotalSupply(ctx context.Context, market common.Address) (*big.Int, error)
	ExchangeRateStored(ctx context.Context, market common.Address) (*big.Int, error)
	TotalReserves(ctx context.Context, market common.Address) (*big.Int, error)
	InterestRateModel(ctx context.Context, market common.Address) (common.Address, error)
	ReserveFactorMantissa(ctx context.Context, market common.Address) (*big.Int, error)
	BorrowRatePerPeriod(ctx context.Context, market common.Address) (*big.Int, error)
	SupplyRatePerPeriod(ctx context.Context, market common.Address) (*big.Int, error)

	// ERC-20 metadata reads (used for both the market token and its
	// underlying).
	TokenName(ctx context.Context, token common.Address) (string, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)

	// Oracle reads.
	PriceAggregator(ctx context.Context, oracle, market common.Address) (common.Address, error)
	UnderlyingPrice(ctx context.Context, oracle, market common.Address) (*big.Int, error)

	// Lens read aggregating an account's risk across markets.
	AccountLimits(ctx context.Context, lens, comptroller, account common.Address) (AccountLimits, error)
}
