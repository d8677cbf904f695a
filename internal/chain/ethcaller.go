package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"LendLedger/internal/observability"
)

// Minimal ABI surfaces for the handful of view methods the engine reads.
// Markets deployed with per-block rate methods swap the rate method names
// via WithPerBlockRates.
const tokenABIJSON = `[
 {"type":"function","name":"underlying","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
 {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
 {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"type":"uint8"}]},
 {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"exchangeRateStored","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"totalReserves","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"interestRateModel","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
 {"type":"function","name":"reserveFactorMantissa","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"borrowRatePerSecond","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"supplyRatePerSecond","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"borrowRatePerBlock","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"supplyRatePerBlock","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

const oracleABIJSON = `[
 {"type":"function","name":"aggregators","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"address"}]},
 {"type":"function","name":"getUnderlyingPrice","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256"}]}
]`

const lensABIJSON = `[
 {"type":"function","name":"getAccountLimits","stateMutability":"view","inputs":[{"type":"address"},{"type":"address"}],"outputs":[{"type":"uint256"},{"type":"uint256"},{"type":"uint256"}]}
]`

// EthCaller reads contracts over an Ethereum JSON-RPC endpoint. Calls are
// executed at the node's current block; the host pins the node to the block
// being indexed.
type EthCaller struct {
	client *ethclient.Client

	tokenABI  abi.ABI
	oracleABI abi.ABI
	lensABI   abi.ABI

	borrowRateMethod string
	supplyRateMethod string

	metrics *observability.Metrics
}

func NewEthCaller(client *ethclient.Client) (*EthCaller, error) {
	tokenABI, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	oracleABI, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse oracle abi: %w", err)
	}
	lensABI, err := abi.JSON(strings.NewReader(lensABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse lens abi: %w", err)
	}

	return &EthCaller{
		client:           client,
		tokenABI:         tokenABI,
		oracleABI:        oracleABI,
		lensABI:          lensABI,
		borrowRateMethod: "borrowRatePerSecond",
		supplyRateMethod: "supplyRatePerSecond",
	}, nil
}

// WithPerBlockRates switches to the per-block rate method names used by
// older protocol deployments.
func (c *EthCaller) WithPerBlockRates() *EthCaller {
	c.borrowRateMethod = "borrowRatePerBlock"
	c.supplyRateMethod = "supplyRatePerBlock"
	return c
}

// WithMetrics instruments every contract read.
func (c *EthCaller) WithMetrics(m *observability.Metrics) *EthCaller {
	c.metrics = m
	return c
}

func (c *EthCaller) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if c.metrics != nil {
		c.metrics.ChainCalls.WithLabelValues(method).Inc()
		start := time.Now()
		defer func() {
			c.metrics.ChainCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}()
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ChainCallErrors.WithLabelValues(method).Inc()
		}
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		if c.metrics != nil {
			c.metrics.ChainCallErrors.WithLabelValues(method).Inc()
		}
		return nil, fmt.Errorf("call %s on %s: empty return (reverted or no code)", method, to.Hex())
	}

	vals, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

func (c *EthCaller) callAddress(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (common.Address, error) {
	vals, err := c.call(ctx, to, contractABI, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected return type %T", method, vals[0])
	}
	return addr, nil
}

func (c *EthCaller) callBig(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	vals, err := c.call(ctx, to, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, vals[0])
	}
	return v, nil
}

func (c *EthCaller) Underlying(ctx context.Context, market common.Address) (common.Address, error) {
	return c.callAddress(ctx, market, c.tokenABI, "underlying")
}

func (c *EthCaller) TotalSupply(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, market, c.tokenABI, "totalSupply")
}

func (c *EthCaller) ExchangeRateStored(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, market, c.tokenABI, "exchangeRateStored")
}

func (c *EthCaller) TotalReserves(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, market, c.tokenABI, "totalReserves")
}

func (c *EthCaller) InterestRateModel(ctx context.Context, market common.Address) (common.Address, error) {
	return c.callAddress(ctx, market, c.tokenABI, "interestRateModel")
}

func (c *EthCaller) ReserveFactorMantissa(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, market, c.tokenABI, "reserveFactorMantissa")
}

func (c *EthCaller) BorrowRatePerPeriod(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, market, c.tokenABI, c.borrowRateMethod)
}

func (c *EthCaller) SupplyRatePerPeriod(ctx context.Context, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, market, c.tokenABI, c.supplyRateMethod)
}

func (c *EthCaller) TokenName(ctx context.Context, token common.Address) (string, error) {
	vals, err := c.call(ctx, token, c.tokenABI, "name")
	if err != nil {
		return "", err
	}
	s, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("name: unexpected return type %T", vals[0])
	}
	return s, nil
}

func (c *EthCaller) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	vals, err := c.call(ctx, token, c.tokenABI, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected return type %T", vals[0])
	}
	return s, nil
}

func (c *EthCaller) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	vals, err := c.call(ctx, token, c.tokenABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected return type %T", vals[0])
	}
	return d, nil
}

func (c *EthCaller) PriceAggregator(ctx context.Context, oracle, market common.Address) (common.Address, error) {
	return c.callAddress(ctx, oracle, c.oracleABI, "aggregators", market)
}

func (c *EthCaller) UnderlyingPrice(ctx context.Context, oracle, market common.Address) (*big.Int, error) {
	return c.callBig(ctx, oracle, c.oracleABI, "getUnderlyingPrice", market)
}

func (c *EthCaller) AccountLimits(ctx context.Context, lens, comptroller, account common.Address) (AccountLimits, error) {
	vals, err := c.call(ctx, lens, c.lensABI, "getAccountLimits", comptroller, account)
	if err != nil {
		return AccountLimits{}, err
	}
	if len(vals) != 3 {
		return AccountLimits{}, fmt.Errorf("getAccountLimits: expected 3 values, got %d", len(vals))
	}
	collateral, ok1 := vals[0].(*big.Int)
	borrow, ok2 := vals[1].(*big.Int)
	health, ok3 := vals[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return AccountLimits{}, fmt.Errorf("getAccountLimits: unexpected return types")
	}
	return AccountLimits{
		TotalCollateralValueUSD: collateral,
		TotalBorrowValueUSD:     borrow,
		HealthFactor:            health,
	}, nil
}
