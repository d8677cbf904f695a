package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"LendLedger/internal/entity"
	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
)

var zeroAddress = common.Address{}

func (e *Engine) loadMarket(id string) (*entity.Market, bool) {
	ent, ok := e.store.Get(entity.KindMarket, id)
	if !ok {
		return nil, false
	}
	return ent.(*entity.Market), true
}

// getOrCreateMarket is idempotent. Creation performs the one-time external
// reads (underlying metadata, interest rate model, reserve factor) and zeroes
// every computed field; the first AccrueInterest refresh fills them in. The
// model and reserve-factor reads are fallible and default to zero values;
// the metadata reads are required and their failure aborts the event.
func (e *Engine) getOrCreateMarket(ctx context.Context, address common.Address) (*entity.Market, error) {
	id := addrID(address)
	if m, ok := e.loadMarket(id); ok {
		return m, nil
	}

	m := &entity.Market{
		ID:                 id,
		UnderlyingPriceUSD: fpmath.Zero,
		ExchangeRate:       fpmath.Zero,
		BorrowIndex:        fpmath.One,
		TotalSupply:        fpmath.Zero,
		TotalBorrows:       fpmath.Zero,
		Cash:               fpmath.Zero,
		Reserves:           fpmath.Zero,
		BorrowRate:         fpmath.Zero,
		SupplyRate:         fpmath.Zero,
		CollateralFactor:   fpmath.Zero,
		ReserveFactor:      fpmath.Zero,

		TotalInterestAccumulatedExact: fpmath.Zero,
		TotalInterestAccumulated:      fpmath.Zero,
	}

	underlying, err := e.caller.Underlying(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read underlying of %s: %w", id, err)
	}
	m.UnderlyingAddress = addrID(underlying)

	if native, ok := e.native[id]; ok {
		// Wrapped-native markets have no ERC-20 metadata to read.
		m.UnderlyingDecimals = fpmath.MantissaDecimals
		m.UnderlyingName = native.Name
		m.UnderlyingSymbol = native.Symbol
	} else {
		dec, err := e.caller.TokenDecimals(ctx, underlying)
		if err != nil {
			return nil, fmt.Errorf("read decimals of underlying %s: %w", m.UnderlyingAddress, err)
		}
		m.UnderlyingDecimals = int32(dec)

		m.UnderlyingName, err = e.caller.TokenName(ctx, underlying)
		if err != nil {
			return nil, fmt.Errorf("read name of underlying %s: %w", m.UnderlyingAddress, err)
		}
		m.UnderlyingSymbol, err = e.caller.TokenSymbol(ctx, underlying)
		if err != nil {
			return nil, fmt.Errorf("read symbol of underlying %s: %w", m.UnderlyingAddress, err)
		}
	}

	if e.stables[id] {
		m.UnderlyingPriceUSD = fpmath.One
	}

	m.Name, err = e.caller.TokenName(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read name of market %s: %w", id, err)
	}
	m.Symbol, err = e.caller.TokenSymbol(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read symbol of market %s: %w", id, err)
	}

	if model, err := e.caller.InterestRateModel(ctx, address); err != nil {
		m.InterestRateModelAddress = addrID(zeroAddress)
	} else {
		m.InterestRateModelAddress = addrID(model)
	}

	if rf, err := e.caller.ReserveFactorMantissa(ctx, address); err == nil {
		m.ReserveFactor = fpmath.FromMantissa(rf, 0)
	}

	e.store.Put(m)
	e.log.Info().
		Str("market", id).
		Str("symbol", m.Symbol).
		Str("underlying", m.UnderlyingSymbol).
		Msg("market created")
	return m, nil
}

// refreshMarket recomputes the market snapshot from an AccrueInterest event.
// It runs at most once per block timestamp: the accrual event precedes every
// other log of the market within a transaction, so the skip guarantees later
// handlers in the same transaction see a fresh market without re-reading.
// The expensive reads (price, exchange rate, reserves, rates) are further
// gated by the staleness window, trading freshness for read-call volume.
func (e *Engine) refreshMarket(ctx context.Context, ev *event.AccrueInterest) (*entity.Market, error) {
	m, err := e.getOrCreateMarket(ctx, ev.Emitter())
	if err != nil {
		return nil, err
	}

	blockTimestamp := ev.BlockTime()
	if m.AccrualTimestamp == blockTimestamp {
		return m, nil
	}

	address := ev.Emitter()
	underlyingExp := fpmath.Exponent(m.UnderlyingDecimals)
	stale := blockTimestamp-m.AccrualTimestamp > e.cfg.PriceStalenessWindow

	if m.UnderlyingPriceUSD.IsZero() || stale {
		m.UnderlyingPriceUSD = e.underlyingPriceUSD(ctx, m).Truncate(m.UnderlyingDecimals)
	}

	totalSupply, err := e.caller.TotalSupply(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read totalSupply of %s: %w", m.ID, err)
	}
	m.TotalSupply = fpmath.FromMantissa(totalSupply, fpmath.TokenDecimals)

	// The stored exchange rate is scaled by 10^(18 + underlying - token
	// decimals); normalizing divides out the underlying and mantissa bases
	// and multiplies the token base back in.
	if m.ExchangeRate.IsZero() || stale {
		rate, err := e.caller.ExchangeRateStored(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("read exchangeRateStored of %s: %w", m.ID, err)
		}
		m.ExchangeRate = fpmath.FromMantissa(rate, 0).
			Div(underlyingExp).
			Mul(fpmath.TokenFactor).
			Div(fpmath.MantissaFactor).
			Truncate(fpmath.MantissaDecimals)
	}

	// Borrow index always comes from the event, never from a read.
	m.BorrowIndex = fpmath.Truncated(ev.BorrowIndex, fpmath.MantissaDecimals, fpmath.MantissaDecimals)

	if stale {
		reserves, err := e.caller.TotalReserves(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("read totalReserves of %s: %w", m.ID, err)
		}
		m.Reserves = fpmath.Truncated(reserves, m.UnderlyingDecimals, m.UnderlyingDecimals)
	}

	m.TotalBorrows = fpmath.Truncated(ev.TotalBorrows, m.UnderlyingDecimals, m.UnderlyingDecimals)
	m.Cash = fpmath.Truncated(ev.CashPrior, m.UnderlyingDecimals, m.UnderlyingDecimals)

	if stale {
		borrowRate, err := e.caller.BorrowRatePerPeriod(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("read borrow rate of %s: %w", m.ID, err)
		}
		m.BorrowRate = fpmath.AnnualRate(borrowRate, e.cfg.RatePeriodsPerYear)

		// The supply-rate read reverts on some markets' first call. Degrade
		// to zero rather than abort.
		supplyRate, err := e.caller.SupplyRatePerPeriod(ctx, address)
		if err != nil {
			e.log.Info().Str("market", m.ID).Msg("supply rate call reverted")
			m.SupplyRate = fpmath.Zero
		} else {
			m.SupplyRate = fpmath.AnnualRate(supplyRate, e.cfg.RatePeriodsPerYear)
		}
	}

	m.AccrualTimestamp = blockTimestamp
	m.BlockTimestamp = blockTimestamp

	m.TotalInterestAccumulatedExact = m.TotalInterestAccumulatedExact.
		Add(fpmath.FromMantissa(ev.InterestAccumulated, 0))
	m.TotalInterestAccumulated = m.TotalInterestAccumulatedExact.
		Div(underlyingExp).
		Truncate(m.UnderlyingDecimals)

	e.store.Put(m)
	if e.metrics != nil {
		e.metrics.MarketRefreshes.Inc()
		if !stale {
			e.metrics.StalePriceSkips.Inc()
		}
	}
	return m, nil
}

// underlyingPriceUSD reads the market's underlying price from the oracle the
// comptroller currently points at. Every failure branch substitutes zero:
// missing comptroller, unset oracle, missing aggregator, reverted read.
func (e *Engine) underlyingPriceUSD(ctx context.Context, m *entity.Market) decimal.Decimal {
	comp, ok := e.loadComptroller()
	if !ok {
		e.log.Info().Str("market", m.ID).Msg("no comptroller yet, price defaults to zero")
		return fpmath.Zero
	}
	if comp.PriceOracle == "" || comp.PriceOracle == addrID(zeroAddress) {
		return fpmath.Zero
	}

	oracle := common.HexToAddress(comp.PriceOracle)
	market := common.HexToAddress(m.ID)

	aggregator, err := e.caller.PriceAggregator(ctx, oracle, market)
	if err != nil || aggregator == zeroAddress {
		return fpmath.Zero
	}

	price, err := e.caller.UnderlyingPrice(ctx, oracle, market)
	if err != nil {
		e.log.Info().Str("market", m.ID).Msg("oracle price call reverted")
		return fpmath.Zero
	}

	// The oracle reports prices scaled by 10^(36 - underlying decimals).
	return fpmath.FromMantissa(price, fpmath.MantissaDecimals-m.UnderlyingDecimals+fpmath.MantissaDecimals)
}

func (e *Engine) loadComptroller() (*entity.Comptroller, bool) {
	ent, ok := e.store.Get(entity.KindComptroller, entity.ComptrollerID)
	if !ok {
		return nil, false
	}
	return ent.(*entity.Comptroller), true
}
