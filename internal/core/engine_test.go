package core

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"LendLedger/internal/entity"
	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/store"
	"LendLedger/internal/testutil"
)

func newTestEngine(cfg Config, caller *testutil.StaticCaller) (*Engine, *store.MemoryStore) {
	st := store.NewMemoryStore()
	e := NewEngine(cfg, st, caller, nil, nil, nil, nil)
	return e, st
}

// seedMarket places a market snapshot directly in the store, bypassing the
// creation reads, and clears the dirty set.
func seedMarket(st *store.MemoryStore, id string, underlyingDecimals int32, borrowIndex decimal.Decimal) *entity.Market {
	m := &entity.Market{
		ID:                 id,
		Name:               "Lend Test Token",
		Symbol:             "lTEST",
		UnderlyingSymbol:   "TUND",
		UnderlyingDecimals: underlyingDecimals,
		UnderlyingPriceUSD: fpmath.Zero,
		ExchangeRate:       fpmath.Zero,
		BorrowIndex:        borrowIndex,
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
	st.Put(m)
	st.DrainDirty()
	return m
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestMintAgainstUnlistedMarketCreatesIt(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-a")
	testutil.PrimeMarket(caller, mkt, 18)

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	mint := &event.Mint{
		Raw:        testutil.Raw(mkt, 100, 1, 1_700_000_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(5, 18),
		MintTokens: testutil.Mantissa(250, 8),
	}
	if err := e.ProcessEvent(ctx, mint); err != nil {
		t.Fatalf("process mint: %v", err)
	}

	m, ok := e.loadMarket(addrID(mkt))
	if !ok {
		t.Fatal("market was not created")
	}
	if !m.TotalSupply.IsZero() || !m.TotalBorrows.IsZero() || !m.Cash.IsZero() {
		t.Errorf("expected zeroed totals on creation, got supply=%s borrows=%s cash=%s",
			m.TotalSupply, m.TotalBorrows, m.Cash)
	}
	if !m.BorrowIndex.Equal(fpmath.One) {
		t.Errorf("borrow index = %s, want 1", m.BorrowIndex)
	}

	ent, ok := st.Get(entity.KindMintEvent, mint.EventID())
	if !ok {
		t.Fatal("mint journal entry missing")
	}
	j := ent.(*entity.MintEvent)
	if !j.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("mint token amount = %s, want 250", j.Amount)
	}
	if !j.UnderlyingAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("mint underlying amount = %s, want 5", j.UnderlyingAmount)
	}
	if j.From != m.ID {
		t.Errorf("mint from = %s, want market %s", j.From, m.ID)
	}

	// Position balances are maintained by the paired Transfer, not here.
	posEnt, ok := st.Get(entity.KindPosition, entity.PositionID(m.ID, addrID(testutil.Addr("alice"))))
	if !ok {
		t.Fatal("position audit record missing")
	}
	pos := posEnt.(*entity.Position)
	if !pos.TokenBalance.IsZero() || !pos.TotalUnderlyingSupplied.IsZero() {
		t.Errorf("mint must not mutate position balances, got token=%s supplied=%s",
			pos.TokenBalance, pos.TotalUnderlyingSupplied)
	}
}

func TestBorrowAdvancesPosition(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-b")

	e, st := newTestEngine(Config{}, caller)
	seedMarket(st, addrID(mkt), 18, mustDecimal(t, "1.05"))

	borrow := &event.Borrow{
		Raw:            testutil.Raw(mkt, 200, 3, 1_700_000_100),
		Borrower:       testutil.Addr("bob"),
		BorrowAmount:   testutil.Mantissa(50, 18),
		AccountBorrows: testutil.Mantissa(200, 18),
		TotalBorrows:   testutil.Mantissa(900, 18),
	}
	if err := e.ProcessEvent(context.Background(), borrow); err != nil {
		t.Fatalf("process borrow: %v", err)
	}

	posEnt, ok := st.Get(entity.KindPosition, entity.PositionID(addrID(mkt), addrID(testutil.Addr("bob"))))
	if !ok {
		t.Fatal("position missing")
	}
	pos := posEnt.(*entity.Position)

	if !pos.StoredBorrowBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("stored borrow balance = %s, want 200", pos.StoredBorrowBalance)
	}
	if !pos.TotalUnderlyingBorrowed.Equal(decimal.NewFromInt(50)) {
		t.Errorf("total underlying borrowed = %s, want 50", pos.TotalUnderlyingBorrowed)
	}
	if !pos.AccountBorrowIndex.Equal(mustDecimal(t, "1.05")) {
		t.Errorf("account borrow index = %s, want 1.05", pos.AccountBorrowIndex)
	}
	// Fresh position: zero index compounds as identity.
	if !pos.BorrowBalanceUnderlying.Equal(decimal.NewFromInt(200)) {
		t.Errorf("borrow balance underlying = %s, want 200", pos.BorrowBalanceUnderlying)
	}

	acctEnt, ok := st.Get(entity.KindAccount, addrID(testutil.Addr("bob")))
	if !ok {
		t.Fatal("account missing")
	}
	if !acctEnt.(*entity.Account).HasBorrowed {
		t.Error("hasBorrowed not set")
	}
}

func TestBorrowIndexCompounding(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-c")

	e, st := newTestEngine(Config{}, caller)
	m := seedMarket(st, addrID(mkt), 18, mustDecimal(t, "1.1"))

	bob := addrID(testutil.Addr("bob"))
	st.Put(&entity.Position{
		ID:                      entity.PositionID(m.ID, bob),
		Market:                  m.ID,
		Account:                 bob,
		AccountBorrowIndex:      fpmath.One,
		StoredBorrowBalance:     decimal.NewFromInt(100),
		BorrowBalanceUnderlying: decimal.NewFromInt(100),
	})
	st.DrainDirty()

	borrow := &event.Borrow{
		Raw:            testutil.Raw(mkt, 300, 2, 1_700_000_200),
		Borrower:       testutil.Addr("bob"),
		BorrowAmount:   testutil.Mantissa(0, 18),
		AccountBorrows: testutil.Mantissa(100, 18),
	}
	if err := e.ProcessEvent(context.Background(), borrow); err != nil {
		t.Fatalf("process borrow: %v", err)
	}

	posEnt, _ := st.Get(entity.KindPosition, entity.PositionID(m.ID, bob))
	pos := posEnt.(*entity.Position)
	if !pos.BorrowBalanceUnderlying.Equal(decimal.NewFromInt(110)) {
		t.Errorf("borrow balance underlying = %s, want 110 (100 * 1.1 / 1.0)",
			pos.BorrowBalanceUnderlying)
	}
	if !pos.AccountBorrowIndex.Equal(mustDecimal(t, "1.1")) {
		t.Errorf("account borrow index = %s, want 1.1", pos.AccountBorrowIndex)
	}
}

func TestLiquidationCountersOnly(t *testing.T) {
	caller := testutil.NewStaticCaller()
	repayMkt := testutil.Addr("market-repay")
	collMkt := testutil.Addr("market-coll")

	e, st := newTestEngine(Config{LiquidationBucketByPair: true}, caller)
	seedMarket(st, addrID(repayMkt), 18, fpmath.One)
	seedMarket(st, addrID(collMkt), 6, fpmath.One)

	liq := &event.LiquidateBorrow{
		Raw:             testutil.Raw(repayMkt, 400, 7, 1_700_000_300),
		Liquidator:      testutil.Addr("lex"),
		Borrower:        testutil.Addr("bob"),
		RepayAmount:     testutil.Mantissa(10, 18),
		TokenCollateral: collMkt,
		SeizeTokens:     testutil.Mantissa(40, 8),
	}
	if err := e.ProcessEvent(context.Background(), liq); err != nil {
		t.Fatalf("process liquidation: %v", err)
	}

	lexEnt, _ := st.Get(entity.KindAccount, addrID(testutil.Addr("lex")))
	if got := lexEnt.(*entity.Account).CountLiquidator; got != 1 {
		t.Errorf("liquidator count = %d, want 1", got)
	}
	bobEnt, _ := st.Get(entity.KindAccount, addrID(testutil.Addr("bob")))
	if got := bobEnt.(*entity.Account).CountLiquidated; got != 1 {
		t.Errorf("liquidated count = %d, want 1", got)
	}

	ent, ok := st.Get(entity.KindLiquidationEvent, liq.EventID())
	if !ok {
		t.Fatal("liquidation journal entry missing")
	}
	j := ent.(*entity.LiquidationEvent)
	if !j.Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("seized tokens = %s, want 40", j.Amount)
	}
	if !j.UnderlyingRepayAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("underlying repay = %s, want 10", j.UnderlyingRepayAmount)
	}
	if j.From != addrID(testutil.Addr("bob")) || j.To != addrID(testutil.Addr("lex")) {
		t.Errorf("journal parties wrong: from=%s to=%s", j.From, j.To)
	}

	// No position was touched by the liquidation itself.
	if _, ok := st.Get(entity.KindPosition, entity.PositionID(addrID(repayMkt), addrID(testutil.Addr("bob")))); ok {
		t.Error("liquidation must not create borrower positions")
	}
}

func TestDayBucketBoundary(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-d")
	testutil.PrimeMarket(caller, mkt, 18)

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	first := &event.Mint{
		Raw:        testutil.Raw(mkt, 10, 1, 86_399),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(1, 18),
		MintTokens: testutil.Mantissa(50, 8),
	}
	second := &event.Mint{
		Raw:        testutil.Raw(mkt, 11, 1, 86_400),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(1, 18),
		MintTokens: testutil.Mantissa(50, 8),
	}
	if err := e.ProcessEvent(ctx, first); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	if err := e.ProcessEvent(ctx, second); err != nil {
		t.Fatalf("second mint: %v", err)
	}

	d0, ok := st.Get(entity.KindMarketDayData, addrID(mkt)+"-0")
	if !ok {
		t.Fatal("day-0 bucket missing")
	}
	if got := d0.(*entity.MarketDayData).Date; got != 0 {
		t.Errorf("day-0 date = %d, want 0", got)
	}

	d1, ok := st.Get(entity.KindMarketDayData, addrID(mkt)+"-1")
	if !ok {
		t.Fatal("day-1 bucket missing")
	}
	if got := d1.(*entity.MarketDayData).Date; got != 86_400 {
		t.Errorf("day-1 date = %d, want 86400", got)
	}
}

func TestDayBucketAccumulates(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-e")
	testutil.PrimeMarket(caller, mkt, 18)

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	base := int64(1_700_000_000)
	for i := uint64(0); i < 2; i++ {
		mint := &event.Mint{
			Raw:        testutil.Raw(mkt, 20+i, 1, base+int64(i)*60),
			Minter:     testutil.Addr("alice"),
			MintAmount: testutil.Mantissa(3, 18),
			MintTokens: testutil.Mantissa(150, 8),
		}
		if err := e.ProcessEvent(ctx, mint); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}

	id := entity.MarketDayDataID(addrID(mkt), base)
	ent, ok := st.Get(entity.KindMarketDayData, id)
	if !ok {
		t.Fatal("day bucket missing")
	}
	d := ent.(*entity.MarketDayData)
	if d.TxCount != 2 {
		t.Errorf("txCount = %d, want 2", d.TxCount)
	}
	if !d.TotalSupply.Equal(decimal.NewFromInt(300)) {
		t.Errorf("total supply = %s, want 300", d.TotalSupply)
	}

	// Redeems subtract.
	redeem := &event.Redeem{
		Raw:          testutil.Raw(mkt, 22, 1, base+120),
		Redeemer:     testutil.Addr("alice"),
		RedeemAmount: testutil.Mantissa(1, 18),
		RedeemTokens: testutil.Mantissa(50, 8),
	}
	if err := e.ProcessEvent(ctx, redeem); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	ent, _ = st.Get(entity.KindMarketDayData, id)
	d = ent.(*entity.MarketDayData)
	if d.TxCount != 3 {
		t.Errorf("txCount after redeem = %d, want 3", d.TxCount)
	}
	if !d.TotalSupply.Equal(decimal.NewFromInt(250)) {
		t.Errorf("total supply after redeem = %s, want 250", d.TotalSupply)
	}
}

func TestAccrualGating(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-f")
	testutil.PrimeMarket(caller, mkt, 18)

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	accrue := &event.AccrueInterest{
		Raw:                 testutil.Raw(mkt, 30, 1, ts),
		CashPrior:           testutil.Mantissa(1000, 18),
		InterestAccumulated: testutil.Mantissa(1, 18),
		BorrowIndex:         testutil.Mantissa(105, 16), // 1.05
		TotalBorrows:        testutil.Mantissa(400, 18),
	}
	if err := e.ProcessEvent(ctx, accrue); err != nil {
		t.Fatalf("first accrual: %v", err)
	}
	supplyReads := caller.Calls["totalSupply"]

	ent, _ := st.Get(entity.KindMarket, addrID(mkt))
	before := *ent.(*entity.Market)

	// Same block timestamp, later log: the refresh must be skipped entirely.
	again := &event.AccrueInterest{
		Raw:                 testutil.Raw(mkt, 30, 2, ts),
		CashPrior:           testutil.Mantissa(9999, 18),
		InterestAccumulated: testutil.Mantissa(7, 18),
		BorrowIndex:         testutil.Mantissa(200, 16),
		TotalBorrows:        testutil.Mantissa(9999, 18),
	}
	if err := e.ProcessEvent(ctx, again); err != nil {
		t.Fatalf("second accrual: %v", err)
	}

	ent, _ = st.Get(entity.KindMarket, addrID(mkt))
	after := ent.(*entity.Market)

	if !after.Cash.Equal(before.Cash) ||
		!after.BorrowIndex.Equal(before.BorrowIndex) ||
		!after.TotalBorrows.Equal(before.TotalBorrows) ||
		!after.TotalInterestAccumulatedExact.Equal(before.TotalInterestAccumulatedExact) {
		t.Error("same-timestamp refresh mutated computed fields")
	}
	if caller.Calls["totalSupply"] != supplyReads {
		t.Errorf("same-timestamp refresh issued reads: %d -> %d",
			supplyReads, caller.Calls["totalSupply"])
	}
}

func TestAccrualStalenessWindow(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-g")
	testutil.PrimeMarket(caller, mkt, 18)

	e, _ := newTestEngine(Config{PriceStalenessWindow: 600}, caller)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	first := &event.AccrueInterest{
		Raw:                 testutil.Raw(mkt, 40, 1, ts),
		CashPrior:           testutil.Mantissa(1000, 18),
		InterestAccumulated: testutil.Mantissa(1, 18),
		BorrowIndex:         testutil.Mantissa(105, 16),
		TotalBorrows:        testutil.Mantissa(400, 18),
	}
	if err := e.ProcessEvent(ctx, first); err != nil {
		t.Fatalf("first accrual: %v", err)
	}
	rateReads := caller.Calls["borrowRate"]
	reserveReads := caller.Calls["totalReserves"]
	supplyReads := caller.Calls["totalSupply"]

	// 10 seconds later: inside the window. Rates and reserves keep their
	// values; totalSupply and the event-sourced fields still update.
	second := &event.AccrueInterest{
		Raw:                 testutil.Raw(mkt, 41, 1, ts+10),
		CashPrior:           testutil.Mantissa(1100, 18),
		InterestAccumulated: testutil.Mantissa(2, 18),
		BorrowIndex:         testutil.Mantissa(106, 16),
		TotalBorrows:        testutil.Mantissa(450, 18),
	}
	if err := e.ProcessEvent(ctx, second); err != nil {
		t.Fatalf("second accrual: %v", err)
	}

	if caller.Calls["borrowRate"] != rateReads {
		t.Error("rate re-read inside staleness window")
	}
	if caller.Calls["totalReserves"] != reserveReads {
		t.Error("reserves re-read inside staleness window")
	}
	if caller.Calls["totalSupply"] != supplyReads+1 {
		t.Error("totalSupply must be re-read every refresh")
	}

	m, _ := e.loadMarket(addrID(mkt))
	if !m.Cash.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("cash = %s, want 1100 (event-sourced, never gated)", m.Cash)
	}
	if !m.BorrowIndex.Equal(mustDecimal(t, "1.06")) {
		t.Errorf("borrow index = %s, want 1.06", m.BorrowIndex)
	}
}

func TestSupplyRateRevertDegradesToZero(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-h")
	testutil.PrimeMarket(caller, mkt, 18)
	caller.Fail["supplyRate:"+addrID(mkt)] = true

	e, _ := newTestEngine(Config{}, caller)

	accrue := &event.AccrueInterest{
		Raw:                 testutil.Raw(mkt, 50, 1, 1_700_000_000),
		CashPrior:           testutil.Mantissa(1000, 18),
		InterestAccumulated: testutil.Mantissa(1, 18),
		BorrowIndex:         testutil.Mantissa(105, 16),
		TotalBorrows:        testutil.Mantissa(400, 18),
	}
	if err := e.ProcessEvent(context.Background(), accrue); err != nil {
		t.Fatalf("accrual with reverting supply rate: %v", err)
	}

	m, _ := e.loadMarket(addrID(mkt))
	if !m.SupplyRate.IsZero() {
		t.Errorf("supply rate = %s, want 0 after revert", m.SupplyRate)
	}
	if m.BorrowRate.IsZero() {
		t.Error("borrow rate should still be set")
	}
}

func TestTransferUpdatesBothPositions(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-i")

	e, st := newTestEngine(Config{}, caller)
	m := seedMarket(st, addrID(mkt), 18, fpmath.One)
	m.ExchangeRate = mustDecimal(t, "0.02")
	st.Put(m)
	st.DrainDirty()

	transfer := &event.Transfer{
		Raw:    testutil.Raw(mkt, 60, 1, 1_700_000_000),
		From:   testutil.Addr("alice"),
		To:     testutil.Addr("bob"),
		Amount: testutil.Mantissa(100, 8),
	}
	if err := e.ProcessEvent(context.Background(), transfer); err != nil {
		t.Fatalf("process transfer: %v", err)
	}

	// 100 tokens * 0.02 = 2 underlying.
	fromEnt, ok := st.Get(entity.KindPosition, entity.PositionID(m.ID, addrID(testutil.Addr("alice"))))
	if !ok {
		t.Fatal("sender position missing")
	}
	if got := fromEnt.(*entity.Position).TotalUnderlyingRedeemed; !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("sender redeemed = %s, want 2", got)
	}

	toEnt, ok := st.Get(entity.KindPosition, entity.PositionID(m.ID, addrID(testutil.Addr("bob"))))
	if !ok {
		t.Fatal("receiver position missing")
	}
	if got := toEnt.(*entity.Position).TotalUnderlyingSupplied; !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("receiver supplied = %s, want 2", got)
	}

	if _, ok := st.Get(entity.KindTransferEvent, transfer.EventID()); !ok {
		t.Error("transfer journal entry missing")
	}
}

func TestTransferFromMarketSkipsSenderSide(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-j")

	e, st := newTestEngine(Config{}, caller)
	m := seedMarket(st, addrID(mkt), 18, fpmath.One)
	m.ExchangeRate = mustDecimal(t, "0.02")
	st.Put(m)
	st.DrainDirty()

	// A mint-paired transfer: sender is the market contract itself.
	transfer := &event.Transfer{
		Raw:    testutil.Raw(mkt, 61, 1, 1_700_000_000),
		From:   mkt,
		To:     testutil.Addr("bob"),
		Amount: testutil.Mantissa(100, 8),
	}
	if err := e.ProcessEvent(context.Background(), transfer); err != nil {
		t.Fatalf("process transfer: %v", err)
	}

	if _, ok := st.Get(entity.KindPosition, entity.PositionID(m.ID, m.ID)); ok {
		t.Error("market must not get a position for its own mint transfer")
	}
	if _, ok := st.Get(entity.KindPosition, entity.PositionID(m.ID, addrID(testutil.Addr("bob")))); !ok {
		t.Error("receiver position missing")
	}
}

func TestDuplicateEventRejected(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-k")
	testutil.PrimeMarket(caller, mkt, 18)

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	mint := &event.Mint{
		Raw:        testutil.Raw(mkt, 70, 1, 1_700_000_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(5, 18),
		MintTokens: testutil.Mantissa(250, 8),
	}
	if err := e.ProcessEvent(ctx, mint); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := e.ProcessEvent(ctx, mint); err != nil {
		t.Fatalf("duplicate delivery must be a silent no-op, got %v", err)
	}

	id := entity.MarketDayDataID(addrID(mkt), 1_700_000_000)
	ent, _ := st.Get(entity.KindMarketDayData, id)
	if got := ent.(*entity.MarketDayData).TxCount; got != 1 {
		t.Errorf("day bucket txCount = %d, want 1 (duplicate must not accumulate)", got)
	}
}

func TestDistinctEventsGetDistinctJournalIDs(t *testing.T) {
	a := testutil.Raw(testutil.Addr("m"), 80, 1, 0)
	b := testutil.Raw(testutil.Addr("m"), 80, 2, 0)
	if a.EventID() == b.EventID() {
		t.Errorf("distinct (tx, log) pairs share id %s", a.EventID())
	}
}

func TestOutOfOrderEventRejected(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-l")
	testutil.PrimeMarket(caller, mkt, 18)

	e, _ := newTestEngine(Config{}, caller)
	ctx := context.Background()

	first := &event.Mint{
		Raw:        testutil.Raw(mkt, 90, 5, 1_700_000_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(1, 18),
		MintTokens: testutil.Mantissa(50, 8),
	}
	if err := e.ProcessEvent(ctx, first); err != nil {
		t.Fatalf("first: %v", err)
	}

	stale := &event.Mint{
		Raw:        testutil.Raw(mkt, 89, 1, 1_699_999_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(1, 18),
		MintTokens: testutil.Mantissa(50, 8),
	}
	if err := e.ProcessEvent(ctx, stale); err == nil {
		t.Error("earlier block accepted after later block")
	}

	sameBlockEarlierLog := &event.Mint{
		Raw:        testutil.Raw(mkt, 90, 4, 1_700_000_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(1, 18),
		MintTokens: testutil.Mantissa(50, 8),
	}
	if err := e.ProcessEvent(ctx, sameBlockEarlierLog); err == nil {
		t.Error("earlier log index accepted within same block")
	}
}

func TestFailedEventRedeliveryAccepted(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-r")

	// No fixtures yet: every creation read reverts, as it does while the
	// RPC node lags the stream.
	e, _ := newTestEngine(Config{}, caller)
	ctx := context.Background()

	mint := &event.Mint{
		Raw:        testutil.Raw(mkt, 100, 1, 1_700_000_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(5, 18),
		MintTokens: testutil.Mantissa(250, 8),
	}
	if err := e.ProcessEvent(ctx, mint); err == nil {
		t.Fatal("mint against unreadable market must fail")
	}

	// NATS redelivers the same coordinates once the reads recover. The
	// failed attempt must not have moved the ordering watermark.
	testutil.PrimeMarket(caller, mkt, 18)
	if err := e.ProcessEvent(ctx, mint); err != nil {
		t.Fatalf("redelivered event rejected: %v", err)
	}
	if _, ok := e.loadMarket(addrID(mkt)); !ok {
		t.Fatal("market not created on redelivery")
	}

	// And the stream continues from the applied event.
	next := &event.Mint{
		Raw:        testutil.Raw(mkt, 100, 2, 1_700_000_000),
		Minter:     testutil.Addr("bob"),
		MintAmount: testutil.Mantissa(1, 18),
		MintTokens: testutil.Mantissa(50, 8),
	}
	if err := e.ProcessEvent(ctx, next); err != nil {
		t.Fatalf("follow-on event after recovery: %v", err)
	}
}

func TestGovernanceLifecycle(t *testing.T) {
	caller := testutil.NewStaticCaller()
	comp := testutil.Addr("comptroller")

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	// Incentive before the singleton exists is unrecoverable.
	early := &event.NewLiquidationIncentive{
		Raw:                             testutil.Raw(comp, 100, 1, 1_700_000_000),
		NewLiquidationIncentiveMantissa: testutil.Mantissa(108, 16),
	}
	if err := e.ProcessEvent(ctx, early); !errors.Is(err, ErrComptrollerNotInitialized) {
		t.Errorf("want ErrComptrollerNotInitialized, got %v", err)
	}

	// Oracle rotation creates the singleton.
	oracle := &event.NewPriceOracle{
		Raw:    testutil.Raw(comp, 101, 1, 1_700_000_060),
		Oracle: testutil.Addr("oracle"),
	}
	if err := e.ProcessEvent(ctx, oracle); err != nil {
		t.Fatalf("new price oracle: %v", err)
	}

	closeFactor := &event.NewCloseFactor{
		Raw:                    testutil.Raw(comp, 102, 1, 1_700_000_120),
		NewCloseFactorMantissa: testutil.Mantissa(5, 17),
	}
	if err := e.ProcessEvent(ctx, closeFactor); err != nil {
		t.Fatalf("new close factor: %v", err)
	}

	incentive := &event.NewLiquidationIncentive{
		Raw:                             testutil.Raw(comp, 103, 1, 1_700_000_180),
		NewLiquidationIncentiveMantissa: testutil.Mantissa(108, 16),
	}
	if err := e.ProcessEvent(ctx, incentive); err != nil {
		t.Fatalf("new liquidation incentive: %v", err)
	}

	ent, ok := st.Get(entity.KindComptroller, entity.ComptrollerID)
	if !ok {
		t.Fatal("comptroller singleton missing")
	}
	c := ent.(*entity.Comptroller)
	if c.PriceOracle != addrID(testutil.Addr("oracle")) {
		t.Errorf("price oracle = %s", c.PriceOracle)
	}
	if !c.CloseFactor.Equal(decimal.NewFromBigInt(testutil.Mantissa(5, 17), 0)) {
		t.Errorf("close factor = %s", c.CloseFactor)
	}
	if !c.LiquidationIncentive.Equal(decimal.NewFromBigInt(testutil.Mantissa(108, 16), 0)) {
		t.Errorf("liquidation incentive = %s", c.LiquidationIncentive)
	}
}

func TestMembershipEventsSoftSkipUnlistedMarket(t *testing.T) {
	caller := testutil.NewStaticCaller()
	comp := testutil.Addr("comptroller")

	e, st := newTestEngine(Config{}, caller)
	ctx := context.Background()

	entered := &event.MarketEntered{
		Raw:     testutil.Raw(comp, 110, 1, 1_700_000_000),
		Token:   testutil.Addr("never-listed"),
		Account: testutil.Addr("alice"),
	}
	if err := e.ProcessEvent(ctx, entered); err != nil {
		t.Fatalf("membership against unlisted market must be a soft skip, got %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("soft skip wrote %d entities", st.Len())
	}
}

func TestMarketEnteredSetsFlag(t *testing.T) {
	caller := testutil.NewStaticCaller()
	comp := testutil.Addr("comptroller")
	mkt := testutil.Addr("market-m")

	e, st := newTestEngine(Config{}, caller)
	m := seedMarket(st, addrID(mkt), 18, fpmath.One)
	ctx := context.Background()

	entered := &event.MarketEntered{
		Raw:     testutil.Raw(comp, 120, 1, 1_700_000_000),
		Token:   mkt,
		Account: testutil.Addr("alice"),
	}
	if err := e.ProcessEvent(ctx, entered); err != nil {
		t.Fatalf("market entered: %v", err)
	}
	posEnt, _ := st.Get(entity.KindPosition, entity.PositionID(m.ID, addrID(testutil.Addr("alice"))))
	if !posEnt.(*entity.Position).EnteredMarket {
		t.Error("enteredMarket not set")
	}

	exited := &event.MarketExited{
		Raw:     testutil.Raw(comp, 121, 1, 1_700_000_060),
		Token:   mkt,
		Account: testutil.Addr("alice"),
	}
	if err := e.ProcessEvent(ctx, exited); err != nil {
		t.Fatalf("market exited: %v", err)
	}
	posEnt, _ = st.Get(entity.KindPosition, entity.PositionID(m.ID, addrID(testutil.Addr("alice"))))
	if posEnt.(*entity.Position).EnteredMarket {
		t.Error("enteredMarket not cleared")
	}
}

func TestDenylistedMarketListingSkipped(t *testing.T) {
	caller := testutil.NewStaticCaller()
	comp := testutil.Addr("comptroller")
	bad := testutil.Addr("bad-market")

	e, st := newTestEngine(Config{DenylistedMarkets: []string{addrID(bad)}}, caller)

	listed := &event.MarketListed{
		Raw:   testutil.Raw(comp, 130, 1, 1_700_000_000),
		Token: bad,
	}
	if err := e.ProcessEvent(context.Background(), listed); err != nil {
		t.Fatalf("denylisted listing must be a soft skip, got %v", err)
	}
	if _, ok := st.Get(entity.KindMarket, addrID(bad)); ok {
		t.Error("denylisted market was created")
	}
}

func TestAuditRowPerTouch(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-n")

	e, st := newTestEngine(Config{}, caller)
	m := seedMarket(st, addrID(mkt), 18, fpmath.One)

	borrow := &event.Borrow{
		Raw:            testutil.Raw(mkt, 140, 1, 1_700_000_000),
		Borrower:       testutil.Addr("bob"),
		BorrowAmount:   testutil.Mantissa(1, 18),
		AccountBorrows: testutil.Mantissa(1, 18),
	}
	if err := e.ProcessEvent(context.Background(), borrow); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	posID := entity.PositionID(m.ID, addrID(testutil.Addr("bob")))
	auditID := posID + "-" + borrow.TxHash().Hex() + "-1"
	if _, ok := st.Get(entity.KindPositionTransaction, auditID); !ok {
		t.Errorf("audit row %s missing", auditID)
	}
}

func TestStateHashChains(t *testing.T) {
	run := func() [][32]byte {
		caller := testutil.NewStaticCaller()
		mkt := testutil.Addr("market-o")
		testutil.PrimeMarket(caller, mkt, 18)
		e, _ := newTestEngine(Config{}, caller)

		var hashes [][32]byte
		for i := uint64(0); i < 3; i++ {
			mint := &event.Mint{
				Raw:        testutil.Raw(mkt, 150+i, 1, 1_700_000_000+int64(i)*60),
				Minter:     testutil.Addr("alice"),
				MintAmount: testutil.Mantissa(1, 18),
				MintTokens: testutil.Mantissa(50, 8),
			}
			if err := e.ProcessEvent(context.Background(), mint); err != nil {
				t.Fatalf("mint %d: %v", i, err)
			}
			hashes = append(hashes, e.StateHash())
		}
		return hashes
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("hash %d not deterministic across identical runs", i)
		}
	}
	if first[0] == first[1] || first[1] == first[2] {
		t.Error("hash chain did not advance")
	}
}

func TestOutputsCarryTouchedEntities(t *testing.T) {
	caller := testutil.NewStaticCaller()
	mkt := testutil.Addr("market-p")
	testutil.PrimeMarket(caller, mkt, 18)

	persist := make(chan Output, 8)
	st := store.NewMemoryStore()
	e := NewEngine(Config{}, st, caller, nil, nil, persist, nil)

	mint := &event.Mint{
		Raw:        testutil.Raw(mkt, 160, 1, 1_700_000_000),
		Minter:     testutil.Addr("alice"),
		MintAmount: testutil.Mantissa(5, 18),
		MintTokens: testutil.Mantissa(250, 8),
	}
	if err := e.ProcessEvent(context.Background(), mint); err != nil {
		t.Fatalf("mint: %v", err)
	}

	select {
	case out := <-persist:
		if out.Envelope.EventID != mint.EventID() {
			t.Errorf("envelope event id = %s", out.Envelope.EventID)
		}
		if out.Envelope.Sequence != 0 {
			t.Errorf("first sequence = %d, want 0", out.Envelope.Sequence)
		}
		if len(out.Entities) == 0 {
			t.Error("output carries no entities")
		}
		kinds := make(map[string]bool)
		for _, ent := range out.Entities {
			kinds[ent.Kind()] = true
		}
		for _, want := range []string{
			entity.KindMarket, entity.KindMintEvent,
			entity.KindMarketDayData, entity.KindPosition,
			entity.KindPositionTransaction,
		} {
			if !kinds[want] {
				t.Errorf("output missing touched %s", want)
			}
		}
	default:
		t.Fatal("no output emitted")
	}
}
