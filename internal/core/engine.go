package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"LendLedger/internal/chain"
	"LendLedger/internal/entity"
	"LendLedger/internal/event"
	"LendLedger/internal/observability"
	"LendLedger/internal/store"
)

// NativeMarket describes a wrapped-native market whose underlying has no
// ERC-20 metadata to read.
type NativeMarket struct {
	Name   string
	Symbol string
}

// Config parameterizes the engine for a protocol deployment. The same engine
// serves per-second and per-block rate variants and both liquidation bucket
// key shapes; forks differ only in these values.
type Config struct {
	// RatePeriodsPerYear annualizes the per-period interest rates a market
	// reports: 31_536_000 for per-second, blocks-per-year for per-block.
	RatePeriodsPerYear int64

	// PriceStalenessWindow gates the expensive refresh reads (price,
	// exchange rate, reserves, rates): they are re-read only when this many
	// seconds have elapsed since the market's last refresh.
	PriceStalenessWindow int64

	// LiquidationBucketByPair keys liquidation day buckets by
	// (collateral market, repay market) instead of the repay market alone.
	LiquidationBucketByPair bool

	ComptrollerAddress common.Address
	LensAddress        common.Address

	// DenylistedMarkets are known-bad market addresses whose listing events
	// are dropped.
	DenylistedMarkets []string

	// NativeMarkets maps wrapped-native market addresses to their fixed
	// underlying metadata.
	NativeMarkets map[string]NativeMarket

	// USDStableMarkets seed their underlying price at 1 USD on creation.
	USDStableMarkets []string

	// IdempotencyLRUCapacity bounds the tier-1 dedup cache.
	IdempotencyLRUCapacity int
}

const (
	DefaultRatePeriodsPerYear     int64 = 31_536_000
	DefaultPriceStalenessWindow   int64 = 600
	DefaultIdempotencyLRUCapacity       = 1_000_000
)

// Envelope records one applied event in the chain-event log, hash-chained to
// its predecessor.
type Envelope struct {
	Sequence  int64
	EventID   string
	EventType event.EventType
	Emitter   string
	Block     uint64
	LogIndex  uint64
	Timestamp int64
	StateHash [32]byte
	PrevHash  [32]byte
}

// Output is what the engine emits per applied event: the envelope plus every
// entity the event touched, in deterministic order.
type Output struct {
	Envelope *Envelope
	Entities []entity.Entity
}

// Engine is the single-threaded event processor. Events are delivered one at
// a time in chain order; every handler is a synchronous sequence of
// read-modify-write steps against the store, so no locking is needed.
type Engine struct {
	cfg      Config
	store    *store.MemoryStore
	caller   chain.Caller
	hasher   *StateHasher
	orderer  *Orderer
	dedup    *IdempotencyChecker
	log      zerolog.Logger
	metrics  *observability.Metrics
	sequence int64

	denylist map[string]bool
	native   map[string]NativeMarket
	stables  map[string]bool

	persistChan    chan<- Output
	projectionChan chan<- Output
}

// NewEngine builds an engine around a store and a contract-read capability.
// persistChan and projectionChan may be nil (tests run without a pipeline).
func NewEngine(
	cfg Config,
	st *store.MemoryStore,
	caller chain.Caller,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	persistChan, projectionChan chan<- Output,
) *Engine {
	if cfg.RatePeriodsPerYear == 0 {
		cfg.RatePeriodsPerYear = DefaultRatePeriodsPerYear
	}
	if cfg.PriceStalenessWindow == 0 {
		cfg.PriceStalenessWindow = DefaultPriceStalenessWindow
	}
	if cfg.IdempotencyLRUCapacity == 0 {
		cfg.IdempotencyLRUCapacity = DefaultIdempotencyLRUCapacity
	}

	denylist := make(map[string]bool, len(cfg.DenylistedMarkets))
	for _, a := range cfg.DenylistedMarkets {
		denylist[strings.ToLower(a)] = true
	}
	native := make(map[string]NativeMarket, len(cfg.NativeMarkets))
	for a, m := range cfg.NativeMarkets {
		native[strings.ToLower(a)] = m
	}
	stables := make(map[string]bool, len(cfg.USDStableMarkets))
	for _, a := range cfg.USDStableMarkets {
		stables[strings.ToLower(a)] = true
	}

	return &Engine{
		cfg:            cfg,
		store:          st,
		caller:         caller,
		hasher:         NewStateHasher(),
		orderer:        NewOrderer(),
		dedup:          NewIdempotencyChecker(cfg.IdempotencyLRUCapacity, dbChecker),
		log:            observability.NewLogger("core"),
		metrics:        metrics,
		denylist:       denylist,
		native:         native,
		stables:        stables,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// addrID is the canonical entity id for an address: lowercase hex.
func addrID(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// ProcessEvent is the main processing pipeline: dedup, ordering, dispatch,
// state-hash chaining, emission.
func (e *Engine) ProcessEvent(ctx context.Context, ev event.Event) error {
	start := time.Now()
	eventType := ev.EventType().String()
	eventID := ev.EventID()

	// Step 1: Idempotency check (two-tier)
	if e.dedup.IsDuplicate(eventType, eventID) {
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 2: Ordering guard. Validate only checks; the watermark is
	// committed after dispatch, so a transient handler failure (chain read)
	// does not poison the redelivery of the same event.
	if err := e.orderer.Validate(ev.BlockNumber(), ev.LogIndex()); err != nil {
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "ordering").Inc()
			e.metrics.EventOutOfOrder.WithLabelValues(addrID(ev.Emitter())).Inc()
		}
		return fmt.Errorf("ordering guard: %w", err)
	}

	// Step 3: Dispatch. Fatal errors abort the event before any emission;
	// the dirty set is discarded so a retry starts clean.
	if err := e.dispatch(ctx, ev); err != nil {
		e.store.DrainDirty()
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "handler").Inc()
		}
		return fmt.Errorf("handle %s %s: %w", eventType, eventID, err)
	}

	// Step 4: The event applied; commit the watermark, then collect touched
	// entities and chain the state hash over them.
	e.orderer.Advance(ev.BlockNumber(), ev.LogIndex())
	dirty := e.store.DrainDirty()

	hashStart := time.Now()
	prevHash := e.hasher.GetPrevHash()
	digest := computeStateDigest(dirty)
	stateHash := e.hasher.ComputeHash(e.sequence, digest)
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	out := Output{
		Envelope: &Envelope{
			Sequence:  e.sequence,
			EventID:   eventID,
			EventType: ev.EventType(),
			Emitter:   addrID(ev.Emitter()),
			Block:     ev.BlockNumber(),
			LogIndex:  ev.LogIndex(),
			Timestamp: ev.BlockTime(),
			StateHash: stateHash,
			PrevHash:  prevHash,
		},
		Entities: dirty,
	}
	e.sequence++

	// Step 5: Emit. The persist channel uses a blocking send (backpressure:
	// the engine stalls until the persistence worker drains, so no applied
	// event is ever lost). The projection channel drops on full; projections
	// rebuild from Postgres when they fall behind.
	if e.persistChan != nil {
		if e.metrics != nil && len(e.persistChan) == cap(e.persistChan) {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- out
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("activity").Inc()
			}
		}
	}

	// Step 6: Mark as processed
	e.dedup.MarkProcessed(eventID)

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.CoreBlockHeight.Set(float64(ev.BlockNumber()))
		e.metrics.DedupLRUSize.Set(float64(e.dedup.lru.Size()))
	}

	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev event.Event) error {
	switch evt := ev.(type) {
	case *event.AccrueInterest:
		return e.handleAccrueInterest(ctx, evt)
	case *event.Mint:
		return e.handleMint(ctx, evt)
	case *event.Redeem:
		return e.handleRedeem(ctx, evt)
	case *event.Borrow:
		return e.handleBorrow(ctx, evt)
	case *event.RepayBorrow:
		return e.handleRepayBorrow(ctx, evt)
	case *event.LiquidateBorrow:
		return e.handleLiquidateBorrow(ctx, evt)
	case *event.Transfer:
		return e.handleTransfer(ctx, evt)
	case *event.NewReserveFactor:
		return e.handleNewReserveFactor(ctx, evt)
	case *event.NewMarketInterestRateModel:
		return e.handleNewMarketInterestRateModel(ctx, evt)
	case *event.MarketListed:
		return e.handleMarketListed(ctx, evt)
	case *event.MarketEntered:
		return e.handleMarketEntered(ctx, evt)
	case *event.MarketExited:
		return e.handleMarketExited(ctx, evt)
	case *event.NewCloseFactor:
		return e.handleNewCloseFactor(evt)
	case *event.NewCollateralFactor:
		return e.handleNewCollateralFactor(evt)
	case *event.NewLiquidationIncentive:
		return e.handleNewLiquidationIncentive(evt)
	case *event.NewPriceOracle:
		return e.handleNewPriceOracle(evt)
	default:
		return fmt.Errorf("unknown event type: %T", ev)
	}
}

// skipEvent records an intentionally dropped event (unlisted market,
// denylist). Soft skips are not errors: the handler returns without effect.
func (e *Engine) skipEvent(ev event.Event, reason string) {
	e.log.Debug().
		Str("event_id", ev.EventID()).
		Str("event_type", ev.EventType().String()).
		Str("reason", reason).
		Msg("event skipped")
	if e.metrics != nil {
		e.metrics.CoreEventsSkipped.WithLabelValues(ev.EventType().String(), reason).Inc()
	}
}

// computeStateDigest builds canonical bytes over the touched entities:
// length-prefixed (kind, id, canonical JSON) triples in the store's
// deterministic drain order.
func computeStateDigest(entities []entity.Entity) []byte {
	digest := make([]byte, 0, len(entities)*128)
	for _, ent := range entities {
		body, err := json.Marshal(ent)
		if err != nil {
			// Entities are plain structs; Marshal cannot fail on them.
			panic(fmt.Sprintf("FATAL: entity %s/%s not serializable: %v",
				ent.Kind(), ent.EntityID(), err))
		}
		digest = appendLenPrefixed(digest, []byte(ent.Kind()))
		digest = appendLenPrefixed(digest, []byte(ent.EntityID()))
		digest = appendLenPrefixed(digest, body)
	}
	return digest
}

func appendLenPrefixed(buf, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

// --- Startup & checkpoint methods ---

// Restore initializes the engine watermark and hash chain from a persisted
// checkpoint so a resumed stream continues the same chain.
func (e *Engine) Restore(sequence int64, block, logIndex uint64, stateHash [32]byte) {
	e.sequence = sequence
	e.orderer.Restore(block, logIndex)
	e.hasher.SetPrevHash(stateHash)
}

// WarmLRU loads recent event ids into the dedup cache.
func (e *Engine) WarmLRU(ids []string) {
	e.dedup.lru.WarmFromKeys(ids)
}

// Sequence returns the next sequence number the engine will assign.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// StateHash returns the current hash-chain tip.
func (e *Engine) StateHash() [32]byte {
	return e.hasher.GetPrevHash()
}
