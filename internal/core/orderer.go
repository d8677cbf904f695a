package core

import (
	"fmt"
)

// Orderer enforces the delivery contract the engine depends on: events
// arrive in chain order, block number non-decreasing and log index strictly
// increasing within a block. A violation means the upstream stream was
// reordered and the event must be rejected, not applied.
// Not thread-safe — only accessed from the single-threaded engine.
type Orderer struct {
	lastBlock uint64
	lastLog   uint64
	seen      bool

	metrics *OrderingMetrics
}

func NewOrderer() *Orderer {
	return &Orderer{
		metrics: NewOrderingMetrics(),
	}
}

// Validate checks an event's chain coordinates against the last accepted
// ones without moving the watermark; Advance commits them once the event has
// actually been applied. A failed event leaves the watermark untouched so a
// NATS redelivery of the same coordinates is not rejected as out-of-order.
// Duplicates carry coordinates <= the watermark and are rejected here too;
// the idempotency checker runs first so a true duplicate never reaches this
// point.
func (o *Orderer) Validate(block, logIndex uint64) error {
	if !o.seen {
		return nil
	}

	if block < o.lastBlock {
		o.metrics.RecordOutOfOrder()
		return fmt.Errorf("out-of-order event: block %d after block %d", block, o.lastBlock)
	}

	if block == o.lastBlock && logIndex <= o.lastLog {
		o.metrics.RecordOutOfOrder()
		return fmt.Errorf("out-of-order event: log %d after log %d in block %d",
			logIndex, o.lastLog, block)
	}

	return nil
}

// Advance commits an applied event's coordinates as the new watermark.
func (o *Orderer) Advance(block, logIndex uint64) {
	o.seen = true
	o.lastBlock = block
	o.lastLog = logIndex
}

// Watermark returns the last accepted (block, logIndex).
func (o *Orderer) Watermark() (block, logIndex uint64, ok bool) {
	return o.lastBlock, o.lastLog, o.seen
}

// Restore initializes the watermark from a persisted checkpoint so resumed
// streams are validated against where the last run stopped.
func (o *Orderer) Restore(block, logIndex uint64) {
	o.lastBlock = block
	o.lastLog = logIndex
	o.seen = true
}

// --- Metrics ---

// OrderingMetrics tracks rejections.
// Not thread-safe — only accessed from the single-threaded engine.
type OrderingMetrics struct {
	outOfOrder int64
}

func NewOrderingMetrics() *OrderingMetrics {
	return &OrderingMetrics{}
}

func (m *OrderingMetrics) RecordOutOfOrder() {
	m.outOfOrder++
}

func (m *OrderingMetrics) GetOutOfOrder() int64 {
	return m.outOfOrder
}
