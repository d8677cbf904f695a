package core

import "testing"

func TestOrdererAcceptsChainOrder(t *testing.T) {
	o := NewOrderer()

	steps := []struct {
		block, log uint64
	}{
		{100, 0},
		{100, 3},
		{101, 0},
		{101, 1},
		{205, 7},
	}
	for _, s := range steps {
		if err := o.Validate(s.block, s.log); err != nil {
			t.Fatalf("Validate(%d, %d): %v", s.block, s.log, err)
		}
		o.Advance(s.block, s.log)
	}

	block, log, ok := o.Watermark()
	if !ok || block != 205 || log != 7 {
		t.Errorf("watermark = (%d, %d, %v), want (205, 7, true)", block, log, ok)
	}
}

func TestOrdererRejectsRegressions(t *testing.T) {
	tests := []struct {
		name       string
		block, log uint64
	}{
		{"earlier block", 99, 50},
		{"same block same log", 100, 5},
		{"same block earlier log", 100, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrderer()
			o.Advance(100, 5)
			if err := o.Validate(tt.block, tt.log); err == nil {
				t.Errorf("Validate(%d, %d) accepted", tt.block, tt.log)
			}
			if got := o.metrics.GetOutOfOrder(); got != 1 {
				t.Errorf("out-of-order count = %d, want 1", got)
			}
		})
	}
}

func TestOrdererRejectionKeepsWatermark(t *testing.T) {
	o := NewOrderer()
	o.Advance(100, 5)
	if err := o.Validate(99, 0); err == nil {
		t.Fatal("regression accepted")
	}
	if block, log, _ := o.Watermark(); block != 100 || log != 5 {
		t.Errorf("watermark moved to (%d, %d) on rejection", block, log)
	}
	// The stream continues from the watermark, not the rejected event.
	if err := o.Validate(100, 6); err != nil {
		t.Errorf("Validate(100, 6) after rejection: %v", err)
	}
}

func TestOrdererValidateDoesNotAdvance(t *testing.T) {
	o := NewOrderer()
	o.Advance(100, 0)

	// Validate alone must not move the watermark: an event whose handler
	// failed is redelivered with the same coordinates and must pass again.
	if err := o.Validate(100, 1); err != nil {
		t.Fatalf("first Validate(100, 1): %v", err)
	}
	if err := o.Validate(100, 1); err != nil {
		t.Fatalf("repeated Validate(100, 1): %v", err)
	}
	if block, log, _ := o.Watermark(); block != 100 || log != 0 {
		t.Errorf("watermark moved to (%d, %d) without Advance", block, log)
	}

	o.Advance(100, 1)
	if err := o.Validate(100, 1); err == nil {
		t.Error("Validate(100, 1) accepted after Advance committed it")
	}
}

func TestOrdererFirstEventAccepted(t *testing.T) {
	o := NewOrderer()
	if _, _, ok := o.Watermark(); ok {
		t.Error("fresh orderer reports a watermark")
	}
	// Any coordinates are fine for the very first event.
	if err := o.Validate(0, 0); err != nil {
		t.Errorf("Validate(0, 0) on fresh orderer: %v", err)
	}
	// And the watermark only exists once one is committed.
	if _, _, ok := o.Watermark(); ok {
		t.Error("watermark set before any Advance")
	}
	o.Advance(0, 0)
	if _, _, ok := o.Watermark(); !ok {
		t.Error("watermark missing after Advance")
	}
}

func TestOrdererRestore(t *testing.T) {
	o := NewOrderer()
	o.Restore(500, 12)

	if err := o.Validate(500, 12); err == nil {
		t.Error("restored watermark re-accepted")
	}
	if err := o.Validate(500, 13); err != nil {
		t.Errorf("Validate(500, 13) after restore: %v", err)
	}
}
