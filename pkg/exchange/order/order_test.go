package order

import (
	"math"
	"testing"
)

func TestNewLimitOrder(t *testing.T) {
	o := New("trader_id", Enter, Bid, LimitOrder, 0, 0, 50.0, 500.0, 0.05)
	if o.TraderID != "trader_id" {
		t.Errorf("trader id = %q", o.TraderID)
	}
	if o.OrderType != Enter || o.TradeType != Bid || o.ExType != LimitOrder {
		t.Errorf("enums = %v %v %v", o.OrderType, o.TradeType, o.ExType)
	}
	if o.Price != 50.0 || o.Quantity != 500.0 || o.Gas != 0.05 {
		t.Errorf("fields = %g %g %g", o.Price, o.Quantity, o.Gas)
	}
}

func TestNextIDUnique(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 1000; i++ {
		id := NextID()
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestFlowSupply(t *testing.T) {
	o := New("trader_id", Enter, Ask, FlowOrder, 72.0, 100.0, 50.0, 500.0, 0.05)

	if got := o.FlowSupply(71.0); got != 0 {
		t.Errorf("supply below p_low = %g, want 0", got)
	}
	if got := o.FlowSupply(100.0); got != 500.0 {
		t.Errorf("supply at p_high = %g, want 500", got)
	}
	if got := o.FlowSupply(150.0); got != 500.0 {
		t.Errorf("supply above p_high = %g, want 500", got)
	}
	got := o.FlowSupply(81.09048166079447)
	if math.Abs(got-162.33002965704407) > 1e-9 {
		t.Errorf("interior supply = %v, want 162.33002965704407", got)
	}
}

func TestFlowDemand(t *testing.T) {
	o := New("trader_id", Enter, Bid, FlowOrder, 99.0, 101.0, 100.0, 500.0, 0.05)

	if got := o.FlowDemand(99.0); got != 500.0 {
		t.Errorf("demand at p_low = %g, want 500", got)
	}
	if got := o.FlowDemand(98.0); got != 500.0 {
		t.Errorf("demand below p_low = %g, want 500", got)
	}
	if got := o.FlowDemand(101.5); got != 0 {
		t.Errorf("demand above p_high = %g, want 0", got)
	}
	if got := o.FlowDemand(100.0); math.Abs(got-250.0) > 1e-9 {
		t.Errorf("midpoint demand = %g, want 250", got)
	}
}

func TestEpsilonHelpers(t *testing.T) {
	if !EqualE(1.1+0.4, 1.5) {
		t.Error("EqualE should absorb float error")
	}
	if GreaterE(2.0, 10.0) {
		t.Error("2 > 10 should be false")
	}
	if !LessE(2.0, 10.0) {
		t.Error("2 < 10 should be true")
	}
	if GreaterE(1.0, 1.0+1e-8) || LessE(1.0, 1.0+1e-8) {
		t.Error("values within epsilon must compare equal")
	}
	if !GreaterEqE(1.0, 1.0+1e-8) || !LessEqE(1.0, 1.0+1e-8) {
		t.Error("GreaterEqE/LessEqE must accept epsilon-equal values")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	o := New("a", Enter, Bid, LimitOrder, 0, 0, 10, 5, 1)
	cp := o.Clone()
	cp.Quantity = 1
	if o.Quantity != 5 {
		t.Errorf("clone mutated the original: %g", o.Quantity)
	}
}
