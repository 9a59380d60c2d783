package mempool

import (
	"math/rand"
	"testing"

	"blocksim/pkg/exchange/order"
)

func newOrder(gas float64) *order.Order {
	return order.New("trader", order.Enter, order.Bid, order.LimitOrder, 0, 0, 100, 5, gas)
}

func TestAddPop(t *testing.T) {
	pool := New()
	o := newOrder(0.5)
	o.Price = 199.0
	pool.Add(o)

	got := pool.Pop()
	if got == nil || got.Price != 199.0 {
		t.Fatalf("popped %+v, want price 199", got)
	}
	if pool.Pop() != nil {
		t.Error("pop on empty pool should be nil")
	}
}

func TestPopAll(t *testing.T) {
	pool := New()
	for i := 0; i < 3; i++ {
		pool.Add(newOrder(float64(i)))
	}
	popped := pool.PopAll()
	if len(popped) != 3 {
		t.Errorf("popped %d, want 3", len(popped))
	}
	if pool.Len() != 0 {
		t.Errorf("len after drain = %d", pool.Len())
	}
}

func TestPopN(t *testing.T) {
	pool := New()
	n := 100
	for i := 0; i < n; i++ {
		pool.Add(newOrder(float64(i)))
	}
	popped := pool.PopN(n / 2)
	if len(popped) != n/2 {
		t.Errorf("popped %d, want %d", len(popped), n/2)
	}
	if pool.Len() != n/2 {
		t.Errorf("remaining = %d, want %d", pool.Len(), n/2)
	}
}

func TestSortByGasMonotone(t *testing.T) {
	pool := New()
	rng := rand.New(rand.NewSource(7))
	n := 100
	for i := 0; i < n; i++ {
		pool.Add(newOrder(rng.Float64() * 10))
	}
	pool.SortByGas()
	if pool.Len() != n {
		t.Fatalf("sort changed len to %d", pool.Len())
	}
	drained := pool.PopAll()
	for i := 1; i < len(drained); i++ {
		if drained[i].Gas-drained[i-1].Gas > order.GasEpsilon {
			t.Fatalf("gas not non-increasing at %d: %g then %g", i, drained[i-1].Gas, drained[i].Gas)
		}
	}
}

// Equal gas keeps arrival order; PopAll after the sort is the canonical
// block ordering.
func TestSortByGasStableTies(t *testing.T) {
	pool := New()
	first := newOrder(1.0)
	second := newOrder(1.0)
	third := newOrder(2.0)
	pool.Add(first)
	pool.Add(second)
	pool.Add(third)

	pool.SortByGas()
	drained := pool.PopAll()
	if drained[0].OrderID != third.OrderID {
		t.Errorf("highest gas should lead the block")
	}
	if drained[1].OrderID != first.OrderID || drained[2].OrderID != second.OrderID {
		t.Errorf("tie broke arrival order: got %d then %d", drained[1].OrderID, drained[2].OrderID)
	}
}

func TestCopyLeavesPoolIntact(t *testing.T) {
	pool := New()
	pool.Add(newOrder(1))
	pool.Add(newOrder(2))
	cp := pool.Copy()
	if len(cp) != 2 || pool.Len() != 2 {
		t.Errorf("copy len %d, pool len %d", len(cp), pool.Len())
	}
	cp[0].Quantity = 99
	if pool.Copy()[0].Quantity == 99 {
		t.Error("copy aliases pool storage")
	}
}
