// Package mempool holds orders that have been submitted but not yet mined
// into a block.
package mempool

import (
	"sort"
	"sync"

	"blocksim/pkg/exchange/order"
)

// Mempool is an arrival-order FIFO of pending orders behind one mutex.
// Miners sort it by gas once per block and drain a prefix; everything else
// is an append.
type Mempool struct {
	mu    sync.Mutex
	items []*order.Order
}

func New() *Mempool {
	return &Mempool{}
}

// Add appends the order in arrival position.
func (m *Mempool) Add(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, o)
}

// Pop removes and returns the most recently added order. Test hook only;
// block building uses PopAll/PopN.
func (m *Mempool) Pop() *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	if n == 0 {
		return nil
	}
	o := m.items[n-1]
	m.items = m.items[:n-1]
	return o
}

// SortByGas stable-sorts the pool descending by gas, so equal-gas orders
// keep their arrival order. Gas values closer than GasEpsilon count as
// equal.
func (m *Mempool) SortByGas() {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.items, func(i, j int) bool {
		return m.items[i].Gas-m.items[j].Gas > order.GasEpsilon
	})
}

// PopAll drains the pool front to back.
func (m *Mempool) PopAll() []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}

// PopN drains the first n orders. n must not exceed Len.
func (m *Mempool) PopN(n int) []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items[:n:n]
	m.items = m.items[n:]
	return out
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Copy snapshots the current pool contents in place order.
func (m *Mempool) Copy() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, len(m.items))
	for i, o := range m.items {
		out[i] = *o
	}
	return out
}
