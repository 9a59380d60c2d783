package order

import (
	"errors"
	"sort"
	"sync"
)

// ErrOrderNotFound is returned by cancels and updates that reference an id
// the book does not hold.
var ErrOrderNotFound = errors.New("order not found in book")

// Book is one side of the market: a price-sorted sequence of resting orders
// with the best order at the tail and the best price cached. A bid book is
// kept ascending (highest bid last), an ask book descending (lowest ask
// last), so PopBest is always a tail pop.
//
// One mutex guards all state. Methods never acquire any other lock.
type Book struct {
	mu     sync.Mutex
	side   TradeType
	orders []*Order

	minPrice float64
	maxPrice float64
}

// NewBook returns an empty book for the given side. A fresh book reports no
// best bid (0) and no best ask (MaxPrice).
func NewBook(side TradeType) *Book {
	return &Book{
		side:     side,
		minPrice: MaxPrice,
		maxPrice: MinPrice,
	}
}

func (b *Book) Side() TradeType { return b.side }

// sortLocked restores the side-appropriate ordering: ascending for bids,
// descending for asks, ties kept in insertion order.
func (b *Book) sortLocked() {
	if b.side == Bid {
		sort.SliceStable(b.orders, func(i, j int) bool {
			return b.orders[i].Price < b.orders[j].Price
		})
	} else {
		sort.SliceStable(b.orders, func(i, j int) bool {
			return b.orders[i].Price > b.orders[j].Price
		})
	}
}

// refreshBestLocked re-establishes the cache invariant: best price equals
// the tail price, or the side sentinels if the book emptied.
func (b *Book) refreshBestLocked() {
	if len(b.orders) == 0 {
		b.resetLocked()
		return
	}
	best := b.orders[len(b.orders)-1].Price
	if b.side == Bid {
		b.maxPrice = best
	} else {
		b.minPrice = best
	}
}

func (b *Book) resetLocked() {
	if b.side == Bid {
		b.minPrice = MaxPrice
		b.maxPrice = MinPrice
	} else {
		b.minPrice = MinPrice
		b.maxPrice = MaxPrice
	}
}

// Add inserts the order, re-sorts, and refreshes the best-price cache.
func (b *Book) Add(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, o)
	b.sortLocked()
	b.refreshBestLocked()
}

// Cancel removes the order with the given id. Cancelling an absent id
// returns ErrOrderNotFound and leaves the book unchanged.
func (b *Book) Cancel(orderID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.orders {
		if o.OrderID == orderID {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			b.refreshBestLocked()
			return nil
		}
	}
	return ErrOrderNotFound
}

// Replace removes any resting order with the same id and inserts the new
// one. Absent ids are not an error: the order is simply inserted.
func (b *Book) Replace(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ex := range b.orders {
		if ex.OrderID == o.OrderID {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			break
		}
	}
	b.orders = append(b.orders, o)
	b.sortLocked()
	b.refreshBestLocked()
}

// PopBest removes and returns the best-priced order, or nil on an empty
// book. The best-price cache is untouched; callers refresh it once their
// cross finishes (RefreshBest).
func (b *Book) PopBest() *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.orders)
	if n == 0 {
		return nil
	}
	o := b.orders[n-1]
	b.orders = b.orders[:n-1]
	return o
}

// PushBest re-appends an order popped by PopBest.
func (b *Book) PushBest(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, o)
}

// RefreshBest recomputes the cached best price from the tail, resetting the
// sentinels if the book emptied.
func (b *Book) RefreshBest() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshBestLocked()
}

// MinPrice returns the cached minimum price (the best ask on an ask book).
func (b *Book) MinPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minPrice
}

// MaxPrice returns the cached maximum price (the best bid on a bid book).
func (b *Book) MaxPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxPrice
}

// BestPrice peeks the tail price without consulting the cache.
func (b *Book) BestPrice() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.orders) == 0 {
		return 0, false
	}
	return b.orders[len(b.orders)-1].Price, true
}

// BestOrder copies the tail order.
func (b *Book) BestOrder() (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.orders) == 0 {
		return Order{}, false
	}
	return *b.orders[len(b.orders)-1], true
}

func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// Volume sums resting quantity.
func (b *Book) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var v float64
	for _, o := range b.orders {
		v += o.Quantity
	}
	return v
}

// PLowMin returns the lowest PLow across resting orders, or MaxPrice when
// the book is empty.
func (b *Book) PLowMin() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	low := MaxPrice
	for _, o := range b.orders {
		if o.PLow < low {
			low = o.PLow
		}
	}
	return low
}

// PHighMax returns the highest PHigh across resting orders, or 0 when the
// book is empty.
func (b *Book) PHighMax() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	high := MinPrice
	for _, o := range b.orders {
		if o.PHigh > high {
			high = o.PHigh
		}
	}
	return high
}

// CopyOrders snapshots the resting orders, tail (best) last.
func (b *Book) CopyOrders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = *o
	}
	return out
}

// WithOrders runs fn against the live order slice under the book lock.
// fn must not call back into the book. The KLF fill pass uses this to
// decrement quantities in place the way the batch auctions are defined.
func (b *Book) WithOrders(fn func(orders []*Order)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.orders)
}

// MergeDesc copies both books' orders into one slice sorted descending by
// price, b1's orders ahead of b2's on ties. The FBA sweep walks the result
// head to tail.
func MergeDesc(b1, b2 *Book) []Order {
	merged := append(b1.CopyOrders(), b2.CopyOrders()...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Price > merged[j].Price
	})
	return merged
}
