// Package players holds the three trader roles and their strategies: the
// investors that feed order flow, the makers that quote around an inferred
// fundamental, and the miner that assembles blocks.
package players

import (
	"errors"
	"math/rand"
	"sync"

	"blocksim/pkg/exchange/order"
)

// TraderType tags a player's role.
type TraderType int

const (
	TraderInvestor TraderType = iota
	TraderMaker
	TraderMiner
)

func (t TraderType) String() string {
	switch t {
	case TraderInvestor:
		return "Investor"
	case TraderMaker:
		return "Maker"
	case TraderMiner:
		return "Miner"
	default:
		return "unknown"
	}
}

// ErrOrderNotFound is returned when a player operation references an order
// id the player does not hold.
var ErrOrderNotFound = errors.New("order not found for player")

// GasFee is one gas debit computed from a mined frame.
type GasFee struct {
	TraderID string
	Amount   float64
}

// Player is the capability set the clearing house needs from every role.
// Balance and inventory are signed and unbounded; the open-order set is the
// player's view of what is still live, reconciled by clearing-house
// updates.
type Player interface {
	ID() string
	Type() TraderType
	Balance() float64
	Inventory() float64
	UpdateBalance(delta float64)
	UpdateInventory(delta float64)
	AddOrder(o order.Order)
	CancelOrder(orderID uint64) error
	GenCancelOrder(orderID uint64) (order.Order, error)
	UpdateOrderVolume(orderID uint64, delta float64) error
	NumOrders() int
	CopyOrders() []order.Order
}

// trader carries the state shared by all roles. Balance and inventory are
// mutated only under the clearing-house lock; the open-order set has its
// own mutex because agents read it from their own loops.
type trader struct {
	id        string
	ptype     TraderType
	balance   float64
	inventory float64

	mu     sync.Mutex
	orders []order.Order
}

func (t *trader) ID() string                  { return t.id }
func (t *trader) Type() TraderType            { return t.ptype }
func (t *trader) Balance() float64            { return t.balance }
func (t *trader) Inventory() float64          { return t.inventory }
func (t *trader) UpdateBalance(delta float64) { t.balance += delta }
func (t *trader) UpdateInventory(delta float64) {
	t.inventory += delta
}

func (t *trader) AddOrder(o order.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders = append(t.orders, o)
}

func (t *trader) CancelOrder(orderID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.orders {
		if t.orders[i].OrderID == orderID {
			t.orders = append(t.orders[:i], t.orders[i+1:]...)
			return nil
		}
	}
	return ErrOrderNotFound
}

// GenCancelOrder copies the live order as a Cancel directive for the
// mempool.
func (t *trader) GenCancelOrder(orderID uint64) (order.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.orders {
		if t.orders[i].OrderID == orderID {
			cp := t.orders[i]
			cp.OrderType = order.Cancel
			return cp, nil
		}
	}
	return order.Order{}, ErrOrderNotFound
}

// UpdateOrderVolume adjusts a live order's quantity; orders driven to zero
// or below are dropped from the set.
func (t *trader) UpdateOrderVolume(orderID uint64, delta float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.orders {
		if t.orders[i].OrderID == orderID {
			t.orders[i].Quantity += delta
			if t.orders[i].Quantity <= 0 {
				t.orders = append(t.orders[:i], t.orders[i+1:]...)
			}
			return nil
		}
	}
	return ErrOrderNotFound
}

func (t *trader) NumOrders() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}

func (t *trader) CopyOrders() []order.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]order.Order, len(t.orders))
	copy(out, t.orders)
	return out
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenTraderID builds a role prefix plus ten random characters, e.g.
// "INVq3xk81mtbz".
func GenTraderID(tt TraderType, rng *rand.Rand) string {
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = idAlphabet[rng.Intn(len(idAlphabet))]
	}
	switch tt {
	case TraderMaker:
		return "MKR" + string(buf)
	case TraderMiner:
		return "MIN" + string(buf)
	default:
		return "INV" + string(buf)
	}
}
