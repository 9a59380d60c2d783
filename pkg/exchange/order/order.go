// Package order defines the order type shared by every market design and
// the two books it rests in. Prices are plain float64 and compared with the
// epsilon helpers in numeric.go.
package order

import (
	"fmt"
	"sync/atomic"
)

// OrderType says how the exchange consumes the order.
type OrderType int

const (
	Enter OrderType = iota
	Update
	Cancel
)

func (t OrderType) String() string {
	switch t {
	case Enter:
		return "Enter"
	case Update:
		return "Update"
	case Cancel:
		return "Cancel"
	default:
		return "unknown"
	}
}

// ParseOrderType maps the wire/CSV spelling onto an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "Enter", "enter":
		return Enter, nil
	case "Update", "update":
		return Update, nil
	case "Cancel", "cancel":
		return Cancel, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

// TradeType decides which book the order lands in.
type TradeType int

const (
	Bid TradeType = iota
	Ask
)

func (t TradeType) String() string {
	if t == Bid {
		return "Bid"
	}
	return "Ask"
}

// ExType identifies the exchange format the order is compatible with.
// Limit orders carry one price; flow orders carry a [PLow, PHigh] range and
// express a piecewise-linear schedule over it.
type ExType int

const (
	LimitOrder ExType = iota
	FlowOrder
)

func (t ExType) String() string {
	if t == LimitOrder {
		return "LimitOrder"
	}
	return "FlowOrder"
}

var idCounter atomic.Uint64

// NextID hands out run-unique order ids.
func NextID() uint64 {
	return idCounter.Add(1)
}

// Order is the internal representation every exchange format operates on.
// Identity fields are fixed at creation; Quantity is decreased by fills.
type Order struct {
	TraderID  string
	OrderID   uint64
	OrderType OrderType
	TradeType TradeType
	ExType    ExType
	PLow      float64
	PHigh     float64
	Price     float64
	Quantity  float64
	Gas       float64
}

// New builds an order with a fresh id.
func New(traderID string, ot OrderType, tt TradeType, et ExType, pLow, pHigh, price, qty, gas float64) *Order {
	return &Order{
		TraderID:  traderID,
		OrderID:   NextID(),
		OrderType: ot,
		TradeType: tt,
		ExType:    et,
		PLow:      pLow,
		PHigh:     pHigh,
		Price:     price,
		Quantity:  qty,
		Gas:       gas,
	}
}

// Clone copies the order.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// FlowDemand is the quantity this bid flow order buys at the given price.
func (o *Order) FlowDemand(price float64) float64 {
	u := o.Quantity
	switch {
	case price <= o.PLow:
		return u
	case price > o.PHigh:
		return 0
	default:
		return u * (o.PHigh - price) / (o.PHigh - o.PLow)
	}
}

// FlowSupply is the quantity this ask flow order sells at the given price.
func (o *Order) FlowSupply(price float64) float64 {
	u := o.Quantity
	switch {
	case price < o.PLow:
		return 0
	case price >= o.PHigh:
		return u
	default:
		return u * (price - o.PLow) / (o.PHigh - o.PLow)
	}
}
