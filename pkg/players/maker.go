package players

import (
	"math/rand"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
	"blocksim/pkg/history"
	"blocksim/params"
)

// MakerKind selects the maker's quoting temperament.
type MakerKind int

const (
	Aggressive MakerKind = iota
	RiskAverse
	RandomKind
	numMakerKinds
)

func (k MakerKind) String() string {
	switch k {
	case Aggressive:
		return "Aggressive"
	case RiskAverse:
		return "RiskAverse"
	case RandomKind:
		return "Random"
	default:
		return "unknown"
	}
}

// Maker quotes a bid and an ask around a fundamental inferred from the
// mempool-wide weighted price, skewing the spread against its inventory so
// it leans back toward flat.
type Maker struct {
	trader
	Kind MakerKind
	rng  *rand.Rand
}

func NewMaker(id string, kind MakerKind, rng *rand.Rand) *Maker {
	return &Maker{
		trader: trader{id: id, ptype: TraderMaker},
		Kind:   kind,
		rng:    rng,
	}
}

// NewOrders builds this tick's quote pair from the history data, or
// reports false when the inference gives no usable fundamental.
func (m *Maker) NewOrders(prior *history.PriorData, stats *history.LikelihoodStats,
	dists *params.Distributions, consts *params.Constants) (bid, ask *order.Order, ok bool) {
	if stats.WeightedPrice == nil {
		return nil, nil, false
	}
	inferred := *stats.WeightedPrice

	spread := m.spread(consts.MakerBaseSpread)
	inv := m.Inventory()

	var bidPrice, askPrice, bidQty, askQty float64
	if inv == 0 {
		// Flat book: quote symmetrically.
		bidPrice = inferred - spread/2
		askPrice = inferred + spread/2
		bidQty, askQty = 0.5, 0.5
	} else {
		// Skew against the held inventory: short books widen the bid side
		// (r in [0.5, 1]), long books the ask side (r in [0, 0.5]).
		r := skewRatio(inv, consts.MaxHeldInventory)
		bidPrice = inferred - r*spread
		askPrice = inferred + (1-r)*spread
		bidQty, askQty = r, 1-r
	}

	gas := m.gas(prior.MeanPoolGas, consts.MakerBaseSpread)

	exType := order.LimitOrder
	if consts.MarketType == auction.KLF {
		exType = order.FlowOrder
	}
	bidLow, bidHigh := bidPrice, bidPrice
	askLow, askHigh := askPrice, askPrice
	if exType == order.FlowOrder {
		bidLow = bidPrice - consts.FlowOrderOffset
		askHigh = askPrice + consts.FlowOrderOffset
	}

	bid = order.New(m.id, order.Enter, order.Bid, exType, bidLow, bidHigh, bidPrice, bidQty, gas)
	ask = order.New(m.id, order.Enter, order.Ask, exType, askLow, askHigh, askPrice, askQty, gas)
	return bid, ask, true
}

// spread is the kind-specific quote width.
func (m *Maker) spread(base float64) float64 {
	switch m.Kind {
	case Aggressive:
		return base + m.uniform(0.01, base)
	case RiskAverse:
		return 2 * base
	default:
		return absFloat(m.normal(0.1*base, base))
	}
}

// gas is the kind-specific priority fee, anchored on the current pool mean.
func (m *Maker) gas(meanPoolGas, base float64) float64 {
	switch m.Kind {
	case Aggressive:
		return meanPoolGas + m.uniform(0.01, base)
	case RiskAverse:
		return meanPoolGas
	default:
		return absFloat(m.normal(meanPoolGas, 0.05))
	}
}

func (m *Maker) uniform(low, high float64) float64 {
	return low + m.rng.Float64()*(high-low)
}

func (m *Maker) normal(mean, sd float64) float64 {
	return m.rng.NormFloat64()*sd + mean
}

// skewRatio maps held inventory onto the bid share of the spread, clamped
// to [0, 1]: -max inventory gives 1 (all width on the bid), +max gives 0.
func skewRatio(inv, maxInv float64) float64 {
	if maxInv <= 0 {
		return 0.5
	}
	x := inv / maxInv
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return 0.5 - 0.5*x
}

// SetupMakers builds the configured number of makers with uniformly chosen
// kinds and sampled endowments.
func SetupMakers(dists *params.Distributions, consts *params.Constants, rng *rand.Rand) []*Maker {
	mkrs := make([]*Maker, 0, consts.NumMakers)
	for i := uint64(0); i < consts.NumMakers; i++ {
		kind := MakerKind(rng.Intn(int(numMakerKinds)))
		m := NewMaker(GenTraderID(TraderMaker, rng), kind, rng)
		m.balance = dists.Sample(params.MakerBalance)
		m.inventory = dists.Sample(params.MakerInventory)
		mkrs = append(mkrs, m)
	}
	return mkrs
}
