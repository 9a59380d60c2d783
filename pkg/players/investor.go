package players

import (
	"math"
	"math/rand"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
	"blocksim/params"
)

// Investor submits one order at a time, priced and sized by the configured
// distributions. It has no view on the fundamental; it is the exogenous
// order flow the market designs are compared on.
type Investor struct {
	trader
}

func NewInvestor(id string) *Investor {
	return &Investor{trader: trader{id: id, ptype: TraderInvestor}}
}

// GenerateOrder samples one Enter order: a fair-coin side, a price from the
// side's center distribution, volume and gas from theirs. Limit markets
// collapse the flow range onto the price; the flow market brackets it by
// the configured offset.
func (inv *Investor) GenerateOrder(dists *params.Distributions, consts *params.Constants) *order.Order {
	tradeType := order.Ask
	if dists.FiftyFifty() {
		tradeType = order.Bid
	}

	var price float64
	if tradeType == order.Ask {
		price = dists.Sample(params.AsksCenter)
	} else {
		price = dists.Sample(params.BidsCenter)
	}
	quantity := dists.Sample(params.InvestorVolume)
	gas := dists.Sample(params.InvestorGas)

	exType := order.LimitOrder
	if consts.MarketType == auction.KLF {
		exType = order.FlowOrder
	}

	pLow, pHigh := price, price
	if exType == order.FlowOrder {
		if tradeType == order.Ask {
			pHigh = price + consts.FlowOrderOffset
		} else {
			pLow = price - consts.FlowOrderOffset
		}
	}

	return order.New(inv.id, order.Enter, tradeType, exType, pLow, pHigh, price, quantity, gas)
}

// SetupInvestors builds the configured number of investors with balances
// and inventories drawn from the endowment distributions.
func SetupInvestors(dists *params.Distributions, consts *params.Constants, rng *rand.Rand) []*Investor {
	invs := make([]*Investor, 0, consts.NumInvestors)
	for i := uint64(0); i < consts.NumInvestors; i++ {
		inv := NewInvestor(GenTraderID(TraderInvestor, rng))
		inv.balance = dists.Sample(params.InvestorBalance)
		inv.inventory = dists.Sample(params.InvestorInventory)
		invs = append(invs, inv)
	}
	return invs
}

// absFloat keeps sampled magnitudes non-negative where a distribution can
// go negative.
func absFloat(v float64) float64 {
	return math.Abs(v)
}
