package auction

import (
	"golang.org/x/sync/errgroup"

	"blocksim/pkg/exchange/order"
)

// maxFlowIters caps the binary search; on the cap the last midpoint is
// reported as the clearing price.
const maxFlowIters = 1000

// aggChunk is the smallest slice of orders worth handing to a worker.
const aggChunk = 64

// CalcAggs computes aggregate demand and supply at price p across both
// books' flow schedules. The two reductions are independent and each is
// chunked across workers; correctness does not depend on the parallelism.
func CalcAggs(p float64, bids, asks *order.Book) (demand, supply float64) {
	bidOrders := bids.CopyOrders()
	askOrders := asks.CopyOrders()
	demand = parallelSum(bidOrders, func(o *order.Order) float64 { return o.FlowDemand(p) })
	supply = parallelSum(askOrders, func(o *order.Order) float64 { return o.FlowSupply(p) })
	return demand, supply
}

func parallelSum(orders []order.Order, f func(*order.Order) float64) float64 {
	if len(orders) <= aggChunk {
		var sum float64
		for i := range orders {
			sum += f(&orders[i])
		}
		return sum
	}
	var g errgroup.Group
	nChunks := (len(orders) + aggChunk - 1) / aggChunk
	partial := make([]float64, nChunks)
	for c := 0; c < nChunks; c++ {
		lo := c * aggChunk
		hi := lo + aggChunk
		if hi > len(orders) {
			hi = len(orders)
		}
		g.Go(func() error {
			var sum float64
			for i := lo; i < hi; i++ {
				sum += f(&orders[i])
			}
			partial[c] = sum
			return nil
		})
	}
	_ = g.Wait()
	var total float64
	for _, s := range partial {
		total += s
	}
	return total
}

// FlowCross finds the price where aggregate demand meets aggregate supply
// by bisecting [min PLow, max PHigh] across both books, then fills every
// schedule against the exchange at that price. Returns nil when the
// bracket is empty.
func FlowCross(bids, asks *order.Book) *TradeResults {
	left, right := priceBounds(bids, asks)
	for iter := 1; left < right; iter++ {
		mid := (left + right) / 2
		dem, sup := CalcAggs(mid, bids, asks)
		switch {
		case order.GreaterE(dem, sup):
			// Left of the crossing point.
			left = mid
		case order.LessE(dem, sup):
			right = mid
		default:
			result := NewTradeResults(KLF)
			p := mid
			result.UniformPrice = &p
			result.AggDemand = dem
			result.AggSupply = sup
			result.Updates = flowPlayerUpdates(mid, bids, asks)
			return result
		}
		if iter == maxFlowIters {
			// Could not pin the cross; report the last midpoint.
			result := NewTradeResults(KLF)
			p := mid
			result.UniformPrice = &p
			result.AggDemand = dem
			result.AggSupply = sup
			result.Updates = flowPlayerUpdates(mid, bids, asks)
			return result
		}
	}
	return nil
}

// flowPlayerUpdates fills each schedule with non-zero volume at the
// clearing price, decrements resting quantities in place, and removes the
// fully filled orders. KLF fills transact with the exchange, so the
// counterpart is the ExchangeID sentinel.
func flowPlayerUpdates(clearingPrice float64, bids, asks *order.Book) []PlayerUpdate {
	var updates []PlayerUpdate
	var cancelBids, cancelAsks []uint64

	bids.WithOrders(func(orders []*order.Order) {
		for _, bid := range orders {
			v := bid.FlowDemand(clearingPrice)
			if v <= 0 {
				continue
			}
			updates = append(updates, PlayerUpdate{
				PayerID:          bid.TraderID,
				VolFillerID:      ExchangeID,
				PayerOrderID:     bid.OrderID,
				VolFillerOrderID: 0,
				Price:            clearingPrice,
				Volume:           v,
			})
			bid.Quantity -= v
			if bid.Quantity <= 0 {
				cancelBids = append(cancelBids, bid.OrderID)
			}
		}
	})
	asks.WithOrders(func(orders []*order.Order) {
		for _, ask := range orders {
			v := ask.FlowSupply(clearingPrice)
			if v <= 0 {
				continue
			}
			updates = append(updates, PlayerUpdate{
				PayerID:          ExchangeID,
				VolFillerID:      ask.TraderID,
				PayerOrderID:     0,
				VolFillerOrderID: ask.OrderID,
				Price:            clearingPrice,
				Volume:           v,
			})
			ask.Quantity -= v
			if ask.Quantity <= 0 {
				cancelAsks = append(cancelAsks, ask.OrderID)
			}
		}
	})

	for _, id := range cancelBids {
		_ = bids.Cancel(id)
	}
	for _, id := range cancelAsks {
		_ = asks.Cancel(id)
	}
	return updates
}

func priceBounds(bids, asks *order.Book) (float64, float64) {
	left := bids.PLowMin()
	if a := asks.PLowMin(); a < left {
		left = a
	}
	right := bids.PHighMax()
	if a := asks.PHighMax(); a > right {
		right = a
	}
	return left, right
}
