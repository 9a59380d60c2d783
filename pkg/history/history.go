// Package history is the append-only record of a run: every order that
// reached the mempool, a shallow book snapshot after every block, and every
// trade result. Maker strategies read their priors from it; nothing is ever
// removed or modified after insertion.
package history

import (
	"sync"
	"time"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
)

// Entry is the shallow per-order record inside a book snapshot: only the
// quantity changes over an order's life, so that is all we copy.
type Entry struct {
	OrderID  uint64
	Quantity float64
	TS       time.Duration
}

// ShallowBook is one side's state after a block, with the derived scalars
// strategies consume. A side's mean is nil until that side has a snapshot
// with orders, and again whenever its latest snapshot is empty.
type ShallowBook struct {
	Orders   []Entry
	BlockNum uint64
	Side     order.TradeType
	TS       time.Duration

	BestOrder     *order.Order
	MeanBidPrice  *float64
	MeanAskPrice  *float64
	NumBids       int
	NumAsks       int
	WeightedPrice *float64
}

// PoolRecord is one mempool arrival.
type PoolRecord struct {
	Order order.Order
	TS    time.Duration
}

// PriorData is the decision snapshot makers act on: the last clearing
// price, current book tops and depth, and pool-level aggregates from a
// mempool copy taken at tick time.
type PriorData struct {
	ClearingPrice *float64
	BestBid       *order.Order
	BestAsk       *order.Order
	CurrentBids   int
	CurrentAsks   int
	WeightedPrice *float64
	MeanPoolGas   float64
	BidsVolume    float64
	AsksVolume    float64
	Pool          []order.Order
}

// LikelihoodStats aggregates every order ever sent to the mempool,
// including long-cancelled ones. That bias is a design choice, not a bug:
// the inference deliberately weighs all expressed interest.
type LikelihoodStats struct {
	MeanBidPrice  *float64
	MeanAskPrice  *float64
	NumBids       int
	NumAsks       int
	WeightedPrice *float64
}

// History keeps the three logs behind separate locks, keyed by duration
// since the run epoch.
type History struct {
	marketType auction.MarketType
	epoch      time.Time

	poolMu sync.Mutex
	pool   map[uint64]PoolRecord

	snapMu sync.Mutex
	snaps  []*ShallowBook
	// Rolling per-side stats so each one-sided snapshot can still carry a
	// two-sided weighted price.
	lastMeanBid *float64
	lastMeanAsk *float64
	lastNumBids int
	lastNumAsks int

	resMu   sync.Mutex
	results []auction.TradeResults
}

func New(mt auction.MarketType) *History {
	return &History{
		marketType: mt,
		epoch:      time.Now(),
		pool:       make(map[uint64]PoolRecord),
	}
}

func (h *History) now() time.Duration {
	return time.Since(h.epoch)
}

// MempoolOrder records an order placed into the mempool.
func (h *History) MempoolOrder(o order.Order) {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()
	h.pool[o.OrderID] = PoolRecord{Order: o, TS: h.now()}
}

// sidePrice is the price a side's mean is computed over: the limit price in
// limit markets, the schedule edge nearest the fundamental in the flow
// market.
func (h *History) sidePrice(o *order.Order) float64 {
	if h.marketType == auction.KLF {
		if o.TradeType == order.Bid {
			return o.PHigh
		}
		return o.PLow
	}
	return o.Price
}

// CloneBookState appends a shallow snapshot of one side after a block,
// refreshing that side's rolling mean and deriving the weighted price over
// both sides' latest stats.
func (h *History) CloneBookState(orders []order.Order, side order.TradeType, blockNum uint64) {
	ts := h.now()
	snap := &ShallowBook{
		BlockNum: blockNum,
		Side:     side,
		TS:       ts,
	}
	var sum float64
	for i := range orders {
		snap.Orders = append(snap.Orders, Entry{
			OrderID:  orders[i].OrderID,
			Quantity: orders[i].Quantity,
			TS:       ts,
		})
		sum += h.sidePrice(&orders[i])
	}
	if n := len(orders); n > 0 {
		best := orders[n-1]
		snap.BestOrder = &best
	}

	h.snapMu.Lock()
	defer h.snapMu.Unlock()
	if len(orders) > 0 {
		mean := sum / float64(len(orders))
		if side == order.Bid {
			h.lastMeanBid = &mean
			h.lastNumBids = len(orders)
		} else {
			h.lastMeanAsk = &mean
			h.lastNumAsks = len(orders)
		}
	} else {
		if side == order.Bid {
			h.lastMeanBid = nil
			h.lastNumBids = 0
		} else {
			h.lastMeanAsk = nil
			h.lastNumAsks = 0
		}
	}
	snap.MeanBidPrice = h.lastMeanBid
	snap.MeanAskPrice = h.lastMeanAsk
	snap.NumBids = h.lastNumBids
	snap.NumAsks = h.lastNumAsks
	snap.WeightedPrice = weightedPrice(h.lastMeanBid, h.lastNumBids, h.lastMeanAsk, h.lastNumAsks)
	h.snaps = append(h.snaps, snap)
}

// weightedPrice blends the side means by order count, skipping missing
// sides. Both missing yields nil.
func weightedPrice(meanBid *float64, numBids int, meanAsk *float64, numAsks int) *float64 {
	var sum float64
	var n int
	if meanBid != nil && numBids > 0 {
		sum += *meanBid * float64(numBids)
		n += numBids
	}
	if meanAsk != nil && numAsks > 0 {
		sum += *meanAsk * float64(numAsks)
		n += numAsks
	}
	if n == 0 {
		return nil
	}
	wp := sum / float64(n)
	return &wp
}

// SaveResults appends a trade result.
func (h *History) SaveResults(r auction.TradeResults) {
	h.resMu.Lock()
	defer h.resMu.Unlock()
	h.results = append(h.results, r)
}

// DecisionData assembles the maker prior from the latest snapshots and a
// mempool copy taken by the caller.
func (h *History) DecisionData(pool []order.Order) *PriorData {
	pd := &PriorData{Pool: pool}

	h.resMu.Lock()
	if n := len(h.results); n > 0 {
		pd.ClearingPrice = h.results[n-1].UniformPrice
	}
	h.resMu.Unlock()

	h.snapMu.Lock()
	for i := len(h.snaps) - 1; i >= 0; i-- {
		snap := h.snaps[i]
		if snap.Side == order.Bid && pd.BestBid == nil {
			pd.BestBid = snap.BestOrder
		}
		if snap.Side == order.Ask && pd.BestAsk == nil {
			pd.BestAsk = snap.BestOrder
		}
		if pd.BestBid != nil && pd.BestAsk != nil {
			break
		}
	}
	if n := len(h.snaps); n > 0 {
		last := h.snaps[n-1]
		pd.CurrentBids = last.NumBids
		pd.CurrentAsks = last.NumAsks
		pd.WeightedPrice = last.WeightedPrice
	}
	h.snapMu.Unlock()

	var gasSum float64
	for i := range pool {
		gasSum += pool[i].Gas
		if pool[i].TradeType == order.Bid {
			pd.BidsVolume += pool[i].Quantity
		} else {
			pd.AsksVolume += pool[i].Quantity
		}
	}
	if len(pool) > 0 {
		pd.MeanPoolGas = gasSum / float64(len(pool))
	}
	return pd
}

// InferenceData aggregates every order ever recorded into the mempool log.
func (h *History) InferenceData() *LikelihoodStats {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()

	var bidSum, askSum float64
	var numBids, numAsks int
	for _, rec := range h.pool {
		o := rec.Order
		if o.TradeType == order.Bid {
			bidSum += h.sidePrice(&o)
			numBids++
		} else {
			askSum += h.sidePrice(&o)
			numAsks++
		}
	}
	stats := &LikelihoodStats{NumBids: numBids, NumAsks: numAsks}
	if numBids > 0 {
		m := bidSum / float64(numBids)
		stats.MeanBidPrice = &m
	}
	if numAsks > 0 {
		m := askSum / float64(numAsks)
		stats.MeanAskPrice = &m
	}
	stats.WeightedPrice = weightedPrice(stats.MeanBidPrice, numBids, stats.MeanAskPrice, numAsks)
	return stats
}

// BestPrices reads the best bid and ask prices from the most recent
// snapshots. Snapshots alternate side every block, so it looks back at most
// two. Missing sides fall back to the empty-book sentinels.
func (h *History) BestPrices() (bestBid, bestAsk float64) {
	bestBid = order.MinPrice
	bestAsk = order.MaxPrice

	h.snapMu.Lock()
	defer h.snapMu.Unlock()
	n := len(h.snaps)
	for i := n - 1; i >= 0 && i >= n-2; i-- {
		snap := h.snaps[i]
		if snap.BestOrder == nil {
			continue
		}
		if snap.Side == order.Bid {
			bestBid = snap.BestOrder.Price
		} else {
			bestAsk = snap.BestOrder.Price
		}
	}
	return bestBid, bestAsk
}

// PoolSize reports how many distinct orders ever reached the mempool.
func (h *History) PoolSize() int {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()
	return len(h.pool)
}

func (h *History) NumSnapshots() int {
	h.snapMu.Lock()
	defer h.snapMu.Unlock()
	return len(h.snaps)
}

func (h *History) NumResults() int {
	h.resMu.Lock()
	defer h.resMu.Unlock()
	return len(h.results)
}

// Snapshots copies the snapshot log for post-run statistics.
func (h *History) Snapshots() []*ShallowBook {
	h.snapMu.Lock()
	defer h.snapMu.Unlock()
	out := make([]*ShallowBook, len(h.snaps))
	copy(out, h.snaps)
	return out
}

// Results copies the trade-result log.
func (h *History) Results() []auction.TradeResults {
	h.resMu.Lock()
	defer h.resMu.Unlock()
	out := make([]auction.TradeResults, len(h.results))
	copy(out, h.results)
	return out
}
