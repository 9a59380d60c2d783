package history

import (
	"math"
	"testing"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
)

func limitOrder(trader string, tt order.TradeType, price, qty, gas float64) order.Order {
	return *order.New(trader, order.Enter, tt, order.LimitOrder, price, price, price, qty, gas)
}

func flowOrder(trader string, tt order.TradeType, pLow, pHigh, qty float64) order.Order {
	return *order.New(trader, order.Enter, tt, order.FlowOrder, pLow, pHigh, pHigh, qty, 0.1)
}

func TestHistoryMonotone(t *testing.T) {
	h := New(auction.CDA)
	for i := 0; i < 5; i++ {
		h.MempoolOrder(limitOrder("t", order.Bid, 10, 1, 0.1))
		if h.PoolSize() != i+1 {
			t.Fatalf("pool size = %d after %d inserts", h.PoolSize(), i+1)
		}
	}
	for i := 0; i < 3; i++ {
		h.CloneBookState(nil, order.Bid, uint64(i))
		h.SaveResults(*auction.NewTradeResults(auction.CDA))
	}
	if h.NumSnapshots() != 3 || h.NumResults() != 3 {
		t.Errorf("logs = %d/%d, want 3/3", h.NumSnapshots(), h.NumResults())
	}
	// Re-recording an id overwrites in place, never shrinks.
	o := limitOrder("t", order.Bid, 10, 1, 0.1)
	h.MempoolOrder(o)
	before := h.PoolSize()
	h.MempoolOrder(o)
	if h.PoolSize() != before {
		t.Errorf("pool size changed on duplicate id")
	}
}

func TestSnapshotScalars(t *testing.T) {
	h := New(auction.CDA)
	bids := []order.Order{
		limitOrder("b", order.Bid, 8, 1, 0),
		limitOrder("b", order.Bid, 12, 2, 0),
	}
	h.CloneBookState(bids, order.Bid, 0)

	snaps := h.Snapshots()
	if len(snaps) != 1 {
		t.Fatal("missing snapshot")
	}
	snap := snaps[0]
	if snap.MeanBidPrice == nil || *snap.MeanBidPrice != 10 {
		t.Errorf("mean bid = %v, want 10", snap.MeanBidPrice)
	}
	if snap.NumBids != 2 || snap.NumAsks != 0 {
		t.Errorf("counts = %d/%d", snap.NumBids, snap.NumAsks)
	}
	// One-sided weighted price equals the bid mean.
	if snap.WeightedPrice == nil || *snap.WeightedPrice != 10 {
		t.Errorf("weighted = %v, want 10", snap.WeightedPrice)
	}
	if snap.BestOrder == nil || snap.BestOrder.Price != 12 {
		t.Errorf("best order = %+v, want tail at 12", snap.BestOrder)
	}

	asks := []order.Order{limitOrder("a", order.Ask, 20, 1, 0)}
	h.CloneBookState(asks, order.Ask, 0)
	snap = h.Snapshots()[1]
	// (10*2 + 20*1) / 3
	want := (10.0*2 + 20.0) / 3
	if snap.WeightedPrice == nil || math.Abs(*snap.WeightedPrice-want) > 1e-12 {
		t.Errorf("weighted = %v, want %g", snap.WeightedPrice, want)
	}
}

// KLF snapshots average PHigh for bids and PLow for asks.
func TestSnapshotFlowSideMeans(t *testing.T) {
	h := New(auction.KLF)
	h.CloneBookState([]order.Order{flowOrder("b", order.Bid, 90, 100, 1)}, order.Bid, 0)
	h.CloneBookState([]order.Order{flowOrder("a", order.Ask, 110, 120, 1)}, order.Ask, 0)

	snaps := h.Snapshots()
	if got := *snaps[0].MeanBidPrice; got != 100 {
		t.Errorf("bid mean = %g, want PHigh 100", got)
	}
	if got := *snaps[1].MeanAskPrice; got != 110 {
		t.Errorf("ask mean = %g, want PLow 110", got)
	}
}

func TestBestPricesLooksBackTwo(t *testing.T) {
	h := New(auction.CDA)
	// Old snapshots that must not be consulted.
	h.CloneBookState([]order.Order{limitOrder("b", order.Bid, 50, 1, 0)}, order.Bid, 0)
	h.CloneBookState([]order.Order{limitOrder("a", order.Ask, 60, 1, 0)}, order.Ask, 0)
	// The two most recent, one per side.
	h.CloneBookState([]order.Order{limitOrder("b", order.Bid, 99, 1, 0)}, order.Bid, 1)
	h.CloneBookState([]order.Order{limitOrder("a", order.Ask, 101, 1, 0)}, order.Ask, 1)

	bid, askP := h.BestPrices()
	if bid != 99 || askP != 101 {
		t.Errorf("best prices = %g/%g, want 99/101", bid, askP)
	}
}

func TestBestPricesFallbacks(t *testing.T) {
	h := New(auction.CDA)
	bid, askP := h.BestPrices()
	if bid != 0 || askP != order.MaxPrice {
		t.Errorf("fallbacks = %g/%g, want 0/%g", bid, askP, order.MaxPrice)
	}
}

func TestDecisionData(t *testing.T) {
	h := New(auction.CDA)
	h.CloneBookState([]order.Order{limitOrder("b", order.Bid, 95, 1, 0)}, order.Bid, 0)
	h.CloneBookState([]order.Order{limitOrder("a", order.Ask, 105, 2, 0)}, order.Ask, 0)

	p := 101.5
	r := auction.NewTradeResults(auction.FBA)
	r.UniformPrice = &p
	h.SaveResults(*r)

	pool := []order.Order{
		limitOrder("x", order.Bid, 90, 4, 0.2),
		limitOrder("y", order.Ask, 110, 6, 0.6),
	}
	pd := h.DecisionData(pool)

	if pd.ClearingPrice == nil || *pd.ClearingPrice != 101.5 {
		t.Errorf("clearing price = %v", pd.ClearingPrice)
	}
	if pd.BestBid == nil || pd.BestBid.Price != 95 {
		t.Errorf("best bid = %+v", pd.BestBid)
	}
	if pd.BestAsk == nil || pd.BestAsk.Price != 105 {
		t.Errorf("best ask = %+v", pd.BestAsk)
	}
	if math.Abs(pd.MeanPoolGas-0.4) > 1e-12 {
		t.Errorf("mean pool gas = %g, want 0.4", pd.MeanPoolGas)
	}
	if pd.BidsVolume != 4 || pd.AsksVolume != 6 {
		t.Errorf("pool volumes = %g/%g", pd.BidsVolume, pd.AsksVolume)
	}
	if len(pd.Pool) != 2 {
		t.Errorf("pool copy = %d", len(pd.Pool))
	}
}

// The inference deliberately averages every order ever sent, including
// ones long gone from the books.
func TestInferenceDataOverAllOrders(t *testing.T) {
	h := New(auction.CDA)
	h.MempoolOrder(limitOrder("a", order.Bid, 80, 1, 0))
	h.MempoolOrder(limitOrder("b", order.Bid, 100, 1, 0))
	h.MempoolOrder(limitOrder("c", order.Ask, 120, 1, 0))

	stats := h.InferenceData()
	if stats.NumBids != 2 || stats.NumAsks != 1 {
		t.Fatalf("counts = %d/%d", stats.NumBids, stats.NumAsks)
	}
	if *stats.MeanBidPrice != 90 || *stats.MeanAskPrice != 120 {
		t.Errorf("means = %g/%g", *stats.MeanBidPrice, *stats.MeanAskPrice)
	}
	want := (90.0*2 + 120.0) / 3
	if math.Abs(*stats.WeightedPrice-want) > 1e-12 {
		t.Errorf("weighted = %g, want %g", *stats.WeightedPrice, want)
	}
}

func TestInferenceDataEmpty(t *testing.T) {
	h := New(auction.CDA)
	stats := h.InferenceData()
	if stats.WeightedPrice != nil || stats.MeanBidPrice != nil || stats.MeanAskPrice != nil {
		t.Error("empty history must report undefined means")
	}
}
