package auction

import (
	"testing"

	"blocksim/pkg/exchange/order"
)

func bid(trader string, price, qty float64) *order.Order {
	return order.New(trader, order.Enter, order.Bid, order.LimitOrder, price, price, price, qty, 0.1)
}

func ask(trader string, price, qty float64) *order.Order {
	return order.New(trader, order.Enter, order.Ask, order.LimitOrder, price, price, price, qty, 0.1)
}

func TestBidCrossNoCrossRests(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	asks.Add(ask("a", 105, 5))

	r := BidCross(bids, asks, bid("b", 100, 5))
	if len(r.Updates) != 0 {
		t.Fatalf("updates = %d, want 0", len(r.Updates))
	}
	if bids.Len() != 1 || bids.MaxPrice() != 100 {
		t.Errorf("bid should rest at 100: len=%d best=%g", bids.Len(), bids.MaxPrice())
	}
}

// Trades always print at the resting order's price.
func TestBidCrossTradesAtRestingPrice(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	restingAsk := ask("asker", 99, 5)
	asks.Add(restingAsk)

	r := BidCross(bids, asks, bid("bidder", 120, 5))
	if len(r.Updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(r.Updates))
	}
	pu := r.Updates[0]
	if pu.Price != 99 {
		t.Errorf("trade price = %g, want resting 99", pu.Price)
	}
	if pu.PayerID != "bidder" || pu.VolFillerID != "asker" {
		t.Errorf("parties = %s/%s", pu.PayerID, pu.VolFillerID)
	}
	if pu.Volume != 5 {
		t.Errorf("volume = %g, want 5", pu.Volume)
	}
	if asks.Len() != 0 || bids.Len() != 0 {
		t.Errorf("both orders should be gone: bids=%d asks=%d", bids.Len(), asks.Len())
	}
}

func TestBidCrossPartialFillPushesAskBack(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	asks.Add(ask("asker", 99, 10))

	r := BidCross(bids, asks, bid("bidder", 100, 4))
	if len(r.Updates) != 1 || r.Updates[0].Volume != 4 {
		t.Fatalf("want one update of volume 4, got %+v", r.Updates)
	}
	if asks.Len() != 1 {
		t.Fatalf("ask should still rest")
	}
	rest := asks.CopyOrders()[0]
	if rest.Quantity != 6 {
		t.Errorf("residual ask qty = %g, want 6", rest.Quantity)
	}
	if bids.Len() != 0 {
		t.Error("satisfied bid must not rest")
	}
}

func TestBidCrossWalksMultipleAsks(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	asks.Add(ask("a1", 10, 3))
	asks.Add(ask("a2", 11, 3))
	asks.Add(ask("a3", 50, 3))

	r := BidCross(bids, asks, bid("b", 20, 6))
	if len(r.Updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(r.Updates))
	}
	if r.Updates[0].Price != 10 || r.Updates[1].Price != 11 {
		t.Errorf("prices = %g, %g; want 10, 11", r.Updates[0].Price, r.Updates[1].Price)
	}
	if asks.Len() != 1 || asks.MinPrice() != 50 {
		t.Errorf("only the 50 ask should remain: len=%d min=%g", asks.Len(), asks.MinPrice())
	}
}

func TestBidCrossEmptiesBookResidualRests(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	asks.Add(ask("a", 10, 3))

	r := BidCross(bids, asks, bid("b", 20, 8))
	if len(r.Updates) != 1 || r.Updates[0].Volume != 3 {
		t.Fatalf("want one update of volume 3, got %+v", r.Updates)
	}
	if bids.Len() != 1 {
		t.Fatal("residual bid must rest")
	}
	if got := bids.CopyOrders()[0].Quantity; got != 5 {
		t.Errorf("residual qty = %g, want 5", got)
	}
	// Emptied ask book resets its cache.
	if asks.MinPrice() != 0 || asks.MaxPrice() != order.MaxPrice {
		t.Errorf("ask cache = (%g, %g) after emptying", asks.MinPrice(), asks.MaxPrice())
	}
}

func TestAskCrossMirrors(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	bids.Add(bid("b1", 10, 5))
	bids.Add(bid("b2", 12, 5))

	r := AskCross(bids, asks, ask("a", 9, 7))
	if len(r.Updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(r.Updates))
	}
	if r.Updates[0].Price != 12 {
		t.Errorf("first trade at %g, want best bid 12", r.Updates[0].Price)
	}
	if r.Updates[0].Volume != 5 || r.Updates[1].Volume != 2 {
		t.Errorf("volumes = %g, %g; want 5, 2", r.Updates[0].Volume, r.Updates[1].Volume)
	}
	// b1 keeps 3.
	if got := bids.CopyOrders()[0].Quantity; got != 3 {
		t.Errorf("residual bid qty = %g, want 3", got)
	}
	if asks.Len() != 0 {
		t.Error("satisfied ask must not rest")
	}
}

// Engine invariant: updates never carry negative prices or volumes.
func TestUpdatesNonNegative(t *testing.T) {
	bids := order.NewBook(order.Bid)
	asks := order.NewBook(order.Ask)
	asks.Add(ask("a", 0, 5))
	r := BidCross(bids, asks, bid("b", 1, 5))
	for _, pu := range r.Updates {
		if pu.Price < 0 || pu.Volume < 0 {
			t.Errorf("negative update: %+v", pu)
		}
	}
}
