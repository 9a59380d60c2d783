package auction

import "blocksim/pkg/exchange/order"

// FrequentBatchAuction clears all resting orders at one uniform price found
// by a descending-price sweep of the merged books. Returns a result with a
// nil UniformPrice when no cross exists.
//
// The sweep walks bids and asks together in descending price order,
// accumulating volume until it reaches the total ask volume V*. The case
// analysis on the two prices bracketing the stop decides p*; the midpoint
// rule on an exact volume match is deliberate and covered by scenario
// tests.
func FrequentBatchAuction(bids, asks *order.Book) *TradeResults {
	result := NewTradeResults(FBA)
	if bids.Len() == 0 || asks.Len() == 0 {
		return result
	}
	if bids.MaxPrice() < asks.MinPrice() {
		// Best bid below best ask: nothing crosses.
		return result
	}

	askVol := asks.Volume()
	merged := order.MergeDesc(bids, asks)

	maxSeen := order.MinPrice
	minSeen := order.MaxPrice
	seenVol := 0.0
	// prevPrice stays at the upper sentinel until an entry has been passed,
	// which is the first case of the analysis below.
	prevPrice := order.MaxPrice
	curPrice := 0.0
	for i := range merged {
		curPrice = merged[i].Price
		if curPrice > maxSeen {
			maxSeen = curPrice
		}
		if curPrice < minSeen {
			minSeen = curPrice
		}
		seenVol += merged[i].Quantity
		if seenVol >= askVol {
			break
		}
		prevPrice = curPrice
	}

	var clearing *float64
	switch {
	case maxSeen == order.MinPrice && minSeen == order.MaxPrice:
		// No usable price was observed.
	case seenVol == askVol:
		switch {
		case prevPrice == order.MaxPrice && order.MinPrice < curPrice && curPrice < order.MaxPrice:
			p := curPrice
			clearing = &p
		case prevPrice < order.MaxPrice && order.MinPrice < curPrice:
			p := (prevPrice + curPrice) / 2
			clearing = &p
		case order.MinPrice < prevPrice && prevPrice < order.MaxPrice && curPrice == order.MinPrice:
			p := prevPrice
			clearing = &p
		case prevPrice == order.MinPrice:
			p := minSeen
			clearing = &p
		}
	case seenVol > askVol:
		p := curPrice
		if minSeen > p {
			p = minSeen
		}
		clearing = &p
	}

	result.UniformPrice = clearing
	if clearing == nil {
		return result
	}
	cp := *clearing

	// Pair best bid with best ask at p* until a side runs out or prices
	// leave the crossing range.
	volFilled := 0.0
	for {
		curBid := bids.PopBest()
		if curBid == nil {
			break
		}
		curAsk := asks.PopBest()
		if curAsk == nil {
			bids.PushBest(curBid)
			break
		}
		if curBid.Price < cp || curAsk.Price > cp {
			// Bids below p* and asks above it do not transact.
			bids.PushBest(curBid)
			asks.PushBest(curAsk)
			break
		}
		switch {
		case order.LessE(curBid.Quantity, curAsk.Quantity):
			amt := curBid.Quantity
			curAsk.Quantity -= amt
			curBid.Quantity = 0
			volFilled += amt
			result.Updates = append(result.Updates, PlayerUpdate{
				PayerID:          curBid.TraderID,
				VolFillerID:      curAsk.TraderID,
				PayerOrderID:     curBid.OrderID,
				VolFillerOrderID: curAsk.OrderID,
				Price:            cp,
				Volume:           amt,
			})
			// Bid fully filled: drop it. The ask returns for the next
			// round.
			asks.PushBest(curAsk)
		case order.GreaterE(curBid.Quantity, curAsk.Quantity):
			amt := curAsk.Quantity
			curAsk.Quantity = 0
			curBid.Quantity -= amt
			volFilled += amt
			result.Updates = append(result.Updates, PlayerUpdate{
				PayerID:          curBid.TraderID,
				VolFillerID:      curAsk.TraderID,
				PayerOrderID:     curBid.OrderID,
				VolFillerOrderID: curAsk.OrderID,
				Price:            cp,
				Volume:           amt,
			})
			// Ask fully filled: drop it, keep working the bid.
			bids.PushBest(curBid)
		default:
			amt := curBid.Quantity
			curBid.Quantity = 0
			curAsk.Quantity = 0
			volFilled += amt
			result.Updates = append(result.Updates, PlayerUpdate{
				PayerID:          curBid.TraderID,
				VolFillerID:      curAsk.TraderID,
				PayerOrderID:     curBid.OrderID,
				VolFillerOrderID: curAsk.OrderID,
				Price:            cp,
				Volume:           amt,
			})
		}
	}
	bids.RefreshBest()
	asks.RefreshBest()

	result.AggDemand = volFilled
	result.AggSupply = volFilled
	return result
}
