package auction

import "blocksim/pkg/exchange/order"

// BidCross checks whether a new bid crosses the best ask and walks the ask
// book until the bid is satisfied or no eligible ask remains. Trades print
// at the resting ask's price; the aggressor's price only gates
// eligibility. A residual bid rests in the bid book.
func BidCross(bids, asks *order.Book, newBid *order.Order) *TradeResults {
	results := NewTradeResults(CDA)
	for {
		if !order.GreaterEqE(newBid.Price, asks.MinPrice()) {
			// No cross: the bid rests.
			bids.Add(newBid)
			return results
		}
		bestAsk := asks.PopBest()
		if bestAsk == nil {
			// Ask book emptied before the bid was satisfied.
			bids.Add(newBid)
			return results
		}
		switch {
		case order.LessE(newBid.Quantity, bestAsk.Quantity):
			// Bid fully satisfied; the ask keeps the remainder.
			bestAsk.Quantity -= newBid.Quantity
			results.Updates = append(results.Updates, PlayerUpdate{
				PayerID:          newBid.TraderID,
				VolFillerID:      bestAsk.TraderID,
				PayerOrderID:     newBid.OrderID,
				VolFillerOrderID: bestAsk.OrderID,
				Price:            bestAsk.Price,
				Volume:           newBid.Quantity,
			})
			asks.PushBest(bestAsk)
			return results
		case order.GreaterE(newBid.Quantity, bestAsk.Quantity):
			// Ask cleared; keep walking with the residual bid.
			newBid.Quantity -= bestAsk.Quantity
			results.Updates = append(results.Updates, PlayerUpdate{
				PayerID:          newBid.TraderID,
				VolFillerID:      bestAsk.TraderID,
				PayerOrderID:     newBid.OrderID,
				VolFillerOrderID: bestAsk.OrderID,
				Price:            bestAsk.Price,
				Volume:           bestAsk.Quantity,
			})
			asks.RefreshBest()
		default:
			// Exact fill clears both sides.
			results.Updates = append(results.Updates, PlayerUpdate{
				PayerID:          newBid.TraderID,
				VolFillerID:      bestAsk.TraderID,
				PayerOrderID:     newBid.OrderID,
				VolFillerOrderID: bestAsk.OrderID,
				Price:            bestAsk.Price,
				Volume:           newBid.Quantity,
			})
			asks.RefreshBest()
			return results
		}
	}
}

// AskCross is the mirror image of BidCross: a new ask walks the bid book,
// trading at each resting bid's price.
func AskCross(bids, asks *order.Book, newAsk *order.Order) *TradeResults {
	results := NewTradeResults(CDA)
	for {
		if !order.LessEqE(newAsk.Price, bids.MaxPrice()) {
			asks.Add(newAsk)
			return results
		}
		bestBid := bids.PopBest()
		if bestBid == nil {
			asks.Add(newAsk)
			return results
		}
		switch {
		case order.LessE(newAsk.Quantity, bestBid.Quantity):
			bestBid.Quantity -= newAsk.Quantity
			results.Updates = append(results.Updates, PlayerUpdate{
				PayerID:          bestBid.TraderID,
				VolFillerID:      newAsk.TraderID,
				PayerOrderID:     bestBid.OrderID,
				VolFillerOrderID: newAsk.OrderID,
				Price:            bestBid.Price,
				Volume:           newAsk.Quantity,
			})
			bids.PushBest(bestBid)
			return results
		case order.GreaterE(newAsk.Quantity, bestBid.Quantity):
			newAsk.Quantity -= bestBid.Quantity
			results.Updates = append(results.Updates, PlayerUpdate{
				PayerID:          bestBid.TraderID,
				VolFillerID:      newAsk.TraderID,
				PayerOrderID:     bestBid.OrderID,
				VolFillerOrderID: newAsk.OrderID,
				Price:            bestBid.Price,
				Volume:           bestBid.Quantity,
			})
			bids.RefreshBest()
		default:
			results.Updates = append(results.Updates, PlayerUpdate{
				PayerID:          bestBid.TraderID,
				VolFillerID:      newAsk.TraderID,
				PayerOrderID:     bestBid.OrderID,
				VolFillerOrderID: newAsk.OrderID,
				Price:            bestBid.Price,
				Volume:           newAsk.Quantity,
			})
			bids.RefreshBest()
			return results
		}
	}
}
