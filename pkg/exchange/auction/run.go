package auction

import "blocksim/pkg/exchange/order"

// Run dispatches the end-of-block batch auction for the market. CDA clears
// incrementally as orders arrive, so it has no batch step and returns nil.
func Run(bids, asks *order.Book, mt MarketType) *TradeResults {
	switch mt {
	case FBA:
		return FrequentBatchAuction(bids, asks)
	case KLF:
		return FlowCross(bids, asks)
	default:
		return nil
	}
}
