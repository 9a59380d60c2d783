package players

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"blocksim/pkg/blockchain/mempool"
	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
)

// ErrEmptyFrame is returned by the front-run strategies when the frame has
// nothing worth copying.
var ErrEmptyFrame = errors.New("no orders in the frame to front-run")

// BookSink receives the order-book trace rows a published frame produces.
// The CSV sinks implement it; a nil sink disables the trace.
type BookSink interface {
	CDARow(o *order.Order, bidsAfter, asksAfter string)
	BatchRow(blockNum uint64, side, clearingPrice, before, after string)
}

// Miner drains the mempool into gas-prioritized frames, publishes them
// against the books, and may insert one order of its own at the head of a
// frame to trade ahead of the flow it carries.
type Miner struct {
	trader
	Frame []*order.Order

	rng    *rand.Rand
	logger *zap.Logger
	sink   BookSink
}

func NewMiner(id string, rng *rand.Rand, logger *zap.Logger) *Miner {
	return &Miner{
		trader: trader{id: id, ptype: TraderMiner},
		rng:    rng,
		logger: logger,
	}
}

// SetSink attaches the order-book trace sink.
func (m *Miner) SetSink(s BookSink) { m.sink = s }

// MakeFrame sorts the pool by descending gas and takes up to blockSize
// orders as the next frame. An empty pool leaves the previous (already
// published, hence empty) frame alone.
func (m *Miner) MakeFrame(pool *mempool.Mempool, blockSize int) {
	size := pool.Len()
	if size == 0 {
		m.logger.Debug("no orders to grab from mempool")
		return
	}
	pool.SortByGas()
	if size <= blockSize {
		m.Frame = pool.PopAll()
	} else {
		m.Frame = pool.PopN(blockSize)
	}
}

// PublishFrame applies the frame to the books strictly in sequence, with
// Enters crossing inline under CDA, then runs the end-of-block batch
// auction for FBA/KLF. The frame is consumed. blockNum labels the batch
// trace rows.
func (m *Miner) PublishFrame(bids, asks *order.Book, mt auction.MarketType, blockNum uint64) []*auction.TradeResults {
	var results []*auction.TradeResults
	for _, o := range m.Frame {
		switch o.OrderType {
		case order.Enter:
			traced := *o
			if r := processEnter(bids, asks, o, mt); r != nil {
				results = append(results, r)
			}
			if m.sink != nil && mt == auction.CDA {
				m.sink.CDARow(&traced, RenderBook(bids.CopyOrders()), RenderBook(asks.CopyOrders()))
			}
		case order.Update:
			if r := processUpdate(bids, asks, o, mt, m.logger); r != nil {
				results = append(results, r)
			}
		case order.Cancel:
			processCancel(bids, asks, o, m.logger)
		}
	}
	m.Frame = nil

	if mt == auction.CDA {
		return results
	}

	var bidsBefore, asksBefore string
	if m.sink != nil {
		bidsBefore = RenderBook(bids.CopyOrders())
		asksBefore = RenderBook(asks.CopyOrders())
	}
	if r := auction.Run(bids, asks, mt); r != nil {
		results = append(results, r)
		if m.sink != nil {
			cp := "None"
			if r.UniformPrice != nil {
				cp = fmt.Sprintf("%g", *r.UniformPrice)
			}
			m.sink.BatchRow(blockNum, order.Bid.String(), cp, bidsBefore, RenderBook(bids.CopyOrders()))
			m.sink.BatchRow(blockNum, order.Ask.String(), cp, asksBefore, RenderBook(asks.CopyOrders()))
		}
	}
	return results
}

// RenderBook flattens a book snapshot into the semicolon-separated form the
// trace files embed, best order last.
func RenderBook(orders []order.Order) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := range orders {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%d@%g x%g", orders[i].OrderID, orders[i].Price, orders[i].Quantity)
	}
	b.WriteByte(']')
	return b.String()
}

// processEnter routes a new order. Batch markets only rest it; CDA checks
// for an inline cross when the order improves its own side's best.
func processEnter(bids, asks *order.Book, o *order.Order, mt auction.MarketType) *auction.TradeResults {
	if mt != auction.CDA {
		if o.TradeType == order.Ask {
			asks.Add(o)
		} else {
			bids.Add(o)
		}
		return nil
	}
	if o.TradeType == order.Ask {
		if o.Price < asks.MinPrice() {
			return auction.AskCross(bids, asks, o)
		}
		asks.Add(o)
		return nil
	}
	if o.Price > bids.MaxPrice() {
		return auction.BidCross(bids, asks, o)
	}
	bids.Add(o)
	return nil
}

// processUpdate cancels the previous version, then treats the order as a
// fresh Enter.
func processUpdate(bids, asks *order.Book, o *order.Order, mt auction.MarketType, logger *zap.Logger) *auction.TradeResults {
	book := bids
	if o.TradeType == order.Ask {
		book = asks
	}
	if err := book.Cancel(o.OrderID); err != nil {
		logger.Debug("update for unknown order, entering as new",
			zap.Uint64("order_id", o.OrderID))
	}
	return processEnter(bids, asks, o, mt)
}

// processCancel removes the referenced order; cancelling twice is
// idempotent and the miss is only logged.
func processCancel(bids, asks *order.Book, o *order.Order, logger *zap.Logger) {
	book := bids
	if o.TradeType == order.Ask {
		book = asks
	}
	if err := book.Cancel(o.OrderID); err != nil {
		logger.Debug("cancel for unknown order",
			zap.Uint64("order_id", o.OrderID),
			zap.String("trader", o.TraderID))
		return
	}
	logger.Debug("cancelled order",
		zap.Uint64("order_id", o.OrderID),
		zap.String("trader", o.TraderID))
}

// CollectGas computes the per-trader gas debits for the current frame and
// their sum, which the clearing house credits to the miner.
func (m *Miner) CollectGas() ([]GasFee, float64) {
	fees := make([]GasFee, 0, len(m.Frame))
	var total float64
	for _, o := range m.Frame {
		total += o.Gas
		fees = append(fees, GasFee{TraderID: o.TraderID, Amount: o.Gas})
	}
	return fees, total
}

// StrategicFrontRun picks the highest-priced bid and lowest-priced ask in
// the frame, estimates the profit of trading ahead of each against the
// current book best prices, and, unless both are losing, clones the better
// one into slot 0 with the miner's id, zero gas, and a fresh order id.
func (m *Miner) StrategicFrontRun(bestBidPrice, bestAskPrice float64) (*order.Order, error) {
	if len(m.Frame) == 0 {
		return nil, ErrEmptyFrame
	}

	var bestBid, bestAsk *order.Order
	for _, o := range m.Frame {
		switch o.TradeType {
		case order.Bid:
			if bestBid == nil || o.Price > bestBid.Price {
				bestBid = o
			}
		case order.Ask:
			if bestAsk == nil || o.Price < bestAsk.Price {
				bestAsk = o
			}
		}
	}

	var chosen *order.Order
	switch {
	case bestBid == nil && bestAsk == nil:
		return nil, ErrEmptyFrame
	case bestAsk == nil:
		chosen = bestBid
	case bestBid == nil:
		chosen = bestAsk
	default:
		bidProfit := bestAskPrice - bestBid.Price
		askProfit := bestAsk.Price - bestBidPrice
		switch {
		case bidProfit < 0 && askProfit < 0:
			return nil, errors.New("no orders in the frame good enough to front-run")
		case askProfit < 0:
			chosen = bestBid
		case bidProfit < 0:
			chosen = bestAsk
		case bidProfit >= askProfit:
			// Both profitable: take the larger opportunity.
			chosen = bestBid
		default:
			chosen = bestAsk
		}
	}

	return m.insertFrontRun(chosen), nil
}

// RandomFrontRun clones an arbitrary frame order instead of the best one.
func (m *Miner) RandomFrontRun() (*order.Order, error) {
	if len(m.Frame) == 0 {
		return nil, ErrEmptyFrame
	}
	return m.insertFrontRun(m.Frame[m.rng.Intn(len(m.Frame))]), nil
}

// insertFrontRun copies the target under the miner's identity and places it
// at the head of the frame so it matches before anything else in the
// block.
func (m *Miner) insertFrontRun(target *order.Order) *order.Order {
	cp := target.Clone()
	cp.TraderID = m.id
	cp.Gas = 0
	cp.OrderID = order.NextID()
	m.Frame = append([]*order.Order{cp}, m.Frame...)
	return cp
}
