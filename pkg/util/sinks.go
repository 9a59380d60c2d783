package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"blocksim/pkg/exchange/order"
)

// Sinks owns the per-experiment CSV log files: the order-book trace, the
// player-data trace, the mempool trace, and the shared results.csv. Built
// once in main and handed to tasks. A disabled sink drops every row, which
// is how the CLI's "n" flag routes logging to the null sink.
type Sinks struct {
	enabled bool
	epoch   time.Time

	mu        sync.Mutex
	orderBook *os.File
	player    *os.File
	memPool   *os.File
	results   *os.File
}

// NewSinks opens (appending) the experiment logs under dir using the run
// name. When enabled is false no files are touched.
func NewSinks(dir, name string, enabled bool) (*Sinks, error) {
	s := &Sinks{enabled: enabled, epoch: time.Now()}
	if !enabled {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	open := func(file string) (*os.File, error) {
		return os.OpenFile(filepath.Join(dir, file), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
	var err error
	if s.orderBook, err = open(fmt.Sprintf("order_books_%s.csv", name)); err != nil {
		return nil, err
	}
	if s.player, err = open(fmt.Sprintf("player_data_%s.csv", name)); err != nil {
		s.Close()
		return nil, err
	}
	if s.memPool, err = open(fmt.Sprintf("mempool_data_%s.csv", name)); err != nil {
		s.Close()
		return nil, err
	}
	// results.csv accumulates one summary row per run across experiments.
	if s.results, err = open("results.csv"); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sinks) now() time.Duration {
	return time.Since(s.epoch)
}

func (s *Sinks) writeLine(f *os.File, line string) {
	if !s.enabled || f == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = f.WriteString(line + "\n")
}

// WriteHeaders emits each file's header. The order-book header depends on
// whether the market clears continuously or in batches.
func (s *Sinks) WriteHeaders(batchMarket bool) {
	if batchMarket {
		s.writeLine(s.orderBook, "time,block_num,book_type,clearing_price,book_before,book_after")
	} else {
		s.writeLine(s.orderBook, "time,trader_id,order_id,order_type,trade_type,ex_type,p_low,p_high,price,quantity,gas,bids_after,asks_after")
	}
	s.writeLine(s.player, "time,reason,trader_id,player_type,balance,inventory,orders")
	s.writeLine(s.memPool, "time,trader_id,order_id,order_type,trade_type,ex_type,p_low,p_high,price,quantity,gas")
}

// OrderBookRow appends a pre-rendered order-book trace row.
func (s *Sinks) OrderBookRow(fields ...string) {
	s.writeLine(s.orderBook, joinCSV(fields))
}

// PlayerRow appends one player mutation. Implements clearing.PlayerSink.
func (s *Sinks) PlayerRow(reason, traderID, playerType string, balance, inventory float64, orders int) {
	s.writeLine(s.player, joinCSV([]string{
		s.now().String(),
		reason,
		traderID,
		playerType,
		strconv.FormatFloat(balance, 'g', -1, 64),
		strconv.FormatFloat(inventory, 'g', -1, 64),
		strconv.Itoa(orders),
	}))
}

// MempoolRow appends one order submission.
func (s *Sinks) MempoolRow(o *order.Order) {
	s.writeLine(s.memPool, joinCSV([]string{
		s.now().String(),
		o.TraderID,
		strconv.FormatUint(o.OrderID, 10),
		o.OrderType.String(),
		o.TradeType.String(),
		o.ExType.String(),
		strconv.FormatFloat(o.PLow, 'g', -1, 64),
		strconv.FormatFloat(o.PHigh, 'g', -1, 64),
		strconv.FormatFloat(o.Price, 'g', -1, 64),
		strconv.FormatFloat(o.Quantity, 'g', -1, 64),
		strconv.FormatFloat(o.Gas, 'g', -1, 64),
	}))
}

// CDARow appends one continuous-market trace row: the processed order and
// both books after it landed.
func (s *Sinks) CDARow(o *order.Order, bidsAfter, asksAfter string) {
	s.writeLine(s.orderBook, joinCSV([]string{
		s.now().String(),
		OrderCSV(o),
		bidsAfter,
		asksAfter,
	}))
}

// BatchRow appends one batch-market trace row: a book's state around the
// block's auction.
func (s *Sinks) BatchRow(blockNum uint64, side, clearingPrice, before, after string) {
	s.writeLine(s.orderBook, joinCSV([]string{
		s.now().String(),
		strconv.FormatUint(blockNum, 10),
		side,
		clearingPrice,
		before,
		after,
	}))
}

// ResultsRow appends one summary row to the shared results file.
func (s *Sinks) ResultsRow(fields ...string) {
	s.writeLine(s.results, joinCSV(fields))
}

// OrderCSV renders an order the way the trace files embed it.
func OrderCSV(o *order.Order) string {
	return fmt.Sprintf("%s,%d,%s,%s,%s,%g,%g,%g,%g,%g",
		o.TraderID, o.OrderID, o.OrderType, o.TradeType, o.ExType,
		o.PLow, o.PHigh, o.Price, o.Quantity, o.Gas)
}

func joinCSV(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}

// Close flushes and closes every open file.
func (s *Sinks) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range []*os.File{s.orderBook, s.player, s.memPool, s.results} {
		if f != nil {
			_ = f.Close()
		}
	}
	s.orderBook, s.player, s.memPool, s.results = nil, nil, nil, nil
}
