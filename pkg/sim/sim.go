// Package sim wires the components together and drives the run: an
// investor thread feeding the mempool, a periodic maker task quoting off
// the history, and a periodic miner task publishing blocks, all sharing
// the mempool, books, clearing house, and history by handle.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blocksim/pkg/blockchain"
	"blocksim/pkg/blockchain/mempool"
	"blocksim/pkg/exchange/clearing"
	"blocksim/pkg/exchange/order"
	"blocksim/pkg/history"
	"blocksim/pkg/players"
	"blocksim/pkg/storage"
	"blocksim/pkg/util"
	"blocksim/params"
)

// BlockNum is the shared block counter every task polls to detect the end
// of the run.
type BlockNum struct {
	mu sync.Mutex
	n  uint64
}

func (b *BlockNum) Inc() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
}

func (b *BlockNum) Get() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Simulation owns the shared state handles for one run.
type Simulation struct {
	Dists   *params.Distributions
	Consts  *params.Constants
	Runtime params.Runtime

	House   *clearing.House
	Pool    *mempool.Mempool
	Bids    *order.Book
	Asks    *order.Book
	Hist    *history.History
	Block   *BlockNum
	Sinks   *util.Sinks
	Archive *storage.Archive // nil when archiving is disabled
	Clock   util.Clock

	logger *zap.Logger

	// Starting balance/inventory per player, for welfare accounting.
	initial map[string][2]float64
}

// Init builds the run state: clearing house, books, mempool, history, and
// the registered player population. Returns the miner the driver hands to
// the miner task.
func Init(dists *params.Distributions, consts *params.Constants, rt params.Runtime,
	sinks *util.Sinks, archive *storage.Archive, logger *zap.Logger) (*Simulation, *players.Miner) {

	house := clearing.NewHouse(logger.Named("house"))
	house.SetSink(sinks)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	miner := players.NewMiner(players.GenTraderID(players.TraderMiner, rng), rng, logger.Named("miner"))
	miner.SetSink(sinks)
	house.Register(miner)

	for _, inv := range players.SetupInvestors(dists, consts, rng) {
		house.Register(inv)
	}
	for _, mkr := range players.SetupMakers(dists, consts, rng) {
		house.Register(mkr)
	}

	s := &Simulation{
		Dists:   dists,
		Consts:  consts,
		Runtime: rt,
		House:   house,
		Pool:    mempool.New(),
		Bids:    order.NewBook(order.Bid),
		Asks:    order.NewBook(order.Ask),
		Hist:    history.New(consts.MarketType),
		Block:   &BlockNum{},
		Sinks:   sinks,
		Archive: archive,
		Clock:   util.RealClock{},
		logger:  logger,
		initial: make(map[string][2]float64),
	}

	house.LogAllPlayers(clearing.Initial)
	for _, ps := range house.Snapshot() {
		s.initial[ps.ID] = [2]float64{ps.Balance, ps.Inventory}
	}
	return s, miner
}

// Run drives the three tasks until the block counter reaches NumBlocks.
// In-flight ticks finish before the run returns.
func (s *Simulation) Run(miner *players.Miner) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		s.investorLoop(ctx)
		// Investors exhaust the run; stop the periodic tasks.
		cancel()
		return nil
	})
	g.Go(func() error {
		s.makerLoop(ctx)
		return nil
	})
	g.Go(func() error {
		s.minerLoop(ctx, miner)
		return nil
	})
	return g.Wait()
}

func (s *Simulation) done() bool {
	return s.Block.Get() >= s.Consts.NumBlocks
}

// sleep waits d or until the context ends; reports false when interrupted.
func (s *Simulation) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.Clock.After(d):
		return true
	}
}

// investorLoop picks a random investor with no live order, submits one
// sampled order for it, and sleeps an InvestorEnter draw. It exits once
// the block counter reaches the configured run length.
func (s *Simulation) investorLoop(ctx context.Context) {
	for !s.done() {
		if id, ok := s.House.RandPlayerID(players.TraderInvestor); ok {
			// One outstanding order per investor at a time.
			if s.House.OrderCount(id) == 0 {
				if o, ok := s.House.InvestorGenerate(id, s.Dists, s.Consts); ok {
					s.submit(o)
				}
			}
		}
		delay := math.Abs(s.Dists.Sample(params.InvestorEnter))
		if !s.sleep(ctx, time.Duration(delay)*time.Millisecond) {
			return
		}
	}
}

// submit registers the order with the clearing house and history and hands
// it to the mempool off-thread.
func (s *Simulation) submit(o *order.Order) {
	if err := s.House.NewOrder(*o); err != nil {
		s.logger.Warn("order rejected by clearing house",
			zap.String("trader", o.TraderID), zap.Error(err))
		return
	}
	s.Hist.MempoolOrder(*o)
	<-blockchain.RecvOrder(o, s.Pool, s.Sinks)
}

// makerLoop fires every batch_interval + maker_prop_delay, skipping the
// cold-start warm-up, and quotes for each maker that passes the
// zero-open-orders and Bernoulli gates.
func (s *Simulation) makerLoop(ctx context.Context) {
	interval := time.Duration(s.Consts.BatchInterval+s.Consts.MakerPropDelay) * time.Millisecond
	tick := 0
	for {
		if !s.sleep(ctx, interval) {
			return
		}
		tick++
		if tick <= s.Runtime.MakerColdStart {
			continue
		}

		poolCopy := s.Pool.Copy()
		prior := s.Hist.DecisionData(poolCopy)
		stats := s.Hist.InferenceData()

		for _, id := range s.House.FilteredIDs(players.TraderMaker) {
			if s.House.OrderCount(id) != 0 {
				continue
			}
			if !s.Dists.WithProb(s.Consts.MakerEnterProb) {
				continue
			}
			bid, ask, ok := s.House.MakerNewOrders(id, prior, stats, s.Dists, s.Consts)
			if !ok {
				continue
			}
			s.submit(bid)
			s.submit(ask)
		}
	}
}

// minerLoop publishes the current frame each batch interval, settles its
// results and gas, snapshots the books, then builds the next frame,
// possibly inserting a front-run order at its head.
func (s *Simulation) minerLoop(ctx context.Context, miner *players.Miner) {
	interval := time.Duration(s.Consts.BatchInterval) * time.Millisecond
	for {
		if !s.sleep(ctx, interval) {
			return
		}

		blockNum := s.Block.Get()
		frameCopy := copyFrame(miner.Frame)
		fees, totalGas := miner.CollectGas()
		results := miner.PublishFrame(s.Bids, s.Asks, s.Consts.MarketType, blockNum)

		s.Hist.CloneBookState(s.Bids.CopyOrders(), order.Bid, blockNum)
		s.Hist.CloneBookState(s.Asks.CopyOrders(), order.Ask, blockNum)
		s.Block.Inc()

		for _, r := range results {
			s.Hist.SaveResults(*r)
			s.House.UpdateHouse(r)
		}
		s.House.ApplyGasFees(fees, totalGas, miner.ID())
		s.House.TaxMakers(s.Consts.MakerInvTax)

		if s.Archive != nil {
			rec := storage.BlockRecord{BlockNum: blockNum, Frame: frameCopy}
			for _, r := range results {
				rec.Results = append(rec.Results, *r)
			}
			if err := s.Archive.SaveBlock(rec); err != nil {
				s.logger.Warn("archive block", zap.Uint64("block", blockNum), zap.Error(err))
			}
		}

		// Simulated propagation across competing miners.
		frameDelay := math.Abs(s.Dists.Sample(params.MinerFrameForm))
		if !s.sleep(ctx, time.Duration(frameDelay)*time.Millisecond) {
			return
		}

		miner.MakeFrame(s.Pool, s.Consts.BlockSize)

		if s.Dists.Sample(params.MinerFrontRun) <= s.Consts.FrontRunPerc {
			bestBid, bestAsk := s.Hist.BestPrices()
			if o, err := miner.StrategicFrontRun(bestBid, bestAsk); err == nil {
				s.logger.Info("miner inserted front-run order",
					zap.Uint64("order_id", o.OrderID),
					zap.Float64("price", o.Price))
				s.Hist.MempoolOrder(*o)
				if s.Sinks != nil {
					s.Sinks.MempoolRow(o)
				}
				if err := s.House.NewOrder(*o); err != nil {
					s.logger.Warn("front-run order rejected", zap.Error(err))
				}
			}
		}
	}
}

func copyFrame(frame []*order.Order) []order.Order {
	out := make([]order.Order, len(frame))
	for i, o := range frame {
		out[i] = *o
	}
	return out
}
