// Package blockchain carries orders from agents into the mempool.
package blockchain

import (
	"blocksim/pkg/blockchain/mempool"
	"blocksim/pkg/exchange/order"
	"blocksim/pkg/util"
)

// RecvOrder hands the order to the mempool on its own goroutine so the
// submit path can be awaited without blocking the agent loop, and traces
// the submission to the mempool log. The returned channel closes once the
// order is in the pool.
func RecvOrder(o *order.Order, pool *mempool.Mempool, sinks *util.Sinks) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if sinks != nil {
			sinks.MempoolRow(o)
		}
		pool.Add(o)
	}()
	return done
}
