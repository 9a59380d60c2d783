// Package clearing owns every player record for the life of a simulation
// and applies trade results, gas fees, and taxes to them atomically under
// one lock.
package clearing

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
	"blocksim/pkg/history"
	"blocksim/pkg/players"
	"blocksim/params"
)

// ErrUnknownTrader is returned when an operation references a trader id the
// house has never registered.
var ErrUnknownTrader = errors.New("unknown trader")

// Reason tags a player-data log row with why the balance/inventory moved.
type Reason int

const (
	Initial Reason = iota
	Transact
	Gas
	Tax
	Liquidate
	Final
)

func (r Reason) String() string {
	switch r {
	case Initial:
		return "Initial"
	case Transact:
		return "Transact"
	case Gas:
		return "Gas"
	case Tax:
		return "Tax"
	case Liquidate:
		return "Liquidate"
	case Final:
		return "Final"
	default:
		return "unknown"
	}
}

// PlayerSink receives one row per logged player mutation. The CSV sinks
// implement it; a nil sink disables the rows.
type PlayerSink interface {
	PlayerRow(reason, traderID, playerType string, balance, inventory float64, orders int)
}

// PlayerState is the read-only copy the house hands out.
type PlayerState struct {
	ID        string
	Type      players.TraderType
	Balance   float64
	Inventory float64
	Orders    int
}

// House maps trader ids to players and keeps the per-block gas ledger and
// the cumulative maker-tax counter.
type House struct {
	mu      sync.Mutex
	players map[string]players.Player
	gasFees []float64
	taxPaid float64
	rng     *rand.Rand
	sink    PlayerSink
	logger  *zap.Logger
}

func NewHouse(logger *zap.Logger) *House {
	return &House{
		players: make(map[string]players.Player),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}
}

// SetSink attaches the player-data log sink.
func (h *House) SetSink(s PlayerSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = s
}

// Register adds a player; an existing id is left in place.
func (h *House) Register(p players.Player) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.players[p.ID()]; !ok {
		h.players[p.ID()] = p
	}
}

// RegisterAll registers a batch under one lock acquisition.
func (h *House) RegisterAll(ps ...players.Player) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range ps {
		if _, ok := h.players[p.ID()]; !ok {
			h.players[p.ID()] = p
		}
	}
}

func (h *House) logPlayerLocked(reason Reason, p players.Player) {
	if h.sink == nil {
		return
	}
	h.sink.PlayerRow(reason.String(), p.ID(), p.Type().String(), p.Balance(), p.Inventory(), p.NumOrders())
}

// UpdateBalance adds to the player's balance and returns the new value.
func (h *House) UpdateBalance(id string, delta float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return 0, ErrUnknownTrader
	}
	p.UpdateBalance(delta)
	return p.Balance(), nil
}

// UpdateInventory adds to the player's inventory and returns the new value.
func (h *House) UpdateInventory(id string, delta float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return 0, ErrUnknownTrader
	}
	p.UpdateInventory(delta)
	return p.Inventory(), nil
}

// UpdatePlayer applies a balance and inventory change together and logs the
// row.
func (h *House) UpdatePlayer(id string, dBal, dInv float64, reason Reason) (float64, float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updatePlayerLocked(id, dBal, dInv, reason)
}

func (h *House) updatePlayerLocked(id string, dBal, dInv float64, reason Reason) (float64, float64, error) {
	p, ok := h.players[id]
	if !ok {
		return 0, 0, ErrUnknownTrader
	}
	p.UpdateInventory(dInv)
	p.UpdateBalance(dBal)
	h.logPlayerLocked(reason, p)
	return p.Balance(), p.Inventory(), nil
}

// UpdateHouse applies a trade result, dispatching on the auction type.
func (h *House) UpdateHouse(r *auction.TradeResults) {
	switch r.AuctionType {
	case auction.CDA:
		h.cdaCrossUpdate(r)
	case auction.FBA:
		h.fbaBatchUpdate(r)
	case auction.KLF:
		h.flowBatchUpdate(r)
	}
}

// cdaCrossUpdate settles incremental crosses. The books already mutated the
// resting orders in-line, so the players' order-volume ledgers are left
// alone here.
func (h *House) cdaCrossUpdate(r *auction.TradeResults) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pu := range r.Updates {
		if pu.Volume == 0 {
			continue
		}
		payment := pu.Price * pu.Volume
		if _, _, err := h.updatePlayerLocked(pu.PayerID, -payment, pu.Volume, Transact); err != nil {
			h.logger.Error("cda settle bidder", zap.String("trader", pu.PayerID), zap.Error(err))
		}
		if _, _, err := h.updatePlayerLocked(pu.VolFillerID, payment, -pu.Volume, Transact); err != nil {
			h.logger.Error("cda settle asker", zap.String("trader", pu.VolFillerID), zap.Error(err))
		}
	}
}

// fbaBatchUpdate settles the uniform-price batch and reconciles each side's
// order-volume ledger, which the batch step does not touch.
func (h *House) fbaBatchUpdate(r *auction.TradeResults) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pu := range r.Updates {
		if pu.Volume == 0 {
			continue
		}
		payment := pu.Price * pu.Volume
		if _, _, err := h.updatePlayerLocked(pu.PayerID, -payment, pu.Volume, Transact); err != nil {
			h.logger.Error("fba settle bidder", zap.String("trader", pu.PayerID), zap.Error(err))
		}
		if err := h.updateOrderVolLocked(pu.PayerID, pu.PayerOrderID, -pu.Volume); err != nil {
			h.logger.Warn("fba bidder ledger", zap.String("trader", pu.PayerID), zap.Error(err))
		}
		if _, _, err := h.updatePlayerLocked(pu.VolFillerID, payment, -pu.Volume, Transact); err != nil {
			h.logger.Error("fba settle asker", zap.String("trader", pu.VolFillerID), zap.Error(err))
		}
		if err := h.updateOrderVolLocked(pu.VolFillerID, pu.VolFillerOrderID, -pu.Volume); err != nil {
			h.logger.Warn("fba asker ledger", zap.String("trader", pu.VolFillerID), zap.Error(err))
		}
	}
}

// flowBatchUpdate settles KLF fills, where each update names one real
// trader and the exchange sentinel on the other side.
func (h *House) flowBatchUpdate(r *auction.TradeResults) {
	if r.UniformPrice == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pu := range r.Updates {
		if pu.Volume == 0 {
			continue
		}
		payment := pu.Price * pu.Volume
		if pu.PayerID == auction.ExchangeID {
			// Ask side: seller receives payment, sheds inventory.
			if _, _, err := h.updatePlayerLocked(pu.VolFillerID, payment, -pu.Volume, Transact); err != nil {
				h.logger.Error("klf settle asker", zap.String("trader", pu.VolFillerID), zap.Error(err))
			}
			if err := h.updateOrderVolLocked(pu.VolFillerID, pu.VolFillerOrderID, -pu.Volume); err != nil {
				h.logger.Warn("klf asker ledger", zap.String("trader", pu.VolFillerID), zap.Error(err))
			}
		} else {
			if _, _, err := h.updatePlayerLocked(pu.PayerID, -payment, pu.Volume, Transact); err != nil {
				h.logger.Error("klf settle bidder", zap.String("trader", pu.PayerID), zap.Error(err))
			}
			if err := h.updateOrderVolLocked(pu.PayerID, pu.PayerOrderID, -pu.Volume); err != nil {
				h.logger.Warn("klf bidder ledger", zap.String("trader", pu.PayerID), zap.Error(err))
			}
		}
	}
}

// NewOrder registers an order with its owner's open-order set.
func (h *House) NewOrder(o order.Order) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[o.TraderID]
	if !ok {
		return ErrUnknownTrader
	}
	p.AddOrder(o)
	return nil
}

// NewOrders registers a batch under one lock acquisition.
func (h *House) NewOrders(orders ...order.Order) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range orders {
		p, ok := h.players[o.TraderID]
		if !ok {
			return ErrUnknownTrader
		}
		p.AddOrder(o)
	}
	return nil
}

// UpdateOrder replaces the owner's copy of the order; a missing original is
// not an error, the new version is registered regardless.
func (h *House) UpdateOrder(o order.Order) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[o.TraderID]
	if !ok {
		return ErrUnknownTrader
	}
	_ = p.CancelOrder(o.OrderID)
	p.AddOrder(o)
	return nil
}

func (h *House) updateOrderVolLocked(id string, orderID uint64, delta float64) error {
	p, ok := h.players[id]
	if !ok {
		return ErrUnknownTrader
	}
	return p.UpdateOrderVolume(orderID, delta)
}

// UpdateOrderVol adjusts the owner's view of an order's remaining volume.
func (h *House) UpdateOrderVol(id string, orderID uint64, delta float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updateOrderVolLocked(id, orderID, delta)
}

// CancelOrder drops an order from the owner's open-order set.
func (h *House) CancelOrder(id string, orderID uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return ErrUnknownTrader
	}
	return p.CancelOrder(orderID)
}

// ApplyGasFees debits each listed trader (unknown ids are skipped) and
// credits the miner with the total, recording the block's total in the gas
// ledger.
func (h *House) ApplyGasFees(fees []players.GasFee, total float64, minerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gasFees = append(h.gasFees, total)
	for _, fee := range fees {
		p, ok := h.players[fee.TraderID]
		if !ok {
			continue
		}
		p.UpdateBalance(-fee.Amount)
		h.logPlayerLocked(Gas, p)
	}
	if miner, ok := h.players[minerID]; ok {
		miner.UpdateBalance(total)
		h.logPlayerLocked(Gas, miner)
	}
}

// TaxMakers charges every maker a fraction of its absolute inventory and
// accumulates the total collected.
func (h *House) TaxMakers(rate float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.players {
		if p.Type() != players.TraderMaker {
			continue
		}
		tax := p.Inventory() * rate
		if tax < 0 {
			tax = -tax
		}
		p.UpdateBalance(-tax)
		h.taxPaid += tax
		h.logPlayerLocked(Tax, p)
	}
}

// Liquidate closes every non-zero inventory at the supplied fundamental
// value.
func (h *House) Liquidate(fundVal float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.players {
		inv := p.Inventory()
		if inv == 0 {
			continue
		}
		p.UpdateBalance(inv * fundVal)
		p.UpdateInventory(-inv)
		h.logPlayerLocked(Liquidate, p)
	}
}

// MakerNewOrders asks the identified maker for this tick's quote pair.
func (h *House) MakerNewOrders(id string, prior *history.PriorData, stats *history.LikelihoodStats,
	dists *params.Distributions, consts *params.Constants) (*order.Order, *order.Order, bool) {
	h.mu.Lock()
	p, ok := h.players[id]
	h.mu.Unlock()
	if !ok {
		h.logger.Warn("maker quote for unknown trader", zap.String("trader", id))
		return nil, nil, false
	}
	maker, ok := p.(*players.Maker)
	if !ok {
		h.logger.Warn("maker quote for non-maker", zap.String("trader", id))
		return nil, nil, false
	}
	return maker.NewOrders(prior, stats, dists, consts)
}

// InvestorGenerate asks the identified investor for its next sampled order.
func (h *House) InvestorGenerate(id string, dists *params.Distributions, consts *params.Constants) (*order.Order, bool) {
	h.mu.Lock()
	p, ok := h.players[id]
	h.mu.Unlock()
	if !ok {
		h.logger.Warn("order generation for unknown trader", zap.String("trader", id))
		return nil, false
	}
	inv, ok := p.(*players.Investor)
	if !ok {
		h.logger.Warn("order generation for non-investor", zap.String("trader", id))
		return nil, false
	}
	return inv.GenerateOrder(dists, consts), true
}

// OrderCount returns how many orders the player believes are live.
func (h *House) OrderCount(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return 0
	}
	return p.NumOrders()
}

// RandPlayerID returns a uniformly chosen id of the given role.
func (h *House) RandPlayerID(tt players.TraderType) (string, bool) {
	ids := h.FilteredIDs(tt)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// FilteredIDs returns the ids of the given role in shuffled order.
func (h *House) FilteredIDs(tt players.TraderType) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for id, p := range h.players {
		if p.Type() == tt {
			ids = append(ids, id)
		}
	}
	h.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids
}

func (h *House) NumPlayers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.players)
}

// OrdersInHouse sums open orders across all players.
func (h *House) OrdersInHouse() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sum := 0
	for _, p := range h.players {
		sum += p.NumOrders()
	}
	return sum
}

// GasLedger copies the per-block gas totals.
func (h *House) GasLedger() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.gasFees))
	copy(out, h.gasFees)
	return out
}

// TotalGas sums the gas ledger.
func (h *House) TotalGas() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sum float64
	for _, g := range h.gasFees {
		sum += g
	}
	return sum
}

// MakerTaxPaid returns the cumulative inventory tax collected.
func (h *House) MakerTaxPaid() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.taxPaid
}

// Snapshot copies every player's observable state.
func (h *House) Snapshot() []PlayerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PlayerState, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, PlayerState{
			ID:        p.ID(),
			Type:      p.Type(),
			Balance:   p.Balance(),
			Inventory: p.Inventory(),
			Orders:    p.NumOrders(),
		})
	}
	return out
}

// LogAllPlayers writes one player-data row per registered player.
func (h *House) LogAllPlayers(reason Reason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.players {
		h.logPlayerLocked(reason, p)
	}
}
