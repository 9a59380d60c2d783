package players

import (
	"math"
	"math/rand"
	"testing"

	"blocksim/pkg/exchange/auction"
	"blocksim/pkg/exchange/order"
	"blocksim/pkg/history"
	"blocksim/params"
)

func testConsts(mt auction.MarketType) *params.Constants {
	return &params.Constants{
		BatchInterval:    100,
		NumInvestors:     10,
		NumMakers:        3,
		BlockSize:        50,
		NumBlocks:        10,
		MarketType:       mt,
		FrontRunPerc:     0.1,
		FlowOrderOffset:  2.0,
		MakerPropDelay:   20,
		MakerBaseSpread:  1.0,
		MakerEnterProb:   0.8,
		MaxHeldInventory: 10.0,
		MakerInvTax:      0.01,
	}
}

func testDists() *params.Distributions {
	d := params.NewDistributions(map[params.DistReason]params.DistConfig{
		params.AsksCenter:     {V1: 110, V2: 120, Scalar: 1, Type: params.Uniform},
		params.BidsCenter:     {V1: 80, V2: 90, Scalar: 1, Type: params.Uniform},
		params.InvestorVolume: {V1: 1, V2: 10, Scalar: 1, Type: params.Uniform},
		params.InvestorGas:    {V1: 0, V2: 1, Scalar: 1, Type: params.Uniform},
		params.InvestorEnter:  {V1: 5, V2: 5, Scalar: 1, Type: params.Poisson},
		params.MakerBalance:   {V1: 50, V2: 100, Scalar: 1, Type: params.Uniform},
		params.MakerInventory: {V1: 0, V2: 10, Scalar: 1, Type: params.Uniform},
	})
	d.Seed(99)
	return d
}

func priorWith(wp float64, meanGas float64) (*history.PriorData, *history.LikelihoodStats) {
	prior := &history.PriorData{MeanPoolGas: meanGas}
	stats := &history.LikelihoodStats{WeightedPrice: &wp}
	return prior, stats
}

func TestSkewRatio(t *testing.T) {
	cases := []struct {
		inv, max, want float64
	}{
		{0, 10, 0.5},
		{-10, 10, 1.0},
		{10, 10, 0.0},
		{-5, 10, 0.75},
		{5, 10, 0.25},
		{-20, 10, 1.0}, // clamped
		{20, 10, 0.0},
	}
	for _, c := range cases {
		if got := skewRatio(c.inv, c.max); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("skewRatio(%g, %g) = %g, want %g", c.inv, c.max, got, c.want)
		}
	}
	// Negative inventory widens the bid side: r in [0.5, 1].
	for inv := -10.0; inv < 0; inv++ {
		r := skewRatio(inv, 10)
		if r < 0.5 || r > 1.0 {
			t.Errorf("skewRatio(%g) = %g outside [0.5, 1]", inv, r)
		}
	}
}

func TestMakerSkipsWithoutWeightedPrice(t *testing.T) {
	m := NewMaker("MKRtest", Aggressive, rand.New(rand.NewSource(1)))
	prior := &history.PriorData{}
	stats := &history.LikelihoodStats{}
	if _, _, ok := m.NewOrders(prior, stats, testDists(), testConsts(auction.CDA)); ok {
		t.Error("maker must skip when the weighted price is undefined")
	}
}

func TestMakerFlatInventorySymmetric(t *testing.T) {
	m := NewMaker("MKRtest", RiskAverse, rand.New(rand.NewSource(2)))
	prior, stats := priorWith(100, 0.4)
	consts := testConsts(auction.CDA)

	bidO, askO, ok := m.NewOrders(prior, stats, testDists(), consts)
	if !ok {
		t.Fatal("maker skipped")
	}
	// RiskAverse spread is exactly 2*base.
	spread := 2 * consts.MakerBaseSpread
	if math.Abs(bidO.Price-(100-spread/2)) > 1e-9 {
		t.Errorf("bid = %g, want %g", bidO.Price, 100-spread/2)
	}
	if math.Abs(askO.Price-(100+spread/2)) > 1e-9 {
		t.Errorf("ask = %g, want %g", askO.Price, 100+spread/2)
	}
	if bidO.Quantity != 0.5 || askO.Quantity != 0.5 {
		t.Errorf("flat quantities = %g/%g, want 0.5/0.5", bidO.Quantity, askO.Quantity)
	}
	// RiskAverse gas is the pool mean.
	if bidO.Gas != 0.4 || askO.Gas != 0.4 {
		t.Errorf("gas = %g/%g, want pool mean 0.4", bidO.Gas, askO.Gas)
	}
	if bidO.TradeType != order.Bid || askO.TradeType != order.Ask {
		t.Error("sides wrong")
	}
}

func TestMakerShortInventorySkewsBid(t *testing.T) {
	m := NewMaker("MKRtest", RiskAverse, rand.New(rand.NewSource(3)))
	m.UpdateInventory(-5) // r = 0.75
	prior, stats := priorWith(100, 0.4)
	consts := testConsts(auction.CDA)

	bidO, askO, ok := m.NewOrders(prior, stats, testDists(), consts)
	if !ok {
		t.Fatal("maker skipped")
	}
	spread := 2 * consts.MakerBaseSpread
	if math.Abs(bidO.Price-(100-0.75*spread)) > 1e-9 {
		t.Errorf("bid = %g, want %g", bidO.Price, 100-0.75*spread)
	}
	if math.Abs(askO.Price-(100+0.25*spread)) > 1e-9 {
		t.Errorf("ask = %g, want %g", askO.Price, 100+0.25*spread)
	}
	if bidO.Quantity != 0.75 || askO.Quantity != 0.25 {
		t.Errorf("quantities = %g/%g, want 0.75/0.25", bidO.Quantity, askO.Quantity)
	}
}

func TestMakerFlowBrackets(t *testing.T) {
	m := NewMaker("MKRtest", RiskAverse, rand.New(rand.NewSource(4)))
	prior, stats := priorWith(100, 0.1)
	consts := testConsts(auction.KLF)

	bidO, askO, ok := m.NewOrders(prior, stats, testDists(), consts)
	if !ok {
		t.Fatal("maker skipped")
	}
	if bidO.ExType != order.FlowOrder || askO.ExType != order.FlowOrder {
		t.Fatal("flow market must emit flow orders")
	}
	if bidO.PHigh != bidO.Price || bidO.PLow != bidO.Price-consts.FlowOrderOffset {
		t.Errorf("bid bracket = [%g, %g] around %g", bidO.PLow, bidO.PHigh, bidO.Price)
	}
	if askO.PLow != askO.Price || askO.PHigh != askO.Price+consts.FlowOrderOffset {
		t.Errorf("ask bracket = [%g, %g] around %g", askO.PLow, askO.PHigh, askO.Price)
	}
}

func TestMakerGasByKind(t *testing.T) {
	prior, stats := priorWith(100, 0.5)
	consts := testConsts(auction.CDA)

	agg := NewMaker("MKRa", Aggressive, rand.New(rand.NewSource(5)))
	bidO, _, ok := agg.NewOrders(prior, stats, testDists(), consts)
	if !ok {
		t.Fatal("maker skipped")
	}
	// Aggressive pays above the pool mean.
	if bidO.Gas <= 0.5 {
		t.Errorf("aggressive gas = %g, want > pool mean", bidO.Gas)
	}

	rnd := NewMaker("MKRr", RandomKind, rand.New(rand.NewSource(6)))
	bidR, _, ok := rnd.NewOrders(prior, stats, testDists(), consts)
	if !ok {
		t.Fatal("maker skipped")
	}
	if bidR.Gas < 0 {
		t.Errorf("random gas must be non-negative, got %g", bidR.Gas)
	}
}

func TestSetupMakersKindsAndEndowments(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	consts := testConsts(auction.CDA)
	mkrs := SetupMakers(testDists(), consts, rng)
	if len(mkrs) != int(consts.NumMakers) {
		t.Fatalf("makers = %d, want %d", len(mkrs), consts.NumMakers)
	}
	for _, m := range mkrs {
		if m.Kind < Aggressive || m.Kind >= numMakerKinds {
			t.Errorf("kind out of range: %v", m.Kind)
		}
		if m.Balance() < 50 || m.Balance() > 100 {
			t.Errorf("balance %g outside configured uniform", m.Balance())
		}
	}
}
