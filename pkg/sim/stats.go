package sim

import (
	"math"
	"strconv"

	"blocksim/pkg/players"
	"blocksim/params"
)

// RunStats is the end-of-run summary written to the shared results file.
type RunStats struct {
	FundVal         float64
	InvestorWelfare float64
	MakerWelfare    float64
	MinerWelfare    float64
	TotalGas        float64
	MakerTax        float64
	Volatility      float64
	RMSD            float64
}

// FundamentalValue is the midpoint of the configured bid and ask center
// means.
func (s *Simulation) FundamentalValue() float64 {
	meanBids, _ := s.Dists.ReadParams(params.BidsCenter)
	meanAsks, _ := s.Dists.ReadParams(params.AsksCenter)
	return (meanBids + meanAsks) / 2
}

// Performance computes per-class welfare against the initial endowments,
// price volatility over the snapshot weighted prices, and the RMSD of
// clearing prices from the fundamental.
func (s *Simulation) Performance(fundVal float64) RunStats {
	stats := RunStats{
		FundVal:  fundVal,
		TotalGas: s.House.TotalGas(),
		MakerTax: s.House.MakerTaxPaid(),
	}

	for _, ps := range s.House.Snapshot() {
		init := s.initial[ps.ID]
		// Welfare marks remaining inventory at the fundamental.
		welfare := (ps.Balance - init[0]) + (ps.Inventory-init[1])*fundVal
		switch ps.Type {
		case players.TraderInvestor:
			stats.InvestorWelfare += welfare
		case players.TraderMaker:
			stats.MakerWelfare += welfare
		case players.TraderMiner:
			stats.MinerWelfare += welfare
		}
	}

	stats.Volatility = s.priceVolatility()
	stats.RMSD = s.clearingRMSD(fundVal)
	return stats
}

// priceVolatility is the standard deviation of the weighted prices across
// all snapshots that had one.
func (s *Simulation) priceVolatility() float64 {
	var prices []float64
	for _, snap := range s.Hist.Snapshots() {
		if snap.WeightedPrice != nil {
			prices = append(prices, *snap.WeightedPrice)
		}
	}
	if len(prices) < 2 {
		return 0
	}
	var mean float64
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	var ss float64
	for _, p := range prices {
		d := p - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(prices)))
}

// clearingRMSD is the root-mean-square deviation of reported clearing
// prices from the fundamental value.
func (s *Simulation) clearingRMSD(fundVal float64) float64 {
	var ss float64
	var n int
	for _, r := range s.Hist.Results() {
		if r.UniformPrice == nil {
			continue
		}
		d := *r.UniformPrice - fundVal
		ss += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(ss / float64(n))
}

// WriteResultsRow appends one summary row to results.csv. liquidated says
// whether inventories have been closed out at the fundamental yet.
func (s *Simulation) WriteResultsRow(runID string, liquidated bool, stats RunStats) {
	liq := "NO"
	if liquidated {
		liq = "YES"
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	s.Sinks.ResultsRow(
		s.Consts.MarketType.String(),
		liq,
		runID,
		f(stats.FundVal),
		f(stats.InvestorWelfare),
		f(stats.MakerWelfare),
		f(stats.MinerWelfare),
		f(stats.TotalGas),
		f(stats.MakerTax),
		f(stats.Volatility),
		f(stats.RMSD),
		strconv.FormatUint(s.Block.Get(), 10),
	)
}
