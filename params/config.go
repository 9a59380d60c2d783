// Package params loads the simulation configuration: the constants row and
// the per-reason sampling distributions, both from CSV, with .env/environment
// overrides layered on top (priority ENV > .env file > defaults).
package params

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"blocksim/pkg/exchange/auction"
)

// Constants is the single-row consts CSV, columns in file order.
type Constants struct {
	BatchInterval    uint64 // ms between blocks
	NumInvestors     uint64
	NumMakers        uint64
	BlockSize        int
	NumBlocks        uint64
	MarketType       auction.MarketType
	FrontRunPerc     float64 // in [0,1]
	FlowOrderOffset  float64
	MakerPropDelay   uint64 // ms after the block tick the makers fire
	MakerBaseSpread  float64
	MakerEnterProb   float64 // in [0,1]
	MaxHeldInventory float64
	MakerInvTax      float64
}

// Log renders the constants as the two CSV lines the experiment log leads
// with.
func (c *Constants) Log() string {
	h := "batch_interval,num_investors,num_makers,block_size,num_blocks,market_type,front_run_perc,flow_order_offset,maker_prop_delay,maker_base_spread,maker_enter_prob,max_held_inventory,maker_inv_tax"
	d := fmt.Sprintf("%d,%d,%d,%d,%d,%s,%g,%g,%d,%g,%g,%g,%g",
		c.BatchInterval, c.NumInvestors, c.NumMakers, c.BlockSize, c.NumBlocks,
		c.MarketType, c.FrontRunPerc, c.FlowOrderOffset, c.MakerPropDelay,
		c.MakerBaseSpread, c.MakerEnterProb, c.MaxHeldInventory, c.MakerInvTax)
	return h + "\n" + d
}

// DistType is the distribution family; v1/v2 follow the standard
// two-parameter shape for each.
type DistType int

const (
	Uniform DistType = iota // v1 = low, v2 = high
	Normal                  // v1 = mean, v2 = std dev
	Poisson                 // v1 = lambda
	Exponential             // v1 = rate
)

func ParseDistType(s string) (DistType, error) {
	switch s {
	case "Uniform":
		return Uniform, nil
	case "Normal":
		return Normal, nil
	case "Poisson":
		return Poisson, nil
	case "Exponential":
		return Exponential, nil
	default:
		return 0, fmt.Errorf("unknown dist type %q", s)
	}
}

// DistReason names what a configured distribution is sampled for.
type DistReason int

const (
	AsksCenter DistReason = iota
	BidsCenter
	MinerFrontRun
	InvestorVolume
	MinerFrameForm
	PropagationDelay
	InvestorGas
	InvestorEnter
	MakerType
	MakerInventory
	MakerBalance
	MakerOrderVolume
	InvestorBalance
	InvestorInventory
	numDistReasons
)

var distReasonNames = map[string]DistReason{
	"AsksCenter":        AsksCenter,
	"BidsCenter":        BidsCenter,
	"MinerFrontRun":     MinerFrontRun,
	"InvestorVolume":    InvestorVolume,
	"MinerFrameForm":    MinerFrameForm,
	"PropagationDelay":  PropagationDelay,
	"InvestorGas":       InvestorGas,
	"InvestorEnter":     InvestorEnter,
	"MakerType":         MakerType,
	"MakerInventory":    MakerInventory,
	"MakerBalance":      MakerBalance,
	"MakerOrderVolume":  MakerOrderVolume,
	"InvestorBalance":   InvestorBalance,
	"InvestorInventory": InvestorInventory,
}

func ParseDistReason(s string) (DistReason, error) {
	r, ok := distReasonNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown dist reason %q", s)
	}
	return r, nil
}

// DistConfig is one configured distribution; the scalar multiplies every
// draw.
type DistConfig struct {
	V1     float64
	V2     float64
	Scalar float64
	Type   DistType
}

// Distributions is the per-reason sampler. A single guarded rng serves all
// tasks so draws stay well-defined under concurrency.
type Distributions struct {
	mu    sync.Mutex
	rng   *rand.Rand
	dists [numDistReasons]DistConfig
}

// NewDistributions builds a sampler from parsed config rows, seeding from
// the wall clock.
func NewDistributions(rows map[DistReason]DistConfig) *Distributions {
	d := &Distributions{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for r, cfg := range rows {
		d.dists[r] = cfg
	}
	return d
}

// Seed re-seeds the sampler; tests use it for reproducible draws.
func (d *Distributions) Seed(seed int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rng = rand.New(rand.NewSource(seed))
}

// Sample draws from the configured distribution for the reason.
func (d *Distributions) Sample(r DistReason) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.dists[r]
	return cfg.Scalar * d.drawLocked(cfg)
}

func (d *Distributions) drawLocked(cfg DistConfig) float64 {
	switch cfg.Type {
	case Uniform:
		return cfg.V1 + d.rng.Float64()*(cfg.V2-cfg.V1)
	case Normal:
		return d.rng.NormFloat64()*cfg.V2 + cfg.V1
	case Poisson:
		return d.poissonLocked(cfg.V1)
	case Exponential:
		return d.rng.ExpFloat64() / cfg.V1
	default:
		panic(fmt.Sprintf("unhandled dist type %d", cfg.Type))
	}
}

// poissonLocked draws by inversion (Knuth). Fine for the small lambdas the
// delay configs use.
func (d *Distributions) poissonLocked(lambda float64) float64 {
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= d.rng.Float64()
		if p <= limit {
			return float64(k)
		}
		k++
	}
}

// ReadParams returns the raw (v1, v2) pair for a reason; post-run
// statistics use the configured means directly.
func (d *Distributions) ReadParams(r DistReason) (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dists[r].V1, d.dists[r].V2
}

// FiftyFifty is a fair coin.
func (d *Distributions) FiftyFifty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() > 0.5
}

// WithProb fires with the given probability (0.10 fires 10% of the time).
func (d *Distributions) WithProb(prob float64) bool {
	if prob < 0 || prob > 1 {
		panic(fmt.Sprintf("probability out of range: %g", prob))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() <= prob
}

// ParseDistsCSV reads the distributions file: header then
// reason,v1,v2,scalar,dist_type rows.
func ParseDistsCSV(path string) (*Distributions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dists config: %w", err)
	}
	defer f.Close()

	rdr := csv.NewReader(f)
	rdr.TrimLeadingSpace = true
	records, err := rdr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dists config: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dists config %s: no data rows", path)
	}

	rows := make(map[DistReason]DistConfig)
	for _, rec := range records[1:] {
		if len(rec) != 5 {
			return nil, fmt.Errorf("dists config %s: want 5 columns, got %d", path, len(rec))
		}
		reason, err := ParseDistReason(rec[0])
		if err != nil {
			return nil, err
		}
		v1, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("dists config %s: v1 %q: %w", path, rec[1], err)
		}
		v2, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("dists config %s: v2 %q: %w", path, rec[2], err)
		}
		scalar, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("dists config %s: scalar %q: %w", path, rec[3], err)
		}
		dt, err := ParseDistType(rec[4])
		if err != nil {
			return nil, err
		}
		rows[reason] = DistConfig{V1: v1, V2: v2, Scalar: scalar, Type: dt}
	}
	return NewDistributions(rows), nil
}

// ParseConstsCSV reads the single-row constants file, columns positional.
func ParseConstsCSV(path string) (*Constants, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open consts config: %w", err)
	}
	defer f.Close()

	rdr := csv.NewReader(f)
	rdr.TrimLeadingSpace = true
	records, err := rdr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read consts config: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("consts config %s: no data row", path)
	}
	rec := records[1]
	if len(rec) != 13 {
		return nil, fmt.Errorf("consts config %s: want 13 columns, got %d", path, len(rec))
	}

	var c Constants
	fieldErr := func(col int, err error) error {
		return fmt.Errorf("consts config %s: column %d: %w", path, col, err)
	}
	if c.BatchInterval, err = strconv.ParseUint(rec[0], 10, 64); err != nil {
		return nil, fieldErr(0, err)
	}
	if c.NumInvestors, err = strconv.ParseUint(rec[1], 10, 64); err != nil {
		return nil, fieldErr(1, err)
	}
	if c.NumMakers, err = strconv.ParseUint(rec[2], 10, 64); err != nil {
		return nil, fieldErr(2, err)
	}
	if c.BlockSize, err = strconv.Atoi(rec[3]); err != nil {
		return nil, fieldErr(3, err)
	}
	if c.NumBlocks, err = strconv.ParseUint(rec[4], 10, 64); err != nil {
		return nil, fieldErr(4, err)
	}
	if c.MarketType, err = auction.ParseMarketType(rec[5]); err != nil {
		return nil, fieldErr(5, err)
	}
	if c.FrontRunPerc, err = strconv.ParseFloat(rec[6], 64); err != nil {
		return nil, fieldErr(6, err)
	}
	if c.FrontRunPerc < 0 || c.FrontRunPerc > 1 {
		return nil, fieldErr(6, fmt.Errorf("front_run_perc %g outside [0,1]", c.FrontRunPerc))
	}
	if c.FlowOrderOffset, err = strconv.ParseFloat(rec[7], 64); err != nil {
		return nil, fieldErr(7, err)
	}
	if c.MakerPropDelay, err = strconv.ParseUint(rec[8], 10, 64); err != nil {
		return nil, fieldErr(8, err)
	}
	if c.MakerBaseSpread, err = strconv.ParseFloat(rec[9], 64); err != nil {
		return nil, fieldErr(9, err)
	}
	if c.MakerEnterProb, err = strconv.ParseFloat(rec[10], 64); err != nil {
		return nil, fieldErr(10, err)
	}
	if c.MakerEnterProb < 0 || c.MakerEnterProb > 1 {
		return nil, fieldErr(10, fmt.Errorf("maker_enter_prob %g outside [0,1]", c.MakerEnterProb))
	}
	if c.MaxHeldInventory, err = strconv.ParseFloat(rec[11], 64); err != nil {
		return nil, fieldErr(11, err)
	}
	if c.MakerInvTax, err = strconv.ParseFloat(rec[12], 64); err != nil {
		return nil, fieldErr(12, err)
	}
	return &c, nil
}

// Runtime is the process-level configuration outside the experiment CSVs.
type Runtime struct {
	ConfigDir      string // directory the CSV names resolve against
	LogDir         string // where the experiment CSVs are written
	ArchiveDir     string // pebble block archive root; empty disables
	MakerColdStart int    // maker ticks skipped before quoting starts
}

func DefaultRuntime() Runtime {
	return Runtime{
		ConfigDir:      "configs",
		LogDir:         "log",
		ArchiveDir:     "archive",
		MakerColdStart: 5,
	}
}

// LoadRuntime layers .env (optional) and environment variables over the
// defaults.
func LoadRuntime(envPath string) Runtime {
	rt := DefaultRuntime()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("SIM_CONFIG_DIR"); v != "" {
		rt.ConfigDir = v
	}
	if v := os.Getenv("SIM_LOG_DIR"); v != "" {
		rt.LogDir = v
	}
	if v := os.Getenv("SIM_ARCHIVE_DIR"); v != "" {
		rt.ArchiveDir = v
	}
	if v := os.Getenv("SIM_MAKER_COLD_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			rt.MakerColdStart = n
		}
	}
	return rt
}
