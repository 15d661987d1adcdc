// Package analysis holds the CPU-bound per-series and per-point workloads run
// by the aggregation and reduction stages.
package analysis

import (
	"hash/fnv"
	"math/rand/v2"
	"runtime"

	"github.com/shopspring/decimal"

	"stock-analyzer/internal/models"
)

// WorkloadConfig bounds the pseudo-random repeat count of the pairwise scan
type WorkloadConfig struct {
	MinRepeat int `json:"min_repeat"`
	MaxRepeat int `json:"max_repeat"`
}

// DefaultWorkloadConfig returns the 50..59 repeat window
func DefaultWorkloadConfig() WorkloadConfig {
	return WorkloadConfig{MinRepeat: 50, MaxRepeat: 60}
}

func (c WorkloadConfig) normalized() WorkloadConfig {
	if c.MinRepeat <= 0 {
		c.MinRepeat = 1
	}
	if c.MaxRepeat <= c.MinRepeat {
		c.MaxRepeat = c.MinRepeat + 1
	}
	return c
}

// ExpensiveComputation runs the pairwise scan over a series: for every point,
// walk the adjacent pairs (i, i+1) for i < n-2 and add change[i]+change[i+1]
// a pseudo-random number of times. The random source is seeded from the
// ticker and length, so the same series always yields the same value.
func ExpensiveComputation(series models.PriceSeries, cfg WorkloadConfig) decimal.Decimal {
	runtime.Gosched()

	cfg = cfg.normalized()
	points := series.Points
	n := len(points)
	rng := rand.New(rand.NewPCG(seedFor(series.Ticker), uint64(n)))

	computed := decimal.Zero
	for range points {
		for i := 0; i < n-2; i++ {
			pair := points[i].Change.Add(points[i+1].Change)
			repeat := cfg.MinRepeat + rng.IntN(cfg.MaxRepeat-cfg.MinRepeat)
			for a := 0; a < repeat; a++ {
				computed = computed.Add(pair)
			}
		}
	}

	return computed
}

// PointTransform is the cheap per-point reduction workload:
// the sum over a < 10, b < 20 of (a + change).
func PointTransform(p models.PricePoint) decimal.Decimal {
	x := decimal.Zero
	for a := 0; a < 10; a++ {
		step := decimal.NewFromInt(int64(a)).Add(p.Change)
		for b := 0; b < 20; b++ {
			x = x.Add(step)
		}
	}
	return x
}

// SeriesTransform sums PointTransform over every point of one series
func SeriesTransform(series models.PriceSeries) decimal.Decimal {
	local := decimal.Zero
	for _, p := range series.Points {
		local = local.Add(PointTransform(p))
	}
	return local
}

// SerialTotal is the single-threaded reference for the shared reduction
func SerialTotal(series []models.PriceSeries) decimal.Decimal {
	total := decimal.Zero
	for _, s := range series {
		total = total.Add(SeriesTransform(s))
	}
	return total
}

func seedFor(ticker string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	return h.Sum64()
}
