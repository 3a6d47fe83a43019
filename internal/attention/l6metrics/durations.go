package l6metrics

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a set of durations in seconds.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P85   float64 `json:"p85"`
	P95   float64 `json:"p95"`
	Max   float64 `json:"max"`
}

// Summarise computes count, mean, empirical percentiles and max. The input
// is not modified.
func Summarise(durations []float64) Summary {
	if len(durations) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)
	return Summary{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P85:   stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:   floats.Max(sorted),
	}
}

// DurationPercentiles returns the empirical quantiles ps (each in [0, 1]) of
// durations. An empty input yields zeros.
func DurationPercentiles(durations []float64, ps ...float64) []float64 {
	out := make([]float64, len(ps))
	if len(durations) == 0 {
		return out
	}
	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)
	for i, p := range ps {
		out[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	return out
}
