package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
)

// Summary holds the aggregate duration statistics reported for completed
// traces and spans. A Summary computed over an empty sample is the zero value.
type Summary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Percentile computes the p-th percentile of values by linear interpolation
// between the two bracketing ranks of the ascending-sorted sample.
// p=0 yields the minimum, p=100 the maximum, an empty sample 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Calculate produces the full Summary over values in a single pass for
// min/max/avg, delegating the percentile fields to Percentile.
func Calculate(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	summary := Summary{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}
	var total float64
	for _, v := range values {
		if v < summary.Min {
			summary.Min = v
		}
		if v > summary.Max {
			summary.Max = v
		}
		total += v
	}
	summary.Avg = total / float64(len(values))
	summary.P50 = Percentile(values, 50)
	summary.P95 = Percentile(values, 95)
	summary.P99 = Percentile(values, 99)
	return summary
}

// FormatDuration renders a millisecond duration in the closest human unit.
func FormatDuration(ms float64) string {
	switch {
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 1000:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

// FormatBytes renders a byte count in the closest human unit.
func FormatBytes(n uint64) string {
	return humanize.Bytes(n)
}
