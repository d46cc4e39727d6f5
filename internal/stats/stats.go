// Package stats implements the statistics kernel the aggregator is built
// on: robust point estimators, dispersion measures, ensemble probability,
// and z-score outlier detection. Every function is total over unordered
// sequences of finite float64s; empty input yields the zero value, never
// an error.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median returns the middle element for odd length, the mean of the two
// middle elements for even length, 0 for empty input. The input slice is
// not modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(xs)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev returns the population standard deviation. Single-element and
// empty inputs return 0.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n <= 1 {
		return 0
	}
	mean := Mean(xs)
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// TrimmedMean is the aggregator's default point estimator. It suppresses
// outlier models without discarding the rest:
//
//	n >= 10: trim ceil(0.1*n) from each end, mean of the remainder
//	4..9:    trim one from each end
//	n == 3:  median
//	n == 2:  mean
//	n <= 1:  mean
func TrimmedMean(xs []float64) float64 {
	n := len(xs)
	switch {
	case n <= 2:
		return Mean(xs)
	case n == 3:
		return Median(xs)
	}

	trim := 1
	if n >= 10 {
		trim = int(math.Ceil(0.1 * float64(n)))
	}
	sorted := sortedCopy(xs)
	return Mean(sorted[trim : n-trim])
}

// Comparison selects the direction EnsembleProbability tests against its
// threshold.
type Comparison int

const (
	GreaterThan Comparison = iota
	LessThan
)

// EnsembleProbability returns the percentage (0-100) of values satisfying
// the comparison relative to threshold. Empty input returns 0.
func EnsembleProbability(xs []float64, threshold float64, cmp Comparison) float64 {
	if len(xs) == 0 {
		return 0
	}
	count := 0
	for _, x := range xs {
		if (cmp == GreaterThan && x > threshold) || (cmp == LessThan && x < threshold) {
			count++
		}
	}
	return 100 * float64(count) / float64(len(xs))
}

// FindOutlierIndices returns the indices whose z-score reaches zThreshold.
// Fewer than three values cannot establish a distribution, and a zero
// standard deviation means total agreement; both return no outliers. The
// comparison is inclusive, so a value sitting exactly at the threshold is
// flagged.
func FindOutlierIndices(xs []float64, zThreshold float64) []int {
	if len(xs) < 3 {
		return nil
	}
	sd := StdDev(xs)
	if sd == 0 {
		return nil
	}
	mean := Mean(xs)
	var outliers []int
	for i, x := range xs {
		if math.Abs(x-mean)/sd >= zThreshold {
			outliers = append(outliers, i)
		}
	}
	return outliers
}

// MetricStatistics summarizes the per-model values behind one consensus
// number. The zero value is the sentinel for empty input.
type MetricStatistics struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	Range  float64 `json:"range"`
}

// Compute fills a MetricStatistics from raw values. Empty input returns
// the zero value.
func Compute(xs []float64) MetricStatistics {
	if len(xs) == 0 {
		return MetricStatistics{}
	}
	sorted := sortedCopy(xs)
	min, max := sorted[0], sorted[len(sorted)-1]
	return MetricStatistics{
		Mean:   Mean(xs),
		Median: Median(xs),
		Min:    min,
		Max:    max,
		StdDev: StdDev(xs),
		Range:  max - min,
	}
}

// CircularMean averages bearings in degrees by summing unit vectors and
// taking the atan2 of the components, avoiding the 359°+1° wraparound
// pathology of a scalar mean. The result is normalized into [0, 360);
// empty input returns 0.
func CircularMean(degrees []float64) float64 {
	if len(degrees) == 0 {
		return 0
	}
	var sinSum, cosSum float64
	for _, d := range degrees {
		r := d * math.Pi / 180
		sinSum += math.Sin(r)
		cosSum += math.Cos(r)
	}
	deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func sortedCopy(xs []float64) []float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return sorted
}
