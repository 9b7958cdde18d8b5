package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Default outlier filter parameters.
const (
	DefaultMedianWindow = 5
	DefaultStatsWindow  = 100
	DefaultSigma        = 3.0
)

// ColumnStats counts the values each pass changed in one feature column.
type ColumnStats struct {
	Clipped      int
	Deviations   int
	ClampResidue int
}

// Cleaner removes spikes and stuck readings from a feature table, one column at a time:
// median filter, bound clip, deviation replacement, clamp-residue replacement, median filter.
type Cleaner struct {
	bounds       Bounds
	allowAtBound map[string]bool
	medianWindow int
	statsWindow  int
	sigma        float64
}

// NewCleaner creates a Cleaner. Features listed in allowAtBound may legitimately
// sit exactly on a bound and are exempt from clamp-residue replacement.
func NewCleaner(bounds Bounds, allowAtBound ...string) *Cleaner {
	allow := make(map[string]bool, len(allowAtBound))
	for _, f := range allowAtBound {
		allow[f] = true
	}
	return &Cleaner{
		bounds:       bounds,
		allowAtBound: allow,
		medianWindow: DefaultMedianWindow,
		statsWindow:  DefaultStatsWindow,
		sigma:        DefaultSigma,
	}
}

// Clean filters every bounded feature column of the table in place.
// Features without bounds are left untouched.
func (c *Cleaner) Clean(table FeatureTable) map[string]ColumnStats {
	out := make(map[string]ColumnStats)
	if table.Len() == 0 {
		return out
	}
	for feature, r := range c.bounds {
		if !table.Rows[0].Has(feature) {
			continue
		}
		col, st := c.CleanColumn(feature, table.Column(feature), r)
		table.SetColumn(feature, col)
		out[feature] = st
	}
	return out
}

// CleanColumn runs the five passes over a single column and returns a new slice.
func (c *Cleaner) CleanColumn(feature string, col []float64, r Range) ([]float64, ColumnStats) {
	var st ColumnStats
	col = MedianFilter(col, c.medianWindow)
	col, st.Clipped = Clip(col, r)
	mean, std := RollingMeanStd(col, c.statsWindow)
	col, st.Deviations = ReplaceDeviations(col, mean, std, c.sigma)
	if !c.allowAtBound[feature] {
		col, st.ClampResidue = ReplaceClampResidue(col, r, mean)
	}
	col = MedianFilter(col, c.medianWindow)
	return col, st
}

// centeredWindow returns the inclusive index range of a centered window of
// size w around i, shrunk to fit [0, n).
func centeredWindow(i, n, w int) (lo, hi int) {
	lo = max(i-w/2, 0)
	hi = min(i+(w-1)/2, n-1)
	return lo, hi
}

// MedianFilter replaces each value with the median of its centered window.
// Boundary windows shrink rather than wrap.
func MedianFilter(col []float64, window int) []float64 {
	out := make([]float64, len(col))
	buf := make([]float64, 0, window)
	for i := range col {
		lo, hi := centeredWindow(i, len(col), window)
		buf = append(buf[:0], col[lo:hi+1]...)
		out[i] = median(buf)
	}
	return out
}

// median sorts xs in place. Even-length input averages the middle pair.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// Clip clamps each value into r and reports how many values moved.
func Clip(col []float64, r Range) ([]float64, int) {
	out := make([]float64, len(col))
	n := 0
	for i, v := range col {
		out[i] = r.Clamp(v)
		if out[i] != v {
			n++
		}
	}
	return out, n
}

// RollingMeanStd computes the centered rolling mean and sample standard
// deviation. Windows of one element have zero deviation, and the first
// element's deviation is always zero.
func RollingMeanStd(col []float64, window int) (mean, std []float64) {
	mean = make([]float64, len(col))
	std = make([]float64, len(col))
	for i := range col {
		lo, hi := centeredWindow(i, len(col), window)
		m, s := stat.MeanStdDev(col[lo:hi+1], nil)
		if hi == lo || math.IsNaN(s) {
			s = 0
		}
		mean[i], std[i] = m, s
	}
	if len(std) > 0 {
		std[0] = 0
	}
	return mean, std
}

// ReplaceDeviations replaces values strictly outside mean ± sigma·std with the rolling mean.
func ReplaceDeviations(col, mean, std []float64, sigma float64) ([]float64, int) {
	out := make([]float64, len(col))
	n := 0
	for i, v := range col {
		out[i] = v
		if v < mean[i]-sigma*std[i] || v > mean[i]+sigma*std[i] {
			out[i] = mean[i]
			n++
		}
	}
	return out, n
}

// ReplaceClampResidue replaces values sitting exactly on a bound with the rolling mean.
// These are readings clipped earlier that the deviation pass did not move.
func ReplaceClampResidue(col []float64, r Range, mean []float64) ([]float64, int) {
	out := make([]float64, len(col))
	n := 0
	for i, v := range col {
		out[i] = v
		if v == r.Lower || v == r.Upper {
			out[i] = mean[i]
			n++
		}
	}
	return out, n
}
