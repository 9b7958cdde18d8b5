package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Nearshore station and thermistor chain report field names.
const (
	fieldNearshoreTemp = "LS_Temp_Avg"
	fieldChainDepth    = "WaterDepth_m"
	fieldChainTempFmt  = "Temp_%d_C"
)

// SelectSample returns the first sample whose timestamp is at or after target.
// When every sample is older than target the last one is returned.
// Samples must be sorted by time.
func SelectSample(samples []RawSample, target time.Time) (RawSample, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	times := make([]time.Time, len(samples))
	for i, s := range samples {
		t, err := s.Time()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		times[i] = t
	}
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(target) })
	if i == len(samples) {
		i = len(samples) - 1
	}
	return samples[i], nil
}

// BuildProfile assembles a profile from one nearshore sample and one thermistor chain sample.
// Entry 0 is the nearshore reading; the chain sensors follow in offset order.
// The result is in instrument order and is not sorted by depth.
func BuildProfile(site Site, nearshore, chain RawSample) (Profile, error) {
	chainDepth, err := chain.Float(fieldChainDepth)
	if err != nil {
		return nil, fmt.Errorf("thermistor chain: %w", err)
	}

	profile := make(Profile, 0, len(site.ChainOffsets)+1)
	surface, ok, err := nearshore.OptionalFloat(fieldNearshoreTemp)
	if err != nil {
		return nil, fmt.Errorf("nearshore: %w", err)
	}
	profile = append(profile, DepthSample{Depth: site.NearshoreDepth, Temperature: surface})

	for i, offset := range site.ChainOffsets {
		temp, err := chain.Float(fmt.Sprintf(fieldChainTempFmt, i+1))
		if err != nil {
			return nil, fmt.Errorf("thermistor chain: %w", err)
		}
		depth := -(chainDepth - site.PlatformOffset - offset)
		profile = append(profile, DepthSample{Depth: depth, Temperature: temp})
	}

	// The nearshore thermistor sits next to the top chain sensor.
	if !ok && len(profile) > 1 {
		profile[0].Temperature = profile[1].Temperature
	}
	return profile, nil
}

// Resample linearly interpolates the profile onto each depth of the grid.
// Interpolation runs on depth magnitude; grid points outside the profile take
// the nearest end value. Profile magnitudes must be non-decreasing.
func Resample(profile Profile, grid []float64) ([]DepthSample, error) {
	if len(profile) == 0 {
		return nil, ErrNoSamples
	}
	xs := make([]float64, len(profile))
	for i, p := range profile {
		xs[i] = math.Abs(p.Depth)
		if i > 0 && xs[i] < xs[i-1] {
			return nil, fmt.Errorf("entry %d at %.2f m above entry %d at %.2f m: %w",
				i, xs[i], i-1, xs[i-1], ErrNonMonotonicProfile)
		}
	}

	out := make([]DepthSample, len(grid))
	for i, d := range grid {
		out[i] = DepthSample{Depth: d, Temperature: interpolate(xs, profile, math.Abs(d))}
	}
	return out, nil
}

func interpolate(xs []float64, profile Profile, x float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return profile[0].Temperature
	}
	if x >= xs[n-1] {
		return profile[n-1].Temperature
	}
	// first index with xs[j] > x; xs[j-1] <= x < xs[j]
	j := sort.Search(n, func(k int) bool { return xs[k] > x })
	x0, x1 := xs[j-1], xs[j]
	y0, y1 := profile[j-1].Temperature, profile[j].Temperature
	return y0 + (x-x0)/(x1-x0)*(y1-y0)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
