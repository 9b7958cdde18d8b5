package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Buoy and USCG station report field names.
const (
	fieldBuoyAirTemp1   = "AirTemp_1"
	fieldBuoyAirTemp2   = "AirTemp_2"
	fieldBuoyWindSpeed1 = "WindSpeed_1"
	fieldBuoyWindSpeed2 = "WindSpeed_2"
	fieldBuoyWindDir1   = "WindDir_1"
	fieldBuoyWindDir2   = "WindDir_2"

	fieldShortwaveIn  = "ShortWaveIn_wm2"
	fieldShortwaveOut = "ShortWaveOut_wm2"
	fieldPressureMbar = "BP_mbar"
	fieldHumidityPct  = "RH_percent"
	fieldLongwaveCorr = "LongWaveInCorr_wm2"
)

// MergeStats summarizes one Merge call.
type MergeStats struct {
	Timestamps int `json:"timestamps"` // distinct timestamps seen
	Kept       int `json:"kept"`
	Dropped    int `json:"dropped"` // rows missing at least one required feature
}

// ParseBuoySamples converts NASA buoy samples into a partial feature table.
// The buoy carries two air-temperature and two wind sensors; each pair is averaged.
func ParseBuoySamples(samples []RawSample) (FeatureTable, error) {
	rows := make([]Row, 0, len(samples))
	for i, s := range samples {
		ts, err := s.Time()
		if err != nil {
			return FeatureTable{}, fmt.Errorf("buoy sample %d: %w", i, err)
		}
		values := make(map[string]float64, 3)
		pairs := []struct {
			feature string
			a, b    string
		}{
			{FeatureAirTemp, fieldBuoyAirTemp1, fieldBuoyAirTemp2},
			{FeatureWindSpeed, fieldBuoyWindSpeed1, fieldBuoyWindSpeed2},
			{FeatureWindDirection, fieldBuoyWindDir1, fieldBuoyWindDir2},
		}
		for _, p := range pairs {
			v, err := meanOfPair(s, p.a, p.b)
			if err != nil {
				return FeatureTable{}, fmt.Errorf("buoy sample %d: %w", i, err)
			}
			values[p.feature] = v
		}
		rows = append(rows, Row{Time: ts, Values: values})
	}
	return FeatureTable{Rows: rows}, nil
}

// ParseUSCGSamples converts USCG meteorological station samples into a partial
// feature table: net shortwave, pressure in Pa, humidity as a fraction, and
// corrected incoming longwave.
func ParseUSCGSamples(samples []RawSample) (FeatureTable, error) {
	rows := make([]Row, 0, len(samples))
	for i, s := range samples {
		ts, err := s.Time()
		if err != nil {
			return FeatureTable{}, fmt.Errorf("uscg sample %d: %w", i, err)
		}
		fields := map[string]float64{}
		for _, f := range []string{fieldShortwaveIn, fieldShortwaveOut, fieldPressureMbar, fieldHumidityPct, fieldLongwaveCorr} {
			v, _, err := s.OptionalFloat(f)
			if err != nil {
				return FeatureTable{}, fmt.Errorf("uscg sample %d: %w", i, err)
			}
			fields[f] = v
		}
		rows = append(rows, Row{Time: ts, Values: map[string]float64{
			FeatureShortwave: fields[fieldShortwaveIn] - fields[fieldShortwaveOut],
			FeaturePressure:  fields[fieldPressureMbar] * 100,
			FeatureHumidity:  fields[fieldHumidityPct] / 100,
			FeatureLongwave:  fields[fieldLongwaveCorr],
		}})
	}
	return FeatureTable{Rows: rows}, nil
}

// meanOfPair averages two redundant readings. A single missing reading falls
// back to the other; both missing yields NaN.
func meanOfPair(s RawSample, a, b string) (float64, error) {
	va, okA, err := s.OptionalFloat(a)
	if err != nil {
		return math.NaN(), err
	}
	vb, okB, err := s.OptionalFloat(b)
	if err != nil {
		return math.NaN(), err
	}
	switch {
	case okA && okB:
		return (va + vb) / 2, nil
	case okA:
		return va, nil
	case okB:
		return vb, nil
	default:
		return math.NaN(), nil
	}
}

// Merge combines partial feature tables into one table keyed by exact timestamp.
// Tables are consulted in order and the first non-NaN value for a feature wins.
// Rows lacking any required feature are dropped, and the result is sorted by
// time ascending. Inputs are not modified.
func Merge(required []string, tables ...FeatureTable) (FeatureTable, MergeStats) {
	acc := make(map[time.Time]map[string]float64)
	for _, t := range tables {
		for _, r := range t.Rows {
			ts := r.Time.UTC()
			values, ok := acc[ts]
			if !ok {
				values = make(map[string]float64, len(required))
				acc[ts] = values
			}
			for k, v := range r.Values {
				if math.IsNaN(v) {
					continue
				}
				if _, set := values[k]; !set {
					values[k] = v
				}
			}
		}
	}

	stats := MergeStats{Timestamps: len(acc)}
	rows := make([]Row, 0, len(acc))
	for ts, values := range acc {
		if !hasAll(values, required) {
			stats.Dropped++
			continue
		}
		rows = append(rows, Row{Time: ts, Values: values})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	stats.Kept = len(rows)
	return FeatureTable{Rows: rows}, stats
}

func hasAll(values map[string]float64, required []string) bool {
	for _, f := range required {
		if _, ok := values[f]; !ok {
			return false
		}
	}
	return true
}
