package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Feature names shared by every stage of the forcing pipeline.
const (
	FeatureShortwave     = "shortwave"            // W/m², incoming minus reflected
	FeatureAirTemp       = "air_temp"             // °C
	FeaturePressure      = "atmospheric_pressure" // Pa
	FeatureHumidity      = "relative_humidity"    // fraction 0..1
	FeatureLongwave      = "longwave"             // W/m²
	FeatureWindSpeed     = "wind_speed"           // m/s
	FeatureWindDirection = "wind_direction"       // degrees, meteorological
	FeatureWindU         = "wind_u"               // m/s, toward east
	FeatureWindV         = "wind_v"               // m/s, toward north
)

// StationFeatures are the features every merged row must carry before wind decomposition.
var StationFeatures = []string{
	FeatureShortwave,
	FeatureAirTemp,
	FeaturePressure,
	FeatureHumidity,
	FeatureLongwave,
	FeatureWindSpeed,
	FeatureWindDirection,
}

// SampleTimeLayout is the TmStamp format used by the station report feeds.
const SampleTimeLayout = "2006-01-02 15:04:05"

// RawSample is one instrument reading as decoded from a feed response.
// Values are strings, json.Number, or nil.
type RawSample map[string]any

// Float parses the named field as a float64. A missing or null field yields a ParseError.
func (s RawSample) Float(field string) (float64, error) {
	v, ok := s[field]
	if !ok || v == nil {
		return 0, &ParseError{Field: field, Err: errMissingField}
	}
	var raw string
	switch x := v.(type) {
	case string:
		raw = strings.TrimSpace(x)
	case json.Number:
		raw = x.String()
	case float64:
		return x, nil
	default:
		return 0, &ParseError{Field: field, Value: fmt.Sprint(v), Err: errNotNumeric}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ParseError{Field: field, Value: raw, Err: errNotNumeric}
	}
	return f, nil
}

// OptionalFloat parses the named field, reporting ok=false for an absent, null or empty value.
func (s RawSample) OptionalFloat(field string) (float64, bool, error) {
	v, present := s[field]
	if !present || v == nil {
		return math.NaN(), false, nil
	}
	if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
		return math.NaN(), false, nil
	}
	f, err := s.Float(field)
	if err != nil {
		return math.NaN(), false, err
	}
	return f, true, nil
}

// Time parses the sample's TmStamp field as UTC.
func (s RawSample) Time() (time.Time, error) {
	v, ok := s["TmStamp"].(string)
	if !ok {
		return time.Time{}, &ParseError{Field: "TmStamp", Err: errMissingField}
	}
	t, err := time.ParseInLocation(SampleTimeLayout, strings.TrimSpace(v), time.UTC)
	if err != nil {
		return time.Time{}, &ParseError{Field: "TmStamp", Value: v, Err: err}
	}
	return t, nil
}

// Row is one timestamp of the feature table.
type Row struct {
	Time   time.Time
	Values map[string]float64
}

// Has reports whether the row carries a non-NaN value for the feature.
func (r Row) Has(feature string) bool {
	v, ok := r.Values[feature]
	return ok && !math.IsNaN(v)
}

// FeatureTable is an ordered sequence of rows, unique by time and sorted ascending.
type FeatureTable struct {
	Rows []Row
}

// Len returns the number of rows.
func (t FeatureTable) Len() int { return len(t.Rows) }

// Column copies one feature into a slice, NaN where absent.
func (t FeatureTable) Column(feature string) []float64 {
	col := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		if v, ok := r.Values[feature]; ok {
			col[i] = v
		} else {
			col[i] = math.NaN()
		}
	}
	return col
}

// SetColumn writes values back into the feature column. len(values) must equal Len().
func (t FeatureTable) SetColumn(feature string, values []float64) {
	for i := range t.Rows {
		t.Rows[i].Values[feature] = values[i]
	}
}

// Features lists the feature names present in the first row, or nil for an empty table.
func (t FeatureTable) Features() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.Rows[0].Values))
	for k := range t.Rows[0].Values {
		names = append(names, k)
	}
	return names
}

// From returns the rows at or after start, sharing the underlying storage.
func (t FeatureTable) From(start time.Time) FeatureTable {
	for i, r := range t.Rows {
		if !r.Time.Before(start) {
			return FeatureTable{Rows: t.Rows[i:]}
		}
	}
	return FeatureTable{}
}

// Range is a closed physically plausible interval for a feature.
type Range struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper" validate:"gtfield=Lower"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Lower), r.Upper)
}

// Contains reports whether v lies within the closed range.
func (r Range) Contains(v float64) bool {
	return v >= r.Lower && v <= r.Upper
}

// Bounds maps feature names to their plausible ranges.
type Bounds map[string]Range

// DepthSample is one point of a vertical temperature profile. Depth is negative downward.
type DepthSample struct {
	Depth       float64
	Temperature float64
}

// Profile is a list of depth samples in instrument order.
type Profile []DepthSample
