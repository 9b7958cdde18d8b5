package domain

import "math"

// DecomposeWind converts a wind speed and meteorological direction (the
// direction the wind blows from, degrees clockwise from north) into the
// eastward and northward velocity components.
func DecomposeWind(speed, directionDeg float64) (u, v float64) {
	rad := directionDeg * math.Pi / 180
	return -speed * math.Sin(rad), -speed * math.Cos(rad)
}

// DecomposeTable replaces wind_speed and wind_direction with wind_u and wind_v in every row.
func DecomposeTable(table FeatureTable) {
	for _, r := range table.Rows {
		u, v := DecomposeWind(r.Values[FeatureWindSpeed], r.Values[FeatureWindDirection])
		r.Values[FeatureWindU] = u
		r.Values[FeatureWindV] = v
		delete(r.Values, FeatureWindSpeed)
		delete(r.Values, FeatureWindDirection)
	}
}

// KmhToMs converts kilometres per hour to metres per second.
func KmhToMs(kmh float64) float64 { return kmh / 3.6 }
