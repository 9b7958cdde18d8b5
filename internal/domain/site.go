package domain

// Site holds the physical configuration of the lake deployment. It is loaded
// once at startup and passed explicitly to each stage.
type Site struct {
	Bounds Bounds `yaml:"bounds" validate:"required,dive"`
	// AllowAtBound lists features whose readings may legitimately sit on a bound.
	AllowAtBound []string `yaml:"allow_at_bound"`

	DepthGrid      []float64 `yaml:"depth_grid" validate:"required,min=2"`
	NearshoreDepth float64   `yaml:"nearshore_depth" validate:"lte=0"`
	PlatformOffset float64   `yaml:"platform_offset" validate:"gte=0"`
	// ChainOffsets are sensor offsets above the chain anchor, top sensor first.
	ChainOffsets []float64 `yaml:"chain_offsets" validate:"required,min=1"`

	Attenuation float64 `yaml:"attenuation" validate:"gt=0"`
	WindDrag    float64 `yaml:"wind_drag" validate:"gt=0"`
}

// DefaultBounds returns the plausible range of each station feature.
func DefaultBounds() Bounds {
	return Bounds{
		FeatureShortwave:     {Lower: 0, Upper: 1500},
		FeatureAirTemp:       {Lower: -30, Upper: 40},
		FeaturePressure:      {Lower: 70000, Upper: 90000},
		FeatureHumidity:      {Lower: 0, Upper: 1},
		FeatureLongwave:      {Lower: 100, Upper: 500},
		FeatureWindSpeed:     {Lower: 0, Upper: 40},
		FeatureWindDirection: {Lower: 0, Upper: 360},
	}
}

// DefaultSite returns the Lake Tahoe deployment.
func DefaultSite() Site {
	return Site{
		Bounds:         DefaultBounds(),
		AllowAtBound:   []string{FeatureShortwave},
		DepthGrid:      DefaultDepthGrid(),
		NearshoreDepth: -0.5,
		PlatformOffset: 1.0,
		ChainOffsets:   []float64{25, 20, 15, 10, 5, 0},
		Attenuation:    0.15,
		WindDrag:       0.0013,
	}
}

// ctdLayers are the si3d vertical layer depths in metres below the surface.
var ctdLayers = []float64{
	0.26, 0.26, 0.77, 1.29, 1.83, 2.38, 2.94, 3.5, 4.08, 4.67, 5.28, 5.89, 6.53, 7.17, 7.82,
	8.48, 9.16, 9.86, 10.57, 11.29, 12.02, 12.77, 13.54, 14.32, 15.12, 15.93, 16.76, 17.6,
	18.46, 19.34, 20.23, 21.15, 22.09, 23.04, 24.01, 25.0, 26.01, 27.04, 28.09, 29.16, 30.25,
	31.37, 32.5, 33.66, 34.85, 36.06, 37.29, 38.55, 39.83, 41.13, 42.47, 43.83, 45.21, 46.62,
	48.06, 49.53, 51.03, 52.56, 54.13, 55.73, 57.35, 59.01, 60.7, 62.42, 64.17, 65.97, 67.8,
	69.66, 71.57, 73.51, 75.49, 77.51, 79.57, 81.67, 83.81, 86.0, 88.23, 90.5, 92.83, 95.19,
	97.6, 100.06, 102.58, 105.14, 107.75, 110.41, 113.14, 115.91, 118.74, 121.62, 124.56,
	127.56, 130.62, 133.75, 136.94, 140.18, 143.5, 146.88, 150.32, 153.84, 157.43, 161.09,
	164.81,
}

const (
	deepLayerStart = 169.2
	deepLayerStep  = 5.0
	deepLayerEnd   = 499.2
	bottomLayer    = 503.35
)

// DefaultDepthGrid returns the si3d layer depths, negative downward.
// Below 169.2 m the layers are spaced every 5 m, and the bottom layer is repeated.
func DefaultDepthGrid() []float64 {
	grid := make([]float64, 0, len(ctdLayers)+70)
	for _, d := range ctdLayers {
		grid = append(grid, -d)
	}
	for i := 0; ; i++ {
		d := deepLayerStart + float64(i)*deepLayerStep
		if d > deepLayerEnd+1e-9 {
			break
		}
		grid = append(grid, -roundTo(d, 2))
	}
	return append(grid, -bottomLayer, -bottomLayer)
}
