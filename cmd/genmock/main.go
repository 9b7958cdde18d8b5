// Command genmock writes deterministic station report and forecast fixtures
// shaped like the live feeds. The output can be served by any static file
// server and pointed at with FEED_BASE_URL and FORECAST_BASE_URL, or loaded
// directly in tests.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -start 2022-01-22 -days 2
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
)

// fixture names one generated file.
type fixture struct {
	file string
	data any
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory")
	startDate := flag.String("start", "2022-01-22", "first report day (YYYY-MM-DD, UTC)")
	days := flag.Int("days", 2, "number of days to generate")
	step := flag.Duration("step", 10*time.Minute, "station sample interval")
	spikeEvery := flag.Int("spike-every", 97, "inject an air temperature spike every N buoy samples; 0 disables")
	flag.Parse()

	start, err := time.ParseInLocation("2006-01-02", *startDate, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if *days <= 0 || *step <= 0 {
		return fmt.Errorf("-days and -step must be positive")
	}

	gen := generator{start: start, end: start.AddDate(0, 0, *days), step: *step, spikeEvery: *spikeEvery}
	fixtures := []fixture{
		{"uscg.json", gen.uscg()},
		{"buoy.json", gen.buoy()},
		{"nearshore.json", gen.nearshore()},
		{"tchain.json", gen.tchain()},
		{"forecast.json", gen.forecast()},
	}
	for _, f := range fixtures {
		path := filepath.Join(*out, f.file)
		if err := writeJSON(path, f.data); err != nil {
			return fmt.Errorf("writing %s: %w", f.file, err)
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

type generator struct {
	start, end time.Time
	step       time.Duration
	spikeEvery int
}

// diurnal is a daily cycle peaking at 15:00 UTC.
func diurnal(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	return math.Sin(2 * math.Pi * (h - 9) / 24)
}

func (g generator) times() []time.Time {
	var out []time.Time
	for t := g.start; t.Before(g.end); t = t.Add(g.step) {
		out = append(out, t)
	}
	return out
}

func num(v float64) string { return fmt.Sprintf("%.2f", v) }

func stamp(t time.Time) string { return t.Format(domain.SampleTimeLayout) }

func (g generator) uscg() []domain.RawSample {
	ts := g.times()
	out := make([]domain.RawSample, len(ts))
	for i, t := range ts {
		d := diurnal(t)
		sw := math.Max(0, 850*d)
		out[i] = domain.RawSample{
			"TmStamp":            stamp(t),
			"ShortWaveIn_wm2":    num(sw),
			"ShortWaveOut_wm2":   num(0.08 * sw),
			"BP_mbar":            num(781 + 2*d),
			"RH_percent":         num(45 - 20*d),
			"LongWaveInCorr_wm2": num(255 + 25*d),
		}
	}
	return out
}

func (g generator) buoy() []domain.RawSample {
	ts := g.times()
	out := make([]domain.RawSample, len(ts))
	for i, t := range ts {
		d := diurnal(t)
		air := 4 + 6*d
		if g.spikeEvery > 0 && i > 0 && i%g.spikeEvery == 0 {
			air += 25
		}
		dir := math.Mod(225+40*d+360, 360)
		out[i] = domain.RawSample{
			"TmStamp":     stamp(t),
			"AirTemp_1":   num(air),
			"AirTemp_2":   num(air + 0.2),
			"WindSpeed_1": num(3 + 2*d),
			"WindSpeed_2": num(3.2 + 2*d),
			"WindDir_1":   num(dir),
			"WindDir_2":   num(dir),
		}
	}
	return out
}

func (g generator) nearshore() []domain.RawSample {
	ts := g.times()
	out := make([]domain.RawSample, len(ts))
	for i, t := range ts {
		out[i] = domain.RawSample{
			"TmStamp":     stamp(t),
			"LS_Temp_Avg": num(7.5 + 0.5*diurnal(t)),
		}
	}
	return out
}

func (g generator) tchain() []domain.RawSample {
	ts := g.times()
	out := make([]domain.RawSample, len(ts))
	for i, t := range ts {
		s := domain.RawSample{"TmStamp": stamp(t), "WaterDepth_m": num(30)}
		surface := 7.2 + 0.3*diurnal(t)
		for k := 1; k <= 6; k++ {
			s[fmt.Sprintf("Temp_%d_C", k)] = num(surface - 0.4*float64(k-1))
		}
		out[i] = s
	}
	return out
}

type gridValue struct {
	ValidTime string  `json:"validTime"`
	Value     float64 `json:"value"`
}

type gridSeries struct {
	Values []gridValue `json:"values"`
}

// forecast returns an hourly gridpoint payload covering the generated days.
func (g generator) forecast() map[string]any {
	series := map[string]func(time.Time) float64{
		"temperature":      func(t time.Time) float64 { return 4 + 6*diurnal(t) },
		"relativeHumidity": func(t time.Time) float64 { return 45 - 20*diurnal(t) },
		"skyCover":         func(t time.Time) float64 { return 30 + 20*diurnal(t) },
		"windSpeed":        func(t time.Time) float64 { return 11 + 7*diurnal(t) },
		"windDirection":    func(t time.Time) float64 { return math.Mod(225+40*diurnal(t)+360, 360) },
	}
	props := make(map[string]gridSeries, len(series))
	for name, f := range series {
		var values []gridValue
		for t := g.start; t.Before(g.end); t = t.Add(time.Hour) {
			values = append(values, gridValue{ValidTime: t.Format(time.RFC3339) + "/PT1H", Value: math.Round(f(t)*100) / 100})
		}
		props[name] = gridSeries{Values: values}
	}
	return map[string]any{"properties": props}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
