package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
)

// DefaultForecastBaseURL is the National Weather Service API.
const DefaultForecastBaseURL = "https://api.weather.gov"

const forecastAttempts = 5

// NWS gridpoint property names.
const (
	gridWindDirection = "windDirection"
	gridWindSpeed     = "windSpeed"
	gridTemperature   = "temperature"
	gridSkyCover      = "skyCover"
	gridHumidity      = "relativeHumidity"
)

var gridProperties = []string{gridWindDirection, gridWindSpeed, gridTemperature, gridSkyCover, gridHumidity}

var errNoProperties = errors.New("forecast payload has no properties")

// ForecastConfig locates the forecast grid cell and controls retries.
type ForecastConfig struct {
	BaseURL    string
	Office     string
	GridX      int
	GridY      int
	UserAgent  string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// ForecastClient reads hourly weather from an NWS gridpoint forecast.
type ForecastClient struct {
	httpClient *http.Client
	cfg        ForecastConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewForecastClient creates a gridpoint forecast client.
func NewForecastClient(cfg ForecastConfig, metrics *observability.Metrics, logger *slog.Logger) *ForecastClient {
	return &ForecastClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch returns the forecast as a feature table with air_temp, relative_humidity,
// longwave, wind_speed and wind_direction. The request is tried up to five times;
// if every attempt fails the result is an empty table and a nil error.
func (c *ForecastClient) Fetch(ctx context.Context) (domain.FeatureTable, error) {
	var lastErr error
	for attempt := 1; attempt <= forecastAttempts; attempt++ {
		grid, err := c.fetchGrid(ctx)
		if err == nil {
			c.metrics.ForecastAttempts.WithLabelValues("success").Inc()
			table, err := grid.table()
			if err != nil {
				return domain.FeatureTable{}, err
			}
			c.logger.Debug("forecast fetched", "attempt", attempt, "rows", table.Len())
			return table, nil
		}
		if ctx.Err() != nil {
			return domain.FeatureTable{}, ctx.Err()
		}

		lastErr = err
		c.metrics.ForecastAttempts.WithLabelValues("error").Inc()
		c.logger.Debug("forecast attempt failed", "attempt", attempt, "error", err)

		if attempt < forecastAttempts && !sleepWithContext(ctx, c.cfg.RetryDelay) {
			return domain.FeatureTable{}, ctx.Err()
		}
	}

	c.logger.Warn("forecast unavailable, continuing without it", "attempts", forecastAttempts, "error", lastErr)
	return domain.FeatureTable{}, nil
}

func (c *ForecastClient) fetchGrid(ctx context.Context) (*gridResponse, error) {
	u := fmt.Sprintf("%s/gridpoints/%s/%d,%d", c.cfg.BaseURL, c.cfg.Office, c.cfg.GridX, c.cfg.GridY)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("forecast API error: status %d", resp.StatusCode)
	}

	var grid gridResponse
	if err := json.NewDecoder(resp.Body).Decode(&grid); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if grid.Properties == nil {
		return nil, errNoProperties
	}
	return &grid, nil
}

// NWS gridpoint response types.

type gridResponse struct {
	Properties map[string]gridSeries `json:"properties"`
}

type gridSeries struct {
	Values []gridValue `json:"values"`
}

type gridValue struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}

// table expands every interval into hourly values and keeps the hours that
// have all five properties.
func (g *gridResponse) table() (domain.FeatureTable, error) {
	hours := make(map[time.Time]map[string]float64)
	for _, prop := range gridProperties {
		for _, v := range g.Properties[prop].Values {
			start, n, err := ParseInterval(v.ValidTime)
			if err != nil {
				return domain.FeatureTable{}, fmt.Errorf("%s: %w", prop, err)
			}
			start = RoundToNearestHour(start)
			value := math.NaN()
			if v.Value != nil {
				value = *v.Value
			}
			for h := 0; h < n; h++ {
				ts := start.Add(time.Duration(h) * time.Hour)
				if hours[ts] == nil {
					hours[ts] = make(map[string]float64, len(gridProperties))
				}
				hours[ts][prop] = value
			}
		}
	}

	rows := make([]domain.Row, 0, len(hours))
	for ts, values := range hours {
		if !complete(values) {
			continue
		}
		temp := values[gridTemperature]
		rows = append(rows, domain.Row{Time: ts, Values: map[string]float64{
			domain.FeatureAirTemp:       temp,
			domain.FeatureHumidity:      values[gridHumidity] / 100,
			domain.FeatureLongwave:      Longwave(temp, values[gridSkyCover]),
			domain.FeatureWindSpeed:     domain.KmhToMs(values[gridWindSpeed]),
			domain.FeatureWindDirection: values[gridWindDirection],
		}})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	return domain.FeatureTable{Rows: rows}, nil
}

func complete(values map[string]float64) bool {
	for _, p := range gridProperties {
		v, ok := values[p]
		if !ok || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Longwave estimates incoming longwave radiation (W/m²) from air temperature (°C)
// and sky cover (%).
func Longwave(airTemp, skyCover float64) float64 {
	return 0.937e-5 * 0.97 * 5.67e-8 * math.Pow(airTemp+273.16, 6) * (1 + 0.17*skyCover/100)
}

// ParseInterval splits an ISO 8601 "<start>/<duration>" interval into its start
// time and its length in whole hours. "--" is accepted as the separator. A
// bare timestamp has length zero.
func ParseInterval(interval string) (time.Time, int, error) {
	date, duration, found := strings.Cut(interval, "/")
	if !found {
		date, duration, found = strings.Cut(interval, "--")
	}
	start, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return time.Time{}, 0, &domain.ParseError{Field: "validTime", Value: interval, Err: err}
	}
	if !found {
		return start.UTC(), 0, nil
	}
	hours, err := durationHours(duration)
	if err != nil {
		return time.Time{}, 0, &domain.ParseError{Field: "validTime", Value: interval, Err: err}
	}
	return start.UTC(), hours, nil
}

// durationHours converts P[nD][T[nH][nM][nS]] into whole hours, rounding down.
func durationHours(d string) (int, error) {
	if !strings.HasPrefix(d, "P") {
		return 0, fmt.Errorf("duration %q must start with P", d)
	}
	var seconds int64
	num := ""
	for _, r := range d[1:] {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			continue
		default:
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("duration %q: %w", d, err)
			}
			num = ""
			switch r {
			case 'D':
				seconds += n * 86400
			case 'H':
				seconds += n * 3600
			case 'M':
				seconds += n * 60
			case 'S':
				seconds += n
			default:
				return 0, fmt.Errorf("duration %q: unsupported designator %q", d, r)
			}
		}
	}
	if num != "" {
		return 0, fmt.Errorf("duration %q: trailing number", d)
	}
	return int(seconds / 3600), nil
}

// RoundToNearestHour rounds t to the hour; 30 minutes or more rounds up.
func RoundToNearestHour(t time.Time) time.Time {
	base := t.Truncate(time.Hour)
	if t.Minute() >= 30 {
		return base.Add(time.Hour)
	}
	return base
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
