package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the TERC Lake Tahoe report API.
const DefaultBaseURL = "https://tepfsail50.execute-api.us-west-2.amazonaws.com/v1"

const reportDateLayout = "20060102"

// Endpoint names a station report and the station ids it accepts.
type Endpoint struct {
	Name  string
	Path  string
	MinID int
	MaxID int
}

// Station report endpoints.
var (
	USCG      = Endpoint{Name: "uscg", Path: "/report/met-uscg2020", MinID: 1, MaxID: 1}
	Buoy      = Endpoint{Name: "buoy", Path: "/report/nasa-tb", MinID: 1, MaxID: 4}
	Nearshore = Endpoint{Name: "nearshore", Path: "/report/ns-station-range", MinID: 1, MaxID: 9}
	TChain    = Endpoint{Name: "tchain", Path: "/report/tchain", MinID: 1, MaxID: 9}
)

// Query selects one station's samples over a date range. A nil End asks the
// API for its default 24-hour window starting at Start.
type Query struct {
	Endpoint  Endpoint
	StationID int
	Start     time.Time
	End       *time.Time
}

func (q Query) key() string {
	end := "-"
	if q.End != nil {
		end = q.End.UTC().Format(reportDateLayout)
	}
	return fmt.Sprintf("%s|%d|%s|%s", q.Endpoint.Name, q.StationID, q.Start.UTC().Format(reportDateLayout), end)
}

// Fetcher returns the raw samples for a query.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]domain.RawSample, error)
}

// Client fetches station reports over HTTP. Each endpoint has its own circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a station report client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  baseURL,
		metrics:  metrics,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Fetch requests the samples for q. Ids outside the endpoint's range fail with
// domain.ErrInvalidStation before any request is made. Empty, null, or
// malformed payloads fail with domain.ErrFeedUnavailable.
func (c *Client) Fetch(ctx context.Context, q Query) ([]domain.RawSample, error) {
	name := q.Endpoint.Name
	if q.StationID < q.Endpoint.MinID || q.StationID > q.Endpoint.MaxID {
		c.metrics.FeedRequests.WithLabelValues(name, "rejected").Inc()
		return nil, fmt.Errorf("%s station %d not in [%d, %d]: %w",
			name, q.StationID, q.Endpoint.MinID, q.Endpoint.MaxID, domain.ErrInvalidStation)
	}

	start := time.Now()
	result, err := c.breaker(name).Execute(func() (interface{}, error) {
		return c.doRequest(ctx, q)
	})
	c.metrics.FeedDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(name, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("feed circuit open", "endpoint", name)
		}
		return nil, fmt.Errorf("%s feed: %w: %w", name, domain.ErrFeedUnavailable, err)
	}

	samples, _ := result.([]domain.RawSample)
	if len(samples) == 0 {
		c.metrics.FeedRequests.WithLabelValues(name, "unavailable").Inc()
		return nil, fmt.Errorf("%s feed returned no samples: %w", name, domain.ErrFeedUnavailable)
	}

	c.metrics.FeedRequests.WithLabelValues(name, "success").Inc()
	c.logger.Debug("feed fetched", "endpoint", name, "station", q.StationID, "samples", len(samples))
	return samples, nil
}

func (c *Client) breaker(name string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[name]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    10 * time.Minute,
			Timeout:     2 * time.Minute,
		})
		c.breakers[name] = cb
	}
	return cb
}

func (c *Client) doRequest(ctx context.Context, q Query) ([]domain.RawSample, error) {
	params := url.Values{
		"id":      {strconv.Itoa(q.StationID)},
		"rptdate": {q.Start.UTC().Format(reportDateLayout)},
	}
	if q.End != nil {
		params.Set("rptend", q.End.UTC().Format(reportDateLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+q.Endpoint.Path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return decodeSamples(resp.Body)
}

// decodeSamples reads a JSON array of flat objects. A null body decodes to no
// samples; any other non-array payload is an error.
func decodeSamples(r io.Reader) ([]domain.RawSample, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload == nil {
		return nil, nil
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("decode response: expected array, got %T", payload)
	}
	samples := make([]domain.RawSample, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode response: element %d is %T, not an object", i, item)
		}
		samples = append(samples, domain.RawSample(obj))
	}
	return samples, nil
}
