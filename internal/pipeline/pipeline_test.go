package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/feed"
	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/si3d"
	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
	"github.com/couchcryptid/lake-forcing-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockFetcher struct {
	mu      sync.Mutex
	samples map[string][]domain.RawSample
	// failures holds errors returned for the first N calls per endpoint.
	failures map[string][]error
	queries  []feed.Query
}

func (m *mockFetcher) Fetch(_ context.Context, q feed.Query) ([]domain.RawSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if errs := m.failures[q.Endpoint.Name]; len(errs) > 0 {
		m.failures[q.Endpoint.Name] = errs[1:]
		return nil, errs[0]
	}
	return m.samples[q.Endpoint.Name], nil
}

type mockForecast struct {
	table domain.FeatureTable
	err   error
}

func (m *mockForecast) Fetch(context.Context) (domain.FeatureTable, error) {
	return m.table, m.err
}

type mockStore struct {
	upserted []domain.FeatureTable
}

func (m *mockStore) Upsert(fresh domain.FeatureTable) (domain.FeatureTable, error) {
	m.upserted = append(m.upserted, fresh)
	return fresh, nil
}

type mockPublisher struct {
	runID  string
	source string
	rows   domain.FeatureTable
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, runID, source string, table domain.FeatureTable) error {
	m.runID, m.source, m.rows = runID, source, table
	return m.err
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fixtures ---

var runStart = time.Date(2022, 1, 23, 0, 0, 0, 0, time.UTC)

func freezeClock(t *testing.T, now time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func stamp(ts time.Time) string {
	return ts.Format(domain.SampleTimeLayout)
}

func uscgSample(ts time.Time) domain.RawSample {
	return domain.RawSample{
		"TmStamp":            stamp(ts),
		"ShortWaveIn_wm2":    "450",
		"ShortWaveOut_wm2":   "50",
		"BP_mbar":            "800",
		"RH_percent":         "50",
		"LongWaveInCorr_wm2": "250",
	}
}

func buoySample(ts time.Time) domain.RawSample {
	return domain.RawSample{
		"TmStamp":     stamp(ts),
		"AirTemp_1":   "4",
		"AirTemp_2":   "6",
		"WindSpeed_1": "2",
		"WindSpeed_2": "4",
		"WindDir_1":   "90",
		"WindDir_2":   "90",
	}
}

func stationFetcher() *mockFetcher {
	return &mockFetcher{
		samples: map[string][]domain.RawSample{
			feed.USCG.Name: {uscgSample(runStart), uscgSample(runStart.Add(30 * time.Minute))},
			feed.Buoy.Name: {buoySample(runStart), buoySample(runStart.Add(30 * time.Minute))},
			feed.Nearshore.Name: {
				{"TmStamp": stamp(runStart.Add(-5 * time.Minute)), "LS_Temp_Avg": "11"},
				{"TmStamp": stamp(runStart.Add(5 * time.Minute)), "LS_Temp_Avg": "10"},
			},
			feed.TChain.Name: {{
				"TmStamp":      stamp(runStart),
				"WaterDepth_m": "30",
				"Temp_1_C":     "9",
				"Temp_2_C":     "8",
				"Temp_3_C":     "7",
				"Temp_4_C":     "6",
				"Temp_5_C":     "5",
				"Temp_6_C":     "4",
			}},
		},
		failures: map[string][]error{},
	}
}

func forecastTable() domain.FeatureTable {
	return domain.FeatureTable{Rows: []domain.Row{{
		Time: runStart.Add(time.Hour),
		Values: map[string]float64{
			domain.FeatureAirTemp:       3,
			domain.FeatureHumidity:      0.4,
			domain.FeatureLongwave:      260,
			domain.FeatureWindSpeed:     1,
			domain.FeatureWindDirection: 180,
		},
	}}}
}

func testSite() domain.Site {
	site := domain.DefaultSite()
	site.DepthGrid = []float64{-0.5, -4, -29, -50}
	return site
}

var testStations = pipeline.Stations{Buoy: 4, USCG: 1, Nearshore: 9, TChain: 1}

const inpFixture = `year         !    2021            !
month        !      12            !
day          !      01            !
hour         !    0000            !
`

// --- boundary ---

func TestBoundaryPipeline_Run_HappyPath(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pipeline.InputFileName), []byte(inpFixture), 0o644))

	fetcher := stationFetcher()
	store := &mockStore{}
	pub := &mockPublisher{}
	metrics := newTestMetrics()
	p := pipeline.NewBoundaryPipeline(fetcher, &mockForecast{table: forecastTable()}, store, pub,
		testSite(), testStations, dir, discardLogger(), metrics)

	res, err := p.Run(context.Background(), "run-1", runStart)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, pipeline.BoundaryFileName), res.Path)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, domain.MergeStats{Timestamps: 3, Kept: 2, Dropped: 1}, res.Merged)

	f, err := os.Open(res.Path)
	require.NoError(t, err)
	defer f.Close()
	bf, err := si3d.ParseBoundaryFile(f)
	require.NoError(t, err)
	require.Len(t, bf.Records, 4)

	first := bf.Records[0]
	assert.InDelta(t, 0.0, first.Hours, 1e-9)
	assert.InDelta(t, 0.15, first.Attenuation, 1e-9)
	assert.InDelta(t, 400.0, first.Shortwave, 1e-9)
	assert.InDelta(t, 5.0, first.AirTemp, 1e-9)
	assert.InDelta(t, 80000.0, first.Pressure, 1e-9)
	assert.InDelta(t, 0.5, first.Humidity, 1e-9)
	assert.InDelta(t, 250.0, first.Longwave, 1e-9)
	assert.InDelta(t, 0.0013, first.WindDrag, 1e-9)
	assert.InDelta(t, -3.0, first.WindU, 1e-4)
	assert.InDelta(t, 0.0, first.WindV, 1e-4)
	assert.InDelta(t, 0.5, bf.Records[3].Hours, 1e-9)

	inp, err := os.ReadFile(filepath.Join(dir, pipeline.InputFileName))
	require.NoError(t, err)
	assert.Contains(t, string(inp), "year         !    2022            !")
	assert.Contains(t, string(inp), "day          !      23            !")

	require.Len(t, store.upserted, 1)
	assert.Equal(t, "run-1", pub.runID)
	assert.Equal(t, "boundary", pub.source)
	require.Equal(t, 2, pub.rows.Len())
	assert.ElementsMatch(t, []string{domain.FeatureAirTemp, domain.FeaturePressure, domain.FeatureHumidity,
		domain.FeatureLongwave, domain.FeatureShortwave, domain.FeatureWindU, domain.FeatureWindV},
		pub.rows.Features())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RowsMerged))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RowsDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RowsPublished))

	require.NotEmpty(t, fetcher.queries)
	q := fetcher.queries[0]
	assert.Equal(t, feed.USCG, q.Endpoint)
	assert.Equal(t, 1, q.StationID)
	assert.True(t, runStart.Equal(q.Start))
	require.NotNil(t, q.End)
	assert.True(t, runStart.Add(2*time.Hour).Equal(*q.End))
}

func TestBoundaryPipeline_Run_MissingInputFileIsNotFatal(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()

	p := pipeline.NewBoundaryPipeline(stationFetcher(), &mockForecast{}, nil, nil,
		testSite(), testStations, dir, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), "run-2", runStart)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, pipeline.BoundaryFileName))
	assert.NoFileExists(t, filepath.Join(dir, pipeline.InputFileName))
}

func TestBoundaryPipeline_Run_FeedUnavailable(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()
	fetcher := stationFetcher()
	fetcher.failures[feed.Buoy.Name] = []error{domain.ErrFeedUnavailable}

	p := pipeline.NewBoundaryPipeline(fetcher, &mockForecast{}, nil, nil,
		testSite(), testStations, dir, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), "run-3", runStart)
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.NoFileExists(t, filepath.Join(dir, pipeline.BoundaryFileName))
}

func TestBoundaryPipeline_Run_InsufficientData(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()
	fetcher := stationFetcher()
	fetcher.samples[feed.USCG.Name] = fetcher.samples[feed.USCG.Name][:1]

	p := pipeline.NewBoundaryPipeline(fetcher, &mockForecast{}, nil, nil,
		testSite(), testStations, dir, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), "run-4", runStart)
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Rows)
	assert.NoFileExists(t, filepath.Join(dir, pipeline.BoundaryFileName))
}

func TestBoundaryPipeline_Run_ParseError(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	fetcher := stationFetcher()
	fetcher.samples[feed.USCG.Name][0]["BP_mbar"] = "n/a"

	p := pipeline.NewBoundaryPipeline(fetcher, &mockForecast{}, nil, nil,
		testSite(), testStations, t.TempDir(), discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), "run-5", runStart)
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "BP_mbar", perr.Field)
	assert.Contains(t, err.Error(), "uscg feed")
}

func TestBoundaryPipeline_Run_PublishFailureIsNotFatal(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	metrics := newTestMetrics()
	pub := &mockPublisher{err: errors.New("broker down")}

	p := pipeline.NewBoundaryPipeline(stationFetcher(), &mockForecast{}, nil, pub,
		testSite(), testStations, t.TempDir(), discardLogger(), metrics)

	_, err := p.Run(context.Background(), "run-6", runStart)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RowsPublished))
}

// --- profile ---

const tfFixture = ` Time file for node 65_135
 Start date of run:  01/22/2022 at 1200 hours
 header 3
 header 4
 header 5
 header 6
 header 7
   2.500  15   0.012   0.50  0.01  0.02  0.00  1e-4  1e-5  8.20
                       1.50  0.01  0.02  0.00  1e-4  1e-5  7.40
                       3.00  0.01  0.02  0.00  1e-4  1e-5  5.90
`

func readInitRows(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Greater(t, len(lines), 6)
	return lines[6:]
}

func TestProfilePipeline_Run_FromFeeds(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()
	fetcher := stationFetcher()
	metrics := newTestMetrics()

	p := pipeline.NewProfilePipeline(fetcher, testSite(), testStations, dir, "", discardLogger(), metrics)

	res, err := p.Run(context.Background(), "run-1", runStart)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ProfileFromFeeds, res.Source)
	assert.Equal(t, 4, res.Layers)

	// Nearshore picks the first sample at or after the target (10 °C).
	// Chain depths are -(30 - 1 - offset): -4 .. -29.
	assert.Equal(t, []string{
		"     -0.50    10.0000 ",
		"     -4.00     9.0000 ",
		"    -29.00     4.0000 ",
		"    -50.00     4.0000 ",
	}, readInitRows(t, res.Path))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ProfileFallback))

	for _, q := range fetcher.queries {
		assert.Nil(t, q.End)
		assert.True(t, runStart.Equal(q.Start))
	}
}

func TestProfilePipeline_Run_FallsBackToNodeFile(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()
	node := filepath.Join(dir, "tf65_135.txt")
	require.NoError(t, os.WriteFile(node, []byte(tfFixture), 0o644))

	fetcher := stationFetcher()
	fetcher.failures[feed.TChain.Name] = []error{domain.ErrFeedUnavailable}
	metrics := newTestMetrics()
	site := testSite()
	site.DepthGrid = []float64{-0.5, -1.5, -3, -10}

	p := pipeline.NewProfilePipeline(fetcher, site, testStations, dir, node, discardLogger(), metrics)

	res, err := p.Run(context.Background(), "run-2", runStart)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ProfileFromNodeFile, res.Source)
	assert.Equal(t, []string{
		"     -0.50     8.2000 ",
		"     -1.50     7.4000 ",
		"     -3.00     5.9000 ",
		"    -10.00     5.9000 ",
	}, readInitRows(t, res.Path))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProfileFallback))
}

func TestProfilePipeline_Run_NoProfileKeepsExistingFile(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	dir := t.TempDir()
	existing := filepath.Join(dir, pipeline.InitFileName)
	require.NoError(t, os.WriteFile(existing, []byte("previous"), 0o644))

	fetcher := stationFetcher()
	fetcher.failures[feed.Nearshore.Name] = []error{domain.ErrFeedUnavailable}

	p := pipeline.NewProfilePipeline(fetcher, testSite(), testStations, dir, filepath.Join(dir, "missing.txt"),
		discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), "run-3", runStart)
	require.ErrorIs(t, err, domain.ErrNoProfile)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestProfilePipeline_Run_NonMonotonicChain(t *testing.T) {
	freezeClock(t, runStart.Add(2*time.Hour))
	fetcher := stationFetcher()
	// A chain shallower than the sensor offsets puts the top sensors above the nearshore depth.
	fetcher.samples[feed.TChain.Name][0]["WaterDepth_m"] = "20"

	p := pipeline.NewProfilePipeline(fetcher, testSite(), testStations, t.TempDir(), "", discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background(), "run-4", runStart)
	require.ErrorIs(t, err, domain.ErrNoProfile)
	assert.ErrorIs(t, err, domain.ErrNonMonotonicProfile)
}

// --- cycle ---

func newCycle(t *testing.T, fetcher *mockFetcher, dir string, metrics *observability.Metrics) *pipeline.Pipeline {
	t.Helper()
	logger := discardLogger()
	boundary := pipeline.NewBoundaryPipeline(fetcher, &mockForecast{}, nil, nil, testSite(), testStations, dir, logger, metrics)
	profile := pipeline.NewProfilePipeline(fetcher, testSite(), testStations, dir, "", logger, metrics)
	retry := pipeline.RetryPolicy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return pipeline.New(boundary, profile, time.Hour, retry, logger, metrics)
}

func TestPipeline_Start(t *testing.T) {
	p := pipeline.New(nil, nil, 48*time.Hour, pipeline.DefaultRetryPolicy, discardLogger(), newTestMetrics())
	now := time.Date(2022, 1, 24, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2022, 1, 22, 0, 0, 0, 0, time.UTC), p.Start(now))
}

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	dir := t.TempDir()
	metrics := newTestMetrics()
	p := newCycle(t, stationFetcher(), dir, metrics)

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.FileExists(t, filepath.Join(dir, pipeline.BoundaryFileName))
	assert.FileExists(t, filepath.Join(dir, pipeline.InitFileName))
	assert.Equal(t, float64(runStart.Add(time.Hour).Unix()),
		testutil.ToFloat64(metrics.LastSuccess.WithLabelValues("boundary")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))

	st := p.Status()
	_, err := uuid.Parse(st.RunID)
	require.NoError(t, err)
	assert.Equal(t, runStart, st.Start)
	assert.Equal(t, runStart.Add(time.Hour), st.FinishedAt)
	require.NotNil(t, st.Boundary)
	assert.Equal(t, 2, st.Boundary.Rows)
	require.NotNil(t, st.Profile)
	assert.Equal(t, pipeline.ProfileFromFeeds, st.Profile.Source)
	assert.Empty(t, st.BoundaryError)
	assert.Empty(t, st.ProfileError)
}

func TestPipeline_RunOnce_RetriesUnavailableFeed(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	fetcher.failures[feed.USCG.Name] = []error{domain.ErrFeedUnavailable, domain.ErrFeedUnavailable}
	metrics := newTestMetrics()
	p := newCycle(t, fetcher, t.TempDir(), metrics)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RunFailures.WithLabelValues("boundary")))
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunOnce_GivesUpAfterAttempts(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	fetcher.failures[feed.USCG.Name] = []error{
		domain.ErrFeedUnavailable, domain.ErrFeedUnavailable, domain.ErrFeedUnavailable,
	}
	metrics := newTestMetrics()
	p := newCycle(t, fetcher, t.TempDir(), metrics)

	err := p.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RunFailures.WithLabelValues("boundary")))
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunOnce_DoesNotRetryParseErrors(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	fetcher.samples[feed.Buoy.Name][0]["TmStamp"] = "yesterday"
	metrics := newTestMetrics()
	p := newCycle(t, fetcher, t.TempDir(), metrics)

	err := p.RunOnce(context.Background())
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunFailures.WithLabelValues("boundary")))
}

func TestPipeline_RunOnce_ProfileFailureIsNotFatal(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	fetcher.failures[feed.Nearshore.Name] = []error{domain.ErrFeedUnavailable}
	metrics := newTestMetrics()
	dir := t.TempDir()
	p := newCycle(t, fetcher, dir, metrics)

	require.NoError(t, p.RunOnce(context.Background()))
	assert.NoFileExists(t, filepath.Join(dir, pipeline.InitFileName))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunFailures.WithLabelValues("profile")))

	st := p.Status()
	assert.NotNil(t, st.Boundary)
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.BoundaryError)
	assert.Contains(t, st.ProfileError, domain.ErrNoProfile.Error())
}

func TestPipeline_RunOnce_ProfileRunsWhenBoundaryFails(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	// One buoy row leaves a single merged row, too few for a boundary file.
	fetcher.samples[feed.Buoy.Name] = fetcher.samples[feed.Buoy.Name][:1]
	metrics := newTestMetrics()
	dir := t.TempDir()
	p := newCycle(t, fetcher, dir, metrics)

	err := p.RunOnce(context.Background())
	var ierr *domain.InsufficientDataError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunFailures.WithLabelValues("boundary")))
	require.Error(t, p.CheckReadiness(context.Background()))

	assert.NoFileExists(t, filepath.Join(dir, pipeline.BoundaryFileName))
	assert.FileExists(t, filepath.Join(dir, pipeline.InitFileName))
	assert.Equal(t, float64(runStart.Add(time.Hour).Unix()),
		testutil.ToFloat64(metrics.LastSuccess.WithLabelValues("profile")))

	st := p.Status()
	assert.Nil(t, st.Boundary)
	assert.Contains(t, st.BoundaryError, "insufficient data")
	require.NotNil(t, st.Profile)
	assert.Equal(t, pipeline.ProfileFromFeeds, st.Profile.Source)
	assert.Empty(t, st.ProfileError)
}

func TestPipeline_RunOnce_BothFailuresRecorded(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	fetcher.samples[feed.Buoy.Name][0]["TmStamp"] = "yesterday"
	fetcher.failures[feed.Nearshore.Name] = []error{domain.ErrFeedUnavailable}
	p := newCycle(t, fetcher, t.TempDir(), newTestMetrics())

	err := p.RunOnce(context.Background())
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)

	st := p.Status()
	assert.NotEmpty(t, st.BoundaryError)
	assert.Contains(t, st.ProfileError, domain.ErrNoProfile.Error())
}

func TestPipeline_RunOnce_ContextCancelledDuringBackoff(t *testing.T) {
	freezeClock(t, runStart.Add(time.Hour))
	fetcher := stationFetcher()
	fetcher.failures[feed.USCG.Name] = []error{domain.ErrFeedUnavailable}
	metrics := newTestMetrics()
	logger := discardLogger()
	boundary := pipeline.NewBoundaryPipeline(fetcher, &mockForecast{}, nil, nil, testSite(), testStations, t.TempDir(), logger, metrics)
	profile := pipeline.NewProfilePipeline(fetcher, testSite(), testStations, t.TempDir(), "", logger, metrics)
	p := pipeline.New(boundary, profile, time.Hour, pipeline.RetryPolicy{Attempts: 3, Backoff: time.Hour, MaxBackoff: time.Hour}, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.RunOnce(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
