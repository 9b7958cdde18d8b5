package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/feed"
	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/si3d"
	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
)

// Model file names inside the model directory.
const (
	BoundaryFileName = "surfbc.txt"
	InputFileName    = "si3d_inp.txt"
	InitFileName     = "si3d_init.txt"
)

// Fetcher reads raw station samples.
type Fetcher interface {
	Fetch(ctx context.Context, q feed.Query) ([]domain.RawSample, error)
}

// ForecastSource returns the current hourly forecast table.
type ForecastSource interface {
	Fetch(ctx context.Context) (domain.FeatureTable, error)
}

// ForecastStore keeps forecast tables across runs.
type ForecastStore interface {
	Upsert(fresh domain.FeatureTable) (domain.FeatureTable, error)
}

// RowPublisher forwards cleaned rows to downstream consumers.
type RowPublisher interface {
	Publish(ctx context.Context, runID, source string, table domain.FeatureTable) error
}

// Stations selects the station id used for each report endpoint.
type Stations struct {
	Buoy      int
	USCG      int
	Nearshore int
	TChain    int
}

// BoundaryResult describes one written boundary file.
type BoundaryResult struct {
	Path   string            `json:"path"`
	Rows   int               `json:"rows"`
	Merged domain.MergeStats `json:"merged"`
}

// BoundaryPipeline turns station and forecast feeds into surfbc.txt.
type BoundaryPipeline struct {
	fetcher   Fetcher
	forecast  ForecastSource
	store     ForecastStore
	publisher RowPublisher
	site      domain.Site
	stations  Stations
	modelDir  string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewBoundaryPipeline wires the boundary stages. store and publisher may be nil.
func NewBoundaryPipeline(
	fetcher Fetcher,
	forecast ForecastSource,
	store ForecastStore,
	publisher RowPublisher,
	site domain.Site,
	stations Stations,
	modelDir string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *BoundaryPipeline {
	return &BoundaryPipeline{
		fetcher:   fetcher,
		forecast:  forecast,
		store:     store,
		publisher: publisher,
		site:      site,
		stations:  stations,
		modelDir:  modelDir,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run fetches every feed from start until now, merges and cleans the rows,
// and writes the boundary file starting at start. The simulation start date
// in si3d_inp.txt is updated when that file exists.
func (p *BoundaryPipeline) Run(ctx context.Context, runID string, start time.Time) (BoundaryResult, error) {
	logger := p.logger.With("run_id", runID, "pipeline", "boundary")
	end := domain.Now().UTC()

	uscg, err := p.fetchTable(ctx, feed.USCG, p.stations.USCG, start, end, domain.ParseUSCGSamples)
	if err != nil {
		return BoundaryResult{}, err
	}
	buoy, err := p.fetchTable(ctx, feed.Buoy, p.stations.Buoy, start, end, domain.ParseBuoySamples)
	if err != nil {
		return BoundaryResult{}, err
	}

	forecast, err := p.forecast.Fetch(ctx)
	if err != nil {
		return BoundaryResult{}, fmt.Errorf("forecast: %w", err)
	}
	forecast = p.archive(logger, forecast)

	table, stats := domain.Merge(domain.StationFeatures, uscg, buoy, forecast)
	p.metrics.RowsMerged.Add(float64(stats.Kept))
	p.metrics.RowsDropped.Add(float64(stats.Dropped))
	logger.Info("feeds merged", "timestamps", stats.Timestamps, "kept", stats.Kept, "dropped", stats.Dropped)

	cleaner := domain.NewCleaner(p.site.Bounds, p.site.AllowAtBound...)
	for feature, cs := range cleaner.Clean(table) {
		p.metrics.ValuesReplaced.WithLabelValues(feature, "clip").Add(float64(cs.Clipped))
		p.metrics.ValuesReplaced.WithLabelValues(feature, "deviation").Add(float64(cs.Deviations))
		p.metrics.ValuesReplaced.WithLabelValues(feature, "clamp_residue").Add(float64(cs.ClampResidue))
		if cs.Clipped+cs.Deviations+cs.ClampResidue > 0 {
			logger.Debug("column cleaned", "feature", feature,
				"clipped", cs.Clipped, "deviations", cs.Deviations, "clamp_residue", cs.ClampResidue)
		}
	}
	domain.DecomposeTable(table)

	path := filepath.Join(p.modelDir, BoundaryFileName)
	consts := si3d.Constants{Attenuation: p.site.Attenuation, WindDrag: p.site.WindDrag}
	if err := si3d.WriteBoundaryFile(table, start, path, consts); err != nil {
		return BoundaryResult{}, fmt.Errorf("write boundary file: %w", err)
	}

	inp := filepath.Join(p.modelDir, InputFileName)
	switch err := si3d.UpdateInputDate(inp, start); {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("input file missing, start date not updated", "path", inp)
	case err != nil:
		return BoundaryResult{}, fmt.Errorf("update input date: %w", err)
	}

	rows := table.From(start)
	p.publish(ctx, logger, runID, rows)

	logger.Info("boundary file written", "path", path, "rows", rows.Len(), "start", start)
	return BoundaryResult{Path: path, Rows: rows.Len(), Merged: stats}, nil
}

func (p *BoundaryPipeline) fetchTable(
	ctx context.Context,
	ep feed.Endpoint,
	id int,
	start, end time.Time,
	parse func([]domain.RawSample) (domain.FeatureTable, error),
) (domain.FeatureTable, error) {
	samples, err := p.fetcher.Fetch(ctx, feed.Query{Endpoint: ep, StationID: id, Start: start, End: &end})
	if err != nil {
		return domain.FeatureTable{}, err
	}
	table, err := parse(samples)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("%s feed: %w", ep.Name, err)
	}
	return table, nil
}

// archive stores the fresh forecast and returns the accumulated archive.
// Archive failures are logged and the fresh table is used on its own.
func (p *BoundaryPipeline) archive(logger *slog.Logger, fresh domain.FeatureTable) domain.FeatureTable {
	if p.store == nil || fresh.Len() == 0 {
		return fresh
	}
	all, err := p.store.Upsert(fresh)
	if err != nil {
		logger.Warn("forecast archive update failed", "error", err)
		return fresh
	}
	return all
}

func (p *BoundaryPipeline) publish(ctx context.Context, logger *slog.Logger, runID string, rows domain.FeatureTable) {
	if p.publisher == nil || rows.Len() == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, runID, "boundary", rows); err != nil {
		logger.Warn("publish rows failed", "error", err, "rows", rows.Len())
		return
	}
	p.metrics.RowsPublished.Add(float64(rows.Len()))
}
