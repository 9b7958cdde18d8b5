package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/feed"
	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/si3d"
	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
)

// ProfileSource names where an initial profile came from.
type ProfileSource string

const (
	ProfileFromFeeds    ProfileSource = "feeds"
	ProfileFromNodeFile ProfileSource = "node_file"
)

// ProfileResult describes one written init file.
type ProfileResult struct {
	Path   string        `json:"path"`
	Source ProfileSource `json:"source"`
	Layers int           `json:"layers"`
}

// ProfilePipeline writes si3d_init.txt from the nearshore station and
// thermistor chain, falling back to the model's node time file.
type ProfilePipeline struct {
	fetcher  Fetcher
	site     domain.Site
	stations Stations
	modelDir string
	nodeFile string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewProfilePipeline wires the profile stages. An empty nodeFile disables the fallback.
func NewProfilePipeline(
	fetcher Fetcher,
	site domain.Site,
	stations Stations,
	modelDir, nodeFile string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *ProfilePipeline {
	return &ProfilePipeline{
		fetcher:  fetcher,
		site:     site,
		stations: stations,
		modelDir: modelDir,
		nodeFile: nodeFile,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run builds the profile nearest after target and writes it onto the site depth grid.
// When neither source yields a profile the error wraps domain.ErrNoProfile and
// any existing init file is left untouched.
func (p *ProfilePipeline) Run(ctx context.Context, runID string, target time.Time) (ProfileResult, error) {
	logger := p.logger.With("run_id", runID, "pipeline", "profile")

	source := ProfileFromFeeds
	samples, feedErr := p.fromFeeds(ctx, target)
	if feedErr != nil {
		if ctx.Err() != nil {
			return ProfileResult{}, ctx.Err()
		}
		logger.Warn("feed profile unavailable, trying node file", "error", feedErr)
		p.metrics.ProfileFallback.Inc()

		var fileErr error
		samples, fileErr = p.fromNodeFile()
		if fileErr != nil {
			return ProfileResult{}, fmt.Errorf("%w: feeds: %w; node file: %w", domain.ErrNoProfile, feedErr, fileErr)
		}
		source = ProfileFromNodeFile
	}

	path := filepath.Join(p.modelDir, InitFileName)
	if err := si3d.WriteInitFile(path, samples, domain.Now()); err != nil {
		return ProfileResult{}, fmt.Errorf("write init file: %w", err)
	}

	logger.Info("init file written", "path", path, "source", source, "layers", len(samples))
	return ProfileResult{Path: path, Source: source, Layers: len(samples)}, nil
}

func (p *ProfilePipeline) fromFeeds(ctx context.Context, target time.Time) ([]domain.DepthSample, error) {
	nearshore, err := p.sampleAt(ctx, feed.Nearshore, p.stations.Nearshore, target)
	if err != nil {
		return nil, err
	}
	chain, err := p.sampleAt(ctx, feed.TChain, p.stations.TChain, target)
	if err != nil {
		return nil, err
	}
	profile, err := domain.BuildProfile(p.site, nearshore, chain)
	if err != nil {
		return nil, err
	}
	return domain.Resample(profile, p.site.DepthGrid)
}

// sampleAt fetches the report day containing target and picks the first sample at or after it.
func (p *ProfilePipeline) sampleAt(ctx context.Context, ep feed.Endpoint, id int, target time.Time) (domain.RawSample, error) {
	samples, err := p.fetcher.Fetch(ctx, feed.Query{Endpoint: ep, StationID: id, Start: target})
	if err != nil {
		return nil, err
	}
	s, err := domain.SelectSample(samples, target)
	if err != nil {
		return nil, fmt.Errorf("%s feed: %w", ep.Name, err)
	}
	return s, nil
}

func (p *ProfilePipeline) fromNodeFile() ([]domain.DepthSample, error) {
	if p.nodeFile == "" {
		return nil, fmt.Errorf("no node file configured: %w", domain.ErrNoSamples)
	}
	f, err := os.Open(p.nodeFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snapshots, err := si3d.ParseTFFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.nodeFile, err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%s: %w", p.nodeFile, domain.ErrNoSamples)
	}
	return domain.Resample(snapshots[len(snapshots)-1].Profile(), p.site.DepthGrid)
}
