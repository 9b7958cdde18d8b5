package si3d

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
)

const (
	tfHeaderLines = 7
	tfLayerFields = 7
	tfStartMarker = "Start date of run:"
	tfStartLayout = "01/02/2006 at 1500 hours"
)

// TFLayer is one layer of a node time-file snapshot.
type TFLayer struct {
	Depth  float64
	U      float64
	V      float64
	W      float64
	Av     float64
	Dv     float64
	Scalar float64 // temperature, °C
}

// TFSnapshot is the vertical state of a model node at one output time.
type TFSnapshot struct {
	Time   time.Time
	Layers []TFLayer
}

// Profile returns the snapshot's temperature profile ordered by depth magnitude.
func (s TFSnapshot) Profile() domain.Profile {
	p := make(domain.Profile, len(s.Layers))
	for i, l := range s.Layers {
		p[i] = domain.DepthSample{Depth: -math.Abs(l.Depth), Temperature: l.Scalar}
	}
	sort.SliceStable(p, func(i, j int) bool { return p[i].Depth > p[j].Depth })
	return p
}

// ParseTFFile reads a model node time file. The second line carries the run
// start; after seven header lines each snapshot opens with a row of
// hours, step, and surface elevation followed by the first layer, and
// continues with one row per layer.
func ParseTFFile(r io.Reader) ([]TFSnapshot, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		start     time.Time
		snapshots []TFSnapshot
		width     int
		line      int
	)
	for sc.Scan() {
		line++
		text := sc.Text()
		if line == 2 {
			t, err := parseTFStart(text)
			if err != nil {
				return nil, err
			}
			start = t
		}
		if line <= tfHeaderLines || strings.TrimSpace(text) == "" {
			continue
		}

		cols, err := parseColumns(text)
		if err != nil {
			return nil, fmt.Errorf("tf line %d: %w", line, err)
		}
		if width == 0 {
			width = len(cols)
			if width != tfLayerFields+3 {
				return nil, fmt.Errorf("tf line %d: snapshot row has %d columns, want %d", line, width, tfLayerFields+3)
			}
		}

		switch len(cols) {
		case width:
			hours := cols[0]
			snapshots = append(snapshots, TFSnapshot{
				Time:   start.Add(time.Duration(hours * float64(time.Hour))),
				Layers: []TFLayer{layerOf(cols[3:])},
			})
		case tfLayerFields:
			if len(snapshots) == 0 {
				return nil, fmt.Errorf("tf line %d: layer row before first snapshot", line)
			}
			cur := &snapshots[len(snapshots)-1]
			cur.Layers = append(cur.Layers, layerOf(cols))
		default:
			return nil, fmt.Errorf("tf line %d: %d columns", line, len(cols))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tf file: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("tf file: %w", domain.ErrNoSamples)
	}
	return snapshots, nil
}

func parseTFStart(text string) (time.Time, error) {
	_, after, ok := strings.Cut(text, tfStartMarker)
	if !ok {
		return time.Time{}, &domain.ParseError{Field: "start date", Value: text, Err: fmt.Errorf("missing %q", tfStartMarker)}
	}
	t, err := time.ParseInLocation(tfStartLayout, strings.TrimSpace(after), time.UTC)
	if err != nil {
		return time.Time{}, &domain.ParseError{Field: "start date", Value: strings.TrimSpace(after), Err: err}
	}
	return t, nil
}

func parseColumns(text string) ([]float64, error) {
	fields := strings.Fields(text)
	cols := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &domain.ParseError{Field: fmt.Sprintf("column %d", i+1), Value: f, Err: err}
		}
		cols[i] = v
	}
	return cols, nil
}

func layerOf(c []float64) TFLayer {
	return TFLayer{Depth: c[0], U: c[1], V: c[2], W: c[3], Av: c[4], Dv: c[5], Scalar: c[6]}
}
