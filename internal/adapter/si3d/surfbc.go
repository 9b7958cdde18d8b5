package si3d

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
)

// BoundaryStep is the time step of the surface boundary record stream.
const BoundaryStep = 10 * time.Minute

const (
	fieldWidth   = 10
	headerLines  = 6
	recordFields = 10
)

// Constants are the physical coefficients written unchanged into every record.
type Constants struct {
	Attenuation float64 // light attenuation, 1/m
	WindDrag    float64 // dimensionless
}

// BoundaryRecord is one line of surfbc.txt.
type BoundaryRecord struct {
	Hours       float64 // since the start of the run
	Attenuation float64
	Shortwave   float64
	AirTemp     float64
	Pressure    float64
	Humidity    float64
	Longwave    float64
	WindDrag    float64
	WindU       float64
	WindV       float64
}

func (r BoundaryRecord) fields() [recordFields]float64 {
	return [recordFields]float64{r.Hours, r.Attenuation, r.Shortwave, r.AirTemp, r.Pressure,
		r.Humidity, r.Longwave, r.WindDrag, r.WindU, r.WindV}
}

// precision of each column, in record field order.
var precision = [recordFields]int{4, 4, 2, 2, 1, 4, 2, 5, 4, 4}

var (
	columnNames = [recordFields]string{"Time", "Attn", "Hsw", "Ta", "Pa", "Hr", "Hlw", "Cw", "Uwind", "Vwind"}
	columnUnits = [recordFields]string{"(hrs)", "(1/m)", "(W/m2)", "(oC)", "(Pa)", "(-)", "(W/m2)", "(-)", "(m/s)", "(m/s)"}
)

// BoundaryRecords resamples the table onto a 10-minute clock starting at start.
// The clock runs until it passes the last row. Each feature is interpolated
// linearly between the rows bracketing the clock; records before the first
// row repeat the first row's values. At least two rows at or after start are
// required.
func BoundaryRecords(table domain.FeatureTable, start time.Time, consts Constants) ([]BoundaryRecord, error) {
	rows := table.From(start).Rows
	if len(rows) < 2 {
		return nil, &domain.InsufficientDataError{Rows: len(rows), Start: start}
	}

	last := rows[len(rows)-1].Time
	records := make([]BoundaryRecord, 0, int(last.Sub(start)/BoundaryStep)+1)
	prev, next := 0, 1
	for clock := start; !clock.After(last); clock = clock.Add(BoundaryStep) {
		for next < len(rows)-1 && clock.After(rows[next].Time) {
			prev++
			next++
		}
		p, n := rows[prev], rows[next]
		frac := clock.Sub(p.Time).Hours() / n.Time.Sub(p.Time).Hours()

		lerp := func(feature string) float64 {
			return interpolate(p.Values[feature], n.Values[feature], frac)
		}
		records = append(records, BoundaryRecord{
			Hours:       clock.Sub(start).Hours(),
			Attenuation: consts.Attenuation,
			Shortwave:   lerp(domain.FeatureShortwave),
			AirTemp:     lerp(domain.FeatureAirTemp),
			Pressure:    lerp(domain.FeaturePressure),
			Humidity:    lerp(domain.FeatureHumidity),
			Longwave:    lerp(domain.FeatureLongwave),
			WindDrag:    consts.WindDrag,
			WindU:       lerp(domain.FeatureWindU),
			WindV:       lerp(domain.FeatureWindV),
		})
	}
	return records, nil
}

// interpolate returns a value between a and b. The fraction is clamped to
// [0, 1] and the endpoints return a and b exactly.
func interpolate(a, b, frac float64) float64 {
	switch {
	case frac <= 0:
		return a
	case frac >= 1:
		return b
	default:
		return a + frac*(b-a)
	}
}

// WriteBoundaryFile writes surfbc.txt for the table, replacing any existing
// file at path. Nothing is written when the table has too few rows or a value
// does not fit its field.
func WriteBoundaryFile(table domain.FeatureTable, start time.Time, path string, consts Constants) error {
	records, err := BoundaryRecords(table, start, consts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := encodeBoundary(&buf, start, records); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

func encodeBoundary(w io.Writer, start time.Time, records []BoundaryRecord) error {
	bw := bufio.NewWriter(w)
	end := start.Add(time.Duration(len(records)-1) * BoundaryStep)

	fmt.Fprintf(bw, "Surface boundary condition file for si3d model   -\n")
	fmt.Fprintf(bw, "Data points: %d\n", len(records))
	fmt.Fprintf(bw, "From %s to %s\n", start.UTC().Format("2006-01-02 15:04 MST"), end.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(bw, "Time step: %d min\n", int(BoundaryStep.Minutes()))
	writeLegend(bw, columnNames)
	writeLegend(bw, columnUnits)

	for i, r := range records {
		for j, v := range r.fields() {
			s := strconv.FormatFloat(v, 'f', precision[j], 64)
			if len(s) > fieldWidth {
				return fmt.Errorf("record %d %s %s: %w", i, columnNames[j], s, domain.ErrFieldOverflow)
			}
			fmt.Fprintf(bw, "%*s ", fieldWidth, s)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeLegend(w io.Writer, cols [recordFields]string) {
	for _, c := range cols {
		fmt.Fprintf(w, "%*s ", fieldWidth, c)
	}
	fmt.Fprintln(w)
}

// BoundaryFile is a parsed surfbc.txt.
type BoundaryFile struct {
	Header  []string
	Records []BoundaryRecord
}

// ParseBoundaryFile reads a surfbc.txt stream. Each data line must hold ten
// 10-character fields separated by single spaces.
func ParseBoundaryFile(r io.Reader) (BoundaryFile, error) {
	var out BoundaryFile
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if line <= headerLines {
			out.Header = append(out.Header, text)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := parseRecord(text)
		if err != nil {
			return BoundaryFile{}, fmt.Errorf("line %d: %w", line, err)
		}
		out.Records = append(out.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return BoundaryFile{}, fmt.Errorf("read boundary file: %w", err)
	}
	if len(out.Header) < headerLines {
		return BoundaryFile{}, fmt.Errorf("boundary file has %d header lines, want %d", len(out.Header), headerLines)
	}
	return out, nil
}

func parseRecord(text string) (BoundaryRecord, error) {
	var v [recordFields]float64
	for i := range v {
		lo := i * (fieldWidth + 1)
		hi := lo + fieldWidth
		if hi > len(text) {
			return BoundaryRecord{}, fmt.Errorf("want %d fields, line is %d chars", recordFields, len(text))
		}
		raw := strings.TrimSpace(text[lo:hi])
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return BoundaryRecord{}, &domain.ParseError{Field: columnNames[i], Value: raw, Err: err}
		}
		v[i] = f
	}
	return BoundaryRecord{
		Hours: v[0], Attenuation: v[1], Shortwave: v[2], AirTemp: v[3], Pressure: v[4],
		Humidity: v[5], Longwave: v[6], WindDrag: v[7], WindU: v[8], WindV: v[9],
	}, nil
}

// writeFile replaces the file at path with data.
func writeFile(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
