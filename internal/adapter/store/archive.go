// Package store keeps the forecast history in a flat CSV file.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
)

const timeColumn = "time"

// Archive is a CSV file of feature rows ordered by time.
type Archive struct {
	path string
}

// NewArchive returns an archive backed by the file at path. The file is created on first save.
func NewArchive(path string) *Archive {
	return &Archive{path: path}
}

// Load reads every archived row. A missing file is an empty archive.
func (a *Archive) Load() (domain.FeatureTable, error) {
	f, err := os.Open(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.FeatureTable{}, nil
	}
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	table, err := decode(f)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("archive %s: %w", a.path, err)
	}
	return table, nil
}

// Upsert replaces every archived row at or after the first row of fresh with
// fresh, then saves. It returns the resulting archive contents.
func (a *Archive) Upsert(fresh domain.FeatureTable) (domain.FeatureTable, error) {
	existing, err := a.Load()
	if err != nil {
		return domain.FeatureTable{}, err
	}
	if fresh.Len() == 0 {
		return existing, nil
	}

	cutoff := fresh.Rows[0].Time
	rows := make([]domain.Row, 0, existing.Len()+fresh.Len())
	for _, r := range existing.Rows {
		if r.Time.Before(cutoff) {
			rows = append(rows, r)
		}
	}
	rows = append(rows, fresh.Rows...)
	merged := domain.FeatureTable{Rows: rows}

	if err := a.save(merged); err != nil {
		return domain.FeatureTable{}, err
	}
	return merged, nil
}

func (a *Archive) save(table domain.FeatureTable) (err error) {
	f, err := os.Create(a.path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()
	return encode(f, table)
}

func columns(table domain.FeatureTable) []string {
	seen := map[string]bool{}
	for _, r := range table.Rows {
		for k := range r.Values {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func encode(w io.Writer, table domain.FeatureTable) error {
	cw := csv.NewWriter(w)
	cols := columns(table)
	if err := cw.Write(append([]string{timeColumn}, cols...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(cols)+1)
	for _, r := range table.Rows {
		record[0] = r.Time.UTC().Format(time.RFC3339)
		for i, c := range cols {
			v, ok := r.Values[c]
			if !ok || math.IsNaN(v) {
				record[i+1] = ""
				continue
			}
			record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func decode(r io.Reader) (domain.FeatureTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.FeatureTable{}, nil
	}
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 || header[0] != timeColumn {
		return domain.FeatureTable{}, fmt.Errorf("first column is %q, want %q", header[0], timeColumn)
	}

	var rows []domain.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.FeatureTable{}, fmt.Errorf("read row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return domain.FeatureTable{}, &domain.ParseError{Field: timeColumn, Value: rec[0], Err: err}
		}
		values := make(map[string]float64, len(header)-1)
		for i, col := range header[1:] {
			raw := rec[i+1]
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return domain.FeatureTable{}, &domain.ParseError{Field: col, Value: raw, Err: err}
			}
			values[col] = v
		}
		rows = append(rows, domain.Row{Time: ts.UTC(), Values: values})
	}
	return domain.FeatureTable{Rows: rows}, nil
}
