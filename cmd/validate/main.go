// Command validate checks a generated surfbc.txt before it is handed to si3d.
// It verifies the header, the fixed-width layout of every data line, the
// 10-minute time step, and that each value lies within the site bounds.
//
// Usage:
//
//	go run ./cmd/validate -surfbc model/psi3d/surfbc.txt [-site site.yaml]
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/si3d"
	"github.com/couchcryptid/lake-forcing-etl/internal/config"
	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
)

const (
	fieldWidth   = 10
	recordFields = 10
	headerLines  = 6
	lineWidth    = recordFields * (fieldWidth + 1)
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	surfbc := flag.String("surfbc", "", "path to surfbc.txt")
	sitePath := flag.String("site", "", "optional site config YAML with feature bounds")
	flag.Parse()

	if *surfbc == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*surfbc, *sitePath, os.Stdout))
}

func run(path, sitePath string, out io.Writer) int {
	site, err := config.LoadSite(sitePath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}

	bf, err := si3d.ParseBoundaryFile(bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(out, "FATAL: parse %s: %v\n", path, err)
		return 1
	}

	phases := []*phase{
		validateLayout(data),
		validateHeader(bf),
		validateTimeStep(bf.Records),
		validateBounds(bf.Records, site.Bounds),
	}

	fmt.Fprintf(out, "=== surfbc validation: %s ===\n\n", path)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-24s %s\n", p.name, status)
	}
	fmt.Fprintf(out, "\nRecords: %d\n", len(bf.Records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// validateLayout checks that every data line holds ten right-aligned
// 10-character fields, each followed by one space.
func validateLayout(data []byte) *phase {
	p := &phase{name: "Fixed-width layout"}
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if line <= headerLines || strings.TrimSpace(text) == "" {
			continue
		}
		if len(text) != lineWidth {
			p.errorf("line %d: %d chars, want %d", line, len(text), lineWidth)
			continue
		}
		for i := range recordFields {
			field := text[i*(fieldWidth+1) : i*(fieldWidth+1)+fieldWidth]
			if sep := text[i*(fieldWidth+1)+fieldWidth]; sep != ' ' {
				p.errorf("line %d field %d: separator %q, want space", line, i+1, sep)
			}
			if strings.TrimSpace(field) == "" || field[fieldWidth-1] == ' ' {
				p.errorf("line %d field %d: %q is not right-aligned", line, i+1, field)
			}
		}
	}
	return p
}

func validateHeader(bf si3d.BoundaryFile) *phase {
	p := &phase{name: "Header"}
	const prefix = "Data points:"
	count := strings.TrimSpace(bf.Header[1])
	if !strings.HasPrefix(count, prefix) {
		p.errorf("line 2: %q, want %q", count, prefix+" N")
		return p
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(count, prefix)))
	if err != nil {
		p.errorf("line 2: %v", err)
		return p
	}
	if n != len(bf.Records) {
		p.errorf("header declares %d data points, file has %d", n, len(bf.Records))
	}
	if len(bf.Records) < 2 {
		p.errorf("file has %d records, need at least 2", len(bf.Records))
	}
	return p
}

func validateTimeStep(records []si3d.BoundaryRecord) *phase {
	p := &phase{name: "Time step"}
	step := si3d.BoundaryStep.Hours()
	for i, r := range records {
		// Hours carry four decimals in the file.
		if want := float64(i) * step; math.Abs(r.Hours-want) > 1e-4 {
			p.errorf("record %d: %.4f hours, want %.4f", i+1, r.Hours, want)
		}
	}
	return p
}

func validateBounds(records []si3d.BoundaryRecord, bounds domain.Bounds) *phase {
	p := &phase{name: "Feature bounds"}
	speed, checkWind := bounds[domain.FeatureWindSpeed]
	for i, r := range records {
		checks := []struct {
			feature string
			value   float64
		}{
			{domain.FeatureShortwave, r.Shortwave},
			{domain.FeatureAirTemp, r.AirTemp},
			{domain.FeaturePressure, r.Pressure},
			{domain.FeatureHumidity, r.Humidity},
			{domain.FeatureLongwave, r.Longwave},
		}
		for _, c := range checks {
			rng, ok := bounds[c.feature]
			if !ok {
				continue
			}
			// Allow for the rounding of the printed value.
			if c.value < rng.Lower-0.01 || c.value > rng.Upper+0.01 {
				p.errorf("record %d: %s %.4f outside [%g, %g]", i+1, c.feature, c.value, rng.Lower, rng.Upper)
			}
		}
		if s := math.Hypot(r.WindU, r.WindV); checkWind && s > speed.Upper+0.01 {
			p.errorf("record %d: wind speed %.4f above %g", i+1, s, speed.Upper)
		}
	}
	return p
}
