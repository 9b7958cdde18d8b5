package si3d

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

var errNoDateFields = errors.New("no start date fields found")

// The si3d_inp.txt start date rows. Column alignment is significant to si3d.
var inpDateFields = []struct {
	re     *regexp.Regexp
	format func(time.Time) string
}{
	{regexp.MustCompile(`year         !    \d+            !`), func(t time.Time) string {
		return fmt.Sprintf("year         !    %04d            !", t.Year())
	}},
	{regexp.MustCompile(`month        !      \d+            !`), func(t time.Time) string {
		return fmt.Sprintf("month        !      %02d            !", int(t.Month()))
	}},
	{regexp.MustCompile(`day          !      \d+            !`), func(t time.Time) string {
		return fmt.Sprintf("day          !      %02d            !", t.Day())
	}},
	{regexp.MustCompile(`hour         !    \d+            !`), func(t time.Time) string {
		return fmt.Sprintf("hour         !    %02d00            !", t.Hour())
	}},
}

// UpdateInputDate rewrites the simulation start date in the si3d_inp.txt at path.
func UpdateInputDate(path string, start time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	out, err := SetInputDate(data, start)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeFile(path, out)
}

// SetInputDate returns the si3d_inp.txt contents with the start year, month,
// day and hour replaced by start in UTC.
func SetInputDate(data []byte, start time.Time) ([]byte, error) {
	start = start.UTC()
	matched := false
	for _, f := range inpDateFields {
		if f.re.Match(data) {
			matched = true
			data = f.re.ReplaceAllLiteral(data, []byte(f.format(start)))
		}
	}
	if !matched {
		return nil, errNoDateFields
	}
	return data, nil
}
