package si3d

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
)

// pacific is the zone named in the creation stamp of si3d_init.txt.
var pacific = time.FixedZone("PST", -8*60*60)

const initHeader = "Initial condition file for si3d model            -\n" +
	"Stratification for Lake Tahoe                    -\n" +
	"File created on %s                       \n" +
	"Depths (m)   Temp (oC)                           -\n" +
	"Source: From CTD_Profile                         -\n" +
	"--------------------------------------------------\n"

// WriteInitFile writes si3d_init.txt: a six-line header stamped with now,
// then one depth/temperature line per sample. Any existing file is replaced.
func WriteInitFile(path string, samples []domain.DepthSample, now time.Time) error {
	if len(samples) == 0 {
		return fmt.Errorf("write init file: %w", domain.ErrNoSamples)
	}

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	fmt.Fprintf(bw, initHeader, now.In(pacific).Format("2006-01-02 03:04 PM MST"))
	for i, s := range samples {
		depth := strconv.FormatFloat(s.Depth, 'f', 2, 64)
		temp := strconv.FormatFloat(s.Temperature, 'f', 4, 64)
		if len(depth) > fieldWidth || len(temp) > fieldWidth {
			return fmt.Errorf("sample %d (%s, %s): %w", i, depth, temp, domain.ErrFieldOverflow)
		}
		fmt.Fprintf(bw, "%*s %*s \n", fieldWidth, depth, fieldWidth, temp)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}
