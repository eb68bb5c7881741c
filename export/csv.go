package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/sdr"
)

var csvHeader = []string{
	"ID",
	"Success",
	"Error",
	"StartFreq",
	"EndFreq",
	"FFTSize",
	"SampleRate",
	"TimestampUnixMilli",
	"Bins",
	"dBLow",
	"dBHigh",
	"dBAvg",
	"Magnitudes",
}

// CSV writes one line per capture. Magnitudes are joined by semicolons.
type CSV struct {
	// Out defaults to stdout.
	Out io.Writer
}

func (c *CSV) Write(ctx context.Context, results <-chan sdr.CaptureResult) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("unable to write CSV header: %w", err)
	}
	w.Flush()

	for {
		var (
			r  sdr.CaptureResult
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok = <-results:
		}
		if !ok {
			return nil
		}

		if err := w.Write(csvRecord(r)); err != nil {
			glog.Warningf("error while writing CSV line: %s", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			glog.Warningf("error flushing CSV: %s", err)
		}
	}
}

func csvRecord(r sdr.CaptureResult) []string {
	s, ok := summarize(r)
	stat := func(v float64) string {
		if !ok {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	mags := make([]string, len(r.Magnitudes))
	for i, m := range r.Magnitudes {
		mags[i] = strconv.FormatFloat(m, 'f', 2, 64)
	}
	return []string{
		r.ID,
		strconv.FormatBool(r.Success),
		r.Error,
		fmt.Sprintf("%.0f", r.Range.StartFreq),
		fmt.Sprintf("%.0f", r.Range.EndFreq),
		fmt.Sprintf("%d", r.Range.FFTSize),
		fmt.Sprintf("%.0f", r.Range.SampleRate),
		fmt.Sprintf("%d", r.Time().UnixMilli()),
		fmt.Sprintf("%d", s.Bins),
		stat(s.DBLow),
		stat(s.DBHigh),
		stat(s.DBAvg),
		strings.Join(mags, ";"),
	}
}
