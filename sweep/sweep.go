// Package sweep turns the CSV output of rtl_power and hackrf_sweep into
// spectrum frames, one frame per completed sweep.
package sweep

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/sdr"
)

// Tool is the name of a supported sweep binary.
type Tool string

const (
	RTLPower    Tool = "rtl_power"
	HackRFSweep Tool = "hackrf_sweep"
)

// metaFields is the number of leading columns before the dB values:
// date, time, hz_low, hz_high, hz_bin_width, num_samples.
const metaFields = 6

// ParseTool maps a tool name to a Tool.
func ParseTool(name string) (Tool, error) {
	switch t := Tool(name); t {
	case RTLPower, HackRFSweep:
		return t, nil
	}
	return "", fmt.Errorf("%q is not a supported sweep tool, pick one of: %s, %s", name, RTLPower, HackRFSweep)
}

// Options configures a sweep.
type Options struct {
	LowFreq  int // Hz
	HighFreq int // Hz
	BinSize  int // Hz
	// IntegrationInterval is used by rtl_power.
	IntegrationInterval time.Duration
	// SampleSize is the number of samples per frequency used by hackrf_sweep.
	SampleSize int
}

// SDR runs a sweep tool and streams its sweeps as frames.
type SDR struct {
	Identifier string
	Tool       Tool
	Opts       Options
}

func (s *SDR) Name() string {
	return string(s.Tool)
}

func (s *SDR) args() []string {
	switch s.Tool {
	case HackRFSweep:
		return []string{
			"-f", fmt.Sprintf("%d:%d", s.Opts.LowFreq/1000000, s.Opts.HighFreq/1000000),
			"-n", strconv.Itoa(s.Opts.SampleSize),
			"-w", strconv.Itoa(s.Opts.BinSize),
		}
	default:
		return []string{
			"-f", fmt.Sprintf("%d:%d:%d", s.Opts.LowFreq, s.Opts.HighFreq, s.Opts.BinSize),
			"-i", fmt.Sprintf("%ds", int(s.Opts.IntegrationInterval.Seconds())),
			"-", // dumps samples to stdout
		}
	}
}

// Stream runs the sweep tool until it exits or ctx is done.
func (s *SDR) Stream(ctx context.Context, frames chan<- sdr.Frame) error {
	cmd := exec.CommandContext(ctx, string(s.Tool), s.args()...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("unable to attach to %s output: %w", s.Tool, err)
	}
	glog.Infof("running sweep: %q", cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to start sweep: %w", err)
	}

	readErr := s.Read(ctx, out, frames)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", s.Tool, waitErr)
	}
	return nil
}

// Read parses sweep rows from r and emits a frame whenever a sweep wraps
// around to its lowest frequency, plus a final frame at EOF. Malformed rows
// are logged and skipped.
func (s *SDR) Read(ctx context.Context, r io.Reader, frames chan<- sdr.Frame) error {
	asm := &assembler{identifier: s.Identifier, source: s.Name()}
	send := func(f sdr.Frame) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frames <- f:
			return nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		row, err := parseRow(scanner.Text())
		if err != nil {
			glog.Warningf("error parsing line: %s", err)
			continue
		}
		if f, ok := asm.add(row); ok {
			if err := send(f); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("unable to read sweep output: %w", err)
	}
	if f, ok := asm.flush(); ok {
		return send(f)
	}
	return nil
}

// row is one line of sweep output covering [Low, High).
type row struct {
	Time     time.Time
	Low      float64
	High     float64
	BinWidth float64
	Samples  int
	DB       []float64
}

func parseRow(line string) (row, error) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) <= metaFields {
		return row{}, fmt.Errorf("expected more than %d fields, got %d", metaFields, len(fields))
	}

	ts, err := time.Parse(time.RFC3339, fields[0]+"T"+fields[1]+"Z")
	if err != nil {
		return row{}, err
	}
	var r row
	r.Time = ts
	for i, dst := range []*float64{&r.Low, &r.High, &r.BinWidth} {
		v, err := strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return row{}, err
		}
		*dst = v
	}
	if r.High <= r.Low {
		return row{}, fmt.Errorf("high frequency %.0f is not above low frequency %.0f", r.High, r.Low)
	}
	samples, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return row{}, err
	}
	r.Samples = int(samples)

	r.DB = make([]float64, 0, len(fields)-metaFields)
	for _, f := range fields[metaFields:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return row{}, err
		}
		r.DB = append(r.DB, v)
	}
	return r, nil
}

// assembler stitches rows of the same sweep together.
type assembler struct {
	identifier string
	source     string
	rows       []row
	lowest     float64
}

// add returns the previous sweep once row starts a new one. hackrf_sweep
// interleaves the quarter bands of each tuning step, so rows of one sweep are
// not ordered; a sweep only ends when a row returns to its lowest frequency.
func (a *assembler) add(r row) (sdr.Frame, bool) {
	var (
		f  sdr.Frame
		ok bool
	)
	if len(a.rows) > 0 && r.Low <= a.lowest {
		f, ok = a.flush()
	}
	if len(a.rows) == 0 || r.Low < a.lowest {
		a.lowest = r.Low
	}
	a.rows = append(a.rows, r)
	return f, ok
}

func (a *assembler) flush() (sdr.Frame, bool) {
	if len(a.rows) == 0 {
		return sdr.Frame{}, false
	}
	rows := a.rows
	a.rows = nil
	sort.Slice(rows, func(i, j int) bool { return rows[i].Low < rows[j].Low })

	var mags []float64
	for _, r := range rows {
		mags = append(mags, r.DB...)
	}
	low, high := rows[0].Low, rows[len(rows)-1].High
	return sdr.Frame{
		Identifier: a.identifier,
		Source:     a.source,
		Magnitudes: mags,
		CenterFreq: (low + high) / 2,
		Bandwidth:  high - low,
		SampleRate: high - low,
		Time:       rows[0].Time,
	}, true
}
