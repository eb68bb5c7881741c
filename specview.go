package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/specview/api"
	"github.com/hb9tf/specview/capture"
	"github.com/hb9tf/specview/display"
	"github.com/hb9tf/specview/export"
	"github.com/hb9tf/specview/filter"
	"github.com/hb9tf/specview/raster"
	"github.com/hb9tf/specview/render"
	"github.com/hb9tf/specview/sdr"
	"github.com/hb9tf/specview/simulator"
	"github.com/hb9tf/specview/sweep"

	// Blind import support for sqlite3 used by the sqlite exporter.
	_ "github.com/mattn/go-sqlite3"
)

// Flags
var (
	identifier = flag.String("id", "", "unique identifier of source instance (defaults to a random UUID)")
	source     = flag.String("source", "sim", "Frame source to use (one of: sim, rtl_power, hackrf_sweep)")

	// Simulator
	centerFreq = flag.Float64("centerFreq", 100e6, "center frequency of the simulated receiver in Hz")
	sampleRate = flag.Float64("sampleRate", 2e6, "sample rate of the simulated receiver in Hz")
	fftSize    = flag.Int("fftSize", 1024, "FFT size of the simulated receiver (power of two)")
	noiseFloor = flag.Float64("noiseFloor", -90, "noise floor of the simulated receiver in dBFS")

	// Sweep tools
	lowFreq             = flag.Int("lowFreq", 400000000, "lower frequency boundary in Hz")
	highFreq            = flag.Int("highFreq", 450000000, "upper frequency boundary in Hz")
	binSize             = flag.Int("binSize", 12500, "size of the bin in Hz")
	sampleSize          = flag.Int("samples", 8192, "samples to take per bin (hackrf_sweep)")
	integrationInterval = flag.Duration("integrationInterval", 5*time.Second, "duration to aggregate samples (rtl_power)")

	// Filtering
	cropLow  = flag.Float64("cropLow", 0, "drop bins below this frequency in Hz (0 disables cropping)")
	cropHigh = flag.Float64("cropHigh", 0, "drop bins above this frequency in Hz (0 disables cropping)")

	// Display
	frameRate = flag.Float64("frameRate", render.DefaultFrameRate, "frames per second, used to size the waterfall history")
	timeSpan  = flag.Float64("timeSpan", render.DefaultTimeSpan, "visible waterfall history in seconds")
	minDB     = flag.Float64("minDB", render.DefaultMinDB, "lower end of the display range in dB")
	maxDB     = flag.Float64("maxDB", render.DefaultMaxDB, "upper end of the display range in dB")
	colorMap  = flag.String("colorMap", "heat", "color map to use (one of: grayscale, heat, spectre)")
	imgWidth  = flag.Int("imgWidth", 1024, "default width of rendered snapshots in pixels")
	imgHeight = flag.Int("imgHeight", 480, "default height of rendered snapshots in pixels")

	// Capture
	captureTimeout   = flag.Duration("captureTimeout", capture.DefaultExtractTimeout, "maximum time to wait for the receiver during a capture (0 waits forever)")
	captureToDisplay = flag.Bool("captureToDisplay", false, "push successful captures into the waterfall")
	output           = flag.String("output", "none", "Export mechanism to use for captures (one of: none, csv, sqlite, mysql)")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/specview", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "specview", "Name of the DB to use.")

	// Forwarding
	forwardServer = flag.String("forwardServer", "", "URL scheme, address and port of another specview instance to forward frames to.")
	forwardFrames = flag.Int("forwardFrames", 0, "Defines how many frames should be sent to the server at once.")

	// Webserver
	listen   = flag.String("listen", ":8443", "")
	certFile = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile  = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
)

// newExporter exits on setup errors and returns nil if exports are disabled.
// The database is returned for SQL exporters.
func newExporter() (export.Exporter, *sql.DB) {
	switch strings.ToLower(*output) {
	case "none", "":
		return nil, nil
	case "csv":
		return &export.CSV{}, nil
	case "sqlite":
		db, err := sql.Open("sqlite3", *sqliteFile)
		if err != nil {
			glog.Exitf("unable to open sqlite DB %q: %s", *sqliteFile, err)
		}
		return &export.SQL{DB: db, Dialect: export.SQLite}, db
	case "mysql":
		pass, err := os.ReadFile(*mysqlPasswordFile)
		if err != nil {
			glog.Exitf("unable to read MySQL password file %q: %s", *mysqlPasswordFile, err)
		}
		cfg := mysql.Config{
			User:   *mysqlUser,
			Passwd: strings.TrimSpace(string(pass)),
			Net:    "tcp",
			Addr:   *mysqlServer,
			DBName: *mysqlDBName,
		}
		db, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			glog.Exitf("unable to open MySQL DB %q: %s", *mysqlServer, err)
		}
		db.SetConnMaxLifetime(3 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		return &export.SQL{DB: db, Dialect: export.MySQL}, db
	}
	glog.Exitf("%q is not a supported export method, pick one of: none, csv, sqlite, mysql", *output)
	return nil, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	if *identifier == "" {
		*identifier = uuid.NewString()
	}

	// Source setup. Only the simulator doubles as a live capture receiver.
	var (
		src sdr.Source
		rx  sdr.Receiver
	)
	switch strings.ToLower(*source) {
	case simulator.SourceName:
		opts := simulator.DefaultOptions()
		opts.Identifier = *identifier
		opts.CenterFreq = *centerFreq
		opts.SampleRate = *sampleRate
		opts.FFTSize = *fftSize
		opts.NoiseFloor = *noiseFloor
		opts.FrameRate = *frameRate
		sim, err := simulator.New(opts)
		if err != nil {
			glog.Exitf("unable to set up simulator: %s", err)
		}
		src, rx = sim, sim
	default:
		tool, err := sweep.ParseTool(strings.ToLower(*source))
		if err != nil {
			glog.Exitf("%q is not a supported source, pick one of: sim, rtl_power, hackrf_sweep", *source)
		}
		src = &sweep.SDR{
			Identifier: *identifier,
			Tool:       tool,
			Opts: sweep.Options{
				LowFreq:             *lowFreq,
				HighFreq:            *highFreq,
				BinSize:             *binSize,
				IntegrationInterval: *integrationInterval,
				SampleSize:          *sampleSize,
			},
		}
	}

	// Display setup
	dopts := display.DefaultOptions()
	dopts.Waterfall.TimeSpan = *timeSpan
	dopts.Waterfall.FrameRate = *frameRate
	dopts.Waterfall.Range = render.DisplayRange{MinDB: *minDB, MaxDB: *maxDB}
	dopts.Waterfall.ColorMap = *colorMap
	dopts.Spectrum.Range = dopts.Waterfall.Range
	dopts.Spectrum.ColorMap = *colorMap
	disp, err := display.New(dopts)
	if err != nil {
		glog.Exitf("unable to set up display: %s", err)
	}

	// Exporter setup
	exporter, db := newExporter()
	capOpts := []capture.Option{capture.WithExtractTimeout(*captureTimeout)}
	if exporter != nil {
		results := make(chan sdr.CaptureResult, 100)
		capOpts = append(capOpts, capture.WithListener(capture.ListenerFuncs{
			OnComplete: func(res *sdr.CaptureResult) {
				select {
				case results <- *res:
				default:
					glog.Warningf("export queue full, dropping capture %s", res.ID)
				}
			},
		}))
		go func() {
			if err := exporter.Write(ctx, results); err != nil && ctx.Err() == nil {
				glog.Errorf("capture export stopped: %s", err)
			}
		}()
	}
	capturer := capture.New(rx, capOpts...)

	// Frame pipeline: source -> filters -> display.
	raw := make(chan sdr.Frame, 100)
	frames := make(chan sdr.Frame, 100)
	go func() {
		if err := src.Stream(ctx, raw); err != nil && ctx.Err() == nil {
			glog.Errorf("%s source stopped: %s", src.Name(), err)
		}
		close(raw)
	}()
	filters := []filter.Filterer{filter.FilterEmpty{}}
	if *cropLow > 0 || *cropHigh > 0 {
		high := *cropHigh
		if high <= 0 {
			high = 1e12
		}
		filters = append(filters, &filter.FilterFreq{FreqLow: *cropLow, FreqHigh: high})
	}
	go func() {
		filter.Filter(ctx, raw, frames, filters)
		close(frames)
	}()
	go disp.Run(ctx, frames)

	if *forwardServer != "" {
		sub, cancel := disp.Subscribe()
		defer cancel()
		fwd := &export.Remote{Server: *forwardServer, SendFramesAmount: *forwardFrames}
		go fwd.Forward(ctx, sub)
	}

	// Configure and run webserver.
	gin.SetMode(gin.ReleaseMode)
	s := api.New(disp, api.Options{
		Capturer:         capturer,
		Raster:           raster.Options{Width: *imgWidth, Height: *imgHeight, AddGrid: true},
		CaptureToDisplay: *captureToDisplay,
		Captures:         db,
	})
	server := &http.Server{
		Addr:    *listen,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if *certFile != "" || *keyFile != "" {
		err = server.ListenAndServeTLS(*certFile, *keyFile)
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		glog.Errorf("webserver stopped: %s", err)
	}
}
