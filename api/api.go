// Package api exposes capture, display control and rendered snapshots over
// HTTP.
package api

import (
	"bytes"
	"database/sql"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/hb9tf/specview/capture"
	"github.com/hb9tf/specview/colormap"
	"github.com/hb9tf/specview/display"
	"github.com/hb9tf/specview/extraction"
	"github.com/hb9tf/specview/raster"
	"github.com/hb9tf/specview/render"
	"github.com/hb9tf/specview/sdr"
)

const (
	basePath = "/specview/v1"

	captureEndpoint   = "/capture"
	framesEndpoint    = "/frames"
	displayEndpoint   = "/display"
	autoRangeEndpoint = "/display/autorange"
	waterfallEndpoint = "/waterfall.png"
	spectrumEndpoint  = "/spectrum.png"
	receiverEndpoint  = "/receiver"
	streamEndpoint    = "/stream"
	capturesEndpoint  = "/captures.png"

	// captureSource marks frames pushed from one-shot captures.
	captureSource = "capture"
	maxImageSide  = 4096
)

// Server serves the HTTP API for one display and capturer.
type Server struct {
	display  *display.Display
	capturer *capture.Capturer
	raster   raster.Options
	// captureToDisplay pushes successful captures into the display.
	captureToDisplay bool
	captures         *sql.DB

	upgrader websocket.Upgrader
}

// Options configures a Server.
type Options struct {
	// Capturer may be nil, in which case capture requests fail with 503.
	Capturer         *capture.Capturer
	Raster           raster.Options
	CaptureToDisplay bool
	// Captures is the database the SQL exporter writes to. It backs the
	// stored captures image and may be nil.
	Captures *sql.DB
}

func New(d *display.Display, opts Options) *Server {
	return &Server{
		display:          d,
		capturer:         opts.Capturer,
		raster:           opts.Raster,
		captureToDisplay: opts.CaptureToDisplay,
		captures:         opts.Captures,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
}

// Router returns a gin engine with all endpoints registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.Register(r.Group(basePath))
	return r
}

// Register adds the endpoints to g.
func (s *Server) Register(g *gin.RouterGroup) {
	g.POST(captureEndpoint, s.captureHandler)
	g.DELETE(captureEndpoint, s.stopHandler)
	g.POST(framesEndpoint, s.framesHandler)
	g.GET(displayEndpoint, s.getDisplayHandler)
	g.PUT(displayEndpoint, s.putDisplayHandler)
	g.POST(autoRangeEndpoint, s.autoRangeHandler)
	g.GET(waterfallEndpoint, s.waterfallHandler)
	g.GET(spectrumEndpoint, s.spectrumHandler)
	g.GET(receiverEndpoint, s.receiverHandler)
	g.GET(streamEndpoint, s.streamHandler)
	g.GET(capturesEndpoint, s.capturesHandler)
}

func errorResponse(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}

// captureStatus maps capture errors to HTTP status codes.
func captureStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, capture.ErrNoReceiver):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrCaptureInProgress), errors.Is(err, capture.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, capture.ErrInvalidRange), errors.Is(err, capture.ErrExceedsCapability), errors.Is(err, capture.ErrInvalidFFTSize):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) captureHandler(c *gin.Context) {
	var r sdr.CaptureRange
	if err := c.ShouldBindJSON(&r); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	if s.capturer == nil {
		errorResponse(c, http.StatusServiceUnavailable, capture.ErrNoReceiver)
		return
	}

	res, err := s.capturer.CaptureRange(c.Request.Context(), r)
	if err != nil {
		glog.Warningf("capture %s failed: %s", res.ID, err)
	}
	if res.Success && s.captureToDisplay {
		s.display.PushFrame(res.Frame(captureSource))
	}
	c.JSON(captureStatus(err), res)
}

func (s *Server) stopHandler(c *gin.Context) {
	if s.capturer == nil {
		errorResponse(c, http.StatusServiceUnavailable, capture.ErrNoReceiver)
		return
	}
	wasCapturing := s.capturer.IsCapturing()
	s.capturer.Stop()
	c.JSON(http.StatusOK, gin.H{"stopped": wasCapturing})
}

func (s *Server) framesHandler(c *gin.Context) {
	frames := []sdr.Frame{}
	if err := c.ShouldBindJSON(&frames); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	count := 0
	for _, f := range frames {
		if len(f.Magnitudes) == 0 {
			continue
		}
		s.display.PushFrame(f)
		count++
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "frameCount": count})
}

type displayState struct {
	Range     render.DisplayRange `json:"range"`
	TimeSpan  float64             `json:"timeSpan"`
	ColorMap  string              `json:"colorMap"`
	ColorMaps []string            `json:"colorMaps"`
	Frames    int                 `json:"frames"`
	Capacity  int                 `json:"capacity"`
}

func (s *Server) state() displayState {
	return displayState{
		Range:     s.display.Waterfall.Range(),
		TimeSpan:  s.display.Waterfall.TimeSpan(),
		ColorMap:  s.display.Waterfall.ColorMap().Name(),
		ColorMaps: colormap.Names(),
		Frames:    s.display.History.Len(),
		Capacity:  s.display.History.Cap(),
	}
}

func (s *Server) getDisplayHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.state())
}

// displayUpdate holds the settings to change. Nil fields are left as is.
type displayUpdate struct {
	MinDB    *float64 `json:"minDB"`
	MaxDB    *float64 `json:"maxDB"`
	TimeSpan *float64 `json:"timeSpan"`
	ColorMap *string  `json:"colorMap"`
	// Strict applies the manual range rules on top of basic validation.
	Strict bool `json:"strict"`
}

func (s *Server) putDisplayHandler(c *gin.Context) {
	var u displayUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	if u.MinDB != nil || u.MaxDB != nil {
		rng := s.display.Waterfall.Range()
		if u.MinDB != nil {
			rng.MinDB = *u.MinDB
		}
		if u.MaxDB != nil {
			rng.MaxDB = *u.MaxDB
		}
		if u.Strict {
			if err := display.ValidateManualRange(rng); err != nil {
				errorResponse(c, http.StatusBadRequest, err)
				return
			}
		}
		if err := s.display.SetMinMax(rng.MinDB, rng.MaxDB); err != nil {
			errorResponse(c, http.StatusBadRequest, err)
			return
		}
	}
	if u.TimeSpan != nil {
		if err := s.display.SetTimeSpan(*u.TimeSpan); err != nil {
			errorResponse(c, http.StatusBadRequest, err)
			return
		}
	}
	if u.ColorMap != nil {
		if err := s.display.SetColorMap(*u.ColorMap); err != nil {
			errorResponse(c, http.StatusBadRequest, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.state())
}

type autoRangeRequest struct {
	// Strength defaults to the peak of the latest frame.
	Strength *float64 `json:"strength"`
	LNAGain  float64  `json:"lnaGain"`
	VGAGain  float64  `json:"vgaGain"`
}

func (s *Server) autoRangeHandler(c *gin.Context) {
	var req autoRangeRequest
	// An empty body uses the measured peak and no gain.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, err)
			return
		}
	}
	l := display.Levels{Strength: s.display.PeakLevel(), LNAGain: req.LNAGain, VGAGain: req.VGAGain}
	if req.Strength != nil {
		l.Strength = *req.Strength
	}
	rng, err := s.display.AutoRange(l)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, rng)
}

// rasterOptions applies the width, height and grid query parameters on top
// of the server defaults.
func (s *Server) rasterOptions(c *gin.Context) (raster.Options, error) {
	opts := s.raster
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"width", &opts.Width},
		{"height", &opts.Height},
	} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxImageSide {
			return opts, errors.New(p.name + " must be between 1 and " + strconv.Itoa(maxImageSide))
		}
		*p.dst = n
	}
	if v := c.Query("grid"); v != "" {
		grid, err := strconv.ParseBool(v)
		if err != nil {
			return opts, err
		}
		opts.AddGrid = grid
	}
	return opts, nil
}

func writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) waterfallHandler(c *gin.Context) {
	opts, err := s.rasterOptions(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	w := s.display.Waterfall
	w.Update()
	writePNG(c, raster.Waterfall(w.Geometry(), w.FrequencyTicks(), w.TimeTicks(), opts))
}

func (s *Server) spectrumHandler(c *gin.Context) {
	opts, err := s.rasterOptions(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	sp := s.display.Spectrum
	writePNG(c, raster.Spectrum(sp.Line(), sp.Fill(), sp.FrequencyTicks(), sp.PowerTicks(), opts))
}

type receiverState struct {
	Available  bool    `json:"available"`
	Capturing  bool    `json:"capturing"`
	CenterFreq float64 `json:"centerFreq"`
	SampleRate float64 `json:"sampleRate"`
	FFTSize    int     `json:"fftSize"`
}

func (s *Server) receiverHandler(c *gin.Context) {
	if s.capturer == nil {
		c.JSON(http.StatusOK, receiverState{})
		return
	}
	c.JSON(http.StatusOK, receiverState{
		Available:  s.capturer.SampleRate() > 0,
		Capturing:  s.capturer.IsCapturing(),
		CenterFreq: s.capturer.CenterFreq(),
		SampleRate: s.capturer.SampleRate(),
		FFTSize:    s.capturer.FFTSize(),
	})
}

// capturesHandler renders stored captures. Query parameters: startFreq and
// endFreq in Hz, start and end as RFC 3339 times, plus the image parameters.
func (s *Server) capturesHandler(c *gin.Context) {
	if s.captures == nil {
		errorResponse(c, http.StatusNotFound, errors.New("captures are not stored in a database"))
		return
	}
	opts, err := s.rasterOptions(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	f := &extraction.FilterOptions{}
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"startFreq", &f.StartFreq},
		{"endFreq", &f.EndFreq},
	} {
		if v := c.Query(p.name); v != "" {
			if *p.dst, err = strconv.ParseFloat(v, 64); err != nil {
				errorResponse(c, http.StatusBadRequest, err)
				return
			}
		}
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"start", &f.StartTime},
		{"end", &f.EndTime},
	} {
		if v := c.Query(p.name); v != "" {
			if *p.dst, err = time.Parse(time.RFC3339, v); err != nil {
				errorResponse(c, http.StatusBadRequest, err)
				return
			}
		}
	}

	res, err := extraction.Render(c.Request.Context(), s.captures, &extraction.RenderRequest{
		Filter: f,
		Image: &extraction.ImageOptions{
			Width:    opts.Width,
			Height:   opts.Height,
			AddGrid:  opts.AddGrid,
			ColorMap: s.display.Waterfall.ColorMap().Name(),
		},
	})
	if err != nil {
		errorResponse(c, http.StatusNotFound, err)
		return
	}
	glog.V(1).Infof("rendered %d stored captures (%.0f-%.0f Hz)", res.SourceMeta.Captures, res.SourceMeta.LowFreq, res.SourceMeta.HighFreq)
	writePNG(c, res.Image)
}
