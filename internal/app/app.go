// Package app drives heart-rate estimation: it owns the frame source, the
// face tracker and the sample window, and sequences the frame and
// estimation cadences.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/heartbeat/internal/capture"
	"github.com/ayusman/heartbeat/internal/config"
	"github.com/ayusman/heartbeat/internal/detector"
	"github.com/ayusman/heartbeat/internal/face"
	"github.com/ayusman/heartbeat/internal/flow"
	"github.com/ayusman/heartbeat/internal/report"
	"github.com/ayusman/heartbeat/internal/rppg"
	"github.com/ayusman/heartbeat/internal/window"
)

// NoReading is displayed while no estimate is available.
const NoReading = "-"

// Update describes the displayed reading after an estimation cycle or a stop.
type Update struct {
	BPM     float64   `json:"bpm"`
	Display string    `json:"display"`
	FPS     float64   `json:"fps"`
	Samples int       `json:"samples"`
	At      time.Time `json:"at"`
	Stopped bool      `json:"stopped,omitempty"`
}

// Options configure an App. Zero-valued collaborators are built from Config.
type Options struct {
	Config   *config.Config
	Camera   capture.Camera
	Detector detector.Detector
	Reporter report.Reporter
	Session  string
	Now      func() time.Time
}

// App is the pipeline driver.
type App struct {
	cfg       *config.Config
	camera    capture.Camera
	detector  detector.Detector
	gray      *capture.GrayPair
	win       *window.Window
	tracker   *face.Tracker
	estimator *rppg.Estimator
	reporter  report.Reporter
	now       func() time.Time

	mu        sync.RWMutex
	session   string
	stopCh    chan struct{}
	doneCh    chan struct{}
	last      Update
	hasLast   bool
	listeners []func(Update)
	preview   []byte

	reports sync.WaitGroup
}

// New creates an App. It loads the face cascade unless a detector is given.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cam := opts.Camera
	if cam == nil {
		cam = newCamera(cfg)
	}

	det := opts.Detector
	if det == nil {
		dcfg := detector.DefaultConfig()
		dcfg.CascadePath = cfg.CascadePath
		cascade, err := detector.NewCascadeDetector(dcfg)
		if err != nil {
			return nil, fmt.Errorf("face detector: %w", err)
		}
		det = cascade
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	win := window.New(cfg.WindowCapacity())

	fopts := face.Options{RescanInterval: cfg.RescanInterval.Std()}
	if cfg.UseOpticalFlow {
		fopts.Mover = flow.NewTracker(flow.NewLK())
	}

	a := &App{
		cfg:      cfg,
		camera:   cam,
		detector: det,
		gray:     capture.NewGrayPair(),
		win:      win,
		tracker:  face.NewTracker(det, win, fopts),
		estimator: rppg.NewEstimator(rppg.Params{
			MinSamples: cfg.WindowCapacity(),
			LowBPM:     cfg.LowBPM,
			HighBPM:    cfg.HighBPM,
		}),
		reporter: opts.Reporter,
		session:  opts.Session,
		now:      now,
	}
	return a, nil
}

func newCamera(cfg *config.Config) capture.Camera {
	if cfg.VideoFile != "" {
		return capture.NewFileCamera(cfg.VideoFile)
	}
	cam := capture.NewCamera(cfg.CameraID)
	if sized, ok := cam.(interface{ SetSize(width, height int) }); ok {
		sized.SetSize(cfg.FrameWidth, cfg.FrameHeight)
	}
	cam.SetFPS(cfg.TargetFPS)
	return cam
}

// ProcessFrame acquires one frame and advances the face tracker, stamping
// the sample with the current time.
func (a *App) ProcessFrame() (face.Result, error) {
	return a.ProcessFrameAt(a.now())
}

// ProcessFrameAt is ProcessFrame with an explicit sample time.
func (a *App) ProcessFrameAt(at time.Time) (face.Result, error) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		return face.Result{}, err
	}
	defer frame.Close()

	if err := a.gray.Push(frame); err != nil {
		return face.Result{}, err
	}
	prev, _ := a.gray.Previous()

	res, err := a.tracker.Step(face.Frame{
		Color:    frame,
		Gray:     a.gray.Current(),
		PrevGray: prev,
		Bounds:   image.Rect(0, 0, frame.Cols(), frame.Rows()),
		At:       at,
	})

	if a.cfg.Preview {
		a.renderPreview(frame, res)
	}
	return res, err
}

// Estimate runs one estimation cycle over a snapshot of the window. A
// skipped cycle returns an error wrapping rppg.ErrDegenerateSignal and
// leaves the displayed reading unchanged.
func (a *App) Estimate() (rppg.Estimate, error) {
	est, err := a.estimator.Estimate(a.win.Snapshot())
	if err != nil {
		return est, err
	}

	u := Update{
		BPM:     est.BPM,
		Display: FormatBPM(est.BPM),
		FPS:     est.FPS,
		Samples: est.Samples,
		At:      est.At,
	}

	a.mu.Lock()
	a.last = u
	a.hasLast = true
	session := a.session
	a.mu.Unlock()

	a.notify(u)
	a.report(session, est.BPM)
	return est, nil
}

// report hands bpm to the reporter without blocking the caller.
func (a *App) report(session string, bpm float64) {
	if a.reporter == nil || session == "" {
		return
	}

	a.reports.Add(1)
	go func() {
		defer a.reports.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ReportTimeout.Std())
		defer cancel()

		if err := a.reporter.Report(ctx, session, bpm); err != nil {
			log.Printf("Error reporting bpm for session %s: %v", session, err)
		}
	}()
}

// WaitReports blocks until reports already handed off have finished.
func (a *App) WaitReports() {
	a.reports.Wait()
}

// OnUpdate registers fn to receive every Update. fn runs on the pipeline
// goroutine and must not block.
func (a *App) OnUpdate(fn func(Update)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *App) notify(u Update) {
	a.mu.RLock()
	listeners := append([]func(Update)(nil), a.listeners...)
	a.mu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}

// Last returns the displayed reading and whether one exists.
func (a *App) Last() (Update, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.hasLast {
		return Update{Display: NoReading}, false
	}
	return a.last, true
}

// SetSession sets the session token reports are filed under.
func (a *App) SetSession(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = token
}

// Session returns the current session token.
func (a *App) Session() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Start opens the frame source and begins both cadences.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	log.Println("Heart rate pipeline started")
	return nil
}

// Stop halts both cadences, discards the face region and the window, and
// clears the displayed reading. Nothing is flushed to reporters.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	a.reset()

	u := Update{Display: NoReading, At: a.now(), Stopped: true}
	a.notify(u)

	log.Println("Heart rate pipeline stopped")
}

// reset drops all per-run state.
func (a *App) reset() {
	a.tracker.Invalidate()
	a.gray.Reset()

	a.mu.Lock()
	a.last = Update{}
	a.hasLast = false
	a.preview = nil
	a.mu.Unlock()
}

// Running reports whether the cadences are active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Close stops the pipeline and releases the detector and frame buffers.
func (a *App) Close() error {
	a.Stop()
	a.gray.Close()
	if err := a.detector.Close(); err != nil {
		return fmt.Errorf("close detector: %w", err)
	}
	return nil
}

// Tracker returns the face tracker.
func (a *App) Tracker() *face.Tracker {
	return a.tracker
}

// Window returns the sample window.
func (a *App) Window() *window.Window {
	return a.win
}

// Camera returns the frame source.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// FormatBPM renders a reading with one decimal.
func FormatBPM(bpm float64) string {
	return strconv.FormatFloat(bpm, 'f', 1, 64)
}

// quiet reports whether err is routine per-cycle noise.
func quiet(err error) bool {
	return errors.Is(err, face.ErrNoFace) || errors.Is(err, rppg.ErrWindowTooShort)
}
