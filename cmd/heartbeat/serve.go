package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/heartbeat/internal/app"
	"github.com/ayusman/heartbeat/internal/config"
	"github.com/ayusman/heartbeat/internal/report"
	"github.com/ayusman/heartbeat/internal/server"
	"github.com/ayusman/heartbeat/internal/store"
	"github.com/ayusman/heartbeat/internal/tray"
)

var serveOpts struct {
	addr        string
	session     string
	video       string
	camera      int
	preview     bool
	opticalFlow bool
	tray        bool
	paused      bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Measure from the camera and serve the live reading",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServeFlags(cmd, cfg)
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", "", "Listen address (overrides listen_addr)")
	f.StringVar(&serveOpts.session, "session", "", "Report into an existing session instead of opening one")
	f.StringVar(&serveOpts.video, "video", "", "Read frames from a video file instead of the camera")
	f.IntVar(&serveOpts.camera, "camera", 0, "Camera device index")
	f.BoolVar(&serveOpts.preview, "preview", false, "Serve an annotated MJPEG preview at /api/stream")
	f.BoolVar(&serveOpts.opticalFlow, "optical-flow", false, "Track the face with optical flow between rescans")
	f.BoolVar(&serveOpts.tray, "tray", false, "Show the reading in the system tray")
	f.BoolVar(&serveOpts.paused, "paused", false, "Start with measuring paused")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overlays explicitly set flags on the loaded config.
func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if serveOpts.addr != "" {
		c.ListenAddr = serveOpts.addr
	}
	if serveOpts.video != "" {
		c.VideoFile = serveOpts.video
	}
	if f.Changed("camera") {
		c.CameraID = serveOpts.camera
	}
	if f.Changed("preview") {
		c.Preview = serveOpts.preview
	}
	if f.Changed("optical-flow") {
		c.UseOpticalFlow = serveOpts.opticalFlow
	}
	if c.StaticDir == "" {
		c.StaticDir = findWebDir()
	}
}

// buildReporter assembles the reporters the config asks for. Readings are
// always recorded in the local store.
func buildReporter(c *config.Config, st *store.Store) report.Reporter {
	reporters := report.Multi{report.NewStoreReporter(st.Sessions())}
	if c.ReportURL != "" {
		reporters = append(reporters, report.NewHTTPReporter(c.ReportURL, c.ReportTimeout.Std()))
	}
	if c.ReportHook != "" {
		reporters = append(reporters, report.NewExecReporter(c.ReportHook, c.ReportTimeout.Std()))
	}
	return reporters
}

func runServe(ctx context.Context, c *config.Config) error {
	st, err := store.New(c.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	sessions := st.Sessions()
	token := serveOpts.session
	if token == "" {
		sess, err := sessions.Open()
		if err != nil {
			return fmt.Errorf("failed to open session: %w", err)
		}
		token = sess.ID
	} else if _, err := sessions.Get(token); err != nil {
		return fmt.Errorf("session %s: %w", token, err)
	}
	log.Printf("Reporting into session %s", token)

	pipeline, err := app.New(app.Options{
		Config:   c,
		Reporter: buildReporter(c, st),
		Session:  token,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Printf("Error closing pipeline: %v", err)
		}
		pipeline.WaitReports()
		if err := sessions.Close(pipeline.Session()); err != nil {
			log.Printf("Error closing session: %v", err)
		}
	}()

	srv := server.New(server.Config{
		StaticDir: c.StaticDir,
		Store:     st,
		Monitor:   pipeline,
	})
	pipeline.OnUpdate(srv.Hub().Publish)

	if !serveOpts.paused {
		if err := pipeline.Start(); err != nil {
			return fmt.Errorf("failed to start pipeline: %w", err)
		}
	}

	if c.StaticDir != "" {
		log.Printf("Serving static files from: %s", c.StaticDir)
	}
	log.Printf("Starting server on %s", c.ListenAddr)

	if !serveOpts.tray {
		return srv.ListenAndServe(ctx, c.ListenAddr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := newTray(cancel, pipeline, sessions)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, c.ListenAddr)
		t.Quit()
	}()

	// The tray loop must own the main goroutine.
	t.Run()
	cancel()
	return <-errCh
}

// newTray wires the tray menu to the pipeline.
func newTray(quit context.CancelFunc, pipeline *app.App, sessions *store.SessionRepository) *tray.Tray {
	t := tray.New()
	t.SetSession(pipeline.Session())
	t.SetMeasuring(pipeline.Running())

	pipeline.OnUpdate(func(u app.Update) { t.SetBPM(u.Display) })

	t.OnToggle(func(measuring bool) {
		if !measuring {
			pipeline.Stop()
			return
		}
		if err := pipeline.Start(); err != nil {
			log.Printf("Error starting pipeline: %v", err)
		}
	})
	t.OnNewSession(func() {
		old := pipeline.Session()
		sess, err := sessions.Open()
		if err != nil {
			log.Printf("Error opening session: %v", err)
			return
		}
		pipeline.SetSession(sess.ID)
		t.SetSession(sess.ID)
		if err := sessions.Close(old); err != nil {
			log.Printf("Error closing session %s: %v", old, err)
		}
		log.Printf("Reporting into session %s", sess.ID)
	})
	t.OnQuit(func() { quit() })
	return t
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.heartbeat/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".heartbeat", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
