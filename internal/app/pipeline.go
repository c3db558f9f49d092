package app

import (
	"errors"
	"log"
	"time"

	"github.com/ayusman/heartbeat/internal/flow"
	"github.com/ayusman/heartbeat/internal/rppg"
)

// runPipeline drives both cadences from one goroutine so that the tracker
// and the window never see interleaved frame and estimation work.
//
// Frame cadence (FrameInterval):
//  1. Acquire a frame; failures are logged and the cycle skipped
//  2. Advance the face tracker, which samples the forehead into the window
//
// Estimation cadence (EstimateInterval):
//  1. Snapshot the window and estimate
//  2. Publish the reading to listeners and reporters
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	frameTicker := time.NewTicker(a.cfg.FrameInterval())
	defer frameTicker.Stop()

	estimateTicker := time.NewTicker(a.cfg.EstimateInterval.Std())
	defer estimateTicker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-frameTicker.C:
			if _, err := a.ProcessFrame(); err != nil {
				a.logFrameError(err)
			}
		case <-estimateTicker.C:
			est, err := a.Estimate()
			if err != nil {
				a.logEstimateError(err)
				continue
			}
			if a.cfg.Verbose {
				log.Printf("Estimated %.1f bpm from %d samples at %.1f fps", est.BPM, est.Samples, est.FPS)
			}
		}
	}
}

func (a *App) logFrameError(err error) {
	switch {
	case quiet(err):
		if a.cfg.Verbose {
			log.Printf("Frame skipped: %v", err)
		}
	case errors.Is(err, flow.ErrTrackingInsufficient):
		log.Printf("Face lost: %v", err)
	default:
		log.Printf("Error processing frame: %v", err)
	}
}

func (a *App) logEstimateError(err error) {
	if errors.Is(err, rppg.ErrWindowTooShort) {
		if a.cfg.Verbose {
			log.Printf("Signal too small: %v", err)
		}
		return
	}
	log.Printf("Estimation skipped: %v", err)
}
