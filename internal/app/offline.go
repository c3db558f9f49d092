package app

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/ayusman/heartbeat/internal/capture"
	"github.com/ayusman/heartbeat/internal/rppg"
)

// RunOffline drives the pipeline over a recording as fast as frames can be
// read. Frame i is stamped i/fps after the start, and an estimation cycle
// runs every EstimateInterval of media time. It stops at the end of the
// recording or when ctx is cancelled. onFrame, when set, is called after
// every frame.
func (a *App) RunOffline(ctx context.Context, fps float64, onFrame func(i int)) ([]rppg.Estimate, error) {
	if fps <= 0 {
		fps = float64(a.cfg.TargetFPS)
	}
	if !a.camera.IsOpen() {
		if err := a.camera.Open(); err != nil {
			return nil, err
		}
	}

	every := max(1, int(math.Round(a.cfg.EstimateInterval.Std().Seconds()*fps)))
	start := a.now()

	var estimates []rppg.Estimate
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return estimates, err
		}

		at := start.Add(time.Duration(float64(i) / fps * float64(time.Second)))
		if _, err := a.ProcessFrameAt(at); err != nil {
			if errors.Is(err, capture.ErrNoFrame) {
				break
			}
			a.logFrameError(err)
		}
		if onFrame != nil {
			onFrame(i)
		}

		if (i+1)%every != 0 {
			continue
		}
		est, err := a.Estimate()
		if err != nil {
			a.logEstimateError(err)
			continue
		}
		if a.cfg.Verbose {
			log.Printf("Estimated %.1f bpm at %s", est.BPM, est.At.Sub(start))
		}
		estimates = append(estimates, est)
	}

	return estimates, nil
}
