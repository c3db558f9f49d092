package app

import (
	"image"
	"image/color"
	"log"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartbeat/internal/face"
)

var (
	faceColor = color.RGBA{G: 255, A: 255}
	roiColor  = color.RGBA{R: 255, A: 255}
)

// renderPreview encodes frame as JPEG with the face outlined and the
// sampled region painted over.
func (a *App) renderPreview(frame *gocv.Mat, res face.Result) {
	img := frame.Clone()
	defer img.Close()

	if res.State == face.Valid && !res.Face.Empty() {
		gocv.Rectangle(&img, res.Face, faceColor, 2)
	}
	if res.Sampled && !res.ROI.Empty() {
		gocv.Rectangle(&img, res.ROI, roiColor, -1)
	}
	drawReading(&img, a.displayText())

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		log.Printf("Error encoding preview: %v", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.mu.Lock()
	a.preview = data
	a.mu.Unlock()
}

func drawReading(img *gocv.Mat, text string) {
	gocv.PutText(img, text+" bpm", image.Pt(10, img.Rows()-10), gocv.FontHersheySimplex, 0.9, faceColor, 2)
}

func (a *App) displayText() string {
	u, _ := a.Last()
	return u.Display
}

// Preview returns the latest annotated JPEG frame, nil when none exists.
func (a *App) Preview() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preview
}
