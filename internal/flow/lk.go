package flow

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartbeat/internal/region"
)

// Pyramidal Lucas-Kanade parameters.
const (
	lkWindow   = 15
	lkMaxLevel = 2
	lkMaxIter  = 10
	lkEpsilon  = 0.03
	lkMinEig   = 1e-4

	// candidateFactor over-selects corners in the quad's bounding box so
	// enough remain after discarding those outside the quad.
	candidateFactor = 4
)

// LK selects good corners in the previous frame and tracks them with
// bidirectional pyramidal Lucas-Kanade flow.
type LK struct {
	criteria gocv.TermCriteria
}

// NewLK creates an LK correspondence source.
func NewLK() *LK {
	return &LK{
		criteria: gocv.NewTermCriteria(gocv.Count|gocv.EPS, lkMaxIter, lkEpsilon),
	}
}

// Correspond implements Source. Only corners whose forward flow converged
// are returned; the backward result is reported alongside but not used to
// reject outliers.
func (l *LK) Correspond(prev, cur *gocv.Mat, quad region.Quad) (Correspondences, error) {
	if prev == nil || cur == nil || prev.Empty() || cur.Empty() {
		return Correspondences{}, errors.New("missing frame for optical flow")
	}

	corners := l.selectCorners(prev, quad)
	if len(corners) == 0 {
		return Correspondences{}, nil
	}

	p0 := pointsToMat(corners)
	defer p0.Close()

	p1 := gocv.NewMat()
	defer p1.Close()
	fwdStatus := gocv.NewMat()
	defer fwdStatus.Close()
	fwdErr := gocv.NewMat()
	defer fwdErr.Close()
	gocv.CalcOpticalFlowPyrLKWithParams(*prev, *cur, p0, p1, &fwdStatus, &fwdErr,
		image.Pt(lkWindow, lkWindow), lkMaxLevel, l.criteria, 0, lkMinEig)

	back := gocv.NewMat()
	defer back.Close()
	bwdStatus := gocv.NewMat()
	defer bwdStatus.Close()
	bwdErr := gocv.NewMat()
	defer bwdErr.Close()
	gocv.CalcOpticalFlowPyrLKWithParams(*cur, *prev, p1, back, &bwdStatus, &bwdErr,
		image.Pt(lkWindow, lkWindow), lkMaxLevel, l.criteria, 0, lkMinEig)

	var c Correspondences
	for i := 0; i < fwdStatus.Rows(); i++ {
		if fwdStatus.GetUCharAt(i, 0) != 1 {
			continue
		}
		c.Forward = append(c.Forward, matPoint(p1, i))
		c.Backward = append(c.Backward, matPoint(back, i))
	}
	return c, nil
}

// selectCorners runs corner selection over the bounding box of quad and keeps
// at most MaxCorners that fall inside the quad, strongest first.
func (l *LK) selectCorners(gray *gocv.Mat, quad region.Quad) []Point {
	box := quad.Bounds().Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if box.Dx() < 2 || box.Dy() < 2 {
		return nil
	}

	sub := gray.Region(box)
	defer sub.Close()

	found := gocv.NewMat()
	defer found.Close()
	gocv.GoodFeaturesToTrack(sub, &found, MaxCorners*candidateFactor, QualityLevel, MinDistance)

	var corners []Point
	for i := 0; i < found.Rows() && len(corners) < MaxCorners; i++ {
		p := matPoint(found, i)
		p.X += float64(box.Min.X)
		p.Y += float64(box.Min.Y)
		if quad.Contains(p.X, p.Y) {
			corners = append(corners, p)
		}
	}
	return corners
}

func pointsToMat(points []Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV32FC2)
	for i, p := range points {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}

func matPoint(m gocv.Mat, row int) Point {
	return Point{
		X: float64(m.GetFloatAt(row, 0)),
		Y: float64(m.GetFloatAt(row, 1)),
	}
}
