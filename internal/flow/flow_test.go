package flow

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/heartbeat/internal/region"
)

type fakeSource struct {
	c     Correspondences
	err   error
	quads []region.Quad
}

func (f *fakeSource) Correspond(prev, cur *gocv.Mat, quad region.Quad) (Correspondences, error) {
	f.quads = append(f.quads, quad)
	return f.c, f.err
}

// moved returns n corners inside a 200px face at the origin together with
// their positions under tf.
func moved(n int, tf Transform) Correspondences {
	var c Correspondences
	for i := 0; i < n; i++ {
		p := Point{X: 60 + float64(i*17%80), Y: 50 + float64(i*29%70)}
		c.Backward = append(c.Backward, p)
		c.Forward = append(c.Forward, tf.Apply(p))
	}
	return c
}

func TestFit_RecoversTransform(t *testing.T) {
	tests := []struct {
		name string
		tf   Transform
	}{
		{name: "identity", tf: Identity},
		{name: "translation", tf: Transform{Scale: 1, TX: 4, TY: -2.5}},
		{name: "zoom in", tf: Transform{Scale: 1.08, TX: -7, TY: -6}},
		{name: "zoom out", tf: Transform{Scale: 0.93, TX: 5, TY: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := moved(8, tt.tf)
			got, err := Fit(c.Backward, c.Forward)
			require.NoError(t, err)
			assert.InDelta(t, tt.tf.Scale, got.Scale, 1e-9)
			assert.InDelta(t, tt.tf.TX, got.TX, 1e-7)
			assert.InDelta(t, tt.tf.TY, got.TY, 1e-7)
		})
	}
}

func TestFit_LeastSquares(t *testing.T) {
	src := []Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	// x shrinks by 0.9 while y only translates; the joint scale splits the difference.
	dst := []Point{{2.5, 3}, {11.5, 3}, {2.5, 13}, {11.5, 13}}

	got, err := Fit(src, dst)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.Scale, 1e-9)

	var sum float64
	for i := range src {
		p := got.Apply(src[i])
		sum += p.X - dst[i].X + p.Y - dst[i].Y
	}
	assert.InDelta(t, 0, sum, 1e-9, "least squares residuals sum to zero with an intercept")
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit([]Point{{1, 1}}, []Point{{1, 1}, {2, 2}})
	assert.Error(t, err)

	_, err = Fit([]Point{{1, 1}}, []Point{{2, 2}})
	assert.ErrorIs(t, err, ErrTrackingInsufficient)

	same := []Point{{5, 5}, {5, 5}, {5, 5}, {5, 5}, {5, 5}}
	_, err = Fit(same, same)
	assert.ErrorIs(t, err, ErrTrackingInsufficient)
}

func TestTransform_ApplyRect(t *testing.T) {
	face := image.Rect(100, 80, 200, 180)

	assert.Equal(t, face, Identity.ApplyRect(face))
	assert.Equal(t, image.Rect(104, 77, 204, 177), Transform{Scale: 1, TX: 4, TY: -3}.ApplyRect(face))
	assert.Equal(t, image.Rect(200, 160, 400, 360), Transform{Scale: 2}.ApplyRect(face))
}

func TestTracker_TooFewCorners(t *testing.T) {
	src := &fakeSource{c: moved(3, Transform{Scale: 1, TX: 2})}
	tr := NewTracker(src)

	_, err := tr.Track(nil, nil, image.Rect(0, 0, 200, 200))
	require.ErrorIs(t, err, ErrTrackingInsufficient)
}

func TestTracker_FollowsMotion(t *testing.T) {
	face := image.Rect(0, 0, 200, 200)
	src := &fakeSource{c: moved(MaxCorners, Transform{Scale: 1, TX: 6, TY: -4})}
	tr := NewTracker(src)

	got, err := tr.Track(nil, nil, face)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(6, -4, 206, 196), got)

	require.Len(t, src.quads, 1)
	assert.Equal(t, region.TrackingQuad(face), src.quads[0])
}

func TestTracker_MinimumCornersIsEnough(t *testing.T) {
	src := &fakeSource{c: moved(MinCorners, Transform{Scale: 1.5})}
	got, err := NewTracker(src).Track(nil, nil, image.Rect(10, 10, 110, 110))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(15, 15, 165, 165), got)
}

func TestTracker_SourceError(t *testing.T) {
	boom := errors.New("flow failed")
	_, err := NewTracker(&fakeSource{err: boom}).Track(nil, nil, image.Rect(0, 0, 50, 50))
	assert.ErrorIs(t, err, boom)
}

func TestTracker_EmptyFace(t *testing.T) {
	src := &fakeSource{c: moved(MaxCorners, Identity)}
	_, err := NewTracker(src).Track(nil, nil, image.Rectangle{})
	assert.ErrorIs(t, err, ErrTrackingInsufficient)
	assert.Empty(t, src.quads)
}

// squares draws bright squares offset by (dx, dy) on a dark frame.
func squares(dx, dy int) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 320, 320, gocv.MatTypeCV8UC1)
	origins := []image.Point{{150, 150}, {190, 150}, {230, 150}, {160, 190}, {210, 190}}
	for _, o := range origins {
		r := image.Rect(o.X+dx, o.Y+dy, o.X+dx+15, o.Y+dy+15)
		gocv.Rectangle(&img, r, color.RGBA{255, 255, 255, 0}, -1)
	}
	return img
}

func TestLK_TracksTranslation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV optical flow")
	}

	prev := squares(0, 0)
	defer prev.Close()
	cur := squares(3, 2)
	defer cur.Close()

	face := image.Rect(100, 100, 300, 300)
	lk := NewLK()

	c, err := lk.Correspond(&prev, &cur, region.TrackingQuad(face))
	require.NoError(t, err)
	require.GreaterOrEqual(t, c.Len(), MinCorners)
	assert.LessOrEqual(t, c.Len(), MaxCorners)

	got, err := NewTracker(lk).Track(&prev, &cur, face)
	require.NoError(t, err)
	assert.InDelta(t, 103, got.Min.X, 2)
	assert.InDelta(t, 102, got.Min.Y, 2)
	assert.InDelta(t, 200, got.Dx(), 3)
}

func TestLK_NoFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV optical flow")
	}

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 120, gocv.MatTypeCV8UC1)
	defer blank.Close()

	face := image.Rect(10, 10, 110, 110)
	_, err := NewTracker(NewLK()).Track(&blank, &blank, face)
	assert.ErrorIs(t, err, ErrTrackingInsufficient)
}
