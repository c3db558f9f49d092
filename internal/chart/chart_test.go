package chart

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries() Series {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := Series{Title: "Session abc"}
	for i, bpm := range []float64{70.4, 71.2, 72.0, 71.6} {
		s.Points = append(s.Points, Point{At: start.Add(time.Duration(i) * 250 * time.Millisecond), BPM: bpm})
	}
	return s
}

func TestSeries_Offsets(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75}, testSeries().Offsets())
	assert.Empty(t, Series{}.Offsets())
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, testSeries()))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "should render a full page")
	assert.Contains(t, html, "Session abc")
	assert.Contains(t, html, "09:00:00")
	assert.Contains(t, html, "71.2")
}

func TestHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, HTML(&buf, Series{Title: "empty"}), ErrEmpty)
	assert.Zero(t, buf.Len())
}

func TestPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PNG(&buf, testSeries()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bpm.png")
	require.NoError(t, SavePNG(path, testSeries()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.ErrorIs(t, SavePNG(path, Series{}), ErrEmpty)
}
