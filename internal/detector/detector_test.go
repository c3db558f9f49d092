package detector

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockDetector_QueueThenFallback(t *testing.T) {
	m := NewMockDetector()
	a := image.Rect(0, 0, 10, 10)
	b := image.Rect(5, 5, 20, 20)

	m.SetFaces(a)
	m.Queue(nil, []image.Rectangle{b})

	want := [][]image.Rectangle{nil, {b}, {a}, {a}}
	for i, w := range want {
		got, err := m.Detect(nil)
		if err != nil {
			t.Fatalf("Detect() #%d error = %v", i, err)
		}
		if len(got) != len(w) || (len(w) > 0 && got[0] != w[0]) {
			t.Errorf("Detect() #%d = %v, want %v", i, got, w)
		}
	}

	if m.Calls() != len(want) {
		t.Errorf("Calls() = %d, want %d", m.Calls(), len(want))
	}
}

func TestMockDetector_Error(t *testing.T) {
	m := NewMockDetector()
	m.SetFaces(image.Rect(0, 0, 10, 10))

	boom := errors.New("boom")
	m.SetError(boom)

	if _, err := m.Detect(nil); !errors.Is(err, boom) {
		t.Errorf("Detect() error = %v, want %v", err, boom)
	}

	m.SetError(nil)
	if faces, err := m.Detect(nil); err != nil || len(faces) != 1 {
		t.Errorf("Detect() = %v, %v after clearing error", faces, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ScaleFactor <= 1 {
		t.Errorf("ScaleFactor = %v, want > 1", cfg.ScaleFactor)
	}
	if cfg.MinNeighbors <= 0 {
		t.Errorf("MinNeighbors = %d, want positive", cfg.MinNeighbors)
	}
	if filepath.Ext(cfg.CascadePath) != ".xml" {
		t.Errorf("CascadePath = %q, want an xml cascade", cfg.CascadePath)
	}
}

func TestFindCascade(t *testing.T) {
	if got := findCascade(""); got != "" {
		t.Errorf("findCascade(\"\") = %q, want empty", got)
	}
	if got := findCascade("/nonexistent/cascade-that-does-not-exist.xml"); got != "" {
		t.Errorf("findCascade(missing abs) = %q, want empty", got)
	}
	if got := findCascade("nowhere/cascade-that-does-not-exist.xml"); got != "" {
		t.Errorf("findCascade(missing rel) = %q, want empty", got)
	}

	path := filepath.Join(t.TempDir(), "cascade.xml")
	if err := os.WriteFile(path, []byte("<opencv_storage/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := findCascade(path); got != path {
		t.Errorf("findCascade(%q) = %q", path, got)
	}
}

func TestNewCascadeDetector_NotFound(t *testing.T) {
	_, err := NewCascadeDetector(Config{CascadePath: "nowhere/cascade-that-does-not-exist.xml"})
	if !errors.Is(err, ErrCascadeNotFound) {
		t.Errorf("NewCascadeDetector() error = %v, want ErrCascadeNotFound", err)
	}
}

func TestCascadeDetector_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	d, err := NewCascadeDetector(DefaultConfig())
	if errors.Is(err, ErrCascadeNotFound) {
		t.Skip("face cascade not installed")
	}
	if err != nil {
		t.Fatalf("NewCascadeDetector() error = %v", err)
	}

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC1)
	defer blank.Close()

	faces, err := d.Detect(&blank)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Detect(blank) = %v, want no faces", faces)
	}

	if _, err := d.Detect(nil); err == nil {
		t.Error("Detect(nil) should fail")
	}

	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := d.Detect(&blank); err == nil {
		t.Error("Detect after Close should fail")
	}
}
