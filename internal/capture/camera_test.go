package capture

import (
	"errors"
	"testing"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name     string
		deviceID int
	}{
		{name: "default device", deviceID: 0},
		{name: "device 1", deviceID: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.deviceID)
			if cam == nil {
				t.Fatal("NewCamera returned nil")
			}

			if got := cam.FPS(); got != DefaultFPS {
				t.Errorf("FPS() = %d, want %d (default)", got, DefaultFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(0)

	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{name: "set to 15", fps: 15, wantFPS: 15},
		{name: "set to 60", fps: 60, wantFPS: 60},
		{name: "set to 0 should keep previous", fps: 0, wantFPS: 60},
		{name: "set to negative should keep previous", fps: -5, wantFPS: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam.SetFPS(tt.fps)
			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
		})
	}
}

func TestCamera_SetSize(t *testing.T) {
	cam := NewCamera(0).(*cameraImpl)

	cam.SetSize(320, 240)
	if cam.width != 320 || cam.height != 240 {
		t.Errorf("size = %dx%d, want 320x240", cam.width, cam.height)
	}

	cam.SetSize(0, 100)
	if cam.width != 320 || cam.height != 240 {
		t.Errorf("invalid size should be ignored, got %dx%d", cam.width, cam.height)
	}
}

func TestCamera_ReadFrame_NotOpened(t *testing.T) {
	cam := NewCamera(0)

	_, err := cam.ReadFrame()
	if !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_Close_NotOpened(t *testing.T) {
	cam := NewCamera(0)

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on not opened camera should return nil, got: %v", err)
	}
}

func TestFileCamera_FrameCountBeforeOpen(t *testing.T) {
	cam := NewFileCamera("clip.avi")

	counter, ok := cam.(FrameCounter)
	if !ok {
		t.Fatal("file camera should implement FrameCounter")
	}
	if got := counter.FrameCount(); got != 0 {
		t.Errorf("FrameCount() = %d before open, want 0", got)
	}
}

func TestFileCamera_OpenMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV video backends")
	}

	cam := NewFileCamera(t.TempDir() + "/missing.avi")
	if err := cam.Open(); err == nil {
		cam.Close()
		t.Skip("backend accepted a missing file")
	}
	if cam.IsOpen() {
		t.Error("camera should not be open after a failed Open()")
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(0)

	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}

	if !cam.IsOpen() {
		t.Error("IsOpen() should return true after Open()")
	}

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() failed: %v", err)
	} else {
		if mat.Empty() {
			t.Error("ReadFrame() returned empty mat")
		} else if mat.Cols() != DefaultWidth || mat.Rows() != DefaultHeight {
			t.Logf("Frame dimensions: %dx%d (camera may not support %dx%d)",
				mat.Cols(), mat.Rows(), DefaultWidth, DefaultHeight)
		}
		mat.Close()
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if cam.IsOpen() {
		t.Error("IsOpen() should return false after Close()")
	}
}
