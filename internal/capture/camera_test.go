package capture

import (
	"errors"
	"image"
	"testing"
)

func TestNewCamera_Defaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantFPS int
	}{
		{name: "default config", cfg: DefaultConfig(), wantFPS: DefaultFPS},
		{name: "zero fps", cfg: Config{Source: "1"}, wantFPS: DefaultFPS},
		{name: "explicit fps", cfg: Config{Source: "clip.mp4", FPS: 12}, wantFPS: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.cfg)

			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}
			if cam.Size() != (image.Point{}) {
				t.Errorf("Size() before Open = %v, want zero", cam.Size())
			}
		})
	}
}

func TestCamera_Device(t *testing.T) {
	tests := []struct {
		source string
		want   any
	}{
		{"0", 0},
		{"2", 2},
		{"", 0},
		{"/tmp/room.mp4", "/tmp/room.mp4"},
		{"rtsp://cam.local/stream", "rtsp://cam.local/stream"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			c := NewCamera(Config{Source: tt.source}).(*cameraImpl)
			if got := c.device(); got != tt.want {
				t.Errorf("device() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{name: "set to 10", fps: 10, wantFPS: 10},
		{name: "set to 1", fps: 1, wantFPS: 1},
		{name: "set to 0 should keep previous", fps: 0, wantFPS: 1},
		{name: "set to negative should keep previous", fps: -5, wantFPS: 1},
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

func TestCamera_ReadFrame_NotOpened(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_Close_NotOpened(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on not opened camera should return nil, got: %v", err)
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(DefaultConfig())
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
		}
		if mat.Cols() != cam.Size().X || mat.Rows() != cam.Size().Y {
			t.Logf("frame %dx%d differs from reported size %v", mat.Cols(), mat.Rows(), cam.Size())
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

func TestCamera_MissingFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV")
	}

	cam := NewCamera(Config{Source: "/nonexistent/clip.mp4"})
	if err := cam.Open(); err == nil {
		cam.Close()
		t.Error("Open() of a missing file should fail")
	}
}
