// Package capture reads video frames from a camera, a video file or a
// network stream using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned when the source has no frame to deliver.
	ErrNoFrame = errors.New("no frame available")
)

// Config describes a video source.
type Config struct {
	// Source is a device index ("0") or a file path / stream URL.
	Source string
	Width  int
	Height int
	FPS    int
	// Loop rewinds file sources when they reach the end.
	Loop bool
}

// DefaultConfig opens the first camera at 640x480.
func DefaultConfig() Config {
	return Config{
		Source: "0",
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// Camera is a source of BGR frames.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
	// Size is the frame size reported by the source once open.
	Size() image.Point
}

type cameraImpl struct {
	cfg     Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	size    image.Point
}

// NewCamera creates a Camera for cfg. Nothing is opened until Open.
func NewCamera(cfg Config) Camera {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Source == "" {
		cfg.Source = "0"
	}
	return &cameraImpl{cfg: cfg}
}

// device converts numeric sources to a device index for OpenVideoCapture.
func (c *cameraImpl) device() any {
	if id, err := strconv.Atoi(c.cfg.Source); err == nil {
		return id
	}
	return c.cfg.Source
}

func (c *cameraImpl) isDevice() bool {
	_, ok := c.device().(int)
	return ok
}

// Open opens the source and applies the requested resolution.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.device())
	if err != nil {
		return fmt.Errorf("open video source %q: %w", c.cfg.Source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video source %q: not available", c.cfg.Source)
	}

	if c.isDevice() {
		if c.cfg.Width > 0 && c.cfg.Height > 0 {
			capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
			capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
		}
		capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))
	}

	c.size = image.Pt(
		int(capture.Get(gocv.VideoCaptureFrameWidth)),
		int(capture.Get(gocv.VideoCaptureFrameHeight)),
	)
	c.capture = capture
	c.running = true

	return nil
}

// Close closes the source and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame. File sources with Loop set rewind once at
// the end of the stream.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	ok := c.capture.Read(&mat)
	if (!ok || mat.Empty()) && c.cfg.Loop && !c.isDevice() {
		c.capture.Set(gocv.VideoCapturePosFrames, 0)
		ok = c.capture.Read(&mat)
	}
	if !ok || mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.FPS = fps

	if c.capture != nil && c.isDevice() {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg.FPS
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Size returns the negotiated frame size, or zero before Open.
func (c *cameraImpl) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}
