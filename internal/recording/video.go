package recording

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// VideoCodec is the FourCC used for composited output recordings.
const VideoCodec = "MJPG"

// VideoRecorder writes composited output frames to a video file while
// active. The file plays back in wall-clock time: a frame is repeated to
// cover the time until the next one, and frames arriving faster than the
// container rate are dropped. Safe for concurrent use.
type VideoRecorder struct {
	mu     sync.Mutex
	writer *gocv.VideoWriter
	path   string
	size   image.Point
	fps    float64
	start  time.Time
	frames int
}

// NewVideoRecorder creates an idle video recorder.
func NewVideoRecorder() *VideoRecorder {
	return &VideoRecorder{}
}

// Start opens path for w×h frames at fps. now is the time of the first
// frame.
func (v *VideoRecorder) Start(path string, fps float64, w, h int, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.writer != nil {
		return ErrAlreadyRecording
	}
	if w <= 0 || h <= 0 || fps <= 0 {
		return fmt.Errorf("invalid video format %dx%d@%.1f", w, h, fps)
	}

	writer, err := gocv.VideoWriterFile(path, VideoCodec, fps, w, h, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("open video writer: %s not writable", path)
	}

	v.writer = writer
	v.path = path
	v.size = image.Pt(w, h)
	v.fps = fps
	v.start = now
	v.frames = 0
	return nil
}

// framesDue returns how many frames a file at fps holds once elapsed has
// passed since its first frame.
func framesDue(elapsed time.Duration, fps float64) int {
	if elapsed < 0 {
		return 1
	}
	// nudge past float error on exact slot boundaries
	return int(math.Floor(elapsed.Seconds()*fps+1e-9)) + 1
}

// Write records img as the output at time now. Frames of a different size
// are scaled. Writes while idle are ignored.
func (v *VideoRecorder) Write(img image.Image, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.writer == nil {
		return nil
	}
	n := framesDue(now.Sub(v.start), v.fps) - v.frames
	if n <= 0 {
		return nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	frame := mat
	if mat.Cols() != v.size.X || mat.Rows() != v.size.Y {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(mat, &scaled, v.size, 0, 0, gocv.InterpolationLinear)
		frame = scaled
	}

	for i := 0; i < n; i++ {
		if err := v.writer.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		v.frames++
	}
	return nil
}

// Stop closes the file and returns its path and frame count.
func (v *VideoRecorder) Stop() (string, int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.writer == nil {
		return "", 0, ErrNotRecording
	}
	err := v.writer.Close()
	path, frames := v.path, v.frames
	v.writer = nil
	v.path = ""
	v.frames = 0
	return path, frames, err
}

// Active reports whether frames are being written.
func (v *VideoRecorder) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writer != nil
}
