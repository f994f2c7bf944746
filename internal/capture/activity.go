package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	BlurSize      = 21
	DiffThreshold = 25
)

// ActivityConfig tunes an ActivityMonitor.
type ActivityConfig struct {
	// MinChange is the percentage of pixels that must change between frames
	// to count as movement.
	MinChange float64
	// IdleAfter is how long the room must be still before it is idle.
	IdleAfter time.Duration
}

// DefaultActivityConfig returns 1% change and 10 seconds of stillness.
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{MinChange: 1.0, IdleAfter: 10 * time.Second}
}

// ActivityMonitor decides whether anyone is moving in front of the camera,
// so the frame loop can drop to an idle rate in an empty room.
type ActivityMonitor struct {
	cfg       ActivityConfig
	prev      gocv.Mat
	hasPrev   bool
	lastMove  time.Time
	lastDelta float64
	mu        sync.Mutex
}

// NewActivityMonitor creates a monitor that starts active.
func NewActivityMonitor(cfg ActivityConfig) *ActivityMonitor {
	return &ActivityMonitor{cfg: cfg, prev: gocv.NewMat()}
}

// Change returns the percentage of pixels that differ between frame and
// the previous frame passed to Observe or Change. The first frame yields 0.
func (a *ActivityMonitor) Change(frame *gocv.Mat) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.change(frame)
}

func (a *ActivityMonitor) change(frame *gocv.Mat) float64 {
	if frame == nil || frame.Empty() {
		return 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(BlurSize, BlurSize), 0, 0, gocv.BorderDefault)

	if !a.hasPrev || a.prev.Rows() != blurred.Rows() || a.prev.Cols() != blurred.Cols() {
		blurred.CopyTo(&a.prev)
		a.hasPrev = true
		return 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, a.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(mask)
	total := mask.Rows() * mask.Cols()
	blurred.CopyTo(&a.prev)

	return float64(changed) / float64(total) * 100
}

// Observe records frame at now and reports whether the room is active:
// movement above MinChange happened within IdleAfter. Before the first
// observed movement the monitor counts from the first call.
func (a *ActivityMonitor) Observe(frame *gocv.Mat, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastMove.IsZero() {
		a.lastMove = now
	}
	a.lastDelta = a.change(frame)
	if a.lastDelta > a.cfg.MinChange {
		a.lastMove = now
	}
	return now.Sub(a.lastMove) < a.cfg.IdleAfter
}

// Poke marks the room active at now, e.g. when a marker emitted.
func (a *ActivityMonitor) Poke(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastMove = now
}

// LastChange returns the change percentage of the last observed frame.
func (a *ActivityMonitor) LastChange() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastDelta
}

// Reset forgets the previous frame and the movement history.
func (a *ActivityMonitor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hasPrev = false
	a.lastMove = time.Time{}
	a.lastDelta = 0
}

// Close releases the stored frame.
func (a *ActivityMonitor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prev.Close()
	a.prev = gocv.NewMat()
	a.hasPrev = false
}
