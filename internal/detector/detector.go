// Package detector runs pose and hand landmark models over camera frames.
package detector

import (
	"context"
	"time"

	"gocv.io/x/gocv"
)

// Keypoint is one detected landmark in frame pixel coordinates.
type Keypoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
	Name  string  `json:"name"`
}

// Pose is one detected body or hand. Keypoints are ordered by the index
// table of the detector Type that produced them.
type Pose struct {
	Keypoints  []Keypoint `json:"keypoints"`
	Score      float64    `json:"score"`
	Handedness string     `json:"handedness,omitempty"` // "Left" or "Right" for hands
}

// At returns the keypoint at index i.
func (p Pose) At(i int) (Keypoint, bool) {
	if i < 0 || i >= len(p.Keypoints) {
		return Keypoint{}, false
	}
	return p.Keypoints[i], true
}

// Detector defines the interface for landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected poses.
	// Returns an empty slice if nothing is detected.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Pose, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for detection.
type Config struct {
	// Type selects the model and its keypoint layout.
	Type Type

	// MaxPoses is the maximum number of bodies or hands to detect (default: 2).
	MaxPoses int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the location of the Python service.
	ScriptPath string

	// IdleTimeout stops the service after this long without frames (default: 30s).
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Type:            TypeMoveNet,
		MaxPoses:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}
