package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	poses []Pose
	queue [][]Pose
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoses sets the poses that will be returned by Detect.
func (m *MockDetector) SetPoses(poses []Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
}

// Push queues results for the next Detect calls, one slice per call. Once
// the queue drains Detect falls back to the poses from SetPoses.
func (m *MockDetector) Push(frames ...[]Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, frames...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured poses or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.poses, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// SyntheticPose builds a pose in t's layout where only the given keypoints
// are present. Every other keypoint has zero score.
func SyntheticPose(t Type, kps map[string]Keypoint) Pose {
	names := t.Names()
	pose := Pose{Keypoints: make([]Keypoint, len(names))}
	for i, n := range names {
		pose.Keypoints[i].Name = n
	}
	for name, kp := range kps {
		i, ok := Lookup(t, name)
		if !ok {
			continue
		}
		kp.Name = name
		pose.Keypoints[i] = kp
		pose.Score = max(pose.Score, kp.Score)
	}
	return pose
}

// OpenPalmPose returns a right hand with all fingers extended, scaled to a
// w×h frame.
func OpenPalmPose(w, h float64) Pose {
	pts := [NumLandmarks][2]float64{
		Wrist:     {0.50, 0.80},
		ThumbCMC:  {0.55, 0.75},
		ThumbMCP:  {0.62, 0.70},
		ThumbIP:   {0.68, 0.65},
		ThumbTip:  {0.73, 0.60},
		IndexMCP:  {0.55, 0.68},
		IndexPIP:  {0.57, 0.55},
		IndexDIP:  {0.58, 0.45},
		IndexTip:  {0.58, 0.35},
		MiddleMCP: {0.50, 0.66},
		MiddlePIP: {0.50, 0.52},
		MiddleDIP: {0.50, 0.40},
		MiddleTip: {0.50, 0.28},
		RingMCP:   {0.45, 0.68},
		RingPIP:   {0.43, 0.55},
		RingDIP:   {0.42, 0.45},
		RingTip:   {0.42, 0.35},
		PinkyMCP:  {0.40, 0.70},
		PinkyPIP:  {0.37, 0.60},
		PinkyDIP:  {0.35, 0.50},
		PinkyTip:  {0.34, 0.42},
	}

	pose := Pose{Handedness: "Right", Score: 0.95}
	for i, p := range pts {
		pose.Keypoints = append(pose.Keypoints, Keypoint{
			X:     p[0] * w,
			Y:     p[1] * h,
			Score: 0.95,
			Name:  handNames[i],
		})
	}
	return pose
}
