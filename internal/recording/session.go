// Package recording captures timestamped keypoint samples and composited
// video while a session is active.
package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/snoezelen/internal/detector"
)

// DefaultInterval is the keypoint sampling period.
const DefaultInterval = 250 * time.Millisecond

var (
	// ErrEmptyRecording is returned when exporting a session without samples.
	ErrEmptyRecording = errors.New("recording is empty")
	// ErrNotRecording is returned when stopping an idle recorder.
	ErrNotRecording = errors.New("not recording")
	// ErrAlreadyRecording is returned when starting an active recorder.
	ErrAlreadyRecording = errors.New("already recording")
)

// Kind says whether a session holds body poses or hand landmarks.
type Kind string

const (
	KindPoses Kind = "poses"
	KindHands Kind = "hands"
)

// KindFor returns the session kind matching a detector type.
func KindFor(t detector.Type) Kind {
	if t == detector.TypeHands {
		return KindHands
	}
	return KindPoses
}

// Sample is one sampling tick. Timestamp is milliseconds since the session
// started.
type Sample struct {
	Timestamp int64               `json:"timestamp"`
	Keypoints []detector.Keypoint `json:"keypoints"`
}

// Session is a recorded run of samples.
type Session struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	StartTime time.Time `json:"startTime"`
	Memo      string    `json:"memo"`
	Samples   []Sample  `json:"samples"`
}

// Recorder appends samples to the active session at a fixed interval.
// Safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	interval   time.Duration
	session    *Session
	lastSample time.Time
}

// NewRecorder creates an idle recorder. interval <= 0 uses DefaultInterval.
func NewRecorder(interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Recorder{interval: interval}
}

// Start begins a new session.
func (r *Recorder) Start(kind Kind, memo string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return "", ErrAlreadyRecording
	}
	r.session = &Session{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartTime: now,
		Memo:      memo,
	}
	r.lastSample = time.Time{}
	return r.session.ID, nil
}

// Observe records keypoints if a session is active and the sampling
// interval has elapsed. It reports whether a sample was taken.
func (r *Recorder) Observe(now time.Time, keypoints []detector.Keypoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return false
	}
	if !r.lastSample.IsZero() && now.Sub(r.lastSample) < r.interval {
		return false
	}

	kps := make([]detector.Keypoint, len(keypoints))
	copy(kps, keypoints)
	r.session.Samples = append(r.session.Samples, Sample{
		Timestamp: now.Sub(r.session.StartTime).Milliseconds(),
		Keypoints: kps,
	})
	r.lastSample = now
	return true
}

// SetMemo changes the memo of the active session.
func (r *Recorder) SetMemo(memo string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.Memo = memo
	}
}

// Stop ends the active session and returns it.
func (r *Recorder) Stop() (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return Session{}, ErrNotRecording
	}
	s := *r.session
	r.session = nil
	return s, nil
}

// Active reports whether a session is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Session returns a snapshot of the active session.
func (r *Recorder) Session() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return Session{}, false
	}
	s := *r.session
	s.Samples = append([]Sample(nil), r.session.Samples...)
	return s, true
}

type exportPose struct {
	Timestamp int64               `json:"timestamp"`
	Keypoints []detector.Keypoint `json:"keypoints"`
}

type exportHand struct {
	Timestamp int64               `json:"timestamp"`
	Landmarks []detector.Keypoint `json:"landmarks"`
}

// Export writes s as the downloadable JSON artifact:
//
//	{"startTime": <epoch ms>, "memo": "...", "poses": [{"timestamp": <ms>, "keypoints": [...]}]}
//
// Hand sessions use "hands" and "landmarks" instead.
func Export(w io.Writer, s Session) error {
	if len(s.Samples) == 0 {
		return ErrEmptyRecording
	}

	doc := map[string]any{
		"startTime": s.StartTime.UnixMilli(),
		"memo":      s.Memo,
	}
	switch s.Kind {
	case KindHands:
		hands := make([]exportHand, len(s.Samples))
		for i, smp := range s.Samples {
			hands[i] = exportHand{Timestamp: smp.Timestamp, Landmarks: smp.Keypoints}
		}
		doc["hands"] = hands
	default:
		poses := make([]exportPose, len(s.Samples))
		for i, smp := range s.Samples {
			poses[i] = exportPose{Timestamp: smp.Timestamp, Keypoints: smp.Keypoints}
		}
		doc["poses"] = poses
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	return nil
}

// Filename returns the suggested download name for s.
func Filename(s Session) string {
	return fmt.Sprintf("%s-%s.json", s.Kind, s.StartTime.Format("20060102-150405"))
}
