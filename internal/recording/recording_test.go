package recording

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/snoezelen/internal/detector"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func kps(x float64) []detector.Keypoint {
	return []detector.Keypoint{{X: x, Y: 1, Score: 0.9, Name: "nose"}}
}

func TestRecorder_SamplesAtInterval(t *testing.T) {
	r := NewRecorder(0)
	if _, err := r.Start(KindPoses, "memo", t0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{100 * time.Millisecond, false},
		{249 * time.Millisecond, false},
		{250 * time.Millisecond, true},
		{400 * time.Millisecond, false},
		{600 * time.Millisecond, true},
	}
	for _, s := range steps {
		if got := r.Observe(t0.Add(s.offset), kps(1)); got != s.want {
			t.Errorf("Observe(+%v) = %v, want %v", s.offset, got, s.want)
		}
	}

	sess, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(sess.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(sess.Samples))
	}
	want := []int64{0, 250, 600}
	for i, s := range sess.Samples {
		if s.Timestamp != want[i] {
			t.Errorf("sample %d timestamp = %d, want %d", i, s.Timestamp, want[i])
		}
	}
	if sess.ID == "" || sess.Memo != "memo" || !sess.StartTime.Equal(t0) {
		t.Errorf("session = %+v", sess)
	}
}

func TestRecorder_CopiesKeypoints(t *testing.T) {
	r := NewRecorder(time.Millisecond)
	r.Start(KindPoses, "", t0)

	in := kps(5)
	r.Observe(t0, in)
	in[0].X = 99

	s, _ := r.Session()
	if s.Samples[0].Keypoints[0].X != 5 {
		t.Error("recorded keypoints must not alias the caller's slice")
	}
}

func TestRecorder_Lifecycle(t *testing.T) {
	r := NewRecorder(0)

	if r.Observe(t0, kps(1)) {
		t.Error("Observe while idle should not record")
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop() while idle error = %v, want ErrNotRecording", err)
	}

	r.Start(KindHands, "", t0)
	if !r.Active() {
		t.Error("Active() should be true after Start")
	}
	if _, err := r.Start(KindHands, "", t0); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRecording", err)
	}

	r.SetMemo("updated")
	s, ok := r.Session()
	if !ok || s.Memo != "updated" || s.Kind != KindHands {
		t.Errorf("Session() = %+v, %v", s, ok)
	}

	r.Stop()
	if r.Active() {
		t.Error("Active() should be false after Stop")
	}
}

func TestExport_Poses(t *testing.T) {
	s := Session{
		Kind:      KindPoses,
		StartTime: t0,
		Memo:      "left hand waving",
		Samples: []Sample{
			{Timestamp: 0, Keypoints: kps(10)},
			{Timestamp: 250, Keypoints: kps(30)},
		},
	}

	var buf bytes.Buffer
	if err := Export(&buf, s); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var doc struct {
		StartTime int64  `json:"startTime"`
		Memo      string `json:"memo"`
		Poses     []struct {
			Timestamp int64 `json:"timestamp"`
			Keypoints []struct {
				X     float64 `json:"x"`
				Y     float64 `json:"y"`
				Score float64 `json:"score"`
				Name  string  `json:"name"`
			} `json:"keypoints"`
		} `json:"poses"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("exported JSON invalid: %v", err)
	}

	if doc.StartTime != t0.UnixMilli() {
		t.Errorf("startTime = %d, want %d", doc.StartTime, t0.UnixMilli())
	}
	if doc.Memo != s.Memo {
		t.Errorf("memo = %q", doc.Memo)
	}
	if len(doc.Poses) != 2 || doc.Poses[1].Timestamp != 250 {
		t.Fatalf("poses = %+v", doc.Poses)
	}
	if kp := doc.Poses[1].Keypoints[0]; kp.X != 30 || kp.Name != "nose" || kp.Score != 0.9 {
		t.Errorf("keypoint = %+v", kp)
	}
}

func TestExport_HandsUseLandmarks(t *testing.T) {
	s := Session{Kind: KindHands, StartTime: t0, Samples: []Sample{{Timestamp: 0, Keypoints: kps(1)}}}

	var buf bytes.Buffer
	if err := Export(&buf, s); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var doc map[string]json.RawMessage
	json.Unmarshal(buf.Bytes(), &doc)
	if _, ok := doc["hands"]; !ok {
		t.Error(`hand export should use "hands"`)
	}
	if _, ok := doc["poses"]; ok {
		t.Error(`hand export should not contain "poses"`)
	}
	if !bytes.Contains(doc["hands"], []byte(`"landmarks"`)) {
		t.Error(`hand samples should use "landmarks"`)
	}
}

func TestExport_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, Session{Kind: KindPoses, StartTime: t0})
	if !errors.Is(err, ErrEmptyRecording) {
		t.Errorf("Export() error = %v, want ErrEmptyRecording", err)
	}
	if buf.Len() != 0 {
		t.Error("empty export should write nothing")
	}
}

func TestKindFor(t *testing.T) {
	if KindFor(detector.TypeHands) != KindHands {
		t.Error("hands detector should record hands")
	}
	if KindFor(detector.TypeBlazePose) != KindPoses {
		t.Error("blazepose detector should record poses")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(Session{Kind: KindPoses, StartTime: t0}); got != "poses-20240301-120000.json" {
		t.Errorf("Filename() = %q", got)
	}
}

func TestFramesDue(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		fps     float64
		want    int
	}{
		{"first frame", 0, 30, 1},
		{"before the second slot", 30 * time.Millisecond, 30, 1},
		{"second slot", 34 * time.Millisecond, 30, 2},
		{"one second", time.Second, 30, 31},
		{"idle tick at 5 fps", 200 * time.Millisecond, 30, 7},
		{"clock went backwards", -time.Second, 30, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := framesDue(tt.elapsed, tt.fps); got != tt.want {
				t.Errorf("framesDue(%v, %v) = %d, want %d", tt.elapsed, tt.fps, got, tt.want)
			}
		})
	}
}

func TestVideoRecorder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV video encoding")
	}

	path := filepath.Join(t.TempDir(), "out.avi")
	v := NewVideoRecorder()

	if err := v.Write(image.NewRGBA(image.Rect(0, 0, 4, 4)), t0); err != nil {
		t.Errorf("Write() while idle error = %v", err)
	}

	if err := v.Start(path, 10, 64, 48, t0); err != nil {
		t.Skipf("skipping - MJPG writer unavailable: %v", err)
	}
	if err := v.Start(path, 10, 64, 48, t0); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRecording", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
	writes := []struct {
		at   time.Duration
		want int
	}{
		{0, 1},
		{50 * time.Millisecond, 1}, // faster than 10 fps, dropped
		{100 * time.Millisecond, 2},
		{600 * time.Millisecond, 7}, // a slow tick is held for five slots
	}
	for _, w := range writes {
		if err := v.Write(frame, t0.Add(w.at)); err != nil {
			t.Fatalf("Write() at %v error = %v", w.at, err)
		}
		if v.frames != w.want {
			t.Errorf("after Write() at %v frames = %d, want %d", w.at, v.frames, w.want)
		}
	}
	// mismatched frames are scaled
	if err := v.Write(image.NewRGBA(image.Rect(0, 0, 32, 24)), t0.Add(750*time.Millisecond)); err != nil {
		t.Fatalf("Write() scaled error = %v", err)
	}

	got, frames, err := v.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got != path || frames != 8 {
		t.Errorf("Stop() = %q, %d, want %q, 8", got, frames, path)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("video file missing or empty: %v", err)
	}
}
