package settings

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/geometry"
	"github.com/ayusman/snoezelen/internal/particle"
	"github.com/ayusman/snoezelen/internal/tracking"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		check   func(Settings) bool
		wantErr bool
	}{
		{
			name:  "effect by name",
			key:   "effect",
			value: `"geometric-snow"`,
			check: func(s Settings) bool { return s.Effect == particle.GeometricSnow },
		},
		{
			name:  "threshold",
			key:   "threshold",
			value: `12.5`,
			check: func(s Settings) bool { return s.Threshold == 12.5 },
		},
		{
			name:  "detector",
			key:   "detector",
			value: `"hands"`,
			check: func(s Settings) bool { return s.Detector == detector.TypeHands },
		},
		{
			name:  "markers",
			key:   "markers",
			value: `["face","left_foot"]`,
			check: func(s Settings) bool {
				return slices.Equal(s.Markers, []tracking.Marker{tracking.Face, tracking.LeftFoot})
			},
		},
		{
			name:  "quad",
			key:   "quad",
			value: `[{"x":10,"y":10},{"x":600,"y":20},{"x":620,"y":470},{"x":5,"y":460}]`,
			check: func(s Settings) bool { return s.Quad[2] == geometry.Pt(620, 470) },
		},
		{name: "unknown key", key: "volume", value: `1`, wantErr: true},
		{name: "bad effect", key: "effect", value: `"lasers"`, wantErr: true},
		{name: "negative threshold", key: "threshold", value: `-1`, wantErr: true},
		{name: "score above one", key: "minScore", value: `1.5`, wantErr: true},
		{name: "unknown mode", key: "mode", value: `"tilt"`, wantErr: true},
		{name: "unknown marker", key: "markers", value: `["tail"]`, wantErr: true},
		{name: "wrong type", key: "particleCount", value: `"ten"`, wantErr: true},
		{
			name:    "degenerate quad",
			key:     "quad",
			value:   `[{"x":0,"y":0},{"x":50,"y":50},{"x":100,"y":100},{"x":0,"y":100}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := Default()
			got, err := base.Apply(tt.key, json.RawMessage(tt.value))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply(%s, %s) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !tt.check(got) {
				t.Errorf("Apply(%s, %s) = %+v", tt.key, tt.value, got)
			}
		})
	}
}

func TestApply_CopyOnWrite(t *testing.T) {
	base := Default()
	next, err := base.Apply("markers", json.RawMessage(`["face"]`))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(base.Markers) != 2 {
		t.Errorf("original markers changed: %v", base.Markers)
	}
	next.Markers[0] = tracking.RightFoot
	if base.MarkerEnabled(tracking.RightFoot) {
		t.Error("settings must not share marker slices")
	}
}

func TestApply_UnknownSettingError(t *testing.T) {
	_, err := Default().Apply("nope", json.RawMessage(`1`))
	if !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("error = %v, want ErrUnknownSetting", err)
	}
}

func TestApplyAll(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]json.RawMessage
		ok      bool
		wantErr error
	}{
		{
			name:   "every key applied",
			values: map[string]json.RawMessage{"effect": json.RawMessage(`"fire"`), "threshold": json.RawMessage(`12`)},
			ok:     true,
		},
		{
			name:   "one invalid value rejects the batch",
			values: map[string]json.RawMessage{"effect": json.RawMessage(`"fire"`), "threshold": json.RawMessage(`-1`)},
		},
		{
			name:    "unknown key rejects the batch",
			values:  map[string]json.RawMessage{"effect": json.RawMessage(`"fire"`), "volume": json.RawMessage(`3`)},
			wantErr: ErrUnknownSetting,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := Default()
			next, err := base.ApplyAll(tt.values)
			if tt.ok {
				if err != nil {
					t.Fatalf("ApplyAll() error = %v", err)
				}
				if next.Effect != particle.Fire || next.Threshold != 12 {
					t.Errorf("ApplyAll() = %+v", next)
				}
				return
			}
			if err == nil {
				t.Fatal("ApplyAll() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if next.Effect != base.Effect || next.Threshold != base.Threshold {
				t.Errorf("a rejected batch changed settings: %+v", next)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	for _, want := range []string{"effect", "threshold", "quad", "markers", "mode"} {
		if !slices.Contains(keys, want) {
			t.Errorf("Keys() missing %q", want)
		}
	}
}

func TestHolder_Update(t *testing.T) {
	h := NewHolder(Default())

	var notified []Settings
	unsubscribe := h.Subscribe(func(s Settings) { notified = append(notified, s) })

	next, err := h.Update(func(s Settings) (Settings, error) {
		return s.Apply("effect", json.RawMessage(`"fire"`))
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if next.Effect != particle.Fire || h.Load().Effect != particle.Fire {
		t.Errorf("effect = %v / %v, want fire", next.Effect, h.Load().Effect)
	}
	if len(notified) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notified))
	}

	// failed updates keep the old snapshot and do not notify
	if _, err := h.Update(func(s Settings) (Settings, error) {
		return s.Apply("effect", json.RawMessage(`"lasers"`))
	}); err == nil {
		t.Error("invalid update should fail")
	}
	if h.Load().Effect != particle.Fire || len(notified) != 1 {
		t.Error("failed update changed state")
	}

	unsubscribe()
	h.Store(Default())
	if len(notified) != 1 {
		t.Error("unsubscribed callback was notified")
	}
}

func TestHolder_SnapshotIsStable(t *testing.T) {
	h := NewHolder(Default())
	snap := h.Load()

	h.Update(func(s Settings) (Settings, error) {
		s.Threshold = 42
		return s, nil
	})

	if snap.Threshold == 42 {
		t.Error("earlier snapshot observed a later update")
	}
}

func TestHolder_ConcurrentReaders(t *testing.T) {
	h := NewHolder(Default())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if s := h.Load(); s.Validate() != nil {
					t.Error("reader saw an invalid snapshot")
					return
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		h.Update(func(s Settings) (Settings, error) {
			s.ParticleCount = j
			return s, nil
		})
	}
	wg.Wait()
}
