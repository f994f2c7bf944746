// Package app runs the Snoezelen frame loop: camera, warp, detection,
// movement tracking and particle rendering.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ayusman/snoezelen/internal/capture"
	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/particle"
	"github.com/ayusman/snoezelen/internal/recording"
	"github.com/ayusman/snoezelen/internal/remote"
	"github.com/ayusman/snoezelen/internal/render"
	"github.com/ayusman/snoezelen/internal/settings"
	"github.com/ayusman/snoezelen/internal/sound"
	"github.com/ayusman/snoezelen/internal/store"
	"github.com/ayusman/snoezelen/internal/tracking"
	"github.com/ayusman/snoezelen/internal/warp"
)

// Frame loop timing constants.
const (
	// IdleFPS is the frame rate when nobody is moving.
	IdleFPS = 5
	// ActiveFPS is the frame rate while the room is active.
	ActiveFPS = 30
)

// ErrNotRunning is returned by Tick when the engine is not started.
var ErrNotRunning = errors.New("engine is not running")

// State is the lifecycle state of an Engine.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	// StateError means the camera failed; the loop stays halted until
	// Start is called again.
	StateError State = "error"
)

// DetectorFactory creates a detector for a keypoint layout.
type DetectorFactory func(detector.Type) (detector.Detector, error)

// WarperFactory creates a warp renderer.
type WarperFactory func(warp.Kind) (warp.Warper, error)

// Config holds the collaborators of an Engine. Camera and Settings are
// required.
type Config struct {
	Camera   capture.Camera
	Settings *settings.Holder

	// NewDetector defaults to MediaPipeDetectors(detector.DefaultConfig()).
	NewDetector DetectorFactory
	// NewWarper defaults to warp.New.
	NewWarper WarperFactory
	// Cue plays on emissions; nil is silent.
	Cue tracking.Cue

	// Store persists setting updates and saved recordings; optional.
	Store *store.Store
	// Hub carries remote control messages; optional.
	Hub *remote.Hub
	// ExportDir receives JSON exports and output videos; empty disables
	// file export.
	ExportDir string
	// Archive receives a copy of every saved recording; optional.
	Archive Archiver

	Activity  capture.ActivityConfig
	IdleFPS   int
	ActiveFPS int

	// Seed for the particle system; zero seeds from the clock.
	Seed int64
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Archiver uploads saved recordings to long-term storage.
type Archiver interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) (string, error)
	PutFile(ctx context.Context, path string) (string, error)
}

// MediaPipeDetectors returns a factory creating MediaPipe detectors from
// base. When the Python service is missing it falls back to a mock
// detector that never sees anyone.
func MediaPipeDetectors(base detector.Config) DetectorFactory {
	return func(t detector.Type) (detector.Detector, error) {
		cfg := base
		cfg.Type = t
		mp, err := detector.NewMediaPipeDetector(cfg)
		if err != nil {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			return detector.NewMockDetector(), nil
		}
		log.Printf("Using MediaPipe %s detection", t)
		return mp, nil
	}
}

// Engine is the frame loop. Tick may be driven by Run or by a display's
// per-frame callback; configuration is read from one settings snapshot per
// tick.
type Engine struct {
	cfg       Config
	camera    capture.Camera
	holder    *settings.Holder
	particles *particle.System
	tracker   *tracking.Tracker
	recorder  *recording.Recorder
	video     *recording.VideoRecorder
	activity  *capture.ActivityMonitor
	overlay   render.Overlay

	tickMu sync.Mutex // serializes Tick

	resMu    sync.Mutex // guards det and warper
	det      detector.Detector
	detType  detector.Type
	warper   warp.Warper
	warpKind warp.Kind

	mu          sync.RWMutex
	state       State
	lastErr     error
	runCtx      context.Context
	cancel      context.CancelFunc
	lastSession *recording.Session
	lastVideo   string
	unsubscribe func()

	frameMu   sync.RWMutex
	output    *image.RGBA
	preview   *image.RGBA
	stats     Stats
	live      int
	active    bool
	keypoints []detector.Keypoint
}

// Stats are running counters of the frame loop.
type Stats struct {
	Frames         uint64 `json:"frames"`
	Detections     uint64 `json:"detections"`
	DetectorErrors uint64 `json:"detectorErrors"`
	SingularFrames uint64 `json:"singularFrames"`
	Emissions      uint64 `json:"emissions"`
	Dropped        uint64 `json:"dropped"`
}

// Status is a point-in-time summary for the HTTP API and controllers.
type Status struct {
	State     State  `json:"state"`
	Error     string `json:"error,omitempty"`
	Stats     Stats  `json:"stats"`
	Particles int    `json:"particles"`
	Active    bool   `json:"active"`
	Recording bool   `json:"recording"`
	Video     bool   `json:"video"`
	Detector  string `json:"detector"`
	Warper    string `json:"warper"`
	Peers     int    `json:"peers"`
}

// New creates an Engine. It does not open the camera.
func New(cfg Config) (*Engine, error) {
	if cfg.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("app: settings are required")
	}
	if cfg.NewDetector == nil {
		cfg.NewDetector = MediaPipeDetectors(detector.DefaultConfig())
	}
	if cfg.NewWarper == nil {
		cfg.NewWarper = warp.New
	}
	if cfg.Cue == nil {
		cfg.Cue = sound.Silent{}
	}
	if cfg.Activity == (capture.ActivityConfig{}) {
		cfg.Activity = capture.DefaultActivityConfig()
	}
	if cfg.IdleFPS <= 0 {
		cfg.IdleFPS = IdleFPS
	}
	if cfg.ActiveFPS <= 0 {
		cfg.ActiveFPS = ActiveFPS
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		cfg:       cfg,
		camera:    cfg.Camera,
		holder:    cfg.Settings,
		particles: particle.NewSystem(particle.Config{Seed: cfg.Seed}),
		tracker:   tracking.NewTracker(),
		recorder:  recording.NewRecorder(recording.DefaultInterval),
		video:     recording.NewVideoRecorder(),
		activity:  capture.NewActivityMonitor(cfg.Activity),
		overlay:   render.DefaultOverlay(),
		state:     StateStopped,
	}
	if cfg.Hub != nil {
		e.unsubscribe = cfg.Hub.Subscribe(e.HandleMessage)
	}
	return e, nil
}

// Start opens the camera and starts accepting ticks. A camera
// failure puts the engine in StateError; it is not retried.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		return nil
	}

	if err := e.camera.Open(); err != nil {
		e.state = StateError
		e.lastErr = err
		log.Printf("Error opening camera: %v", err)
		return fmt.Errorf("open camera: %w", err)
	}

	e.runCtx, e.cancel = context.WithCancel(context.Background())
	e.state = StateRunning
	e.lastErr = nil
	e.tracker.Reset()
	e.activity.Reset()

	log.Println("Frame loop started")
	return nil
}

// Stop halts the loop and releases the camera, detector and warper. A
// detection still in flight is cancelled and its result discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.state == StateRunning
	if e.state != StateError {
		e.state = StateStopped
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()

	if err := e.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	if e.video.Active() {
		if path, frames, err := e.video.Stop(); err != nil {
			log.Printf("Error closing video %s: %v", path, err)
		} else {
			log.Printf("Saved %d frames to %s", frames, path)
		}
	}

	e.resMu.Lock()
	if e.det != nil {
		if err := e.det.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
		e.det = nil
	}
	if e.warper != nil {
		e.warper.Close()
		e.warper = nil
	}
	e.resMu.Unlock()

	if wasRunning {
		log.Println("Frame loop stopped")
	}
}

// Close stops the engine, leaves the remote channel and frees native
// resources.
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.mu.Unlock()
	e.activity.Close()
}

// State returns the lifecycle state and the error that caused StateError.
func (e *Engine) State() (State, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.lastErr
}

func (e *Engine) running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateRunning
}

// liveContext returns the context that ends when the engine stops.
func (e *Engine) liveContext() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.runCtx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return e.runCtx
}

// Settings returns the settings holder.
func (e *Engine) Settings() *settings.Holder {
	return e.holder
}

// Keypoints returns the keypoints of the last detection, in camera pixel
// coordinates.
func (e *Engine) Keypoints() []detector.Keypoint {
	e.frameMu.RLock()
	defer e.frameMu.RUnlock()
	return e.keypoints
}

// Tracker returns the marker tracker.
func (e *Engine) Tracker() *tracking.Tracker {
	return e.tracker
}

// Recorder returns the keypoint recorder.
func (e *Engine) Recorder() *recording.Recorder {
	return e.recorder
}

// Output returns the last composited projector frame, or nil before the
// first tick. The image must not be modified.
func (e *Engine) Output() *image.RGBA {
	e.frameMu.RLock()
	defer e.frameMu.RUnlock()
	return e.output
}

// Preview returns the last camera frame with the quad and keypoints drawn
// over it. The image must not be modified.
func (e *Engine) Preview() *image.RGBA {
	e.frameMu.RLock()
	defer e.frameMu.RUnlock()
	return e.preview
}

// Status returns a summary of the engine.
func (e *Engine) Status() Status {
	state, err := e.State()
	s := e.holder.Load()

	e.frameMu.RLock()
	stats, live, active := e.stats, e.live, e.active
	e.frameMu.RUnlock()

	st := Status{
		State:     state,
		Stats:     stats,
		Particles: live,
		Active:    active,
		Recording: e.recorder.Active(),
		Video:     e.video.Active(),
		Detector:  string(s.Detector),
		Warper:    string(s.Warper),
	}
	if err != nil {
		st.Error = err.Error()
	}
	if e.cfg.Hub != nil {
		st.Peers = e.cfg.Hub.Peers()
	}
	return st
}
