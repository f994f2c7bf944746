package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/geometry"
	"github.com/ayusman/snoezelen/internal/render"
	"github.com/ayusman/snoezelen/internal/settings"
	"github.com/ayusman/snoezelen/internal/tracking"
	"github.com/ayusman/snoezelen/internal/warp"
)

// FrameResult summarises one tick.
type FrameResult struct {
	// Mapped is false when the quad produced a singular homography and the
	// warp and detection were skipped.
	Mapped bool
	// Detected is true when the detector returned without error.
	Detected bool
	// Dropped is true when the engine stopped while detecting; the
	// detection result was discarded.
	Dropped bool
	// Active is the room activity after this frame.
	Active bool
	Poses  int
	// Emissions are in canvas coordinates.
	Emissions []tracking.Emission
}

// Tick processes one camera frame:
//
//  1. snapshot the settings
//  2. read a frame and solve the quad to canvas mapping
//  3. warp the frame into the canvas
//  4. detect poses on the warped frame (or the raw frame in gate and raw
//     modes)
//  5. resolve markers, gate them, track movement, emit particles and play
//     the cue
//  6. sample the recorder
//  7. advance the particles and compose the output and the preview
//  8. append the output to the video recording
//
// A singular mapping skips steps 3 to 6 for this frame only. A detector
// error is logged and skips steps 5 and 6.
func (e *Engine) Tick(ctx context.Context) (FrameResult, error) {
	var res FrameResult
	if !e.running() {
		return res, ErrNotRunning
	}
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	s := e.holder.Load()
	now := e.cfg.Now()

	frame, err := e.camera.ReadFrame()
	if err != nil {
		return res, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	res.Active = e.activity.Observe(frame, now)

	img, err := frame.ToImage()
	if err != nil {
		return res, fmt.Errorf("convert frame: %w", err)
	}
	video := asRGBA(img)
	vw, vh := video.Rect.Dx(), video.Rect.Dy()
	cw, ch := s.CanvasWidth, s.CanvasHeight

	quad := s.Quad
	if s.Mode == settings.ModeRaw {
		quad = geometry.RectQuad(float64(vw), float64(vh))
	}
	mapping, err := geometry.Pair(quad, geometry.RectQuad(float64(cw), float64(ch)))
	res.Mapped = err == nil

	var output *image.RGBA
	if res.Mapped {
		output, err = e.warp(s, video, mapping.Inverse, cw, ch)
		if err != nil {
			log.Printf("Error warping frame: %v", err)
			output = nil
		}
	}
	if output == nil {
		c := render.NewCanvas(cw, ch)
		c.Clear(color.RGBA{A: 255})
		output = c.Image()
	}

	var poses []detector.Pose
	var detectErr bool
	if res.Mapped {
		poses, err = e.detectFrame(ctx, s, frame, output)
		if err != nil {
			log.Printf("Error detecting poses: %v", err)
			detectErr = true
		} else {
			res.Detected = true
		}
	}

	// late results after Stop are discarded
	if !e.running() {
		res.Detected = false
		res.Dropped = true
		e.frameMu.Lock()
		e.stats.Dropped++
		e.frameMu.Unlock()
		return res, nil
	}

	var sampled []detector.Keypoint
	var shown []detector.Keypoint
	if res.Detected {
		res.Poses = len(poses)
		res.Emissions = e.bridge(s, poses, mapping, vw, cw)
		if len(res.Emissions) > 0 {
			e.activity.Poke(now)
			res.Active = true
		}

		for _, p := range poses {
			sampled = append(sampled, p.Keypoints...)
		}
		e.recorder.Observe(now, sampled)
		shown = e.toVideoSpace(s, sampled, mapping)
	}

	e.particles.Update()
	e.particles.Draw(render.Wrap(output))

	preview := render.Wrap(video)
	e.overlay.DrawQuad(preview, quad, -1)
	pts := make([]geometry.Point, len(shown))
	for i, kp := range shown {
		pts[i] = geometry.Pt(kp.X, kp.Y)
	}
	e.overlay.DrawKeypoints(preview, pts)

	if err := e.video.Write(output, now); err != nil {
		log.Printf("Error writing video frame: %v", err)
	}

	e.frameMu.Lock()
	e.output = output
	e.preview = video
	e.stats.Frames++
	e.stats.Emissions += uint64(len(res.Emissions))
	if res.Detected {
		e.stats.Detections++
		e.keypoints = shown
	}
	if detectErr {
		e.stats.DetectorErrors++
	}
	if !res.Mapped {
		e.stats.SingularFrames++
	}
	e.live = e.particles.Len()
	e.active = res.Active
	e.frameMu.Unlock()

	return res, nil
}

// bridge runs the movement state machine on poses and emits particles.
// Emissions are returned in canvas coordinates.
func (e *Engine) bridge(s settings.Settings, poses []detector.Pose, m geometry.Mapping, vw, cw int) []tracking.Emission {
	// warp mode detects in canvas space; the other modes in camera space
	spaceW := float64(vw)
	var region *geometry.Quad
	switch s.Mode {
	case settings.ModeWarp:
		spaceW = float64(cw)
	case settings.ModeGate:
		q := s.Quad
		region = &q
	}

	obs := tracking.Resolve(s.Detector, poses, s.Markers, s.MinScore)
	emissions := e.tracker.Step(obs, tracking.Params{
		Threshold:    s.ThresholdScale.Effective(s.Threshold, float64(vw), spaceW),
		MaxMagnitude: s.MaxMagnitude,
		Region:       region,
	})

	out := emissions[:0]
	for _, em := range emissions {
		if s.Mode != settings.ModeWarp {
			at, ok := m.Forward.Transform(em.At)
			if !ok {
				continue
			}
			em.At = at
		}
		if s.EffectsEnabled {
			e.particles.Emit(s.Effect, em.At.X, em.At.Y, em.Magnitude, s.ParticleCount)
		}
		out = append(out, em)
	}

	if len(out) > 0 && s.Audio {
		if _, err := tracking.Trigger(e.cfg.Cue); err != nil {
			log.Printf("Error playing cue: %v", err)
		}
	}
	return out
}

// toVideoSpace returns copies of the confident keypoints in camera pixel
// coordinates.
func (e *Engine) toVideoSpace(s settings.Settings, kps []detector.Keypoint, m geometry.Mapping) []detector.Keypoint {
	out := make([]detector.Keypoint, 0, len(kps))
	for _, kp := range kps {
		if kp.Score < s.MinScore {
			continue
		}
		if s.Mode == settings.ModeWarp {
			p, ok := m.Inverse.Transform(geometry.Pt(kp.X, kp.Y))
			if !ok {
				continue
			}
			kp.X, kp.Y = p.X, p.Y
		}
		out = append(out, kp)
	}
	return out
}

// warp renders src through inv with the renderer selected in s. A renderer
// that cannot be created falls back to the CPU one.
func (e *Engine) warp(s settings.Settings, src *image.RGBA, inv geometry.Homography, w, h int) (*image.RGBA, error) {
	e.resMu.Lock()
	if e.warper == nil || e.warpKind != s.Warper {
		if e.warper != nil {
			e.warper.Close()
		}
		wp, err := e.cfg.NewWarper(s.Warper)
		if err != nil {
			log.Printf("Warp renderer %s unavailable (%v), using cpu", s.Warper, err)
			wp = warp.NewCPU(0)
		}
		e.warper, e.warpKind = wp, s.Warper
	}
	wp := e.warper
	e.resMu.Unlock()

	return wp.Warp(src, inv, w, h)
}

// detectFrame runs the detector selected in s on the warped output in warp
// mode and on the camera frame otherwise. The call is cancelled when ctx
// ends or the engine stops.
func (e *Engine) detectFrame(ctx context.Context, s settings.Settings, frame *gocv.Mat, warped *image.RGBA) ([]detector.Pose, error) {
	d, err := e.detector(s.Detector)
	if err != nil {
		return nil, err
	}

	in := frame
	if s.Mode == settings.ModeWarp {
		m, err := gocv.ImageToMatRGB(warped)
		if err != nil {
			return nil, fmt.Errorf("convert warped frame: %w", err)
		}
		defer m.Close()
		in = &m
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.liveContext(), cancel)
	defer stop()

	return d.Detect(dctx, in)
}

// detector returns the detector for t, replacing the current one when the
// type changed.
func (e *Engine) detector(t detector.Type) (detector.Detector, error) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	if e.det != nil && e.detType == t {
		return e.det, nil
	}
	if e.det != nil {
		if err := e.det.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
		e.det = nil
		// marker positions from another layout are meaningless
		e.tracker.Reset()
	}

	d, err := e.cfg.NewDetector(t)
	if err != nil {
		return nil, fmt.Errorf("create %s detector: %w", t, err)
	}
	e.det, e.detType = d, t
	return d, nil
}

// Run starts the engine and ticks it until ctx ends or Stop is called. The
// camera rate drops to IdleFPS while the room is still.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	defer e.Stop()

	active := true
	fps := e.cfg.ActiveFPS
	e.camera.SetFPS(fps)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := e.Tick(ctx)
			if errors.Is(err, ErrNotRunning) {
				return nil
			}
			if err != nil {
				log.Printf("Error processing frame: %v", err)
				continue
			}

			if res.Active == active {
				continue
			}
			active = res.Active
			if active {
				fps = e.cfg.ActiveFPS
				log.Println("Switched to active mode")
			} else {
				fps = e.cfg.IdleFPS
				log.Println("Switched to idle mode")
			}
			e.camera.SetFPS(fps)
			ticker.Reset(time.Second / time.Duration(fps))
		}
	}
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}
