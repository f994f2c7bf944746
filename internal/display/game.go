// Package display shows the projector output in an ebiten window and lets
// the operator calibrate the warp quad with the mouse.
package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/calibration"
	"github.com/ayusman/snoezelen/internal/geometry"
	"github.com/ayusman/snoezelen/internal/settings"
)

// Engine is the part of app.Engine the window drives.
type Engine interface {
	Tick(ctx context.Context) (app.FrameResult, error)
	Output() *image.RGBA
	Preview() *image.RGBA
	Settings() *settings.Holder
	UpdateSetting(key string, value json.RawMessage) (settings.Settings, error)
}

// Options configure the window.
type Options struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
	// TPS is the update rate, and so the frame rate of the engine.
	TPS int
}

// DefaultOptions returns a 1280×720 window ticking at app.ActiveFPS.
func DefaultOptions() Options {
	return Options{
		Title:  "Snoezelen",
		Width:  1280,
		Height: 720,
		TPS:    app.ActiveFPS,
	}
}

var (
	handleColor = color.RGBA{0, 255, 0, 255}
	activeColor = color.RGBA{255, 0, 0, 255}
)

// Game implements ebiten.Game. Every Update ticks the engine once.
//
// Keys: C toggles calibration, R resets the quad while calibrating, M
// mirrors the preview, E toggles effects, F toggles fullscreen and Q
// quits.
type Game struct {
	ctx    context.Context
	engine Engine

	calibrating bool
	calib       *calibration.Calibrator

	screen  image.Point
	frame   *ebiten.Image
	lastErr string
}

// NewGame creates a game driving engine until ctx ends.
func NewGame(ctx context.Context, engine Engine) *Game {
	return &Game{ctx: ctx, engine: engine}
}

// Run opens the window and blocks until it is closed or ctx ends.
func Run(ctx context.Context, engine Engine, opts Options) error {
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowSize(opts.Width, opts.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetFullscreen(opts.Fullscreen)
	if opts.TPS > 0 {
		ebiten.SetTPS(opts.TPS)
	}

	err := ebiten.RunGame(NewGame(ctx, engine))
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

// Update handles input and ticks the engine.
func (g *Game) Update() error {
	if g.ctx.Err() != nil || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		g.ToggleCalibration()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		g.toggle("mirrored", !g.engine.Settings().Load().Mirrored)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyE) {
		g.toggle("effectsEnabled", !g.engine.Settings().Load().EffectsEnabled)
	}

	if g.calibrating {
		if inpututil.IsKeyJustPressed(ebiten.KeyR) {
			g.ResetQuad()
		}
		x, y := ebiten.CursorPosition()
		g.Pointer(geometry.Pt(float64(x), float64(y)),
			inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft),
			ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft),
			inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft))
	}

	if _, err := g.engine.Tick(g.ctx); err != nil && !errors.Is(err, app.ErrNotRunning) {
		// a stalled source fails every tick
		if msg := err.Error(); msg != g.lastErr {
			log.Printf("Error processing frame: %v", err)
			g.lastErr = msg
		}
	} else {
		g.lastErr = ""
	}
	return nil
}

// Draw presents the output, or the annotated camera preview while
// calibrating.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)

	img := g.engine.Output()
	if g.calibrating {
		img = g.engine.Preview()
	}
	if img == nil {
		ebitenutil.DebugPrint(screen, "waiting for camera")
		return
	}

	g.upload(img)
	view := g.view(img.Rect.Size(), g.calibrating && g.engine.Settings().Load().Mirrored)
	screen.DrawImage(g.frame, drawOptions(view))

	if g.calibrating {
		g.drawHandles(screen, view)
		ebitenutil.DebugPrint(screen, "CALIBRATION  drag corners, R reset, C done")
	}
}

// Layout uses the window size as the logical screen.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.screen = image.Pt(outsideWidth, outsideHeight)
	if g.calib != nil {
		if p := g.engine.Preview(); p != nil {
			g.calib.SetView(g.view(p.Rect.Size(), g.engine.Settings().Load().Mirrored))
		}
	}
	return outsideWidth, outsideHeight
}

// Calibrating reports whether calibration mode is on.
func (g *Game) Calibrating() bool {
	return g.calibrating
}

// ToggleCalibration enters or leaves calibration mode.
func (g *Game) ToggleCalibration() {
	g.calibrating = !g.calibrating
	if !g.calibrating {
		g.calib = nil
		log.Println("Calibration finished")
		return
	}

	s := g.engine.Settings().Load()
	size := image.Pt(s.CanvasWidth, s.CanvasHeight)
	if p := g.engine.Preview(); p != nil {
		size = p.Rect.Size()
	}
	g.calib = calibration.NewCalibrator(g.view(size, s.Mirrored), s.Quad)
	log.Println("Calibration started")
}

// ResetQuad sets the quad to the whole camera frame.
func (g *Game) ResetQuad() {
	if g.calib == nil {
		return
	}
	v := g.calib.View()
	g.calib.Reset(v.VideoW, v.VideoH)
	g.commitQuad(g.calib.Quad())
}

// Pointer feeds one frame of mouse state to the calibrator. The quad is
// saved when a drag that changed it ends.
func (g *Game) Pointer(p geometry.Point, pressed, down, released bool) {
	if g.calib == nil {
		return
	}
	switch {
	case pressed:
		g.calib.SetQuad(g.engine.Settings().Load().Quad)
		g.calib.PointerDown(p)
	case down:
		g.calib.PointerMove(p)
	case released:
		if q, changed := g.calib.PointerUp(); changed {
			g.commitQuad(q)
		}
	}
}

func (g *Game) commitQuad(q geometry.Quad) {
	raw, err := json.Marshal(q)
	if err != nil {
		log.Printf("Error encoding quad: %v", err)
		return
	}
	if _, err := g.engine.UpdateSetting("quad", raw); err != nil {
		log.Printf("Error saving quad: %v", err)
	}
}

func (g *Game) toggle(key string, v bool) {
	if _, err := g.engine.UpdateSetting(key, json.RawMessage(fmt.Sprint(v))); err != nil {
		log.Printf("Error updating %s: %v", key, err)
	}
}

// view letterboxes an image of size into the screen.
func (g *Game) view(size image.Point, mirrored bool) calibration.View {
	return calibration.View{
		VideoW:   float64(size.X),
		VideoH:   float64(size.Y),
		ScreenW:  float64(g.screen.X),
		ScreenH:  float64(g.screen.Y),
		Mirrored: mirrored,
	}
}

func (g *Game) upload(img *image.RGBA) {
	if g.frame == nil || g.frame.Bounds().Size() != img.Rect.Size() {
		if g.frame != nil {
			g.frame.Deallocate()
		}
		g.frame = ebiten.NewImage(img.Rect.Dx(), img.Rect.Dy())
	}
	g.frame.WritePixels(rgbaPix(img))
}

// drawOptions places an image the way view maps video pixels to the screen.
func drawOptions(view calibration.View) *ebiten.DrawImageOptions {
	origin := view.VideoToScreen(geometry.Pt(0, 0))
	corner := view.VideoToScreen(geometry.Pt(view.VideoW, view.VideoH))

	op := &ebiten.DrawImageOptions{Filter: ebiten.FilterLinear}
	op.GeoM.Scale((corner.X-origin.X)/view.VideoW, (corner.Y-origin.Y)/view.VideoH)
	op.GeoM.Translate(origin.X, origin.Y)
	return op
}

func (g *Game) drawHandles(screen *ebiten.Image, view calibration.View) {
	if g.calib == nil {
		return
	}
	q := view.QuadToScreen(g.calib.Quad())
	active := g.calib.Active()
	for i, p := range q {
		next := q[(i+1)%len(q)]
		vector.StrokeLine(screen, float32(p.X), float32(p.Y), float32(next.X), float32(next.Y), 2, handleColor, true)

		c := handleColor
		if i == active {
			c = activeColor
		}
		vector.DrawFilledCircle(screen, float32(p.X), float32(p.Y), calibration.DefaultHitRadius/2, c, true)
	}
}
