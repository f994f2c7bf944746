package display

import (
	"context"
	"encoding/json"
	"flag"
	"image"
	"log"
	"math"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/calibration"
	"github.com/ayusman/snoezelen/internal/fixtures"
	"github.com/ayusman/snoezelen/internal/geometry"
	"github.com/ayusman/snoezelen/internal/settings"
	"github.com/ayusman/snoezelen/internal/warp"
)

// loopFuncs is non-nil when TestMain runs an ebiten loop; functions sent on
// it run inside Update.
var (
	loopFuncs  chan func()
	loopExited = make(chan struct{})
)

type testLoop struct {
	done <-chan struct{}
}

func (g *testLoop) Update() error {
	select {
	case fn := <-loopFuncs:
		fn()
	case <-g.done:
		return ebiten.Termination
	default:
	}
	return nil
}

func (g *testLoop) Draw(*ebiten.Image)         {}
func (g *testLoop) Layout(int, int) (int, int) { return 64, 64 }

func hasDisplay() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// TestMain runs the tests beside an ebiten loop on the main thread when a
// display is available, so GPU tests can use onGameLoop.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() || !hasDisplay() {
		os.Exit(m.Run())
	}

	loopFuncs = make(chan func())
	done := make(chan struct{})
	code := 0
	go func() {
		code = m.Run()
		close(done)
	}()

	ebiten.SetWindowSize(64, 64)
	ebiten.SetWindowTitle("snoezelen display test")
	if err := ebiten.RunGame(&testLoop{done: done}); err != nil {
		log.Printf("Game loop unavailable: %v", err)
	}
	close(loopExited)
	<-done
	os.Exit(code)
}

// onGameLoop runs fn inside the ebiten loop and waits for it.
func onGameLoop(t *testing.T, fn func()) {
	t.Helper()
	if loopFuncs == nil {
		t.Skip("skipping test that requires a display")
	}
	ran := make(chan struct{})
	select {
	case loopFuncs <- func() {
		defer close(ran)
		fn()
	}:
	case <-loopExited:
		t.Skip("skipping test - game loop unavailable")
	case <-time.After(10 * time.Second):
		t.Skip("skipping test - game loop did not start")
	}
	<-ran
}

type fakeEngine struct {
	holder  *settings.Holder
	preview *image.RGBA
	updates []string
}

func newFakeEngine() *fakeEngine {
	s := settings.Default()
	s.Mirrored = false
	s.Quad = geometry.RectQuad(640, 480)
	return &fakeEngine{
		holder:  settings.NewHolder(s),
		preview: image.NewRGBA(image.Rect(0, 0, 640, 480)),
	}
}

func (f *fakeEngine) Tick(context.Context) (app.FrameResult, error) { return app.FrameResult{}, nil }
func (f *fakeEngine) Output() *image.RGBA                          { return nil }
func (f *fakeEngine) Preview() *image.RGBA                         { return f.preview }
func (f *fakeEngine) Settings() *settings.Holder                   { return f.holder }

func (f *fakeEngine) UpdateSetting(key string, value json.RawMessage) (settings.Settings, error) {
	f.updates = append(f.updates, key)
	return f.holder.Update(func(s settings.Settings) (settings.Settings, error) {
		return s.Apply(key, value)
	})
}

func TestGame_CalibrationDrag(t *testing.T) {
	eng := newFakeEngine()
	g := NewGame(context.Background(), eng)
	g.Layout(1280, 960) // 2x the preview, no letterbox

	g.ToggleCalibration()
	if !g.Calibrating() {
		t.Fatal("calibration not started")
	}

	// top-left corner sits at (0,0) on screen; drag it to (100,60)
	g.Pointer(geometry.Pt(4, 4), true, true, false)
	g.Pointer(geometry.Pt(100, 60), false, true, false)
	g.Pointer(geometry.Pt(100, 60), false, false, true)

	q := eng.holder.Load().Quad
	if d := geometry.Distance(q[0], geometry.Pt(50, 30)); d > 1e-9 {
		t.Errorf("corner = %v, want (50,30)", q[0])
	}
	if len(eng.updates) != 1 || eng.updates[0] != "quad" {
		t.Errorf("updates = %v", eng.updates)
	}

	g.ResetQuad()
	if got := eng.holder.Load().Quad; got != geometry.RectQuad(640, 480) {
		t.Errorf("reset quad = %v", got)
	}

	g.ToggleCalibration()
	if g.Calibrating() {
		t.Error("calibration not finished")
	}
}

func TestGame_ClickWithoutDragKeepsQuad(t *testing.T) {
	eng := newFakeEngine()
	g := NewGame(context.Background(), eng)
	g.Layout(640, 480)
	g.ToggleCalibration()

	g.Pointer(geometry.Pt(320, 240), true, true, false)
	g.Pointer(geometry.Pt(320, 240), false, false, true)
	if len(eng.updates) != 0 {
		t.Errorf("updates = %v, want none", eng.updates)
	}
}

func TestGame_PointerIgnoredOutsideCalibration(t *testing.T) {
	eng := newFakeEngine()
	g := NewGame(context.Background(), eng)
	g.Layout(640, 480)

	g.Pointer(geometry.Pt(0, 0), true, true, false)
	g.Pointer(geometry.Pt(50, 50), false, false, true)
	if len(eng.updates) != 0 {
		t.Errorf("updates = %v, want none", eng.updates)
	}
}

func TestDrawOptions(t *testing.T) {
	tests := []struct {
		name string
		view calibration.View
		in   geometry.Point
	}{
		{"letterbox", calibration.View{VideoW: 640, VideoH: 480, ScreenW: 1280, ScreenH: 720}, geometry.Pt(100, 200)},
		{"mirrored", calibration.View{VideoW: 640, VideoH: 480, ScreenW: 640, ScreenH: 480, Mirrored: true}, geometry.Pt(100, 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := drawOptions(tt.view)
			x, y := op.GeoM.Apply(tt.in.X, tt.in.Y)
			want := tt.view.VideoToScreen(tt.in)
			if math.Abs(x-want.X) > 1e-9 || math.Abs(y-want.Y) > 1e-9 {
				t.Errorf("GeoM maps %v to (%v,%v), want %v", tt.in, x, y, want)
			}
		})
	}
}

func TestUniforms(t *testing.T) {
	h := geometry.Homography{1, 2, 3, 4, 5, 6, 7, 8, 9}
	u := uniforms(h, 640, 480)

	row2, ok := u["Row2"].([]float32)
	if !ok || len(row2) != 3 || row2[0] != 7 || row2[2] != 9 {
		t.Errorf("Row2 = %v", u["Row2"])
	}
	if size := u["SrcSize"].([]float32); size[0] != 640 || size[1] != 480 {
		t.Errorf("SrcSize = %v", size)
	}
}

func TestRGBAPix(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Pix[0] = 9
	if got := rgbaPix(src); &got[0] != &src.Pix[0] {
		t.Error("packed image should not be copied")
	}

	sub := src.SubImage(image.Rect(1, 1, 3, 3))
	if got := rgbaPix(sub); len(got) != 2*2*4 {
		t.Errorf("len = %d, want 16", len(got))
	}
}

func TestNewShaderWarper_Compiles(t *testing.T) {
	sw, err := NewShaderWarper()
	if err != nil {
		t.Fatalf("NewShaderWarper() error = %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := sw.Warp(fixtures.Gradient(4, 4), geometry.Identity(), 4, 4); err == nil {
		t.Error("Warp() after Close() should fail")
	}
}

func TestShaderWarper_AgreesWithCPU(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires a GPU in short mode")
	}

	src := fixtures.Gradient(160, 120)
	quad := geometry.Quad{geometry.Pt(12, 8), geometry.Pt(150, 20), geometry.Pt(140, 110), geometry.Pt(5, 100)}
	m, err := geometry.Pair(quad, geometry.RectQuad(128, 96))
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	want, err := warp.NewCPU(0).Warp(src, m.Inverse, 128, 96)
	if err != nil {
		t.Fatalf("CPU Warp() error = %v", err)
	}

	var got *image.RGBA
	var warpErr error
	onGameLoop(t, func() {
		sw, err := NewShaderWarper()
		if err != nil {
			warpErr = err
			return
		}
		defer sw.Close()
		got, warpErr = sw.Warp(src, m.Inverse, 128, 96)
	})
	if warpErr != nil {
		t.Fatalf("shader Warp() error = %v", warpErr)
	}
	if got.Rect != want.Rect {
		t.Fatalf("bounds = %v, want %v", got.Rect, want.Rect)
	}

	// float32 on the GPU may move a sample across the source edge
	bad := 0
	for i := 0; i < len(want.Pix); i += 4 {
		for ch := 0; ch < 4; ch++ {
			if d := int(got.Pix[i+ch]) - int(want.Pix[i+ch]); d > 2 || d < -2 {
				bad++
				break
			}
		}
	}
	if limit := len(want.Pix) / 4 / 100; bad > limit {
		t.Errorf("%d pixels differ by more than 2 from the CPU renderer, want at most %d", bad, limit)
	}
}
