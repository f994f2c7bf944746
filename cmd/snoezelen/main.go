package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/archive"
	"github.com/ayusman/snoezelen/internal/capture"
	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/display"
	"github.com/ayusman/snoezelen/internal/particle"
	"github.com/ayusman/snoezelen/internal/remote"
	"github.com/ayusman/snoezelen/internal/server"
	"github.com/ayusman/snoezelen/internal/settings"
	"github.com/ayusman/snoezelen/internal/sound"
	"github.com/ayusman/snoezelen/internal/store"
	"github.com/ayusman/snoezelen/internal/tracking"
	"github.com/ayusman/snoezelen/internal/tray"
	"github.com/ayusman/snoezelen/internal/warp"
)

var (
	dataDir    string
	dbPath     string
	addr       string
	source     string
	exportDir  string
	cuePath    string
	scriptPath string
	mockDet    bool
	window     bool
	fullscreen bool
	withTray   bool
)

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultDir := filepath.Join(home, ".snoezelen")

	flag.StringVar(&dataDir, "data", getEnvOrDefault("SNOEZELEN_DATA", defaultDir), "Data directory")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SNOEZELEN_DB", ""), "Path to the SQLite database (default <data>/snoezelen.db)")
	flag.StringVar(&addr, "addr", getEnvOrDefault("SNOEZELEN_ADDR", ":8080"), "HTTP listen address")
	flag.StringVar(&source, "camera", getEnvOrDefault("SNOEZELEN_CAMERA", "0"), "Camera device index, video file or stream URL")
	flag.StringVar(&exportDir, "export", getEnvOrDefault("SNOEZELEN_EXPORT_DIR", ""), "Directory for recording exports (default <data>/exports)")
	flag.StringVar(&cuePath, "cue", getEnvOrDefault("SNOEZELEN_CUE", ""), "WAV file played on movement (default a built-in chime)")
	flag.StringVar(&scriptPath, "script", getEnvOrDefault("SNOEZELEN_POSE_SCRIPT", ""), "Path to the pose service script")
	flag.BoolVar(&mockDet, "mock", false, "Use the mock detector instead of MediaPipe")
	flag.BoolVar(&window, "window", false, "Open the projector window")
	flag.BoolVar(&fullscreen, "fullscreen", false, "Start the projector window fullscreen")
	flag.BoolVar(&withTray, "tray", false, "Show the system tray menu (headless mode only)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	fmt.Println("Snoezelen - interactive projection")

	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "snoezelen.db")
	}
	if exportDir == "" {
		exportDir = filepath.Join(dataDir, "exports")
	}
	for _, dir := range []string{filepath.Dir(dbPath), exportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	restored, err := st.Settings().Restore(settings.Default())
	if err != nil {
		log.Printf("Failed to restore settings, using defaults: %v", err)
		restored = settings.Default()
	}
	holder := settings.NewHolder(restored)

	detectors := app.MediaPipeDetectors(detectorConfig())
	if mockDet {
		detectors = func(detector.Type) (detector.Detector, error) {
			return detector.NewMockDetector(), nil
		}
	}

	var warpers app.WarperFactory = warp.New
	if window {
		warpers = display.Warpers()
	}

	hub := remote.NewHub()
	defer hub.Close()

	var archiver app.Archiver
	if cfg, ok := archive.ConfigFromEnv(); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a, err := archive.New(ctx, cfg)
		cancel()
		if err != nil {
			log.Printf("Archive disabled: %v", err)
		} else {
			log.Printf("Archiving recordings to bucket %s at %s", a.Bucket(), cfg.Endpoint)
			archiver = a
		}
	}

	camCfg := capture.DefaultConfig()
	camCfg.Source = source
	camCfg.Loop = true

	engine, err := app.New(app.Config{
		Camera:      capture.NewCamera(camCfg),
		Settings:    holder,
		NewDetector: detectors,
		NewWarper:   warpers,
		Cue:         loadCue(),
		Store:       st,
		Hub:         hub,
		ExportDir:   exportDir,
		Archive:     archiver,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	srv := server.New(server.Config{
		StaticDir: findWebDir(),
		Store:     st,
		Engine:    engine,
		Hub:       hub,
	})
	defer srv.Close()
	go func() {
		fmt.Printf("Starting server on %s\n", addr)
		if err := srv.ListenAndServe(addr); err != nil {
			log.Printf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case window:
		if withTray {
			log.Println("The tray is not available with -window")
		}
		if err := engine.Start(); err != nil {
			log.Fatalf("Failed to start engine: %v", err)
		}
		opts := display.DefaultOptions()
		opts.Fullscreen = fullscreen
		if err := display.Run(ctx, engine, opts); err != nil {
			log.Printf("Window failed: %v", err)
		}

	case withTray:
		done := make(chan error, 1)
		go func() { done <- engine.Run(ctx) }()
		runTray(ctx, stop, engine)
		stop()
		<-done

	default:
		if err := engine.Run(ctx); err != nil {
			log.Fatalf("Engine failed: %v", err)
		}
	}

	fmt.Println("Shutting down")
}

func detectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.ScriptPath = scriptPath
	return cfg
}

// loadCue returns the movement sound, or a silent cue when audio is
// unavailable.
func loadCue() tracking.Cue {
	var clip *sound.Clip
	if cuePath != "" {
		c, err := sound.LoadWAV(cuePath)
		if err != nil {
			log.Printf("Failed to load cue %s, using chime: %v", cuePath, err)
		} else {
			clip = c
		}
	}
	if clip == nil {
		clip = sound.Chime(sound.DefaultSampleRate)
	}

	ctx := sound.Context(sound.DefaultSampleRate)
	if err := ctx.Err(); err != nil {
		log.Printf("Audio not available, cue disabled: %v", err)
		return sound.Silent{}
	}
	return sound.NewCue(ctx, clip)
}

// runTray shows the tray menu until it is quit or ctx ends.
func runTray(ctx context.Context, quit func(), engine *app.Engine) {
	tr := tray.New()
	s := engine.Settings().Load()
	tr.SetEnabled(s.EffectsEnabled)
	tr.SetEffect(s.Effect)

	tr.OnToggle(func(enabled bool) {
		if _, err := engine.UpdateSetting("effectsEnabled", json.RawMessage(fmt.Sprint(enabled))); err != nil {
			log.Printf("Failed to toggle effects: %v", err)
		}
	})
	tr.OnEffect(func(e particle.EffectType) {
		raw, _ := json.Marshal(e)
		if _, err := engine.UpdateSetting("effect", raw); err != nil {
			log.Printf("Failed to set effect: %v", err)
		}
	})
	tr.OnController(func() { openBrowser("http://localhost" + addr) })
	tr.OnQuit(quit)

	unsubscribe := engine.Settings().Subscribe(func(s settings.Settings) {
		tr.SetEnabled(s.EffectsEnabled)
		tr.SetEffect(s.Effect)
	})
	defer unsubscribe()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				tr.Quit()
				return
			case <-ticker.C:
				st := engine.Status()
				if st.Active {
					tr.SetStatus(fmt.Sprintf("Active, %d particles", st.Particles))
				} else {
					tr.SetStatus("Idle")
				}
			}
		}
	}()

	tr.Run()
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.snoezelen/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}
