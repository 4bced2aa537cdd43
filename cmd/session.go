package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/align"
	"github.com/andresmejia3/facegate/internal/camera"
	"github.com/andresmejia3/facegate/internal/capture"
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/preview"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/worker"
)

var (
	// engine is started on first use so list and clean never spawn Python
	engine *worker.PythonEngine
	// keyboard owns the stdin reader goroutine for the whole process
	keyboard *capture.KeyboardSignals
)

func startEngine(ctx context.Context) *worker.PythonEngine {
	if engine != nil {
		return engine
	}

	fmt.Fprintf(os.Stderr, "⚙️  Starting face engine (%s)...\n", Cfg.Engine.MatchModel)
	eng, err := worker.NewPythonEngine(ctx, worker.EngineConfig{
		Python:      Cfg.Engine.Python,
		Script:      Cfg.Engine.Script,
		MatchModel:  Cfg.Engine.MatchModel,
		ReadTimeout: Cfg.Engine.Timeout,
		Debug:       Cfg.Debug,
	})
	if err != nil {
		utils.Die("Failed to start Python engine", err, nil)
	}
	engine = eng
	return engine
}

func closeEngine() {
	if engine != nil {
		engine.Close()
		engine = nil
	}
}

// engineLogs is handed to Die so engine crashes come with their traceback.
func engineLogs() *utils.SafeCommand {
	if engine == nil {
		return nil
	}
	return engine.Cmd
}

// newSession wires the capture loop for the configured frame source and preview.
func newSession(ctx context.Context, eng *worker.PythonEngine) (*capture.Session, error) {
	s := &capture.Session{
		Aligner: align.New(eng),
		Out:     os.Stdout,
	}

	if Cfg.Replay != "" {
		replay, err := capture.LoadReplay(Cfg.Replay)
		if err != nil {
			return nil, fmt.Errorf("failed to load replay %s: %w", Cfg.Replay, err)
		}
		fmt.Fprintf(os.Stderr, "📼 Replaying %d frames from %s\n", replay.Remaining(), Cfg.Replay)
		s.Open = replay.Opener()
		s.Signals = capture.AutoAccept
	} else {
		s.Open = camera.Opener(camera.Options{
			Device:  Cfg.Camera.Device,
			Width:   Cfg.Camera.Width,
			Height:  Cfg.Camera.Height,
			Buffers: 4,
		})
		if keyboard == nil {
			keyboard = capture.NewKeyboardSignals(os.Stdin)
		}
		s.Signals = keyboard
	}

	switch Cfg.Preview.Mode {
	case config.PreviewFile:
		path := Cfg.PreviewPath()
		fmt.Fprintf(os.Stderr, "🖼️  Live preview: %s\n", path)
		s.Observer = preview.NewFileObserver(path, Cfg.Preview.Interval)
	case config.PreviewWindow:
		w, err := preview.NewWindow()
		if err != nil {
			return nil, err
		}
		s.Observer = w
		if Cfg.Replay == "" {
			// Keys go to the focused window, not the terminal.
			s.Signals = w
		}
	}
	return s, nil
}
