//go:build gocv

package preview

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/facegate/internal/capture"
)

const windowTitle = "Live Feed (Left: Raw, Right: Aligned)"

// Window shows the composite in an OpenCV window and doubles as the signal source:
// keys pressed while the window has focus are read by WaitKey after every frame.
type Window struct {
	window  *gocv.Window
	pending capture.Signal
}

func NewWindow() (*Window, error) {
	return &Window{}, nil
}

func (w *Window) Show(raw, aligned image.Image) {
	if w.window == nil {
		w.window = gocv.NewWindow(windowTitle)
	}

	mat, err := gocv.ImageToMatRGB(Composite(raw, aligned))
	if err != nil {
		slog.Debug("Failed to convert preview", "error", err)
		return
	}
	defer mat.Close()

	w.window.IMShow(mat)
	if key := w.window.WaitKey(1); key >= 0 {
		if sig := keySignal(key & 0xFF); sig != capture.SignalNone {
			w.pending = sig
		}
	}
}

func (w *Window) Poll() capture.Signal {
	sig := w.pending
	w.pending = capture.SignalNone
	return sig
}

// Close tears the window down; the next session opens a new one.
func (w *Window) Close() error {
	w.pending = capture.SignalNone
	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}

func keySignal(key int) capture.Signal {
	switch key {
	case 's', 'S', 13:
		return capture.SignalAccept
	case 'q', 'Q', 27:
		return capture.SignalCancel
	default:
		return capture.SignalNone
	}
}
