//go:build !gocv

package preview

import (
	"errors"
	"image"

	"github.com/andresmejia3/facegate/internal/capture"
)

// ErrNoWindow is returned when the binary was built without OpenCV support.
var ErrNoWindow = errors.New("preview window requires a build with -tags gocv")

type Window struct{}

func NewWindow() (*Window, error) {
	return nil, ErrNoWindow
}

func (w *Window) Show(raw, aligned image.Image) {}
func (w *Window) Poll() capture.Signal        { return capture.SignalNone }
func (w *Window) Close() error                { return nil }
