// Package preview renders the live operator feedback of a capture session.
package preview

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Tile is the edge length of one square preview panel.
const Tile = 200

// Composite lays out the raw frame and the aligned face side by side, each scaled to a
// Tile x Tile panel. Without an aligned face the raw frame fills the whole 2*Tile x Tile canvas.
func Composite(raw, aligned image.Image) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, 2*Tile, Tile))
	if raw == nil {
		return canvas
	}

	if aligned == nil {
		full := resize.Resize(2*Tile, Tile, raw, resize.Bilinear)
		draw.Draw(canvas, canvas.Bounds(), full, full.Bounds().Min, draw.Src)
		return canvas
	}

	left := resize.Resize(Tile, Tile, raw, resize.Bilinear)
	right := resize.Resize(Tile, Tile, aligned, resize.Bilinear)
	draw.Draw(canvas, image.Rect(0, 0, Tile, Tile), left, left.Bounds().Min, draw.Src)
	draw.Draw(canvas, image.Rect(Tile, 0, 2*Tile, Tile), right, right.Bounds().Min, draw.Src)
	return canvas
}

// FileObserver keeps the latest composite in a JPEG file, for headless machines where
// the operator watches the file with an image viewer.
type FileObserver struct {
	Path     string
	Interval time.Duration // minimum time between writes; 0 writes every frame

	last time.Time
	now  func() time.Time
}

func NewFileObserver(path string, interval time.Duration) *FileObserver {
	return &FileObserver{Path: path, Interval: interval, now: time.Now}
}

func (f *FileObserver) Show(raw, aligned image.Image) {
	t := f.now()
	if !f.last.IsZero() && t.Sub(f.last) < f.Interval {
		return
	}
	f.last = t

	if err := f.write(Composite(raw, aligned)); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to write preview %s: %v\n", f.Path, err)
	}
}

// write replaces the file atomically so a viewer never sees a half-written image.
func (f *FileObserver) write(img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".preview-*.jpg")
	if err != nil {
		return err
	}
	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: 80}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Close resets the throttle so the next session starts with a fresh frame.
func (f *FileObserver) Close() error {
	f.last = time.Time{}
	return nil
}
