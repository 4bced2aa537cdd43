// Package enroll captures the fixed pose sequence of a new identity.
package enroll

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/utils"
)

// Pose is one head orientation of the enrollment sequence.
type Pose struct {
	Label  string
	Prompt string
}

// Poses is the enrollment sequence, in capture order.
var Poses = []Pose{
	{"straight", "Face the camera straight ahead."},
	{"left", "Turn your face slightly to the left."},
	{"right", "Turn your face slightly to the right."},
	{"up", "Tilt your head slightly upward."},
	{"down", "Tilt your head slightly downward."},
}

// Capturer runs one interactive capture session.
type Capturer interface {
	Capture(ctx context.Context, prompt string) (*image.RGBA, error)
}

type Enroller struct {
	Capturer Capturer
	Gallery  *gallery.Gallery
	// Staged holds the poses in a scratch directory until the last one is accepted.
	Staged bool
	Out    io.Writer
}

func New(c Capturer, g *gallery.Gallery) *Enroller {
	return &Enroller{Capturer: c, Gallery: g, Out: os.Stdout}
}

// Enroll captures every pose for name. Any capture error (including capture.ErrCanceled)
// stops the run and is returned as is, wrapped with the pose that failed. Poses saved
// before the failure stay on disk unless the enroller is staged.
func (e *Enroller) Enroll(ctx context.Context, name string) error {
	name, err := utils.NormalizeIdentityName(name)
	if err != nil {
		return err
	}

	run, err := e.Gallery.Begin(name, e.Staged)
	if err != nil {
		return fmt.Errorf("failed to start enrollment: %w", err)
	}

	for i, pose := range Poses {
		fmt.Fprintf(e.out(), "📸 [%d/%d] %s\n", i+1, len(Poses), pose.Label)

		img, err := e.Capturer.Capture(ctx, pose.Prompt)
		if err != nil {
			if abortErr := run.Abort(); abortErr != nil {
				slog.Warn("Failed to discard staged enrollment", "identity", name, "error", abortErr)
			}
			return fmt.Errorf("pose %s: %w", pose.Label, err)
		}

		path, err := run.SavePose(pose.Label, img)
		if err != nil {
			run.Abort()
			return err
		}
		slog.Debug("Pose saved", "identity", name, "pose", pose.Label, "path", path)
	}

	if err := run.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrollment: %w", err)
	}
	fmt.Fprintf(e.out(), "✅ Enrollment for %s complete (%d poses).\n", name, len(Poses))
	return nil
}

func (e *Enroller) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}
