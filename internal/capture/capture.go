// Package capture drives a frame source and the face aligner until the operator accepts an
// aligned frame or cancels.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/andresmejia3/facegate/internal/align"
	"github.com/andresmejia3/facegate/internal/worker"
)

var (
	// ErrCanceled means the operator explicitly quit the capture.
	ErrCanceled = errors.New("capture canceled by user")
	// ErrDeviceUnavailable means the frame source could not be opened or stopped delivering frames.
	ErrDeviceUnavailable = errors.New("camera unavailable")
)

// FrameSource produces raw frames. It is owned by exactly one capture session.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener acquires a FrameSource at the start of a session.
type Opener func(ctx context.Context) (FrameSource, error)

// FrameAligner is the face aligner as seen by the capture loop.
type FrameAligner interface {
	Align(ctx context.Context, frame image.Image) (*image.RGBA, error)
}

// Observer renders live feedback. aligned is nil when the frame did not align.
// It is purely presentational; a nil Observer is valid.
type Observer interface {
	Show(raw, aligned image.Image)
	Close() error
}

// Lifecycle is implemented by signal sources that hold a resource (e.g. a raw terminal)
// only while a session is running.
type Lifecycle interface {
	Begin() error
	End()
}

// Session wires the pieces of one capture loop together.
type Session struct {
	Open     Opener
	Aligner  FrameAligner
	Signals  SignalSource
	Observer Observer
	Out      io.Writer // operator messages, defaults to stdout
}

type decision int

const (
	keepWaiting decision = iota
	acceptFrame
	rejectAccept
	cancelCapture
)

// decide is the loop's state transition: cancel always wins, accept only counts
// when the current frame produced an aligned face.
func decide(aligned bool, sig Signal) decision {
	switch sig {
	case SignalCancel:
		return cancelCapture
	case SignalAccept:
		if aligned {
			return acceptFrame
		}
		return rejectAccept
	default:
		return keepWaiting
	}
}

// Capture runs the loop once. It returns the accepted aligned face, ErrCanceled when the
// operator quits, an error wrapping ErrDeviceUnavailable when frames stop coming, or an
// error wrapping worker.ErrEngineDown once the face engine can no longer answer.
// The frame source, the observer and the signal source are released on every return path.
func (s *Session) Capture(ctx context.Context, prompt string) (*image.RGBA, error) {
	out := s.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "%s Press 's' to capture or 'q' to quit.\n", prompt)

	src, err := s.Open(ctx)
	if err != nil {
		fmt.Fprintln(out, "Failed to access the camera. Exiting.")
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer src.Close()

	if s.Observer != nil {
		defer s.Observer.Close()
	}

	if lc, ok := s.Signals.(Lifecycle); ok {
		if err := lc.Begin(); err != nil {
			return nil, fmt.Errorf("failed to start operator input: %w", err)
		}
		defer lc.End()
	}

	// The terminal may be in raw mode from here on, so lines end with \r\n.
	var lastFailure string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fmt.Fprint(out, "Failed to access the camera. Exiting.\r\n")
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}

		aligned, err := s.Aligner.Align(ctx, frame)
		if err != nil {
			if errors.Is(err, worker.ErrEngineDown) {
				fmt.Fprint(out, "Face engine stopped. Exiting.\r\n")
				return nil, err
			}
			reportAlignFailure(err, &lastFailure)
			aligned = nil
		}

		if s.Observer != nil {
			var preview image.Image
			if aligned != nil {
				preview = aligned
			}
			s.Observer.Show(frame, preview)
		}

		switch decide(aligned != nil, s.Signals.Poll()) {
		case acceptFrame:
			fmt.Fprint(out, "Image captured and aligned!\r\n")
			return aligned, nil
		case rejectAccept:
			fmt.Fprint(out, "No alignment achieved. Please try again.\r\n")
		case cancelCapture:
			fmt.Fprint(out, "Exiting...\r\n")
			return nil, ErrCanceled
		}
	}
}

// reportAlignFailure keeps the usual "no face in this frame" misses at debug level and
// surfaces anything else (a failing detector) as a warning, once per distinct reason.
func reportAlignFailure(err error, last *string) {
	if errors.Is(err, align.ErrNoFaceDetected) || errors.Is(err, align.ErrNoKeypoints) || errors.Is(err, align.ErrEmptyCrop) {
		slog.Debug("Frame did not align", "error", err)
		return
	}
	if msg := err.Error(); msg != *last {
		*last = msg
		slog.Warn("Error during face alignment", "error", err)
		return
	}
	slog.Debug("Error during face alignment", "error", err)
}
