// Package verify matches a live capture against every enrolled identity.
package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/worker"
)

// Prompt is shown while the probe is captured.
const Prompt = "Face the camera straight ahead for verification."

type Capturer interface {
	Capture(ctx context.Context, prompt string) (*image.RGBA, error)
}

// Matcher decides whether two stored images show the same person.
type Matcher interface {
	Match(ctx context.Context, probePath, referencePath string) (bool, error)
}

// Result of one verification run. Identity is set only when Matched.
type Result struct {
	Identity string
	Matched  bool
	Compared int // comparisons made, including failed ones
	Failed   int // comparisons that errored and counted as non-matches
}

type Verifier struct {
	Capturer Capturer
	Matcher  Matcher
	Gallery  *gallery.Gallery
	Progress io.Writer // progress bar output, defaults to stderr
}

func New(c Capturer, m Matcher, g *gallery.Gallery) *Verifier {
	return &Verifier{Capturer: c, Matcher: m, Gallery: g, Progress: os.Stderr}
}

// Verify captures a probe and scans the gallery in order, identity by identity and
// reference by reference. The first positive comparison ends the scan. A comparison
// that fails is logged and treated as a non-match, unless the engine itself is down,
// which ends the scan with worker.ErrEngineDown. Capture errors (including
// capture.ErrCanceled) are returned unchanged. The probe file is removed before
// Verify returns.
func (v *Verifier) Verify(ctx context.Context) (Result, error) {
	var res Result

	img, err := v.Capturer.Capture(ctx, Prompt)
	if err != nil {
		return res, err
	}

	probe, err := v.Gallery.WriteProbe(img)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := v.Gallery.RemoveProbe(); err != nil {
			slog.Warn("Failed to remove probe", "path", probe, "error", err)
		}
	}()

	identities, err := v.Gallery.Identities()
	if err != nil {
		return res, fmt.Errorf("failed to read gallery: %w", err)
	}

	total := 0
	for _, id := range identities {
		total += len(id.References)
	}
	if total == 0 {
		return res, nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Comparing"),
		progressbar.OptionSetWriter(v.progress()),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	for _, id := range identities {
		for _, ref := range id.References {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			ok, err := v.Matcher.Match(ctx, probe, ref)
			res.Compared++
			bar.Add(1)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				if errors.Is(err, worker.ErrEngineDown) {
					return res, err
				}
				res.Failed++
				slog.Warn("Comparison failed, counting as no match", "identity", id.Name, "reference", ref, "error", err)
				continue
			}
			if ok {
				res.Identity = id.Name
				res.Matched = true
				return res, nil
			}
		}
	}
	return res, nil
}

func (v *Verifier) progress() io.Writer {
	if v.Progress == nil {
		return os.Stderr
	}
	return v.Progress
}
