//go:build !linux

package camera

import (
	"context"
	"runtime"

	"github.com/pkg/errors"

	"github.com/andresmejia3/facegate/internal/capture"
)

// Opener reports that no V4L2 device exists on this platform. Use --replay instead.
func Opener(opt Options) capture.Opener {
	return func(ctx context.Context) (capture.FrameSource, error) {
		return nil, errors.Errorf("V4L2 capture is not available on %s", runtime.GOOS)
	}
}
