//go:build linux

package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/andresmejia3/facegate/internal/capture"
)

// device is the part of *webcam.Webcam used once streaming has started.
type device interface {
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	StopStreaming() error
	Close() error
}

// Webcam is a V4L2 frame source.
type Webcam struct {
	cam     device
	decoder *frameDecoder
}

// Open acquires the device and starts streaming. MJPEG is preferred, YUYV is the fallback.
func Open(opt Options) (*Webcam, error) {
	cam, err := webcam.Open(opt.Device)
	if err != nil {
		return nil, errors.Wrap(err, "Can not open device")
	}

	format, w, h, err := negotiate(cam, opt)
	if err != nil {
		cam.Close()
		return nil, err
	}
	slog.Debug("Camera opened", "device", opt.Device, "format", fmt.Sprintf("%#x", format), "width", w, "height", h)

	if err := cam.SetBufferCount(opt.Buffers); err != nil {
		slog.Debug("Camera refused buffer count", "error", err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "Can not start streaming")
	}

	return &Webcam{cam: cam, decoder: &frameDecoder{format: format, width: w, height: h}}, nil
}

func negotiate(cam *webcam.Webcam, opt Options) (uint32, int, int, error) {
	supported := cam.GetSupportedFormats()
	for _, want := range []uint32{FormatMJPEG, FormatYUYV} {
		if _, ok := supported[webcam.PixelFormat(want)]; !ok {
			continue
		}
		got, w, h, err := cam.SetImageFormat(webcam.PixelFormat(want), uint32(opt.Width), uint32(opt.Height))
		if err != nil {
			return 0, 0, 0, errors.Wrap(err, "Can not set image format")
		}
		return uint32(got), int(w), int(h), nil
	}
	return 0, 0, 0, errors.Errorf("Device supports neither MJPEG nor YUYV (has %d formats)", len(supported))
}

// Read blocks until the next usable frame. Driver timeouts and corrupt, empty or
// black frames are skipped until ctx ends.
func (c *Webcam) Read(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := c.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			slog.Debug("Camera timed out waiting for a frame", "error", err)
			continue
		default:
			return nil, errors.Wrap(err, "Frame wait failed")
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrap(err, "Read frame failed")
		}

		img, err := c.decoder.decode(frame)
		if errors.Is(err, errSkipFrame) {
			continue
		}
		return img, err
	}
}

func (c *Webcam) Close() error {
	if err := c.cam.StopStreaming(); err != nil {
		slog.Debug("Failed to stop streaming", "error", err)
	}
	return c.cam.Close()
}

// Opener adapts Open to the capture loop so every session owns its own device handle.
func Opener(opt Options) capture.Opener {
	return func(ctx context.Context) (capture.FrameSource, error) {
		cam, err := Open(opt)
		if err != nil {
			return nil, err
		}
		return cam, nil
	}
}
