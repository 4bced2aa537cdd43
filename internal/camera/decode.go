package camera

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/pkg/errors"
)

// FourCC codes of the pixel formats we can decode.
const (
	FormatMJPEG uint32 = 0x47504A4D // 'MJPG'
	FormatYUYV  uint32 = 0x56595559 // 'YUYV'
)

// maxBadFrames is how many undecodable frames in a row are tolerated before the
// device is considered broken.
const maxBadFrames = 30

// errSkipFrame marks a frame that should be dropped without ending the session.
var errSkipFrame = errors.New("frame skipped")

// frameDecoder decodes driver buffers and drops the occasional bad one.
type frameDecoder struct {
	format        uint32
	width, height int
	bad           int
}

// decode returns the next image, errSkipFrame for an empty, black or corrupt frame,
// or an error once maxBadFrames corrupt frames arrived in a row.
func (d *frameDecoder) decode(buf []byte) (image.Image, error) {
	if len(buf) == 0 {
		return nil, errSkipFrame
	}
	if d.format == FormatYUYV && !hasGoodBlackLevel(buf, 2) {
		return nil, errSkipFrame
	}

	img, err := decodeFrame(d.format, buf, d.width, d.height)
	if err != nil {
		d.bad++
		if d.bad >= maxBadFrames {
			return nil, errors.Wrapf(err, "%d undecodable frames in a row", d.bad)
		}
		slog.Debug("Skipping undecodable frame", "error", err, "consecutive", d.bad)
		return nil, errSkipFrame
	}
	d.bad = 0
	return img, nil
}

// decodeFrame turns one raw driver buffer into an image.
func decodeFrame(format uint32, buf []byte, width, height int) (image.Image, error) {
	switch format {
	case FormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(withHuffmanTables(buf)))
		if err != nil {
			return nil, errors.Wrap(err, "Can not decode MJPEG frame")
		}
		return img, nil
	case FormatYUYV:
		return decodeYUYV(buf, width, height)
	default:
		return nil, errors.Errorf("Unsupported pixel format %#x", format)
	}
}

// decodeYUYV unpacks a packed 4:2:2 buffer (Y0 U Y1 V) into planar YCbCr.
// Width must be even.
func decodeYUYV(buf []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, errors.Errorf("Invalid YUYV frame size %dx%d", width, height)
	}
	if len(buf) < width*height*2 {
		return nil, errors.Errorf("Short YUYV frame: %d bytes for %dx%d", len(buf), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := buf[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			p := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = p[0]
			img.Y[y*img.YStride+x+1] = p[2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = p[1]
			img.Cr[ci] = p[3]
		}
	}
	return img, nil
}

// hasGoodBlackLevel filters out the washed-out or black frames some sensors emit
// while the exposure settles. Only the luma bytes are sampled for YUYV.
func hasGoodBlackLevel(buf []byte, step int) bool {
	if len(buf) == 0 {
		return false
	}
	dark, total := 0, 0
	for i := 0; i < len(buf); i += step {
		if buf[i] < 16 {
			dark++
		}
		total++
	}
	return float64(dark)/float64(total) < 0.98
}
