// Package align levels the eye line of the primary face in a frame and crops the frame to it.
package align

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/facegate/internal/types"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrNoKeypoints    = errors.New("no usable eye keypoints")
	ErrEmptyCrop      = errors.New("face box is empty or outside the frame")
	ErrDetection      = errors.New("face detection failed")
)

// Detector is the face detection service. The first returned face is treated as the primary one.
type Detector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]types.Face, error)
}

// Aligner turns raw frames into aligned face crops.
type Aligner struct {
	detector Detector
}

// New builds an Aligner around an already-initialized detector.
func New(detector Detector) *Aligner {
	return &Aligner{detector: detector}
}

// Align detects the primary face, rotates the whole frame about the eye midpoint so that the
// eyes are level and crops the rotated frame to the detected box. All failures are
// alignment-local: callers are expected to move on to the next frame.
func (a *Aligner) Align(ctx context.Context, frame image.Image) (*image.RGBA, error) {
	faces, err := a.detector.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	// First face wins. No ranking by size or confidence.
	face := faces[0]
	left, right, ok := face.Eyes()
	if !ok {
		return nil, ErrNoKeypoints
	}

	angle := TiltAngle(left, right)
	pivot := types.Point{X: (left.X + right.X) / 2, Y: (left.Y + right.Y) / 2}
	rotated := Rotate(frame, pivot, angle)

	crop := CropRect(face.Box, rotated.Bounds())
	if crop.Empty() {
		return nil, ErrEmptyCrop
	}

	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Copy(out, image.Point{}, rotated, crop, draw.Src, nil)
	return out, nil
}

// TiltAngle returns the eye-line tilt from horizontal in degrees.
// Image y grows downward, so a right eye sitting lower than the left gives a positive angle.
func TiltAngle(left, right types.Point) float64 {
	return math.Atan2(right.Y-left.Y, right.X-left.X) * 180 / math.Pi
}

// RotationMatrix returns the source-to-destination affine transform that rotates by
// angleDeg about center with unit scale. The layout matches OpenCV's
// getRotationMatrix2D: rotating by the measured tilt brings the eye line to horizontal.
func RotationMatrix(center types.Point, angleDeg float64) f64.Aff3 {
	rad := angleDeg * math.Pi / 180
	alpha, beta := math.Cos(rad), math.Sin(rad)
	return f64.Aff3{
		alpha, beta, (1-alpha)*center.X - beta*center.Y,
		-beta, alpha, beta*center.X + (1-alpha)*center.Y,
	}
}

// Rotate warps the full frame with cubic (Catmull-Rom) interpolation. The output keeps the
// frame's bounds; pixels with no source are left zero.
func Rotate(frame image.Image, center types.Point, angleDeg float64) *image.RGBA {
	b := frame.Bounds()
	dst := image.NewRGBA(b)
	draw.CatmullRom.Transform(dst, RotationMatrix(center, angleDeg), frame, b, draw.Src, nil)
	return dst
}

// CropRect clamps only the top-left corner of the box to the frame origin and keeps the
// box size; the bottom-right corner is cut by the frame edge, which can truncate faces
// detected near the border. A box without positive width and height yields an empty rectangle.
func CropRect(box types.Box, bounds image.Rectangle) image.Rectangle {
	if box.W <= 0 || box.H <= 0 {
		return image.Rectangle{}
	}
	x := max(bounds.Min.X, box.X)
	y := max(bounds.Min.Y, box.Y)
	return image.Rect(x, y, x+box.W, y+box.H).Intersect(bounds)
}
