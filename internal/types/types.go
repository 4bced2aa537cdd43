package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// Keypoint names reported by the detection engine (MTCNN naming)
const (
	LeftEye    = "left_eye"
	RightEye   = "right_eye"
	Nose       = "nose"
	MouthLeft  = "mouth_left"
	MouthRight = "mouth_right"
)

// Point is a 2D pixel coordinate. On the wire it is a two element array [x, y].
type Point struct {
	X float64
	Y float64
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy []float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	if len(xy) != 2 {
		return fmt.Errorf("keypoint: expected [x, y], got %d values", len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Valid reports whether both coordinates are finite numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Box is a face bounding box in frame pixels. On the wire it is [x, y, w, h].
// X and Y may be negative when the face extends past the frame edge.
type Box struct {
	X, Y, W, H int
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("box: expected [x, y, w, h], got %d values", len(v))
	}
	b.X, b.Y, b.W, b.H = int(v[0]), int(v[1]), int(v[2]), int(v[3])
	return nil
}

// Face matches one entry of the detection engine's JSON response
type Face struct {
	Box        Box              `json:"box"`
	Confidence float64          `json:"confidence"`
	Keypoints  map[string]Point `json:"keypoints"`
}

// Eyes returns the left and right eye keypoints, and false if either is missing or not finite.
func (f Face) Eyes() (left, right Point, ok bool) {
	left, okL := f.Keypoints[LeftEye]
	right, okR := f.Keypoints[RightEye]
	if !okL || !okR || !left.Valid() || !right.Valid() {
		return Point{}, Point{}, false
	}
	return left, right, true
}

// MatchResult is the face-match engine's verdict for one image pair
type MatchResult struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
}

// MatchRequest asks the engine to compare two images on disk
type MatchRequest struct {
	Probe     string `json:"probe"`
	Reference string `json:"reference"`
	Model     string `json:"model"`
}
