package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDecodeEngineFaces(t *testing.T) {
	// Shape produced by MTCNN.detect_faces and forwarded verbatim by the engine
	payload := `[
		{"box": [-4, 12, 120, 140], "confidence": 0.998,
		 "keypoints": {"left_eye": [40.5, 60], "right_eye": [90, 62.25], "nose": [66, 90]}},
		{"box": [300, 10, 50, 60], "confidence": 0.71, "keypoints": {}}
	]`

	var faces []Face
	if err := json.Unmarshal([]byte(payload), &faces); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(faces))
	}

	want := Box{X: -4, Y: 12, W: 120, H: 140}
	if faces[0].Box != want {
		t.Errorf("Box = %+v, want %+v", faces[0].Box, want)
	}

	left, right, ok := faces[0].Eyes()
	if !ok {
		t.Fatal("Expected eyes on first face")
	}
	if left.X != 40.5 || left.Y != 60 || right.X != 90 || math.Abs(right.Y-62.25) > 1e-9 {
		t.Errorf("Unexpected eyes: left=%+v right=%+v", left, right)
	}

	if _, _, ok := faces[1].Eyes(); ok {
		t.Error("Expected no eyes on second face")
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"Short box", `{"box": [1, 2, 3], "keypoints": {}}`},
		{"Short keypoint", `{"box": [1, 2, 3, 4], "keypoints": {"left_eye": [1]}}`},
		{"Box not an array", `{"box": "1,2,3,4"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Face
			if err := json.Unmarshal([]byte(tt.payload), &f); err == nil {
				t.Errorf("Expected error for %s", tt.payload)
			}
		})
	}
}

func TestEyesRejectsNonFinite(t *testing.T) {
	f := Face{Keypoints: map[string]Point{
		LeftEye:  {X: math.NaN(), Y: 10},
		RightEye: {X: 20, Y: 10},
	}}
	if _, _, ok := f.Eyes(); ok {
		t.Error("Expected NaN keypoint to be rejected")
	}
}
