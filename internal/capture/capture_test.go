package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facegate/internal/align"
	"github.com/andresmejia3/facegate/internal/worker"
)

// scriptedAligner succeeds or fails per call according to a fixed plan
type scriptedAligner struct {
	plan  []bool
	calls int
}

func (a *scriptedAligner) Align(ctx context.Context, frame image.Image) (*image.RGBA, error) {
	ok := a.calls < len(a.plan) && a.plan[a.calls]
	a.calls++
	if !ok {
		return nil, errors.New("no face detected")
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

type recordingObserver struct {
	shows   int
	aligned int
	closed  int
}

func (o *recordingObserver) Show(raw, aligned image.Image) {
	o.shows++
	if aligned != nil {
		o.aligned++
	}
}

func (o *recordingObserver) Close() error {
	o.closed++
	return nil
}

// countingSource wraps another source to observe the session's resource handling
type countingSource struct {
	FrameSource
	closed *int
}

func (c countingSource) Close() error {
	*c.closed++
	return c.FrameSource.Close()
}

type lifecycleSignals struct {
	*ScriptedSignals
	begun, ended int
}

func (l *lifecycleSignals) Begin() error { l.begun++; return nil }
func (l *lifecycleSignals) End()         { l.ended++ }

func frames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewRGBA(image.Rect(0, 0, 16, 16))
	}
	return out
}

func newSession(n int, plan []bool, sigs ...Signal) (*Session, *recordingObserver, *int, *bytes.Buffer) {
	closed := 0
	replay := NewReplay(frames(n)...)
	obs := &recordingObserver{}
	out := &bytes.Buffer{}
	return &Session{
		Open: func(ctx context.Context) (FrameSource, error) {
			src, err := replay.Opener()(ctx)
			return countingSource{FrameSource: src, closed: &closed}, err
		},
		Aligner:  &scriptedAligner{plan: plan},
		Signals:  NewScriptedSignals(sigs...),
		Observer: obs,
		Out:      out,
	}, obs, &closed, out
}

func TestDecide(t *testing.T) {
	tests := []struct {
		aligned bool
		sig     Signal
		want    decision
	}{
		{true, SignalNone, keepWaiting},
		{false, SignalNone, keepWaiting},
		{true, SignalAccept, acceptFrame},
		{false, SignalAccept, rejectAccept},
		{true, SignalCancel, cancelCapture},
		{false, SignalCancel, cancelCapture},
	}

	for _, tt := range tests {
		if got := decide(tt.aligned, tt.sig); got != tt.want {
			t.Errorf("decide(%v, %v) = %v, want %v", tt.aligned, tt.sig, got, tt.want)
		}
	}
}

func TestCaptureIgnoresAcceptWithoutAlignment(t *testing.T) {
	s, obs, closed, out := newSession(5, []bool{false, true}, SignalAccept, SignalAccept)

	img, err := s.Capture(context.Background(), "Face the camera straight ahead.")
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if img == nil || img.Bounds().Dx() != 8 {
		t.Fatalf("Expected the aligned image, got %v", img)
	}
	if !strings.Contains(out.String(), "No alignment achieved") {
		t.Errorf("Expected rejection message, got %q", out.String())
	}
	if obs.shows != 2 || obs.aligned != 1 {
		t.Errorf("Expected 2 previews (1 aligned), got %d (%d)", obs.shows, obs.aligned)
	}
	if *closed != 1 || obs.closed != 1 {
		t.Errorf("Expected source and observer closed once, got %d/%d", *closed, obs.closed)
	}
}

func TestCaptureCancel(t *testing.T) {
	s, obs, closed, _ := newSession(5, []bool{true, true}, SignalNone, SignalCancel)

	img, err := s.Capture(context.Background(), "prompt")
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Expected ErrCanceled, got %v", err)
	}
	if img != nil {
		t.Error("Expected no image on cancel")
	}
	if *closed != 1 || obs.closed != 1 {
		t.Errorf("Expected resources released, got source=%d observer=%d", *closed, obs.closed)
	}
}

func TestCaptureDeviceFailure(t *testing.T) {
	// No signal ever arrives; the recording runs out after three frames.
	s, obs, closed, _ := newSession(3, []bool{true, false, true})

	_, err := s.Capture(context.Background(), "prompt")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if obs.shows != 3 {
		t.Errorf("Expected a preview per frame, got %d", obs.shows)
	}
	if *closed != 1 {
		t.Errorf("Expected source closed, got %d", *closed)
	}
}

func TestCaptureOpenFailure(t *testing.T) {
	s := &Session{
		Open: func(ctx context.Context) (FrameSource, error) {
			return nil, errors.New("no such device")
		},
		Aligner: &scriptedAligner{},
		Signals: AutoAccept,
		Out:     &bytes.Buffer{},
	}

	if _, err := s.Capture(context.Background(), "prompt"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestCaptureContextCancelled(t *testing.T) {
	s, _, closed, _ := newSession(5, []bool{true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Capture(ctx, "prompt"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if *closed != 1 {
		t.Errorf("Expected source closed, got %d", *closed)
	}
}

func TestCaptureSignalLifecycle(t *testing.T) {
	s, _, _, _ := newSession(2, []bool{true}, SignalAccept)
	sigs := &lifecycleSignals{ScriptedSignals: NewScriptedSignals(SignalAccept)}
	s.Signals = sigs
	s.Observer = nil

	if _, err := s.Capture(context.Background(), "prompt"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if sigs.begun != 1 || sigs.ended != 1 {
		t.Errorf("Expected Begin/End once, got %d/%d", sigs.begun, sigs.ended)
	}
}

func TestAutoAcceptTakesFirstAlignedFrame(t *testing.T) {
	replay := NewReplay(frames(4)...)
	aligner := &scriptedAligner{plan: []bool{false, false, true, true}}
	s := &Session{Open: replay.Opener(), Aligner: aligner, Signals: AutoAccept, Out: &bytes.Buffer{}}

	if _, err := s.Capture(context.Background(), "prompt"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if aligner.calls != 3 {
		t.Errorf("Expected to stop at the third frame, aligned %d", aligner.calls)
	}
	if replay.Remaining() != 1 {
		t.Errorf("Expected 1 frame left for the next session, got %d", replay.Remaining())
	}
}

// erroringAligner fails with each error in turn, then aligns every later frame
type erroringAligner struct {
	errs  []error
	calls int
}

func (a *erroringAligner) Align(ctx context.Context, frame image.Image) (*image.RGBA, error) {
	a.calls++
	if a.calls <= len(a.errs) {
		return nil, a.errs[a.calls-1]
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCaptureAbortsWhenEngineDown(t *testing.T) {
	s, obs, closed, out := newSession(5, nil)
	aligner := &erroringAligner{errs: []error{fmt.Errorf("%w: %w", align.ErrDetection, worker.ErrEngineDown)}}
	s.Aligner = aligner
	s.Signals = AutoAccept

	_, err := s.Capture(context.Background(), "prompt")
	if !errors.Is(err, worker.ErrEngineDown) {
		t.Fatalf("Expected ErrEngineDown, got %v", err)
	}
	if errors.Is(err, ErrDeviceUnavailable) {
		t.Error("Engine failure reported as a camera failure")
	}
	if aligner.calls != 1 {
		t.Errorf("Expected to stop after the first frame, aligned %d", aligner.calls)
	}
	if *closed != 1 || obs.closed != 1 {
		t.Errorf("Expected resources released, got source=%d observer=%d", *closed, obs.closed)
	}
	if !strings.Contains(out.String(), "Face engine stopped") {
		t.Errorf("Expected an engine message, got %q", out.String())
	}
}

func TestCaptureWarnsOncePerDetectorFailure(t *testing.T) {
	logs := captureLogs(t)
	detector := func(reason string) error {
		return fmt.Errorf("%w: %w", align.ErrDetection, errors.New(reason))
	}

	s, _, _, _ := newSession(8, nil)
	s.Aligner = &erroringAligner{errs: []error{
		align.ErrNoFaceDetected,
		detector("read timeout"),
		detector("read timeout"),
		align.ErrNoKeypoints,
		detector("malformed response"),
	}}
	s.Signals = AutoAccept

	if _, err := s.Capture(context.Background(), "prompt"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	got := logs.String()
	if n := strings.Count(got, "level=WARN"); n != 2 {
		t.Errorf("Expected 2 warnings, got %d:\n%s", n, got)
	}
	for _, want := range []string{"read timeout", "malformed response"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected a warning for %q, got:\n%s", want, got)
		}
	}
	if strings.Contains(got, "no face detected") || strings.Contains(got, "keypoints") {
		t.Errorf("Routine misses should stay below info level, got:\n%s", got)
	}
}

func TestKeySignal(t *testing.T) {
	tests := []struct {
		key  byte
		want Signal
	}{
		{'s', SignalAccept},
		{'S', SignalAccept},
		{'\r', SignalAccept},
		{'q', SignalCancel},
		{0x1b, SignalCancel},
		{0x03, SignalCancel},
		{'x', SignalNone},
	}
	for _, tt := range tests {
		if got := keySignal(tt.key); got != tt.want {
			t.Errorf("keySignal(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestScriptedSignalsExhaust(t *testing.T) {
	s := NewScriptedSignals(SignalCancel)
	if s.Poll() != SignalCancel {
		t.Error("Expected scripted cancel")
	}
	if s.Poll() != SignalNone {
		t.Error("Expected SignalNone after the script ends")
	}
}

func solid(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 12, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestLoadReplayDir(t *testing.T) {
	dir := t.TempDir()
	for name, c := range map[string]color.Color{"002.png": color.White, "001.png": color.Black} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		png.Encode(f, solid(c))
		f.Close()
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	r, err := LoadReplay(dir)
	if err != nil {
		t.Fatalf("LoadReplay failed: %v", err)
	}
	if r.Remaining() != 2 {
		t.Fatalf("Expected 2 frames, got %d", r.Remaining())
	}
	first, _ := r.next()
	if rr, _, _, _ := first.At(0, 0).RGBA(); rr != 0 {
		t.Error("Expected frames sorted by name (001.png first)")
	}
}

func TestLoadReplayMJPEG(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		if err := jpeg.Encode(&stream, solid(color.Gray{Y: uint8(40 * i)}), nil); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "session.mjpeg")
	if err := os.WriteFile(path, stream.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadReplay(path)
	if err != nil {
		t.Fatalf("LoadReplay failed: %v", err)
	}
	if r.Remaining() != 3 {
		t.Errorf("Expected 3 frames, got %d", r.Remaining())
	}
}

func TestLoadReplayEmptyDir(t *testing.T) {
	if _, err := LoadReplay(t.TempDir()); err == nil {
		t.Error("Expected error for a directory without frames")
	}
}
