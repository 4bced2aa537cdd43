package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/andresmejia3/facegate/internal/utils"
)

const megabyte = 1024 * 1024

// Replay is a pre-recorded frame sequence shared by every session opened from it.
// Sessions continue where the previous one stopped, so one recording can walk through
// all enrollment poses in order. When the frames run out, reads fail with io.EOF,
// which the capture loop reports as the device going away.
type Replay struct {
	mu     sync.Mutex
	frames []image.Image
	pos    int
}

// NewReplay wraps an in-memory frame sequence.
func NewReplay(frames ...image.Image) *Replay {
	return &Replay{frames: frames}
}

// Opener hands out sources reading from the shared cursor.
func (r *Replay) Opener() Opener {
	return func(ctx context.Context) (FrameSource, error) {
		return &replaySource{replay: r}, nil
	}
}

// Remaining reports how many frames have not been read yet.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames) - r.pos
}

func (r *Replay) next() (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.frames) {
		return nil, io.EOF
	}
	f := r.frames[r.pos]
	r.pos++
	return f, nil
}

type replaySource struct {
	replay *Replay
	closed bool
}

func (s *replaySource) Read(ctx context.Context) (image.Image, error) {
	if s.closed {
		return nil, os.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.replay.next()
}

func (s *replaySource) Close() error {
	s.closed = true
	return nil
}

// LoadReplay reads a recording from disk: a directory of .jpg/.jpeg/.png frames (sorted by
// name), a raw MJPEG stream (.mjpeg/.mjpg) or a single image file.
func LoadReplay(path string) (*Replay, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return loadReplayDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mjpeg", ".mjpg":
		return loadReplayStream(path)
	default:
		img, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		return NewReplay(img), nil
	}
}

func loadReplayDir(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	return NewReplay(frames...), nil
}

func loadReplayStream(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	var frames []image.Image
	for scanner.Scan() {
		img, _, err := image.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(frames), err)
		}
		frames = append(frames, img)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames found in %s", path)
	}
	return NewReplay(frames...), nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
