package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils" // Using the SafeCommand wrapper
)

// Request opcodes understood by python/engine.py
const (
	OpDetect byte = 'D'
	OpMatch  byte = 'V'
)

// Response status bytes
const (
	statusOK    byte = 0
	statusError byte = 1
)

var (
	// ErrEngine wraps an error reported by the Python side (an exception it caught and serialized).
	ErrEngine = errors.New("python engine error")
	// ErrEngineDown is returned once the pipe protocol has failed and the engine can no longer be trusted.
	ErrEngineDown = errors.New("python engine is not running")
)

// EngineConfig controls how the Python engine is spawned and talked to
type EngineConfig struct {
	Python      string        // interpreter, e.g. "python3"
	Script      string        // path to engine.py
	MatchModel  string        // DeepFace model name, e.g. "Facenet"
	ReadTimeout time.Duration // upper bound for a single response; 0 disables
	Debug       bool
}

// PythonEngine is the single long-lived process hosting the face detector (MTCNN)
// and the face-match model (DeepFace). It is constructed once and injected into
// the aligner and the verifier.
type PythonEngine struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	cfg    EngineConfig
	mu     sync.Mutex
	broken bool
}

// NewPythonEngine starts the engine process. Responses come back on a side-channel
// pipe (FD 3) so that anything the models print to stdout cannot corrupt the protocol.
func NewPythonEngine(ctx context.Context, cfg EngineConfig) (*PythonEngine, error) {
	args := []string{"-u", cfg.Script}
	if cfg.Debug {
		args = append(args, "--debug")
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("engine failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonEngine{
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		cfg:      cfg,
	}, nil
}

// Communicate sends one request and returns the body of a successful response.
// Protocol: request [Length][Op][Payload], response [Length][Status][Body].
func (e *PythonEngine) Communicate(op byte, data []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.broken {
		return nil, ErrEngineDown
	}

	resp, err := e.roundTrip(op, data)
	if err != nil {
		// The stream is out of sync after a partial read or write; refuse further traffic.
		e.broken = true
		return nil, err
	}
	return parseResponse(resp)
}

func (e *PythonEngine) roundTrip(op byte, data []byte) ([]byte, error) {
	if err := binary.Write(e.Stdin, binary.BigEndian, uint32(len(data)+1)); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write([]byte{op}); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := e.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && e.cfg.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(e.cfg.ReadTimeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(e.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(e.DataPipe, respBody)
	return respBody, err
}

func parseResponse(resp []byte) ([]byte, error) {
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEngine)
	}

	switch resp[0] {
	case statusOK:
		return resp[1:], nil
	case statusError:
		// [Status:1] [MsgLen] [Msg]
		if len(resp) < 5 {
			return nil, fmt.Errorf("%w: truncated error response", ErrEngine)
		}
		msgLen := binary.BigEndian.Uint32(resp[1:5])
		if int(msgLen) > len(resp)-5 {
			return nil, fmt.Errorf("%w: truncated error message", ErrEngine)
		}
		return nil, fmt.Errorf("%w: %s", ErrEngine, resp[5:5+msgLen])
	default:
		return nil, fmt.Errorf("%w: unknown status byte %d", ErrEngine, resp[0])
	}
}

// DetectFaces runs MTCNN on the frame. The frame is shipped as JPEG; the engine
// decodes it to RGB, the channel order the detector was trained on.
func (e *PythonEngine) DetectFaces(ctx context.Context, img image.Image) ([]types.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	resp, err := e.Communicate(OpDetect, buf.Bytes())
	if err != nil {
		return nil, err
	}

	var faces []types.Face
	if err := json.Unmarshal(resp, &faces); err != nil {
		return nil, fmt.Errorf("malformed detection response: %w", err)
	}
	return faces, nil
}

// Match asks DeepFace whether two stored images show the same person.
// The engine runs with enforce_detection disabled, so a face it cannot find
// yields a best-effort verdict rather than an error.
func (e *PythonEngine) Match(ctx context.Context, probePath, referencePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	req, err := json.Marshal(types.MatchRequest{
		Probe:     probePath,
		Reference: referencePath,
		Model:     e.cfg.MatchModel,
	})
	if err != nil {
		return false, err
	}

	resp, err := e.Communicate(OpMatch, req)
	if err != nil {
		return false, err
	}

	var res types.MatchResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return false, fmt.Errorf("malformed match response: %w", err)
	}
	return res.Verified, nil
}

// Close shuts the engine down. Closing stdin makes engine.py exit its read loop.
func (e *PythonEngine) Close() {
	e.Stdin.Close()
	e.DataPipe.Close()
	if e.Cmd != nil {
		e.Cmd.Wait()
	}
}
