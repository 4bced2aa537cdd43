package capture

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// Signal is one operator input observed by the capture loop.
type Signal int

const (
	SignalNone Signal = iota
	SignalAccept
	SignalCancel
)

func (s Signal) String() string {
	switch s {
	case SignalAccept:
		return "accept"
	case SignalCancel:
		return "cancel"
	default:
		return "none"
	}
}

// SignalSource is polled once per frame and must never block.
type SignalSource interface {
	Poll() Signal
}

// ScriptedSignals replays a fixed sequence, one entry per poll, then reports SignalNone.
type ScriptedSignals struct {
	mu  sync.Mutex
	seq []Signal
	pos int
}

func NewScriptedSignals(seq ...Signal) *ScriptedSignals {
	return &ScriptedSignals{seq: seq}
}

func (s *ScriptedSignals) Poll() Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.seq) {
		return SignalNone
	}
	sig := s.seq[s.pos]
	s.pos++
	return sig
}

type autoAccept struct{}

func (autoAccept) Poll() Signal { return SignalAccept }

// AutoAccept accepts the first frame that aligns. Used for headless replays.
var AutoAccept SignalSource = autoAccept{}

// KeyboardSignals reads single key presses from a terminal.
// s / S / Enter accept; q / Q / Esc / Ctrl-C cancel.
type KeyboardSignals struct {
	in    *os.File
	keys  chan byte
	once  sync.Once
	state *term.State
}

func NewKeyboardSignals(in *os.File) *KeyboardSignals {
	return &KeyboardSignals{in: in, keys: make(chan byte, 16)}
}

// Begin switches the terminal to raw mode so keys arrive without Enter.
// The reader goroutine is started once and lives for the rest of the process,
// since a blocked read on stdin cannot be interrupted.
func (k *KeyboardSignals) Begin() error {
	k.once.Do(func() { go k.read() })

	// Drop keys pressed between sessions.
	for drained := false; !drained; {
		select {
		case _, ok := <-k.keys:
			if !ok {
				drained = true
			}
		default:
			drained = true
		}
	}

	fd := int(k.in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	st, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	k.state = st
	return nil
}

// End restores the terminal.
func (k *KeyboardSignals) End() {
	if k.state != nil {
		_ = term.Restore(int(k.in.Fd()), k.state)
		k.state = nil
	}
}

func (k *KeyboardSignals) Poll() Signal {
	select {
	case b, ok := <-k.keys:
		if !ok {
			// stdin is gone; nobody can accept anymore
			return SignalCancel
		}
		return keySignal(b)
	default:
		return SignalNone
	}
}

func (k *KeyboardSignals) read() {
	defer close(k.keys)
	buf := make([]byte, 1)
	for {
		n, err := k.in.Read(buf)
		if n == 1 {
			k.keys <- buf[0]
		}
		if err != nil {
			return
		}
	}
}

func keySignal(b byte) Signal {
	switch b {
	case 's', 'S', '\r', '\n':
		return SignalAccept
	case 'q', 'Q', 0x1b, 0x03:
		return SignalCancel
	default:
		return SignalNone
	}
}
