// Package transport carries line-delimited JSON between the collector and the
// sensor board over a duplex byte stream.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const lineBuffer = 64

// MaxLineLength bounds one inbound line, terminator included. Longer lines
// are discarded whole.
const MaxLineLength = 64 * 1024

// ErrClosed is returned once the link has been closed locally.
var ErrClosed = errors.New("link closed")

var errLineTooLong = errors.New("line too long")

// Error is a failure on the physical link. The ingestion loop treats it as fatal.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Link reads newline-terminated lines in a background goroutine and writes
// commands synchronously.
type Link struct {
	rwc    io.ReadWriteCloser
	lines  chan string
	done   chan struct{}
	logger zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error
}

// NewLink starts reading from rwc. The caller must Close the link.
func NewLink(rwc io.ReadWriteCloser, logger zerolog.Logger) *Link {
	l := &Link{
		rwc:    rwc,
		lines:  make(chan string, lineBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "transport").Logger(),
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.lines)

	reader := bufio.NewReader(l.rwc)
	for {
		raw, err := readLine(reader, MaxLineLength)
		if errors.Is(err, errLineTooLong) {
			l.logger.Warn().Int("limit", MaxLineLength).Msg("oversized line dropped")
			continue
		}
		if text := strings.TrimSpace(raw); text != "" {
			select {
			case l.lines <- text:
			case <-l.done:
				l.setReadErr(ErrClosed)
				return
			}
		}
		if err != nil {
			select {
			case <-l.done:
				err = ErrClosed
			default:
			}
			l.setReadErr(err)
			return
		}
	}
}

// readLine returns the next line. A line longer than limit is consumed up to
// its terminator and reported as errLineTooLong; at most limit bytes are held.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var buf []byte
	overflow := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !overflow {
			if len(buf)+len(chunk) > limit {
				overflow = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if overflow {
			if err != nil {
				return "", err
			}
			return "", errLineTooLong
		}
		return string(buf), err
	}
}

func (l *Link) setReadErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.readErr == nil {
		l.readErr = err
	}
}

func (l *Link) failure() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	err := l.readErr
	if err == nil {
		err = ErrClosed
	}
	return &Error{Op: "read", Err: err}
}

// Send writes one command. Failures are not retried.
func (l *Link) Send(cmd Command) error {
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}

	select {
	case <-l.done:
		return &Error{Op: "write", Err: ErrClosed}
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.rwc.Write(payload); err != nil {
		return &Error{Op: "write", Err: err}
	}
	l.logger.Debug().Str("command", cmd.String()).Msg("command sent")
	return nil
}

// TryReadLine returns the next line if one is already buffered or arrives
// within timeout. ok is false on timeout. Once the stream has failed every call
// returns a *Error, after any lines read before the failure are delivered.
func (l *Link) TryReadLine(timeout time.Duration) (string, bool, error) {
	select {
	case line, open := <-l.lines:
		if !open {
			return "", false, l.failure()
		}
		return line, true, nil
	default:
	}
	if timeout <= 0 {
		return "", false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, open := <-l.lines:
		if !open {
			return "", false, l.failure()
		}
		return line, true, nil
	case <-timer.C:
		return "", false, nil
	}
}

// Close releases the underlying stream and stops the reader.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.rwc.Close()
	})
	return err
}
