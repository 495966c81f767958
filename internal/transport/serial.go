package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// SerialOptions parameterise the serial port.
type SerialOptions struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    string
	SettleDelay time.Duration
}

// OpenSerial opens the port and waits SettleDelay for the board to reset, as
// most USB-attached microcontrollers reboot when the port is opened.
func OpenSerial(ctx context.Context, opts SerialOptions, logger zerolog.Logger) (*Link, error) {
	if opts.Port == "" {
		return nil, errors.New("serial port not configured")
	}

	mode, err := serialMode(opts)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(opts.Port, mode)
	if err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("%s: %w", opts.Port, err)}
	}

	if opts.SettleDelay > 0 {
		timer := time.NewTimer(opts.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			port.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("reset input buffer: %w", err)}
	}

	logger.Info().Str("port", opts.Port).Int("baud_rate", mode.BaudRate).Msg("serial port opened")
	return NewLink(port, logger), nil
}

func serialMode(opts SerialOptions) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToLower(opts.Parity) {
	case "", "none":
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	switch opts.StopBits {
	case "", "1":
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %q", opts.StopBits)
	}

	return mode, nil
}

// capture adapts a recorded line file to the link. Commands written to it are
// discarded.
type capture struct {
	*os.File
}

func (c capture) Write(p []byte) (int, error) {
	return len(p), nil
}

// OpenFile replays a captured stream, one message per line. The end of the
// file surfaces as a read *Error.
func OpenFile(path string, logger zerolog.Logger) (*Link, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	return NewLink(capture{File: f}, logger), nil
}
