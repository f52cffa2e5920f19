package transport

import (
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// ByteSource yields raw transport bytes as they arrive. PollAvailable may
// return an empty slice and must not block longer than a small bound; a
// non-nil error means the transport has failed permanently and the session
// must terminate.
type ByteSource interface {
	// PollAvailable returns the bytes that arrived since the last call,
	// possibly none. The returned slice is only valid until the next call.
	PollAvailable() ([]byte, error)

	// Flush discards bytes the transport has buffered but not yet delivered.
	// Sources with no such buffer may make this a no-op.
	Flush() error

	// Close releases the transport
	Close() error
}

// readBufferSize is sized for a full burst of frames between polls at the
// maximum USB CDC baudrate
const readBufferSize = 64 * 1024

// drainWindow bounds how long opening discards residual device output, so a
// session never starts on stale frames
const drainWindow = 200 * time.Millisecond

// SerialSource reads the USB CDC serial device. Reads use a sub-millisecond
// timeout: a quiet line yields an empty poll rather than blocking the
// session loop.
type SerialSource struct {
	port   serial.Port
	name   string
	buf    []byte
	logger *slog.Logger
}

// OpenSerial opens the serial device at the given baudrate (8N1) and drains
// any residual input so decoding starts at the live edge of the stream
func OpenSerial(name string, baudrate int, logger *slog.Logger) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(500 * time.Microsecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}

	s := &SerialSource{
		port:   port,
		name:   name,
		buf:    make([]byte, readBufferSize),
		logger: logger,
	}

	if err := s.drainResidual(); err != nil {
		port.Close()
		return nil, err
	}

	logger.Info("Serial port opened",
		slog.String("port", name),
		slog.Int("baudrate", baudrate),
	)

	return s, nil
}

// drainResidual throws away whatever the device buffered before we attached
func (s *SerialSource) drainResidual() error {
	if err := s.port.ResetInputBuffer(); err != nil {
		s.logger.Warn("Failed to reset serial input buffer",
			slog.String("port", s.name),
			slog.String("error", err.Error()),
		)
	}

	deadline := time.Now().Add(drainWindow)
	for time.Now().Before(deadline) {
		n, err := s.port.Read(s.buf)
		if err != nil {
			return fmt.Errorf("failed to drain serial port %s: %w", s.name, err)
		}
		if n == 0 {
			break
		}
	}

	return nil
}

// PollAvailable reads whatever the device has buffered. A read timeout
// yields an empty slice, not an error.
func (s *SerialSource) PollAvailable() ([]byte, error) {
	n, err := s.port.Read(s.buf)
	if err != nil {
		return nil, fmt.Errorf("serial read on %s failed: %w", s.name, err)
	}
	return s.buf[:n], nil
}

// Flush discards bytes queued in the OS serial input buffer. At high
// baudrates that buffer, not the in-process backlog, holds most of the stale
// audio after a stall.
func (s *SerialSource) Flush() error {
	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer on %s: %w", s.name, err)
	}
	return nil
}

// Close releases the serial port
func (s *SerialSource) Close() error {
	return s.port.Close()
}
