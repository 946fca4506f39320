// Package wire implements the framed channel between the orchestrator and
// remote executors: a length-prefixed binary codec for dispatch commands and
// a sequenced log stream flowing back from the fleet.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes bounds a single frame when no limit is configured.
const DefaultMaxFrameBytes = 5 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame exceeds the configured maximum.
// Oversized frames are rejected whole, never partially processed.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

const headerSize = 4

// Codec reads and writes length-framed payloads: a 4-byte big-endian length
// followed by the payload bytes.
type Codec struct {
	maxFrame int
}

// NewCodec creates a Codec with the given frame bound; a non-positive bound
// falls back to DefaultMaxFrameBytes.
func NewCodec(maxFrame int) *Codec {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	return &Codec{maxFrame: maxFrame}
}

// WriteFrame writes one frame. The payload size is checked before any byte
// hits the wire.
func (c *Codec) WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > c.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), c.maxFrame)
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame, rejecting oversized frames before reading the
// payload so a malicious peer cannot force an allocation.
func (c *Codec) ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if int(size) > c.maxFrame {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, c.maxFrame)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return payload, nil
}
