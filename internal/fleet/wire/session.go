package wire

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ExecutorHello is the first frame an executor sends on a fresh channel
// connection. The token is the one issued at registration; nothing else
// identifies the peer.
type ExecutorHello struct {
	Token string `json:"token"`
}

// LogFrame carries one reverse-stream log chunk, addressed to the task it
// belongs to.
type LogFrame struct {
	TaskID uuid.UUID `json:"task_id"`
	Chunk  LogChunk  `json:"chunk"`
}

// WriteHello encodes the hello and writes it as one frame.
func (c *Codec) WriteHello(w io.Writer, hello ExecutorHello) error {
	payload, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("failed to encode hello: %w", err)
	}
	return c.WriteFrame(w, payload)
}

// ReadHello reads one frame and decodes it as the executor hello.
func (c *Codec) ReadHello(r io.Reader) (ExecutorHello, error) {
	payload, err := c.ReadFrame(r)
	if err != nil {
		return ExecutorHello{}, err
	}
	var hello ExecutorHello
	if err := json.Unmarshal(payload, &hello); err != nil {
		return ExecutorHello{}, fmt.Errorf("failed to decode hello: %w", err)
	}
	return hello, nil
}

// WriteLogFrame encodes the log frame and writes it as one frame.
func (c *Codec) WriteLogFrame(w io.Writer, frame LogFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode log frame: %w", err)
	}
	return c.WriteFrame(w, payload)
}

// ReadLogFrame reads one frame and decodes it as a log frame.
func (c *Codec) ReadLogFrame(r io.Reader) (LogFrame, error) {
	payload, err := c.ReadFrame(r)
	if err != nil {
		return LogFrame{}, err
	}
	var frame LogFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return LogFrame{}, fmt.Errorf("failed to decode log frame: %w", err)
	}
	return frame, nil
}
