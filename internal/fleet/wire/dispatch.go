package wire

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// DispatchCommand is the JSON payload pushed to an executor inside a frame
// when a task is assigned to it.
type DispatchCommand struct {
	TaskID  uuid.UUID         `json:"task_id"`
	Tenant  string            `json:"tenant"`
	Type    string            `json:"type"`
	Engine  string            `json:"engine"`
	Options map[string]string `json:"options,omitempty"`
}

// WriteDispatch encodes the command and writes it as one frame.
func (c *Codec) WriteDispatch(w io.Writer, cmd DispatchCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch command: %w", err)
	}
	return c.WriteFrame(w, payload)
}

// ReadDispatch reads one frame and decodes it as a dispatch command.
func (c *Codec) ReadDispatch(r io.Reader) (DispatchCommand, error) {
	payload, err := c.ReadFrame(r)
	if err != nil {
		return DispatchCommand{}, err
	}
	var cmd DispatchCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return DispatchCommand{}, fmt.Errorf("failed to decode dispatch command: %w", err)
	}
	return cmd, nil
}
