package wire

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Stream names the origin of a log chunk.
type Stream string

const (
	StreamStdout Stream = "STDOUT"
	StreamStderr Stream = "STDERR"
)

// LogChunk is one element of the reverse log stream pushed by an executor.
// Sequence is strictly increasing per task so consumers can resume a partial
// read with "everything after sequence N".
type LogChunk struct {
	Sequence uint64    `json:"sequence"`
	Stream   Stream    `json:"stream"`
	Content  string    `json:"content"`
	IsLast   bool      `json:"is_last"`
	StageID  uuid.UUID `json:"stage_id"`
	Level    string    `json:"level,omitempty"`
}

// LogBuffer retains the per-task log stream and enforces sequence monotony.
type LogBuffer struct {
	mu     sync.RWMutex
	chunks map[uuid.UUID][]LogChunk
}

// NewLogBuffer creates an empty LogBuffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{chunks: make(map[uuid.UUID][]LogChunk)}
}

// Append stores one chunk. A sequence at or below the last accepted sequence
// for the task is rejected; the stream contract is strictly increasing.
func (b *LogBuffer) Append(taskID uuid.UUID, chunk LogChunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.chunks[taskID]
	if n := len(existing); n > 0 && chunk.Sequence <= existing[n-1].Sequence {
		return fmt.Errorf("log sequence %d for task %s regresses below %d",
			chunk.Sequence, taskID, existing[n-1].Sequence)
	}
	b.chunks[taskID] = append(existing, chunk)
	return nil
}

// After returns every retained chunk with sequence strictly greater than seq,
// in stream order.
func (b *LogBuffer) After(taskID uuid.UUID, seq uint64) []LogChunk {
	b.mu.RLock()
	defer b.mu.RUnlock()

	chunks := b.chunks[taskID]
	// Chunks are sorted by construction; find the first one past the cursor.
	i := 0
	for i < len(chunks) && chunks[i].Sequence <= seq {
		i++
	}
	out := make([]LogChunk, len(chunks)-i)
	copy(out, chunks[i:])
	return out
}
