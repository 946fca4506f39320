package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	codec := NewCodec(1024)
	var buf bytes.Buffer

	require.NoError(t, codec.WriteFrame(&buf, []byte("hello fleet")))

	payload, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello fleet"), payload)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	codec := NewCodec(8)
	var buf bytes.Buffer

	err := codec.WriteFrame(&buf, make([]byte, 9))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	// Nothing may reach the wire for a rejected frame.
	assert.Zero(t, buf.Len())
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	codec := NewCodec(8)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1<<30)
	r := bytes.NewReader(header[:])

	_, err := codec.ReadFrame(r)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDispatchRoundTrip(t *testing.T) {
	codec := NewCodec(0)
	var buf bytes.Buffer

	cmd := DispatchCommand{
		TaskID:  uuid.New(),
		Tenant:  "acme",
		Type:    "CODE_SCAN",
		Engine:  "semgrep",
		Options: map[string]string{"timeout": "600"},
	}
	require.NoError(t, codec.WriteDispatch(&buf, cmd))

	got, err := codec.ReadDispatch(&buf)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestLogBufferRejectsSequenceRegression(t *testing.T) {
	buffer := NewLogBuffer()
	taskID := uuid.New()

	require.NoError(t, buffer.Append(taskID, LogChunk{Sequence: 1, Stream: StreamStdout, Content: "a"}))
	require.NoError(t, buffer.Append(taskID, LogChunk{Sequence: 2, Stream: StreamStdout, Content: "b"}))

	assert.Error(t, buffer.Append(taskID, LogChunk{Sequence: 2, Stream: StreamStdout, Content: "dup"}))
	assert.Error(t, buffer.Append(taskID, LogChunk{Sequence: 1, Stream: StreamStdout, Content: "old"}))

	// A rejected chunk leaves the stream untouched.
	chunks := buffer.After(taskID, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Content)
	assert.Equal(t, "b", chunks[1].Content)
}

func TestLogBufferAfterReturnsChunksPastCursor(t *testing.T) {
	buffer := NewLogBuffer()
	taskID := uuid.New()

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, buffer.Append(taskID, LogChunk{Sequence: seq, Stream: StreamStderr}))
	}

	chunks := buffer.After(taskID, 3)
	require.Len(t, chunks, 2)
	assert.Equal(t, uint64(4), chunks[0].Sequence)
	assert.Equal(t, uint64(5), chunks[1].Sequence)

	assert.Empty(t, buffer.After(taskID, 5))
	assert.Empty(t, buffer.After(uuid.New(), 0))
}

func TestLogBufferSequencesAreScopedPerTask(t *testing.T) {
	buffer := NewLogBuffer()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, buffer.Append(a, LogChunk{Sequence: 10}))
	require.NoError(t, buffer.Append(b, LogChunk{Sequence: 1}))
	require.NoError(t, buffer.Append(b, LogChunk{Sequence: 2}))

	assert.Len(t, buffer.After(a, 0), 1)
	assert.Len(t, buffer.After(b, 0), 2)
}
