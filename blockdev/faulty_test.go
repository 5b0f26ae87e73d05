package blockdev

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocks(n, size int, fill byte) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = bytes.Repeat([]byte{fill + byte(i)}, size)
	}
	return out
}

func TestFaulty_FailAfterBlocks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4, 8)
	f := NewFaulty(m, 4)
	f.FailAfterBlocks(2)

	n, err := f.WriteVector(ctx, blocks(4, 4, 'a'), 0)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 8, n)
	assert.Equal(t, "aaaabbbb", string(m.Bytes()[:8]))
	assert.Equal(t, make([]byte, 8), m.Bytes()[8:16])

	assert.Equal(t, []Transfer{{Write: true, Off: 0, Blocks: 4}}, f.Transfers())
	assert.False(t, IsVolatile(f))
}

func TestFaulty_FailBlock(t *testing.T) {
	ctx := context.Background()
	f := NewFaulty(NewMemory(4, 8), 4)
	f.FailBlock(3)

	n, err := f.WriteVector(ctx, [][]byte{make([]byte, 8), make([]byte, 8)}, 8)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 4, n, "a multi-block buffer is cut at the failing block")

	n, err = f.WriteAt(ctx, make([]byte, 4), 16)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFaulty_MarkFailed(t *testing.T) {
	ctx := context.Background()
	f := NewFaulty(NewMemory(4, 8), 4)
	f.MarkFailed()

	n, err := f.WriteAt(ctx, make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrDeviceFailed)
	assert.Zero(t, n)

	f.Reset()
	_, err = f.WriteAt(ctx, make([]byte, 4), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.Writes())
}

func TestFaulty_Reads(t *testing.T) {
	ctx := context.Background()
	f := NewFaulty(NewMemory(4, 8), 4)

	_, err := f.ReadAt(ctx, make([]byte, 4), 0)
	require.NoError(t, err)

	f.FailReads(true)
	_, err = f.ReadAt(ctx, make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 2, f.Reads())
	assert.Equal(t, 0, f.Writes())
}
