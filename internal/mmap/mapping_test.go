package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(64 * 1024)
	require.NoError(t, err)

	data := m.Bytes()
	require.Len(t, data, 64*1024)
	assert.Equal(t, 64*1024, m.Size())

	// Fresh anonymous memory is zeroed and writable.
	assert.Equal(t, byte(0), data[4095])
	data[4095] = 0xAB
	assert.Equal(t, byte(0xAB), m.Bytes()[4095])

	assert.NoError(t, m.Advise(AccessRandom))
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close(), "close is idempotent")

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessSequential), ErrClosed)
}

func TestMapAnon_InvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapAnon(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}
