package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bufcache/internal/core"
)

func TestIndex(t *testing.T) {
	p := newTestPool(t, 4)
	x := NewIndex(p, 2)
	dev := core.MakeDev(3, 0)

	set := func(id ID, block core.BlockNo) {
		s := p.At(id)
		s.Dev, s.Block = dev, block
		x.Insert(id)
	}

	// Blocks 0, 2 and 4 share bucket 0.
	set(0, 0)
	set(1, 2)
	set(2, 4)
	set(3, 1)

	assert.Equal(t, 4, x.Len())
	assert.Equal(t, ID(0), x.Lookup(dev, 0))
	assert.Equal(t, ID(1), x.Lookup(dev, 2))
	assert.Equal(t, ID(2), x.Lookup(dev, 4))
	assert.Equal(t, ID(3), x.Lookup(dev, 1))
	assert.Equal(t, None, x.Lookup(dev, 6))
	assert.Equal(t, None, x.Lookup(core.MakeDev(4, 0), 0))

	tests := []struct {
		name  string
		id    ID
		block core.BlockNo
	}{
		{"middle of chain", 1, 2},
		{"head of chain", 2, 4},
		{"tail of chain", 0, 0},
		{"only in bucket", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, x.Remove(tt.id))
			assert.False(t, p.At(tt.id).Hashed())
			assert.Equal(t, None, x.Lookup(dev, tt.block))
			assert.False(t, x.Remove(tt.id), "second remove is a no-op")
		})
	}
	assert.Zero(t, x.Len())
}

func TestIndex_InsertTwicePanics(t *testing.T) {
	p := newTestPool(t, 1)
	x := NewIndex(p, 0)
	assert.Equal(t, 1, x.Buckets())

	p.At(0).Dev = core.MakeDev(3, 0)
	x.Insert(0)
	assert.Panics(t, func() { x.Insert(0) })
}
