package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocRelease(t *testing.T) {
	p := NewPool(2, 128)
	require.Equal(t, 0, p.Outstanding())

	b, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Outstanding())
	assert.Equal(t, 128, b.Size())

	b.Release()
	assert.Equal(t, 0, p.Outstanding())
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(1, 64)
	b1, err := p.Alloc()
	require.NoError(t, err)

	_, err = p.Alloc()
	assert.Error(t, err)

	b1.Release()
	b2, err := p.Alloc()
	require.NoError(t, err)
	b2.Release()
}

func TestAdjustHeadAndTrimTail(t *testing.T) {
	p := NewPool(1, 64)
	b, err := p.AllocHeadroom(32)
	require.NoError(t, err)
	require.Equal(t, 0, b.Size())

	require.NoError(t, b.AdjustHead(-20))
	assert.Equal(t, 20, b.Size())

	assert.Error(t, b.AdjustHead(-100))

	require.NoError(t, b.TrimTail(5))
	assert.Equal(t, 15, b.Size())

	assert.Error(t, b.TrimTail(1000))
	b.Release()
}

func TestCloneSharesRegionUntilBothReleased(t *testing.T) {
	p := NewPool(1, 64)
	b, err := p.Alloc()
	require.NoError(t, err)

	clone := b.Clone()
	assert.Equal(t, 1, p.Outstanding())

	b.Release()
	assert.Equal(t, 1, p.Outstanding(), "region must survive while clone is live")

	clone.Release()
	assert.Equal(t, 0, p.Outstanding())
}

func TestSplitCoversBothHalves(t *testing.T) {
	p := NewPool(1, 100)
	b, err := p.Alloc()
	require.NoError(t, err)

	left, right, err := b.Split(40)
	require.NoError(t, err)
	assert.Equal(t, 40, left.Size())
	assert.Equal(t, 60, right.Size())

	b.Release()
	assert.Equal(t, 1, p.Outstanding(), "left+right still hold the region")
	left.Release()
	assert.Equal(t, 1, p.Outstanding())
	right.Release()
	assert.Equal(t, 0, p.Outstanding())
}
