package seqnum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessThanWraparound(t *testing.T) {
	var max Value = 0xffffffff
	assert.True(t, max.LessThan(0))
	assert.False(t, Value(0).LessThan(max))
}

func TestInWindow(t *testing.T) {
	first := Value(100)
	assert.True(t, Value(100).InWindow(first, 10))
	assert.True(t, Value(109).InWindow(first, 10))
	assert.False(t, Value(110).InWindow(first, 10))
	assert.False(t, Value(99).InWindow(first, 10))
}

func TestOverlap(t *testing.T) {
	assert.True(t, Overlap(0, 10, 5, 10))
	assert.False(t, Overlap(0, 10, 10, 10))
}

func TestSizeAndAdd(t *testing.T) {
	v := Value(10)
	assert.Equal(t, Value(15), v.Add(5))
	assert.Equal(t, Size(5), v.Size(15))
}
