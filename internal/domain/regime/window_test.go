package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAppendAndEvict(t *testing.T) {
	r := NewRing[int](3)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 3, r.Cap())

	r.Append(1)
	r.Append(2)
	assert.Equal(t, []int{1, 2}, r.Values())

	r.Append(3)
	r.Append(4)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{2, 3, 4}, r.Values())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 4, last)
	assert.Equal(t, 2, r.At(0))
}

func TestRingTail(t *testing.T) {
	r := NewRing[float64](5)
	for i := 1; i <= 7; i++ {
		r.Append(float64(i))
	}
	assert.Equal(t, []float64{6, 7}, r.Tail(2))
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, r.Tail(10))
	assert.Nil(t, r.Tail(0))
}

func TestRingEmpty(t *testing.T) {
	r := NewRing[string](2)
	_, ok := r.Last()
	assert.False(t, ok)
	assert.Nil(t, r.Values())
	assert.Panics(t, func() { r.At(0) })
}

func TestRingReset(t *testing.T) {
	r := NewRing[int](4)
	r.Append(1)
	r.Append(2)
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 4, r.Cap())
	r.Append(9)
	assert.Equal(t, []int{9}, r.Values())
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Append(1)
	r.Append(2)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []int{2}, r.Values())
}
