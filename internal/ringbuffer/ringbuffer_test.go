package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[string](3)
	assert.Empty(t, rb.GetAll(nil))
	assert.Equal(t, 0, rb.Count())

	rb.Append("a")
	rb.Append("b")
	assert.Equal(t, []string{"a", "b"}, rb.GetAll(nil))
	assert.Equal(t, 2, rb.Count())

	rb.Append("c")
	rb.Append("d")
	rb.Append("e")
	assert.Equal(t, []string{"c", "d", "e"}, rb.GetAll(nil))
	assert.Equal(t, 3, rb.Count())
	assert.Equal(t, 5, rb.Total())

	// appends after existing content
	dst := rb.GetAll([]string{"x"})
	assert.Equal(t, []string{"x", "c", "d", "e"}, dst)
}

func TestRingBufferNonPositiveSize(t *testing.T) {
	rb := NewRingBuffer[int](0)
	rb.Append(1)
	rb.Append(2)
	assert.Equal(t, []int{2}, rb.GetAll(nil))
}
