package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureBuffer(t *testing.T) {
	t.Run("UnderLimit", func(t *testing.T) {
		c := newCaptureBuffer(10)
		n, err := c.Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", c.String())
		assert.False(t, c.Truncated())
	})

	t.Run("ExactlyAtLimit", func(t *testing.T) {
		c := newCaptureBuffer(5)
		_, _ = c.Write([]byte("hello"))
		assert.Equal(t, "hello", c.String())
		assert.False(t, c.Truncated())
	})

	t.Run("SplitsWriteAcrossLimit", func(t *testing.T) {
		c := newCaptureBuffer(8)
		_, _ = c.Write([]byte("hello"))
		n, err := c.Write([]byte(" world"))
		assert.NoError(t, err)
		assert.Equal(t, 6, n, "excess must be reported as written so the producer keeps draining")
		assert.Equal(t, "hello wo", c.String())
		assert.True(t, c.Truncated())
	})

	t.Run("DrainsAfterFull", func(t *testing.T) {
		c := newCaptureBuffer(4)
		for i := 0; i < 100; i++ {
			n, err := c.Write([]byte("data"))
			assert.NoError(t, err)
			assert.Equal(t, 4, n)
		}
		assert.Equal(t, "data", c.String())
		assert.True(t, c.Truncated())
	})

	t.Run("Unbounded", func(t *testing.T) {
		c := newCaptureBuffer(0)
		big := strings.Repeat("a", 1<<16)
		_, _ = c.Write([]byte(big))
		assert.Equal(t, big, c.String())
		assert.False(t, c.Truncated())
	})
}
