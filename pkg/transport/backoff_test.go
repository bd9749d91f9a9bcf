package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUntilMax(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 1*time.Second)

	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 200*time.Millisecond, b.Next())
	assert.Equal(t, 400*time.Millisecond, b.Next())
	assert.Equal(t, 800*time.Millisecond, b.Next())
	assert.Equal(t, 1*time.Second, b.Next(), "capped at Max")
	assert.Equal(t, 1*time.Second, b.Next(), "stays at Max")
}

func TestBackoffResetReturnsToMin(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 1*time.Second)
	b.Next()
	b.Next()

	b.Reset()

	assert.Equal(t, 100*time.Millisecond, b.Next())
}
