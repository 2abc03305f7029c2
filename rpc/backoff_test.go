package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsAndCapsAtMax(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 80*time.Millisecond)

	var prevFloor time.Duration
	for i := 0; i < 10; i++ {
		d := b.Next()
		require.GreaterOrEqual(t, d, prevFloor)
		assert.LessOrEqual(t, d, 80*time.Millisecond+80*time.Millisecond/2)
		// Jitter means d itself need not grow, but the next delay is at
		// least the doubled (and capped) base.
		prevFloor = b.current
	}
	assert.LessOrEqual(t, b.current, 80*time.Millisecond)
}

func TestBackoffResetReturnsToInitial(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 1*time.Second)
	for i := 0; i < 5; i++ {
		b.Next()
	}
	require.Greater(t, b.current, 10*time.Millisecond)

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.current)
}

func TestBackoffMaxBelowInitialIsRaised(t *testing.T) {
	b := NewBackoff(50*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, b.max)
}

func TestBackoffNeverExceedsMaxPlusJitter(t *testing.T) {
	b := NewBackoff(1*time.Millisecond, 16*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := b.Next()
		assert.LessOrEqual(t, d, 16*time.Millisecond+8*time.Millisecond)
	}
}
