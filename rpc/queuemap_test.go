package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueMapPreservesInsertionOrder(t *testing.T) {
	q := NewQueueMap()
	a := &Rpc{ServiceName: "a"}
	b := &Rpc{ServiceName: "b"}
	c := &Rpc{ServiceName: "c"}

	q.Insert(1, a)
	q.Insert(2, b)
	q.Insert(3, c)
	require.Equal(t, 3, q.Len())

	id, rpc, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int32(1), id)
	assert.Same(t, a, rpc)

	id, rpc, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int32(2), id)
	assert.Same(t, b, rpc)

	id, rpc, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int32(3), id)
	assert.Same(t, c, rpc)

	_, _, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueMapRemoveFromMiddlePreservesOrder(t *testing.T) {
	q := NewQueueMap()
	a := &Rpc{ServiceName: "a"}
	b := &Rpc{ServiceName: "b"}
	c := &Rpc{ServiceName: "c"}

	q.Insert(1, a)
	q.Insert(2, b)
	q.Insert(3, c)

	removed, ok := q.Remove(2)
	require.True(t, ok)
	assert.Same(t, b, removed)
	assert.Equal(t, 2, q.Len())

	id, rpc, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int32(1), id)
	assert.Same(t, a, rpc)

	id, rpc, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int32(3), id)
	assert.Same(t, c, rpc)
}

func TestQueueMapRemoveMissingReturnsFalse(t *testing.T) {
	q := NewQueueMap()
	_, ok := q.Remove(42)
	assert.False(t, ok)
}

func TestQueueMapDrainReturnsAllInOrderAndResets(t *testing.T) {
	q := NewQueueMap()
	a := &Rpc{ServiceName: "a"}
	b := &Rpc{ServiceName: "b"}
	q.Insert(10, a)
	q.Insert(20, b)

	entries := q.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, int32(10), entries[0].CallID)
	assert.Same(t, a, entries[0].Rpc)
	assert.Equal(t, int32(20), entries[1].CallID)
	assert.Same(t, b, entries[1].Rpc)

	assert.Equal(t, 0, q.Len())
	_, _, ok := q.Pop()
	assert.False(t, ok)
}
