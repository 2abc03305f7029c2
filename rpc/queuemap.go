package rpc

import "container/list"

type queueMapEntry struct {
	callID int32
	rpc    *Rpc
}

// QueueMap is an insertion-ordered mapping from call ID to Rpc. It backs
// both Connection.sendQueue (ordering matters, for deterministic retry
// after a reset) and is general enough to be reused anywhere the same
// insert/remove/pop-oldest contract is needed, per spec.md section 4.3.
//
// It is backed by a doubly linked list plus a map from call ID to list
// element, giving O(1) insert, remove-by-key, and pop-oldest while
// preserving insertion order across removals from the middle.
type QueueMap struct {
	order *list.List
	index map[int32]*list.Element
}

// NewQueueMap returns an empty QueueMap.
func NewQueueMap() *QueueMap {
	return &QueueMap{
		order: list.New(),
		index: make(map[int32]*list.Element),
	}
}

// Insert adds rpc under callID. callID must not already be present.
func (q *QueueMap) Insert(callID int32, rpc *Rpc) {
	el := q.order.PushBack(queueMapEntry{callID: callID, rpc: rpc})
	q.index[callID] = el
}

// Remove removes and returns the Rpc at callID, if present.
func (q *QueueMap) Remove(callID int32) (*Rpc, bool) {
	el, ok := q.index[callID]
	if !ok {
		return nil, false
	}
	delete(q.index, callID)
	q.order.Remove(el)
	return el.Value.(queueMapEntry).rpc, true
}

// Pop removes and returns the oldest (call ID, Rpc) pair, if any.
func (q *QueueMap) Pop() (int32, *Rpc, bool) {
	front := q.order.Front()
	if front == nil {
		return 0, nil, false
	}
	entry := front.Value.(queueMapEntry)
	q.order.Remove(front)
	delete(q.index, entry.callID)
	return entry.callID, entry.rpc, true
}

// Drain removes and returns every entry, oldest first.
func (q *QueueMap) Drain() []struct {
	CallID int32
	Rpc    *Rpc
} {
	out := make([]struct {
		CallID int32
		Rpc    *Rpc
	}, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(queueMapEntry)
		out = append(out, struct {
			CallID int32
			Rpc    *Rpc
		}{CallID: entry.callID, Rpc: entry.rpc})
	}
	q.order.Init()
	q.index = make(map[int32]*list.Element)
	return out
}

// Len returns the number of entries currently queued.
func (q *QueueMap) Len() int {
	return q.order.Len()
}
