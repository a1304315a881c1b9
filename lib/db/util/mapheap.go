// Package util
//
// This file provides a keyed priority queue.
//
// The implementation combines a binary heap with a hash map, so the item with
// the lowest priority can be found in O(1) while any item can still be updated
// or removed by its key in O(log n).
//
// It is used in two places:
//   - the state machine orders client sessions by their last activity to expire idle ones
//   - the client keeps its outstanding sequence numbers in it (key == priority) to
//     compute the lowest outstanding number for every request
//
// MapHeap is not safe for concurrent use.
//
// Example usage:
//
//	sessions := NewMapHeap[uint64]()
//	sessions.Set(clientID, lastSeen)
//
//	// expire the oldest session
//	if oldest, ok := sessions.Peek(); ok && oldest.Priority < deadline {
//	    sessions.Remove(oldest.Key)
//	}
package util

import (
	"container/heap"
	"fmt"
)

// Item is an entry of a MapHeap
type Item[K comparable] struct {
	Key      K      // Unique identifier for the item
	Priority uint64 // Lower priorities are returned first
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap by priority with key-based access
type MapHeap[K comparable] struct {
	h *itemHeap[K]
}

// NewMapHeap creates a new, empty MapHeap
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		h: &itemHeap[K]{
			items:    make([]*Item[K], 0),
			itemsMap: make(map[K]*Item[K]),
		},
	}
}

// Len returns the number of items
func (mh *MapHeap[K]) Len() int { return mh.h.Len() }

// Set adds a new item or updates the priority of an existing one
func (mh *MapHeap[K]) Set(key K, priority uint64) {
	if it, exists := mh.h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh.h, it.index)
		return
	}
	heap.Push(mh.h, &Item[K]{Key: key, Priority: priority})
}

// Remove removes an item by its key and returns its priority
func (mh *MapHeap[K]) Remove(key K) (uint64, bool) {
	it, exists := mh.h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh.h, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (mh *MapHeap[K]) Peek() (Item[K], bool) {
	if len(mh.h.items) == 0 {
		return Item[K]{}, false
	}
	return *mh.h.items[0], true
}

// Pop removes and returns the item with the lowest priority
func (mh *MapHeap[K]) Pop() (Item[K], bool) {
	if len(mh.h.items) == 0 {
		return Item[K]{}, false
	}
	return *heap.Pop(mh.h).(*Item[K]), true
}

// Contains checks if a key exists
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.h.itemsMap[key]
	return exists
}

// Get retrieves the priority of a key
func (mh *MapHeap[K]) Get(key K) (uint64, bool) {
	it, exists := mh.h.itemsMap[key]
	if !exists {
		return 0, false
	}
	return it.Priority, true
}

// Clear removes all items
func (mh *MapHeap[K]) Clear() {
	mh.h.items = mh.h.items[:0]
	clear(mh.h.itemsMap)
}

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

type itemHeap[K comparable] struct {
	items    []*Item[K]
	itemsMap map[K]*Item[K]
}

func (h *itemHeap[K]) Len() int { return len(h.items) }

func (h *itemHeap[K]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

func (h *itemHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *itemHeap[K]) Push(x any) {
	it := x.(*Item[K])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

func (h *itemHeap[K]) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}
