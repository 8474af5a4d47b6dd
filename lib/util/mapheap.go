package util

import (
	"container/heap"
	"strconv"
)

// This file provides the priority queue that decides which block of a
// recycling class is reused next.
//
// The queue combines a binary heap with a hash map, so the block with the
// lowest format sequence can be found in O(1) while a block that is
// reformatted can be moved in O(log n) by its key.
//
// Keys are block ids (page << 16 | block), priorities are the format sequence
// numbers handed out by the owning class. Reformatting a block pushes it to
// the back of the queue.
//
// Concurrency: the queue is not thread-safe, its owner serializes access.
//
// Example usage:
//
//	queue := NewMapHeap()
//	queue.AddItem(BlockKey(0, 0), 1)
//	queue.AddItem(BlockKey(0, 1), 2)
//
//	oldest, _ := queue.Peek()          // block 0/0
//	queue.AddItem(oldest.Key, 3)       // reformatted, now the newest

// item is one block in the queue
type item struct {
	Key      uint64 // block id
	Priority uint64 // format sequence
	index    int    // index in the heap, maintained by heap package
}

func (i *item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// BlockKey packs a page and block index into a queue key
func BlockKey(page, block int) uint64 {
	return uint64(page)<<16 | uint64(block&0xFFFF)
}

// SplitBlockKey is the inverse of BlockKey
func SplitBlockKey(key uint64) (page, block int) {
	return int(key >> 16), int(key & 0xFFFF)
}

// MapHeap is a min-heap of blocks ordered by format sequence with key access
type MapHeap struct {
	items    []*item
	itemsMap map[uint64]*item
}

// NewMapHeap creates an empty queue
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[uint64]*item),
	}
}

// Len returns the number of blocks in the queue (part of heap.Interface)
func (mh *MapHeap) Len() int { return len(mh.items) }

// Less orders by sequence, the oldest block first (part of heap.Interface)
func (mh *MapHeap) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (mh *MapHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(mh.items)
	mh.items = append(mh.items, it)
	mh.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface)
func (mh *MapHeap) Pop() interface{} {
	old := mh.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, it.Key)
	return it
}

// AddItem adds a block or moves an existing one to a new sequence
func (mh *MapHeap) AddItem(key, priority uint64) {
	if it, exists := mh.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh, it.index)
		return
	}
	heap.Push(mh, &item{Key: key, Priority: priority})
}

// RemoveByKey removes a block and returns its sequence
func (mh *MapHeap) RemoveByKey(key uint64) (uint64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, it.index)
	return it.Priority, true
}

// Peek returns the oldest block without removing it
func (mh *MapHeap) Peek() (*item, bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// PopMin removes and returns the oldest block
func (mh *MapHeap) PopMin() (key, priority uint64, ok bool) {
	if len(mh.items) == 0 {
		return 0, 0, false
	}
	it := heap.Pop(mh).(*item)
	return it.Key, it.Priority, true
}

// Contains checks if a block is queued
func (mh *MapHeap) Contains(key uint64) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves a block without removing it
func (mh *MapHeap) GetByKey(key uint64) (*item, bool) {
	it, exists := mh.itemsMap[key]
	return it, exists
}
