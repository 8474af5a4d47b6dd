package util

import (
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

// TestBlockKey tests packing of page and block indices
func TestBlockKey(t *testing.T) {
	for _, tc := range []struct{ page, block int }{{0, 0}, {0, 5}, {3, 7}, {65535, 65535}} {
		key := BlockKey(tc.page, tc.block)
		page, block := SplitBlockKey(key)
		if page != tc.page || block != tc.block {
			t.Errorf("BlockKey(%d,%d) split into (%d,%d)", tc.page, tc.block, page, block)
		}
	}
	if BlockKey(1, 0) == BlockKey(0, 1) {
		t.Error("BlockKey should distinguish page and block")
	}
}

// TestRecycleOrder tests that reformatted blocks move to the back of the queue
func TestRecycleOrder(t *testing.T) {
	mh := NewMapHeap()

	// four blocks formatted in order
	for b := 0; b < 4; b++ {
		mh.AddItem(BlockKey(0, b), uint64(b+1))
	}

	seq := uint64(4)
	expected := []int{0, 1, 2, 3, 0, 1}
	for i, want := range expected {
		oldest, exists := mh.Peek()
		if !exists {
			t.Fatalf("round %d: queue is empty", i)
		}
		_, block := SplitBlockKey(oldest.Key)
		if block != want {
			t.Errorf("round %d: expected block %d to be the oldest, got %d", i, want, block)
		}
		seq++
		mh.AddItem(oldest.Key, seq)
	}

	if mh.Len() != 4 {
		t.Errorf("Queue should still hold 4 blocks, has %d", mh.Len())
	}
}

// TestRemoveByKey tests removing blocks by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 300)

	value, exists := mh.RemoveByKey(2)
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if value != 200 {
		t.Errorf("RemoveByKey should return value 200, got %d", value)
	}
	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}
	if mh.Contains(2) {
		t.Error("Heap should not contain key 2 after removal")
	}

	if _, exists = mh.RemoveByKey(99); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopMin tests if blocks are popped oldest first
func TestPopMin(t *testing.T) {
	mh := NewMapHeap()

	for _, it := range []struct{ key, seq uint64 }{{5, 50}, {3, 30}, {1, 10}, {4, 40}, {2, 20}} {
		mh.AddItem(it.key, it.seq)
	}

	for want := uint64(1); want <= 5; want++ {
		key, seq, ok := mh.PopMin()
		if !ok {
			t.Fatalf("PopMin returned nothing, expected key %d", want)
		}
		if key != want || seq != want*10 {
			t.Errorf("expected (%d,%d), got (%d,%d)", want, want*10, key, seq)
		}
	}

	if _, _, ok := mh.PopMin(); ok {
		t.Error("PopMin on empty heap should return ok=false")
	}
}

// TestGetByKey tests retrieving blocks by key
func TestGetByKey(t *testing.T) {
	mh := NewMapHeap()
	mh.AddItem(1, 100)

	it, exists := mh.GetByKey(1)
	if !exists {
		t.Fatal("GetByKey should find existing key")
	}
	if it.Key != 1 || it.Priority != 100 {
		t.Errorf("GetByKey returned incorrect item: expected (1,100), got %s", it)
	}

	if _, exists = mh.GetByKey(99); exists {
		t.Error("GetByKey should return exists=false for non-existent key")
	}
}
