package util

import (
	"sort"
	"testing"
)

func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[uint64]()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("Len() = %d, want 0", mh.Len())
	}

	if _, ok := mh.Peek(); ok {
		t.Error("Peek() on empty heap should return ok=false")
	}
}

func TestSetAndPeek(t *testing.T) {
	mh := NewMapHeap[uint64]()

	mh.Set(1, 100)
	mh.Set(2, 200)
	mh.Set(3, 50)

	if mh.Len() != 3 {
		t.Errorf("Len() = %d, want 3", mh.Len())
	}

	for _, key := range []uint64{1, 2, 3} {
		if !mh.Contains(key) {
			t.Errorf("Contains(%d) = false, want true", key)
		}
	}

	it, ok := mh.Peek()
	if !ok {
		t.Fatal("Peek() should return an item")
	}
	if it.Key != 3 || it.Priority != 50 {
		t.Errorf("Peek() = (%d,%d), want (3,50)", it.Key, it.Priority)
	}
}

func TestSetUpdatesPriority(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.Set("a", 100)
	mh.Set("b", 200)
	mh.Set("a", 300)

	if p, _ := mh.Get("a"); p != 300 {
		t.Errorf("Get(a) = %d, want 300", p)
	}

	if it, _ := mh.Peek(); it.Key != "b" {
		t.Errorf("Peek().Key = %s, want b", it.Key)
	}

	mh.Set("b", 50)
	if it, _ := mh.Peek(); it.Key != "b" || it.Priority != 50 {
		t.Errorf("Peek() = (%s,%d), want (b,50)", it.Key, it.Priority)
	}

	if mh.Len() != 2 {
		t.Errorf("Len() = %d, want 2", mh.Len())
	}
}

func TestRemove(t *testing.T) {
	mh := NewMapHeap[uint64]()

	mh.Set(1, 100)
	mh.Set(2, 200)
	mh.Set(3, 300)

	p, ok := mh.Remove(2)
	if !ok {
		t.Fatal("Remove(2) should return ok=true")
	}
	if p != 200 {
		t.Errorf("Remove(2) = %d, want 200", p)
	}
	if mh.Len() != 2 {
		t.Errorf("Len() = %d, want 2", mh.Len())
	}
	if mh.Contains(2) {
		t.Error("Contains(2) = true after removal")
	}

	if _, ok := mh.Remove(99); ok {
		t.Error("Remove(99) should return ok=false")
	}

	// removing the minimum must expose the next one
	mh.Remove(1)
	if it, _ := mh.Peek(); it.Key != 3 {
		t.Errorf("Peek().Key = %d, want 3", it.Key)
	}
}

func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[uint64]()

	items := []struct {
		key   uint64
		value uint64
	}{
		{5, 50},
		{3, 30},
		{1, 10},
		{4, 40},
		{2, 20},
	}

	for _, it := range items {
		mh.Set(it.key, it.value)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].value < items[j].value
	})

	for i, expected := range items {
		it, ok := mh.Pop()
		if !ok {
			t.Fatalf("heap empty after %d items, want %d items", i, len(items))
		}
		if it.Key != expected.key || it.Priority != expected.value {
			t.Errorf("Pop() %d = (%d,%d), want (%d,%d)",
				i, it.Key, it.Priority, expected.key, expected.value)
		}
	}

	if _, ok := mh.Pop(); ok {
		t.Error("Pop() on empty heap should return ok=false")
	}
}

func TestClear(t *testing.T) {
	mh := NewMapHeap[uint64]()
	for i := uint64(0); i < 10; i++ {
		mh.Set(i, i)
	}

	mh.Clear()

	if mh.Len() != 0 {
		t.Errorf("Len() = %d, want 0", mh.Len())
	}
	if mh.Contains(3) {
		t.Error("Contains(3) = true after Clear()")
	}

	mh.Set(7, 7)
	if it, _ := mh.Peek(); it.Key != 7 {
		t.Errorf("Peek().Key = %d, want 7", it.Key)
	}
}

// The client stores outstanding sequence numbers with key == priority,
// so the minimum is the lowest number not yet acknowledged.
func TestOutstandingMinimum(t *testing.T) {
	mh := NewMapHeap[uint64]()

	for seq := uint64(1); seq <= 1000; seq++ {
		mh.Set(seq, seq)
	}

	for seq := uint64(1); seq < 1000; seq += 2 {
		mh.Remove(seq)
	}

	if it, _ := mh.Peek(); it.Key != 2 {
		t.Errorf("Peek().Key = %d, want 2", it.Key)
	}

	mh.Remove(2)
	mh.Remove(4)
	if it, _ := mh.Peek(); it.Key != 6 {
		t.Errorf("Peek().Key = %d, want 6", it.Key)
	}

	if mh.Len() != 498 {
		t.Errorf("Len() = %d, want 498", mh.Len())
	}
}

func TestIsReservedKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"[[keepalive-reserved-path]]", true},
		{"[[]]", true},
		{"[[x", false},
		{"x]]", false},
		{"a[[b]]", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsReservedKey(tt.key); got != tt.want {
				t.Errorf("IsReservedKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
