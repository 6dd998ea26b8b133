package containers

import (
	"errors"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](2)
	if !q.IsEmpty() {
		t.Fatal("new queue should be empty")
	}
	if _, err := q.PopFront(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("PopFront on empty queue\nhave %v\nwant %v", err, ErrQueueEmpty)
	}
	// Force a couple of wrap-arounds and growths.
	next := 0
	for i := 0; i < 10; i++ {
		q.PushBack(i)
		if i%3 == 2 {
			v, err := q.PopFront()
			if err != nil || v != next {
				t.Fatalf("PopFront\nhave %d, %v\nwant %d, nil", v, err, next)
			}
			next++
		}
	}
	if f, _ := q.Front(); f != next {
		t.Fatalf("Front\nhave %d\nwant %d", f, next)
	}
	for !q.IsEmpty() {
		v, _ := q.PopFront()
		if v != next {
			t.Fatalf("PopFront\nhave %d\nwant %d", v, next)
		}
		next++
	}
	if next != 10 {
		t.Fatalf("drained %d elements, want 10", next)
	}
}

func TestQueueRemoveFunc(t *testing.T) {
	q := NewQueue[int](4)
	for i := 0; i < 7; i++ {
		q.PushBack(i)
	}
	_, _ = q.PopFront()
	removed := q.RemoveFunc(func(v int) bool { return v%2 == 0 })
	if len(removed) != 3 {
		t.Fatalf("RemoveFunc: removed\nhave %v\nwant [2 4 6]", removed)
	}
	want := []int{1, 3, 5}
	if q.Len() != len(want) {
		t.Fatalf("Len\nhave %d\nwant %d", q.Len(), len(want))
	}
	for i, w := range want {
		if v := q.At(i); v != w {
			t.Fatalf("At(%d)\nhave %d\nwant %d", i, v, w)
		}
	}
	// The queue keeps working after a removal.
	q.PushBack(9)
	if v := q.At(q.Len() - 1); v != 9 {
		t.Fatalf("PushBack after RemoveFunc\nhave %d\nwant 9", v)
	}
	if q.RemoveFunc(func(int) bool { return false }) != nil {
		t.Fatal("RemoveFunc with no match should return nil")
	}
}
