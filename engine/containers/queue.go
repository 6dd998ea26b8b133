package containers

import "errors"

var (
	ErrQueueEmpty = errors.New("queue is empty")
)

// Queue is a FIFO backed by a ring buffer that doubles when full.
type Queue[T any] struct {
	data       []T
	readIndex  int
	writeIndex int
	count      int
}

// Create a new Queue with room for size elements before growing.
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		data: make([]T, size),
	}
}

// PushBack adds an element at the back of the queue.
func (q *Queue[T]) PushBack(value T) {
	if q.count == len(q.data) {
		q.grow()
	}
	q.data[q.writeIndex] = value
	q.writeIndex = (q.writeIndex + 1) % len(q.data)
	q.count++
}

// PopFront removes and returns the front element.
func (q *Queue[T]) PopFront() (T, error) {
	var zero T
	if q.IsEmpty() {
		return zero, ErrQueueEmpty
	}
	value := q.data[q.readIndex]
	q.data[q.readIndex] = zero
	q.readIndex = (q.readIndex + 1) % len(q.data)
	q.count--
	return value, nil
}

// Front returns the front element without removing it.
func (q *Queue[T]) Front() (T, error) {
	if q.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return q.data[q.readIndex], nil
}

// At returns the i-th element from the front.
func (q *Queue[T]) At(i int) T {
	if i < 0 || i >= q.count {
		panic("containers: queue index out of range")
	}
	return q.data[(q.readIndex+i)%len(q.data)]
}

// RemoveFunc deletes every element for which match returns true,
// preserving the order of the others. It returns the removed elements.
func (q *Queue[T]) RemoveFunc(match func(T) bool) []T {
	var removed []T
	n := q.count
	kept := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v := q.At(i)
		if match(v) {
			removed = append(removed, v)
		} else {
			kept = append(kept, v)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	q.reset(kept)
	return removed
}

func (q *Queue[T]) Len() int {
	return q.count
}

// IsEmpty checks if the queue is empty
func (q *Queue[T]) IsEmpty() bool {
	return q.count == 0
}

func (q *Queue[T]) grow() {
	items := make([]T, q.count)
	for i := range items {
		items[i] = q.At(i)
	}
	q.data = make([]T, 2*len(q.data))
	copy(q.data, items)
	q.readIndex = 0
	q.writeIndex = q.count
}

func (q *Queue[T]) reset(items []T) {
	var zero T
	for i := range q.data {
		q.data[i] = zero
	}
	copy(q.data, items)
	q.readIndex = 0
	q.count = len(items)
	q.writeIndex = q.count % len(q.data)
}
