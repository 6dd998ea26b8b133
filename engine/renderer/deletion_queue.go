package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
)

// ResourceKind is the type of a native object awaiting destruction.
type ResourceKind uint8

const (
	ResourceImage ResourceKind = iota
	ResourceView
	ResourceSampler
	ResourceBuffer
	ResourcePipeline
	ResourceProgram
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceImage:
		return "image"
	case ResourceView:
		return "view"
	case ResourceSampler:
		return "sampler"
	case ResourceBuffer:
		return "buffer"
	case ResourcePipeline:
		return "pipeline"
	case ResourceProgram:
		return "program"
	}
	return "unknown"
}

type deletionRecord struct {
	kind  ResourceKind
	name  string
	res   driver.Destroyer
	frame uint64
}

// DeletionQueue holds native objects that may still be in use
// by frames in flight. A record pushed at frame F is destroyed
// by the first Process call with a frame of at least F+delay.
type DeletionQueue struct {
	records *containers.Queue[deletionRecord]
	delay   uint64
}

func NewDeletionQueue(framesInFlight int) *DeletionQueue {
	return &DeletionQueue{
		records: containers.NewQueue[deletionRecord](64),
		delay:   uint64(framesInFlight),
	}
}

// Push schedules res for destruction. A nil res is ignored.
func (q *DeletionQueue) Push(kind ResourceKind, name string, res driver.Destroyer, frame uint64) {
	if res == nil {
		return
	}
	q.records.PushBack(deletionRecord{kind: kind, name: name, res: res, frame: frame})
}

// Process destroys records old enough for the current frame.
// Records are pushed in frame order, so it stops at the first
// one that is still too young.
func (q *DeletionQueue) Process(current uint64) int {
	n := 0
	for !q.records.IsEmpty() {
		r, _ := q.records.Front()
		if r.frame+q.delay > current {
			break
		}
		q.records.PopFront()
		q.destroy(r)
		n++
	}
	return n
}

// Flush destroys every record. The GPU must be idle.
func (q *DeletionQueue) Flush() {
	for !q.records.IsEmpty() {
		r, _ := q.records.PopFront()
		q.destroy(r)
	}
}

func (q *DeletionQueue) Len() int {
	return q.records.Len()
}

func (q *DeletionQueue) destroy(r deletionRecord) {
	core.LogDebug("destroying %s '%s' pushed at frame %d", r.kind, r.name, r.frame)
	r.res.Destroy()
}
