package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// AsyncTask identifies a pending texture readback.
// Zero is never a valid task.
type AsyncTask uint64

type readbackTask struct {
	id       AsyncTask
	name     string
	staging  driver.Buffer
	format   metadata.Format
	width    uint32
	height   uint32
	layers   uint32
	callback func([]Image)
	frame    uint64
}

// ReadbackQueue holds texture copies recorded into staging
// buffers, and hands the pixels to their callbacks once the
// frame that recorded them is known to be complete.
type ReadbackQueue struct {
	tasks     *containers.Queue[*readbackTask]
	deletions *DeletionQueue
	delay     uint64
	nextID    AsyncTask
}

func NewReadbackQueue(framesInFlight int, deletions *DeletionQueue) *ReadbackQueue {
	return &ReadbackQueue{
		tasks:     containers.NewQueue[*readbackTask](8),
		deletions: deletions,
		delay:     uint64(framesInFlight),
	}
}

func (q *ReadbackQueue) push(t *readbackTask) AsyncTask {
	q.nextID++
	t.id = q.nextID
	q.tasks.PushBack(t)
	return t.id
}

// Process completes every task recorded at least delay frames
// before current, in submission order.
func (q *ReadbackQueue) Process(current uint64) int {
	n := 0
	for !q.tasks.IsEmpty() {
		t, _ := q.tasks.Front()
		if t.frame+q.delay > current {
			break
		}
		q.tasks.PopFront()
		images := decodeImages(t.staging.Bytes(), t.format, t.width, t.height, t.layers)
		t.staging.Destroy()
		if t.callback != nil {
			t.callback(images)
		}
		n++
	}
	return n
}

// Cancel drops a pending task without calling its callback.
// The copy may still be executing, so its staging buffer goes
// through the deletion queue.
func (q *ReadbackQueue) Cancel(id AsyncTask, frame uint64) bool {
	removed := q.tasks.RemoveFunc(func(t *readbackTask) bool { return t.id == id })
	if len(removed) == 0 {
		core.LogWarn("async task %d is not pending", id)
		return false
	}
	for _, t := range removed {
		q.deletions.Push(ResourceBuffer, t.name, t.staging, frame)
	}
	return true
}

func (q *ReadbackQueue) Len() int {
	return q.tasks.Len()
}

// Clean drops every pending task. The GPU must be idle.
func (q *ReadbackQueue) Clean() {
	for !q.tasks.IsEmpty() {
		t, _ := q.tasks.PopFront()
		t.staging.Destroy()
	}
}

// decodeImages splits tightly packed layers into CPU images.
func decodeImages(data []byte, format metadata.Format, width, height, layers uint32) []Image {
	size := int(width*height) * format.PixelSize()
	images := make([]Image, 0, layers)
	for l := 0; l < int(layers); l++ {
		img := Image{Width: width, Height: height, Format: format, Pixels: make([]byte, size)}
		if off := l * size; off+size <= len(data) {
			copy(img.Pixels, data[off:off+size])
		}
		images = append(images, img)
	}
	return images
}
