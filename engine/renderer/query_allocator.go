package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// QueryAllocator hands out slots of one native query type. It
// keeps one pool per frame in flight: queries are written in
// the pool of the current frame and read from the pool of the
// previous one.
type QueryAllocator struct {
	kind  metadata.QueryPoolKind
	count uint32
	next  uint32
	pools []driver.QueryPool
	slot  int
}

func NewQueryAllocator(dev driver.Device, kind metadata.QueryPoolKind, count uint32, framesInFlight int) (*QueryAllocator, error) {
	a := &QueryAllocator{kind: kind, count: count}
	for i := 0; i < framesInFlight; i++ {
		p, err := dev.NewQueryPool(kind, count)
		if err != nil {
			a.Clean()
			err = fmt.Errorf("unable to create query pool: %w", err)
			core.LogError(err.Error())
			return nil, err
		}
		a.pools = append(a.pools, p)
	}
	return a, nil
}

// Allocate reserves slots consecutive slots and returns the
// first one.
func (a *QueryAllocator) Allocate(slots uint32) (uint32, error) {
	if a.next+slots > a.count {
		err := fmt.Errorf("%w (%d/%d used)", core.ErrQueryPoolFull, a.next, a.count)
		core.LogError(err.Error())
		return 0, err
	}
	first := a.next
	a.next += slots
	return first, nil
}

// Begin makes slot the current frame slot and resets its pool.
func (a *QueryAllocator) Begin(cmd driver.CmdBuffer, slot int) {
	a.slot = slot
	if a.next > 0 {
		cmd.ResetQueries(a.pools[slot], 0, a.next)
	}
}

// Current is the pool written by the frame being recorded.
func (a *QueryAllocator) Current() driver.QueryPool {
	return a.pools[a.slot]
}

// Previous is the pool written by the last submitted frame.
func (a *QueryAllocator) Previous() driver.QueryPool {
	return a.pools[(a.slot+len(a.pools)-1)%len(a.pools)]
}

func (a *QueryAllocator) Clean() {
	for _, p := range a.pools {
		p.Destroy()
	}
	a.pools = nil
}

// Query measures GPU work between Begin and End.
// Its value is available one frame later.
type Query struct {
	ctx   *Context
	kind  metadata.QueryKind
	first uint32
	// Frame of the last End, so that reads never wait on a
	// pool slot that was not written.
	ended   uint64
	running bool
	value   uint64
	valid   bool
}

// NewQuery allocates a query, or returns nil when its pool is
// full.
func (c *Context) NewQuery(kind metadata.QueryKind) *Query {
	a := c.queries[kind.Pool()]
	if a == nil {
		core.LogError("query kind %s is not supported", kind)
		return nil
	}
	if !c.assertf(c.pass == nil, "queries must be created outside of a render pass") {
		return nil
	}
	first, err := a.Allocate(kind.Slots())
	if err != nil {
		return nil
	}
	// Other frame pools reset the new range when their slot reopens.
	c.renderCmd().ResetQueries(a.Current(), first, kind.Slots())
	return &Query{ctx: c, kind: kind, first: first}
}

func (q *Query) Begin() {
	if !q.ctx.assertf(!q.running, "%s query begun twice", q.kind) {
		return
	}
	a := q.ctx.queries[q.kind.Pool()]
	cmd := q.ctx.renderCmd()
	if q.kind == metadata.QueryTimeElapsed {
		cmd.WriteTimestamp(a.Current(), q.first)
	} else {
		cmd.BeginQuery(a.Current(), q.first)
	}
	q.running = true
}

func (q *Query) End() {
	if !q.ctx.assertf(q.running, "%s query ended before being begun", q.kind) {
		return
	}
	a := q.ctx.queries[q.kind.Pool()]
	cmd := q.ctx.renderCmd()
	if q.kind == metadata.QueryTimeElapsed {
		cmd.WriteTimestamp(a.Current(), q.first+1)
	} else {
		cmd.EndQuery(a.Current(), q.first)
	}
	q.running = false
	q.ended = q.ctx.Frame()
	q.valid = false
}

// Value returns the result of the query as ended in the previous
// frame: nanoseconds for TimeElapsed, a sample count for
// SamplesDrawn, 0 or 1 for AnyDrawn. It returns the last known
// value when the previous frame did not run the query.
func (q *Query) Value() uint64 {
	frame := q.ctx.Frame()
	if q.valid || frame == 0 || q.ended != frame-1 {
		return q.value
	}
	a := q.ctx.queries[q.kind.Pool()]
	res, err := a.Previous().Results(q.first, q.kind.Slots(), true)
	if err != nil || len(res) < int(q.kind.Slots()) {
		core.LogError("unable to read %s query: %v", q.kind, err)
		return q.value
	}
	switch q.kind {
	case metadata.QueryTimeElapsed:
		period := float64(q.ctx.dev.Limits().TimestampPeriod)
		q.value = uint64(float64(res[1]-res[0]) * period)
	case metadata.QueryAnyDrawn:
		q.value = 0
		if res[0] != 0 {
			q.value = 1
		}
	default:
		q.value = res[0]
	}
	q.valid = true
	return q.value
}
