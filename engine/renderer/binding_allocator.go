package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
)

type bindingPool struct {
	native driver.BindingPool
	id     int
	// Sets currently handed out.
	allocated int
	// Sets handed out since the last reset. Native pools do not
	// recycle individual sets.
	used     int
	lastUsed uint64
}

// BindingSet is a binding set handed out by a BindingAllocator.
type BindingSet struct {
	native driver.BindingSet
	pool   int
	group  uint32
}

func (s *BindingSet) Group() uint32 { return s.group }

// BindingAllocator hands out binding sets from a growing list
// of fixed-capacity pools. A pool is reset and recycled once
// all its sets are freed and it has not been used for delay
// frames, so the GPU can no longer reference them.
type BindingAllocator struct {
	dev      driver.Device
	capacity int
	maxPools int
	delay    uint64
	frame    uint64

	pools  []*bindingPool
	ui     *bindingPool
	nextID int
	live   map[*BindingSet]*bindingPool

	assertf func(cond bool, format string, args ...interface{}) bool
}

func NewBindingAllocator(dev driver.Device, capacity, maxPools, uiCapacity, framesInFlight int) (*BindingAllocator, error) {
	a := &BindingAllocator{
		dev:      dev,
		capacity: capacity,
		maxPools: maxPools,
		delay:    uint64(max(framesInFlight, 2)),
		live:     make(map[*BindingSet]*bindingPool),
		assertf:  logAssert,
	}
	ui, err := a.newPool(uiCapacity)
	if err != nil {
		return nil, err
	}
	a.ui = ui
	if _, err := a.appendPool(); err != nil {
		a.Clean()
		return nil, err
	}
	return a, nil
}

func (a *BindingAllocator) newPool(capacity int) (*bindingPool, error) {
	native, err := a.dev.NewBindingPool(capacity)
	if err != nil {
		err = fmt.Errorf("unable to create binding pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	p := &bindingPool{native: native, id: a.nextID, lastUsed: a.frame}
	a.nextID++
	return p, nil
}

func (a *BindingAllocator) appendPool() (*bindingPool, error) {
	p, err := a.newPool(a.capacity)
	if err != nil {
		return nil, err
	}
	a.pools = append(a.pools, p)
	return p, nil
}

// Allocate returns a set for group set of prog.
func (a *BindingAllocator) Allocate(prog driver.Program, set uint32) (*BindingSet, error) {
	if last := a.pools[len(a.pools)-1]; last.used < a.capacity {
		if s, err := a.allocateFrom(last, prog, set); err == nil {
			return s, nil
		} else if !errors.Is(err, core.ErrBindingPoolExhausted) {
			return nil, err
		}
		// The native pool ran out of a descriptor type first.
		last.used = a.capacity
	}

	if p := a.recyclablePool(); p != nil {
		if err := p.native.Reset(); err != nil {
			core.LogError("unable to reset binding pool %d: %s", p.id, err)
			return nil, err
		}
		p.used = 0
		return a.allocateFrom(p, prog, set)
	}

	if len(a.pools) >= a.maxPools {
		err := fmt.Errorf("%w (%d pools of %d sets)", core.ErrBindingPoolLimit, a.maxPools, a.capacity)
		core.LogError(err.Error())
		return nil, err
	}
	p, err := a.appendPool()
	if err != nil {
		return nil, err
	}
	return a.allocateFrom(p, prog, set)
}

// recyclablePool finds the first idle pool and moves it to the
// back of the list.
func (a *BindingAllocator) recyclablePool() *bindingPool {
	for i, p := range a.pools {
		if p.allocated != 0 || a.frame < p.lastUsed+a.delay {
			continue
		}
		a.pools = append(append(a.pools[:i:i], a.pools[i+1:]...), p)
		return p
	}
	return nil
}

func (a *BindingAllocator) allocateFrom(p *bindingPool, prog driver.Program, set uint32) (*BindingSet, error) {
	native, err := p.native.Allocate(prog, set)
	if err != nil {
		return nil, err
	}
	p.allocated++
	p.used++
	p.lastUsed = a.frame
	s := &BindingSet{native: native, pool: p.id, group: set}
	a.live[s] = p
	return s, nil
}

// AllocateUI returns a set from the long-lived UI pool, which is
// never reset.
func (a *BindingAllocator) AllocateUI(prog driver.Program, set uint32) (*BindingSet, error) {
	s, err := a.allocateFrom(a.ui, prog, set)
	if err != nil {
		err = fmt.Errorf("UI binding pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return s, nil
}

// Free returns s to its pool. The set must not be used in
// commands recorded after this call.
func (a *BindingAllocator) Free(s *BindingSet) {
	if s == nil {
		return
	}
	p, ok := a.live[s]
	if !a.assertf(ok, "freeing a binding set that is not allocated (pool %d)", s.pool) {
		return
	}
	delete(a.live, s)
	p.allocated--
	p.lastUsed = a.frame
}

// SetFrame updates the frame used to stamp and recycle pools.
func (a *BindingAllocator) SetFrame(frame uint64) {
	a.frame = frame
}

func (a *BindingAllocator) PoolCount() int {
	return len(a.pools)
}

// Clean destroys every pool. The GPU must be idle.
func (a *BindingAllocator) Clean() {
	for _, p := range a.pools {
		p.native.Destroy()
	}
	a.pools = nil
	if a.ui != nil {
		a.ui.native.Destroy()
		a.ui = nil
	}
	clear(a.live)
}
