package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestBindingAllocatorGrows(t *testing.T) {
	dev := newFakeDevice()
	a, err := NewBindingAllocator(dev, 1000, 2, 8, 2)
	if err != nil {
		t.Fatalf("NewBindingAllocator:\nhave %v\nwant nil", err)
	}
	defer a.Clean()

	for i := 0; i < 1000; i++ {
		if _, err := a.Allocate(nil, metadata.SetTextures); err != nil {
			t.Fatalf("BindingAllocator.Allocate #%d:\nhave %v\nwant nil", i, err)
		}
	}
	if n := a.PoolCount(); n != 1 {
		t.Fatalf("BindingAllocator.PoolCount:\nhave %d\nwant 1", n)
	}
	s, err := a.Allocate(nil, metadata.SetTextures)
	if err != nil {
		t.Fatalf("BindingAllocator.Allocate #1000:\nhave %v\nwant nil", err)
	}
	if n := a.PoolCount(); n != 2 || s.pool == a.pools[0].id {
		t.Fatalf("BindingAllocator.PoolCount:\nhave %d\nwant 2", n)
	}
	if g := s.Group(); g != metadata.SetTextures {
		t.Fatalf("BindingSet.Group:\nhave %d\nwant %d", g, metadata.SetTextures)
	}
	for i := 0; i < 999; i++ {
		if _, err := a.Allocate(nil, metadata.SetTextures); err != nil {
			t.Fatalf("BindingAllocator.Allocate #%d:\nhave %v\nwant nil", 1001+i, err)
		}
	}
	if _, err := a.Allocate(nil, metadata.SetTextures); !errors.Is(err, core.ErrBindingPoolLimit) {
		t.Fatalf("BindingAllocator.Allocate past limit:\nhave %v\nwant %v", err, core.ErrBindingPoolLimit)
	}
}

func TestBindingAllocatorRecycle(t *testing.T) {
	dev := newFakeDevice()
	a, err := NewBindingAllocator(dev, 2, 1, 8, 2)
	if err != nil {
		t.Fatalf("NewBindingAllocator:\nhave %v\nwant nil", err)
	}
	defer a.Clean()

	s1, _ := a.Allocate(nil, metadata.SetUniforms)
	s2, _ := a.Allocate(nil, metadata.SetUniforms)
	a.Free(s1)
	a.Free(s2)

	// Freed sets may still be referenced by the frames in flight.
	a.SetFrame(1)
	if _, err := a.Allocate(nil, metadata.SetUniforms); !errors.Is(err, core.ErrBindingPoolLimit) {
		t.Fatalf("BindingAllocator.Allocate at frame 1:\nhave %v\nwant %v", err, core.ErrBindingPoolLimit)
	}
	a.SetFrame(2)
	if _, err := a.Allocate(nil, metadata.SetUniforms); err != nil {
		t.Fatalf("BindingAllocator.Allocate at frame 2:\nhave %v\nwant nil", err)
	}
	if r := a.pools[0].native.(*fakeBindingPool).resets; r != 1 {
		t.Fatalf("binding pool resets:\nhave %d\nwant 1", r)
	}
	if n := a.PoolCount(); n != 1 {
		t.Fatalf("BindingAllocator.PoolCount:\nhave %d\nwant 1", n)
	}
}

func TestBindingAllocatorNoRecycleWhileAllocated(t *testing.T) {
	dev := newFakeDevice()
	a, _ := NewBindingAllocator(dev, 1, 1, 8, 3)
	defer a.Clean()

	if _, err := a.Allocate(nil, metadata.SetBuffers); err != nil {
		t.Fatalf("BindingAllocator.Allocate:\nhave %v\nwant nil", err)
	}
	a.SetFrame(100)
	if _, err := a.Allocate(nil, metadata.SetBuffers); !errors.Is(err, core.ErrBindingPoolLimit) {
		t.Fatalf("BindingAllocator.Allocate:\nhave %v\nwant %v", err, core.ErrBindingPoolLimit)
	}
}

func TestBindingAllocatorFree(t *testing.T) {
	dev := newFakeDevice()
	a, _ := NewBindingAllocator(dev, 4, 1, 8, 2)
	defer a.Clean()

	s, _ := a.Allocate(nil, metadata.SetTextures)
	a.Free(s)
	a.Free(s)
	a.Free(nil)
	if n := a.pools[0].allocated; n != 0 {
		t.Fatalf("bindingPool.allocated after double free:\nhave %d\nwant 0", n)
	}

	var asserted bool
	a.assertf = func(cond bool, format string, args ...interface{}) bool {
		asserted = asserted || !cond
		return cond
	}
	a.Free(s)
	if !asserted {
		t.Fatal("BindingAllocator.Free: freeing twice did not assert")
	}
}

func TestBindingAllocatorUI(t *testing.T) {
	dev := newFakeDevice()
	a, _ := NewBindingAllocator(dev, 4, 1, 2, 2)
	defer a.Clean()

	for i := 0; i < 2; i++ {
		if _, err := a.AllocateUI(nil, metadata.SetTextures); err != nil {
			t.Fatalf("BindingAllocator.AllocateUI #%d:\nhave %v\nwant nil", i, err)
		}
	}
	if _, err := a.AllocateUI(nil, metadata.SetTextures); !errors.Is(err, core.ErrBindingPoolExhausted) {
		t.Fatalf("BindingAllocator.AllocateUI past capacity:\nhave %v\nwant %v", err, core.ErrBindingPoolExhausted)
	}
	// The UI pool does not count against the regular pools.
	if _, err := a.Allocate(nil, metadata.SetTextures); err != nil {
		t.Fatalf("BindingAllocator.Allocate:\nhave %v\nwant nil", err)
	}
}
