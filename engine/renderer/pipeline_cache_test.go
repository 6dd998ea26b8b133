package renderer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func newCacheProgram(t *testing.T, dev *fakeDevice, id uint32) *Program {
	t.Helper()
	desc := testProgram("cached")
	gp, err := dev.NewProgram(&desc)
	if err != nil {
		t.Fatalf("fakeDevice.NewProgram:\nhave %v\nwant nil", err)
	}
	return &Program{ID: id, Name: desc.Name, desc: desc, gpu: gp}
}

func TestPipelineCacheGet(t *testing.T) {
	dev := newFakeDevice()
	dq := NewDeletionQueue(2)
	c := NewPipelineCache(dev, dq)
	defer c.Clean()

	prog := newCacheProgram(t, dev, 1)
	color := &metadata.AttachmentLayout{Colors: []metadata.Format{metadata.FormatRGBA8}, Depth: metadata.FormatDepth32F}
	hdr := &metadata.AttachmentLayout{Colors: []metadata.Format{metadata.FormatRGBA16F}, Depth: metadata.FormatDepth32F}
	s := gpuState{
		DrawState:   metadata.DefaultDrawState(),
		program:     prog,
		mesh:        &metadata.MeshLayout{},
		attachments: color,
	}

	p1 := c.Get(&s)
	if p2 := c.Get(&s); p1 == nil || p1 != p2 || dev.pipelines != 1 {
		t.Fatalf("PipelineCache.Get (hit):\nhave %d pipelines built\nwant 1", dev.pipelines)
	}
	// Same draw state hash, different attachments.
	s.attachments = hdr
	if p := c.Get(&s); p == p1 || dev.pipelines != 2 {
		t.Fatalf("PipelineCache.Get (attachments):\nhave %d pipelines built\nwant 2", dev.pipelines)
	}
	s.DepthTest = true
	c.Get(&s)
	s.attachments = color
	s.DepthTest = false
	if p := c.Get(&s); p != p1 || dev.pipelines != 3 {
		t.Fatalf("PipelineCache.Get (back to first):\nhave %d pipelines built\nwant 3", dev.pipelines)
	}
	if n := c.Count(); n != 3 {
		t.Fatalf("PipelineCache.Count:\nhave %d\nwant 3", n)
	}

	dev.failPipelines = true
	s.Blend = true
	if p := c.Get(&s); p != nil {
		t.Fatalf("PipelineCache.Get (failure):\nhave %v\nwant nil", p)
	}
	dev.failPipelines = false
	if p := c.Get(&s); p == nil || c.Count() != 4 {
		t.Fatalf("PipelineCache.Get after failure:\nhave %d cached\nwant 4", c.Count())
	}
}

func TestPipelineCacheFree(t *testing.T) {
	dev := newFakeDevice()
	dq := NewDeletionQueue(2)
	c := NewPipelineCache(dev, dq)
	defer c.Clean()

	prog := newCacheProgram(t, dev, 1)
	other := newCacheProgram(t, dev, 2)
	s := gpuState{DrawState: metadata.DefaultDrawState(), program: prog, mesh: &metadata.MeshLayout{}}
	c.Get(&s)
	s.CullFace = true
	c.Get(&s)
	s.program = other
	c.Get(&s)
	c.GetCompute(prog)

	c.FreePipelines(prog, 10)
	if n := c.Count(); n != 1 {
		t.Fatalf("PipelineCache.Count after FreePipelines:\nhave %d\nwant 1", n)
	}
	if n := dq.Process(11); n != 0 || dev.destroyed["pipeline"] != 0 {
		t.Fatalf("DeletionQueue.Process(11):\nhave %d destroyed\nwant 0", dev.destroyed["pipeline"])
	}
	if n := dq.Process(12); n != 3 || dev.destroyed["pipeline"] != 3 {
		t.Fatalf("DeletionQueue.Process(12):\nhave %d destroyed\nwant 3", dev.destroyed["pipeline"])
	}
}

func TestPipelineCacheLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.cache")

	dev := newFakeDevice()
	c := NewPipelineCache(dev, NewDeletionQueue(2))
	c.Load(path)
	if dev.cache != nil {
		t.Fatalf("PipelineCache.Load (missing):\nhave %q\nwant nil", dev.cache)
	}
	if err := c.Save(path); err != nil {
		t.Fatalf("PipelineCache.Save:\nhave %v\nwant nil", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile:\nhave %v\nwant nil", err)
	}

	dev2 := newFakeDevice()
	NewPipelineCache(dev2, NewDeletionQueue(2)).Load(path)
	if !bytes.Equal(dev2.cache, data) {
		t.Fatalf("PipelineCache.Load:\nhave %q\nwant %q", dev2.cache, data)
	}

	dev3 := newFakeDevice()
	dev3.loadErr = errors.New("incompatible")
	NewPipelineCache(dev3, NewDeletionQueue(2)).Load(path)
	if dev3.cache != nil {
		t.Fatalf("PipelineCache.Load (incompatible):\nhave %q\nwant nil", dev3.cache)
	}

	if err := c.Save(""); err != nil {
		t.Fatalf("PipelineCache.Save (disabled):\nhave %v\nwant nil", err)
	}
}
