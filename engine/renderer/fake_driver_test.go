package renderer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// fakeDevice is a driver.Device that records what is created,
// destroyed and recorded. Copies run when submitted.
type fakeDevice struct {
	limits driver.Limits

	failPipelines bool
	// NewSampler fails once this many samplers exist, when not zero.
	samplerLimit int
	pipelines    int
	swapchains   int
	submits      int
	waitIdles    int
	// Semaphore waited on by each submission, nil for none.
	waits     []driver.Semaphore
	created   map[string]int
	destroyed map[string]int
	log       []string

	acquireErrs []error
	presentErrs []error

	cache   []byte
	loadErr error

	clock   uint64
	samples uint64
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		limits: driver.Limits{
			TimestampPeriod:     2,
			MinUniformAlignment: 256,
			MaxAnisotropy:       16,
		},
		created:   make(map[string]int),
		destroyed: make(map[string]int),
		samples:   42,
	}
}

// count returns how many times op was recorded.
func (d *fakeDevice) count(op string) int {
	n := 0
	for _, s := range d.log {
		if s == op {
			n++
		}
	}
	return n
}

// alive returns how many objects of kind are not destroyed.
func (d *fakeDevice) alive(kind string) int {
	return d.created[kind] - d.destroyed[kind]
}

type fakeObject struct {
	dev       *fakeDevice
	kind      string
	destroyed bool
}

func (d *fakeDevice) object(kind string) fakeObject {
	d.created[kind]++
	return fakeObject{dev: d, kind: kind}
}

func (o *fakeObject) Destroy() {
	if o.destroyed {
		panic(fmt.Sprintf("%s destroyed twice", o.kind))
	}
	o.destroyed = true
	o.dev.destroyed[o.kind]++
}

func (d *fakeDevice) Destroy()                     {}
func (d *fakeDevice) Name() string                 { return "fake" }
func (d *fakeDevice) Limits() driver.Limits        { return d.limits }
func (d *fakeDevice) DepthFormat() metadata.Format { return metadata.FormatDepth32F }

type fakeProgram struct {
	fakeObject
	desc metadata.ProgramDesc
}

func (p *fakeProgram) Name() string                    { return p.desc.Name }
func (p *fakeProgram) Layout() *metadata.ProgramLayout { return &p.desc.Layout }
func (p *fakeProgram) IsCompute() bool                 { return p.desc.IsCompute() }

func (d *fakeDevice) NewProgram(desc *metadata.ProgramDesc) (driver.Program, error) {
	if len(desc.Modules) == 0 {
		return nil, errors.New("no shader module")
	}
	return &fakeProgram{fakeObject: d.object("program"), desc: *desc}, nil
}

type fakePipeline struct {
	fakeObject
	desc driver.GraphicsPipelineDesc
}

func (d *fakeDevice) NewGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	if d.failPipelines {
		return nil, errors.New("fake build failure")
	}
	d.pipelines++
	return &fakePipeline{fakeObject: d.object("pipeline"), desc: *desc}, nil
}

func (d *fakeDevice) NewComputePipeline(prog driver.Program) (driver.Pipeline, error) {
	if d.failPipelines {
		return nil, errors.New("fake build failure")
	}
	d.pipelines++
	return &fakePipeline{fakeObject: d.object("pipeline")}, nil
}

type fakeBindingPool struct {
	fakeObject
	capacity int
	used     int
	resets   int
}

type fakeBindingSet struct {
	prog   driver.Program
	set    uint32
	writes []driver.BindingWrite
}

func (s *fakeBindingSet) Write(writes []driver.BindingWrite) {
	s.writes = append(s.writes[:0], writes...)
}

func (d *fakeDevice) NewBindingPool(capacity int) (driver.BindingPool, error) {
	return &fakeBindingPool{fakeObject: d.object("binding pool"), capacity: capacity}, nil
}

func (p *fakeBindingPool) Allocate(prog driver.Program, set uint32) (driver.BindingSet, error) {
	if p.used >= p.capacity {
		return nil, core.ErrBindingPoolExhausted
	}
	p.used++
	return &fakeBindingSet{prog: prog, set: set}, nil
}

func (p *fakeBindingPool) Reset() error {
	p.used = 0
	p.resets++
	return nil
}

type fakeQueryPool struct {
	fakeObject
	results []uint64
}

func (d *fakeDevice) NewQueryPool(kind metadata.QueryPoolKind, count uint32) (driver.QueryPool, error) {
	return &fakeQueryPool{fakeObject: d.object("query pool"), results: make([]uint64, count)}, nil
}

func (p *fakeQueryPool) Results(first, count uint32, wait bool) ([]uint64, error) {
	if int(first+count) > len(p.results) {
		return nil, errors.New("query range out of bounds")
	}
	return append([]uint64(nil), p.results[first:first+count]...), nil
}

type fakeImage struct {
	fakeObject
	desc metadata.TextureDesc
	// Texels by level and layer (or depth slice).
	data map[[2]uint32][]byte
}

func (d *fakeDevice) newImage(kind string, desc *metadata.TextureDesc) *fakeImage {
	return &fakeImage{fakeObject: d.object(kind), desc: *desc, data: make(map[[2]uint32][]byte)}
}

func (d *fakeDevice) NewImage(desc *metadata.TextureDesc) (driver.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.New("empty image")
	}
	return d.newImage("image", desc), nil
}

func (i *fakeImage) Desc() *metadata.TextureDesc { return &i.desc }

type fakeView struct {
	fakeObject
	image *fakeImage
	r     driver.ImageRange
}

func (i *fakeImage) NewView(r driver.ImageRange) (driver.ImageView, error) {
	return &fakeView{fakeObject: i.dev.object("view"), image: i, r: r}, nil
}

func (i *fakeImage) sliceSize(level uint32) int {
	w, h := i.desc.LevelSize(level)
	return int(w*h) * i.desc.Format.PixelSize()
}

func (i *fakeImage) slice(level, layer uint32) []byte {
	k := [2]uint32{level, layer}
	if i.data[k] == nil {
		i.data[k] = make([]byte, i.sliceSize(level))
	}
	return i.data[k]
}

type fakeSampler struct {
	fakeObject
	desc driver.SamplerDesc
}

func (d *fakeDevice) NewSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	if d.samplerLimit > 0 && d.alive("sampler") >= d.samplerLimit {
		return nil, errors.New("fake sampler limit")
	}
	return &fakeSampler{fakeObject: d.object("sampler"), desc: *desc}, nil
}

type fakeBuffer struct {
	fakeObject
	typ  metadata.BufferType
	data []byte
}

func (d *fakeDevice) NewBuffer(size uint64, typ metadata.BufferType) (driver.Buffer, error) {
	return &fakeBuffer{fakeObject: d.object("buffer"), typ: typ, data: make([]byte, size)}, nil
}

func (b *fakeBuffer) Size() uint64              { return uint64(len(b.data)) }
func (b *fakeBuffer) Type() metadata.BufferType { return b.typ }
func (b *fakeBuffer) Bytes() []byte             { return b.data }

type fakeFence struct {
	fakeObject
	signaled bool
}

func (d *fakeDevice) NewFence(signaled bool) (driver.Fence, error) {
	return &fakeFence{fakeObject: d.object("fence"), signaled: signaled}, nil
}

func (f *fakeFence) Wait() error {
	if !f.signaled {
		return errors.New("waiting on a fence that was never submitted")
	}
	return nil
}

func (f *fakeFence) Reset() error {
	f.signaled = false
	return nil
}

type fakeSemaphore struct {
	fakeObject
	signaled bool
}

func (d *fakeDevice) NewSemaphore() (driver.Semaphore, error) {
	return &fakeSemaphore{fakeObject: d.object("semaphore")}, nil
}

type fakeSwapchain struct {
	fakeObject
	images        []driver.Image
	width, height uint32
	next          uint32
}

func (d *fakeDevice) NewSwapchain(win driver.Window, imageCount int, vsync bool, old driver.Swapchain) (driver.Swapchain, error) {
	w, h := win.FramebufferSize()
	if w <= 0 || h <= 0 {
		return nil, core.ErrNoSurface
	}
	d.swapchains++
	sc := &fakeSwapchain{fakeObject: d.object("swapchain"), width: uint32(w), height: uint32(h)}
	for i := 0; i < imageCount; i++ {
		sc.images = append(sc.images, d.newImage("swapchain image", &metadata.TextureDesc{
			Shape:  metadata.TextureShapeD2,
			Format: metadata.FormatBGRA8,
			Width:  uint32(w),
			Height: uint32(h),
			Depth:  1,
			Levels: 1,
			Usage:  metadata.TextureUsageAttachment,
		}))
	}
	return sc, nil
}

func (s *fakeSwapchain) Images() []driver.Image   { return s.images }
func (s *fakeSwapchain) Format() metadata.Format  { return metadata.FormatBGRA8 }
func (s *fakeSwapchain) Extent() (uint32, uint32) { return s.width, s.height }
func (s *fakeSwapchain) Present(_ uint32, wait driver.Semaphore) error {
	d := s.dev
	d.log = append(d.log, "Present")
	if wait != nil {
		wait.(*fakeSemaphore).signaled = false
	}
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		return err
	}
	return nil
}

func (s *fakeSwapchain) Acquire(signal driver.Semaphore) (uint32, error) {
	d := s.dev
	var err error
	if len(d.acquireErrs) > 0 {
		err = d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		if !errors.Is(err, core.ErrSuboptimal) {
			return 0, err
		}
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	signal.(*fakeSemaphore).signaled = true
	return idx, err
}

func (d *fakeDevice) Submit(cbs []driver.CmdBuffer, wait, signal driver.Semaphore, fence driver.Fence) error {
	if wait != nil {
		sem := wait.(*fakeSemaphore)
		if !sem.signaled {
			return errors.New("waiting on a semaphore that is never signaled")
		}
		sem.signaled = false
	}
	d.waits = append(d.waits, wait)
	for _, cb := range cbs {
		cmd := cb.(*fakeCmdBuffer)
		if cmd.recording {
			return errors.New("submitting a command buffer that is still recording")
		}
		for _, op := range cmd.ops {
			op()
		}
		cmd.ops = nil
	}
	if signal != nil {
		signal.(*fakeSemaphore).signaled = true
	}
	if fence != nil {
		fence.(*fakeFence).signaled = true
	}
	d.submits++
	return nil
}

func (d *fakeDevice) WaitIdle() { d.waitIdles++ }

func (d *fakeDevice) LoadPipelineCache(data []byte) error {
	if d.loadErr != nil {
		return d.loadErr
	}
	d.cache = append([]byte(nil), data...)
	return nil
}

func (d *fakeDevice) PipelineCacheData() ([]byte, error) {
	return []byte(fmt.Sprintf("fake cache: %d pipelines", d.pipelines)), nil
}

type fakeCmdBuffer struct {
	fakeObject
	recording bool
	inPass    bool
	ops       []func()
}

func (d *fakeDevice) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &fakeCmdBuffer{fakeObject: d.object("command buffer")}, nil
}

func (c *fakeCmdBuffer) record(op string) {
	if !c.recording {
		panic(op + " recorded outside of Begin/End")
	}
	c.dev.log = append(c.dev.log, op)
}

func (c *fakeCmdBuffer) Begin() error {
	if c.recording {
		return errors.New("command buffer already recording")
	}
	c.recording = true
	c.ops = nil
	return nil
}

func (c *fakeCmdBuffer) End() error {
	if !c.recording {
		return errors.New("command buffer not recording")
	}
	if c.inPass {
		return errors.New("command buffer ended inside a render pass")
	}
	c.recording = false
	return nil
}

func (c *fakeCmdBuffer) BeginPass(desc *driver.PassDesc) {
	c.record("BeginPass")
	c.inPass = true
}

func (c *fakeCmdBuffer) EndPass() {
	c.record("EndPass")
	c.inPass = false
}

func (c *fakeCmdBuffer) SetViewport(x, y, width, height float32) { c.record("SetViewport") }
func (c *fakeCmdBuffer) SetScissor(x, y int32, width, height uint32) {
	c.record("SetScissor")
}
func (c *fakeCmdBuffer) BindPipeline(p driver.Pipeline) { c.record("BindPipeline") }
func (c *fakeCmdBuffer) BindSets(prog driver.Program, first uint32, sets []driver.BindingSet, offsets []uint32) {
	c.record("BindSets")
}
func (c *fakeCmdBuffer) BindVertexBuffers(bufs []driver.Buffer, offsets []uint64) {
	c.record("BindVertexBuffers")
}
func (c *fakeCmdBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64) {
	c.record("BindIndexBuffer")
}
func (c *fakeCmdBuffer) Draw(vertexCount, instanceCount uint32)       { c.record("Draw") }
func (c *fakeCmdBuffer) DrawIndexed(indexCount, instanceCount uint32) { c.record("DrawIndexed") }
func (c *fakeCmdBuffer) Dispatch(x, y, z uint32) {
	if c.inPass {
		panic("dispatch inside a render pass")
	}
	c.record("Dispatch")
}

func (c *fakeCmdBuffer) Transition(img driver.Image, r driver.ImageRange, from, to driver.ImageLayout) {
	if from == to {
		panic("transition to the same layout")
	}
	c.record("Transition")
}

// regionSlices lists the level and layer (or depth slice) keys of r.
func regionSlices(img *fakeImage, r driver.Region) [][2]uint32 {
	var keys [][2]uint32
	if img.desc.Shape == metadata.TextureShapeD3 {
		for z := uint32(0); z < max(r.Depth, 1); z++ {
			keys = append(keys, [2]uint32{r.Level, uint32(r.Z) + z})
		}
		return keys
	}
	for l := uint32(0); l < max(r.Layers, 1); l++ {
		keys = append(keys, [2]uint32{r.Level, r.BaseLayer + l})
	}
	return keys
}

func (c *fakeCmdBuffer) CopyBufferToImage(src driver.Buffer, srcOffset uint64, dst driver.Image, r driver.Region) {
	c.record("CopyBufferToImage")
	b, img := src.(*fakeBuffer), dst.(*fakeImage)
	c.ops = append(c.ops, func() {
		off := int(srcOffset)
		for _, k := range regionSlices(img, r) {
			s := img.slice(k[0], k[1])
			off += copy(s, b.data[off:])
		}
	})
}

func (c *fakeCmdBuffer) CopyImageToBuffer(src driver.Image, r driver.Region, dst driver.Buffer, dstOffset uint64) {
	c.record("CopyImageToBuffer")
	img, b := src.(*fakeImage), dst.(*fakeBuffer)
	c.ops = append(c.ops, func() {
		off := int(dstOffset)
		for _, k := range regionSlices(img, r) {
			off += copy(b.data[off:], img.slice(k[0], k[1]))
		}
	})
}

func (c *fakeCmdBuffer) CopyBuffer(src driver.Buffer, srcOffset uint64, dst driver.Buffer, dstOffset, size uint64) {
	c.record("CopyBuffer")
	s, d := src.(*fakeBuffer), dst.(*fakeBuffer)
	c.ops = append(c.ops, func() {
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	})
}

// Blit samples the nearest texel, and only between formats of the
// same pixel size.
func (c *fakeCmdBuffer) Blit(src driver.Image, sr driver.Region, dst driver.Image, dr driver.Region, linear bool) {
	c.record("Blit")
	si, di := src.(*fakeImage), dst.(*fakeImage)
	c.ops = append(c.ops, func() {
		px := si.desc.Format.PixelSize()
		if px != di.desc.Format.PixelSize() {
			return
		}
		skeys, dkeys := regionSlices(si, sr), regionSlices(di, dr)
		for i := 0; i < min(len(skeys), len(dkeys)); i++ {
			s := si.slice(skeys[i][0], skeys[i][1])
			d := di.slice(dkeys[i][0], dkeys[i][1])
			for y := uint32(0); y < dr.Height; y++ {
				for x := uint32(0); x < dr.Width; x++ {
					sx, sy := x*sr.Width/dr.Width, y*sr.Height/dr.Height
					so := int(sy*sr.Width+sx) * px
					do := int(y*dr.Width+x) * px
					copy(d[do:do+px], s[so:so+px])
				}
			}
		}
	})
}

func (c *fakeCmdBuffer) ResetQueries(pool driver.QueryPool, first, count uint32) {
	c.record("ResetQueries")
	p := pool.(*fakeQueryPool)
	c.ops = append(c.ops, func() {
		clear(p.results[first : first+count])
	})
}

func (c *fakeCmdBuffer) WriteTimestamp(pool driver.QueryPool, index uint32) {
	c.record("WriteTimestamp")
	p := pool.(*fakeQueryPool)
	c.ops = append(c.ops, func() {
		c.dev.clock += 100
		p.results[index] = c.dev.clock
	})
}

func (c *fakeCmdBuffer) BeginQuery(pool driver.QueryPool, index uint32) { c.record("BeginQuery") }

func (c *fakeCmdBuffer) EndQuery(pool driver.QueryPool, index uint32) {
	c.record("EndQuery")
	p := pool.(*fakeQueryPool)
	c.ops = append(c.ops, func() {
		p.results[index] = c.dev.samples
	})
}

// fakeWindow is a driver.Window whose size changes as WaitEvents
// consumes queued sizes.
type fakeWindow struct {
	width, height int
	pending       [][2]int
	waits         int
}

func (w *fakeWindow) FramebufferSize() (int, int) { return w.width, w.height }

func (w *fakeWindow) WaitEvents() {
	w.waits++
	if len(w.pending) > 0 {
		w.width, w.height = w.pending[0][0], w.pending[0][1]
		w.pending = w.pending[1:]
	}
}

func (w *fakeWindow) RequiredInstanceExtensions() []string { return nil }

func (w *fakeWindow) CreateSurface(interface{}) (uintptr, error) { return 1, nil }

func testConfig() core.RenderingConfig {
	cfg := core.DefaultRenderingConfig()
	cfg.PipelineCachePath = ""
	return cfg
}

// newTestContext returns a context on a fake device, set up with
// a window when win is not nil.
func newTestContext(t *testing.T, cfg core.RenderingConfig, win *fakeWindow) (*Context, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	ctx, err := NewContext(dev, cfg)
	if err != nil {
		t.Fatalf("NewContext:\nhave %v\nwant nil", err)
	}
	if win != nil {
		err = ctx.SetupWindow(win)
	} else {
		err = ctx.SetupHeadless()
	}
	if err != nil {
		t.Fatalf("Context.Setup:\nhave %v\nwant nil", err)
	}
	return ctx, dev
}

func testProgram(name string, bindings ...metadata.BindingSlot) metadata.ProgramDesc {
	return metadata.ProgramDesc{
		Name: name,
		Modules: []metadata.ShaderModule{
			{Stage: metadata.ShaderStageVertex, Code: []byte{3, 2, 35, 7}},
			{Stage: metadata.ShaderStageFragment, Code: []byte{3, 2, 35, 7}},
		},
		Layout: metadata.ProgramLayout{Bindings: bindings},
	}
}

func testComputeProgram(name string, bindings ...metadata.BindingSlot) metadata.ProgramDesc {
	return metadata.ProgramDesc{
		Name:    name,
		Modules: []metadata.ShaderModule{{Stage: metadata.ShaderStageCompute, Code: []byte{3, 2, 35, 7}}},
		Layout:  metadata.ProgramLayout{Bindings: bindings},
	}
}
