// Package renderer turns immediate-mode state setting, binding
// and drawing into recorded commands for an explicit GPU API.
package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type slotBinding struct {
	texture *Texture
	level   uint32
	buffer  *Buffer
	uniform *UniformBuffer
}

type bindingGroup struct {
	slots map[uint32]slotBinding
	set   *BindingSet
	// Resources changed since set was written.
	dirty bool
	// set is bound in the command buffer being recorded.
	bound   bool
	offsets []uint32
}

// Context is the rendering context. It is not safe for
// concurrent use.
type Context struct {
	id  uuid.UUID
	dev driver.Device
	cfg core.RenderingConfig

	deletions  *DeletionQueue
	readbacks  *ReadbackQueue
	pipelines  *PipelineCache
	bindings   *BindingAllocator
	queries    [2]*QueryAllocator
	samplers   *SamplerLibrary
	programIDs *core.IdentifierPool
	swapchain  *Swapchain

	defaultTexture *Texture

	state         gpuState
	bound         gpuState
	boundPipeline driver.Pipeline
	boundCompute  driver.Pipeline
	groups        [metadata.SetCount]bindingGroup
	viewport      viewport
	viewportDirty bool
	pass          *Framebuffer

	metrics     Metrics
	lastMetrics Metrics
}

// NewContext creates the rendering subsystems on dev.
// SetupWindow or SetupHeadless must be called before recording.
func NewContext(dev driver.Device, cfg core.RenderingConfig) (*Context, error) {
	if dev == nil {
		return nil, core.ErrNoDevice
	}
	cfg.Sanitize()
	c := &Context{
		id:         uuid.New(),
		dev:        dev,
		cfg:        cfg,
		programIDs: core.NewIdentifierPool(64),
		state:      gpuState{DrawState: metadata.DefaultDrawState()},
	}
	for i := range c.groups {
		c.groups[i].slots = make(map[uint32]slotBinding)
	}
	c.deletions = NewDeletionQueue(cfg.FramesInFlight)
	c.readbacks = NewReadbackQueue(cfg.FramesInFlight, c.deletions)
	c.pipelines = NewPipelineCache(dev, c.deletions)
	c.pipelines.Load(cfg.PipelineCachePath)

	var err error
	if c.bindings, err = NewBindingAllocator(dev, cfg.BindingPoolCapacity, cfg.MaxBindingPools, cfg.UIPoolCapacity, cfg.FramesInFlight); err != nil {
		return nil, err
	}
	c.bindings.assertf = c.assertf
	for _, kind := range []metadata.QueryPoolKind{metadata.QueryPoolTimestamp, metadata.QueryPoolOcclusion} {
		if c.queries[kind], err = NewQueryAllocator(dev, kind, uint32(cfg.QueryCount), cfg.FramesInFlight); err != nil {
			c.cleanSubsystems()
			return nil, err
		}
	}
	if c.samplers, err = NewSamplerLibrary(dev); err != nil {
		c.cleanSubsystems()
		return nil, err
	}
	core.LogInfo("rendering context %s created on '%s' (%d frames in flight)", c.id, dev.Name(), cfg.FramesInFlight)
	return c, nil
}

// SetupWindow creates the swapchain for win and starts the first frame.
func (c *Context) SetupWindow(win driver.Window) error {
	if win == nil {
		return fmt.Errorf("setup window: %w", core.ErrNoSurface)
	}
	return c.setup(win)
}

// SetupHeadless starts recording without a window. Frames are
// submitted and fenced but never presented.
func (c *Context) SetupHeadless() error {
	return c.setup(nil)
}

func (c *Context) setup(win driver.Window) error {
	if c.swapchain != nil {
		return fmt.Errorf("rendering context %s is already set up", c.id)
	}
	sc, err := newSwapchain(c, win)
	if err != nil {
		return err
	}
	c.swapchain = sc
	c.frameStarted()

	tex := NewTexture("default", 1, 1, metadata.FormatRGBA8)
	tex.Images = []Image{{Width: 1, Height: 1, Format: metadata.FormatRGBA8, Pixels: []byte{255, 255, 255, 255}}}
	c.SetupTexture(tex)
	if !tex.IsAllocated() {
		return fmt.Errorf("unable to create the default texture")
	}
	c.UploadTexture(tex)
	c.defaultTexture = tex
	return nil
}

// ID identifies the context in logs.
func (c *Context) ID() uuid.UUID { return c.id }

func (c *Context) Device() driver.Device { return c.dev }

// Frame is the index of the frame being recorded.
func (c *Context) Frame() uint64 {
	if c.swapchain == nil {
		return 0
	}
	return c.swapchain.frame
}

// Backbuffer is the framebuffer to render to for presentation,
// nil when there is none this frame.
func (c *Context) Backbuffer() *Framebuffer {
	if c.swapchain == nil {
		return nil
	}
	return c.swapchain.Backbuffer()
}

// Resize requests a swapchain rebuild at the given size.
func (c *Context) Resize(width, height uint32) {
	if c.swapchain != nil {
		c.swapchain.Resize(width, height)
	}
}

func (c *Context) renderCmd() driver.CmdBuffer {
	return c.swapchain.current().render
}

// uploadCmd is the command buffer for transfers into resources.
// Outside a render pass it is the render buffer, so transfers run
// in call order. Transfers requested inside a pass cannot be
// recorded there and go to the upload buffer, which is submitted
// ahead of the whole frame.
func (c *Context) uploadCmd() driver.CmdBuffer {
	if c.pass == nil {
		return c.swapchain.current().render
	}
	return c.swapchain.current().upload
}

func (c *Context) ready(op string) bool {
	if c.swapchain == nil || !c.swapchain.recording {
		core.LogError("%s: rendering context %s is not set up", op, c.id)
		return false
	}
	return true
}

// NextFrame submits the current frame, presents it and starts
// recording the next one.
func (c *Context) NextFrame() {
	if !c.ready("next frame") {
		return
	}
	if c.pass != nil {
		c.assertf(false, "frame ended inside render pass '%s'", c.pass.Name)
		c.EndRender()
	}
	c.swapchain.finishFrame(true)
	c.swapchain.startFrame()
	c.rollMetrics()
	c.frameStarted()
}

func (c *Context) frameStarted() {
	frame := c.Frame()
	slot := c.swapchain.slot()
	for _, q := range c.queries {
		q.Begin(c.renderCmd(), slot)
	}
	c.deletions.Process(frame)
	c.readbacks.Process(frame)
	c.bindings.SetFrame(frame)
	c.resetBound()
}

// Flush submits everything recorded so far, waits for the GPU
// to complete it and resumes recording.
func (c *Context) Flush() {
	if !c.ready("flush") {
		return
	}
	if !c.assertf(c.pass == nil, "flush inside render pass '%s'", c.passName()) {
		return
	}
	sc := c.swapchain
	slot := sc.current()
	if err := sc.endRecording(); err != nil {
		core.LogError("flush: %s", err)
	}
	// Commands recorded so far may write the acquired image.
	if err := c.dev.Submit([]driver.CmdBuffer{slot.upload, slot.render}, sc.imageWait(), nil, nil); err != nil {
		core.LogError("flush: unable to submit: %s", err)
	}
	c.dev.WaitIdle()
	if err := sc.beginRecording(); err != nil {
		core.LogError("flush: %s", err)
	}
	c.resetBound()
}

// resetBound forgets everything bound in the command buffer.
func (c *Context) resetBound() {
	c.bound = gpuState{}
	c.boundPipeline = nil
	c.boundCompute = nil
	for i := range c.groups {
		c.groups[i].bound = false
		c.groups[i].offsets = nil
	}
	c.viewportDirty = true
}

func (c *Context) passName() string {
	if c.pass == nil {
		return ""
	}
	return c.pass.Name
}

// Clean waits for the GPU, saves the pipeline cache and destroys
// every object owned by the context. Caller resources must have
// been cleaned before.
func (c *Context) Clean() {
	if c.swapchain != nil {
		if c.pass != nil {
			c.EndRender()
		}
		c.swapchain.finishFrame(false)
	}
	c.dev.WaitIdle()
	if c.defaultTexture != nil {
		c.CleanTexture(c.defaultTexture)
		c.defaultTexture = nil
	}
	for i := range c.groups {
		c.bindings.Free(c.groups[i].set)
		c.groups[i].set = nil
	}
	c.pipelines.Save(c.cfg.PipelineCachePath)
	c.cleanSubsystems()
	if c.swapchain != nil {
		c.swapchain.Clean()
		c.swapchain = nil
	}
	core.LogInfo("rendering context %s destroyed", c.id)
}

func (c *Context) cleanSubsystems() {
	c.readbacks.Clean()
	c.pipelines.Clean()
	if c.samplers != nil {
		c.samplers.Clean(c.deletions, c.Frame())
	}
	for _, q := range c.queries {
		if q != nil {
			q.Clean()
		}
	}
	c.bindings.Clean()
	c.deletions.Flush()
}

// assertf reports a programmer error. It panics when the context
// was created with debug enabled and logs otherwise.
func (c *Context) assertf(cond bool, format string, args ...interface{}) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	if c.cfg.Debug {
		panic(msg)
	}
	core.LogError(msg)
	return false
}

func logAssert(cond bool, format string, args ...interface{}) bool {
	if !cond {
		core.LogError(format, args...)
	}
	return cond
}
