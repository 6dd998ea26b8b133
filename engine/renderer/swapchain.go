package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Acquire attempts before a frame is skipped.
const maxAcquireAttempts = 3

type frameSlot struct {
	imageAvailable driver.Semaphore
	frameFinished  driver.Semaphore
	fence          driver.Fence
	upload         driver.CmdBuffer
	render         driver.CmdBuffer
}

func (s *frameSlot) destroy() {
	for _, d := range []driver.Destroyer{s.upload, s.render, s.fence, s.frameFinished, s.imageAvailable} {
		if d != nil {
			d.Destroy()
		}
	}
}

// Swapchain owns the frames in flight and, when a window is
// present, the native swapchain and its depth buffer.
type Swapchain struct {
	ctx    *Context
	win    driver.Window
	native driver.Swapchain
	vsync  bool

	slots []frameSlot
	frame uint64

	backbuffers []*Framebuffer
	depth       *Texture
	imageIndex  uint32
	acquired    bool
	// The imageAvailable semaphore was already waited on by a flush.
	imageWaited bool
	recording   bool

	width, height uint32
	// Target of the next rebuild, zero for the window size.
	targetWidth, targetHeight uint32
	rebuild                   bool
	minimized                 bool

	// Number of native swapchains created.
	builds int
}

func newSwapchain(ctx *Context, win driver.Window) (*Swapchain, error) {
	s := &Swapchain{ctx: ctx, win: win, vsync: ctx.cfg.VSync}
	for i := 0; i < ctx.cfg.FramesInFlight; i++ {
		slot, err := s.newSlot()
		if err != nil {
			s.Clean()
			err = fmt.Errorf("unable to create frame %d: %w", i, err)
			core.LogError(err.Error())
			return nil, err
		}
		s.slots = append(s.slots, slot)
	}
	if err := s.beginRecording(); err != nil {
		s.Clean()
		return nil, err
	}
	if win != nil {
		w, h := s.windowSize()
		if err := s.build(w, h); err != nil {
			s.Clean()
			return nil, err
		}
		s.acquire()
	}
	return s, nil
}

func (s *Swapchain) newSlot() (slot frameSlot, err error) {
	dev := s.ctx.dev
	defer func() {
		if err != nil {
			slot.destroy()
		}
	}()
	if slot.imageAvailable, err = dev.NewSemaphore(); err != nil {
		return
	}
	if slot.frameFinished, err = dev.NewSemaphore(); err != nil {
		return
	}
	if slot.fence, err = dev.NewFence(true); err != nil {
		return
	}
	if slot.upload, err = dev.NewCmdBuffer(); err != nil {
		return
	}
	slot.render, err = dev.NewCmdBuffer()
	return
}

func (s *Swapchain) current() *frameSlot {
	return &s.slots[s.slot()]
}

func (s *Swapchain) slot() int {
	return int(s.frame % uint64(len(s.slots)))
}

// Frame is the index of the frame being recorded.
func (s *Swapchain) Frame() uint64 { return s.frame }

// Backbuffer is the framebuffer of the acquired image, or nil
// when headless or when the frame could not be acquired.
func (s *Swapchain) Backbuffer() *Framebuffer {
	if !s.acquired {
		return nil
	}
	return s.backbuffers[s.imageIndex]
}

func (s *Swapchain) Extent() (uint32, uint32) {
	return s.width, s.height
}

func (s *Swapchain) windowSize() (uint32, uint32) {
	w, h := s.win.FramebufferSize()
	return uint32(max(w, 0)), uint32(max(h, 0))
}

func (s *Swapchain) beginRecording() error {
	slot := s.current()
	if err := slot.upload.Begin(); err != nil {
		return err
	}
	if err := slot.render.Begin(); err != nil {
		return err
	}
	s.recording = true
	return nil
}

func (s *Swapchain) endRecording() error {
	slot := s.current()
	s.recording = false
	if err := slot.upload.End(); err != nil {
		return err
	}
	return slot.render.End()
}

// build creates the native swapchain and wraps its images.
func (s *Swapchain) build(width, height uint32) error {
	old := s.native
	native, err := s.ctx.dev.NewSwapchain(s.win, s.ctx.cfg.FramesInFlight+1, s.vsync, old)
	if old != nil {
		old.Destroy()
		s.native = nil
	}
	if err != nil {
		err = fmt.Errorf("unable to create swapchain (%dx%d): %w", width, height, err)
		core.LogError(err.Error())
		return err
	}
	s.native = native
	s.builds++
	s.width, s.height = native.Extent()

	depth := &Texture{TextureDesc: metadata.TextureDesc{
		Name:   "backbuffer depth",
		Shape:  metadata.TextureShapeD2,
		Format: s.ctx.dev.DepthFormat(),
		Width:  s.width,
		Height: s.height,
		Depth:  1,
		Levels: 1,
		Usage:  metadata.TextureUsageAttachment | metadata.TextureUsageSampled,
	}}
	if err := s.ctx.allocateTexture(depth); err != nil {
		return err
	}
	s.ctx.transition(s.current().upload, depth, 0, 1, driver.LayoutShaderRead)
	s.depth = depth

	for i, img := range native.Images() {
		color, err := s.ctx.wrapImage(fmt.Sprintf("backbuffer %d", i), img)
		if err != nil {
			return err
		}
		s.backbuffers = append(s.backbuffers, &Framebuffer{
			Name:       color.Name,
			Width:      s.width,
			Height:     s.height,
			Colors:     []*Texture{color},
			Depth:      depth,
			backbuffer: true,
		})
	}
	core.LogDebug("swapchain built: %dx%d, %d images", s.width, s.height, len(s.backbuffers))
	return nil
}

// release destroys the backbuffer wrappers right away. The GPU
// must be idle.
func (s *Swapchain) release() {
	for _, fb := range s.backbuffers {
		for _, t := range fb.Colors {
			s.ctx.destroyTexture(t)
		}
	}
	s.backbuffers = nil
	if s.depth != nil {
		s.ctx.destroyTexture(s.depth)
		s.depth = nil
	}
}

func (s *Swapchain) recreate() {
	w, h := s.targetWidth, s.targetHeight
	if w == 0 || h == 0 {
		w, h = s.windowSize()
	}
	s.ctx.dev.WaitIdle()
	s.release()
	if err := s.build(w, h); err != nil {
		core.LogError("swapchain rebuild failed: %s", err)
		return
	}
	s.rebuild = false
	s.targetWidth, s.targetHeight = 0, 0
}

// Resize requests a rebuild at the given size. It is applied
// when the next frame starts, and deferred while the size is
// zero.
func (s *Swapchain) Resize(width, height uint32) {
	if s.win == nil {
		return
	}
	if width == 0 || height == 0 {
		s.minimized = true
		return
	}
	if !s.minimized && !s.rebuild && width == s.width && height == s.height {
		return
	}
	s.minimized = false
	s.targetWidth, s.targetHeight = width, height
	s.rebuild = width != s.width || height != s.height || s.rebuild
}

// finishFrame submits the frame and presents its image.
func (s *Swapchain) finishFrame(present bool) {
	slot := s.current()
	if s.acquired {
		bb := s.backbuffers[s.imageIndex].Colors[0]
		s.ctx.transition(slot.render, bb, 0, 1, driver.LayoutPresent)
	}
	if err := s.endRecording(); err != nil {
		core.LogError("unable to end frame %d: %s", s.frame, err)
	}

	var signal driver.Semaphore
	if s.acquired {
		signal = slot.frameFinished
	}
	if err := s.ctx.dev.Submit([]driver.CmdBuffer{slot.upload, slot.render}, s.imageWait(), signal, slot.fence); err != nil {
		core.LogError("unable to submit frame %d: %s", s.frame, err)
	}

	if s.acquired && present {
		err := s.native.Present(s.imageIndex, slot.frameFinished)
		switch {
		case errors.Is(err, core.ErrOutOfDate), errors.Is(err, core.ErrSuboptimal):
			s.rebuild = true
		case err != nil:
			core.LogError("unable to present frame %d: %s", s.frame, err)
		}
	}
	s.acquired = false
}

// imageWait returns the semaphore a submission of the current
// frame waits on before writing the acquired image. It is
// returned once per acquire.
func (s *Swapchain) imageWait() driver.Semaphore {
	if !s.acquired || s.imageWaited {
		return nil
	}
	s.imageWaited = true
	return s.current().imageAvailable
}

// startFrame reopens the next frame slot and acquires an image.
func (s *Swapchain) startFrame() {
	s.frame++
	slot := s.current()
	if err := slot.fence.Wait(); err != nil {
		core.LogError("unable to wait for frame %d: %s", s.frame, err)
	}
	if err := slot.fence.Reset(); err != nil {
		core.LogError("unable to reset fence of frame %d: %s", s.frame, err)
	}
	if err := s.beginRecording(); err != nil {
		core.LogError("unable to begin frame %d: %s", s.frame, err)
	}
	if s.win == nil {
		return
	}
	for w, h := s.windowSize(); w == 0 || h == 0; w, h = s.windowSize() {
		s.win.WaitEvents()
	}
	if s.rebuild && !s.minimized {
		s.recreate()
	}
	s.acquire()
}

func (s *Swapchain) acquire() {
	slot := s.current()
	for i := 0; i < maxAcquireAttempts; i++ {
		idx, err := s.native.Acquire(slot.imageAvailable)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrSuboptimal):
			// The image is usable, rebuild after presenting it.
			s.rebuild = true
		case errors.Is(err, core.ErrOutOfDate):
			s.recreate()
			continue
		default:
			core.LogError("unable to acquire image for frame %d: %s", s.frame, err)
			return
		}
		s.imageIndex = idx
		s.acquired = true
		s.imageWaited = false
		return
	}
	core.LogError("skipping frame %d: swapchain out of date after %d attempts", s.frame, maxAcquireAttempts)
}

// Clean submits the pending frame, waits for the GPU and
// destroys every frame resource.
func (s *Swapchain) Clean() {
	if s.recording {
		s.finishFrame(false)
	}
	s.ctx.dev.WaitIdle()
	s.release()
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
	for i := range s.slots {
		s.slots[i].destroy()
	}
	s.slots = nil
}
