package renderer

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// restingLayout is the layout a texture is left in between
// commands, so that recording order does not matter.
func restingLayout(t *Texture) driver.ImageLayout {
	if !t.gpu.owned {
		return driver.LayoutPresent
	}
	return driver.LayoutShaderRead
}

// transition moves levels [base, base+count) of t to layout,
// one barrier per run of levels sharing a layout.
func (c *Context) transition(cmd driver.CmdBuffer, t *Texture, base, count uint32, to driver.ImageLayout) {
	g := t.gpu
	end := min(base+count, uint32(len(g.layouts)))
	for l := base; l < end; {
		from := g.layouts[l]
		run := l + 1
		for run < end && g.layouts[run] == from {
			run++
		}
		if from != to {
			cmd.Transition(g.image, driver.ImageRange{BaseLevel: l, Levels: run - l, BaseLayer: 0, Layers: t.Layers()}, from, to)
			for i := l; i < run; i++ {
				g.layouts[i] = to
			}
		}
		l = run
	}
}

func (c *Context) allocateTexture(t *Texture) error {
	t.Levels = max(t.Levels, 1)
	t.Depth = max(t.Depth, 1)
	if t.Shape == 0 {
		t.Shape = metadata.TextureShapeD2
	}
	if t.Usage == 0 {
		t.Usage = metadata.TextureUsageSampled
	}
	if t.Levels > math.MipCount(t.Width, t.Height) {
		t.Levels = math.MipCount(t.Width, t.Height)
	}
	img, err := c.dev.NewImage(&t.TextureDesc)
	if err != nil {
		err = fmt.Errorf("unable to create image for texture '%s': %w", t.Name, err)
		core.LogError(err.Error())
		return err
	}
	g := &gpuTexture{image: img, owned: true}
	if err := c.createViews(t, g); err != nil {
		c.destroyGPUTexture(g)
		return err
	}
	g.sampler = c.samplers.Get(t.Filter, t.Wrap)
	t.gpu = g
	return nil
}

// wrapImage returns a texture for an image it does not own.
func (c *Context) wrapImage(name string, img driver.Image) (*Texture, error) {
	t := &Texture{TextureDesc: *img.Desc()}
	t.Name = name
	g := &gpuTexture{image: img}
	if err := c.createViews(t, g); err != nil {
		c.destroyGPUTexture(g)
		return nil, err
	}
	t.gpu = g
	return t, nil
}

func (c *Context) createViews(t *Texture, g *gpuTexture) error {
	layers := t.Layers()
	g.layouts = make([]driver.ImageLayout, t.Levels)
	var err error
	if g.view, err = g.image.NewView(driver.ImageRange{Levels: t.Levels, Layers: layers}); err != nil {
		return fmt.Errorf("unable to create view for texture '%s': %w", t.Name, err)
	}
	perLayer := t.Usage&(metadata.TextureUsageAttachment|metadata.TextureUsageStorage) != 0
	for l := uint32(0); l < t.Levels; l++ {
		v, err := g.image.NewView(driver.ImageRange{BaseLevel: l, Levels: 1, Layers: layers})
		if err != nil {
			return fmt.Errorf("unable to create level %d view for texture '%s': %w", l, t.Name, err)
		}
		g.levelViews = append(g.levelViews, v)
		if !perLayer {
			continue
		}
		var views []driver.ImageView
		for layer := uint32(0); layer < layers; layer++ {
			v, err := g.image.NewView(driver.ImageRange{BaseLevel: l, Levels: 1, BaseLayer: layer, Layers: 1})
			if err != nil {
				g.layerViews = append(g.layerViews, views)
				return fmt.Errorf("unable to create view %d/%d for texture '%s': %w", l, layer, t.Name, err)
			}
			views = append(views, v)
		}
		g.layerViews = append(g.layerViews, views)
	}
	return nil
}

// destroyGPUTexture destroys every native object right away.
func (c *Context) destroyGPUTexture(g *gpuTexture) {
	for _, views := range g.layerViews {
		for _, v := range views {
			v.Destroy()
		}
	}
	for _, v := range g.levelViews {
		v.Destroy()
	}
	if g.view != nil {
		g.view.Destroy()
	}
	if g.owned {
		g.image.Destroy()
	}
}

// destroyTexture is CleanTexture for when the GPU is idle.
func (c *Context) destroyTexture(t *Texture) {
	if t.gpu != nil {
		c.destroyGPUTexture(t.gpu)
		t.gpu = nil
	}
}

// SetupTexture allocates t on the GPU. The CPU images are not
// uploaded.
func (c *Context) SetupTexture(t *Texture) {
	if !c.ready("setup texture") {
		return
	}
	if t.gpu != nil {
		c.CleanTexture(t)
	}
	if err := c.allocateTexture(t); err != nil {
		return
	}
	c.transition(c.uploadCmd(), t, 0, t.Levels, driver.LayoutShaderRead)
}

// UploadTexture copies the CPU images of t to the GPU. Images in
// another format than the texture go through an intermediate
// image and are converted by a blit.
func (c *Context) UploadTexture(t *Texture) {
	if !c.ready("upload texture") {
		return
	}
	if !t.IsAllocated() {
		core.LogError("cannot upload texture '%s': not set up", t.Name)
		return
	}
	cmd := c.uploadCmd()
	frame := c.Frame()
	index := 0
	for level := uint32(0); level < t.Levels; level++ {
		w, h := t.LevelSize(level)
		for sub := uint32(0); sub < t.subresources(level); sub++ {
			if index >= len(t.Images) {
				break
			}
			img := &t.Images[index]
			index++
			if img.Width != w || img.Height != h || len(img.Pixels) < int(w*h)*img.Format.PixelSize() {
				core.LogError("texture '%s': image %d/%d is %dx%d, expected %dx%d", t.Name, level, sub, img.Width, img.Height, w, h)
				continue
			}
			staging, err := c.newStaging(img.Pixels, metadata.BufferCPUToGPU)
			if err != nil {
				return
			}
			c.deletions.Push(ResourceBuffer, t.Name, staging, frame)

			dst := driver.Region{Level: level, BaseLayer: sub, Layers: 1, Width: w, Height: h, Depth: 1}
			if t.Shape == metadata.TextureShapeD3 {
				dst.BaseLayer, dst.Z = 0, int32(sub)
			}
			c.transition(cmd, t, level, 1, driver.LayoutTransferDst)
			if img.Format == t.Format {
				cmd.CopyBufferToImage(staging, 0, t.gpu.image, dst)
				continue
			}
			inter, err := c.dev.NewImage(&metadata.TextureDesc{
				Name:   t.Name + " upload",
				Shape:  metadata.TextureShapeD2,
				Format: img.Format,
				Width:  w,
				Height: h,
				Depth:  1,
				Levels: 1,
				Usage:  metadata.TextureUsageSampled,
			})
			if err != nil {
				core.LogError("texture '%s': unable to create %s upload image: %s", t.Name, img.Format, err)
				continue
			}
			c.deletions.Push(ResourceImage, t.Name, inter, frame)
			full := driver.ImageRange{Levels: 1, Layers: 1}
			src := driver.Region{Layers: 1, Width: w, Height: h, Depth: 1}
			cmd.Transition(inter, full, driver.LayoutUndefined, driver.LayoutTransferDst)
			cmd.CopyBufferToImage(staging, 0, inter, src)
			cmd.Transition(inter, full, driver.LayoutTransferDst, driver.LayoutTransferSrc)
			cmd.Blit(inter, src, t.gpu.image, dst, false)
		}
	}
	c.transition(cmd, t, 0, t.Levels, restingLayout(t))
	c.metrics.Uploads++
}

func (c *Context) newStaging(data []byte, typ metadata.BufferType) (driver.Buffer, error) {
	buf, err := c.dev.NewBuffer(uint64(len(data)), typ)
	if err != nil {
		err = fmt.Errorf("unable to create %d bytes %s buffer: %w", len(data), typ, err)
		core.LogError(err.Error())
		return nil, err
	}
	copy(buf.Bytes(), data)
	return buf, nil
}

// recordReadback records the copy of level of t into a new
// readback buffer.
func (c *Context) recordReadback(t *Texture, level uint32) (driver.Buffer, uint32, bool) {
	if !c.ready("download texture") {
		return nil, 0, false
	}
	if !t.IsAllocated() || level >= t.Levels {
		core.LogError("cannot download level %d of texture '%s'", level, t.Name)
		return nil, 0, false
	}
	if !c.assertf(c.pass == nil, "texture '%s' downloaded inside render pass '%s'", t.Name, c.passName()) {
		return nil, 0, false
	}
	w, h := t.LevelSize(level)
	n := t.subresources(level)
	size := uint64(w*h*n) * uint64(t.Format.PixelSize())
	staging, err := c.dev.NewBuffer(size, metadata.BufferGPUToCPU)
	if err != nil {
		core.LogError("texture '%s': unable to create readback buffer: %s", t.Name, err)
		return nil, 0, false
	}
	r := driver.Region{Level: level, Layers: n, Width: w, Height: h, Depth: 1}
	if t.Shape == metadata.TextureShapeD3 {
		r.Layers, r.Depth = 1, n
	}
	cmd := c.renderCmd()
	c.transition(cmd, t, level, 1, driver.LayoutTransferSrc)
	cmd.CopyImageToBuffer(t.gpu.image, r, staging, 0)
	c.transition(cmd, t, level, 1, restingLayout(t))
	c.metrics.Downloads++
	return staging, n, true
}

// DownloadTexture reads back level of t, one image per layer.
// It waits for the GPU.
func (c *Context) DownloadTexture(t *Texture, level uint32) []Image {
	staging, n, ok := c.recordReadback(t, level)
	if !ok {
		return nil
	}
	c.Flush()
	w, h := t.LevelSize(level)
	images := decodeImages(staging.Bytes(), t.Format, w, h, n)
	staging.Destroy()
	return images
}

// DownloadTextureAsync records the readback of level of t and
// calls callback with one image per layer once the GPU is done,
// during a later NextFrame. It returns 0 on failure.
func (c *Context) DownloadTextureAsync(t *Texture, level uint32, callback func([]Image)) AsyncTask {
	staging, n, ok := c.recordReadback(t, level)
	if !ok {
		return 0
	}
	w, h := t.LevelSize(level)
	return c.readbacks.push(&readbackTask{
		name:     t.Name,
		staging:  staging,
		format:   t.Format,
		width:    w,
		height:   h,
		layers:   n,
		callback: callback,
		frame:    c.Frame(),
	})
}

// CancelAsync drops a pending readback. Its callback is never
// called.
func (c *Context) CancelAsync(task AsyncTask) bool {
	return c.readbacks.Cancel(task, c.Frame())
}

// GenerateMipmaps fills levels 1 and up of t by successive
// linear downscales of level 0.
func (c *Context) GenerateMipmaps(t *Texture) {
	if !c.ready("generate mipmaps") || !t.IsAllocated() {
		return
	}
	if !c.assertf(c.pass == nil, "mipmaps of '%s' generated inside render pass '%s'", t.Name, c.passName()) {
		return
	}
	if t.Levels < 2 {
		return
	}
	cmd := c.renderCmd()
	layers := t.Layers()
	c.transition(cmd, t, 0, 1, driver.LayoutTransferSrc)
	for l := uint32(1); l < t.Levels; l++ {
		sw, sh := t.LevelSize(l - 1)
		dw, dh := t.LevelSize(l)
		c.transition(cmd, t, l, 1, driver.LayoutTransferDst)
		cmd.Blit(t.gpu.image,
			driver.Region{Level: l - 1, Layers: layers, Width: sw, Height: sh, Depth: t.LevelDepth(l - 1)},
			t.gpu.image,
			driver.Region{Level: l, Layers: layers, Width: dw, Height: dh, Depth: t.LevelDepth(l)},
			true)
		c.transition(cmd, t, l, 1, driver.LayoutTransferSrc)
	}
	c.transition(cmd, t, 0, t.Levels, restingLayout(t))
	c.metrics.Blits += int(t.Levels - 1)
}

// BlitRegion selects a mip level and a range of layers of a
// texture. Zero Layers means every layer from BaseLayer.
type BlitRegion struct {
	Level     uint32
	BaseLayer uint32
	Layers    uint32
}

func (r BlitRegion) layers(t *Texture) (uint32, bool) {
	if r.Level >= t.Levels || r.BaseLayer >= t.Layers() {
		return 0, false
	}
	n := r.Layers
	if n == 0 {
		n = t.Layers() - r.BaseLayer
	}
	return n, r.BaseLayer+n <= t.Layers()
}

// Blit copies a level and layer range of src into dst, scaling
// to fit. The layer count is the smallest of both ranges. Depth
// textures are only blitted to depth textures, with nearest
// filtering.
func (c *Context) Blit(src *Texture, sr BlitRegion, dst *Texture, dr BlitRegion, filter metadata.TextureFilter) {
	if !c.ready("blit") {
		return
	}
	if !src.IsAllocated() || !dst.IsAllocated() {
		core.LogError("cannot blit '%s' to '%s': not set up", src.Name, dst.Name)
		return
	}
	if !c.assertf(c.pass == nil, "blit inside render pass '%s'", c.passName()) {
		return
	}
	if !c.assertf(src != dst || sr.Level != dr.Level, "blit of level %d of texture '%s' onto itself", sr.Level, src.Name) {
		return
	}
	if !c.assertf(src.Format.IsDepth() == dst.Format.IsDepth(), "blit between depth and color: '%s' to '%s'", src.Name, dst.Name) {
		return
	}
	sn, sok := sr.layers(src)
	dn, dok := dr.layers(dst)
	if !sok || !dok {
		core.LogError("cannot blit '%s' %+v to '%s' %+v: out of range", src.Name, sr, dst.Name, dr)
		return
	}
	layers := min(sn, dn)
	sw, sh := src.LevelSize(sr.Level)
	dw, dh := dst.LevelSize(dr.Level)

	cmd := c.renderCmd()
	c.transition(cmd, src, sr.Level, 1, driver.LayoutTransferSrc)
	c.transition(cmd, dst, dr.Level, 1, driver.LayoutTransferDst)
	cmd.Blit(src.gpu.image,
		driver.Region{Level: sr.Level, BaseLayer: sr.BaseLayer, Layers: layers, Width: sw, Height: sh, Depth: src.LevelDepth(sr.Level)},
		dst.gpu.image,
		driver.Region{Level: dr.Level, BaseLayer: dr.BaseLayer, Layers: layers, Width: dw, Height: dh, Depth: dst.LevelDepth(dr.Level)},
		filter.Linear() && !src.Format.IsDepth())
	c.transition(cmd, src, sr.Level, 1, restingLayout(src))
	c.transition(cmd, dst, dr.Level, 1, restingLayout(dst))
	c.metrics.Blits++
}

// CleanTexture schedules the destruction of the GPU objects of
// t: per-layer views, per-level views, the full view, then the
// image.
func (c *Context) CleanTexture(t *Texture) {
	g := t.gpu
	if g == nil {
		return
	}
	frame := c.Frame()
	for _, views := range g.layerViews {
		for _, v := range views {
			c.deletions.Push(ResourceView, t.Name, v, frame)
		}
	}
	for _, v := range g.levelViews {
		c.deletions.Push(ResourceView, t.Name, v, frame)
	}
	c.deletions.Push(ResourceView, t.Name, g.view, frame)
	if g.owned {
		c.deletions.Push(ResourceImage, t.Name, g.image, frame)
	}
	t.gpu = nil
}

// SetupBuffer allocates b on the GPU.
func (c *Context) SetupBuffer(b *Buffer) {
	if b.gpu != nil {
		c.CleanBuffer(b)
	}
	buf, err := c.dev.NewBuffer(b.Size, b.Type)
	if err != nil {
		core.LogError("unable to create %s buffer '%s': %s", b.Type, b.Name, err)
		return
	}
	b.gpu = buf
}

// UploadBuffer writes data at offset. Host-visible buffers are
// written directly, others through a staging copy.
func (c *Context) UploadBuffer(b *Buffer, data []byte, offset uint64) {
	if !b.IsAllocated() {
		core.LogError("cannot upload buffer '%s': not set up", b.Name)
		return
	}
	if offset+uint64(len(data)) > b.Size {
		core.LogError("upload of %d bytes at %d overflows buffer '%s' (%d bytes)", len(data), offset, b.Name, b.Size)
		return
	}
	c.metrics.Uploads++
	if b.Type.HostVisible() {
		copy(b.gpu.Bytes()[offset:], data)
		return
	}
	if !c.ready("upload buffer") {
		return
	}
	staging, err := c.newStaging(data, metadata.BufferCPUToGPU)
	if err != nil {
		return
	}
	c.uploadCmd().CopyBuffer(staging, 0, b.gpu, offset, uint64(len(data)))
	c.deletions.Push(ResourceBuffer, b.Name, staging, c.Frame())
}

// DownloadBuffer reads size bytes at offset. It waits for the
// GPU unless the buffer is host-visible.
func (c *Context) DownloadBuffer(b *Buffer, offset, size uint64) []byte {
	if !b.IsAllocated() || offset+size > b.Size {
		core.LogError("cannot download %d bytes at %d from buffer '%s'", size, offset, b.Name)
		return nil
	}
	c.metrics.Downloads++
	out := make([]byte, size)
	if b.Type.HostVisible() {
		copy(out, b.gpu.Bytes()[offset:offset+size])
		return out
	}
	if !c.ready("download buffer") {
		return nil
	}
	staging, err := c.dev.NewBuffer(size, metadata.BufferGPUToCPU)
	if err != nil {
		core.LogError("buffer '%s': unable to create readback buffer: %s", b.Name, err)
		return nil
	}
	c.renderCmd().CopyBuffer(b.gpu, offset, staging, 0, size)
	c.Flush()
	copy(out, staging.Bytes())
	staging.Destroy()
	return out
}

func (c *Context) CleanBuffer(b *Buffer) {
	if b.gpu == nil {
		return
	}
	c.deletions.Push(ResourceBuffer, b.Name, b.gpu, c.Frame())
	b.gpu = nil
}

// SetupUniformBuffer creates a ring of count blocks of size bytes
// per frame in flight.
func (c *Context) SetupUniformBuffer(name string, size uint64, count int) *UniformBuffer {
	align := max(c.dev.Limits().MinUniformAlignment, 1)
	u := &UniformBuffer{
		blockSize: size,
		stride:    math.AlignUp(size, align),
		count:     max(count, 1) * c.cfg.FramesInFlight,
	}
	u.Buffer = Buffer{Name: name, Type: metadata.BufferUniform, Size: u.stride * uint64(u.count)}
	c.SetupBuffer(&u.Buffer)
	return u
}

// SetupMesh uploads one vertex stream per layout binding, and
// the indices if any.
func (c *Context) SetupMesh(m *Mesh, streams [][]byte, indices []uint32) {
	if len(streams) != len(m.Layout.Bindings) {
		core.LogError("mesh '%s': %d vertex streams for %d bindings", m.Name, len(streams), len(m.Layout.Bindings))
		return
	}
	if m.vertices != nil {
		c.CleanMesh(m)
	}
	var data []byte
	m.offsets = m.offsets[:0]
	for i, s := range streams {
		m.offsets = append(m.offsets, uint64(len(data)))
		data = append(data, s...)
		if i == 0 && m.Layout.Bindings[0].Stride > 0 {
			m.VertexCount = uint32(len(s)) / m.Layout.Bindings[0].Stride
		}
	}
	if len(data) == 0 {
		data = make([]byte, 4)
	}
	m.vertices = &Buffer{Name: m.Name + " vertices", Type: metadata.BufferVertex, Size: uint64(len(data))}
	c.SetupBuffer(m.vertices)
	c.UploadBuffer(m.vertices, data, 0)

	m.IndexCount = uint32(len(indices))
	if len(indices) == 0 {
		return
	}
	raw := make([]byte, 0, 4*len(indices))
	for _, v := range indices {
		raw = binary.LittleEndian.AppendUint32(raw, v)
	}
	m.indices = &Buffer{Name: m.Name + " indices", Type: metadata.BufferIndex, Size: uint64(len(raw))}
	c.SetupBuffer(m.indices)
	c.UploadBuffer(m.indices, raw, 0)
}

func (c *Context) CleanMesh(m *Mesh) {
	if m.vertices != nil {
		c.CleanBuffer(m.vertices)
		m.vertices = nil
	}
	if m.indices != nil {
		c.CleanBuffer(m.indices)
		m.indices = nil
	}
}

// SetupFramebuffer creates a framebuffer with one color
// attachment per format and an optional depth attachment.
func (c *Context) SetupFramebuffer(name string, width, height uint32, colors []metadata.Format, depth metadata.Format) *Framebuffer {
	fb := &Framebuffer{Name: name, Width: width, Height: height}
	for i, f := range colors {
		fb.Colors = append(fb.Colors, c.newAttachment(fmt.Sprintf("%s color %d", name, i), width, height, f))
	}
	if depth != metadata.FormatUndefined {
		fb.Depth = c.newAttachment(name+" depth", width, height, depth)
	}
	return fb
}

func (c *Context) newAttachment(name string, width, height uint32, format metadata.Format) *Texture {
	t := NewTexture(name, width, height, format)
	t.Usage = metadata.TextureUsageAttachment | metadata.TextureUsageSampled
	t.Filter = metadata.TextureFilterLinear
	c.SetupTexture(t)
	return t
}

// ResizeFramebuffer reallocates the attachments of fb.
func (c *Context) ResizeFramebuffer(fb *Framebuffer, width, height uint32) {
	if fb.backbuffer || (fb.Width == width && fb.Height == height) {
		return
	}
	fb.Width, fb.Height = width, height
	for _, t := range append(slices.Clip(fb.Colors), fb.Depth) {
		if t == nil {
			continue
		}
		t.Width, t.Height = width, height
		c.SetupTexture(t)
	}
}

func (c *Context) CleanFramebuffer(fb *Framebuffer) {
	if fb.backbuffer {
		return
	}
	for _, t := range append(slices.Clip(fb.Colors), fb.Depth) {
		if t != nil {
			c.CleanTexture(t)
		}
	}
}
