package renderer

import (
	"slices"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Vertex layout of full-screen triangles, generated in the shader.
var quadLayout = metadata.MeshLayout{}

// BindProgram makes p the program of the next draws or dispatches.
func (c *Context) BindProgram(p *Program) {
	if p == c.state.program {
		return
	}
	c.state.program = p
	for i := range c.groups {
		c.groups[i].dirty = true
	}
	c.metrics.ProgramBindings++
}

func (c *Context) bindSlot(set, slot uint32, b slotBinding) {
	g := &c.groups[set]
	if old, ok := g.slots[slot]; ok && old == b {
		return
	}
	g.slots[slot] = b
	g.dirty = true
}

// BindTexture binds tex at slot of the texture group. A nil
// texture falls back to the default one.
func (c *Context) BindTexture(slot uint32, tex *Texture) {
	c.bindSlot(metadata.SetTextures, slot, slotBinding{texture: tex})
	c.metrics.TextureBindings++
}

// BindTextures binds texs at consecutive slots starting at first.
func (c *Context) BindTextures(first uint32, texs ...*Texture) {
	for i, t := range texs {
		c.BindTexture(first+uint32(i), t)
	}
}

// BindBuffer binds a uniform or storage buffer in the static
// buffer group.
func (c *Context) BindBuffer(slot uint32, buf *Buffer) {
	c.bindSlot(metadata.SetBuffers, slot, slotBinding{buffer: buf})
	c.metrics.BufferBindings++
}

// BindUniform binds a per-draw uniform buffer. Its current block
// offset is read at each draw.
func (c *Context) BindUniform(slot uint32, ubuf *UniformBuffer) {
	c.bindSlot(metadata.SetUniforms, slot, slotBinding{uniform: ubuf})
	c.metrics.BufferBindings++
}

// BindImage binds level of tex as a storage image for compute.
func (c *Context) BindImage(slot uint32, tex *Texture, level uint32) {
	c.bindSlot(metadata.SetImages, slot, slotBinding{texture: tex, level: level})
	c.metrics.TextureBindings++
}

// BeginRender starts rendering into fb. The same load operation
// applies to color and depth.
func (c *Context) BeginRender(fb *Framebuffer, load metadata.Load) {
	if !c.ready("begin render") {
		return
	}
	if fb == nil {
		core.LogError("begin render: %s", core.ErrNoRenderTarget)
		return
	}
	if !c.assertf(c.pass == nil, "render pass '%s' begun inside '%s'", fb.Name, c.passName()) {
		return
	}
	cmd := c.renderCmd()
	desc := &driver.PassDesc{
		Layout:    fb.Layout(),
		Width:     fb.Width,
		Height:    fb.Height,
		ColorLoad: load,
		DepthLoad: load,
	}
	for _, t := range fb.Colors {
		if !c.assertf(t.IsAllocated(), "framebuffer '%s' attachment '%s' is not allocated", fb.Name, t.Name) {
			return
		}
		c.transition(cmd, t, 0, 1, driver.LayoutColorAttachment)
		desc.Colors = append(desc.Colors, t.gpu.layerViews[0][0])
	}
	if fb.Depth != nil {
		c.transition(cmd, fb.Depth, 0, 1, driver.LayoutDepthAttachment)
		desc.Depth = fb.Depth.gpu.layerViews[0][0]
	}
	cmd.BeginPass(desc)

	c.pass = fb
	c.state.attachments = &desc.Layout
	c.viewport = viewport{0, 0, int(fb.Width), int(fb.Height)}
	c.viewportDirty = true
	// Pipelines are specific to the attachment layout.
	c.bound = gpuState{}
	c.metrics.FramebufferBindings++
}

// EndRender ends the current render pass. Attachments go back to
// being sampled, or presented for the backbuffer.
func (c *Context) EndRender() {
	if c.pass == nil {
		core.LogError("end render: %s", core.ErrNoRenderTarget)
		return
	}
	cmd := c.renderCmd()
	cmd.EndPass()
	for _, t := range c.pass.Colors {
		c.transition(cmd, t, 0, 1, restingLayout(t))
	}
	if c.pass.Depth != nil {
		c.transition(cmd, c.pass.Depth, 0, 1, driver.LayoutShaderRead)
	}
	c.pass = nil
	c.state.attachments = nil
}

// DrawMesh draws m with the current program and state.
func (c *Context) DrawMesh(m *Mesh) {
	if c.pass == nil {
		core.LogError("cannot draw mesh '%s' outside of a render pass", m.Name)
		return
	}
	if m.vertices == nil {
		core.LogError("cannot draw mesh '%s': not set up", m.Name)
		return
	}
	cmd := c.renderCmd()
	if !c.bindGraphics(cmd, &m.Layout) {
		return
	}
	bufs := make([]driver.Buffer, len(m.offsets))
	for i := range bufs {
		bufs[i] = m.vertices.gpu
	}
	cmd.BindVertexBuffers(bufs, m.offsets)
	if m.indices != nil {
		cmd.BindIndexBuffer(m.indices.gpu, 0)
		cmd.DrawIndexed(m.IndexCount, 1)
	} else {
		cmd.Draw(m.VertexCount, 1)
	}
	c.metrics.DrawCalls++
}

// DrawQuad draws a full-screen triangle.
func (c *Context) DrawQuad() {
	if c.pass == nil {
		core.LogError("cannot draw quad outside of a render pass")
		return
	}
	cmd := c.renderCmd()
	if !c.bindGraphics(cmd, &quadLayout) {
		return
	}
	cmd.Draw(3, 1)
	c.metrics.QuadCalls++
}

// Dispatch runs the current compute program.
func (c *Context) Dispatch(x, y, z uint32) {
	if !c.ready("dispatch") {
		return
	}
	if c.pass != nil {
		core.LogError("cannot dispatch inside render pass '%s'", c.pass.Name)
		return
	}
	prog := c.state.program
	if prog == nil || !prog.IsCompute() {
		core.LogError("cannot dispatch without a compute program")
		return
	}
	p := c.pipelines.GetCompute(prog)
	if p == nil {
		return
	}
	cmd := c.renderCmd()
	if p != c.boundCompute {
		cmd.BindPipeline(p)
		c.boundCompute = p
		c.metrics.PipelineBinds++
	}

	var images []slotBinding
	for _, slot := range prog.desc.Layout.Set(metadata.SetImages) {
		if b, ok := c.groups[metadata.SetImages].slots[slot.Binding]; ok && b.texture != nil && b.texture.IsAllocated() {
			images = append(images, b)
		}
	}
	for _, b := range images {
		c.transition(cmd, b.texture, b.level, 1, driver.LayoutGeneral)
	}
	if c.updateBindings(cmd, prog) {
		cmd.Dispatch(x, y, z)
		c.metrics.Dispatches++
	}
	for _, b := range images {
		c.transition(cmd, b.texture, b.level, 1, driver.LayoutShaderRead)
	}
}

// bindGraphics binds the pipeline and sets of the current state.
// It returns false when the draw must be skipped.
func (c *Context) bindGraphics(cmd driver.CmdBuffer, mesh *metadata.MeshLayout) bool {
	prog := c.state.program
	if prog == nil {
		core.LogError("cannot draw without a program")
		return false
	}
	if prog.IsCompute() {
		core.LogError("cannot draw with compute program '%s'", prog.Name)
		return false
	}
	c.state.mesh = mesh

	if c.boundPipeline == nil || !c.state.equivalent(&c.bound) {
		created := c.pipelines.created
		p := c.pipelines.Get(&c.state)
		c.metrics.PipelinesCreated += c.pipelines.created - created
		if p == nil {
			return false
		}
		if p != c.boundPipeline {
			cmd.BindPipeline(p)
			c.boundPipeline = p
			c.metrics.PipelineBinds++
		}
		c.bound = c.state
		c.metrics.StateChanges++
	}
	if !c.updateBindings(cmd, prog) {
		return false
	}
	if c.viewportDirty {
		v := c.viewport
		cmd.SetViewport(float32(v.x), float32(v.y), float32(v.width), float32(v.height))
		cmd.SetScissor(int32(v.x), int32(v.y), uint32(max(v.width, 0)), uint32(max(v.height, 0)))
		c.viewportDirty = false
	}
	return true
}

// updateBindings writes a fresh set for every group prog uses
// whose resources changed, then binds the groups that are not
// bound yet or whose dynamic offsets moved.
func (c *Context) updateBindings(cmd driver.CmdBuffer, prog *Program) bool {
	for set := uint32(0); set < metadata.SetCount; set++ {
		slots := prog.desc.Layout.Set(set)
		if len(slots) == 0 {
			continue
		}
		g := &c.groups[set]
		if g.dirty || g.set == nil {
			writes, ok := c.bindingWrites(prog, set, slots)
			if !ok {
				return false
			}
			s, err := c.bindings.Allocate(prog.gpu, set)
			if err != nil {
				return false
			}
			s.native.Write(writes)
			c.bindings.Free(g.set)
			g.set = s
			g.dirty = false
			g.bound = false
			c.metrics.BindingSets++
		}

		var offsets []uint32
		if set == metadata.SetUniforms {
			for _, slot := range slots {
				offsets = append(offsets, g.slots[slot.Binding].uniform.Offset())
			}
		}
		if !g.bound || !slices.Equal(offsets, g.offsets) {
			cmd.BindSets(prog.gpu, set, []driver.BindingSet{g.set.native}, offsets)
			g.bound = true
			g.offsets = offsets
		}
	}
	return true
}

func (c *Context) bindingWrites(prog *Program, set uint32, slots []metadata.BindingSlot) ([]driver.BindingWrite, bool) {
	writes := make([]driver.BindingWrite, 0, len(slots))
	g := &c.groups[set]
	for _, slot := range slots {
		b := g.slots[slot.Binding]
		w := driver.BindingWrite{Binding: slot.Binding, Kind: slot.Kind}
		switch slot.Kind {
		case metadata.BindingTexture:
			tex := b.texture
			if tex == nil || !tex.IsAllocated() {
				tex = c.defaultTexture
			}
			w.View = tex.gpu.view
			w.Sampler = tex.gpu.sampler
		case metadata.BindingStorageImage:
			tex := b.texture
			if tex == nil || !tex.IsAllocated() || b.level >= tex.Levels {
				core.LogError("program '%s': no valid storage image at '%s'", prog.Name, slot.Name)
				return nil, false
			}
			w.View = tex.gpu.levelViews[b.level]
		case metadata.BindingUniformDynamic:
			u := b.uniform
			if u == nil || !u.IsAllocated() {
				core.LogError("program '%s': no uniform buffer at '%s'", prog.Name, slot.Name)
				return nil, false
			}
			w.Buffer = u.gpu
			w.Size = u.blockSize
		default:
			buf := b.buffer
			if buf == nil && b.uniform != nil {
				buf = &b.uniform.Buffer
			}
			if buf == nil || !buf.IsAllocated() {
				core.LogError("program '%s': no buffer at '%s'", prog.Name, slot.Name)
				return nil, false
			}
			w.Buffer = buf.gpu
			w.Size = buf.Size
		}
		writes = append(writes, w)
	}
	return writes, true
}
