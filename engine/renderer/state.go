package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// gpuState is everything a graphics pipeline depends on.
type gpuState struct {
	metadata.DrawState
	program     *Program
	mesh        *metadata.MeshLayout
	attachments *metadata.AttachmentLayout
}

func (s *gpuState) equivalent(o *gpuState) bool {
	return s.program == o.program &&
		s.DrawState.Equivalent(&o.DrawState) &&
		s.mesh.Equal(o.mesh) &&
		s.attachments.Equal(o.attachments)
}

type viewport struct {
	x, y          int
	width, height int
}

func (c *Context) SetDepthState(test bool, fn metadata.TestFunction, write bool) {
	c.state.DepthTest = test
	c.state.DepthFunc = fn
	c.state.DepthWriteMask = write
}

func (c *Context) SetStencilState(test, write bool, fn metadata.TestFunction, fail, pass, depthPass metadata.StencilOp, value uint8) {
	c.state.StencilTest = test
	c.state.StencilWriteMask = write
	c.state.StencilFunc = fn
	c.state.StencilFail = fail
	c.state.StencilPass = pass
	c.state.StencilDepthPass = depthPass
	c.state.StencilValue = value
}

// SetBlendState uses the same equation and factors for color and alpha.
func (c *Context) SetBlendState(enabled bool, eq metadata.BlendEquation, src, dst metadata.BlendFunction) {
	c.SetBlendStateSeparate(enabled, eq, eq, src, src, dst, dst)
}

func (c *Context) SetBlendStateSeparate(enabled bool, eqRGB, eqAlpha metadata.BlendEquation, srcRGB, srcAlpha, dstRGB, dstAlpha metadata.BlendFunction) {
	c.state.Blend = enabled
	c.state.BlendEquationRGB = eqRGB
	c.state.BlendEquationAlpha = eqAlpha
	c.state.BlendSrcRGB = srcRGB
	c.state.BlendSrcAlpha = srcAlpha
	c.state.BlendDstRGB = dstRGB
	c.state.BlendDstAlpha = dstAlpha
}

func (c *Context) SetBlendColor(color mgl32.Vec4) {
	c.state.BlendColor = color
}

func (c *Context) SetCullState(enabled bool, faces metadata.Faces) {
	c.state.CullFace = enabled
	c.state.CullFaceMode = faces
}

func (c *Context) SetPolygonState(mode metadata.PolygonMode) {
	c.state.PolygonMode = mode
}

func (c *Context) SetColorState(r, g, b, a bool) {
	c.state.ColorWriteMask = [4]bool{r, g, b, a}
}

// SetPatchSize sets the control points per patch of tessellated draws.
func (c *Context) SetPatchSize(n uint8) {
	c.state.PatchSize = n
}

// SetViewport sets the viewport and scissor of the next draws.
// BeginRender resets it to the whole framebuffer.
func (c *Context) SetViewport(x, y, width, height int) {
	v := viewport{x, y, width, height}
	if v != c.viewport {
		c.viewport = v
		c.viewportDirty = true
	}
}

// State returns a copy of the current fixed-function state.
func (c *Context) State() metadata.DrawState {
	return c.state.DrawState
}

// SetState replaces the whole fixed-function state.
func (c *Context) SetState(s metadata.DrawState) {
	c.state.DrawState = s
}
