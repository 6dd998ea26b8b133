package testbed

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	animath "github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const (
	textureSize  = 256
	texturePath  = "assets/textures/albedo.png"
	computeGroup = 8
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine

	source *renderer.Texture
	// Written by the compute pass, sampled by the quad.
	target *renderer.Texture
	quad   *renderer.Program
	invert *renderer.Program
	params *renderer.UniformBuffer
	timer  *renderer.Query

	time   float64
	width  uint32
	height uint32
}

func NewTestGame(cfg *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: cfg,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	st := g.state()
	st.engine = e
	ctx := e.Renderer()

	var err error
	if st.quad, err = e.LoadProgram("textured"); err != nil {
		return err
	}
	if st.invert, err = e.LoadProgram("invert"); err != nil {
		return err
	}

	st.source = renderer.NewTexture("albedo", textureSize, textureSize, metadata.FormatRGBA8)
	st.source.Levels = animath.MipCount(textureSize, textureSize)
	st.source.Filter = metadata.TextureFilterLinearLinear
	st.source.Wrap = metadata.TextureWrapRepeat
	st.source.Images = []renderer.Image{g.sourceImage()}
	ctx.SetupTexture(st.source)
	ctx.UploadTexture(st.source)
	ctx.GenerateMipmaps(st.source)

	st.target = renderer.NewTexture("inverted", textureSize, textureSize, metadata.FormatRGBA8)
	st.target.Usage |= metadata.TextureUsageStorage
	st.target.Filter = metadata.TextureFilterLinear
	ctx.SetupTexture(st.target)

	st.params = ctx.SetupUniformBuffer("params", 16, 64)
	st.timer = ctx.NewQuery(metadata.QueryTimeElapsed)

	core.LogInfo("testbed initialized")
	return nil
}

// sourceImage loads the albedo texture, falling back to a checkerboard.
func (g *TestGame) sourceImage() renderer.Image {
	if _, err := os.Stat(texturePath); err == nil {
		if img, err := g.state().engine.Assets().LoadImage(texturePath); err == nil {
			return renderer.ScaledImageFromGo(img, textureSize, textureSize)
		}
	}
	checker := image.NewNRGBA(image.Rect(0, 0, textureSize, textureSize))
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			c := color.NRGBA{R: 230, G: 120, B: 40, A: 255}
			if (x/32+y/32)%2 == 0 {
				c = color.NRGBA{R: 30, G: 60, B: 90, A: 255}
			}
			checker.SetNRGBA(x, y, c)
		}
	}
	return renderer.ImageFromGo(checker)
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().time += deltaTime
	return nil
}

func (g *TestGame) Render(ctx *renderer.Context, deltaTime float64) error {
	st := g.state()

	ctx.BindProgram(st.invert)
	ctx.BindTexture(0, st.source)
	ctx.BindImage(0, st.target, 0)
	ctx.Dispatch((textureSize+computeGroup-1)/computeGroup, (textureSize+computeGroup-1)/computeGroup, 1)

	fb := ctx.Backbuffer()
	if fb == nil {
		return nil
	}
	st.timer.Begin()
	ctx.BeginRender(fb, metadata.ClearColor(mgl32.Vec4{0.1, 0.1, 0.12, 1}))
	ctx.BindProgram(st.quad)
	ctx.SetDepthState(false, metadata.TestAlways, false)
	st.params.Upload(paramBytes(mgl32.Vec4{float32(st.time), float32(st.width), float32(st.height), 0}))
	ctx.BindUniform(0, st.params)
	ctx.BindTexture(0, st.target)
	ctx.DrawQuad()
	ctx.EndRender()
	st.timer.End()

	if ctx.Frame()%120 == 0 {
		core.LogDebug("quad pass took %.3f ms", float64(st.timer.Value())/1e6)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	st := g.state()
	st.width, st.height = width, height
	return nil
}

func (g *TestGame) Shutdown(ctx *renderer.Context) error {
	st := g.state()
	ctx.CleanTexture(st.source)
	ctx.CleanTexture(st.target)
	ctx.CleanBuffer(&st.params.Buffer)
	return nil
}

func paramBytes(v mgl32.Vec4) []byte {
	out := make([]byte, 0, 16)
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}
