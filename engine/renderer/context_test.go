package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var albedoSlot = metadata.BindingSlot{Name: "albedo", Set: metadata.SetTextures, Binding: 0, Kind: metadata.BindingTexture}

func TestNewContext(t *testing.T) {
	if _, err := NewContext(nil, testConfig()); err != core.ErrNoDevice {
		t.Fatalf("NewContext(nil):\nhave %v\nwant %v", err, core.ErrNoDevice)
	}
	ctx, dev := newTestContext(t, testConfig(), nil)
	if n := ctx.samplers.Len(); n != 12 {
		t.Fatalf("SamplerLibrary.Len:\nhave %d\nwant 12", n)
	}
	if ctx.defaultTexture == nil || !ctx.defaultTexture.IsAllocated() {
		t.Fatal("Context.Setup: no default texture")
	}
	if err := ctx.SetupHeadless(); err == nil {
		t.Fatal("Context.SetupHeadless: second setup accepted")
	}
	if err := ctx.SetupWindow(nil); err == nil {
		t.Fatal("Context.SetupWindow(nil): accepted")
	}
	ctx.Clean()
	for kind, n := range dev.created {
		if d := dev.destroyed[kind]; d != n {
			t.Fatalf("Context.Clean: %s objects:\nhave %d destroyed\nwant %d", kind, d, n)
		}
	}
}

func TestSamplerLibraryFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.samplerLimit = 3
	if _, err := NewSamplerLibrary(dev); err == nil {
		t.Fatal("NewSamplerLibrary: sampler failure not reported")
	}
	if n := dev.alive("sampler"); n != 0 {
		t.Fatalf("live samplers after failure:\nhave %d\nwant 0", n)
	}
}

func TestContextPipelineReuse(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	prog, err := ctx.CreateProgram(testProgram("flat", albedoSlot))
	if err != nil {
		t.Fatalf("Context.CreateProgram:\nhave %v\nwant nil", err)
	}
	fb := ctx.SetupFramebuffer("gbuffer", 64, 64, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatDepth32F)
	defer ctx.CleanFramebuffer(fb)

	ctx.BindProgram(prog)
	ctx.BeginRender(fb, metadata.ClearColor(mgl32.Vec4{0, 0, 0, 1}))
	ctx.DrawQuad()
	ctx.DrawQuad()
	ctx.EndRender()

	if dev.pipelines != 1 {
		t.Fatalf("pipelines built:\nhave %d\nwant 1", dev.pipelines)
	}
	for _, x := range [...]struct {
		op string
		n  int
	}{
		{"BindPipeline", 1},
		{"BindSets", 1},
		{"Draw", 2},
		{"BeginPass", 1},
		{"EndPass", 1},
	} {
		if n := dev.count(x.op); n != x.n {
			t.Fatalf("recorded %s:\nhave %d\nwant %d", x.op, n, x.n)
		}
	}
	m := ctx.CurrentMetrics()
	if m.QuadCalls != 2 || m.PipelinesCreated != 1 || m.PipelineBinds != 1 || m.BindingSets != 1 {
		t.Fatalf("Context.CurrentMetrics:\nhave %+v\nwant 2 quads, 1 pipeline built and bound, 1 binding set", m)
	}

	ctx.NextFrame()
	if m := ctx.Metrics(); m.QuadCalls != 2 {
		t.Fatalf("Context.Metrics after NextFrame:\nhave %d quads\nwant 2", m.QuadCalls)
	}
	if m := ctx.CurrentMetrics(); m.QuadCalls != 0 {
		t.Fatalf("Context.CurrentMetrics after NextFrame:\nhave %d quads\nwant 0", m.QuadCalls)
	}

	// A new frame rebinds but reuses the pipeline.
	ctx.BeginRender(fb, metadata.Load{Op: metadata.LoadKeep})
	ctx.DrawQuad()
	ctx.EndRender()
	if dev.pipelines != 1 || dev.count("BindPipeline") != 2 {
		t.Fatalf("second frame:\nhave %d built, %d binds\nwant 1, 2", dev.pipelines, dev.count("BindPipeline"))
	}

	// State changes select another pipeline.
	ctx.BeginRender(fb, metadata.Load{Op: metadata.LoadKeep})
	ctx.SetBlendState(true, metadata.BlendAdd, metadata.BlendSrcAlpha, metadata.BlendOneMinusSrcAlpha)
	ctx.DrawQuad()
	ctx.SetState(metadata.DefaultDrawState())
	ctx.DrawQuad()
	ctx.EndRender()
	if dev.pipelines != 2 {
		t.Fatalf("pipelines built after blend change:\nhave %d\nwant 2", dev.pipelines)
	}
}

func TestContextProgramReload(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	prog, _ := ctx.CreateProgram(testProgram("flat", albedoSlot))
	id := prog.ID
	fb := ctx.SetupFramebuffer("target", 32, 32, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	ctx.BindProgram(prog)
	ctx.BeginRender(fb, metadata.Load{})
	ctx.DrawQuad()
	ctx.EndRender()

	if err := ctx.ReloadProgram(prog, testProgram("flat", albedoSlot)); err != nil {
		t.Fatalf("Context.ReloadProgram:\nhave %v\nwant nil", err)
	}
	if prog.ID != id {
		t.Fatalf("Program.ID after reload:\nhave %d\nwant %d", prog.ID, id)
	}
	if n := ctx.pipelines.Count(); n != 0 {
		t.Fatalf("PipelineCache.Count after reload:\nhave %d\nwant 0", n)
	}

	ctx.NextFrame()
	if dev.destroyed["pipeline"] != 0 || dev.destroyed["program"] != 0 {
		t.Fatal("reloaded program destroyed while its frame may be in flight")
	}
	ctx.NextFrame()
	if dev.destroyed["pipeline"] != 1 || dev.destroyed["program"] != 1 {
		t.Fatalf("after K frames:\nhave %d pipelines, %d programs destroyed\nwant 1, 1",
			dev.destroyed["pipeline"], dev.destroyed["program"])
	}

	ctx.BeginRender(fb, metadata.Load{})
	ctx.DrawQuad()
	ctx.EndRender()
	if dev.pipelines != 2 {
		t.Fatalf("pipelines built after reload:\nhave %d\nwant 2", dev.pipelines)
	}

	// A failed reload keeps the working program.
	gp := prog.gpu
	bad := testProgram("flat", albedoSlot)
	bad.Modules = nil
	if err := ctx.ReloadProgram(prog, bad); err == nil || prog.gpu != gp {
		t.Fatal("Context.ReloadProgram: failed reload replaced the program")
	}
	ctx.CleanProgram(prog)
}

func TestContextReloadUnboundProgram(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	p, _ := ctx.CreateProgram(testProgram("p", albedoSlot))
	q, _ := ctx.CreateProgram(testProgram("q", albedoSlot))
	fb := ctx.SetupFramebuffer("target", 32, 32, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	defer ctx.CleanFramebuffer(fb)

	ctx.BeginRender(fb, metadata.Load{})
	ctx.BindProgram(p)
	ctx.DrawQuad()
	// q becomes current but p stays bound in the command buffer.
	ctx.BindProgram(q)
	if err := ctx.ReloadProgram(p, testProgram("p", albedoSlot)); err != nil {
		t.Fatalf("Context.ReloadProgram:\nhave %v\nwant nil", err)
	}
	ctx.BindProgram(p)
	ctx.DrawQuad()
	ctx.EndRender()
	if dev.pipelines != 2 || dev.count("BindPipeline") != 2 {
		t.Fatalf("draw after reload:\nhave %d built, %d binds\nwant 2, 2", dev.pipelines, dev.count("BindPipeline"))
	}

	// Same for compute pipelines.
	c, _ := ctx.CreateProgram(testComputeProgram("c"))
	ctx.BindProgram(c)
	ctx.Dispatch(1, 1, 1)
	ctx.BindProgram(q)
	ctx.ReloadProgram(c, testComputeProgram("c"))
	ctx.BindProgram(c)
	ctx.Dispatch(1, 1, 1)
	if dev.pipelines != 4 || dev.count("BindPipeline") != 4 {
		t.Fatalf("dispatch after reload:\nhave %d built, %d binds\nwant 4, 4", dev.pipelines, dev.count("BindPipeline"))
	}

	// A cleaned program that is still bound is not reused either.
	ctx.BindProgram(q)
	ctx.CleanProgram(c)
	c, _ = ctx.CreateProgram(testComputeProgram("c"))
	ctx.BindProgram(c)
	ctx.Dispatch(1, 1, 1)
	if dev.count("BindPipeline") != 5 {
		t.Fatalf("dispatch after clean:\nhave %d binds\nwant 5", dev.count("BindPipeline"))
	}
	ctx.CleanProgram(p)
	ctx.CleanProgram(q)
	ctx.CleanProgram(c)
}

func TestContextProgramIDs(t *testing.T) {
	ctx, _ := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	a, _ := ctx.CreateProgram(testProgram("a"))
	b, _ := ctx.CreateProgram(testProgram("b"))
	if a.ID == b.ID {
		t.Fatalf("Program.ID:\nhave %d and %d\nwant distinct", a.ID, b.ID)
	}
	bad := testProgram("bad", metadata.BindingSlot{Name: "x", Set: metadata.SetTextures, Kind: metadata.BindingStorageImage})
	if _, err := ctx.CreateProgram(bad); err == nil {
		t.Fatal("Context.CreateProgram: invalid layout accepted")
	}
	ctx.CleanProgram(a)
	ctx.CleanProgram(b)
}

func TestContextDrawOutsidePass(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	prog, _ := ctx.CreateProgram(testProgram("flat"))
	ctx.BindProgram(prog)
	ctx.DrawQuad()
	ctx.EndRender()
	if n := dev.count("Draw"); n != 0 {
		t.Fatalf("recorded Draw outside of a pass:\nhave %d\nwant 0", n)
	}
	ctx.BeginRender(nil, metadata.Load{})
	if ctx.pass != nil {
		t.Fatal("Context.BeginRender(nil): pass begun")
	}
}

func TestContextDebugAsserts(t *testing.T) {
	cfg := testConfig()
	cfg.Debug = true
	ctx, _ := newTestContext(t, cfg, nil)
	defer ctx.Clean()

	fb := ctx.SetupFramebuffer("target", 16, 16, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	ctx.BeginRender(fb, metadata.Load{})
	defer func() {
		if recover() == nil {
			t.Fatal("Context.BeginRender: nested pass did not panic in debug")
		}
	}()
	ctx.BeginRender(fb, metadata.Load{})
}

func TestContextAssertsLogged(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	fb := ctx.SetupFramebuffer("target", 16, 16, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	ctx.BeginRender(fb, metadata.Load{})
	ctx.BeginRender(fb, metadata.Load{})
	submits := dev.submits
	ctx.Flush()
	if dev.submits != submits {
		t.Fatal("Context.Flush: submitted inside a render pass")
	}
	if n := dev.count("BeginPass"); n != 1 {
		t.Fatalf("recorded BeginPass:\nhave %d\nwant 1", n)
	}
	// The open pass is closed before the frame is submitted.
	ctx.NextFrame()
	if ctx.pass != nil || dev.count("EndPass") != 1 {
		t.Fatal("Context.NextFrame: render pass left open")
	}
}

func TestContextUniformOffsets(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	u := ctx.SetupUniformBuffer("camera", 64, 4)
	defer ctx.CleanBuffer(&u.Buffer)
	if u.stride != 256 || u.Size != 256*8 {
		t.Fatalf("Context.SetupUniformBuffer:\nhave stride %d, size %d\nwant 256, 2048", u.stride, u.Size)
	}
	if u.Upload(make([]byte, 65)) {
		t.Fatal("UniformBuffer.Upload: oversized block accepted")
	}

	prog, _ := ctx.CreateProgram(testProgram("lit", metadata.BindingSlot{
		Name: "camera", Set: metadata.SetUniforms, Binding: 0, Kind: metadata.BindingUniformDynamic,
	}))
	fb := ctx.SetupFramebuffer("target", 16, 16, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	ctx.BindProgram(prog)
	ctx.BindUniform(0, u)
	ctx.BeginRender(fb, metadata.Load{})

	var offsets []uint32
	for i := 0; i < 3; i++ {
		u.Upload([]byte{byte(i)})
		offsets = append(offsets, u.Offset())
		ctx.DrawQuad()
	}
	ctx.EndRender()
	if offsets[0] != 256 || offsets[1] != 512 || offsets[2] != 768 {
		t.Fatalf("UniformBuffer.Offset:\nhave %v\nwant [256 512 768]", offsets)
	}
	if b := u.gpu.Bytes(); b[256] != 0 || b[512] != 1 || b[768] != 2 {
		t.Fatal("UniformBuffer.Upload: blocks not written at their offsets")
	}
	if n := dev.count("BindSets"); n != 3 {
		t.Fatalf("recorded BindSets:\nhave %d\nwant 3", n)
	}
	if n := ctx.CurrentMetrics().BindingSets; n != 1 {
		t.Fatalf("binding sets written:\nhave %d\nwant 1", n)
	}
}

func TestContextDispatch(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	prog, err := ctx.CreateProgram(testComputeProgram("blur", metadata.BindingSlot{
		Name: "output", Set: metadata.SetImages, Binding: 0, Kind: metadata.BindingStorageImage,
	}))
	if err != nil {
		t.Fatalf("Context.CreateProgram:\nhave %v\nwant nil", err)
	}
	tex := NewTexture("output", 16, 16, metadata.FormatRGBA16F)
	tex.Usage = metadata.TextureUsageStorage | metadata.TextureUsageSampled
	ctx.SetupTexture(tex)
	defer ctx.CleanTexture(tex)

	ctx.BindProgram(prog)
	ctx.BindImage(0, tex, 0)
	transitions := dev.count("Transition")
	ctx.Dispatch(2, 2, 1)
	if n := dev.count("Dispatch"); n != 1 {
		t.Fatalf("recorded Dispatch:\nhave %d\nwant 1", n)
	}
	if n := dev.count("Transition") - transitions; n != 2 {
		t.Fatalf("storage image transitions:\nhave %d\nwant 2", n)
	}
	if l := tex.gpu.layouts[0]; l != driver.LayoutShaderRead {
		t.Fatalf("layout after dispatch:\nhave %v\nwant %v", l, driver.LayoutShaderRead)
	}

	// Compute programs cannot draw and dispatches cannot happen in a pass.
	fb := ctx.SetupFramebuffer("target", 16, 16, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	ctx.BeginRender(fb, metadata.Load{})
	ctx.Dispatch(1, 1, 1)
	ctx.DrawQuad()
	ctx.EndRender()
	if dev.count("Dispatch") != 1 || dev.count("Draw") != 0 {
		t.Fatal("compute program dispatched in a pass or drawn")
	}
}
