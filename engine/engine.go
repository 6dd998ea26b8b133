package engine

import (
	"fmt"
	"image/png"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/platform"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	// Set from other goroutines to end the loop.
	stopRequested atomic.Bool
	isSuspended   bool
	platform      *platform.Platform
	assetManager  *assets.AssetManager
	jobs          *systems.JobSystem
	device        *vulkan.VulkanDevice
	context       *renderer.Context
	width         uint32
	height        uint32
	clock         *core.Clock
	metrics       *core.FrameMetrics
	lastTime      time.Duration

	// Programs loaded through LoadProgram, reloaded when their files change.
	programs map[string]*renderer.Program
	// Screenshots captured once the current frame is rendered.
	screenshots []string
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil || g.ApplicationConfig.Config == nil {
		err := fmt.Errorf("game has no application configuration")
		core.LogError(err.Error())
		return nil, err
	}
	app := g.ApplicationConfig.Application
	jobs, err := systems.NewJobSystem(2, 8)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		platform:     platform.New(),
		assetManager: assets.NewAssetManager(app.ShaderDir),
		jobs:         jobs,
		isRunning:    true,
		isSuspended:  false,
		width:        app.Width,
		height:       app.Height,
		programs:     make(map[string]*renderer.Program),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig

	var win driver.Window
	if cfg.Headless {
		if err := e.platform.StartupHeadless(); err != nil {
			return err
		}
	} else {
		if err := e.platform.Startup(cfg.Application.Name, e.width, e.height); err != nil {
			return err
		}
		e.platform.OnResize = e.onResized
		e.platform.OnKey = e.onKey
		win = e.platform
	}

	device, err := vulkan.NewDevice(cfg.Application.Name, win, vulkan.Options{
		Validation: cfg.Rendering.Validation,
		Debug:      cfg.Rendering.Debug,
	})
	if err != nil {
		return err
	}
	e.device = device

	ctx, err := renderer.NewContext(device, cfg.Rendering)
	if err != nil {
		return err
	}
	e.context = ctx
	if win != nil {
		err = ctx.SetupWindow(win)
	} else {
		err = ctx.SetupHeadless()
	}
	if err != nil {
		return err
	}

	if err := e.assetManager.Initialize(cfg.Application.HotReload); err != nil {
		return err
	}

	if err := e.gameInstance.FnInitialize(e); err != nil {
		return err
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Renderer returns the rendering context.
func (e *Engine) Renderer() *renderer.Context {
	return e.context
}

func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

// LoadProgram creates the program compiled under name in the shader
// directory. It is reloaded whenever its files change.
func (e *Engine) LoadProgram(name string) (*renderer.Program, error) {
	if p, ok := e.programs[name]; ok {
		return p, nil
	}
	desc, err := e.assetManager.LoadProgram(name)
	if err != nil {
		return nil, err
	}
	p, err := e.context.CreateProgram(*desc)
	if err != nil {
		return nil, err
	}
	e.programs[name] = p
	return p, nil
}

// reloadPrograms drains the pending file changes. A program that fails
// to reload keeps its previous stages.
func (e *Engine) reloadPrograms() {
	changed := make(map[string]bool)
drain:
	for {
		select {
		case name, ok := <-e.assetManager.Changes():
			if !ok {
				break drain
			}
			changed[name] = true
		default:
			break drain
		}
	}
	for name := range changed {
		e.reloadProgram(name)
	}
}

func (e *Engine) reloadProgram(name string) {
	p, ok := e.programs[name]
	if !ok {
		return
	}
	desc, err := e.assetManager.LoadProgram(name)
	if err != nil {
		return
	}
	if err := e.context.ReloadProgram(p, *desc); err != nil {
		core.LogWarn("program '%s' keeps its previous stages", name)
	}
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if !e.platform.PumpMessages() || e.stopRequested.Load() {
			e.isRunning = false
			break
		}
		e.reloadPrograms()

		if e.isSuspended {
			// Nothing is drawn while minimized, wait for the restore.
			e.platform.WaitEvents()
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := (currentTime - e.lastTime).Seconds()
		frameStartTime := platform.GetAbsoluteTime()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}

		// Call the game's render routine.
		if err := e.gameInstance.FnRender(e.context, delta); err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}
		e.takeScreenshots()
		e.context.NextFrame()

		frameElapsed := platform.GetAbsoluteTime() - frameStartTime
		e.metrics.Update(time.Duration(frameElapsed * float64(time.Second)))
		if m := e.context.Frame(); m%300 == 0 {
			stats := e.context.Metrics()
			core.LogDebug("frame %d: %.2f ms, %.0f fps, %d draws, %d pipelines bound, %d binding sets",
				m, e.metrics.FrameTime(), e.metrics.FPS(), stats.DrawCalls, stats.PipelineBinds, stats.BindingSets)
		}

		if limit := e.gameInstance.ApplicationConfig.MaxFrames; limit > 0 && e.context.Frame() >= limit {
			e.isRunning = false
		}

		// Update last time
		e.lastTime = currentTime
	}

	return nil
}

// Stop ends the main loop after the current frame. It may be called
// from any goroutine.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.assetManager.Shutdown()

	if e.context != nil {
		e.device.WaitIdle()
		if e.gameInstance.FnShutdown != nil {
			if err := e.gameInstance.FnShutdown(e.context); err != nil {
				core.LogError(err.Error())
			}
		}
		for name, p := range e.programs {
			e.context.CleanProgram(p)
			delete(e.programs, name)
		}
		e.context.Clean()
		e.context = nil
	}
	if err := e.jobs.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	return e.platform.Shutdown()
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

// Screenshot reads the backbuffer back without stalling and writes it
// as a PNG once the GPU is done with the frame. It captures what was
// rendered so far, so it is called after the game renders.
func (e *Engine) Screenshot(path string) {
	fb := e.context.Backbuffer()
	if fb == nil || len(fb.Colors) == 0 {
		core.LogWarn("no backbuffer to capture this frame")
		return
	}
	e.context.DownloadTextureAsync(fb.Colors[0], 0, func(images []renderer.Image) {
		if len(images) == 0 {
			core.LogError("screenshot %s: readback returned no image", path)
			return
		}
		img := images[0].ToGo()
		if img == nil {
			core.LogError("screenshot %s: backbuffer format %s cannot be encoded", path, images[0].Format)
			return
		}
		// Encoding is slow, keep it off the render thread.
		queued := e.jobs.TrySubmit(systems.JobTask{
			Name: "screenshot",
			OnStart: func() error {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				return png.Encode(f, img)
			},
			OnComplete: func() { core.LogInfo("screenshot saved to %s", path) },
		})
		if !queued {
			core.LogWarn("screenshot %s dropped, encoder busy", path)
		}
	})
}

// requestScreenshot captures the backbuffer at path once the
// current frame is rendered.
func (e *Engine) requestScreenshot(path string) {
	e.screenshots = append(e.screenshots, path)
}

func (e *Engine) takeScreenshots() {
	for _, path := range e.screenshots {
		e.Screenshot(path)
	}
	e.screenshots = e.screenshots[:0]
}

func (e *Engine) onKey(key glfw.Key, mods glfw.ModifierKey) {
	switch key {
	case glfw.KeyF5:
		core.LogInfo("reloading %d programs", len(e.programs))
		for name := range e.programs {
			e.reloadProgram(name)
		}
	case glfw.KeyF12:
		e.requestScreenshot(fmt.Sprintf("screenshot-%d.png", e.context.Frame()))
	}
}

func (e *Engine) onResized(width, height int) {
	w, h := uint32(max(width, 0)), uint32(max(height, 0))
	if w == e.width && h == e.height {
		return
	}
	e.width, e.height = w, h

	// The swapchain picks the new size up at the start of the next
	// frame. A zero size keeps it paused until restored.
	e.context.Resize(w, h)

	// Handle minimization
	if w == 0 || h == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(w, h); err != nil {
			core.LogError(err.Error())
		}
	}
}
