package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(e *Engine) error
type Update func(deltaTime float64) error
type Render func(ctx *renderer.Context, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func(ctx *renderer.Context) error
