package core

import "errors"

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	// ErrOutOfDate is returned by acquire/present when the surface no longer
	// matches the swapchain.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal is returned when the swapchain can still present but
	// should be rebuilt.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	ErrBindingPoolExhausted = errors.New("binding pool exhausted")
	ErrBindingPoolLimit     = errors.New("maximum binding pool count reached")
	ErrQueryPoolFull        = errors.New("not enough space left in the query pool")
	ErrNoRenderTarget       = errors.New("no render target bound")
	ErrInvalidTransition    = errors.New("invalid layout transition")
	ErrPipelineBuild        = errors.New("pipeline build failed")
	ErrIncompatibleCache    = errors.New("incompatible pipeline cache data")
	ErrNoDevice             = errors.New("no compatible device found")
	ErrNoSurface            = errors.New("unable to create window surface")
	ErrUnknown              = errors.New("unknown")
)
