package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type ApplicationConfig struct {
	*core.Config
	// Path the configuration was read from.
	Path string
	// Headless renders offscreen without opening a window.
	Headless bool
	// MaxFrames stops the engine after this many frames, 0 runs until
	// the window is closed.
	MaxFrames uint64
}

// NewApplicationConfig loads the configuration at path and applies its
// log level.
func NewApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := core.LogSetLevel(cfg.LogLevel); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &ApplicationConfig{Config: cfg, Path: path}, nil
}
