package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-gpu/engine/math"
)

type ApplicationConfig struct {
	// The application name used in windowing and as the Vulkan application name.
	Name string `toml:"name"`
	// Window starting width.
	Width uint32 `toml:"width"`
	// Window starting height.
	Height uint32 `toml:"height"`
	// Directory holding compiled SPIR-V shaders and their layout sidecars.
	ShaderDir string `toml:"shader_dir"`
	// Watch ShaderDir and reload programs when their binaries change.
	HotReload bool `toml:"hot_reload"`
}

type RenderingConfig struct {
	// Number of frames the CPU may record ahead of the GPU (K).
	FramesInFlight int  `toml:"frames_in_flight"`
	VSync          bool `toml:"vsync"`
	// Debug turns programmer-error invariants into panics.
	Debug bool `toml:"debug"`
	// Validation enables the Khronos validation layer and the debug report callback.
	Validation bool `toml:"validation"`

	BindingPoolCapacity int `toml:"binding_pool_capacity"`
	MaxBindingPools     int `toml:"max_binding_pools"`
	UIPoolCapacity      int `toml:"ui_pool_capacity"`
	QueryCount          int `toml:"query_count"`

	// Optional location of the pipeline binary cache. Empty disables it.
	PipelineCachePath string `toml:"pipeline_cache_path"`
}

type Config struct {
	LogLevel    LogLevel          `toml:"log_level"`
	Application ApplicationConfig `toml:"application"`
	Rendering   RenderingConfig   `toml:"rendering"`
}

const (
	DefaultFramesInFlight      = 2
	DefaultBindingPoolCapacity = 1000
	DefaultMaxBindingPools     = 16
	DefaultUIPoolCapacity      = 8
	DefaultQueryCount          = 256
)

func DefaultConfig() *Config {
	return &Config{
		LogLevel: LogLevelInfo,
		Application: ApplicationConfig{
			Name:      "anima-gpu",
			Width:     1280,
			Height:    720,
			ShaderDir: "assets/shaders",
		},
		Rendering: DefaultRenderingConfig(),
	}
}

func DefaultRenderingConfig() RenderingConfig {
	return RenderingConfig{
		FramesInFlight:      DefaultFramesInFlight,
		VSync:               true,
		BindingPoolCapacity: DefaultBindingPoolCapacity,
		MaxBindingPools:     DefaultMaxBindingPools,
		UIPoolCapacity:      DefaultUIPoolCapacity,
		QueryCount:          DefaultQueryCount,
		PipelineCachePath:   "pipeline.cache",
	}
}

// LoadConfig reads a TOML configuration file. A missing file is not an
// error: the defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			LogInfo("no configuration at %s, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		err = fmt.Errorf("failed to parse configuration %s: %w", path, err)
		LogError(err.Error())
		return nil, err
	}
	cfg.Rendering.Sanitize()
	return cfg, nil
}

// Sanitize replaces out-of-range values with usable ones.
func (rc *RenderingConfig) Sanitize() {
	rc.FramesInFlight = math.Clamp(rc.FramesInFlight, 2, 3)
	if rc.BindingPoolCapacity <= 0 {
		rc.BindingPoolCapacity = DefaultBindingPoolCapacity
	}
	if rc.MaxBindingPools <= 0 {
		rc.MaxBindingPools = DefaultMaxBindingPools
	}
	if rc.UIPoolCapacity <= 0 {
		rc.UIPoolCapacity = DefaultUIPoolCapacity
	}
	if rc.QueryCount <= 0 {
		rc.QueryCount = DefaultQueryCount
	}
}
