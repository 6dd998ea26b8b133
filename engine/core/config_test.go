package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}
	want := DefaultRenderingConfig()
	if cfg.Rendering != want {
		t.Fatalf("LoadConfig: rendering defaults\nhave %+v\nwant %+v", cfg.Rendering, want)
	}
}

func TestLoadConfig(t *testing.T) {
	const data = `
log_level = "debug"

[application]
name = "viewer"
width = 800
height = 600

[rendering]
frames_in_flight = 7
binding_pool_capacity = 64
max_binding_pools = 4
pipeline_cache_path = ""
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}
	if cfg.LogLevel != LogLevelDebug {
		t.Fatalf("LogLevel\nhave %q\nwant %q", cfg.LogLevel, LogLevelDebug)
	}
	if cfg.Application.Name != "viewer" || cfg.Application.Width != 800 || cfg.Application.Height != 600 {
		t.Fatalf("Application\nhave %+v", cfg.Application)
	}
	// Untouched keys keep their defaults.
	if cfg.Application.ShaderDir != "assets/shaders" {
		t.Fatalf("ShaderDir\nhave %q\nwant %q", cfg.Application.ShaderDir, "assets/shaders")
	}
	r := cfg.Rendering
	if r.FramesInFlight != 3 {
		t.Fatalf("FramesInFlight should be clamped\nhave %d\nwant 3", r.FramesInFlight)
	}
	if r.BindingPoolCapacity != 64 || r.MaxBindingPools != 4 {
		t.Fatalf("binding pools\nhave %d/%d\nwant 64/4", r.BindingPoolCapacity, r.MaxBindingPools)
	}
	if r.PipelineCachePath != "" {
		t.Fatalf("PipelineCachePath\nhave %q\nwant empty", r.PipelineCachePath)
	}
	if r.QueryCount != DefaultQueryCount {
		t.Fatalf("QueryCount\nhave %d\nwant %d", r.QueryCount, DefaultQueryCount)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[rendering\nvsync = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig: expected a parse error")
	}
}

func TestSanitize(t *testing.T) {
	for _, x := range [...]struct {
		in, want int
	}{
		{0, 2}, {1, 2}, {2, 2}, {3, 3}, {4, 3},
	} {
		rc := RenderingConfig{FramesInFlight: x.in}
		rc.Sanitize()
		if rc.FramesInFlight != x.want {
			t.Fatalf("Sanitize(%d)\nhave %d\nwant %d", x.in, rc.FramesInFlight, x.want)
		}
		if rc.BindingPoolCapacity != DefaultBindingPoolCapacity || rc.MaxBindingPools != DefaultMaxBindingPools {
			t.Fatalf("Sanitize: pool defaults not applied: %+v", rc)
		}
	}
}
