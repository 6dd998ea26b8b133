package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestDetermineAssetType(t *testing.T) {
	for _, c := range []struct {
		path string
		want AssetType
	}{
		{"shaders/blur.frag.spv", AssetTypeShaderModule},
		{"shaders/blur.layout.toml", AssetTypeShaderLayout},
		{"config.toml", AssetTypeNone},
		{"textures/albedo.PNG", AssetTypeImage},
		{"textures/albedo.webp", AssetTypeImage},
		{"shaders/blur.frag", AssetTypeNone},
	} {
		if have := determineAssetType(c.path); have != c.want {
			t.Fatalf("determineAssetType(%s):\nhave %d\nwant %d", c.path, have, c.want)
		}
	}
}

func TestProgramName(t *testing.T) {
	for _, c := range [][2]string{
		{"assets/shaders/blur.frag.spv", "blur"},
		{"blur.layout.toml", "blur"},
		{"/x/y/reduce.comp.spv", "reduce"},
	} {
		if have := programName(c[0]); have != c[1] {
			t.Fatalf("programName(%s):\nhave %s\nwant %s", c[0], have, c[1])
		}
	}
}

func TestPrograms(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"blur.vert.spv", "blur.frag.spv", "blur.layout.toml", "reduce.comp.spv", "readme.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	am := NewAssetManager(dir)
	if err := am.Initialize(false); err != nil {
		t.Fatalf("Initialize:\nhave %v\nwant nil", err)
	}
	defer am.Shutdown()

	names := am.Programs()
	slices.Sort(names)
	if want := []string{"blur", "reduce"}; !slices.Equal(names, want) {
		t.Fatalf("Programs:\nhave %v\nwant %v", names, want)
	}
	if n := len(am.Assets(AssetTypeShaderLayout)); n != 1 {
		t.Fatalf("Assets(AssetTypeShaderLayout):\nhave %d\nwant 1", n)
	}
}

func TestInitializeMissingDir(t *testing.T) {
	am := NewAssetManager(filepath.Join(t.TempDir(), "nope"))
	if err := am.Initialize(false); err == nil {
		t.Fatal("Initialize: missing directory\nhave nil\nwant error")
	}
}

func TestWatchReportsChanges(t *testing.T) {
	dir := t.TempDir()
	am := NewAssetManager(dir)
	if err := am.Initialize(true); err != nil {
		t.Fatalf("Initialize:\nhave %v\nwant nil", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tonemap.frag.spv"), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-am.Changes():
		if name != "tonemap" {
			t.Fatalf("Changes:\nhave %q\nwant %q", name, "tonemap")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Changes: no event after writing a module")
	}

	am.Shutdown()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-am.Changes():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Changes: not closed after Shutdown")
		}
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checker.png")
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatal(err)
	}
	f.Close()

	am := NewAssetManager(dir)
	img, err := am.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage:\nhave %v\nwant nil", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Fatalf("LoadImage: bounds\nhave %v\nwant 2x2", b)
	}
	if r, _, _, a := img.At(0, 0).RGBA(); r != 0xffff || a != 0xffff {
		t.Fatalf("LoadImage: pixel (0,0)\nhave r=%#x a=%#x\nwant opaque red", r, a)
	}

	if _, err := am.LoadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Fatal("LoadImage: missing file\nhave nil\nwant error")
	}
}
