package loaders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Stages in pipeline order, which is also the order of the loaded modules.
var shaderStages = []metadata.ShaderStage{
	metadata.ShaderStageVertex,
	metadata.ShaderStageTessControl,
	metadata.ShaderStageTessEval,
	metadata.ShaderStageFragment,
	metadata.ShaderStageCompute,
}

// ShaderLoader reads programs compiled to <name>.<stage>.spv, with their
// binding layout in <name>.layout.toml.
type ShaderLoader struct {
	Dir string
}

// ModulePath is the path of the SPIR-V binary of one stage of name.
func (sl *ShaderLoader) ModulePath(name string, stage metadata.ShaderStage) string {
	return filepath.Join(sl.Dir, fmt.Sprintf("%s.%s.spv", name, stage.Extension()))
}

// LayoutPath is the path of the binding layout sidecar of name.
func (sl *ShaderLoader) LayoutPath(name string) string {
	return filepath.Join(sl.Dir, name+".layout.toml")
}

func (sl *ShaderLoader) Load(name string) (*metadata.ProgramDesc, error) {
	desc := &metadata.ProgramDesc{Name: name}

	for _, stage := range shaderStages {
		// Read SPIR-V binary file, missing stages are skipped.
		code, err := os.ReadFile(sl.ModulePath(name, stage))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		desc.Modules = append(desc.Modules, metadata.ShaderModule{Stage: stage, Code: code})
	}
	if len(desc.Modules) == 0 {
		return nil, fmt.Errorf("program %q: no SPIR-V modules in %s", name, sl.Dir)
	}
	for _, m := range desc.Modules {
		if m.Stage == metadata.ShaderStageCompute && len(desc.Modules) > 1 {
			return nil, fmt.Errorf("program %q: compute module mixed with graphics stages", name)
		}
	}

	layout, err := sl.LoadLayout(name)
	if err != nil {
		return nil, err
	}
	desc.Layout = *layout

	core.LogDebug("loaded program %q (%d modules, %d bindings)", name, len(desc.Modules), len(desc.Layout.Bindings))
	return desc, nil
}

// LoadLayout parses the binding layout of name. A program without a
// sidecar binds nothing.
func (sl *ShaderLoader) LoadLayout(name string) (*metadata.ProgramLayout, error) {
	layout := &metadata.ProgramLayout{}
	data, err := os.ReadFile(sl.LayoutPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return layout, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, layout); err != nil {
		return nil, fmt.Errorf("program %q: failed to parse layout: %w", name, err)
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("program %q: %w", name, err)
	}
	return layout, nil
}
