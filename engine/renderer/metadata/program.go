package metadata

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

/** @brief Shader stages, as bit flags. */
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageTessControl
	ShaderStageTessEval
	ShaderStageFragment
	ShaderStageCompute
)

var stageNames = map[string]ShaderStage{
	"vertex":       ShaderStageVertex,
	"tess_control": ShaderStageTessControl,
	"tess_eval":    ShaderStageTessEval,
	"fragment":     ShaderStageFragment,
	"compute":      ShaderStageCompute,
}

/** @brief File extension of the compiled module for a single stage. */
func (s ShaderStage) Extension() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageTessControl:
		return "tesc"
	case ShaderStageTessEval:
		return "tese"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageCompute:
		return "comp"
	}
	return ""
}

func (s *ShaderStage) UnmarshalText(text []byte) error {
	v, ok := stageNames[strings.ToLower(string(text))]
	if !ok {
		return fmt.Errorf("unknown shader stage %q", text)
	}
	*s = v
	return nil
}

/** @brief The kind of resource bound at a slot. */
type BindingKind uint8

const (
	/** @brief Uniform buffer with a per-draw dynamic offset. */
	BindingUniformDynamic BindingKind = iota
	BindingUniform
	/** @brief Combined image and sampler. */
	BindingTexture
	BindingStorageBuffer
	BindingStorageImage
)

var kindNames = map[string]BindingKind{
	"uniform_dynamic": BindingUniformDynamic,
	"uniform":         BindingUniform,
	"texture":         BindingTexture,
	"storage_buffer":  BindingStorageBuffer,
	"storage_image":   BindingStorageImage,
}

func (k *BindingKind) UnmarshalText(text []byte) error {
	v, ok := kindNames[strings.ToLower(string(text))]
	if !ok {
		return fmt.Errorf("unknown binding kind %q", text)
	}
	*k = v
	return nil
}

/** @brief Binding set groups, in set index order. */
const (
	SetUniforms uint32 = iota
	SetTextures
	SetBuffers
	SetImages
	SetCount
)

/** @brief One slot of a program binding layout. */
type BindingSlot struct {
	Name    string        `toml:"name"`
	Set     uint32        `toml:"set"`
	Binding uint32        `toml:"binding"`
	Kind    BindingKind   `toml:"kind"`
	Stages  []ShaderStage `toml:"stages"`
}

/** @brief Combined stage flags of the slot. */
func (b *BindingSlot) StageFlags() ShaderStage {
	var s ShaderStage
	for _, st := range b.Stages {
		s |= st
	}
	return s
}

/** @brief The binding layout of a program, as written in its layout sidecar. */
type ProgramLayout struct {
	Bindings []BindingSlot `toml:"binding"`
}

/** @brief Returns the slots of one set, by binding number. */
func (l *ProgramLayout) Set(set uint32) []BindingSlot {
	var slots []BindingSlot
	for _, b := range l.Bindings {
		if b.Set == set {
			slots = append(slots, b)
		}
	}
	slices.SortFunc(slots, func(a, b BindingSlot) int { return cmp.Compare(a.Binding, b.Binding) })
	return slots
}

/** @brief Checks set ranges, kinds per set and duplicate slots. */
func (l *ProgramLayout) Validate() error {
	seen := make(map[[2]uint32]string)
	for _, b := range l.Bindings {
		if b.Set >= SetCount {
			return fmt.Errorf("binding %q: set %d out of range", b.Name, b.Set)
		}
		if !kindAllowed(b.Set, b.Kind) {
			return fmt.Errorf("binding %q: kind %d not allowed in set %d", b.Name, b.Kind, b.Set)
		}
		key := [2]uint32{b.Set, b.Binding}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("binding %q: slot %d.%d already used by %q", b.Name, b.Set, b.Binding, other)
		}
		seen[key] = b.Name
	}
	return nil
}

func kindAllowed(set uint32, kind BindingKind) bool {
	switch set {
	case SetUniforms:
		return kind == BindingUniformDynamic
	case SetTextures:
		return kind == BindingTexture
	case SetBuffers:
		return kind == BindingUniform || kind == BindingStorageBuffer
	case SetImages:
		return kind == BindingStorageImage
	}
	return false
}

/** @brief One compiled stage of a program. */
type ShaderModule struct {
	Stage ShaderStage
	Code  []byte
}

/** @brief Everything needed to create a program on a device. */
type ProgramDesc struct {
	Name    string
	Modules []ShaderModule
	Layout  ProgramLayout
}

func (d *ProgramDesc) IsCompute() bool {
	return len(d.Modules) == 1 && d.Modules[0].Stage == ShaderStageCompute
}

func (d *ProgramDesc) HasTessellation() bool {
	for _, m := range d.Modules {
		if m.Stage == ShaderStageTessControl || m.Stage == ShaderStageTessEval {
			return true
		}
	}
	return false
}
