package metadata

import "testing"

func TestProgramLayoutValidate(t *testing.T) {
	for _, x := range [...]struct {
		name   string
		layout ProgramLayout
		ok     bool
	}{
		{"empty", ProgramLayout{}, true},
		{"valid", ProgramLayout{Bindings: []BindingSlot{
			{Name: "frame", Set: SetUniforms, Binding: 0, Kind: BindingUniformDynamic},
			{Name: "albedo", Set: SetTextures, Binding: 0, Kind: BindingTexture},
			{Name: "lights", Set: SetBuffers, Binding: 0, Kind: BindingStorageBuffer},
			{Name: "output", Set: SetImages, Binding: 0, Kind: BindingStorageImage},
		}}, true},
		{"set out of range", ProgramLayout{Bindings: []BindingSlot{
			{Name: "x", Set: SetCount, Kind: BindingTexture},
		}}, false},
		{"wrong kind", ProgramLayout{Bindings: []BindingSlot{
			{Name: "x", Set: SetTextures, Kind: BindingUniform},
		}}, false},
		{"duplicate", ProgramLayout{Bindings: []BindingSlot{
			{Name: "a", Set: SetTextures, Binding: 2, Kind: BindingTexture},
			{Name: "b", Set: SetTextures, Binding: 2, Kind: BindingTexture},
		}}, false},
	} {
		err := x.layout.Validate()
		if (err == nil) != x.ok {
			t.Fatalf("ProgramLayout.Validate (%s):\nhave %v\nwant ok=%t", x.name, err, x.ok)
		}
	}
}

func TestProgramLayoutSet(t *testing.T) {
	l := ProgramLayout{Bindings: []BindingSlot{
		{Name: "a", Set: SetTextures, Binding: 1, Kind: BindingTexture},
		{Name: "u", Set: SetUniforms, Binding: 0, Kind: BindingUniformDynamic},
		{Name: "b", Set: SetTextures, Binding: 0, Kind: BindingTexture},
	}}
	s := l.Set(SetTextures)
	if len(s) != 2 || s[0].Name != "b" || s[1].Name != "a" {
		t.Fatalf("ProgramLayout.Set:\nhave %v\nwant [b a]", s)
	}
	if s := l.Set(SetImages); len(s) != 0 {
		t.Fatalf("ProgramLayout.Set (empty):\nhave %v\nwant []", s)
	}
}

func TestUnmarshalText(t *testing.T) {
	var k BindingKind
	if err := k.UnmarshalText([]byte("Storage_Image")); err != nil || k != BindingStorageImage {
		t.Fatalf("BindingKind.UnmarshalText:\nhave %v, %v\nwant %v, nil", k, err, BindingStorageImage)
	}
	if err := k.UnmarshalText([]byte("sampler")); err == nil {
		t.Fatal("BindingKind.UnmarshalText: unknown kind accepted")
	}
	var s ShaderStage
	if err := s.UnmarshalText([]byte("fragment")); err != nil || s != ShaderStageFragment {
		t.Fatalf("ShaderStage.UnmarshalText:\nhave %v, %v\nwant %v, nil", s, err, ShaderStageFragment)
	}
	b := BindingSlot{Stages: []ShaderStage{ShaderStageVertex, ShaderStageFragment}}
	if f := b.StageFlags(); f != ShaderStageVertex|ShaderStageFragment {
		t.Fatalf("BindingSlot.StageFlags:\nhave %b\nwant %b", f, ShaderStageVertex|ShaderStageFragment)
	}
}

func TestQueryKind(t *testing.T) {
	if QueryTimeElapsed.Slots() != 2 || QueryTimeElapsed.Pool() != QueryPoolTimestamp {
		t.Fatal("QueryTimeElapsed: want 2 timestamp slots")
	}
	for _, k := range []QueryKind{QuerySamplesDrawn, QueryAnyDrawn} {
		if k.Slots() != 1 || k.Pool() != QueryPoolOcclusion {
			t.Fatalf("%v: want 1 occlusion slot", k)
		}
	}
}
