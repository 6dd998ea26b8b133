package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Level-of-detail clamp of mipmapped samplers, past any real
// mip count.
const samplerMaxLOD = 1000

// SamplerLibrary creates samplers on first use and shares them
// between textures.
type SamplerLibrary struct {
	dev        driver.Device
	anisotropy bool
	samplers   map[driver.SamplerDesc]driver.Sampler
}

// NewSamplerLibrary creates the clamp and repeat samplers for
// every filter up front.
func NewSamplerLibrary(dev driver.Device) (*SamplerLibrary, error) {
	l := &SamplerLibrary{
		dev:        dev,
		anisotropy: dev.Limits().MaxAnisotropy > 1,
		samplers:   make(map[driver.SamplerDesc]driver.Sampler),
	}
	for _, wrap := range []metadata.TextureWrap{metadata.TextureWrapClamp, metadata.TextureWrapRepeat} {
		for f := metadata.TextureFilterNearest; f <= metadata.TextureFilterLinearLinear; f++ {
			if _, err := l.get(f, wrap); err != nil {
				l.Clean(nil, 0)
				return nil, err
			}
		}
	}
	return l, nil
}

func (l *SamplerLibrary) desc(filter metadata.TextureFilter, wrap metadata.TextureWrap) driver.SamplerDesc {
	d := driver.SamplerDesc{Filter: filter, Wrap: wrap}
	if filter.Mipmapped() {
		d.MaxLOD = samplerMaxLOD
		d.Anisotropy = l.anisotropy && filter == metadata.TextureFilterLinearLinear
	}
	return d
}

func (l *SamplerLibrary) get(filter metadata.TextureFilter, wrap metadata.TextureWrap) (driver.Sampler, error) {
	d := l.desc(filter, wrap)
	if s, ok := l.samplers[d]; ok {
		return s, nil
	}
	s, err := l.dev.NewSampler(&d)
	if err != nil {
		err = fmt.Errorf("unable to create sampler (filter %d, wrap %d): %w", filter, wrap, err)
		core.LogError(err.Error())
		return nil, err
	}
	l.samplers[d] = s
	return s, nil
}

// Get returns the sampler for filter and wrap, or nil.
func (l *SamplerLibrary) Get(filter metadata.TextureFilter, wrap metadata.TextureWrap) driver.Sampler {
	s, _ := l.get(filter, wrap)
	return s
}

func (l *SamplerLibrary) Len() int {
	return len(l.samplers)
}

// Clean schedules every sampler for destruction, or destroys
// them right away when deletions is nil.
func (l *SamplerLibrary) Clean(deletions *DeletionQueue, frame uint64) {
	for _, s := range l.samplers {
		if deletions == nil {
			s.Destroy()
			continue
		}
		deletions.Push(ResourceSampler, "sampler", s, frame)
	}
	clear(l.samplers)
}
