package renderer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type pipelineEntry struct {
	pipeline    driver.Pipeline
	program     driver.Program
	state       metadata.DrawState
	mesh        *metadata.MeshLayout
	attachments *metadata.AttachmentLayout
}

// PipelineCache builds graphics and compute pipelines on demand
// and keeps them per program, then per draw state hash.
// Entries sharing a hash are told apart by their layouts.
type PipelineCache struct {
	dev       driver.Device
	deletions *DeletionQueue
	graphics  map[uint32]map[uint64][]pipelineEntry
	compute   map[uint32]pipelineEntry

	// Number of pipelines built since creation.
	created int
}

func NewPipelineCache(dev driver.Device, deletions *DeletionQueue) *PipelineCache {
	return &PipelineCache{
		dev:       dev,
		deletions: deletions,
		graphics:  make(map[uint32]map[uint64][]pipelineEntry),
		compute:   make(map[uint32]pipelineEntry),
	}
}

// Get returns the pipeline matching state, building it on a miss.
// It returns nil when the build fails; failures are not cached.
func (c *PipelineCache) Get(state *gpuState) driver.Pipeline {
	prog := state.program
	hash := state.Hash()

	byHash, ok := c.graphics[prog.ID]
	if !ok {
		byHash = make(map[uint64][]pipelineEntry)
		c.graphics[prog.ID] = byHash
	}
	for _, e := range byHash[hash] {
		if e.state.Equivalent(&state.DrawState) && e.mesh.Equal(state.mesh) && e.attachments.Equal(state.attachments) {
			return e.pipeline
		}
	}

	p, err := c.dev.NewGraphicsPipeline(&driver.GraphicsPipelineDesc{
		Program:     prog.gpu,
		State:       &state.DrawState,
		Mesh:        state.mesh,
		Attachments: state.attachments,
	})
	if err != nil {
		core.LogError("%s: program '%s', state %016x: %s", core.ErrPipelineBuild, prog.Name, hash, err)
		return nil
	}
	c.created++
	byHash[hash] = append(byHash[hash], pipelineEntry{
		pipeline:    p,
		program:     prog.gpu,
		state:       state.DrawState,
		mesh:        state.mesh.Clone(),
		attachments: state.attachments.Clone(),
	})
	return p
}

// GetCompute returns the compute pipeline of prog.
func (c *PipelineCache) GetCompute(prog *Program) driver.Pipeline {
	if e, ok := c.compute[prog.ID]; ok {
		return e.pipeline
	}
	p, err := c.dev.NewComputePipeline(prog.gpu)
	if err != nil {
		core.LogError("%s: compute program '%s': %s", core.ErrPipelineBuild, prog.Name, err)
		return nil
	}
	c.created++
	c.compute[prog.ID] = pipelineEntry{pipeline: p, program: prog.gpu}
	return p
}

// FreePipelines drops every pipeline built for prog. They are
// destroyed once no frame in flight can use them.
func (c *PipelineCache) FreePipelines(prog *Program, frame uint64) {
	for _, entries := range c.graphics[prog.ID] {
		for _, e := range entries {
			c.deletions.Push(ResourcePipeline, prog.Name, e.pipeline, frame)
		}
	}
	delete(c.graphics, prog.ID)
	if e, ok := c.compute[prog.ID]; ok {
		c.deletions.Push(ResourcePipeline, prog.Name, e.pipeline, frame)
		delete(c.compute, prog.ID)
	}
}

// Count returns the number of cached pipelines.
func (c *PipelineCache) Count() int {
	n := len(c.compute)
	for _, byHash := range c.graphics {
		for _, entries := range byHash {
			n += len(entries)
		}
	}
	return n
}

// Load seeds the native cache from the blob at path. A missing or
// incompatible blob is not an error.
func (c *PipelineCache) Load(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			core.LogDebug("no pipeline cache at '%s'", path)
		} else {
			core.LogWarn("unable to read pipeline cache '%s': %s", path, err)
		}
		return
	}
	if err := c.dev.LoadPipelineCache(data); err != nil {
		core.LogWarn("ignoring pipeline cache '%s': %s", path, err)
		return
	}
	core.LogDebug("loaded pipeline cache '%s' (%d bytes)", path, len(data))
}

// Save writes the native cache blob to path.
func (c *PipelineCache) Save(path string) error {
	if path == "" {
		return nil
	}
	data, err := c.dev.PipelineCacheData()
	if err != nil {
		err = fmt.Errorf("unable to retrieve pipeline cache data: %w", err)
		core.LogWarn(err.Error())
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		err = fmt.Errorf("unable to write pipeline cache '%s': %w", path, err)
		core.LogWarn(err.Error())
		return err
	}
	return nil
}

// Clean destroys every pipeline right away. The GPU must be idle.
func (c *PipelineCache) Clean() {
	for _, byHash := range c.graphics {
		for _, entries := range byHash {
			for _, e := range entries {
				e.pipeline.Destroy()
			}
		}
	}
	for _, e := range c.compute {
		e.pipeline.Destroy()
	}
	clear(c.graphics)
	clear(c.compute)
}
