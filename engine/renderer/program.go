package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// CreateProgram creates a program from compiled stages and their
// binding layout.
func (c *Context) CreateProgram(desc metadata.ProgramDesc) (*Program, error) {
	if err := desc.Layout.Validate(); err != nil {
		err = fmt.Errorf("program '%s': %w", desc.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	gp, err := c.dev.NewProgram(&desc)
	if err != nil {
		err = fmt.Errorf("unable to create program '%s': %w", desc.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	p := &Program{Name: desc.Name, desc: desc, gpu: gp}
	p.ID = c.programIDs.Acquire(p)
	core.LogDebug("program '%s' created with id %d", p.Name, p.ID)
	return p, nil
}

// ReloadProgram replaces the stages and layout of p. On failure
// p keeps working with its previous stages. The pipelines built
// for p become unreachable and are destroyed once the frames in
// flight are done with them.
func (c *Context) ReloadProgram(p *Program, desc metadata.ProgramDesc) error {
	if err := desc.Layout.Validate(); err != nil {
		err = fmt.Errorf("reload of program '%s': %w", p.Name, err)
		core.LogError(err.Error())
		return err
	}
	gp, err := c.dev.NewProgram(&desc)
	if err != nil {
		err = fmt.Errorf("reload of program '%s': %w", p.Name, err)
		core.LogError(err.Error())
		return err
	}
	frame := c.Frame()
	c.pipelines.FreePipelines(p, frame)
	c.deletions.Push(ResourceProgram, p.Name, p.gpu, frame)
	p.gpu = gp
	p.desc = desc
	c.forgetProgram(p)
	core.LogInfo("program '%s' reloaded", p.Name)
	return nil
}

// CleanProgram destroys p and its pipelines.
func (c *Context) CleanProgram(p *Program) {
	if p.gpu == nil {
		return
	}
	frame := c.Frame()
	c.pipelines.FreePipelines(p, frame)
	c.deletions.Push(ResourceProgram, p.Name, p.gpu, frame)
	p.gpu = nil
	if err := c.programIDs.Release(p.ID); err != nil {
		core.LogWarn(err.Error())
	}
	c.forgetProgram(p)
	if c.state.program == p {
		c.state.program = nil
	}
}

// forgetProgram drops the pipelines recorded as bound, which may
// belong to p even when p is no longer the current program, so
// the next draw or dispatch looks its pipeline up again.
func (c *Context) forgetProgram(p *Program) {
	c.bound = gpuState{}
	c.boundPipeline = nil
	c.boundCompute = nil
	if c.state.program == p {
		for i := range c.groups {
			c.groups[i].dirty = true
		}
	}
}
