package renderer

// Metrics are per-frame counters of the work submitted through
// a Context.
type Metrics struct {
	DrawCalls           int
	QuadCalls           int
	Dispatches          int
	PipelineBinds       int
	PipelinesCreated    int
	StateChanges        int
	TextureBindings     int
	BufferBindings      int
	ProgramBindings     int
	FramebufferBindings int
	BindingSets         int
	Uploads             int
	Downloads           int
	Blits               int
}

// Metrics returns the counters of the last completed frame.
func (c *Context) Metrics() Metrics {
	return c.lastMetrics
}

// CurrentMetrics returns the counters of the frame being recorded.
func (c *Context) CurrentMetrics() Metrics {
	return c.metrics
}

func (c *Context) rollMetrics() {
	c.lastMetrics = c.metrics
	c.metrics = Metrics{}
}
