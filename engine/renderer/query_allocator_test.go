package renderer

import (
	"testing"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestQueryValues(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	elapsed := ctx.NewQuery(metadata.QueryTimeElapsed)
	samples := ctx.NewQuery(metadata.QuerySamplesDrawn)
	drawn := ctx.NewQuery(metadata.QueryAnyDrawn)
	for _, q := range []*Query{elapsed, samples, drawn} {
		q.Begin()
		q.End()
	}
	if v := elapsed.Value(); v != 0 {
		t.Fatalf("Query.Value before submission:\nhave %d\nwant 0", v)
	}
	ctx.NextFrame()

	// Two timestamps 100 ticks apart, 2ns per tick.
	if v := elapsed.Value(); v != 200 {
		t.Fatalf("TimeElapsed Query.Value:\nhave %d\nwant 200", v)
	}
	if v := samples.Value(); v != dev.samples {
		t.Fatalf("SamplesDrawn Query.Value:\nhave %d\nwant %d", v, dev.samples)
	}
	if v := drawn.Value(); v != 1 {
		t.Fatalf("AnyDrawn Query.Value:\nhave %d\nwant 1", v)
	}

	// Not run in the previous frame, the last value is kept.
	ctx.NextFrame()
	if v := elapsed.Value(); v != 200 {
		t.Fatalf("Query.Value of a query not run:\nhave %d\nwant 200", v)
	}
}

func TestQueryPoolFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueryCount = 3
	ctx, _ := newTestContext(t, cfg, nil)
	defer ctx.Clean()

	if q := ctx.NewQuery(metadata.QueryTimeElapsed); q == nil {
		t.Fatal("Context.NewQuery: nil with free slots")
	}
	if q := ctx.NewQuery(metadata.QueryTimeElapsed); q != nil {
		t.Fatal("Context.NewQuery: allocated past the pool size")
	}
	// Occlusion queries have their own pool.
	for i := 0; i < 3; i++ {
		if q := ctx.NewQuery(metadata.QueryAnyDrawn); q == nil {
			t.Fatalf("Context.NewQuery (occlusion #%d): nil with free slots", i)
		}
	}
}

func TestQueryMisuse(t *testing.T) {
	ctx, dev := newTestContext(t, testConfig(), nil)
	defer ctx.Clean()

	q := ctx.NewQuery(metadata.QueryTimeElapsed)
	q.End()
	q.Begin()
	q.Begin()
	if n := dev.count("WriteTimestamp"); n != 1 {
		t.Fatalf("recorded WriteTimestamp:\nhave %d\nwant 1", n)
	}
	q.End()

	fb := ctx.SetupFramebuffer("target", 8, 8, []metadata.Format{metadata.FormatRGBA8}, metadata.FormatUndefined)
	ctx.BeginRender(fb, metadata.Load{})
	if q := ctx.NewQuery(metadata.QuerySamplesDrawn); q != nil {
		t.Fatal("Context.NewQuery: created inside a render pass")
	}
	ctx.EndRender()
}
