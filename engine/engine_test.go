package engine

import (
	"slices"
	"testing"
)

func TestRequestScreenshot(t *testing.T) {
	// No rendering context: an immediate capture would panic.
	e := &Engine{}
	e.requestScreenshot("a.png")
	e.requestScreenshot("b.png")
	if want := []string{"a.png", "b.png"}; !slices.Equal(e.screenshots, want) {
		t.Fatalf("pending screenshots:\nhave %v\nwant %v", e.screenshots, want)
	}
	e.screenshots = nil
	e.takeScreenshots()
	if len(e.screenshots) != 0 {
		t.Fatalf("pending screenshots after capture:\nhave %v\nwant none", e.screenshots)
	}
}
