// Edit pipeline: ordered stage orchestration with memoized recomputation
package pipeline

import (
	"fmt"
	"hash/fnv"

	"artify/internal/adjust"
	"artify/internal/filter"
	"artify/internal/overlay"
	"artify/internal/style"
)

// EditStack is the full descriptive state of one edit, treated as a value:
// two stacks with equal fields address the same cached stage outputs.
// The zero value of every field except Style is neutral.
type EditStack struct {
	Style style.ID

	// SourceBlend blends the unstyled source back over the styled result:
	// 0 keeps the pure styled output, 1 restores the source entirely.
	SourceBlend float64

	Adjust   adjust.Params
	Filter   filter.Selection
	Overlays []overlay.Layer
}

// Validate rejects the whole stack before any stage runs, leaving session
// state untouched.
func (s EditStack) Validate() error {
	if _, err := style.Parse(string(s.Style)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if s.SourceBlend < 0 || s.SourceBlend > 1 {
		return fmt.Errorf("%w: source blend=%g out of range [0, 1]", ErrInvalidParameter, s.SourceBlend)
	}
	if err := s.Adjust.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if err := s.Filter.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	for i, layer := range s.Overlays {
		if layer.Opacity < 0 || layer.Opacity > 1 {
			return fmt.Errorf("%w: overlay %d opacity=%g out of range [0, 1]",
				ErrInvalidParameter, i, layer.Opacity)
		}
		if layer.Scale < 0 {
			return fmt.Errorf("%w: overlay %d scale=%g negative", ErrInvalidParameter, i, layer.Scale)
		}
	}
	return nil
}

// Stage indices into stageKeys, in pipeline order.
const (
	stageStyle = iota
	stageBlend
	stageAdjust
	stageFilter
	stageOverlay
	stageCount
)

// stageKeys holds one cache key per stage. Key n covers the source image
// plus every parameter feeding stages 0..n, so comparing keys of two
// stacks yields the lowest stage whose upstream input changed.
type stageKeys [stageCount]uint64

// keys derives the per-stage cache keys for this stack applied to a source.
func (s EditStack) keys(sourceID string) stageKeys {
	var k stageKeys
	h := fnv.New64a()

	fmt.Fprintf(h, "src=%s|style=%s", sourceID, s.Style)
	k[stageStyle] = h.Sum64()

	fmt.Fprintf(h, "|blend=%g", s.SourceBlend)
	k[stageBlend] = h.Sum64()

	fmt.Fprintf(h, "|adj=%+v", s.Adjust)
	k[stageAdjust] = h.Sum64()

	fmt.Fprintf(h, "|filter=%+v", s.Filter)
	k[stageFilter] = h.Sum64()

	for _, layer := range s.Overlays {
		fmt.Fprintf(h, "|ov=%+v", layer)
	}
	k[stageOverlay] = h.Sum64()
	return k
}
