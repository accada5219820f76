// Package transition строит покадровые окна переходов между соседними
// клипами и реализует чистые функции смешивания двух кадров.
package transition

import (
	"errors"
	"fmt"
	"image"

	"github.com/peopleinfo/freecut/internal/timeline"
)

// ErrUnknownTransition is returned for transition kinds the engine does not
// implement. Unknown kinds are a defined error, never a silent no-op.
var ErrUnknownTransition = errors.New("transition: unknown kind")

// Supported transition kinds. The set mirrors the ffmpeg xfade family used
// elsewhere in the pipeline.
var kinds = map[string]bool{
	"fade":       true,
	"dissolve":   true,
	"wipeleft":   true,
	"wiperight":  true,
	"wipeup":     true,
	"wipedown":   true,
	"slideleft":  true,
	"slideright": true,
	"slideup":    true,
	"slidedown":  true,
	"circlecrop": true,
}

// Window is one transition resolved to an absolute frame range.
type Window struct {
	ID         string
	Kind       string
	Start      int
	End        int
	FromItemID string
	ToItemID   string
	TrackOrder int
}

// Contains reports whether the frame falls inside the window.
func (w *Window) Contains(frame int) bool {
	return frame >= w.Start && frame < w.End
}

// Progress returns the normalized 0..1 position of the frame in the window.
func (w *Window) Progress(frame int) float64 {
	span := w.End - w.Start
	if span <= 0 {
		return 1
	}
	p := float64(frame-w.Start) / float64(span)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// Engine holds the frame-indexed transition windows of one composition.
type Engine struct {
	windows []Window
}

// Precompute resolves the transition list against the composition's items.
// The window is centered on the cut: it starts half the duration before the
// incoming clip begins. Unknown kinds fail here, before any rendering starts.
func Precompute(comp *timeline.Composition) (*Engine, error) {
	eng := &Engine{}
	for _, tn := range comp.Transitions {
		if !kinds[tn.Kind] {
			return nil, fmt.Errorf("%w: %q (transition %s)", ErrUnknownTransition, tn.Kind, tn.ID)
		}
		to, order, ok := comp.FindItem(tn.ToItemID)
		if !ok {
			return nil, fmt.Errorf("transition %s: incoming item %q not found", tn.ID, tn.ToItemID)
		}
		if _, _, ok := comp.FindItem(tn.FromItemID); !ok {
			return nil, fmt.Errorf("transition %s: outgoing item %q not found", tn.ID, tn.FromItemID)
		}

		start := to.From - tn.DurationInFrames/2
		if start < 0 {
			start = 0
		}
		eng.windows = append(eng.windows, Window{
			ID:         tn.ID,
			Kind:       tn.Kind,
			Start:      start,
			End:        start + tn.DurationInFrames,
			FromItemID: tn.FromItemID,
			ToItemID:   tn.ToItemID,
			TrackOrder: order,
		})
	}
	return eng, nil
}

// ActiveAt returns the windows overlapping the frame.
func (e *Engine) ActiveAt(frame int) []Window {
	var active []Window
	for _, w := range e.windows {
		if w.Contains(frame) {
			active = append(active, w)
		}
	}
	return active
}

// HandledItems returns the ids of clips that are rendered by a transition at
// this frame and must be excluded from normal per-item rendering.
func (e *Engine) HandledItems(frame int) map[string]bool {
	handled := map[string]bool{}
	for _, w := range e.windows {
		if w.Contains(frame) {
			handled[w.FromItemID] = true
			handled[w.ToItemID] = true
		}
	}
	return handled
}

// Blend composites the outgoing and incoming frames into dst according to the
// transition kind at the given progress. All blend functions are pure: the
// same inputs always produce the same composite.
func Blend(kind string, dst, out, in *image.RGBA, progress float64) error {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	switch kind {
	case "fade":
		blendPerPixel(dst, out, in, w, h, func(x, y int) float64 { return progress })
	case "dissolve":
		threshold := uint32(progress * 256)
		blendPick(dst, out, in, w, h, func(x, y int) bool {
			return pixelHash(x, y)%256 < threshold
		})
	case "wipeleft":
		edge := int(progress * float64(w))
		blendPick(dst, out, in, w, h, func(x, y int) bool { return x >= w-edge })
	case "wiperight":
		edge := int(progress * float64(w))
		blendPick(dst, out, in, w, h, func(x, y int) bool { return x < edge })
	case "wipeup":
		edge := int(progress * float64(h))
		blendPick(dst, out, in, w, h, func(x, y int) bool { return y >= h-edge })
	case "wipedown":
		edge := int(progress * float64(h))
		blendPick(dst, out, in, w, h, func(x, y int) bool { return y < edge })
	case "slideleft":
		shift := w - int(progress*float64(w))
		blendShift(dst, out, in, w, h, shift, 0)
	case "slideright":
		shift := int(progress*float64(w)) - w
		blendShift(dst, out, in, w, h, shift, 0)
	case "slideup":
		shift := h - int(progress*float64(h))
		blendShift(dst, out, in, w, h, 0, shift)
	case "slidedown":
		shift := int(progress*float64(h)) - h
		blendShift(dst, out, in, w, h, 0, shift)
	case "circlecrop":
		cx, cy := float64(w)/2, float64(h)/2
		maxR2 := cx*cx + cy*cy
		r2 := progress * progress * maxR2
		blendPick(dst, out, in, w, h, func(x, y int) bool {
			dx, dy := float64(x)-cx, float64(y)-cy
			return dx*dx+dy*dy <= r2
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransition, kind)
	}
	return nil
}

// blendPerPixel mixes out and in with a per-pixel incoming weight.
func blendPerPixel(dst, out, in *image.RGBA, w, h int, weight func(x, y int) float64) {
	for y := 0; y < h; y++ {
		do := y * dst.Stride
		oo := y * out.Stride
		io := y * in.Stride
		for x := 0; x < w; x++ {
			p := weight(x, y)
			q := 1 - p
			for c := 0; c < 4; c++ {
				dst.Pix[do+x*4+c] = uint8(float64(out.Pix[oo+x*4+c])*q + float64(in.Pix[io+x*4+c])*p + 0.5)
			}
		}
	}
}

// blendPick copies either the incoming or outgoing pixel.
func blendPick(dst, out, in *image.RGBA, w, h int, takeIn func(x, y int) bool) {
	for y := 0; y < h; y++ {
		do := y * dst.Stride
		oo := y * out.Stride
		io := y * in.Stride
		for x := 0; x < w; x++ {
			src, so := out, oo
			if takeIn(x, y) {
				src, so = in, io
			}
			copy(dst.Pix[do+x*4:do+x*4+4], src.Pix[so+x*4:so+x*4+4])
		}
	}
}

// blendShift draws the outgoing frame and the incoming frame translated by
// (dx, dy); where the translated incoming frame has no pixels, the outgoing
// frame shows.
func blendShift(dst, out, in *image.RGBA, w, h, dx, dy int) {
	for y := 0; y < h; y++ {
		do := y * dst.Stride
		oo := y * out.Stride
		for x := 0; x < w; x++ {
			sx, sy := x-dx, y-dy
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				io := sy * in.Stride
				copy(dst.Pix[do+x*4:do+x*4+4], in.Pix[io+sx*4:io+sx*4+4])
			} else {
				copy(dst.Pix[do+x*4:do+x*4+4], out.Pix[oo+x*4:oo+x*4+4])
			}
		}
	}
}

// pixelHash is a deterministic per-pixel hash for the dissolve pattern.
func pixelHash(x, y int) uint32 {
	return uint32(x*73856093) ^ uint32(y*19349663)
}
