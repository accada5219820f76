// Package effects применяет стеки пиксельных эффектов к отрендеренным
// элементам и собирает комбинированные стеки с учётом корректирующих слоёв.
package effects

import (
	"image"
	"sort"

	"github.com/peopleinfo/freecut/internal/raster"
	"github.com/peopleinfo/freecut/internal/timeline"
)

// Effect kinds understood by Apply. Amount semantics per kind:
// brightness -1..1 additive, contrast/saturate 0..2 around 1, grayscale and
// invert 0..1 mix, blur is a radius in pixels, opacity 0..1 multiplier.
const (
	KindBrightness = "brightness"
	KindContrast   = "contrast"
	KindSaturate   = "saturate"
	KindGrayscale  = "grayscale"
	KindInvert     = "invert"
	KindBlur       = "blur"
	KindOpacity    = "opacity"
)

// CanIntroduceTransparency classifies effects that may reduce opacity or
// otherwise alter compositing. An item carrying one of these can never be
// treated as fully occluding.
func CanIntroduceTransparency(e timeline.Effect) bool {
	switch e.Kind {
	case KindOpacity, KindBlur:
		return true
	}
	return false
}

// CombinedStack returns the effect stack for an item rendered on a track with
// the given order at the given frame: the item's own effects first, then the
// effects of every visible adjustment layer on a track behind it (higher
// order) whose window contains the frame, by ascending track order.
func CombinedStack(comp *timeline.Composition, item *timeline.Item, trackOrder, frame int) []timeline.Effect {
	stack := make([]timeline.Effect, 0, len(item.Effects))
	stack = append(stack, item.Effects...)

	idx := make([]int, 0, len(comp.Tracks))
	for ti := range comp.Tracks {
		idx = append(idx, ti)
	}
	sort.Slice(idx, func(a, b int) bool {
		return comp.Tracks[idx[a]].Order < comp.Tracks[idx[b]].Order
	})

	for _, ti := range idx {
		tr := &comp.Tracks[ti]
		if tr.Order <= trackOrder || !tr.Visible {
			continue
		}
		for ii := range tr.Items {
			adj := &tr.Items[ii]
			if adj.Kind != timeline.KindAdjustment || !adj.ActiveAt(frame) {
				continue
			}
			stack = append(stack, adj.Effects...)
		}
	}
	return stack
}

// Apply runs the stack over the item's rendered pixels. The returned surface
// may be a different buffer than img (the blur pass allocates); callers must
// keep using the returned value.
func Apply(img *image.RGBA, stack []timeline.Effect) *image.RGBA {
	for _, e := range stack {
		switch e.Kind {
		case KindBrightness:
			d := e.Amount * 255
			mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
				return r + d, g + d, b + d
			})
		case KindContrast:
			f := e.Amount
			mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
				return (r-128)*f + 128, (g-128)*f + 128, (b-128)*f + 128
			})
		case KindSaturate:
			f := e.Amount
			mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
				gray := 0.299*r + 0.587*g + 0.114*b
				return gray + (r-gray)*f, gray + (g-gray)*f, gray + (b-gray)*f
			})
		case KindGrayscale:
			m := clamp01(e.Amount)
			mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
				gray := 0.299*r + 0.587*g + 0.114*b
				return r + (gray-r)*m, g + (gray-g)*m, b + (gray-b)*m
			})
		case KindInvert:
			m := clamp01(e.Amount)
			mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
				return r + (255-2*r)*m, g + (255-2*g)*m, b + (255-2*b)*m
			})
		case KindBlur:
			img = raster.BlurRGBA(img, e.Amount)
		case KindOpacity:
			scaleAlpha(img, clamp01(e.Amount))
		}
	}
	return img
}

// mapPixels applies a color transform on straight (unpremultiplied) RGB and
// re-premultiplies. Fully transparent pixels stay untouched.
func mapPixels(img *image.RGBA, fn func(r, g, b float64) (float64, float64, float64)) {
	for o := 0; o < len(img.Pix); o += 4 {
		a := img.Pix[o+3]
		if a == 0 {
			continue
		}
		fa := float64(a) / 255

		r := float64(img.Pix[o]) / fa
		g := float64(img.Pix[o+1]) / fa
		b := float64(img.Pix[o+2]) / fa

		r, g, b = fn(r, g, b)

		// Клампим прямое значение до репремультипликации, иначе канал может
		// превысить альфу.
		img.Pix[o] = clamp255(clampChannel(r) * fa)
		img.Pix[o+1] = clamp255(clampChannel(g) * fa)
		img.Pix[o+2] = clamp255(clampChannel(b) * fa)
	}
}

func clampChannel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func scaleAlpha(img *image.RGBA, f float64) {
	for o := 0; o < len(img.Pix); o += 4 {
		img.Pix[o] = clamp255(float64(img.Pix[o]) * f)
		img.Pix[o+1] = clamp255(float64(img.Pix[o+1]) * f)
		img.Pix[o+2] = clamp255(float64(img.Pix[o+2]) * f)
		img.Pix[o+3] = clamp255(float64(img.Pix[o+3]) * f)
	}
}

func clamp255(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
