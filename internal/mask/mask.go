// Package mask реализует движок масок: предвычисление геометрии на сессию и
// покадровое наложение clip/alpha масок на собранный контент.
package mask

import (
	"image"
	"sync"

	"github.com/peopleinfo/freecut/internal/raster"
	"github.com/peopleinfo/freecut/internal/timeline"
)

// Kind selects the compositing mode of a mask.
type Kind string

const (
	// KindClip cuts with a hard, non-anti-aliased boundary.
	KindClip Kind = "clip"
	// KindAlpha multiplies with (optionally feathered) coverage.
	KindAlpha Kind = "alpha"
)

// Precomputed is one mask with its session-static geometry resolved to a
// canvas-space coverage buffer.
type Precomputed struct {
	ItemID  string
	Start   int
	End     int
	Kind    Kind
	Feather float64
	Invert  bool

	base *image.Alpha // сырое покрытие геометрии

	once      sync.Once
	processed *image.Alpha // покрытие после invert/feather/binarize
}

// HardClip reports whether the mask composites with a binary boundary.
func (m *Precomputed) HardClip() bool {
	return m.Kind == KindClip && m.Feather <= 0
}

// Coverage returns the final coverage buffer, computing it on first use.
// Geometry, inversion and feather are all static, so the result is cached
// for the session.
func (m *Precomputed) Coverage() *image.Alpha {
	m.once.Do(func() {
		cov := image.NewAlpha(m.base.Rect)
		copy(cov.Pix, m.base.Pix)
		if m.Invert {
			// Для простых контуров эквивалентно even-odd комбинации
			// полноэкранного прямоугольника с путём маски.
			raster.InvertCoverage(cov)
		}
		if m.HardClip() {
			raster.BinarizeCoverage(cov)
		} else if m.Feather > 0 {
			cov = raster.BlurAlpha(cov, m.Feather)
		}
		m.processed = cov
	})
	return m.processed
}

// Engine holds all precomputed masks of one composition.
type Engine struct {
	masks []*Precomputed
}

// Precompute resolves the static geometry of every mask item once per render
// session. Mask geometry does not animate; only the active window is checked
// per frame.
func Precompute(comp *timeline.Composition) *Engine {
	eng := &Engine{}
	canvas := comp.Canvas()

	for ti := range comp.Tracks {
		tr := &comp.Tracks[ti]
		if !tr.Visible {
			continue
		}
		for ii := range tr.Items {
			it := &tr.Items[ii]
			if it.Kind != timeline.KindShape || !it.IsMask {
				continue
			}

			tf := timeline.ResolveTransform(it, canvas, 0, 0, nil, it.From)

			var p raster.Path
			switch it.Shape {
			case "ellipse", "circle":
				p.Ellipse(tf.X, tf.Y, tf.Width, tf.Height)
			default:
				p.RoundRect(tf.X, tf.Y, tf.Width, tf.Height, tf.CornerRadius)
			}
			p.Transform(tf.X+tf.Width/2, tf.Y+tf.Height/2, tf.Rotation)

			kind := KindClip
			if it.MaskType == string(KindAlpha) {
				kind = KindAlpha
			}

			eng.masks = append(eng.masks, &Precomputed{
				ItemID:  it.ID,
				Start:   it.From,
				End:     it.End(),
				Kind:    kind,
				Feather: it.MaskFeather,
				Invert:  it.MaskInvert,
				base:    p.Coverage(canvas.Width, canvas.Height),
			})
		}
	}
	return eng
}

// ActiveAt returns the masks whose window contains the frame.
func (e *Engine) ActiveAt(frame int) []*Precomputed {
	var active []*Precomputed
	for _, m := range e.masks {
		if frame >= m.Start && frame < m.End {
			active = append(active, m)
		}
	}
	return active
}

// AnyActiveAt reports whether at least one mask applies at the frame. The
// occlusion culler uses this: any active mask disables culling.
func (e *Engine) AnyActiveAt(frame int) bool {
	for _, m := range e.masks {
		if frame >= m.Start && frame < m.End {
			return true
		}
	}
	return false
}

// Apply composites the active masks onto the assembled content surface.
// Multiple masks chain as a logical AND: a pixel survives only where every
// mask keeps it.
func (e *Engine) Apply(content *image.RGBA, active []*Precomputed) {
	for _, m := range active {
		raster.ApplyCoverage(content, m.Coverage())
	}
}
