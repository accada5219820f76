package compositor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log"
	"math"

	"github.com/peopleinfo/freecut/internal/effects"
	"github.com/peopleinfo/freecut/internal/frames"
	"github.com/peopleinfo/freecut/internal/raster"
	"github.com/peopleinfo/freecut/internal/timeline"
	"github.com/peopleinfo/freecut/internal/transition"
)

// coverEpsilon is the tolerance in pixels for the "covers the whole canvas"
// occlusion check.
const coverEpsilon = 0.5

// Renderer builds frames of one composition. Not safe for concurrent
// RenderFrame calls on the same instance.
type Renderer struct {
	rc       *RenderContext
	children map[string]*Renderer

	// probe, если задан, вызывается перед отрисовкой каждого элемента.
	probe func(itemID string, frame int)
}

// NewRenderer creates a renderer over a prepared context.
func NewRenderer(rc *RenderContext) *Renderer {
	return &Renderer{rc: rc, children: map[string]*Renderer{}}
}

// SetProbe installs a hook called before every per-item draw.
func (r *Renderer) SetProbe(fn func(itemID string, frame int)) {
	r.probe = fn
}

// RenderFrame composites the frame and returns a pooled canvas-sized surface.
// The caller must return it with rc.Surfaces.Put once the pixels are consumed
// (or snapshotted).
func (r *Renderer) RenderFrame(ctx context.Context, frame int) (*image.RGBA, error) {
	rc := r.rc
	canvas := rc.Comp.Canvas()
	content := rc.Surfaces.Get(canvas.Width, canvas.Height)

	if bg := rc.Comp.BackgroundColor; bg != "" {
		raster.Fill(content, raster.ParseColor(bg))
	}

	activeMasks := rc.Masks.ActiveAt(frame)
	handled := rc.Transitions.HandledItems(frame)
	windows := rc.Transitions.ActiveAt(frame)

	// Любая активная маска выключает окклюзию: обрезанный «заслоняющий»
	// элемент перестаёт заслонять.
	cutoff := math.MaxInt
	if len(activeMasks) == 0 {
		cutoff = r.cullCutoff(ctx, frame, handled)
	}

	// Дорожки рисуются сзади вперёд: по убыванию order.
	order := trackIndexesByOrderDesc(rc.Comp)
	for _, ti := range order {
		tr := &rc.Comp.Tracks[ti]
		if !tr.Visible || tr.Order > cutoff {
			continue
		}
		if err := ctx.Err(); err != nil {
			rc.Surfaces.Put(content)
			return nil, err
		}

		for ii := range tr.Items {
			it := &tr.Items[ii]
			if !it.ActiveAt(frame) || !it.Visual() || handled[it.ID] {
				continue
			}
			surf, err := r.renderItemSurface(ctx, it, tr.Order, frame)
			if err != nil {
				rc.Surfaces.Put(content)
				return nil, err
			}
			if surf != nil {
				raster.Over(content, surf, 1)
				rc.Surfaces.Put(surf)
			}
		}

		for _, w := range windows {
			if w.TrackOrder != tr.Order {
				continue
			}
			if err := r.renderTransition(ctx, content, &w, frame); err != nil {
				rc.Surfaces.Put(content)
				return nil, err
			}
		}
	}

	rc.Masks.Apply(content, activeMasks)
	return content, nil
}

// cullCutoff walks the tracks front to back and returns the order of the
// frontmost fully occluding item. Tracks behind it are skipped entirely.
func (r *Renderer) cullCutoff(ctx context.Context, frame int, handled map[string]bool) int {
	rc := r.rc
	canvas := rc.Comp.Canvas()
	cw, ch := float64(canvas.Width), float64(canvas.Height)

	best := math.MaxInt
	for ti := range rc.Comp.Tracks {
		tr := &rc.Comp.Tracks[ti]
		if !tr.Visible || tr.Order >= best {
			continue
		}
		for ii := range tr.Items {
			it := &tr.Items[ii]
			if it.Kind != timeline.KindVideo && it.Kind != timeline.KindImage {
				continue
			}
			if !it.ActiveAt(frame) || handled[it.ID] {
				continue
			}

			iw, ih := r.intrinsicSize(ctx, it)
			tf := timeline.ResolveTransform(it, canvas, iw, ih, rc.Comp.ItemKeyframes(it.ID), frame)
			if tf.Opacity != 1 || tf.CornerRadius != 0 {
				continue
			}
			rot := math.Mod(tf.Rotation, 360)
			if rot < 0 {
				rot += 360
			}
			if rot != 0 && rot != 180 {
				continue
			}
			if tf.X > coverEpsilon || tf.Y > coverEpsilon ||
				tf.X+tf.Width < cw-coverEpsilon || tf.Y+tf.Height < ch-coverEpsilon {
				continue
			}
			stack := effects.CombinedStack(rc.Comp, it, tr.Order, frame)
			opaque := true
			for _, e := range stack {
				if effects.CanIntroduceTransparency(e) {
					opaque = false
					break
				}
			}
			if opaque {
				best = tr.Order
				break
			}
		}
	}
	return best
}

// renderItemSurface draws one item onto a fresh pooled canvas-sized surface
// with its transform, effects and opacity baked in. A nil surface with nil
// error means the item contributed nothing this frame (decode gap, fully
// transparent). Frames outside the item window are clamped, so transition
// members keep showing their boundary frame.
func (r *Renderer) renderItemSurface(ctx context.Context, it *timeline.Item, trackOrder, frame int) (*image.RGBA, error) {
	rc := r.rc
	canvas := rc.Comp.Canvas()

	clamped := frame
	if clamped < it.From {
		clamped = it.From
	}
	if clamped >= it.End() {
		clamped = it.End() - 1
	}

	iw, ih := r.intrinsicSize(ctx, it)
	tf := timeline.ResolveTransform(it, canvas, iw, ih, rc.Comp.ItemKeyframes(it.ID), clamped)
	if tf.Opacity <= 0 {
		return nil, nil
	}

	if r.probe != nil {
		r.probe(it.ID, frame)
	}

	surf := rc.Surfaces.Get(canvas.Width, canvas.Height)

	switch it.Kind {
	case timeline.KindVideo:
		src, err := rc.Sources.FrameAt(ctx, it.ID, it.Src, r.mediaSeconds(it, clamped), targetSize(tf.Width), targetSize(tf.Height))
		if err != nil {
			rc.Surfaces.Put(surf)
			if errors.Is(err, frames.ErrNoSample) || ctx.Err() == nil {
				// Сбой декодирования одного клипа не роняет кадр целиком.
				log.Printf("[!] Кадр %d, клип %s: %v", frame, it.ID, err)
				return nil, nil
			}
			return nil, err
		}
		raster.DrawImage(surf, src, tf.X, tf.Y, tf.Width, tf.Height, tf.Rotation, tf.Opacity)

	case timeline.KindImage:
		var src *image.RGBA
		var err error
		if frames.IsGIF(it.Src) {
			src, err = rc.Images.GIFFrameAt(it.Src, r.mediaSeconds(it, clamped))
		} else {
			src, err = rc.Images.Still(it.Src)
		}
		if err != nil {
			rc.Surfaces.Put(surf)
			log.Printf("[!] Кадр %d, изображение %s: %v", frame, it.ID, err)
			return nil, nil
		}
		raster.DrawImage(surf, src, tf.X, tf.Y, tf.Width, tf.Height, tf.Rotation, tf.Opacity)

	case timeline.KindShape:
		var p raster.Path
		switch it.Shape {
		case "ellipse", "circle":
			p.Ellipse(tf.X, tf.Y, tf.Width, tf.Height)
		default:
			p.RoundRect(tf.X, tf.Y, tf.Width, tf.Height, tf.CornerRadius)
		}
		p.Transform(tf.X+tf.Width/2, tf.Y+tf.Height/2, tf.Rotation)
		raster.FillPath(surf, &p, modulate(raster.ParseColor(it.Fill), tf.Opacity))

	case timeline.KindText:
		src := raster.RenderText(it.Text, raster.ParseColor(it.Color))
		raster.DrawImage(surf, src, tf.X, tf.Y, tf.Width, tf.Height, tf.Rotation, tf.Opacity)

	case timeline.KindComposition:
		child := r.childRenderer(it.ID)
		if child == nil {
			rc.Surfaces.Put(surf)
			return nil, nil
		}
		nested, err := child.RenderFrame(ctx, clamped-it.From)
		if err != nil {
			rc.Surfaces.Put(surf)
			return nil, err
		}
		raster.DrawImage(surf, nested, tf.X, tf.Y, tf.Width, tf.Height, tf.Rotation, tf.Opacity)
		child.rc.Surfaces.Put(nested)
	}

	// Скругление углов обрезает уже отрисованный элемент.
	if tf.CornerRadius > 0 && it.Kind != timeline.KindShape {
		var p raster.Path
		p.RoundRect(tf.X, tf.Y, tf.Width, tf.Height, tf.CornerRadius)
		p.Transform(tf.X+tf.Width/2, tf.Y+tf.Height/2, tf.Rotation)
		raster.ApplyCoverage(surf, p.Coverage(canvas.Width, canvas.Height))
	}

	stack := effects.CombinedStack(rc.Comp, it, trackOrder, clamped)
	if len(stack) > 0 {
		surf = effects.Apply(surf, stack)
	}
	return surf, nil
}

// renderTransition renders both member clips full-frame, blends them with the
// transition curve and composites the result.
func (r *Renderer) renderTransition(ctx context.Context, content *image.RGBA, w *transition.Window, frame int) error {
	rc := r.rc
	from, fromOrder, okFrom := rc.Comp.FindItem(w.FromItemID)
	to, toOrder, okTo := rc.Comp.FindItem(w.ToItemID)
	if !okFrom || !okTo {
		return nil
	}

	canvas := rc.Comp.Canvas()
	outSurf, err := r.renderItemSurface(ctx, from, fromOrder, frame)
	if err != nil {
		return err
	}
	if outSurf == nil {
		outSurf = rc.Surfaces.Get(canvas.Width, canvas.Height)
	}
	inSurf, err := r.renderItemSurface(ctx, to, toOrder, frame)
	if err != nil {
		rc.Surfaces.Put(outSurf)
		return err
	}
	if inSurf == nil {
		inSurf = rc.Surfaces.Get(canvas.Width, canvas.Height)
	}

	dst := rc.Surfaces.Get(canvas.Width, canvas.Height)
	err = transition.Blend(w.Kind, dst, outSurf, inSurf, w.Progress(frame))
	if err == nil {
		raster.Over(content, dst, 1)
	}
	rc.Surfaces.Put(outSurf)
	rc.Surfaces.Put(inSurf)
	rc.Surfaces.Put(dst)
	return err
}

// mediaSeconds maps a composition frame to the source media timestamp of the
// clip, honoring trim offset and playback speed.
func (r *Renderer) mediaSeconds(it *timeline.Item, frame int) float64 {
	speed := it.Speed
	if speed <= 0 {
		speed = 1
	}
	fps := float64(r.rc.Comp.FPS)
	return (float64(frame-it.From)*speed + float64(it.SourceStart)) / fps
}

// intrinsicSize returns the natural pixel dimensions of the item's source
// when known. Zero values let the transform resolver fall back to the canvas.
func (r *Renderer) intrinsicSize(ctx context.Context, it *timeline.Item) (float64, float64) {
	rc := r.rc
	switch it.Kind {
	case timeline.KindVideo:
		if probe, err := rc.Sources.Init(ctx, it.Src); err == nil {
			return float64(probe.Width), float64(probe.Height)
		}
	case timeline.KindImage:
		if frames.IsGIF(it.Src) {
			if img, err := rc.Images.GIFFrameAt(it.Src, 0); err == nil {
				return float64(img.Rect.Dx()), float64(img.Rect.Dy())
			}
		} else if img, err := rc.Images.Still(it.Src); err == nil {
			return float64(img.Rect.Dx()), float64(img.Rect.Dy())
		}
	case timeline.KindText:
		m := rc.TextMeasure.Measure(it.Text, it.FontSize)
		return m.Width, m.Height
	case timeline.KindComposition:
		if it.Composition != nil {
			return float64(it.Composition.Width), float64(it.Composition.Height)
		}
	}
	return 0, 0
}

func (r *Renderer) childRenderer(itemID string) *Renderer {
	if child := r.children[itemID]; child != nil {
		return child
	}
	rc := r.rc.Child(itemID)
	if rc == nil {
		return nil
	}
	child := NewRenderer(rc)
	child.probe = r.probe
	r.children[itemID] = child
	return child
}

// trackIndexesByOrderDesc returns track indexes sorted back to front.
func trackIndexesByOrderDesc(comp *timeline.Composition) []int {
	idx := make([]int, len(comp.Tracks))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && comp.Tracks[idx[j]].Order > comp.Tracks[idx[j-1]].Order; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

// modulate scales a premultiplied color by an opacity factor.
func modulate(c color.RGBA, opacity float64) color.RGBA {
	if opacity >= 1 {
		return c
	}
	return color.RGBA{
		R: uint8(float64(c.R)*opacity + 0.5),
		G: uint8(float64(c.G)*opacity + 0.5),
		B: uint8(float64(c.B)*opacity + 0.5),
		A: uint8(float64(c.A)*opacity + 0.5),
	}
}

func targetSize(v float64) int {
	n := int(v + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}
