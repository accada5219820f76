package timeline

// Transform is the fully resolved per-frame geometric and opacity state of an
// item. It is computed on demand and never stored back on the item.
type Transform struct {
	X            float64
	Y            float64
	Width        float64
	Height       float64
	Rotation     float64
	Opacity      float64
	CornerRadius float64
}

// Animated property names accepted in PropertyKeyframes.Property.
const (
	PropX            = "x"
	PropY            = "y"
	PropWidth        = "width"
	PropHeight       = "height"
	PropRotation     = "rotation"
	PropOpacity      = "opacity"
	PropCornerRadius = "cornerRadius"
)

// ResolveTransform computes the transform of an item at a target frame.
// intrinsicW/intrinsicH are the source media dimensions when known (zero
// otherwise). The result is a pure function of the arguments: resolving the
// same inputs twice yields identical values.
func ResolveTransform(item *Item, canvas CanvasSettings, intrinsicW, intrinsicH float64, kfs []PropertyKeyframes, frame int) Transform {
	tr := baseTransform(item, canvas, intrinsicW, intrinsicH)

	if len(kfs) == 0 {
		return tr
	}

	rel := float64(frame - item.From)
	for _, pk := range kfs {
		if pk.ItemID != item.ID || len(pk.Keyframes) == 0 {
			continue
		}
		v := interpolate(pk.Keyframes, rel)
		switch pk.Property {
		case PropX:
			tr.X = v
		case PropY:
			tr.Y = v
		case PropWidth:
			tr.Width = v
		case PropHeight:
			tr.Height = v
		case PropRotation:
			tr.Rotation = v
		case PropOpacity:
			tr.Opacity = clamp01(v)
		case PropCornerRadius:
			tr.CornerRadius = v
		}
	}
	return tr
}

// baseTransform resolves the static geometry: explicit values win, otherwise
// the source is fitted into the canvas preserving aspect ratio and centered.
func baseTransform(item *Item, canvas CanvasSettings, intrinsicW, intrinsicH float64) Transform {
	tr := Transform{
		X:            item.X,
		Y:            item.Y,
		Width:        item.Width,
		Height:       item.Height,
		Rotation:     item.Rotation,
		Opacity:      clamp01(item.Opacity),
		CornerRadius: item.CornerRadius,
	}

	if tr.Width > 0 || tr.Height > 0 {
		// Частично заданная геометрия: добираем вторую сторону по аспекту.
		if tr.Width <= 0 {
			if intrinsicH > 0 {
				tr.Width = tr.Height * aspect(intrinsicW, intrinsicH)
			} else {
				tr.Width = tr.Height * aspect(float64(canvas.Width), float64(canvas.Height))
			}
		}
		if tr.Height <= 0 {
			if intrinsicW > 0 {
				tr.Height = tr.Width / aspect(intrinsicW, intrinsicH)
			} else {
				tr.Height = tr.Width / aspect(float64(canvas.Width), float64(canvas.Height))
			}
		}
		return tr
	}

	cw, ch := float64(canvas.Width), float64(canvas.Height)
	if intrinsicW <= 0 || intrinsicH <= 0 {
		tr.Width, tr.Height = cw, ch
		return tr
	}

	scale := cw / intrinsicW
	if s := ch / intrinsicH; s < scale {
		scale = s
	}
	tr.Width = intrinsicW * scale
	tr.Height = intrinsicH * scale
	tr.X = item.X + (cw-tr.Width)/2
	tr.Y = item.Y + (ch-tr.Height)/2
	return tr
}

// interpolate evaluates an ordered keyframe list at a relative frame using
// piecewise linear interpolation, clamped to the first/last value outside the
// keyframed range.
func interpolate(kfs []Keyframe, rel float64) float64 {
	if rel <= float64(kfs[0].Frame) {
		return kfs[0].Value
	}
	last := kfs[len(kfs)-1]
	if rel >= float64(last.Frame) {
		return last.Value
	}

	for i := 0; i < len(kfs)-1; i++ {
		a, b := kfs[i], kfs[i+1]
		if rel < float64(a.Frame) || rel >= float64(b.Frame) {
			continue
		}
		span := float64(b.Frame - a.Frame)
		if span <= 0 {
			return b.Value
		}
		t := (rel - float64(a.Frame)) / span
		return a.Value + (b.Value-a.Value)*t
	}
	return last.Value
}

func aspect(w, h float64) float64 {
	if h <= 0 || w <= 0 {
		return 1
	}
	return w / h
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
