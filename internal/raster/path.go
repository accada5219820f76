package raster

import (
	"image"
	"math"

	"golang.org/x/image/vector"
)

// kappa approximates a quarter circle with one cubic Bezier segment.
const kappa = 0.5522847498307936

// Point is a 2D point in canvas space.
type Point struct {
	X, Y float64
}

type segOp uint8

const (
	opMove segOp = iota
	opLine
	opCube
)

type seg struct {
	op segOp
	p  [3]Point
}

// Path is a resolution-independent outline in canvas coordinates. Paths are
// built once (e.g. during mask precompute) and rasterized per frame.
type Path struct {
	segs []seg
}

// MoveTo starts a new subpath.
func (p *Path) MoveTo(x, y float64) {
	p.segs = append(p.segs, seg{op: opMove, p: [3]Point{{x, y}}})
}

// LineTo appends a line segment.
func (p *Path) LineTo(x, y float64) {
	p.segs = append(p.segs, seg{op: opLine, p: [3]Point{{x, y}}})
}

// CubeTo appends a cubic Bezier segment.
func (p *Path) CubeTo(x1, y1, x2, y2, x3, y3 float64) {
	p.segs = append(p.segs, seg{op: opCube, p: [3]Point{{x1, y1}, {x2, y2}, {x3, y3}}})
}

// Transform rotates the path around (cx, cy) by angle degrees. Geometry is
// rewritten in place; rasterization stays untouched.
func (p *Path) Transform(cx, cy, angleDeg float64) {
	if angleDeg == 0 {
		return
	}
	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	rot := func(pt Point) Point {
		dx, dy := pt.X-cx, pt.Y-cy
		return Point{cx + dx*cos - dy*sin, cy + dx*sin + dy*cos}
	}
	for i := range p.segs {
		for j := range p.segs[i].p {
			p.segs[i].p[j] = rot(p.segs[i].p[j])
		}
	}
}

// Rect appends an axis-aligned rectangle subpath.
func (p *Path) Rect(x, y, w, h float64) {
	p.MoveTo(x, y)
	p.LineTo(x+w, y)
	p.LineTo(x+w, y+h)
	p.LineTo(x, y+h)
	p.LineTo(x, y)
}

// RoundRect appends a rounded rectangle subpath. The radius is clamped to
// half of the smaller side.
func (p *Path) RoundRect(x, y, w, h, r float64) {
	maxR := math.Min(w, h) / 2
	if r > maxR {
		r = maxR
	}
	if r <= 0 {
		p.Rect(x, y, w, h)
		return
	}
	k := r * kappa
	p.MoveTo(x+r, y)
	p.LineTo(x+w-r, y)
	p.CubeTo(x+w-r+k, y, x+w, y+r-k, x+w, y+r)
	p.LineTo(x+w, y+h-r)
	p.CubeTo(x+w, y+h-r+k, x+w-r+k, y+h, x+w-r, y+h)
	p.LineTo(x+r, y+h)
	p.CubeTo(x+r-k, y+h, x, y+h-r+k, x, y+h-r)
	p.LineTo(x, y+r)
	p.CubeTo(x, y+r-k, x+r-k, y, x+r, y)
}

// Ellipse appends an ellipse subpath inscribed in the given box.
func (p *Path) Ellipse(x, y, w, h float64) {
	rx, ry := w/2, h/2
	cx, cy := x+rx, y+ry
	kx, ky := rx*kappa, ry*kappa
	p.MoveTo(cx+rx, cy)
	p.CubeTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry)
	p.CubeTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy)
	p.CubeTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry)
	p.CubeTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy)
}

// Coverage rasterizes the path into an alpha coverage buffer of the given
// size. 0 means fully outside, 255 fully inside.
func (p *Path) Coverage(w, h int) *image.Alpha {
	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	if len(p.segs) == 0 {
		return dst
	}

	rast := vector.NewRasterizer(w, h)
	for _, s := range p.segs {
		switch s.op {
		case opMove:
			rast.MoveTo(float32(s.p[0].X), float32(s.p[0].Y))
		case opLine:
			rast.LineTo(float32(s.p[0].X), float32(s.p[0].Y))
		case opCube:
			rast.CubeTo(
				float32(s.p[0].X), float32(s.p[0].Y),
				float32(s.p[1].X), float32(s.p[1].Y),
				float32(s.p[2].X), float32(s.p[2].Y),
			)
		}
	}
	rast.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
	return dst
}

// InvertCoverage flips a coverage buffer in place. For simple (non
// self-intersecting) outlines this equals the even-odd combination of a
// full-canvas rectangle with the path.
func InvertCoverage(cov *image.Alpha) {
	for i := range cov.Pix {
		cov.Pix[i] = 255 - cov.Pix[i]
	}
}

// BinarizeCoverage snaps anti-aliased coverage to strictly binary inclusion,
// producing bit-exact hard-clip boundaries.
func BinarizeCoverage(cov *image.Alpha) {
	for i, v := range cov.Pix {
		if v >= 128 {
			cov.Pix[i] = 255
		} else {
			cov.Pix[i] = 0
		}
	}
}
