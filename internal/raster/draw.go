package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Over composites src over dst with the given opacity (0..1).
func Over(dst *image.RGBA, src image.Image, opacity float64) {
	if opacity <= 0 {
		return
	}
	if opacity >= 1 {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, dst.Bounds(), src, src.Bounds().Min, mask, image.Point{}, draw.Over)
}

// Fill floods the whole surface with a color.
func Fill(dst *image.RGBA, col color.RGBA) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

// FillPath fills the path with a solid color using anti-aliased coverage.
func FillPath(dst *image.RGBA, p *Path, col color.RGBA) {
	cov := p.Coverage(dst.Rect.Dx(), dst.Rect.Dy())
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(col), image.Point{}, cov, image.Point{}, draw.Over)
}

// ApplyCoverage multiplies every (premultiplied) channel of img by the
// coverage buffer. Pixels with zero coverage become fully transparent.
func ApplyCoverage(img *image.RGBA, cov *image.Alpha) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		io := y * img.Stride
		co := y * cov.Stride
		for x := 0; x < w; x++ {
			a := uint32(cov.Pix[co+x])
			if a == 255 {
				continue
			}
			o := io + x*4
			if a == 0 {
				img.Pix[o] = 0
				img.Pix[o+1] = 0
				img.Pix[o+2] = 0
				img.Pix[o+3] = 0
				continue
			}
			img.Pix[o] = uint8(uint32(img.Pix[o]) * a / 255)
			img.Pix[o+1] = uint8(uint32(img.Pix[o+1]) * a / 255)
			img.Pix[o+2] = uint8(uint32(img.Pix[o+2]) * a / 255)
			img.Pix[o+3] = uint8(uint32(img.Pix[o+3]) * a / 255)
		}
	}
}

// DrawImage draws src into dst at (x, y) with target size (w, h), rotated by
// rotationDeg around the target center, modulated by opacity. Bilinear
// filtering keeps animated scaling smooth.
func DrawImage(dst *image.RGBA, src image.Image, x, y, w, h, rotationDeg, opacity float64) {
	if opacity <= 0 || w <= 0 || h <= 0 {
		return
	}
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw == 0 || sh == 0 {
		return
	}

	sx, sy := w/sw, h/sh
	rad := rotationDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	srcCx := float64(sb.Min.X) + sw/2
	srcCy := float64(sb.Min.Y) + sh/2
	dstCx := x + w/2
	dstCy := y + h/2

	m := f64.Aff3{
		cos * sx, -sin * sy, dstCx - cos*sx*srcCx + sin*sy*srcCy,
		sin * sx, cos * sy, dstCy - sin*sx*srcCx - cos*sy*srcCy,
	}

	var opts *xdraw.Options
	if opacity < 1 {
		opts = &xdraw.Options{
			SrcMask: image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)}),
		}
	}
	xdraw.ApproxBiLinear.Transform(dst, m, src, sb, xdraw.Over, opts)
}

// Scale draws src scaled into the dst rectangle without rotation.
func Scale(dst *image.RGBA, dr image.Rectangle, src image.Image) {
	xdraw.ApproxBiLinear.Scale(dst, dr, src, src.Bounds(), xdraw.Over, nil)
}

// Snapshot copies an RGBA surface into a standalone pixel buffer. Used when
// pixels must outlive a pooled surface.
func Snapshot(src *image.RGBA) []byte {
	out := make([]byte, len(src.Pix))
	copy(out, src.Pix)
	return out
}
