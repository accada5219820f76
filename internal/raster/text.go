package raster

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderText rasterizes text at the embedded font's natural size onto a
// transparent surface. The caller scales the result to the item's resolved
// transform, the same way image items are drawn.
func RenderText(text string, col color.RGBA) *image.RGBA {
	face := basicfont.Face7x13
	adv := font.MeasureString(face, text)
	w := adv.Ceil()
	if w <= 0 {
		w = 1
	}
	h := face.Height + 2

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)
	return img
}
