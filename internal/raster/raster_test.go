package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff0000", color.RGBA{255, 0, 0, 255}},
		{"#00ff00", color.RGBA{0, 255, 0, 255}},
		{"#0000ff80", color.RGBA{0, 0, 128, 128}},
		{"#ffffff40", color.RGBA{64, 64, 64, 64}},
		{"#fff", color.RGBA{255, 255, 255, 255}},
		{"", color.RGBA{0, 0, 0, 255}},
		{"nonsense", color.RGBA{0, 0, 0, 255}},
	}
	for _, tt := range tests {
		got := ParseColor(tt.in)
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
		// color.RGBA — предумноженный формат: каналы не превышают альфу.
		if got.R > got.A || got.G > got.A || got.B > got.A {
			t.Errorf("ParseColor(%q) = %v: каналы больше альфы", tt.in, got)
		}
	}
}

func TestRectCoverage(t *testing.T) {
	var p Path
	p.Rect(10, 10, 20, 20)
	cov := p.Coverage(40, 40)

	if cov.Pix[20*cov.Stride+20] != 255 {
		t.Error("inside the rect should be fully covered")
	}
	if cov.Pix[5*cov.Stride+5] != 0 {
		t.Error("outside the rect should be uncovered")
	}
}

func TestBinarizeCoverageIsStrictlyBinary(t *testing.T) {
	var p Path
	p.Ellipse(5, 5, 30, 30)
	cov := p.Coverage(40, 40)
	BinarizeCoverage(cov)

	for i, v := range cov.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("pixel %d has partial coverage %d after binarize", i, v)
		}
	}
}

func TestInvertCoverage(t *testing.T) {
	var p Path
	p.Rect(0, 0, 10, 10)
	cov := p.Coverage(20, 20)
	InvertCoverage(cov)

	if cov.Pix[5*cov.Stride+5] != 0 {
		t.Error("inverted: inside should be uncovered")
	}
	if cov.Pix[15*cov.Stride+15] != 255 {
		t.Error("inverted: outside should be covered")
	}
}

func TestBlurAlphaRamp(t *testing.T) {
	// Резкая вертикальная граница: слева 255, справа 0.
	src := image.NewAlpha(image.Rect(0, 0, 60, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 30; x++ {
			src.Pix[y*src.Stride+x] = 255
		}
	}

	blurred := BlurAlpha(src, 5)

	prev := 256
	for x := 20; x < 40; x++ {
		v := int(blurred.Pix[10*blurred.Stride+x])
		if v > prev {
			t.Fatalf("alpha not monotonic across the boundary at x=%d: %d > %d", x, v, prev)
		}
		prev = v
	}
	if blurred.Pix[10*blurred.Stride+22] == 255 && blurred.Pix[10*blurred.Stride+38] == 0 {
		t.Error("blur produced no ramp at all")
	}
}

func TestDrawImageOpacity(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	Fill(src, color.RGBA{255, 255, 255, 255})

	DrawImage(dst, src, 0, 0, 10, 10, 0, 0.5)

	_, _, _, a := dst.At(5, 5).RGBA()
	got := a >> 8
	if got < 110 || got > 145 {
		t.Errorf("half-opacity draw produced alpha %d, want ~127", got)
	}
}

func TestApplyCoverageZeroesOutside(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	Fill(img, color.RGBA{10, 20, 30, 255})

	cov := image.NewAlpha(image.Rect(0, 0, 4, 4))
	cov.Pix[0] = 255 // только (0,0) видим

	ApplyCoverage(img, cov)

	if img.Pix[3] != 255 {
		t.Error("covered pixel lost alpha")
	}
	if img.Pix[1*img.Stride+4+3] != 0 {
		t.Error("uncovered pixel kept alpha")
	}
}

func TestRenderTextNonEmpty(t *testing.T) {
	img := RenderText("Hi", color.RGBA{255, 255, 255, 255})
	opaque := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			opaque++
		}
	}
	if opaque == 0 {
		t.Error("rendered text has no visible pixels")
	}
}
