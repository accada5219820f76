package effects

import (
	"image"
	"image/color"
	"testing"

	"github.com/peopleinfo/freecut/internal/raster"
	"github.com/peopleinfo/freecut/internal/timeline"
)

func grayPatch() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	raster.Fill(img, color.RGBA{100, 100, 100, 255})
	return img
}

func TestBrightness(t *testing.T) {
	img := Apply(grayPatch(), []timeline.Effect{{Kind: KindBrightness, Amount: 0.2}})
	r, _, _, _ := img.At(4, 4).RGBA()
	if got := int(r >> 8); got < 148 || got > 154 {
		t.Errorf("brightness +0.2 on 100 = %d, want ~151", got)
	}
}

func TestOpacityReducesAlpha(t *testing.T) {
	img := Apply(grayPatch(), []timeline.Effect{{Kind: KindOpacity, Amount: 0.5}})
	_, _, _, a := img.At(4, 4).RGBA()
	if got := int(a >> 8); got < 120 || got > 135 {
		t.Errorf("opacity 0.5 alpha = %d, want ~128", got)
	}
}

func TestGrayscaleFullMix(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	raster.Fill(img, color.RGBA{200, 40, 40, 255})

	img = Apply(img, []timeline.Effect{{Kind: KindGrayscale, Amount: 1}})
	r, g, b, _ := img.At(2, 2).RGBA()
	if r != g || g != b {
		t.Errorf("grayscale output is not gray: %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestTransparencyClassification(t *testing.T) {
	tests := []struct {
		kind string
		want bool
	}{
		{KindOpacity, true},
		{KindBlur, true},
		{KindBrightness, false},
		{KindContrast, false},
		{KindSaturate, false},
	}
	for _, tt := range tests {
		if got := CanIntroduceTransparency(timeline.Effect{Kind: tt.kind}); got != tt.want {
			t.Errorf("CanIntroduceTransparency(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCombinedStackOrdering(t *testing.T) {
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 90, Width: 100, Height: 100,
		Tracks: []timeline.Track{
			{ID: "front", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "img", Kind: timeline.KindImage, From: 0, DurationInFrames: 90, Opacity: 1, Speed: 1,
					Effects: []timeline.Effect{{Kind: KindBrightness, Amount: 0.1}}},
			}},
			{ID: "adj1", Order: 1, Visible: true, Items: []timeline.Item{
				{ID: "a1", Kind: timeline.KindAdjustment, From: 0, DurationInFrames: 90, Opacity: 1, Speed: 1,
					Effects: []timeline.Effect{{Kind: KindContrast, Amount: 1.2}}},
			}},
			{ID: "adj2", Order: 2, Visible: true, Items: []timeline.Item{
				{ID: "a2", Kind: timeline.KindAdjustment, From: 0, DurationInFrames: 45, Opacity: 1, Speed: 1,
					Effects: []timeline.Effect{{Kind: KindSaturate, Amount: 1.5}}},
			}},
		},
	}

	item, order, _ := comp.FindItem("img")

	stack := CombinedStack(comp, item, order, 10)
	want := []string{KindBrightness, KindContrast, KindSaturate}
	if len(stack) != len(want) {
		t.Fatalf("stack length = %d, want %d", len(stack), len(want))
	}
	for i, k := range want {
		if stack[i].Kind != k {
			t.Errorf("stack[%d] = %s, want %s", i, stack[i].Kind, k)
		}
	}

	// За пределами окна adj2 его эффект выпадает.
	stack = CombinedStack(comp, item, order, 60)
	if len(stack) != 2 {
		t.Errorf("stack at frame 60 has %d effects, want 2", len(stack))
	}
}

func TestAdjustmentDoesNotApplyToItemsBehindIt(t *testing.T) {
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 90, Width: 100, Height: 100,
		Tracks: []timeline.Track{
			{ID: "adj", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "a", Kind: timeline.KindAdjustment, From: 0, DurationInFrames: 90, Opacity: 1, Speed: 1,
					Effects: []timeline.Effect{{Kind: KindContrast, Amount: 1.2}}},
			}},
			{ID: "back", Order: 1, Visible: true, Items: []timeline.Item{
				{ID: "img", Kind: timeline.KindImage, From: 0, DurationInFrames: 90, Opacity: 1, Speed: 1},
			}},
		},
	}

	item, order, _ := comp.FindItem("img")
	if got := len(CombinedStack(comp, item, order, 0)); got != 0 {
		t.Errorf("adjustment on a frontmost track leaked onto the item behind it (%d effects)", got)
	}
}
