package transition

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/peopleinfo/freecut/internal/raster"
	"github.com/peopleinfo/freecut/internal/timeline"
)

func twoClipComp(kind string) *timeline.Composition {
	return &timeline.Composition{
		FPS: 30, DurationInFrames: 90, Width: 100, Height: 100,
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "a", Kind: timeline.KindVideo, From: 0, DurationInFrames: 45, Opacity: 1, Speed: 1},
				{ID: "b", Kind: timeline.KindVideo, From: 45, DurationInFrames: 45, Opacity: 1, Speed: 1},
			}},
		},
		Transitions: []timeline.Transition{
			{ID: "x1", Kind: kind, FromItemID: "a", ToItemID: "b", DurationInFrames: 10},
		},
	}
}

func TestPrecomputeWindowPlacement(t *testing.T) {
	eng, err := Precompute(twoClipComp("fade"))
	if err != nil {
		t.Fatal(err)
	}

	if got := eng.ActiveAt(39); len(got) != 0 {
		t.Error("window active before it starts")
	}
	active := eng.ActiveAt(44)
	if len(active) != 1 {
		t.Fatalf("window inactive at frame 44")
	}
	w := active[0]
	if w.Start != 40 || w.End != 50 {
		t.Errorf("window = [%d, %d), want [40, 50)", w.Start, w.End)
	}
	if got := eng.ActiveAt(50); len(got) != 0 {
		t.Error("window active past its end")
	}
}

func TestHandledItemsSuppressed(t *testing.T) {
	eng, err := Precompute(twoClipComp("fade"))
	if err != nil {
		t.Fatal(err)
	}

	handled := eng.HandledItems(45)
	if !handled["a"] || !handled["b"] {
		t.Error("both member clips must be handled inside the window")
	}
	if len(eng.HandledItems(20)) != 0 {
		t.Error("no items should be handled outside the window")
	}
}

func TestUnknownKindIsError(t *testing.T) {
	_, err := Precompute(twoClipComp("mystery-warp"))
	if !errors.Is(err, ErrUnknownTransition) {
		t.Errorf("expected ErrUnknownTransition, got %v", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := Blend("mystery-warp", dst, dst, dst, 0.5); !errors.Is(err, ErrUnknownTransition) {
		t.Errorf("Blend: expected ErrUnknownTransition, got %v", err)
	}
}

func TestFadeBlendMidpoint(t *testing.T) {
	out := image.NewRGBA(image.Rect(0, 0, 10, 10))
	in := image.NewRGBA(image.Rect(0, 0, 10, 10))
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	raster.Fill(out, color.RGBA{0, 0, 0, 255})
	raster.Fill(in, color.RGBA{255, 255, 255, 255})

	if err := Blend("fade", dst, out, in, 0.5); err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := dst.At(5, 5).RGBA()
	if got := int(r >> 8); got < 120 || got > 135 {
		t.Errorf("fade midpoint = %d, want ~128", got)
	}
}

func TestWipeLeftRegions(t *testing.T) {
	out := image.NewRGBA(image.Rect(0, 0, 100, 10))
	in := image.NewRGBA(image.Rect(0, 0, 100, 10))
	dst := image.NewRGBA(image.Rect(0, 0, 100, 10))
	raster.Fill(out, color.RGBA{255, 0, 0, 255})
	raster.Fill(in, color.RGBA{0, 255, 0, 255})

	if err := Blend("wipeleft", dst, out, in, 0.5); err != nil {
		t.Fatal(err)
	}

	r, _, _, _ := dst.At(10, 5).RGBA()
	if r>>8 != 255 {
		t.Error("left half should still show the outgoing frame")
	}
	_, g, _, _ := dst.At(90, 5).RGBA()
	if g>>8 != 255 {
		t.Error("right half should show the incoming frame")
	}
}

func TestBlendIsPure(t *testing.T) {
	out := image.NewRGBA(image.Rect(0, 0, 16, 16))
	in := image.NewRGBA(image.Rect(0, 0, 16, 16))
	raster.Fill(out, color.RGBA{200, 10, 30, 255})
	raster.Fill(in, color.RGBA{10, 200, 30, 255})

	a := image.NewRGBA(image.Rect(0, 0, 16, 16))
	b := image.NewRGBA(image.Rect(0, 0, 16, 16))
	if err := Blend("dissolve", a, out, in, 0.37); err != nil {
		t.Fatal(err)
	}
	if err := Blend("dissolve", b, out, in, 0.37); err != nil {
		t.Fatal(err)
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatal("dissolve is not deterministic")
		}
	}
}

func TestProgressClamped(t *testing.T) {
	w := Window{Start: 10, End: 20}
	if p := w.Progress(10); p != 0 {
		t.Errorf("progress at start = %f, want 0", p)
	}
	if p := w.Progress(15); p != 0.5 {
		t.Errorf("progress at middle = %f, want 0.5", p)
	}
	if p := w.Progress(25); p != 1 {
		t.Errorf("progress past end = %f, want 1", p)
	}
}
