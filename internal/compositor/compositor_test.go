package compositor

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/peopleinfo/freecut/internal/timeline"
)

func writePNG(t *testing.T, name string, w, h int, col color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for o := 0; o < len(img.Pix); o += 4 {
		img.Pix[o] = col.R
		img.Pix[o+1] = col.G
		img.Pix[o+2] = col.B
		img.Pix[o+3] = col.A
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func shapeItem(id string, from, dur int) timeline.Item {
	return timeline.Item{
		ID: id, Kind: timeline.KindShape, From: from, DurationInFrames: dur,
		X: 8, Y: 8, Width: 16, Height: 16,
		Shape: "rect", Fill: "#ff0000", Opacity: 1, Speed: 1,
	}
}

func renderOnce(t *testing.T, comp *timeline.Composition, frame int, probe func(string, int)) *image.RGBA {
	t.Helper()
	rc, err := NewContext(comp)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Dispose()

	r := NewRenderer(rc)
	if probe != nil {
		r.SetProbe(probe)
	}
	out, err := r.RenderFrame(context.Background(), frame)
	if err != nil {
		t.Fatal(err)
	}
	result := image.NewRGBA(out.Rect)
	copy(result.Pix, out.Pix)
	rc.Surfaces.Put(out)
	return result
}

func TestShapeComposited(t *testing.T) {
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 30, Width: 64, Height: 64,
		BackgroundColor: "#000000",
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{shapeItem("s", 0, 30)}},
		},
	}
	out := renderOnce(t, comp, 5, nil)

	if c := out.RGBAAt(16, 16); c.R < 200 {
		t.Errorf("внутри фигуры ожидали красный, получили %+v", c)
	}
	if c := out.RGBAAt(40, 40); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("вне фигуры ожидали фон, получили %+v", c)
	}
}

func TestOcclusionSkipsCoveredTracks(t *testing.T) {
	cover := writePNG(t, "cover.png", 64, 64, color.RGBA{0, 0, 255, 255})
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 90, Width: 64, Height: 64,
		Tracks: []timeline.Track{
			{ID: "front", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "full", Kind: timeline.KindImage, From: 0, DurationInFrames: 90,
					Src: cover, Width: 64, Height: 64, Opacity: 1, Speed: 1},
			}},
			{ID: "mid", Order: 1, Visible: true, Items: []timeline.Item{shapeItem("hidden", 0, 90)}},
			{ID: "back", Order: 2, Visible: true, Items: []timeline.Item{shapeItem("deep", 0, 90)}},
		},
	}

	for _, frame := range []int{0, 45} {
		rendered := map[string]bool{}
		out := renderOnce(t, comp, frame, func(id string, _ int) { rendered[id] = true })
		if !rendered["full"] {
			t.Fatalf("кадр %d: заслоняющий элемент обязан рисоваться", frame)
		}
		if rendered["hidden"] || rendered["deep"] {
			t.Errorf("кадр %d: полностью заслонённые элементы не должны рисоваться: %v", frame, rendered)
		}
		if c := out.RGBAAt(32, 32); c.B < 200 {
			t.Errorf("кадр %d: итог должен быть цветом переднего слоя, получили %+v", frame, c)
		}
	}
}

func TestActiveMaskDisablesOcclusion(t *testing.T) {
	cover := writePNG(t, "cover.png", 64, 64, color.RGBA{0, 0, 255, 255})
	maskItem := timeline.Item{
		ID: "m", Kind: timeline.KindShape, From: 0, DurationInFrames: 90,
		X: 0, Y: 0, Width: 32, Height: 32,
		Shape: "rect", IsMask: true, Opacity: 1, Speed: 1,
	}
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 90, Width: 64, Height: 64,
		Tracks: []timeline.Track{
			{ID: "front", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "full", Kind: timeline.KindImage, From: 0, DurationInFrames: 90,
					Src: cover, Width: 64, Height: 64, Opacity: 1, Speed: 1},
				maskItem,
			}},
			{ID: "mid", Order: 1, Visible: true, Items: []timeline.Item{shapeItem("behind", 0, 90)}},
		},
	}

	rendered := map[string]bool{}
	out := renderOnce(t, comp, 10, func(id string, _ int) { rendered[id] = true })
	if !rendered["behind"] {
		t.Error("активная маска должна выключать окклюзию")
	}
	if c := out.RGBAAt(50, 50); c.A != 0 {
		t.Errorf("вне маски пиксели должны быть прозрачными, получили %+v", c)
	}
}

func TestTransitionMembersDrawnOnceThroughBlend(t *testing.T) {
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 90, Width: 64, Height: 64,
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{
				shapeItem("a", 0, 45),
				shapeItem("b", 45, 45),
			}},
		},
		Transitions: []timeline.Transition{
			{ID: "x", Kind: "fade", FromItemID: "a", ToItemID: "b", DurationInFrames: 10},
		},
	}

	counts := map[string]int{}
	renderOnce(t, comp, 45, func(id string, _ int) { counts[id]++ })
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Errorf("члены перехода рисуются ровно один раз, через смешивание: %v", counts)
	}
}

func TestNestedComposition(t *testing.T) {
	inner := &timeline.Composition{
		FPS: 30, DurationInFrames: 30, Width: 32, Height: 32,
		Tracks: []timeline.Track{
			{ID: "it", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "inner-shape", Kind: timeline.KindShape, From: 0, DurationInFrames: 30,
					X: 0, Y: 0, Width: 32, Height: 32,
					Shape: "rect", Fill: "#00ff00", Opacity: 1, Speed: 1},
			}},
		},
	}
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 60, Width: 64, Height: 64,
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{
				{ID: "nest", Kind: timeline.KindComposition, From: 0, DurationInFrames: 60,
					X: 0, Y: 0, Width: 64, Height: 64,
					Composition: inner, Opacity: 1, Speed: 1},
			}},
		},
	}

	out := renderOnce(t, comp, 5, nil)
	if c := out.RGBAAt(32, 32); c.G < 200 {
		t.Errorf("вложенная композиция должна просвечивать наружу, получили %+v", c)
	}
}

func TestZeroOpacityItemSkipped(t *testing.T) {
	it := shapeItem("ghost", 0, 30)
	it.Opacity = 0
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 30, Width: 64, Height: 64,
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{it}},
		},
	}

	probed := false
	renderOnce(t, comp, 0, func(string, int) { probed = true })
	if probed {
		t.Error("элемент с нулевой непрозрачностью не должен отрисовываться")
	}
}

func TestSurfacesReturnToPool(t *testing.T) {
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 30, Width: 64, Height: 64,
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{shapeItem("s", 0, 30)}},
		},
	}
	rc, err := NewContext(comp)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Dispose()

	r := NewRenderer(rc)
	for i := 0; i < 3; i++ {
		out, err := r.RenderFrame(context.Background(), i)
		if err != nil {
			t.Fatal(err)
		}
		rc.Surfaces.Put(out)
	}
	gets, puts, _ := rc.Surfaces.Stats()
	if gets != puts {
		t.Errorf("все поверхности должны вернуться в пул: gets=%d puts=%d", gets, puts)
	}
}

func TestDisposeIdempotent(t *testing.T) {
	comp := &timeline.Composition{
		FPS: 30, DurationInFrames: 30, Width: 8, Height: 8,
		Tracks: []timeline.Track{
			{ID: "t0", Order: 0, Visible: true, Items: []timeline.Item{shapeItem("s", 0, 30)}},
		},
	}
	rc, err := NewContext(comp)
	if err != nil {
		t.Fatal(err)
	}
	rc.Dispose()
	rc.Dispose()
}
