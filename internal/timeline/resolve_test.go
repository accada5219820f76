package timeline

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestActiveAtWindow(t *testing.T) {
	it := Item{ID: "a", Kind: KindImage, From: 10, DurationInFrames: 20}

	tests := []struct {
		frame int
		want  bool
	}{
		{9, false},
		{10, true},
		{29, true},
		{30, false},
		{0, false},
	}

	for _, tt := range tests {
		if got := it.ActiveAt(tt.frame); got != tt.want {
			t.Errorf("ActiveAt(%d) = %v, want %v", tt.frame, got, tt.want)
		}
	}
}

func TestInterpolateLinearWithClamp(t *testing.T) {
	kfs := []Keyframe{
		{Frame: 10, Value: 100},
		{Frame: 20, Value: 200},
		{Frame: 40, Value: 100},
	}

	tests := []struct {
		rel  float64
		want float64
	}{
		{0, 100},   // before first keyframe -> clamp
		{10, 100},  // on first keyframe
		{15, 150},  // midway
		{20, 200},  // on second keyframe
		{30, 150},  // midway down
		{40, 100},  // on last keyframe
		{100, 100}, // after last keyframe -> clamp
	}

	for _, tt := range tests {
		if got := interpolate(kfs, tt.rel); !almostEqual(got, tt.want) {
			t.Errorf("interpolate(rel=%.0f) = %.3f, want %.3f", tt.rel, got, tt.want)
		}
	}
}

func TestResolveTransformIsPure(t *testing.T) {
	canvas := CanvasSettings{Width: 1920, Height: 1080, FPS: 30}
	item := &Item{ID: "v1", Kind: KindVideo, From: 0, DurationInFrames: 90, Opacity: 1, Speed: 1}
	kfs := []PropertyKeyframes{
		{ItemID: "v1", Property: PropX, Keyframes: []Keyframe{{Frame: 0, Value: 0}, {Frame: 90, Value: 300}}},
	}

	first := ResolveTransform(item, canvas, 1280, 720, kfs, 45)
	for i := 0; i < 10; i++ {
		again := ResolveTransform(item, canvas, 1280, 720, kfs, 45)
		if first != again {
			t.Fatalf("resolve is not pure: %+v != %+v", first, again)
		}
	}
}

func TestResolveTransformAutoFit(t *testing.T) {
	canvas := CanvasSettings{Width: 400, Height: 400, FPS: 30}
	item := &Item{ID: "img", Kind: KindImage, From: 0, DurationInFrames: 30, Opacity: 1, Speed: 1}

	// 800x400 источник вписывается в 400x400 как 400x200 по центру.
	tr := ResolveTransform(item, canvas, 800, 400, nil, 0)
	if !almostEqual(tr.Width, 400) || !almostEqual(tr.Height, 200) {
		t.Errorf("fit = %.0fx%.0f, want 400x200", tr.Width, tr.Height)
	}
	if !almostEqual(tr.X, 0) || !almostEqual(tr.Y, 100) {
		t.Errorf("position = (%.0f, %.0f), want (0, 100)", tr.X, tr.Y)
	}
}

func TestResolveTransformKeyframedOpacityClamped(t *testing.T) {
	canvas := CanvasSettings{Width: 100, Height: 100, FPS: 30}
	item := &Item{ID: "s", Kind: KindShape, From: 0, DurationInFrames: 60, Opacity: 1, Width: 50, Height: 50}
	kfs := []PropertyKeyframes{
		{ItemID: "s", Property: PropOpacity, Keyframes: []Keyframe{{Frame: 0, Value: 2.0}, {Frame: 60, Value: -1.0}}},
	}

	if got := ResolveTransform(item, canvas, 0, 0, kfs, 0).Opacity; !almostEqual(got, 1) {
		t.Errorf("opacity at frame 0 = %.3f, want clamped 1", got)
	}
	if got := ResolveTransform(item, canvas, 0, 0, kfs, 59).Opacity; got < 0 {
		t.Errorf("opacity at frame 59 = %.3f, want >= 0", got)
	}
}

func TestValidateRejectsDuplicateOrder(t *testing.T) {
	comp := &Composition{
		FPS: 30, DurationInFrames: 30, Width: 100, Height: 100,
		Tracks: []Track{
			{ID: "t0", Order: 0, Visible: true},
			{ID: "t1", Order: 0, Visible: true},
		},
	}
	if err := comp.Validate(); err == nil {
		t.Error("expected error for duplicate track order")
	}
}

func TestValidateRejectsCrossTrackTransition(t *testing.T) {
	comp := &Composition{
		FPS: 30, DurationInFrames: 60, Width: 100, Height: 100,
		Tracks: []Track{
			{ID: "t0", Order: 0, Visible: true, Items: []Item{{ID: "a", Kind: KindVideo, From: 0, DurationInFrames: 30, Opacity: 1, Speed: 1}}},
			{ID: "t1", Order: 1, Visible: true, Items: []Item{{ID: "b", Kind: KindVideo, From: 30, DurationInFrames: 30, Opacity: 1, Speed: 1}}},
		},
		Transitions: []Transition{{ID: "x", Kind: "fade", FromItemID: "a", ToItemID: "b", DurationInFrames: 10}},
	}
	if err := comp.Validate(); err == nil {
		t.Error("expected error for transition across tracks")
	}
}
