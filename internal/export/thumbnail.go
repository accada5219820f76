package export

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/peopleinfo/freecut/internal/compositor"
	"github.com/peopleinfo/freecut/internal/timeline"
)

// RenderThumbnail renders a single frame through the same compositor the
// export uses, so the preview matches the final artifact pixel for pixel.
func RenderThumbnail(ctx context.Context, comp *timeline.Composition, frame int) (*image.RGBA, error) {
	if frame < 0 || frame >= comp.DurationInFrames {
		return nil, fmt.Errorf("export: кадр %d вне композиции [0, %d)", frame, comp.DurationInFrames)
	}

	rc, err := compositor.NewContext(comp)
	if err != nil {
		return nil, err
	}
	defer rc.Dispose()

	if err := rc.Preload(ctx, frame, 0); err != nil {
		return nil, err
	}

	surf, err := compositor.NewRenderer(rc).RenderFrame(ctx, frame)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(surf.Rect)
	copy(out.Pix, surf.Pix)
	rc.Surfaces.Put(surf)
	return out, nil
}

// SaveThumbnail renders the frame and writes it as PNG.
func SaveThumbnail(ctx context.Context, comp *timeline.Composition, frame int, path string) error {
	img, err := RenderThumbnail(ctx, comp, frame)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
