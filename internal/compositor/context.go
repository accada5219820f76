// Package compositor собирает кадры композиции: контекст сессии владеет
// пулами и движками, рендерер покадрово строит изображение из дорожек.
package compositor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/peopleinfo/freecut/internal/frames"
	"github.com/peopleinfo/freecut/internal/mask"
	"github.com/peopleinfo/freecut/internal/surface"
	"github.com/peopleinfo/freecut/internal/timeline"
	"github.com/peopleinfo/freecut/internal/transition"
)

// RenderContext owns the session-scoped state of one composition render:
// surface and decode pools, precomputed mask and transition engines, media
// caches and the contexts of nested compositions.
type RenderContext struct {
	Comp        *timeline.Composition
	Surfaces    *surface.Pool
	Sources     *frames.SourcePool
	Images      *frames.ImageCache
	Masks       *mask.Engine
	Transitions *transition.Engine
	TextMeasure *surface.TextMeasureCache

	children map[string]*RenderContext

	mu       sync.Mutex
	disposed bool
}

// NewContext validates the composition and precomputes the per-session
// engines. Unknown transition kinds fail here, before any frame is rendered.
func NewContext(comp *timeline.Composition) (*RenderContext, error) {
	if err := comp.Validate(); err != nil {
		return nil, err
	}
	trans, err := transition.Precompute(comp)
	if err != nil {
		return nil, err
	}

	rc := &RenderContext{
		Comp:        comp,
		Surfaces:    surface.NewPool(),
		Sources:     frames.NewSourcePool(),
		Images:      frames.NewImageCache(),
		Masks:       mask.Precompute(comp),
		Transitions: trans,
		TextMeasure: surface.NewTextMeasureCache(),
		children:    map[string]*RenderContext{},
	}

	// Вложенные композиции получают собственные контексты.
	for ti := range comp.Tracks {
		for ii := range comp.Tracks[ti].Items {
			it := &comp.Tracks[ti].Items[ii]
			if it.Kind != timeline.KindComposition {
				continue
			}
			child, err := NewContext(it.Composition)
			if err != nil {
				return nil, fmt.Errorf("compositor: вложенная композиция %s: %w", it.ID, err)
			}
			rc.children[it.ID] = child
		}
	}
	return rc, nil
}

// preloadTask is one media source to warm up.
type preloadTask struct {
	item     *timeline.Item
	priority bool
}

// Preload warms the media caches before rendering starts: probes every video
// source, decodes stills and GIFs, and recurses into nested compositions.
// Items whose clips overlap the frame window around `around` are loaded
// first. Individual source failures do not abort the preload; they are
// memoized and surface later as per-item render fallbacks.
func (rc *RenderContext) Preload(ctx context.Context, around, workers int) error {
	if workers <= 0 {
		workers = 4
	}

	var tasks []preloadTask
	const window = 30 // кадры вокруг позиции скраба грузим первыми
	for ti := range rc.Comp.Tracks {
		tr := &rc.Comp.Tracks[ti]
		if !tr.Visible {
			continue
		}
		for ii := range tr.Items {
			it := &tr.Items[ii]
			switch it.Kind {
			case timeline.KindVideo, timeline.KindImage:
				if it.Src == "" {
					continue
				}
				hot := it.From <= around+window && it.End() > around-window
				tasks = append(tasks, preloadTask{item: it, priority: hot})
			}
		}
	}
	// приоритетные — в начало очереди
	for i, j := 0, 0; i < len(tasks); i++ {
		if tasks[i].priority {
			tasks[i], tasks[j] = tasks[j], tasks[i]
			j++
		}
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		it := task.item
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			rc.preloadItem(gctx, it)
			return nil
		})
	}

	for id, child := range rc.children {
		g.Go(func() error {
			if err := child.Preload(gctx, 0, workers); err != nil {
				return fmt.Errorf("вложенная композиция %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (rc *RenderContext) preloadItem(ctx context.Context, it *timeline.Item) {
	switch {
	case it.Kind == timeline.KindVideo:
		if _, err := rc.Sources.Init(ctx, it.Src); err != nil {
			log.Printf("[!] Прогрев %s: %v", it.ID, err)
		}
	case frames.IsGIF(it.Src):
		if _, err := rc.Images.GIFFrameAt(it.Src, 0); err != nil {
			log.Printf("[!] Прогрев %s: %v", it.ID, err)
		}
	default:
		if _, err := rc.Images.Still(it.Src); err != nil {
			log.Printf("[!] Прогрев %s: %v", it.ID, err)
		}
	}
}

// Dispose releases the decode state. Safe to call more than once; surfaces
// handed out earlier must not be returned after Dispose.
func (rc *RenderContext) Dispose() {
	rc.mu.Lock()
	if rc.disposed {
		rc.mu.Unlock()
		return
	}
	rc.disposed = true
	rc.mu.Unlock()

	rc.Sources.Dispose()
	for _, child := range rc.children {
		child.Dispose()
	}
}

// Child returns the render context of a nested composition item.
func (rc *RenderContext) Child(itemID string) *RenderContext {
	return rc.children[itemID]
}
