// Package frames раздаёт кадры видеоисточников рендеру. Каждый источник
// обслуживается пулом «дорожек» декодирования: дорожка выполняет запросы
// строго последовательно, а клипы распределяются по наименее загруженным
// дорожкам.
package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/peopleinfo/freecut/internal/video"
)

const (
	// maxLanesPerSource ограничивает число параллельных декодеров одного файла.
	maxLanesPerSource = 4
	// failureThreshold — после стольких реальных ошибок клип переводится на
	// медленный, но надёжный путь с нативным seek.
	failureThreshold = 3
)

// lane is one serialized decode channel of a source. The mutex guarantees
// that two draws on the same lane never overlap.
type lane struct {
	mu        sync.Mutex
	extractor Extractor
	assigned  int
}

// source is the per-file state: probe result, decode lanes and per-clip
// failure accounting.
type source struct {
	path string

	initOnce sync.Once
	initErr  error
	probe    *video.ProbeResult

	mu       sync.Mutex
	lanes    []*lane
	byItem   map[string]*lane
	failures map[string]int
	fallback map[string]*lane
}

// SourcePool owns the decode state of one render session. It is safe for
// concurrent use; Dispose must be called when the session ends.
type SourcePool struct {
	mu      sync.Mutex
	sources map[string]*source

	// newExtractor is swappable in tests.
	newExtractor func(path string, nativeSeek bool) Extractor
	probeFn      func(ctx context.Context, path string) (*video.ProbeResult, error)
}

// NewSourcePool creates an empty pool.
func NewSourcePool() *SourcePool {
	return &SourcePool{
		sources: map[string]*source{},
		newExtractor: func(path string, nativeSeek bool) Extractor {
			return &FFmpegExtractor{Path: path, NativeSeek: nativeSeek}
		},
		probeFn: video.Probe,
	}
}

func (p *SourcePool) sourceFor(path string) *source {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sources[path]
	if !ok {
		s = &source{
			path:     path,
			byItem:   map[string]*lane{},
			failures: map[string]int{},
			fallback: map[string]*lane{},
		}
		p.sources[path] = s
	}
	return s
}

// Init probes the source once per session. A failed probe is memoized: every
// clip on the source stays unready without re-probing.
func (p *SourcePool) Init(ctx context.Context, path string) (*video.ProbeResult, error) {
	s := p.sourceFor(path)
	s.initOnce.Do(func() {
		s.probe, s.initErr = p.probeFn(ctx, path)
		if s.initErr != nil {
			log.Printf("[!] Источник не инициализирован: %s: %v", path, s.initErr)
		}
	})
	if s.initErr != nil {
		return nil, fmt.Errorf("frames: источник %s не готов: %w", path, s.initErr)
	}
	return s.probe, nil
}

// FrameAt decodes the frame of the source at the given media timestamp for
// the given clip. Draws assigned to the same lane are serialized; transient
// ErrNoSample is passed through uncounted, other decode errors eventually
// move the clip onto the native-seek fallback lane.
func (p *SourcePool) FrameAt(ctx context.Context, itemID, path string, seconds float64, w, h int) (*image.RGBA, error) {
	if _, err := p.Init(ctx, path); err != nil {
		return nil, err
	}
	s := p.sourceFor(path)

	ln := s.laneFor(itemID, p.newExtractor)
	ln.mu.Lock()
	img, err := ln.extractor.ExtractFrame(ctx, seconds, w, h)
	ln.mu.Unlock()
	if err == nil {
		return img, nil
	}
	if errors.Is(err, ErrNoSample) {
		return nil, err
	}

	s.mu.Lock()
	s.failures[itemID]++
	n := s.failures[itemID]
	s.mu.Unlock()
	if n == failureThreshold {
		log.Printf("[!] Клип %s: %d ошибок декодирования, переключаюсь на нативный seek (%s)", itemID, n, path)
	}
	return nil, err
}

// laneFor returns the decode lane for the clip, creating or reassigning as
// needed. Clips past the failure threshold get a dedicated native-seek lane.
func (s *source) laneFor(itemID string, newExtractor func(string, bool) Extractor) *lane {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures[itemID] >= failureThreshold {
		if ln := s.fallback[itemID]; ln != nil {
			return ln
		}
		// Прежняя обычная дорожка освобождается, иначе её слот числится
		// занятым до конца сессии.
		if old := s.byItem[itemID]; old != nil {
			old.assigned--
			delete(s.byItem, itemID)
		}
		ln := &lane{extractor: newExtractor(s.path, true), assigned: 1}
		s.fallback[itemID] = ln
		return ln
	}

	if ln := s.byItem[itemID]; ln != nil {
		return ln
	}

	// Свободная дорожка — берём её; новую создаём только когда все заняты.
	var best *lane
	for _, ln := range s.lanes {
		if best == nil || ln.assigned < best.assigned {
			best = ln
		}
	}
	if (best == nil || best.assigned > 0) && len(s.lanes) < maxLanesPerSource {
		best = &lane{extractor: newExtractor(s.path, false)}
		s.lanes = append(s.lanes, best)
	}
	best.assigned++
	s.byItem[itemID] = best
	return best
}

// ReleaseItem drops the clip's lane assignment so the lane can be reused.
func (p *SourcePool) ReleaseItem(itemID, path string) {
	p.mu.Lock()
	s := p.sources[path]
	p.mu.Unlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	if ln := s.byItem[itemID]; ln != nil {
		ln.assigned--
		delete(s.byItem, itemID)
	}
	s.mu.Unlock()
}

// LaneCount reports how many regular decode lanes exist for the source.
func (p *SourcePool) LaneCount(path string) int {
	p.mu.Lock()
	s := p.sources[path]
	p.mu.Unlock()
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}

// Dispose forgets all sources. Idempotent.
func (p *SourcePool) Dispose() {
	p.mu.Lock()
	p.sources = map[string]*source{}
	p.mu.Unlock()
}
