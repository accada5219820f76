// Package surface владеет переиспользуемыми офскрин-поверхностями рендера.
// Пул принадлежит одной сессии рендеринга и не разделяется между сессиями.
package surface

import (
	"fmt"
	"image"
	"sync"
)

// Pool reuses *image.RGBA draw surfaces to avoid per-frame allocations.
// Surfaces are keyed by size; Get always returns a fully transparent surface.
type Pool struct {
	mu    sync.RWMutex
	pools map[string]*sync.Pool

	// Счётчики для тестов и диагностики.
	gets  int64
	puts  int64
	makes int64
}

// NewPool creates an empty pool. One pool serves exactly one render session.
func NewPool() *Pool {
	return &Pool{pools: make(map[string]*sync.Pool)}
}

func sizeKey(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}

// Get returns a cleared surface of the requested size, reusing a pooled one
// when available.
func (p *Pool) Get(w, h int) *image.RGBA {
	key := sizeKey(w, h)

	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[key]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					p.mu.Lock()
					p.makes++
					p.mu.Unlock()
					return image.NewRGBA(image.Rect(0, 0, w, h))
				},
			}
			p.pools[key] = pool
		}
		p.mu.Unlock()
	}

	img := pool.Get().(*image.RGBA)
	clear(img.Pix)

	p.mu.Lock()
	p.gets++
	p.mu.Unlock()
	return img
}

// Put returns a surface to the pool. Nil surfaces are ignored.
func (p *Pool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	key := sizeKey(img.Rect.Dx(), img.Rect.Dy())

	p.mu.RLock()
	pool, exists := p.pools[key]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
		p.mu.Lock()
		p.puts++
		p.mu.Unlock()
	}
}

// Stats returns (gets, puts, allocations) since the pool was created.
func (p *Pool) Stats() (gets, puts, makes int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gets, p.puts, p.makes
}
