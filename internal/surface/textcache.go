package surface

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// TextMetrics is the cached measurement of one string at one size.
type TextMetrics struct {
	Width  float64
	Height float64
}

// TextMeasureCache memoizes text measurement. Measuring goes through the
// raster font and is comparatively expensive, so per-frame re-measurement of
// static text items is avoided.
type TextMeasureCache struct {
	mu    sync.RWMutex
	cache map[string]TextMetrics
}

// NewTextMeasureCache creates an empty measurement cache.
func NewTextMeasureCache() *TextMeasureCache {
	return &TextMeasureCache{cache: make(map[string]TextMetrics)}
}

// Measure returns the pixel dimensions of the text at the given font size.
func (c *TextMeasureCache) Measure(text string, size float64) TextMetrics {
	if size <= 0 {
		size = float64(basicfont.Face7x13.Height)
	}
	key := fmt.Sprintf("%.2f|%s", size, text)

	c.mu.RLock()
	m, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return m
	}

	face := basicfont.Face7x13
	advance := font.MeasureString(face, text)
	scale := size / float64(face.Height)
	m = TextMetrics{
		Width:  float64(advance>>6) * scale,
		Height: size,
	}

	c.mu.Lock()
	c.cache[key] = m
	c.mu.Unlock()
	return m
}

// Len returns the number of cached measurements.
func (c *TextMeasureCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
