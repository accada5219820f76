package frames

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ImageCache preloads static images and animated GIFs once per session.
type ImageCache struct {
	mu     sync.Mutex
	images map[string]*stillEntry
	gifs   map[string]*gifEntry
}

type stillEntry struct {
	once sync.Once
	img  *image.RGBA
	err  error
}

type gifEntry struct {
	once   sync.Once
	frames []*image.RGBA
	// момент окончания каждого кадра от начала цикла, в секундах
	ends  []float64
	total float64
	err   error
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: map[string]*stillEntry{},
		gifs:   map[string]*gifEntry{},
	}
}

// IsGIF reports whether the path looks like an animated GIF source.
func IsGIF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gif")
}

// Still returns the decoded static image, loading it on first use.
func (c *ImageCache) Still(path string) (*image.RGBA, error) {
	c.mu.Lock()
	e, ok := c.images[path]
	if !ok {
		e = &stillEntry{}
		c.images[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		f, err := os.Open(path)
		if err != nil {
			e.err = fmt.Errorf("frames: открытие %s: %w", path, err)
			return
		}
		defer f.Close()
		src, _, err := image.Decode(f)
		if err != nil {
			e.err = fmt.Errorf("frames: декодирование %s: %w", path, err)
			return
		}
		e.img = toRGBA(src)
	})
	return e.img, e.err
}

// GIFFrameAt returns the GIF frame visible at the given timestamp, looping
// over the animation. The full animation is decoded and composed once.
func (c *ImageCache) GIFFrameAt(path string, seconds float64) (*image.RGBA, error) {
	c.mu.Lock()
	e, ok := c.gifs[path]
	if !ok {
		e = &gifEntry{}
		c.gifs[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.load(path) })
	if e.err != nil {
		return nil, e.err
	}
	if len(e.frames) == 1 || e.total <= 0 {
		return e.frames[0], nil
	}

	t := seconds
	for t >= e.total {
		t -= e.total
	}
	for i, end := range e.ends {
		if t < end {
			return e.frames[i], nil
		}
	}
	return e.frames[len(e.frames)-1], nil
}

func (e *gifEntry) load(path string) {
	f, err := os.Open(path)
	if err != nil {
		e.err = fmt.Errorf("frames: открытие %s: %w", path, err)
		return
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		e.err = fmt.Errorf("frames: декодирование GIF %s: %w", path, err)
		return
	}
	if len(g.Image) == 0 {
		e.err = fmt.Errorf("frames: GIF без кадров: %s", path)
		return
	}

	// Кадры GIF могут быть частичными: накапливаем их на общем холсте.
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	canvas := image.NewRGBA(bounds)
	at := 0.0
	for i, frame := range g.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		snapshot := image.NewRGBA(bounds)
		copy(snapshot.Pix, canvas.Pix)
		e.frames = append(e.frames, snapshot)

		delay := 0.1 // сотые доли секунды, 0 трактуем как 10
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = float64(g.Delay[i]) / 100
		}
		at += delay
		e.ends = append(e.ends, at)
	}
	e.total = at
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
