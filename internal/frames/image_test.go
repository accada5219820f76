package frames

import (
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestGIF(t *testing.T) string {
	t.Helper()
	bounds := image.Rect(0, 0, 4, 4)
	red := image.NewPaletted(bounds, color.Palette{color.RGBA{255, 0, 0, 255}})
	blue := image.NewPaletted(bounds, color.Palette{color.RGBA{0, 0, 255, 255}})

	path := filepath.Join(t.TempDir(), "anim.gif")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	err = gif.EncodeAll(f, &gif.GIF{
		Image:  []*image.Paletted{red, blue},
		Delay:  []int{50, 50}, // по полсекунды на кадр
		Config: image.Config{Width: 4, Height: 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGIFFrameSelectionAndLooping(t *testing.T) {
	path := writeTestGIF(t)
	cache := NewImageCache()

	isRed := func(seconds float64) bool {
		img, err := cache.GIFFrameAt(path, seconds)
		if err != nil {
			t.Fatal(err)
		}
		r, _, b, _ := img.At(1, 1).RGBA()
		return r > b
	}

	if !isRed(0.1) {
		t.Error("в начале цикла должен показываться первый кадр")
	}
	if isRed(0.7) {
		t.Error("вторая половина секунды — второй кадр")
	}
	if !isRed(1.2) {
		t.Error("анимация должна зацикливаться")
	}
}

func TestStillDecodeAndMemoize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.SetRGBA(1, 1, color.RGBA{10, 20, 30, 255})
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cache := NewImageCache()
	first, err := cache.Still(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Still(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("повторное обращение должно возвращать закешированное изображение")
	}
	if c := first.RGBAAt(1, 1); c.B != 30 {
		t.Errorf("пиксель декодирован неверно: %+v", c)
	}

	if !IsGIF("a/b/clip.GIF") || IsGIF("a/b/clip.png") {
		t.Error("IsGIF должен смотреть только на расширение")
	}
}
