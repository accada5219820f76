package raster

import (
	"image"
	"math"
)

// gaussianKernel returns a normalized 1D kernel covering three standard
// deviations (size 2*ceil(3σ)+1). Radius is used as sigma.
func gaussianKernel(radius float64) []float64 {
	if radius <= 0 {
		return []float64{1}
	}
	half := int(math.Ceil(radius * 3))
	size := half*2 + 1
	kernel := make([]float64, size)

	twoSigmaSq := 2 * radius * radius
	sum := 0.0
	for i := 0; i < size; i++ {
		x := float64(i - half)
		v := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// BlurAlpha applies a separable gaussian blur to a coverage buffer. The two
// 1D passes give O(w*h*r) instead of O(w*h*r²).
func BlurAlpha(src *image.Alpha, radius float64) *image.Alpha {
	if radius <= 0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	kernel := gaussianKernel(radius)
	half := len(kernel) / 2

	tmp := make([]float64, w*h)
	dst := image.NewAlpha(src.Rect)

	// Горизонтальный проход.
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			acc := 0.0
			for k, kv := range kernel {
				sx := x + k - half
				if sx < 0 {
					sx = 0
				} else if sx >= w {
					sx = w - 1
				}
				acc += kv * float64(src.Pix[row+sx])
			}
			tmp[y*w+x] = acc
		}
	}

	// Вертикальный проход.
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			acc := 0.0
			for k, kv := range kernel {
				sy := y + k - half
				if sy < 0 {
					sy = 0
				} else if sy >= h {
					sy = h - 1
				}
				acc += kv * tmp[sy*w+x]
			}
			v := int(acc + 0.5)
			if v > 255 {
				v = 255
			}
			dst.Pix[y*dst.Stride+x] = uint8(v)
		}
	}
	return dst
}

// BlurRGBA blurs all four channels of an image in place semantics (returns a
// new buffer). Used by the blur pixel effect.
func BlurRGBA(src *image.RGBA, radius float64) *image.RGBA {
	if radius <= 0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	kernel := gaussianKernel(radius)
	half := len(kernel) / 2

	tmp := make([]float64, w*h*4)
	dst := image.NewRGBA(src.Rect)

	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k, kv := range kernel {
				sx := x + k - half
				if sx < 0 {
					sx = 0
				} else if sx >= w {
					sx = w - 1
				}
				o := row + sx*4
				acc[0] += kv * float64(src.Pix[o])
				acc[1] += kv * float64(src.Pix[o+1])
				acc[2] += kv * float64(src.Pix[o+2])
				acc[3] += kv * float64(src.Pix[o+3])
			}
			copy(tmp[(y*w+x)*4:], acc[:])
		}
	}

	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			var acc [4]float64
			for k, kv := range kernel {
				sy := y + k - half
				if sy < 0 {
					sy = 0
				} else if sy >= h {
					sy = h - 1
				}
				o := (sy*w + x) * 4
				acc[0] += kv * tmp[o]
				acc[1] += kv * tmp[o+1]
				acc[2] += kv * tmp[o+2]
				acc[3] += kv * tmp[o+3]
			}
			o := y*dst.Stride + x*4
			for c := 0; c < 4; c++ {
				v := int(acc[c] + 0.5)
				if v > 255 {
					v = 255
				}
				dst.Pix[o+c] = uint8(v)
			}
		}
	}
	return dst
}
