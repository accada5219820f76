// Package raster содержит примитивы растрового рисования, на которых
// построены композитор и движок масок: пути, покрытие, блюр, наложение.
package raster

import (
	"image/color"
	"strconv"
	"strings"
)

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa" hex colors. Invalid or
// empty input yields opaque black.
func ParseColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		expanded := make([]byte, 6)
		for i := 0; i < 3; i++ {
			expanded[i*2] = s[i]
			expanded[i*2+1] = s[i]
		}
		s = string(expanded)
	case 6, 8:
	default:
		return color.RGBA{A: 255}
	}

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return color.RGBA{A: 255}
	}

	if len(s) == 8 {
		// color.RGBA хранит предумноженную альфу, а hex-запись — прямую.
		a := uint32(uint8(v))
		premul := func(c uint8) uint8 {
			return uint8((uint32(c)*a + 127) / 255)
		}
		return color.RGBA{
			R: premul(uint8(v >> 24)),
			G: premul(uint8(v >> 16)),
			B: premul(uint8(v >> 8)),
			A: uint8(a),
		}
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}
}
