package render

import (
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
)

// langRainbow12 is the twelve-step radar reflectivity palette, from the
// weakest echo to the strongest.
var langRainbow12 = []color.Color{
	rgb(0x96, 0x96, 0x96),
	rgb(0x6e, 0x00, 0xaa),
	rgb(0x32, 0x00, 0xff),
	rgb(0x00, 0x64, 0xff),
	rgb(0x00, 0xc8, 0xff),
	rgb(0x00, 0xe6, 0x96),
	rgb(0x00, 0xc8, 0x00),
	rgb(0x96, 0xe6, 0x00),
	rgb(0xff, 0xff, 0x00),
	rgb(0xff, 0x96, 0x00),
	rgb(0xff, 0x00, 0x00),
	rgb(0xc8, 0x00, 0x96),
}

func rgb(r, g, b uint8) color.Color { return color.NRGBA{R: r, G: g, B: b, A: 255} }

// stepMap is a palette.ColorMap of equal-width colour steps between Min
// and Max.
type stepMap struct {
	colors   []color.Color
	min, max float64
	alpha    float64
}

// LangRainbow12 returns the reflectivity colour map spanning [min, max].
func LangRainbow12(min, max float64) palette.ColorMap {
	return &stepMap{colors: langRainbow12, min: min, max: max, alpha: 1}
}

func (m *stepMap) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < m.min:
		return nil, palette.ErrUnderflow
	case v > m.max:
		return nil, palette.ErrOverflow
	}
	n := len(m.colors)
	i := int((v - m.min) / (m.max - m.min) * float64(n))
	if i >= n {
		i = n - 1
	}
	return m.withAlpha(m.colors[i]), nil
}

func (m *stepMap) withAlpha(c color.Color) color.Color {
	if m.alpha >= 1 {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * m.alpha)
	return n
}

func (m *stepMap) Max() float64       { return m.max }
func (m *stepMap) SetMax(v float64)   { m.max = v }
func (m *stepMap) Min() float64       { return m.min }
func (m *stepMap) SetMin(v float64)   { m.min = v }
func (m *stepMap) Alpha() float64     { return m.alpha }
func (m *stepMap) SetAlpha(a float64) { m.alpha = a }

// Palette samples the map at n evenly spaced values.
func (m *stepMap) Palette(n int) palette.Palette {
	out := make(colors, n)
	for i := range out {
		v := m.min
		if n > 1 {
			v = m.min + (m.max-m.min)*float64(i)/float64(n-1)
		}
		out[i], _ = m.At(v)
	}
	return out
}

type colors []color.Color

func (c colors) Colors() []color.Color { return c }
