// Package colorspace converts between gamma-encoded sRGB and CIE L*a*b*.
//
// All channels are float32. RGB components are in [0,1]; L is in [0,100] and
// a, b are unbounded opponent axes. The constants are the D65 matrices used by
// OpenCV so that a round trip reproduces the input within 1e-3 per channel.
package colorspace

import "math"

// D65 reference white.
const (
	whiteX float32 = 0.95047
	whiteY float32 = 1.00000
	whiteZ float32 = 1.08883
)

const (
	delta  float32 = 6.0 / 29.0
	delta3         = delta * delta * delta
	offset float32 = 4.0 / 29.0
)

// RGBToLab converts normalized sRGB to Lab.
func RGBToLab(r, g, b float32) (l, a, bb float32) {
	r = srgbToLinear(r)
	g = srgbToLinear(g)
	b = srgbToLinear(b)

	x := r*0.4124564 + g*0.3575761 + b*0.1804375
	y := r*0.2126729 + g*0.7151522 + b*0.0721750
	z := r*0.0193339 + g*0.1191920 + b*0.9503041

	fx := f(x / whiteX)
	fy := f(y / whiteY)
	fz := f(z / whiteZ)

	l = 116*fy - 16
	a = 500 * (fx - fy)
	bb = 200 * (fy - fz)
	return l, a, bb
}

// LabToRGB converts Lab back to normalized sRGB. The result is clamped to [0,1].
func LabToRGB(l, a, bb float32) (r, g, b float32) {
	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - bb/200

	x := whiteX * finv(fx)
	y := whiteY * finv(fy)
	z := whiteZ * finv(fz)

	rl := x*3.2404542 + y*-1.5371385 + z*-0.4985314
	gl := x*-0.9692660 + y*1.8760108 + z*0.0415560
	bl := x*0.0556434 + y*-0.2040259 + z*1.0572252

	r = clamp01(linearToSRGB(rl))
	g = clamp01(linearToSRGB(gl))
	b = clamp01(linearToSRGB(bl))
	return r, g, b
}

// Luminance returns the gray sRGB value that has the same L as (r,g,b) and
// zero chroma. All three output channels are equal up to rounding.
func Luminance(r, g, b float32) (gr, gg, gb float32) {
	l, _, _ := RGBToLab(r, g, b)
	return LabToRGB(l, 0, 0)
}

func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return pow((c+0.055)/1.055, 2.4)
}

func linearToSRGB(c float32) float32 {
	if c <= 0.0031308 {
		return 12.92 * c
	}
	return 1.055*pow(c, 1/2.4) - 0.055
}

func f(t float32) float32 {
	if t > delta3 {
		return pow(t, 1.0/3.0)
	}
	return t/(3*delta*delta) + offset
}

func finv(ft float32) float32 {
	if ft > delta {
		return ft * ft * ft
	}
	return 3 * delta * delta * (ft - offset)
}

func pow(x, y float32) float32 {
	return float32(math.Pow(float64(x), float64(y)))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
