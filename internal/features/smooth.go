package features

import "math"

// gaussianTruncate is the kernel half-width in standard deviations.
const gaussianTruncate = 4.0

// GaussianSmooth returns a copy of field convolved with an isotropic
// gaussian of the given sigma (pixels). Missing (NaN) samples are excluded
// and the remaining weights renormalised, so edges and gaps do not bleed
// zeros into the result. Pixels that were NaN stay NaN.
func GaussianSmooth(field [][]float64, sigma float64) [][]float64 {
	ny := len(field)
	if ny == 0 {
		return nil
	}
	nx := len(field[0])
	out := make([][]float64, ny)
	if sigma <= 0 {
		for j := range field {
			out[j] = append([]float64(nil), field[j]...)
		}
		return out
	}

	kernel := gaussianKernel(sigma)
	r := len(kernel) / 2

	// Separable pass along x, carrying value and weight sums.
	vals := make([][]float64, ny)
	wts := make([][]float64, ny)
	for j := 0; j < ny; j++ {
		vals[j] = make([]float64, nx)
		wts[j] = make([]float64, nx)
		for i := 0; i < nx; i++ {
			var s, w float64
			for k := -r; k <= r; k++ {
				ii := i + k
				if ii < 0 || ii >= nx {
					continue
				}
				v := field[j][ii]
				if math.IsNaN(v) {
					continue
				}
				s += kernel[k+r] * v
				w += kernel[k+r]
			}
			vals[j][i] = s
			wts[j][i] = w
		}
	}

	for j := 0; j < ny; j++ {
		out[j] = make([]float64, nx)
		for i := 0; i < nx; i++ {
			if math.IsNaN(field[j][i]) {
				out[j][i] = math.NaN()
				continue
			}
			var s, w float64
			for k := -r; k <= r; k++ {
				jj := j + k
				if jj < 0 || jj >= ny {
					continue
				}
				s += kernel[k+r] * vals[jj][i]
				w += kernel[k+r] * wts[jj][i]
			}
			if w == 0 {
				out[j][i] = math.NaN()
				continue
			}
			out[j][i] = s / w
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	r := int(gaussianTruncate*sigma + 0.5)
	k := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}
