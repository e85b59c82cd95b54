package randtest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DFT is the discrete Fourier transform (spectral) test (SP 800-22 §2.6).
// Periodic features in the sequence show up as peaks above the 95% threshold
// in the first half of the spectrum.
func DFT(bits Bits) (float64, error) {
	n := len(bits)
	if n < 1000 {
		return 0, fmt.Errorf("spectral test needs at least 1000 bits, got %d", n)
	}

	seq := make([]float64, n)
	for i, bit := range bits {
		seq[i] = float64(2*int(bit) - 1)
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, seq)

	// modulus of the first n/2 coefficients
	threshold := math.Sqrt(math.Log(1/0.05) * float64(n))
	below := 0
	for j := 0; j < n/2; j++ {
		if modulus(coeffs[j]) < threshold {
			below++
		}
	}

	n0 := 0.95 * float64(n) / 2
	n1 := float64(below)
	d := (n1 - n0) / math.Sqrt(float64(n)*0.95*0.05/4)
	return math.Erfc(math.Abs(d) / math.Sqrt2), nil
}

func modulus(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
