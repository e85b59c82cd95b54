package randtest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
)

// igamc is the regularized upper incomplete gamma function Q(a, x), the
// distribution the SP 800-22 chi-square statistics are referred to.
func igamc(a, x float64) float64 {
	return mathext.GammaIncRegComp(a, x)
}

// halfChi halves a chi-square statistic for igamc. The statistics are
// non-negative only up to floating-point rounding, and igamc panics on
// negative x, so clamp first.
func halfChi(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x / 2
}

// normalCDF is the standard normal distribution function Φ(x).
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// Frequency is the monobit test (SP 800-22 §2.1): the proportion of ones
// should be close to 1/2.
func Frequency(bits Bits) (float64, error) {
	n := len(bits)
	if n < 100 {
		return 0, fmt.Errorf("frequency test needs at least 100 bits, got %d", n)
	}
	sum := 0
	for _, bit := range bits {
		sum += 2*int(bit) - 1
	}
	sObs := math.Abs(float64(sum)) / math.Sqrt(float64(n))
	return math.Erfc(sObs / math.Sqrt2), nil
}

// BlockFrequency (§2.2) checks the proportion of ones within m-bit blocks.
func BlockFrequency(bits Bits, m int) (float64, error) {
	n := len(bits)
	if m < 20 {
		return 0, fmt.Errorf("block size must be at least 20, got %d", m)
	}
	blocks := n / m
	if blocks < 1 {
		return 0, fmt.Errorf("block frequency test needs at least one %d-bit block, got %d bits", m, n)
	}

	chi2 := 0.0
	for i := 0; i < blocks; i++ {
		ones := 0
		for _, bit := range bits[i*m : (i+1)*m] {
			ones += int(bit)
		}
		pi := float64(ones) / float64(m)
		chi2 += (pi - 0.5) * (pi - 0.5)
	}
	chi2 *= 4 * float64(m)
	return igamc(float64(blocks)/2, chi2/2), nil
}

// Runs (§2.3) counts uninterrupted runs of identical bits. Too many runs
// indicates oscillation; too few indicates clustering.
func Runs(bits Bits) (float64, error) {
	n := len(bits)
	if n < 100 {
		return 0, fmt.Errorf("runs test needs at least 100 bits, got %d", n)
	}

	pi := bits.Proportion()
	// SP 800-22 frequency precondition: the monobit test must be passable
	// at all before run counts mean anything
	if math.Abs(pi-0.5) >= 2/math.Sqrt(float64(n)) {
		return 0, nil
	}

	v := 1
	for i := 1; i < n; i++ {
		if bits[i] != bits[i-1] {
			v++
		}
	}

	num := math.Abs(float64(v) - 2*float64(n)*pi*(1-pi))
	den := 2 * math.Sqrt(2*float64(n)) * pi * (1 - pi)
	return math.Erfc(num / den), nil
}

// longestRunParams are the tabulated block sizes and run-length class
// probabilities from SP 800-22 §2.4.
type longestRunParams struct {
	m      int // block size
	k      int // number of classes minus one
	minRun int // run length of the lowest class
	pi     []float64
}

func longestRunTable(n int) (longestRunParams, error) {
	switch {
	case n < 128:
		return longestRunParams{}, fmt.Errorf("longest run test needs at least 128 bits, got %d", n)
	case n < 6272:
		return longestRunParams{m: 8, k: 3, minRun: 1,
			pi: []float64{0.21484375, 0.3671875, 0.23046875, 0.1875}}, nil
	case n < 750000:
		return longestRunParams{m: 128, k: 5, minRun: 4,
			pi: []float64{0.1174035788, 0.242955959, 0.249363483, 0.17517706, 0.102701071, 0.112398847}}, nil
	default:
		return longestRunParams{m: 10000, k: 6, minRun: 10,
			pi: []float64{0.0882, 0.2092, 0.2483, 0.1933, 0.1208, 0.0675, 0.0727}}, nil
	}
}

// LongestRunOfOnes (§2.4) compares the distribution of the longest run of
// ones within fixed-size blocks against the expected distribution.
func LongestRunOfOnes(bits Bits) (float64, error) {
	n := len(bits)
	params, err := longestRunTable(n)
	if err != nil {
		return 0, err
	}

	blocks := n / params.m
	counts := make([]int, params.k+1)
	for i := 0; i < blocks; i++ {
		longest, run := 0, 0
		for _, bit := range bits[i*params.m : (i+1)*params.m] {
			if bit == 1 {
				run++
				if run > longest {
					longest = run
				}
			} else {
				run = 0
			}
		}
		class := longest - params.minRun
		if class < 0 {
			class = 0
		}
		if class > params.k {
			class = params.k
		}
		counts[class]++
	}

	chi2 := 0.0
	for i, v := range counts {
		expected := float64(blocks) * params.pi[i]
		chi2 += (float64(v) - expected) * (float64(v) - expected) / expected
	}
	return igamc(float64(params.k)/2, chi2/2), nil
}

// CumulativeSums (§2.13) examines the maximal excursion of the random walk
// defined by the partial sums of ±1 bits. Forward and backward variants.
func CumulativeSums(bits Bits, backward bool) (float64, error) {
	n := len(bits)
	if n < 100 {
		return 0, fmt.Errorf("cumulative sums test needs at least 100 bits, got %d", n)
	}

	z := 0
	sum := 0
	for i := 0; i < n; i++ {
		idx := i
		if backward {
			idx = n - 1 - i
		}
		sum += 2*int(bits[idx]) - 1
		if abs := sum; abs < 0 {
			if -abs > z {
				z = -abs
			}
		} else if abs > z {
			z = abs
		}
	}
	if z == 0 {
		return 0, nil
	}

	fn := float64(n)
	fz := float64(z)
	sqrtN := math.Sqrt(fn)
	ratio := fn / fz

	p := 1.0
	for k := int(math.Floor((-ratio + 1) / 4)); k <= int(math.Floor((ratio-1)/4)); k++ {
		fk := float64(k)
		p -= normalCDF((4*fk+1)*fz/sqrtN) - normalCDF((4*fk-1)*fz/sqrtN)
	}
	for k := int(math.Floor((-ratio - 3) / 4)); k <= int(math.Floor((ratio-1)/4)); k++ {
		fk := float64(k)
		p += normalCDF((4*fk+3)*fz/sqrtN) - normalCDF((4*fk+1)*fz/sqrtN)
	}
	return p, nil
}

// psiSq computes ψ²_m over the sequence extended by its first m-1 bits, as
// required by the serial test.
func psiSq(bits Bits, m int) float64 {
	if m <= 0 {
		return 0
	}
	n := len(bits)
	counts := make([]int, 1<<uint(m))
	mask := (1 << uint(m)) - 1

	pattern := 0
	for i := 0; i < m-1; i++ {
		pattern = (pattern << 1) | int(bits[i])
	}
	for i := m - 1; i < n+m-1; i++ {
		pattern = ((pattern << 1) | int(bits[i%n])) & mask
		counts[pattern]++
	}

	sum := 0.0
	for _, c := range counts {
		sum += float64(c) * float64(c)
	}
	return sum*float64(int(1)<<uint(m))/float64(n) - float64(n)
}

// Serial (§2.11) tests the uniformity of overlapping m-bit patterns.
// Returns the two p-values of the test.
func Serial(bits Bits, m int) (p1, p2 float64, err error) {
	n := len(bits)
	if m < 3 {
		return 0, 0, fmt.Errorf("serial test needs pattern length of at least 3, got %d", m)
	}
	if n < 1<<uint(m+2) {
		return 0, 0, fmt.Errorf("serial test with m=%d needs at least %d bits, got %d", m, 1<<uint(m+2), n)
	}

	psiM := psiSq(bits, m)
	psiM1 := psiSq(bits, m-1)
	psiM2 := psiSq(bits, m-2)

	del1 := psiM - psiM1
	del2 := psiM - 2*psiM1 + psiM2

	p1 = igamc(float64(int(1)<<uint(m-2)), halfChi(del1))
	p2 = igamc(float64(int(1)<<uint(m-3)), halfChi(del2))
	return p1, p2, nil
}

// ApproximateEntropy (§2.12) compares the frequency of overlapping m and
// m+1 bit patterns against what an irregular sequence would show.
func ApproximateEntropy(bits Bits, m int) (float64, error) {
	n := len(bits)
	if m < 1 {
		return 0, fmt.Errorf("approximate entropy needs block length of at least 1, got %d", m)
	}
	if n < 1<<uint(m+3) {
		return 0, fmt.Errorf("approximate entropy with m=%d needs at least %d bits, got %d", m, 1<<uint(m+3), n)
	}

	phi := func(blockLen int) float64 {
		counts := make([]int, 1<<uint(blockLen))
		mask := (1 << uint(blockLen)) - 1

		pattern := 0
		for i := 0; i < blockLen-1; i++ {
			pattern = (pattern << 1) | int(bits[i])
		}
		for i := blockLen - 1; i < n+blockLen-1; i++ {
			pattern = ((pattern << 1) | int(bits[i%n])) & mask
			counts[pattern]++
		}

		sum := 0.0
		for _, c := range counts {
			if c > 0 {
				pi := float64(c) / float64(n)
				sum += pi * math.Log(pi)
			}
		}
		return sum
	}

	apEn := phi(m) - phi(m+1)
	chi2 := 2 * float64(n) * (math.Ln2 - apEn)
	return igamc(float64(int(1)<<uint(m-1)), halfChi(chi2)), nil
}
