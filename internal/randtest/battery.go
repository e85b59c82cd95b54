package randtest

import (
	"fmt"
	"math"
)

// Alpha is the significance level used throughout SP 800-22: a p-value at or
// above Alpha is consistent with randomness.
const Alpha = 0.01

// Result is one test outcome.
type Result struct {
	Name   string  `json:"name"`
	P      float64 `json:"p_value"`
	Passed bool    `json:"passed"`
	Detail string  `json:"detail,omitempty"`
}

func result(name string, p float64, err error) Result {
	if err != nil {
		return Result{Name: name, Passed: false, Detail: err.Error()}
	}
	return Result{Name: name, P: p, Passed: p >= Alpha}
}

// RunAll executes the full battery with parameters scaled to the input
// length. Tests whose minimum input length is not met report a failure with
// the reason in Detail rather than aborting the batch.
func RunAll(bits Bits) []Result {
	n := len(bits)

	results := []Result{}
	p, err := Frequency(bits)
	results = append(results, result("frequency", p, err))

	p, err = BlockFrequency(bits, 128)
	results = append(results, result("block-frequency", p, err))

	p, err = Runs(bits)
	results = append(results, result("runs", p, err))

	p, err = LongestRunOfOnes(bits)
	results = append(results, result("longest-run", p, err))

	p, err = CumulativeSums(bits, false)
	results = append(results, result("cusum-forward", p, err))

	p, err = CumulativeSums(bits, true)
	results = append(results, result("cusum-backward", p, err))

	m := patternLength(n, 16, 2)
	p1, p2, err := Serial(bits, m)
	results = append(results,
		result(fmt.Sprintf("serial-1 (m=%d)", m), p1, err),
		result(fmt.Sprintf("serial-2 (m=%d)", m), p2, err))

	m = patternLength(n, 10, 5)
	p, err = ApproximateEntropy(bits, m)
	results = append(results, result(fmt.Sprintf("approximate-entropy (m=%d)", m), p, err))

	p, err = DFT(bits)
	results = append(results, result("spectral", p, err))

	return results
}

// patternLength picks an overlapping-pattern length for an n-bit input:
// at most max, and small enough that every pattern could plausibly occur
// (m <= log2(n) - margin), but never below 3.
func patternLength(n, max, margin int) int {
	if n < 8 {
		return 3
	}
	m := int(math.Floor(math.Log2(float64(n)))) - margin
	if m > max {
		m = max
	}
	if m < 3 {
		m = 3
	}
	return m
}

// Passed counts the passing results.
func Passed(results []Result) int {
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return passed
}
