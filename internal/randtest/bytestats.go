package randtest

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ByteStats summarise a readout at byte granularity. These are descriptive
// numbers for the report, not hypothesis tests.
type ByteStats struct {
	Bytes      int     `json:"bytes"`
	Entropy    float64 `json:"entropy"`     // Shannon entropy, bits per byte (8.0 is ideal)
	ChiSquareP float64 `json:"chi_square"`  // p-value of the 256-bin uniformity test
	Mean       float64 `json:"mean"`        // mean byte value (127.5 is ideal)
	OnesFrac   float64 `json:"ones_frac"`   // fraction of one bits
}

// ComputeByteStats builds the descriptive summary for a byte buffer.
func ComputeByteStats(data []byte) (ByteStats, error) {
	if len(data) == 0 {
		return ByteStats{}, errors.New("empty input")
	}

	var hist [256]float64
	values := make([]float64, len(data))
	for i, b := range data {
		hist[b]++
		values[i] = float64(b)
	}

	probs := make([]float64, 256)
	for i, c := range hist {
		probs[i] = c / float64(len(data))
	}

	expected := float64(len(data)) / 256
	chi2 := 0.0
	for _, c := range hist {
		chi2 += (c - expected) * (c - expected) / expected
	}

	return ByteStats{
		Bytes:      len(data),
		Entropy:    stat.Entropy(probs) / math.Ln2,
		ChiSquareP: igamc(255.0/2, chi2/2),
		Mean:       stat.Mean(values, nil),
		OnesFrac:   FromBytes(data).Proportion(),
	}, nil
}
