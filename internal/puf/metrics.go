// Package puf computes PUF quality metrics over repeated SRAM readouts.
//
// The figures follow the usual SRAM-PUF literature: uniformity (how
// balanced a single readout is), intra-device distance (how stable the
// fingerprint is across power cycles), inter-device distance (how unique it
// is between chips), and per-bit aliasing.
package puf

import (
	"errors"
	"fmt"
	mathbits "math/bits"

	"gonum.org/v1/gonum/stat"
)

// Uniformity returns the fractional Hamming weight of a readout. An ideal
// PUF response sits at 0.5.
func Uniformity(readout []byte) float64 {
	if len(readout) == 0 {
		return 0
	}
	ones := 0
	for _, b := range readout {
		ones += mathbits.OnesCount8(b)
	}
	return float64(ones) / float64(len(readout)*8)
}

// FractionalDistance returns the fractional Hamming distance between two
// equal-length readouts.
func FractionalDistance(a, b []byte) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("length mismatch: %d vs %d bytes", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("empty readouts")
	}
	diff := 0
	for i := range a {
		diff += mathbits.OnesCount8(a[i] ^ b[i])
	}
	return float64(diff) / float64(len(a)*8), nil
}

// Reference derives a device's nominal fingerprint from repeated readouts by
// per-bit majority vote. Ties (possible with an even number of rounds) go
// to one.
func Reference(readouts [][]byte) ([]byte, error) {
	if err := checkSet(readouts); err != nil {
		return nil, err
	}

	n := len(readouts[0])
	ref := make([]byte, n)
	rounds := len(readouts)
	for i := 0; i < n; i++ {
		for shift := 7; shift >= 0; shift-- {
			votes := 0
			for _, r := range readouts {
				votes += int((r[i] >> uint(shift)) & 1)
			}
			if 2*votes >= rounds {
				ref[i] |= 1 << uint(shift)
			}
		}
	}
	return ref, nil
}

// DeviceMetrics summarise one device's capture session.
type DeviceMetrics struct {
	Rounds           int     `json:"rounds"`
	Bits             int     `json:"bits"`
	MeanUniformity   float64 `json:"mean_uniformity"`
	StdDevUniformity float64 `json:"stddev_uniformity"`
	// MeanIntraDistance is the average bit error rate of each round against
	// the majority-vote reference. Below a few percent for healthy SRAM.
	MeanIntraDistance float64 `json:"mean_intra_distance"`
	MaxIntraDistance  float64 `json:"max_intra_distance"`
	// StableBitFraction is the share of bits identical in every round.
	StableBitFraction float64 `json:"stable_bit_fraction"`
}

// Analyze computes DeviceMetrics and the majority-vote reference for a set
// of equal-length readouts from one device.
func Analyze(readouts [][]byte) (*DeviceMetrics, []byte, error) {
	if err := checkSet(readouts); err != nil {
		return nil, nil, err
	}

	ref, err := Reference(readouts)
	if err != nil {
		return nil, nil, err
	}

	uniformities := make([]float64, len(readouts))
	distances := make([]float64, len(readouts))
	maxIntra := 0.0
	for i, r := range readouts {
		uniformities[i] = Uniformity(r)
		d, err := FractionalDistance(r, ref)
		if err != nil {
			return nil, nil, err
		}
		distances[i] = d
		if d > maxIntra {
			maxIntra = d
		}
	}

	// a bit is stable when every round agrees: OR of pairwise XOR against
	// the first round marks every bit that ever flipped
	n := len(readouts[0])
	flipped := make([]byte, n)
	for _, r := range readouts[1:] {
		for i := range flipped {
			flipped[i] |= r[i] ^ readouts[0][i]
		}
	}
	flippedBits := 0
	for _, b := range flipped {
		flippedBits += mathbits.OnesCount8(b)
	}
	totalBits := n * 8

	return &DeviceMetrics{
		Rounds:            len(readouts),
		Bits:              totalBits,
		MeanUniformity:    stat.Mean(uniformities, nil),
		StdDevUniformity:  stat.StdDev(uniformities, nil),
		MeanIntraDistance: stat.Mean(distances, nil),
		MaxIntraDistance:  maxIntra,
		StableBitFraction: 1 - float64(flippedBits)/float64(totalBits),
	}, ref, nil
}

// BitAliasing returns, per bit position, the mean bit value across readouts.
// Positions pinned at 0 or 1 on every round are candidate aliased cells;
// 0.5 means the cell is pure noise (a TRNG cell, not a PUF cell).
func BitAliasing(readouts [][]byte) ([]float64, error) {
	if err := checkSet(readouts); err != nil {
		return nil, err
	}

	n := len(readouts[0])
	aliasing := make([]float64, n*8)
	for _, r := range readouts {
		for i := 0; i < n; i++ {
			for shift := 7; shift >= 0; shift-- {
				aliasing[i*8+(7-shift)] += float64((r[i] >> uint(shift)) & 1)
			}
		}
	}
	for i := range aliasing {
		aliasing[i] /= float64(len(readouts))
	}
	return aliasing, nil
}

// Uniqueness computes the mean pairwise fractional Hamming distance between
// device references. An ideal population sits at 0.5.
func Uniqueness(references [][]byte) (float64, error) {
	if len(references) < 2 {
		return 0, errors.New("uniqueness needs references from at least two devices")
	}

	var distances []float64
	for i := 0; i < len(references); i++ {
		for j := i + 1; j < len(references); j++ {
			d, err := FractionalDistance(references[i], references[j])
			if err != nil {
				return 0, err
			}
			distances = append(distances, d)
		}
	}
	return stat.Mean(distances, nil), nil
}

func checkSet(readouts [][]byte) error {
	if len(readouts) == 0 {
		return errors.New("no readouts")
	}
	n := len(readouts[0])
	if n == 0 {
		return errors.New("empty readouts")
	}
	for i, r := range readouts {
		if len(r) != n {
			return fmt.Errorf("readout %d has %d bytes, expected %d", i, len(r), n)
		}
	}
	return nil
}
