// Package randtest implements a quick-look battery of NIST SP 800-22
// statistical tests, run over captured SRAM readouts immediately after a
// session. The external reference suite remains the authority for formal
// results; this battery exists so a bad capture is visible before the
// student leaves the bench.
package randtest

import (
	"errors"
	"fmt"
	"unicode"
)

// Bits is a bit sequence under test, one value (0 or 1) per element.
type Bits []uint8

// FromBytes unpacks packed bytes into bits, MSB first within each byte.
// This matches how the NIST suite reads binary input files.
func FromBytes(data []byte) Bits {
	bits := make(Bits, 0, len(data)*8)
	for _, b := range data {
		for shift := 7; shift >= 0; shift-- {
			bits = append(bits, (b>>uint(shift))&1)
		}
	}
	return bits
}

// FromASCII parses a text bitstream of '0' and '1' characters. Whitespace is
// ignored; any other character is an error.
func FromASCII(data []byte) (Bits, error) {
	bits := make(Bits, 0, len(data))
	for i, c := range string(data) {
		switch {
		case c == '0':
			bits = append(bits, 0)
		case c == '1':
			bits = append(bits, 1)
		case unicode.IsSpace(c):
		default:
			return nil, fmt.Errorf("invalid character %q at offset %d", c, i)
		}
	}
	if len(bits) == 0 {
		return nil, errors.New("no bits found in input")
	}
	return bits, nil
}

// Ones returns the number of one bits.
func (b Bits) Ones() int {
	ones := 0
	for _, bit := range b {
		ones += int(bit)
	}
	return ones
}

// Proportion returns the fraction of one bits.
func (b Bits) Proportion() float64 {
	if len(b) == 0 {
		return 0
	}
	return float64(b.Ones()) / float64(len(b))
}
