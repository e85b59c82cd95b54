package puf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Uniformity([]byte{0x00, 0x00}))
	assert.Equal(t, 1.0, Uniformity([]byte{0xFF, 0xFF}))
	assert.Equal(t, 0.5, Uniformity([]byte{0xF0, 0x0F}))
	assert.Equal(t, 0.0, Uniformity(nil))
}

func TestFractionalDistance(t *testing.T) {
	t.Parallel()

	d, err := FractionalDistance([]byte{0xFF}, []byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	d, err = FractionalDistance([]byte{0xAA}, []byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)

	d, err = FractionalDistance([]byte{0xF0}, []byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, 0.5, d)

	_, err = FractionalDistance([]byte{0}, []byte{0, 0})
	assert.Error(t, err)
}

func TestReferenceMajorityVote(t *testing.T) {
	t.Parallel()

	readouts := [][]byte{
		{0b10110000},
		{0b10010000},
		{0b10110001},
	}
	ref, err := Reference(readouts)
	require.NoError(t, err)
	// bit 5 is 1 in two of three rounds; bit 0 in only one
	assert.Equal(t, []byte{0b10110000}, ref)
}

func TestAnalyzeStableDevice(t *testing.T) {
	t.Parallel()

	base := bytes.Repeat([]byte{0xA5}, 64)
	readouts := [][]byte{base, base, base, base}

	m, ref, err := Analyze(readouts)
	require.NoError(t, err)
	assert.Equal(t, base, ref)
	assert.Equal(t, 4, m.Rounds)
	assert.Equal(t, 512, m.Bits)
	assert.InDelta(t, 0.5, m.MeanUniformity, 1e-12)
	assert.Zero(t, m.MeanIntraDistance)
	assert.Zero(t, m.MaxIntraDistance)
	assert.Equal(t, 1.0, m.StableBitFraction)
}

func TestAnalyzeNoisyDevice(t *testing.T) {
	t.Parallel()

	base := bytes.Repeat([]byte{0x55}, 32)
	noisy := append([]byte{}, base...)
	noisy[0] ^= 0x01 // one flipped bit in one round

	m, ref, err := Analyze([][]byte{base, base, noisy})
	require.NoError(t, err)
	assert.Equal(t, base, ref, "majority vote absorbs the flip")

	totalBits := float64(32 * 8)
	assert.InDelta(t, (1.0/totalBits)/3, m.MeanIntraDistance, 1e-12)
	assert.InDelta(t, 1.0/totalBits, m.MaxIntraDistance, 1e-12)
	assert.InDelta(t, 1-1.0/totalBits, m.StableBitFraction, 1e-12)
}

func TestAnalyzeRejectsMismatchedLengths(t *testing.T) {
	t.Parallel()

	_, _, err := Analyze([][]byte{{1, 2}, {1}})
	assert.Error(t, err)

	_, _, err = Analyze(nil)
	assert.Error(t, err)

	_, _, err = Analyze([][]byte{{}})
	assert.Error(t, err)
}

func TestBitAliasing(t *testing.T) {
	t.Parallel()

	readouts := [][]byte{
		{0b10000000},
		{0b10000000},
		{0b00000000},
		{0b10000000},
	}
	aliasing, err := BitAliasing(readouts)
	require.NoError(t, err)
	require.Len(t, aliasing, 8)
	assert.InDelta(t, 0.75, aliasing[0], 1e-12, "MSB set in three of four rounds")
	for _, a := range aliasing[1:] {
		assert.Zero(t, a)
	}
}

func TestUniqueness(t *testing.T) {
	t.Parallel()

	a := bytes.Repeat([]byte{0x00}, 16)
	b := bytes.Repeat([]byte{0xFF}, 16)
	c := bytes.Repeat([]byte{0x0F}, 16)

	u, err := Uniqueness([][]byte{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1.0, u)

	// pairwise: d(a,b)=1, d(a,c)=0.5, d(b,c)=0.5
	u, err = Uniqueness([][]byte{a, b, c})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, u, 1e-12)

	_, err = Uniqueness([][]byte{a})
	assert.Error(t, err)
}
