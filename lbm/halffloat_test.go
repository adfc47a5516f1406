package lbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// halfULP returns the spacing of the binary16 grid at magnitude |s|.
func halfULP(s float64) float64 {
	s = math.Abs(s)
	if s < math.Ldexp(1, -14) {
		return math.Ldexp(1, -24)
	}
	e := math.Floor(math.Log2(s))
	return math.Ldexp(1, int(e)-10)
}

// Round-to-nearest guarantees the round-trip error stays within half an ULP
// of the scaled half-precision grid.
func TestRoundTripULPBound(t *testing.T) {
	vals := []float32{0, 1e-7, 3e-5, -2.5e-4, 0.001, -0.01, 0.05, -0.1, 0.3333, 0.5, -0.75, 0.999, 1, -1}
	for v := float32(-1); v <= 1; v += 0.00390625 {
		vals = append(vals, v)
	}
	for _, v := range vals {
		back := DecodeDDF(EncodeDDF(v))
		scaled := float64(v) * ddfScale
		bound := halfULP(scaled)/2/ddfScale + 1e-12
		require.LessOrEqual(t, math.Abs(float64(back-v)), bound,
			"round trip of %g gave %g", v, back)
	}
}

// Values already on the storage grid must survive the round trip bit-exactly:
// decode and encode are inverse for every finite half-precision pattern.
func TestRoundTripBitExact(t *testing.T) {
	for h := 0; h < 1<<16; h++ {
		if (h>>10)&0x1f == 0x1f {
			continue // Inf/NaN patterns are not storage values
		}
		p := uint16(h)
		require.Equal(t, p, EncodeDDF(DecodeDDF(p)), "pattern %#04x", p)
	}
}

func TestEncodeSaturatesAndKeepsSign(t *testing.T) {
	require.Equal(t, uint16(0x7c00), EncodeDDF(3.0), "above +2 saturates to +Inf")
	require.Equal(t, uint16(0xfc00), EncodeDDF(-3.0))
	require.Equal(t, uint16(0x8000), EncodeDDF(float32(math.Copysign(0, -1))))
	require.Equal(t, uint16(0), EncodeDDF(0))
}

func TestHalfConversionKnownValues(t *testing.T) {
	tests := []struct {
		bits uint16
		want float32
	}{
		{0x3c00, 1.0},
		{0xbc00, -1.0},
		{0x3800, 0.5},
		{0x4000, 2.0},
		{0x7bff, 65504},   // largest finite half
		{0x0400, 6.103515625e-05}, // smallest normal
		{0x0001, 5.960464477539063e-08}, // smallest subnormal
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, f16ToF32(tc.bits), "bits %#04x", tc.bits)
		require.Equal(t, tc.bits, f32ToF16(tc.want), "value %g", tc.want)
	}
	require.True(t, math.IsInf(float64(f16ToF32(0x7c00)), 1))
	require.True(t, math.IsNaN(float64(f16ToF32(0x7e01))))
}
