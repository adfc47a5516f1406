package lbm

import "math"

// Populations are stored shifted around the rest state (fi - wi at rho=1,
// u=0) and scaled by 2^15 before the half-precision round, which centers the
// representable range on +-2 and concentrates mantissa resolution near zero.
const ddfScale = 32768.0

// EncodeDDF converts a shifted population value to its half-precision
// storage form.
func EncodeDDF(v float32) uint16 {
	return f32ToF16(v * ddfScale)
}

// DecodeDDF is the inverse of EncodeDDF up to half-precision rounding.
func DecodeDDF(p uint16) float32 {
	return f16ToF32(p) * (1.0 / ddfScale)
}

// f32ToF16 converts a float32 to IEEE 754 binary16 with round-to-nearest-even,
// including subnormal results; overflow saturates to infinity.
func f32ToF16(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16((b >> 16) & 0x8000)
	exp := int32((b >> 23) & 0xff)
	mant := b & 0x007fffff

	if exp == 0xff {
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}

	e := exp - 127 + 15
	if e >= 0x1f {
		return sign | 0x7c00
	}
	if e <= 0 {
		if e < -10 {
			return sign
		}
		mant |= 0x00800000
		shift := uint32(14 - e)
		half := uint16(mant >> shift)
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | half
	}

	half := sign | uint16(e)<<10 | uint16(mant>>13)
	rem := mant & 0x1fff
	// rounding may carry through the exponent field; the bit layout makes
	// that carry produce the correctly rounded result, including Inf
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++
	}
	return half
}

// f16ToF32 converts an IEEE 754 binary16 value to float32 exactly.
func f16ToF32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch {
	case exp == 0x1f:
		if mant != 0 {
			return float32(math.NaN())
		}
		return math.Float32frombits(sign | 0x7f800000)
	case exp == 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		return math.Float32frombits(sign | e<<23 | (mant&0x3ff)<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}
