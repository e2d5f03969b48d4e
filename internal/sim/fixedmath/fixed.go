// Package fixedmath is the deterministic math layer of the simulation.
//
// Every value that feeds simulation state is a Q32.32 fixed-point number held
// in an int64. Arithmetic is integer-only so results are bit-identical on every
// platform; float64 conversions exist for config ingestion and presentation.
package fixedmath

import (
	"math"
	"math/bits"
	"strconv"

	"tactica.ai/internal/sim/simerr"
)

// Fixed is a Q32.32 fixed-point number.
type Fixed int64

const (
	Shift = 32

	One  Fixed = 1 << Shift
	Half Fixed = 1 << (Shift - 1)

	fracMask = int64(One) - 1
)

func FromInt(i int) Fixed { return Fixed(int64(i) << Shift) }

// FromFloat converts by truncation toward zero. Only config loaders should call it.
func FromFloat(f float64) Fixed { return Fixed(f * float64(One)) }

// FromRatio returns num/den without an intermediate float.
func FromRatio(num, den int64) Fixed {
	if den == 0 {
		panic(simerr.Domain("fixedmath: ratio with zero denominator"))
	}
	return Fixed(MulDiv(num, int64(One), den))
}

// Int returns the floor of f.
func (f Fixed) Int() int { return int(int64(f) >> Shift) }

// Round rounds half away from zero. This is the single rounding rule of the
// kernel; replay compatibility depends on it never changing.
func (f Fixed) Round() int {
	if f >= 0 {
		return int(int64(f+Half) >> Shift)
	}
	return -int(int64(-f+Half) >> Shift)
}

func (f Fixed) Float() float64 { return float64(f) / float64(One) }

func (f Fixed) Abs() Fixed {
	if f < 0 {
		return -f
	}
	return f
}

func (f Fixed) String() string {
	return strconv.FormatFloat(f.Float(), 'f', -1, 64)
}

// Mul multiplies with a 128-bit intermediate, truncating toward zero and
// saturating on overflow.
func Mul(a, b Fixed) Fixed {
	if a == 0 || b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	hi, lo := bits.Mul64(ua, ub)
	if hi>>(Shift-1) != 0 {
		return saturate(negative)
	}
	result := Fixed((hi << (64 - Shift)) | (lo >> Shift))
	if negative {
		return -result
	}
	return result
}

func saturate(negative bool) Fixed {
	if negative {
		return math.MinInt64
	}
	return math.MaxInt64
}

// Div divides with a 128-bit intermediate, saturating on overflow.
// Division by zero is a domain error.
func Div(a, b Fixed) Fixed {
	if b == 0 {
		panic(simerr.Domain("fixedmath: division by zero"))
	}
	negative := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	hi := ua >> (64 - Shift)
	lo := ua << Shift
	if hi >= ub {
		return saturate(negative)
	}
	quo, _ := bits.Div64(hi, lo, ub)
	if quo > math.MaxInt64 {
		return saturate(negative)
	}
	if negative {
		return -Fixed(quo)
	}
	return Fixed(quo)
}

// MulDiv computes (a * b) / c with a 128-bit intermediate, truncating toward zero.
func MulDiv(a, b, c int64) int64 {
	if c == 0 {
		panic(simerr.Domain("fixedmath: muldiv by zero"))
	}
	neg := ((a < 0) != (b < 0)) != (c < 0)
	ua, ub, uc := absU(a), absU(b), absU(c)
	hi, lo := bits.Mul64(ua, ub)
	if hi >= uc {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uc)
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func absU(x int64) uint64 {
	if x < 0 {
		return uint64(-x)
	}
	return uint64(x)
}

func Min(a, b Fixed) Fixed {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Fixed) Fixed {
	if a > b {
		return a
	}
	return b
}

func Clamp(x, lo, hi Fixed) Fixed {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Lerp interpolates linearly; t is not clamped.
func Lerp(a, b, t Fixed) Fixed {
	return a + Mul(b-a, t)
}

// FloorDiv divides rounding toward negative infinity. b must be > 0.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if r := a % b; r < 0 {
		q--
	}
	return q
}

// Mod returns a non-negative remainder. b must be > 0.
func Mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
