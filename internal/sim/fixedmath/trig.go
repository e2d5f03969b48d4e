package fixedmath

import (
	"math/bits"

	"tactica.ai/internal/sim/simerr"
)

// Angles are in degrees to match level-design data.

const (
	// quarterSteps is the table resolution: 1/16 degree over [0, 90].
	quarterSteps = 90 * 16

	// piQ32 is round(pi * 2^32).
	piQ32 int64 = 13493037705
	// radToDegQ32 is round(180/pi * 2^32).
	radToDegQ32 Fixed = 246083499208

	cordicIters = Shift
)

var (
	Deg90  = FromInt(90)
	Deg180 = FromInt(180)
	Deg360 = FromInt(360)
)

var (
	// sinQuarter[i] = sin(i/16 degrees).
	sinQuarter [quarterSteps + 1]Fixed
	// cordicAtan[i] = atan(2^-i) in degrees.
	cordicAtan [cordicIters]Fixed
)

func init() {
	// Tables are built with integer Taylor series so no platform math enters
	// the simulation.
	for i := 1; i < quarterSteps; i++ {
		x := Fixed(int64(i) * piQ32 / (180 * 16))
		sinQuarter[i] = taylorSin(x)
	}
	sinQuarter[0] = 0
	sinQuarter[quarterSteps] = One

	cordicAtan[0] = FromInt(45)
	for i := 1; i < cordicIters; i++ {
		cordicAtan[i] = Mul(taylorAtan(One>>uint(i)), radToDegQ32)
	}
}

// taylorSin is valid for 0 <= x <= pi/2 (radians, Q32.32).
func taylorSin(x Fixed) Fixed {
	sum, term := x, x
	for k := int64(1); ; k++ {
		term = Mul(Mul(term, x), x)
		term = -term / Fixed((2*k)*(2*k+1))
		if term == 0 {
			return sum
		}
		sum += term
	}
}

// taylorAtan is valid for 0 < t <= 1/2 (radians, Q32.32).
func taylorAtan(t Fixed) Fixed {
	sum, pow := t, t
	t2 := Mul(t, t)
	for k := int64(1); ; k++ {
		pow = Mul(pow, t2)
		term := pow / Fixed(2*k+1)
		if term == 0 {
			return sum
		}
		if k%2 == 1 {
			sum -= term
		} else {
			sum += term
		}
	}
}

// quarterSin returns sin(r) for r in [0, 90].
func quarterSin(r Fixed) Fixed {
	pos := int64(r) * 16
	idx := pos >> Shift
	if idx >= quarterSteps {
		return sinQuarter[quarterSteps]
	}
	frac := Fixed(pos & fracMask)
	a := sinQuarter[idx]
	return a + Mul(sinQuarter[idx+1]-a, frac)
}

// Sin returns the sine of an angle in degrees.
func Sin(deg Fixed) Fixed {
	d := Fixed(Mod(int64(deg), int64(Deg360)))
	q := d / Deg90
	r := d - q*Deg90
	switch q {
	case 0:
		return quarterSin(r)
	case 1:
		return quarterSin(Deg90 - r)
	case 2:
		return -quarterSin(r)
	default:
		return -quarterSin(Deg90 - r)
	}
}

// Cos returns the cosine of an angle in degrees.
func Cos(deg Fixed) Fixed {
	return Sin(deg + Deg90)
}

// NormalizeAngle maps any angle into (-180, 180].
func NormalizeAngle(deg Fixed) Fixed {
	d := Fixed(Mod(int64(deg), int64(Deg360)))
	if d > Deg180 {
		d -= Deg360
	}
	return d
}

// LerpAngle interpolates from a toward b along the shortest arc.
// The result is normalized into (-180, 180].
func LerpAngle(a, b, t Fixed) Fixed {
	delta := NormalizeAngle(b - a)
	return NormalizeAngle(a + Mul(delta, t))
}

// Atan2 returns the angle of (x, y) in degrees within (-180, 180].
// The zero vector has no angle and is a domain error.
func Atan2(y, x Fixed) Fixed {
	switch {
	case x == 0 && y == 0:
		panic(simerr.Domain("fixedmath: atan2 of zero vector"))
	case y == 0 && x > 0:
		return 0
	case y == 0:
		return Deg180
	case x == 0 && y > 0:
		return Deg90
	case x == 0:
		return -Deg90
	}

	var base Fixed
	if x < 0 {
		if y > 0 {
			x, y = y, -x
			base = Deg90
		} else {
			x, y = -y, x
			base = -Deg90
		}
	}

	var z Fixed
	for i := 0; i < cordicIters; i++ {
		if y > 0 {
			x, y = x+(y>>uint(i)), y-(x>>uint(i))
			z += cordicAtan[i]
		} else {
			x, y = x-(y>>uint(i)), y+(x>>uint(i))
			z -= cordicAtan[i]
		}
	}
	return base + z
}

// Sqrt returns the square root, exact to the last fractional bit (floor).
// A negative input is a caller contract violation and panics with a domain error.
func Sqrt(x Fixed) Fixed {
	if x < 0 {
		panic(simerr.Domain("fixedmath: sqrt of negative"))
	}
	if x == 0 {
		return 0
	}
	// sqrt(v / 2^32) * 2^32 == sqrt(v * 2^32)
	return Fixed(sqrt128(uint64(x)>>(64-Shift), uint64(x)<<Shift))
}

// sqrt128 is the integer square root of hi:lo, rounded down.
func sqrt128(hi, lo uint64) uint64 {
	var res uint64
	for b := 63; b >= 0; b-- {
		cand := res | (1 << uint(b))
		sh, sl := bits.Mul64(cand, cand)
		if sh < hi || (sh == hi && sl <= lo) {
			res = cand
		}
	}
	return res
}
