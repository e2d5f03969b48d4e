package fixedmath

import (
	"math"
	"math/bits"
)

// Vec2 is a fixed-point 2D vector used for positions and velocities.
type Vec2 struct {
	X Fixed `json:"x"`
	Y Fixed `json:"y"`
}

func V2(x, y int) Vec2 { return Vec2{X: FromInt(x), Y: FromInt(y)} }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Scale(f Fixed) Vec2 { return Vec2{X: Mul(v.X, f), Y: Mul(v.Y, f)} }

func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// LengthSq saturates at the largest Fixed.
func (v Vec2) LengthSq() Fixed {
	hi, lo := v.sumSq()
	if hi>>(Shift-1) != 0 {
		return saturate(false)
	}
	return Fixed((hi << (64 - Shift)) | (lo >> Shift))
}

// Length takes the root of the full 128-bit sum of squares, so it stays
// exact where LengthSq saturates.
func (v Vec2) Length() Fixed {
	r := sqrt128(v.sumSq())
	if r > math.MaxInt64 {
		return saturate(false)
	}
	return Fixed(r)
}

// sumSq returns X*X + Y*Y of the raw values as a 128-bit integer.
func (v Vec2) sumSq() (hi, lo uint64) {
	xh, xl := bits.Mul64(absU(int64(v.X)), absU(int64(v.X)))
	yh, yl := bits.Mul64(absU(int64(v.Y)), absU(int64(v.Y)))
	lo, c := bits.Add64(xl, yl, 0)
	hi, _ = bits.Add64(xh, yh, c)
	return hi, lo
}

func (v Vec2) Dist(o Vec2) Fixed { return o.Sub(v).Length() }

// Heading returns the direction of v in degrees; v must be non-zero.
func (v Vec2) Heading() Fixed { return Atan2(v.Y, v.X) }

// StepToward moves v toward target by at most maxStep and reports arrival.
func (v Vec2) StepToward(target Vec2, maxStep Fixed) (Vec2, bool) {
	d := target.Sub(v)
	dist := d.Length()
	if dist <= maxStep {
		return target, true
	}
	return Vec2{
		X: v.X + Fixed(MulDiv(int64(d.X), int64(maxStep), int64(dist))),
		Y: v.Y + Fixed(MulDiv(int64(d.Y), int64(maxStep), int64(dist))),
	}, false
}

// FromAngle returns a vector of the given length pointing at deg.
func FromAngle(deg, length Fixed) Vec2 {
	return Vec2{X: Mul(Cos(deg), length), Y: Mul(Sin(deg), length)}
}

// Point is an integer offset, the unit of formation and footprint data.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rotate rotates integer offsets about the origin by deg and rounds each
// component half away from zero.
func Rotate(points []Point, deg Fixed) []Point {
	s, c := Sin(deg), Cos(deg)
	out := make([]Point, len(points))
	for i, p := range points {
		px, py := Fixed(int64(p.X)), Fixed(int64(p.Y))
		x := px*c - py*s
		y := px*s + py*c
		out[i] = Point{X: x.Round(), Y: y.Round()}
	}
	return out
}
