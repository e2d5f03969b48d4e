package fixedmath

import (
	"errors"
	"math"
	"testing"

	"tactica.ai/internal/sim/simerr"
)

func near(t *testing.T, what string, got Fixed, want float64, tol float64) {
	t.Helper()
	if d := math.Abs(got.Float() - want); d > tol {
		t.Fatalf("%s: got %v want %v (diff %g > %g)", what, got.Float(), want, d, tol)
	}
}

func expectDomainPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, simerr.ErrDomain) {
			t.Fatalf("expected domain error panic, got %#v", r)
		}
	}()
	f()
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   Fixed
		want int
	}{
		{FromFloat(0.5), 1},
		{FromFloat(-0.5), -1},
		{FromFloat(1.5), 2},
		{FromFloat(-1.5), -2},
		{FromFloat(2.4999), 2},
		{FromFloat(-2.4999), -2},
		{0, 0},
	}
	for _, c := range cases {
		if got := c.in.Round(); got != c.want {
			t.Fatalf("Round(%v)=%d want %d", c.in.Float(), got, c.want)
		}
	}
}

func TestMulDiv(t *testing.T) {
	if got := Mul(FromInt(3), FromInt(-4)); got != FromInt(-12) {
		t.Fatalf("Mul=%v", got)
	}
	if got := Div(FromInt(7), FromInt(2)); got != FromFloat(3.5) {
		t.Fatalf("Div=%v", got)
	}
	expectDomainPanic(t, func() { Div(One, 0) })
}

func TestSinCosDegrees(t *testing.T) {
	exact := map[int]Fixed{0: 0, 90: One, 180: 0, 270: -One, 360: 0, -90: -One}
	for deg, want := range exact {
		if got := Sin(FromInt(deg)); got != want {
			t.Fatalf("Sin(%d)=%v want exact %v", deg, got.Float(), want.Float())
		}
	}
	if got := Cos(0); got != One {
		t.Fatalf("Cos(0)=%v", got.Float())
	}
	for _, deg := range []float64{1, 30, 45, 60, 123.456, 200, 333.3, -47.5, 725} {
		d := FromFloat(deg)
		near(t, "sin", Sin(d), math.Sin(deg*math.Pi/180), 1e-6)
		near(t, "cos", Cos(d), math.Cos(deg*math.Pi/180), 1e-6)
	}
}

func TestSinOddSymmetry(t *testing.T) {
	for deg := 0; deg <= 720; deg += 7 {
		d := FromFloat(float64(deg) + 0.25)
		if Sin(-d) != -Sin(d) {
			t.Fatalf("Sin(-%v) != -Sin(%v)", d.Float(), d.Float())
		}
	}
}

func TestAtan2(t *testing.T) {
	if got := Atan2(0, One); got != 0 {
		t.Fatalf("Atan2(0,1)=%v", got.Float())
	}
	if got := Atan2(0, -One); got != Deg180 {
		t.Fatalf("Atan2(0,-1)=%v want 180", got.Float())
	}
	if got := Atan2(-One, 0); got != -Deg90 {
		t.Fatalf("Atan2(-1,0)=%v want -90", got.Float())
	}
	cases := [][2]float64{{1, 1}, {1, -1}, {-1, -1}, {-1, 1}, {3, 4}, {-250.5, 13}, {0.001, -900}}
	for _, c := range cases {
		got := Atan2(FromFloat(c[0]), FromFloat(c[1]))
		want := math.Atan2(c[0], c[1]) * 180 / math.Pi
		near(t, "atan2", got, want, 1e-4)
		if got <= -Deg180 || got > Deg180 {
			t.Fatalf("atan2 out of (-180,180]: %v", got.Float())
		}
	}
	expectDomainPanic(t, func() { Atan2(0, 0) })
}

func TestSqrt(t *testing.T) {
	if got := Sqrt(FromInt(16)); got != FromInt(4) {
		t.Fatalf("Sqrt(16)=%v", got.Float())
	}
	if got := Sqrt(FromInt(25)); got != FromInt(5) {
		t.Fatalf("Sqrt(25)=%v", got.Float())
	}
	near(t, "sqrt2", Sqrt(FromInt(2)), math.Sqrt2, 1e-9)
	near(t, "sqrt(0.25)", Sqrt(FromFloat(0.25)), 0.5, 1e-9)
	near(t, "sqrt(1e6)", Sqrt(FromInt(1000000)), 1000, 1e-9)
	expectDomainPanic(t, func() { Sqrt(-One) })
}

func TestVecLength(t *testing.T) {
	if got := V2(3, 4).Length(); got != FromInt(5) {
		t.Fatalf("len=%v", got.Float())
	}
	pos, arrived := V2(0, 0).StepToward(V2(10, 0), FromInt(3))
	if arrived || pos != V2(3, 0) {
		t.Fatalf("step=%v arrived=%v", pos, arrived)
	}
	pos, arrived = V2(9, 0).StepToward(V2(10, 0), FromInt(3))
	if !arrived || pos != V2(10, 0) {
		t.Fatalf("final step=%v arrived=%v", pos, arrived)
	}
}

func TestMulSaturates(t *testing.T) {
	if got := Mul(FromInt(40000), FromInt(40000)); got != FromInt(1600000000) {
		t.Fatalf("40000^2=%v", got.Float())
	}
	if got := Mul(FromInt(50000), FromInt(50000)); got != math.MaxInt64 {
		t.Fatalf("50000^2 should saturate, got %d", int64(got))
	}
	if got := Mul(FromInt(-50000), FromInt(50000)); got != math.MinInt64 {
		t.Fatalf("-50000*50000 should saturate, got %d", int64(got))
	}
}

func TestVecLengthLargeCoordinates(t *testing.T) {
	if got := V2(0, 0).Dist(V2(50000, 0)); got != FromInt(50000) {
		t.Fatalf("dist=%v", got.Float())
	}
	if got := V2(300000, 400000).Length(); got != FromInt(500000) {
		t.Fatalf("len=%v", got.Float())
	}
	if got := V2(50000, 0).LengthSq(); got != math.MaxInt64 {
		t.Fatalf("lengthSq should saturate, got %d", int64(got))
	}
	pos, arrived := V2(0, 0).StepToward(V2(60000, 0), FromInt(2))
	if arrived || pos != V2(2, 0) {
		t.Fatalf("far step=%v arrived=%v", pos, arrived)
	}
}

func TestAngles(t *testing.T) {
	if got := NormalizeAngle(FromInt(180)); got != Deg180 {
		t.Fatalf("normalize(180)=%v", got.Float())
	}
	if got := NormalizeAngle(FromInt(-180)); got != Deg180 {
		t.Fatalf("normalize(-180)=%v", got.Float())
	}
	if got := NormalizeAngle(FromInt(540 + 10)); got != FromInt(-170) {
		t.Fatalf("normalize(550)=%v", got.Float())
	}
	// 170 -> -170 crosses the seam: shortest path is +20 degrees.
	if got := LerpAngle(FromInt(170), FromInt(-170), Half); got != Deg180 {
		t.Fatalf("lerpAngle=%v want 180", got.Float())
	}
	if got := LerpAngle(FromInt(10), FromInt(50), Half); got != FromInt(30) {
		t.Fatalf("lerpAngle=%v want 30", got.Float())
	}
	if got := Lerp(FromInt(2), FromInt(6), FromFloat(0.25)); got != FromInt(3) {
		t.Fatalf("lerp=%v", got.Float())
	}
}

func TestRotate(t *testing.T) {
	got := Rotate([]Point{{1, 0}, {0, 1}, {2, 1}}, FromInt(90))
	want := []Point{{0, 1}, {-1, 0}, {-1, 2}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotate90[%d]=%v want %v", i, got[i], want[i])
		}
	}
	got = Rotate([]Point{{2, 1}}, FromInt(45))
	if got[0] != (Point{1, 2}) {
		t.Fatalf("rotate45=%v", got[0])
	}
}

func TestRandomKnownValue(t *testing.T) {
	seed, v := Random(42)
	if seed != 705894 {
		t.Fatalf("seed'=%d want 705894", seed)
	}
	if v != 705893.0/2147483646.0 {
		t.Fatalf("value=%v", v)
	}
	seed2, v2 := Random(42)
	if seed2 != seed || v2 != v {
		t.Fatalf("Random(42) not reproducible")
	}
}

func TestRandomGoldenSequence(t *testing.T) {
	first := []int32{16807, 282475249, 1622650073, 984943658, 1144108930, 470211272, 101027544, 1457850878, 1458777923, 2007237709}
	seed := int32(1)
	var chk uint64
	for i := 0; i < 1000; i++ {
		var v float64
		seed, v = Random(seed)
		if v < 0 || v >= 1 {
			t.Fatalf("value out of range at %d: %v", i, v)
		}
		if i < len(first) && seed != first[i] {
			t.Fatalf("seed[%d]=%d want %d", i, seed, first[i])
		}
		chk = chk*31 + uint64(seed)
	}
	if seed != 522329230 {
		t.Fatalf("seed after 1000 draws=%d want 522329230", seed)
	}
	if chk != 5184067215778958304 {
		t.Fatalf("checksum=%d", chk)
	}
}

func TestRandHolderMatchesPureFunction(t *testing.T) {
	r := NewRand(7)
	seed := int32(7)
	for i := 0; i < 20; i++ {
		var want float64
		seed, want = Random(seed)
		if got := r.Float(); got != want {
			t.Fatalf("draw %d: %v want %v", i, got, want)
		}
	}
	if r.Seed() != seed || r.Draws() != 20 {
		t.Fatalf("holder state seed=%d draws=%d", r.Seed(), r.Draws())
	}
	for i := 0; i < 200; i++ {
		if n := r.Intn(3, 6); n < 3 || n > 6 {
			t.Fatalf("Intn out of range: %d", n)
		}
	}
}

func TestNormalizeSeed(t *testing.T) {
	if NormalizeSeed(0) != 1 {
		t.Fatalf("zero seed must map to 1")
	}
	if s := NormalizeSeed(-5); s != 2147483642 {
		t.Fatalf("NormalizeSeed(-5)=%d", s)
	}
	if s := NormalizeSeed(2147483647); s != 1 {
		t.Fatalf("NormalizeSeed(max)=%d", s)
	}
}
