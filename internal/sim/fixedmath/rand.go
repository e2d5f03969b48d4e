package fixedmath

// Park–Miller minimal standard generator. The seed is threaded explicitly
// by callers; nothing here holds hidden state.

const (
	randModulus    int64 = 2147483647
	randMultiplier int64 = 16807
)

// NormalizeSeed maps any int32 into the generator's valid range [1, 2^31-2].
func NormalizeSeed(seed int32) int32 {
	s := Mod(int64(seed), randModulus)
	if s == 0 {
		s = 1
	}
	return int32(s)
}

// Random advances the seed and returns (seed', value) with value in [0, 1).
//
//	seed' = (seed * 16807) mod 2147483647
//	value = (seed' - 1) / 2147483646
func Random(seed int32) (int32, float64) {
	next := (int64(NormalizeSeed(seed)) * randMultiplier) % randModulus
	return int32(next), float64(next-1) / float64(randModulus-1)
}

// RandomFixed is Random with a fixed-point value; the division is integer-only.
func RandomFixed(seed int32) (int32, Fixed) {
	next, _ := Random(seed)
	return next, Fixed(MulDiv(int64(next)-1, int64(One), randModulus-1))
}

// RandomInt returns an integer in [lo, hi].
func RandomInt(seed int32, lo, hi int) (int32, int) {
	if hi <= lo {
		next, _ := Random(seed)
		return next, lo
	}
	next, v := RandomFixed(seed)
	span := int64(hi-lo) + 1
	n := int(int64(Mul(v, Fixed(span<<Shift))) >> Shift)
	if n >= int(span) {
		n = int(span) - 1
	}
	return next, lo + n
}

// Rand is a seed holder owned by a simulation session. It exists so the seed
// can be passed by pointer to behavior trees and triggers in a fixed order.
type Rand struct {
	seed  int32
	draws uint64
}

func NewRand(seed int32) *Rand {
	return &Rand{seed: NormalizeSeed(seed)}
}

func (r *Rand) Seed() int32 { return r.seed }

// Draws counts values produced since construction or the last Restore.
func (r *Rand) Draws() uint64 { return r.draws }

// Restore resets the holder to a previously observed seed.
func (r *Rand) Restore(seed int32, draws uint64) {
	r.seed = NormalizeSeed(seed)
	r.draws = draws
}

func (r *Rand) Float() float64 {
	var v float64
	r.seed, v = Random(r.seed)
	r.draws++
	return v
}

func (r *Rand) Fixed() Fixed {
	var v Fixed
	r.seed, v = RandomFixed(r.seed)
	r.draws++
	return v
}

// Intn returns an integer in [lo, hi].
func (r *Rand) Intn(lo, hi int) int {
	var v int
	r.seed, v = RandomInt(r.seed, lo, hi)
	r.draws++
	return v
}

// Chance reports true with probability p (p in [0, One]).
func (r *Rand) Chance(p Fixed) bool {
	return r.Fixed() < p
}
