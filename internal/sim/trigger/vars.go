package trigger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/world"
)

type ValueKind uint8

const (
	KindNumber ValueKind = iota
	KindString
	KindBool
)

// Value is a level variable: a fixed-point number, a string or a bool.
type Value struct {
	Kind ValueKind
	Num  fixedmath.Fixed
	Str  string
	Bool bool
}

func Number(f fixedmath.Fixed) Value { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// ValueOf converts a decoded config or script value.
func ValueOf(raw any) (Value, error) {
	switch v := raw.(type) {
	case fixedmath.Fixed:
		return Number(v), nil
	case int:
		return Number(fixedmath.FromInt(v)), nil
	case float64:
		return Number(fixedmath.FromFloat(v)), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return Value{}, err
		}
		return Number(fixedmath.FromFloat(f)), nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	}
	return Value{}, fmt.Errorf("unsupported value %v (%T)", raw, raw)
}

// Any returns the value as float64, string or bool, for presentation and scripts.
func (v Value) Any() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	}
	return v.Num.Float()
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	}
	return v.Num == o.Num
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.Str)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return v.Num.String()
}

func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

// Vars is the level session's variable store.
type Vars struct {
	m map[string]Value
}

func NewVars() *Vars { return &Vars{m: map[string]Value{}} }

// Get reports a missing variable with ok=false; that is not an error.
func (s *Vars) Get(name string) (Value, bool) {
	v, ok := s.m[name]
	return v, ok
}

// Number returns a numeric variable; strings and bools are not numbers.
func (s *Vars) Number(name string) (fixedmath.Fixed, bool) {
	v, ok := s.m[name]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

func (s *Vars) Set(name string, v Value) { s.m[name] = v }

func (s *Vars) Len() int { return len(s.m) }

func (s *Vars) Clear() { s.m = map[string]Value{} }

// Snapshot copies the store.
func (s *Vars) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *Vars) WriteDigest(d *world.Digest) {
	keys := world.SortedKeys(s.m)
	d.U64(uint64(len(keys)))
	for _, k := range keys {
		v := s.m[k]
		d.Str(k)
		d.U64(uint64(v.Kind))
		switch v.Kind {
		case KindString:
			d.Str(v.Str)
		case KindBool:
			d.Bool(v.Bool)
		default:
			d.I64(int64(v.Num))
		}
	}
}
