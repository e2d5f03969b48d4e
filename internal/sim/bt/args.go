package bt

import (
	"encoding/json"
	"fmt"
	"strconv"

	"tactica.ai/internal/sim/fixedmath"
	"tactica.ai/internal/sim/simerr"
)

// args reads typed values out of a node's data map. The first bad value is
// kept in err so factories can read everything and check once.
type args struct {
	typ  string
	data map[string]any
	err  error
}

func newArgs(def Def) *args { return &args{typ: def.Type, data: def.Data} }

func (a *args) fail(key, format string, v ...any) {
	if a.err == nil {
		a.err = simerr.Configf("bt %s: %s: %s", a.typ, key, fmt.Sprintf(format, v...))
	}
}

func (a *args) has(key string) bool {
	_, ok := a.data[key]
	return ok
}

func (a *args) fixed(key string, def fixedmath.Fixed) fixedmath.Fixed {
	raw, ok := a.data[key]
	if !ok {
		return def
	}
	f, ok := toFixed(raw)
	if !ok {
		a.fail(key, "want number, got %T", raw)
		return def
	}
	return f
}

func (a *args) requireFixed(key string) fixedmath.Fixed {
	if !a.has(key) {
		a.fail(key, "required")
		return 0
	}
	return a.fixed(key, 0)
}

func (a *args) int(key string, def int) int {
	raw, ok := a.data[key]
	if !ok {
		return def
	}
	f, ok := toFixed(raw)
	if !ok || f != fixedmath.FromInt(f.Int()) {
		a.fail(key, "want integer, got %v", raw)
		return def
	}
	return f.Int()
}

func (a *args) str(key, def string) string {
	raw, ok := a.data[key]
	if !ok {
		return def
	}
	s, ok := raw.(string)
	if !ok {
		a.fail(key, "want string, got %T", raw)
		return def
	}
	return s
}

// toFixed converts a decoded JSON or YAML number.
func toFixed(v any) (fixedmath.Fixed, bool) {
	switch n := v.(type) {
	case int:
		return fixedmath.FromInt(n), true
	case int64:
		return fixedmath.FromInt(int(n)), true
	case float64:
		return fixedmath.FromFloat(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		return fixedmath.FromFloat(f), true
	}
	return 0, false
}
