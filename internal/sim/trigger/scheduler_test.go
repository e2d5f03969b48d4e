package trigger

import (
	"encoding/json"
	"testing"

	"tactica.ai/internal/sim/fixedmath"
)

func TestSchedulerCancelAndPending(t *testing.T) {
	s := NewScheduler()
	a := s.Add(4, nil)
	b := s.Add(2, nil)
	c := s.Add(4, nil)

	if !s.Cancel(a) || s.Cancel(a) {
		t.Fatalf("cancel should succeed once")
	}
	if s.Cancel(99) {
		t.Fatalf("unknown id must be a no-op")
	}
	p := s.Pending()
	if len(p) != 2 || p[0].ID != b || p[1].ID != c {
		t.Fatalf("pending=%+v", p)
	}
	if _, _, ok := s.PopDue(1); ok {
		t.Fatalf("nothing is due at 1")
	}
	if id, _, ok := s.PopDue(10); !ok || id != b {
		t.Fatalf("first due=%d", id)
	}
	if s.Cancel(b) {
		t.Fatalf("fired task must not cancel")
	}
	if s.Len() != 1 {
		t.Fatalf("len=%d", s.Len())
	}
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(json.Number("2.5"))
	if err != nil || v.Kind != KindNumber || v.Num != fixedmath.FromRatio(5, 2) {
		t.Fatalf("json number: %+v %v", v, err)
	}
	if v, _ := ValueOf("x"); !v.Equal(String("x")) || v.Any() != "x" {
		t.Fatalf("string: %+v", v)
	}
	if v, _ := ValueOf(true); !v.Equal(Bool(true)) || v.Equal(Number(fixedmath.One)) {
		t.Fatalf("bool: %+v", v)
	}
	if _, err := ValueOf([]int{1}); err == nil {
		t.Fatalf("slices are not values")
	}
	b, _ := json.Marshal(Number(fixedmath.FromInt(3)))
	if string(b) != "3" {
		t.Fatalf("marshal=%s", b)
	}
}
