package boundary

import "testing"

func TestPolicyApplyPassthrough(t *testing.T) {
	p := Policy{}
	r := p.Apply(42)
	if r.Dropped || r.Value != 42 {
		t.Fatalf("zero policy should pass through unchanged, got %+v", r)
	}
}

func TestPolicyApplyClamp(t *testing.T) {
	p := Policy{HasMin: true, Min: 0, HasMax: true, Max: 10, MinAction: Clamp, MaxAction: Clamp}

	if r := p.Apply(15); r.Dropped || r.Value != 10 {
		t.Errorf("expected clamp to max 10, got %+v", r)
	}
	if r := p.Apply(-5); r.Dropped || r.Value != 0 {
		t.Errorf("expected clamp to min 0, got %+v", r)
	}
	if r := p.Apply(5); r.Dropped || r.Value != 5 {
		t.Errorf("expected in-range value unchanged, got %+v", r)
	}
}

func TestPolicyApplyDrop(t *testing.T) {
	p := Policy{HasMax: true, Max: 5, MaxAction: Drop}
	if r := p.Apply(6); !r.Dropped {
		t.Fatal("expected value above max to be dropped")
	}
	if r := p.Apply(5); r.Dropped {
		t.Fatal("value exactly at max should not be dropped")
	}
}

func TestPolicyApplyWrap(t *testing.T) {
	p := Policy{HasMin: true, Min: 0, HasMax: true, Max: 10, MaxAction: Wrap, MinAction: Wrap}

	if r := p.Apply(12); r.Dropped || r.Value != 2 {
		t.Errorf("expected 12 wrapped into [0,10) as 2, got %+v", r)
	}
	if r := p.Apply(-3); r.Dropped || r.Value != 7 {
		t.Errorf("expected -3 wrapped into [0,10) as 7, got %+v", r)
	}
}

func TestPolicyApplyWrapZeroWidthSpan(t *testing.T) {
	p := Policy{HasMin: true, Min: 5, HasMax: true, Max: 5, MaxAction: Wrap}
	if r := p.Apply(9); r.Dropped || r.Value != 5 {
		t.Errorf("expected a zero-width span to collapse to min, got %+v", r)
	}
}

func TestPolicyApplyVectorDropsWholeSampleOnOneElement(t *testing.T) {
	p := Policy{HasMax: true, Max: 5, MaxAction: Drop}
	_, dropped := p.ApplyVector([]float64{1, 2, 6})
	if !dropped {
		t.Fatal("expected the whole sample dropped when any one element violates the bound")
	}
}

func TestPolicyApplyVectorPassesAllElementsThrough(t *testing.T) {
	p := Policy{HasMax: true, Max: 10, MaxAction: Clamp}
	out, dropped := p.ApplyVector([]float64{1, 20, 3})
	if dropped {
		t.Fatal("did not expect a drop")
	}
	want := []float64{1, 10, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("element %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestActionString(t *testing.T) {
	cases := map[Action]string{None: "none", Clamp: "clamp", Wrap: "wrap", Drop: "drop", Action(99): "unknown"}
	for a, want := range cases {
		if got := a.String(); got != want {
			t.Errorf("Action(%d).String() = %q, want %q", a, got, want)
		}
	}
}
