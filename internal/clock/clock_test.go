package clock

import (
	"testing"
	"time"
)

func TestTimetagEqual(t *testing.T) {
	a := Timetag{Seconds: 1, Fraction: 2}
	b := Timetag{Seconds: 1, Fraction: 2}
	c := Timetag{Seconds: 1, Fraction: 3}
	if !a.Equal(b) {
		t.Error("expected equal timetags to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected differing fractions to compare unequal")
	}
}

func TestTimetagBefore(t *testing.T) {
	cases := []struct {
		a, b Timetag
		want bool
	}{
		{Timetag{Seconds: 1}, Timetag{Seconds: 2}, true},
		{Timetag{Seconds: 2}, Timetag{Seconds: 1}, false},
		{Timetag{Seconds: 1, Fraction: 1}, Timetag{Seconds: 1, Fraction: 2}, true},
		{Timetag{Seconds: 1, Fraction: 2}, Timetag{Seconds: 1, Fraction: 2}, false},
	}
	for _, tc := range cases {
		if got := tc.a.Before(tc.b); got != tc.want {
			t.Errorf("%+v.Before(%+v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFakeClockSetAndNow(t *testing.T) {
	f := NewFake()
	if got := f.Now(); got != (Timetag{}) {
		t.Fatalf("expected zero timetag initially, got %+v", got)
	}

	want := Timetag{Seconds: 10, Fraction: 5}
	now := time.Unix(100, 0)
	f.Set(want, now)

	if got := f.Now(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got := f.Time(); !got.Equal(now) {
		t.Errorf("got %v, want %v", got, now)
	}
}

func TestFakeClockAdvance(t *testing.T) {
	f := NewFake()
	f.Advance(1500 * time.Millisecond)

	got := f.Now()
	if got.Seconds != 1 {
		t.Errorf("expected 1 whole second elapsed, got %d", got.Seconds)
	}
	if got.Fraction == 0 {
		t.Error("expected a nonzero fractional remainder after advancing 1.5s")
	}
}

func TestFakeClockAdvanceAccumulates(t *testing.T) {
	f := NewFake()
	f.Advance(1 * time.Second)
	f.Advance(2 * time.Second)

	if got := f.Now(); got.Seconds != 3 {
		t.Errorf("expected accumulated 3 seconds, got %d", got.Seconds)
	}
}
