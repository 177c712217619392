package router

import (
	"testing"

	"github.com/go-signalmap/router/internal/clock"
)

func TestHistoryRingPushAndLatest(t *testing.T) {
	h := NewHistoryRing(4, 2)
	if _, _, ok := h.Latest(); ok {
		t.Fatal("expected an empty ring to report no latest sample")
	}

	h.Push([]float64{1, 2}, clock.Timetag{Seconds: 1})
	v, tt, ok := h.Latest()
	if !ok {
		t.Fatal("expected a latest sample after one push")
	}
	if v[0] != 1 || v[1] != 2 || tt.Seconds != 1 {
		t.Errorf("got value=%v tt=%+v", v, tt)
	}
}

func TestHistoryRingPushWraps(t *testing.T) {
	h := NewHistoryRing(2, 1)
	h.Push([]float64{1}, clock.Timetag{Seconds: 1})
	h.Push([]float64{2}, clock.Timetag{Seconds: 2})
	h.Push([]float64{3}, clock.Timetag{Seconds: 3})

	v, tt, ok := h.Latest()
	if !ok || v[0] != 3 || tt.Seconds != 3 {
		t.Fatalf("expected latest to be the third push, got %v %+v (ok=%v)", v, tt, ok)
	}
	if h.Position() != 0 {
		t.Errorf("expected position to wrap back to 0, got %d", h.Position())
	}
}

func TestHistoryRingSetCurrent(t *testing.T) {
	h := NewHistoryRing(2, 1)
	h.Push([]float64{10}, clock.Timetag{Seconds: 1})
	h.SetCurrent([]float64{99})

	v, _, _ := h.Latest()
	if v[0] != 99 {
		t.Errorf("expected SetCurrent to overwrite the just-pushed value, got %v", v)
	}
}

func TestHistoryRingSetCurrentNoopWhenEmpty(t *testing.T) {
	h := NewHistoryRing(2, 1)
	h.SetCurrent([]float64{1}) // must not panic
	if _, _, ok := h.Latest(); ok {
		t.Fatal("expected ring to remain empty")
	}
}

func TestHistoryRingRollBack(t *testing.T) {
	h := NewHistoryRing(3, 1)
	h.Push([]float64{1}, clock.Timetag{Seconds: 1})
	posBefore := h.Position()
	h.Push([]float64{2}, clock.Timetag{Seconds: 2})
	h.RollBack()

	if h.Position() != posBefore {
		t.Errorf("expected RollBack to restore position %d, got %d", posBefore, h.Position())
	}
	v, _, ok := h.Latest()
	if !ok || v[0] != 1 {
		t.Errorf("expected the rolled-back ring to still show the prior sample, got %v (ok=%v)", v, ok)
	}
}

func TestHistoryRingRollBackFromEmptyWraps(t *testing.T) {
	h := NewHistoryRing(3, 1)
	h.RollBack()
	if h.Position() != 1 {
		t.Errorf("expected rolling back an empty ring to wrap to %d, got %d", 1, h.Position())
	}
}

func TestHistoryRingReset(t *testing.T) {
	h := NewHistoryRing(2, 1)
	h.Push([]float64{5}, clock.Timetag{Seconds: 9})
	h.Reset()

	if h.Position() != -1 {
		t.Errorf("expected Reset to empty the ring, position=%d", h.Position())
	}
	if _, _, ok := h.Latest(); ok {
		t.Fatal("expected no latest sample after Reset")
	}
}

func TestHistoryRingAt(t *testing.T) {
	h := NewHistoryRing(2, 1)
	if _, _, ok := h.At(0); ok {
		t.Fatal("expected At to report not-ok on an empty ring")
	}
	h.Push([]float64{7}, clock.Timetag{Seconds: 1})
	v, _, ok := h.At(0)
	if !ok || v[0] != 7 {
		t.Errorf("expected At(0) to return the pushed value, got %v (ok=%v)", v, ok)
	}
	if _, _, ok := h.At(-1); ok {
		t.Error("expected At to reject a negative index")
	}
	if _, _, ok := h.At(2); ok {
		t.Error("expected At to reject an out-of-range index")
	}
}

func TestHistoryRingFull(t *testing.T) {
	h := NewHistoryRing(2, 1)
	if h.Full() {
		t.Fatal("expected an empty ring to not be full")
	}
	h.Push([]float64{1}, clock.Timetag{Seconds: 1})
	if h.Full() {
		t.Fatal("expected a ring with one of two slots written to not be full")
	}
	h.Push([]float64{2}, clock.Timetag{Seconds: 2})
	if !h.Full() {
		t.Fatal("expected a ring with every slot written to be full")
	}
}
