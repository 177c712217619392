package router

import "github.com/go-signalmap/router/internal/clock"

// HistoryRing is a fixed-capacity circular buffer of (value, timetag)
// samples for one slot instance. position is -1 when empty; the latest
// sample sits at position, the prior one at position-1 (mod capacity).
type HistoryRing struct {
	capacity int
	length   int
	position int
	values   [][]float64
	stamps   []clock.Timetag
}

// NewHistoryRing allocates a ring holding up to capacity samples, each a
// vector of length elements, all zeroed, with position -1 (empty).
func NewHistoryRing(capacity, length int) *HistoryRing {
	values := make([][]float64, capacity)
	for i := range values {
		values[i] = make([]float64, length)
	}
	return &HistoryRing{
		capacity: capacity,
		length:   length,
		position: -1,
		values:   values,
		stamps:   make([]clock.Timetag, capacity),
	}
}

// Capacity returns H, the fixed number of samples the ring retains.
func (h *HistoryRing) Capacity() int { return h.capacity }

// Position returns the current write position, or -1 if empty.
func (h *HistoryRing) Position() int { return h.position }

// Push advances the ring by one slot, copies value into it, and stamps it
// with tt. Returns the position written. Callers that subsequently decide
// the sample must be dropped should call RollBack to undo this advance,
// per the spec's "position rollback on drop" invariant.
func (h *HistoryRing) Push(value []float64, tt clock.Timetag) int {
	h.position = (h.position + 1) % h.capacity
	copy(h.values[h.position], value)
	h.stamps[h.position] = tt
	return h.position
}

// SetCurrent overwrites the value at the current write position in place,
// used after a boundary policy clamps or wraps a just-pushed sample so
// history reflects the post-boundary value rather than the raw input.
func (h *HistoryRing) SetCurrent(value []float64) {
	if h.position < 0 {
		return
	}
	copy(h.values[h.position], value)
}

// RollBack undoes the most recent Push by stepping position back one slot
// (mod capacity), so the dropped sample is no longer the latest. When that
// Push was the first into an empty ring, position becomes capacity-1
// rather than -1.
func (h *HistoryRing) RollBack() {
	h.position = (h.position - 1 + h.capacity) % h.capacity
}

// Reset empties the ring: position -1, all values and timetags zeroed.
// Used when a release is processed for a given instance.
func (h *HistoryRing) Reset() {
	h.position = -1
	for i := range h.values {
		for j := range h.values[i] {
			h.values[i][j] = 0
		}
		h.stamps[i] = clock.Timetag{}
	}
}

// Latest returns the most recently written value and its timetag. ok is
// false if the ring is empty.
func (h *HistoryRing) Latest() (value []float64, tt clock.Timetag, ok bool) {
	if h.position < 0 {
		return nil, clock.Timetag{}, false
	}
	return h.values[h.position], h.stamps[h.position], true
}

// At returns the sample at a given ring index (not offset from position).
// ok is false for an out-of-range index or an empty ring.
func (h *HistoryRing) At(index int) (value []float64, tt clock.Timetag, ok bool) {
	if index < 0 || index >= h.capacity {
		return nil, clock.Timetag{}, false
	}
	if h.position < 0 {
		return nil, clock.Timetag{}, false
	}
	return h.values[index], h.stamps[index], true
}

// Full reports whether every slot of the ring holds a sample: false while
// the ring is empty, otherwise true once no slot still carries the zero
// timetag. The ring does not count pushes, so a sample written with the
// zero timetag is indistinguishable from an unwritten slot.
func (h *HistoryRing) Full() bool {
	if h.position < 0 {
		return false
	}
	for _, tt := range h.stamps {
		if tt == (clock.Timetag{}) {
			return false
		}
	}
	return true
}
