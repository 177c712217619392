package router

import "github.com/go-signalmap/router/internal/boundary"

// RemoteSignalRef describes a signal that lives on a remote peer, owned
// by a Slot when that slot is not local.
type RemoteSignalRef struct {
	DeviceName string
	SignalName string
	Type       byte
	Length     int
}

// Slot is one end of a connection attached to a signal, local or remote.
// Exactly one of Local or Link is non-nil: local XOR remote.
type Slot struct {
	Kind      SlotKind
	Direction Direction

	Type         byte
	Length       int
	NumInstances int

	CauseUpdate    bool
	SendAsInstance bool

	MinBound boundary.Policy
	MaxBound boundary.Policy

	// Remote is non-nil only when this slot references a non-local peer.
	Remote *RemoteSignalRef

	// SlotID disambiguates a source slot on the destination side; -1 on
	// destination slots, where it is meaningless.
	SlotID int

	Connection *Connection

	// Local is non-nil when this slot is attached to a local signal.
	Local *RouterSignal
	// Link is non-nil when this slot references a remote peer.
	Link *PeerLink

	// History holds one ring per instance, indexed by internal instance
	// id (not the caller-facing instance index).
	History []*HistoryRing

	// indexInRouterSignal records this slot's position in its owning
	// RouterSignal.slots array, so RemoveConnection can tombstone it in
	// O(1) instead of a linear scan.
	indexInRouterSignal int
}

// IsLocal reports whether this slot is attached to a local signal.
func (s *Slot) IsLocal() bool { return s.Local != nil }

// IsRemote reports whether this slot references a remote peer.
func (s *Slot) IsRemote() bool { return s.Link != nil }

// EnsureInstance grows the History slice so instance id exists, allocating
// a zeroed ring of the slot's current capacity. Capacity H is fixed at
// slot creation (historyCapacity); only the instance count grows.
func (s *Slot) EnsureInstance(id int, capacity int) *HistoryRing {
	for len(s.History) <= id {
		s.History = append(s.History, NewHistoryRing(capacity, s.Length))
	}
	if s.History[id] == nil {
		s.History[id] = NewHistoryRing(capacity, s.Length)
	}
	return s.History[id]
}
