package router

import "fmt"

// LocalSignal is the device-owned signal handle the router processes
// updates for. It owns the per-instance id-map translating a caller's
// instance index into the internal id used to key history rings, and
// the origin-device hash recorded against each instance.
type LocalSignal struct {
	DeviceName string
	Name       string
	Type       byte
	Length     int

	// NumInstances is the signal's own declared instance count,
	// independent of any one connection's per-slot NumInstances (which
	// tracks how many history rings that slot has allocated).
	NumInstances int

	instances map[int]instanceEntry
	nextID    int
}

type instanceEntry struct {
	internalID int
	origin     uint32
}

// NewLocalSignal constructs a signal handle owned by deviceName.
func NewLocalSignal(deviceName, name string, sigType byte, length int) *LocalSignal {
	return &LocalSignal{
		DeviceName: deviceName,
		Name:       name,
		Type:       sigType,
		Length:     length,
		instances:  make(map[int]instanceEntry),
	}
}

// Path returns the "/device/signal" wire path for this signal.
func (s *LocalSignal) Path() string {
	return fmt.Sprintf("/%s/%s", s.DeviceName, s.Name)
}

// ResolveInstance translates a caller-facing instance index into its
// internal id and recorded origin hash, creating the mapping (with the
// local device as origin) on first use.
func (s *LocalSignal) ResolveInstance(instance int) (id int, origin uint32) {
	if e, ok := s.instances[instance]; ok {
		return e.internalID, e.origin
	}
	id = s.nextID
	s.nextID++
	origin = HashDeviceName(s.DeviceName)
	s.instances[instance] = instanceEntry{internalID: id, origin: origin}
	return id, origin
}

// SetInstanceOrigin records a non-default origin for an instance (used
// when a signal receives updates forwarded from elsewhere and must
// preserve the original lineage for scope checks downstream).
func (s *LocalSignal) SetInstanceOrigin(instance int, origin uint32) {
	id, _ := s.ResolveInstance(instance)
	e := s.instances[instance]
	e.internalID = id
	e.origin = origin
	s.instances[instance] = e
}
