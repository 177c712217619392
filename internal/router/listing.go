package router

import "fmt"

// ConnectionSummary is a read-only snapshot of one connection, used by
// inspection surfaces (the control API, signalrouterctl) that must not hold a
// reference into the router's live graph.
type ConnectionSummary struct {
	ID         int32
	Direction  string
	Sources    []string
	Dest       string
	Expression string
	Status     string
	Scope      []string
}

// SummarizeConnection returns a read-only snapshot of one connection.
func SummarizeConnection(c *Connection) ConnectionSummary {
	return summarizeConnection(c)
}

func summarizeConnection(c *Connection) ConnectionSummary {
	s := ConnectionSummary{
		ID:         c.ID,
		Expression: c.Expression,
		Status:     c.Status.String(),
	}
	if len(c.Sources) > 0 {
		s.Direction = c.Sources[0].Direction.String()
	}
	for _, src := range c.Sources {
		s.Sources = append(s.Sources, slotLabel(src))
	}
	if c.Destination != nil {
		s.Dest = slotLabel(c.Destination)
	}
	if c.Scope != nil {
		s.Scope = c.Scope.Names()
	}
	return s
}

func slotLabel(s *Slot) string {
	if s.Local != nil {
		return s.Local.Signal.Path()
	}
	if s.Remote != nil {
		return fmt.Sprintf("/%s/%s", s.Remote.DeviceName, s.Remote.SignalName)
	}
	return ""
}

// Connections returns a snapshot of every connection the router knows
// about, deduplicated by connection while walking every router-signal's
// slots (an OUTGOING connection's destination is remote and appears in no
// router-signal, so its local source slots are what find it).
func (r *Router) Connections() []ConnectionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ConnectionSummary
	seen := make(map[*Connection]bool)
	for _, rs := range r.routerSignals {
		for _, slot := range rs.Slots() {
			if seen[slot.Connection] {
				continue
			}
			seen[slot.Connection] = true
			out = append(out, summarizeConnection(slot.Connection))
		}
	}
	return out
}

// RouterSignalSummary is a read-only snapshot of every slot touching one
// local signal.
type RouterSignalSummary struct {
	Path  string
	Slots []ConnectionSummary
}

// LinkSummary is a read-only snapshot of one peer link.
type LinkSummary struct {
	RemoteName      string
	RemoteHash      uint32
	RemoteHost      string
	RemoteAdminAddr string
	RemoteDataAddr  string
	SelfLink        bool
	HasAddresses    bool
	ConnectionsIn   int
	ConnectionsOut  int
}

func summarizeLink(l *PeerLink) LinkSummary {
	return LinkSummary{
		RemoteName:      l.RemoteName,
		RemoteHash:      l.RemoteHash,
		RemoteHost:      l.RemoteHost,
		RemoteAdminAddr: l.RemoteAdminAddr,
		RemoteDataAddr:  l.RemoteDataAddr,
		SelfLink:        l.SelfLink,
		HasAddresses:    l.HasAddresses,
		ConnectionsIn:   l.NumConnectionsIn,
		ConnectionsOut:  l.NumConnectionsOut,
	}
}

// Links returns a snapshot of every peer link the router knows about.
func (r *Router) Links() []LinkSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LinkSummary, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, summarizeLink(l))
	}
	return out
}

// RouterSignalByPath returns a snapshot of the router-signal whose local
// signal matches "/device/name", or nil if none is known.
func (r *Router) RouterSignalByPath(path string) *RouterSignalSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rs := range r.routerSignals {
		if rs.Signal.Path() != path {
			continue
		}
		out := &RouterSignalSummary{Path: path}
		seen := make(map[*Connection]bool)
		for _, slot := range rs.Slots() {
			if seen[slot.Connection] {
				continue
			}
			seen[slot.Connection] = true
			out.Slots = append(out.Slots, summarizeConnection(slot.Connection))
		}
		return out
	}
	return nil
}
