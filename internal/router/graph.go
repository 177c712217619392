package router

import (
	"context"
	"fmt"
)

// maxSources caps the number of source slots one connection may carry, a
// compile-time limit mirroring the source's "too many sources" rejection.
const maxSources = 16

// IncomingSource describes one source of an INCOMING connection: either a
// local signal (Local non-nil) or a reference to a remote signal (Device
// and Signal set, Local nil).
type IncomingSource struct {
	Local  *LocalSignal
	Device string
	Signal string
	Type   byte
	Length int
}

// AddOutgoingConnection creates a connection anchored at a local source
// signal, forwarding to a remote destination. All source slots are local
// and READY; the destination is remote and allocated a fresh signal
// descriptor. Default scope is {local device}.
func (r *Router) AddOutgoingConnection(
	ctx context.Context,
	sources []*LocalSignal,
	remoteDest string,
	destType byte,
	destLength int,
	expression string,
) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if len(sources) > maxSources {
		return nil, fmt.Errorf("outgoing connection to %q: %w", remoteDest, ErrTooManySources)
	}

	destDevice, destSignal, err := ParseSignalPath(remoteDest)
	if err != nil {
		return nil, fmt.Errorf("add outgoing connection: %w", err)
	}

	destLink := r.resolveLink(ctx, destDevice)

	conn := &Connection{
		ID:         connectionIDNegotiating,
		IsLocal:    false,
		Expression: expression,
		Scope:      defaultOutgoingScope(r.device.Name),
	}

	conn.Sources = make([]*Slot, 0, len(sources))
	for _, sig := range sources {
		rs := r.findOrCreateRouterSignal(sig)
		slot := &Slot{
			Kind:         SourceSlot,
			Direction:    Outgoing,
			Type:         sig.Type,
			Length:       sig.Length,
			NumInstances: 1,
			CauseUpdate:  true,
			Connection:   conn,
			Local:        rs,
			SlotID:       rs.nextSlotID(),
		}
		rs.storeSlot(slot)
		conn.Sources = append(conn.Sources, slot)
	}

	conn.Destination = &Slot{
		Kind:       DestinationSlot,
		Direction:  Outgoing,
		Type:       destType,
		Length:     destLength,
		SlotID:     -1,
		Connection: conn,
		Link:       destLink,
		Remote:     &RemoteSignalRef{DeviceName: destDevice, SignalName: destSignal, Type: destType, Length: destLength},
	}
	destLink.NumConnectionsOut++

	conn.OneSource = true // every source is local: vacuously one link
	conn.ProcessLocation = LocationSource

	conn.Status = advanceStatus(conn.Status, eventTypeKnown)
	conn.Status = advanceStatus(conn.Status, eventLengthKnown)
	conn.Status = advanceStatus(conn.Status, eventBothDescribed)

	if expression != "" {
		if err := r.compileConnection(conn); err != nil {
			return nil, err
		}
	}

	r.metrics.ConnectionAdded(destDevice)
	r.logger.Info("outgoing connection added",
		"sources", len(conn.Sources), "dest", remoteDest, "status", conn.Status.String())

	return conn, nil
}

// AddIncomingConnection creates a connection anchored at a local
// destination signal, pulling from one or more sources that may each be
// local or remote. Default scope is the set of distinct source devices
// (local counted once).
func (r *Router) AddIncomingConnection(
	ctx context.Context,
	dest *LocalSignal,
	sources []IncomingSource,
	expression string,
) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if len(sources) > maxSources {
		return nil, fmt.Errorf("incoming connection to %q: %w", dest.Path(), ErrTooManySources)
	}

	destRS := r.findOrCreateRouterSignal(dest)

	conn := &Connection{
		ID:      r.nextConnectionID(),
		IsLocal: allLocal(sources),
	}

	sourceNames := make([]string, 0, len(sources))
	var links []*PeerLink
	conn.Sources = make([]*Slot, 0, len(sources))

	for _, src := range sources {
		slot := &Slot{
			Kind:         SourceSlot,
			Direction:    Incoming,
			Connection:   conn,
			SlotID:       destRS.nextSlotID(),
		}
		if src.Local != nil {
			rs := r.findOrCreateRouterSignal(src.Local)
			slot.Type = src.Local.Type
			slot.Length = src.Local.Length
			slot.NumInstances = 1
			slot.Local = rs
			rs.storeSlot(slot)
			sourceNames = append(sourceNames, "")
		} else {
			srcLink := r.resolveLink(ctx, src.Device)
			slot.Type = src.Type
			slot.Length = src.Length
			slot.Link = srcLink
			slot.Remote = &RemoteSignalRef{DeviceName: src.Device, SignalName: src.Signal, Type: src.Type, Length: src.Length}
			srcLink.NumConnectionsIn++
			links = append(links, srcLink)
			sourceNames = append(sourceNames, src.Device)
		}
		conn.Sources = append(conn.Sources, slot)
	}

	conn.Destination = &Slot{
		Kind:         DestinationSlot,
		Direction:    Incoming,
		Type:         dest.Type,
		Length:       dest.Length,
		NumInstances: 1,
		SlotID:       -1,
		Connection:   conn,
		Local:        destRS,
	}
	destRS.storeSlot(conn.Destination)

	conn.Scope = defaultIncomingScope(r.device.Name, sourceNames)
	conn.OneSource = oneLink(links)
	if conn.OneSource {
		conn.ProcessLocation = LocationSource
	} else {
		conn.ProcessLocation = LocationDestination
	}
	conn.Expression = expression

	conn.Status = advanceStatus(conn.Status, eventTypeKnown)
	conn.Status = advanceStatus(conn.Status, eventLengthKnown)
	conn.Status = advanceStatus(conn.Status, eventBothDescribed)

	if expression != "" {
		if err := r.compileConnection(conn); err != nil {
			return nil, err
		}
	}

	remoteName := ""
	if len(links) > 0 {
		remoteName = links[len(links)-1].RemoteName
	}
	r.metrics.ConnectionAdded(remoteName)
	r.logger.Info("incoming connection added",
		"sources", len(conn.Sources), "dest", dest.Path(), "id", conn.ID, "status", conn.Status.String())

	return conn, nil
}

func allLocal(sources []IncomingSource) bool {
	for _, s := range sources {
		if s.Local == nil {
			return false
		}
	}
	return true
}

// oneLink reports whether every remote source slot shares one link; it is
// vacuously true when there are no remote sources at all.
func oneLink(links []*PeerLink) bool {
	if len(links) == 0 {
		return true
	}
	first := links[0]
	for _, l := range links[1:] {
		if l != first {
			return false
		}
	}
	return true
}

func (r *Router) nextConnectionID() int32 {
	id := r.connIDCounter
	r.connIDCounter++
	return id
}

// compileConnection compiles the connection's expression and allocates
// history, promoting status to Active. It is a no-op if already Active.
func (r *Router) compileConnection(conn *Connection) error {
	if conn.Status&Active != 0 {
		return nil
	}
	ev, err := r.compiler.Compile(conn.Expression, len(conn.Sources), conn.Destination.Length)
	if err != nil {
		return fmt.Errorf("compile connection expression %q: %w", conn.Expression, err)
	}
	conn.Evaluator = ev
	conn.Mode = ModeExpression

	for _, slot := range conn.Sources {
		slot.EnsureInstance(0, r.historyCapacity)
	}
	conn.Destination.EnsureInstance(0, r.historyCapacity)

	conn.Status = advanceStatus(conn.Status, eventExpressionCompiled)
	return nil
}

// RemoveConnection walks both sides of c, tombstoning its local slots in
// their router-signals' arrays, decrementing link counters, and
// releasing its expression/history state. It never removes now-empty
// links (see §4.5 / liveness.go).
func (r *Router) RemoveConnection(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeConnectionLocked(c)
}

func (r *Router) removeConnectionLocked(c *Connection) error {
	if c == nil {
		return fmt.Errorf("remove connection: %w", ErrConnectionNotFound)
	}

	remoteName := ""
	for _, slot := range append(append([]*Slot{}, c.Sources...), c.Destination) {
		if slot == nil {
			continue
		}
		if slot.Local != nil {
			slot.Local.tombstone(slot)
		}
		if slot.Link != nil {
			if slot.Direction == Outgoing {
				slot.Link.NumConnectionsOut--
			} else {
				slot.Link.NumConnectionsIn--
			}
			remoteName = slot.Link.RemoteName
		}
	}

	c.Sources = nil
	c.Destination = nil
	c.Evaluator = nil
	c.ExprVarHistory = nil
	c.Scope = nil

	r.metrics.ConnectionRemoved(remoteName)
	r.logger.Info("connection removed", "remote", remoteName, "id", c.ID)
	return nil
}

// FindOutgoingConnection scans localSrc's router-signal for an OUTGOING
// slot whose connection's destination matches destName (device-name
// prefix plus signal-name suffix equality) and whose non-anchoring
// source slots match srcNames positionally.
func (r *Router) FindOutgoingConnection(localSrc *LocalSignal, srcNames []string, destName string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs := r.findRouterSignal(localSrc)
	if rs == nil {
		return nil
	}
	destDevice, destSig, err := ParseSignalPath(destName)
	if err != nil {
		return nil
	}

	for _, slot := range rs.Slots() {
		if slot.Direction != Outgoing || slot.Kind != SourceSlot {
			continue
		}
		conn := slot.Connection
		if conn.Destination == nil || conn.Destination.Remote == nil {
			continue
		}
		if conn.Destination.Remote.DeviceName != destDevice || conn.Destination.Remote.SignalName != destSig {
			continue
		}
		if connectionSourcesMatch(conn, localSrc, srcNames) {
			return conn
		}
	}
	return nil
}

// FindIncomingConnection scans localDest's router-signal for an INCOMING
// connection whose non-anchoring source slots match srcNames positionally.
func (r *Router) FindIncomingConnection(localDest *LocalSignal, srcNames []string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs := r.findRouterSignal(localDest)
	if rs == nil {
		return nil
	}
	for _, slot := range rs.Slots() {
		if slot.Direction != Incoming || slot.Kind != DestinationSlot {
			continue
		}
		conn := slot.Connection
		if connectionSourcesMatch(conn, localDest, srcNames) {
			return conn
		}
	}
	return nil
}

// FindIncomingConnectionByID finds an INCOMING connection by its router-
// assigned id.
func (r *Router) FindIncomingConnectionByID(id int32) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rs := range r.routerSignals {
		for _, slot := range rs.Slots() {
			if slot.Kind == DestinationSlot && slot.Direction == Incoming && slot.Connection.ID == id {
				return slot.Connection
			}
		}
	}
	return nil
}

func connectionSourcesMatch(conn *Connection, anchor *LocalSignal, srcNames []string) bool {
	if len(srcNames) == 0 {
		return true
	}
	names := make([]string, 0, len(conn.Sources))
	for _, s := range conn.Sources {
		switch {
		case s.Local != nil && s.Local.Signal == anchor:
			continue // anchoring source is excluded from positional match
		case s.Local != nil:
			names = append(names, s.Local.Signal.Path())
		case s.Remote != nil:
			names = append(names, fmt.Sprintf("/%s/%s", s.Remote.DeviceName, s.Remote.SignalName))
		}
	}
	if len(names) != len(srcNames) {
		return false
	}
	for i, n := range names {
		if n != srcNames[i] {
			return false
		}
	}
	return true
}
