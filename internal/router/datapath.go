package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-signalmap/router/internal/boundary"
	"github.com/go-signalmap/router/internal/clock"
	"github.com/go-signalmap/router/internal/wire"
)

// ProcessSignal is the router's central data-path entry point, called
// whenever a local signal's instance changes. values == nil signals a
// release (the instance is going away); otherwise values holds count
// samples, each a vector of sig.Length elements, all stamped tt.
//
// Unknown signals (never seen by AddOutgoingConnection/AddIncomingConnection)
// are a silent no-op: the router only moves data for signals it has a
// RouterSignal entry for.
func (r *Router) ProcessSignal(ctx context.Context, sig *LocalSignal, instance int, values [][]float64, tt clock.Timetag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs := r.findRouterSignal(sig)
	if rs == nil {
		return nil
	}
	id, origin := sig.ResolveInstance(instance)

	if values == nil {
		r.processRelease(ctx, rs, id, instance, origin, tt)
		return nil
	}
	r.processUpdate(ctx, rs, id, instance, origin, values, tt)
	return nil
}

// processRelease implements the release half of process_signal: every
// OUTGOING slot resets its destination's history and forwards a release
// downstream (subject to scope when instance-bearing); every INCOMING
// slot, if in scope, forwards an upstream release to each of its
// instance-bearing source slots and resets that source's history.
func (r *Router) processRelease(ctx context.Context, rs *RouterSignal, id, instance int, origin uint32, tt clock.Timetag) {
	for _, slot := range rs.Slots() {
		conn := slot.Connection
		if conn.Status&Active == 0 {
			continue
		}

		switch slot.Direction {
		case Outgoing:
			dest := conn.Destination
			if id < len(dest.History) && dest.History[id] != nil {
				dest.History[id].Reset()
			}
			if slot.SendAsInstance && !conn.Scope.Admits(origin) {
				continue
			}
			msg := wire.BuildRelease(remoteSlotPath(dest), origin, int32(instance))
			r.sendOrBundleMessageLocked(ctx, dest.Link, msg, tt)

		case Incoming:
			if !conn.Scope.Admits(origin) {
				continue
			}
			for _, src := range conn.Sources {
				if !src.SendAsInstance {
					continue
				}
				if id < len(src.History) && src.History[id] != nil {
					src.History[id].Reset()
				}
				if src.Link == nil {
					continue
				}
				msg := wire.BuildRelease(remoteSlotPath(src), origin, int32(instance))
				r.sendOrBundleMessageLocked(ctx, src.Link, msg, tt)
			}
		}
	}
}

// processUpdate implements the update half of process_signal: for every
// non-null slot touching rs, each sample is pushed into the slot's
// history, passed through the source boundary (rolling back on drop),
// and -- for OUTGOING slots whose connection does not skip this cause --
// fed through the connection's evaluator into the destination history,
// passed through the destination boundary when evaluation runs at the
// source. Accepted destination samples are collected and emitted as one
// vectorized message when count > 1, matching the spec's "vectorize
// when possible" rule.
func (r *Router) processUpdate(ctx context.Context, rs *RouterSignal, id, instance int, origin uint32, values [][]float64, tt clock.Timetag) {
	for _, slot := range rs.Slots() {
		conn := slot.Connection
		if conn.Status&Active == 0 || conn.Muted {
			continue
		}

		ring := slot.EnsureInstance(id, r.historyCapacity)
		var accepted [][]float64

		for _, v := range values {
			ring.Push(v, tt)
			adj, dropped := applyBoundaryPair(slot.MinBound, slot.MaxBound, v)
			if dropped {
				ring.RollBack()
				r.metrics.BoundaryDropped(slotRemoteLabel(slot))
				continue
			}
			ring.SetCurrent(adj)

			if slot.Direction == Incoming {
				// A local signal used as a source of an INCOMING
				// connection only feeds history here; evaluation and
				// emission to the (local) destination happen on the
				// receive path for that connection's remote sources,
				// not on this device's own process_signal call.
				continue
			}
			if conn.ProcessLocation == LocationSource && !slot.CauseUpdate {
				continue
			}

			out, ok := conn.evaluate(id)
			if !ok {
				continue
			}

			destRing := conn.Destination.EnsureInstance(id, r.historyCapacity)
			destRing.Push(out, tt)
			if conn.ProcessLocation == LocationSource {
				dAdj, dDropped := applyBoundaryPair(conn.Destination.MinBound, conn.Destination.MaxBound, out)
				if dDropped {
					destRing.RollBack()
					r.metrics.BoundaryDropped(slotRemoteLabel(slot))
					continue
				}
				destRing.SetCurrent(dAdj)
				out = dAdj
			}
			accepted = append(accepted, out)
		}

		if slot.Direction != Outgoing || len(accepted) == 0 {
			continue
		}
		if slot.SendAsInstance && !conn.Scope.Admits(origin) {
			continue
		}
		r.emitOutgoing(ctx, conn, slot, accepted, instance, origin, tt)
	}
}

// emitOutgoing builds and transmits the message(s) for one OUTGOING
// slot's accepted destination samples: a single vectorized message when
// more than one sample was accepted this call, otherwise one message
// carrying the lone sample.
func (r *Router) emitOutgoing(ctx context.Context, conn *Connection, slot *Slot, accepted [][]float64, instance int, origin uint32, tt clock.Timetag) {
	dest := conn.Destination
	path := remoteSlotPath(dest)

	if len(accepted) == 1 {
		v := accepted[0]
		msg := wire.BuildUpdate(path, typeString(dest.Type, len(v)), v, slot.SendAsInstance, origin, int32(instance))
		r.sendOrBundleMessageLocked(ctx, dest.Link, msg, tt)
		return
	}

	flat := make([]float64, 0, len(accepted)*dest.Length)
	for _, v := range accepted {
		flat = append(flat, v...)
	}
	msg := wire.BuildUpdate(path, typeString(dest.Type, len(flat)), flat, slot.SendAsInstance, origin, int32(instance))
	r.sendOrBundleMessageLocked(ctx, dest.Link, msg, tt)
}

// NumInstancesChanged grows every active connection's history (source
// slot, destination slot, and expression variable rows) to cover at
// least size instances. History capacity H per instance never changes;
// only the instance dimension grows, and it never shrinks. Connections
// not yet ACTIVE defer allocation until they are (compileConnection
// allocates instance 0 at that point).
func (r *Router) NumInstancesChanged(sig *LocalSignal, size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs := r.findRouterSignal(sig)
	if rs == nil {
		return fmt.Errorf("num instances changed for %q: %w", sig.Path(), ErrSignalNotFound)
	}

	for _, slot := range rs.Slots() {
		conn := slot.Connection
		if conn.Status&Active == 0 {
			continue
		}
		for instID := 0; instID < size; instID++ {
			slot.EnsureInstance(instID, r.historyCapacity)
			conn.Destination.EnsureInstance(instID, r.historyCapacity)
		}
		if slot.NumInstances < size {
			slot.NumInstances = size
		}
		slot.SendAsInstance = slot.NumInstances > 1
		if conn.Evaluator != nil {
			for n := conn.Evaluator.NumVars(); n > 0 && len(conn.ExprVarHistory) < size; {
				conn.ExprVarHistory = append(conn.ExprVarHistory, make([]float64, n))
			}
		}
	}
	return nil
}

// applyBoundaryPair applies a slot's min then max boundary policies to
// one sample, matching the spec's per-sample (not per-element) drop
// semantics: a drop from either policy drops the whole sample.
func applyBoundaryPair(min, max boundary.Policy, v []float64) ([]float64, bool) {
	v1, dropped := min.ApplyVector(v)
	if dropped {
		return nil, true
	}
	v2, dropped := max.ApplyVector(v1)
	if dropped {
		return nil, true
	}
	return v2, false
}

// remoteSlotPath builds the "/device/signal" wire path for a slot that
// references a remote peer.
func remoteSlotPath(slot *Slot) string {
	if slot.Remote == nil {
		return ""
	}
	return fmt.Sprintf("/%s/%s", slot.Remote.DeviceName, slot.Remote.SignalName)
}

// slotRemoteLabel names the remote device a slot's connection touches,
// for metrics labeling; "local" when the slot has no remote peer.
func slotRemoteLabel(slot *Slot) string {
	if slot.Remote != nil {
		return slot.Remote.DeviceName
	}
	if slot.Connection != nil && slot.Connection.Destination != nil && slot.Connection.Destination.Remote != nil {
		return slot.Connection.Destination.Remote.DeviceName
	}
	return "local"
}

// typeString repeats typeByte n times, the OSC-style typestring for a
// vector of n elements all sharing one element type.
func typeString(typeByte byte, n int) string {
	return strings.Repeat(string(rune(typeByte)), n)
}
