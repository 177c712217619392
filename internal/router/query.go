package router

import (
	"context"

	"github.com/go-signalmap/router/internal/clock"
	"github.com/go-signalmap/router/internal/wire"
)

// querySuffix is appended to a destination's wire path to form the
// query-request path, mirroring the admin protocol's "ask for current
// value" convention.
const querySuffix = "/get"

// SendQuery emits a query-request message to every OUTGOING connection's
// destination for sig, asking each remote destination to report its
// current value. It returns the number of links queried (links appear
// once even if multiple connections share them).
func (r *Router) SendQuery(ctx context.Context, sig *LocalSignal, tt clock.Timetag) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs := r.findRouterSignal(sig)
	if rs == nil {
		return 0
	}

	queried := make(map[*PeerLink]bool)
	count := 0
	for _, slot := range rs.Slots() {
		if slot.Direction != Outgoing {
			continue
		}
		conn := slot.Connection
		if conn.Status&Active == 0 {
			continue
		}
		dest := conn.Destination
		if dest == nil || dest.Link == nil || queried[dest.Link] {
			continue
		}
		queried[dest.Link] = true

		msg := wire.BuildUpdate(remoteSlotPath(dest)+querySuffix, "", nil, false, 0, 0)
		r.sendOrBundleMessageLocked(ctx, dest.Link, msg, tt)
		count++
	}
	return count
}

// QueryAll calls SendQuery for every local signal with at least one
// OUTGOING connection, driving the periodic query-timer goroutine that
// keeps destination values fresh even absent any new local update.
func (r *Router) QueryAll(ctx context.Context, tt clock.Timetag) int {
	r.mu.RLock()
	signals := make([]*LocalSignal, 0, len(r.routerSignals))
	for _, rs := range r.routerSignals {
		signals = append(signals, rs.Signal)
	}
	r.mu.RUnlock()

	total := 0
	for _, sig := range signals {
		total += r.SendQuery(ctx, sig, tt)
	}
	return total
}
