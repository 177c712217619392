package router

import (
	"time"

	"github.com/go-signalmap/router/internal/clock"
	"github.com/go-signalmap/router/internal/wire"
)

// pendingBundle is (timetag, wire-bundle-accumulator), created lazily per
// link on the first start_queue or send_or_bundle_message with that
// timetag, and drained by send_queue.
type pendingBundle struct {
	tt       clock.Timetag
	messages []wire.Message
}

// syncState is a peer link's clock-sync sub-state, used for link
// liveness: the last sync id this router sent, the last response id seen
// back, and the deadline by which a response is due.
type syncState struct {
	lastSentID     uint32
	lastResponseID uint32
	deadline       time.Time
}

// PeerLink owns a remote device's addresses, pending bundles, and
// reference counts. Its lifetime is governed by the router's link list
// plus a liveness timeout, never by connection refcounts alone (see
// RemoveConnection, which never deletes links).
type PeerLink struct {
	RemoteName string
	RemoteHash uint32

	RemoteHost     string
	RemoteAdminAddr string
	RemoteDataAddr  string

	// SelfLink marks a loopback link whose remote device is the owning
	// device itself; such links are excluded from admin-bus subscription
	// and from the liveness sweep, since they cannot go stale.
	SelfLink bool

	// HasAddresses is false for a stub link created before the admin bus
	// resolves the peer's host/ports.
	HasAddresses bool

	NumConnectionsIn  int
	NumConnectionsOut int

	pending []*pendingBundle
	sync    syncState
}

// newPeerLink creates a stub link for remoteName with no addresses yet.
func newPeerLink(remoteName string, selfLink bool) *PeerLink {
	return &PeerLink{
		RemoteName: remoteName,
		RemoteHash: HashDeviceName(remoteName),
		SelfLink:   selfLink,
	}
}

// UpdateAddresses replaces a link's addresses wholesale under the
// router's write lock. The teacher's C original overwrote the host
// string in place without freeing the previous allocation (a leak); Go's
// GC makes the leak moot, but the semantic fix -- replace atomically,
// never partially mutate a field a concurrent send might observe -- is
// preserved by assigning every field in one call while the caller holds
// the router's mutex.
func (l *PeerLink) UpdateAddresses(host, adminAddr, dataAddr string) {
	l.RemoteHost = host
	l.RemoteAdminAddr = adminAddr
	l.RemoteDataAddr = dataAddr
	l.HasAddresses = true
}

// findPending returns the pending bundle stamped tt, if any.
func (l *PeerLink) findPending(tt clock.Timetag) *pendingBundle {
	for _, p := range l.pending {
		if p.tt.Equal(tt) {
			return p
		}
	}
	return nil
}

// openPending idempotently opens a pending bundle stamped tt.
func (l *PeerLink) openPending(tt clock.Timetag) *pendingBundle {
	if p := l.findPending(tt); p != nil {
		return p
	}
	p := &pendingBundle{tt: tt}
	l.pending = append(l.pending, p)
	return p
}

// closePending removes and returns the pending bundle stamped tt, if any.
func (l *PeerLink) closePending(tt clock.Timetag) *pendingBundle {
	for i, p := range l.pending {
		if p.tt.Equal(tt) {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return p
		}
	}
	return nil
}
