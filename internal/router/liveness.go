package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-signalmap/router/internal/wire"
)

// RunLivenessSweep drives the clock-sync sub-state of every non-self
// link: links with no ping outstanding get one; links whose deadline has
// passed without a matching response are considered stale and removed
// (cascading to every connection touching them, per RemoveLink);
// links whose deadline has passed but did receive a timely response get
// their next ping. It returns the remote names of links it removed.
//
// Self-links are excluded because a device can never fail to hear from
// itself.
func (r *Router) RunLivenessSweep(ctx context.Context, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	// Iterate over a snapshot since removeLinkLocked mutates r.links.
	for _, l := range append([]*PeerLink{}, r.links...) {
		if l.SelfLink || !l.HasAddresses {
			continue
		}

		switch {
		case l.sync.deadline.IsZero():
			r.sendSyncPing(ctx, l, now)

		case now.After(l.sync.deadline):
			if l.sync.lastResponseID != l.sync.lastSentID {
				r.logger.Warn("link missed clock-sync deadline, removing",
					slog.String("remote", l.RemoteName))
				if err := r.removeLinkLocked(l); err == nil {
					removed = append(removed, l.RemoteName)
				}
				continue
			}
			r.sendSyncPing(ctx, l, now)
		}
	}
	return removed
}

// sendSyncPing increments a link's outstanding sync id, arms its
// deadline, and transmits a sync-request message immediately (never
// queued -- clock sync is a liveness signal independent of any data
// bundle window). Must be called with r.mu held; the lock is released
// around the transmit itself.
func (r *Router) sendSyncPing(ctx context.Context, l *PeerLink, now time.Time) {
	l.sync.lastSentID++
	l.sync.deadline = now.Add(r.syncTimeout)

	if !l.HasAddresses {
		return
	}
	msg := wire.BuildUpdate("/"+l.RemoteName+"/sync", "i", []float64{float64(l.sync.lastSentID)}, false, 0, 0)
	addr := l.RemoteDataAddr
	b := wire.Bundle{TT: r.clock.Now(), Messages: []wire.Message{msg}}
	r.mu.Unlock()
	r.transmit(ctx, addr, b)
	r.mu.Lock()
}

// ReceiveSyncResponse records a clock-sync response id from remoteDevice,
// clearing the missed-deadline condition for its link if the id matches
// the most recently sent ping.
func (r *Router) ReceiveSyncResponse(remoteDevice string, id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.findLinkByRemoteName(remoteDevice)
	if l == nil {
		return
	}
	l.sync.lastResponseID = id
}
