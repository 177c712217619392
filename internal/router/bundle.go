package router

import (
	"context"
	"log/slog"

	"github.com/go-signalmap/router/internal/clock"
	"github.com/go-signalmap/router/internal/wire"
)

// StartQueue idempotently opens a pending bundle stamped tt on every link.
// Subsequent sendOrBundle calls during the window append to the per-link
// pending bundle instead of transmitting immediately.
func (r *Router) StartQueue(tt clock.Timetag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		l.openPending(tt)
	}
}

// SendQueue transmits each link's pending bundle stamped tt (skipping
// empty ones), frees it, and unlinks it from the link's pending list.
func (r *Router) SendQueue(ctx context.Context, tt clock.Timetag) {
	r.mu.Lock()
	type send struct {
		addr string
		b    wire.Bundle
	}
	var toSend []send
	for _, l := range r.links {
		p := l.closePending(tt)
		if p == nil || len(p.messages) == 0 {
			continue
		}
		if !l.HasAddresses {
			r.metrics.MessageDropped(l.RemoteName, "link without addresses")
			continue
		}
		toSend = append(toSend, send{addr: l.RemoteDataAddr, b: wire.Bundle{TT: tt, Messages: p.messages}})
	}
	r.mu.Unlock()

	for _, s := range toSend {
		r.transmit(ctx, s.addr, s.b)
	}
}

// sendOrBundleMessageLocked implements send_or_bundle_message: if a pending
// bundle with the same tt exists on link, append msg to it; otherwise
// construct and immediately transmit a one-message bundle. Must be
// called with r.mu held.
func (r *Router) sendOrBundleMessageLocked(ctx context.Context, link *PeerLink, msg wire.Message, tt clock.Timetag) {
	if link == nil {
		return
	}
	if p := link.findPending(tt); p != nil {
		p.messages = append(p.messages, msg)
		return
	}
	if !link.HasAddresses {
		r.metrics.MessageDropped(link.RemoteName, "link without addresses")
		return
	}
	addr := link.RemoteDataAddr
	b := wire.Bundle{TT: tt, Messages: []wire.Message{msg}}
	r.mu.Unlock()
	r.transmit(ctx, addr, b)
	r.mu.Lock()
}

// transmit encodes and sends one bundle. Transmission is always
// best-effort and non-blocking with respect to the router's own critical
// section: callers release r.mu before calling this.
func (r *Router) transmit(ctx context.Context, addr string, b wire.Bundle) {
	if r.sender == nil {
		return
	}
	if err := r.sender.Send(ctx, addr, b); err != nil {
		r.logger.Warn("bundle transmit failed",
			slog.String("addr", addr), slog.String("error", err.Error()))
		return
	}
	for range b.Messages {
		r.metrics.MessageSent(addr)
	}
}
