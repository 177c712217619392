package wire

import "context"

// Sender transmits one encoded bundle to a peer's data address. Treated as
// non-blocking best-effort by the router: sends never block the router's
// critical section and are never retried by the router itself.
type Sender interface {
	Send(ctx context.Context, dataAddr string, b Bundle) error
}
