package adminbus

import "context"

// Fake is an in-memory AdminBus for tests, mirroring the
// fake-vs-real split the teacher uses for its PacketSender interface.
// Tests call Deliver to simulate an incoming address update; Subscribed
// records every device name Subscribe was called with.
type Fake struct {
	ch         chan AddressUpdate
	Subscribed []string
	closed     bool
}

// NewFake returns a Fake admin bus with a small buffered update channel.
func NewFake() *Fake {
	return &Fake{ch: make(chan AddressUpdate, 16)}
}

// Subscribe implements AdminBus by recording the request; it never fails.
func (f *Fake) Subscribe(_ context.Context, remoteDevice string) error {
	f.Subscribed = append(f.Subscribed, remoteDevice)
	return nil
}

// Updates implements AdminBus.
func (f *Fake) Updates() <-chan AddressUpdate { return f.ch }

// Deliver simulates an incoming address update from the bus.
func (f *Fake) Deliver(u AddressUpdate) {
	f.ch <- u
}

// Close implements AdminBus.
func (f *Fake) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.ch)
	return nil
}
