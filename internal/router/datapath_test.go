package router

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/go-signalmap/router/internal/boundary"
	"github.com/go-signalmap/router/internal/clock"
	"github.com/go-signalmap/router/internal/wire"
)

// fakeSender captures every bundle handed to it instead of transmitting it,
// so tests can assert on exactly what the router would have put on the wire.
type fakeSender struct {
	sent []sentBundle
}

type sentBundle struct {
	addr string
	b    wire.Bundle
}

func (f *fakeSender) Send(_ context.Context, addr string, b wire.Bundle) error {
	f.sent = append(f.sent, sentBundle{addr: addr, b: b})
	return nil
}

func (f *fakeSender) messages() []wire.Message {
	var out []wire.Message
	for _, s := range f.sent {
		out = append(out, s.b.Messages...)
	}
	return out
}

func newTestRouter(t *testing.T, deviceName string, sender *fakeSender) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	device := &Device{Name: deviceName, AdminAddr: ":9000", DataAddr: ":9001"}
	return NewRouter(device, logger, WithSender(sender), WithClock(clock.NewFake()))
}

func tt(sec uint32) clock.Timetag { return clock.Timetag{Seconds: sec} }

// S1 (expression, vector): a local source feeding a remote destination
// through "y=x*10" emits one scaled message per accepted sample.
func TestScenarioS1ExpressionVector(t *testing.T) {
	sender := &fakeSender{}
	r := newTestRouter(t, "testsend", sender)
	ctx := context.Background()

	outSig := NewLocalSignal("testsend", "outsig", 'f', 3)
	r.RegisterSignal(outSig)

	conn, err := r.AddOutgoingConnection(ctx, []*LocalSignal{outSig}, "/testrecv/insig", 'f', 3, "y=x*10")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	r.FindLinkByRemoteName("testrecv").UpdateAddresses("host", ":9100", "host:9101")
	if conn.Status&Active == 0 {
		t.Fatalf("expected connection to be ACTIVE, got status %s", conn.Status)
	}

	for i := 0; i < 10; i++ {
		sample := []float64{float64(i), float64(i + 1), float64(i + 2)}
		if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{sample}, tt(uint32(i))); err != nil {
			t.Fatalf("ProcessSignal %d: %v", i, err)
		}
	}

	msgs := sender.messages()
	if len(msgs) != 10 {
		t.Fatalf("expected 10 outbound messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		want := []float64{float64(i) * 10, float64(i+1) * 10, float64(i+2) * 10}
		if len(m.Args) != len(want) {
			t.Fatalf("message %d: got %d args, want %d", i, len(m.Args), len(want))
		}
		for j := range want {
			if m.Args[j] != want[j] {
				t.Errorf("message %d arg %d: got %v, want %v", i, j, m.Args[j], want[j])
			}
		}
		if m.Path != "/testrecv/insig" {
			t.Errorf("message %d: got path %q, want /testrecv/insig", i, m.Path)
		}
	}
}

// S2 (release): with send_as_instance derived true (num_instances > 1), a
// release clears the destination's history for that instance and emits one
// release message.
func TestScenarioS2Release(t *testing.T) {
	sender := &fakeSender{}
	r := newTestRouter(t, "testsend", sender)
	ctx := context.Background()

	outSig := NewLocalSignal("testsend", "outsig", 'f', 1)
	r.RegisterSignal(outSig)

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{outSig}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	r.FindLinkByRemoteName("testrecv").UpdateAddresses("host", ":9100", "host:9101")
	if err := r.NumInstancesChanged(outSig, 2); err != nil {
		t.Fatalf("NumInstancesChanged: %v", err)
	}

	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{1}}, tt(0)); err != nil {
		t.Fatalf("ProcessSignal update: %v", err)
	}
	sender.sent = nil

	if err := r.ProcessSignal(ctx, outSig, 0, nil, tt(1)); err != nil {
		t.Fatalf("ProcessSignal release: %v", err)
	}

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 release message, got %d", len(msgs))
	}
	if !msgs[0].IsRelease() {
		t.Errorf("expected a release message, got %+v", msgs[0])
	}

	rs := r.findOrCreateRouterSignal(outSig)
	destSlot := rs.Slots()[0].Connection.Destination
	id, _ := outSig.ResolveInstance(0)
	if destSlot.History[id].Position() != -1 {
		t.Errorf("expected destination history reset to position -1, got %d", destSlot.History[id].Position())
	}
}

// S3 (scope drop): a connection scoped to a device other than the local one
// emits nothing for a locally-originated sample.
func TestScenarioS3ScopeDrop(t *testing.T) {
	sender := &fakeSender{}
	r := newTestRouter(t, "testsend", sender)
	ctx := context.Background()

	outSig := NewLocalSignal("testsend", "outsig", 'f', 1)
	r.RegisterSignal(outSig)

	conn, err := r.AddOutgoingConnection(ctx, []*LocalSignal{outSig}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	if err := r.NumInstancesChanged(outSig, 2); err != nil {
		t.Fatalf("NumInstancesChanged: %v", err)
	}
	r.FindLinkByRemoteName("testrecv").UpdateAddresses("host", ":9100", "host:9101")
	conn.Scope = NewScope()
	conn.Scope.Add("other-device")

	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{1}}, tt(0)); err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}

	if got := len(sender.messages()); got != 0 {
		t.Fatalf("expected 0 outbound messages, got %d", got)
	}
}

// S4 (bundling): two process_signal calls inside a start_queue/send_queue
// window produce exactly one bundle carrying both messages.
func TestScenarioS4Bundling(t *testing.T) {
	sender := &fakeSender{}
	r := newTestRouter(t, "testsend", sender)
	ctx := context.Background()

	outSig := NewLocalSignal("testsend", "outsig", 'f', 1)
	r.RegisterSignal(outSig)

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{outSig}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}

	link := r.FindLinkByRemoteName("testrecv")
	if link == nil {
		t.Fatal("expected link to testrecv to exist")
	}
	link.UpdateAddresses("host", ":9100", "host:9101")

	windowTT := tt(5)
	r.StartQueue(windowTT)

	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{1}}, windowTT); err != nil {
		t.Fatalf("ProcessSignal 1: %v", err)
	}
	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{2}}, windowTT); err != nil {
		t.Fatalf("ProcessSignal 2: %v", err)
	}

	if got := len(sender.sent); got != 0 {
		t.Fatalf("expected no transmission before send_queue, got %d", got)
	}

	r.SendQueue(ctx, windowTT)

	if got := len(sender.sent); got != 1 {
		t.Fatalf("expected exactly 1 bundle, got %d", got)
	}
	b := sender.sent[0].b
	if len(b.Messages) != 2 {
		t.Fatalf("expected 2 messages in the bundle, got %d", len(b.Messages))
	}
	if !b.TT.Equal(windowTT) {
		t.Errorf("expected bundle stamped %v, got %v", windowTT, b.TT)
	}
}

// S5 (instance grow): growing num_instances to 4 lets updates on every new
// instance propagate, each with its own history ring.
func TestScenarioS5InstanceGrow(t *testing.T) {
	sender := &fakeSender{}
	r := newTestRouter(t, "testsend", sender)
	ctx := context.Background()

	outSig := NewLocalSignal("testsend", "outsig", 'f', 1)
	r.RegisterSignal(outSig)

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{outSig}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	r.FindLinkByRemoteName("testrecv").UpdateAddresses("host", ":9100", "host:9101")
	if err := r.NumInstancesChanged(outSig, 4); err != nil {
		t.Fatalf("NumInstancesChanged: %v", err)
	}

	for instance := 0; instance < 4; instance++ {
		v := float64(instance) + 100
		if err := r.ProcessSignal(ctx, outSig, instance, [][]float64{{v}}, tt(uint32(instance))); err != nil {
			t.Fatalf("ProcessSignal instance %d: %v", instance, err)
		}
	}

	msgs := sender.messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 outbound messages, got %d", len(msgs))
	}

	rs := r.findOrCreateRouterSignal(outSig)
	destSlot := rs.Slots()[0].Connection.Destination
	seen := make(map[int]bool)
	for instance := 0; instance < 4; instance++ {
		id, _ := outSig.ResolveInstance(instance)
		seen[id] = true
		if id >= len(destSlot.History) || destSlot.History[id] == nil {
			t.Fatalf("expected a history ring for instance id %d", id)
		}
		if !destSlot.History[id].Full() && destSlot.History[id].Position() < 0 {
			t.Errorf("expected instance id %d's ring to have a sample, position=%d", id, destSlot.History[id].Position())
		}
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct instance ids, got %d", len(seen))
	}
}

// S6 (boundary drop): a max-bound Drop policy at 5 rejects one of three
// samples; history position for the dropped sample stays where it was.
func TestScenarioS6BoundaryDrop(t *testing.T) {
	sender := &fakeSender{}
	r := newTestRouter(t, "testsend", sender)
	ctx := context.Background()

	outSig := NewLocalSignal("testsend", "outsig", 'f', 1)
	r.RegisterSignal(outSig)

	conn, err := r.AddOutgoingConnection(ctx, []*LocalSignal{outSig}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	r.FindLinkByRemoteName("testrecv").UpdateAddresses("host", ":9100", "host:9101")
	conn.Sources[0].MaxBound.HasMax = true
	conn.Sources[0].MaxBound.Max = 5
	conn.Sources[0].MaxBound.MaxAction = boundary.Drop

	srcSlot := conn.Sources[0]
	id, _ := outSig.ResolveInstance(0)
	ring := srcSlot.EnsureInstance(id, r.historyCapacity)

	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{3}}, tt(0)); err != nil {
		t.Fatalf("ProcessSignal [3]: %v", err)
	}
	posAfterAccepted := ring.Position()

	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{6}}, tt(1)); err != nil {
		t.Fatalf("ProcessSignal [6]: %v", err)
	}
	posAfterDropped := ring.Position()

	if err := r.ProcessSignal(ctx, outSig, 0, [][]float64{{4}}, tt(2)); err != nil {
		t.Fatalf("ProcessSignal [4]: %v", err)
	}

	if posAfterDropped != posAfterAccepted {
		t.Errorf("expected ring position to roll back after a drop: before=%d after=%d", posAfterAccepted, posAfterDropped)
	}

	msgs := sender.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 outbound messages ([3] and [4]), got %d", len(msgs))
	}
	if msgs[0].Args[0] != 3 || msgs[1].Args[0] != 4 {
		t.Errorf("expected messages [3], [4], got %v, %v", msgs[0].Args, msgs[1].Args)
	}
}
