package router

import (
	"context"
	"testing"
	"time"
)

func newLivenessTestRouter(t *testing.T, sender *fakeSender) *Router {
	t.Helper()
	return newTestRouter(t, "testsend", sender)
}

func TestLivenessSweepSendsFirstPing(t *testing.T) {
	sender := &fakeSender{}
	r := newLivenessTestRouter(t, sender)
	ctx := context.Background()

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{NewLocalSignal("testsend", "outsig", 'f', 1)}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	link := r.FindLinkByRemoteName("testrecv")
	link.UpdateAddresses("host", ":9100", "host:9101")

	now := time.Unix(0, 0)
	removed := r.RunLivenessSweep(ctx, now)
	if len(removed) != 0 {
		t.Fatalf("expected no removals on the first sweep, got %v", removed)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one sync ping transmitted, got %d", len(sender.sent))
	}
	if link.sync.lastSentID != 1 {
		t.Errorf("expected lastSentID to be 1, got %d", link.sync.lastSentID)
	}
	if link.sync.deadline.IsZero() {
		t.Error("expected a deadline to be armed after the first ping")
	}
}

func TestLivenessSweepRemovesStaleLink(t *testing.T) {
	sender := &fakeSender{}
	r := newLivenessTestRouter(t, sender)
	ctx := context.Background()

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{NewLocalSignal("testsend", "outsig", 'f', 1)}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	link := r.FindLinkByRemoteName("testrecv")
	link.UpdateAddresses("host", ":9100", "host:9101")

	now := time.Unix(0, 0)
	r.RunLivenessSweep(ctx, now) // arms the first ping/deadline

	past := now.Add(2 * defaultSyncTimeout)
	removed := r.RunLivenessSweep(ctx, past)
	if len(removed) != 1 || removed[0] != "testrecv" {
		t.Fatalf("expected testrecv to be removed as stale, got %v", removed)
	}
	if r.FindLinkByRemoteName("testrecv") != nil {
		t.Error("expected the stale link to be gone from the router")
	}
}

func TestLivenessSweepRepingsOnTimelyResponse(t *testing.T) {
	sender := &fakeSender{}
	r := newLivenessTestRouter(t, sender)
	ctx := context.Background()

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{NewLocalSignal("testsend", "outsig", 'f', 1)}, "/testrecv/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	link := r.FindLinkByRemoteName("testrecv")
	link.UpdateAddresses("host", ":9100", "host:9101")

	now := time.Unix(0, 0)
	r.RunLivenessSweep(ctx, now)
	r.ReceiveSyncResponse("testrecv", link.sync.lastSentID)

	past := now.Add(2 * defaultSyncTimeout)
	removed := r.RunLivenessSweep(ctx, past)
	if len(removed) != 0 {
		t.Fatalf("expected no removal after a timely response, got %v", removed)
	}
	if link.sync.lastSentID != 2 {
		t.Errorf("expected a second ping to have been sent, lastSentID=%d", link.sync.lastSentID)
	}
}

func TestLivenessSweepSkipsSelfLink(t *testing.T) {
	sender := &fakeSender{}
	r := newLivenessTestRouter(t, sender)
	ctx := context.Background()

	_, err := r.AddOutgoingConnection(ctx, []*LocalSignal{NewLocalSignal("testsend", "outsig", 'f', 1)}, "/testsend/insig", 'f', 1, "y=x")
	if err != nil {
		t.Fatalf("AddOutgoingConnection: %v", err)
	}
	if link := r.FindLinkByRemoteName("testsend"); link == nil || !link.SelfLink || !link.HasAddresses {
		t.Fatal("expected a resolved self-link to testsend")
	}

	removed := r.RunLivenessSweep(ctx, time.Unix(0, 0))
	if len(removed) != 0 {
		t.Fatalf("expected no removals, got %v", removed)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no pings sent to the self-link, got %d", len(sender.sent))
	}
}
