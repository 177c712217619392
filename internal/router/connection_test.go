package router

import "testing"

// TestDefaultIncomingScopeHashesNamedDevice pins the fix to the scope-hash
// bug described in SPEC_FULL.md's Open Question #2: every branch must hash
// the device name it is actually recording, not unconditionally the local
// device's name.
func TestDefaultIncomingScopeHashesNamedDevice(t *testing.T) {
	scope := defaultIncomingScope("local-device", []string{"", "remote-device", "remote-device"})

	names := scope.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 distinct scope members, got %d: %v", len(names), names)
	}

	if !scope.Admits(HashDeviceName("local-device")) {
		t.Error("scope should admit the local device (empty source name maps to local)")
	}
	if !scope.Admits(HashDeviceName("remote-device")) {
		t.Error("scope should admit remote-device, hashed by its own name")
	}
	if scope.Admits(HashDeviceName("unrelated-device")) {
		t.Error("scope must not admit a device it was never given")
	}
}

func TestDefaultOutgoingScopeIsJustLocalDevice(t *testing.T) {
	scope := defaultOutgoingScope("local-device")

	names := scope.Names()
	if len(names) != 1 || names[0] != "local-device" {
		t.Fatalf("expected scope {local-device}, got %v", names)
	}
	if scope.Admits(HashDeviceName("other-device")) {
		t.Error("default outgoing scope must not admit other devices")
	}
}
