// Package wire implements the wire-codec external collaborator: framing of
// one bundle carrying zero or more typed messages tagged with a common
// timetag, plus the message-builder that turns a connection/slot/sample
// into one such message.
package wire

import "github.com/go-signalmap/router/internal/clock"

// Message is one typed entry in a bundle: a path, a type string, and the
// argument payload. Instance-bearing messages additionally carry the
// origin device hash and instance id so the peer can associate the update
// with a specific instance lineage.
type Message struct {
	Path       string
	TypeString string
	Args       []float64

	// Instanced is true when this message carries instance identity.
	Instanced     bool
	OriginHash    uint32
	InstanceID    int32
}

// IsRelease reports whether this message is an instance-release token: an
// instance-bearing message with an empty payload.
func (m Message) IsRelease() bool {
	return m.Instanced && len(m.Args) == 0
}

// Bundle is a timetag plus an ordered list of messages, delivered as one
// datagram.
type Bundle struct {
	TT       clock.Timetag
	Messages []Message
}

// BuildUpdate constructs a non-release message carrying count elements at
// typestring, optionally tagged with instance identity.
func BuildUpdate(path, typeString string, args []float64, instanced bool, originHash uint32, instanceID int32) Message {
	return Message{
		Path:       path,
		TypeString: typeString,
		Args:       args,
		Instanced:  instanced,
		OriginHash: originHash,
		InstanceID: instanceID,
	}
}

// BuildRelease constructs an instance-release message: empty payload,
// always instance-bearing.
func BuildRelease(path string, originHash uint32, instanceID int32) Message {
	return Message{
		Path:       path,
		Instanced:  true,
		OriginHash: originHash,
		InstanceID: instanceID,
	}
}
