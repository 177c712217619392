package wire

import (
	"reflect"
	"testing"

	"github.com/go-signalmap/router/internal/clock"
)

func TestOSCCodecRoundTripUpdate(t *testing.T) {
	codec := NewOSCCodec()
	want := Bundle{
		TT: clock.Timetag{Seconds: 42, Fraction: 7},
		Messages: []Message{
			BuildUpdate("/dev/sig", "fff", []float64{1, 2.5, -3}, false, 0, 0),
			BuildUpdate("/dev/other", "i", []float64{9}, true, 0xCAFE, 3),
		},
	}

	data, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !got.TT.Equal(want.TT) {
		t.Fatalf("timetag: got %+v, want %+v", got.TT, want.TT)
	}
	if len(got.Messages) != len(want.Messages) {
		t.Fatalf("got %d messages, want %d", len(got.Messages), len(want.Messages))
	}
	for i := range want.Messages {
		w := want.Messages[i]
		g := got.Messages[i]
		if g.Path != w.Path || g.TypeString != w.TypeString || g.Instanced != w.Instanced {
			t.Errorf("message %d: got %+v, want %+v", i, g, w)
		}
		if w.Instanced && (g.OriginHash != w.OriginHash || g.InstanceID != w.InstanceID) {
			t.Errorf("message %d instance fields: got hash=%d id=%d, want hash=%d id=%d",
				i, g.OriginHash, g.InstanceID, w.OriginHash, w.InstanceID)
		}
		if !reflect.DeepEqual(g.Args, w.Args) {
			t.Errorf("message %d args: got %v, want %v", i, g.Args, w.Args)
		}
	}
}

func TestOSCCodecRoundTripRelease(t *testing.T) {
	codec := NewOSCCodec()
	want := Bundle{
		TT:       clock.Timetag{Seconds: 1},
		Messages: []Message{BuildRelease("/dev/sig", 0x1234, 2)},
	}

	data, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Messages) != 1 || !got.Messages[0].IsRelease() {
		t.Fatalf("expected one release message, got %+v", got.Messages)
	}
	if got.Messages[0].OriginHash != 0x1234 || got.Messages[0].InstanceID != 2 {
		t.Errorf("release instance fields: got %+v", got.Messages[0])
	}
}

func TestOSCCodecDecodeRejectsNonBundle(t *testing.T) {
	codec := NewOSCCodec()
	if _, err := codec.Decode([]byte("not a bundle")); err == nil {
		t.Fatal("expected an error decoding non-bundle data")
	}
}
