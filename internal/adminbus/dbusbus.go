package adminbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Well-known D-Bus names for the admin-bus signal. The teacher's go.mod
// declares github.com/godbus/dbus/v5 but never imports it anywhere in its
// own source; this is the first real user of that dependency, chosen
// because a session-bus signal is a reasonable, low-overhead local
// transport for exactly the "announce my address, let subscribers learn
// it" traffic the admin bus models.
const (
	busName       = "io.github.gosignalmap.Router"
	objectPath    = dbus.ObjectPath("/io/github/gosignalmap/Router")
	ifaceName     = "io.github.gosignalmap.Router.Admin"
	subscribeMeth = ifaceName + ".Subscribe"
	addressSignal = ifaceName + ".AddressUpdate"
)

// DBus is the production AdminBus, backed by a D-Bus session connection.
// Subscribe requests go out as method calls against the well-known
// object path; address updates arrive as broadcast signals this type
// listens for and republishes on its Updates channel.
type DBus struct {
	conn   *dbus.Conn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan AddressUpdate
}

// NewDBus connects to the D-Bus session bus and begins listening for
// address-update signals.
func NewDBus(logger *slog.Logger) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	matchRule := fmt.Sprintf("type='signal',interface='%s',member='AddressUpdate'", ifaceName)
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule); call.Err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("add match rule: %w", call.Err)
	}

	b := &DBus{
		conn:   conn,
		logger: logger.With(slog.String("component", "adminbus.dbus")),
		ch:     make(chan AddressUpdate, 32),
	}

	signals := make(chan *dbus.Signal, 32)
	conn.Signal(signals)
	go b.pump(signals)

	return b, nil
}

// pump translates raw D-Bus signals into AddressUpdate values.
func (b *DBus) pump(signals chan *dbus.Signal) {
	for sig := range signals {
		if sig.Name != addressSignal {
			continue
		}
		update, err := decodeAddressUpdate(sig.Body)
		if err != nil {
			b.logger.Warn("malformed address update signal",
				slog.String("error", err.Error()))
			continue
		}
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		select {
		case b.ch <- update:
		default:
			b.logger.Warn("address update channel full, dropping",
				slog.String("device", update.DeviceName))
		}
	}
}

func decodeAddressUpdate(body []interface{}) (AddressUpdate, error) {
	if len(body) != 4 {
		return AddressUpdate{}, errors.New("expected 4 body fields")
	}
	device, ok := body[0].(string)
	if !ok {
		return AddressUpdate{}, errors.New("field 0 not a string")
	}
	host, ok := body[1].(string)
	if !ok {
		return AddressUpdate{}, errors.New("field 1 not a string")
	}
	adminAddr, ok := body[2].(string)
	if !ok {
		return AddressUpdate{}, errors.New("field 2 not a string")
	}
	dataAddr, ok := body[3].(string)
	if !ok {
		return AddressUpdate{}, errors.New("field 3 not a string")
	}
	return AddressUpdate{DeviceName: device, Host: host, AdminAddr: adminAddr, DataAddr: dataAddr}, nil
}

// Subscribe implements AdminBus by calling the well-known Subscribe
// method on the bus, mirroring the wire-level
// "/<remote-device-name>/subscribe device" request described in
// SPEC_FULL.md.
func (b *DBus) Subscribe(ctx context.Context, remoteDevice string) error {
	obj := b.conn.Object(busName, objectPath)
	call := obj.CallWithContext(ctx, subscribeMeth, 0, remoteDevice, "device")
	if call.Err != nil {
		return fmt.Errorf("subscribe to %q: %w", remoteDevice, call.Err)
	}
	return nil
}

// Updates implements AdminBus.
func (b *DBus) Updates() <-chan AddressUpdate { return b.ch }

// Close implements AdminBus.
func (b *DBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.ch)
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("close dbus connection: %w", err)
	}
	return nil
}
