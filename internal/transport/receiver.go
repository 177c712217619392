//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/go-signalmap/router/internal/wire"
)

// maxDatagramSize bounds one UDP read, generous for the bundle sizes
// this router produces (no jumbo-frame fragmentation handling).
const maxDatagramSize = 65507

// Handler processes one decoded bundle received from a peer.
type Handler interface {
	HandleBundle(from netip.AddrPort, b wire.Bundle)
}

// UDPReceiver listens on one UDP socket, decodes each datagram as a
// bundle with codec, and dispatches it to handler. Malformed datagrams
// are logged and dropped; they never stop the receive loop.
type UDPReceiver struct {
	conn    *net.UDPConn
	codec   wire.Codec
	handler Handler
	logger  *slog.Logger
}

// NewUDPReceiver binds a receiver to localAddr:port.
func NewUDPReceiver(localAddr netip.Addr, port uint16, codec wire.Codec, handler Handler, logger *slog.Logger) (*UDPReceiver, error) {
	network := "udp4"
	if localAddr.Is6() && !localAddr.Is4In6() {
		network = "udp6"
	}
	addr := netip.AddrPortFrom(localAddr, port)

	conn, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", addr, err)
	}

	return &UDPReceiver{
		conn:    conn,
		codec:   codec,
		handler: handler,
		logger:  logger.With(slog.String("component", "transport.receiver"), slog.String("local", addr.String())),
	}, nil
}

// Serve reads and dispatches datagrams until ctx is done or the socket
// is closed.
func (r *UDPReceiver) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("read UDP datagram: %w", err)
		}

		b, err := r.codec.Decode(buf[:n])
		if err != nil {
			r.logger.Warn("dropping malformed datagram",
				slog.String("from", from.String()), slog.String("error", err.Error()))
			continue
		}
		r.handler.HandleBundle(from, b)
	}
}

// Close releases the receiver's socket.
func (r *UDPReceiver) Close() error {
	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("close receiver socket: %w", err)
	}
	return nil
}
