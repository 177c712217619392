//go:build linux

// Package transport implements the wire-transport external collaborator:
// a UDP sender/receiver pair that encodes/decodes bundles with a
// wire.Codec and hands each received bundle to a pluggable Handler. The
// package does not itself write received values into a router.Router.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/go-signalmap/router/internal/wire"
)

// UDPSender implements wire.Sender by encoding each bundle with a codec
// and transmitting it as one UDP datagram to the peer's data address.
type UDPSender struct {
	conn   *net.UDPConn
	codec  wire.Codec
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// SenderOption configures optional UDPSender parameters.
type SenderOption func(*UDPSender)

// NewUDPSender creates a sender bound to localAddr:srcPort. The socket
// has SO_REUSEADDR set and, for IPv4, IP_TTL raised to 255, mirroring
// the base daemon's GTSM-hardened sender socket even though this
// transport has no single-hop/multi-hop distinction of its own.
func NewUDPSender(localAddr netip.Addr, srcPort uint16, codec wire.Codec, logger *slog.Logger, opts ...SenderOption) (*UDPSender, error) {
	s := &UDPSender{
		codec:  codec,
		logger: logger.With(slog.String("component", "transport.sender"), slog.String("local", localAddr.String())),
	}
	for _, opt := range opts {
		opt(s)
	}

	isIPv6 := localAddr.Is6() && !localAddr.Is4In6()
	network := "udp4"
	if isIPv6 {
		network = "udp6"
	}

	laddr := netip.AddrPortFrom(localAddr, srcPort)
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSenderOpts(c, isIPv6)
		},
	}

	pc, err := lc.ListenPacket(context.Background(), network, laddr.String())
	if err != nil {
		return nil, fmt.Errorf("create UDP sender %s: %w", laddr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("create UDP sender %s: unexpected connection type", laddr)
	}

	s.conn = conn
	return s, nil
}

func setSenderOpts(c syscall.RawConn, isIPv6 bool) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		intFD := int(fd)
		if sockErr = unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		if isIPv6 {
			sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, 255)
			return
		}
		sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IP, unix.IP_TTL, 255)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

// Send implements wire.Sender.
func (s *UDPSender) Send(ctx context.Context, dataAddr string, b wire.Bundle) error {
	addr, err := net.ResolveUDPAddr("udp", dataAddr)
	if err != nil {
		return fmt.Errorf("resolve data address %q: %w", dataAddr, err)
	}

	encoded, err := s.codec.Encode(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sender closed")
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := s.conn.WriteToUDP(encoded, addr); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	return nil
}

// Close releases the sender's socket.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close sender socket: %w", err)
	}
	return nil
}
