// Package udp implements the live datagram source.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"firestige.xyz/segrecv/internal/core"
)

// Name is the source label.
const Name = "udp"

const (
	defaultReadBuffer   = 65535
	defaultPollInterval = 250 * time.Millisecond
)

// Config configures a UDP source.
type Config struct {
	Listen       string        // Local bind address, "host:port"
	Remote       string        // Sender address; empty = unconnected, accept from anyone
	HelloSize    int           // Size of the zero-filled hello datagram sent to Remote; 0 = none
	ReadBuffer   int           // Largest datagram accepted; longer ones are truncated by the kernel
	PollInterval time.Duration // Read deadline used to observe ctx cancellation
}

// Source receives datagrams on a UDP socket.
//
// With a Remote configured the socket is connected, so only the sender's
// datagrams are delivered, and a hello datagram asks the sender to start.
type Source struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	buf    []byte
	poll   time.Duration
}

// New binds the socket and, when a remote is configured, connects it and
// sends the hello datagram.
func New(cfg Config) (*Source, error) {
	if cfg.Listen == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", cfg.Listen, err)
	}

	s := &Source{
		buf:  make([]byte, cfg.ReadBuffer),
		poll: cfg.PollInterval,
	}

	if cfg.Remote == "" {
		s.conn, err = net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to address %s: %w", cfg.Listen, err)
		}
		slog.Info("udp source listening", "local", s.conn.LocalAddr().String())
		return s, nil
	}

	s.remote, err = net.ResolveUDPAddr("udp", cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", cfg.Remote, err)
	}
	s.conn, err = net.DialUDP("udp", laddr, s.remote)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s to %s: %w", cfg.Listen, cfg.Remote, err)
	}
	slog.Info("udp source connected", "local", s.conn.LocalAddr().String(), "remote", s.remote.String())

	if cfg.HelloSize > 0 {
		if _, err := s.conn.Write(make([]byte, cfg.HelloSize)); err != nil {
			s.conn.Close()
			return nil, fmt.Errorf("failed to send the initial hello to %s: %w", cfg.Remote, err)
		}
		slog.Debug("hello sent", "remote", s.remote.String(), "bytes", cfg.HelloSize)
	}

	return s, nil
}

// Receive implements source.Source.
func (s *Source) Receive(ctx context.Context) (core.Datagram, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.Datagram{}, err
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			return core.Datagram{}, s.readError(err)
		}
		n, from, err := s.conn.ReadFromUDPAddrPort(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return core.Datagram{}, s.readError(err)
		}

		data := make([]byte, n)
		copy(data, s.buf[:n])
		return core.Datagram{
			Data:      data,
			Timestamp: time.Now(),
			From:      netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
		}, nil
	}
}

func (s *Source) readError(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return core.ErrSourceClosed
	}
	if s.remote != nil {
		return fmt.Errorf("failed to receive a packet from %s; is the sender running?: %w", s.remote, err)
	}
	return fmt.Errorf("failed to receive a packet: %w", err)
}

// LocalAddr returns the bound address.
func (s *Source) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Name implements source.Source.
func (s *Source) Name() string {
	return Name
}

// Close implements source.Source.
func (s *Source) Close() error {
	return s.conn.Close()
}
