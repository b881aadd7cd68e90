// Package pcapfile replays UDP datagrams from a pcap or pcapng capture.
package pcapfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"

	"firestige.xyz/segrecv/internal/core"
)

// Name is the source label.
const Name = "pcap"

// pcapng files start with a section header block of this type.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Config configures a capture replay.
type Config struct {
	Path string
	Port uint16 // UDP destination port filter; 0 = every UDP datagram
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source yields the UDP payloads of a capture in file order.
type Source struct {
	path    string
	port    uint16
	file    *os.File
	reader  packetReader
	decoder *frameDecoder
	filter  *bpf.VM // nil unless a port is set on an Ethernet capture

	frames    uint64
	skipped   uint64
	datagrams uint64
}

// Open opens the capture and reads its file header.
func Open(cfg Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("capture path is required")
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", cfg.Path, err)
	}

	reader, err := newReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture %s: %w", cfg.Path, err)
	}

	decoder, err := newFrameDecoder(reader.LinkType())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture %s: %w", cfg.Path, err)
	}

	var filter *bpf.VM
	if cfg.Port != 0 && reader.LinkType() == layers.LinkTypeEthernet {
		filter, err = newPortFilter(cfg.Port)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	slog.Info("pcap source opened",
		"path", cfg.Path,
		"link_type", reader.LinkType().String(),
		"port", cfg.Port)

	return &Source{
		path:    cfg.Path,
		port:    cfg.Port,
		file:    f,
		reader:  reader,
		decoder: decoder,
		filter:  filter,
	}, nil
}

func newReader(r *bufio.Reader) (packetReader, error) {
	magic, err := r.Peek(len(ngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, ngMagic) {
		return pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(r)
}

// Receive implements source.Source. It returns io.EOF once the capture is
// exhausted.
func (s *Source) Receive(ctx context.Context) (core.Datagram, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.Datagram{}, err
		}
		if s.reader == nil {
			return core.Datagram{}, core.ErrSourceClosed
		}

		frame, ci, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			slog.Debug("pcap source exhausted",
				"path", s.path,
				"frames", s.frames,
				"skipped", s.skipped,
				"datagrams", s.datagrams)
			return core.Datagram{}, io.EOF
		}
		if err != nil {
			return core.Datagram{}, fmt.Errorf("failed to read packet from %s: %w", s.path, err)
		}
		s.frames++

		if s.filter != nil {
			if n, err := s.filter.Run(frame); err != nil || n == 0 {
				continue
			}
		}

		dg, ok, err := s.decoder.decode(frame, ci.Timestamp)
		if err != nil {
			s.skipped++
			slog.Debug("skipping undecodable frame", "frame", s.frames, "error", err)
			continue
		}
		if !ok || (s.port != 0 && dg.dstPort != s.port) {
			continue
		}

		s.datagrams++
		return core.Datagram{
			Data:      dg.payload,
			Timestamp: ci.Timestamp,
			From:      dg.src,
		}, nil
	}
}

// Name implements source.Source.
func (s *Source) Name() string {
	return Name
}

// Close implements source.Source.
func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}
