package pcapfile

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/ip4defrag"
	"github.com/google/gopacket/layers"
)

// fragmentTimeout bounds how long an incomplete IPv4 datagram is kept.
const fragmentTimeout = 30 * time.Second

// udpDatagram is one UDP payload recovered from a captured frame.
type udpDatagram struct {
	payload []byte
	src     netip.AddrPort
	dstPort uint16
}

// frameDecoder extracts UDP payloads from link-layer frames, reassembling
// fragmented IPv4 datagrams on the way.
type frameDecoder struct {
	parser *gopacket.DecodingLayerParser

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	sll   layers.LinuxSLL
	ip4   layers.IPv4
	ip6   layers.IPv6
	udp   layers.UDP

	decoded []gopacket.LayerType

	defrag    *ip4defrag.IPv4Defragmenter
	lastSweep time.Time
}

func firstLayer(lt layers.LinkType) (gopacket.LayerType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, nil
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4, nil
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6, nil
	default:
		return gopacket.LayerTypeZero, fmt.Errorf("unsupported link type %s", lt)
	}
}

func newFrameDecoder(lt layers.LinkType) (*frameDecoder, error) {
	first, err := firstLayer(lt)
	if err != nil {
		return nil, err
	}

	d := &frameDecoder{
		defrag:  ip4defrag.NewIPv4Defragmenter(),
		decoded: make([]gopacket.LayerType, 0, 8),
	}
	d.parser = gopacket.NewDecodingLayerParser(
		first,
		&d.eth,
		&d.dot1q,
		&d.sll,
		&d.ip4,
		&d.ip6,
		&d.udp,
	)
	d.parser.IgnoreUnsupported = true
	return d, nil
}

// decode returns ok=false for frames that carry no complete UDP datagram:
// other protocols, or an IPv4 fragment whose siblings have not all arrived.
func (d *frameDecoder) decode(frame []byte, ts time.Time) (udpDatagram, bool, error) {
	d.decoded = d.decoded[:0]
	if err := d.parser.DecodeLayers(frame, &d.decoded); err != nil {
		return udpDatagram{}, false, err
	}

	var haveIP4, haveIP6, haveUDP bool
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			haveIP4 = true
		case layers.LayerTypeIPv6:
			haveIP6 = true
		case layers.LayerTypeUDP:
			haveUDP = true
		}
	}

	switch {
	case haveIP4 && isFragment(&d.ip4):
		return d.reassemble(ts)
	case haveIP4 && haveUDP:
		return d.datagram(d.ip4.SrcIP, &d.udp), true, nil
	case haveIP6 && haveUDP:
		return d.datagram(d.ip6.SrcIP, &d.udp), true, nil
	default:
		return udpDatagram{}, false, nil
	}
}

func (d *frameDecoder) reassemble(ts time.Time) (udpDatagram, bool, error) {
	d.sweep(ts)

	// The defragmenter keeps the fragment it is given, so hand it a copy of
	// the reused layer.
	frag := d.ip4
	whole, err := d.defrag.DefragIPv4WithTimestamp(&frag, ts)
	if err != nil {
		return udpDatagram{}, false, err
	}
	if whole == nil || whole.Protocol != layers.IPProtocolUDP {
		return udpDatagram{}, false, nil
	}

	var udp layers.UDP
	if err := udp.DecodeFromBytes(whole.Payload, gopacket.NilDecodeFeedback); err != nil {
		return udpDatagram{}, false, fmt.Errorf("reassembled datagram: %w", err)
	}
	return d.datagram(whole.SrcIP, &udp), true, nil
}

func (d *frameDecoder) sweep(ts time.Time) {
	if ts.Sub(d.lastSweep) < fragmentTimeout {
		return
	}
	d.defrag.DiscardOlderThan(ts.Add(-fragmentTimeout))
	d.lastSweep = ts
}

func (d *frameDecoder) datagram(src net.IP, udp *layers.UDP) udpDatagram {
	addr, _ := netip.AddrFromSlice(src)
	payload := make([]byte, len(udp.Payload))
	copy(payload, udp.Payload)
	return udpDatagram{
		payload: payload,
		src:     netip.AddrPortFrom(addr.Unmap(), uint16(udp.SrcPort)),
		dstPort: uint16(udp.DstPort),
	}
}

func isFragment(ip4 *layers.IPv4) bool {
	return ip4.Flags&layers.IPv4MoreFragments != 0 || ip4.FragOffset != 0
}
