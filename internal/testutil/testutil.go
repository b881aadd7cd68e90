// Package testutil builds datagram and capture fixtures shared by tests.
package testutil

import (
	"math/rand"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"firestige.xyz/segrecv/internal/packet"
)

var (
	SrcIP  = net.IPv4(10, 0, 0, 1)
	DstIP  = net.IPv4(10, 0, 0, 2)
	SrcIP6 = net.ParseIP("fd00::1")
	DstIP6 = net.ParseIP("fd00::2")
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
)

// FileDatagrams encodes a Header followed by the Data packets that carry
// content in chunks of at most chunkSize bytes. content must not be empty.
func FileDatagrams(fileID uint8, name string, content []byte, chunkSize int) [][]byte {
	out := [][]byte{packet.Encode(packet.Header{FileID: fileID, FileName: name})}
	var number uint16
	for off := 0; off < len(content); off += chunkSize {
		end := min(off+chunkSize, len(content))
		out = append(out, packet.Encode(packet.Data{
			FileID:       fileID,
			PacketNumber: number,
			IsLast:       end == len(content),
			Payload:      content[off:end],
		}))
		number++
	}
	return out
}

// Shuffle reorders datagrams deterministically for seed.
func Shuffle(datagrams [][]byte, seed int64) [][]byte {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(datagrams), func(i, j int) { datagrams[i], datagrams[j] = datagrams[j], datagrams[i] })
	return datagrams
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet() *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
}

func ipv4(id uint16) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       id,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    SrcIP,
		DstIP:    DstIP,
	}
}

// UDPFrame returns an Ethernet/IPv4/UDP frame carrying payload.
func UDPFrame(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := ipv4(1)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(), ip, udp, gopacket.Payload(payload))
}

// UDP6Frame returns an Ethernet/IPv6/UDP frame carrying payload.
func UDP6Frame(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := ethernet()
	eth.EthernetType = layers.EthernetTypeIPv6
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      SrcIP6,
		DstIP:      DstIP6,
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, udp, gopacket.Payload(payload))
}

// VLANUDPFrame returns an 802.1Q-tagged Ethernet/IPv4/UDP frame carrying
// payload.
func VLANUDPFrame(t testing.TB, vlan, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := ethernet()
	eth.EthernetType = layers.EthernetTypeDot1Q
	tag := &layers.Dot1Q{VLANIdentifier: vlan, Type: layers.EthernetTypeIPv4}
	ip := ipv4(1)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, tag, ip, udp, gopacket.Payload(payload))
}

// FragmentedUDPFrames splits one UDP datagram into IPv4 fragments whose
// payloads are fragSize bytes (a multiple of 8) except for the last.
func FragmentedUDPFrames(t testing.TB, id, srcPort, dstPort uint16, payload []byte, fragSize int) [][]byte {
	t.Helper()
	require.Zero(t, fragSize%8, "fragment size must be a multiple of 8")

	ip := ipv4(id)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	segment := serialize(t, udp, gopacket.Payload(payload))

	var frames [][]byte
	for off := 0; off < len(segment); off += fragSize {
		end := min(off+fragSize, len(segment))
		frag := ipv4(id)
		frag.FragOffset = uint16(off / 8)
		if end < len(segment) {
			frag.Flags = layers.IPv4MoreFragments
		}
		frames = append(frames, serialize(t, ethernet(), frag, gopacket.Payload(segment[off:end])))
	}
	return frames
}

// WritePcap writes Ethernet frames to a classic pcap file at path.
func WritePcap(t testing.TB, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
}

// WritePcapNg writes Ethernet frames to a pcapng file at path.
func WritePcapNg(t testing.TB, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	ts := time.Unix(1700000000, 0)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	require.NoError(t, w.Flush())
}

// UDPFrames wraps every datagram in its own Ethernet/IPv4/UDP frame.
func UDPFrames(t testing.TB, srcPort, dstPort uint16, datagrams [][]byte) [][]byte {
	t.Helper()
	frames := make([][]byte, 0, len(datagrams))
	for _, d := range datagrams {
		frames = append(frames, UDPFrame(t, srcPort, dstPort, d))
	}
	return frames
}
