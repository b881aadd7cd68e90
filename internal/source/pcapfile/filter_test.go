package pcapfile

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/segrecv/internal/testutil"
)

func TestPortFilter(t *testing.T) {
	vm, err := newPortFilter(7077)
	require.NoError(t, err)

	frags := testutil.FragmentedUDPFrames(t, 9, 6014, 7077, make([]byte, 40), 24)
	otherFrags := testutil.FragmentedUDPFrames(t, 10, 6014, 9999, make([]byte, 40), 24)

	tests := []struct {
		name   string
		frame  []byte
		accept bool
	}{
		{"matching port", testutil.UDPFrame(t, 6014, 7077, []byte{0, 1, 'a'}), true},
		{"other port", testutil.UDPFrame(t, 6014, 7078, []byte{0, 1, 'a'}), false},
		{"source port only", testutil.UDPFrame(t, 7077, 6014, []byte{0, 1, 'a'}), false},
		{"first fragment to port", frags[0], true},
		{"first fragment elsewhere", otherFrags[0], false},
		{"later fragment", otherFrags[1], true},
		{"ipv6 left to the decoder", testutil.UDP6Frame(t, 6014, 9999, []byte{0, 1, 'a'}), true},
		{"vlan left to the decoder", testutil.VLANUDPFrame(t, 100, 6014, 9999, []byte{0, 1, 'a'}), true},
		{"ipv4 tcp", ipv4TCPFrame(t), false},
		{"truncated", []byte{1, 2, 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := vm.Run(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.accept, n > 0)
		})
	}
}

func ipv4TCPFrame(t *testing.T) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts,
		&layers.Ethernet{
			SrcMAC:       []byte{2, 0, 0, 0, 0, 1},
			DstMAC:       []byte{2, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    testutil.SrcIP,
			DstIP:    testutil.DstIP,
		},
		&layers.TCP{SrcPort: 6014, DstPort: 7077, DataOffset: 5},
	))
	return buf.Bytes()
}
