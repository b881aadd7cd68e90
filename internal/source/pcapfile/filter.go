package pcapfile

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// udpPortFilter assembles a classic BPF program for Ethernet frames that
// rejects untagged IPv4 traffic not addressed to UDP port. Frames of any other
// ethertype (IPv6, 802.1Q) pass through to the decoder, which applies the
// port check itself. Non-first IPv4 fragments carry no UDP header and are
// accepted too; the port is checked once the datagram is reassembled.
func udpPortFilter(port uint16) ([]bpf.RawInstruction, error) {
	const (
		accept = 262144
		reject = 0
	)
	prog, err := bpf.Assemble([]bpf.Instruction{
		/* 0 */ bpf.LoadAbsolute{Off: 12, Size: 2}, // ethertype
		/* 1 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 7},
		/* 2 */ bpf.LoadAbsolute{Off: 23, Size: 1}, // ip protocol
		/* 3 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: 17, SkipFalse: 6},
		/* 4 */ bpf.LoadAbsolute{Off: 20, Size: 2}, // flags + fragment offset
		/* 5 */ bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 3},
		/* 6 */ bpf.LoadMemShift{Off: 14}, // x = ip header length
		/* 7 */ bpf.LoadIndirect{Off: 16, Size: 2}, // udp destination port
		/* 8 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port), SkipFalse: 1},
		/* 9 */ bpf.RetConstant{Val: accept},
		/* 10 */ bpf.RetConstant{Val: reject},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
	}
	return prog, nil
}

// newPortFilter returns a VM running udpPortFilter(port).
func newPortFilter(port uint16) (*bpf.VM, error) {
	raw, err := udpPortFilter(port)
	if err != nil {
		return nil, err
	}
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("BPF filter contains unknown instructions")
	}
	return bpf.NewVM(insns)
}
