// Package reassembly rebuilds files from out-of-order packets.
package reassembly

import (
	"bytes"
	"fmt"

	"firestige.xyz/segrecv/internal/core"
	"firestige.xyz/segrecv/internal/packet"
)

// Group accumulates the packets of one file id.
//
// Duplicates overwrite: the most recent Header sets the name, the most recent
// payload for a packet number is kept, and the most recent last-packet claim
// sets the expected count. Conflicting claims are not reconciled.
type Group struct {
	fileID        uint8
	fileName      *string
	expectedCount *int
	payloads      map[uint16][]byte
}

// NewGroup creates an empty group for fileID.
func NewGroup(fileID uint8) *Group {
	return &Group{
		fileID:   fileID,
		payloads: make(map[uint16][]byte),
	}
}

// Apply folds one packet into the group. Packets for other file ids must not
// be passed here; the Coordinator does the routing.
func (g *Group) Apply(p packet.Packet) {
	switch v := p.(type) {
	case packet.Header:
		name := v.FileName
		g.fileName = &name
	case packet.Data:
		g.payloads[v.PacketNumber] = v.Payload
		if v.IsLast {
			n := int(v.PacketNumber) + 1
			g.expectedCount = &n
		}
	default:
		panic(fmt.Sprintf("reassembly: unknown packet type %T", p))
	}
}

// IsComplete reports whether the number of distinct packet numbers received
// equals the expected count.
//
// Only cardinality is compared. A group that holds the right number of
// packets but has a gap below the last packet (e.g. numbers {1, 2} with an
// expected count of 2) reports complete; Materialize then fails.
func (g *Group) IsComplete() bool {
	return g.expectedCount != nil && len(g.payloads) == *g.expectedCount
}

// Materialize concatenates the payloads in packet number order.
// The error wraps core.ErrMaterializePrecondition when the name, the expected
// count, or any packet below the expected count is missing.
func (g *Group) Materialize() ([]byte, error) {
	if g.fileName == nil {
		return nil, fmt.Errorf("%w: file_id=%d has no file name", core.ErrMaterializePrecondition, g.fileID)
	}
	if g.expectedCount == nil {
		return nil, fmt.Errorf("%w: file %q has no last packet", core.ErrMaterializePrecondition, *g.fileName)
	}

	size := 0
	for n := 0; n < *g.expectedCount; n++ {
		payload, ok := g.payloads[uint16(n)]
		if !ok {
			return nil, fmt.Errorf("%w: file %q is missing packet %d of %d",
				core.ErrMaterializePrecondition, *g.fileName, n, *g.expectedCount)
		}
		size += len(payload)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	for n := 0; n < *g.expectedCount; n++ {
		buf.Write(g.payloads[uint16(n)])
	}
	return buf.Bytes(), nil
}

// FileID returns the file identifier.
func (g *Group) FileID() uint8 {
	return g.fileID
}

// FileName returns the name from the most recent Header, if any.
func (g *Group) FileName() (string, bool) {
	if g.fileName == nil {
		return "", false
	}
	return *g.fileName, true
}

// ExpectedCount returns the count derived from the most recent last packet.
func (g *Group) ExpectedCount() (int, bool) {
	if g.expectedCount == nil {
		return 0, false
	}
	return *g.expectedCount, true
}

// Received returns the number of distinct packet numbers stored.
func (g *Group) Received() int {
	return len(g.payloads)
}

// Payload returns the stored payload for packet number n.
func (g *Group) Payload(n uint16) ([]byte, bool) {
	p, ok := g.payloads[n]
	return p, ok
}

// Missing lists packet numbers below the expected count that have not
// arrived. It returns nil when no last packet has been seen.
func (g *Group) Missing() []uint16 {
	if g.expectedCount == nil {
		return nil
	}
	var missing []uint16
	for n := 0; n < *g.expectedCount; n++ {
		if _, ok := g.payloads[uint16(n)]; !ok {
			missing = append(missing, uint16(n))
		}
	}
	return missing
}

// String summarises the group for logs.
func (g *Group) String() string {
	name, _ := g.FileName()
	expected := "?"
	if n, ok := g.ExpectedCount(); ok {
		expected = fmt.Sprint(n)
	}
	return fmt.Sprintf("group{file_id=%d name=%q received=%d expected=%s}",
		g.fileID, name, len(g.payloads), expected)
}
