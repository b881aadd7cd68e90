// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// Datagram is one delimited buffer handed over by a transport. The datagram
// boundary is the packet boundary.
type Datagram struct {
	Data      []byte         // Owned by the receiver, never reused by the source
	Timestamp time.Time      // Receive or capture timestamp
	From      netip.AddrPort // Sender, zero value when unknown
}

// Len returns the datagram length in bytes.
func (d Datagram) Len() int {
	return len(d.Data)
}
