// Package packet implements the segmented-file wire format.
//
// Every datagram carries exactly one packet. Byte 0 is a status byte whose
// parity selects the packet kind (even = Header, odd = Data). For Data
// packets, status%4 == 3 marks the final packet of a file.
//
//	Header: [status][file_id][utf-8 file name ...]                min 3 bytes
//	Data:   [status][file_id][number hi][number lo][payload ...]  min 5 bytes
package packet

import "fmt"

// Kind identifies the packet variant.
type Kind uint8

const (
	KindHeader Kind = iota
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Minimum datagram sizes per kind.
const (
	HeaderMinLen = 3
	DataMinLen   = 5
)

// Packet is a decoded wire packet: either Header or Data.
type Packet interface {
	Kind() Kind
	// ID returns the file identifier the packet belongs to.
	ID() uint8
}

// Header names a file.
type Header struct {
	FileID   uint8
	FileName string
}

func (h Header) Kind() Kind { return KindHeader }
func (h Header) ID() uint8  { return h.FileID }

func (h Header) String() string {
	return fmt.Sprintf("header{file_id=%d name=%q}", h.FileID, h.FileName)
}

// Data carries one fragment of a file.
type Data struct {
	FileID       uint8
	PacketNumber uint16
	IsLast       bool
	Payload      []byte
}

func (d Data) Kind() Kind { return KindData }
func (d Data) ID() uint8  { return d.FileID }

func (d Data) String() string {
	return fmt.Sprintf("data{file_id=%d number=%d last=%t len=%d}",
		d.FileID, d.PacketNumber, d.IsLast, len(d.Payload))
}
