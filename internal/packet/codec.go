package packet

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"firestige.xyz/segrecv/internal/core"
)

// Status byte values written by the encoder. The decoder accepts any value
// with the right parity.
const (
	statusHeader   byte = 0
	statusData     byte = 1
	statusDataLast byte = 3
)

func isHeaderStatus(status byte) bool { return status%2 == 0 }
func isLastStatus(status byte) bool   { return status%4 == 3 }

// Classify reports the packet kind selected by the status byte.
func Classify(b []byte) (Kind, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty datagram", core.ErrIncompletePacket)
	}
	if isHeaderStatus(b[0]) {
		return KindHeader, nil
	}
	return KindData, nil
}

// Decode parses one datagram. The returned packet does not alias b.
func Decode(b []byte) (Packet, error) {
	kind, err := Classify(b)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindHeader:
		if len(b) < HeaderMinLen {
			return nil, fmt.Errorf("%w: header needs %d bytes, got %d",
				core.ErrIncompletePacket, HeaderMinLen, len(b))
		}
		h, err := decodeHeader(b)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		if len(b) < DataMinLen {
			return nil, fmt.Errorf("%w: data needs %d bytes, got %d",
				core.ErrIncompletePacket, DataMinLen, len(b))
		}
		return decodeData(b), nil
	}
}

// decodeHeader expects a classified, length-checked header datagram.
func decodeHeader(b []byte) (Header, error) {
	if !isHeaderStatus(b[0]) {
		panic(fmt.Sprintf("packet: decodeHeader called with data status byte %d", b[0]))
	}
	name := b[2:]
	if !utf8.Valid(name) {
		return Header{}, fmt.Errorf("%w: file_id=%d", core.ErrFilenameParse, b[1])
	}
	return Header{FileID: b[1], FileName: string(name)}, nil
}

// decodeData expects a classified, length-checked data datagram.
func decodeData(b []byte) Data {
	if isHeaderStatus(b[0]) {
		panic(fmt.Sprintf("packet: decodeData called with header status byte %d", b[0]))
	}
	payload := make([]byte, len(b)-4)
	copy(payload, b[4:])
	return Data{
		FileID:       b[1],
		PacketNumber: binary.BigEndian.Uint16(b[2:4]),
		IsLast:       isLastStatus(b[0]),
		Payload:      payload,
	}
}

// MarshalBinary encodes the header with status byte 0.
func (h Header) MarshalBinary() ([]byte, error) {
	if !utf8.ValidString(h.FileName) {
		return nil, fmt.Errorf("%w: file_id=%d", core.ErrFilenameParse, h.FileID)
	}
	b := make([]byte, 0, 2+len(h.FileName))
	b = append(b, statusHeader, h.FileID)
	return append(b, h.FileName...), nil
}

// MarshalBinary encodes the data packet with status byte 3 when last, else 1.
func (d Data) MarshalBinary() ([]byte, error) {
	status := statusData
	if d.IsLast {
		status = statusDataLast
	}
	b := make([]byte, 4, 4+len(d.Payload))
	b[0] = status
	b[1] = d.FileID
	binary.BigEndian.PutUint16(b[2:4], d.PacketNumber)
	return append(b, d.Payload...), nil
}

// Encode is MarshalBinary for either variant. It panics on a header whose
// name is not valid UTF-8, which only test fixtures can produce.
func Encode(p Packet) []byte {
	var (
		b   []byte
		err error
	)
	switch v := p.(type) {
	case Header:
		b, err = v.MarshalBinary()
	case Data:
		b, err = v.MarshalBinary()
	default:
		panic(fmt.Sprintf("packet: unknown packet type %T", p))
	}
	if err != nil {
		panic(err)
	}
	return b
}
