// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context via fmt.Errorf("%w: ...")
// and match with errors.Is.
var (
	// Packet decoding errors. Both are recoverable: the datagram is dropped
	// and the receive loop continues.
	ErrIncompletePacket = errors.New("segrecv: incomplete packet")
	ErrFilenameParse    = errors.New("segrecv: file name is not valid utf-8")

	// Output assembly errors
	ErrMaterializePrecondition = errors.New("segrecv: group cannot be materialized")
	ErrUnsafeFileName          = errors.New("segrecv: unsafe output file name")

	// Source errors
	ErrSourceExhausted = errors.New("segrecv: source exhausted before job completed")
	ErrSourceClosed    = errors.New("segrecv: source closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("segrecv: invalid configuration")
)
