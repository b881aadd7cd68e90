// Package source defines where datagrams come from.
package source

import (
	"context"

	"firestige.xyz/segrecv/internal/core"
)

// Source yields one datagram per call. Implementations never reuse the
// returned Data slice.
type Source interface {
	// Receive blocks until a datagram arrives, ctx is done, or the source
	// fails. Offline sources return io.EOF when exhausted.
	Receive(ctx context.Context) (core.Datagram, error)
	// Name is a short label used in logs and metrics.
	Name() string
	Close() error
}
