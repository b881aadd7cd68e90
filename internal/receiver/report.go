package receiver

import (
	"time"

	"firestige.xyz/segrecv/internal/output"
)

// Stats contains per-job counters.
type Stats struct {
	Datagrams    uint64 // Datagrams handed over by the source
	Bytes        uint64 // Raw bytes in those datagrams
	Packets      uint64 // Datagrams decoded and routed
	DecodeErrors uint64 // Datagrams discarded as undecodable
}

// FileError records a complete group that could not be written.
type FileError struct {
	FileID uint8
	Err    error
}

// Report is the outcome of a job.
type Report struct {
	JobID    string
	Source   string
	Stats    Stats
	Files    []output.Result // Written files, ascending file id
	Failed   []FileError
	Duration time.Duration
}

// OK reports whether every expected file was written.
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && len(r.Files) > 0
}
