// Package receiver drives a reassembly job: it pulls datagrams from a source
// until every expected file is complete, then writes the files out.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/segrecv/internal/core"
	"firestige.xyz/segrecv/internal/metrics"
	"firestige.xyz/segrecv/internal/output"
	"firestige.xyz/segrecv/internal/packet"
	"firestige.xyz/segrecv/internal/reassembly"
	"firestige.xyz/segrecv/internal/source"
)

// Config wires a receiver.
type Config struct {
	Source      source.Source
	Coordinator *reassembly.Coordinator
	Writer      *output.Writer
	Progress    io.Writer    // One '.' per accepted packet; nil disables
	Logger      *slog.Logger // nil = slog.Default()
}

// Receiver runs a single job. It is not safe for concurrent use.
type Receiver struct {
	jobID    string
	src      source.Source
	coord    *reassembly.Coordinator
	writer   *output.Writer
	progress io.Writer
	log      *slog.Logger
	warn     *warnLimiter
}

// New creates a receiver with a fresh job id.
func New(cfg Config) *Receiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jobID := uuid.NewString()

	return &Receiver{
		jobID:    jobID,
		src:      cfg.Source,
		coord:    cfg.Coordinator,
		writer:   cfg.Writer,
		progress: cfg.Progress,
		log:      logger.With("job_id", jobID),
		warn:     newWarnLimiter(defaultWarnBurst, defaultWarnWindow),
	}
}

// JobID returns the job identifier attached to every log record.
func (r *Receiver) JobID() string {
	return r.jobID
}

// Run receives until the job is complete, then writes every complete group.
// The report is returned even on error and describes how far the job got.
//
// Decode errors are skipped. A source error ends the job: io.EOF becomes
// core.ErrSourceExhausted, context cancellation is returned as is. Write
// failures of individual files are joined into the returned error.
func (r *Receiver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		JobID:  r.jobID,
		Source: r.src.Name(),
	}
	defer func() {
		report.Duration = time.Since(start)
		metrics.JobDurationSeconds.Observe(report.Duration.Seconds())
	}()

	r.log.Info("job started",
		"source", r.src.Name(),
		"expected_files", r.coord.ExpectedFiles())

	err := r.receive(ctx, &report.Stats)
	r.endProgress()
	if err != nil {
		return report, err
	}

	r.log.Info("all files received",
		"files", r.coord.Len(),
		"datagrams", report.Stats.Datagrams,
		"decode_errors", report.Stats.DecodeErrors,
		"suppressed_warnings", r.warn.Suppressed())

	if err := r.writeAll(report); err != nil {
		return report, err
	}

	r.log.Info("job finished", "files", len(report.Files), "duration", time.Since(start))
	return report, nil
}

func (r *Receiver) receive(ctx context.Context, stats *Stats) error {
	name := r.src.Name()

	for !r.coord.IsJobComplete() {
		dg, err := r.src.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				summary := r.summary()
				r.log.Error("source exhausted before the job completed", "summary", summary)
				return fmt.Errorf("%w: %s", core.ErrSourceExhausted, summary)
			}
			if ctx.Err() != nil {
				r.log.Warn("job interrupted", "summary", r.summary())
				return ctx.Err()
			}
			return err
		}

		stats.Datagrams++
		stats.Bytes += uint64(dg.Len())
		metrics.DatagramsReceivedTotal.WithLabelValues(name).Inc()
		metrics.DatagramBytesTotal.WithLabelValues(name).Add(float64(dg.Len()))

		p, err := packet.Decode(dg.Data)
		if err != nil {
			kind := decodeErrorKind(err)
			stats.DecodeErrors++
			metrics.DecodeErrorsTotal.WithLabelValues(kind).Inc()
			if r.warn.Allow(dg.From.Addr(), time.Now()) {
				r.log.Warn("discarding datagram",
					"kind", kind,
					"from", dg.From.String(),
					"bytes", dg.Len(),
					"error", err)
			}
			continue
		}

		r.route(p)
		stats.Packets++
		r.log.Debug("packet routed", "packet", p)
		if r.progress != nil {
			fmt.Fprint(r.progress, ".")
		}
	}
	return nil
}

// route applies p to the job and records the group metrics. The complete
// gauge reflects the current job only.
func (r *Receiver) route(p packet.Packet) {
	if _, ok := r.coord.Group(p.ID()); !ok {
		metrics.GroupsCreatedTotal.Inc()
	}
	r.coord.Route(p)
	metrics.PacketsRoutedTotal.WithLabelValues(p.Kind().String()).Inc()
	metrics.GroupsComplete.Set(float64(r.coord.Complete()))
}

func (r *Receiver) writeAll(report *Report) error {
	return r.coord.ForEachCompleteGroup(func(g *reassembly.Group) error {
		res, err := r.writer.Write(g)
		if err != nil {
			r.log.Error("failed to write file", "file_id", g.FileID(), "error", err)
			report.Failed = append(report.Failed, FileError{FileID: g.FileID(), Err: err})
			return fmt.Errorf("file %d: %w", g.FileID(), err)
		}

		r.log.Info("file written",
			"file_id", res.FileID,
			"file_name", res.FileName,
			"path", res.Path,
			"bytes", res.Bytes)
		report.Files = append(report.Files, res)
		return nil
	})
}

func (r *Receiver) endProgress() {
	if r.progress != nil {
		fmt.Fprintln(r.progress)
	}
}

// summary describes what the job is still waiting for.
func (r *Receiver) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d files seen", r.coord.Len(), r.coord.ExpectedFiles())
	for _, g := range r.coord.Groups() {
		if g.IsComplete() {
			continue
		}
		b.WriteString("; ")
		b.WriteString(incompleteReason(g))
	}
	return b.String()
}

func incompleteReason(g *reassembly.Group) string {
	name, ok := g.FileName()
	if !ok {
		name = "?"
	}
	expected, ok := g.ExpectedCount()
	if !ok {
		return fmt.Sprintf("file %d %q: %d packets, last packet not seen", g.FileID(), name, g.Received())
	}
	return fmt.Sprintf("file %d %q: %d of %d packets, %d missing",
		g.FileID(), name, g.Received(), expected, len(g.Missing()))
}

func decodeErrorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrIncompletePacket):
		return "incomplete"
	case errors.Is(err, core.ErrFilenameParse):
		return "filename"
	default:
		return "other"
	}
}
