package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/segrecv/internal/config"
	"firestige.xyz/segrecv/internal/log"
	"firestige.xyz/segrecv/internal/metrics"
	"firestige.xyz/segrecv/internal/output"
	"firestige.xyz/segrecv/internal/reassembly"
	"firestige.xyz/segrecv/internal/receiver"
	"firestige.xyz/segrecv/internal/source"
)

// addJobFlags registers the flags shared by receive and replay.
func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output directory (overrides job.output_dir)")
	cmd.Flags().Int("expected-files", 0, "number of files in the job (overrides job.expected_files)")
	cmd.Flags().Bool("progress", false, "print one dot per accepted packet (overrides job.progress)")
}

// loadConfig loads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Job.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("expected-files") {
		cfg.Job.ExpectedFiles, _ = flags.GetInt("expected-files")
	}
	if flags.Changed("progress") {
		cfg.Job.Progress, _ = flags.GetBool("progress")
	}
	if flags.Changed("listen") {
		cfg.Transport.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("remote") {
		cfg.Transport.Remote, _ = flags.GetString("remote")
	}
	if flags.Changed("port") {
		cfg.Replay.Port, _ = flags.GetInt("port")
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// withRuntime initialises logging and metrics, then runs fn under a context
// cancelled by SIGINT or SIGTERM.
func withRuntime(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context) error) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				slog.Error("error stopping metrics server", "error", err)
			}
		}()
	}

	return fn(ctx)
}

// runJob reassembles the files arriving from src and writes them to the
// configured output directory. src is closed before returning.
func runJob(ctx context.Context, cfg *config.Config, src source.Source, stdout io.Writer) (*receiver.Report, error) {
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("error closing source", "source", src.Name(), "error", err)
		}
	}()

	var progress io.Writer
	if cfg.Job.Progress {
		progress = stdout
	}

	r := receiver.New(receiver.Config{
		Source:      src,
		Coordinator: reassembly.NewCoordinator(cfg.Job.ExpectedFiles),
		Writer:      output.NewWriter(cfg.Job.OutputDir),
		Progress:    progress,
	})

	report, err := r.Run(ctx)
	printReport(stdout, report)
	return report, err
}

func printReport(w io.Writer, report *receiver.Report) {
	if report == nil {
		return
	}
	for _, f := range report.Files {
		fmt.Fprintf(w, "✓ %s (%d bytes)\n", f.Path, f.Bytes)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "✗ file %d: %v\n", f.FileID, f.Err)
	}
	fmt.Fprintf(w, "job %s: %d written, %d failed, %d datagrams, %d discarded, %s\n",
		report.JobID,
		len(report.Files),
		len(report.Failed),
		report.Stats.Datagrams,
		report.Stats.DecodeErrors,
		report.Duration.Round(time.Millisecond))
}
