package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/segrecv/internal/config"
)

func newValidateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration (file, defaults and SEGRECV_* environment
overrides) and report the effective settings without receiving anything.

Examples:
  segrecv validate -c segrecv.yml
  SEGRECV_JOB_EXPECTED_FILES=5 segrecv validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}

			remote := cfg.Transport.Remote
			if remote == "" {
				remote = "(passive)"
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"VALID: listen %s, remote %s, %d file(s) per job, output %q, log %s/%s, metrics %v\n",
				cfg.Transport.Listen,
				remote,
				cfg.Job.ExpectedFiles,
				cfg.Job.OutputDir,
				cfg.Log.Level,
				cfg.Log.Format,
				cfg.Metrics.Enabled,
			)
			return nil
		},
	}
}
