package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"firestige.xyz/segrecv/internal/source/pcapfile"
)

func newReplayCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <capture>",
		Short: "Reassemble a job from a pcap or pcapng capture",
		Long: `Reassemble files offline from a packet capture of a transfer.

Every UDP datagram in the capture (optionally only those sent to --port) is fed
to the reassembler in file order. Fragmented IPv4 datagrams are reassembled
first. The command fails if the capture ends before the job is complete.

Examples:
  segrecv replay transfer.pcap
  segrecv replay transfer.pcapng --port 7077 -o ./out`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}

			return withRuntime(cmd, cfg, func(ctx context.Context) error {
				src, err := pcapfile.Open(pcapfile.Config{
					Path: args[0],
					Port: uint16(cfg.Replay.Port),
				})
				if err != nil {
					return err
				}
				_, err = runJob(ctx, cfg, src, cmd.OutOrStdout())
				return err
			})
		},
	}

	cmd.Flags().Int("port", 0, "only replay UDP datagrams sent to this port (overrides replay.port)")
	addJobFlags(cmd)
	return cmd
}
