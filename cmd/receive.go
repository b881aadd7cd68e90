package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"firestige.xyz/segrecv/internal/source/udp"
)

func newReceiveCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive a job from a live UDP sender",
		Long: `Receive files from a UDP sender and write them once all have arrived.

With a remote configured the socket is connected to it and a zero-filled hello
datagram asks the sender to start transmitting. Without one, datagrams from any
sender are accepted.

Examples:
  segrecv receive                                   # defaults: listen 0.0.0.0:7077, remote 127.0.0.1:6014
  segrecv receive -o ./out --progress               # write to ./out, print a dot per packet
  segrecv receive --remote "" --listen :9000        # passive mode, no hello
  segrecv receive -c segrecv.yml --expected-files 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}

			return withRuntime(cmd, cfg, func(ctx context.Context) error {
				src, err := udp.New(udp.Config{
					Listen:       cfg.Transport.Listen,
					Remote:       cfg.Transport.Remote,
					HelloSize:    cfg.Transport.HelloSize,
					ReadBuffer:   cfg.Transport.ReadBuffer,
					PollInterval: cfg.Transport.PollDuration(),
				})
				if err != nil {
					return err
				}
				_, err = runJob(ctx, cfg, src, cmd.OutOrStdout())
				return err
			})
		},
	}

	cmd.Flags().String("listen", "", "local bind address (overrides transport.listen)")
	cmd.Flags().String("remote", "", `sender address, "" for passive mode (overrides transport.remote)`)
	addJobFlags(cmd)
	return cmd
}
