// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// Execute builds the command tree and runs it against os.Args.
// This is called by main.main().
func Execute() error {
	return newRootCmd().Execute()
}

// newRootCmd builds the command tree. Every call returns fresh flag state.
func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "segrecv",
		Short: "segrecv - receive and reassemble files sent as unordered UDP datagrams",
		Long: `segrecv receives files that a sender splits into small datagrams and
transmits in arbitrary order over UDP. Each datagram is either a Header naming a
file or a numbered Data chunk of it. Once every expected file is complete the
files are written to the output directory.

Files can be received live from a UDP socket or reassembled offline from a
pcap/pcapng capture of the same traffic.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	root.AddCommand(newReceiveCmd(&configFile))
	root.AddCommand(newReplayCmd(&configFile))
	root.AddCommand(newValidateCmd(&configFile))
	return root
}
