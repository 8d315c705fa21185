package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the sifterctl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "sifterctl",
		Short: "Operator tool for the FRB sifter",
		Long: `sifterctl inspects what the sifter has stored and talks to a running
sifter over gRPC.

Exposure grids are read from the exposure directory, events from the sqlite
event database. The send and check-config commands act as an L1 search node.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}
	root.AddCommand(
		newExposureCmd(),
		newDBCmd(),
		newEventsCmd(),
		newSendCmd(),
		newCheckConfigCmd(),
	)
	return root
}
