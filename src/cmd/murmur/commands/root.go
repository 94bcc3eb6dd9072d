package commands

import (
	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/murmur/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

// NewRootCmd returns the root command for Murmur. Without a subcommand it
// runs a node, which is how a test harness starts the binary.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "murmur",
		Short:   "murmur broadcast node",
		PreRunE: loadConfig,
		RunE:    runMurmur,
	}
	AddRunFlags(cmd)
	return cmd
}
