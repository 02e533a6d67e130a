package cmd

import (
	"github.com/spf13/cobra"
)

// settingsPath is bound to the persistent --config flag every
// subcommand reads through loadSettings.
var settingsPath string

// NewRootCmd builds the safelens command tree: analyze, verify,
// sources, settings.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "safelens",
		Short: "Locally re-derive and verify Safe multisig transaction evidence",
		Long: "SafeLens verifies a pending Gnosis-Safe transaction's evidence package " +
			"by recomputing its EIP-712 hash, recovering its signatures, and optionally " +
			"walking MPT storage proofs, a consensus envelope, and a simulation replay " +
			"-- without trusting the upstream REST service that supplied them.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&settingsPath, "config", "", "path to a settings YAML file (defaults to the built-in configuration)")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newSourcesCmd())
	root.AddCommand(newSettingsCmd())
	return root
}
