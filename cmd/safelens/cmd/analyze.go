package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newAnalyzeCmd documents the CLI surface spec.md §6 names, but the
// Safe REST API client, TWAP/ERC-7730 descriptor formatting, and
// consensus-proof fetching it would call are generator-side concerns
// this module does not implement (see spec.md §1's Non-goals): the
// verification core takes a package, it does not produce one.
func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <url>",
		Short: "Fetch an evidence package (unavailable: this build has no generator; use verify)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf(
				"analyze requires a Safe-API evidence generator, which this build does not include; "+
					"fetch %s with your own generator and pipe its output into `safelens verify`", args[0])
		},
	}
}
