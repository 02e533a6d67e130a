package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/safelens/safelens/pkg/reason"
)

var sourceDescriptions = map[reason.SourceID]string{
	reason.SourceEvidencePackage:    "Schema validation and canonicalization of the package itself",
	reason.SourceHashRecompute:      "Independent recomputation of the EIP-712 safeTxHash",
	reason.SourceSignatures:         "ECDSA signature recovery against the recomputed hash",
	reason.SourceSignatureScheme:    "Coverage of pre-approved-hash and EIP-1271 signature schemes",
	reason.SourceOwnersThreshold:    "Reconstructed owner set and threshold",
	reason.SourceOnchainPolicyProof: "MPT account/storage proof backing the Safe's onchain configuration",
	reason.SourceDecodedCalldata:    "Cross-check of the reported calldata decoding against raw bytes",
	reason.SourceSimulation:         "Local EVM replay of the packaged simulation",
	reason.SourceConsensusProof:     "Beacon light-client or execution-envelope binding to finalized state",
	reason.SourceSettings:           "Local display and endpoint preferences; never a trust input",
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the ten stable VerificationSource slot identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tDESCRIPTION")
			for i, id := range reason.OrderedSourceIDs {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, id, sourceDescriptions[id])
			}
			return tw.Flush()
		},
	}
}
