package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/safelens/safelens/pkg/config"
	"github.com/safelens/safelens/pkg/consensus"
	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
	"github.com/safelens/safelens/pkg/trust"
	"github.com/safelens/safelens/pkg/verify"
)

func newVerifyCmd() *cobra.Command {
	var (
		filePath   string
		jsonInline string
		strict     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an evidence package read from --file, --json, or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readEvidence(cmd, filePath, jsonInline)
			if err != nil {
				return err
			}

			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			networks, resolveErrs := settings.NetworkTable()
			for _, e := range resolveErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}

			stalenessBounds := make(consensus.StalenessBounds, len(settings.Consensus.StalenessBounds))
			for mode, bound := range settings.Consensus.StalenessBounds {
				stalenessBounds[schema.ConsensusMode(mode)] = bound
			}

			report, err := verify.Run(context.Background(), raw, verify.Options{
				Strict:          strict,
				Networks:        networks,
				StalenessBounds: stalenessBounds,
			})
			if err != nil {
				return fmt.Errorf("evidence package rejected: %w", err)
			}

			if asJSON || settings.Output.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}

			return exitError(report)
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "path to an evidence package JSON file")
	cmd.Flags().StringVar(&jsonInline, "json", "", "evidence package JSON given directly on the command line")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject unrecognized top-level fields instead of warning")
	cmd.Flags().BoolVar(&asJSON, "output-json", false, "print the report as JSON instead of a table")
	return cmd
}

func readEvidence(cmd *cobra.Command, filePath, jsonInline string) ([]byte, error) {
	switch {
	case filePath != "":
		return os.ReadFile(filePath)
	case jsonInline != "":
		return []byte(jsonInline), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading evidence package from stdin: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("no evidence package supplied: pass --file, --json, or pipe JSON on stdin")
		}
		return data, nil
	}
}

func renderReport(w io.Writer, report *trust.Report) {
	fmt.Fprintf(w, "verdict: %s\n", report.Verdict)
	fmt.Fprintf(w, "hashMatch: %v\n", report.HashMatch)
	fmt.Fprintf(w, "signatures: %d/%d valid\n", report.SignaturesValid, report.SignaturesNeeded)
	if report.Proposer != nil {
		fmt.Fprintf(w, "proposer: %s\n", report.Proposer.Hex())
	}
	if report.ConsensusTrustDecisionReason != "" {
		fmt.Fprintf(w, "consensusTrustDecisionReason: %s\n", report.ConsensusTrustDecisionReason)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tTRUST\tSUMMARY")
	for _, src := range report.Sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", src.ID, src.Status, src.Trust, src.Summary)
	}
	tw.Flush()
}

// exitError makes verify exit non-zero when hashMatch=false or the
// signatures source is in error. That source errors for an invalid
// signature and also when fewer valid signatures than
// confirmationsRequired are present, so a package still short of
// confirmations exits non-zero as well. Other trust downgrades
// (warnings, api-sourced labels) never set a non-zero exit.
func exitError(report *trust.Report) error {
	if !report.HashMatch {
		return fmt.Errorf("safeTxHash mismatch")
	}
	for _, src := range report.Sources {
		if src.ID == reason.SourceSignatures && src.Status == reason.StatusError {
			return fmt.Errorf("signature verification failed")
		}
	}
	return nil
}
