package verify

import (
	"context"
	"testing"

	"github.com/safelens/safelens/pkg/trust"
)

const minimalFixture = `{
	"version": "1.0",
	"chainId": 1,
	"safeAddress": "0x111111111111111111111111111111111111111a",
	"safeTxHash": "0x222222222222222222222222222222222222222222222222222222222222222a",
	"transaction": {
		"to": "0x333333333333333333333333333333333333333b",
		"value": "0",
		"data": "0x",
		"operation": 0,
		"safeTxGas": "0",
		"baseGas": "0",
		"gasPrice": "0",
		"gasToken": "0x0000000000000000000000000000000000000000",
		"refundReceiver": "0x0000000000000000000000000000000000000000",
		"nonce": "4"
	},
	"confirmations": [
		{"owner": "0x444444444444444444444444444444444444444c", "signature": "0x00"}
	],
	"confirmationsRequired": 1,
	"exportContract": {"fullyVerifiable": false, "reasons": ["missing-rpc-url"]},
	"packagedAt": "2026-01-01T00:00:00Z"
}`

func TestRunInvalidJSONIsFatal(t *testing.T) {
	_, err := Run(context.Background(), []byte("{not json"), Options{})
	if err == nil {
		t.Fatal("expected a fatal parse error")
	}
}

func TestRunReportShapeIsTenSlots(t *testing.T) {
	report, err := Run(context.Background(), []byte(minimalFixture), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Sources) != 10 {
		t.Fatalf("len(Sources) = %d, want 10", len(report.Sources))
	}
	// The package's safeTxHash claim does not match its own transaction
	// fields, so the hash-recompute source must be the one reporting it.
	if report.HashMatch {
		t.Fatalf("expected hash mismatch for a fixture with an arbitrary claimed hash")
	}
	if report.Verdict != trust.VerdictUnsupported {
		t.Errorf("Verdict = %s, want %s", report.Verdict, trust.VerdictUnsupported)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := Run(ctx, []byte(minimalFixture), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Verdict != trust.VerdictCancelled && report.Verdict != trust.VerdictUnsupported {
		t.Errorf("Verdict = %s, want verification-cancelled or evidence-does-not-support-claim", report.Verdict)
	}
}
