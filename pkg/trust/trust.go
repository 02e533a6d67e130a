// Package trust composes the independent outcomes every other
// verification component produces into the ordered VerificationSource
// list and overall verdict the report surfaces. It is a pure function
// of those outcomes: it never re-derives a cryptographic fact itself,
// only decides how each fact should be labelled and ordered.
package trust

import (
	"github.com/safelens/safelens/pkg/calldata"
	"github.com/safelens/safelens/pkg/consensus"
	"github.com/safelens/safelens/pkg/hashing"
	"github.com/safelens/safelens/pkg/policyproof"
	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
	"github.com/safelens/safelens/pkg/signature"
	"github.com/safelens/safelens/pkg/simreplay"
)

// VerificationSource is one rendered slot of the report, keyed by a
// stable SourceID from reason.OrderedSourceIDs.
type VerificationSource struct {
	ID         reason.SourceID    `json:"id"`
	Status     reason.SourceStatus `json:"status"`
	Trust      reason.TrustLevel  `json:"trust"`
	Summary    string             `json:"summary"`
	Detail     string             `json:"detail,omitempty"`
	ReasonCode reason.Code        `json:"reasonCode,omitempty"`
}

// Verdict is the overall, coarse-grained outcome of one verification run.
type Verdict string

const (
	VerdictSupported    Verdict = "evidence-supports-claim"
	VerdictUnsupported  Verdict = "evidence-does-not-support-claim"
	VerdictCancelled    Verdict = "verification-cancelled"
)

// Context bundles every per-component outcome the composer consumes.
// Nil pointers mean "that proof/result was absent from the package",
// distinct from a present-but-failed result.
type Context struct {
	Package *schema.EvidencePackage

	Hash       hashing.Result
	Signatures signature.Result
	Calldata   calldata.Result

	PolicyProof *policyproof.Result // nil if no onchainPolicyProof
	Consensus   *consensus.Outcome  // nil if no consensusProof
	Simulation  *simreplay.Result   // nil if no simulation+witness

	// Cancelled is set by the pipeline driver when the cooperative
	// cancellation token fired while a component was in flight.
	Cancelled bool
}

// Report is the verifier's complete output for one evidence package.
type Report struct {
	Sources []VerificationSource `json:"sources"`
	Verdict Verdict              `json:"verdict"`

	Proposer          *schema.Address `json:"proposer,omitempty"`
	SignaturesValid   uint64          `json:"signaturesValid"`
	SignaturesNeeded  uint64          `json:"signaturesNeeded"`
	HashMatch         bool            `json:"hashMatch"`
	ComputedHash      schema.Hash     `json:"computedHash"`

	ConsensusTrustDecisionReason reason.ConsensusTrustDecisionReason `json:"consensusTrustDecisionReason,omitempty"`
}

// Compose builds the fixed ten-slot VerificationSource sequence and
// the overall verdict from ctx. It never panics: any unrecognized
// reason code from an upstream component surfaces verbatim rather than
// being replaced.
func Compose(ctx Context) Report {
	report := Report{
		HashMatch:        ctx.Hash.Match,
		ComputedHash:     ctx.Hash.Computed,
		SignaturesValid:  ctx.Signatures.ValidCount,
		SignaturesNeeded: ctx.Package.ConfirmationsRequired,
	}
	if ctx.Signatures.HasProposer {
		p := ctx.Signatures.Proposer
		report.Proposer = &p
	}

	consensusReason := consensusTrustDecisionReason(ctx)
	report.ConsensusTrustDecisionReason = consensusReason
	upgraded := consensusReason == ""

	for _, id := range reason.OrderedSourceIDs {
		report.Sources = append(report.Sources, buildSource(id, ctx, upgraded))
	}

	switch {
	case ctx.Cancelled:
		report.Verdict = VerdictCancelled
	case !ctx.Hash.Match:
		report.Verdict = VerdictUnsupported
	case ctx.Signatures.ValidCount < ctx.Package.ConfirmationsRequired:
		report.Verdict = VerdictUnsupported
	case hasAnyInvalidSignature(ctx.Signatures):
		report.Verdict = VerdictUnsupported
	default:
		report.Verdict = VerdictSupported
	}
	return report
}

// hasAnyInvalidSignature reports whether any confirmation using a
// locally-recoverable scheme (standard ECDSA or its eth-sign wrap)
// failed recovery, or carried an unrecognized v byte. Pre-approved-hash
// and EIP-1271 contract signatures are excluded: those schemes are
// unsupported from package data alone, not proven forged.
func hasAnyInvalidSignature(sig signature.Result) bool {
	for _, o := range sig.Outcomes {
		if !o.Valid && o.Reason == reason.ErrInvalidV {
			return true
		}
		if !o.Valid && o.Reason == reason.ErrInvalidSignature &&
			(o.Scheme == reason.SigSchemeECDSA || o.Scheme == reason.SigSchemeEthSign) {
			return true
		}
	}
	return false
}

func buildSource(id reason.SourceID, ctx Context, upgraded bool) VerificationSource {
	switch id {
	case reason.SourceEvidencePackage:
		return evidencePackageSource(ctx)
	case reason.SourceHashRecompute:
		return hashRecomputeSource(ctx)
	case reason.SourceSignatures:
		return signaturesSource(ctx)
	case reason.SourceSignatureScheme:
		return signatureSchemeSource(ctx)
	case reason.SourceOwnersThreshold:
		return ownersThresholdSource(ctx, upgraded)
	case reason.SourceOnchainPolicyProof:
		return policyProofSource(ctx, upgraded)
	case reason.SourceDecodedCalldata:
		return calldataSource(ctx)
	case reason.SourceSimulation:
		return simulationSource(ctx)
	case reason.SourceConsensusProof:
		return consensusSource(ctx)
	case reason.SourceSettings:
		return settingsSource(ctx)
	default:
		return VerificationSource{ID: id, Status: reason.StatusDisabled, Trust: reason.TrustAPISourced, Summary: "unrecognized source"}
	}
}

func evidencePackageSource(ctx Context) VerificationSource {
	src := VerificationSource{
		ID:      reason.SourceEvidencePackage,
		Status:  reason.StatusEnabled,
		Trust:   reason.TrustSelfVerified,
		Summary: "Evidence package parsed and passed schema validation",
	}
	if unknown := ctx.Package.UnknownFields(); len(unknown) > 0 {
		src.Status = reason.StatusWarning
		src.Detail = "Package contained unrecognized top-level fields accepted in lenient mode"
	}
	return src
}

func hashRecomputeSource(ctx Context) VerificationSource {
	if ctx.Hash.Match {
		return VerificationSource{
			ID:      reason.SourceHashRecompute,
			Status:  reason.StatusEnabled,
			Trust:   reason.TrustSelfVerified,
			Summary: "Recomputed safeTxHash matches the packaged claim",
		}
	}
	return VerificationSource{
		ID:         reason.SourceHashRecompute,
		Status:     reason.StatusError,
		Trust:      reason.TrustSelfVerified,
		Summary:    "Recomputed safeTxHash does not match the packaged claim",
		Detail:     "computed=" + ctx.Hash.Computed.Hex() + " claimed=" + ctx.Hash.Claimed.Hex(),
		ReasonCode: reason.ErrHashMismatch,
	}
}

func signaturesSource(ctx Context) VerificationSource {
	valid := ctx.Signatures.ValidCount
	needed := ctx.Package.ConfirmationsRequired
	if !ctx.Hash.Match {
		return VerificationSource{
			ID:      reason.SourceSignatures,
			Status:  reason.StatusDisabled,
			Trust:   reason.TrustSelfVerified,
			Summary: "Signatures not re-checked because the safeTxHash does not match",
		}
	}
	if valid >= needed && !hasAnyInvalidSignature(ctx.Signatures) {
		return VerificationSource{
			ID:      reason.SourceSignatures,
			Status:  reason.StatusEnabled,
			Trust:   reason.TrustSelfVerified,
			Summary: "All required confirmations recovered to their claimed owners",
		}
	}
	return VerificationSource{
		ID:         reason.SourceSignatures,
		Status:     reason.StatusError,
		Trust:      reason.TrustSelfVerified,
		Summary:    "Fewer valid confirmations than required, or a confirmation failed recovery",
		ReasonCode: reason.ErrInvalidSignature,
	}
}

func signatureSchemeSource(ctx Context) VerificationSource {
	var unsupported int
	for _, o := range ctx.Signatures.Outcomes {
		if o.Scheme == reason.SigSchemePreApproved || o.Scheme == reason.SigSchemeContract {
			unsupported++
		}
	}
	if unsupported == 0 {
		return VerificationSource{
			ID:      reason.SourceSignatureScheme,
			Status:  reason.StatusEnabled,
			Trust:   reason.TrustSelfVerified,
			Summary: "Every confirmation uses an ECDSA scheme the core recovers locally",
		}
	}
	return VerificationSource{
		ID:      reason.SourceSignatureScheme,
		Status:  reason.StatusWarning,
		Trust:   reason.TrustAPISourced,
		Summary: "Pre-approved-hash or EIP-1271 contract signatures present; coverage requires live chain state",
		Detail:  "The local verifier cannot confirm these schemes from package data alone",
	}
}

func ownersThresholdSource(ctx Context, upgraded bool) VerificationSource {
	if ctx.PolicyProof == nil || !ctx.PolicyProof.Valid {
		return VerificationSource{
			ID:         reason.SourceOwnersThreshold,
			Status:     reason.StatusWarning,
			Trust:      reason.TrustAPISourced,
			Summary:    "Owners and threshold taken from the package's own claim, not an onchain proof",
			ReasonCode: reason.ExportMissingOnchainPolicyProof,
		}
	}
	if upgraded {
		return VerificationSource{
			ID:      reason.SourceOwnersThreshold,
			Status:  reason.StatusEnabled,
			Trust:   reason.TrustProofVerified,
			Summary: "Owners and threshold reconstructed from a finality-bound MPT storage proof",
		}
	}
	return VerificationSource{
		ID:      reason.SourceOwnersThreshold,
		Status:  reason.StatusEnabled,
		Trust:   reason.TrustRPCSourced,
		Summary: "Owners and threshold reconstructed from an MPT storage proof not yet bound to finality",
	}
}

func policyProofSource(ctx Context, upgraded bool) VerificationSource {
	if ctx.PolicyProof == nil {
		return VerificationSource{
			ID:         reason.SourceOnchainPolicyProof,
			Status:     reason.StatusDisabled,
			Trust:      reason.TrustAPISourced,
			Summary:    "Package did not include an onchain policy proof",
			ReasonCode: reason.ExportMissingOnchainPolicyProof,
		}
	}
	if !ctx.PolicyProof.Valid {
		detail := "policy proof failed MPT verification or reconstructed fields that do not match the claim"
		if len(ctx.PolicyProof.Mismatches) > 0 {
			detail = ctx.PolicyProof.Mismatches[0]
		}
		return VerificationSource{
			ID:         reason.SourceOnchainPolicyProof,
			Status:     reason.StatusError,
			Trust:      reason.TrustAPISourced,
			Summary:    "Onchain policy proof failed verification",
			Detail:     detail,
			ReasonCode: reason.ErrPolicyProofInvalid,
		}
	}
	trust := reason.TrustRPCSourced
	summary := "Account and storage proofs verified against the claimed state root"
	if upgraded {
		trust = reason.TrustProofVerified
		summary = "Account and storage proofs verified and bound to finalized chain state"
	}
	return VerificationSource{ID: reason.SourceOnchainPolicyProof, Status: reason.StatusEnabled, Trust: trust, Summary: summary}
}

func calldataSource(ctx Context) VerificationSource {
	switch ctx.Calldata.Outcome {
	case reason.CalldataSelfVerified:
		return VerificationSource{ID: reason.SourceDecodedCalldata, Status: reason.StatusEnabled, Trust: reason.TrustSelfVerified, Summary: "Selector and parameters re-derived locally match the reported decoding"}
	case reason.CalldataPartial:
		return VerificationSource{ID: reason.SourceDecodedCalldata, Status: reason.StatusWarning, Trust: reason.TrustAPISourced, Summary: "Some call steps lacked a fully re-decodable parameter set"}
	case reason.CalldataMismatch:
		return VerificationSource{ID: reason.SourceDecodedCalldata, Status: reason.StatusError, Trust: reason.TrustAPISourced, Summary: "Reported decoding does not match the raw calldata", ReasonCode: reason.CalldataMismatch}
	default:
		return VerificationSource{ID: reason.SourceDecodedCalldata, Status: reason.StatusDisabled, Trust: reason.TrustAPISourced, Summary: "Package included no decoded calldata to cross-check"}
	}
}

func simulationSource(ctx Context) VerificationSource {
	if ctx.Simulation == nil {
		return VerificationSource{
			ID:         reason.SourceSimulation,
			Status:     reason.StatusDisabled,
			Trust:      reason.TrustAPISourced,
			Summary:    "Package did not include a simulation or witness",
			ReasonCode: reason.ExportMissingSimulation,
		}
	}
	if ctx.Simulation.Reason == reason.Cancelled {
		return VerificationSource{ID: reason.SourceSimulation, Status: reason.StatusDisabled, Trust: reason.TrustAPISourced, Summary: "Replay cancelled", ReasonCode: reason.Cancelled}
	}
	if ctx.Simulation.Valid {
		return VerificationSource{ID: reason.SourceSimulation, Status: reason.StatusEnabled, Trust: reason.TrustProofVerified, Summary: "Local replay against witnessed state reproduces the packaged outcome"}
	}
	return VerificationSource{
		ID:         reason.SourceSimulation,
		Status:     reason.StatusWarning,
		Trust:      reason.TrustRPCSourced,
		Summary:    "Local replay could not reproduce the packaged simulation outcome",
		Detail:     joinMismatches(ctx.Simulation.Mismatches),
		ReasonCode: ctx.Simulation.Reason,
	}
}

func consensusSource(ctx Context) VerificationSource {
	if ctx.Consensus == nil {
		return VerificationSource{
			ID:         reason.SourceConsensusProof,
			Status:     reason.StatusDisabled,
			Trust:      reason.TrustAPISourced,
			Summary:    "Package did not include a consensus proof",
			ReasonCode: reason.ExportMissingConsensusProof,
		}
	}
	status := reason.ConsensusSourceStatus(ctx.Consensus.Valid, ctx.Consensus.Reason)
	trust := reason.TrustRPCSourced
	summary := "Consensus envelope did not verify"
	code := ctx.Consensus.Reason
	switch {
	case status == reason.StatusEnabled:
		if ctx.Package.ConsensusProof != nil && ctx.Package.ConsensusProof.Mode == schema.ConsensusModeBeacon {
			trust = reason.TrustConsensusVerifiedBeacon
			summary = "Beacon light-client sync-committee signatures verified the finalized execution state"
		} else {
			trust = reason.TrustConsensusVerifiedEnvelope
			summary = "Execution-header envelope matched the expected chain metadata"
		}
	case status == reason.StatusWarning:
		summary = "Envelope integrity checks passed, but assurance is not yet equivalent to Beacon finality"
		if code == "" {
			code = ctx.Consensus.Warning
		}
	default:
		summary = "Consensus verification failed"
	}
	return VerificationSource{ID: reason.SourceConsensusProof, Status: status, Trust: trust, Summary: summary, ReasonCode: code}
}

func settingsSource(ctx Context) VerificationSource {
	_ = ctx
	return VerificationSource{
		ID:      reason.SourceSettings,
		Status:  reason.StatusEnabled,
		Trust:   reason.TrustUserProvided,
		Summary: "Local RPC endpoints and display preferences, never inputs to any trust decision",
	}
}

func joinMismatches(m []string) string {
	out := ""
	for i, s := range m {
		if i > 0 {
			out += "; "
		}
		out += s
	}
	return out
}

// consensusTrustDecisionReason implements §4.6/§4.8's exhaustive
// six-reason table. An empty return means every condition was met and
// the policy-proof trust level upgrades to proof-verified.
func consensusTrustDecisionReason(ctx Context) reason.ConsensusTrustDecisionReason {
	if ctx.Consensus == nil || !ctx.Consensus.Valid {
		return reason.ReasonMissingOrInvalidConsensusResult
	}
	if ctx.PolicyProof == nil || !ctx.PolicyProof.Valid || ctx.Package.OnchainPolicyProof == nil {
		return reason.ReasonMissingConsensusOrPolicyProof
	}
	if ctx.Consensus.VerifiedStateRoot.IsZero() || ctx.Consensus.VerifiedBlockNumber == 0 {
		return reason.ReasonMissingVerifiedRootOrBlock
	}
	if ctx.Consensus.Reason == reason.ErrEnvelopeStateRootMismatch {
		return reason.ReasonStateRootMismatchFlag
	}
	policyProof := ctx.Package.OnchainPolicyProof
	if ctx.Consensus.VerifiedStateRoot != policyProof.StateRoot {
		return reason.ReasonStateRootMismatchPolicyProof
	}
	if ctx.Consensus.VerifiedBlockNumber != policyProof.BlockNumber {
		return reason.ReasonBlockNumberMismatchPolicyProof
	}
	return ""
}
