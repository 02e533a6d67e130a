package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/safelens/safelens/pkg/reason"
)

// knownTopLevelFields lists every JSON key EvidencePackage understands,
// used to compute UnknownFields in lenient mode.
var knownTopLevelFields = map[string]bool{
	"version":               true,
	"chainId":                true,
	"safeAddress":            true,
	"safeTxHash":             true,
	"transaction":            true,
	"confirmations":          true,
	"confirmationsRequired":  true,
	"dataDecoded":            true,
	"onchainPolicyProof":     true,
	"consensusProof":         true,
	"simulation":             true,
	"simulationWitness":      true,
	"exportContract":         true,
	"packagedAt":             true,
	"sources":                true,
}

// ParseError wraps a schema-stage failure with the stable reason.Code
// that should be attached to the evidence-package source.
type ParseError struct {
	Code    reason.Code
	Message string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newParseError(code reason.Code, format string, args ...interface{}) *ParseError {
	return &ParseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Strict, when true, makes Parse reject any unrecognized top-level
// field as a schema-violation instead of recording it for a warning.
type Options struct {
	Strict bool
}

// Parse decodes and validates raw evidence-package JSON. It is the only
// function in SafeLens permitted to read untrusted bytes; every
// downstream component consumes the returned *EvidencePackage only.
func Parse(data []byte, opts Options) (*EvidencePackage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newParseError(reason.ErrInvalidJSON, "%v", err)
	}

	var unknown []string
	for key := range raw {
		if !knownTopLevelFields[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 && opts.Strict {
		return nil, newParseError(reason.ErrSchemaViolation, "unrecognized field(s): %v", unknown)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var pkg EvidencePackage
	if err := dec.Decode(&pkg); err != nil {
		return nil, newParseError(reason.ErrInvalidJSON, "%v", err)
	}
	pkg.unknownFields = unknown

	if err := validate(&pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func validate(pkg *EvidencePackage) error {
	if !KnownVersions[pkg.Version] {
		return newParseError(reason.ErrUnsupportedVersion, "unsupported version %q", pkg.Version)
	}
	if pkg.ChainID == 0 {
		return newParseError(reason.ErrSchemaViolation, "chainId is required")
	}
	if pkg.SafeAddress == (Address{}) {
		return newParseError(reason.ErrSchemaViolation, "safeAddress is required")
	}
	if pkg.SafeTxHash.IsZero() {
		return newParseError(reason.ErrSchemaViolation, "safeTxHash is required")
	}
	if pkg.ConfirmationsRequired == 0 {
		return newParseError(reason.ErrSchemaViolation, "confirmationsRequired must be non-zero")
	}
	if pkg.Transaction.Operation != OperationCall && pkg.Transaction.Operation != OperationDelegateCall {
		return newParseError(reason.ErrSchemaViolation, "transaction.operation must be 0 or 1, got %d", pkg.Transaction.Operation)
	}
	if pkg.PackagedAt.IsZero() {
		return newParseError(reason.ErrSchemaViolation, "packagedAt is required")
	}

	if cp := pkg.ConsensusProof; cp != nil {
		switch cp.Mode {
		case ConsensusModeBeacon:
			if cp.Beacon == nil {
				return newParseError(reason.ErrSchemaViolation, "consensusProof.beacon required when consensusMode is beacon")
			}
		case ConsensusModeOPStack, ConsensusModeLinea:
			if cp.Envelope == nil {
				return newParseError(reason.ErrSchemaViolation, "consensusProof.envelope required when consensusMode is %s", cp.Mode)
			}
		default:
			return newParseError(reason.ErrSchemaViolation, "unrecognized consensusMode %q", cp.Mode)
		}
	}

	if sw := pkg.SimulationWitness; sw != nil && pkg.Simulation == nil {
		_ = sw
		return newParseError(reason.ErrSchemaViolation, "simulationWitness present without simulation")
	}

	return nil
}
