// Package calldata cross-checks the API-reported decoding of a Safe
// transaction's call data against a locally re-derived selector and
// ABI decode. It never trusts the reported decoding: a mismatch only
// demotes the "decoded-calldata" source, it never blocks the hash or
// signature checks those depend on independently verified bytes.
package calldata

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safelens/safelens/pkg/reason"
	"github.com/safelens/safelens/pkg/schema"
)

// StepResult is the outcome of cross-checking one call step.
type StepResult struct {
	To                schema.Address
	SelectorVerified  bool
	ParameterMismatches []string
}

// Result is the outcome of cross-checking every call step an evidence
// package exposes.
type Result struct {
	Outcome reason.Code
	Steps   []StepResult
}

// Verify re-derives the selector and ABI-decodes each step's raw
// calldata, comparing both against the API-reported DataDecoded. A nil
// decoded argument (dataDecoded entirely absent) yields api-only; a
// partially-decoded step (present but unparseable types) contributes
// to a partial outcome rather than a hard mismatch.
func Verify(steps []schema.DecodedCallStep) Result {
	if len(steps) == 0 {
		return Result{Outcome: reason.CalldataAPIOnly}
	}

	results := make([]StepResult, 0, len(steps))
	anyMismatch := false
	anyPartial := false

	for _, step := range steps {
		sr, undecodable := verifyStep(step)
		switch {
		case undecodable:
			anyPartial = true
		case !sr.SelectorVerified || len(sr.ParameterMismatches) > 0:
			anyMismatch = true
		}
		results = append(results, sr)
	}

	switch {
	case anyMismatch:
		return Result{Outcome: reason.CalldataMismatch, Steps: results}
	case anyPartial:
		return Result{Outcome: reason.CalldataPartial, Steps: results}
	default:
		return Result{Outcome: reason.CalldataSelfVerified, Steps: results}
	}
}

func verifyStep(step schema.DecodedCallStep) (StepResult, bool) {
	raw := []byte(step.Data)
	sig := methodSignature(step.Method, step.Parameters)
	wantSelector := crypto.Keccak256([]byte(sig))[:4]

	selectorOK := len(raw) >= 4 && string(raw[:4]) == string(wantSelector)
	result := StepResult{To: step.To, SelectorVerified: selectorOK}

	if !selectorOK {
		result.ParameterMismatches = append(result.ParameterMismatches,
			fmt.Sprintf("selector mismatch for %q: raw=%x, recomputed=%x", sig, safePrefix(raw), wantSelector))
		return result, false
	}

	args, err := buildArguments(step.Parameters)
	if err != nil {
		result.ParameterMismatches = append(result.ParameterMismatches, fmt.Sprintf("unparseable parameter types: %v", err))
		return result, true
	}

	decoded, err := args.UnpackValues(raw[4:])
	if err != nil {
		result.ParameterMismatches = append(result.ParameterMismatches, fmt.Sprintf("abi decode failed: %v", err))
		return result, false
	}

	for i, param := range step.Parameters {
		if i >= len(decoded) {
			result.ParameterMismatches = append(result.ParameterMismatches, fmt.Sprintf("parameter %d (%s): missing from local decode", i, param.Name))
			continue
		}
		if !valuesEqual(param.Type, decoded[i], param.Value) {
			result.ParameterMismatches = append(result.ParameterMismatches,
				fmt.Sprintf("parameter %d (%s): reported %q does not match decoded value", i, param.Name, param.Value))
		}
	}

	return result, false
}

// methodSignature reconstructs "name(type1,type2,...)" from the
// reported method name and parameter types, the exact preimage the
// 4-byte selector is keccak256'd from.
func methodSignature(name string, params []schema.DecodedParameter) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(types, ","))
}

func buildArguments(params []schema.DecodedParameter) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(params))
	for _, p := range params {
		t, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		args = append(args, abi.Argument{Name: p.Name, Type: t})
	}
	return args, nil
}

// valuesEqual compares a locally ABI-decoded value against the
// API-reported string form, applying per-type equality semantics:
// addresses are case-insensitive, integers compare by numeric value
// via their decimal string, everything else by exact string match of
// fmt.Sprint.
func valuesEqual(typ string, decoded any, reported string) bool {
	switch {
	case strings.HasPrefix(typ, "address"):
		addr, ok := decoded.(common.Address)
		if !ok {
			return false
		}
		return strings.EqualFold(addr.Hex(), reported)
	case strings.HasPrefix(typ, "uint") || strings.HasPrefix(typ, "int"):
		return fmt.Sprint(decoded) == strings.TrimSpace(reported)
	case strings.HasPrefix(typ, "bytes") || typ == "string":
		return fmt.Sprintf("%v", decoded) == reported || fmt.Sprintf("%x", decoded) == strings.TrimPrefix(reported, "0x")
	default:
		return fmt.Sprint(decoded) == reported
	}
}

func safePrefix(b []byte) []byte {
	if len(b) < 4 {
		return b
	}
	return b[:4]
}
