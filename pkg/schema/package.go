package schema

import "time"

// KnownVersions is the closed set of evidence-package schema versions
// this build understands. A package carrying any other version is
// rejected with ErrUnsupportedVersion before any other component runs.
var KnownVersions = map[string]bool{
	"1.0": true,
	"1.1": true,
}

// SafeTransaction mirrors the ten EIP-712 SafeTx struct fields exactly,
// in the order the struct hash is computed over.
type SafeTransaction struct {
	To             Address   `json:"to"`
	Value          BigInt    `json:"value"`
	Data           Bytes     `json:"data"`
	Operation      Operation `json:"operation"`
	SafeTxGas      BigInt    `json:"safeTxGas"`
	BaseGas        BigInt    `json:"baseGas"`
	GasPrice       BigInt    `json:"gasPrice"`
	GasToken       Address   `json:"gasToken"`
	RefundReceiver Address   `json:"refundReceiver"`
	Nonce          BigInt    `json:"nonce"`
}

// Confirmation is one owner's packed signature over the safeTxHash.
type Confirmation struct {
	Owner     Address `json:"owner"`
	Signature Bytes   `json:"signature"`
}

// DecodedCallStep is one API-reported decoding of a call (the top-level
// execTransaction call, or a decoded multisend child). SafeLens never
// trusts this; C4 only compares it against the raw bytes.
type DecodedCallStep struct {
	To         Address            `json:"to"`
	Data       Bytes              `json:"data"`
	Method     string             `json:"method"`
	Parameters []DecodedParameter `json:"parameters"`
}

// DecodedParameter is one API-reported argument of a DecodedCallStep.
type DecodedParameter struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DataDecoded bundles the API's decoding of the top-level call and any
// multisend children it unpacked.
type DataDecoded struct {
	Steps []DecodedCallStep `json:"steps"`
}

// AccountProofNode is one RLP-encoded MPT node on a proof path.
type AccountProofNode = Bytes

// StorageProofEntry is one witnessed storage slot and its MPT path.
type StorageProofEntry struct {
	Key   Hash    `json:"key"`
	Value Bytes   `json:"value"`
	Nodes []Bytes `json:"nodes"`
}

// DecodedPolicy is the Safe configuration the generator claims the
// account proof + storage proofs witness.
type DecodedPolicy struct {
	Owners          []Address `json:"owners"`
	Threshold       uint64    `json:"threshold"`
	Nonce           BigInt    `json:"nonce"`
	Modules         []Address `json:"modules"`
	Guard           Address   `json:"guard"`
	FallbackHandler Address   `json:"fallbackHandler"`
	Singleton       Address   `json:"singleton"`
}

// OnchainPolicyProof witnesses the Safe's configuration at a pinned
// execution block via an MPT account proof plus per-slot storage proofs.
type OnchainPolicyProof struct {
	BlockNumber   uint64              `json:"blockNumber"`
	StateRoot     Hash                `json:"stateRoot"`
	AccountNodes  []Bytes             `json:"accountProofNodes"`
	AccountRLP    Bytes               `json:"accountRlp,omitempty"`
	StorageProof  []StorageProofEntry `json:"storageProof"`
	DecodedPolicy DecodedPolicy       `json:"decodedPolicy"`
	Trust         TrustLabel          `json:"trust"`
}

// LightClientBootstrap is the JSON serialization of a beacon light
// client bootstrap object (trusted checkpoint + current sync committee).
type LightClientBootstrap struct {
	Header                     BeaconHeader `json:"header"`
	CurrentSyncCommittee       SyncCommittee `json:"current_sync_committee"`
	CurrentSyncCommitteeBranch []Hash        `json:"current_sync_committee_branch"`
}

// BeaconHeader is the subset of a beacon block header the light client
// verifies branches against.
type BeaconHeader struct {
	Slot          uint64 `json:"slot"`
	ProposerIndex uint64 `json:"proposer_index"`
	ParentRoot    Hash   `json:"parent_root"`
	StateRoot     Hash   `json:"state_root"`
	BodyRoot      Hash   `json:"body_root"`
}

// SyncCommittee is the 512-member committee whose aggregate BLS
// signature attests to recent beacon headers.
type SyncCommittee struct {
	Pubkeys         []Bytes `json:"pubkeys"`
	AggregatePubkey Bytes   `json:"aggregate_pubkey"`
}

// SyncAggregate is a sync committee's participation bitmask and
// aggregate BLS signature over one attested header.
type SyncAggregate struct {
	SyncCommitteeBits      Bytes `json:"sync_committee_bits"`
	SyncCommitteeSignature Bytes `json:"sync_committee_signature"`
}

// LightClientUpdate carries one step of sync-committee progression.
type LightClientUpdate struct {
	AttestedHeader          BeaconHeader  `json:"attested_header"`
	NextSyncCommittee       *SyncCommittee `json:"next_sync_committee,omitempty"`
	NextSyncCommitteeBranch []Hash         `json:"next_sync_committee_branch,omitempty"`
	FinalizedHeader         *BeaconHeader  `json:"finalized_header,omitempty"`
	FinalityBranch          []Hash         `json:"finality_branch,omitempty"`
	SyncAggregate           SyncAggregate  `json:"sync_aggregate"`
	SignatureSlot           uint64         `json:"signature_slot"`
}

// LightClientFinalityUpdate is the final proof step binding the
// attested header's finalized checkpoint to a state root / execution
// payload.
type LightClientFinalityUpdate struct {
	AttestedHeader  BeaconHeader  `json:"attested_header"`
	FinalizedHeader BeaconHeader  `json:"finalized_header"`
	FinalityBranch  []Hash        `json:"finality_branch"`
	SyncAggregate   SyncAggregate `json:"sync_aggregate"`
	SignatureSlot   uint64        `json:"signature_slot"`
}

// ExecutionEnvelope is a deterministic execution-header payload used
// by the OP-Stack/Linea consensus modes in place of Beacon light-client
// data.
type ExecutionEnvelope struct {
	Number     uint64    `json:"number"`
	BlockHash  Hash      `json:"hash"`
	ParentHash Hash      `json:"parentHash"`
	StateRoot  Hash      `json:"stateRoot"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConsensusProof is a tagged union on ConsensusMode. Exactly one of
// Beacon or Envelope is populated, matching the field the mode selects.
type ConsensusProof struct {
	Mode ConsensusMode `json:"consensusMode"`

	// Populated when Mode == ConsensusModeBeacon.
	Beacon *BeaconConsensusProof `json:"beacon,omitempty"`

	// Populated when Mode is ConsensusModeOPStack or ConsensusModeLinea.
	Envelope *EnvelopeConsensusProof `json:"envelope,omitempty"`
}

// BeaconConsensusProof is the beacon-mode payload of ConsensusProof.
type BeaconConsensusProof struct {
	Checkpoint            Hash                       `json:"checkpoint"`
	Network                string                     `json:"network"`
	Bootstrap              LightClientBootstrap       `json:"bootstrap"`
	Updates                []LightClientUpdate        `json:"updates"`
	FinalityUpdate         LightClientFinalityUpdate  `json:"finalityUpdate"`
	FinalizedSlot          uint64                     `json:"slot"`
	ClaimedStateRoot       Hash                       `json:"stateRoot"`
	ClaimedBlockNumber     uint64                     `json:"blockNumber"`
}

// EnvelopeConsensusProof is the OP-Stack/Linea payload of ConsensusProof.
type EnvelopeConsensusProof struct {
	ChainID      uint64             `json:"chainId"`
	ProofPayload ExecutionEnvelope  `json:"proofPayload"`
}

// LogEntry is one EVM log entry, ordered.
type LogEntry struct {
	Address Address `json:"address"`
	Topics  []Hash  `json:"topics"`
	Data    Bytes   `json:"data"`
}

// NativeTransfer is a native-value transfer observed during simulation.
type NativeTransfer struct {
	From  Address `json:"from"`
	To    Address `json:"to"`
	Value BigInt  `json:"value"`
}

// Simulation is the packaged outcome of the generator's remote
// simulation of execTransaction.
type Simulation struct {
	Success         bool             `json:"success"`
	ReturnData      Bytes            `json:"returnData"`
	GasUsed         uint64           `json:"gasUsed"`
	Logs            []LogEntry       `json:"logs"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers,omitempty"`
	BlockNumber     uint64           `json:"blockNumber"`
	TraceAvailable  bool             `json:"traceAvailable"`
}

// OverriddenSlot is one storage slot the generator declares it forced
// to a specific value before simulating (e.g. to inject a owner's
// balance for gas estimation).
type OverriddenSlot struct {
	Key   Hash `json:"key"`
	Value Hash `json:"value"`
}

// SimulationWitness proves the world state a packaged Simulation ran
// against, sufficient to replay it locally.
type SimulationWitness struct {
	ChainID         uint64              `json:"chainId"`
	SafeAddress     Address             `json:"safeAddress"`
	BlockNumber     uint64              `json:"blockNumber"`
	StateRoot       Hash                `json:"stateRoot"`
	SafeAccountNodes []Bytes            `json:"safeAccountProofNodes"`
	SafeAccountRLP  Bytes               `json:"safeAccountRlp,omitempty"`
	OverriddenSlots []OverriddenSlot    `json:"overriddenSlots"`
	SimulationDigest Hash               `json:"simulationDigest"`
}

// ExportContract describes what the generator did, and why the package
// it produced is "fully verifiable" or only "partial".
type ExportContract struct {
	FullyVerifiable bool     `json:"fullyVerifiable"`
	Reasons         []string `json:"reasons,omitempty"`
}

// SourcesMetadata is optional free-form provenance the generator
// attaches; the core never reads trust decisions from it.
type SourcesMetadata map[string]string

// EvidencePackage is the root document: one pending Safe transaction
// plus every proof artifact the generator was able to gather for it.
type EvidencePackage struct {
	Version               string              `json:"version"`
	ChainID               uint64              `json:"chainId"`
	SafeAddress           Address             `json:"safeAddress"`
	SafeTxHash            Hash                `json:"safeTxHash"`
	Transaction           SafeTransaction     `json:"transaction"`
	Confirmations         []Confirmation      `json:"confirmations"`
	ConfirmationsRequired uint64              `json:"confirmationsRequired"`
	DataDecoded           *DataDecoded        `json:"dataDecoded,omitempty"`
	OnchainPolicyProof    *OnchainPolicyProof `json:"onchainPolicyProof,omitempty"`
	ConsensusProof        *ConsensusProof     `json:"consensusProof,omitempty"`
	Simulation            *Simulation         `json:"simulation,omitempty"`
	SimulationWitness     *SimulationWitness  `json:"simulationWitness,omitempty"`
	ExportContract        ExportContract      `json:"exportContract"`
	PackagedAt            time.Time           `json:"packagedAt"`
	Sources               SourcesMetadata     `json:"sources,omitempty"`

	// unknownFields records top-level keys Parse didn't recognize, so
	// lenient mode can surface them as a warning without aborting.
	unknownFields []string
}

// UnknownFields returns the top-level JSON keys Parse ignored because
// they fell outside every documented extension point. Populated only
// in lenient mode; strict mode rejects these during Parse instead.
func (p *EvidencePackage) UnknownFields() []string { return p.unknownFields }
