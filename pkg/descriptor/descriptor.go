// Package descriptor holds human-readable method/parameter labels for
// a cross-checked calldata step; neither pkg/verify nor cmd/safelens
// reads them. It is strictly read-only and never contributes to a trust decision: a
// lookup miss yields an empty Descriptor, never an error, and C4's
// comparison between raw bytes and the reported decoding runs
// identically whether or not a descriptor is registered for the
// selector involved.
package descriptor

import (
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safelens/safelens/pkg/schema"
)

// Descriptor is one human-readable label for a (chainId, address,
// selector) triple, the ERC-7730-style metadata a generator may have
// attached for display.
type Descriptor struct {
	Method     string
	ParamNames []string
	Source     string // e.g. "erc7730", "4byte-directory"
}

// key packs the three lookup dimensions into one flat, hashable value.
type key struct {
	chainID  uint64
	address  schema.Address
	selector [4]byte
}

// Registry is a read-mostly arena-plus-index: descriptors live in a
// flat slice, and a map from key to index resolves a lookup. Nothing
// ever points from a Descriptor back into the index, so the arena can
// be rebuilt or extended without invalidating returned values.
type Registry struct {
	mu      sync.RWMutex
	arena   []Descriptor
	index   map[key]int
}

// New builds an empty registry. Register entries before first lookup;
// concurrent lookups are safe once population is complete.
func New() *Registry {
	return &Registry{index: make(map[key]int)}
}

// Register adds or replaces the descriptor for (chainID, address, selector).
func (r *Registry) Register(chainID uint64, address schema.Address, selector [4]byte, d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{chainID: chainID, address: address, selector: selector}
	if idx, ok := r.index[k]; ok {
		r.arena[idx] = d
		return
	}
	r.arena = append(r.arena, d)
	r.index[k] = len(r.arena) - 1
}

// Lookup resolves (chainID, address, selector) to its descriptor. ok
// is false on a miss; callers must not treat a miss as a trust signal.
func (r *Registry) Lookup(chainID uint64, address schema.Address, selector [4]byte) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := key{chainID: chainID, address: address, selector: selector}
	idx, ok := r.index[k]
	if !ok {
		return Descriptor{}, false
	}
	return r.arena[idx], true
}

// Len reports how many descriptors are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.arena)
}

// SelectorFromData extracts the 4-byte selector from raw calldata,
// returning the zero selector for data shorter than 4 bytes.
func SelectorFromData(data []byte) [4]byte {
	var sel [4]byte
	if len(data) >= 4 {
		copy(sel[:], data[:4])
	}
	return sel
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, built exactly once
// regardless of how many goroutines race to call Default concurrently.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
		seedWellKnown(defaultRegistry)
	})
	return defaultRegistry
}

// seedWellKnown registers labels for the Safe multisend and
// execTransaction selectors; any other selector has no registry entry.
func seedWellKnown(r *Registry) {
	multiSend := selectorOf("multiSend(bytes)")
	execTransaction := selectorOf("execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)")
	r.Register(0, schema.Address{}, multiSend, Descriptor{Method: "multiSend", ParamNames: []string{"transactions"}, Source: "safelens-builtin"})
	r.Register(0, schema.Address{}, execTransaction, Descriptor{
		Method: "execTransaction",
		ParamNames: []string{
			"to", "value", "data", "operation", "safeTxGas", "baseGas",
			"gasPrice", "gasToken", "refundReceiver", "signatures",
		},
		Source: "safelens-builtin",
	})
}

func selectorOf(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}
