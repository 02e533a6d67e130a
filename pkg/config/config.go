// Package config loads SafeLens's operator-facing settings: default
// RPC endpoints (display/generator use only -- the verification core
// never dials them), the beacon network parameter table C6 needs to
// compute a sync-committee signing domain, per-mode consensus envelope
// staleness bounds, and CLI output preferences. Layered the way the
// retrieved pack's cosmos-evm forks do it: a YAML file merged with
// SAFELENS_-prefixed environment variables via viper, never a bespoke
// parser. Command-line flags are not merged into the settings.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/safelens/safelens/pkg/consensus/beacon"
)

// RPCEndpoint is one chain's default JSON-RPC URL, consumed only by
// the generator/CLI layer for fetching evidence; the verification core
// never reads this field.
type RPCEndpoint struct {
	ChainID uint64 `yaml:"chainId" mapstructure:"chainId"`
	URL     string `yaml:"url" mapstructure:"url"`
}

// NetworkParams is the YAML-facing mirror of beacon.NetworkParams: hex
// strings on the wire, fixed-size arrays once resolved.
type NetworkParams struct {
	GenesisValidatorsRoot string `yaml:"genesisValidatorsRoot" mapstructure:"genesisValidatorsRoot"`
	ForkVersion           string `yaml:"forkVersion" mapstructure:"forkVersion"`
}

// Resolve converts the hex-encoded wire form into the fixed-size form
// pkg/consensus/beacon consumes.
func (p NetworkParams) Resolve() (beacon.NetworkParams, error) {
	var out beacon.NetworkParams
	root, err := decodeFixed(p.GenesisValidatorsRoot, 32)
	if err != nil {
		return out, fmt.Errorf("genesisValidatorsRoot: %w", err)
	}
	fork, err := decodeFixed(p.ForkVersion, 4)
	if err != nil {
		return out, fmt.Errorf("forkVersion: %w", err)
	}
	copy(out.GenesisValidatorsRoot[:], root)
	copy(out.ForkVersion[:], fork)
	return out, nil
}

func decodeFixed(s string, width int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != width {
		return nil, fmt.Errorf("expected %d bytes, got %d", width, len(b))
	}
	return b, nil
}

// ConsensusSettings configures C6: the beacon network table and the
// per-mode staleness bound the envelope verifier enforces.
type ConsensusSettings struct {
	Networks        map[string]NetworkParams `yaml:"networks" mapstructure:"networks"`
	StalenessBounds map[string]time.Duration `yaml:"stalenessBounds" mapstructure:"stalenessBounds"`
}

// OutputSettings controls how the CLI renders a report; never an input
// to any trust decision.
type OutputSettings struct {
	Format string `yaml:"format" mapstructure:"format"` // "table" or "json"
	Color  bool   `yaml:"color" mapstructure:"color"`
}

// Settings is the fully-resolved configuration tree. Load does not
// validate it; malformed network entries surface only when
// NetworkTable resolves them.
type Settings struct {
	RPCEndpoints []RPCEndpoint     `yaml:"rpcEndpoints" mapstructure:"rpcEndpoints"`
	Consensus    ConsensusSettings `yaml:"consensus" mapstructure:"consensus"`
	Output       OutputSettings    `yaml:"output" mapstructure:"output"`
}

// Default returns SafeLens's built-in settings: mainnet/sepolia RPC
// placeholders, the mainnet and Sepolia beacon networks used by the
// Ethereum consensus mode, and a 12-hour OP-Stack/Linea staleness bound.
func Default() *Settings {
	return &Settings{
		RPCEndpoints: []RPCEndpoint{
			{ChainID: 1, URL: "https://ethereum-rpc.publicnode.com"},
			{ChainID: 11155111, URL: "https://ethereum-sepolia-rpc.publicnode.com"},
		},
		Consensus: ConsensusSettings{
			Networks: map[string]NetworkParams{
				"mainnet": {
					GenesisValidatorsRoot: "0x4b363db94e286120d76eb905340fdd4e54bfe9f06bf33ff6cf5ad27f511bfe95",
					ForkVersion:           "0x04000000",
				},
				"sepolia": {
					GenesisValidatorsRoot: "0xd8ea171f3c94aea21ebc42a1ed61052acf3f9209c00e4efbaaddac09ed9b8078",
					ForkVersion:           "0x90000069",
				},
			},
			StalenessBounds: map[string]time.Duration{
				"opstack": 12 * time.Hour,
				"linea":   12 * time.Hour,
			},
		},
		Output: OutputSettings{Format: "table", Color: true},
	}
}

// Load merges environment variables (prefixed SAFELENS_) and an
// optional YAML file at path over the built-in defaults, returning a
// fully resolved Settings. A missing file at path is not an error:
// Load falls back to defaults plus any environment overrides.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("safelens")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	raw, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("config: marshal defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("config: load built-in defaults: %w", err)
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &settings, nil
}

// WriteDefault writes the built-in default settings to path as YAML,
// the implementation of `settings init`.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal defaults: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// NetworkTable resolves every configured beacon network into the form
// pkg/consensus consumes, skipping (and never silently ignoring --
// callers should surface) any entry with malformed hex.
func (s *Settings) NetworkTable() (map[string]beacon.NetworkParams, []error) {
	out := make(map[string]beacon.NetworkParams, len(s.Consensus.Networks))
	var errs []error
	for name, params := range s.Consensus.Networks {
		resolved, err := params.Resolve()
		if err != nil {
			errs = append(errs, fmt.Errorf("network %q: %w", name, err))
			continue
		}
		out[name] = resolved
	}
	return out, errs
}
