package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants. All on-chain values are in base units.
const (
	Decimals = 8
	Coin     = 100_000_000
)

// DefaultSubsidy is the block reward paid to every non-genesis coinbase.
const DefaultSubsidy = 50 * Coin

// GenesisBits is the compact target of the genesis block and the easiest
// target any block may claim.
const GenesisBits uint32 = 0x1f00ffff

// Genesis holds the genesis block configuration and protocol rules.
type Genesis struct {
	Message   string `json:"message"`
	Timestamp uint64 `json:"timestamp"`
	Bits      uint32 `json:"bits"`

	// Reward is the value of the genesis coinbase output, paid to Address.
	// An empty Address pays the zero address, which nobody can spend.
	Reward  uint64 `json:"reward"`
	Address string `json:"address,omitempty"`

	// Subsidy is the fixed reward of every later block.
	Subsidy uint64 `json:"subsidy"`

	// PowLimit is the easiest compact target a block may claim.
	// Zero means the genesis bits.
	PowLimit uint32 `json:"pow_limit,omitempty"`
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		Message:   "Egg Core Genesis. Re-establishing the right to run a node at home. 2025-01-01",
		Timestamp: 1735689600, // 2025-01-01
		Bits:      GenesisBits,
		Reward:    DefaultSubsidy,
		Subsidy:   DefaultSubsidy,
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.Message = "Egg Core Testnet Genesis"
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// AddressHRP returns the bech32 prefix addresses use on network.
func AddressHRP(network NetworkType) string {
	if network == Testnet {
		return types.TestnetHRP
	}
	return types.MainnetHRP
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.Bits == 0 {
		return fmt.Errorf("bits is required")
	}
	if g.Reward == 0 {
		return fmt.Errorf("reward must be positive")
	}
	if g.Subsidy == 0 {
		return fmt.Errorf("subsidy must be positive")
	}
	if g.Address != "" {
		if _, err := types.ParseAddress(g.Address); err != nil {
			return fmt.Errorf("invalid genesis address %q: %w", g.Address, err)
		}
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
