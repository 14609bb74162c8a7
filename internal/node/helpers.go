package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/chain"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// MaxFutureDrift bounds how far ahead of the local clock a block
// timestamp may be.
const MaxFutureDrift = 2 * time.Hour

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// LoadGenesis returns the genesis for cfg: the --genesis file when set,
// otherwise the built-in genesis of the network.
func LoadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.GenesisFile == "" {
		return config.GenesisFor(cfg.Network), nil
	}
	return config.LoadGenesis(expandHome(cfg.GenesisFile))
}

// ChainOptions derives the chain's consensus parameters from genesis.
func ChainOptions(genesis *config.Genesis) chain.Options {
	limit := genesis.PowLimit
	if limit == 0 {
		limit = genesis.Bits
	}
	return chain.Options{
		Subsidy:        genesis.Subsidy,
		PowLimit:       limit,
		MaxFutureDrift: MaxFutureDrift,
	}
}

// resolveCoinbase parses the configured reward address.
func resolveCoinbase(coinbase string) (types.Address, error) {
	if coinbase == "" {
		return types.Address{}, fmt.Errorf("mining requires a coinbase address")
	}
	addr, err := types.ParseAddress(coinbase)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid coinbase address: %w", err)
	}
	return addr, nil
}
