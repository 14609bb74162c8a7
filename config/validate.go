package config

import (
	"fmt"
	"net"

	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 1 {
		return fmt.Errorf("p2p.maxpeers must be at least 1")
	}
	for i, entry := range cfg.RPC.AllowedIPs {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("rpc.allowip[%d] %q is neither an IP nor a CIDR", i, entry)
		}
	}
	if cfg.Mining.Threads < 1 {
		return fmt.Errorf("mining.threads must be at least 1")
	}
	if cfg.Mining.Enabled && cfg.Mining.Coinbase == "" {
		return fmt.Errorf("mining.enable requires mining.coinbase")
	}
	if cfg.Mining.Coinbase != "" {
		if _, err := types.ParseAddress(cfg.Mining.Coinbase); err != nil {
			return fmt.Errorf("invalid mining.coinbase: %w", err)
		}
	}
	return nil
}
