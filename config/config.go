// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis, immutable, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
//
// Node settings come from three layers, later layers winning: built-in
// defaults, the INI file (eggcore.conf) and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// DefaultConfigFilename is the name of the INI file inside the data directory.
const DefaultConfigFilename = "eggcore.conf"

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit" no-ini:"true"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file" no-ini:"true"`

	Network     NetworkType `long:"network" description:"Network to join" choice:"mainnet" choice:"testnet"`
	DataDir     string      `short:"b" long:"datadir" description:"Directory holding chain data, logs and the configuration file"`
	GenesisFile string      `long:"genesis" description:"Load genesis parameters from a JSON file instead of the built-in network genesis"`

	P2P    P2PConfig    `group:"P2P" namespace:"p2p"`
	RPC    RPCConfig    `group:"RPC" namespace:"rpc"`
	Mining MiningConfig `group:"Mining" namespace:"mining"`
	Log    LogConfig    `group:"Logging" namespace:"log"`
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Disable    bool     `long:"disable" description:"Do not start the P2P host"`
	ListenAddr string   `long:"listen" description:"Interface to listen on"`
	Port       int      `long:"port" description:"Listen port (0 selects the network default)"`
	Seeds      []string `long:"seed" description:"Seed peer multiaddr, may be repeated"`
	MaxPeers   int      `long:"maxpeers" description:"Maximum connected peers"`
	NoDiscover bool     `long:"nodiscover" description:"Disable mDNS and DHT discovery"`
	DHTServer  bool     `long:"dhtserver" description:"Run the DHT in server mode"`
	ClearBans  bool     `long:"clearbans" description:"Clear all peer bans on startup" no-ini:"true"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Disable     bool     `long:"disable" description:"Do not start the JSON-RPC server"`
	Addr        string   `long:"addr" description:"Interface the JSON-RPC server binds to"`
	Port        int      `long:"port" description:"JSON-RPC port (0 selects the network default)"`
	AllowedIPs  []string `long:"allowip" description:"IP or CIDR allowed to call the RPC server, may be repeated"`
	CORSOrigins []string `long:"cors" description:"Allowed CORS origin, may be repeated"`
}

// MiningConfig holds block production settings.
type MiningConfig struct {
	Enabled  bool   `long:"enable" description:"Mine blocks while the node runs"`
	Coinbase string `long:"coinbase" description:"Address receiving block rewards"`
	Threads  int    `long:"threads" description:"Nonce search threads"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `long:"level" description:"Log level" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	File  string `long:"file" description:"Also write JSON logs to this file"`
	JSON  bool   `long:"json" description:"Write JSON to stdout instead of coloured text"`
}

// Default returns the default configuration. Ports stay zero until
// ApplyNetworkDefaults fills them in for the chosen network.
func Default() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			ListenAddr: "0.0.0.0",
			MaxPeers:   50,
		},
		RPC: RPCConfig{
			Addr:       "127.0.0.1",
			AllowedIPs: []string{"127.0.0.1"},
		},
		Mining: MiningConfig{
			Threads: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Network default ports.
const (
	MainnetP2PPort = 9333
	MainnetRPCPort = 8332
	TestnetP2PPort = 19333
	TestnetRPCPort = 18332
)

// ApplyNetworkDefaults fills unset ports for the configured network.
func (c *Config) ApplyNetworkDefaults() {
	p2pPort, rpcPort := MainnetP2PPort, MainnetRPCPort
	if c.Network == Testnet {
		p2pPort, rpcPort = TestnetP2PPort, TestnetRPCPort
	}
	if c.P2P.Port == 0 {
		c.P2P.Port = p2pPort
	}
	if c.RPC.Port == 0 {
		c.RPC.Port = rpcPort
	}
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.eggcore
//	macOS:   ~/Library/Application Support/Eggcore
//	Windows: %APPDATA%\Eggcore
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".eggcore"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Eggcore")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Eggcore")
		}
		return filepath.Join(home, "AppData", "Roaming", "Eggcore")
	default:
		return filepath.Join(home, ".eggcore")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the Badger database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.ChainDataDir(), "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFilePath returns the configuration file in effect: the explicit
// --configfile, otherwise eggcore.conf inside the data directory.
func (c *Config) ConfigFilePath() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return filepath.Join(c.DataDir, DefaultConfigFilename)
}
