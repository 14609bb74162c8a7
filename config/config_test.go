package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyNetworkDefaults(t *testing.T) {
	cfg := Default()
	cfg.ApplyNetworkDefaults()
	if cfg.P2P.Port != MainnetP2PPort || cfg.RPC.Port != MainnetRPCPort {
		t.Errorf("mainnet ports = %d/%d", cfg.P2P.Port, cfg.RPC.Port)
	}

	cfg = Default()
	cfg.Network = Testnet
	cfg.ApplyNetworkDefaults()
	if cfg.P2P.Port != TestnetP2PPort || cfg.RPC.Port != TestnetRPCPort {
		t.Errorf("testnet ports = %d/%d", cfg.P2P.Port, cfg.RPC.Port)
	}

	cfg = Default()
	cfg.P2P.Port = 1234
	cfg.ApplyNetworkDefaults()
	if cfg.P2P.Port != 1234 {
		t.Errorf("explicit port overwritten: %d", cfg.P2P.Port)
	}
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	conf := "[Application Options]\nnetwork = testnet\n\n[P2P]\np2p.maxpeers = 7\n\n[Logging]\nlog.level = debug\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"--datadir", dir, "--log.level", "warn"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("network = %q, want testnet", cfg.Network)
	}
	if cfg.P2P.MaxPeers != 7 {
		t.Errorf("maxpeers = %d, want 7", cfg.P2P.MaxPeers)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want warn (flag wins)", cfg.Log.Level)
	}
	if cfg.RPC.Port != TestnetRPCPort {
		t.Errorf("rpc port = %d, want testnet default", cfg.RPC.Port)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load([]string{"--datadir", t.TempDir()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != Mainnet || cfg.P2P.Port != MainnetP2PPort {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFile_BadINI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("[Application Options]\nnosuchoption = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadFile(Default(), path); err == nil {
		t.Error("expected error for unknown option")
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir
	cfg.Network = Testnet
	cfg.P2P.MaxPeers = 12
	cfg.Mining.Threads = 4

	path := filepath.Join(dir, "sub", DefaultConfigFilename)
	if err := WriteFile(cfg, path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := Default()
	if err := LoadFile(got, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Network != Testnet || got.P2P.MaxPeers != 12 || got.Mining.Threads != 4 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.ApplyNetworkDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Network = "regtest" }},
		{"empty datadir", func(c *Config) { c.DataDir = "" }},
		{"p2p port", func(c *Config) { c.P2P.Port = 70000 }},
		{"rpc port", func(c *Config) { c.RPC.Port = -1 }},
		{"maxpeers", func(c *Config) { c.P2P.MaxPeers = 0 }},
		{"allowip", func(c *Config) { c.RPC.AllowedIPs = []string{"nope"} }},
		{"threads", func(c *Config) { c.Mining.Threads = 0 }},
		{"mining without coinbase", func(c *Config) { c.Mining.Enabled = true }},
		{"bad coinbase", func(c *Config) { c.Mining.Coinbase = "egg1notanaddress" }},
	}

	if err := Validate(valid()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := Validate(nil); err == nil {
		t.Error("nil config accepted")
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Error("expected error")
			}
		})
	}
}
