package main

import (
	"fmt"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/chain"
	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/node"
	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// prepare finishes cfg after flag parsing: network defaults, validation,
// address prefix and logging.
func prepare(cfg *config.Config) error {
	cfg.ApplyNetworkDefaults()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	types.SetAddressHRP(config.AddressHRP(cfg.Network))
	return klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File)
}

// localChain is the chain of the datadir opened without the network.
type localChain struct {
	db      *storage.BadgerDB
	chain   *chain.Chain
	genesis *config.Genesis
}

func openChain(cfg *config.Config) (*localChain, error) {
	genesis, err := node.LoadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	genesisBlock, err := chain.CreateGenesisBlock(genesis)
	if err != nil {
		return nil, fmt.Errorf("build genesis block: %w", err)
	}

	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s (is eggd already running?): %w", cfg.DBDir(), err)
	}
	ch, err := chain.LoadOrInit(genesisBlock, storage.NewPrefixDB(db, storage.ChainPrefix), node.ChainOptions(genesis))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load chain: %w", err)
	}
	return &localChain{db: db, chain: ch, genesis: genesis}, nil
}

func (l *localChain) Close() error {
	return l.db.Close()
}

func formatAmount(units uint64) string {
	return fmt.Sprintf("%d.%08d", units/config.Coin, units%config.Coin)
}
