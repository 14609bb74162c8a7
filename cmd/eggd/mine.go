package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/consensus"
	"github.com/Klingon-tech/eggcore/internal/miner"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

type mineCommand struct {
	cfg *config.Config

	Address string `long:"address" description:"Address receiving the block rewards" required:"true"`
	Blocks  uint64 `long:"blocks" description:"Stop after this many blocks (0 mines until interrupted)"`
	Bits    uint32 `long:"bits" description:"Compact target to mine at (0 uses the genesis bits)"`
}

func (x *mineCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"mine",
		"Mine blocks into the local datadir",
		"Mine empty blocks on the local best chain without starting "+
			"the network. The node must not be running",
		x,
	)
	return err
}

func (x *mineCommand) Execute(_ []string) error {
	if err := prepare(x.cfg); err != nil {
		return err
	}
	addr, err := types.ParseAddress(x.Address)
	if err != nil {
		return fmt.Errorf("invalid --address: %w", err)
	}

	lc, err := openChain(x.cfg)
	if err != nil {
		return err
	}
	defer lc.Close()

	bits := x.Bits
	if bits == 0 {
		bits = lc.genesis.Bits
	}
	engine, err := consensus.NewPoW(bits, x.cfg.Mining.Threads)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mined uint64
	m := miner.New(lc.chain, engine, nil, addr)
	err = m.Run(ctx, func(blk *block.Block) error {
		if _, err := lc.chain.AddBlock(blk); err != nil {
			return err
		}
		mined++
		fmt.Printf("%d %s\n", lc.chain.Height(), blk.Hash())
		if x.Blocks > 0 && mined >= x.Blocks {
			cancel()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := lc.chain.Halted(); err != nil {
		return err
	}

	fmt.Printf("Mined %d blocks, height %d, tip %s\n", mined, lc.chain.Height(), lc.chain.TipHash())
	return nil
}
