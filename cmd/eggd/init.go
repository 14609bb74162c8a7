package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/Klingon-tech/eggcore/config"
)

type initCommand struct {
	cfg *config.Config

	Force bool `long:"force" description:"Overwrite an existing configuration file"`
}

func (x *initCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"init",
		"Initialise the data directory",
		"Write eggcore.conf with every option documented and create "+
			"the chain database holding the genesis block",
		x,
	)
	return err
}

func (x *initCommand) Execute(_ []string) error {
	if err := prepare(x.cfg); err != nil {
		return err
	}

	path := x.cfg.ConfigFilePath()
	_, err := os.Stat(path)
	switch {
	case err == nil && !x.Force:
		fmt.Printf("Config:  %s (kept, use --force to overwrite)\n", path)
	case err == nil || errors.Is(err, os.ErrNotExist):
		if err := config.WriteFile(x.cfg, path); err != nil {
			return err
		}
		fmt.Printf("Config:  %s\n", path)
	default:
		return fmt.Errorf("stat %s: %w", path, err)
	}

	lc, err := openChain(x.cfg)
	if err != nil {
		return err
	}
	defer lc.Close()

	st := lc.chain.State()
	fmt.Printf("Network: %s\n", x.cfg.Network)
	fmt.Printf("Data:    %s\n", x.cfg.DBDir())
	fmt.Printf("Genesis: %s\n", lc.chain.GenesisHash())
	fmt.Printf("Height:  %d\n", st.Height)
	return nil
}
