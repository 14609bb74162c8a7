// eggd is the eggcore full node daemon.
//
// Usage:
//
//	eggd init                       Write eggcore.conf and create the genesis state
//	eggd run                        Run the node
//	eggd mine --address <addr>      Mine blocks locally into the datadir
//	eggd utxo                       List the UTXO set and its commitment
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/Klingon-tech/eggcore/config"
)

// Version is set at build time.
var Version = "dev"

type command interface {
	flags.Commander
	Register(parser *flags.Parser) error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadBase(args)
	if err != nil {
		return err
	}

	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = true
	commands := []command{
		&initCommand{cfg: cfg},
		&runCommand{cfg: cfg},
		&mineCommand{cfg: cfg},
		&utxoCommand{cfg: cfg},
	}
	for _, c := range commands {
		if err := c.Register(parser); err != nil {
			return err
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
		}
		return err
	}
	if parser.Active == nil {
		if cfg.ShowVersion {
			fmt.Printf("eggd %s\n", Version)
			return nil
		}
		parser.WriteHelp(os.Stderr)
		return fmt.Errorf("no command given")
	}
	return nil
}
