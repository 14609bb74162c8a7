package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/node"
)

type runCommand struct {
	cfg *config.Config
}

func (x *runCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"run",
		"Run the node",
		"Start the P2P host, the JSON-RPC server and, with "+
			"--mining.enable, the miner. Stops on SIGINT or SIGTERM",
		x,
	)
	return err
}

func (x *runCommand) Execute(_ []string) error {
	x.cfg.ApplyNetworkDefaults()
	if err := config.Validate(x.cfg); err != nil {
		return err
	}

	n, err := node.New(x.cfg)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		n.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, 1)
	go func() { failed <- n.Wait() }()

	select {
	case <-ctx.Done():
		n.Stop()
		return nil
	case err := <-failed:
		n.Stop()
		return err
	}
}
