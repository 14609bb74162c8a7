// egg-cli queries a running eggd node over JSON-RPC.
//
// Usage:
//
//	egg-cli [--rpc URL] [--network NET] [--json] <command> [args]
//
// Commands: info, block, utxo, utxos, commitment, mempool, fees, peers, bans.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/rpcclient"
)

// options are the flags shared by every command.
type options struct {
	RPC     string        `long:"rpc" description:"Node RPC endpoint (default: local node of --network)"`
	Network string        `long:"network" description:"Network of the local node" choice:"mainnet" choice:"testnet" default:"mainnet"`
	Timeout time.Duration `long:"timeout" description:"Request timeout" default:"10s"`
	JSON    bool          `long:"json" description:"Print raw JSON results"`
}

// cli is the state handed to every command.
type cli struct {
	opts options
	out  io.Writer
}

func (c *cli) endpoint() string {
	if c.opts.RPC != "" {
		return c.opts.RPC
	}
	port := config.MainnetRPCPort
	if config.NetworkType(c.opts.Network) == config.Testnet {
		port = config.TestnetRPCPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/", port)
}

func (c *cli) client() (*rpcclient.Client, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	return rpcclient.New(c.endpoint()), ctx, cancel
}

func (c *cli) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// emit prints v as indented JSON when --json is set and reports whether it
// did.
func (c *cli) emit(v interface{}) (bool, error) {
	if !c.opts.JSON {
		return false, nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return true, err
	}
	c.printf("%s\n", data)
	return true, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fatal("%v", err)
	}
}

func run(args []string, out io.Writer) error {
	c := &cli{out: out}
	parser := flags.NewParser(&c.opts, flags.HelpFlag|flags.PassDoubleDash)
	commands := []struct {
		name, short string
		cmd         interface{}
	}{
		{"info", "Show chain status", &infoCommand{app: c}},
		{"block", "Show a block by hash or height", &blockCommand{app: c}},
		{"utxo", "Show one unspent output", &utxoCommand{app: c}},
		{"utxos", "List the unspent outputs of an address", &utxosCommand{app: c}},
		{"commitment", "Show the UTXO set commitment at the tip", &commitmentCommand{app: c}},
		{"mempool", "Show pending transactions", &mempoolCommand{app: c}},
		{"fees", "Show fee estimates", &feesCommand{app: c}},
		{"peers", "Show the node identity and its peers", &peersCommand{app: c}},
		{"bans", "Show banned peers", &bansCommand{app: c}},
	}
	for _, cmd := range commands {
		if _, err := parser.AddCommand(cmd.name, cmd.short, cmd.short, cmd.cmd); err != nil {
			return err
		}
	}
	_, err := parser.ParseArgs(args)
	return err
}

func formatAmount(units uint64) string {
	whole := units / config.Coin
	frac := units % config.Coin
	return fmt.Sprintf("%d.%08d", whole, frac)
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
