package main

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/internal/utxo"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

type utxoCommand struct {
	cfg *config.Config

	Address string `long:"address" description:"Only list outputs paying this address"`
}

func (x *utxoCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"utxo",
		"List the UTXO set",
		"Print every unspent output of the local best chain followed "+
			"by the set's commitment. The node must not be running",
		x,
	)
	return err
}

func (x *utxoCommand) Execute(_ []string) error {
	if err := prepare(x.cfg); err != nil {
		return err
	}
	var (
		filter    types.Address
		hasFilter bool
	)
	if x.Address != "" {
		addr, err := types.ParseAddress(x.Address)
		if err != nil {
			return fmt.Errorf("invalid --address: %w", err)
		}
		filter, hasFilter = addr, true
	}

	lc, err := openChain(x.cfg)
	if err != nil {
		return err
	}
	defer lc.Close()

	var count int
	var total uint64
	err = lc.chain.ForEachUTXO(func(u *utxo.UTXO) error {
		if hasFilter && u.Address != filter {
			return nil
		}
		count++
		total += u.Value
		coinbase := ""
		if u.Coinbase {
			coinbase = " coinbase"
		}
		fmt.Printf("%s %s %s height=%d%s\n", u.Outpoint, formatAmount(u.Value), u.Address, u.Height, coinbase)
		return nil
	})
	if err != nil {
		return err
	}

	commitment, err := lc.chain.UTXOCommitment()
	if err != nil {
		return err
	}
	st := lc.chain.State()
	fmt.Printf("\nOutputs:    %d\n", count)
	fmt.Printf("Total:      %s\n", formatAmount(total))
	fmt.Printf("Height:     %d\n", st.Height)
	fmt.Printf("Tip:        %s\n", st.TipHash)
	fmt.Printf("Commitment: %s\n", commitment)
	return nil
}
