package main

import (
	"fmt"
	"strconv"

	"github.com/Klingon-tech/eggcore/internal/rpc"
)

type infoCommand struct {
	app *cli
}

func (x *infoCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	info, err := client.ChainInfo(ctx)
	if err != nil {
		return fmt.Errorf("chain_getInfo: %w", err)
	}
	if ok, err := x.app.emit(info); ok {
		return err
	}
	x.app.printf("Network: %s\n", info.Network)
	x.app.printf("Genesis: %s\n", info.GenesisHash)
	x.app.printf("Height:  %d\n", info.Height)
	x.app.printf("Tip:     %s\n", info.TipHash)
	x.app.printf("Work:    %s\n", info.TotalWork)
	x.app.printf("Blocks:  %d\n", info.KnownBlocks)
	if info.Halted != "" {
		x.app.printf("HALTED:  %s\n", info.Halted)
	}
	return nil
}

type blockCommand struct {
	app *cli

	Args struct {
		Ref string `positional-arg-name:"hash|height"`
	} `positional-args:"yes" required:"yes"`
}

func (x *blockCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	var (
		blk *rpc.BlockResult
		err error
	)
	if height, perr := strconv.ParseUint(x.Args.Ref, 10, 64); perr == nil && len(x.Args.Ref) < 64 {
		blk, err = client.BlockByHeight(ctx, height)
	} else {
		blk, err = client.BlockByHash(ctx, x.Args.Ref)
	}
	if err != nil {
		return fmt.Errorf("block %s: %w", x.Args.Ref, err)
	}
	if ok, err := x.app.emit(blk); ok {
		return err
	}

	x.app.printf("Hash:      %s\n", blk.Hash)
	x.app.printf("Height:    %d\n", blk.Height)
	x.app.printf("Prev:      %s\n", blk.Header.PrevHash)
	x.app.printf("Merkle:    %s\n", blk.Header.MerkleRoot)
	x.app.printf("Time:      %s\n", formatUnix(int64(blk.Header.Timestamp)))
	x.app.printf("Bits:      %08x\n", blk.Header.Bits)
	x.app.printf("Nonce:     %d\n", blk.Header.Nonce)
	x.app.printf("Txs:       %d\n", len(blk.Transactions))
	for _, t := range blk.Transactions {
		var out uint64
		for _, o := range t.Outputs {
			out += o.Value
		}
		x.app.printf("  %s in=%d out=%d value=%s\n", t.Hash, len(t.Inputs), len(t.Outputs), formatAmount(out))
	}
	return nil
}

type utxoCommand struct {
	app *cli

	Args struct {
		TxID  string `positional-arg-name:"txid"`
		Index uint32 `positional-arg-name:"index"`
	} `positional-args:"yes" required:"yes"`
}

func (x *utxoCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	u, err := client.UTXO(ctx, x.Args.TxID, x.Args.Index)
	if err != nil {
		return fmt.Errorf("utxo_get: %w", err)
	}
	if ok, err := x.app.emit(u); ok {
		return err
	}
	x.app.printf("Outpoint: %s\n", u.Outpoint)
	x.app.printf("Value:    %s\n", formatAmount(u.Value))
	x.app.printf("Address:  %s\n", u.Address)
	x.app.printf("Height:   %d\n", u.Height)
	x.app.printf("Coinbase: %t\n", u.Coinbase)
	return nil
}

type utxosCommand struct {
	app *cli

	Args struct {
		Address string `positional-arg-name:"address"`
	} `positional-args:"yes" required:"yes"`
}

func (x *utxosCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	res, err := client.UTXOsByAddress(ctx, x.Args.Address)
	if err != nil {
		return fmt.Errorf("utxo_getByAddress: %w", err)
	}
	if ok, err := x.app.emit(res); ok {
		return err
	}
	x.app.printf("Address: %s\n", res.Address)
	x.app.printf("Balance: %s\n", formatAmount(res.Balance))
	x.app.printf("UTXOs:   %d\n", len(res.UTXOs))
	for _, u := range res.UTXOs {
		x.app.printf("  %s %s height=%d\n", u.Outpoint, formatAmount(u.Value), u.Height)
	}
	return nil
}

type commitmentCommand struct {
	app *cli
}

func (x *commitmentCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	res, err := client.Commitment(ctx)
	if err != nil {
		return fmt.Errorf("utxo_getCommitment: %w", err)
	}
	if ok, err := x.app.emit(res); ok {
		return err
	}
	x.app.printf("Height:     %d\n", res.Height)
	x.app.printf("Tip:        %s\n", res.TipHash)
	x.app.printf("Commitment: %s\n", res.Commitment)
	return nil
}

type mempoolCommand struct {
	app *cli
}

func (x *mempoolCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	res, err := client.MempoolInfo(ctx)
	if err != nil {
		return fmt.Errorf("mempool_getInfo: %w", err)
	}
	if ok, err := x.app.emit(res); ok {
		return err
	}
	x.app.printf("Pending: %d\n", res.Count)
	x.app.printf("Fees:    %s\n", formatAmount(res.TotalFees))
	for _, h := range res.Hashes {
		x.app.printf("  %s\n", h)
	}
	return nil
}

type feesCommand struct {
	app *cli
}

func (x *feesCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	res, err := client.FeeEstimate(ctx)
	if err != nil {
		return fmt.Errorf("fee_estimate: %w", err)
	}
	if ok, err := x.app.emit(res); ok {
		return err
	}
	x.app.printf("Low:    %s\n", formatAmount(res.Low))
	x.app.printf("Medium: %s\n", formatAmount(res.Medium))
	x.app.printf("High:   %s\n", formatAmount(res.High))
	return nil
}

type peersCommand struct {
	app *cli
}

func (x *peersCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	res, err := client.PeerInfo(ctx)
	if err != nil {
		return fmt.Errorf("net_getPeerInfo: %w", err)
	}
	if ok, err := x.app.emit(res); ok {
		return err
	}
	x.app.printf("Node ID: %s\n", res.ID)
	for _, a := range res.Addrs {
		x.app.printf("  Listen: %s\n", a)
	}
	x.app.printf("Peers:   %d\n", res.Count)
	for _, p := range res.Peers {
		x.app.printf("  %s height=%d source=%s (connected: %s)\n", p.ID, p.Height, p.Source, p.ConnectedAt)
	}
	return nil
}

type bansCommand struct {
	app *cli
}

func (x *bansCommand) Execute(_ []string) error {
	client, ctx, cancel := x.app.client()
	defer cancel()

	res, err := client.BanList(ctx)
	if err != nil {
		return fmt.Errorf("net_getBanList: %w", err)
	}
	if ok, err := x.app.emit(res); ok {
		return err
	}
	x.app.printf("Banned: %d\n", res.Count)
	for _, b := range res.Bans {
		x.app.printf("  %s score=%d reason=%q until %s\n", b.ID, b.Score, b.Reason, formatUnix(b.ExpiresAt))
	}
	return nil
}
