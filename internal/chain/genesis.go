package chain

import (
	"fmt"

	"github.com/Klingon-tech/eggcore/config"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/tx"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has a zero PrevHash, nonce 0 and a single coinbase
// paying the genesis reward to the configured address.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	var addr types.Address
	if gen.Address != "" {
		var err error
		addr, err = types.ParseAddress(gen.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis address %q: %w", gen.Address, err)
		}
	}

	coinbase := tx.NewCoinbase(addr, gen.Reward, 0, gen.Message)
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		Timestamp: gen.Timestamp,
		Bits:      gen.Bits,
	}, []*tx.Transaction{coinbase})
	blk.Header.MerkleRoot = block.ComputeMerkleRoot(blk.MerkleLeaves())
	return blk, nil
}

// ValidateGenesis checks the shape of a genesis block: zero parent, nonce
// 0 and exactly one transaction, which is a coinbase. Proof of work is
// not required.
func ValidateGenesis(blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidGenesis)
	}
	if !blk.Header.PrevHash.IsZero() {
		return fmt.Errorf("%w: non-zero parent", ErrInvalidGenesis)
	}
	if blk.Header.Nonce != 0 {
		return fmt.Errorf("%w: non-zero nonce", ErrInvalidGenesis)
	}
	if len(blk.Transactions) != 1 || !blk.Transactions[0].IsCoinbase() {
		return fmt.Errorf("%w: want exactly one coinbase transaction", ErrInvalidGenesis)
	}
	if blk.Header.MerkleRoot != block.ComputeMerkleRoot(blk.MerkleLeaves()) {
		return fmt.Errorf("%w: %v", ErrInvalidGenesis, block.ErrBadMerkleRoot)
	}
	return nil
}
