package utxo

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/crypto"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Commitment computes a merkle root over all UTXOs in the set.
// Each UTXO is hashed deterministically, the hashes are sorted, and
// a merkle tree is built from them. Returns a zero hash for an empty set.
func Commitment(set Set) (types.Hash, error) {
	var hashes []types.Hash

	err := set.ForEach(func(u *UTXO) error {
		hashes = append(hashes, hashUTXO(u))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("utxo commitment: %w", err)
	}

	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Compare(hashes[j]) < 0
	})

	return block.ComputeMerkleRoot(hashes), nil
}

// hashUTXO produces a deterministic BLAKE3 hash of a UTXO.
// Format: txid(32) | index(4) | value(8) | address(20) | height(8) | coinbase(1)
func hashUTXO(u *UTXO) types.Hash {
	buf := make([]byte, 0, types.OutpointSize+8+types.AddressSize+8+1)
	buf = append(buf, u.Outpoint.TxID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, u.Outpoint.Index)
	buf = binary.LittleEndian.AppendUint64(buf, u.Value)
	buf = append(buf, u.Address[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, u.Height)
	if u.Coinbase {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return crypto.Hash(buf)
}
