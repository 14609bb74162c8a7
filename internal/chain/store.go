package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/block"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block JSON
	prefixMeta   = []byte("m/") // m/<hash(32)> -> BlockMeta JSON
	prefixHeight = []byte("h/") // h/<height(8)> -> hash(32), best chain only
	keyTip       = []byte("s/tip")
)

// writer is the write half shared by storage.DB and storage.Batch.
type writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// BlockStore persists blocks and chain metadata to a storage.DB.
// Writers take a storage.Batch so one block's writes commit together.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutBlock stores a block by hash. Blocks are never deleted.
func (bs *BlockStore) PutBlock(w writer, blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	if err := w.Put(blockKey(blk.Hash()), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block get %s: %w", hash.Short(), err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// PutMeta stores a block's chain metadata.
func (bs *BlockStore) PutMeta(w writer, meta *BlockMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("meta marshal: %w", err)
	}
	if err := w.Put(metaKey(meta.Hash), data); err != nil {
		return fmt.Errorf("meta put: %w", err)
	}
	return nil
}

// ForEachMeta visits every stored BlockMeta.
func (bs *BlockStore) ForEachMeta(fn func(*BlockMeta) error) error {
	return bs.db.ForEach(prefixMeta, func(_, value []byte) error {
		var m BlockMeta
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("meta unmarshal: %w", err)
		}
		if m.TotalWork == nil {
			return fmt.Errorf("meta %s: missing total work", m.Hash.Short())
		}
		return fn(&m)
	})
}

// SetHeight points the best-chain index at hash for the given height.
func (bs *BlockStore) SetHeight(w writer, height uint64, hash types.Hash) error {
	if err := w.Put(heightKey(height), hash[:]); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}
	return nil
}

// DeleteHeight removes a best-chain index entry.
func (bs *BlockStore) DeleteHeight(w writer, height uint64) error {
	if err := w.Delete(heightKey(height)); err != nil {
		return fmt.Errorf("height index delete: %w", err)
	}
	return nil
}

// GetHashByHeight returns the best-chain block hash at height.
func (bs *BlockStore) GetHashByHeight(height uint64) (types.Hash, error) {
	hashBytes, err := bs.db.Get(heightKey(height))
	if err != nil {
		return types.Hash{}, fmt.Errorf("height index get: %w", err)
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, fmt.Errorf("corrupt height index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return hash, nil
}

// GetBlockByHeight retrieves a best-chain block by its height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*block.Block, error) {
	hash, err := bs.GetHashByHeight(height)
	if err != nil {
		return nil, err
	}
	return bs.GetBlock(hash)
}

// SetTip stores the current chain tip hash and height.
func (bs *BlockStore) SetTip(w writer, hash types.Hash, height uint64) error {
	buf := make([]byte, types.HashSize+8)
	copy(buf, hash[:])
	binary.BigEndian.PutUint64(buf[types.HashSize:], height)
	if err := w.Put(keyTip, buf); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	return nil
}

// GetTip returns the persisted tip. ok is false on a fresh database.
func (bs *BlockStore) GetTip() (hash types.Hash, height uint64, ok bool, err error) {
	data, err := bs.db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, 0, false, nil
	}
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("get tip: %w", err)
	}
	if len(data) != types.HashSize+8 {
		return types.Hash{}, 0, false, fmt.Errorf("corrupt tip: got %d bytes", len(data))
	}
	copy(hash[:], data[:types.HashSize])
	return hash, binary.BigEndian.Uint64(data[types.HashSize:]), true, nil
}

func hashKey(prefix []byte, hash types.Hash) []byte {
	key := make([]byte, len(prefix)+types.HashSize)
	copy(key, prefix)
	copy(key[len(prefix):], hash[:])
	return key
}

func blockKey(hash types.Hash) []byte { return hashKey(prefixBlock, hash) }
func metaKey(hash types.Hash) []byte  { return hashKey(prefixMeta, hash) }

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	return key
}
