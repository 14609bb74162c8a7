package utxo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/eggcore/internal/storage"
	"github.com/Klingon-tech/eggcore/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO = []byte("u/") // u/<txid><index> -> UTXO JSON
	prefixAddr = []byte("a/") // a/<address><txid><index> -> empty (index)
)

// Store implements Set backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, 0, len(prefixUTXO)+types.OutpointSize)
	key = append(key, prefixUTXO...)
	return append(key, op.Key()...)
}

// addrKey builds an address index key: "a/" + addr(20) + txid(32) + index(4).
func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := make([]byte, 0, len(prefixAddr)+types.AddressSize+types.OutpointSize)
	key = append(key, prefixAddr...)
	key = append(key, addr[:]...)
	return append(key, op.Key()...)
}

// Get retrieves a UTXO by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// Put stores a UTXO and updates the address index.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := s.db.Put(addrKey(u.Address, u.Outpoint), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// Delete removes a UTXO and its address index entry.
func (s *Store) Delete(outpoint types.Outpoint) error {
	// Read first to clean up the secondary index.
	u, err := s.Get(outpoint)
	if err == nil {
		if err := s.db.Delete(addrKey(u.Address, u.Outpoint)); err != nil {
			return fmt.Errorf("utxo index delete: %w", err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := s.db.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if a UTXO exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach iterates over all UTXOs in the store in outpoint order.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// Apply writes the delta recorded in v into batch. The view must sit
// directly on top of s. Nothing is visible until the batch commits.
func (s *Store) Apply(batch storage.Batch, v *View) error {
	for _, ch := range v.Changes() {
		prev, err := s.Get(ch.Outpoint)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if prev != nil && (ch.UTXO == nil || prev.Address != ch.UTXO.Address) {
			if err := batch.Delete(addrKey(prev.Address, prev.Outpoint)); err != nil {
				return fmt.Errorf("utxo index delete: %w", err)
			}
		}

		if ch.UTXO == nil {
			if err := batch.Delete(utxoKey(ch.Outpoint)); err != nil {
				return fmt.Errorf("utxo delete: %w", err)
			}
			continue
		}

		data, err := json.Marshal(ch.UTXO)
		if err != nil {
			return fmt.Errorf("utxo marshal: %w", err)
		}
		if err := batch.Put(utxoKey(ch.Outpoint), data); err != nil {
			return fmt.Errorf("utxo put: %w", err)
		}
		if err := batch.Put(addrKey(ch.UTXO.Address, ch.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("utxo index put: %w", err)
		}
	}
	return nil
}

// Stats returns the number of UTXOs and their total value.
func (s *Store) Stats() (count int, total uint64, err error) {
	err = s.ForEach(func(u *UTXO) error {
		count++
		total += u.Value
		return nil
	})
	return count, total, err
}

// GetByAddress returns all UTXOs belonging to the given address.
// It scans the address index and loads each referenced UTXO.
func (s *Store) GetByAddress(addr types.Address) ([]*UTXO, error) {
	// Build the prefix: "a/" + addr(20).
	prefix := make([]byte, 0, len(prefixAddr)+types.AddressSize)
	prefix = append(prefix, prefixAddr...)
	prefix = append(prefix, addr[:]...)

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		// Key layout: "a/" + addr(20) + txid(32) + index(4).
		op, err := types.OutpointFromKey(key[len(prefix):])
		if err != nil {
			return nil // Malformed key, skip.
		}
		u, err := s.Get(op)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return utxos, nil
}
