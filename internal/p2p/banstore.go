package p2p

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Klingon-tech/eggcore/internal/storage"
)

const banKeyPrefix = "ban/"

// BanRecord is a persisted ban entry.
type BanRecord struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"` // 0 = permanent
}

func (r *BanRecord) expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}

// BanStore persists ban records under the "ban/" prefix. The node hands
// it the network namespace of the node database.
type BanStore struct {
	db storage.DB
}

// NewBanStore creates a BanStore backed by db.
func NewBanStore(db storage.DB) *BanStore {
	return &BanStore{db: db}
}

func banKey(id string) []byte {
	return []byte(banKeyPrefix + id)
}

// Get retrieves a ban record by peer ID.
func (bs *BanStore) Get(id peer.ID) (*BanRecord, error) {
	data, err := bs.db.Get(banKey(id.String()))
	if err != nil {
		return nil, err
	}
	var rec BanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal ban record: %w", err)
	}
	return &rec, nil
}

// Put persists a ban record.
func (bs *BanStore) Put(rec *BanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ban record: %w", err)
	}
	return bs.db.Put(banKey(rec.ID), data)
}

// Delete removes a ban record.
func (bs *BanStore) Delete(id peer.ID) error {
	return bs.db.Delete(banKey(id.String()))
}

// ForEach visits every decodable ban record.
func (bs *BanStore) ForEach(fn func(*BanRecord) error) error {
	return bs.db.ForEach([]byte(banKeyPrefix), func(_, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		return fn(&rec)
	})
}

// PruneExpired removes records expired at now, and corrupt ones. It
// returns the number removed.
func (bs *BanStore) PruneExpired(now time.Time) (int, error) {
	return bs.deleteWhere(func(rec *BanRecord) bool { return rec.expired(now) })
}

// Clear removes every record.
func (bs *BanStore) Clear() error {
	_, err := bs.deleteWhere(func(*BanRecord) bool { return true })
	return err
}

// deleteWhere removes records matching drop. Undecodable records always go.
func (bs *BanStore) deleteWhere(drop func(*BanRecord) bool) (int, error) {
	var doomed [][]byte
	err := bs.db.ForEach([]byte(banKeyPrefix), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil || drop(&rec) {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate bans: %w", err)
	}
	for _, k := range doomed {
		if err := bs.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete ban: %w", err)
		}
	}
	return len(doomed), nil
}
