package p2p

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	klog "github.com/Klingon-tech/eggcore/internal/log"
	"github.com/Klingon-tech/eggcore/internal/metrics"
)

// Ban thresholds and durations.
const (
	BanThreshold = 100
	BanDuration  = time.Hour
)

// Penalty values for different offenses.
const (
	PenaltyInvalidBlock  = 50
	PenaltyInvalidTx     = 20
	PenaltyMalformed     = 25
	PenaltyRateLimited   = 10
	PenaltyHandshakeFail = BanThreshold
)

// disconnector closes connections to a peer.
type disconnector interface {
	DisconnectPeer(id peer.ID) error
}

// BanManager tracks peer offense scores and manages bans. Each recorded
// offense first decays the existing score by one.
type BanManager struct {
	mu     sync.Mutex
	scores map[peer.ID]int
	bans   map[peer.ID]*BanRecord
	store  *BanStore    // nil disables persistence
	node   disconnector // nil skips disconnects
	now    func() time.Time
}

// NewBanManager creates a BanManager. store and node may be nil.
func NewBanManager(store *BanStore, node disconnector) *BanManager {
	return &BanManager{
		scores: make(map[peer.ID]int),
		bans:   make(map[peer.ID]*BanRecord),
		store:  store,
		node:   node,
		now:    time.Now,
	}
}

// LoadBans restores unexpired persisted bans.
func (bm *BanManager) LoadBans() {
	if bm.store == nil {
		return
	}
	if _, err := bm.store.PruneExpired(bm.now()); err != nil {
		klog.P2P.Warn().Err(err).Msg("Pruning expired bans failed")
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	err := bm.store.ForEach(func(rec *BanRecord) error {
		id, err := peer.Decode(rec.ID)
		if err != nil {
			return nil
		}
		bm.bans[id] = rec
		return nil
	})
	if err != nil {
		klog.P2P.Warn().Err(err).Msg("Loading bans failed")
	}
}

// RecordOffense scores an offense against id and reports whether it
// caused a ban. Reaching BanThreshold bans and disconnects the peer.
func (bm *BanManager) RecordOffense(id peer.ID, penalty int, reason string) bool {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	now := bm.now()
	if rec, ok := bm.bans[id]; ok && !rec.expired(now) {
		return false
	}

	score := bm.scores[id] - 1
	if score < 0 {
		score = 0
	}
	score += penalty
	bm.scores[id] = score
	if score < BanThreshold {
		klog.P2P.Debug().
			Str("peer", shortID(id)).
			Str("reason", reason).
			Int("score", score).
			Msg("Peer offense")
		return false
	}

	rec := &BanRecord{
		ID:        id.String(),
		Reason:    reason,
		Score:     score,
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[id] = rec
	delete(bm.scores, id)

	if bm.store != nil {
		if err := bm.store.Put(rec); err != nil {
			klog.P2P.Warn().Err(err).Msg("Persisting ban failed")
		}
	}
	metrics.ObserveBan()
	klog.P2P.Warn().
		Str("peer", shortID(id)).
		Str("reason", reason).
		Int("score", score).
		Msg("Peer banned")

	if bm.node != nil {
		go bm.node.DisconnectPeer(id)
	}
	return true
}

// Score returns id's current offense score.
func (bm *BanManager) Score(id peer.ID) int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.scores[id]
}

// IsBanned reports whether id is currently banned. An expired ban is
// lifted and the peer starts again from a zero score.
func (bm *BanManager) IsBanned(id peer.ID) bool {
	bm.mu.Lock()
	rec, ok := bm.bans[id]
	if !ok {
		bm.mu.Unlock()
		return false
	}
	if !rec.expired(bm.now()) {
		bm.mu.Unlock()
		return true
	}
	delete(bm.bans, id)
	delete(bm.scores, id)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(id)
	}
	return false
}

// Unban manually removes a ban.
func (bm *BanManager) Unban(id peer.ID) {
	bm.mu.Lock()
	delete(bm.bans, id)
	delete(bm.scores, id)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(id)
	}
}

// Clear lifts every ban, persisted ones included.
func (bm *BanManager) Clear() error {
	bm.mu.Lock()
	bm.bans = make(map[peer.ID]*BanRecord)
	bm.scores = make(map[peer.ID]int)
	bm.mu.Unlock()

	if bm.store != nil {
		return bm.store.Clear()
	}
	return nil
}

// BanList returns a snapshot of all active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	now := bm.now()
	list := make([]BanRecord, 0, len(bm.bans))
	for _, rec := range bm.bans {
		if !rec.expired(now) {
			list = append(list, *rec)
		}
	}
	return list
}

// RunPruneLoop prunes expired bans every interval until done is closed.
func (bm *BanManager) RunPruneLoop(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bm.pruneExpired()
		}
	}
}

func (bm *BanManager) pruneExpired() {
	bm.mu.Lock()
	now := bm.now()
	for id, rec := range bm.bans {
		if rec.expired(now) {
			delete(bm.bans, id)
		}
	}
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.PruneExpired(now)
	}
}

func shortID(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
