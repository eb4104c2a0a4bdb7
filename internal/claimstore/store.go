// Package claimstore provides durable per-(peer, chain, channel) latest-
// claim storage with monotonic admission, backed by an embedded pebble
// LSM tree.
package claimstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// row is the persisted representation of one (peerId, chain, channelKey)
// slot. Amount is kept as text so u256 EVM values never round-trip
// through a numeric type that cannot hold them.
type row struct {
	Chain             claimtypes.Chain `json:"chain"`
	ChannelKey        string           `json:"channelKey"`
	Sequence          string           `json:"sequence"`
	Amount            string           `json:"amount"`
	TransferredAmount string           `json:"transferredAmount,omitempty"`
	LockedAmount      string           `json:"lockedAmount,omitempty"`
	LocksRoot         string           `json:"locksRoot,omitempty"`
	Signature         string           `json:"signature"`
	Signer            string           `json:"signer"`
}

// Stats summarizes the store's current contents.
type Stats struct {
	Total   int
	ByChain map[claimtypes.Chain]int
}

// Store is the durable per-peer latest-claim table. Each logical key
// (peerId, chain, channelKey) maps to at most one row, replaced in place
// only by strictly-greater updates.
type Store struct {
	db  *pebble.DB
	log *zap.Logger

	mu     sync.Mutex
	shards map[string]*sync.Mutex
}

// Open opens (or creates) a pebble-backed claim store at dir.
func Open(dir string, log *zap.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open claim store at %s: %w", dir, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log, shards: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(peerID string, chain claimtypes.Chain, channelKey string) []byte {
	return []byte(fmt.Sprintf("claim/%s/%s/%s", peerID, chain, channelKey))
}

// peerChainPrefix returns the key-range prefix covering every channel a
// peer has on one chain.
func peerChainPrefix(peerID string, chain claimtypes.Chain) []byte {
	return []byte(fmt.Sprintf("claim/%s/%s/", peerID, chain))
}

func peerPrefix(peerID string) []byte {
	return []byte(fmt.Sprintf("claim/%s/", peerID))
}

// lockFor returns the per-key mutex guarding the read-then-write
// admission check, creating it on first use. Disjoint keys get disjoint
// locks so concurrent writes to different channels never block each
// other.
func (s *Store) lockFor(k string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.shards[k]
	if !ok {
		l = &sync.Mutex{}
		s.shards[k] = l
	}
	return l
}

// Store admits claim for peerID iff it strictly exceeds any existing row
// under the monotonic predicate for its chain. Returns true if stored,
// false if stale. Engine errors are logged and return false; the public
// API never errors.
func (s *Store) Store(peerID string, claim claimtypes.SignedClaim) bool {
	k := string(key(peerID, claim.Chain(), claim.ChannelKey()))
	lock := s.lockFor(k)
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := s.readRow([]byte(k))
	if err != nil {
		s.log.Error("claim store read failed", zap.String("key", k), zap.Error(err))
		return false
	}

	if found {
		prior, err := rowToClaim(existing)
		if err != nil {
			s.log.Error("claim store decode failed", zap.String("key", k), zap.Error(err))
			return false
		}
		if !claim.Greater(prior) {
			return false
		}
	}

	newRow := claimToRow(claim)
	data, err := json.Marshal(newRow)
	if err != nil {
		s.log.Error("claim store marshal failed", zap.String("key", k), zap.Error(err))
		return false
	}
	if err := s.db.Set([]byte(k), data, pebble.Sync); err != nil {
		s.log.Error("claim store write failed", zap.String("key", k), zap.Error(err))
		return false
	}
	return true
}

// Latest returns the stored claim for a (peer, chain, channel), if any.
func (s *Store) Latest(peerID string, chain claimtypes.Chain, channelKey string) (claimtypes.SignedClaim, bool) {
	r, found, err := s.readRow(key(peerID, chain, channelKey))
	if err != nil || !found {
		return nil, false
	}
	c, err := rowToClaim(r)
	if err != nil {
		return nil, false
	}
	return c, true
}

// ClaimsForPeerChain returns every stored claim for a peer on one chain.
func (s *Store) ClaimsForPeerChain(peerID string, chain claimtypes.Chain) []claimtypes.SignedClaim {
	var out []claimtypes.SignedClaim
	s.scan(peerChainPrefix(peerID, chain), func(r row) {
		if c, err := rowToClaim(r); err == nil {
			out = append(out, c)
		}
	})
	return out
}

// ClaimsForPeer returns every stored claim for a peer, grouped by chain.
func (s *Store) ClaimsForPeer(peerID string) map[claimtypes.Chain][]claimtypes.SignedClaim {
	out := make(map[claimtypes.Chain][]claimtypes.SignedClaim)
	s.scan(peerPrefix(peerID), func(r row) {
		c, err := rowToClaim(r)
		if err != nil {
			return
		}
		out[c.Chain()] = append(out[c.Chain()], c)
	})
	return out
}

// DeleteAll removes every row belonging to peerID and returns the count
// deleted. No garbage collection otherwise runs on closed channels —
// this is the operator-invoked escape hatch.
func (s *Store) DeleteAll(peerID string) uint32 {
	var keys [][]byte
	s.scan(peerPrefix(peerID), nil, func(k []byte) { keys = append(keys, append([]byte(nil), k...)) })

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		_ = batch.Delete(k, nil)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		s.log.Error("claim store delete_all failed", zap.String("peer", peerID), zap.Error(err))
		return 0
	}
	return uint32(len(keys))
}

// Stats returns aggregate counts across the whole store.
func (s *Store) Stats() Stats {
	st := Stats{ByChain: make(map[claimtypes.Chain]int)}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("claim/"),
		UpperBound: []byte("claim0"), // '0' > '/' in ASCII, bounds the prefix scan
	})
	if err != nil {
		s.log.Error("claim store stats scan failed", zap.Error(err))
		return st
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var r row
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue
		}
		st.Total++
		st.ByChain[r.Chain]++
	}
	return st
}

func (s *Store) readRow(k []byte) (row, bool, error) {
	val, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return row{}, false, nil
		}
		return row{}, false, err
	}
	defer closer.Close()

	var r row
	if err := json.Unmarshal(val, &r); err != nil {
		return row{}, false, err
	}
	return r, true, nil
}

// scan walks every key under prefix. visit receives the decoded row (nil-
// safe no-op if visit is nil); visitKey, if non-nil, receives the raw key.
func (s *Store) scan(prefix []byte, visit func(row), visitKey ...func([]byte)) {
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		s.log.Error("claim store scan failed", zap.Error(err))
		return
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if visit != nil {
			var r row
			if err := json.Unmarshal(iter.Value(), &r); err == nil {
				visit(r)
			}
		}
		for _, vk := range visitKey {
			vk(iter.Key())
		}
	}
}

func claimToRow(c claimtypes.SignedClaim) row {
	r := row{
		Chain:      c.Chain(),
		ChannelKey: c.ChannelKey(),
		Sequence:   c.Sequence(),
		Signer:     c.Signer(),
	}
	switch v := c.(type) {
	case claimtypes.EVMClaim:
		r.Amount = v.TransferredAmount
		r.TransferredAmount = v.TransferredAmount
		r.LockedAmount = v.LockedAmount
		r.LocksRoot = v.LocksRoot
		r.Signature = v.Signature
	case claimtypes.XRPClaim:
		r.Amount = fmt.Sprintf("%d", v.Amount)
		r.Signature = v.Signature
	case claimtypes.AptosClaim:
		r.Amount = fmt.Sprintf("%d", v.Amount)
		r.Signature = v.Signature
	}
	return r
}

func rowToClaim(r row) (claimtypes.SignedClaim, error) {
	switch r.Chain {
	case claimtypes.ChainEVM:
		var nonce uint64
		if _, err := fmt.Sscanf(r.Sequence, "%d", &nonce); err != nil {
			return nil, err
		}
		return claimtypes.EVMClaim{
			ChannelID:         r.ChannelKey,
			Nonce:             nonce,
			TransferredAmount: r.TransferredAmount,
			LockedAmount:      r.LockedAmount,
			LocksRoot:         r.LocksRoot,
			Signature:         r.Signature,
			SignerAddr:        r.Signer,
		}, nil
	case claimtypes.ChainXRP:
		var amount uint64
		if _, err := fmt.Sscanf(r.Amount, "%d", &amount); err != nil {
			return nil, err
		}
		return claimtypes.XRPClaim{
			ChannelID: r.ChannelKey,
			Amount:    amount,
			Signature: r.Signature,
			PublicKey: r.Signer,
		}, nil
	case claimtypes.ChainAptos:
		var amount, nonce uint64
		if _, err := fmt.Sscanf(r.Amount, "%d", &amount); err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(r.Sequence, "%d", &nonce); err != nil {
			return nil, err
		}
		return claimtypes.AptosClaim{
			ChannelOwner: r.ChannelKey,
			Amount:       amount,
			Nonce:        nonce,
			Signature:    r.Signature,
			PublicKey:    r.Signer,
		}, nil
	default:
		return nil, fmt.Errorf("unknown chain %q in stored row", r.Chain)
	}
}
