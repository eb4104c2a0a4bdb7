// Package signstate persists the outbound-sequence and inbound-replay
// guards chain adapters depend on, so a process restart cannot re-sign
// an already-used nonce or re-admit a previously seen claim sequence.
// There is no separate in-memory copy of the guard: every allocation and
// admission check reads and writes pebble under a per-key mutex.
package signstate

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Store tracks, per (chain, channelKey), the highest outbound sequence
// this process has signed and the highest inbound sequence it has
// accepted from a peer.
type Store struct {
	db *pebble.DB

	mu     sync.Mutex
	shards map[string]*sync.Mutex
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, shards: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func outboundKey(chain, channelKey string) []byte {
	return []byte("signstate/out/" + chain + "/" + channelKey)
}

func inboundKey(chain, channelKey string) []byte {
	return []byte("signstate/in/" + chain + "/" + channelKey)
}

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

func (s *Store) get(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val), nil
}

func (s *Store) put(key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return s.db.Set(key, buf, pebble.Sync)
}

// NextOutbound atomically allocates and persists the next outbound
// sequence number (nonce) for a channel, starting at 1.
func (s *Store) NextOutbound(chain, channelKey string) (uint64, error) {
	key := outboundKey(chain, channelKey)
	lock := s.lockFor(string(key))
	lock.Lock()
	defer lock.Unlock()

	cur, err := s.get(key)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := s.put(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// AdmitInbound reports whether seq strictly exceeds the highest inbound
// sequence previously admitted for (chain, channelKey), and if so records
// it. This mirrors the claim store's monotonic admission but is keyed
// purely on sequence number so it applies uniformly across chains,
// including XRP where the "sequence" is cumulative amount.
func (s *Store) AdmitInbound(chain, channelKey string, seq uint64) (bool, error) {
	key := inboundKey(chain, channelKey)
	lock := s.lockFor(string(key))
	lock.Lock()
	defer lock.Unlock()

	cur, err := s.get(key)
	if err != nil {
		return false, err
	}
	if seq <= cur {
		return false, nil
	}
	if err := s.put(key, seq); err != nil {
		return false, err
	}
	return true, nil
}
