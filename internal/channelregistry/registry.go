// Package channelregistry is the in-memory authoritative cache of
// channel state for every chain family: open/closing/closed channels
// keyed by their chain-specific primary key, with single-writer-per-
// channel and concurrent-reader access.
package channelregistry

import (
	"sync"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// Registry holds one map per chain family. Each entry's mutex serializes
// writers to that specific channel; readers take the registry's RWMutex
// for the map lookup only, never blocking on a per-channel operation
// in progress elsewhere.
type Registry struct {
	mu sync.RWMutex

	evm   map[string]*evmEntry
	xrp   map[string]*xrpEntry
	aptos map[string]*aptosEntry
}

type evmEntry struct {
	mu    sync.Mutex
	state claimtypes.EVMChannelState
}

type xrpEntry struct {
	mu    sync.Mutex
	state claimtypes.XRPChannelState
}

type aptosEntry struct {
	mu    sync.Mutex
	state claimtypes.AptosChannelState
}

func New() *Registry {
	return &Registry{
		evm:   make(map[string]*evmEntry),
		xrp:   make(map[string]*xrpEntry),
		aptos: make(map[string]*aptosEntry),
	}
}

// UpsertEVM inserts or replaces an EVM channel's cached state.
func (r *Registry) UpsertEVM(state claimtypes.EVMChannelState) {
	entry := r.evmEntryFor(state.ChannelID, true)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.state = state
}

// UpsertXRP inserts or replaces an XRP channel's cached state.
func (r *Registry) UpsertXRP(state claimtypes.XRPChannelState) {
	entry := r.xrpEntryFor(state.ChannelID, true)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.state = state
}

// UpsertAptos inserts or replaces an Aptos channel's cached state.
func (r *Registry) UpsertAptos(state claimtypes.AptosChannelState) {
	entry := r.aptosEntryFor(state.ChannelOwner, true)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.state = state
}

// FindEVMChannel returns the cached state for a channel id.
func (r *Registry) FindEVMChannel(channelID string) (claimtypes.EVMChannelState, bool) {
	entry := r.evmEntryFor(channelID, false)
	if entry == nil {
		return claimtypes.EVMChannelState{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// FindEVMChannelByPeer scans for an open EVM channel with the given
// counterparty address. O(n) in channel count; the registry is sized to
// a single node's channel set, not a network-wide index.
func (r *Registry) FindEVMChannelByPeer(peerAddress string) (claimtypes.EVMChannelState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.evm {
		entry.mu.Lock()
		if entry.state.PeerAddress == peerAddress && entry.state.Status == claimtypes.StatusOpen {
			state := entry.state
			entry.mu.Unlock()
			return state, true
		}
		entry.mu.Unlock()
	}
	return claimtypes.EVMChannelState{}, false
}

// FindXRPChannel returns the cached state for a channel id.
func (r *Registry) FindXRPChannel(channelID string) (claimtypes.XRPChannelState, bool) {
	entry := r.xrpEntryFor(channelID, false)
	if entry == nil {
		return claimtypes.XRPChannelState{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// FindXRPChannelByDest returns an open XRP channel paying a destination
// account.
func (r *Registry) FindXRPChannelByDest(destination string) (claimtypes.XRPChannelState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.xrp {
		entry.mu.Lock()
		if entry.state.Destination == destination && entry.state.Status == claimtypes.StatusOpen {
			state := entry.state
			entry.mu.Unlock()
			return state, true
		}
		entry.mu.Unlock()
	}
	return claimtypes.XRPChannelState{}, false
}

// FindAptosChannel returns the cached state for a channel owner address.
func (r *Registry) FindAptosChannel(channelOwner string) (claimtypes.AptosChannelState, bool) {
	entry := r.aptosEntryFor(channelOwner, false)
	if entry == nil {
		return claimtypes.AptosChannelState{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// FindAptosChannelByDest returns an open Aptos channel paying a
// destination account.
func (r *Registry) FindAptosChannelByDest(destination string) (claimtypes.AptosChannelState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.aptos {
		entry.mu.Lock()
		if entry.state.Destination == destination && entry.state.Status == claimtypes.StatusOpen {
			state := entry.state
			entry.mu.Unlock()
			return state, true
		}
		entry.mu.Unlock()
	}
	return claimtypes.AptosChannelState{}, false
}

// ApplyEVMDebit sets the channel's transferred-amount field to
// newTransferredAmount. This is a plain assignment: it is the caller's
// job (wirebridge/claimmanager) to have already added the outbound delta
// to the channel's prior cumulative value before calling this.
func (r *Registry) ApplyEVMDebit(channelID string, newTransferredAmount string) {
	entry := r.evmEntryFor(channelID, false)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.state.TransferredAmount = newTransferredAmount
}

// ApplyXRPDebit sets the channel's claimed cumulative balance to
// newBalance; the caller computes that total before calling.
func (r *Registry) ApplyXRPDebit(channelID string, newBalance uint64) {
	entry := r.xrpEntryFor(channelID, false)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.state.Balance = newBalance
}

// ApplyAptosDebit sets the channel's claimed cumulative amount to
// newClaimed; the caller computes that total before calling.
func (r *Registry) ApplyAptosDebit(channelOwner string, newClaimed uint64) {
	entry := r.aptosEntryFor(channelOwner, false)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.state.Claimed = newClaimed
}

// MarkSettled transitions a channel's status to SETTLED regardless of
// chain.
func (r *Registry) MarkSettled(chain claimtypes.Chain, key string) {
	switch chain {
	case claimtypes.ChainEVM:
		if e := r.evmEntryFor(key, false); e != nil {
			e.mu.Lock()
			e.state.Status = claimtypes.StatusSettled
			e.mu.Unlock()
		}
	case claimtypes.ChainXRP:
		if e := r.xrpEntryFor(key, false); e != nil {
			e.mu.Lock()
			e.state.Status = claimtypes.StatusSettled
			e.mu.Unlock()
		}
	case claimtypes.ChainAptos:
		if e := r.aptosEntryFor(key, false); e != nil {
			e.mu.Lock()
			e.state.Status = claimtypes.StatusSettled
			e.mu.Unlock()
		}
	}
}

func (r *Registry) evmEntryFor(key string, create bool) *evmEntry {
	r.mu.RLock()
	entry, ok := r.evm[key]
	r.mu.RUnlock()
	if ok || !create {
		return entry
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.evm[key]; ok {
		return entry
	}
	entry = &evmEntry{}
	r.evm[key] = entry
	return entry
}

func (r *Registry) xrpEntryFor(key string, create bool) *xrpEntry {
	r.mu.RLock()
	entry, ok := r.xrp[key]
	r.mu.RUnlock()
	if ok || !create {
		return entry
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.xrp[key]; ok {
		return entry
	}
	entry = &xrpEntry{}
	r.xrp[key] = entry
	return entry
}

func (r *Registry) aptosEntryFor(key string, create bool) *aptosEntry {
	r.mu.RLock()
	entry, ok := r.aptos[key]
	r.mu.RUnlock()
	if ok || !create {
		return entry
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.aptos[key]; ok {
		return entry
	}
	entry = &aptosEntry{}
	r.aptos[key] = entry
	return entry
}
