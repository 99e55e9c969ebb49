// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"
	"slices"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/utils/math"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/registry"
	"github.com/luxfi/resdl/vms/resdlvm/rewards"
)

// RemoteSupply is the weight a counterpart ledger reported for its locks.
type RemoteSupply struct {
	ChainID ids.ID `serialize:"true" json:"chainId"`
	Amount  uint64 `serialize:"true" json:"amount"`
}

// AppliedUpdate is the last reconciliation update a primary ledger applied
// for a chain and the answer it gave.
type AppliedUpdate struct {
	ChainID      ids.ID `serialize:"true" json:"chainId"`
	BatchIndex   uint64 `serialize:"true" json:"batchIndex"`
	LastMintedID uint64 `serialize:"true" json:"lastMintedId"`
}

// Primary is the authoritative ledger. It applies operations immediately,
// assigns lock ids for counterpart ledgers and books their weight on the
// bridge account.
type Primary struct {
	*Pool

	bridge       ids.ShortID
	remoteSupply map[ids.ID]uint64
	applied      map[ids.ID]AppliedUpdate
}

func NewPrimary(config Config, bridge ids.ShortID) (*Primary, error) {
	return RestorePrimary(config, bridge, nil)
}

// RestorePrimary rebuilds a primary ledger from [snapshot]. A nil snapshot
// returns an empty ledger.
func RestorePrimary(config Config, bridge ids.ShortID, snapshot *Snapshot) (*Primary, error) {
	if bridge == ids.ShortEmpty {
		return nil, ErrNoBridgeAccount
	}

	var registrySnapshot *registry.Snapshot
	if snapshot != nil {
		registrySnapshot = &snapshot.Registry
	}
	p, err := newPool(config, registrySnapshot)
	if err != nil {
		return nil, err
	}

	primary := &Primary{
		Pool:         p,
		bridge:       bridge,
		remoteSupply: make(map[ids.ID]uint64),
		applied:      make(map[ids.ID]AppliedUpdate),
	}
	if snapshot == nil {
		return primary, nil
	}
	for _, applied := range snapshot.AppliedUpdates {
		primary.applied[applied.ChainID] = applied
	}

	hook := p.ledger.hook
	p.ledger.hook = rewards.NoOp{}
	defer func() {
		p.ledger.hook = hook
	}()
	for _, supply := range snapshot.RemoteSupply {
		if supply.Amount == 0 {
			continue
		}
		if err := p.ledger.Credit(bridge, supply.Amount); err != nil {
			return nil, fmt.Errorf("booking supply of chain %s: %w", supply.ChainID, err)
		}
		primary.remoteSupply[supply.ChainID] = supply.Amount
	}
	return primary, nil
}

func (p *Primary) BridgeAccount() ids.ShortID {
	return p.bridge
}

// RemoteSupply returns the weight booked for [chainID].
func (p *Primary) RemoteSupply(chainID ids.ID) uint64 {
	return p.remoteSupply[chainID]
}

// Stake deposits [amount] into lock [id] held by [caller], or into a new
// lock when [id] is 0. It returns the id of the lock.
func (p *Primary) Stake(caller ids.ShortID, id, amount, duration uint64) (uint64, error) {
	now := p.clock.Unix()
	if id == 0 {
		l, err := p.newLock(amount, duration, now)
		if err != nil {
			return 0, err
		}
		id = p.registry.LastLockID() + 1
		if err := p.mint(caller, id, l); err != nil {
			return 0, err
		}
		return id, nil
	}

	current, err := p.authorize(caller, id)
	if err != nil {
		return 0, err
	}
	updated, err := p.stake(current, amount, duration, now)
	if err != nil {
		return 0, err
	}
	return id, p.apply(caller, id, current, updated)
}

func (p *Primary) ExtendLockDuration(caller ids.ShortID, id, duration uint64) error {
	current, err := p.authorize(caller, id)
	if err != nil {
		return err
	}
	updated, err := p.extend(current, duration, p.clock.Unix())
	if err != nil {
		return err
	}
	return p.apply(caller, id, current, updated)
}

func (p *Primary) InitiateUnlock(caller ids.ShortID, id uint64) error {
	current, err := p.authorize(caller, id)
	if err != nil {
		return err
	}
	updated, err := initiateUnlock(current, p.clock.Unix())
	if err != nil {
		return err
	}
	return p.apply(caller, id, current, updated)
}

// Withdraw takes [amount] of principal out of lock [id]. The lock is burned
// once its principal reaches zero.
func (p *Primary) Withdraw(caller ids.ShortID, id, amount uint64) error {
	current, err := p.authorize(caller, id)
	if err != nil {
		return err
	}
	updated, err := withdraw(current, amount, p.clock.Unix())
	if err != nil {
		return err
	}
	return p.apply(caller, id, current, updated)
}

func (p *Primary) TransferFrom(caller, from, to ids.ShortID, id uint64) error {
	return p.transfer(caller, from, to, id, nil, false)
}

func (p *Primary) SafeTransferFrom(caller, from, to ids.ShortID, id uint64, data []byte) error {
	return p.transfer(caller, from, to, id, data, true)
}

// HandleIncomingUpdate applies reconciliation update [batchIndex] from
// [chainID]. It reserves ids for [numNewLocks] new locks and books
// [supplyChange] on the bridge account. It returns the last id reserved for
// the chain. Repeating the last applied update returns the same id without
// applying it again.
func (p *Primary) HandleIncomingUpdate(chainID ids.ID, batchIndex, numNewLocks uint64, supplyChange int64) (uint64, error) {
	if applied, ok := p.applied[chainID]; ok {
		switch {
		case batchIndex == applied.BatchIndex:
			return applied.LastMintedID, nil
		case batchIndex < applied.BatchIndex:
			return 0, fmt.Errorf("%w: %d from chain %s already followed by %d", ErrStaleUpdate, batchIndex, chainID, applied.BatchIndex)
		}
	}

	current := p.remoteSupply[chainID]
	updated, err := math.AddDelta(current, supplyChange)
	if err != nil {
		return 0, fmt.Errorf("%w: chain %s supply %d change %d", ErrInsufficientBalance, chainID, current, supplyChange)
	}
	if _, err := math.Add(p.registry.LastLockID(), numNewLocks); err != nil {
		return 0, err
	}

	switch {
	case updated > current:
		err = p.ledger.Credit(p.bridge, updated-current)
	case updated < current:
		err = p.ledger.Debit(p.bridge, current-updated)
	}
	if err != nil {
		return 0, err
	}
	p.setRemoteSupply(chainID, updated)
	lastMintedID := p.registry.ReserveIDs(numNewLocks)
	p.applied[chainID] = AppliedUpdate{
		ChainID:      chainID,
		BatchIndex:   batchIndex,
		LastMintedID: lastMintedID,
	}
	return lastMintedID, nil
}

// LastAppliedUpdate returns the last update applied for [chainID].
func (p *Primary) LastAppliedUpdate(chainID ids.ID) (AppliedUpdate, bool) {
	applied, ok := p.applied[chainID]
	return applied, ok
}

// HandleOutgoingRESDL releases lock [id] of [sender] towards [receiver] on
// [chainID]. The lock weight stays booked on the bridge account while it is
// held remotely.
func (p *Primary) HandleOutgoingRESDL(chainID ids.ID, sender, receiver ids.ShortID, id uint64) (lock.Lock, error) {
	l, err := p.authorize(sender, id)
	if err != nil {
		return lock.Lock{}, err
	}
	supply, err := math.Add(p.remoteSupply[chainID], l.CommittedBalance())
	if err != nil {
		return lock.Lock{}, err
	}

	if _, err := p.release(sender, receiver, id); err != nil {
		return lock.Lock{}, err
	}
	if err := p.ledger.Credit(p.bridge, l.CommittedBalance()); err != nil {
		return lock.Lock{}, err
	}
	p.setRemoteSupply(chainID, supply)
	return l, nil
}

// HandleIncomingRESDL recreates lock [id] relocated from [chainID] for
// [receiver] and unbooks its weight from the bridge account.
func (p *Primary) HandleIncomingRESDL(chainID ids.ID, receiver ids.ShortID, id uint64, l lock.Lock) error {
	if err := l.Verify(); err != nil {
		return err
	}
	committed := l.CommittedBalance()
	supply := p.remoteSupply[chainID]
	if committed > supply {
		return fmt.Errorf("%w: chain %s supply %d below %d", ErrInsufficientBalance, chainID, supply, committed)
	}

	if err := p.mint(receiver, id, l); err != nil {
		return err
	}
	if err := p.ledger.Debit(p.bridge, committed); err != nil {
		return err
	}
	p.setRemoteSupply(chainID, supply-committed)
	return nil
}

// Snapshot returns the persistable content of the ledger.
func (p *Primary) Snapshot() *Snapshot {
	chainIDs := make([]ids.ID, 0, len(p.remoteSupply))
	for chainID := range p.remoteSupply {
		chainIDs = append(chainIDs, chainID)
	}
	slices.SortFunc(chainIDs, compareIDs)

	s := &Snapshot{
		Registry:       *p.registry.Snapshot(),
		RemoteSupply:   make([]RemoteSupply, 0, len(chainIDs)),
		AppliedUpdates: make([]AppliedUpdate, 0, len(p.applied)),
	}
	for _, chainID := range chainIDs {
		s.RemoteSupply = append(s.RemoteSupply, RemoteSupply{
			ChainID: chainID,
			Amount:  p.remoteSupply[chainID],
		})
	}
	for _, applied := range p.applied {
		s.AppliedUpdates = append(s.AppliedUpdates, applied)
	}
	slices.SortFunc(s.AppliedUpdates, func(a, b AppliedUpdate) int {
		return compareIDs(a.ChainID, b.ChainID)
	})
	return s
}

func (p *Primary) setRemoteSupply(chainID ids.ID, amount uint64) {
	if amount == 0 {
		delete(p.remoteSupply, chainID)
		return
	}
	p.remoteSupply[chainID] = amount
}
