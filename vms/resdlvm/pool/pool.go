// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool implements the primary and secondary reSDL ledgers.
//
// Both ledgers hold locks in a registry and keep effective balance
// aggregates in a Ledger. The primary ledger applies every operation
// immediately. The secondary ledger queues operations until a reconciliation
// round with the primary ledger acknowledges them.
//
// Neither ledger is safe for concurrent use. Every entry point validates its
// arguments before changing state, so a rejected call leaves the ledger
// untouched.
package pool

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/utils/timer/mockable"
	"github.com/luxfi/resdl/vms/resdlvm/boost"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/registry"
	"github.com/luxfi/resdl/vms/resdlvm/rewards"
)

// Config holds the collaborators shared by both ledgers.
type Config struct {
	Clock     *mockable.Clock
	Curve     boost.Curve
	Directory registry.Directory
	Hook      rewards.Hook
}

// Pool is the part of a ledger shared by the primary and secondary roles.
type Pool struct {
	clock    *mockable.Clock
	curve    boost.Curve
	registry *registry.Registry
	ledger   *Ledger
}

func newPool(config Config, snapshot *registry.Snapshot) (*Pool, error) {
	clock := config.Clock
	if clock == nil {
		clock = &mockable.Clock{}
	}
	if config.Curve == nil {
		return nil, fmt.Errorf("%w: missing curve", boost.ErrInvalidCurve)
	}

	p := &Pool{
		clock:    clock,
		curve:    config.Curve,
		registry: registry.New(config.Directory),
		ledger:   NewLedger(clock, rewards.NoOp{}),
	}
	if snapshot != nil {
		r, err := registry.Restore(config.Directory, snapshot)
		if err != nil {
			return nil, err
		}
		p.registry = r
		for _, owned := range snapshot.Locks {
			if err := p.ledger.Add(owned.Owner, owned.ID, owned.Lock); err != nil {
				return nil, fmt.Errorf("booking lock %d: %w", owned.ID, err)
			}
		}
	}
	if config.Hook != nil {
		p.ledger.hook = config.Hook
	}
	return p, nil
}

func (p *Pool) Clock() *mockable.Clock {
	return p.clock
}

func (p *Pool) BoostCurve() boost.Curve {
	return p.curve
}

// SetBoostCurve replaces the curve used for future boosts. Stored boosts are
// not recomputed.
func (p *Pool) SetBoostCurve(curve boost.Curve) error {
	if curve == nil {
		return fmt.Errorf("%w: missing curve", boost.ErrInvalidCurve)
	}
	p.curve = curve
	return nil
}

// GetLocks returns the locks recorded under [lockIDs] in the same order.
func (p *Pool) GetLocks(lockIDs []uint64) ([]lock.Lock, error) {
	locks := make([]lock.Lock, len(lockIDs))
	for i, id := range lockIDs {
		l, err := p.registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %d", err, id)
		}
		locks[i] = l
	}
	return locks, nil
}

func (p *Pool) LockIDsByOwner(owner ids.ShortID) []uint64 {
	return p.registry.LockIDsByOwner(owner)
}

func (p *Pool) OwnerOf(id uint64) (ids.ShortID, error) {
	return p.registry.OwnerOf(id)
}

func (p *Pool) BalanceOf(owner ids.ShortID) uint64 {
	return p.registry.BalanceOf(owner)
}

func (p *Pool) LastLockID() uint64 {
	return p.registry.LastLockID()
}

func (p *Pool) EffectiveBalanceOf(account ids.ShortID) uint64 {
	return p.ledger.EffectiveBalanceOf(account)
}

func (p *Pool) Staked(account ids.ShortID) uint64 {
	return p.ledger.Staked(account)
}

func (p *Pool) TotalEffectiveBalance() uint64 {
	return p.ledger.TotalEffectiveBalance()
}

func (p *Pool) Accounts() []ids.ShortID {
	return p.ledger.Accounts()
}

func (p *Pool) TotalStaked() uint64 {
	return p.ledger.TotalStaked()
}

func (p *Pool) Approve(caller, spender ids.ShortID, id uint64) error {
	return p.registry.Approve(caller, spender, id)
}

func (p *Pool) GetApproved(id uint64) (ids.ShortID, error) {
	return p.registry.GetApproved(id)
}

func (p *Pool) SetApprovalForAll(caller, operator ids.ShortID, approved bool) error {
	return p.registry.SetApprovalForAll(caller, operator, approved)
}

func (p *Pool) IsApprovedForAll(owner, operator ids.ShortID) bool {
	return p.registry.IsApprovedForAll(owner, operator)
}

// transfer moves [id] and its effective balance from [from] to [to]. Safe
// transfers consult the receiver before anything changes.
func (p *Pool) transfer(caller, from, to ids.ShortID, id uint64, data []byte, safe bool) error {
	if err := p.registry.VerifyTransfer(caller, from, to, id); err != nil {
		return err
	}
	if safe {
		if err := p.registry.VerifyReceiver(caller, from, to, id, data); err != nil {
			return err
		}
	}

	l, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	if err := p.ledger.Move(from, to, id, l); err != nil {
		return err
	}
	p.registry.Move(from, to, id)
	return nil
}

// authorize returns the lock [id] if [caller] owns it.
func (p *Pool) authorize(caller ids.ShortID, id uint64) (lock.Lock, error) {
	owner, err := p.registry.OwnerOf(id)
	if err != nil {
		return lock.Lock{}, err
	}
	if owner != caller {
		return lock.Lock{}, ErrSenderNotAuthorized
	}
	return p.registry.Get(id)
}

// apply records [updated] as the new state of [id] held by [owner], burning
// the lock once its principal is gone.
func (p *Pool) apply(owner ids.ShortID, id uint64, current, updated lock.Lock) error {
	if updated.Amount == 0 {
		return p.burn(owner, id, current)
	}
	if err := p.ledger.Update(owner, id, current, updated); err != nil {
		return err
	}
	return p.registry.Set(id, updated)
}

func (p *Pool) mint(owner ids.ShortID, id uint64, l lock.Lock) error {
	switch {
	case owner == ids.ShortEmpty:
		return ErrTransferToInvalidAddress
	case id == 0:
		return ErrInvalidLockID
	case p.registry.Exists(id):
		return fmt.Errorf("%w: %d", registry.ErrLockIDInUse, id)
	}
	if err := p.ledger.Add(owner, id, l); err != nil {
		return err
	}
	return p.registry.Mint(owner, id, l)
}

func (p *Pool) burn(owner ids.ShortID, id uint64, current lock.Lock) error {
	if err := p.ledger.Remove(owner, id, current); err != nil {
		return err
	}
	return p.registry.Burn(id)
}

// release removes [id] from [sender] for relocation to a counterpart ledger.
func (p *Pool) release(sender, receiver ids.ShortID, id uint64) (lock.Lock, error) {
	if receiver == ids.ShortEmpty {
		return lock.Lock{}, ErrTransferToInvalidAddress
	}
	l, err := p.authorize(sender, id)
	if err != nil {
		return lock.Lock{}, err
	}
	if err := p.burn(sender, id, l); err != nil {
		return lock.Lock{}, err
	}
	return l, nil
}
