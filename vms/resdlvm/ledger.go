// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resdlvm

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/config"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

// Stake deposits [amount] into lock [id] of [caller], or into a new lock if
// [id] is 0. The primary ledger returns the id of the lock. The secondary
// ledger queues the deposit and returns 0 for new locks.
func (vm *VM) Stake(caller ids.ShortID, id, amount, duration uint64) (uint64, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	lockID := id
	err := vm.execute(func() error {
		if vm.primary != nil {
			var err error
			lockID, err = vm.primary.Stake(caller, id, amount, duration)
			return err
		}
		return vm.secondary.Stake(caller, id, amount, duration)
	})
	return lockID, err
}

func (vm *VM) ExtendLockDuration(caller ids.ShortID, id, duration uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.ExtendLockDuration(caller, id, duration)
	})
}

func (vm *VM) InitiateUnlock(caller ids.ShortID, id uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.InitiateUnlock(caller, id)
	})
}

func (vm *VM) Withdraw(caller ids.ShortID, id, amount uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.Withdraw(caller, id, amount)
	})
}

func (vm *VM) TransferFrom(caller, from, to ids.ShortID, id uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.TransferFrom(caller, from, to, id)
	})
}

func (vm *VM) SafeTransferFrom(caller, from, to ids.ShortID, id uint64, data []byte) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.SafeTransferFrom(caller, from, to, id, data)
	})
}

func (vm *VM) Approve(caller, spender ids.ShortID, id uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.Approve(caller, spender, id)
	})
}

func (vm *VM) SetApprovalForAll(caller, operator ids.ShortID, approved bool) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.ledger.SetApprovalForAll(caller, operator, approved)
	})
}

// ExecuteQueuedOperations applies the acknowledged operations of [caller].
func (vm *VM) ExecuteQueuedOperations(caller ids.ShortID, lockIDs []uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.secondary == nil {
		return ErrWrongRole
	}
	return vm.execute(func() error {
		return vm.secondary.ExecuteQueuedOperations(caller, lockIDs)
	})
}

// DistributeRewards splits [amount] across the current effective balances.
func (vm *VM) DistributeRewards(amount uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.rewards.Distribute(amount)
}

func (vm *VM) WithdrawableRewards(account ids.ShortID) uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.rewards.Withdrawable(account)
}

// ClaimRewards pays out the rewards accrued by [account].
func (vm *VM) ClaimRewards(account ids.ShortID) uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.rewards.Claim(account)
}

func (vm *VM) Role() config.Role {
	return vm.Config.Role
}

func (vm *VM) GetLocks(lockIDs []uint64) ([]lock.Lock, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.GetLocks(lockIDs)
}

func (vm *VM) LockIDsByOwner(owner ids.ShortID) []uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.LockIDsByOwner(owner)
}

func (vm *VM) OwnerOf(id uint64) (ids.ShortID, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.OwnerOf(id)
}

func (vm *VM) BalanceOf(owner ids.ShortID) uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.BalanceOf(owner)
}

func (vm *VM) GetApproved(id uint64) (ids.ShortID, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.GetApproved(id)
}

func (vm *VM) IsApprovedForAll(owner, operator ids.ShortID) bool {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.IsApprovedForAll(owner, operator)
}

func (vm *VM) LastLockID() uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.LastLockID()
}

func (vm *VM) EffectiveBalanceOf(account ids.ShortID) uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.EffectiveBalanceOf(account)
}

func (vm *VM) Staked(account ids.ShortID) uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.Staked(account)
}

func (vm *VM) TotalEffectiveBalance() uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.TotalEffectiveBalance()
}

func (vm *VM) TotalStaked() uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.ledger.TotalStaked()
}

// QueuedRESDLSupplyChange is always 0 on the primary ledger.
func (vm *VM) QueuedRESDLSupplyChange() int64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.secondary == nil {
		return 0
	}
	return vm.secondary.QueuedRESDLSupplyChange()
}

func (vm *VM) QueuedNewLocksByOwner(owner ids.ShortID) []lock.QueuedNewLock {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.secondary == nil {
		return nil
	}
	return vm.secondary.QueuedNewLocksByOwner(owner)
}

func (vm *VM) QueuedLockUpdates(lockIDs []uint64) [][]lock.QueuedLockUpdate {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.secondary == nil {
		return make([][]lock.QueuedLockUpdate, len(lockIDs))
	}
	return vm.secondary.QueuedLockUpdates(lockIDs)
}

// RemoteSupply returns the committed balance held on [chainID]. It is always
// 0 on secondary ledgers.
func (vm *VM) RemoteSupply(chainID ids.ID) uint64 {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.primary == nil {
		return 0
	}
	return vm.primary.RemoteSupply(chainID)
}
