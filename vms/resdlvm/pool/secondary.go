// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/queue"
)

// Secondary accepts operations locally and queues them. Queued operations
// change no balance until a reconciliation round acknowledges their batch
// and the owner executes them.
type Secondary struct {
	*Pool

	queue *queue.Manager
}

func NewSecondary(config Config, maxQueuedNewLocks int) (*Secondary, error) {
	return RestoreSecondary(config, maxQueuedNewLocks, nil)
}

// RestoreSecondary rebuilds a secondary ledger from [snapshot]. A nil
// snapshot returns an empty ledger.
func RestoreSecondary(config Config, maxQueuedNewLocks int, snapshot *Snapshot) (*Secondary, error) {
	if maxQueuedNewLocks <= 0 {
		return nil, fmt.Errorf("%w: max queued new locks %d", ErrInvalidValue, maxQueuedNewLocks)
	}
	if snapshot == nil {
		p, err := newPool(config, nil)
		if err != nil {
			return nil, err
		}
		return &Secondary{
			Pool:  p,
			queue: queue.New(maxQueuedNewLocks),
		}, nil
	}

	p, err := newPool(config, &snapshot.Registry)
	if err != nil {
		return nil, err
	}
	q, err := queue.Restore(maxQueuedNewLocks, &snapshot.Queue)
	if err != nil {
		return nil, err
	}
	return &Secondary{
		Pool:  p,
		queue: q,
	}, nil
}

// Stake queues a deposit of [amount] into lock [id] held by [caller], or
// into a new lock when [id] is 0.
func (s *Secondary) Stake(caller ids.ShortID, id, amount, duration uint64) error {
	now := s.clock.Unix()
	if id == 0 {
		if caller == ids.ShortEmpty {
			return ErrTransferToInvalidAddress
		}
		if err := s.queue.VerifyNewLock(caller); err != nil {
			return err
		}
		l, err := s.newLock(amount, duration, now)
		if err != nil {
			return err
		}
		return s.queue.QueueNewLock(caller, l)
	}

	latest, err := s.latest(caller, id)
	if err != nil {
		return err
	}
	updated, err := s.stake(latest, amount, duration, now)
	if err != nil {
		return err
	}
	return s.queue.QueueLockUpdate(id, latest, updated)
}

func (s *Secondary) ExtendLockDuration(caller ids.ShortID, id, duration uint64) error {
	latest, err := s.latest(caller, id)
	if err != nil {
		return err
	}
	updated, err := s.extend(latest, duration, s.clock.Unix())
	if err != nil {
		return err
	}
	return s.queue.QueueLockUpdate(id, latest, updated)
}

func (s *Secondary) InitiateUnlock(caller ids.ShortID, id uint64) error {
	latest, err := s.latest(caller, id)
	if err != nil {
		return err
	}
	updated, err := initiateUnlock(latest, s.clock.Unix())
	if err != nil {
		return err
	}
	return s.queue.QueueLockUpdate(id, latest, updated)
}

// Withdraw queues the withdrawal of [amount] of principal from lock [id].
// The lock is burned when an update leaving no principal is executed.
func (s *Secondary) Withdraw(caller ids.ShortID, id, amount uint64) error {
	latest, err := s.latest(caller, id)
	if err != nil {
		return err
	}
	updated, err := withdraw(latest, amount, s.clock.Unix())
	if err != nil {
		return err
	}
	return s.queue.QueueLockUpdate(id, latest, updated)
}

func (s *Secondary) TransferFrom(caller, from, to ids.ShortID, id uint64) error {
	if s.queue.HasQueuedUpdates(id) {
		return ErrTransferWithQueuedUpdates
	}
	return s.transfer(caller, from, to, id, nil, false)
}

func (s *Secondary) SafeTransferFrom(caller, from, to ids.ShortID, id uint64, data []byte) error {
	if s.queue.HasQueuedUpdates(id) {
		return ErrTransferWithQueuedUpdates
	}
	return s.transfer(caller, from, to, id, data, true)
}

// ShouldUpdate reports whether queued operations are waiting to be sent to
// the primary ledger.
func (s *Secondary) ShouldUpdate() bool {
	return s.queue.ShouldUpdate()
}

// HandleOutgoingUpdate closes the open batch and returns the update to send
// to the primary ledger.
func (s *Secondary) HandleOutgoingUpdate() (*queue.Update, error) {
	return s.queue.Outgoing()
}

// HandleIncomingUpdate finalizes batch [batchIndex], which must be in
// flight. [lastMintedID] is the last id the primary ledger reserved for it.
func (s *Secondary) HandleIncomingUpdate(batchIndex, lastMintedID uint64) error {
	return s.queue.Incoming(batchIndex, lastMintedID)
}

// InFlightUpdate returns the update awaiting acknowledgment, if any.
func (s *Secondary) InFlightUpdate() (*queue.Update, bool) {
	return s.queue.InFlight()
}

// ExecuteQueuedOperations mints the finalized new locks of [caller] and
// applies the finalized updates of [lockIDs], which must be held by
// [caller]. Calling it with nothing finalized is a no-op.
func (s *Secondary) ExecuteQueuedOperations(caller ids.ShortID, lockIDs []uint64) error {
	for _, id := range lockIDs {
		owner, err := s.registry.OwnerOf(id)
		if err != nil {
			return fmt.Errorf("%w: %d", err, id)
		}
		if owner != caller {
			return ErrSenderNotAuthorized
		}
	}
	for _, mintable := range s.queue.FinalizedNewLocks(caller) {
		if mintable.ID == 0 || s.registry.Exists(mintable.ID) {
			return fmt.Errorf("%w: %d", ErrLockIDInUse, mintable.ID)
		}
	}

	for _, mintable := range s.queue.TakeFinalizedNewLocks(caller) {
		if err := s.mint(caller, mintable.ID, mintable.Lock); err != nil {
			return err
		}
	}
	for _, id := range lockIDs {
		update, ok := s.queue.TakeFinalizedUpdate(id)
		if !ok {
			continue
		}
		current, err := s.registry.Get(id)
		if err != nil {
			return err
		}
		if err := s.apply(caller, id, current, update.Lock); err != nil {
			return err
		}
	}
	return nil
}

// HandleOutgoingRESDL releases lock [id] of [sender] towards [receiver] on
// the primary ledger.
func (s *Secondary) HandleOutgoingRESDL(sender, receiver ids.ShortID, id uint64) (lock.Lock, error) {
	if s.queue.HasQueuedUpdates(id) {
		return lock.Lock{}, ErrTransferWithQueuedUpdates
	}
	return s.release(sender, receiver, id)
}

// HandleIncomingRESDL recreates lock [id] relocated from the primary ledger
// for [receiver].
func (s *Secondary) HandleIncomingRESDL(receiver ids.ShortID, id uint64, l lock.Lock) error {
	if err := l.Verify(); err != nil {
		return err
	}
	return s.mint(receiver, id, l)
}

func (s *Secondary) Phase() queue.Phase {
	return s.queue.Phase()
}

func (s *Secondary) UpdateBatchIndex() uint64 {
	return s.queue.UpdateBatchIndex()
}

// QueuedRESDLSupplyChange is the net committed balance change not yet sent
// to the primary ledger.
func (s *Secondary) QueuedRESDLSupplyChange() int64 {
	return s.queue.SupplyChange()
}

func (s *Secondary) QueuedNewLocksByOwner(owner ids.ShortID) []lock.QueuedNewLock {
	return s.queue.QueuedNewLocksByOwner(owner)
}

// QueuedLockUpdates returns the outstanding updates of each of [lockIDs].
func (s *Secondary) QueuedLockUpdates(lockIDs []uint64) [][]lock.QueuedLockUpdate {
	updates := make([][]lock.QueuedLockUpdate, len(lockIDs))
	for i, id := range lockIDs {
		updates[i] = s.queue.QueuedLockUpdates(id)
	}
	return updates
}

// Snapshot returns the persistable content of the ledger.
func (s *Secondary) Snapshot() *Snapshot {
	return &Snapshot{
		Registry:       *s.registry.Snapshot(),
		Queue:          *s.queue.Snapshot(),
		RemoteSupply:   []RemoteSupply{},
		AppliedUpdates: []AppliedUpdate{},
	}
}

// latest returns the most recently queued state of lock [id] if [caller]
// owns it. A lock whose principal is queued for withdrawal in full is treated
// as burned.
func (s *Secondary) latest(caller ids.ShortID, id uint64) (lock.Lock, error) {
	current, err := s.authorize(caller, id)
	if err != nil {
		return lock.Lock{}, err
	}
	latest := s.queue.LatestState(id, current)
	if latest.Amount == 0 {
		return lock.Lock{}, ErrInvalidLockID
	}
	return latest, nil
}
