// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/utils/units"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/queue"
	"github.com/luxfi/resdl/vms/resdlvm/rewards"
)

func newTestSecondary(t *testing.T, hook rewards.Hook) *Secondary {
	s, err := NewSecondary(newTestConfig(t, hook), testMaxQueuedNewLocks)
	require.NoError(t, err)
	return s
}

// newTestPair returns a primary and a secondary ledger sharing a clock.
func newTestPair(t *testing.T) (*Primary, *Secondary) {
	config := newTestConfig(t, nil)
	p, err := NewPrimary(config, ids.GenerateTestShortID())
	require.NoError(t, err)
	s, err := NewSecondary(config, testMaxQueuedNewLocks)
	require.NoError(t, err)
	return p, s
}

// reconcile runs one round between [s] and [p] and returns the last id the
// primary reserved.
func reconcile(t *testing.T, s *Secondary, p *Primary, chainID ids.ID) uint64 {
	require := require.New(t)

	update, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	lastMintedID, err := p.HandleIncomingUpdate(chainID, update.BatchIndex, update.NumNewLocks, update.NetSupplyChange)
	require.NoError(err)
	require.NoError(s.HandleIncomingUpdate(update.BatchIndex, lastMintedID))
	return lastMintedID
}

func TestSecondaryStakeWithoutLock(t *testing.T) {
	require := require.New(t)

	s := newTestSecondary(t, nil)
	alice := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, 0))
	require.Zero(s.TotalEffectiveBalance())
	require.Equal([]lock.QueuedNewLock{{
		Owner: alice,
		Lock:  lock.Lock{Amount: 100},
	}}, s.QueuedNewLocksByOwner(alice))
	require.Equal(int64(100), s.QueuedRESDLSupplyChange())
	require.True(s.ShouldUpdate())

	update, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	require.Equal(int64(100), update.NetSupplyChange)
	require.Equal(uint64(1), update.NumNewLocks)
	require.Empty(update.PendingLockIDs)
	require.Zero(s.QueuedRESDLSupplyChange())
	require.Equal(queue.UpdatePending, s.Phase())

	_, err = s.HandleOutgoingUpdate()
	require.ErrorIs(err, ErrUpdateInProgress)

	// nothing is executable before the acknowledgment
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.Zero(s.TotalEffectiveBalance())

	require.ErrorIs(s.HandleIncomingUpdate(2, 1), ErrUnexpectedBatch)
	require.NoError(s.HandleIncomingUpdate(1, 1))
	require.ErrorIs(s.HandleIncomingUpdate(1, 1), ErrNoUpdateInProgress)
	require.NoError(s.ExecuteQueuedOperations(alice, []uint64{}))

	owner, err := s.OwnerOf(1)
	require.NoError(err)
	require.Equal(alice, owner)
	require.Equal(uint64(100), s.TotalEffectiveBalance())
	require.Equal(uint64(100), s.TotalStaked())
	require.Empty(s.QueuedNewLocksByOwner(alice))
	requireConserved(t, s.Pool, alice)

	// nothing to unlock and nothing queued
	require.ErrorIs(s.InitiateUnlock(alice, 1), ErrNoLockingDuration)
	require.False(s.ShouldUpdate())
	require.Zero(s.QueuedRESDLSupplyChange())
	require.Empty(s.QueuedLockUpdates([]uint64{1})[0])
}

func TestSecondaryExecuteIsIdempotent(t *testing.T) {
	require := require.New(t)

	s := newTestSecondary(t, nil)
	alice := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, units.Year))
	_, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	require.NoError(s.HandleIncomingUpdate(1, 7))
	require.NoError(s.ExecuteQueuedOperations(alice, nil))

	snapshot := s.Snapshot()
	total := s.TotalEffectiveBalance()
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.Equal(snapshot, s.Snapshot())
	require.Equal(total, s.TotalEffectiveBalance())
	require.Equal([]uint64{7}, s.LockIDsByOwner(alice))
}

func TestSecondaryQueueCap(t *testing.T) {
	require := require.New(t)

	s := newTestSecondary(t, nil)
	alice := ids.GenerateTestShortID()

	for i := 0; i < testMaxQueuedNewLocks; i++ {
		require.NoError(s.Stake(alice, 0, 10, 0))
	}
	require.ErrorIs(s.Stake(alice, 0, 10, 0), ErrTooManyQueuedLocks)

	_, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	require.NoError(s.HandleIncomingUpdate(1, testMaxQueuedNewLocks))
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.Equal(uint64(testMaxQueuedNewLocks), s.BalanceOf(alice))

	require.NoError(s.Stake(alice, 0, 10, 0))
}

func TestSecondaryQueuedLockUpdates(t *testing.T) {
	require := require.New(t)

	p, s := newTestPair(t)
	chainID := ids.GenerateTestID()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, units.Year))
	id := reconcile(t, s, p, chainID)
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.Equal(uint64(200), s.EffectiveBalanceOf(alice))
	require.Equal(uint64(200), p.EffectiveBalanceOf(p.BridgeAccount()))

	require.ErrorIs(s.ExtendLockDuration(bob, id, 2*units.Year), ErrSenderNotAuthorized)
	require.ErrorIs(s.ExtendLockDuration(alice, id, units.Year), ErrInvalidLockingDuration)
	require.NoError(s.ExtendLockDuration(alice, id, 2*units.Year))
	require.NoError(s.Stake(alice, id, 100, 2*units.Year))

	// queued updates change no balance and block transfers
	require.Equal(uint64(200), s.EffectiveBalanceOf(alice))
	require.Equal(int64(400), s.QueuedRESDLSupplyChange())
	require.Len(s.QueuedLockUpdates([]uint64{id})[0], 1)
	require.ErrorIs(s.TransferFrom(alice, alice, bob, id), ErrTransferWithQueuedUpdates)
	_, err := s.HandleOutgoingRESDL(alice, alice, id)
	require.ErrorIs(err, ErrTransferWithQueuedUpdates)

	update, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	require.Equal([]uint64{id}, update.PendingLockIDs)
	require.Zero(update.NumNewLocks)
	lastMintedID, err := p.HandleIncomingUpdate(chainID, update.BatchIndex, update.NumNewLocks, update.NetSupplyChange)
	require.NoError(err)

	require.ErrorIs(s.ExecuteQueuedOperations(bob, []uint64{id}), ErrSenderNotAuthorized)
	require.NoError(s.HandleIncomingUpdate(update.BatchIndex, lastMintedID))
	require.ErrorIs(s.ExecuteQueuedOperations(bob, []uint64{id}), ErrSenderNotAuthorized)
	require.ErrorIs(s.ExecuteQueuedOperations(alice, []uint64{id + 1}), ErrInvalidLockID)

	require.NoError(s.ExecuteQueuedOperations(alice, []uint64{id}))
	locks, err := s.GetLocks([]uint64{id})
	require.NoError(err)
	require.Equal(lock.Lock{
		Amount:      200,
		BoostAmount: 400,
		StartTime:   p.clock.Unix(),
		Duration:    2 * units.Year,
	}, locks[0])
	require.Equal(uint64(600), s.EffectiveBalanceOf(alice))
	require.Equal(uint64(600), p.EffectiveBalanceOf(p.BridgeAccount()))
	require.Empty(s.QueuedLockUpdates([]uint64{id})[0])

	require.NoError(s.TransferFrom(alice, alice, bob, id))
	require.Equal(uint64(600), s.EffectiveBalanceOf(bob))
	requireConserved(t, s.Pool, alice, bob)
}

func TestSecondaryUnlockAndWithdraw(t *testing.T) {
	require := require.New(t)

	p, s := newTestPair(t)
	chainID := ids.GenerateTestID()
	alice := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, units.Year))
	id := reconcile(t, s, p, chainID)
	require.NoError(s.ExecuteQueuedOperations(alice, nil))

	require.ErrorIs(s.InitiateUnlock(alice, id), ErrHalfDurationNotElapsed)
	require.ErrorIs(s.Withdraw(alice, id, 100), ErrUnlockNotInitiated)

	p.clock.Advance(year / 2)
	require.NoError(s.InitiateUnlock(alice, id))
	require.ErrorIs(s.InitiateUnlock(alice, id), ErrUnlockAlreadyInitiated)
	require.Equal(int64(-100), s.QueuedRESDLSupplyChange())
	require.ErrorIs(s.Withdraw(alice, id, 100), ErrTotalDurationNotElapsed)

	p.clock.Advance(year / 2)
	require.ErrorIs(s.Withdraw(alice, id, 101), ErrInsufficientBalance)
	require.NoError(s.Withdraw(alice, id, 100))
	require.Equal(int64(-200), s.QueuedRESDLSupplyChange())

	// the lock is gone from the caller's point of view
	require.ErrorIs(s.Withdraw(alice, id, 1), ErrInvalidLockID)

	reconcile(t, s, p, chainID)
	require.Zero(s.QueuedRESDLSupplyChange())
	require.NoError(s.ExecuteQueuedOperations(alice, []uint64{id}))

	_, err := s.OwnerOf(id)
	require.ErrorIs(err, ErrInvalidLockID)
	require.Zero(s.TotalEffectiveBalance())
	require.Zero(p.RemoteSupply(chainID))
	require.Zero(p.TotalEffectiveBalance())
}

func TestSecondaryUpdatesSpanBatches(t *testing.T) {
	require := require.New(t)

	p, s := newTestPair(t)
	chainID := ids.GenerateTestID()
	alice := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, 0))
	id := reconcile(t, s, p, chainID)
	require.NoError(s.ExecuteQueuedOperations(alice, nil))

	require.NoError(s.Stake(alice, id, 50, 0))
	update, err := s.HandleOutgoingUpdate()
	require.NoError(err)

	// queued while the first batch is in flight
	require.NoError(s.Stake(alice, id, 25, 0))
	require.Len(s.QueuedLockUpdates([]uint64{id})[0], 2)

	lastMintedID, err := p.HandleIncomingUpdate(chainID, update.BatchIndex, update.NumNewLocks, update.NetSupplyChange)
	require.NoError(err)
	require.NoError(s.HandleIncomingUpdate(update.BatchIndex, lastMintedID))
	require.NoError(s.ExecuteQueuedOperations(alice, []uint64{id}))
	require.Equal(uint64(150), s.EffectiveBalanceOf(alice))
	require.Len(s.QueuedLockUpdates([]uint64{id})[0], 1)

	reconcile(t, s, p, chainID)
	require.NoError(s.ExecuteQueuedOperations(alice, []uint64{id}))
	require.Equal(uint64(175), s.EffectiveBalanceOf(alice))
	require.Equal(uint64(175), p.RemoteSupply(chainID))
	require.False(s.ShouldUpdate())
}

func TestRelocationRoundTrip(t *testing.T) {
	require := require.New(t)

	p, s := newTestPair(t)
	chainID := ids.GenerateTestID()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	id, err := p.Stake(alice, 0, 100, units.Year)
	require.NoError(err)
	total := p.TotalEffectiveBalance()

	l, err := p.HandleOutgoingRESDL(chainID, alice, bob, id)
	require.NoError(err)
	require.NoError(s.HandleIncomingRESDL(bob, id, l))
	require.Equal(total, p.TotalEffectiveBalance())
	require.Equal(uint64(200), s.EffectiveBalanceOf(bob))

	l, err = s.HandleOutgoingRESDL(bob, alice, id)
	require.NoError(err)
	require.Zero(s.TotalEffectiveBalance())
	require.NoError(p.HandleIncomingRESDL(chainID, alice, id, l))

	require.Equal(total, p.TotalEffectiveBalance())
	require.Equal(uint64(200), p.EffectiveBalanceOf(alice))
	require.Zero(p.RemoteSupply(chainID))
	requireConserved(t, p.Pool, alice)
}

func TestSecondarySnapshotRestore(t *testing.T) {
	require := require.New(t)

	s := newTestSecondary(t, nil)
	alice := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, units.Year))
	_, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	require.NoError(s.HandleIncomingUpdate(1, 1))
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.NoError(s.Stake(alice, 1, 10, units.Year))
	require.NoError(s.Stake(alice, 0, 5, 0))

	config := newTestConfig(t, nil)
	config.Clock = s.clock
	restored, err := RestoreSecondary(config, testMaxQueuedNewLocks, s.Snapshot())
	require.NoError(err)

	require.Equal(s.Snapshot(), restored.Snapshot())
	require.Equal(s.TotalEffectiveBalance(), restored.TotalEffectiveBalance())
	require.Equal(s.QueuedRESDLSupplyChange(), restored.QueuedRESDLSupplyChange())
	require.Equal(s.QueuedNewLocksByOwner(alice), restored.QueuedNewLocksByOwner(alice))

	_, err = NewSecondary(config, 0)
	require.ErrorIs(err, ErrInvalidValue)
}

func TestSecondaryInFlightUpdateSurvivesRestore(t *testing.T) {
	require := require.New(t)

	s := newTestSecondary(t, nil)
	alice := ids.GenerateTestShortID()

	_, ok := s.InFlightUpdate()
	require.False(ok)

	require.NoError(s.Stake(alice, 0, 100, 0))
	update, err := s.HandleOutgoingUpdate()
	require.NoError(err)

	config := newTestConfig(t, nil)
	config.Clock = s.clock
	restored, err := RestoreSecondary(config, testMaxQueuedNewLocks, s.Snapshot())
	require.NoError(err)

	inFlight, ok := restored.InFlightUpdate()
	require.True(ok)
	require.Equal(update, inFlight)
	require.Equal(queue.UpdatePending, restored.Phase())
}

func TestSecondaryRejectedExecuteLeavesNoChange(t *testing.T) {
	require := require.New(t)

	p, s := newTestPair(t)
	chainID := ids.GenerateTestID()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, 0))
	reconcile(t, s, p, chainID)
	require.NoError(s.ExecuteQueuedOperations(alice, nil))

	// lock 2 is taken before the next batch is acknowledged with it
	require.NoError(s.HandleIncomingRESDL(bob, 2, lock.Lock{Amount: 10}))

	require.NoError(s.Stake(alice, 0, 50, 0))
	update, err := s.HandleOutgoingUpdate()
	require.NoError(err)
	require.NoError(s.HandleIncomingUpdate(update.BatchIndex, 2))

	before := s.Snapshot()
	total := s.TotalStaked()
	require.ErrorIs(s.ExecuteQueuedOperations(alice, nil), ErrLockIDInUse)
	require.Equal(before, s.Snapshot())
	require.Equal(total, s.TotalStaked())
	require.Len(s.QueuedNewLocksByOwner(alice), 1)
}

func TestSecondaryRejectedRelocationLeavesNoChange(t *testing.T) {
	require := require.New(t)

	p, s := newTestPair(t)
	chainID := ids.GenerateTestID()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(s.Stake(alice, 0, 100, units.Year))
	id := reconcile(t, s, p, chainID)
	require.NoError(s.ExecuteQueuedOperations(alice, nil))
	require.NoError(s.Stake(alice, id, 10, units.Year))

	before := s.Snapshot()
	total := s.TotalEffectiveBalance()

	_, err := s.HandleOutgoingRESDL(alice, bob, id)
	require.ErrorIs(err, ErrTransferWithQueuedUpdates)
	_, err = s.HandleOutgoingRESDL(bob, alice, id)
	require.ErrorIs(err, ErrTransferWithQueuedUpdates)
	_, err = s.HandleOutgoingRESDL(alice, bob, id+1)
	require.ErrorIs(err, ErrInvalidLockID)
	require.ErrorIs(s.HandleIncomingRESDL(bob, id, lock.Lock{Amount: 10}), ErrLockIDInUse)
	require.ErrorIs(s.HandleIncomingRESDL(bob, id+1, lock.Lock{Amount: 10, BoostAmount: 10}), lock.ErrInvalidLock)
	require.ErrorIs(s.HandleIncomingRESDL(ids.ShortEmpty, id+1, lock.Lock{Amount: 10}), ErrTransferToInvalidAddress)

	require.Equal(before, s.Snapshot())
	require.Equal(total, s.TotalEffectiveBalance())
}
