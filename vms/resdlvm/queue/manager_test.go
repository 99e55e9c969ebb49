// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

const testMaxQueuedNewLocks = 5

func TestQueueNewLockCap(t *testing.T) {
	require := require.New(t)

	m := New(testMaxQueuedNewLocks)
	owner := ids.GenerateTestShortID()

	for i := 0; i < testMaxQueuedNewLocks; i++ {
		require.NoError(m.QueueNewLock(owner, lock.Lock{Amount: 10}))
	}
	require.ErrorIs(m.QueueNewLock(owner, lock.Lock{Amount: 10}), ErrTooManyQueuedLocks)

	// other accounts are unaffected
	require.NoError(m.QueueNewLock(ids.GenerateTestShortID(), lock.Lock{Amount: 10}))

	update, err := m.Outgoing()
	require.NoError(err)
	require.Equal(uint64(testMaxQueuedNewLocks+1), update.NumNewLocks)

	// still queued until the batch is finalized and executed
	require.ErrorIs(m.QueueNewLock(owner, lock.Lock{Amount: 10}), ErrTooManyQueuedLocks)

	require.NoError(m.Incoming(1, testMaxQueuedNewLocks+1))
	require.Len(m.TakeFinalizedNewLocks(owner), testMaxQueuedNewLocks)
	require.NoError(m.QueueNewLock(owner, lock.Lock{Amount: 10}))
}

func TestHandshakePhases(t *testing.T) {
	require := require.New(t)

	m := New(testMaxQueuedNewLocks)
	require.Equal(Idle, m.Phase())
	require.False(m.ShouldUpdate())

	require.ErrorIs(m.Incoming(0, 0), ErrNoUpdateInProgress)
	_, ok := m.InFlight()
	require.False(ok)

	require.NoError(m.QueueNewLock(ids.GenerateTestShortID(), lock.Lock{Amount: 100}))
	require.True(m.ShouldUpdate())
	require.Equal(int64(100), m.SupplyChange())

	update, err := m.Outgoing()
	require.NoError(err)
	require.Equal(&Update{
		BatchIndex:      1,
		NumNewLocks:     1,
		NetSupplyChange: 100,
		PendingLockIDs:  []uint64{},
	}, update)
	require.Equal(UpdatePending, m.Phase())
	inFlight, ok := m.InFlight()
	require.True(ok)
	require.Equal(update, inFlight)
	require.Zero(m.SupplyChange())
	require.Equal(uint64(2), m.UpdateBatchIndex())
	require.False(m.ShouldUpdate())
	require.Zero(m.FinalizedBatchIndex())

	_, err = m.Outgoing()
	require.ErrorIs(err, ErrUpdateInProgress)

	// operations queued while pending go into the next batch
	require.NoError(m.QueueNewLock(ids.GenerateTestShortID(), lock.Lock{Amount: 5}))
	require.False(m.ShouldUpdate())

	// acknowledgments of other batches are rejected
	require.ErrorIs(m.Incoming(2, 1), ErrUnexpectedBatch)
	require.ErrorIs(m.Incoming(0, 1), ErrUnexpectedBatch)
	require.Equal(UpdatePending, m.Phase())

	require.NoError(m.Incoming(1, 1))
	require.ErrorIs(m.Incoming(1, 1), ErrNoUpdateInProgress)
	_, ok = m.InFlight()
	require.False(ok)
	require.Equal(Idle, m.Phase())
	require.Equal(uint64(1), m.FinalizedBatchIndex())
	require.True(m.ShouldUpdate())
}

func TestIncomingAssignsIDsInSubmissionOrder(t *testing.T) {
	require := require.New(t)

	m := New(testMaxQueuedNewLocks)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(m.QueueNewLock(alice, lock.Lock{Amount: 1}))
	require.NoError(m.QueueNewLock(bob, lock.Lock{Amount: 2}))
	require.NoError(m.QueueNewLock(alice, lock.Lock{Amount: 3}))

	_, err := m.Outgoing()
	require.NoError(err)
	require.Empty(m.TakeFinalizedNewLocks(alice))

	require.ErrorIs(m.Incoming(1, 2), ErrInvalidLastMintedID)
	require.NoError(m.Incoming(1, 12))

	// reading does not consume
	require.Len(m.FinalizedNewLocks(alice), 2)
	require.Len(m.FinalizedNewLocks(alice), 2)
	require.Equal([]Mintable{
		{ID: 10, Lock: lock.Lock{Amount: 1}},
		{ID: 12, Lock: lock.Lock{Amount: 3}},
	}, m.TakeFinalizedNewLocks(alice))
	require.Equal([]Mintable{
		{ID: 11, Lock: lock.Lock{Amount: 2}},
	}, m.TakeFinalizedNewLocks(bob))

	require.Empty(m.TakeFinalizedNewLocks(alice))
	require.Empty(m.batches)
}

func TestQueueLockUpdate(t *testing.T) {
	require := require.New(t)

	m := New(testMaxQueuedNewLocks)
	const id = 3
	current := lock.Lock{Amount: 100}

	require.Equal(current, m.LatestState(id, current))
	require.False(m.HasQueuedUpdates(id))

	first := lock.Lock{Amount: 150}
	require.NoError(m.QueueLockUpdate(id, current, first))
	second := lock.Lock{Amount: 170}
	require.NoError(m.QueueLockUpdate(id, first, second))

	// same batch updates collapse
	require.Equal([]lock.QueuedLockUpdate{
		{LockID: id, UpdateBatchIndex: 1, Lock: second},
	}, m.QueuedLockUpdates(id))
	require.Equal(int64(70), m.SupplyChange())
	require.Equal(second, m.LatestState(id, current))

	update, err := m.Outgoing()
	require.NoError(err)
	require.Equal([]uint64{id}, update.PendingLockIDs)

	third := lock.Lock{Amount: 120}
	require.NoError(m.QueueLockUpdate(id, second, third))
	require.Equal(int64(-50), m.SupplyChange())
	require.Len(m.QueuedLockUpdates(id), 2)

	_, ok := m.TakeFinalizedUpdate(id)
	require.False(ok)

	require.NoError(m.Incoming(1, 0))
	require.True(m.HasFinalized(ids.GenerateTestShortID(), []uint64{id}))

	latest, ok := m.TakeFinalizedUpdate(id)
	require.True(ok)
	require.Equal(second, latest.Lock)
	require.Equal([]lock.QueuedLockUpdate{
		{LockID: id, UpdateBatchIndex: 2, Lock: third},
	}, m.QueuedLockUpdates(id))
	require.False(m.HasFinalized(ids.GenerateTestShortID(), []uint64{id}))
}

func TestSnapshotRestore(t *testing.T) {
	require := require.New(t)

	m := New(testMaxQueuedNewLocks)
	alice := ids.GenerateTestShortID()
	require.NoError(m.QueueNewLock(alice, lock.Lock{Amount: 1}))
	require.NoError(m.QueueLockUpdate(4, lock.Lock{Amount: 1}, lock.Lock{Amount: 9}))
	_, err := m.Outgoing()
	require.NoError(err)
	require.NoError(m.QueueNewLock(alice, lock.Lock{Amount: 2}))

	snapshot := m.Snapshot()
	restored, err := Restore(testMaxQueuedNewLocks, snapshot)
	require.NoError(err)
	require.Equal(snapshot, restored.Snapshot())
	require.Equal(UpdatePending, restored.Phase())

	inFlight, ok := restored.InFlight()
	require.True(ok)
	require.Equal(&Update{
		BatchIndex:      1,
		NumNewLocks:     1,
		NetSupplyChange: 9,
		PendingLockIDs:  []uint64{4},
	}, inFlight)

	require.NoError(restored.Incoming(1, 7))
	require.Equal([]Mintable{{ID: 7, Lock: lock.Lock{Amount: 1}}}, restored.TakeFinalizedNewLocks(alice))
	require.Len(restored.QueuedNewLocksByOwner(alice), 1)
}

func TestPhaseString(t *testing.T) {
	require := require.New(t)

	require.Equal("idle", Idle.String())
	require.Equal("updatePending", UpdatePending.String())
	require.Equal("unknown", Phase(7).String())
}

func TestRestoreRejectsInconsistentInFlight(t *testing.T) {
	require := require.New(t)

	m := New(testMaxQueuedNewLocks)
	require.NoError(m.QueueNewLock(ids.GenerateTestShortID(), lock.Lock{Amount: 1}))
	_, err := m.Outgoing()
	require.NoError(err)

	snapshot := m.Snapshot()
	snapshot.InFlight.BatchIndex = 5
	_, err = Restore(testMaxQueuedNewLocks, snapshot)
	require.ErrorContains(err, "in flight batch")
}
