// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package queue

import (
	"fmt"
	"slices"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

// BatchSnapshot is the persisted content of one batch of new locks.
type BatchSnapshot struct {
	Index     uint64               `serialize:"true" json:"index"`
	MintStart uint64               `serialize:"true" json:"mintStart"`
	Unminted  uint64               `serialize:"true" json:"unminted"`
	Locks     []lock.QueuedNewLock `serialize:"true" json:"locks"`
}

// OwnerPointers lists the unminted new locks of one owner.
type OwnerPointers struct {
	Owner    ids.ShortID      `serialize:"true" json:"owner"`
	Pointers []NewLockPointer `serialize:"true" json:"pointers"`
}

// Snapshot is the persistable content of a Manager.
type Snapshot struct {
	UpdateBatchIndex uint64                  `serialize:"true" json:"updateBatchIndex"`
	UpdatePending    bool                    `serialize:"true" json:"updatePending"`
	InFlight         Update                  `serialize:"true" json:"inFlight"`
	UpdateNeeded     bool                    `serialize:"true" json:"updateNeeded"`
	SupplyChange     int64                   `serialize:"true" json:"supplyChange"`
	Batches          []BatchSnapshot         `serialize:"true" json:"batches"`
	NewLocksByOwner  []OwnerPointers         `serialize:"true" json:"newLocksByOwner"`
	LockUpdates      []lock.QueuedLockUpdate `serialize:"true" json:"lockUpdates"`
}

// Snapshot returns the manager content in a deterministic order.
func (m *Manager) Snapshot() *Snapshot {
	s := &Snapshot{
		UpdateBatchIndex: m.updateBatchIndex,
		UpdatePending:    m.phase == UpdatePending,
		InFlight:         m.inFlight,
		UpdateNeeded:     m.updateNeeded,
		SupplyChange:     m.supplyChange,
		Batches:          []BatchSnapshot{},
		NewLocksByOwner:  []OwnerPointers{},
		LockUpdates:      []lock.QueuedLockUpdate{},
	}

	batchIndices := make([]uint64, 0, len(m.batches))
	for index := range m.batches {
		batchIndices = append(batchIndices, index)
	}
	slices.Sort(batchIndices)
	for _, index := range batchIndices {
		b := m.batches[index]
		s.Batches = append(s.Batches, BatchSnapshot{
			Index:     index,
			MintStart: b.mintStart,
			Unminted:  b.unminted,
			Locks:     slices.Clone(b.locks),
		})
	}

	owners := make([]ids.ShortID, 0, len(m.newLocksByOwner))
	for owner := range m.newLocksByOwner {
		owners = append(owners, owner)
	}
	slices.SortFunc(owners, compareShortIDs)
	for _, owner := range owners {
		s.NewLocksByOwner = append(s.NewLocksByOwner, OwnerPointers{
			Owner:    owner,
			Pointers: slices.Clone(m.newLocksByOwner[owner]),
		})
	}

	lockIDs := make([]uint64, 0, len(m.lockUpdates))
	for id := range m.lockUpdates {
		lockIDs = append(lockIDs, id)
	}
	slices.Sort(lockIDs)
	for _, id := range lockIDs {
		s.LockUpdates = append(s.LockUpdates, m.lockUpdates[id]...)
	}
	return s
}

// Restore rebuilds a manager from a snapshot.
func Restore(maxQueuedNewLocks int, s *Snapshot) (*Manager, error) {
	if s.UpdateBatchIndex == 0 {
		return nil, fmt.Errorf("invalid update batch index %d", s.UpdateBatchIndex)
	}

	m := New(maxQueuedNewLocks)
	m.updateBatchIndex = s.UpdateBatchIndex
	m.updateNeeded = s.UpdateNeeded
	m.supplyChange = s.SupplyChange
	if s.UpdatePending {
		if s.InFlight.BatchIndex != s.UpdateBatchIndex-1 {
			return nil, fmt.Errorf("in flight batch %d does not precede %d", s.InFlight.BatchIndex, s.UpdateBatchIndex)
		}
		m.phase = UpdatePending
		m.inFlight = s.InFlight
		m.inFlight.PendingLockIDs = slices.Clone(s.InFlight.PendingLockIDs)
	}
	for _, b := range s.Batches {
		m.batches[b.Index] = &batch{
			locks:     slices.Clone(b.Locks),
			mintStart: b.MintStart,
			unminted:  b.Unminted,
		}
	}
	for _, op := range s.NewLocksByOwner {
		for _, p := range op.Pointers {
			b, ok := m.batches[p.BatchIndex]
			if !ok || p.Index >= uint64(len(b.locks)) {
				return nil, fmt.Errorf("dangling queued lock pointer %d/%d", p.BatchIndex, p.Index)
			}
		}
		m.newLocksByOwner[op.Owner] = slices.Clone(op.Pointers)
	}
	for _, update := range s.LockUpdates {
		m.lockUpdates[update.LockID] = append(m.lockUpdates[update.LockID], update)
	}
	return m, nil
}
