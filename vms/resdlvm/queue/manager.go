// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package queue buffers the operations a secondary ledger accepts locally
// until a reconciliation round with the primary ledger acknowledges them.
//
// Operations are grouped into update batches. The open batch collects new
// operations; sending an update closes it and opens the next one, and the
// acknowledgment of the closed batch finalizes it. Only operations of
// finalized batches may be executed.
package queue

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/utils/math"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

var (
	ErrTooManyQueuedLocks  = errors.New("too many queued locks")
	ErrUpdateInProgress    = errors.New("update in progress")
	ErrNoUpdateInProgress  = errors.New("no update in progress")
	ErrInvalidLastMintedID = errors.New("invalid last minted id")
	ErrUnexpectedBatch     = errors.New("unexpected batch")
)

// Phase of the reconciliation handshake.
type Phase uint8

const (
	// Idle means no update is awaiting acknowledgment.
	Idle Phase = iota
	// UpdatePending means an update was sent and its acknowledgment has not
	// been received.
	UpdatePending
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case UpdatePending:
		return "updatePending"
	default:
		return "unknown"
	}
}

// NewLockPointer locates a queued new lock inside its batch.
type NewLockPointer struct {
	BatchIndex uint64 `serialize:"true" json:"batchIndex"`
	Index      uint64 `serialize:"true" json:"index"`
}

// Update is the content of an outgoing reconciliation message.
type Update struct {
	BatchIndex      uint64   `serialize:"true" json:"batchIndex"`
	NumNewLocks     uint64   `serialize:"true" json:"numNewLocks"`
	NetSupplyChange int64    `serialize:"true" json:"netSupplyChange"`
	PendingLockIDs  []uint64 `serialize:"true" json:"pendingLockIds"`
}

// Mintable is a finalized queued lock paired with its permanent id.
type Mintable struct {
	ID   uint64
	Lock lock.Lock
}

type batch struct {
	locks     []lock.QueuedNewLock
	mintStart uint64
	unminted  uint64
}

// Manager is not safe for concurrent use.
type Manager struct {
	maxQueuedNewLocks int

	updateBatchIndex uint64
	phase            Phase
	inFlight         Update
	updateNeeded     bool
	supplyChange     int64

	batches         map[uint64]*batch
	newLocksByOwner map[ids.ShortID][]NewLockPointer
	lockUpdates     map[uint64][]lock.QueuedLockUpdate
}

// New returns an idle manager whose first open batch is 1.
func New(maxQueuedNewLocks int) *Manager {
	return &Manager{
		maxQueuedNewLocks: maxQueuedNewLocks,
		updateBatchIndex:  1,
		batches:           make(map[uint64]*batch),
		newLocksByOwner:   make(map[ids.ShortID][]NewLockPointer),
		lockUpdates:       make(map[uint64][]lock.QueuedLockUpdate),
	}
}

func (m *Manager) UpdateBatchIndex() uint64 {
	return m.updateBatchIndex
}

func (m *Manager) Phase() Phase {
	return m.phase
}

// SupplyChange is the net committed balance change queued since the last
// outgoing update.
func (m *Manager) SupplyChange() int64 {
	return m.supplyChange
}

// ShouldUpdate reports whether queued operations are waiting to be sent and
// no other update is in flight.
func (m *Manager) ShouldUpdate() bool {
	return m.updateNeeded && m.phase == Idle
}

// FinalizedBatchIndex is the highest batch whose acknowledgment has been
// received.
func (m *Manager) FinalizedBatchIndex() uint64 {
	if m.phase == UpdatePending {
		return m.updateBatchIndex - 2
	}
	return m.updateBatchIndex - 1
}

// VerifyNewLock checks the queue cap of [owner] without changing state.
func (m *Manager) VerifyNewLock(owner ids.ShortID) error {
	if len(m.newLocksByOwner[owner]) >= m.maxQueuedNewLocks {
		return ErrTooManyQueuedLocks
	}
	return nil
}

// QueueNewLock adds [l] to the open batch.
func (m *Manager) QueueNewLock(owner ids.ShortID, l lock.Lock) error {
	if err := m.VerifyNewLock(owner); err != nil {
		return err
	}
	supplyChange, err := addSupply(m.supplyChange, 0, l.CommittedBalance())
	if err != nil {
		return err
	}

	b := m.openBatch()
	m.newLocksByOwner[owner] = append(m.newLocksByOwner[owner], NewLockPointer{
		BatchIndex: m.updateBatchIndex,
		Index:      uint64(len(b.locks)),
	})
	b.locks = append(b.locks, lock.QueuedNewLock{
		Owner: owner,
		Lock:  l,
	})
	b.unminted++
	m.supplyChange = supplyChange
	m.updateNeeded = true
	return nil
}

// QueueLockUpdate queues [updated] as the next state of lock [id] whose
// latest state is [base]. A later update within the same batch replaces the
// earlier one.
func (m *Manager) QueueLockUpdate(id uint64, base, updated lock.Lock) error {
	supplyChange, err := addSupply(m.supplyChange, base.CommittedBalance(), updated.CommittedBalance())
	if err != nil {
		return err
	}

	update := lock.QueuedLockUpdate{
		LockID:           id,
		UpdateBatchIndex: m.updateBatchIndex,
		Lock:             updated,
	}
	updates := m.lockUpdates[id]
	if n := len(updates); n > 0 && updates[n-1].UpdateBatchIndex == m.updateBatchIndex {
		updates[n-1] = update
	} else {
		m.lockUpdates[id] = append(updates, update)
	}
	m.supplyChange = supplyChange
	m.updateNeeded = true
	return nil
}

// LatestState returns the most recently queued state of lock [id], or
// [current] if nothing is queued for it.
func (m *Manager) LatestState(id uint64, current lock.Lock) lock.Lock {
	updates := m.lockUpdates[id]
	if len(updates) == 0 {
		return current
	}
	return updates[len(updates)-1].Lock
}

func (m *Manager) HasQueuedUpdates(id uint64) bool {
	return len(m.lockUpdates[id]) != 0
}

// HasFinalized reports whether [owner] has new locks, or any of [lockIDs]
// has updates, in finalized batches.
func (m *Manager) HasFinalized(owner ids.ShortID, lockIDs []uint64) bool {
	finalized := m.FinalizedBatchIndex()
	if pointers := m.newLocksByOwner[owner]; len(pointers) > 0 && pointers[0].BatchIndex <= finalized {
		return true
	}
	for _, id := range lockIDs {
		if updates := m.lockUpdates[id]; len(updates) > 0 && updates[0].UpdateBatchIndex <= finalized {
			return true
		}
	}
	return false
}

// InFlight returns the update awaiting acknowledgment, if any.
func (m *Manager) InFlight() (*Update, bool) {
	if m.phase != UpdatePending {
		return nil, false
	}
	update := m.inFlight
	update.PendingLockIDs = slices.Clone(update.PendingLockIDs)
	return &update, true
}

// Outgoing closes the open batch and returns its content. The supply change
// is reset optimistically.
func (m *Manager) Outgoing() (*Update, error) {
	if m.phase == UpdatePending {
		return nil, ErrUpdateInProgress
	}

	update := &Update{
		BatchIndex:      m.updateBatchIndex,
		NetSupplyChange: m.supplyChange,
		PendingLockIDs:  m.pendingLockIDs(m.updateBatchIndex),
	}
	if b, ok := m.batches[m.updateBatchIndex]; ok {
		update.NumNewLocks = uint64(len(b.locks))
	}

	m.supplyChange = 0
	m.updateBatchIndex++
	m.phase = UpdatePending
	m.inFlight = *update
	m.inFlight.PendingLockIDs = slices.Clone(update.PendingLockIDs)
	m.updateNeeded = false
	return update, nil
}

// Incoming finalizes the in flight batch [batchIndex]. [lastMintedID] is the
// highest id the primary ledger committed for it; the batch's new locks take
// the ids ending at it in submission order.
func (m *Manager) Incoming(batchIndex, lastMintedID uint64) error {
	if m.phase != UpdatePending {
		return ErrNoUpdateInProgress
	}
	sent := m.updateBatchIndex - 1
	if batchIndex != sent {
		return fmt.Errorf("%w: %d while %d is in flight", ErrUnexpectedBatch, batchIndex, sent)
	}

	if b, ok := m.batches[sent]; ok && len(b.locks) > 0 {
		n := uint64(len(b.locks))
		if lastMintedID < n {
			return fmt.Errorf("%w: %d for %d new locks", ErrInvalidLastMintedID, lastMintedID, n)
		}
		b.mintStart = lastMintedID - n + 1
	}
	m.phase = Idle
	m.inFlight = Update{}
	return nil
}

// FinalizedNewLocks returns the finalized queued locks of [owner] together
// with their permanent ids, in submission order.
func (m *Manager) FinalizedNewLocks(owner ids.ShortID) []Mintable {
	finalized := m.FinalizedBatchIndex()

	var mintable []Mintable
	for _, p := range m.newLocksByOwner[owner] {
		if p.BatchIndex > finalized {
			break
		}
		b := m.batches[p.BatchIndex]
		mintable = append(mintable, Mintable{
			ID:   b.mintStart + p.Index,
			Lock: b.locks[p.Index].Lock,
		})
	}
	return mintable
}

// TakeFinalizedNewLocks removes and returns the finalized queued locks of
// [owner] together with their permanent ids.
func (m *Manager) TakeFinalizedNewLocks(owner ids.ShortID) []Mintable {
	mintable := m.FinalizedNewLocks(owner)
	pointers := m.newLocksByOwner[owner]
	for _, p := range pointers[:len(mintable)] {
		b := m.batches[p.BatchIndex]
		b.unminted--
		if b.unminted == 0 {
			delete(m.batches, p.BatchIndex)
		}
	}

	switch n := len(mintable); {
	case n == len(pointers):
		delete(m.newLocksByOwner, owner)
	case n > 0:
		m.newLocksByOwner[owner] = slices.Clone(pointers[n:])
	}
	return mintable
}

// TakeFinalizedUpdate removes the finalized updates of lock [id] and returns
// the latest of them.
func (m *Manager) TakeFinalizedUpdate(id uint64) (lock.QueuedLockUpdate, bool) {
	finalized := m.FinalizedBatchIndex()
	updates := m.lockUpdates[id]

	i := 0
	for i < len(updates) && updates[i].UpdateBatchIndex <= finalized {
		i++
	}
	if i == 0 {
		return lock.QueuedLockUpdate{}, false
	}

	latest := updates[i-1]
	if i == len(updates) {
		delete(m.lockUpdates, id)
	} else {
		m.lockUpdates[id] = slices.Clone(updates[i:])
	}
	return latest, true
}

// QueuedNewLocksByOwner returns the locks [owner] is waiting on, in
// submission order.
func (m *Manager) QueuedNewLocksByOwner(owner ids.ShortID) []lock.QueuedNewLock {
	pointers := m.newLocksByOwner[owner]
	queued := make([]lock.QueuedNewLock, 0, len(pointers))
	for _, p := range pointers {
		queued = append(queued, m.batches[p.BatchIndex].locks[p.Index])
	}
	return queued
}

// QueuedLockUpdates returns the outstanding updates of lock [id] in batch
// order.
func (m *Manager) QueuedLockUpdates(id uint64) []lock.QueuedLockUpdate {
	return slices.Clone(m.lockUpdates[id])
}

func (m *Manager) openBatch() *batch {
	b, ok := m.batches[m.updateBatchIndex]
	if !ok {
		b = &batch{}
		m.batches[m.updateBatchIndex] = b
	}
	return b
}

func (m *Manager) pendingLockIDs(batchIndex uint64) []uint64 {
	lockIDs := []uint64{}
	for id, updates := range m.lockUpdates {
		for _, update := range updates {
			if update.UpdateBatchIndex == batchIndex {
				lockIDs = append(lockIDs, id)
				break
			}
		}
	}
	slices.Sort(lockIDs)
	return lockIDs
}

func addSupply(current int64, before, after uint64) (int64, error) {
	delta, err := math.Delta(before, after)
	if err != nil {
		return 0, err
	}
	sum := current + delta
	if (delta > 0 && sum < current) || (delta < 0 && sum > current) {
		return 0, math.ErrOverflow
	}
	return sum, nil
}

func compareShortIDs(a, b ids.ShortID) int {
	return bytes.Compare(a[:], b[:])
}
