// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry tracks lock records together with their NFT style
// ownership and approval relations.
//
// A Registry is not safe for concurrent use. Callers serialise access.
package registry

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

// Approval records a single token approval.
type Approval struct {
	LockID  uint64      `serialize:"true" json:"lockId"`
	Spender ids.ShortID `serialize:"true" json:"spender"`
}

// OperatorApproval records an owner wide operator approval.
type OperatorApproval struct {
	Owner    ids.ShortID `serialize:"true" json:"owner"`
	Operator ids.ShortID `serialize:"true" json:"operator"`
}

// Snapshot is the persistable content of a Registry.
type Snapshot struct {
	LastLockID uint64             `serialize:"true" json:"lastLockId"`
	Locks      []lock.Owned       `serialize:"true" json:"locks"`
	Approvals  []Approval         `serialize:"true" json:"approvals"`
	Operators  []OperatorApproval `serialize:"true" json:"operators"`
}

type Registry struct {
	locks     map[uint64]lock.Lock
	owners    map[uint64]ids.ShortID
	byOwner   map[ids.ShortID]set.Set[uint64]
	approvals map[uint64]ids.ShortID
	operators map[ids.ShortID]set.Set[ids.ShortID]

	lastLockID uint64
	directory  Directory
}

// New returns an empty registry. A nil directory treats every address as
// externally owned.
func New(directory Directory) *Registry {
	if directory == nil {
		directory = NewAccounts()
	}
	return &Registry{
		locks:     make(map[uint64]lock.Lock),
		owners:    make(map[uint64]ids.ShortID),
		byOwner:   make(map[ids.ShortID]set.Set[uint64]),
		approvals: make(map[uint64]ids.ShortID),
		operators: make(map[ids.ShortID]set.Set[ids.ShortID]),
		directory: directory,
	}
}

// Restore rebuilds a registry from a snapshot.
func Restore(directory Directory, snapshot *Snapshot) (*Registry, error) {
	r := New(directory)
	for _, owned := range snapshot.Locks {
		if err := r.Mint(owned.Owner, owned.ID, owned.Lock); err != nil {
			return nil, fmt.Errorf("restoring lock %d: %w", owned.ID, err)
		}
	}
	for _, approval := range snapshot.Approvals {
		if _, ok := r.owners[approval.LockID]; !ok {
			return nil, fmt.Errorf("restoring approval for lock %d: %w", approval.LockID, ErrInvalidLockID)
		}
		r.approvals[approval.LockID] = approval.Spender
	}
	for _, op := range snapshot.Operators {
		r.setOperator(op.Owner, op.Operator, true)
	}
	r.lastLockID = max(r.lastLockID, snapshot.LastLockID)
	return r, nil
}

// Snapshot returns the registry content ordered by lock id.
func (r *Registry) Snapshot() *Snapshot {
	s := &Snapshot{
		LastLockID: r.lastLockID,
		Locks:      make([]lock.Owned, 0, len(r.locks)),
		Approvals:  make([]Approval, 0, len(r.approvals)),
	}
	for _, id := range sortedKeys(r.locks) {
		s.Locks = append(s.Locks, lock.Owned{
			ID:    id,
			Owner: r.owners[id],
			Lock:  r.locks[id],
		})
	}
	for _, id := range sortedKeys(r.approvals) {
		s.Approvals = append(s.Approvals, Approval{
			LockID:  id,
			Spender: r.approvals[id],
		})
	}
	owners := make([]ids.ShortID, 0, len(r.operators))
	for owner := range r.operators {
		owners = append(owners, owner)
	}
	slices.SortFunc(owners, compareShortIDs)
	for _, owner := range owners {
		operators := r.operators[owner].List()
		slices.SortFunc(operators, compareShortIDs)
		for _, operator := range operators {
			s.Operators = append(s.Operators, OperatorApproval{
				Owner:    owner,
				Operator: operator,
			})
		}
	}
	return s
}

// LastLockID returns the highest id ever minted.
func (r *Registry) LastLockID() uint64 {
	return r.lastLockID
}

// ReserveIDs advances the id counter by [n] and returns the last reserved
// id.
func (r *Registry) ReserveIDs(n uint64) uint64 {
	r.lastLockID += n
	return r.lastLockID
}

// Create mints [l] to [owner] under the next sequential id.
func (r *Registry) Create(owner ids.ShortID, l lock.Lock) (uint64, error) {
	if l.Amount == 0 {
		return 0, ErrInvalidValue
	}
	id := r.lastLockID + 1
	if err := r.Mint(owner, id, l); err != nil {
		return 0, err
	}
	return id, nil
}

// Mint records [l] under an explicit id. It is used when ids are assigned by
// a counterpart ledger.
func (r *Registry) Mint(owner ids.ShortID, id uint64, l lock.Lock) error {
	switch {
	case owner == ids.ShortEmpty:
		return ErrTransferToInvalidAddress
	case id == 0:
		return ErrInvalidLockID
	}
	if _, ok := r.owners[id]; ok {
		return fmt.Errorf("%w: %d", ErrLockIDInUse, id)
	}
	r.locks[id] = l
	r.owners[id] = owner
	r.index(owner).Add(id)
	r.lastLockID = max(r.lastLockID, id)
	return nil
}

// Get returns the lock recorded under [id].
func (r *Registry) Get(id uint64) (lock.Lock, error) {
	if _, ok := r.owners[id]; !ok {
		return lock.Lock{}, ErrInvalidLockID
	}
	return r.locks[id], nil
}

// Exists reports whether [id] is currently minted.
func (r *Registry) Exists(id uint64) bool {
	_, ok := r.owners[id]
	return ok
}

// Set overwrites the lock recorded under an existing [id].
func (r *Registry) Set(id uint64, l lock.Lock) error {
	if _, ok := r.owners[id]; !ok {
		return ErrInvalidLockID
	}
	r.locks[id] = l
	return nil
}

// Burn removes [id] and all of its relations.
func (r *Registry) Burn(id uint64) error {
	owner, ok := r.owners[id]
	if !ok {
		return ErrInvalidLockID
	}
	delete(r.locks, id)
	delete(r.owners, id)
	delete(r.approvals, id)
	r.unindex(owner, id)
	return nil
}

func (r *Registry) OwnerOf(id uint64) (ids.ShortID, error) {
	owner, ok := r.owners[id]
	if !ok {
		return ids.ShortEmpty, ErrInvalidLockID
	}
	return owner, nil
}

func (r *Registry) BalanceOf(owner ids.ShortID) uint64 {
	return uint64(r.byOwner[owner].Len())
}

// LockIDsByOwner returns the ids owned by [owner] in ascending order.
func (r *Registry) LockIDsByOwner(owner ids.ShortID) []uint64 {
	lockIDs := r.byOwner[owner].List()
	slices.Sort(lockIDs)
	return lockIDs
}

// Approve lets [spender] transfer [id]. An empty spender clears the approval.
func (r *Registry) Approve(caller, spender ids.ShortID, id uint64) error {
	owner, err := r.OwnerOf(id)
	if err != nil {
		return err
	}
	if spender == owner {
		return ErrApprovalToCurrentOwner
	}
	if caller != owner && !r.IsApprovedForAll(owner, caller) {
		return ErrSenderNotAuthorized
	}
	if spender == ids.ShortEmpty {
		delete(r.approvals, id)
		return nil
	}
	r.approvals[id] = spender
	return nil
}

func (r *Registry) GetApproved(id uint64) (ids.ShortID, error) {
	if _, ok := r.owners[id]; !ok {
		return ids.ShortEmpty, ErrInvalidLockID
	}
	return r.approvals[id], nil
}

func (r *Registry) SetApprovalForAll(caller, operator ids.ShortID, approved bool) error {
	if caller == operator {
		return ErrApprovalToCaller
	}
	r.setOperator(caller, operator, approved)
	return nil
}

func (r *Registry) IsApprovedForAll(owner, operator ids.ShortID) bool {
	return r.operators[owner].Contains(operator)
}

// VerifyTransfer checks that [caller] may move [id] from [from] to [to]
// without changing any state.
func (r *Registry) VerifyTransfer(caller, from, to ids.ShortID, id uint64) error {
	owner, err := r.OwnerOf(id)
	if err != nil {
		return err
	}
	switch {
	case caller != owner && r.approvals[id] != caller && !r.IsApprovedForAll(owner, caller):
		return ErrSenderNotAuthorized
	case from != owner:
		return ErrTransferFromIncorrectOwner
	case to == ids.ShortEmpty:
		return ErrTransferToInvalidAddress
	default:
		return nil
	}
}

// VerifyReceiver runs the receiver hook of [to] if it is a contract. The
// caller supplied [data] is forwarded unmodified.
func (r *Registry) VerifyReceiver(operator, from, to ids.ShortID, id uint64, data []byte) error {
	if !r.directory.IsContract(to) {
		return nil
	}
	receiver, ok := r.directory.Receiver(to)
	if !ok {
		return ErrTransferToNonERC721Implementer
	}
	accepted, err := receiver.OnLockReceived(operator, from, id, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferToNonERC721Implementer, err)
	}
	if !accepted {
		return ErrTransferToNonERC721Implementer
	}
	return nil
}

// Move changes the owner of [id] and clears its approval. Callers must have
// run VerifyTransfer first.
func (r *Registry) Move(from, to ids.ShortID, id uint64) {
	delete(r.approvals, id)
	r.unindex(from, id)
	r.owners[id] = to
	r.index(to).Add(id)
}

func (r *Registry) index(owner ids.ShortID) set.Set[uint64] {
	lockIDs, ok := r.byOwner[owner]
	if !ok {
		lockIDs = make(set.Set[uint64])
		r.byOwner[owner] = lockIDs
	}
	return lockIDs
}

func (r *Registry) unindex(owner ids.ShortID, id uint64) {
	lockIDs := r.byOwner[owner]
	lockIDs.Remove(id)
	if lockIDs.Len() == 0 {
		delete(r.byOwner, owner)
	}
}

func (r *Registry) setOperator(owner, operator ids.ShortID, approved bool) {
	if approved {
		operators, ok := r.operators[owner]
		if !ok {
			operators = make(set.Set[ids.ShortID])
			r.operators[owner] = operators
		}
		operators.Add(operator)
		return
	}
	operators := r.operators[owner]
	operators.Remove(operator)
	if operators.Len() == 0 {
		delete(r.operators, owner)
	}
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func compareShortIDs(a, b ids.ShortID) int {
	return bytes.Compare(a[:], b[:])
}
