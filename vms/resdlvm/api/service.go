// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api provides the JSON-RPC service of the reSDL VM.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/utils/json"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

var ErrInvalidRequest = errors.New("invalid request")

// VM is the ledger served by the API.
type VM interface {
	Stake(caller ids.ShortID, id, amount, duration uint64) (uint64, error)
	ExtendLockDuration(caller ids.ShortID, id, duration uint64) error
	InitiateUnlock(caller ids.ShortID, id uint64) error
	Withdraw(caller ids.ShortID, id, amount uint64) error
	TransferFrom(caller, from, to ids.ShortID, id uint64) error
	SafeTransferFrom(caller, from, to ids.ShortID, id uint64, data []byte) error
	Approve(caller, spender ids.ShortID, id uint64) error
	SetApprovalForAll(caller, operator ids.ShortID, approved bool) error
	ExecuteQueuedOperations(caller ids.ShortID, lockIDs []uint64) error

	GetLocks(lockIDs []uint64) ([]lock.Lock, error)
	LockIDsByOwner(owner ids.ShortID) []uint64
	OwnerOf(id uint64) (ids.ShortID, error)
	BalanceOf(owner ids.ShortID) uint64
	GetApproved(id uint64) (ids.ShortID, error)
	IsApprovedForAll(owner, operator ids.ShortID) bool
	LastLockID() uint64
	EffectiveBalanceOf(account ids.ShortID) uint64
	Staked(account ids.ShortID) uint64
	TotalEffectiveBalance() uint64
	TotalStaked() uint64
	QueuedRESDLSupplyChange() int64
	QueuedNewLocksByOwner(owner ids.ShortID) []lock.QueuedNewLock
	QueuedLockUpdates(lockIDs []uint64) [][]lock.QueuedLockUpdate

	WithdrawableRewards(account ids.ShortID) uint64
	ClaimRewards(account ids.ShortID) uint64
}

// Service provides the RPC API of the reSDL VM.
//
// Callers are identified by the address in the request. Authenticating that
// address is left to the node serving the API.
type Service struct {
	vm  VM
	log log.Logger
}

func NewService(vm VM, logger log.Logger) *Service {
	return &Service{
		vm:  vm,
		log: logger,
	}
}

// ============================================
// Lock operations
// ============================================

type StakeArgs struct {
	Caller   ids.ShortID `json:"caller"`
	LockID   json.Uint64 `json:"lockID"`
	Amount   json.Uint64 `json:"amount"`
	Duration json.Uint64 `json:"duration"`
}

type StakeReply struct {
	LockID json.Uint64 `json:"lockID"`
}

// Stake deposits into an existing lock, or into a new one when lockID is 0.
// Secondary ledgers queue new locks and reply with lockID 0.
func (s *Service) Stake(_ *http.Request, args *StakeArgs, reply *StakeReply) error {
	s.log.Debug("API called",
		log.String("service", "resdl"),
		log.String("method", "stake"),
		log.Stringer("caller", args.Caller),
	)

	id, err := s.vm.Stake(args.Caller, uint64(args.LockID), uint64(args.Amount), uint64(args.Duration))
	if err != nil {
		return err
	}
	reply.LockID = json.Uint64(id)
	return nil
}

type ExtendLockDurationArgs struct {
	Caller   ids.ShortID `json:"caller"`
	LockID   json.Uint64 `json:"lockID"`
	Duration json.Uint64 `json:"duration"`
}

func (s *Service) ExtendLockDuration(_ *http.Request, args *ExtendLockDurationArgs, _ *EmptyReply) error {
	return s.vm.ExtendLockDuration(args.Caller, uint64(args.LockID), uint64(args.Duration))
}

type LockArgs struct {
	Caller ids.ShortID `json:"caller"`
	LockID json.Uint64 `json:"lockID"`
}

// EmptyArgs is the argument of calls that take none.
type EmptyArgs struct{}

// EmptyReply is the reply of calls that return nothing.
type EmptyReply struct{}

func (s *Service) InitiateUnlock(_ *http.Request, args *LockArgs, _ *EmptyReply) error {
	return s.vm.InitiateUnlock(args.Caller, uint64(args.LockID))
}

type WithdrawArgs struct {
	Caller ids.ShortID `json:"caller"`
	LockID json.Uint64 `json:"lockID"`
	Amount json.Uint64 `json:"amount"`
}

func (s *Service) Withdraw(_ *http.Request, args *WithdrawArgs, _ *EmptyReply) error {
	return s.vm.Withdraw(args.Caller, uint64(args.LockID), uint64(args.Amount))
}

type TransferArgs struct {
	Caller ids.ShortID `json:"caller"`
	From   ids.ShortID `json:"from"`
	To     ids.ShortID `json:"to"`
	LockID json.Uint64 `json:"lockID"`
	// Safe transfers consult the receiver hook of contract accounts.
	Safe bool   `json:"safe"`
	Data []byte `json:"data"`
}

func (s *Service) TransferFrom(_ *http.Request, args *TransferArgs, _ *EmptyReply) error {
	if args.Safe {
		return s.vm.SafeTransferFrom(args.Caller, args.From, args.To, uint64(args.LockID), args.Data)
	}
	if len(args.Data) != 0 {
		return fmt.Errorf("%w: data requires a safe transfer", ErrInvalidRequest)
	}
	return s.vm.TransferFrom(args.Caller, args.From, args.To, uint64(args.LockID))
}

type ApproveArgs struct {
	Caller  ids.ShortID `json:"caller"`
	Spender ids.ShortID `json:"spender"`
	LockID  json.Uint64 `json:"lockID"`
}

func (s *Service) Approve(_ *http.Request, args *ApproveArgs, _ *EmptyReply) error {
	return s.vm.Approve(args.Caller, args.Spender, uint64(args.LockID))
}

type SetApprovalForAllArgs struct {
	Caller   ids.ShortID `json:"caller"`
	Operator ids.ShortID `json:"operator"`
	Approved bool        `json:"approved"`
}

func (s *Service) SetApprovalForAll(_ *http.Request, args *SetApprovalForAllArgs, _ *EmptyReply) error {
	return s.vm.SetApprovalForAll(args.Caller, args.Operator, args.Approved)
}

type ExecuteQueuedOperationsArgs struct {
	Caller  ids.ShortID   `json:"caller"`
	LockIDs []json.Uint64 `json:"lockIDs"`
}

func (s *Service) ExecuteQueuedOperations(_ *http.Request, args *ExecuteQueuedOperationsArgs, _ *EmptyReply) error {
	return s.vm.ExecuteQueuedOperations(args.Caller, toUint64s(args.LockIDs))
}

// ============================================
// Queries
// ============================================

type GetLocksArgs struct {
	LockIDs []json.Uint64 `json:"lockIDs"`
}

type GetLocksReply struct {
	Locks []lock.Lock `json:"locks"`
}

func (s *Service) GetLocks(_ *http.Request, args *GetLocksArgs, reply *GetLocksReply) error {
	locks, err := s.vm.GetLocks(toUint64s(args.LockIDs))
	if err != nil {
		return err
	}
	reply.Locks = locks
	return nil
}

type AccountArgs struct {
	Account ids.ShortID `json:"account"`
}

type LockIDsReply struct {
	LockIDs []json.Uint64 `json:"lockIDs"`
}

func (s *Service) GetLockIDsByOwner(_ *http.Request, args *AccountArgs, reply *LockIDsReply) error {
	reply.LockIDs = toJSONUint64s(s.vm.LockIDsByOwner(args.Account))
	return nil
}

type OwnerReply struct {
	Owner ids.ShortID `json:"owner"`
}

func (s *Service) OwnerOf(_ *http.Request, args *LockArgs, reply *OwnerReply) error {
	owner, err := s.vm.OwnerOf(uint64(args.LockID))
	if err != nil {
		return err
	}
	reply.Owner = owner
	return nil
}

func (s *Service) GetApproved(_ *http.Request, args *LockArgs, reply *OwnerReply) error {
	approved, err := s.vm.GetApproved(uint64(args.LockID))
	if err != nil {
		return err
	}
	reply.Owner = approved
	return nil
}

type IsApprovedForAllArgs struct {
	Owner    ids.ShortID `json:"owner"`
	Operator ids.ShortID `json:"operator"`
}

type IsApprovedForAllReply struct {
	Approved bool `json:"approved"`
}

func (s *Service) IsApprovedForAll(_ *http.Request, args *IsApprovedForAllArgs, reply *IsApprovedForAllReply) error {
	reply.Approved = s.vm.IsApprovedForAll(args.Owner, args.Operator)
	return nil
}

type BalanceReply struct {
	Balance json.Uint64 `json:"balance"`
}

// BalanceOf returns the number of locks held by the account.
func (s *Service) BalanceOf(_ *http.Request, args *AccountArgs, reply *BalanceReply) error {
	reply.Balance = json.Uint64(s.vm.BalanceOf(args.Account))
	return nil
}

func (s *Service) EffectiveBalanceOf(_ *http.Request, args *AccountArgs, reply *BalanceReply) error {
	reply.Balance = json.Uint64(s.vm.EffectiveBalanceOf(args.Account))
	return nil
}

func (s *Service) Staked(_ *http.Request, args *AccountArgs, reply *BalanceReply) error {
	reply.Balance = json.Uint64(s.vm.Staked(args.Account))
	return nil
}

type TotalsReply struct {
	LastLockID              json.Uint64 `json:"lastLockID"`
	TotalStaked             json.Uint64 `json:"totalStaked"`
	TotalEffectiveBalance   json.Uint64 `json:"totalEffectiveBalance"`
	QueuedRESDLSupplyChange int64       `json:"queuedRESDLSupplyChange"`
}

// GetTotals returns the aggregates of the ledger.
func (s *Service) GetTotals(_ *http.Request, _ *EmptyArgs, reply *TotalsReply) error {
	reply.LastLockID = json.Uint64(s.vm.LastLockID())
	reply.TotalStaked = json.Uint64(s.vm.TotalStaked())
	reply.TotalEffectiveBalance = json.Uint64(s.vm.TotalEffectiveBalance())
	reply.QueuedRESDLSupplyChange = s.vm.QueuedRESDLSupplyChange()
	return nil
}

type QueuedNewLocksReply struct {
	Locks []lock.QueuedNewLock `json:"locks"`
}

func (s *Service) GetQueuedNewLocksByOwner(_ *http.Request, args *AccountArgs, reply *QueuedNewLocksReply) error {
	reply.Locks = s.vm.QueuedNewLocksByOwner(args.Account)
	return nil
}

type QueuedLockUpdatesReply struct {
	Updates [][]lock.QueuedLockUpdate `json:"updates"`
}

func (s *Service) GetQueuedLockUpdates(_ *http.Request, args *GetLocksArgs, reply *QueuedLockUpdatesReply) error {
	reply.Updates = s.vm.QueuedLockUpdates(toUint64s(args.LockIDs))
	return nil
}

// ============================================
// Rewards
// ============================================

type RewardsReply struct {
	Amount json.Uint64 `json:"amount"`
}

func (s *Service) GetWithdrawableRewards(_ *http.Request, args *AccountArgs, reply *RewardsReply) error {
	reply.Amount = json.Uint64(s.vm.WithdrawableRewards(args.Account))
	return nil
}

func (s *Service) ClaimRewards(_ *http.Request, args *AccountArgs, reply *RewardsReply) error {
	reply.Amount = json.Uint64(s.vm.ClaimRewards(args.Account))
	s.log.Debug("claimed rewards",
		log.Stringer("account", args.Account),
		log.Uint64("amount", uint64(reply.Amount)),
	)
	return nil
}

func toUint64s(values []json.Uint64) []uint64 {
	converted := make([]uint64, len(values))
	for i, v := range values {
		converted[i] = uint64(v)
	}
	return converted
}

func toJSONUint64s(values []uint64) []json.Uint64 {
	converted := make([]json.Uint64, len(values))
	for i, v := range values {
		converted[i] = json.Uint64(v)
	}
	return converted
}
