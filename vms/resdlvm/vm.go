// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package resdlvm runs a primary or secondary reSDL ledger.
//
// Every operation runs under a single lock and is persisted with the
// resulting ledger snapshot. An operation that fails, or whose result cannot
// be persisted, is rolled back.
package resdlvm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/utils/json"
	"github.com/luxfi/version"

	"github.com/luxfi/resdl"
	"github.com/luxfi/resdl/utils/timer/mockable"
	"github.com/luxfi/resdl/vms/resdlvm/api"
	"github.com/luxfi/resdl/vms/resdlvm/config"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/metrics"
	"github.com/luxfi/resdl/vms/resdlvm/pool"
	"github.com/luxfi/resdl/vms/resdlvm/reconcile"
	"github.com/luxfi/resdl/vms/resdlvm/registry"
	"github.com/luxfi/resdl/vms/resdlvm/rewards"
	"github.com/luxfi/resdl/vms/resdlvm/state"
)

const Name = "resdl"

var (
	_ resdl.VM = (*VM)(nil)
	_ api.VM   = (*VM)(nil)

	Version = &version.Semantic{
		Major: 1,
		Minor: 0,
		Patch: 0,
	}

	ErrNotReady       = errors.New("vm not ready")
	ErrWrongRole      = errors.New("operation not supported by this ledger")
	ErrNotConnected   = errors.New("ledger not connected")
	ErrAlreadyStarted = errors.New("controller already connected")
)

// ledger is the part of the primary and secondary ledgers the VM serves
// directly.
type ledger interface {
	ExtendLockDuration(caller ids.ShortID, id, duration uint64) error
	InitiateUnlock(caller ids.ShortID, id uint64) error
	Withdraw(caller ids.ShortID, id, amount uint64) error
	TransferFrom(caller, from, to ids.ShortID, id uint64) error
	SafeTransferFrom(caller, from, to ids.ShortID, id uint64, data []byte) error
	Approve(caller, spender ids.ShortID, id uint64) error
	GetApproved(id uint64) (ids.ShortID, error)
	SetApprovalForAll(caller, operator ids.ShortID, approved bool) error
	IsApprovedForAll(owner, operator ids.ShortID) bool

	GetLocks(lockIDs []uint64) ([]lock.Lock, error)
	LockIDsByOwner(owner ids.ShortID) []uint64
	OwnerOf(id uint64) (ids.ShortID, error)
	BalanceOf(owner ids.ShortID) uint64
	LastLockID() uint64
	EffectiveBalanceOf(account ids.ShortID) uint64
	Staked(account ids.ShortID) uint64
	TotalEffectiveBalance() uint64
	TotalStaked() uint64
	Accounts() []ids.ShortID

	Snapshot() *pool.Snapshot
}

type VM struct {
	Config config.Config

	log      log.Logger
	metrics  metrics.Metrics
	state    *state.State
	clock    mockable.Clock
	accounts *registry.Accounts
	rewards  *rewards.Pool

	lock      sync.Mutex
	vmState   resdl.State
	ledger    ledger
	primary   *pool.Primary
	secondary *pool.Secondary
	// committed is the snapshot of the last persisted ledger.
	committed *pool.Snapshot

	primaryController   *reconcile.PrimaryController
	secondaryController *reconcile.SecondaryController
}

func (vm *VM) Initialize(_ context.Context, chainCtx *resdl.Context) error {
	if chainCtx.Log != nil {
		vm.log = chainCtx.Log
	}
	if vm.log == nil {
		vm.log = log.NoLog{}
	}

	if len(chainCtx.Config) != 0 {
		c, err := config.Parse(chainCtx.Config)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		vm.Config = c
	}
	if vm.Config.ChainID == ids.Empty {
		vm.Config.ChainID = chainCtx.ChainID
	}
	if err := vm.Config.Verify(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	vm.log.Info("initializing resdlvm",
		log.Stringer("version", Version),
		log.String("role", string(vm.Config.Role)),
		log.Stringer("chainID", vm.Config.ChainID),
	)

	vm.metrics = metrics.Noop
	if chainCtx.Registerer != nil {
		m, err := metrics.New(chainCtx.Registerer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		vm.metrics = m
	}

	vm.accounts = registry.NewAccounts()
	vm.rewards = rewards.NewPool()
	vm.rewards.SetSource(ledgerSource{vm: vm})
	vm.state = state.New(chainCtx.DB)

	vm.lock.Lock()
	defer vm.lock.Unlock()

	vm.vmState = resdl.Bootstrapping
	snapshot, err := vm.state.GetSnapshot()
	switch {
	case errors.Is(err, database.ErrNotFound):
		snapshot = nil
	case err != nil:
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	if err := vm.restore(snapshot); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}

	if vm.Config.Role == config.Primary {
		vm.primaryController, err = reconcile.NewPrimaryController(vm.log, primaryLedger{vm: vm}, vm.Config.ReplyCacheSize)
		if err != nil {
			return err
		}
	}
	vm.markLedger()

	vm.log.Info("initialized resdlvm",
		log.Uint64("lastLockID", vm.ledger.LastLockID()),
		log.Uint64("totalStaked", vm.ledger.TotalStaked()),
	)
	return nil
}

func (vm *VM) SetState(_ context.Context, s resdl.State) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	vm.vmState = s
	return nil
}

func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.state == nil {
		return nil
	}
	vm.vmState = resdl.Stopped
	return vm.state.Close()
}

func (*VM) Version(context.Context) (string, error) {
	return Version.String(), nil
}

func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	server.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	return map[string]http.Handler{
		"": server,
	}, server.RegisterService(api.NewService(vm, vm.log), Name)
}

// RegisterContract marks [addr] as a contract account. Safe transfers to it
// are accepted only if [receiver] accepts them.
func (vm *VM) RegisterContract(addr ids.ShortID, receiver registry.LockReceiver) {
	vm.accounts.RegisterContract(addr, receiver)
}

// restore replaces the in-memory ledger with the one described by
// [snapshot]. A nil snapshot restores an empty ledger.
func (vm *VM) restore(snapshot *pool.Snapshot) error {
	curve, err := vm.Config.Curve()
	if err != nil {
		return err
	}
	poolConfig := pool.Config{
		Clock:     &vm.clock,
		Curve:     curve,
		Directory: vm.accounts,
		Hook:      vm.rewards,
	}

	switch vm.Config.Role {
	case config.Primary:
		p, err := pool.RestorePrimary(poolConfig, vm.Config.BridgeAccount, snapshot)
		if err != nil {
			return err
		}
		vm.primary, vm.ledger = p, p
	default:
		s, err := pool.RestoreSecondary(poolConfig, vm.Config.MaxQueuedNewLocks, snapshot)
		if err != nil {
			return err
		}
		vm.secondary, vm.ledger = s, s
	}
	vm.committed = snapshot
	return nil
}

// execute runs [op] against the ledger and persists the result. If [op]
// fails or persisting fails the ledger is rolled back to the last persisted
// state.
func (vm *VM) execute(op func() error) error {
	if vm.vmState != resdl.NormalOp {
		return fmt.Errorf("%w: %s", ErrNotReady, vm.vmState)
	}
	if err := op(); err != nil {
		return vm.rollback(err)
	}

	snapshot := vm.ledger.Snapshot()
	if err := vm.persist(snapshot); err != nil {
		vm.state.Abort()
		return vm.rollback(err)
	}
	vm.committed = snapshot
	vm.metrics.MarkOperation(true)
	vm.markLedger()
	return nil
}

// rollback discards the changes made since the last persisted state and
// returns [err].
func (vm *VM) rollback(err error) error {
	vm.metrics.MarkOperation(false)
	if restoreErr := vm.restore(vm.committed); restoreErr != nil {
		return errors.Join(err, restoreErr)
	}
	vm.log.Debug("rolled back ledger",
		log.Err(err),
	)
	return err
}

func (vm *VM) persist(snapshot *pool.Snapshot) error {
	if err := vm.state.PutSnapshot(snapshot); err != nil {
		return err
	}
	if err := vm.state.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

func (vm *VM) markLedger() {
	vm.metrics.MarkLedger(
		vm.ledger.TotalStaked(),
		vm.ledger.TotalEffectiveBalance(),
		len(vm.committedLocks()),
	)
	if vm.secondary != nil {
		vm.metrics.MarkQueue(vm.secondary.QueuedRESDLSupplyChange(), vm.secondary.UpdateBatchIndex())
	}
}

func (vm *VM) committedLocks() []lock.Owned {
	if vm.committed == nil {
		return nil
	}
	return vm.committed.Registry.Locks
}

// ledgerSource reads balances for the rewards pool. The pool is only driven
// while the VM lock is held.
type ledgerSource struct {
	vm *VM
}

func (s ledgerSource) EffectiveBalanceOf(account ids.ShortID) uint64 {
	return s.vm.ledger.EffectiveBalanceOf(account)
}

func (s ledgerSource) TotalEffectiveBalance() uint64 {
	return s.vm.ledger.TotalEffectiveBalance()
}

func (s ledgerSource) Accounts() []ids.ShortID {
	return s.vm.ledger.Accounts()
}
