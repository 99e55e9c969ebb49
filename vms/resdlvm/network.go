// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resdlvm

import (
	"context"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/queue"
	"github.com/luxfi/resdl/vms/resdlvm/reconcile"
)

var (
	_ reconcile.PrimaryLedger   = primaryLedger{}
	_ reconcile.SecondaryLedger = secondaryLedger{}
)

// ConnectPrimary attaches the transport to the primary ledger. Only
// secondary ledgers connect to a primary ledger.
func (vm *VM) ConnectPrimary(transport reconcile.Transport) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch {
	case vm.secondary == nil:
		return ErrWrongRole
	case vm.secondaryController != nil:
		return ErrAlreadyStarted
	}
	vm.secondaryController = reconcile.NewSecondaryController(
		vm.log,
		vm.Config.ChainID,
		secondaryLedger{vm: vm},
		transport,
	)
	return nil
}

// ConnectSecondary attaches the transport to the secondary ledger on
// [chainID]. Only the primary ledger accepts secondary ledgers.
func (vm *VM) ConnectSecondary(chainID ids.ID, transport reconcile.Transport) error {
	if vm.primaryController == nil {
		return ErrWrongRole
	}
	return vm.primaryController.Connect(chainID, transport)
}

// Run drives reconciliation until [ctx] is done.
func (vm *VM) Run(ctx context.Context) error {
	vm.lock.Lock()
	var (
		primary   = vm.primaryController
		secondary = vm.secondaryController
	)
	vm.lock.Unlock()

	vm.log.Info("starting reconciliation",
		log.String("role", string(vm.Config.Role)),
		log.Duration("upkeepInterval", vm.Config.UpkeepInterval),
	)
	switch {
	case primary != nil:
		return primary.Run(ctx, vm.Config.UpkeepInterval)
	case secondary != nil:
		return secondary.Run(ctx, vm.Config.UpkeepInterval)
	default:
		return ErrNotConnected
	}
}

// Relocate moves lock [id] of [sender] to [receiver] on the ledger of
// [chainID]. Secondary ledgers only relocate to the primary ledger, which is
// addressed by their own chain id.
func (vm *VM) Relocate(ctx context.Context, chainID ids.ID, sender, receiver ids.ShortID, id uint64) error {
	if vm.primaryController != nil {
		return vm.primaryController.SendRelocation(ctx, chainID, sender, receiver, id)
	}

	vm.lock.Lock()
	controller := vm.secondaryController
	vm.lock.Unlock()

	switch {
	case controller == nil:
		return ErrNotConnected
	case chainID != vm.Config.ChainID:
		return fmt.Errorf("%w: %s", reconcile.ErrUnknownChain, chainID)
	default:
		return controller.SendRelocation(ctx, sender, receiver, id)
	}
}

// UpkeepNeeded reports whether the secondary ledger has operations to send.
func (vm *VM) UpkeepNeeded() bool {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.secondary != nil && vm.secondary.ShouldUpdate()
}

// primaryLedger serialises the reconciliation entry points of the primary
// ledger with the other operations of the VM.
type primaryLedger struct {
	vm *VM
}

func (l primaryLedger) HandleIncomingUpdate(chainID ids.ID, batchIndex, numNewLocks uint64, supplyChange int64) (uint64, error) {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	var lastMintedID uint64
	err := vm.execute(func() error {
		var err error
		lastMintedID, err = vm.primary.HandleIncomingUpdate(chainID, batchIndex, numNewLocks, supplyChange)
		return err
	})
	if err != nil {
		return 0, err
	}
	vm.metrics.IncRounds()
	return lastMintedID, nil
}

func (l primaryLedger) HandleOutgoingRESDL(chainID ids.ID, sender, receiver ids.ShortID, id uint64) (lock.Lock, error) {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	var released lock.Lock
	err := vm.execute(func() error {
		var err error
		released, err = vm.primary.HandleOutgoingRESDL(chainID, sender, receiver, id)
		return err
	})
	return released, err
}

func (l primaryLedger) HandleIncomingRESDL(chainID ids.ID, receiver ids.ShortID, id uint64, relocated lock.Lock) error {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.primary.HandleIncomingRESDL(chainID, receiver, id, relocated)
	})
}

// secondaryLedger serialises the reconciliation entry points of a secondary
// ledger with the other operations of the VM.
type secondaryLedger struct {
	vm *VM
}

func (l secondaryLedger) ShouldUpdate() bool {
	return l.vm.UpkeepNeeded()
}

func (l secondaryLedger) InFlightUpdate() (*queue.Update, bool) {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.secondary.InFlightUpdate()
}

func (l secondaryLedger) HandleOutgoingUpdate() (*queue.Update, error) {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	var update *queue.Update
	err := vm.execute(func() error {
		var err error
		update, err = vm.secondary.HandleOutgoingUpdate()
		return err
	})
	return update, err
}

func (l secondaryLedger) HandleIncomingUpdate(batchIndex, lastMintedID uint64) error {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	err := vm.execute(func() error {
		return vm.secondary.HandleIncomingUpdate(batchIndex, lastMintedID)
	})
	if err != nil {
		return err
	}
	vm.metrics.IncRounds()
	return nil
}

func (l secondaryLedger) HandleOutgoingRESDL(sender, receiver ids.ShortID, id uint64) (lock.Lock, error) {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	var released lock.Lock
	err := vm.execute(func() error {
		var err error
		released, err = vm.secondary.HandleOutgoingRESDL(sender, receiver, id)
		return err
	})
	return released, err
}

func (l secondaryLedger) HandleIncomingRESDL(receiver ids.ShortID, id uint64, relocated lock.Lock) error {
	vm := l.vm
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.execute(func() error {
		return vm.secondary.HandleIncomingRESDL(receiver, id, relocated)
	})
}
