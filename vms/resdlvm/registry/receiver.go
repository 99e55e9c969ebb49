// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"sync"

	"github.com/luxfi/ids"
)

var _ Directory = (*Accounts)(nil)

// LockReceiver is implemented by contract accounts that accept lock
// transfers made through SafeTransferFrom.
type LockReceiver interface {
	// OnLockReceived is called before ownership of [lockID] moves to the
	// receiver. Returning false or an error rejects the transfer.
	OnLockReceived(operator, from ids.ShortID, lockID uint64, data []byte) (bool, error)
}

// Directory tells the registry which addresses are contracts and how to reach
// their receiver hooks. Addresses unknown to the directory are treated as
// externally owned and always accept.
type Directory interface {
	IsContract(addr ids.ShortID) bool
	Receiver(addr ids.ShortID) (LockReceiver, bool)
}

// Accounts is an in-memory Directory.
type Accounts struct {
	mu        sync.RWMutex
	contracts map[ids.ShortID]LockReceiver
}

func NewAccounts() *Accounts {
	return &Accounts{
		contracts: make(map[ids.ShortID]LockReceiver),
	}
}

// RegisterContract marks [addr] as a contract. A nil receiver registers a
// contract that does not implement the receiver hook.
func (a *Accounts) RegisterContract(addr ids.ShortID, receiver LockReceiver) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.contracts[addr] = receiver
}

func (a *Accounts) IsContract(addr ids.ShortID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.contracts[addr]
	return ok
}

func (a *Accounts) Receiver(addr ids.ShortID) (LockReceiver, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	receiver, ok := a.contracts[addr]
	return receiver, ok && receiver != nil
}

// ReceiverFunc adapts a function to LockReceiver.
type ReceiverFunc func(operator, from ids.ShortID, lockID uint64, data []byte) (bool, error)

func (f ReceiverFunc) OnLockReceived(operator, from ids.ShortID, lockID uint64, data []byte) (bool, error) {
	return f(operator, from, lockID, data)
}
