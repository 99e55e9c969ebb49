// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"errors"

	"github.com/luxfi/resdl/vms/resdlvm/queue"
	"github.com/luxfi/resdl/vms/resdlvm/registry"
)

var (
	ErrHalfDurationNotElapsed    = errors.New("half of the locking duration has not elapsed")
	ErrUnlockNotInitiated        = errors.New("unlock not initiated")
	ErrTotalDurationNotElapsed   = errors.New("total locking duration has not elapsed")
	ErrUnlockAlreadyInitiated    = errors.New("unlock already initiated")
	ErrNoLockingDuration         = errors.New("lock has no locking duration")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInvalidLockingDuration    = errors.New("invalid locking duration")
	ErrTransferWithQueuedUpdates = errors.New("cannot transfer a lock with queued updates")
	ErrNoBridgeAccount           = errors.New("no bridge account")
	ErrStaleUpdate               = errors.New("stale update")

	ErrSenderNotAuthorized            = registry.ErrSenderNotAuthorized
	ErrInvalidLockID                  = registry.ErrInvalidLockID
	ErrLockIDInUse                    = registry.ErrLockIDInUse
	ErrInvalidValue                   = registry.ErrInvalidValue
	ErrApprovalToCurrentOwner         = registry.ErrApprovalToCurrentOwner
	ErrTransferFromIncorrectOwner     = registry.ErrTransferFromIncorrectOwner
	ErrTransferToInvalidAddress       = registry.ErrTransferToInvalidAddress
	ErrTransferToNonERC721Implementer = registry.ErrTransferToNonERC721Implementer

	ErrTooManyQueuedLocks = queue.ErrTooManyQueuedLocks
	ErrUpdateInProgress   = queue.ErrUpdateInProgress
	ErrNoUpdateInProgress = queue.ErrNoUpdateInProgress
	ErrUnexpectedBatch    = queue.ErrUnexpectedBatch
)
