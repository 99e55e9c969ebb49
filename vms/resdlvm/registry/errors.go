// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import "errors"

var (
	ErrSenderNotAuthorized            = errors.New("sender not authorized")
	ErrInvalidLockID                  = errors.New("invalid lock id")
	ErrInvalidValue                   = errors.New("invalid value")
	ErrLockIDInUse                    = errors.New("lock id already minted")
	ErrApprovalToCurrentOwner         = errors.New("approval to current owner")
	ErrApprovalToCaller               = errors.New("approval to caller")
	ErrTransferFromIncorrectOwner     = errors.New("transfer from incorrect owner")
	ErrTransferToInvalidAddress       = errors.New("transfer to invalid address")
	ErrTransferToNonERC721Implementer = errors.New("transfer to non ERC721 implementer")
)
