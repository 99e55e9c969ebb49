// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"bytes"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/queue"
	"github.com/luxfi/resdl/vms/resdlvm/registry"
)

// Snapshot is the persistable content of either ledger. Queue is only used
// by secondary ledgers. RemoteSupply and AppliedUpdates are only used by
// primary ledgers.
type Snapshot struct {
	Registry       registry.Snapshot `serialize:"true" json:"registry"`
	Queue          queue.Snapshot    `serialize:"true" json:"queue"`
	RemoteSupply   []RemoteSupply    `serialize:"true" json:"remoteSupply"`
	AppliedUpdates []AppliedUpdate   `serialize:"true" json:"appliedUpdates"`
}

func compareIDs(a, b ids.ID) int {
	return bytes.Compare(a[:], b[:])
}
