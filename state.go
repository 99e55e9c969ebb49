// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resdl

// State is the lifecycle state of a VM instance.
type State uint8

const (
	// Unknown is the default / unset state.
	Unknown State = iota

	// Bootstrapping indicates the VM is restoring its ledger. Operations are
	// rejected.
	Bootstrapping

	// NormalOp indicates the VM accepts operations.
	NormalOp

	// Stopped indicates the VM was shut down.
	Stopped
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "Bootstrapping"
	case NormalOp:
		return "NormalOp"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
