// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resdlvm

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/resdl"
	"github.com/luxfi/resdl/vms/resdlvm/config"
)

var (
	// ID is the unique identifier of the reSDL VM
	ID = ids.ID{'r', 'e', 's', 'd', 'l', 'v', 'm'}

	_ resdl.Factory = (*Factory)(nil)
)

// Factory creates VMs with the factory's configuration. A configuration
// passed to Initialize replaces it.
type Factory struct {
	config.Config
}

func (f *Factory) New(logger log.Logger) (resdl.VM, error) {
	return &VM{
		Config: f.Config,
		log:    logger,
	}, nil
}
