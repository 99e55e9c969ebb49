// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/resdl"
	"github.com/luxfi/resdl/vms/resdlvm"
	"github.com/luxfi/resdl/vms/resdlvm/config"
	"github.com/luxfi/resdl/vms/resdlvm/reconcile"
)

const transportBufferSize = 64

// Node is a primary ledger connected to its secondary ledgers in process.
type Node struct {
	Primary     *resdlvm.VM
	Secondaries map[ids.ID]*resdlvm.VM

	transports []*reconcile.ChannelTransport
}

// NewNode creates the primary ledger, [numSecondaries] secondary ledgers and
// the transports between them. Only the metrics of the primary ledger are
// registered with [registerer].
func NewNode(
	ctx context.Context,
	logger log.Logger,
	primaryConfig config.Config,
	secondaryConfig config.Config,
	numSecondaries int,
	registerer metric.Registerer,
) (*Node, error) {
	n := &Node{
		Secondaries: make(map[ids.ID]*resdlvm.VM, numSecondaries),
	}

	var err error
	n.Primary, err = newVM(ctx, logger, primaryConfig, ids.Empty, registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary ledger: %w", err)
	}

	for i := range numSecondaries {
		chainID := SecondaryChainID(i)
		secondary, err := newVM(ctx, logger, secondaryConfig, chainID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create secondary ledger %s: %w", chainID, err)
		}

		primaryEnd, secondaryEnd := reconcile.NewChannelPair(transportBufferSize)
		n.transports = append(n.transports, primaryEnd)
		if err := n.Primary.ConnectSecondary(chainID, primaryEnd); err != nil {
			return nil, err
		}
		if err := secondary.ConnectPrimary(secondaryEnd); err != nil {
			return nil, err
		}
		n.Secondaries[chainID] = secondary
	}
	return n, nil
}

func newVM(
	ctx context.Context,
	logger log.Logger,
	c config.Config,
	chainID ids.ID,
	registerer metric.Registerer,
) (*resdlvm.VM, error) {
	factory := &resdlvm.Factory{Config: c}
	created, err := factory.New(logger)
	if err != nil {
		return nil, err
	}
	vm := created.(*resdlvm.VM)

	err = vm.Initialize(ctx, &resdl.Context{
		ChainID:    chainID,
		Log:        logger,
		DB:         memdb.New(),
		Registerer: registerer,
	})
	if err != nil {
		return nil, err
	}
	return vm, vm.SetState(ctx, resdl.NormalOp)
}

// Handlers returns the API of every ledger keyed by its route.
func (n *Node) Handlers(ctx context.Context) (map[string]http.Handler, error) {
	routes := make(map[string]http.Handler)
	add := func(prefix string, vm *resdlvm.VM) error {
		handlers, err := vm.CreateHandlers(ctx)
		if err != nil {
			return err
		}
		for extension, handler := range handlers {
			routes[prefix+extension] = handler
		}
		return nil
	}

	if err := add("/ext/primary", n.Primary); err != nil {
		return nil, err
	}
	for chainID, secondary := range n.Secondaries {
		if err := add("/ext/secondary/"+chainID.String(), secondary); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

// Run reconciles every ledger until [ctx] is done.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Primary.Run(ctx)
	})
	for _, secondary := range n.Secondaries {
		g.Go(func() error {
			return secondary.Run(ctx)
		})
	}
	return g.Wait()
}

// Shutdown closes the transports and every ledger.
func (n *Node) Shutdown(ctx context.Context) error {
	for _, transport := range n.transports {
		transport.Close()
	}
	errs := []error{n.Primary.Shutdown(ctx)}
	for _, secondary := range n.Secondaries {
		errs = append(errs, secondary.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
