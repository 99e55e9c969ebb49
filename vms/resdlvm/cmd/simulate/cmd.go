// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/resdl/vms/resdlvm/cmd/serve"
	"github.com/luxfi/resdl/vms/resdlvm/config"
)

const upkeepInterval = 10 * time.Millisecond

var (
	bridgeAccount = ids.ShortID{'b', 'r', 'i', 'd', 'g', 'e'}
	alice         = ids.ShortID{'a', 'l', 'i', 'c', 'e'}
	bob           = ids.ShortID{'b', 'o', 'b'}

	errTimeout = errors.New("timed out")
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Locks funds on a secondary ledger and relocates the lock to the primary ledger",
		RunE:  simulateFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func simulateFunc(c *cobra.Command, args []string) error {
	simulateConfig, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}
	return Simulate(c.Context(), log.NewLogger("resdl"), simulateConfig, c.OutOrStdout())
}

// Simulate runs a primary ledger with one secondary ledger. A lock staked on
// the secondary ledger is reconciled, executed and then relocated to the
// primary ledger.
func Simulate(ctx context.Context, logger log.Logger, c *Config, out io.Writer) error {
	primaryConfig := config.DefaultConfig()
	primaryConfig.BridgeAccount = bridgeAccount
	primaryConfig.UpkeepInterval = upkeepInterval

	secondaryConfig := config.DefaultConfig()
	secondaryConfig.Role = config.Secondary
	secondaryConfig.UpkeepInterval = upkeepInterval

	node, err := serve.NewNode(ctx, logger, primaryConfig, secondaryConfig, 1, nil)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() {
		runErr <- node.Run(runCtx)
	}()

	err = simulate(ctx, node, c, out)
	cancel()
	return errors.Join(err, <-runErr, node.Shutdown(context.Background()))
}

func simulate(ctx context.Context, node *serve.Node, c *Config, out io.Writer) error {
	chainID := serve.SecondaryChainID(0)
	secondary := node.Secondaries[chainID]

	if _, err := secondary.Stake(alice, 0, c.Amount, c.Duration); err != nil {
		return err
	}
	fmt.Fprintf(out, "queued lock of %d on %s, supply change %d\n",
		c.Amount,
		chainID,
		secondary.QueuedRESDLSupplyChange(),
	)

	var lockIDs []uint64
	err := waitFor(ctx, c.Timeout, func() bool {
		if err := secondary.ExecuteQueuedOperations(alice, nil); err != nil {
			return false
		}
		lockIDs = secondary.LockIDsByOwner(alice)
		return len(lockIDs) != 0
	})
	if err != nil {
		return fmt.Errorf("lock was not executed: %w", err)
	}
	fmt.Fprintf(out, "executed lock %d with effective balance %d, remote supply %d\n",
		lockIDs[0],
		secondary.EffectiveBalanceOf(alice),
		node.Primary.RemoteSupply(chainID),
	)

	if err := secondary.Relocate(ctx, chainID, alice, bob, lockIDs[0]); err != nil {
		return err
	}
	err = waitFor(ctx, c.Timeout, func() bool {
		return len(node.Primary.LockIDsByOwner(bob)) != 0
	})
	if err != nil {
		return fmt.Errorf("lock was not relocated: %w", err)
	}
	fmt.Fprintf(out, "relocated lock %d with effective balance %d, remote supply %d\n",
		lockIDs[0],
		node.Primary.EffectiveBalanceOf(bob),
		node.Primary.RemoteSupply(chainID),
	)
	return nil
}

func waitFor(ctx context.Context, timeout time.Duration, done func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(upkeepInterval)
	defer ticker.Stop()

	for !done() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", errTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
