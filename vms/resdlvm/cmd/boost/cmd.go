// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package boost

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/resdl/utils/math"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "boost",
		Short: "Computes the boost of a lock",
		RunE:  boostFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func boostFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	boostAmount, err := config.Curve.Boost(config.Amount, config.Duration)
	if err != nil {
		return err
	}
	effectiveBalance, err := math.Add(config.Amount, boostAmount)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.OutOrStdout(), "boost: %d\neffective balance: %d\n", boostAmount, effectiveBalance)
	return err
}
