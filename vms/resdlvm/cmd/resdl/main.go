// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/resdl/vms/resdlvm/cmd/boost"
	"github.com/luxfi/resdl/vms/resdlvm/cmd/serve"
	"github.com/luxfi/resdl/vms/resdlvm/cmd/simulate"
	"github.com/luxfi/resdl/vms/resdlvm/cmd/version"
)

func init() {
	cobra.EnablePrefixMatching = true
}

func main() {
	cmd := &cobra.Command{
		Use:   "resdl",
		Short: "Runs reSDL ledgers",
	}
	cmd.AddCommand(
		serve.Command(),
		boost.Command(),
		simulate.Command(),
		version.Command(),
	)
	ctx := context.Background()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
