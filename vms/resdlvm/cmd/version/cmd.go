// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/resdl/vms/resdlvm"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints out the version",
		RunE:  versionFunc,
	}
}

func versionFunc(c *cobra.Command, _ []string) error {
	_, err := fmt.Fprintf(c.OutOrStdout(), "%s@%s [vm ID %s]\n", resdlvm.Name, resdlvm.Version, resdlvm.ID)
	return err
}
