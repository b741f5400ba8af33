//go:build !fuse

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runMount(c *cobra.Command, args []string) error {
	return fmt.Errorf("pintosctl was built without FUSE support; rebuild with -tags fuse")
}
