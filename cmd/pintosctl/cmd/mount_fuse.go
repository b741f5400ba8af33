//go:build fuse

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	pintos "github.com/pintos-go/kernel"
)

func runMount(c *cobra.Command, args []string) error {
	dev, err := pintos.OpenFileDevice(args[0], 0, false)
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	fsys := pintos.Mount(dev)

	server, err := pintos.MountFUSE(args[1], fsys.Store)
	if err != nil {
		dev.Close()
		return fmt.Errorf("fuse mount: %w", err)
	}
	fmt.Printf("mounted %s on %s, uuid %s\n", args[0], args[1], fsys.UUID)
	server.Wait()
	return dev.Close()
}
