package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	pintos "github.com/pintos-go/kernel"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <image>",
	Short: "Report free-map usage and the file system's instance UUID",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		dev, err := pintos.OpenFileDevice(args[0], 0, false)
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer dev.Close()

		fsys := pintos.Mount(dev)
		fmt.Printf("uuid:        %s\n", fsys.UUID)
		fmt.Printf("sectors:     %d\n", dev.SectorCount())
		fmt.Printf("used:        %d\n", fsys.Free.UsedCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}
