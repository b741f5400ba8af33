package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pintos "github.com/pintos-go/kernel"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs <image>",
	Short: "Create and format a fresh disk image",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		n := viper.GetUint32("sectors")
		dev, err := pintos.OpenFileDevice(args[0], n, false)
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer dev.Close()

		fsys, err := pintos.Format(dev)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		fmt.Printf("formatted %s: %d sectors, uuid %s\n", args[0], n, fsys.UUID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mkfsCmd)
}
