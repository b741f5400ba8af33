package cmd

import (
	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount <image> <dir>",
	Short: "Mount a disk image read-write via FUSE (build with -tags fuse)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}
