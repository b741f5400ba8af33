package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	pintos "github.com/pintos-go/kernel"
)

var lsCmd = &cobra.Command{
	Use:   "ls <image> [path]",
	Short: "List a directory's entries",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(c *cobra.Command, args []string) error {
		path := "/"
		if len(args) > 1 {
			path = args[1]
		}

		dev, err := pintos.OpenFileDevice(args[0], 0, false)
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer dev.Close()

		fsys := pintos.Mount(dev)

		var sector uint32 = pintos.RootSector
		if path != "/" && path != "." {
			dir, leaf, rerr := pintos.Resolve(fsys.Store, pintos.RootSector, path)
			if rerr != nil {
				return fmt.Errorf("resolve %s: %w", path, rerr)
			}
			found, _, lerr := dir.Lookup(leaf)
			fsys.Store.Close(dir.Ino())
			if lerr != nil {
				return fmt.Errorf("lookup %s: %w", path, lerr)
			}
			sector = found
		}

		ino, err := fsys.Store.Open(sector)
		if err != nil {
			return err
		}
		defer fsys.Store.Close(ino)
		if !ino.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}

		dir := pintos.NewDirectory(ino)
		cur := &pintos.DirCursor{}
		for {
			name, ok := dir.Readdir(cur)
			if !ok {
				break
			}
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
