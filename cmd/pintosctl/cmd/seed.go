package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	pintos "github.com/pintos-go/kernel"
)

var seedCmd = &cobra.Command{
	Use:   "seed <image> <manifest.yaml>",
	Short: "Create directories and files on an image from a YAML manifest",
	Args:  cobra.ExactArgs(2),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(c *cobra.Command, args []string) error {
	m, err := loadManifest(args[1])
	if err != nil {
		return err
	}

	dev, err := pintos.OpenFileDevice(args[0], 0, false)
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer dev.Close()

	fsys := pintos.Mount(dev)
	proc := pintos.NewProcess(0, fsys.Store, nil, nil, pintos.NewFakePageDirectory(), pintos.RootSector, 0)

	for _, d := range m.Dirs {
		if !proc.Mkdir(d) {
			return fmt.Errorf("mkdir %s failed", d)
		}
	}
	for _, f := range m.Files {
		if !proc.Create(f.Path, f.SizeBytes) {
			return fmt.Errorf("create %s failed", f.Path)
		}
		if f.Content == "" {
			continue
		}
		fd := proc.Open(f.Path)
		if fd < 0 {
			return fmt.Errorf("open %s failed", f.Path)
		}
		if n := proc.Write(fd, []byte(f.Content), nil); n < 0 {
			proc.Close(fd)
			return fmt.Errorf("write %s failed", f.Path)
		}
		proc.Close(fd)
	}

	fmt.Printf("seeded %d dir(s), %d file(s) on %s\n", len(m.Dirs), len(m.Files), strings.TrimSpace(args[0]))
	return nil
}
