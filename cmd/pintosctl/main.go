// Command pintosctl formats, inspects, and browses pintos-kernel disk
// images from outside the kernel itself — a host-side counterpart to the
// teacher's own sqfs CLI, built on cobra/viper the way gcsfuse's cmd
// package is.
package main

import (
	"fmt"
	"os"

	"github.com/pintos-go/kernel/cmd/pintosctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pintosctl:", err)
		os.Exit(1)
	}
}
