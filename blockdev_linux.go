//go:build linux

package pintos

import (
	"os"

	"golang.org/x/sys/unix"
)

// openBackingFile opens a disk-image file, optionally adding O_DSYNC so each
// write reaches the disk before it returns, as a real block device driver's
// would; the page cache is still used — the teacher splits this kind of platform-specific flag
// handling into inode_linux.go/inode_darwin.go; we do the same for opening
// the backing store instead of filling in attribute bits.
func openBackingFile(path string, direct bool) (*os.File, error) {
	flags := os.O_RDWR | os.O_CREATE
	if direct {
		flags |= unix.O_DSYNC
	}
	return os.OpenFile(path, flags, 0o644)
}
