//go:build fuse

package pintos

import (
	"context"
	"errors"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseNode exposes one inode sector through go-fuse's high-level Inode
// API, grounded on the teacher's own FUSE view and on the pack's loopback
// filesystem (hanwen-go-fuse/fs/loopback.go): a thin node type that
// resolves everything against the underlying store on each call rather
// than caching, since this kernel's InodeStore is already the source of
// truth and the cache-coherency problem.
type fuseNode struct {
	fs.Inode
	store  *InodeStore
	sector uint32

	mu   sync.Mutex
	hdl  *FileHandle
}

var (
	_ fs.InodeEmbedder  = (*fuseNode)(nil)
	_ fs.NodeLookuper   = (*fuseNode)(nil)
	_ fs.NodeReaddirer  = (*fuseNode)(nil)
	_ fs.NodeGetattrer  = (*fuseNode)(nil)
	_ fs.NodeOpener     = (*fuseNode)(nil)
	_ fs.NodeReader     = (*fuseNode)(nil)
	_ fs.NodeWriter     = (*fuseNode)(nil)
	_ fs.NodeCreater    = (*fuseNode)(nil)
	_ fs.NodeMkdirer    = (*fuseNode)(nil)
	_ fs.NodeUnlinker   = (*fuseNode)(nil)
	_ fs.NodeRmdirer    = (*fuseNode)(nil)
)

// MountFUSE attaches a fuseNode rooted at the file system's well-known
// root directory sector and mounts it at dir (spec §6 on-disk layout:
// "Sector 1: root directory inode").
func MountFUSE(dir string, store *InodeStore) (*fuse.Server, error) {
	root := &fuseNode{store: store, sector: RootSector}
	return fs.Mount(dir, root, &fs.Options{})
}

func (n *fuseNode) child(sector uint32) *fuseNode {
	return &fuseNode{store: n.store, sector: sector}
}

func (n *fuseNode) openSelf() (*Inode, syscall.Errno) {
	ino, err := n.store.Open(n.sector)
	if err != nil {
		return nil, toErrno(err)
	}
	return ino, 0
}

func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrExists):
		return syscall.EEXIST
	case errors.Is(err, ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, ErrBusy):
		return syscall.EBUSY
	case errors.Is(err, ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalid):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ino, errno := n.openSelf()
	if errno != 0 {
		return nil, errno
	}
	defer n.store.Close(ino)

	sector, _, err := NewDirectory(ino).Lookup(name)
	if err != nil {
		return nil, toErrno(err)
	}

	child := n.child(sector)
	target, terrno := child.openSelf()
	if terrno != 0 {
		return nil, terrno
	}
	defer n.store.Close(target)
	fillAttr(&out.Attr, target)

	mode := uint32(fuse.S_IFREG)
	if target.IsDir() {
		mode = fuse.S_IFDIR
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode, Ino: uint64(sector)}), 0
}

func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	ino, errno := n.openSelf()
	if errno != 0 {
		return nil, errno
	}
	defer n.store.Close(ino)

	dir := NewDirectory(ino)
	var entries []fuse.DirEntry
	cur := &DirCursor{}
	for {
		name, ok := dir.Readdir(cur)
		if !ok {
			break
		}
		entries = append(entries, fuse.DirEntry{Name: name})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ino, errno := n.openSelf()
	if errno != 0 {
		return errno
	}
	defer n.store.Close(ino)
	fillAttr(&out.Attr, ino)
	return 0
}

func fillAttr(attr *fuse.Attr, ino *Inode) {
	attr.Mode = unixMode(ino)
	attr.Size = uint64(ino.Length())
}

func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hdl == nil {
		h, err := OpenHandle(n.store, n.sector)
		if err != nil {
			return nil, 0, toErrno(err)
		}
		n.hdl = h
	}
	return nil, 0, 0
}

func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	ino, errno := n.openSelf()
	if errno != 0 {
		return nil, errno
	}
	defer n.store.Close(ino)
	read := ino.ReadAt(dest, uint32(off))
	return fuse.ReadResultData(dest[:read]), 0
}

func (n *fuseNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	ino, errno := n.openSelf()
	if errno != 0 {
		return 0, errno
	}
	defer n.store.Close(ino)
	written, err := ino.WriteAt(data, uint32(off))
	if err != nil && written == 0 {
		return 0, toErrno(err)
	}
	return uint32(written), 0
}

func (n *fuseNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	ino, errno := n.openSelf()
	if errno != 0 {
		return nil, nil, 0, errno
	}
	defer n.store.Close(ino)

	sector, ok := n.store.free.Alloc()
	if !ok {
		return nil, nil, 0, syscall.ENOSPC
	}
	if err := n.store.Create(sector, 0, kindFile); err != nil {
		n.store.free.Release(sector)
		return nil, nil, 0, toErrno(err)
	}
	if err := NewDirectory(ino).Add(name, sector); err != nil {
		destroyFreshInode(n.store, sector)
		return nil, nil, 0, toErrno(err)
	}

	child := n.child(sector)
	target, terrno := child.openSelf()
	if terrno != 0 {
		return nil, nil, 0, terrno
	}
	defer n.store.Close(target)
	fillAttr(&out.Attr, target)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG, Ino: uint64(sector)}), nil, 0, 0
}

func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ino, errno := n.openSelf()
	if errno != 0 {
		return nil, errno
	}
	defer n.store.Close(ino)

	sector, ok := n.store.free.Alloc()
	if !ok {
		return nil, syscall.ENOSPC
	}
	if err := n.store.Create(sector, 0, kindDir); err != nil {
		n.store.free.Release(sector)
		return nil, toErrno(err)
	}
	child, terr := n.store.Open(sector)
	if terr != nil {
		destroyFreshInode(n.store, sector)
		return nil, toErrno(terr)
	}
	child.mu.Lock()
	child.disk.ParentSector = n.sector
	child.persistLocked()
	child.mu.Unlock()
	n.store.Close(child)

	if err := NewDirectory(ino).Add(name, sector); err != nil {
		destroyFreshInode(n.store, sector)
		return nil, toErrno(err)
	}

	childNode := n.child(sector)
	out.Attr.Mode = fuse.S_IFDIR | 0755
	return n.NewInode(ctx, childNode, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: uint64(sector)}), 0
}

func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	ino, errno := n.openSelf()
	if errno != 0 {
		return errno
	}
	defer n.store.Close(ino)
	return toErrno(NewDirectory(ino).Remove(n.store, name))
}

func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.Unlink(ctx, name)
}
