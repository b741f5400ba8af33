package pintos

// This file implements the file-system-facing half of the syscall surface
// named in spec §6. Argument marshalling, user-pointer validation, and
// trap dispatch are the trap/syscall-parsing layer's job (spec §1
// Non-goals) — callers here pass already-validated Go values; a real
// syscall_handler would call Validator before reaching these.

// Create implements the `create(name, size)` syscall: resolves name
// against cwd, allocates a fresh sector, and initializes a file inode of
// the given size (spec §6, §4.1 create).
func (p *Process) Create(path string, size uint32) bool {
	dir, leaf, err := Resolve(p.store, p.Cwd(), path)
	if err != nil {
		return false
	}
	defer closeDir(p.store, dir)

	sector, ok := p.allocSector()
	if !ok {
		return false
	}
	if err := p.store.Create(sector, size, kindFile); err != nil {
		p.freeSector(sector)
		return false
	}
	if err := dir.Add(leaf, sector); err != nil {
		destroyFreshInode(p.store, sector)
		return false
	}
	return true
}

// Mkdir implements the `mkdir(name)` syscall (spec §6): like Create, but
// the new inode is a directory whose parent back-reference is the
// resolved parent's sector.
func (p *Process) Mkdir(path string) bool {
	dir, leaf, err := Resolve(p.store, p.Cwd(), path)
	if err != nil {
		return false
	}
	defer closeDir(p.store, dir)

	sector, ok := p.allocSector()
	if !ok {
		return false
	}
	if err := p.store.Create(sector, 0, kindDir); err != nil {
		p.freeSector(sector)
		return false
	}
	child, oerr := p.store.Open(sector)
	if oerr != nil {
		destroyFreshInode(p.store, sector)
		return false
	}
	child.mu.Lock()
	child.disk.ParentSector = dir.ino.Sector()
	child.persistLocked()
	child.mu.Unlock()
	p.store.Close(child)

	if err := dir.Add(leaf, sector); err != nil {
		destroyFreshInode(p.store, sector)
		return false
	}
	return true
}

// allocSector claims a sector for a brand-new inode. It writes nothing to
// the sector; InodeStore.Create writes the inode there.
func (p *Process) allocSector() (uint32, bool) {
	return p.freemapAlloc()
}

// freemapAlloc and freeSector are indirections over the store's free-map,
// kept separate from InodeStore.Create's own internal allocation of index
// blocks (the caller picks the inode's own sector; Create/grow pick the
// sectors for its content).
func (p *Process) freemapAlloc() (uint32, bool) {
	return p.store.free.Alloc()
}

func (p *Process) freeSector(sector uint32) {
	p.store.free.Release(sector)
}

// destroyFreshInode reclaims a just-created inode's sectors when a later
// step (e.g. the directory add) fails after Create already succeeded.
func destroyFreshInode(store *InodeStore, sector uint32) {
	in, err := store.Open(sector)
	if err != nil {
		return
	}
	store.Remove(in)
	store.Close(in)
}

// Remove implements the `remove(name)` syscall (spec §6, §4.2 remove).
func (p *Process) Remove(path string) bool {
	dir, leaf, err := Resolve(p.store, p.Cwd(), path)
	if err != nil {
		return false
	}
	defer closeDir(p.store, dir)
	return dir.Remove(p.store, leaf) == nil
}

// Open implements the `open(name)` syscall, returning a fresh fd or -1
// (spec §6).
func (p *Process) Open(path string) int {
	dir, leaf, err := Resolve(p.store, p.Cwd(), path)
	if err != nil {
		return -1
	}
	sector, _, lerr := resolveLeaf(dir, leaf)
	closeDir(p.store, dir)
	if lerr != nil {
		return -1
	}

	h, oerr := OpenHandle(p.store, sector)
	if oerr != nil {
		return -1
	}
	return p.AllocFd(h)
}

// Filesize implements the `filesize(fd)` syscall.
func (p *Process) Filesize(fd int) int {
	h, err := p.Handle(fd)
	if err != nil {
		return -1
	}
	return int(h.Length())
}

// Read implements the `read(fd, buf, n)` syscall; fd 0 is reserved for
// console input (spec §6), serviced by consoleIn.
func (p *Process) Read(fd int, buf []byte, consoleIn func([]byte) int) int {
	if fd == ConsoleIn {
		return consoleIn(buf)
	}
	h, err := p.Handle(fd)
	if err != nil {
		return -1
	}
	return h.Read(buf)
}

// Write implements the `write(fd, buf, n)` syscall; fd 1 is reserved for
// console output (spec §6), serviced by consoleOut.
func (p *Process) Write(fd int, buf []byte, consoleOut func([]byte) int) int {
	if fd == ConsoleOut {
		return consoleOut(buf)
	}
	h, err := p.Handle(fd)
	if err != nil {
		return -1
	}
	n, werr := h.Write(buf)
	if werr != nil && n == 0 {
		return 0
	}
	return n
}

// Seek implements the `seek(fd, pos)` syscall.
func (p *Process) Seek(fd int, pos uint32) {
	if h, err := p.Handle(fd); err == nil {
		h.Seek(pos)
	}
}

// Tell implements the `tell(fd)` syscall.
func (p *Process) Tell(fd int) int {
	h, err := p.Handle(fd)
	if err != nil {
		return -1
	}
	return int(h.Tell())
}

// Close implements the `close(fd)` syscall.
func (p *Process) Close(fd int) {
	_ = p.CloseFd(fd)
}

// Isdir implements the `isdir(fd)` syscall.
func (p *Process) Isdir(fd int) bool {
	h, err := p.Handle(fd)
	if err != nil {
		return false
	}
	return h.Inode().IsDir()
}

// Inumber implements the `inumber(fd)` syscall: the inode's sector number
// doubles as its unique number.
func (p *Process) Inumber(fd int) int {
	h, err := p.Handle(fd)
	if err != nil {
		return -1
	}
	return int(h.Inode().Sector())
}

// Readdir implements the `readdir(fd, name)` syscall: fd must name an
// open directory handle; each call advances that handle's own cursor
// (spec §4.2, §4.3).
func (p *Process) Readdir(fd int) (string, bool) {
	h, err := p.Handle(fd)
	if err != nil {
		return "", false
	}
	if !h.Inode().IsDir() {
		return "", false
	}
	dir := NewDirectory(h.Inode())
	name, ok := dir.Readdir(h.dirCursor())
	return name, ok
}

// dirCursor lazily attaches a DirCursor to a FileHandle the first time
// Readdir is called on it, since directories don't otherwise track one.
func (h *FileHandle) dirCursor() *DirCursor {
	if h.cursor == nil {
		h.cursor = &DirCursor{}
	}
	return h.cursor
}
