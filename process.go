package pintos

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// childSlot tracks one child's exit status handoff (spec §9 open question
// b: "a clean wait/reap design uses a single semaphore per child plus an
// atomic reaped bit", replacing the source's exited/waited_on flag pair).
type childSlot struct {
	pid      int
	proc     *Process
	done     chan struct{} // closed once, by the exiting child
	reaped   atomic.Bool
	exitCode int
}

// Process is the per-process table of open files, children, and exit
// status (spec §3 ownership list, §4.7, §10 Process/file-descriptor glue).
// The global open-inodes registry and frame table are shared across
// Processes; everything embedded here is per-process private state (spec
// §5 "Shared resources").
type Process struct {
	pid int

	store  *InodeStore
	frames *FrameTable
	swap   *SwapManager
	pd     PageDirectory

	spt       *SupplementalPageTable
	stackBase uintptr

	mu       sync.Mutex
	fds      map[int]*FileHandle
	nextFd   int
	cwd      uint32
	children map[int]*childSlot

	parent   *Process
	exitCode int
	exited   atomic.Bool
	wg       errgroup.Group
}

// NewProcess creates a process rooted at cwd (RootSector if 0), sharing
// the given global inode store, frame table, and swap manager.
func NewProcess(pid int, store *InodeStore, frames *FrameTable, swap *SwapManager, pd PageDirectory, cwd uint32, stackBase uintptr) *Process {
	if cwd == 0 {
		cwd = RootSector
	}
	return &Process{
		pid:       pid,
		store:     store,
		frames:    frames,
		swap:      swap,
		pd:        pd,
		spt:       NewSupplementalPageTable(),
		stackBase: stackBase,
		fds:       make(map[int]*FileHandle),
		nextFd:    2, // 0 and 1 are reserved for the console (spec §4.3)
		cwd:       cwd,
		children:  make(map[int]*childSlot),
	}
}

// PageDirectory exposes the process's page directory, consulted by the
// frame table during eviction of a frame owned by a different process
// (spec §9 open question c).
func (p *Process) PageDirectory() PageDirectory { return p.pd }

// Cwd returns the process's current working directory sector.
func (p *Process) Cwd() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// Chdir resolves path and, if it names a directory, updates cwd.
func (p *Process) Chdir(path string) error {
	dir, leaf, err := Resolve(p.store, p.Cwd(), path)
	if err != nil {
		return err
	}
	sector, _, lerr := resolveLeaf(dir, leaf)
	closeDir(p.store, dir)
	if lerr != nil {
		return lerr
	}
	target, oerr := p.store.Open(sector)
	if oerr != nil {
		return oerr
	}
	defer p.store.Close(target)
	if !target.IsDir() {
		return ErrNotDirectory
	}
	p.mu.Lock()
	p.cwd = sector
	p.mu.Unlock()
	return nil
}

// resolveLeaf handles the case where leaf is "." or "..", which Resolve
// does not special-case on its own since those only arise mid-path.
func resolveLeaf(dir *Directory, leaf string) (uint32, int, error) {
	switch leaf {
	case ".":
		return dir.ino.Sector(), -1, nil
	case "..":
		if dir.ino.Sector() == RootSector {
			return RootSector, -1, nil
		}
		return dir.ino.ParentSector(), -1, nil
	default:
		return dir.Lookup(leaf)
	}
}

func closeDir(store *InodeStore, dir *Directory) {
	store.Close(dir.ino)
}

// AllocFd installs h under a fresh descriptor number and returns it (spec
// §4.3, §6 "open").
func (p *Process) AllocFd(h *FileHandle) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFd
	p.nextFd++
	p.fds[fd] = h
	return fd
}

// Handle returns the handle for fd, or ErrBadFd.
func (p *Process) Handle(fd int) (*FileHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.fds[fd]
	if !ok {
		return nil, ErrBadFd
	}
	return h, nil
}

// CloseFd closes and forgets fd.
func (p *Process) CloseFd(fd int) error {
	p.mu.Lock()
	h, ok := p.fds[fd]
	if ok {
		delete(p.fds, fd)
	}
	p.mu.Unlock()
	if !ok {
		return ErrBadFd
	}
	h.Close()
	return nil
}

// Spawn starts fn as a child process running in its own goroutine,
// tracked by the group so Exit/teardown can await it (spec §4.7 "exec").
// It returns without waiting; fn should eventually call child.Exit(status).
// The child's slot is marked done, waking a parent blocked in Wait, once fn
// returns.
func (p *Process) Spawn(child *Process, fn func(*Process) error) {
	slot := &childSlot{pid: child.pid, proc: child, done: make(chan struct{})}
	child.parent = p

	p.mu.Lock()
	p.children[child.pid] = slot
	p.mu.Unlock()

	p.wg.Go(func() error {
		err := fn(child)
		close(slot.done)
		return err
	})
}

// Wait blocks until the child with the given pid has exited and has not
// already been reaped, returning its exit code; a second Wait on the same
// pid (or a pid that is not a child) fails with ErrNotFound (spec §4.7,
// §9 open question b).
func (p *Process) Wait(pid int) (int, error) {
	p.mu.Lock()
	slot, ok := p.children[pid]
	p.mu.Unlock()
	if !ok {
		return -1, ErrNotFound
	}
	if !slot.reaped.CompareAndSwap(false, true) {
		return -1, ErrNotFound
	}

	<-slot.done
	return slot.exitCode, nil
}

// Exit tears down the process's open file handles, the frames of its
// loaded pages, and its SPTEs, then records its exit code in the parent's
// child slot (spec §4.7, §5 "Process termination is cooperative"). A
// parent blocked in Wait wakes once the function Spawn ran returns.
func (p *Process) Exit(status int) {
	if !p.exited.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	fds := p.fds
	p.fds = nil
	p.mu.Unlock()
	for _, h := range fds {
		h.Close()
	}

	if p.frames != nil {
		p.spt.mu.Lock()
		for upage, e := range p.spt.entries {
			if f, ok := p.pd.Lookup(upage); ok && e.loaded && f.spte == e {
				p.pd.Clear(upage)
				p.frames.Free(f)
				e.loaded = false
			}
		}
		p.spt.mu.Unlock()
	}
	p.spt.Destroy(p.swap)
	p.exitCode = status

	if p.parent != nil {
		p.parent.mu.Lock()
		if slot, ok := p.parent.children[p.pid]; ok {
			slot.exitCode = status
		}
		p.parent.mu.Unlock()
	}
}

// ExitCode returns the process's recorded exit status; meaningful only
// after Exit has run.
func (p *Process) ExitCode() int { return p.exitCode }

// Loader is the ELF-loading contract `exec(cmd)` depends on (spec §1
// Non-goals: "ELF loading" is an external collaborator). It must build cmd
// into a runnable child process and a function that, when run, actually
// executes it to completion, or report ok=false on a load failure.
type Loader func(cmd string, child *Process) (run func(*Process) error, ok bool)

// nextPid hands out process identifiers; a real kernel derives these from
// its thread table instead.
var nextPid atomic.Int64

// Exec implements the `exec(cmd)` syscall (spec §6): builds a child
// process sharing this process's global store/frames/swap, asks load to
// prepare it, and spawns it if preparation succeeds. Returns the child's
// pid, or -1 on load failure.
func (p *Process) Exec(cmd string, pd PageDirectory, stackBase uintptr, load Loader) int {
	pid := int(nextPid.Add(1))
	child := NewProcess(pid, p.store, p.frames, p.swap, pd, p.Cwd(), stackBase)

	run, ok := load(cmd, child)
	if !ok {
		return -1
	}
	p.Spawn(child, run)
	return pid
}

// Halt implements the `halt()` syscall: shutting down the machine is the
// interrupt/trap-dispatch layer's job (spec §1 Non-goals), so this is the
// seam that layer calls through once it has stopped scheduling.
func Halt(shutdown func()) {
	shutdown()
}
