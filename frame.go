package pintos

import "github.com/jacobsa/syncutil"

// Frame is a physical-page descriptor in the frame table's fixed-size
// array (spec §3, §4.5).
type Frame struct {
	occupied bool
	pinned   bool
	physical []byte
	spte     *SPTE
	owner    *Process
}

// Owner reports the process this frame's contents currently belong to,
// used when eviction must invalidate a *different* process's page
// directory than the evicting thread's own (spec §9 open question c).
func (f *Frame) Owner() *Process { return f.owner }

// SPTE reports the supplemental page-table entry currently backed by this
// frame, or nil if unoccupied.
func (f *Frame) SPTE() *SPTE { return f.spte }

// FrameTable is the fixed-size array of frame descriptors plus the clock
// hand and free counter (spec §4.5). One FrameTable is process-global,
// shared by every Process via the frame-table lock (spec §5).
type FrameTable struct {
	mu syncutil.InvariantMutex

	frames    []Frame
	pool      PhysicalPagePool
	swap      *SwapManager
	clockHand int
	freeCount int
}

// NewFrameTable sizes the table to the user page pool (spec §4.5: "sized
// to the user page pool").
func NewFrameTable(size int, pool PhysicalPagePool, swap *SwapManager) *FrameTable {
	ft := &FrameTable{
		frames:    make([]Frame, size),
		pool:      pool,
		swap:      swap,
		freeCount: size,
	}
	ft.mu = syncutil.NewInvariantMutex(ft.checkInvariants)
	return ft
}

func (ft *FrameTable) checkInvariants() {
	free := 0
	for i := range ft.frames {
		if !ft.frames[i].occupied {
			free++
		}
	}
	if free != ft.freeCount {
		panicf("frame table: cached freeCount=%d does not match actual=%d", ft.freeCount, free)
	}
	if ft.clockHand < 0 || (len(ft.frames) > 0 && ft.clockHand >= len(ft.frames)) {
		panicf("frame table: clock hand %d out of range [0,%d)", ft.clockHand, len(ft.frames))
	}
}

// Alloc returns an unoccupied frame paired with a freshly allocated
// physical page, running eviction first if none is free (spec §4.5).
// Fails only if both free-listing and eviction fail — a fatal condition.
func (ft *FrameTable) Alloc(flags PagePoolFlags, owner *Process, spte *SPTE) *Frame {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	idx, ok := ft.firstFreeLocked()
	if !ok {
		if !ft.evictLocked() {
			fatal("frame table: eviction failed, no frame available")
		}
		idx, ok = ft.firstFreeLocked()
		if !ok {
			fatal("frame table: no free frame immediately after successful eviction")
		}
	}

	page, ok := ft.pool.Alloc(flags)
	if !ok {
		fatal("frame table: physical page pool exhausted despite free frame slot")
	}

	f := &ft.frames[idx]
	f.occupied = true
	f.pinned = false
	f.physical = page
	f.spte = spte
	f.owner = owner
	ft.freeCount--
	return f
}

func (ft *FrameTable) firstFreeLocked() (int, bool) {
	for i := range ft.frames {
		if !ft.frames[i].occupied {
			return i, true
		}
	}
	return 0, false
}

// Free releases a frame back to the pool (spec §4.5).
func (ft *FrameTable) Free(f *Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.freeLocked(f)
}

func (ft *FrameTable) freeLocked(f *Frame) {
	if !f.occupied {
		return
	}
	ft.pool.Free(f.physical)
	f.occupied = false
	f.physical = nil
	f.spte = nil
	f.owner = nil
	f.pinned = false
	ft.freeCount++
}

// evictLocked runs the clock algorithm once, writing out a dirty victim's
// contents and reclaiming its frame (spec §4.5). Caller must hold ft.mu.
func (ft *FrameTable) evictLocked() bool {
	n := len(ft.frames)
	if n == 0 {
		return false
	}
	for steps := 0; steps < 2*n; steps++ {
		idx := ft.clockHand
		ft.clockHand = (ft.clockHand + 1) % n
		f := &ft.frames[idx]
		if !f.occupied || f.pinned {
			continue
		}

		pd := f.owner.PageDirectory()
		upage := f.spte.upage
		accessed := pd.IsAccessed(upage)
		if accessed {
			pd.SetAccessed(upage, false)
			continue
		}

		dirty := pd.IsDirty(upage)
		if dirty {
			ft.writeOutLocked(f)
		}
		pd.Clear(upage)
		f.spte.loaded = false
		ft.freeLocked(f)
		return true
	}
	return false
}

// writeOutLocked persists a dirty victim's contents, releasing the
// frame-table lock across the actual I/O per spec §5 ("releases the lock
// to avoid holding it across slow I/O, but the victim frame must be
// marked pinned for the duration").
func (ft *FrameTable) writeOutLocked(f *Frame) {
	f.pinned = true
	contents := append([]byte(nil), f.physical...)
	spte := f.spte

	ft.mu.Unlock()
	defer ft.mu.Lock()

	switch {
	case spte.backing == backingFile && spte.codec == CodecNone:
		if _, err := spte.file.WriteAt(contents, spte.offset); err != nil {
			fatal("evict: write-out to file failed: %v", err)
		}
	default:
		slot, err := ft.swap.SwapOut(contents)
		if err != nil {
			fatal("evict: swap out failed: %v", err)
		}
		spte.backing = backingSwap
		spte.slot = slot
	}
	f.pinned = false
}

// Pin / Unpin guard a frame against concurrent eviction during a load or a
// pointer-validated kernel access (spec §4.6 "Pinning").
func (ft *FrameTable) Pin(f *Frame) {
	ft.mu.Lock()
	f.pinned = true
	ft.mu.Unlock()
}

func (ft *FrameTable) Unpin(f *Frame) {
	ft.mu.Lock()
	f.pinned = false
	ft.mu.Unlock()
}

// FreeCount reports the number of unoccupied frames, used by the property
// suite and by tests simulating memory pressure (spec §8).
func (ft *FrameTable) FreeCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.freeCount
}
