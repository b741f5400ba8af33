package pintos

import "github.com/jacobsa/syncutil"

// backing distinguishes the two SPTE variants (spec §9 "Backing-store
// tagged union": "a sum type having exactly two variants").
type backing uint8

const (
	backingFile backing = iota
	backingSwap
)

// SPTE is a per-process supplemental page-table entry, keyed by
// page-aligned user virtual address (spec §3, §4.6).
type SPTE struct {
	upage uintptr

	backing backing

	// file-backed fields
	file      *Inode
	offset    uint32
	bytesRead uint32 // decompressed length when codec != CodecNone
	bytesZero uint32

	// (new, SPEC_FULL §4) compression applied to the on-disk bytes at
	// offset; only ever set on a read-only (non-writable) entry, since a
	// dirty writable page must be evicted without re-compressing.
	codec         SegmentCodec
	compressedLen uint32 // on-disk length when codec != CodecNone

	// swap-backed field
	slot int

	writable bool
	loaded   bool
}

// NewFileSPTE creates a lazy file-backed entry, as the ELF loader does for
// each segment page (spec §4.6: "bytes_read + bytes_zero = PAGE").
func NewFileSPTE(upage uintptr, file *Inode, offset, bytesRead, bytesZero uint32, writable bool) *SPTE {
	if bytesRead+bytesZero != PageSize {
		fatal("NewFileSPTE: bytesRead(%d)+bytesZero(%d) != PageSize(%d)", bytesRead, bytesZero, PageSize)
	}
	return &SPTE{
		upage:     upage,
		backing:   backingFile,
		file:      file,
		offset:    offset,
		bytesRead: bytesRead,
		bytesZero: bytesZero,
		writable:  writable,
	}
}

// NewCompressedFileSPTE creates a read-only lazy file-backed entry whose
// on-disk bytes are compressed (SPEC_FULL §4 "Compressed file-backed
// segment"). compressedLen is the on-disk byte count at offset;
// decompressedLen+bytesZero must equal PageSize.
func NewCompressedFileSPTE(upage uintptr, file *Inode, offset, compressedLen, decompressedLen, bytesZero uint32, codec SegmentCodec) *SPTE {
	if decompressedLen+bytesZero != PageSize {
		fatal("NewCompressedFileSPTE: decompressedLen(%d)+bytesZero(%d) != PageSize(%d)", decompressedLen, bytesZero, PageSize)
	}
	if codec == CodecNone {
		fatal("NewCompressedFileSPTE: codec must not be CodecNone")
	}
	return &SPTE{
		upage:         upage,
		backing:       backingFile,
		file:          file,
		offset:        offset,
		bytesRead:     decompressedLen,
		bytesZero:     bytesZero,
		codec:         codec,
		compressedLen: compressedLen,
		writable:      false,
	}
}

// NewZeroSPTE creates a swap-backed entry pre-filled with zeros, as
// grow_stack does (spec §4.6). It has no swap slot until first evicted,
// so it is loaded directly without a SwapIn on first fault.
func NewZeroSPTE(upage uintptr) *SPTE {
	return &SPTE{upage: upage, backing: backingSwap, slot: -1, writable: true}
}

// Upage returns the virtual page this entry backs.
func (s *SPTE) Upage() uintptr { return s.upage }

// Loaded reports whether a frame currently backs this entry.
func (s *SPTE) Loaded() bool { return s.loaded }

// Writable reports the entry's writable flag.
func (s *SPTE) Writable() bool { return s.writable }

// SupplementalPageTable is the per-process map of virtual page to backing
// location (spec §3, §4.6). Keyed by page address, one entry per page.
type SupplementalPageTable struct {
	mu      syncutil.InvariantMutex
	entries map[uintptr]*SPTE
}

// NewSupplementalPageTable returns an empty SPT.
func NewSupplementalPageTable() *SupplementalPageTable {
	spt := &SupplementalPageTable{entries: make(map[uintptr]*SPTE)}
	spt.mu = syncutil.NewInvariantMutex(spt.checkInvariants)
	return spt
}

func (spt *SupplementalPageTable) checkInvariants() {
	for upage, e := range spt.entries {
		if e.upage != upage {
			panicf("spt: key %v does not match entry upage %v", upage, e.upage)
		}
	}
}

// Install adds spte, rejecting a second entry for the same page (spec §3:
// "at most one entry per user virtual page").
func (spt *SupplementalPageTable) Install(spte *SPTE) error {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	if _, exists := spt.entries[spte.upage]; exists {
		return ErrExists
	}
	spt.entries[spte.upage] = spte
	return nil
}

// Lookup returns the entry for upage, if any.
func (spt *SupplementalPageTable) Lookup(upage uintptr) (*SPTE, bool) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	e, ok := spt.entries[upage]
	return e, ok
}

// Remove deletes upage's entry, releasing its swap slot first if it holds
// one (spec §4.6: "Destroyed at process exit; if swap-backed, the swap
// slot is released.").
func (spt *SupplementalPageTable) Remove(upage uintptr, swap *SwapManager) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	e, ok := spt.entries[upage]
	if !ok {
		return
	}
	if e.backing == backingSwap && e.slot >= 0 && !e.loaded {
		swap.Free(e.slot)
	}
	delete(spt.entries, upage)
}

// Destroy tears down every entry, releasing held swap slots (spec §4.6,
// used at process exit).
func (spt *SupplementalPageTable) Destroy(swap *SwapManager) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	for upage, e := range spt.entries {
		if e.backing == backingSwap && e.slot >= 0 && !e.loaded {
			swap.Free(e.slot)
		}
		delete(spt.entries, upage)
	}
}
