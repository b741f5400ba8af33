package pintos

// StackGrowthThreshold is the distance below the stack pointer within
// which a fault is considered stack growth rather than a segfault (spec
// §4.6, §9: "comes from the x86 pusha instruction's behaviour").
const StackGrowthThreshold = 32

// StackLimit caps how far the stack may grow downward from its base (spec
// §4.6: "does not exceed a fixed cap (e.g. 8 MiB)").
const StackLimit = 8 * 1024 * 1024

// AccessKind distinguishes a read fault from a write fault.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
)

// pageOf rounds a virtual address down to its containing page.
func pageOf(va uintptr) uintptr {
	return va &^ (PageSize - 1)
}

// HandleFault resolves a page fault at va for proc, given the faulting
// access kind and the faulting context's stack pointer (spec §4.6). It
// returns nil on success and ErrSegv when the process must be terminated.
func HandleFault(proc *Process, va uintptr, kind AccessKind, sp uintptr) error {
	upage := pageOf(va)

	if spte, ok := proc.spt.Lookup(upage); ok {
		if kind == AccessWrite && !spte.writable {
			return ErrSegv
		}
		return proc.load(spte)
	}

	if !isStackGrowthCandidate(proc, va, sp) {
		return ErrSegv
	}
	return proc.growStack(upage)
}

// isStackGrowthCandidate applies the heuristic from spec §4.6: va must sit
// within StackGrowthThreshold bytes below sp, within the user-stack
// region, and within StackLimit of the stack's base.
func isStackGrowthCandidate(proc *Process, va, sp uintptr) bool {
	if va >= sp {
		return false
	}
	if sp-va > StackGrowthThreshold {
		return false
	}
	if va > proc.stackBase {
		return false
	}
	if proc.stackBase-pageOf(va) > StackLimit {
		return false
	}
	return true
}

// growStack installs a fresh zero-filled swap-backed SPTE for upage and
// immediately loads it (spec §4.6 "grow_stack": "swap-backed entries
// pre-filled with zeros").
func (proc *Process) growStack(upage uintptr) error {
	spte := NewZeroSPTE(upage)
	if err := proc.spt.Install(spte); err != nil {
		return err
	}
	return proc.load(spte)
}

// load resolves spte into a physical frame and installs the mapping (spec
// §4.6 "load(spte)"). The frame is pinned for the duration of the load to
// prevent a concurrent eviction race (spec §4.6 "Pinning").
func (proc *Process) load(spte *SPTE) error {
	switch spte.backing {
	case backingFile:
		frame := proc.frames.Alloc(PagePoolUser|PagePoolZero, proc, spte)
		proc.frames.Pin(frame)
		defer proc.frames.Unpin(frame)

		if spte.codec != CodecNone {
			raw := make([]byte, spte.compressedLen)
			n := spte.file.ReadAt(raw, spte.offset)
			if uint32(n) != spte.compressedLen {
				proc.frames.Free(frame)
				return invalidf("load: short read of compressed segment at offset %d: got %d want %d", spte.offset, n, spte.compressedLen)
			}
			decoded, derr := decompressSegment(spte.codec, raw, int(spte.bytesRead))
			if derr != nil {
				proc.frames.Free(frame)
				return invalidf("load: decompress segment (%s) failed: %v", spte.codec, derr)
			}
			copy(frame.physical[:spte.bytesRead], decoded)
		} else {
			n := spte.file.ReadAt(frame.physical[:spte.bytesRead], spte.offset)
			if uint32(n) != spte.bytesRead {
				proc.frames.Free(frame)
				return invalidf("load: short read at offset %d: got %d want %d", spte.offset, n, spte.bytesRead)
			}
		}
		proc.pd.Install(spte.upage, frame, spte.writable)
		spte.loaded = true
		return nil

	default: // backingSwap
		flags := PagePoolUser
		if spte.slot < 0 {
			// nothing to swap in: the page must start out zero-filled
			flags |= PagePoolZero
		}
		frame := proc.frames.Alloc(flags, proc, spte)
		proc.frames.Pin(frame)
		defer proc.frames.Unpin(frame)

		proc.pd.Install(spte.upage, frame, spte.writable)
		if spte.slot >= 0 {
			if err := proc.swap.SwapIn(spte.slot, frame.physical); err != nil {
				proc.pd.Clear(spte.upage)
				proc.frames.Free(frame)
				return err
			}
		}
		spte.slot = -1
		spte.loaded = true
		return nil
	}
}
