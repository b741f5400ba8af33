package pintos

import (
	"math/bits"

	"github.com/jacobsa/syncutil"
)

// FreeMap is a bitmap over data sectors (spec §2, §4: "Bitmap over sectors;
// allocate/release"). Bit set means the sector is in use. It is the kernel's
// own free-list, kept entirely in memory for the lifetime of a mounted
// file system — spec.md treats its on-disk persistence as the boot-time
// free-map allocator's concern (out of scope, §1), so FreeMap here only
// models the in-kernel bitmap contract the rest of this package consumes.
type FreeMap struct {
	mu    syncutil.InvariantMutex
	bits  []uint64
	total uint32
	used  uint32
}

// NewFreeMap creates a bitmap covering `total` sectors, all initially free.
func NewFreeMap(total uint32) *FreeMap {
	fm := &FreeMap{
		bits:  make([]uint64, (total+63)/64),
		total: total,
	}
	fm.mu = syncutil.NewInvariantMutex(fm.checkInvariants)
	return fm
}

func (fm *FreeMap) checkInvariants() {
	var used uint32
	for i, w := range fm.bits {
		used += uint32(bits.OnesCount64(w))
		if uint64(i) == uint64(len(fm.bits)-1) {
			// tail bits beyond `total` must stay zero
			tailFrom := fm.total % 64
			if tailFrom != 0 {
				mask := ^uint64(0) << tailFrom
				if w&mask != 0 {
					panicf("freemap: tail bits set beyond total=%d", fm.total)
				}
			}
		}
	}
	if used != fm.used {
		panicf("freemap: cached used=%d does not match popcount=%d", fm.used, used)
	}
}

// Alloc claims the first free sector and returns it.
func (fm *FreeMap) Alloc() (uint32, bool) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for i, w := range fm.bits {
		if w == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^w)
		sector := uint32(i)*64 + uint32(bit)
		if sector >= fm.total {
			return 0, false
		}
		fm.bits[i] |= 1 << uint(bit)
		fm.used++
		return sector, true
	}
	return 0, false
}

// MarkUsed claims a specific sector at format time (sectors 0/1 and the
// free-map's own bookkeeping sectors).
func (fm *FreeMap) MarkUsed(sector uint32) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	word, bit := sector/64, sector%64
	if fm.bits[word]&(1<<bit) == 0 {
		fm.bits[word] |= 1 << bit
		fm.used++
	}
}

// Release returns a sector to the free pool.
func (fm *FreeMap) Release(sector uint32) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	word, bit := sector/64, sector%64
	if fm.bits[word]&(1<<bit) == 0 {
		panicf("freemap: double release of sector %d", sector)
	}
	fm.bits[word] &^= 1 << bit
	fm.used--
}

// UsedCount reports how many sectors are currently allocated.
func (fm *FreeMap) UsedCount() uint32 {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.used
}
