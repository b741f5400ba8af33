package pintos

import (
	"math/bits"

	"github.com/jacobsa/syncutil"
)

// PageSize is the fixed unit of virtual/physical memory (spec GLOSSARY).
const PageSize = 4096

// sectorsPerSlot is how many device sectors back one swap slot.
const sectorsPerSlot = PageSize / SectorSize

// SwapManager is the page-granular slot allocator over a swap partition
// (spec §4.4). Bit=true means the slot is free.
type SwapManager struct {
	mu    syncutil.InvariantMutex
	dev   Device
	bits  []uint64
	slots int
}

// NewSwapManager creates a swap manager over dev, dividing it into
// PageSize-granular slots starting at sector 0 (spec §6 on-disk layout).
func NewSwapManager(dev Device) *SwapManager {
	slots := int(dev.SectorCount()) / sectorsPerSlot
	sm := &SwapManager{
		dev:   dev,
		bits:  make([]uint64, (slots+63)/64),
		slots: slots,
	}
	for i := range sm.bits {
		sm.bits[i] = ^uint64(0)
	}
	if tail := slots % 64; tail != 0 {
		sm.bits[len(sm.bits)-1] = (uint64(1) << uint(tail)) - 1
	}
	sm.mu = syncutil.NewInvariantMutex(sm.checkInvariants)
	return sm
}

func (sm *SwapManager) checkInvariants() {
	if sm.slots < 0 {
		panicf("swap: negative slot count")
	}
}

// freeCountLocked is used by tests; requires the caller to hold sm.mu.
func (sm *SwapManager) freeCountLocked() int {
	n := 0
	for _, w := range sm.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// scanAndFlip atomically finds one free bit and marks it used, returning its
// index. Must be called with sm.mu held.
func (sm *SwapManager) scanAndFlip() (int, bool) {
	for i, w := range sm.bits {
		if w == 0 {
			continue
		}
		bit := bits.TrailingZeros64(w)
		slot := i*64 + bit
		if slot >= sm.slots {
			return 0, false
		}
		sm.bits[i] &^= 1 << uint(bit)
		return slot, true
	}
	return 0, false
}

// SwapOut writes a PageSize page to a freshly allocated slot and returns the
// slot index. The bitmap scan-and-flip happens under the swap lock; the
// device writes happen after it is released, for every Device kind, per
// spec §5 ("not held across block I/O"). A failed write retakes the lock
// only to mark the slot free again.
func (sm *SwapManager) SwapOut(page []byte) (int, error) {
	if len(page) != PageSize {
		return 0, invalidf("swap out: page must be exactly one PageSize")
	}
	sm.mu.Lock()
	slot, ok := sm.scanAndFlip()
	sm.mu.Unlock()
	if !ok {
		return 0, ErrNoSpace
	}

	base := uint32(slot * sectorsPerSlot)
	buf := make([]byte, SectorSize)
	for s := 0; s < sectorsPerSlot; s++ {
		copy(buf, page[s*SectorSize:(s+1)*SectorSize])
		if err := sm.dev.WriteSector(base+uint32(s), buf); err != nil {
			sm.mu.Lock()
			sm.bits[slot/64] |= 1 << uint(slot%64)
			sm.mu.Unlock()
			return 0, err
		}
	}
	return slot, nil
}

// SwapIn reads the page from slot into dest and returns the slot to the free
// pool. There is no failure path other than device I/O (spec §4.4).
func (sm *SwapManager) SwapIn(slot int, dest []byte) error {
	if len(dest) != PageSize {
		return invalidf("swap in: dest must be exactly one PageSize")
	}
	base := uint32(slot * sectorsPerSlot)
	buf := make([]byte, SectorSize)
	for s := 0; s < sectorsPerSlot; s++ {
		if err := sm.dev.ReadSector(base+uint32(s), buf); err != nil {
			return err
		}
		copy(dest[s*SectorSize:(s+1)*SectorSize], buf)
	}
	sm.Free(slot)
	return nil
}

// Free flips a slot's bit back to free without reading it, used when an
// owning SPTE is destroyed without ever faulting its swapped page back in.
func (sm *SwapManager) Free(slot int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	word, bit := slot/64, slot%64
	sm.bits[word] |= 1 << uint(bit)
}

// used reports whether a slot is currently allocated (not free). Exposed for
// the property suite in §8 ("every used swap bit is referenced by exactly
// one SPTE").
func (sm *SwapManager) used(slot int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	word, bit := slot/64, slot%64
	return sm.bits[word]&(1<<uint(bit)) == 0
}
