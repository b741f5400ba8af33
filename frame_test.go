package pintos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFrameSetup wires a frame table of size n over a fake page pool
// and a swap manager with plenty of slots, the minimal rig the clock
// algorithm needs (spec §4.5).
func newTestFrameSetup(n int) (*FrameTable, *SwapManager) {
	pool := NewFakePhysicalPagePool(n)
	swap := NewSwapManager(NewMemoryDevice(sectorsPerSlot * 8))
	return NewFrameTable(n, pool, swap), swap
}

func newOwner(pd PageDirectory) *Process {
	return &Process{pd: pd}
}

func TestFrameTableAllocUntilFull(t *testing.T) {
	ft, _ := newTestFrameSetup(2)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	spteA := NewZeroSPTE(0x1000)
	spteB := NewZeroSPTE(0x2000)
	fa := ft.Alloc(PagePoolUser, owner, spteA)
	require.NotNil(t, fa)
	fb := ft.Alloc(PagePoolUser, owner, spteB)
	require.NotNil(t, fb)
	assert.Equal(t, 0, ft.FreeCount())
}

func TestFrameTableFreeReturnsSlot(t *testing.T) {
	ft, _ := newTestFrameSetup(1)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	spte := NewZeroSPTE(0x1000)
	f := ft.Alloc(PagePoolUser, owner, spte)
	ft.Free(f)
	assert.Equal(t, 1, ft.FreeCount())
}

func TestFrameTableEvictsUnaccessedFrameFirst(t *testing.T) {
	ft, _ := newTestFrameSetup(2)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	spteA := NewZeroSPTE(0x1000)
	spteB := NewZeroSPTE(0x2000)
	fa := ft.Alloc(PagePoolUser, owner, spteA)
	fb := ft.Alloc(PagePoolUser, owner, spteB)
	pd.Install(spteA.Upage(), fa, true)
	pd.Install(spteB.Upage(), fb, true)

	// Mark A as recently accessed; the clock algorithm must skip it once
	// (clearing the bit) and evict B, the unaccessed victim.
	pd.SetAccessed(spteA.Upage(), true)

	spteC := NewZeroSPTE(0x3000)
	fc := ft.Alloc(PagePoolUser, owner, spteC)
	require.NotNil(t, fc)

	assert.False(t, spteB.Loaded())
	_, stillMapped := pd.Lookup(spteB.Upage())
	assert.False(t, stillMapped, "evicted page must be cleared from the page directory")

	// A's accessed bit should have been cleared by the pass that spared it.
	assert.False(t, pd.IsAccessed(spteA.Upage()))
}

func TestFrameTableEvictionWritesOutDirtyFileBackedPage(t *testing.T) {
	store, fm := newTestStore(t, 16)
	sector, _ := fm.Alloc()
	require.NoError(t, store.Create(sector, PageSize, kindFile))
	file, err := store.Open(sector)
	require.NoError(t, err)
	defer store.Close(file)

	ft, _ := newTestFrameSetup(1)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	spte := NewFileSPTE(0x1000, file, 0, PageSize, 0, true)
	f := ft.Alloc(PagePoolUser, owner, spte)
	for i := range f.physical {
		f.physical[i] = 0x42
	}
	pd.Install(spte.Upage(), f, true)
	pd.SetDirty(spte.Upage(), true)

	spte2 := NewZeroSPTE(0x2000)
	f2 := ft.Alloc(PagePoolUser, owner, spte2)
	require.NotNil(t, f2)

	got := make([]byte, PageSize)
	file.ReadAt(got, 0)
	for i, b := range got {
		assert.Equal(t, byte(0x42), b, "byte %d", i)
	}
}

func TestFrameTableEvictionSwapsOutAnonymousPage(t *testing.T) {
	ft, swap := newTestFrameSetup(1)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	spte := NewZeroSPTE(0x1000)
	f := ft.Alloc(PagePoolUser, owner, spte)
	pd.Install(spte.Upage(), f, true)
	pd.SetDirty(spte.Upage(), true)

	before := swap.freeCountLocked()

	spte2 := NewZeroSPTE(0x2000)
	ft.Alloc(PagePoolUser, owner, spte2)

	assert.Equal(t, before-1, swap.freeCountLocked())
	assert.Equal(t, backingSwap, spte.backing)
	assert.GreaterOrEqual(t, spte.slot, 0)
}

func TestFrameTablePinPreventsEviction(t *testing.T) {
	ft, _ := newTestFrameSetup(1)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	spte := NewZeroSPTE(0x1000)
	f := ft.Alloc(PagePoolUser, owner, spte)
	pd.Install(spte.Upage(), f, true)
	ft.Pin(f)

	ft.mu.Lock()
	ok := ft.evictLocked()
	ft.mu.Unlock()
	assert.False(t, ok, "a pinned frame must never be chosen as a victim")
	ft.Unpin(f)
}
