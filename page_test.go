package pintos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileSPTERejectsBadSizes(t *testing.T) {
	store, fm := newTestStore(t, 16)
	sector, _ := fm.Alloc()
	require.NoError(t, store.Create(sector, PageSize, kindFile))
	in, err := store.Open(sector)
	require.NoError(t, err)
	defer store.Close(in)

	assert.Panics(t, func() {
		NewFileSPTE(0x1000, in, 0, PageSize-1, 0, true)
	})
}

func TestNewCompressedFileSPTEForcesReadOnly(t *testing.T) {
	store, fm := newTestStore(t, 16)
	sector, _ := fm.Alloc()
	require.NoError(t, store.Create(sector, PageSize, kindFile))
	in, err := store.Open(sector)
	require.NoError(t, err)
	defer store.Close(in)

	spte := NewCompressedFileSPTE(0x1000, in, 0, 100, PageSize, 0, CodecZstd)
	assert.False(t, spte.Writable())

	assert.Panics(t, func() {
		NewCompressedFileSPTE(0x1000, in, 0, 100, PageSize, 0, CodecNone)
	})
}

func TestSupplementalPageTableInstallLookupRemove(t *testing.T) {
	spt := NewSupplementalPageTable()
	swap := NewSwapManager(NewMemoryDevice(sectorsPerSlot * 2))

	spte := NewZeroSPTE(0x4000)
	require.NoError(t, spt.Install(spte))
	assert.ErrorIs(t, spt.Install(NewZeroSPTE(0x4000)), ErrExists)

	got, ok := spt.Lookup(0x4000)
	require.True(t, ok)
	assert.Same(t, spte, got)

	spt.Remove(0x4000, swap)
	_, ok = spt.Lookup(0x4000)
	assert.False(t, ok)
}

func TestSupplementalPageTableRemoveFreesUnloadedSwapSlot(t *testing.T) {
	spt := NewSupplementalPageTable()
	swap := NewSwapManager(NewMemoryDevice(sectorsPerSlot * 2))

	slot, err := swap.SwapOut(make([]byte, PageSize))
	require.NoError(t, err)

	spte := &SPTE{upage: 0x5000, backing: backingSwap, slot: slot}
	require.NoError(t, spt.Install(spte))

	spt.Remove(0x5000, swap)
	assert.False(t, swap.used(slot))
}

func TestSupplementalPageTableDestroyClearsEverything(t *testing.T) {
	spt := NewSupplementalPageTable()
	swap := NewSwapManager(NewMemoryDevice(sectorsPerSlot * 4))

	s1, _ := swap.SwapOut(make([]byte, PageSize))
	s2, _ := swap.SwapOut(make([]byte, PageSize))
	require.NoError(t, spt.Install(&SPTE{upage: 1, backing: backingSwap, slot: s1}))
	require.NoError(t, spt.Install(&SPTE{upage: 2, backing: backingSwap, slot: s2}))

	spt.Destroy(swap)
	_, ok := spt.Lookup(1)
	assert.False(t, ok)
	_, ok = spt.Lookup(2)
	assert.False(t, ok)
	assert.False(t, swap.used(s1))
	assert.False(t, swap.used(s2))
}
