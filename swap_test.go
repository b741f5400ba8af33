package pintos

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapOutInRoundTrip(t *testing.T) {
	dev := NewMemoryDevice(sectorsPerSlot * 4)
	sm := NewSwapManager(dev)
	assert.Equal(t, 4, sm.freeCountLocked())

	page := bytes.Repeat([]byte{0xAB}, PageSize)
	slot, err := sm.SwapOut(page)
	require.NoError(t, err)
	assert.Equal(t, 3, sm.freeCountLocked())
	assert.True(t, sm.used(slot))

	dest := make([]byte, PageSize)
	require.NoError(t, sm.SwapIn(slot, dest))
	assert.Equal(t, page, dest)
	assert.Equal(t, 4, sm.freeCountLocked())
	assert.False(t, sm.used(slot))
}

func TestSwapOutRejectsWrongSize(t *testing.T) {
	sm := NewSwapManager(NewMemoryDevice(sectorsPerSlot))
	_, err := sm.SwapOut(make([]byte, PageSize-1))
	assert.Error(t, err)
}

func TestSwapOutExhaustion(t *testing.T) {
	sm := NewSwapManager(NewMemoryDevice(sectorsPerSlot))
	page := make([]byte, PageSize)
	_, err := sm.SwapOut(page)
	require.NoError(t, err)

	_, err = sm.SwapOut(page)
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestSwapFreeWithoutReading(t *testing.T) {
	sm := NewSwapManager(NewMemoryDevice(sectorsPerSlot * 2))
	slot, err := sm.SwapOut(make([]byte, PageSize))
	require.NoError(t, err)
	sm.Free(slot)
	assert.False(t, sm.used(slot))
	assert.Equal(t, 2, sm.freeCountLocked())
}
