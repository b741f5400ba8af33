package pintos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioLargeFileGrowth covers spec §8 scenario 1: an 8,000,000-byte
// write/read round trip, plus the exact sector-bitmap usage formula
// (ceil(len/512) data sectors + 1 indirect index + 1 doubly-indirect index
// + k second-level indirects).
func TestScenarioLargeFileGrowth(t *testing.T) {
	const length = 8_000_000
	dataSectors := sectorsFor(length)
	secondLevelIndirects := (int(dataSectors) - NumDirect - PointersPerBlock + PointersPerBlock - 1) / PointersPerBlock
	wantUsed := uint32(int(dataSectors) + 1 /* indirect index */ + 1 /* doubly-indirect index */ + secondLevelIndirects)

	totalSectors := wantUsed + 16 // inode sector + free-map/root overhead
	store, fm := newTestStore(t, totalSectors)
	inodeSector, ok := fm.Alloc()
	require.True(t, ok)
	require.NoError(t, store.Create(inodeSector, 0, kindFile))
	in, err := store.Open(inodeSector)
	require.NoError(t, err)
	defer store.Close(in)

	data := make([]byte, length)
	for i := range data {
		data[i] = byte(i)
	}
	n, werr := in.WriteAt(data, 0)
	require.NoError(t, werr)
	require.Equal(t, length, n)

	got := make([]byte, length)
	rn := in.ReadAt(got, 0)
	require.Equal(t, length, rn)
	assert.Equal(t, data, got)

	assert.Equal(t, wantUsed+1 /* the inode's own sector */, fm.UsedCount())
}

// TestScenarioDeleteWhileOpen covers spec §8 scenario 2.
func TestScenarioDeleteWhileOpen(t *testing.T) {
	fsys := newTestFS(t)

	procA := NewProcess(1, fsys.Store, nil, nil, NewFakePageDirectory(), RootSector, 0)
	procB := NewProcess(2, fsys.Store, nil, nil, NewFakePageDirectory(), RootSector, 0)
	procC := NewProcess(3, fsys.Store, nil, nil, NewFakePageDirectory(), RootSector, 0)

	require.True(t, procA.Create("x", 0))
	// Baseline: everything now in use except x's own (still empty) inode
	// sector. The data sector the root directory grew into for x's entry
	// stays allocated after x is gone.
	before := fsys.Free.UsedCount() - 1
	fdA := procA.Open("x")
	require.GreaterOrEqual(t, fdA, 2)

	require.True(t, procB.Remove("x"))

	assert.Equal(t, -1, procC.Open("x"), "open of a removed name must fail")

	// A's handle, opened before the remove, still works.
	n := procA.Write(fdA, []byte("still here"), nil)
	assert.Equal(t, len("still here"), n)
	procA.Seek(fdA, 0)
	buf := make([]byte, len("still here"))
	rn := procA.Read(fdA, buf, nil)
	assert.Equal(t, len(buf), rn)
	assert.Equal(t, "still here", string(buf))

	procA.Close(fdA)
	assert.Equal(t, before, fsys.Free.UsedCount(), "all of x's sectors return to the free-map once the last opener closes")
}

// TestScenarioEvictionUnderPressure covers spec §8 scenario 3: exact clock
// victim order, dirty write-out verification, and correct reload of the
// evicted page's original contents.
func TestScenarioEvictionUnderPressure(t *testing.T) {
	store, fm := newTestStore(t, 16)
	sector, _ := fm.Alloc()
	require.NoError(t, store.Create(sector, PageSize, kindFile))
	file, err := store.Open(sector)
	require.NoError(t, err)
	defer store.Close(file)

	ft, swap := newTestFrameSetup(1)
	pd := NewFakePageDirectory()
	owner := newOwner(pd)

	original := make([]byte, PageSize)
	for i := range original {
		original[i] = 0x11
	}
	_, werr := file.WriteAt(original, 0)
	require.NoError(t, werr)

	victim := NewFileSPTE(0x1000, file, 0, PageSize, 0, true)
	vf := ft.Alloc(PagePoolUser, owner, victim)
	for i := range vf.physical {
		vf.physical[i] = 0x99 // dirty contents, different from what's on disk
	}
	pd.Install(victim.Upage(), vf, true)
	pd.SetDirty(victim.Upage(), true)

	newcomer := NewZeroSPTE(0x2000)
	nf := ft.Alloc(PagePoolUser, owner, newcomer)
	require.NotNil(t, nf)

	// Victim's dirty contents must have been written out to its file
	// backing before the frame was reclaimed.
	onDisk := make([]byte, PageSize)
	file.ReadAt(onDisk, 0)
	for i, b := range onDisk {
		require.Equal(t, byte(0x99), b, "byte %d", i)
	}
	_, stillMapped := pd.Lookup(victim.Upage())
	assert.False(t, stillMapped)
	assert.False(t, victim.Loaded())

	// Re-access reloads the evicted page: this time straight from the
	// (now updated) file, the same path HandleFault takes.
	proc := NewProcess(1, store, ft, swap, pd, 0, 0)
	err = proc.load(victim)
	require.NoError(t, err)
	frame, ok := pd.Lookup(victim.Upage())
	require.True(t, ok)
	assert.Equal(t, onDisk, frame.physical)
}

// TestScenarioStackGrowthAcceptAndReject covers spec §8 scenario 4.
func TestScenarioStackGrowthAcceptAndReject(t *testing.T) {
	proc, _ := newTestProcess(t, 2)
	sp := proc.stackBase

	err := HandleFault(proc, sp-4, AccessWrite, sp)
	require.NoError(t, err)
	spte, ok := proc.spt.Lookup(pageOf(sp - 4))
	require.True(t, ok)
	assert.True(t, spte.Writable())
	assert.True(t, spte.Loaded())

	proc2, _ := newTestProcess(t, 2)
	sp2 := proc2.stackBase
	err = HandleFault(proc2, sp2-64, AccessWrite, sp2)
	assert.ErrorIs(t, err, ErrSegv)
}

// TestScenarioDirectoryEmptinessCheck covers spec §8 scenario 5.
func TestScenarioDirectoryEmptinessCheck(t *testing.T) {
	proc, fsys := newTestSyscallProcess(t)

	require.True(t, proc.Mkdir("a"))
	require.True(t, proc.Mkdir("a/b"))

	assert.False(t, proc.Remove("a"), "removing a non-empty directory must fail")
	require.True(t, proc.Remove("a/b"))
	require.True(t, proc.Remove("a"))

	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	rootDir := NewDirectory(root)
	assert.ErrorIs(t, rootDir.Remove(fsys.Store, "."), ErrNotFound, "the root has no stored '.' entry to remove")
}

// TestScenarioParentNavigation covers spec §8 scenario 6.
func TestScenarioParentNavigation(t *testing.T) {
	proc, _ := newTestSyscallProcess(t)
	require.True(t, proc.Mkdir("a"))
	require.NoError(t, proc.Chdir("a"))
	require.True(t, proc.Mkdir("b"))
	require.NoError(t, proc.Chdir("b"))

	fd := proc.Open("..")
	require.GreaterOrEqual(t, fd, 2)
	assert.True(t, proc.Isdir(fd))
	proc.Close(fd)

	require.NoError(t, proc.Chdir("../.."))
	assert.Equal(t, uint32(RootSector), proc.Cwd())
}
