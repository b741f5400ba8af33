package pintos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFS formats a fresh in-memory file system, large enough for the
// directory/path-resolution tests in this file.
func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	dev := NewMemoryDevice(64)
	fs, err := Format(dev)
	require.NoError(t, err)
	return fs
}

// mkSubdir creates a bare directory inode under parent named name and
// returns its sector, bypassing the syscall layer (no Process needed).
func mkSubdir(t *testing.T, fsys *FileSystem, parent *Directory, name string) uint32 {
	t.Helper()
	sector, ok := fsys.Free.Alloc()
	require.True(t, ok)
	require.NoError(t, fsys.Store.Create(sector, 0, kindDir))

	child, err := fsys.Store.Open(sector)
	require.NoError(t, err)
	child.mu.Lock()
	child.disk.ParentSector = parent.Ino().Sector()
	child.persistLocked()
	child.mu.Unlock()
	fsys.Store.Close(child)

	require.NoError(t, parent.Add(name, sector))
	return sector
}

func TestDirectoryAddLookupRemove(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	fileSector, ok := fsys.Free.Alloc()
	require.True(t, ok)
	require.NoError(t, fsys.Store.Create(fileSector, 0, kindFile))

	require.NoError(t, dir.Add("a.txt", fileSector))
	got, _, err := dir.Lookup("a.txt")
	require.NoError(t, err)
	assert.Equal(t, fileSector, got)

	_, _, err = dir.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, dir.Remove(fsys.Store, "a.txt"))
	_, _, err = dir.Lookup("a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryRejectsInvalidNames(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	assert.ErrorIs(t, dir.Add("", 2), ErrInvalidName)
	assert.ErrorIs(t, dir.Add(".", 2), ErrInvalidName)
	assert.ErrorIs(t, dir.Add("..", 2), ErrInvalidName)
	assert.ErrorIs(t, dir.Add("this-name-is-way-too-long", 2), ErrInvalidName)
}

func TestDirectoryRejectsDuplicateNames(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	sector, _ := fsys.Free.Alloc()
	require.NoError(t, fsys.Store.Create(sector, 0, kindFile))
	require.NoError(t, dir.Add("dup", sector))

	other, _ := fsys.Free.Alloc()
	require.NoError(t, fsys.Store.Create(other, 0, kindFile))
	assert.ErrorIs(t, dir.Add("dup", other), ErrExists)
}

func TestDirectoryRootCannotBeRemoved(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	// A name pointing back at the root sector (root's own self-reference
	// via "..") must never be removable.
	require.NoError(t, dir.Add("self", RootSector))
	assert.ErrorIs(t, dir.Remove(fsys.Store, "self"), ErrBusy)
}

func TestDirectoryRemoveRejectsNonEmpty(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	subSector := mkSubdir(t, fsys, dir, "sub")
	sub, err := fsys.Store.Open(subSector)
	require.NoError(t, err)
	subDir := NewDirectory(sub)

	fileSector, _ := fsys.Free.Alloc()
	require.NoError(t, fsys.Store.Create(fileSector, 0, kindFile))
	require.NoError(t, subDir.Add("leaf", fileSector))
	fsys.Store.Close(sub)

	assert.ErrorIs(t, dir.Remove(fsys.Store, "sub"), ErrBusy)
}

func TestDirectoryRemoveRejectsOpenElsewhere(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	subSector := mkSubdir(t, fsys, dir, "sub")
	keepOpen, err := fsys.Store.Open(subSector)
	require.NoError(t, err)
	defer fsys.Store.Close(keepOpen)

	assert.ErrorIs(t, dir.Remove(fsys.Store, "sub"), ErrBusy)
}

func TestDirectoryIsEmpty(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)
	assert.True(t, dir.IsEmpty())

	mkSubdir(t, fsys, dir, "sub")
	assert.False(t, dir.IsEmpty())
}

func TestDirectoryReaddirVisitsOccupiedOnly(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	defer fsys.Store.Close(root)
	dir := NewDirectory(root)

	mkSubdir(t, fsys, dir, "a")
	mkSubdir(t, fsys, dir, "b")
	require.NoError(t, dir.Remove(fsys.Store, "a"))
	mkSubdir(t, fsys, dir, "c")

	var names []string
	cur := &DirCursor{}
	for {
		name, ok := dir.Readdir(cur)
		if !ok {
			break
		}
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, names)
}

func TestResolveNestedPathAndDotDot(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	rootDir := NewDirectory(root)

	subSector := mkSubdir(t, fsys, rootDir, "a")
	sub, err := fsys.Store.Open(subSector)
	require.NoError(t, err)
	subDir := NewDirectory(sub)

	leafFile, _ := fsys.Free.Alloc()
	require.NoError(t, fsys.Store.Create(leafFile, 0, kindFile))
	require.NoError(t, subDir.Add("b.txt", leafFile))
	fsys.Store.Close(sub)
	fsys.Store.Close(root)

	parent, leaf, err := Resolve(fsys.Store, RootSector, "/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", leaf)
	gotSector, _, err := parent.Lookup(leaf)
	require.NoError(t, err)
	assert.Equal(t, leafFile, gotSector)
	closeDir(fsys.Store, parent)

	// ".." from "a" back up to root.
	parent2, leaf2, err := Resolve(fsys.Store, subSector, "../a")
	require.NoError(t, err)
	assert.Equal(t, "a", leaf2)
	assert.Equal(t, uint32(RootSector), parent2.Ino().Sector())
	closeDir(fsys.Store, parent2)
}

func TestResolveTreatsNonDirectoryComponentAsNotFound(t *testing.T) {
	fsys := newTestFS(t)
	root, err := fsys.Store.Open(RootSector)
	require.NoError(t, err)
	rootDir := NewDirectory(root)

	fileSector, _ := fsys.Free.Alloc()
	require.NoError(t, fsys.Store.Create(fileSector, 0, kindFile))
	require.NoError(t, rootDir.Add("f", fileSector))
	fsys.Store.Close(root)

	_, _, err = Resolve(fsys.Store, RootSector, "/f/x")
	assert.ErrorIs(t, err, ErrNotFound)
}
