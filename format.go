package pintos

import "github.com/google/uuid"

// FileSystem bundles the pieces a mounted volume needs together: the
// block device, the in-memory free-map rebuilt at mount time, and the
// inode store built over both (spec §6 "On-disk layout").
type FileSystem struct {
	Dev   Device
	Free  *FreeMap
	Store *InodeStore
	UUID  uuid.UUID
}

// Format initializes a fresh file system on dev: sector 0 holds a
// placeholder free-map inode (spec §6: "Sector 0: free-map inode") whose
// first four Direct slots carry a freshly generated instance UUID (SPEC_FULL
// §4 "Filesystem UUID"); sector 1 holds the root directory inode (spec
// §6: "Sector 1: root directory inode"). The live free-map bitmap itself
// is kept only in memory for the life of the mount (see FreeMap's doc
// comment) — Format marks sectors 0 and 1 used in it directly rather than
// reading them back.
func Format(dev Device) (*FileSystem, error) {
	total := dev.SectorCount()
	free := NewFreeMap(total)
	free.MarkUsed(0)
	free.MarkUsed(RootSector)

	store := NewInodeStore(dev, free)

	id := uuid.New()
	store.writeSector(0, marshalFreemapPlaceholder(id))

	if err := store.Create(RootSector, 0, kindDir); err != nil {
		return nil, err
	}
	root, err := store.Open(RootSector)
	if err != nil {
		return nil, err
	}
	root.mu.Lock()
	root.disk.ParentSector = RootSector
	root.persistLocked()
	root.mu.Unlock()
	store.Close(root)

	return &FileSystem{Dev: dev, Free: free, Store: store, UUID: id}, nil
}

// Mount reconstructs an InodeStore over an already-formatted device,
// without re-running Format, and recovers the instance UUID stamped into
// sector 0 at format time. Since the free-map bitmap is not persisted
// (see FreeMap's doc comment), only sectors 0 and 1 are marked used; every
// other sector, including those that hold existing files and directories,
// is presumed free again, matching a teaching kernel's usual
// single-session-per-boot lifetime.
func Mount(dev Device) *FileSystem {
	total := dev.SectorCount()
	free := NewFreeMap(total)
	free.MarkUsed(0)
	free.MarkUsed(RootSector)
	store := NewInodeStore(dev, free)

	buf := make([]byte, SectorSize)
	store.readSector(0, buf)
	id := unmarshalFreemapPlaceholder(buf)

	return &FileSystem{Dev: dev, Free: free, Store: store, UUID: id}
}

// marshalFreemapPlaceholder builds sector 0's placeholder free-map inode,
// reusing diskInode's otherwise-unused Direct slots to hold the 16-byte
// UUID (SPEC_FULL §4 "Filesystem UUID"). This sector is never addressed through the
// ordinary byte_to_sector mapping, so repurposing four direct slots this
// way cannot collide with real file data.
func marshalFreemapPlaceholder(id uuid.UUID) []byte {
	d := diskInode{Magic: inodeMagic, Kind: uint8(kindFile)}
	for i := 0; i < 4; i++ {
		d.Direct[i] = getUint32(id[i*4 : i*4+4])
	}
	buf := make([]byte, SectorSize)
	copy(buf, d.marshal())
	return buf
}

func unmarshalFreemapPlaceholder(buf []byte) uuid.UUID {
	var d diskInode
	d.unmarshal(buf)
	var id uuid.UUID
	for i := 0; i < 4; i++ {
		putUint32(id[i*4:i*4+4], d.Direct[i])
	}
	return id
}
