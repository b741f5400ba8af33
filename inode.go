package pintos

import (
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Inode is the in-memory representation of an open inode (spec §3):
// created on first open of a sector, shared by all subsequent openers of
// that sector. Mirrors the teacher's Superblock.GetInode/GetInodeRef
// registry-cache pattern (sb.inoIdx), generalized from "cache a read-only
// decoded inode" to "share a single read-write inode across all openers,
// refcounted, with deferred deletion."
type Inode struct {
	store  *InodeStore
	sector uint32

	mu syncutil.InvariantMutex // guards everything below

	openCount int
	removed   bool
	denyWrite int
	disk      diskInode
	modTime   time.Time // in-memory only; not part of the on-disk layout (spec §3)
}

func (i *Inode) checkInvariants() {
	if i.openCount < 1 {
		panicf("inode %d: openCount=%d, must stay >= 1 while alive", i.sector, i.openCount)
	}
	if i.denyWrite > i.openCount {
		panicf("inode %d: denyWrite=%d exceeds openCount=%d", i.sector, i.denyWrite, i.openCount)
	}
	if i.denyWrite < 0 {
		panicf("inode %d: denyWrite went negative", i.sector)
	}
}

// Sector returns the inode's disk sector number.
func (i *Inode) Sector() uint32 { return i.sector }

// IsDir reports whether this inode is a directory.
func (i *Inode) IsDir() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return inodeKind(i.disk.Kind) == kindDir
}

// Length returns the inode's current byte length.
func (i *Inode) Length() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.disk.Length
}

// ParentSector returns the directory sector this inode's ".." resolves to
// (spec §4.2 path resolution). Meaningful only for directories.
func (i *Inode) ParentSector() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.disk.ParentSector
}

// ModTime returns the inode's last-modified time as tracked in memory by
// the store's clock; zero until first written or created.
func (i *Inode) ModTime() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.modTime
}

// InodeStore owns the open-inodes registry (spec §3: "at most one
// in-memory instance per sector") plus the free-map and block device every
// inode operation needs.
type InodeStore struct {
	dev   Device
	free  *FreeMap
	clock timeutil.Clock

	regMu syncutil.InvariantMutex
	open  map[uint32]*Inode
}

func NewInodeStore(dev Device, free *FreeMap) *InodeStore {
	s := &InodeStore{dev: dev, free: free, open: make(map[uint32]*Inode), clock: timeutil.RealClock()}
	s.regMu = syncutil.NewInvariantMutex(s.checkRegistryInvariants)
	return s
}

// SetClock overrides the store's time source, used by tests wanting a
// timeutil.SimulatedClock for deterministic mtimes.
func (s *InodeStore) SetClock(c timeutil.Clock) { s.clock = c }

func (s *InodeStore) checkRegistryInvariants() {
	for sector, ino := range s.open {
		if ino.sector != sector {
			panicf("inode store: registry key %d does not match inode sector %d", sector, ino.sector)
		}
	}
}

func (s *InodeStore) readSector(num uint32, buf []byte) {
	if err := s.dev.ReadSector(num, buf); err != nil {
		fatal("block device read failure at sector %d: %v", num, err)
	}
}

func (s *InodeStore) writeSector(num uint32, buf []byte) {
	if err := s.dev.WriteSector(num, buf); err != nil {
		fatal("block device write failure at sector %d: %v", num, err)
	}
}

// Create initializes a fresh on-disk inode at sector (spec §4.1) and grows
// it to length. The indirect and doubly-indirect index blocks are not
// allocated here: grow allocates and zeroes each one when the first data
// sector that needs it is added. On partial allocation failure every
// sector claimed here is released before returning; sector itself stays
// allocated, since the caller claimed it.
func (s *InodeStore) Create(sector uint32, length uint32, kind inodeKind) error {
	d := diskInode{Magic: inodeMagic, Kind: uint8(kind)}

	buf := make([]byte, SectorSize)
	copy(buf, d.marshal())
	s.writeSector(sector, buf)

	in := &Inode{store: s, sector: sector, openCount: 1, disk: d, modTime: s.clock.Now()}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)

	if err := in.grow(length); err != nil {
		// release every direct/indirect/doubly-indirect sector claimed so
		// far; the inode's own sector is the caller's to release.
		in.removed = true
		in.releaseAllSectorsLocked()
		return err
	}
	in.persistLocked()
	return nil
}

// Open returns the shared in-memory Inode for sector, reading it from disk
// on first open (spec §4.1).
func (s *InodeStore) Open(sector uint32) (*Inode, error) {
	s.regMu.Lock()
	if in, ok := s.open[sector]; ok {
		in.mu.Lock()
		in.openCount++
		in.mu.Unlock()
		s.regMu.Unlock()
		return in, nil
	}
	s.regMu.Unlock()

	buf := make([]byte, SectorSize)
	s.readSector(sector, buf)
	var d diskInode
	d.unmarshal(buf)

	in := &Inode{store: s, sector: sector, openCount: 1, disk: d}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)

	s.regMu.Lock()
	defer s.regMu.Unlock()
	if existing, ok := s.open[sector]; ok {
		// lost the race to another opener between the two critical sections
		existing.mu.Lock()
		existing.openCount++
		existing.mu.Unlock()
		return existing, nil
	}
	s.open[sector] = in
	return in, nil
}

// Close decrements the open-count; at zero it removes the registry entry
// and, if the inode was marked removed, releases every sector it owns
// (spec §4.1).
func (s *InodeStore) Close(in *Inode) {
	in.mu.Lock()
	in.openCount--
	shouldDestroy := in.openCount == 0
	removed := in.removed
	in.mu.Unlock()

	if !shouldDestroy {
		return
	}

	s.regMu.Lock()
	delete(s.open, in.sector)
	s.regMu.Unlock()

	if removed {
		in.mu.Lock()
		in.releaseAllSectorsLocked()
		in.mu.Unlock()
		s.free.Release(in.sector)
	}
}

// Remove marks in for deletion; actual deallocation is deferred to the
// final Close (spec §4.1, §4.7 state machine).
func (s *InodeStore) Remove(in *Inode) {
	in.mu.Lock()
	in.removed = true
	in.mu.Unlock()
}

// OpenCount reports the live reference count, used by the directory layer's
// Busy check and by the property suite (spec §8).
func (in *Inode) OpenCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.openCount
}

// Removed reports whether Remove has been called on this inode.
func (in *Inode) Removed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.removed
}

// DenyWrite / AllowWrite implement the executable-loader counter (spec §3, §4.1).
func (in *Inode) DenyWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.denyWrite++
}

func (in *Inode) AllowWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.denyWrite == 0 {
		panicf("inode %d: AllowWrite without matching DenyWrite", in.sector)
	}
	in.denyWrite--
}

func (in *Inode) persistLocked() {
	buf := make([]byte, SectorSize)
	copy(buf, in.disk.marshal())
	in.store.writeSector(in.sector, buf)
}

// releaseAllSectorsLocked frees every sector this inode owns: direct, the
// two levels of indirect index blocks, and the data sectors they point to.
// Caller must hold in.mu.
func (in *Inode) releaseAllSectorsLocked() {
	fm := in.store.free
	for idx := uint16(0); idx < in.disk.DirectCursor; idx++ {
		fm.Release(in.disk.Direct[idx])
	}
	if in.disk.IndirectCursor > 0 {
		var ib indirectBlock
		buf := make([]byte, SectorSize)
		in.store.readSector(in.disk.Indirect, buf)
		ib.unmarshal(buf)
		for idx := uint16(0); idx < in.disk.IndirectCursor; idx++ {
			fm.Release(ib[idx])
		}
		fm.Release(in.disk.Indirect)
	}
	if in.disk.DoublyCursor > 0 {
		var outer indirectBlock
		buf := make([]byte, SectorSize)
		in.store.readSector(in.disk.DoublyIndirect, buf)
		outer.unmarshal(buf)
		fullLevels := int(in.disk.DoublyCursor) / PointersPerBlock
		rem := int(in.disk.DoublyCursor) % PointersPerBlock
		levels := fullLevels
		if rem > 0 {
			levels++
		}
		for l := 0; l < levels; l++ {
			var inner indirectBlock
			in.store.readSector(outer[l], buf)
			inner.unmarshal(buf)
			count := PointersPerBlock
			if l == levels-1 && rem > 0 {
				count = rem
			}
			for idx := 0; idx < count; idx++ {
				fm.Release(inner[idx])
			}
			fm.Release(outer[l])
		}
		fm.Release(in.disk.DoublyIndirect)
	}
}

