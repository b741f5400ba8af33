package pintos

// sectorsFor returns how many SectorSize-sized blocks are needed to hold n
// bytes (spec §4.1 byte-to-sector mapping).
func sectorsFor(n uint32) uint32 {
	return (n + SectorSize - 1) / SectorSize
}

// capacitySectors reports how many data sectors are currently reachable
// through d's direct/indirect/doubly-indirect pointers (spec §3: Nd direct
// slots, one indirect block of 128, one doubly-indirect block of up to
// 128*128). Caller must hold the owning inode's lock.
func (d *diskInode) capacitySectors() uint32 {
	return uint32(d.DirectCursor) + uint32(d.IndirectCursor) + uint32(d.DoublyCursor)
}

// allocDirect stores sector in the next direct slot; the caller must have
// checked that one of the Nd slots is still free.
func (in *Inode) allocDirect(sector uint32) {
	in.disk.Direct[in.disk.DirectCursor] = sector
	in.disk.DirectCursor++
}

// allocIndirect appends sector as the next pointer in the singly-indirect
// block, allocating and zeroing the index block itself on first use.
func (in *Inode) allocIndirect(sector uint32) error {
	var ib indirectBlock
	if in.disk.IndirectCursor == 0 {
		idxSector, ok := in.store.free.Alloc()
		if !ok {
			return ErrNoSpace
		}
		in.disk.Indirect = idxSector
	} else {
		buf := make([]byte, SectorSize)
		in.store.readSector(in.disk.Indirect, buf)
		ib.unmarshal(buf)
	}
	ib[in.disk.IndirectCursor] = sector
	in.disk.IndirectCursor++
	in.store.writeSector(in.disk.Indirect, ib.marshal())
	return nil
}

// allocDoubly appends sector as the next pointer in the doubly-indirect
// region, allocating the outer block and/or the relevant inner block on
// first use.
func (in *Inode) allocDoubly(sector uint32) error {
	outerIdx := in.disk.DoublyCursor / PointersPerBlock
	innerIdx := in.disk.DoublyCursor % PointersPerBlock

	var outer indirectBlock
	if in.disk.DoublyCursor == 0 {
		outerSector, ok := in.store.free.Alloc()
		if !ok {
			return ErrNoSpace
		}
		in.disk.DoublyIndirect = outerSector
	} else {
		buf := make([]byte, SectorSize)
		in.store.readSector(in.disk.DoublyIndirect, buf)
		outer.unmarshal(buf)
	}

	var inner indirectBlock
	if innerIdx == 0 {
		innerSector, ok := in.store.free.Alloc()
		if !ok {
			if in.disk.DoublyCursor == 0 {
				// the outer block claimed above points at nothing yet
				in.store.free.Release(in.disk.DoublyIndirect)
			}
			return ErrNoSpace
		}
		outer[outerIdx] = innerSector
		in.store.writeSector(in.disk.DoublyIndirect, outer.marshal())
	} else {
		buf := make([]byte, SectorSize)
		in.store.readSector(outer[outerIdx], buf)
		inner.unmarshal(buf)
	}

	inner[innerIdx] = sector
	in.store.writeSector(outer[outerIdx], inner.marshal())
	in.disk.DoublyCursor++
	return nil
}

// growOneSector allocates and zero-fills exactly one more data sector,
// placing it in the first tier (direct, then indirect, then doubly-indirect)
// that still has room (spec §4.1 Grow operation).
func (in *Inode) growOneSector() error {
	sector, ok := in.store.free.Alloc()
	if !ok {
		return ErrNoSpace
	}
	zero := make([]byte, SectorSize)
	in.store.writeSector(sector, zero)

	switch {
	case in.disk.DirectCursor < NumDirect:
		in.allocDirect(sector)
		return nil
	case in.disk.IndirectCursor < PointersPerBlock:
		if err := in.allocIndirect(sector); err != nil {
			in.store.free.Release(sector)
			return err
		}
		return nil
	case in.disk.DoublyCursor < PointersPerBlock*PointersPerBlock:
		if err := in.allocDoubly(sector); err != nil {
			in.store.free.Release(sector)
			return err
		}
		return nil
	default:
		in.store.free.Release(sector)
		return fatalErrFileTooLarge()
	}
}

func fatalErrFileTooLarge() error {
	return invalidf("file exceeds maximum size (%d direct + %d indirect + %d doubly-indirect sectors)",
		NumDirect, PointersPerBlock, PointersPerBlock*PointersPerBlock)
}

// grow extends the inode to newLength bytes, allocating one sector at a
// time until enough capacity exists (spec §4.1). On ErrNoSpace, sectors
// already claimed this call remain in place, and Length is advanced to
// whatever capacity was actually reached (capped at newLength) so that
// capacity is never stranded beyond what WriteAt can address — ordinary
// WriteAt growth keeps whatever fit, per spec.md's "the caller must
// tolerate the resulting partial allocation"; InodeStore.Create treats any
// error as fatal to the whole create and unwinds everything via
// releaseAllSectorsLocked regardless. Caller must hold in.mu.
func (in *Inode) grow(newLength uint32) error {
	want := sectorsFor(newLength)
	for in.disk.capacitySectors() < want {
		if err := in.growOneSector(); err != nil {
			reached := in.disk.capacitySectors() * SectorSize
			if reached > newLength {
				reached = newLength
			}
			if reached > in.disk.Length {
				in.disk.Length = reached
			}
			return err
		}
	}
	if newLength > in.disk.Length {
		in.disk.Length = newLength
	}
	return nil
}

// sectorAt resolves the idx'th data sector (0-based) of the inode, which
// must already be within capacity. Caller must hold in.mu.
func (in *Inode) sectorAt(idx uint32) uint32 {
	if idx < uint32(in.disk.DirectCursor) {
		return in.disk.Direct[idx]
	}
	idx -= uint32(in.disk.DirectCursor)
	if idx < uint32(in.disk.IndirectCursor) {
		var ib indirectBlock
		buf := make([]byte, SectorSize)
		in.store.readSector(in.disk.Indirect, buf)
		ib.unmarshal(buf)
		return ib[idx]
	}
	idx -= uint32(in.disk.IndirectCursor)
	if idx < uint32(in.disk.DoublyCursor) {
		outerIdx := idx / PointersPerBlock
		innerIdx := idx % PointersPerBlock
		var outer, inner indirectBlock
		buf := make([]byte, SectorSize)
		in.store.readSector(in.disk.DoublyIndirect, buf)
		outer.unmarshal(buf)
		in.store.readSector(outer[outerIdx], buf)
		inner.unmarshal(buf)
		return inner[innerIdx]
	}
	corrupt("inode %d: sectorAt(%d) beyond capacity", in.sector, idx)
	return 0
}

// ReadAt copies len(p) bytes starting at byte offset off into p, short of
// EOF (spec §4.1). Reads never allocate.
func (in *Inode) ReadAt(p []byte, off uint32) int {
	in.mu.Lock()
	defer in.mu.Unlock()

	if off >= in.disk.Length {
		return 0
	}
	end := off + uint32(len(p))
	if end > in.disk.Length {
		end = in.disk.Length
	}
	n := 0
	buf := make([]byte, SectorSize)
	for off < end {
		sectorIdx := off / SectorSize
		within := off % SectorSize
		chunk := SectorSize - within
		if remain := end - off; chunk > remain {
			chunk = remain
		}
		in.store.readSector(in.sectorAt(sectorIdx), buf)
		copy(p[n:], buf[within:within+chunk])
		off += chunk
		n += int(chunk)
	}
	return n
}

// WriteAt writes len(p) bytes to byte offset off, growing the inode first
// if the write extends past the current length (spec §4.1). Refused while
// the inode's deny-write counter is nonzero (spec §3).
func (in *Inode) WriteAt(p []byte, off uint32) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.denyWrite > 0 {
		return 0, ErrDenyWrite
	}

	end := off + uint32(len(p))
	if end > in.disk.Length {
		if err := in.grow(end); err != nil && in.disk.Length < end {
			// Partial growth: only write what now fits.
			end = in.disk.Length
			if end <= off {
				in.persistLocked()
				return 0, err
			}
		}
	}

	n := 0
	buf := make([]byte, SectorSize)
	for off < end {
		sectorIdx := off / SectorSize
		within := off % SectorSize
		chunk := SectorSize - within
		if remain := end - off; chunk > remain {
			chunk = remain
		}
		if within != 0 || chunk != SectorSize {
			in.store.readSector(in.sectorAt(sectorIdx), buf)
		}
		copy(buf[within:within+chunk], p[n:n+int(chunk)])
		in.store.writeSector(in.sectorAt(sectorIdx), buf)
		off += chunk
		n += int(chunk)
	}
	if n > 0 {
		in.modTime = in.store.clock.Now()
	}
	in.persistLocked()
	return n, nil
}
