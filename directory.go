package pintos

import "strings"

// RootSector is the well-known sector of the root directory's inode (spec
// §4.2: "The root is distinguished by a well-known sector number.").
const RootSector = 1

// Directory is a thin view over an Inode known to hold kindDir data: a
// sequence of fixed dirEntry records (spec §4.2). All mutation happens
// under the underlying inode's own lock, so Directory itself carries no
// lock — it mirrors the teacher's FileDir, a stateless wrapper around the
// thing that actually owns the data.
type Directory struct {
	ino *Inode
}

// NewDirectory wraps an inode already known to be a directory.
func NewDirectory(ino *Inode) *Directory {
	if !ino.IsDir() {
		fatal("NewDirectory: inode %d is not a directory", ino.Sector())
	}
	return &Directory{ino: ino}
}

// Ino exposes the wrapped inode, e.g. so a caller can Close it once done.
func (d *Directory) Ino() *Inode { return d.ino }

func (d *Directory) entryCount() int {
	return int(d.ino.Length() / dirEntrySize)
}

func (d *Directory) readEntry(idx int) dirEntry {
	buf := make([]byte, dirEntrySize)
	d.ino.ReadAt(buf, uint32(idx*dirEntrySize))
	var e dirEntry
	e.unmarshal(buf)
	return e
}

func (d *Directory) writeEntry(idx int, e dirEntry) {
	if _, err := d.ino.WriteAt(e.marshal(), uint32(idx*dirEntrySize)); err != nil {
		fatal("directory %d: failed writing entry %d: %v", d.ino.Sector(), idx, err)
	}
}

// Lookup scans entries in order and returns the sector of name's target and
// its record index, or ErrNotFound (spec §4.2: "scan entries in order;
// match on occupied && name-equal").
func (d *Directory) Lookup(name string) (sector uint32, index int, err error) {
	n := d.entryCount()
	for i := 0; i < n; i++ {
		e := d.readEntry(i)
		if e.occupied && e.name == name {
			return e.sector, i, nil
		}
	}
	return 0, -1, ErrNotFound
}

// Add inserts a name->childSector mapping into the first unoccupied slot,
// or appends (spec §4.2 add). Rejects empty/overlong names, the reserved
// names "." and "..", and duplicates.
func (d *Directory) Add(name string, childSector uint32) error {
	if name == "" || len(name) > NameMax {
		return ErrInvalidName
	}
	if name == "." || name == ".." {
		return ErrInvalidName
	}
	if _, _, err := d.Lookup(name); err == nil {
		return ErrExists
	}

	n := d.entryCount()
	for i := 0; i < n; i++ {
		if e := d.readEntry(i); !e.occupied {
			d.writeEntry(i, dirEntry{occupied: true, name: name, sector: childSector})
			return nil
		}
	}
	d.writeEntry(n, dirEntry{occupied: true, name: name, sector: childSector})
	return nil
}

// Remove locates name and, if removal is legal, marks the entry unoccupied
// and the target inode removed (spec §4.2 remove). A directory target may
// not be removed if it is the root, is open elsewhere, or is non-empty.
func (d *Directory) Remove(store *InodeStore, name string) error {
	sector, idx, err := d.Lookup(name)
	if err != nil {
		return err
	}
	if sector == RootSector {
		return ErrBusy
	}

	target, err := store.Open(sector)
	if err != nil {
		return err
	}
	defer store.Close(target)

	if target.IsDir() {
		if target.OpenCount() > 1 {
			return ErrBusy
		}
		if !NewDirectory(target).IsEmpty() {
			return ErrBusy
		}
	}

	e := d.readEntry(idx)
	e.occupied = false
	d.writeEntry(idx, e)
	store.Remove(target)
	return nil
}

// IsEmpty reports whether a directory has no occupied entries besides the
// implicit "." and ".." (which this layout never stores, per spec §8:
// "Directory entries never contain . or .. as stored names").
func (d *Directory) IsEmpty() bool {
	n := d.entryCount()
	for i := 0; i < n; i++ {
		if d.readEntry(i).occupied {
			return false
		}
	}
	return true
}

// DirCursor is a per-open-handle readdir position (spec §4.2 readdir:
// "advance a per-handle cursor across occupied entries").
type DirCursor struct {
	next int
}

// Readdir advances the cursor past the next occupied entry and returns its
// name, or ok=false once every entry has been visited.
func (d *Directory) Readdir(cur *DirCursor) (name string, ok bool) {
	n := d.entryCount()
	for cur.next < n {
		idx := cur.next
		cur.next++
		if e := d.readEntry(idx); e.occupied {
			return e.name, true
		}
	}
	return "", false
}

// splitPath tokenises a path on '/', dropping empty tokens produced by
// repeated slashes (spec §4.2 path resolution).
func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Resolve walks path starting from cwd (or RootSector if path is absolute
// or cwd is 0), returning the open *Directory containing the final
// component and the final component's own name, so callers can
// create/remove against the parent without a second lookup (spec §4.2).
// The caller must Close the returned directory's inode via store.
func Resolve(store *InodeStore, cwd uint32, path string) (parent *Directory, leaf string, err error) {
	start := cwd
	if path != "" && path[0] == '/' || start == 0 {
		start = RootSector
	}

	tokens := splitPath(path)
	if len(tokens) == 0 {
		return nil, "", ErrInvalidName
	}

	curSector := start
	for _, tok := range tokens[:len(tokens)-1] {
		next, nerr := stepToken(store, curSector, tok)
		if nerr != nil {
			return nil, "", nerr
		}
		curSector = next
	}

	curIno, oerr := store.Open(curSector)
	if oerr != nil {
		return nil, "", oerr
	}
	if !curIno.IsDir() {
		store.Close(curIno)
		return nil, "", ErrNotFound
	}
	return NewDirectory(curIno), tokens[len(tokens)-1], nil
}

// stepToken resolves a single path component from dirSector, handling the
// "." and ".." special cases (spec §4.2). A non-directory intermediate
// component is reported as ErrNotFound, not ErrNotDirectory: spec.md's open
// question on this case is resolved explicitly in favor of NotFound.
func stepToken(store *InodeStore, dirSector uint32, tok string) (uint32, error) {
	ino, err := store.Open(dirSector)
	if err != nil {
		return 0, err
	}
	defer store.Close(ino)
	if !ino.IsDir() {
		return 0, ErrNotFound
	}

	switch tok {
	case ".":
		return dirSector, nil
	case "..":
		if dirSector == RootSector {
			return RootSector, nil
		}
		return ino.ParentSector(), nil
	default:
		sector, _, lerr := NewDirectory(ino).Lookup(tok)
		if lerr != nil {
			return 0, lerr
		}
		return sector, nil
	}
}
