package pintos

import (
	"bytes"
	"encoding/binary"
	"reflect"
)

// Tunables from spec §3 ("Nd = direct-slot count, e.g. 120", "Indirection
// block holds 128 sector numbers").
const (
	NumDirect        = 120
	PointersPerBlock  = SectorSize / 4 // = 128
	inodeMagic uint32 = 0x494e4f44      // "INOD"
)

// diskInode is the exact on-disk layout of one inode (spec §3): it must fit
// in a single 512-byte sector. Field order here is also wire order — like
// the teacher's Superblock, this is (de)serialized by walking the struct's
// exported fields in declaration order rather than hand-writing each
// binary.Read/Write call.
type diskInode struct {
	Magic          uint32
	Kind           uint8
	_              [3]byte // reserved, keeps field offsets stable
	Length         uint32
	ParentSector   uint32 // only meaningful for directories
	DirectCursor   uint16
	IndirectCursor uint16
	DoublyCursor   uint16
	Indirect       uint32
	DoublyIndirect uint32
	Direct         [NumDirect]uint32
	_              [2]byte // pad to exactly SectorSize
}

// inodeKind flags a sector as holding a file or a directory (spec §3).
type inodeKind uint8

const (
	kindFile inodeKind = 1
	kindDir  inodeKind = 2
)

func (d *diskInode) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(SectorSize)
	v := reflect.ValueOf(d).Elem()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanInterface() {
			// unexported padding fields: still part of wire layout, write zeros
			binary.Write(buf, binary.LittleEndian, reflect.New(field.Type()).Elem().Interface())
			continue
		}
		binary.Write(buf, binary.LittleEndian, field.Interface())
	}
	out := buf.Bytes()
	if len(out) != SectorSize {
		panicf("diskInode: marshaled size %d != sector size %d", len(out), SectorSize)
	}
	return out
}

func (d *diskInode) unmarshal(data []byte) {
	if len(data) != SectorSize {
		panicf("diskInode: buffer size %d != sector size %d", len(data), SectorSize)
	}
	r := bytes.NewReader(data)
	v := reflect.ValueOf(d).Elem()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanAddr() || !field.CanInterface() {
			// skip padding bytes in the stream
			skip := make([]byte, field.Type().Size())
			r.Read(skip)
			continue
		}
		binary.Read(r, binary.LittleEndian, field.Addr().Interface())
	}
	if d.Magic != inodeMagic {
		corrupt("inode magic mismatch: got %#x want %#x", d.Magic, inodeMagic)
	}
}

// indirectBlock is a sector holding PointersPerBlock (128) sector numbers,
// used for both the singly- and doubly-indirect index blocks (spec §3).
type indirectBlock [PointersPerBlock]uint32

func (ib *indirectBlock) marshal() []byte {
	buf := make([]byte, SectorSize)
	for i, p := range ib {
		binary.LittleEndian.PutUint32(buf[i*4:], p)
	}
	return buf
}

func (ib *indirectBlock) unmarshal(data []byte) {
	if len(data) != SectorSize {
		panicf("indirectBlock: buffer size %d != sector size %d", len(data), SectorSize)
	}
	for i := range ib {
		ib[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
}
