package pintos

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// SectorSize is the fixed sector granularity of the block device (spec §3).
const SectorSize = 512

// Device is the consumed block-device contract (spec §6): sector-granular
// read/write over a medium whose internals (real disk, ramdisk, loopback
// image) are none of this package's business.
type Device interface {
	ReadSector(num uint32, buf []byte) error
	WriteSector(num uint32, buf []byte) error
	SectorCount() uint32
}

// MemoryDevice is an in-memory Device, the simulation stand-in used by most
// tests in this module; it plays the same role as the teacher's mockReader
// in mock_test.go, generalized to read-write.
type MemoryDevice struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryDevice allocates a zero-filled device of the given sector count.
func NewMemoryDevice(sectors uint32) *MemoryDevice {
	return &MemoryDevice{data: make([]byte, int(sectors)*SectorSize)}
}

func (m *MemoryDevice) ReadSector(num uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("pintos: buffer must be exactly %d bytes, got %d", SectorSize, len(buf))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(num) * SectorSize
	if off+SectorSize > int64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(buf, m.data[off:off+SectorSize])
	return nil
}

func (m *MemoryDevice) WriteSector(num uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("pintos: buffer must be exactly %d bytes, got %d", SectorSize, len(buf))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(num) * SectorSize
	if off+SectorSize > int64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(m.data[off:off+SectorSize], buf)
	return nil
}

func (m *MemoryDevice) SectorCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.data) / SectorSize)
}

// FileDevice backs a Device with a regular file or block special file,
// opened with platform-appropriate flags by openBackingFile (blockdev_linux.go
// / blockdev_other.go), mirroring the teacher's inode_linux.go/inode_darwin.go
// platform split for low-level flag handling.
type FileDevice struct {
	f       *os.File
	sectors uint32
}

// OpenFileDevice opens path as a block device image of the given sector
// count, creating and zero-extending it if it doesn't exist. sectors == 0
// means "use the existing file's current size" (for opening an
// already-formatted image without resizing it).
func OpenFileDevice(path string, sectors uint32, direct bool) (*FileDevice, error) {
	f, err := openBackingFile(path, direct)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if sectors == 0 {
		sectors = uint32(info.Size() / SectorSize)
	}
	want := int64(sectors) * SectorSize
	if info.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDevice{f: f, sectors: sectors}, nil
}

func (d *FileDevice) ReadSector(num uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("pintos: buffer must be exactly %d bytes, got %d", SectorSize, len(buf))
	}
	_, err := d.f.ReadAt(buf, int64(num)*SectorSize)
	return err
}

func (d *FileDevice) WriteSector(num uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("pintos: buffer must be exactly %d bytes, got %d", SectorSize, len(buf))
	}
	_, err := d.f.WriteAt(buf, int64(num)*SectorSize)
	return err
}

func (d *FileDevice) SectorCount() uint32 {
	return d.sectors
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
