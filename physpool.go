package pintos

// PagePoolFlags selects how a physical page pool allocation is prepared
// (spec §6 "Physical page pool (consumed): alloc(flags: {user, zero})").
type PagePoolFlags uint8

const (
	PagePoolUser PagePoolFlags = 1 << iota
	PagePoolZero
)

// PhysicalPagePool is the kernel's raw physical-memory allocator, consumed
// by the frame table rather than implemented here (spec §1 Non-goals).
type PhysicalPagePool interface {
	Alloc(flags PagePoolFlags) ([]byte, bool)
	Free(page []byte)
}

// FakePhysicalPagePool is a byte-slice-backed pool sized to a fixed number
// of user pages, standing in for the real allocator in tests and in any
// embedder that has not wired up a hardware pool.
type FakePhysicalPagePool struct {
	free [][]byte
}

// NewFakePhysicalPagePool pre-allocates n PageSize buffers.
func NewFakePhysicalPagePool(n int) *FakePhysicalPagePool {
	pool := &FakePhysicalPagePool{free: make([][]byte, 0, n)}
	for i := 0; i < n; i++ {
		pool.free = append(pool.free, make([]byte, PageSize))
	}
	return pool
}

func (p *FakePhysicalPagePool) Alloc(flags PagePoolFlags) ([]byte, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	page := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	if flags&PagePoolZero != 0 {
		for i := range page {
			page[i] = 0
		}
	}
	return page, true
}

func (p *FakePhysicalPagePool) Free(page []byte) {
	p.free = append(p.free, page)
}
