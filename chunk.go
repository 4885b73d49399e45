package warehouse

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// chunkMetaBlockSize is the number of chunk slots in one meta-block. The
// manager keeps a sparse, append-only slice of these blocks so that a
// ChunkHandle's index never needs to be relocated when the table grows.
const chunkMetaBlockSize = 256

type chunkSlot struct {
	mu         sync.Mutex
	data       []byte
	generation uint32
	borrowed   int32
	free       bool
}

// ChunkHandle packs a slot index and a generation into a single comparable
// value. Generation 0 is never issued to a live chunk; it marks the zero
// value as always-invalid.
type ChunkHandle struct {
	index      uint32
	generation uint32
}

func (h ChunkHandle) Valid() bool { return h.generation != 0 }

// ChunkManager allocates, frees, and lends out fixed-size raw byte chunks.
// It is process-wide shared state: allocate/free/borrow are each
// independently thread-safe, per spec §5's shared-resource policy.
type ChunkManager struct {
	chunkSize int

	mu        sync.RWMutex
	blocks    [][]*chunkSlot
	free      []uint32
	nextFresh uint32

	maxMetaBlocks int
	disposed      atomic.Bool
	inFlight      sync.WaitGroup
}

// NewChunkManager creates a manager vending chunks of the given byte size.
// maxMetaBlocks bounds the number of meta-blocks the slab may grow to; 0
// means unbounded, matching Config.MaxMetaBlocks's convention.
func NewChunkManager(chunkSize, maxMetaBlocks int) *ChunkManager {
	return &ChunkManager{chunkSize: chunkSize, maxMetaBlocks: maxMetaBlocks}
}

func (m *ChunkManager) ChunkSize() int { return m.chunkSize }

func (m *ChunkManager) slotFor(index uint32) *chunkSlot {
	block := index / chunkMetaBlockSize
	offset := index % chunkMetaBlockSize
	return m.blocks[block][offset]
}

// Allocate returns a handle to a freshly zeroed chunk.
func (m *ChunkManager) Allocate() (ChunkHandle, error) {
	if m.disposed.Load() {
		return ChunkHandle{}, useAfterDispose("ChunkManager")
	}
	m.inFlight.Add(1)
	defer m.inFlight.Done()

	m.mu.Lock()
	defer m.mu.Unlock()

	var index uint32
	if n := len(m.free); n > 0 {
		index = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		// nextFresh is the high-water mark of slots ever vended; only once it
		// reaches the current backing capacity does a fresh meta-block need to
		// be grown, so a block's 256 slots are handed out one at a time instead
		// of one slot being vended per block.
		if uint32(m.blockLen()) <= m.nextFresh {
			if m.maxMetaBlocks > 0 && len(m.blocks) >= m.maxMetaBlocks {
				return ChunkHandle{}, ErrCapacityExceeded
			}
			m.growTo(m.nextFresh)
		}
		index = m.nextFresh
		m.nextFresh++
	}

	slot := m.slotFor(index)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.generation++
	if slot.generation == 0 {
		slot.generation = 1
	}
	slot.free = false
	slot.borrowed = 0
	if slot.data == nil {
		slot.data = make([]byte, m.chunkSize)
	} else {
		clear(slot.data)
	}
	return ChunkHandle{index: index, generation: slot.generation}, nil
}

// blockLen returns the total slot capacity currently backed by m.blocks.
func (m *ChunkManager) blockLen() int {
	return len(m.blocks) * chunkMetaBlockSize
}

// growTo ensures a block exists to back the given index, appending a new
// meta-block and a fresh run of slots if needed. Must be called with m.mu
// held for writing.
func (m *ChunkManager) growTo(index uint32) {
	for uint32(m.blockLen()) <= index {
		block := make([]*chunkSlot, chunkMetaBlockSize)
		for i := range block {
			block[i] = &chunkSlot{free: true}
		}
		m.blocks = append(m.blocks, block)
	}
}

// Free releases a chunk back to the manager. Fails if the handle is stale or
// the chunk is currently borrowed.
func (m *ChunkManager) Free(h ChunkHandle) error {
	if m.disposed.Load() {
		return useAfterDispose("ChunkManager")
	}
	m.mu.RLock()
	if int(h.index/chunkMetaBlockSize) >= len(m.blocks) {
		m.mu.RUnlock()
		return ErrInvalidHandle
	}
	slot := m.slotFor(h.index)
	m.mu.RUnlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.generation != h.generation || slot.free {
		return ErrInvalidHandle
	}
	if atomic.LoadInt32(&slot.borrowed) != 0 {
		return ErrChunkInUse
	}
	slot.free = true

	m.mu.Lock()
	m.free = append(m.free, h.index)
	m.mu.Unlock()
	return nil
}

// ChunkView is a scoped, ref-counted borrow of a chunk's bytes.
type ChunkView struct {
	slot *chunkSlot
}

// Borrow validates the handle's generation and returns a view over the
// chunk. Borrow acquisition never blocks: it fails immediately if the
// generation is stale.
func (m *ChunkManager) Borrow(h ChunkHandle) (ChunkView, error) {
	if m.disposed.Load() {
		return ChunkView{}, useAfterDispose("ChunkManager")
	}
	m.mu.RLock()
	if int(h.index/chunkMetaBlockSize) >= len(m.blocks) {
		m.mu.RUnlock()
		return ChunkView{}, ErrInvalidHandle
	}
	slot := m.slotFor(h.index)
	m.mu.RUnlock()

	slot.mu.Lock()
	if slot.generation != h.generation || slot.free {
		slot.mu.Unlock()
		return ChunkView{}, ErrInvalidHandle
	}
	atomic.AddInt32(&slot.borrowed, 1)
	slot.mu.Unlock()
	return ChunkView{slot: slot}, nil
}

// Release ends the scoped borrow. Must be called exactly once per Borrow.
func (v ChunkView) Release() {
	atomic.AddInt32(&v.slot.borrowed, -1)
}

// Bytes returns the size-byte region starting at offset. The returned slice
// aliases the chunk's backing array; callers must not retain it past
// Release.
func (v ChunkView) Bytes(offset, size int) []byte {
	return v.slot.data[offset : offset+size]
}

// Span reinterprets count elements of T starting at offset as a Go slice
// backed directly by the chunk's memory. Callers must not retain the slice
// past Release; count 0 (the zero-size-component case) yields nil safely.
func Span[T any](v ChunkView, offset, count int) []T {
	if count == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&v.slot.data[offset])), count)
}

// Ref reinterprets the bytes at offset as a *T, backed directly by the
// chunk's memory.
func Ref[T any](v ChunkView, offset int) *T {
	return (*T)(unsafe.Pointer(&v.slot.data[offset]))
}

// GetBytes is a convenience equivalent to Borrow followed by Bytes(0, size).
func (m *ChunkManager) GetBytes(h ChunkHandle, size int) ([]byte, error) {
	v, err := m.Borrow(h)
	if err != nil {
		return nil, err
	}
	defer v.Release()
	b := make([]byte, size)
	copy(b, v.Bytes(0, size))
	return b, nil
}

// Shutdown marks the manager unusable, then waits for in-flight Allocate
// calls to drain. Free and Borrow calls are not tracked, so Shutdown does
// not wait for ones already past their disposed check. It does not release
// underlying memory beyond dropping references, leaving that to the garbage
// collector.
func (m *ChunkManager) Shutdown() {
	m.disposed.Store(true)
	m.inFlight.Wait()
}
