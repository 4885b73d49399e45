package warehouse

import (
	"sync"
	"sync/atomic"
)

type archetypeID int32

// Archetype owns the dense chunk storage for one component signature:
// ordered chunk handles, a live entity count, and the lock serializing
// structural mutation against it (spec §4.3).
type Archetype struct {
	id      archetypeID
	layout  *archetypeLayout
	chunks  *ChunkManager
	mu      sync.Mutex
	handles []ChunkHandle

	entityCount atomic.Int64
}

func newArchetype(id archetypeID, layout *archetypeLayout, chunks *ChunkManager) *Archetype {
	return &Archetype{id: id, layout: layout, chunks: chunks, handles: make([]ChunkHandle, 0, Config.DefaultChunkCapacity)}
}

func (a *Archetype) ID() int32 { return int32(a.id) }

func (a *Archetype) Layout() *archetypeLayout { return a.layout }

func (a *Archetype) EntityCount() int { return int(a.entityCount.Load()) }

// GetChunks returns a point-in-time snapshot of the chunk handle list.
func (a *Archetype) GetChunks() []ChunkHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := make([]ChunkHandle, len(a.handles))
	copy(snap, a.handles)
	return snap
}

// GetChunkLocation maps a global index to (chunkIndex, indexInChunk).
func (a *Archetype) GetChunkLocation(globalIndex int) (int, int) {
	epc := a.layout.entitiesPerChunk
	return globalIndex / epc, globalIndex % epc
}

func (a *Archetype) putEntityID(view ChunkView, indexInChunk int, id uint32) {
	off := a.layout.entityIDOffset + indexInChunk*a.layout.entityIDSize
	b := view.Bytes(off, a.layout.entityIDSize)
	for i := 0; i < a.layout.entityIDSize; i++ {
		b[i] = byte(id >> (8 * i))
	}
}

func (a *Archetype) getEntityID(view ChunkView, indexInChunk int) uint32 {
	off := a.layout.entityIDOffset + indexInChunk*a.layout.entityIDSize
	b := view.Bytes(off, a.layout.entityIDSize)
	var id uint32
	for i := 0; i < a.layout.entityIDSize; i++ {
		id |= uint32(b[i]) << (8 * i)
	}
	return id
}

// EntityIDAt returns the raw entity id stored at globalIndex, used by Query
// iteration to reconstruct a full Entity handle.
func (a *Archetype) EntityIDAt(globalIndex int) (uint32, error) {
	chunkIdx, idxInChunk := a.GetChunkLocation(globalIndex)
	handles := a.GetChunks()
	if chunkIdx >= len(handles) {
		return 0, precondition("archetype index %d out of range", globalIndex)
	}
	view, err := a.chunks.Borrow(handles[chunkIdx])
	if err != nil {
		return 0, err
	}
	defer view.Release()
	return a.getEntityID(view, idxInChunk), nil
}

// Lock and Unlock expose the archetype's own mutex so callers that must
// hold two archetype locks at once (World's add/remove-component path) can
// acquire them in ascending id order and then call the *Locked variants
// below without recursive locking.
func (a *Archetype) Lock()   { a.mu.Lock() }
func (a *Archetype) Unlock() { a.mu.Unlock() }

// AllocateEntity reserves the next dense slot for entityID, growing the
// chunk list if the current last chunk is full, and returns the new slot's
// global index.
func (a *Archetype) AllocateEntity(entityID uint32) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateEntityLocked(entityID)
}

func (a *Archetype) allocateEntityLocked(entityID uint32) (int, error) {
	epc := a.layout.entitiesPerChunk
	count := int(a.entityCount.Load())
	neededChunks := count/epc + 1
	if len(a.handles) < neededChunks {
		h, err := a.chunks.Allocate()
		if err != nil {
			return 0, err
		}
		a.handles = append(a.handles, h)
	}

	chunkIdx := count / epc
	idxInChunk := count % epc
	view, err := a.chunks.Borrow(a.handles[chunkIdx])
	if err != nil {
		return 0, err
	}
	a.putEntityID(view, idxInChunk, entityID)
	view.Release()

	a.entityCount.Add(1)
	return count, nil
}

// RemoveEntity swap-removes the slot at index, copying the last occupied
// slot's payload into its place if index wasn't already last, and trims any
// chunks left wholly empty. Returns the id of the entity that was moved
// into index (so the caller can patch its EntityLocation), or (0, false) if
// index was already last.
func (a *Archetype) RemoveEntity(index int) (movedEntityID uint32, moved bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeEntityLocked(index)
}

func (a *Archetype) removeEntityLocked(index int) (movedEntityID uint32, moved bool, err error) {
	last := int(a.entityCount.Load()) - 1
	if index < 0 || index > last {
		return 0, false, precondition("archetype index %d out of range [0,%d]", index, last)
	}

	if index == last {
		a.entityCount.Add(-1)
		a.trimLocked()
		return 0, false, nil
	}

	srcChunkIdx, srcIdxInChunk := a.GetChunkLocation(last)
	dstChunkIdx, dstIdxInChunk := a.GetChunkLocation(index)

	srcView, err := a.chunks.Borrow(a.handles[srcChunkIdx])
	if err != nil {
		return 0, false, err
	}
	defer srcView.Release()
	var dstView ChunkView
	if dstChunkIdx == srcChunkIdx {
		dstView = srcView
	} else {
		dstView, err = a.chunks.Borrow(a.handles[dstChunkIdx])
		if err != nil {
			return 0, false, err
		}
		defer dstView.Release()
	}

	for i := range a.layout.components {
		cl := &a.layout.components[i]
		if cl.id < a.layout.minID || cl.id > a.layout.maxID || cl.size == 0 {
			continue
		}
		srcOff := cl.baseOffset + srcIdxInChunk*int(cl.size)
		dstOff := cl.baseOffset + dstIdxInChunk*int(cl.size)
		copy(dstView.Bytes(dstOff, int(cl.size)), srcView.Bytes(srcOff, int(cl.size)))
	}

	movedID := a.getEntityID(srcView, srcIdxInChunk)
	a.putEntityID(dstView, dstIdxInChunk, movedID)

	a.entityCount.Add(-1)
	a.trimLocked()
	return movedID, true, nil
}

// trimLocked frees trailing chunks no longer needed to hold entityCount
// entities. Must be called with a.mu held.
func (a *Archetype) trimLocked() {
	epc := a.layout.entitiesPerChunk
	count := int(a.entityCount.Load())
	needed := (count + epc - 1) / epc
	for len(a.handles) > needed {
		last := len(a.handles) - 1
		_ = a.chunks.Free(a.handles[last])
		a.handles = a.handles[:last]
	}
}
