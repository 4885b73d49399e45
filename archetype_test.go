package warehouse

import "testing"

func newTestArchetype(t *testing.T, chunkSize int, infos ...*TypeInfo) (*Archetype, *ChunkManager) {
	t.Helper()
	chunks := NewChunkManager(chunkSize, 0)
	layout := computeArchetypeLayout(infos, chunkSize, 4)
	return newArchetype(1, layout, chunks), chunks
}

func TestArchetypeAllocateEntityDense(t *testing.T) {
	posInfo := typeInfoOf[Position]()
	arch, _ := newTestArchetype(t, 256, posInfo)

	for i := uint32(1); i <= 5; i++ {
		idx, err := arch.AllocateEntity(i)
		if err != nil {
			t.Fatalf("AllocateEntity(%d) failed: %v", i, err)
		}
		if idx != int(i-1) {
			t.Fatalf("AllocateEntity(%d) returned index %d, want %d", i, idx, i-1)
		}
	}
	if arch.EntityCount() != 5 {
		t.Fatalf("EntityCount = %d, want 5", arch.EntityCount())
	}
}

func TestArchetypeSwapRemoveMovesLastEntity(t *testing.T) {
	posInfo := typeInfoOf[Position]()
	arch, chunks := newTestArchetype(t, 4096, posInfo)

	ids := []uint32{10, 20, 30}
	positions := []Position{{X: 100}, {X: 200}, {X: 300}}
	for i, id := range ids {
		idx, err := arch.AllocateEntity(id)
		if err != nil {
			t.Fatalf("AllocateEntity failed: %v", err)
		}
		writePosition(t, arch, chunks, idx, positions[i])
	}

	// Remove index 0 (entity 10); entity 30 (the last slot) should move there.
	movedID, moved, err := arch.RemoveEntity(0)
	if err != nil {
		t.Fatalf("RemoveEntity failed: %v", err)
	}
	if !moved || movedID != 30 {
		t.Fatalf("RemoveEntity moved = (%d, %v), want (30, true)", movedID, moved)
	}
	if arch.EntityCount() != 2 {
		t.Fatalf("EntityCount after remove = %d, want 2", arch.EntityCount())
	}

	got := readPosition(t, arch, chunks, 0)
	if got != (Position{X: 300}) {
		t.Fatalf("slot 0 after swap-remove = %+v, want {X:300}", got)
	}
	got = readPosition(t, arch, chunks, 1)
	if got != (Position{X: 200}) {
		t.Fatalf("slot 1 after swap-remove = %+v, want {X:200}", got)
	}
}

func TestArchetypeRemoveLastEntityNoMove(t *testing.T) {
	posInfo := typeInfoOf[Position]()
	arch, _ := newTestArchetype(t, 4096, posInfo)

	for _, id := range []uint32{1, 2, 3} {
		if _, err := arch.AllocateEntity(id); err != nil {
			t.Fatalf("AllocateEntity failed: %v", err)
		}
	}
	_, moved, err := arch.RemoveEntity(2)
	if err != nil {
		t.Fatalf("RemoveEntity failed: %v", err)
	}
	if moved {
		t.Fatalf("removing the last slot should report moved=false")
	}
	if arch.EntityCount() != 2 {
		t.Fatalf("EntityCount = %d, want 2", arch.EntityCount())
	}
}

func TestArchetypeTrimsTrailingEmptyChunks(t *testing.T) {
	posInfo := typeInfoOf[Position]()
	// Small chunk size forces multiple chunks for a handful of entities.
	arch, _ := newTestArchetype(t, 64, posInfo)
	epc := arch.Layout().entitiesPerChunk

	var ids []uint32
	for i := uint32(1); i <= uint32(epc*3); i++ {
		if _, err := arch.AllocateEntity(i); err != nil {
			t.Fatalf("AllocateEntity(%d) failed: %v", i, err)
		}
		ids = append(ids, i)
	}
	if got := len(arch.GetChunks()); got != 3 {
		t.Fatalf("expected 3 chunks after filling, got %d", got)
	}

	// Remove everything from the last two chunks' worth of entities.
	for i := 0; i < epc*2; i++ {
		if _, _, err := arch.RemoveEntity(arch.EntityCount() - 1); err != nil {
			t.Fatalf("RemoveEntity failed: %v", err)
		}
	}
	if got := len(arch.GetChunks()); got != 1 {
		t.Fatalf("expected trailing empty chunks to be trimmed to 1, got %d", got)
	}
}

func TestArchetypeTagComponentDoesNotCorruptEntityID(t *testing.T) {
	posInfo := typeInfoOf[Position]()
	tagInfo := typeInfoOf[Tag]()
	arch, chunks := newTestArchetype(t, 4096, posInfo, tagInfo)

	idx1, err := arch.AllocateEntity(111)
	if err != nil {
		t.Fatalf("AllocateEntity failed: %v", err)
	}
	writePosition(t, arch, chunks, idx1, Position{X: 1, Y: 2})
	idx2, err := arch.AllocateEntity(222)
	if err != nil {
		t.Fatalf("AllocateEntity failed: %v", err)
	}
	writePosition(t, arch, chunks, idx2, Position{X: 3, Y: 4})

	movedID, moved, err := arch.RemoveEntity(0)
	if err != nil {
		t.Fatalf("RemoveEntity failed: %v", err)
	}
	if !moved || movedID != 222 {
		t.Fatalf("expected entity 222 to move into slot 0, got (%d, %v)", movedID, moved)
	}
	id, err := arch.EntityIDAt(0)
	if err != nil {
		t.Fatalf("EntityIDAt failed: %v", err)
	}
	if id != 222 {
		t.Fatalf("entity-id cell corrupted by zero-size tag component: got %d, want 222", id)
	}
	got := readPosition(t, arch, chunks, 0)
	if got != (Position{X: 3, Y: 4}) {
		t.Fatalf("Position payload corrupted after swap-remove: got %+v", got)
	}
}

func writePosition(t *testing.T, arch *Archetype, chunks *ChunkManager, globalIndex int, p Position) {
	t.Helper()
	chunkIdx, idxInChunk := arch.GetChunkLocation(globalIndex)
	handles := arch.GetChunks()
	view, err := chunks.Borrow(handles[chunkIdx])
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	defer view.Release()
	cl := arch.Layout().byID(typeInfoOf[Position]().ID)
	off := cl.baseOffset + idxInChunk*int(cl.size)
	*Ref[Position](view, off) = p
}

func readPosition(t *testing.T, arch *Archetype, chunks *ChunkManager, globalIndex int) Position {
	t.Helper()
	chunkIdx, idxInChunk := arch.GetChunkLocation(globalIndex)
	handles := arch.GetChunks()
	view, err := chunks.Borrow(handles[chunkIdx])
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	defer view.Release()
	cl := arch.Layout().byID(typeInfoOf[Position]().ID)
	off := cl.baseOffset + idxInChunk*int(cl.size)
	return *Ref[Position](view, off)
}
