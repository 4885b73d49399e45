package warehouse

import "testing"

func TestArchetypeLayoutSkipsZeroSizeComponents(t *testing.T) {
	pos := typeInfoOf[Position]()
	tag := typeInfoOf[Tag]()

	layout := computeArchetypeLayout([]*TypeInfo{pos, tag}, 4096, 4)

	tagLayout := layout.byID(tag.ID)
	if tagLayout == nil {
		t.Fatalf("expected tag component in layout")
	}
	if tagLayout.baseOffset != -1 {
		t.Fatalf("zero-size component baseOffset = %d, want sentinel -1", tagLayout.baseOffset)
	}

	posLayout := layout.byID(pos.ID)
	if posLayout == nil || posLayout.baseOffset < 0 {
		t.Fatalf("expected a valid offset for Position")
	}
	if posLayout.baseOffset != layout.entityIDSize*layout.entitiesPerChunk {
		t.Fatalf("Position should immediately follow the entity-id region: got %d, want %d",
			posLayout.baseOffset, layout.entityIDSize*layout.entitiesPerChunk)
	}
}

func TestArchetypeLayoutFootprintFitsChunk(t *testing.T) {
	pos := typeInfoOf[Position]()
	vel := typeInfoOf[Velocity]()
	health := typeInfoOf[Health]()

	const chunkSize = 1024
	layout := computeArchetypeLayout([]*TypeInfo{pos, vel, health}, chunkSize, 4)

	if layout.entitiesPerChunk < 1 {
		t.Fatalf("entitiesPerChunk must be at least 1")
	}
	total := footprint([]*TypeInfo{pos, vel, health}, layout.entitiesPerChunk, 4)
	if total > chunkSize {
		t.Fatalf("computed footprint %d exceeds chunk size %d", total, chunkSize)
	}
	if footprint([]*TypeInfo{pos, vel, health}, layout.entitiesPerChunk+1, 4) <= chunkSize {
		t.Fatalf("entitiesPerChunk should be maximal for the chunk size")
	}
}

func TestArchetypeLayoutComponentsSortedAscending(t *testing.T) {
	pos := typeInfoOf[Position]()
	vel := typeInfoOf[Velocity]()

	layout := computeArchetypeLayout([]*TypeInfo{vel, pos}, 4096, 4)
	if len(layout.components) != 2 {
		t.Fatalf("expected 2 components in layout, got %d", len(layout.components))
	}
	for i := 1; i < len(layout.components); i++ {
		if layout.components[i-1].id > layout.components[i].id {
			t.Fatalf("components not sorted ascending by id: %v", layout.components)
		}
	}
}

func TestArchetypeLayoutEmptySignature(t *testing.T) {
	layout := computeArchetypeLayout(nil, 4096, 4)
	if layout.entitiesPerChunk < 1 {
		t.Fatalf("empty signature should still yield at least 1 entity per chunk")
	}
	if layout.minID != 0 || layout.maxID != -1 {
		t.Fatalf("empty signature should have an empty [minID,maxID] range, got [%d,%d]", layout.minID, layout.maxID)
	}
}
