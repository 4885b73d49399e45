package warehouse

// factory implements the factory pattern for warehouse's top-level
// collaborators, mirroring the teacher's package-level Factory value.
type factory struct{}

// Factory is the global factory instance for constructing warehouse's
// top-level collaborators.
var Factory factory

// NewChunkManager creates a ChunkManager vending chunks of the given byte
// size, bounded to maxMetaBlocks meta-blocks (0 = unbounded).
func (f factory) NewChunkManager(chunkSize, maxMetaBlocks int) *ChunkManager {
	return NewChunkManager(chunkSize, maxMetaBlocks)
}

// NewSharedArchetypeMetadata creates the process-wide archetype interning
// layer, shareable across multiple Worlds.
func (f factory) NewSharedArchetypeMetadata(chunkSize, entityIDBytes int) *SharedArchetypeMetadata {
	return NewSharedArchetypeMetadata(chunkSize, entityIDBytes)
}

// NewWorld creates a World against shared collaborators.
func (f factory) NewWorld(chunks *ChunkManager, metadata *SharedArchetypeMetadata) *World {
	return NewWorld(chunks, metadata)
}

// NewEntityBuilder creates an empty EntityBuilder.
func (f factory) NewEntityBuilder() *EntityBuilder { return NewEntityBuilder() }

// NewQueryBuilder creates an empty QueryBuilder.
func (f factory) NewQueryBuilder() *QueryBuilder { return NewQueryBuilder() }

// NewCursor creates a Cursor over query against world.
func (f factory) NewCursor(world *World, query *Query) *Cursor { return NewCursor(world, query) }

// NewSchedule builds the wave structure for systems, paired with strategy.
func (f factory) NewSchedule(systems []*System, strategy WaveStrategy) (*Schedule, error) {
	return NewSchedule(systems, strategy)
}

// FactoryNewComponent interns T in the global component registry and
// returns a typed handle onto it, kept from the teacher's identically named
// package-level function.
func FactoryNewComponent[T any]() ComponentType[T] { return RegisterComponentType[T]() }

// FactoryNewCache creates a Cache with the given maximum capacity.
func FactoryNewCache[T any](capacity int) Cache[T] {
	return &SimpleCache[T]{itemIndices: make(map[string]int), maxCapacity: capacity}
}
