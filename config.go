package warehouse

// StorageEvents lets a caller observe structural changes without taking
// a dependency on the scheduler or query subsystems. All hooks are
// optional; nil hooks are simply skipped. This generalizes the teacher's
// table.TableEvents hook point to the archetype/entity vocabulary this
// module actually has.
type StorageEvents struct {
	OnArchetypeCreated func(id int32)
	OnEntitySpawned    func(e Entity)
	OnEntityDestroyed  func(e Entity)
}

// config holds process-wide tuning knobs for every world built against
// this package, mirroring the teacher's package-level mutable Config
// pattern (config.go) and covering the sizing knobs below. It has no
// allocator hooks: chunk memory, metadata and layouts are always
// allocated with Go's own allocator.
type config struct {
	// ChunkSize is the byte size of every chunk a ChunkManager vends.
	// Must be a power of two.
	ChunkSize int

	// DefaultEntityCapacity is the initial size of a fresh EntityManager's
	// location table.
	DefaultEntityCapacity int

	// DefaultChunkCapacity is the initial chunk-handle slice capacity a
	// freshly created Archetype reserves.
	DefaultChunkCapacity int

	// MaxMetaBlocks bounds how many meta-blocks a ChunkManager's sparse
	// two-level slot table may grow to; 0 means unbounded.
	MaxMetaBlocks int

	// EntityIDByteSize is the width, in bytes, of the entity-id cell
	// reserved per slot inside a chunk. Legal values are 1, 2, 4.
	EntityIDByteSize int

	Events StorageEvents
}

// Config is the package-level configuration instance, matching the
// teacher's exported mutable `Config` variable.
var Config = config{
	ChunkSize:             16 * 1024,
	DefaultEntityCapacity: 256,
	DefaultChunkCapacity:  4,
	MaxMetaBlocks:         0,
	EntityIDByteSize:      4,
}

// SetEvents configures the global structural-change event hooks.
func (c *config) SetEvents(e StorageEvents) {
	c.Events = e
}
