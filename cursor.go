package warehouse

import "iter"

// EntityIterItem is one (entity, archetype, globalIndex) triple yielded by
// Cursor.Entities.
type EntityIterItem struct {
	Entity      Entity
	Archetype   *Archetype
	GlobalIndex int
}

// ChunkIterItem is one (archetype, chunk, entityCount) triple yielded by
// Cursor.Chunks, and the unit of work a wave scheduler dispatches per
// system per chunk.
type ChunkIterItem struct {
	Archetype   *Archetype
	Chunk       ChunkHandle
	EntityCount int
}

// chunkItemsForArchetype snapshots arch's chunk list once and computes each
// chunk's live entity count (full except possibly the last).
func chunkItemsForArchetype(arch *Archetype) []ChunkIterItem {
	handles := arch.GetChunks()
	if len(handles) == 0 {
		return nil
	}
	total := arch.EntityCount()
	epc := arch.Layout().entitiesPerChunk
	out := make([]ChunkIterItem, 0, len(handles))
	for i, h := range handles {
		n := epc
		if i == len(handles)-1 {
			if rem := total - i*epc; rem < epc {
				n = rem
			}
		}
		if n <= 0 {
			continue
		}
		out = append(out, ChunkIterItem{Archetype: arch, Chunk: h, EntityCount: n})
	}
	return out
}

// Cursor iterates the entities or chunks matched by a Query against a
// specific World (spec §4.8). Entity iteration additionally needs world to
// translate raw ids stored in chunk memory back into full Entity handles.
type Cursor struct {
	world *World
	query *Query
}

func NewCursor(world *World, query *Query) *Cursor {
	return &Cursor{world: world, query: query}
}

// Entities returns a sequence over every entity matched at call time. The
// world's lock bit is held for the duration of iteration; breaking early
// (not exhausting the sequence) still releases it since Go's range-over-func
// always calls through to the yield's false return before unwinding.
func (c *Cursor) Entities() iter.Seq[EntityIterItem] {
	return func(yield func(EntityIterItem) bool) {
		c.world.AddLock()
		defer c.world.PopLock()

		for _, arch := range c.query.snapshot() {
			count := arch.EntityCount()
			for i := 0; i < count; i++ {
				id, err := arch.EntityIDAt(i)
				if err != nil {
					return
				}
				e, ok := c.world.entityFromID(id)
				if !ok {
					continue
				}
				if !yield(EntityIterItem{Entity: e, Archetype: arch, GlobalIndex: i}) {
					return
				}
			}
		}
	}
}

// Chunks returns a sequence over every chunk of every matched archetype.
func (c *Cursor) Chunks() iter.Seq[ChunkIterItem] {
	return func(yield func(ChunkIterItem) bool) {
		c.world.AddLock()
		defer c.world.PopLock()

		for _, arch := range c.query.snapshot() {
			for _, item := range chunkItemsForArchetype(arch) {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// TotalMatched returns the number of entities matched at call time.
func (c *Cursor) TotalMatched() int { return c.query.Count() }

// Borrow acquires the chunk view backing item; callers must Release it.
func (w *World) Borrow(item ChunkIterItem) (ChunkView, error) {
	return w.chunks.Borrow(item.Chunk)
}

// GetSpan returns item's typed component slice for T, borrowed from view;
// nil for a zero-size (tag) component or one item's archetype doesn't carry.
func GetSpan[T any](item ChunkIterItem, view ChunkView) []T {
	cl := item.Archetype.Layout().byID(typeInfoOf[T]().ID)
	if cl == nil || cl.size == 0 {
		return nil
	}
	return Span[T](view, cl.baseOffset, item.EntityCount)
}

// HasSpan reports whether item's archetype carries component T at all.
func HasSpan[T any](item ChunkIterItem) bool {
	return item.Archetype.Layout().byID(typeInfoOf[T]().ID) != nil
}
