/*
Package warehouse is an archetype-based storage and scheduling engine for
entity-component-system (ECS) designs.

Warehouse groups entities by component signature into archetypes, laid out
struct-of-arrays across fixed-size chunks for cache-friendly iteration.
Structural changes (adding or removing a component) move an entity between
archetypes along a precomputed, cached transition graph shared across every
World that references the same SharedArchetypeMetadata. A dependency-aware
scheduler groups user systems into waves that run their component-disjoint
work concurrently.

Core Concepts:

  - Entity: a version-tagged (id, version) handle owning nothing itself.
  - Component: a plain, fixed-size data record registered once per type.
  - Archetype: the dense chunk storage for one component signature.
  - World: the façade tying entities, archetypes and shared metadata
    together for a single simulation.
  - Query/Cursor: a snapshot-backed view over every archetype matching a
    signature filter, with entity- and chunk-granularity iteration.
  - System/Schedule: declared component read/write sets, grouped into
    conflict-free waves and run by a pluggable WaveStrategy.

Basic Usage:

	chunks := warehouse.Factory.NewChunkManager(16*1024, 0)
	metadata := warehouse.Factory.NewSharedArchetypeMetadata(16*1024, warehouse.Config.EntityIDByteSize)
	world := warehouse.Factory.NewWorld(chunks, metadata)

	position := warehouse.FactoryNewComponent[Position]()
	velocity := warehouse.FactoryNewComponent[Velocity]()

	entity, _ := warehouse.With(warehouse.NewEntityBuilder(), Position{}).Build(world)

	query := warehouse.NewQueryBuilder().All(position.ID(), velocity.ID()).Build(world)
	cursor := warehouse.Factory.NewCursor(world, query)
	for item := range cursor.Entities() {
		pos, view, _ := warehouse.GetComponent[Position](world, item.Entity)
		pos.X++
		view.Release()
	}

Warehouse carries no wire protocol or persistence format; its external
surface is in-process only.
*/
package warehouse
