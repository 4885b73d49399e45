package warehouse

import "testing"

func newTestWorld(t *testing.T) *World {
	t.Helper()
	chunks := NewChunkManager(4096, 0)
	meta := NewSharedArchetypeMetadata(4096, 4)
	return NewWorld(chunks, meta)
}

// TestSpawnDespawnReuse is spec §8 scenario 1.
func TestSpawnDespawnReuse(t *testing.T) {
	w := newTestWorld(t)

	e1, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if _, err := w.Despawn(e1); err != nil {
		t.Fatalf("Despawn failed: %v", err)
	}
	e2, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if e2.ID() != e1.ID() {
		t.Fatalf("e2.ID()=%d, want reuse of e1.ID()=%d", e2.ID(), e1.ID())
	}
	if e2.Version() <= e1.Version() {
		t.Fatalf("e2.Version()=%d, want > e1.Version()=%d", e2.Version(), e1.Version())
	}
	if w.IsAlive(e1) {
		t.Fatalf("e1 should no longer be alive")
	}
	if !w.IsAlive(e2) {
		t.Fatalf("e2 should be alive")
	}
}

// TestAddRemoveComponentsPreservesOthers is spec §8 scenario 2.
func TestAddRemoveComponentsPreservesOthers(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := AddComponent(w, e, Position{X: 10, Y: 20}); err != nil {
		t.Fatalf("AddComponent(Position) failed: %v", err)
	}
	if err := AddComponent(w, e, Velocity{X: 1, Y: 2}); err != nil {
		t.Fatalf("AddComponent(Velocity) failed: %v", err)
	}
	if err := RemoveComponent[Velocity](w, e); err != nil {
		t.Fatalf("RemoveComponent(Velocity) failed: %v", err)
	}

	if !HasComponent[Position](w, e) {
		t.Fatalf("expected entity to still have Position")
	}
	if HasComponent[Velocity](w, e) {
		t.Fatalf("expected entity to no longer have Velocity")
	}
	pos, view, err := GetComponent[Position](w, e)
	if err != nil {
		t.Fatalf("GetComponent(Position) failed: %v", err)
	}
	defer view.Release()
	if *pos != (Position{X: 10, Y: 20}) {
		t.Fatalf("Position = %+v, want {10 20}", *pos)
	}
}

// TestOverwriteWithEmptyBuilderClearsComponents is spec §8 scenario 3.
func TestOverwriteWithEmptyBuilderClearsComponents(t *testing.T) {
	w := newTestWorld(t)
	e, err := With(With(NewEntityBuilder(), Position{X: 100, Y: 200}), Velocity{X: 1, Y: 2}).Build(w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := NewEntityBuilder().Overwrite(w, e); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	if HasComponent[Position](w, e) {
		t.Fatalf("expected Position to be cleared by an empty-builder Overwrite")
	}
	if HasComponent[Velocity](w, e) {
		t.Fatalf("expected Velocity to be cleared by an empty-builder Overwrite")
	}
	if !w.IsAlive(e) {
		t.Fatalf("entity should remain alive after Overwrite")
	}
}

// TestSwapRemoveCorrectness is spec §8 scenario 4.
func TestSwapRemoveCorrectness(t *testing.T) {
	w := newTestWorld(t)

	build := func(x float64) Entity {
		e, err := With(NewEntityBuilder(), Position{X: x}).Build(w)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return e
	}
	a := build(100)
	b := build(200)
	c := build(300)

	if _, err := w.Despawn(a); err != nil {
		t.Fatalf("Despawn failed: %v", err)
	}
	d := build(400)

	checkPos := func(e Entity, want float64) {
		t.Helper()
		pos, view, err := GetComponent[Position](w, e)
		if err != nil {
			t.Fatalf("GetComponent failed: %v", err)
		}
		defer view.Release()
		if pos.X != want {
			t.Fatalf("Position.X = %v, want %v", pos.X, want)
		}
	}
	checkPos(b, 200)
	checkPos(c, 300)
	checkPos(d, 400)
}

// TestTagAndDataDoesNotCorruptEntityID is spec §8 scenario 5.
func TestTagAndDataDoesNotCorruptEntityID(t *testing.T) {
	w := newTestWorld(t)

	e1, err := With(With(NewEntityBuilder(), Position{X: 1}), Tag{}).Build(w)
	if err != nil {
		t.Fatalf("Build e1 failed: %v", err)
	}
	e2, err := With(With(NewEntityBuilder(), Position{X: 2}), Tag{}).Build(w)
	if err != nil {
		t.Fatalf("Build e2 failed: %v", err)
	}

	if _, err := w.Despawn(e1); err != nil {
		t.Fatalf("Despawn failed: %v", err)
	}
	if !w.IsAlive(e2) {
		t.Fatalf("e2 should still be alive")
	}
	pos, view, err := GetComponent[Position](w, e2)
	if err != nil {
		t.Fatalf("GetComponent(e2) failed: %v", err)
	}
	defer view.Release()
	if pos.X != 2 {
		t.Fatalf("e2's Position corrupted by zero-size Tag swap-remove: got %+v", *pos)
	}
}

// TestSharedMetadataAcrossWorlds is spec §8 scenario 6.
func TestSharedMetadataAcrossWorlds(t *testing.T) {
	chunks := NewChunkManager(4096, 0)
	meta := NewSharedArchetypeMetadata(4096, 4)
	w1 := NewWorld(chunks, meta)
	w2 := NewWorld(chunks, meta)

	e1, err := With(NewEntityBuilder(), Position{}).Build(w1)
	if err != nil {
		t.Fatalf("Build on w1 failed: %v", err)
	}
	if err := AddComponent(w1, e1, Velocity{}); err != nil {
		t.Fatalf("AddComponent on w1 failed: %v", err)
	}

	if _, err := With(With(NewEntityBuilder(), Position{}), Velocity{}).Build(w2); err != nil {
		t.Fatalf("Build on w2 failed: %v", err)
	}

	if got := len(meta.idToLayout); got != 2 {
		t.Fatalf("shared metadata archetype count = %d, want 2 (the add edge should be reused)", got)
	}
}

// TestQueryFilter is spec §8 scenario 7.
func TestQueryFilter(t *testing.T) {
	w := newTestWorld(t)
	position := FactoryNewComponent[Position]()
	velocity := FactoryNewComponent[Velocity]()

	e1, err := With(NewEntityBuilder(), Position{}).Build(w)
	if err != nil {
		t.Fatalf("Build e1 failed: %v", err)
	}
	e2, err := With(With(NewEntityBuilder(), Position{}), Velocity{}).Build(w)
	if err != nil {
		t.Fatalf("Build e2 failed: %v", err)
	}
	if _, err := With(NewEntityBuilder(), Velocity{}).Build(w); err != nil {
		t.Fatalf("Build e3 failed: %v", err)
	}

	query := NewQueryBuilder().All(position.ID()).None(velocity.ID()).Build(w)
	cursor := NewCursor(w, query)

	var matched []Entity
	for item := range cursor.Entities() {
		matched = append(matched, item.Entity)
	}
	if len(matched) != 1 || matched[0] != e1 {
		t.Fatalf("query All={Position} None={Velocity} matched %v, want [%v]", matched, e1)
	}
	_ = e2
}

func TestAddComponentFailsIfAlreadyPresent(t *testing.T) {
	w := newTestWorld(t)
	e, err := With(NewEntityBuilder(), Position{}).Build(w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := AddComponent(w, e, Position{}); err == nil {
		t.Fatalf("expected an error adding a component the entity already has")
	}
}

func TestRemoveComponentFailsIfAbsent(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if err := RemoveComponent[Position](w, e); err == nil {
		t.Fatalf("expected an error removing a component the entity lacks")
	}
}

func TestWorldOperationsFailAfterShutdown(t *testing.T) {
	w := newTestWorld(t)
	w.Shutdown()
	if _, err := w.Spawn(); err == nil {
		t.Fatalf("expected use-after-dispose error from Spawn after Shutdown")
	}
}

func TestClearDestroysAllEntitiesKeepsArchetypes(t *testing.T) {
	w := newTestWorld(t)
	for i := 0; i < 5; i++ {
		if _, err := With(NewEntityBuilder(), Position{}).Build(w); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
	}
	if err := w.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if w.EntityCount() != 0 {
		t.Fatalf("EntityCount after Clear = %d, want 0", w.EntityCount())
	}
	if arch := w.registry.Get(0); arch == nil || arch.EntityCount() != 0 {
		t.Fatalf("expected the Position archetype to remain, empty, after Clear")
	}
}
