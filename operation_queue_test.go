package warehouse

import "testing"

func TestEnqueueDefersWhileLocked(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	w.AddLock()
	despawned := false
	if err := w.Enqueue(FuncOperation(func(w *World) error {
		despawned = true
		_, err := w.Despawn(e)
		return err
	})); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if despawned {
		t.Fatalf("operation must not run while the world is locked")
	}
	if !w.IsAlive(e) {
		t.Fatalf("entity must still be alive while the operation is deferred")
	}

	w.PopLock()
	if !despawned {
		t.Fatalf("deferred operation should have run once the lock cleared")
	}
	if w.IsAlive(e) {
		t.Fatalf("entity should have been despawned by the replayed operation")
	}
}

func TestEnqueueAppliesImmediatelyWhenUnlocked(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if err := w.Enqueue(DespawnOperation{Entity: e}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if w.IsAlive(e) {
		t.Fatalf("expected the operation to apply immediately when unlocked")
	}
}

func TestDespawnOperationStaleHandleIsNoOp(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn()
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if _, err := w.Despawn(e); err != nil {
		t.Fatalf("Despawn failed: %v", err)
	}
	op := DespawnOperation{Entity: e}
	if err := op.Apply(w); err != nil {
		t.Fatalf("Apply on an already-despawned entity should be a no-op, got: %v", err)
	}
}

func TestCursorIterationHoldsLockAndReplaysQueuedDespawn(t *testing.T) {
	w := newTestWorld(t)
	position := FactoryNewComponent[Position]()
	e1, err := With(NewEntityBuilder(), Position{X: 1}).Build(w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	e2, err := With(NewEntityBuilder(), Position{X: 2}).Build(w)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	query := NewQueryBuilder().All(position.ID()).Build(w)
	cursor := NewCursor(w, query)

	for item := range cursor.Entities() {
		if item.Entity == e1 {
			if err := w.Enqueue(DespawnOperation{Entity: e2}); err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
		}
	}

	if w.IsAlive(e2) {
		t.Fatalf("queued despawn of e2 should have been replayed once iteration released the lock")
	}
}
