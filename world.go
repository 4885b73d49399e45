package warehouse

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// EntityDestroyCallback is invoked when the entity it was registered
// against is despawned. Kept from the teacher's entity.go as an opt-in
// convenience; no spec invariant depends on it.
type EntityDestroyCallback func(Entity)

type relationship struct {
	parent        Entity
	parentVersion uint32
	onDestroy     EntityDestroyCallback
}

// World is the façade tying an EntityManager and a per-world
// ArchetypeRegistry to a shared ChunkManager and SharedArchetypeMetadata
// (spec §4.7). Multiple worlds may reference the same shared metadata and
// chunk manager; shutting one world down never shuts those down.
type World struct {
	entities *EntityManager
	registry *ArchetypeRegistry
	metadata *SharedArchetypeMetadata
	chunks   *ChunkManager

	relMu sync.Mutex
	rel   map[uint32]*relationship

	lockCount atomic.Int32
	opQueue   entityOperationsQueue

	disposed atomic.Bool
}

// NewWorld creates a world against shared collaborators. chunks and
// metadata may be shared with other worlds; entities is private to this
// world.
func NewWorld(chunks *ChunkManager, metadata *SharedArchetypeMetadata) *World {
	return &World{
		entities: NewEntityManager(Config.DefaultEntityCapacity),
		registry: NewArchetypeRegistry(metadata, chunks),
		metadata: metadata,
		chunks:   chunks,
		rel:      make(map[uint32]*relationship),
	}
}

func (w *World) checkDisposed() error {
	if w.disposed.Load() {
		return useAfterDispose("World")
	}
	return nil
}

// Spawn creates a new entity with no components.
func (w *World) Spawn() (Entity, error) {
	if err := w.checkDisposed(); err != nil {
		return Entity{}, err
	}
	e, err := w.entities.Create()
	if err != nil {
		return Entity{}, err
	}
	if hook := Config.Events.OnEntitySpawned; hook != nil {
		hook(e)
	}
	return e, nil
}

// archetypeFor resolves the entity's current Archetype, or nil if it is
// alive but has no components (or is not alive).
func (w *World) archetypeFor(e Entity) (*Archetype, EntityLocation, bool) {
	loc, ok := w.entities.TryGetLocation(e)
	if !ok {
		return nil, EntityLocation{}, false
	}
	if loc.archetypeID < 0 {
		return nil, loc, true
	}
	return w.registry.Get(archetypeID(loc.archetypeID)), loc, true
}

// Despawn retires e, removing it from its archetype (patching any entity
// swap-moved into its old slot) before releasing the id. Returns whether e
// was alive.
func (w *World) Despawn(e Entity) (bool, error) {
	if err := w.checkDisposed(); err != nil {
		return false, err
	}
	arch, loc, ok := w.archetypeFor(e)
	if !ok {
		return false, nil
	}
	if arch != nil {
		arch.Lock()
		movedID, moved, err := arch.removeEntityLocked(int(loc.globalIndex))
		if err == nil && moved {
			w.patchMovedEntity(arch, movedID, int(loc.globalIndex))
		}
		arch.Unlock()
		if err != nil {
			return false, err
		}
	}
	w.entities.Destroy(e)

	w.relMu.Lock()
	r := w.rel[e.id]
	delete(w.rel, e.id)
	w.relMu.Unlock()
	if r != nil && r.onDestroy != nil {
		r.onDestroy(e)
	}
	if hook := Config.Events.OnEntityDestroyed; hook != nil {
		hook(e)
	}
	return true, nil
}

// patchMovedEntity updates the location of whatever entity swap-remove
// moved into newIndex within arch.
func (w *World) patchMovedEntity(arch *Archetype, movedID uint32, newIndex int) {
	slotVersion, ok := w.entities.currentVersion(movedID)
	if !ok {
		return
	}
	moved := Entity{id: movedID, version: slotVersion}
	w.entities.SetLocation(moved, arch.ID(), int32(newIndex))
}

func (w *World) IsAlive(e Entity) bool { return w.entities.IsAlive(e) }

func (w *World) EntityCount() int { return w.entities.AliveCount() }

// entityFromID reconstructs a full Entity handle for a raw id by reading its
// slot's current version, used by Query iteration which only has the raw id
// stored in chunk memory.
func (w *World) entityFromID(id uint32) (Entity, bool) {
	v, ok := w.entities.currentVersion(id)
	if !ok {
		return Entity{}, false
	}
	return Entity{id: id, version: v}, true
}

// AddLock and PopLock implement the lock-bit half of spec §4.8's iteration
// discipline: a Cursor holds a lock bit for the duration of its iteration,
// and the last PopLock to bring the count to zero replays any operations
// queued meanwhile via Enqueue. Structural World methods never check this
// themselves -- it is the caller's choice to route a mutation attempted
// during iteration through Enqueue instead of calling World directly.
func (w *World) AddLock() { w.lockCount.Add(1) }

func (w *World) PopLock() {
	if w.lockCount.Add(-1) == 0 {
		_ = w.opQueue.processAll(w)
	}
}

func (w *World) Locked() bool { return w.lockCount.Load() > 0 }

// Enqueue applies op immediately if the world isn't currently locked, or
// defers it until the last outstanding lock bit clears.
func (w *World) Enqueue(op EntityOperation) error {
	if w.Locked() {
		w.opQueue.enqueue(op)
		return nil
	}
	return op.Apply(w)
}

// HasComponent reports whether e's current archetype includes T.
func HasComponent[T any](w *World, e Entity) bool {
	arch, _, ok := w.archetypeFor(e)
	if !ok || arch == nil {
		return false
	}
	id := typeInfoOf[T]().ID
	return arch.Layout().byID(id) != nil
}

// GetComponent returns a pointer into the entity's live chunk storage for
// T, valid only for the duration view is held; call Release when done.
func GetComponent[T any](w *World, e Entity) (*T, ChunkView, error) {
	arch, loc, ok := w.archetypeFor(e)
	if !ok {
		return nil, ChunkView{}, precondition("entity not alive")
	}
	if arch == nil {
		return nil, ChunkView{}, precondition("entity has no components")
	}
	info := typeInfoOf[T]()
	cl := arch.Layout().byID(info.ID)
	if cl == nil {
		return nil, ChunkView{}, precondition("entity lacks component %s", info.rtype)
	}
	chunkIdx, idxInChunk := arch.GetChunkLocation(int(loc.globalIndex))
	handles := arch.GetChunks()
	view, err := w.chunks.Borrow(handles[chunkIdx])
	if err != nil {
		return nil, ChunkView{}, err
	}
	if cl.size == 0 {
		var zero T
		return &zero, view, nil
	}
	off := cl.baseOffset + idxInChunk*int(cl.size)
	return Ref[T](view, off), view, nil
}

// SetComponent overwrites T's value for e in place.
func SetComponent[T any](w *World, e Entity, value T) error {
	ptr, view, err := GetComponent[T](w, e)
	if err != nil {
		return err
	}
	defer view.Release()
	if ptr != nil {
		*ptr = value
	}
	return nil
}

// AddComponent moves e into the archetype reached by adding T to its
// current signature, preserving every shared component's payload, then
// initializes T to value. Fails if e already has T.
func AddComponent[T any](w *World, e Entity, value T) error {
	if err := w.checkDisposed(); err != nil {
		return err
	}
	src, loc, ok := w.archetypeFor(e)
	if !ok {
		return precondition("entity not alive")
	}
	info := typeInfoOf[T]()

	// Archetype layouts are immutable once interned, so it's safe to resolve
	// the target archetype before taking any lock; only chunk list/entity
	// count need lock protection, acquired below in ascending id order.
	var dst *Archetype
	var srcInfos []*TypeInfo
	if src != nil {
		srcInfos = src.Layout().infos()
		dst = w.registry.GetOrCreateWithAdd(src, info.ID, append(append([]*TypeInfo{}, srcInfos...), info))
	} else {
		dst = w.registry.GetOrCreate(singleBitSignature(info.ID), []*TypeInfo{info})
	}

	lockAscending(src, dst)
	defer unlockAscending(src, dst)

	if src != nil && src.Layout().byID(info.ID) != nil {
		return precondition("entity already has component %s", info.rtype)
	}

	newIndex, err := dst.allocateEntityLocked(e.id)
	if err != nil {
		return err
	}
	dstChunkIdx, dstIdxInChunk := dst.GetChunkLocation(newIndex)
	dstHandles := dst.GetChunks()
	dstView, err := w.chunks.Borrow(dstHandles[dstChunkIdx])
	if err != nil {
		return err
	}
	defer dstView.Release()

	if src != nil {
		srcChunkIdx, srcIdxInChunk := src.GetChunkLocation(int(loc.globalIndex))
		srcHandles := src.GetChunks()
		srcView, err := w.chunks.Borrow(srcHandles[srcChunkIdx])
		if err != nil {
			return err
		}
		for _, cl := range srcInfos {
			scl := src.Layout().byID(cl.ID)
			dcl := dst.Layout().byID(cl.ID)
			if scl == nil || dcl == nil || scl.size == 0 {
				continue
			}
			srcOff := scl.baseOffset + srcIdxInChunk*int(scl.size)
			dstOff := dcl.baseOffset + dstIdxInChunk*int(dcl.size)
			copy(dstView.Bytes(dstOff, int(dcl.size)), srcView.Bytes(srcOff, int(scl.size)))
		}
		srcView.Release()

		movedID, moved, err := src.removeEntityLocked(int(loc.globalIndex))
		if err != nil {
			return err
		}
		if moved {
			w.patchMovedEntity(src, movedID, int(loc.globalIndex))
		}
	}

	if dcl := dst.Layout().byID(info.ID); dcl.size > 0 {
		off := dcl.baseOffset + dstIdxInChunk*int(dcl.size)
		*Ref[T](dstView, off) = value
	}

	w.entities.SetLocation(e, dst.ID(), int32(newIndex))
	return nil
}

// RemoveComponent is the symmetric counterpart of AddComponent. Fails if e
// lacks T.
func RemoveComponent[T any](w *World, e Entity) error {
	info := typeInfoOf[T]()
	return removeComponentByID(w, e, info.ID, info.rtype.String())
}

// removeComponentByID implements RemoveComponent without needing the static
// Go type, so World-level callers (EntityBuilder.Overwrite) can clear every
// component of an entity's current archetype by id alone.
func removeComponentByID(w *World, e Entity, id int32, typeName string) error {
	if err := w.checkDisposed(); err != nil {
		return err
	}
	src, loc, ok := w.archetypeFor(e)
	if !ok {
		return precondition("entity not alive")
	}
	if src == nil {
		return precondition("entity lacks component")
	}
	info := &TypeInfo{ID: id}

	srcInfos := src.Layout().infos()
	dst := w.registry.GetOrCreateWithRemove(src, info.ID, removeInfo(srcInfos, info.ID))

	lockAscending(src, dst)
	defer unlockAscending(src, dst)

	if src.Layout().byID(info.ID) == nil {
		return precondition("entity lacks component %s", typeName)
	}

	newIndex, err := dst.allocateEntityLocked(e.id)
	if err != nil {
		return err
	}
	dstChunkIdx, dstIdxInChunk := dst.GetChunkLocation(newIndex)
	dstHandles := dst.GetChunks()
	dstView, err := w.chunks.Borrow(dstHandles[dstChunkIdx])
	if err != nil {
		return err
	}

	srcChunkIdx, srcIdxInChunk := src.GetChunkLocation(int(loc.globalIndex))
	srcHandles := src.GetChunks()
	srcView, err := w.chunks.Borrow(srcHandles[srcChunkIdx])
	if err == nil {
		for _, cl := range srcInfos {
			if cl.ID == info.ID {
				continue
			}
			scl := src.Layout().byID(cl.ID)
			dcl := dst.Layout().byID(cl.ID)
			if scl == nil || dcl == nil || scl.size == 0 {
				continue
			}
			srcOff := scl.baseOffset + srcIdxInChunk*int(scl.size)
			dstOff := dcl.baseOffset + dstIdxInChunk*int(dcl.size)
			copy(dstView.Bytes(dstOff, int(dcl.size)), srcView.Bytes(srcOff, int(scl.size)))
		}
		srcView.Release()
	}
	dstView.Release()

	movedID, moved, rerr := src.removeEntityLocked(int(loc.globalIndex))
	if rerr != nil {
		return rerr
	}
	if moved {
		w.patchMovedEntity(src, movedID, int(loc.globalIndex))
	}

	w.entities.SetLocation(e, dst.ID(), int32(newIndex))
	return nil
}

func removeInfo(infos []*TypeInfo, id int32) []*TypeInfo {
	out := make([]*TypeInfo, 0, len(infos))
	for _, ti := range infos {
		if ti.ID != id {
			out = append(out, ti)
		}
	}
	return out
}

func singleBitSignature(id int32) Signature {
	var s Signature
	s.Mark(uint32(id))
	return s
}

// lockAscending locks a and b (either may be nil) in ascending-id order,
// avoiding a double-lock when they're the same archetype (spec §5's "only
// in ascending id order" deadlock-avoidance rule).
func lockAscending(a, b *Archetype) {
	switch {
	case a == nil && b == nil:
	case a == nil:
		b.Lock()
	case b == nil || a == b:
		a.Lock()
	case a.ID() < b.ID():
		a.Lock()
		b.Lock()
	default:
		b.Lock()
		a.Lock()
	}
}

func unlockAscending(a, b *Archetype) {
	switch {
	case a == nil && b == nil:
	case a == nil:
		b.Unlock()
	case b == nil || a == b:
		a.Unlock()
	default:
		a.Unlock()
		b.Unlock()
	}
}

// SetParent establishes a parent/child relationship with a destroy
// callback, carried over from the teacher's entity.go as an opt-in
// convenience.
func (w *World) SetParent(child, parent Entity, callback EntityDestroyCallback) error {
	if !w.IsAlive(child) || !w.IsAlive(parent) {
		return precondition("entity not alive")
	}
	w.relMu.Lock()
	defer w.relMu.Unlock()
	if r, ok := w.rel[child.id]; ok && r.parent.Valid() {
		return precondition("entity already has a parent")
	}
	w.rel[child.id] = &relationship{parent: parent, parentVersion: parent.version}
	pr, ok := w.rel[parent.id]
	if !ok {
		pr = &relationship{}
		w.rel[parent.id] = pr
	}
	pr.onDestroy = callback
	return nil
}

// Parent returns child's parent entity, or the zero Entity if none is set
// or the parent has since been recycled.
func (w *World) Parent(child Entity) Entity {
	w.relMu.Lock()
	defer w.relMu.Unlock()
	r, ok := w.rel[child.id]
	if !ok || !r.parent.Valid() {
		return Entity{}
	}
	if v, ok := w.entities.currentVersion(r.parent.id); !ok || v != r.parentVersion {
		return Entity{}
	}
	return r.parent
}

// ComponentsAsString returns a sorted, bracketed listing of e's current
// component type names, grounded on the teacher's entity.go helper of the
// same purpose.
func (w *World) ComponentsAsString(e Entity) string {
	arch, _, ok := w.archetypeFor(e)
	if !ok || arch == nil {
		return "[]"
	}
	names := make([]string, 0, len(arch.Layout().components))
	for _, cl := range arch.Layout().components {
		ti := globalComponents.typeInfoByID(cl.id)
		name := ti.rtype.String()
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
			name = name[idx+1:]
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "[]"
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// Clear destroys every currently alive entity. Archetypes remain allocated
// but empty.
func (w *World) Clear() error {
	if err := w.checkDisposed(); err != nil {
		return err
	}
	var firstErr error
	w.entities.ForEachAlive(func(e Entity) {
		if _, err := w.Despawn(e); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// TransferEntities moves entities from this world into target, re-creating
// their archetype membership there. Both worlds must share the same
// SharedArchetypeMetadata for archetype ids to correspond; this is the
// generalization of the teacher's Storage.TransferEntities.
func (w *World) TransferEntities(target *World, entities ...Entity) error {
	for _, e := range entities {
		arch, loc, ok := w.archetypeFor(e)
		if !ok {
			continue
		}
		ne, err := target.Spawn()
		if err != nil {
			return err
		}
		if arch != nil {
			if err := w.copyAllComponents(arch, loc, target, ne); err != nil {
				return err
			}
		}
		if _, err := w.Despawn(e); err != nil {
			return err
		}
	}
	return nil
}

// copyAllComponents byte-copies every component of src's slot onto a
// freshly spawned entity in target, building target's archetype via
// successive AddComponent-style moves is avoided here in favor of a direct
// bulk allocate+copy against target's registry, since the component types
// are only known as raw TypeInfo at this point.
func (w *World) copyAllComponents(arch *Archetype, loc EntityLocation, target *World, dst Entity) error {
	infos := arch.Layout().infos()
	var mask Signature
	for _, ti := range infos {
		mask.Mark(uint32(ti.ID))
	}
	dstArch := target.registry.GetOrCreate(mask, infos)
	dstArch.Lock()
	newIndex, err := dstArch.allocateEntityLocked(dst.id)
	dstArch.Unlock()
	if err != nil {
		return err
	}

	srcChunkIdx, srcIdxInChunk := arch.GetChunkLocation(int(loc.globalIndex))
	dstChunkIdx, dstIdxInChunk := dstArch.GetChunkLocation(newIndex)
	srcHandles := arch.GetChunks()
	dstHandles := dstArch.GetChunks()
	srcView, err := w.chunks.Borrow(srcHandles[srcChunkIdx])
	if err != nil {
		return err
	}
	defer srcView.Release()
	dstView, err := w.chunks.Borrow(dstHandles[dstChunkIdx])
	if err != nil {
		return err
	}
	defer dstView.Release()

	for _, cl := range infos {
		scl := arch.Layout().byID(cl.ID)
		dcl := dstArch.Layout().byID(cl.ID)
		if scl.size == 0 {
			continue
		}
		srcOff := scl.baseOffset + srcIdxInChunk*int(scl.size)
		dstOff := dcl.baseOffset + dstIdxInChunk*int(dcl.size)
		copy(dstView.Bytes(dstOff, int(dcl.size)), srcView.Bytes(srcOff, int(scl.size)))
	}
	target.entities.SetLocation(dst, dstArch.ID(), int32(newIndex))
	return nil
}

// Shutdown releases this world's own resources. It never shuts down the
// shared ChunkManager or SharedArchetypeMetadata.
func (w *World) Shutdown() {
	w.disposed.Store(true)
	w.entities.Shutdown()
}

