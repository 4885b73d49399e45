package warehouse

import "github.com/TheBitDrifter/bark"

// componentValue pairs a registered component's TypeInfo with a setter that
// writes its captured value into a chunk slot, given that component's
// resolved layout within the entity's target archetype.
type componentValue struct {
	info  *TypeInfo
	apply func(view ChunkView, indexInChunk int, cl *componentLayout)
}

// EntityBuilder accumulates a set of component values to apply to an entity
// in one structural move. Observable semantics only (Build/Overwrite/AddTo)
// per spec's explicit non-goal on builder DSL surface -- no fluent chaining
// sugar beyond With, which is needed to express a typed value at all.
type EntityBuilder struct {
	values []componentValue
	seen   map[int32]bool
}

func NewEntityBuilder() *EntityBuilder {
	return &EntityBuilder{seen: make(map[int32]bool)}
}

// With attaches value for T to the builder. Panics if T was already added --
// a caller bug, not one of spec.md's modeled runtime preconditions.
func With[T any](b *EntityBuilder, value T) *EntityBuilder {
	info := typeInfoOf[T]()
	if b.seen[info.ID] {
		panic(bark.AddTrace(precondition("component %s already added to builder", info.rtype)))
	}
	b.seen[info.ID] = true
	b.values = append(b.values, componentValue{
		info: info,
		apply: func(view ChunkView, indexInChunk int, cl *componentLayout) {
			if cl.size == 0 {
				return
			}
			off := cl.baseOffset + indexInChunk*int(cl.size)
			*Ref[T](view, off) = value
		},
	})
	return b
}

// infos returns the TypeInfo of every value added to the builder.
func (b *EntityBuilder) infos() []*TypeInfo {
	out := make([]*TypeInfo, len(b.values))
	for i, v := range b.values {
		out[i] = v.info
	}
	return out
}

// applyTo allocates e's slot directly in dst and writes every builder value
// into it. dst must already contain e's id (allocateEntityLocked called by
// the caller, which also holds whatever locks are required).
func (b *EntityBuilder) applyTo(dst *Archetype, view ChunkView, indexInChunk int) {
	for _, v := range b.values {
		cl := dst.Layout().byID(v.info.ID)
		v.apply(view, indexInChunk, cl)
	}
}

// Build spawns a fresh entity and allocates it directly into the archetype
// defined by the builder's component set.
func (b *EntityBuilder) Build(w *World) (Entity, error) {
	if err := w.checkDisposed(); err != nil {
		return Entity{}, err
	}
	e, err := w.Spawn()
	if err != nil {
		return Entity{}, err
	}

	var mask Signature
	for _, info := range b.infos() {
		mask.Mark(uint32(info.ID))
	}
	dst := w.registry.GetOrCreate(mask, b.infos())

	dst.Lock()
	idx, err := dst.allocateEntityLocked(e.id)
	dst.Unlock()
	if err != nil {
		return Entity{}, err
	}

	chunkIdx, idxInChunk := dst.GetChunkLocation(idx)
	handles := dst.GetChunks()
	view, err := w.chunks.Borrow(handles[chunkIdx])
	if err != nil {
		return Entity{}, err
	}
	defer view.Release()

	b.applyTo(dst, view, idxInChunk)
	w.entities.SetLocation(e, dst.ID(), int32(idx))
	return e, nil
}

// AddTo moves e into the archetype reached by adding every builder value to
// its current signature, preserving existing components' payloads. Fails if
// e already has any of the builder's components.
func (b *EntityBuilder) AddTo(w *World, e Entity) error {
	if err := w.checkDisposed(); err != nil {
		return err
	}
	src, loc, ok := w.archetypeFor(e)
	if !ok {
		return precondition("entity not alive")
	}

	var mask Signature
	var infos []*TypeInfo
	var srcInfos []*TypeInfo
	if src != nil {
		srcInfos = src.Layout().infos()
		infos = append(infos, srcInfos...)
		mask = src.Layout().mask
	}
	for _, v := range b.values {
		if src != nil && src.Layout().byID(v.info.ID) != nil {
			return precondition("entity already has component %s", v.info.rtype)
		}
		infos = append(infos, v.info)
		mask.Mark(uint32(v.info.ID))
	}

	dst := w.registry.GetOrCreate(mask, infos)
	if dst == src {
		// Empty builder: e already sits in the target archetype.
		return nil
	}

	lockAscending(src, dst)
	defer unlockAscending(src, dst)

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

		movedID, moved, rerr := src.removeEntityLocked(int(loc.globalIndex))
		if rerr != nil {
			return rerr
		}
		if moved {
			w.patchMovedEntity(src, movedID, int(loc.globalIndex))
		}
	}

	b.applyTo(dst, dstView, dstIdxInChunk)
	w.entities.SetLocation(e, dst.ID(), int32(newIndex))
	return nil
}

// Overwrite clears every component currently on e, then adds the builder's
// components. It always clears first, even when the builder is empty (a
// binding Open Question decision -- see SPEC_FULL.md §4).
func (b *EntityBuilder) Overwrite(w *World, e Entity) (Entity, error) {
	if err := w.checkDisposed(); err != nil {
		return Entity{}, err
	}
	if !w.IsAlive(e) {
		return Entity{}, precondition("entity not alive")
	}
	for {
		src, _, ok := w.archetypeFor(e)
		if !ok {
			return Entity{}, precondition("entity not alive")
		}
		if src == nil || len(src.Layout().components) == 0 {
			break
		}
		id := src.Layout().components[0].id
		name := globalComponents.typeInfoByID(id).rtype.String()
		if err := removeComponentByID(w, e, id, name); err != nil {
			return Entity{}, err
		}
	}
	if err := b.AddTo(w, e); err != nil {
		return Entity{}, err
	}
	return e, nil
}
