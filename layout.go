package warehouse

import "sort"

// componentLayout is one component's placement within a chunk.
type componentLayout struct {
	id         int32
	size       uintptr
	align      uintptr
	baseOffset int // sentinel -1 for zero-size components; never dereferenced
}

// archetypeLayout is the SoA placement of one signature's components inside
// every chunk that archetype owns, computed once when the archetype is
// created (per spec §4.2).
type archetypeLayout struct {
	mask             Signature
	entityIDOffset   int
	entityIDSize     int
	entitiesPerChunk int
	components       []componentLayout // sorted ascending by id
	minID, maxID     int32
}

// infos reconstructs the []*TypeInfo this layout was computed from, so a
// caller can recompute a related layout (e.g. the same signature plus or
// minus one component) without consulting the global component registry.
func (l *archetypeLayout) infos() []*TypeInfo {
	out := make([]*TypeInfo, len(l.components))
	for i, cl := range l.components {
		out[i] = &TypeInfo{ID: cl.id, Size: cl.size, Align: cl.align}
	}
	return out
}

// byID returns the componentLayout for id, or nil if the signature doesn't
// include it.
func (l *archetypeLayout) byID(id int32) *componentLayout {
	for i := range l.components {
		if l.components[i].id == id {
			return &l.components[i]
		}
	}
	return nil
}

// computeArchetypeLayout builds the layout for a signature given its sorted
// component TypeInfos and the manager's chunk size / entity-id byte width.
// Implements spec §4.2: sort ids ascending, reserve the entity-id region
// first, place each non-zero-size component contiguously aligned to its own
// alignment, and solve the largest entitiesPerChunk whose total footprint
// fits the chunk.
func computeArchetypeLayout(infos []*TypeInfo, chunkSize, entityIDBytes int) *archetypeLayout {
	sorted := make([]*TypeInfo, len(infos))
	copy(sorted, infos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var mask Signature
	var sumSize uintptr
	maxAlign := uintptr(1)
	for _, ti := range sorted {
		mask.Mark(uint32(ti.ID))
		if ti.Size > 0 {
			sumSize += ti.Size
			if ti.Align > maxAlign {
				maxAlign = ti.Align
			}
		}
	}

	// Closed-form upper bound per spec §4.2 step 3, then walk padding down
	// from it since per-region alignment padding is data-dependent.
	perEntity := uintptr(entityIDBytes) + sumSize
	n := chunkSize / int(perEntity)
	if n < 1 {
		n = 1
	}
	for n > 0 && footprint(sorted, n, entityIDBytes) > chunkSize {
		n--
	}
	if n < 1 {
		n = 1
	}

	layout := &archetypeLayout{
		mask:             mask,
		entityIDOffset:   0,
		entityIDSize:     entityIDBytes,
		entitiesPerChunk: n,
	}
	offset := entityIDBytes * n
	for _, ti := range sorted {
		cl := componentLayout{id: ti.ID, size: ti.Size, align: ti.Align, baseOffset: -1}
		if ti.Size > 0 {
			offset = alignUp(offset, int(ti.Align))
			cl.baseOffset = offset
			offset += int(ti.Size) * n
		}
		layout.components = append(layout.components, cl)
	}
	if len(sorted) > 0 {
		layout.minID = sorted[0].ID
		layout.maxID = sorted[len(sorted)-1].ID
	} else {
		layout.minID, layout.maxID = 0, -1
	}
	return layout
}

// footprint computes the total byte size a chunk needs to hold n entities
// given the sorted component list and entity-id byte width, including
// per-region alignment padding.
func footprint(sorted []*TypeInfo, n, entityIDBytes int) int {
	offset := entityIDBytes * n
	for _, ti := range sorted {
		if ti.Size == 0 {
			continue
		}
		offset = alignUp(offset, int(ti.Align))
		offset += int(ti.Size) * n
	}
	return offset
}

func alignUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}
