package warehouse

import (
	"sync"

	"github.com/kamstrup/intmap"
)

// QueryDescription is the three-signature filter spec §3 defines: a mask
// matches iff it is a superset of All, disjoint from None, and (if Any is
// non-empty) intersects Any.
type QueryDescription struct {
	All, None, Any Signature
}

func (q QueryDescription) matches(m Signature) bool {
	if !m.ContainsAll(q.All) {
		return false
	}
	if !m.ContainsNone(q.None) {
		return false
	}
	if !q.Any.IsEmpty() && !m.ContainsAny(q.Any) {
		return false
	}
	return true
}

// edgeKey packs (archetypeId, componentId) into a single uint32, matching
// spec §4.4's capacity note. componentId is bounded to 8 bits by
// maxComponentID, archetypeId gets the remaining 24.
func edgeKey(archID archetypeID, componentID int32) uint32 {
	return uint32(archID)<<8 | uint32(componentID)
}

// SharedArchetypeMetadata is the process- (or group-) wide interning layer:
// archetype ids, their layouts, cached add/remove edges, and registered
// query descriptions with their archetype matches. It is safe to share
// across multiple World instances and goroutines (spec §4.4/§5).
type SharedArchetypeMetadata struct {
	mu            sync.RWMutex
	chunkSize     int
	entityIDBytes int

	maskToID   map[Signature]archetypeID
	idToLayout []*archetypeLayout
	nextID     archetypeID

	addEdges    *intmap.Map[uint32, archetypeID]
	removeEdges *intmap.Map[uint32, archetypeID]

	queryByDescription map[QueryDescription]int32
	queries            []QueryDescription
	queryMatches       [][]archetypeID

	disposed bool
}

// NewSharedArchetypeMetadata creates an empty interning layer. chunkSize and
// entityIDBytes parameterize every archetype layout this instance computes.
func NewSharedArchetypeMetadata(chunkSize, entityIDBytes int) *SharedArchetypeMetadata {
	return &SharedArchetypeMetadata{
		chunkSize:           chunkSize,
		entityIDBytes:       entityIDBytes,
		maskToID:            make(map[Signature]archetypeID),
		addEdges:            intmap.New[uint32, archetypeID](64),
		removeEdges:         intmap.New[uint32, archetypeID](64),
		queryByDescription:  make(map[QueryDescription]int32),
	}
}

// GetOrCreateArchetypeID interns mask, computing its layout on first sight.
// For a newly created archetype it also returns the ids of every registered
// query the archetype satisfies (appending the archetype to each query's
// match list) and fires Config.Events.OnArchetypeCreated; for an existing
// mask the returned query list is nil.
func (m *SharedArchetypeMetadata) GetOrCreateArchetypeID(mask Signature, infos []*TypeInfo) (archetypeID, []int32) {
	m.mu.RLock()
	if id, ok := m.maskToID[mask]; ok {
		m.mu.RUnlock()
		return id, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	if id, ok := m.maskToID[mask]; ok {
		m.mu.Unlock()
		return id, nil
	}

	id := m.nextID
	m.nextID++
	layout := computeArchetypeLayout(infos, m.chunkSize, m.entityIDBytes)
	m.maskToID[mask] = id
	m.idToLayout = append(m.idToLayout, layout)

	var matched []int32
	for qid, desc := range m.queries {
		if desc.matches(mask) {
			m.queryMatches[qid] = append(m.queryMatches[qid], id)
			matched = append(matched, int32(qid))
		}
	}
	m.mu.Unlock()
	if hook := Config.Events.OnArchetypeCreated; hook != nil {
		hook(int32(id))
	}
	return id, matched
}

func (m *SharedArchetypeMetadata) Layout(id archetypeID) *archetypeLayout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idToLayout[id]
}

// GetOrCreateWithAdd resolves the archetype reached by adding componentID to
// archID's signature, caching the edge for future lookups. addEdges is a
// plain intmap.Map, not concurrency-safe on its own, so every access to it
// goes under m.mu -- never while m.mu is already held, since Layout and
// GetOrCreateArchetypeID take their own lock internally.
func (m *SharedArchetypeMetadata) GetOrCreateWithAdd(archID archetypeID, componentID int32, infos []*TypeInfo) (archetypeID, []int32) {
	key := edgeKey(archID, componentID)

	m.mu.RLock()
	target, ok := m.addEdges.Get(key)
	m.mu.RUnlock()
	if ok {
		return target, nil
	}

	srcMask := m.Layout(archID).mask
	var targetMask Signature
	targetMask = srcMask
	targetMask.Mark(uint32(componentID))
	target, matched := m.GetOrCreateArchetypeID(targetMask, infos)

	m.mu.Lock()
	if existing, ok := m.addEdges.Get(key); ok {
		m.mu.Unlock()
		return existing, matched
	}
	m.addEdges.Put(key, target)
	m.mu.Unlock()
	return target, matched
}

// GetOrCreateWithRemove is the symmetric counterpart of GetOrCreateWithAdd.
func (m *SharedArchetypeMetadata) GetOrCreateWithRemove(archID archetypeID, componentID int32, infos []*TypeInfo) (archetypeID, []int32) {
	key := edgeKey(archID, componentID)

	m.mu.RLock()
	target, ok := m.removeEdges.Get(key)
	m.mu.RUnlock()
	if ok {
		return target, nil
	}

	srcMask := m.Layout(archID).mask
	var targetMask Signature
	targetMask = srcMask
	targetMask.Unmark(uint32(componentID))
	target, matched := m.GetOrCreateArchetypeID(targetMask, infos)

	m.mu.Lock()
	if existing, ok := m.removeEdges.Get(key); ok {
		m.mu.Unlock()
		return existing, matched
	}
	m.removeEdges.Put(key, target)
	m.mu.Unlock()
	return target, matched
}

// GetOrCreateQueryID interns description, scanning every already-known
// archetype for a match on first sight.
func (m *SharedArchetypeMetadata) GetOrCreateQueryID(description QueryDescription) (int32, []archetypeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.queryByDescription[description]; ok {
		return id, m.queryMatches[id]
	}

	id := int32(len(m.queries))
	m.queries = append(m.queries, description)
	m.queryByDescription[description] = id

	var matches []archetypeID
	for archID, layout := range m.idToLayout {
		if description.matches(layout.mask) {
			matches = append(matches, archetypeID(archID))
		}
	}
	m.queryMatches = append(m.queryMatches, matches)
	return id, matches
}

// Shutdown sets the instance's disposed flag. No method of
// SharedArchetypeMetadata checks that flag, so lookups and interning keep
// working after Shutdown. Per spec §5, shutting down a world's shared
// metadata is the caller's explicit responsibility; it is never done
// implicitly by a World's own Shutdown.
func (m *SharedArchetypeMetadata) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}
