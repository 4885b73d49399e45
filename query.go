package warehouse

import (
	"sync"

	"github.com/TheBitDrifter/bark"
)

// Query is a snapshot-backed view over every archetype currently matching a
// QueryDescription (spec §4.8). It is registered once per (world-group,
// description) pair via ArchetypeRegistry/SharedArchetypeMetadata; newly
// materialized archetypes that match are pushed in by notify as they
// appear, so a long-lived Query stays current without re-scanning.
type Query struct {
	description QueryDescription

	mu         sync.Mutex
	archetypes []*Archetype
}

func (q *Query) addArchetype(a *Archetype) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.archetypes {
		if existing == a {
			return
		}
	}
	q.archetypes = append(q.archetypes, a)
}

// snapshot returns the matched archetype list as of this call, per spec
// §4.8's "set of archetypes is a snapshot at iterator creation".
func (q *Query) snapshot() []*Archetype {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Archetype, len(q.archetypes))
	copy(out, q.archetypes)
	return out
}

// Count returns the total number of entities across every matched archetype
// at the moment of the call.
func (q *Query) Count() int {
	total := 0
	for _, a := range q.snapshot() {
		total += a.EntityCount()
	}
	return total
}

// QueryBuilder builds a QueryDescription from component ids. Observable
// semantics only (All/None/Any), the same non-goal spec.md applies to
// EntityBuilder: no fluent combinator DSL beyond what's needed to express
// the three-signature filter.
type QueryBuilder struct {
	desc QueryDescription
}

func NewQueryBuilder() *QueryBuilder { return &QueryBuilder{} }

// All requires every id to be present.
func (b *QueryBuilder) All(ids ...int32) *QueryBuilder {
	for _, id := range ids {
		b.desc.All.Mark(uint32(id))
	}
	return b
}

// None excludes every id.
func (b *QueryBuilder) None(ids ...int32) *QueryBuilder {
	for _, id := range ids {
		b.desc.None.Mark(uint32(id))
	}
	return b
}

// Any requires at least one id to be present, if any ids are given at all.
func (b *QueryBuilder) Any(ids ...int32) *QueryBuilder {
	for _, id := range ids {
		b.desc.Any.Mark(uint32(id))
	}
	return b
}

// Build interns the accumulated description against world and returns its
// Query, populated with every archetype already known to match. Panics if
// the same component id was marked both required (All) and excluded
// (None) -- a query that can never match anything, a caller bug rather
// than one of spec.md's modeled runtime preconditions.
func (b *QueryBuilder) Build(w *World) *Query {
	if b.desc.All.ContainsAny(b.desc.None) {
		panic(bark.AddTrace(precondition("query requires and excludes the same component")))
	}
	return w.registry.GetOrCreateQuery(b.desc)
}
