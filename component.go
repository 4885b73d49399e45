package warehouse

import (
	"reflect"
	"sync"

	"github.com/TheBitDrifter/mask"
)

// Signature is a fixed-capacity bitset keyed by component TypeId, used for
// archetype masks, query descriptions, and system read/write sets. It is a
// plain comparable value, usable directly as a map key, the same way the
// teacher keys its archetype-by-mask map with mask.Mask.
type Signature = mask.Mask256

// TypeInfo describes one registered component type. Once assigned, ID never
// changes for the process; Size/Align are taken from Go's own layout rules,
// so an empty ("tag") struct naturally reports Size 0.
type TypeInfo struct {
	ID    int32
	Size  uintptr
	Align uintptr
	rtype reflect.Type
}

// maxComponentID bounds component ids to what a Signature can hold. The
// spec's capacity note calls for an 11-bit component id space; this module
// is bounded instead by mask.Mask256's 256 bits, the widest signature the
// teacher's own bitset package offers.
const maxComponentID = 255

// componentRegistry interns reflect.Type -> TypeInfo, keyed by the type's
// string representation and backed by a SimpleCache (cache.go) the same way
// the teacher's FactoryNewComponent[T] leans on its own cache for type
// bookkeeping. This is the in-module stand-in for the external "component
// registry" collaborator spec.md declares out of scope.
type componentRegistry struct {
	mu    sync.RWMutex
	items Cache[TypeInfo]
}

var globalComponents = &componentRegistry{items: FactoryNewCache[TypeInfo](maxComponentID + 1)}

func (r *componentRegistry) typeInfoFor(t reflect.Type) *TypeInfo {
	key := t.String()

	r.mu.RLock()
	if idx, ok := r.items.GetIndex(key); ok {
		ti := r.items.GetItem(idx)
		r.mu.RUnlock()
		return ti
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.items.GetIndex(key); ok {
		return r.items.GetItem(idx)
	}
	idx, err := r.items.Register(key, TypeInfo{Size: t.Size(), Align: uintptr(t.Align()), rtype: t})
	if err != nil {
		panic(resourceExhausted("component type capacity exceeded (%d types)", maxComponentID+1))
	}
	// The cache's 1-based index doubles as TypeId+1, so a component's bit
	// position in a Signature is stable across the registry's own bookkeeping.
	ti := r.items.GetItem(idx)
	ti.ID = int32(idx - 1)
	return ti
}

func (r *componentRegistry) typeInfoByID(id int32) *TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items.GetItem32(uint32(id) + 1)
}

func typeInfoOf[T any]() *TypeInfo {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return globalComponents.typeInfoFor(t)
}

// Component is the marker interface component payload types are expected to
// satisfy implicitly: plain data, fixed size, trivially copyable. Nothing in
// this module requires a method set on it -- it exists so call sites that
// take "a component type" read clearly.
type Component interface{}

// ComponentType[T] is a typed handle onto a registered component, grounded
// on the teacher's AccessibleComponent[T]/FactoryNewComponent[T] pattern.
// Unlike the teacher's version it carries no storage accessor of its own:
// offsets are archetype-specific, so reads/writes go through World's
// generic GetComponent/SetComponent instead.
type ComponentType[T any] struct {
	info *TypeInfo
}

// RegisterComponentType interns T in the global component registry and
// returns a typed handle onto it. Safe to call repeatedly for the same T;
// it always returns the same TypeId.
func RegisterComponentType[T any]() ComponentType[T] {
	return ComponentType[T]{info: typeInfoOf[T]()}
}

func (c ComponentType[T]) ID() int32 { return c.info.ID }

func (c ComponentType[T]) signatureBit() Signature {
	var s Signature
	s.Mark(uint32(c.info.ID))
	return s
}
