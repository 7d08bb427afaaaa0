// Package meta holds the generated binding metadata the engine treats as
// read-only static data: per-type property tables mapping camelCase prop
// names to getter/setter symbols, combined multi-key properties, default
// props, and constructor derivation. Tables are produced out-of-band by
// the binding generator; this package only stores and serves them.
package meta

import (
	"github.com/go-loom/loom/pkg/ffi"
)

// PropAccess pairs the generated getter and setter symbols for one
// property, with the setter's value type.
type PropAccess struct {
	Getter string
	Setter string
	Type   ffi.Type
}

// CombinedProp merges several camelCase keys into one native call. A
// change in any constituent key issues exactly one call carrying the
// current values of all of them.
type CombinedProp struct {
	Keys   []string
	Setter string
	Types  []ffi.Type
}

// CtorArgsFunc derives non-trivial constructor arguments from props.
// It runs after default props are applied; keys it consumes are excluded
// from the post-construction property pass.
type CtorArgsFunc func(props map[string]any) []ffi.Arg

// ContainerKind names the attachment contract a native container exposes.
type ContainerKind string

const (
	// ContainerNone marks a non-container widget.
	ContainerNone ContainerKind = ""
	// ContainerSingle is a single-child slot (set_child style).
	ContainerSingle ContainerKind = "single"
	// ContainerIndexed is an ordered child list (append/insert-after style).
	ContainerIndexed ContainerKind = "indexed"
	// ContainerPack has independent start and end packed lists.
	ContainerPack ContainerKind = "pack"
	// ContainerPaged is a stacked container with named-page lookup.
	ContainerPaged ContainerKind = "paged"
	// ContainerGrid places children at column/row with spans.
	ContainerGrid ContainerKind = "grid"
	// ContainerVirtual is a virtualized list or grid backed by an
	// item-recycling factory and a list model.
	ContainerVirtual ContainerKind = "virtual"
)

// ContainerSpec describes a type's attachment contract: its kind and the
// generated symbols the matching strategy issues.
type ContainerSpec struct {
	Kind ContainerKind
	// Symbols maps strategy operation names to native symbols, e.g.
	// "append" -> "gtk_box_append".
	Symbols map[string]string
}

// Symbol resolves a strategy operation to its native symbol.
func (c ContainerSpec) Symbol(op string) (string, bool) {
	s, ok := c.Symbols[op]
	return s, ok
}

// TypeTable is the generated metadata for one native type.
type TypeTable struct {
	// Name is the native type name (e.g. "GtkButton").
	Name string
	// Library keys into the registry's library table.
	Library string
	// Ctor is the constructor symbol.
	Ctor string
	// Props maps camelCase prop names to accessor symbols.
	Props map[string]PropAccess
	// Combined lists multi-key properties.
	Combined []CombinedProp
	// Defaults are type-specific default props applied before
	// construction-argument derivation.
	Defaults map[string]any
	// Signals maps event names to their handler argument types.
	Signals map[string][]ffi.Type
	// Container is the attachment contract, zero for plain widgets.
	Container ContainerSpec
	// Present, when set, is the symbol invoked on mount for types whose
	// first-show side effect needs a realized ancestor chain.
	Present string
	// Slots maps slot names (the part after the dot in "Parent.Slot"
	// type names) to the parent's slot setter symbol.
	Slots map[string]string

	// DeriveCtorArgs derives constructor arguments; nil means the
	// constructor takes none.
	DeriveCtorArgs CtorArgsFunc
	// CtorConsumes lists the prop keys consumed by construction.
	CtorConsumes []string
}

// Setter resolves the setter for a prop name; ok is false when the type
// has no generated setter for it.
func (t *TypeTable) Setter(prop string) (PropAccess, bool) {
	access, ok := t.Props[prop]
	return access, ok
}

// CombinedFor returns the combined property containing key, if any.
func (t *TypeTable) CombinedFor(key string) (CombinedProp, bool) {
	for _, c := range t.Combined {
		for _, k := range c.Keys {
			if k == key {
				return c, true
			}
		}
	}
	return CombinedProp{}, false
}

// SignalArgs returns the declared handler argument types for an event.
func (t *TypeTable) SignalArgs(event string) []ffi.Type {
	return t.Signals[event]
}

// ConsumedByCtor reports whether construction consumes the key.
func (t *TypeTable) ConsumedByCtor(key string) bool {
	for _, k := range t.CtorConsumes {
		if k == key {
			return true
		}
	}
	return false
}

// LibraryInfo pins a shared library's sonames and minimum version.
type LibraryInfo struct {
	// Names is the comma-separated soname fallback list.
	Names string
	// MinVersion is the lowest supported toolkit version, semver form.
	MinVersion string
}

// Registry is the process-wide immutable lookup state, populated once at
// startup from generated data and injected into the factory and wrapper
// layers. No module-load-time side effects: initialization order stays
// explicit and testable.
type Registry struct {
	types     map[string]*TypeTable
	libraries map[string]LibraryInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]*TypeTable),
		libraries: make(map[string]LibraryInfo),
	}
}

// RegisterType adds a generated type table.
func (r *Registry) RegisterType(t *TypeTable) {
	r.types[t.Name] = t
}

// RegisterLibrary adds a library pin.
func (r *Registry) RegisterLibrary(name string, info LibraryInfo) {
	r.libraries[name] = info
}

// Type returns the table for a native type name.
func (r *Registry) Type(name string) (*TypeTable, bool) {
	t, ok := r.types[name]
	return t, ok
}

// TypeNames returns the registered native type names, unordered.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// LibraryNames returns the soname fallback list for a library key,
// falling back to the key itself for unpinned libraries.
func (r *Registry) LibraryNames(key string) string {
	if info, ok := r.libraries[key]; ok && info.Names != "" {
		return info.Names
	}
	return key
}

// Library returns the pin for a library key.
func (r *Registry) Library(key string) (LibraryInfo, bool) {
	info, ok := r.libraries[key]
	return info, ok
}
