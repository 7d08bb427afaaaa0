package object

import (
	"github.com/go-loom/loom/pkg/ffi"
)

const typeLibrary = "libgobject-2.0.so.0,libgobject-2.0.dylib"

// Registry maps native type names to wrapper constructors. It is built
// once during initialization from generated binding data and injected into
// the layers that need it; there is no module-load-time registration.
type Registry struct {
	inv      ffi.Invoker
	wrappers map[string]Constructor
}

// NewRegistry creates an empty registry over the given call boundary.
func NewRegistry(inv ffi.Invoker) *Registry {
	return &Registry{
		inv:      inv,
		wrappers: make(map[string]Constructor),
	}
}

// RegisterWrapper binds a constructor to an exact native type name.
func (r *Registry) RegisterWrapper(typeName string, ctor Constructor) {
	r.wrappers[typeName] = ctor
}

// Wrap resolves the handle's most specific runtime type and produces a
// typed wrapper for it. A null handle wraps to nil: absence is a valid,
// expected case for optional references, not an error.
//
// Resolution asks the native type system for the instance's exact type
// name, then walks the ancestry chain toward the root until a registered
// constructor matches (closest-ancestor policy). With no match anywhere, a
// generic wrapper shell is returned.
func (r *Registry) Wrap(h ffi.Handle) Wrapper {
	if h.IsNil() {
		return nil
	}

	exact := r.typeNameOf(h)
	if ctor, ok := r.wrappers[exact]; ok {
		return ctor(h)
	}
	for gtype := r.typeFromName(exact); gtype != 0; {
		gtype = r.typeParent(gtype)
		if gtype == 0 {
			break
		}
		name := r.typeName(gtype)
		if name == "" {
			break
		}
		if ctor, ok := r.wrappers[name]; ok {
			return ctor(h)
		}
	}
	return NewBase(h, exact)
}

// typeNameOf queries the runtime type name of an instance.
func (r *Registry) typeNameOf(h ffi.Handle) string {
	out, err := r.inv.Invoke(ffi.Call{
		Library: typeLibrary,
		Symbol:  "g_type_name_from_instance",
		Args:    []ffi.Arg{{Type: ffi.Object(true), Value: h}},
		Return:  ffi.String(true),
	})
	if err != nil {
		return ""
	}
	name, _ := out.(string)
	return name
}

func (r *Registry) typeFromName(name string) uint64 {
	out, err := r.inv.Invoke(ffi.Call{
		Library: typeLibrary,
		Symbol:  "g_type_from_name",
		Args:    []ffi.Arg{{Type: ffi.String(true), Value: name}},
		Return:  ffi.Uint64(),
	})
	if err != nil {
		return 0
	}
	gtype, _ := out.(uint64)
	return gtype
}

func (r *Registry) typeParent(gtype uint64) uint64 {
	out, err := r.inv.Invoke(ffi.Call{
		Library: typeLibrary,
		Symbol:  "g_type_parent",
		Args:    []ffi.Arg{{Type: ffi.Uint64(), Value: gtype}},
		Return:  ffi.Uint64(),
	})
	if err != nil {
		return 0
	}
	parent, _ := out.(uint64)
	return parent
}

func (r *Registry) typeName(gtype uint64) string {
	out, err := r.inv.Invoke(ffi.Call{
		Library: typeLibrary,
		Symbol:  "g_type_name",
		Args:    []ffi.Arg{{Type: ffi.Uint64(), Value: gtype}},
		Return:  ffi.String(true),
	})
	if err != nil {
		return ""
	}
	name, _ := out.(string)
	return name
}
