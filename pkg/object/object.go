// Package object resolves native handles to typed wrappers. A handle that
// crosses the boundary is never re-owned, only re-wrapped: wrapping binds a
// shell to the existing handle without running any native constructor.
package object

import (
	"github.com/go-loom/loom/pkg/ffi"
)

// Wrapper is a typed shell around a native handle. Two wrappers are the
// same object exactly when their handles are equal; wrapper instance
// identity carries no meaning.
type Wrapper interface {
	Handle() ffi.Handle
	TypeName() string
}

// Constructor binds a handle to a concrete wrapper shell.
type Constructor func(h ffi.Handle) Wrapper

// Base is the generic wrapper used when no more specific constructor is
// registered. Generated bindings embed it.
type Base struct {
	handle   ffi.Handle
	typeName string
}

// NewBase binds a generic wrapper shell to a handle.
func NewBase(h ffi.Handle, typeName string) *Base {
	return &Base{handle: h, typeName: typeName}
}

// Handle returns the wrapped native handle.
func (b *Base) Handle() ffi.Handle { return b.handle }

// TypeName returns the handle's runtime type name as resolved at wrap time.
func (b *Base) TypeName() string { return b.typeName }

// Equal reports whether two wrappers denote the same native object.
func Equal(a, b Wrapper) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Handle() == b.Handle()
}

// Unwrap returns the native handle of w, 0 for nil.
func Unwrap(w Wrapper) ffi.Handle {
	if w == nil {
		return 0
	}
	return w.Handle()
}
