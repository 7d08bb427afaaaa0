// Package errors provides structured error handling for the loom engine.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindSymbol indicates a failed library or symbol resolution.
	KindSymbol
	// KindMarshal indicates a type/value mismatch while building a foreign call.
	KindMarshal
	// KindNative indicates an error reported by the toolkit's own error convention.
	KindNative
	// KindNode indicates a node creation or lifecycle error.
	KindNode
	// KindCapability indicates a parent/child pairing without an attachment capability.
	KindCapability
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindMarshal:
		return "marshal"
	case KindNative:
		return "native"
	case KindNode:
		return "node"
	case KindCapability:
		return "capability"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// LoomError represents a structured error in the loom engine.
type LoomError struct {
	// Op is the operation that failed (e.g., "ffi.Invoke").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *LoomError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *LoomError) Unwrap() error {
	return e.Err
}

// SymbolError reports a library or exported symbol that could not be
// resolved. It indicates a binding/version mismatch and is never retried.
type SymbolError struct {
	// Library is the shared-library identifier passed to the call.
	Library string
	// Symbol is the exported function name, empty if the library itself failed to load.
	Symbol string
	// Err is the loader's underlying error.
	Err error
}

func (e *SymbolError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("cannot load library %q: %v", e.Library, e.Err)
	}
	return fmt.Sprintf("cannot resolve symbol %q in %q: %v", e.Symbol, e.Library, e.Err)
}

func (e *SymbolError) Unwrap() error {
	return e.Err
}

// MarshalError reports a malformed call descriptor: wrong arity, a value
// that does not fit its declared type, or an unsupported type combination.
// It is a programmer error and is surfaced, never retried.
type MarshalError struct {
	// Symbol is the call target, for diagnostics.
	Symbol string
	// Index is the argument position, or -1 for the call as a whole.
	Index int
	// Reason describes the mismatch.
	Reason string
}

func (e *MarshalError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("marshal %s: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("marshal %s: arg %d: %s", e.Symbol, e.Index, e.Reason)
}

// NativeError carries an error reported through the toolkit's error-object
// convention. It is translated, never swallowed.
type NativeError struct {
	// Domain is the native error domain.
	Domain uint32
	// Code is the domain-specific error code.
	Code int32
	// Message is the native error message.
	Message string
	// Symbol is the foreign call that produced the error.
	Symbol string
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s: native error domain=%d code=%d: %s", e.Symbol, e.Domain, e.Code, e.Message)
}

// UnknownNodeTypeError reports an element type name no node class claims.
type UnknownNodeTypeError struct {
	// TypeName is the virtual element's type tag.
	TypeName string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type %q", e.TypeName)
}

// MissingCapabilityError reports a parent/child pairing for which no
// attachment capability applies.
type MissingCapabilityError struct {
	// ParentType is the parent node's type name.
	ParentType string
	// ChildType is the child node's type name.
	ChildType string
	// Op is the attempted operation (appendChild, insertBefore, removeChild).
	Op string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("%s: no attachment capability for child %q in parent %q", e.Op, e.ChildType, e.ParentType)
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "node.Unmount").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}
