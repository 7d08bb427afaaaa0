// Package ffi encodes foreign type information and performs the foreign
// calls that mutate the native widget tree. It is the only place where
// process-external state changes.
//
// Libraries are loaded dynamically, so the package compiles and tests
// without the toolkit installed; anything above the call boundary talks to
// the Invoker interface instead of the concrete Engine.
package ffi

import "fmt"

// Handle is an opaque pointer to a native object. Handles are compared by
// identity and never re-owned by this layer, only re-wrapped.
type Handle uintptr

// IsNil reports whether the handle is the null pointer.
func (h Handle) IsNil() bool { return h == 0 }

// Kind tags a Type variant.
type Kind uint8

const (
	// KindVoid is the absent return type. Calls returning KindVoid are the
	// only calls eligible for batching.
	KindVoid Kind = iota
	// KindNull marshals as a null pointer.
	KindNull
	// KindBool marshals as the toolkit's 32-bit boolean.
	KindBool
	// KindInt covers all integer widths and signedness.
	KindInt
	// KindFloat covers 32- and 64-bit floats.
	KindFloat
	// KindString is a NUL-terminated string with ownership annotation.
	KindString
	// KindObject is a reference-counted native object handle.
	KindObject
	// KindBoxed is a heap-allocated value type identified by type name.
	KindBoxed
	// KindArray is a contiguous buffer or a native linked list of items.
	KindArray
	// KindRef wraps an in/out slot read back after the call.
	KindRef
	// KindCallback bridges a Go function into a native function pointer.
	KindCallback
	// KindErrorOut is the toolkit's error-object out-parameter convention.
	KindErrorOut
	// KindCallbackData marshals to the registration id of the callback
	// argument in the same call, for user-data parameters.
	KindCallbackData
)

// ListKind selects the native representation of an array argument.
type ListKind uint8

const (
	// ListNone marshals items into one contiguous buffer.
	ListNone ListKind = iota
	// ListSingly builds a singly linked native list.
	ListSingly
	// ListDoubly builds a doubly linked native list.
	ListDoubly
)

// Trampoline selects the calling convention bridged by a callback.
type Trampoline uint8

const (
	// TrampolineClosure is the signal-handler convention. Handlers are
	// connected swapped so user data arrives first regardless of arity.
	TrampolineClosure Trampoline = iota
	// TrampolineAsyncReady is the async-completion convention.
	TrampolineAsyncReady
	// TrampolineDestroy is the cleanup-notify convention.
	TrampolineDestroy
	// TrampolineDrawFunc is the drawing-callback convention.
	TrampolineDrawFunc
)

// Type describes one value crossing the foreign boundary. It is a closed
// tagged variant; only the fields relevant to Kind are set. The Borrowed
// flag decides whether the marshaling layer must release the value after
// the call or is forbidden to.
type Type struct {
	Kind     Kind
	Width    int  // bits, for KindInt and KindFloat
	Signed   bool // for KindInt
	Borrowed bool // for KindString, KindObject, KindBoxed, KindArray

	// Name is the boxed type name, for KindBoxed.
	Name string
	// Item is the element type, for KindArray.
	Item *Type
	// List selects contiguous or linked marshaling, for KindArray.
	List ListKind
	// Inner is the pointee type, for KindRef.
	Inner *Type
	// Tramp, Args and Return describe a KindCallback.
	Tramp  Trampoline
	Args   []Type
	Return *Type
}

func (t Type) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		sign := "u"
		if t.Signed {
			sign = "i"
		}
		return fmt.Sprintf("%s%d", sign, t.Width)
	case KindFloat:
		return fmt.Sprintf("f%d", t.Width)
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindBoxed:
		return "boxed:" + t.Name
	case KindArray:
		return "array:" + t.Item.String()
	case KindRef:
		return "ref:" + t.Inner.String()
	case KindCallback:
		return "callback"
	case KindErrorOut:
		return "error-out"
	case KindCallbackData:
		return "callback-data"
	default:
		return "invalid"
	}
}

// Void returns the absent return type.
func Void() Type { return Type{Kind: KindVoid} }

// Null returns the null-pointer type.
func Null() Type { return Type{Kind: KindNull} }

// Bool returns the native boolean type.
func Bool() Type { return Type{Kind: KindBool} }

// Int8 returns a signed 8-bit integer type.
func Int8() Type { return Type{Kind: KindInt, Width: 8, Signed: true} }

// Uint8 returns an unsigned 8-bit integer type.
func Uint8() Type { return Type{Kind: KindInt, Width: 8} }

// Int16 returns a signed 16-bit integer type.
func Int16() Type { return Type{Kind: KindInt, Width: 16, Signed: true} }

// Uint16 returns an unsigned 16-bit integer type.
func Uint16() Type { return Type{Kind: KindInt, Width: 16} }

// Int32 returns a signed 32-bit integer type.
func Int32() Type { return Type{Kind: KindInt, Width: 32, Signed: true} }

// Uint32 returns an unsigned 32-bit integer type.
func Uint32() Type { return Type{Kind: KindInt, Width: 32} }

// Int64 returns a signed 64-bit integer type.
func Int64() Type { return Type{Kind: KindInt, Width: 64, Signed: true} }

// Uint64 returns an unsigned 64-bit integer type.
func Uint64() Type { return Type{Kind: KindInt, Width: 64} }

// Float32 returns the 32-bit float type.
func Float32() Type { return Type{Kind: KindFloat, Width: 32} }

// Float64 returns the 64-bit float type.
func Float64() Type { return Type{Kind: KindFloat, Width: 64} }

// String returns the string type. Borrowed strings stay owned by the
// caller; otherwise the marshaler duplicates into callee-owned memory.
func String(borrowed bool) Type { return Type{Kind: KindString, Borrowed: borrowed} }

// Object returns the object-handle type. A non-borrowed argument has its
// reference count incremented before the call.
func Object(borrowed bool) Type { return Type{Kind: KindObject, Borrowed: borrowed} }

// Boxed returns a boxed value type identified by its native type name.
func Boxed(name string, borrowed bool) Type {
	return Type{Kind: KindBoxed, Name: name, Borrowed: borrowed}
}

// Array returns an array type marshaled contiguously or as a linked list.
func Array(item Type, list ListKind, borrowed bool) Type {
	return Type{Kind: KindArray, Item: &item, List: list, Borrowed: borrowed}
}

// Ref returns an in/out parameter type. The argument value must be an
// *Out; the slot's final value is written into it after the call.
func Ref(inner Type) Type { return Type{Kind: KindRef, Inner: &inner} }

// Callback returns a callback type bridged through the given trampoline.
func Callback(tramp Trampoline, args []Type, ret Type) Type {
	return Type{Kind: KindCallback, Tramp: tramp, Args: args, Return: &ret}
}

// ErrorOut returns the error-object out-parameter type. At most one per
// call; a non-null slot after the call becomes a NativeError.
func ErrorOut() Type { return Type{Kind: KindErrorOut} }

// CallbackData returns the user-data type paired with a callback argument.
// It marshals to the id under which the call's callback was registered, so
// the trampoline can find the Go function again.
func CallbackData() Type { return Type{Kind: KindCallbackData} }

// Out is the caller-supplied mutable cell for a Ref argument.
type Out struct {
	Value any
}

// CallbackFunc is the Go side of a callback trampoline. Arguments arrive
// demarshaled per the callback's declared argument types. A trampoline
// invocation is a fresh top-level entry into the engine: it may open
// batches and touch the subscription store.
type CallbackFunc func(args []any) any

// Arg pairs exactly one type descriptor with exactly one argument value.
type Arg struct {
	Type  Type
	Value any
}

// Call describes a single foreign invocation. It is immutable once
// constructed and consumed exactly once, immediately or batched.
type Call struct {
	// Library is an opaque shared-library identifier. Comma-separated
	// alternatives are tried in order.
	Library string
	// Symbol is the exported function name.
	Symbol string
	Args   []Arg
	Return Type
}
