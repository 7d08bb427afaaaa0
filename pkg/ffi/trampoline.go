package ffi

import (
	"sync"

	"github.com/ebitengine/purego"
)

// Callback trampolines bridge foreign code back into Go. One native
// function pointer exists per calling convention; individual Go callbacks
// are found through the user-data word, which carries a registration id.
//
// Signal-style closures are connected with the toolkit's "swapped" flag so
// user data arrives as the first argument regardless of the signal's arity;
// the other conventions define a fixed user-data position.
//
// Registry access happens only on the main-loop goroutine: registration
// during marshaling, lookup during a re-entrant trampoline dispatch.

type registeredCallback struct {
	fn   CallbackFunc
	args []Type
	ret  Type
	once bool // unregister after first dispatch (async-ready)
}

var callbackReg = struct {
	next  uintptr
	funcs map[uintptr]*registeredCallback
}{next: 1, funcs: make(map[uintptr]*registeredCallback)}

// registerCallback stores a Go callback and returns its id.
func registerCallback(fn CallbackFunc, t Type) uintptr {
	id := callbackReg.next
	callbackReg.next++
	ret := Void()
	if t.Return != nil {
		ret = *t.Return
	}
	callbackReg.funcs[id] = &registeredCallback{
		fn:   fn,
		args: t.Args,
		ret:  ret,
		once: t.Tramp == TrampolineAsyncReady,
	}
	return id
}

func unregisterCallback(id uintptr) {
	delete(callbackReg.funcs, id)
}

// registeredCallbackCount reports live registrations, for leak tests.
func registeredCallbackCount() int {
	return len(callbackReg.funcs)
}

// dispatchCallback demarshals the raw argument words, runs the Go
// callback, and marshals its result back to one word.
func dispatchCallback(id uintptr, raw []uintptr) uintptr {
	cb, ok := callbackReg.funcs[id]
	if !ok {
		return 0
	}
	if cb.once {
		unregisterCallback(id)
	}

	args := make([]any, len(cb.args))
	for i := range cb.args {
		if i >= len(raw) {
			break
		}
		args[i] = demarshalWord(cb.args[i], raw[i])
	}

	result := cb.fn(args)
	return marshalWord(cb.ret, result)
}

// demarshalWord converts one raw argument word per its declared type.
// Callback arguments are limited to word-sized types; the toolkit's signal
// conventions pass everything wider by pointer.
func demarshalWord(t Type, w uintptr) any {
	switch t.Kind {
	case KindBool:
		return w != 0
	case KindInt:
		if t.Signed {
			switch t.Width {
			case 8:
				return int64(int8(w))
			case 16:
				return int64(int16(w))
			case 32:
				return int64(int32(w))
			default:
				return int64(w)
			}
		}
		switch t.Width {
		case 8:
			return uint64(uint8(w))
		case 16:
			return uint64(uint16(w))
		case 32:
			return uint64(uint32(w))
		default:
			return uint64(w)
		}
	case KindString:
		return goString(w)
	case KindObject, KindBoxed:
		return Handle(w)
	case KindNull, KindVoid:
		return nil
	default:
		return w
	}
}

// marshalWord converts a callback's Go return value to one word.
func marshalWord(t Type, v any) uintptr {
	switch t.Kind {
	case KindVoid, KindNull:
		return 0
	case KindBool:
		if b, ok := v.(bool); ok && b {
			return 1
		}
		return 0
	case KindInt:
		i, _ := coerceInt(v)
		return uintptr(i)
	case KindObject, KindBoxed:
		if h, ok := v.(Handle); ok {
			return uintptr(h)
		}
		return 0
	default:
		return 0
	}
}

var (
	// closureAddr: user data first (swapped connection), then up to six
	// signal arguments. Unused trailing words are garbage and ignored.
	closureAddr = sync.OnceValue(func() uintptr {
		return purego.NewCallback(func(data, a1, a2, a3, a4, a5, a6 uintptr) uintptr {
			return dispatchCallback(data, []uintptr{a1, a2, a3, a4, a5, a6})
		})
	})

	// asyncReadyAddr: (source, result, data).
	asyncReadyAddr = sync.OnceValue(func() uintptr {
		return purego.NewCallback(func(source, result, data uintptr) uintptr {
			return dispatchCallback(data, []uintptr{source, result})
		})
	})

	// destroyAddr: (data). Unregisters the callback id it is invoked with.
	destroyAddr = sync.OnceValue(func() uintptr {
		return purego.NewCallback(func(data uintptr) uintptr {
			unregisterCallback(data)
			return 0
		})
	})

	// drawFuncAddr: (area, context, width, height, data).
	drawFuncAddr = sync.OnceValue(func() uintptr {
		return purego.NewCallback(func(area, cr, width, height, data uintptr) uintptr {
			return dispatchCallback(data, []uintptr{area, cr, width, height})
		})
	})
)

// trampolineAddr returns the shared native entry point for a convention.
func trampolineAddr(t Trampoline) uintptr {
	switch t {
	case TrampolineAsyncReady:
		return asyncReadyAddr()
	case TrampolineDestroy:
		return destroyAddr()
	case TrampolineDrawFunc:
		return drawFuncAddr()
	default:
		return closureAddr()
	}
}

// DestroyNotify returns the native cleanup-notify entry point. Passing it
// alongside a callback lets the toolkit retire the registration when it
// drops the closure.
func DestroyNotify() uintptr {
	return destroyAddr()
}
