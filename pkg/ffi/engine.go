package ffi

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/go-loom/loom/pkg/errors"
)

// Invoker is the foreign call boundary as seen by the rest of the engine.
// The Engine is the production implementation; tests substitute a recorder.
type Invoker interface {
	// Invoke performs one foreign call, or queues it when a batch is open
	// and the call returns no value.
	Invoke(call Call) (any, error)
	// InvokeBatched performs a group of queued calls in order.
	InvokeBatched(calls []Call) error
	// BeginBatch opens a nested batch scope.
	BeginBatch()
	// EndBatch closes the innermost batch scope and flushes its queue.
	EndBatch() error
	// RunBatched brackets fn in a batch scope, closing it even on error.
	RunBatched(fn func() error) error
}

// Tracer observes executed calls. Implemented by pkg/trace.
type Tracer interface {
	Record(call Call, batched bool)
}

// Support libraries for marshaling side calls (string duplication, list
// building, reference counting, error release).
const (
	glibLibrary = "libglib-2.0.so.0,libglib-2.0.dylib"

	// GObjectLibrary is the soname list for the object system. Every layer
	// that refs, sinks, unrefs, or connects signals resolves through it.
	GObjectLibrary = "libgobject-2.0.so.0,libgobject-2.0.dylib"
)

// Engine marshals values across the foreign boundary and performs calls
// through dynamically resolved symbols. It is stateless beyond the loader
// caches and the batching stack, and is confined to the main-loop
// goroutine.
type Engine struct {
	loader  *Loader
	batcher *Batcher
	stubs   map[stubKey]reflect.Value

	// Tracer, when set, observes every executed call.
	Tracer Tracer
}

type stubKey struct {
	addr uintptr
	sig  string
}

// NewEngine creates an engine with an empty loader.
func NewEngine() *Engine {
	return &Engine{
		loader:  NewLoader(),
		batcher: NewBatcher(),
		stubs:   make(map[stubKey]reflect.Value),
	}
}

// Loader exposes the library/symbol cache.
func (e *Engine) Loader() *Loader { return e.loader }

// Invoke performs one foreign call. While a batch is open, calls whose
// return type is void are queued for the grouped flush instead; calls whose
// result is consumed synchronously always execute immediately.
func (e *Engine) Invoke(call Call) (any, error) {
	if e.batcher.Active() && call.Return.Kind == KindVoid {
		e.batcher.enqueue(call)
		return nil, nil
	}
	return e.exec(call, false)
}

// InvokeBatched performs a group of calls in order, as one flush.
func (e *Engine) InvokeBatched(calls []Call) error {
	for _, call := range calls {
		if _, err := e.exec(call, true); err != nil {
			return err
		}
	}
	return nil
}

// BeginBatch opens a nested batch scope.
func (e *Engine) BeginBatch() { e.batcher.Begin() }

// EndBatch closes the innermost batch scope and flushes its queue.
func (e *Engine) EndBatch() error {
	queue := e.batcher.End()
	if len(queue) == 0 {
		return nil
	}
	return e.InvokeBatched(queue)
}

// RunBatched brackets fn in a batch scope. The scope closes and flushes
// even when fn returns an error or panics; fn's error wins over a flush
// error.
func (e *Engine) RunBatched(fn func() error) error {
	e.BeginBatch()
	flushed := false
	defer func() {
		if !flushed {
			e.EndBatch()
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	flushed = true
	return e.EndBatch()
}

// callFrame accumulates the marshaled state of one call.
type callFrame struct {
	in          []reflect.Value
	inTypes     []reflect.Type
	post        []func() error // out-slot readbacks, error-object check
	release     []func()       // post-call frees for borrowed temporaries
	abort       []func()       // failure-only frees for callee-bound values
	keep        []any          // Go memory that must outlive the call
	callbackIDs []uintptr
}

// discard unwinds a frame whose call never completed: callback
// registrations come back out of the registry, borrowed temporaries are
// released, and callee-bound values the callee never received are freed.
func (f *callFrame) discard() {
	for _, id := range f.callbackIDs {
		unregisterCallback(id)
	}
	for _, fn := range f.release {
		fn()
	}
	for _, fn := range f.abort {
		fn()
	}
}

// marshalFrame registers callbacks and marshals every argument. On error
// the partial frame has already been discarded.
func (e *Engine) marshalFrame(call Call) (*callFrame, error) {
	frame := &callFrame{}

	// Callbacks register first so a later user-data argument can refer to
	// the registration id.
	for _, arg := range call.Args {
		if arg.Type.Kind != KindCallback || arg.Value == nil {
			continue
		}
		fn, ok := arg.Value.(CallbackFunc)
		if !ok {
			frame.discard()
			return nil, &errors.MarshalError{Symbol: call.Symbol, Index: -1,
				Reason: fmt.Sprintf("callback value is %T, want CallbackFunc", arg.Value)}
		}
		frame.callbackIDs = append(frame.callbackIDs, registerCallback(fn, arg.Type))
	}

	for i, arg := range call.Args {
		if err := e.marshalArg(call.Symbol, i, arg, frame); err != nil {
			frame.discard()
			return nil, err
		}
	}
	return frame, nil
}

// exec resolves, marshals, and performs one call.
func (e *Engine) exec(call Call, batched bool) (any, error) {
	addr, err := e.loader.Symbol(call.Library, call.Symbol)
	if err != nil {
		return nil, err
	}

	frame, err := e.marshalFrame(call)
	if err != nil {
		return nil, err
	}

	out, err := e.callStub(addr, call, frame)
	if err != nil {
		frame.discard()
		return nil, err
	}
	runtime.KeepAlive(frame.keep)

	for _, fn := range frame.release {
		fn()
	}
	// The error-object check runs before ref readbacks so a failed call
	// surfaces as the native error, not as garbage out-values.
	for _, fn := range frame.post {
		if err := fn(); err != nil {
			return nil, err
		}
	}

	if e.Tracer != nil {
		e.Tracer.Record(call, batched)
	}
	return e.demarshalReturn(call.Return, out)
}

// callStub performs the call through a cached reflect-built stub.
func (e *Engine) callStub(addr uintptr, call Call, frame *callFrame) (uintptr, error) {
	var outTypes []reflect.Type
	retABI, err := goABIType(call.Return)
	if call.Return.Kind != KindVoid {
		if err != nil {
			return 0, &errors.MarshalError{Symbol: call.Symbol, Index: -1,
				Reason: "unsupported return type " + call.Return.String()}
		}
		outTypes = []reflect.Type{retABI}
	}

	key := stubKey{addr: addr, sig: signature(frame.inTypes, outTypes)}
	stub, ok := e.stubs[key]
	if !ok {
		fnType := reflect.FuncOf(frame.inTypes, outTypes, false)
		fnPtr := reflect.New(fnType)
		purego.RegisterFunc(fnPtr.Interface(), addr)
		stub = fnPtr.Elem()
		e.stubs[key] = stub
	}

	results := stub.Call(frame.in)
	if len(results) == 0 {
		return 0, nil
	}
	return resultWord(results[0]), nil
}

func signature(in, out []reflect.Type) string {
	var sb strings.Builder
	for _, t := range in {
		sb.WriteString(t.String())
		sb.WriteByte(',')
	}
	sb.WriteByte(':')
	for _, t := range out {
		sb.WriteString(t.String())
	}
	return sb.String()
}

// resultWord flattens a stub result to one word; floats keep their bits.
func resultWord(v reflect.Value) uintptr {
	switch v.Kind() {
	case reflect.Float32:
		return uintptr(floatBits32(float32(v.Float())))
	case reflect.Float64:
		return uintptr(floatBits64(v.Float()))
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return uintptr(v.Int())
	default:
		return uintptr(v.Uint())
	}
}

// marshalArg converts one (type, value) pair into a stub argument and any
// post-call work it implies.
func (e *Engine) marshalArg(symbol string, index int, arg Arg, frame *callFrame) error {
	fail := func(format string, a ...any) error {
		return &errors.MarshalError{Symbol: symbol, Index: index, Reason: fmt.Sprintf(format, a...)}
	}

	abi, err := goABIType(arg.Type)
	if err != nil {
		return fail("%v", err)
	}
	word := func(p uintptr) {
		frame.inTypes = append(frame.inTypes, abi)
		frame.in = append(frame.in, reflect.ValueOf(p))
	}

	switch arg.Type.Kind {
	case KindNull:
		word(0)

	case KindBool:
		b, ok := arg.Value.(bool)
		if !ok {
			return fail("value is %T, want bool", arg.Value)
		}
		v := reflect.New(abi).Elem()
		if b {
			v.SetInt(1)
		}
		frame.inTypes = append(frame.inTypes, abi)
		frame.in = append(frame.in, v)

	case KindInt:
		n, ok := coerceInt(arg.Value)
		if !ok {
			return fail("value is %T, want integer", arg.Value)
		}
		v := reflect.New(abi).Elem()
		if arg.Type.Signed {
			v.SetInt(n)
		} else {
			v.SetUint(uint64(n))
		}
		frame.inTypes = append(frame.inTypes, abi)
		frame.in = append(frame.in, v)

	case KindFloat:
		f, ok := coerceFloat(arg.Value)
		if !ok {
			return fail("value is %T, want float", arg.Value)
		}
		v := reflect.New(abi).Elem()
		v.SetFloat(f)
		frame.inTypes = append(frame.inTypes, abi)
		frame.in = append(frame.in, v)

	case KindString:
		if arg.Value == nil {
			word(0)
			break
		}
		s, ok := arg.Value.(string)
		if !ok {
			return fail("value is %T, want string", arg.Value)
		}
		if arg.Type.Borrowed {
			buf := cBytes(s)
			frame.keep = append(frame.keep, buf)
			word(bytesAddr(buf))
		} else {
			// Transfer-full: duplicate into callee-owned memory; freeing
			// it after a completed call is forbidden.
			dup, err := e.strdup(s)
			if err != nil {
				return err
			}
			frame.abort = append(frame.abort, func() { e.free(dup) })
			word(uintptr(dup))
		}

	case KindObject:
		h, ok := coerceHandle(arg.Value)
		if !ok {
			return fail("value is %T, want Handle", arg.Value)
		}
		if !arg.Type.Borrowed && !h.IsNil() {
			// Callee takes a reference of its own.
			if err := e.objectRef(h); err != nil {
				return err
			}
			frame.abort = append(frame.abort, func() { e.objectUnref(h) })
		}
		word(uintptr(h))

	case KindBoxed:
		h, ok := coerceHandle(arg.Value)
		if !ok {
			return fail("value is %T, want Handle", arg.Value)
		}
		word(uintptr(h))

	case KindArray:
		p, err := e.marshalArray(symbol, index, arg, frame)
		if err != nil {
			return err
		}
		word(p)

	case KindRef:
		out, ok := arg.Value.(*Out)
		if !ok {
			return fail("value is %T, want *Out", arg.Value)
		}
		slot := new(uint64)
		if out.Value != nil {
			w, err := refSlotWord(*arg.Type.Inner, out.Value)
			if err != nil {
				return fail("%v", err)
			}
			*slot = w
		}
		frame.keep = append(frame.keep, slot)
		inner := *arg.Type.Inner
		frame.post = append(frame.post, func() error {
			out.Value = readRefSlot(e, inner, *slot)
			return nil
		})
		word(uintptr(unsafe.Pointer(slot)))

	case KindErrorOut:
		slot := new(uintptr)
		frame.keep = append(frame.keep, slot)
		frame.post = append(frame.post, func() error {
			if *slot == 0 {
				return nil
			}
			domain, code, message := readGError(*slot)
			e.errorFree(Handle(*slot))
			return &errors.NativeError{Domain: domain, Code: code, Message: message, Symbol: symbol}
		})
		word(uintptr(unsafe.Pointer(slot)))

	case KindCallback:
		if arg.Value == nil {
			word(0)
			break
		}
		if _, ok := arg.Value.(CallbackFunc); !ok {
			return fail("value is %T, want CallbackFunc", arg.Value)
		}
		word(trampolineAddr(arg.Type.Tramp))

	case KindCallbackData:
		// User data carries the id of the most recently registered callback.
		var id uintptr
		if n := len(frame.callbackIDs); n > 0 {
			id = frame.callbackIDs[n-1]
		}
		word(id)

	default:
		return fail("type %s is not a valid argument type", arg.Type)
	}
	return nil
}

// marshalArray builds a contiguous buffer or a native linked list.
func (e *Engine) marshalArray(symbol string, index int, arg Arg, frame *callFrame) (uintptr, error) {
	fail := func(format string, a ...any) error {
		return &errors.MarshalError{Symbol: symbol, Index: index, Reason: fmt.Sprintf(format, a...)}
	}
	item := *arg.Type.Item

	n, ok := sliceLen(arg.Value)
	if !ok {
		if arg.Value == nil {
			return 0, nil
		}
		return 0, fail("value is %T, want a slice", arg.Value)
	}

	if arg.Type.List != ListNone {
		return e.marshalList(symbol, index, arg, n, frame)
	}

	switch item.Kind {
	case KindInt, KindFloat, KindBool:
		abi, err := goABIType(item)
		if err != nil {
			return 0, fail("%v", err)
		}
		buf := reflect.MakeSlice(reflect.SliceOf(abi), n, n)
		for i := 0; i < n; i++ {
			el := buf.Index(i)
			v := sliceIndex(arg.Value, i)
			switch item.Kind {
			case KindBool:
				if b, ok := v.(bool); ok && b {
					el.SetInt(1)
				}
			case KindInt:
				iv, ok := coerceInt(v)
				if !ok {
					return 0, fail("item %d is %T, want integer", i, v)
				}
				if item.Signed {
					el.SetInt(iv)
				} else {
					el.SetUint(uint64(iv))
				}
			case KindFloat:
				fv, ok := coerceFloat(v)
				if !ok {
					return 0, fail("item %d is %T, want float", i, v)
				}
				el.SetFloat(fv)
			}
		}
		if n == 0 {
			return 0, nil
		}
		frame.keep = append(frame.keep, buf.Interface())
		return buf.Pointer(), nil

	case KindString:
		// NUL-terminated pointer vector, itself NULL-terminated.
		ptrs := make([]uintptr, n+1)
		for i := 0; i < n; i++ {
			s, ok := sliceIndex(arg.Value, i).(string)
			if !ok {
				return 0, fail("item %d is %T, want string", i, sliceIndex(arg.Value, i))
			}
			if item.Borrowed {
				buf := cBytes(s)
				frame.keep = append(frame.keep, buf)
				ptrs[i] = bytesAddr(buf)
			} else {
				dup, err := e.strdup(s)
				if err != nil {
					return 0, err
				}
				frame.abort = append(frame.abort, func() { e.free(dup) })
				ptrs[i] = uintptr(dup)
			}
		}
		frame.keep = append(frame.keep, ptrs)
		return uintptr(unsafe.Pointer(&ptrs[0])), nil

	case KindObject, KindBoxed:
		ptrs := make([]uintptr, n+1)
		for i := 0; i < n; i++ {
			h, ok := coerceHandle(sliceIndex(arg.Value, i))
			if !ok {
				return 0, fail("item %d is %T, want Handle", i, sliceIndex(arg.Value, i))
			}
			ptrs[i] = uintptr(h)
		}
		frame.keep = append(frame.keep, ptrs)
		return uintptr(unsafe.Pointer(&ptrs[0])), nil

	default:
		return 0, fail("array item type %s is unsupported", item)
	}
}

// marshalList builds a native linked list by calling the toolkit's own
// list constructors through this engine.
func (e *Engine) marshalList(symbol string, index int, arg Arg, n int, frame *callFrame) (uintptr, error) {
	fail := func(format string, a ...any) error {
		return &errors.MarshalError{Symbol: symbol, Index: index, Reason: fmt.Sprintf(format, a...)}
	}
	item := *arg.Type.Item

	appendSym, freeSym := "g_list_append", "g_list_free"
	if arg.Type.List == ListSingly {
		appendSym, freeSym = "g_slist_append", "g_slist_free"
	}

	list := Handle(0)
	// freeCells releases the container cells only; item data is owned per
	// the item type's transfer mode.
	freeCells := func() {
		if list.IsNil() {
			return
		}
		e.exec(Call{
			Library: glibLibrary,
			Symbol:  freeSym,
			Args:    []Arg{{Type: Boxed("GList", true), Value: list}},
			Return:  Void(),
		}, false)
	}
	for i := 0; i < n; i++ {
		v := sliceIndex(arg.Value, i)
		var w Handle
		switch item.Kind {
		case KindString:
			s, ok := v.(string)
			if !ok {
				freeCells()
				return 0, fail("item %d is %T, want string", i, v)
			}
			if item.Borrowed {
				buf := cBytes(s)
				frame.keep = append(frame.keep, buf)
				w = Handle(bytesAddr(buf))
			} else {
				dup, err := e.strdup(s)
				if err != nil {
					freeCells()
					return 0, err
				}
				frame.abort = append(frame.abort, func() { e.free(dup) })
				w = dup
			}
		case KindObject, KindBoxed:
			h, ok := coerceHandle(v)
			if !ok {
				freeCells()
				return 0, fail("item %d is %T, want Handle", i, v)
			}
			w = h
		case KindInt:
			iv, ok := coerceInt(v)
			if !ok {
				freeCells()
				return 0, fail("item %d is %T, want integer", i, v)
			}
			w = Handle(iv)
		default:
			freeCells()
			return 0, fail("list item type %s is unsupported", item)
		}

		out, err := e.exec(Call{
			Library: glibLibrary,
			Symbol:  appendSym,
			Args: []Arg{
				{Type: Boxed("GList", true), Value: list},
				{Type: Boxed("gpointer", true), Value: w},
			},
			Return: Boxed("GList", true),
		}, false)
		if err != nil {
			freeCells()
			return 0, err
		}
		list = out.(Handle)
	}

	if arg.Type.Borrowed {
		// Callee only borrows the list; the container is ours to free.
		frame.release = append(frame.release, freeCells)
	} else {
		// Callee owns the cells once the call completes; reclaim them only
		// when it never runs.
		frame.abort = append(frame.abort, freeCells)
	}
	return uintptr(list), nil
}

// demarshalReturn converts the raw return word per the declared type.
func (e *Engine) demarshalReturn(t Type, word uintptr) (any, error) {
	switch t.Kind {
	case KindVoid, KindNull:
		return nil, nil
	case KindBool:
		return int32(word) != 0, nil
	case KindInt:
		if t.Signed {
			switch t.Width {
			case 8:
				return int64(int8(word)), nil
			case 16:
				return int64(int16(word)), nil
			case 32:
				return int64(int32(word)), nil
			default:
				return int64(word), nil
			}
		}
		switch t.Width {
		case 8:
			return uint64(uint8(word)), nil
		case 16:
			return uint64(uint16(word)), nil
		case 32:
			return uint64(uint32(word)), nil
		default:
			return uint64(word), nil
		}
	case KindFloat:
		if t.Width == 32 {
			return float64(floatFrom32(uint32(word))), nil
		}
		return floatFrom64(uint64(word)), nil
	case KindString:
		s := goString(word)
		if !t.Borrowed && word != 0 {
			// We own the native copy; release it now that it is copied.
			e.free(Handle(word))
		}
		return s, nil
	case KindObject, KindBoxed:
		return Handle(word), nil
	default:
		return nil, &errors.MarshalError{Symbol: "", Index: -1,
			Reason: "unsupported return type " + t.String()}
	}
}

// refSlotWord marshals an in/out initial value into a 64-bit slot.
func refSlotWord(inner Type, v any) (uint64, error) {
	switch inner.Kind {
	case KindBool:
		if b, ok := v.(bool); ok && b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		n, ok := coerceInt(v)
		if !ok {
			return 0, fmt.Errorf("ref value is %T, want integer", v)
		}
		return uint64(n), nil
	case KindFloat:
		f, ok := coerceFloat(v)
		if !ok {
			return 0, fmt.Errorf("ref value is %T, want float", v)
		}
		if inner.Width == 32 {
			return uint64(floatBits32(float32(f))), nil
		}
		return floatBits64(f), nil
	case KindObject, KindBoxed:
		h, ok := coerceHandle(v)
		if !ok {
			return 0, fmt.Errorf("ref value is %T, want Handle", v)
		}
		return uint64(h), nil
	default:
		return 0, fmt.Errorf("ref inner type %s is unsupported", inner)
	}
}

// readRefSlot demarshals an out slot after the call.
func readRefSlot(e *Engine, inner Type, slot uint64) any {
	switch inner.Kind {
	case KindBool:
		return slot != 0
	case KindInt:
		v, _ := e.demarshalReturn(inner, uintptr(slot))
		return v
	case KindFloat:
		if inner.Width == 32 {
			return float64(floatFrom32(uint32(slot)))
		}
		return floatFrom64(slot)
	case KindString:
		s := goString(uintptr(slot))
		if !inner.Borrowed && slot != 0 {
			e.free(Handle(slot))
		}
		return s
	case KindObject, KindBoxed:
		return Handle(slot)
	default:
		return nil
	}
}

// Support calls, routed through the engine so they share the stub cache.

func (e *Engine) strdup(s string) (Handle, error) {
	out, err := e.exec(Call{
		Library: glibLibrary,
		Symbol:  "g_strdup",
		Args:    []Arg{{Type: String(true), Value: s}},
		Return:  Boxed("gchar", true),
	}, false)
	if err != nil {
		return 0, err
	}
	return out.(Handle), nil
}

func (e *Engine) free(h Handle) {
	e.exec(Call{
		Library: glibLibrary,
		Symbol:  "g_free",
		Args:    []Arg{{Type: Boxed("gpointer", true), Value: h}},
		Return:  Void(),
	}, false)
}

func (e *Engine) objectRef(h Handle) error {
	_, err := e.exec(Call{
		Library: GObjectLibrary,
		Symbol:  "g_object_ref",
		Args:    []Arg{{Type: Object(true), Value: h}},
		Return:  Object(true),
	}, false)
	return err
}

func (e *Engine) objectUnref(h Handle) {
	e.exec(Call{
		Library: GObjectLibrary,
		Symbol:  "g_object_unref",
		Args:    []Arg{{Type: Object(true), Value: h}},
		Return:  Void(),
	}, false)
}

func (e *Engine) errorFree(h Handle) {
	e.exec(Call{
		Library: glibLibrary,
		Symbol:  "g_error_free",
		Args:    []Arg{{Type: Boxed("GError", true), Value: h}},
		Return:  Void(),
	}, false)
}
