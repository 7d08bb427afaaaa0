// Package ffitest provides an in-memory Invoker for tests. It records every
// call that would cross the foreign boundary and lets tests script return
// values per symbol, so node, signal, and host behavior is testable without
// a toolkit installed.
package ffitest

import (
	"fmt"

	"github.com/go-loom/loom/pkg/ffi"
)

// Recorder implements ffi.Invoker against scripted results.
type Recorder struct {
	// Calls holds every executed call in execution order, immediate and
	// flushed alike.
	Calls []ffi.Call
	// Flushes holds each grouped flush as it was submitted.
	Flushes [][]ffi.Call

	// Returns maps a symbol to a fixed return value.
	Returns map[string]any
	// Handlers maps a symbol to a function computing the result; it wins
	// over Returns.
	Handlers map[string]func(call ffi.Call) (any, error)

	// nextSubscriptionID backs the default g_signal_connect_data result.
	nextSubscriptionID uint64

	queues [][]ffi.Call
}

// New creates an empty recorder.
func New() *Recorder {
	return &Recorder{
		Returns:  make(map[string]any),
		Handlers: make(map[string]func(ffi.Call) (any, error)),
	}
}

// Invoke records the call, or queues it while a batch is open and the call
// returns void.
func (r *Recorder) Invoke(call ffi.Call) (any, error) {
	if len(r.queues) > 0 && call.Return.Kind == ffi.KindVoid {
		top := len(r.queues) - 1
		r.queues[top] = append(r.queues[top], call)
		return nil, nil
	}
	return r.exec(call)
}

// InvokeBatched executes a group of calls in order.
func (r *Recorder) InvokeBatched(calls []ffi.Call) error {
	r.Flushes = append(r.Flushes, calls)
	for _, call := range calls {
		if _, err := r.exec(call); err != nil {
			return err
		}
	}
	return nil
}

// BeginBatch opens a nested batch scope.
func (r *Recorder) BeginBatch() {
	r.queues = append(r.queues, nil)
}

// EndBatch closes the innermost scope and flushes its queue.
func (r *Recorder) EndBatch() error {
	if len(r.queues) == 0 {
		return nil
	}
	top := len(r.queues) - 1
	queue := r.queues[top]
	r.queues = r.queues[:top]
	if len(queue) == 0 {
		return nil
	}
	return r.InvokeBatched(queue)
}

// RunBatched brackets fn in a batch scope, closing it even on error.
func (r *Recorder) RunBatched(fn func() error) error {
	r.BeginBatch()
	flushed := false
	defer func() {
		if !flushed {
			r.EndBatch()
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	flushed = true
	return r.EndBatch()
}

// BatchDepth reports the open batch nesting depth.
func (r *Recorder) BatchDepth() int {
	return len(r.queues)
}

func (r *Recorder) exec(call ffi.Call) (any, error) {
	r.Calls = append(r.Calls, call)
	if h, ok := r.Handlers[call.Symbol]; ok {
		return h(call)
	}
	if v, ok := r.Returns[call.Symbol]; ok {
		return v, nil
	}
	return r.defaultReturn(call), nil
}

// defaultReturn fabricates a plausible value for common symbols so tests
// only script what they assert on.
func (r *Recorder) defaultReturn(call ffi.Call) any {
	switch call.Return.Kind {
	case ffi.KindVoid, ffi.KindNull:
		return nil
	case ffi.KindBool:
		return false
	case ffi.KindInt:
		if call.Symbol == "g_signal_connect_data" {
			r.nextSubscriptionID++
			return r.nextSubscriptionID
		}
		if call.Return.Signed {
			return int64(0)
		}
		return uint64(0)
	case ffi.KindFloat:
		return float64(0)
	case ffi.KindString:
		return ""
	case ffi.KindObject, ffi.KindBoxed:
		return ffi.Handle(0)
	default:
		return nil
	}
}

// Symbols returns the executed symbols in order, for order assertions.
func (r *Recorder) Symbols() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Symbol
	}
	return out
}

// CallsTo returns the executed calls targeting symbol.
func (r *Recorder) CallsTo(symbol string) []ffi.Call {
	var out []ffi.Call
	for _, c := range r.Calls {
		if c.Symbol == symbol {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls and flushes but keeps scripted results.
func (r *Recorder) Reset() {
	r.Calls = nil
	r.Flushes = nil
	r.queues = nil
}

// ArgHandle extracts the handle value of argument i, for assertions.
func ArgHandle(call ffi.Call, i int) (ffi.Handle, error) {
	if i >= len(call.Args) {
		return 0, fmt.Errorf("call %s has %d args", call.Symbol, len(call.Args))
	}
	switch h := call.Args[i].Value.(type) {
	case nil:
		return 0, nil
	case ffi.Handle:
		return h, nil
	case interface{ Handle() ffi.Handle }:
		return h.Handle(), nil
	default:
		return 0, fmt.Errorf("call %s arg %d is %T", call.Symbol, i, call.Args[i].Value)
	}
}
