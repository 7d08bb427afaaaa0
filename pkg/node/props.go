package node

import (
	"reflect"
	"strings"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/meta"
	"github.com/go-loom/loom/pkg/signals"
)

// Keys owned by the renderer or the parent's attachment strategy; neither
// reaches a native setter.
var adminKeys = map[string]bool{
	"children": true,
	"key":      true,
	"ref":      true,
}

var placementKeys = map[string]bool{
	"column":     true,
	"row":        true,
	"columnSpan": true,
	"rowSpan":    true,
}

// applyProps pushes the old→new difference to the native object. Setter
// invocations run inside a signal block so native change notifications
// caused by our own writes do not echo back as events.
func (w *Widget) applyProps(old, new Props) error {
	changed := diffKeys(old, new)
	if len(changed) == 0 {
		return nil
	}

	var applyErr error
	w.store.Block(func() {
		applyErr = w.applyChanged(changed, old, new)
	})
	if applyErr != nil {
		return applyErr
	}
	return w.refreshPlacement(changed, new)
}

// diffKeys returns the keys whose value changed plus the keys removed
// outright. Function values compare by code pointer.
func diffKeys(old, new Props) []string {
	var keys []string
	for k, nv := range new {
		ov, ok := old[k]
		if !ok || !propEqual(ov, nv) {
			keys = append(keys, k)
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func propEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Func || bv.Kind() == reflect.Func {
		return av.Kind() == bv.Kind() && av.Pointer() == bv.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

func (w *Widget) applyChanged(changed []string, old, new Props) error {
	combinedDone := map[string]bool{}
	for _, key := range changed {
		if adminKeys[key] || placementKeys[key] || w.table.ConsumedByCtor(key) {
			continue
		}
		if event, ok := eventName(key); ok {
			if err := w.routeEvent(event, new[key]); err != nil {
				return err
			}
			continue
		}
		if combined, ok := w.table.CombinedFor(key); ok {
			if combinedDone[combined.Setter] {
				continue
			}
			combinedDone[combined.Setter] = true
			if err := w.applyCombined(combined, old, new); err != nil {
				return err
			}
			continue
		}
		value, present := new[key]
		if !present {
			// Removed prop falls back to its declared default; types
			// without one keep the last written value.
			def, ok := w.table.Defaults[key]
			if !ok {
				continue
			}
			value = def
		}
		if err := w.applySingle(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (w *Widget) applySingle(key string, value any) error {
	access, ok := w.table.Setter(key)
	if !ok {
		// Unknown props pass through silently; front ends attach
		// bookkeeping the tables never generate setters for.
		return nil
	}
	_, err := w.ctx.Invoker.Invoke(ffi.Call{
		Library: w.library(),
		Symbol:  access.Setter,
		Args: []ffi.Arg{
			{Type: ffi.Object(true), Value: w.handle},
			{Type: access.Type, Value: value},
		},
		Return: ffi.Void(),
	})
	if err != nil {
		return &errors.LoomError{Op: "node.setProp", Kind: errors.KindNative, Err: err}
	}
	return nil
}

// applyCombined invokes a multi-key setter once with the current value of
// every key it covers. A key absent from new falls back to its declared
// default, then to the last written value.
func (w *Widget) applyCombined(c meta.CombinedProp, old, new Props) error {
	args := make([]ffi.Arg, 0, len(c.Keys)+1)
	args = append(args, ffi.Arg{Type: ffi.Object(true), Value: w.handle})
	for i, key := range c.Keys {
		value, ok := new[key]
		if !ok {
			if value, ok = w.table.Defaults[key]; !ok {
				value = old[key]
			}
		}
		args = append(args, ffi.Arg{Type: c.Types[i], Value: value})
	}
	_, err := w.ctx.Invoker.Invoke(ffi.Call{
		Library: w.library(),
		Symbol:  c.Setter,
		Args:    args,
		Return:  ffi.Void(),
	})
	if err != nil {
		return &errors.LoomError{Op: "node.setProp", Kind: errors.KindNative, Err: err}
	}
	return nil
}

// eventName turns an "onRowActivated" prop key into the native
// "row-activated" event name. Keys that merely start with "on" (like
// "onboarding") are not events.
func eventName(key string) (string, bool) {
	if len(key) < 3 || !strings.HasPrefix(key, "on") {
		return "", false
	}
	rest := key[2:]
	if rest[0] < 'A' || rest[0] > 'Z' {
		return "", false
	}
	var b strings.Builder
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if ch >= 'A' && ch <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteByte(ch - 'A' + 'a')
		} else {
			b.WriteByte(ch)
		}
	}
	return b.String(), true
}

func (w *Widget) routeEvent(event string, value any) error {
	fn, ok := callbackFor(value)
	if !ok {
		return &errors.LoomError{
			Op:   "node.routeEvent",
			Kind: errors.KindMarshal,
			Err:  &errors.MarshalError{Symbol: event, Index: -1, Reason: "handler is not a function"},
		}
	}
	if fn == nil {
		return w.store.Set(w.handle, event, nil)
	}
	return w.store.Set(w.handle, event, &signals.Handler{
		Func: fn,
		Args: w.table.SignalArgs(event),
	})
}

func callbackFor(v any) (ffi.CallbackFunc, bool) {
	switch f := v.(type) {
	case nil:
		return nil, true
	case ffi.CallbackFunc:
		return f, true
	case func(args []any) any:
		return ffi.CallbackFunc(f), true
	case func(args []any):
		return func(args []any) any { f(args); return nil }, true
	case func():
		return func([]any) any { f(); return nil }, true
	default:
		return nil, false
	}
}

// refreshPlacement re-runs the parent's attachment when layout keys the
// strategy consumes at attach time change on an already-attached child.
func (w *Widget) refreshPlacement(changed []string, new Props) error {
	if w.parent == nil {
		return nil
	}
	switch p := w.parent.(type) {
	case GridContainer:
		for _, key := range changed {
			if placementKeys[key] {
				col, row, colSpan, rowSpan := gridPlacement(new)
				return p.AttachToGrid(w.self(), col, row, colSpan, rowSpan)
			}
		}
	case PagedContainer:
		for _, key := range changed {
			if key == "pageName" {
				return p.UpdateStackPageProps(w.self(), new)
			}
		}
	}
	return nil
}

// self resolves the outermost Node for strategies embedding Widget. The
// parent container tracks children by the value handed to AppendChild, so
// re-placement must present the same identity.
func (w *Widget) self() Node {
	if w.outer != nil {
		return w.outer
	}
	return w
}
