package node

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/meta"
	"github.com/go-loom/loom/pkg/signals"
)

// Widget is the leaf strategy and the embedded base of every container
// strategy. It owns the native handle, the per-node signal store, and the
// property engine; strategies add only their attachment surface.
type Widget struct {
	ctx      *Context
	table    *meta.TypeTable
	typeName string
	handle   ffi.Handle
	props    Props
	parent   Node
	store    *signals.Store
	mounted  bool
	dead     bool

	// outer points at the embedding strategy node, nil for plain
	// widgets. Attachment bookkeeping keys on the outer identity.
	outer Node
}

func newWidget(ctx *Context, table *meta.TypeTable, typeName string) *Widget {
	return &Widget{
		ctx:      ctx,
		table:    table,
		typeName: typeName,
		store:    signals.NewStore(ctx.Invoker, ctx.Loop),
	}
}

func (w *Widget) TypeName() string   { return w.typeName }
func (w *Widget) Props() Props       { return w.props }
func (w *Widget) Parent() Node       { return w.parent }
func (w *Widget) Handle() ffi.Handle { return w.handle }
func (w *Widget) setParent(p Node)   { w.parent = p }

// Initialize constructs the native object and applies the first property
// set. Construction consumes the props named by the table's constructor
// derivation; those are excluded from the setter pass.
func (w *Widget) Initialize(props Props) error {
	merged := make(Props, len(w.table.Defaults)+len(props))
	for k, v := range w.table.Defaults {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	if err := w.construct(merged); err != nil {
		return err
	}
	if err := w.applyProps(Props{}, merged); err != nil {
		return err
	}
	w.props = merged
	return nil
}

func (w *Widget) construct(props Props) error {
	args := []ffi.Arg{}
	if w.table.DeriveCtorArgs != nil {
		args = w.table.DeriveCtorArgs(props)
	}
	call := ffi.Call{
		Library: w.library(),
		Symbol:  w.table.Ctor,
		Args:    args,
		Return:  ffi.Object(true),
	}
	ret, err := w.ctx.Invoker.Invoke(call)
	if err != nil {
		return &errors.LoomError{Op: "node.construct", Kind: errors.KindNative, Err: err}
	}
	h, _ := ret.(ffi.Handle)
	w.handle = h

	// Constructors hand back a floating reference; sink it so the node
	// holds the sole strong reference until unmount.
	_, err = w.ctx.Invoker.Invoke(ffi.Call{
		Library: ffi.GObjectLibrary,
		Symbol:  "g_object_ref_sink",
		Args:    []ffi.Arg{{Type: ffi.Object(true), Value: w.handle}},
		Return:  ffi.Object(true),
	})
	if err != nil {
		return &errors.LoomError{Op: "node.construct", Kind: errors.KindNative, Err: err}
	}
	return nil
}

// UpdateProps applies the diff between old and new. The caller passes the
// full new map; admin keys and unchanged values are skipped.
func (w *Widget) UpdateProps(old, new Props) error {
	if err := w.applyProps(old, new); err != nil {
		return err
	}
	w.props = new
	return nil
}

// Mount runs post-attachment side effects. Presentable types (windows,
// dialogs) are shown once their subtree is fully built.
func (w *Widget) Mount() error {
	if w.mounted {
		return nil
	}
	w.mounted = true
	if w.table.Present == "" {
		return nil
	}
	_, err := w.ctx.Invoker.Invoke(ffi.Call{
		Library: w.library(),
		Symbol:  w.table.Present,
		Args:    []ffi.Arg{{Type: ffi.Object(true), Value: w.handle}},
		Return:  ffi.Void(),
	})
	if err != nil {
		return &errors.LoomError{Op: "node.mount", Kind: errors.KindNative, Err: err}
	}
	return nil
}

// Unmount clears subscriptions and drops the owning reference. Failures
// are reported, never propagated; teardown always runs to completion.
func (w *Widget) Unmount() {
	if w.dead {
		return
	}
	w.dead = true
	w.store.Clear()
	if w.handle.IsNil() {
		return
	}
	_, err := w.ctx.Invoker.Invoke(ffi.Call{
		Library: ffi.GObjectLibrary,
		Symbol:  "g_object_unref",
		Args:    []ffi.Arg{{Type: ffi.Object(true), Value: w.handle}},
		Return:  ffi.Void(),
	})
	if err != nil {
		errors.Report(&errors.LoomError{Op: "node.unmount", Kind: errors.KindNative, Err: err})
	}
}

func (w *Widget) library() string {
	return w.ctx.Meta.LibraryNames(w.table.Library)
}

// containerCall invokes a void container operation with the node's handle
// as first argument. The symbol comes from the type's container contract.
func (w *Widget) containerCall(op string, extra ...ffi.Arg) error {
	symbol, ok := w.table.Container.Symbol(op)
	if !ok {
		return &errors.LoomError{
			Op:   "node." + op,
			Kind: errors.KindNode,
			Err:  &errors.MissingCapabilityError{ParentType: w.typeName, Op: op},
		}
	}
	args := make([]ffi.Arg, 0, len(extra)+1)
	args = append(args, ffi.Arg{Type: ffi.Object(true), Value: w.handle})
	args = append(args, extra...)
	_, err := w.ctx.Invoker.Invoke(ffi.Call{
		Library: w.library(),
		Symbol:  symbol,
		Args:    args,
		Return:  ffi.Void(),
	})
	if err != nil {
		return &errors.LoomError{Op: "node." + op, Kind: errors.KindNative, Err: err}
	}
	return nil
}

// containerQuery is containerCall for value-returning operations.
func (w *Widget) containerQuery(op string, ret ffi.Type, extra ...ffi.Arg) (any, error) {
	symbol, ok := w.table.Container.Symbol(op)
	if !ok {
		return nil, &errors.LoomError{
			Op:   "node." + op,
			Kind: errors.KindNode,
			Err:  &errors.MissingCapabilityError{ParentType: w.typeName, Op: op},
		}
	}
	args := make([]ffi.Arg, 0, len(extra)+1)
	args = append(args, ffi.Arg{Type: ffi.Object(true), Value: w.handle})
	args = append(args, extra...)
	v, err := w.ctx.Invoker.Invoke(ffi.Call{
		Library: w.library(),
		Symbol:  symbol,
		Args:    args,
		Return:  ret,
	})
	if err != nil {
		return nil, &errors.LoomError{Op: "node." + op, Kind: errors.KindNative, Err: err}
	}
	return v, nil
}
