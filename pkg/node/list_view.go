package node

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/loop"
	"github.com/go-loom/loom/pkg/signals"
)

// RenderItemFunc renders an item into a virtualized row's sub-root. A nil
// item means placeholder or release: the sub-root stays alive for reuse
// but must drop per-item resources.
type RenderItemFunc func(subRoot Node, item any)

// G_TYPE_OBJECT is a fundamental type number fixed by the object system's
// ABI; the backing list model stores plain object references.
const gTypeObject = 80

// listViewNode backs recycling views. Children live in a native list
// model; visible rows are materialized lazily through the view's item
// factory, one sub-root per row, reused across binds.
type listViewNode struct {
	*Widget
	model     ffi.Handle
	selection ffi.Handle
	factory   ffi.Handle
	subRoots  map[ffi.Handle]*subRoot
}

// subRoot is one recycled row: the lazily built tree plus the pending
// removal turn, if teardown has been requested.
type subRoot struct {
	node    Node
	pending *loop.Turn
}

func newListViewNode(w *Widget) *listViewNode {
	return &listViewNode{Widget: w, subRoots: map[ffi.Handle]*subRoot{}}
}

func (n *listViewNode) Initialize(props Props) error {
	if err := n.Widget.Initialize(props); err != nil {
		return err
	}
	if err := n.buildModel(); err != nil {
		return err
	}
	return n.buildFactory()
}

func (n *listViewNode) buildModel() error {
	model, err := n.modelQuery("storeNew", ffi.Object(true),
		ffi.Arg{Type: ffi.Uint64(), Value: gTypeObject})
	if err != nil {
		return err
	}
	n.model, _ = model.(ffi.Handle)

	selection, err := n.modelQuery("selectionNew", ffi.Object(true),
		ffi.Arg{Type: ffi.Object(true), Value: n.model})
	if err != nil {
		return err
	}
	n.selection, _ = selection.(ffi.Handle)

	return n.containerCall("setModel", ffi.Arg{Type: ffi.Object(true), Value: n.selection})
}

func (n *listViewNode) buildFactory() error {
	factory, err := n.modelQuery("factoryNew", ffi.Object(true))
	if err != nil {
		return err
	}
	n.factory, _ = factory.(ffi.Handle)

	lifecycle := map[string]func(ffi.Handle){
		"setup":    n.setupRow,
		"bind":     n.bindRow,
		"unbind":   n.unbindRow,
		"teardown": n.teardownRow,
	}
	for event, fn := range lifecycle {
		fn := fn
		err := n.store.Connect(n.factory, event, signals.Handler{
			Func: func(args []any) any {
				if item, ok := args[0].(ffi.Handle); ok {
					fn(item)
				}
				return nil
			},
			Args: []ffi.Type{ffi.Object(true)},
		})
		if err != nil {
			return err
		}
	}
	return n.containerCall("setFactory", ffi.Arg{Type: ffi.Object(true), Value: n.factory})
}

// setupRow creates the row's sub-root and renders the loading placeholder.
// A row recycled before its pending removal ran keeps its old sub-root.
func (n *listViewNode) setupRow(listItem ffi.Handle) {
	if sr, ok := n.subRoots[listItem]; ok {
		if sr.pending != nil {
			sr.pending.Cancel()
			sr.pending = nil
		}
		n.render(sr.node, nil)
		return
	}
	root, err := n.ctx.Factory.New(n.itemRootType(), Props{})
	if err != nil {
		errors.Report(err)
		return
	}
	n.subRoots[listItem] = &subRoot{node: root}
	if err := n.modelCall("itemSetChild",
		ffi.Arg{Type: ffi.Object(true), Value: listItem},
		ffi.Arg{Type: ffi.Object(true), Value: root.Handle()},
	); err != nil {
		errors.Report(err)
		return
	}
	n.render(root, nil)
}

// bindRow renders the actual item into the existing sub-root. Binding
// cancels a removal scheduled by an earlier teardown of the same row.
func (n *listViewNode) bindRow(listItem ffi.Handle) {
	sr, ok := n.subRoots[listItem]
	if !ok {
		return
	}
	if sr.pending != nil {
		sr.pending.Cancel()
		sr.pending = nil
	}
	v, err := n.modelQuery("itemGetItem", ffi.Object(true),
		ffi.Arg{Type: ffi.Object(true), Value: listItem})
	if err != nil {
		errors.Report(err)
		return
	}
	h, _ := v.(ffi.Handle)
	var item any = h
	if n.ctx.Objects != nil {
		item = n.ctx.Objects.Wrap(h)
	}
	n.render(sr.node, item)
}

// unbindRow releases per-item state; the sub-root survives for reuse.
func (n *listViewNode) unbindRow(listItem ffi.Handle) {
	if sr, ok := n.subRoots[listItem]; ok {
		n.render(sr.node, nil)
	}
}

// teardownRow schedules the sub-root's removal for the next turn so an
// in-flight bind of the recycled row can still cancel it.
func (n *listViewNode) teardownRow(listItem ffi.Handle) {
	sr, ok := n.subRoots[listItem]
	if !ok || sr.pending != nil {
		return
	}
	sr.pending = n.ctx.Loop.NextTurn(func() {
		delete(n.subRoots, listItem)
		sr.node.Unmount()
	})
}

func (n *listViewNode) render(sub Node, item any) {
	var fn RenderItemFunc
	switch f := n.props["renderItem"].(type) {
	case RenderItemFunc:
		fn = f
	case func(Node, any):
		fn = f
	}
	if fn != nil {
		fn(sub, item)
	}
}

func (n *listViewNode) itemRootType() string {
	if t, ok := n.props["itemRoot"].(string); ok && t != "" {
		return t
	}
	return "GtkBox"
}

// Item bookkeeping over the backing list model.

func (n *listViewNode) AddItem(child Node) error {
	return n.modelCall("storeAppend",
		ffi.Arg{Type: ffi.Object(true), Value: n.model},
		ffi.Arg{Type: ffi.Object(true), Value: child.Handle()},
	)
}

func (n *listViewNode) InsertItemBefore(child, before Node) error {
	if before == nil {
		return n.AddItem(child)
	}
	pos, err := n.itemPosition(before)
	if err != nil {
		return err
	}
	return n.modelCall("storeInsert",
		ffi.Arg{Type: ffi.Object(true), Value: n.model},
		ffi.Arg{Type: ffi.Uint32(), Value: pos},
		ffi.Arg{Type: ffi.Object(true), Value: child.Handle()},
	)
}

func (n *listViewNode) RemoveItem(child Node) error {
	pos, err := n.itemPosition(child)
	if err != nil {
		return err
	}
	return n.modelCall("storeRemove",
		ffi.Arg{Type: ffi.Object(true), Value: n.model},
		ffi.Arg{Type: ffi.Uint32(), Value: pos},
	)
}

// UpdateItem signals the model that one position changed so bound rows
// re-run their bind.
func (n *listViewNode) UpdateItem(child Node) error {
	pos, err := n.itemPosition(child)
	if err != nil {
		return err
	}
	return n.modelCall("storeChanged",
		ffi.Arg{Type: ffi.Object(true), Value: n.model},
		ffi.Arg{Type: ffi.Uint32(), Value: pos},
		ffi.Arg{Type: ffi.Uint32(), Value: 1},
		ffi.Arg{Type: ffi.Uint32(), Value: 1},
	)
}

// itemPosition asks the model for the child's current position; the
// engine never caches indices.
func (n *listViewNode) itemPosition(child Node) (uint32, error) {
	out := &ffi.Out{}
	v, err := n.modelQuery("storeFind", ffi.Bool(),
		ffi.Arg{Type: ffi.Object(true), Value: n.model},
		ffi.Arg{Type: ffi.Object(true), Value: child.Handle()},
		ffi.Arg{Type: ffi.Ref(ffi.Uint32()), Value: out},
	)
	if err != nil {
		return 0, err
	}
	found, _ := v.(bool)
	if !found {
		return 0, &errors.LoomError{
			Op:   "node.itemPosition",
			Kind: errors.KindNode,
			Err:  &errors.MissingCapabilityError{ParentType: n.typeName, ChildType: child.TypeName(), Op: "findItem"},
		}
	}
	return positionValue(out.Value), nil
}

// positionValue narrows a model position out-value. The marshaler widens
// unsigned out slots to uint64, so accept every integer shape it may hand
// back.
func positionValue(v any) uint32 {
	switch p := v.(type) {
	case uint32:
		return p
	case uint64:
		return uint32(p)
	case int64:
		return uint32(p)
	case int:
		return uint32(p)
	default:
		return 0
	}
}

func (n *listViewNode) Unmount() {
	for listItem, sr := range n.subRoots {
		if sr.pending != nil {
			sr.pending.Cancel()
		}
		sr.node.Unmount()
		delete(n.subRoots, listItem)
	}
	for _, h := range []ffi.Handle{n.factory, n.selection} {
		if h.IsNil() {
			continue
		}
		_, err := n.ctx.Invoker.Invoke(ffi.Call{
			Library: ffi.GObjectLibrary,
			Symbol:  "g_object_unref",
			Args:    []ffi.Arg{{Type: ffi.Object(true), Value: h}},
			Return:  ffi.Void(),
		})
		if err != nil {
			errors.Report(err)
		}
	}
	n.Widget.Unmount()
}

// modelCall and modelQuery invoke contract symbols whose first argument
// is not the view handle.

func (n *listViewNode) modelCall(op string, args ...ffi.Arg) error {
	_, err := n.modelQuery(op, ffi.Void(), args...)
	return err
}

func (n *listViewNode) modelQuery(op string, ret ffi.Type, args ...ffi.Arg) (any, error) {
	symbol, ok := n.table.Container.Symbol(op)
	if !ok {
		return nil, &errors.LoomError{
			Op:   "node." + op,
			Kind: errors.KindNode,
			Err:  &errors.MissingCapabilityError{ParentType: n.typeName, Op: op},
		}
	}
	v, err := n.ctx.Invoker.Invoke(ffi.Call{
		Library: n.library(),
		Symbol:  symbol,
		Args:    args,
		Return:  ret,
	})
	if err != nil {
		return nil, &errors.LoomError{Op: "node." + op, Kind: errors.KindNative, Err: err}
	}
	return v, nil
}
