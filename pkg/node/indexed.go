package node

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
)

// indexedNode backs ordered child lists. Insertion position is derived
// from the native previous-sibling lookup of the reference child at call
// time, not from an engine-side index, so the result matches native order
// even after out-of-band reordering.
type indexedNode struct {
	*Widget
}

func (n *indexedNode) AttachChild(child Node) error {
	return n.containerCall("append", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}

func (n *indexedNode) InsertChildBefore(child, before Node) error {
	if before == nil {
		return n.AttachChild(child)
	}
	prev, err := n.prevSibling(before)
	if err != nil {
		return err
	}
	// A nil previous sibling means the reference child is first, so the
	// new child goes to the head of the list.
	return n.containerCall("insertAfter",
		ffi.Arg{Type: ffi.Object(true), Value: child.Handle()},
		ffi.Arg{Type: ffi.Object(true), Value: prev},
	)
}

func (n *indexedNode) DetachChild(child Node) error {
	return n.containerCall("remove", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}

// prevSibling asks the native container for the child preceding the
// reference. The lookup symbol takes the reference child, not the parent.
func (n *indexedNode) prevSibling(of Node) (ffi.Handle, error) {
	symbol, ok := n.table.Container.Symbol("prevSibling")
	if !ok {
		return 0, &errors.LoomError{
			Op:   "node.prevSibling",
			Kind: errors.KindNode,
			Err:  &errors.MissingCapabilityError{ParentType: n.typeName, ChildType: of.TypeName(), Op: "insertBefore"},
		}
	}
	v, err := n.ctx.Invoker.Invoke(ffi.Call{
		Library: n.library(),
		Symbol:  symbol,
		Args:    []ffi.Arg{{Type: ffi.Object(true), Value: of.Handle()}},
		Return:  ffi.Object(true),
	})
	if err != nil {
		return 0, &errors.LoomError{Op: "node.prevSibling", Kind: errors.KindNative, Err: err}
	}
	h, _ := v.(ffi.Handle)
	return h, nil
}
