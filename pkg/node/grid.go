package node

import "github.com/go-loom/loom/pkg/ffi"

// gridNode backs cell-placed containers. Moving or resizing an attached
// child re-issues placement in place instead of detaching and
// reattaching, which would drop focus and flicker.
type gridNode struct {
	*Widget
	attached map[Node]bool
}

func (n *gridNode) AttachToGrid(child Node, col, row, colSpan, rowSpan int) error {
	op := "attach"
	if n.attached[child] {
		// Re-placement uses the dedicated call when the contract has
		// one; attach symbols that tolerate re-placement double as it.
		if _, ok := n.table.Container.Symbol("replace"); ok {
			op = "replace"
		}
	}
	err := n.containerCall(op,
		ffi.Arg{Type: ffi.Object(true), Value: child.Handle()},
		ffi.Arg{Type: ffi.Int32(), Value: col},
		ffi.Arg{Type: ffi.Int32(), Value: row},
		ffi.Arg{Type: ffi.Int32(), Value: colSpan},
		ffi.Arg{Type: ffi.Int32(), Value: rowSpan},
	)
	if err != nil {
		return err
	}
	if n.attached == nil {
		n.attached = map[Node]bool{}
	}
	n.attached[child] = true
	return nil
}

func (n *gridNode) RemoveFromGrid(child Node) error {
	delete(n.attached, child)
	return n.containerCall("remove", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}
