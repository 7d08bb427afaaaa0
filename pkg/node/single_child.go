package node

import "github.com/go-loom/loom/pkg/ffi"

// singleChildNode backs containers with one child slot and a dedicated
// setter. Attaching over an occupied slot evicts the previous child.
type singleChildNode struct {
	*Widget
	child Node
}

func (n *singleChildNode) SetChild(child Node) error {
	if n.child != nil && n.child != child {
		n.child.setParent(nil)
	}
	var h ffi.Handle
	if child != nil {
		h = child.Handle()
	}
	if err := n.containerCall("set", ffi.Arg{Type: ffi.Object(true), Value: h}); err != nil {
		return err
	}
	n.child = child
	return nil
}

func (n *singleChildNode) Child() Node { return n.child }
