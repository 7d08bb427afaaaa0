package node

import "github.com/go-loom/loom/pkg/ffi"

// packNode backs containers with independent start- and end-packed lists.
// The pack side is chosen at attach time from the child's props and never
// migrates; both sides share one removal call.
type packNode struct {
	*Widget
}

func (n *packNode) PackStart(child Node) error {
	return n.containerCall("packStart", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}

func (n *packNode) PackEnd(child Node) error {
	return n.containerCall("packEnd", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}

func (n *packNode) RemoveFromPack(child Node) error {
	return n.containerCall("remove", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}
