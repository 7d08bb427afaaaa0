package node

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
)

// slotNode is the virtual node behind dotted type tags. It owns no native
// object; its single child is written straight into the host parent
// through the slot's dedicated setter.
type slotNode struct {
	ctx      *Context
	typeName string
	hostType string
	setter   string
	library  string
	props    Props
	parent   Node
	child    Node
	dead     bool
}

func (s *slotNode) TypeName() string   { return s.typeName }
func (s *slotNode) Props() Props       { return s.props }
func (s *slotNode) Parent() Node       { return s.parent }
func (s *slotNode) Handle() ffi.Handle { return 0 }
func (s *slotNode) setParent(p Node)   { s.parent = p }

func (s *slotNode) Initialize(props Props) error {
	s.props = props
	return nil
}

func (s *slotNode) UpdateProps(old, new Props) error {
	s.props = new
	return nil
}

func (s *slotNode) Mount() error { return nil }

// Unmount clears the slot on the host if the slot is still occupied. The
// host may already be gone; failures are not fatal during teardown.
func (s *slotNode) Unmount() {
	if s.dead {
		return
	}
	s.dead = true
	if s.child != nil && s.parent != nil {
		if err := s.writeSlot(0); err != nil {
			errors.Report(err)
		}
	}
	s.child = nil
}

// attachTo only records the host; nothing is written until the slot
// receives a child.
func (s *slotNode) attachTo(parent Node) error { return nil }

func (s *slotNode) detachFrom(parent Node) error {
	if s.child == nil {
		return nil
	}
	s.child = nil
	return s.writeSlot(0)
}

// SetChild writes the child's handle into the host's slot; nil clears it.
func (s *slotNode) SetChild(child Node) error {
	if child == nil {
		if s.child == nil {
			return nil
		}
		s.child.setParent(nil)
		s.child = nil
		return s.writeSlot(0)
	}
	child.setParent(s)
	s.child = child
	return s.writeSlot(child.Handle())
}

func (s *slotNode) Child() Node { return s.child }

func (s *slotNode) writeSlot(h ffi.Handle) error {
	if s.parent == nil {
		return &errors.MissingCapabilityError{
			ParentType: s.hostType,
			ChildType:  s.typeName,
			Op:         "setSlot",
		}
	}
	_, err := s.ctx.Invoker.Invoke(ffi.Call{
		Library: s.library,
		Symbol:  s.setter,
		Args: []ffi.Arg{
			{Type: ffi.Object(true), Value: s.parent.Handle()},
			{Type: ffi.Object(true), Value: h},
		},
		Return: ffi.Void(),
	})
	if err != nil {
		return &errors.LoomError{Op: "node.setSlot", Kind: errors.KindNative, Err: err}
	}
	return nil
}
