package node

import (
	"strings"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/meta"
)

// Factory builds nodes from virtual element type tags. Strategy selection
// is data-driven: the type's generated container contract picks the
// attachment behavior, so new native types need table entries, not code.
type Factory struct {
	ctx *Context
}

// NewFactory wires a factory into ctx so virtualized strategies can build
// row sub-trees through it.
func NewFactory(ctx *Context) *Factory {
	f := &Factory{ctx: ctx}
	ctx.Factory = f
	return f
}

// New creates and initializes the node for a virtual element. Dotted type
// tags ("GtkWindow.titlebar") produce virtual slot nodes with no native
// object of their own.
func (f *Factory) New(typeName string, props Props) (Node, error) {
	if host, slot, ok := strings.Cut(typeName, "."); ok {
		return f.newSlot(typeName, host, slot, props)
	}

	table, ok := f.ctx.Meta.Type(typeName)
	if !ok {
		return nil, &errors.LoomError{
			Op:   "node.create",
			Kind: errors.KindNode,
			Err:  &errors.UnknownNodeTypeError{TypeName: typeName},
		}
	}

	n := f.nodeFor(table, typeName)
	if err := n.Initialize(props); err != nil {
		return nil, err
	}
	return n, nil
}

func (f *Factory) nodeFor(table *meta.TypeTable, typeName string) Node {
	w := newWidget(f.ctx, table, typeName)
	switch table.Container.Kind {
	case meta.ContainerSingle:
		n := &singleChildNode{Widget: w}
		w.outer = n
		return n
	case meta.ContainerIndexed:
		n := &indexedNode{Widget: w}
		w.outer = n
		return n
	case meta.ContainerPack:
		n := &packNode{Widget: w}
		w.outer = n
		return n
	case meta.ContainerPaged:
		n := &pagedNode{Widget: w, pages: map[string]*stackPage{}}
		w.outer = n
		return n
	case meta.ContainerGrid:
		n := &gridNode{Widget: w}
		w.outer = n
		return n
	case meta.ContainerVirtual:
		n := newListViewNode(w)
		w.outer = n
		return n
	default:
		return w
	}
}

func (f *Factory) newSlot(typeName, host, slot string, props Props) (Node, error) {
	table, ok := f.ctx.Meta.Type(host)
	if !ok {
		return nil, &errors.LoomError{
			Op:   "node.create",
			Kind: errors.KindNode,
			Err:  &errors.UnknownNodeTypeError{TypeName: typeName},
		}
	}
	setter, ok := table.Slots[slot]
	if !ok {
		return nil, &errors.LoomError{
			Op:   "node.create",
			Kind: errors.KindNode,
			Err:  &errors.UnknownNodeTypeError{TypeName: typeName},
		}
	}
	n := &slotNode{
		ctx:      f.ctx,
		typeName: typeName,
		hostType: host,
		setter:   setter,
		library:  f.ctx.Meta.LibraryNames(table.Library),
		props:    props,
	}
	return n, nil
}
