// Package node maps virtual elements onto native containers. The Factory
// picks an attachment strategy per element type, builds or reuses the
// backing native object, and returns a Node the renderer manipulates
// through a uniform surface.
package node

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/loop"
	"github.com/go-loom/loom/pkg/meta"
	"github.com/go-loom/loom/pkg/object"
)

// Props is a virtual element's property map. It is replaced wholesale on
// each update, never partially mutated.
type Props map[string]any

// Node unites a virtual element's identity with its backing native
// container. The container handle is exclusively owned by its Node until
// unmount; parent back-references are non-owning bookkeeping only.
type Node interface {
	// TypeName is the virtual element's type tag.
	TypeName() string
	// Props is the current property map.
	Props() Props
	// Parent is the non-owning back-reference for attachment bookkeeping.
	Parent() Node
	// Handle is the backing container handle, 0 for virtual nodes.
	Handle() ffi.Handle

	// Initialize applies the first full property set and performs
	// first-attachment side effects.
	Initialize(props Props) error
	// UpdateProps applies the diff between two commits.
	UpdateProps(old, new Props) error
	// Mount runs once after the node is wired into a live parent chain.
	Mount() error
	// Unmount releases subscriptions and detaches from the parent. The
	// node is terminal afterward and must not be reused.
	Unmount()

	setParent(p Node)
}

// Container capabilities. A node implements the subset matching its native
// contract; exactly one capability applies per (parent, child) pairing.

// SingleChildContainer is a one-child slot set through a dedicated setter.
type SingleChildContainer interface {
	SetChild(child Node) error
	Child() Node
}

// IndexedContainer keeps an ordered child list. Insertion position derives
// from the native sibling lookup of the reference child, never from a
// cached index, so order matches native ground truth even after
// out-of-band reorders.
type IndexedContainer interface {
	AttachChild(child Node) error
	InsertChildBefore(child, before Node) error
	DetachChild(child Node) error
}

// PackContainer keeps independent start- and end-packed lists sharing one
// removal call. A child's pack side is fixed at attach time.
type PackContainer interface {
	PackStart(child Node) error
	PackEnd(child Node) error
	RemoveFromPack(child Node) error
}

// PagedContainer holds named pages and supports deferred attachment of a
// visible-page request naming a page that does not exist yet.
type PagedContainer interface {
	AddStackPage(child Node, name string) error
	RemoveStackPage(child Node) error
	UpdateStackPageProps(child Node, props Props) error
}

// GridContainer places children at explicit cells with spans.
type GridContainer interface {
	AttachToGrid(child Node, col, row, colSpan, rowSpan int) error
	RemoveFromGrid(child Node) error
}

// ItemContainer maintains a backing list model for a virtualized view.
type ItemContainer interface {
	AddItem(child Node) error
	InsertItemBefore(child, before Node) error
	RemoveItem(child Node) error
	UpdateItem(child Node) error
}

// childMediator is implemented by virtual nodes that translate attachment
// into calls on the parent rather than being attached themselves.
type childMediator interface {
	attachTo(parent Node) error
	detachFrom(parent Node) error
}

// Context bundles the injected collaborators every node shares.
type Context struct {
	Invoker ffi.Invoker
	Meta    *meta.Registry
	Objects *object.Registry
	Loop    *loop.Loop

	// Factory creates sub-trees for virtualized rows; set by NewFactory.
	Factory *Factory
}

// AppendChild attaches child at the end of parent per the one capability
// that applies to the pairing.
func AppendChild(parent, child Node) error {
	if m, ok := child.(childMediator); ok {
		child.setParent(parent)
		return m.attachTo(parent)
	}

	switch p := parent.(type) {
	case PagedContainer:
		child.setParent(parent)
		return p.AddStackPage(child, pageName(child.Props()))
	case GridContainer:
		child.setParent(parent)
		col, row, colSpan, rowSpan := gridPlacement(child.Props())
		return p.AttachToGrid(child, col, row, colSpan, rowSpan)
	case PackContainer:
		child.setParent(parent)
		if packSide(child.Props()) == "end" {
			return p.PackEnd(child)
		}
		return p.PackStart(child)
	case ItemContainer:
		child.setParent(parent)
		return p.AddItem(child)
	case IndexedContainer:
		child.setParent(parent)
		return p.AttachChild(child)
	case SingleChildContainer:
		child.setParent(parent)
		return p.SetChild(child)
	default:
		return &errors.MissingCapabilityError{
			ParentType: parent.TypeName(),
			ChildType:  child.TypeName(),
			Op:         "appendChild",
		}
	}
}

// InsertBefore attaches child before an existing sibling.
func InsertBefore(parent, child, before Node) error {
	if m, ok := child.(childMediator); ok {
		child.setParent(parent)
		return m.attachTo(parent)
	}

	switch p := parent.(type) {
	case ItemContainer:
		child.setParent(parent)
		return p.InsertItemBefore(child, before)
	case IndexedContainer:
		child.setParent(parent)
		return p.InsertChildBefore(child, before)
	default:
		// Containers without sibling order treat insertion as append.
		return AppendChild(parent, child)
	}
}

// RemoveChild detaches child from parent. The child stays alive; only the
// attachment is undone.
func RemoveChild(parent, child Node) error {
	defer child.setParent(nil)
	if m, ok := child.(childMediator); ok {
		return m.detachFrom(parent)
	}

	switch p := parent.(type) {
	case PagedContainer:
		return p.RemoveStackPage(child)
	case GridContainer:
		return p.RemoveFromGrid(child)
	case PackContainer:
		return p.RemoveFromPack(child)
	case ItemContainer:
		return p.RemoveItem(child)
	case IndexedContainer:
		return p.DetachChild(child)
	case SingleChildContainer:
		if p.Child() == child {
			return p.SetChild(nil)
		}
		return nil
	default:
		return &errors.MissingCapabilityError{
			ParentType: parent.TypeName(),
			ChildType:  child.TypeName(),
			Op:         "removeChild",
		}
	}
}

// Prop keys consumed by attachment dispatch rather than setters.

func pageName(p Props) string {
	if v, ok := p["pageName"].(string); ok {
		return v
	}
	return ""
}

func packSide(p Props) string {
	if v, ok := p["packType"].(string); ok {
		return v
	}
	return "start"
}

func gridPlacement(p Props) (col, row, colSpan, rowSpan int) {
	col = propInt(p, "column", 0)
	row = propInt(p, "row", 0)
	colSpan = propInt(p, "columnSpan", 1)
	rowSpan = propInt(p, "rowSpan", 1)
	return
}

func propInt(p Props, key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
