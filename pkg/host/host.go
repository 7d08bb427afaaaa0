// Package host is the mutation surface the renderer drives: ordered tree
// operations per commit, bracketed by prepare/reset hooks that scope one
// call batch around every logical UI update.
package host

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/loop"
	"github.com/go-loom/loom/pkg/meta"
	"github.com/go-loom/loom/pkg/node"
	"github.com/go-loom/loom/pkg/object"
)

// Host binds the node factory, the call boundary, and the cooperative
// loop into the operation set a renderer needs.
type Host struct {
	ctx  *node.Context
	inv  ffi.Invoker
	loop *loop.Loop

	// instances tracks live nodes in creation order for diagnostics.
	instances []node.Node
}

// New assembles a host around the injected call boundary and metadata.
func New(inv ffi.Invoker, tables *meta.Registry, l *loop.Loop) *Host {
	ctx := &node.Context{
		Invoker: inv,
		Meta:    tables,
		Objects: object.NewRegistry(inv),
		Loop:    l,
	}
	node.NewFactory(ctx)
	return &Host{ctx: ctx, inv: inv, loop: l}
}

// Context exposes the shared collaborators, mainly for tests and tooling.
func (h *Host) Context() *node.Context { return h.ctx }

// CreateInstance builds and initializes the node for a virtual element.
func (h *Host) CreateInstance(typeName string, props node.Props) (node.Node, error) {
	h.loop.Check("host.CreateInstance")
	n, err := h.ctx.Factory.New(typeName, props)
	if err != nil {
		return nil, err
	}
	h.instances = append(h.instances, n)
	return n, nil
}

// AppendChild attaches child at the end of parent.
func (h *Host) AppendChild(parent, child node.Node) error {
	h.loop.Check("host.AppendChild")
	return node.AppendChild(parent, child)
}

// InsertBefore attaches child before an existing sibling of parent.
func (h *Host) InsertBefore(parent, child, before node.Node) error {
	h.loop.Check("host.InsertBefore")
	return node.InsertBefore(parent, child, before)
}

// RemoveChild detaches child and unmounts it. Unmount is unconditional:
// detach failures are reported and teardown still runs.
func (h *Host) RemoveChild(parent, child node.Node) error {
	h.loop.Check("host.RemoveChild")
	err := node.RemoveChild(parent, child)
	if err != nil {
		errors.Report(err)
	}
	child.Unmount()
	for i, n := range h.instances {
		if n == child {
			h.instances = append(h.instances[:i], h.instances[i+1:]...)
			break
		}
	}
	return err
}

// CommitUpdate applies a property diff to an instance.
func (h *Host) CommitUpdate(instance node.Node, old, new node.Props) error {
	h.loop.Check("host.CommitUpdate")
	return instance.UpdateProps(old, new)
}

// CommitMount runs an instance's post-attachment side effects.
func (h *Host) CommitMount(instance node.Node) error {
	h.loop.Check("host.CommitMount")
	return instance.Mount()
}

// PrepareForCommit opens the batch scope for one logical UI update. All
// void-returning native calls issued until ResetAfterCommit flush as one
// grouped invocation.
func (h *Host) PrepareForCommit() {
	h.loop.Check("host.PrepareForCommit")
	h.inv.BeginBatch()
}

// ResetAfterCommit flushes the commit's batch, releases deferred signal
// unblocks, and runs removals that waited for the commit boundary.
func (h *Host) ResetAfterCommit() error {
	h.loop.Check("host.ResetAfterCommit")
	err := h.inv.EndBatch()
	h.loop.DrainPostCommit()
	h.loop.DrainTurns()
	return err
}

// TreeNode is a diagnostic view of one live node.
type TreeNode struct {
	Type      string     `json:"type"`
	Handle    uint64     `json:"handle"`
	PropCount int        `json:"propCount"`
	Children  []TreeNode `json:"children,omitempty"`
}

// TreeSnapshot reconstructs the live tree from parent back-references,
// one entry per root, children in creation order.
func (h *Host) TreeSnapshot() []TreeNode {
	children := map[node.Node][]node.Node{}
	var roots []node.Node
	for _, n := range h.instances {
		p := n.Parent()
		if p == nil {
			roots = append(roots, n)
			continue
		}
		children[p] = append(children[p], n)
	}
	var build func(n node.Node) TreeNode
	build = func(n node.Node) TreeNode {
		tn := TreeNode{
			Type:      n.TypeName(),
			Handle:    uint64(n.Handle()),
			PropCount: len(n.Props()),
		}
		for _, c := range children[n] {
			tn.Children = append(tn.Children, build(c))
		}
		return tn
	}
	out := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out
}
