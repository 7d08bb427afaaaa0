package node

import "github.com/go-loom/loom/pkg/ffi"

// pagedNode backs stacked containers with named pages. A request to show
// a page that has not been added yet is remembered and applied when the
// page arrives instead of failing.
type pagedNode struct {
	*Widget
	pages          map[string]*stackPage
	pendingVisible string
}

type stackPage struct {
	child Node
	name  string
	page  ffi.Handle
}

func (n *pagedNode) Initialize(props Props) error {
	filtered, want := n.interceptVisible(props)
	if err := n.Widget.Initialize(filtered); err != nil {
		return err
	}
	if want != "" {
		n.pendingVisible = want
	}
	return nil
}

func (n *pagedNode) UpdateProps(old, new Props) error {
	filtered, want := n.interceptVisible(new)
	if err := n.Widget.UpdateProps(old, filtered); err != nil {
		return err
	}
	if want != "" {
		n.pendingVisible = want
	}
	return nil
}

// interceptVisible strips a visible-page request naming an absent page so
// the generic setter pass cannot forward it to a native call that would
// silently fail.
func (n *pagedNode) interceptVisible(props Props) (Props, string) {
	name, ok := props["visibleChildName"].(string)
	if !ok || n.pages[name] != nil {
		return props, ""
	}
	filtered := make(Props, len(props))
	for k, v := range props {
		if k == "visibleChildName" {
			continue
		}
		filtered[k] = v
	}
	return filtered, name
}

func (n *pagedNode) AddStackPage(child Node, name string) error {
	v, err := n.containerQuery("addPage", ffi.Object(true),
		ffi.Arg{Type: ffi.Object(true), Value: child.Handle()},
		ffi.Arg{Type: ffi.String(true), Value: name},
	)
	if err != nil {
		return err
	}
	page, _ := v.(ffi.Handle)
	n.pages[name] = &stackPage{child: child, name: name, page: page}

	if n.pendingVisible == name {
		n.pendingVisible = ""
		if err := n.applySingle("visibleChildName", name); err != nil {
			return err
		}
		n.props["visibleChildName"] = name
	}
	return nil
}

func (n *pagedNode) RemoveStackPage(child Node) error {
	for name, page := range n.pages {
		if page.child == child {
			delete(n.pages, name)
			break
		}
	}
	return n.containerCall("remove", ffi.Arg{Type: ffi.Object(true), Value: child.Handle()})
}

// UpdateStackPageProps renames a page when its name prop changes. The
// pending visible request is re-checked against the new name.
func (n *pagedNode) UpdateStackPageProps(child Node, props Props) error {
	newName := pageName(props)
	var entry *stackPage
	for name, page := range n.pages {
		if page.child == child {
			if name == newName {
				return nil
			}
			entry = page
			delete(n.pages, name)
			break
		}
	}
	if entry == nil {
		return nil
	}
	entry.name = newName
	n.pages[newName] = entry

	if symbol, ok := n.table.Container.Symbol("setPageName"); ok {
		_, err := n.ctx.Invoker.Invoke(ffi.Call{
			Library: n.library(),
			Symbol:  symbol,
			Args: []ffi.Arg{
				{Type: ffi.Object(true), Value: entry.page},
				{Type: ffi.String(true), Value: newName},
			},
			Return: ffi.Void(),
		})
		if err != nil {
			return err
		}
	}
	if n.pendingVisible == newName {
		n.pendingVisible = ""
		if err := n.applySingle("visibleChildName", newName); err != nil {
			return err
		}
		n.props["visibleChildName"] = newName
	}
	return nil
}
