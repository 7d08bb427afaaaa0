package node

import (
	stderrors "errors"
	"testing"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/ffi/ffitest"
)

func TestSingleChildSlotEviction(t *testing.T) {
	env := newTestEnv(t)
	window := env.mustNew(t, "TestWindow", Props{})
	first := env.mustNew(t, "TestButton", Props{})
	second := env.mustNew(t, "TestButton", Props{})

	if err := AppendChild(window, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := AppendChild(window, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	slot := window.(SingleChildContainer)
	if slot.Child() != second {
		t.Fatal("slot does not hold the second child")
	}
	if first.Parent() != nil {
		t.Fatal("evicted child still has a parent")
	}
	calls := env.rec.CallsTo("test_window_set_child")
	if len(calls) != 2 {
		t.Fatalf("set_child called %d times, want 2", len(calls))
	}
	if got := argHandle(t, calls[1], 1); got != second.Handle() {
		t.Fatalf("slot holds %#x, want %#x", got, second.Handle())
	}
}

func TestSingleChildRemove(t *testing.T) {
	env := newTestEnv(t)
	window := env.mustNew(t, "TestWindow", Props{})
	child := env.mustNew(t, "TestButton", Props{})

	if err := AppendChild(window, child); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := RemoveChild(window, child); err != nil {
		t.Fatalf("remove: %v", err)
	}

	calls := env.rec.CallsTo("test_window_set_child")
	if len(calls) != 2 {
		t.Fatalf("set_child called %d times, want 2", len(calls))
	}
	if got := argHandle(t, calls[1], 1); got != 0 {
		t.Fatalf("slot cleared with %#x, want null", got)
	}
	if child.Parent() != nil {
		t.Fatal("removed child still has a parent")
	}
}

func TestSlotNodeWritesThroughHost(t *testing.T) {
	env := newTestEnv(t)
	window := env.mustNew(t, "TestWindow", Props{})
	titlebar := env.mustNew(t, "TestWindow.titlebar", Props{})
	header := env.mustNew(t, "TestHeaderBar", Props{})

	if err := AppendChild(window, titlebar); err != nil {
		t.Fatalf("attach slot: %v", err)
	}
	if err := AppendChild(titlebar, header); err != nil {
		t.Fatalf("fill slot: %v", err)
	}

	calls := env.rec.CallsTo("test_window_set_titlebar")
	if len(calls) != 1 {
		t.Fatalf("slot setter called %d times, want 1", len(calls))
	}
	if got := argHandle(t, calls[0], 0); got != window.Handle() {
		t.Fatalf("slot written on %#x, want host %#x", got, window.Handle())
	}
	if got := argHandle(t, calls[0], 1); got != header.Handle() {
		t.Fatalf("slot value %#x, want %#x", got, header.Handle())
	}
	if !titlebar.Handle().IsNil() {
		t.Fatal("virtual slot node must have no native handle")
	}

	if err := RemoveChild(titlebar, header); err != nil {
		t.Fatalf("clear slot: %v", err)
	}
	calls = env.rec.CallsTo("test_window_set_titlebar")
	if len(calls) != 2 {
		t.Fatalf("slot setter called %d times after clear, want 2", len(calls))
	}
	if got := argHandle(t, calls[1], 1); got != 0 {
		t.Fatalf("cleared slot with %#x, want null", got)
	}
}

func TestUnknownSlotName(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.factory.New("TestWindow.sidebar", Props{}); err == nil {
		t.Fatal("expected error for unknown slot")
	}
}

func TestIndexedAppendOrder(t *testing.T) {
	env := newTestEnv(t)
	box := env.mustNew(t, "TestBox", Props{})
	a := env.mustNew(t, "TestButton", Props{})
	c := env.mustNew(t, "TestButton", Props{})

	if err := AppendChild(box, a); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := AppendChild(box, c); err != nil {
		t.Fatalf("append c: %v", err)
	}
	appends := env.rec.CallsTo("test_box_append")
	if len(appends) != 2 {
		t.Fatalf("append called %d times, want 2", len(appends))
	}
	if argHandle(t, appends[0], 1) != a.Handle() || argHandle(t, appends[1], 1) != c.Handle() {
		t.Fatal("append order does not match call order")
	}
}

func TestIndexedInsertBeforeUsesNativeSibling(t *testing.T) {
	env := newTestEnv(t)
	box := env.mustNew(t, "TestBox", Props{})
	a := env.mustNew(t, "TestButton", Props{})
	b := env.mustNew(t, "TestButton", Props{})
	c := env.mustNew(t, "TestButton", Props{})

	if err := AppendChild(box, a); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := AppendChild(box, c); err != nil {
		t.Fatalf("append c: %v", err)
	}

	// Native ground truth: the child before c is a.
	env.rec.Handlers["test_widget_get_prev_sibling"] = func(call ffi.Call) (any, error) {
		ref, err := ffitest.ArgHandle(call, 0)
		if err != nil {
			return nil, err
		}
		if ref != c.Handle() {
			t.Fatalf("sibling lookup for %#x, want %#x", ref, c.Handle())
		}
		return a.Handle(), nil
	}

	if err := InsertBefore(box, b, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	inserts := env.rec.CallsTo("test_box_insert_child_after")
	if len(inserts) != 1 {
		t.Fatalf("insert called %d times, want 1", len(inserts))
	}
	if got := argHandle(t, inserts[0], 1); got != b.Handle() {
		t.Fatalf("inserted %#x, want %#x", got, b.Handle())
	}
	if got := argHandle(t, inserts[0], 2); got != a.Handle() {
		t.Fatalf("inserted after %#x, want %#x", got, a.Handle())
	}
}

func TestIndexedInsertBeforeFirstChild(t *testing.T) {
	env := newTestEnv(t)
	box := env.mustNew(t, "TestBox", Props{})
	a := env.mustNew(t, "TestButton", Props{})
	b := env.mustNew(t, "TestButton", Props{})

	if err := AppendChild(box, a); err != nil {
		t.Fatalf("append: %v", err)
	}
	// No previous sibling: the reference child is first.
	env.rec.Returns["test_widget_get_prev_sibling"] = ffi.Handle(0)

	if err := InsertBefore(box, b, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	inserts := env.rec.CallsTo("test_box_insert_child_after")
	if len(inserts) != 1 {
		t.Fatalf("insert called %d times, want 1", len(inserts))
	}
	if got := argHandle(t, inserts[0], 2); got != 0 {
		t.Fatalf("sibling arg %#x, want null for head insert", got)
	}
}

func TestPackSideFixedAtAttach(t *testing.T) {
	env := newTestEnv(t)
	bar := env.mustNew(t, "TestHeaderBar", Props{})
	left := env.mustNew(t, "TestButton", Props{})
	right := env.mustNew(t, "TestButton", Props{"packType": "end"})

	if err := AppendChild(bar, left); err != nil {
		t.Fatalf("pack start: %v", err)
	}
	if err := AppendChild(bar, right); err != nil {
		t.Fatalf("pack end: %v", err)
	}
	if got := len(env.rec.CallsTo("test_header_bar_pack_start")); got != 1 {
		t.Fatalf("pack_start called %d times, want 1", got)
	}
	if got := len(env.rec.CallsTo("test_header_bar_pack_end")); got != 1 {
		t.Fatalf("pack_end called %d times, want 1", got)
	}

	// Both sides share one removal call.
	if err := RemoveChild(bar, left); err != nil {
		t.Fatalf("remove left: %v", err)
	}
	if err := RemoveChild(bar, right); err != nil {
		t.Fatalf("remove right: %v", err)
	}
	if got := len(env.rec.CallsTo("test_header_bar_remove")); got != 2 {
		t.Fatalf("remove called %d times, want 2", got)
	}
}

func TestDeferredPageAttach(t *testing.T) {
	env := newTestEnv(t)
	stack := env.mustNew(t, "TestStack", Props{})

	// The visible-page request arrives before the page exists.
	err := stack.UpdateProps(stack.Props(), Props{"visibleChildName": "settings"})
	if err != nil {
		t.Fatalf("UpdateProps: %v", err)
	}
	if got := len(env.rec.CallsTo("test_stack_set_visible_child_name")); got != 0 {
		t.Fatalf("visible setter ran %d times before page exists, want 0", got)
	}

	page := env.mustNew(t, "TestButton", Props{"pageName": "settings"})
	if err := AppendChild(stack, page); err != nil {
		t.Fatalf("append page: %v", err)
	}

	adds := env.rec.CallsTo("test_stack_add_named")
	if len(adds) != 1 {
		t.Fatalf("add_named called %d times, want 1", len(adds))
	}
	if got := adds[0].Args[2].Value; got != "settings" {
		t.Fatalf("page added as %v, want settings", got)
	}
	visible := env.rec.CallsTo("test_stack_set_visible_child_name")
	if len(visible) != 1 {
		t.Fatalf("visible setter called %d times after add, want 1", len(visible))
	}
	if got := visible[0].Args[1].Value; got != "settings" {
		t.Fatalf("visible page %v, want settings", got)
	}
}

func TestEagerPageAttach(t *testing.T) {
	env := newTestEnv(t)
	stack := env.mustNew(t, "TestStack", Props{})
	page := env.mustNew(t, "TestButton", Props{"pageName": "home"})

	if err := AppendChild(stack, page); err != nil {
		t.Fatalf("append page: %v", err)
	}
	err := stack.UpdateProps(stack.Props(), Props{"visibleChildName": "home"})
	if err != nil {
		t.Fatalf("UpdateProps: %v", err)
	}
	if got := len(env.rec.CallsTo("test_stack_set_visible_child_name")); got != 1 {
		t.Fatalf("visible setter called %d times, want 1", got)
	}
}

func TestPageRenameResolvesPending(t *testing.T) {
	env := newTestEnv(t)
	stack := env.mustNew(t, "TestStack", Props{})
	page := env.mustNew(t, "TestButton", Props{"pageName": "draft"})

	if err := AppendChild(stack, page); err != nil {
		t.Fatalf("append page: %v", err)
	}
	err := stack.UpdateProps(stack.Props(), Props{"visibleChildName": "final"})
	if err != nil {
		t.Fatalf("UpdateProps: %v", err)
	}
	if got := len(env.rec.CallsTo("test_stack_set_visible_child_name")); got != 0 {
		t.Fatalf("visible setter ran %d times early, want 0", got)
	}

	next := Props{"pageName": "final"}
	if err := page.UpdateProps(page.Props(), next); err != nil {
		t.Fatalf("rename page: %v", err)
	}
	if got := len(env.rec.CallsTo("test_stack_page_set_name")); got != 1 {
		t.Fatalf("page rename called %d times, want 1", got)
	}
	if got := len(env.rec.CallsTo("test_stack_set_visible_child_name")); got != 1 {
		t.Fatalf("visible setter called %d times after rename, want 1", got)
	}
}

func TestGridAttachAndReplacement(t *testing.T) {
	env := newTestEnv(t)
	grid := env.mustNew(t, "TestGrid", Props{})
	cell := env.mustNew(t, "TestButton", Props{"column": 1, "row": 2})

	if err := AppendChild(grid, cell); err != nil {
		t.Fatalf("append: %v", err)
	}
	attaches := env.rec.CallsTo("test_grid_attach")
	if len(attaches) != 1 {
		t.Fatalf("attach called %d times, want 1", len(attaches))
	}
	call := attaches[0]
	if call.Args[2].Value != 1 || call.Args[3].Value != 2 || call.Args[4].Value != 1 || call.Args[5].Value != 1 {
		t.Fatalf("placement = %v %v %v %v, want 1 2 1 1",
			call.Args[2].Value, call.Args[3].Value, call.Args[4].Value, call.Args[5].Value)
	}

	// Moving the child re-places in place, without a detach cycle.
	next := Props{"column": 3, "row": 2, "columnSpan": 2}
	if err := cell.UpdateProps(cell.Props(), next); err != nil {
		t.Fatalf("move: %v", err)
	}
	attaches = env.rec.CallsTo("test_grid_attach")
	if len(attaches) != 2 {
		t.Fatalf("attach called %d times after move, want 2", len(attaches))
	}
	if got := len(env.rec.CallsTo("test_grid_remove")); got != 0 {
		t.Fatalf("move issued %d removes, want 0", got)
	}
	moved := attaches[1]
	if moved.Args[2].Value != 3 || moved.Args[4].Value != 2 {
		t.Fatalf("moved to column %v span %v, want 3 and 2", moved.Args[2].Value, moved.Args[4].Value)
	}
}

func TestMissingCapability(t *testing.T) {
	env := newTestEnv(t)
	button := env.mustNew(t, "TestButton", Props{})
	other := env.mustNew(t, "TestButton", Props{})

	err := AppendChild(button, other)
	if err == nil {
		t.Fatal("expected missing-capability error")
	}
	var missing *errors.MissingCapabilityError
	if !stderrors.As(err, &missing) {
		t.Fatalf("error %v is not MissingCapabilityError", err)
	}
	if missing.ParentType != "TestButton" || missing.ChildType != "TestButton" {
		t.Fatalf("error names %q/%q", missing.ParentType, missing.ChildType)
	}
}
