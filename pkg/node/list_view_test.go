package node

import (
	"testing"

	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/ffi/ffitest"
)

type renderRecord struct {
	sub  Node
	item any
}

func newListViewEnv(t *testing.T) (*testEnv, *listViewNode, *[]renderRecord) {
	t.Helper()
	env := newTestEnv(t)
	renders := &[]renderRecord{}
	render := func(sub Node, item any) {
		*renders = append(*renders, renderRecord{sub: sub, item: item})
	}
	n := env.mustNew(t, "TestListView", Props{
		"itemRoot":   "TestButton",
		"renderItem": render,
	})
	return env, n.(*listViewNode), renders
}

// connectedCallback digs the Go side of a signal subscription out of the
// recorded connect call so tests can fire lifecycle events.
func connectedCallback(t *testing.T, env *testEnv, obj ffi.Handle, event string) ffi.CallbackFunc {
	t.Helper()
	for _, call := range env.rec.CallsTo("g_signal_connect_data") {
		h, err := ffitest.ArgHandle(call, 0)
		if err != nil {
			t.Fatalf("connect call: %v", err)
		}
		if h == obj && call.Args[1].Value == event {
			return call.Args[2].Value.(ffi.CallbackFunc)
		}
	}
	t.Fatalf("no subscription for %q", event)
	return nil
}

func TestListViewWiresModelAndFactory(t *testing.T) {
	env, lv, _ := newListViewEnv(t)

	if lv.model.IsNil() || lv.selection.IsNil() || lv.factory.IsNil() {
		t.Fatal("model, selection, or factory missing")
	}
	setModel := env.rec.CallsTo("test_list_view_set_model")
	if len(setModel) != 1 || argHandle(t, setModel[0], 1) != lv.selection {
		t.Fatal("selection model not set on the view")
	}
	setFactory := env.rec.CallsTo("test_list_view_set_factory")
	if len(setFactory) != 1 || argHandle(t, setFactory[0], 1) != lv.factory {
		t.Fatal("item factory not set on the view")
	}
	for _, event := range []string{"setup", "bind", "unbind", "teardown"} {
		connectedCallback(t, env, lv.factory, event)
	}
}

func TestVirtualizationReusesSubRoot(t *testing.T) {
	env, lv, renders := newListViewEnv(t)
	setup := connectedCallback(t, env, lv.factory, "setup")
	bind := connectedCallback(t, env, lv.factory, "bind")
	unbind := connectedCallback(t, env, lv.factory, "unbind")

	li := ffi.Handle(0xBEEF)
	env.rec.Returns["test_list_item_get_item"] = ffi.Handle(0x7777)

	setup([]any{li})
	if len(*renders) != 1 || (*renders)[0].item != nil {
		t.Fatalf("setup must render the nil placeholder, got %v", *renders)
	}
	root := (*renders)[0].sub
	if root == nil || root.Handle().IsNil() {
		t.Fatal("setup created no sub-root")
	}
	setChild := env.rec.CallsTo("test_list_item_set_child")
	if len(setChild) != 1 || argHandle(t, setChild[0], 1) != root.Handle() {
		t.Fatal("sub-root not installed as the row child")
	}

	bind([]any{li})
	if len(*renders) != 2 {
		t.Fatalf("bind rendered %d times, want 2 total", len(*renders))
	}
	if (*renders)[1].sub != root {
		t.Fatal("bind created a second sub-root instead of reusing")
	}
	item, ok := (*renders)[1].item.(interface{ Handle() ffi.Handle })
	if !ok || item.Handle() != 0x7777 {
		t.Fatalf("bind rendered item %v, want wrapper of 0x7777", (*renders)[1].item)
	}

	unbind([]any{li})
	if (*renders)[2].item != nil || (*renders)[2].sub != root {
		t.Fatal("unbind must render nil into the same sub-root")
	}

	bind([]any{li})
	if (*renders)[3].sub != root {
		t.Fatal("rebind did not reuse the sub-root")
	}
	if got := len(env.rec.CallsTo("test_button_new")); got != 1 {
		t.Fatalf("sub-root built %d times, want 1", got)
	}
}

func TestTeardownDeferredAndCancelable(t *testing.T) {
	env, lv, _ := newListViewEnv(t)
	setup := connectedCallback(t, env, lv.factory, "setup")
	bind := connectedCallback(t, env, lv.factory, "bind")
	teardown := connectedCallback(t, env, lv.factory, "teardown")

	li := ffi.Handle(0xBEEF)
	setup([]any{li})
	root := lv.subRoots[li].node

	// A rebind before the removal boundary cancels the pending removal.
	teardown([]any{li})
	if lv.subRoots[li].pending == nil {
		t.Fatal("teardown did not schedule a removal")
	}
	bind([]any{li})
	if lv.subRoots[li].pending != nil {
		t.Fatal("rebind did not cancel the pending removal")
	}
	env.loop.DrainTurns()
	if _, ok := lv.subRoots[li]; !ok {
		t.Fatal("canceled removal still ran")
	}

	// An undisturbed teardown removes the row on the next turn only.
	teardown([]any{li})
	if _, ok := lv.subRoots[li]; !ok {
		t.Fatal("teardown removed the row synchronously")
	}
	env.loop.DrainTurns()
	if _, ok := lv.subRoots[li]; ok {
		t.Fatal("removal did not run at the turn boundary")
	}
	found := false
	for _, call := range env.rec.CallsTo("g_object_unref") {
		if argHandle(t, call, 0) == root.Handle() {
			found = true
		}
	}
	if !found {
		t.Fatal("sub-root was not released")
	}
}

func TestRecycledRowKeepsSubRoot(t *testing.T) {
	env, lv, renders := newListViewEnv(t)
	setup := connectedCallback(t, env, lv.factory, "setup")
	teardown := connectedCallback(t, env, lv.factory, "teardown")

	li := ffi.Handle(0xBEEF)
	setup([]any{li})
	root := lv.subRoots[li].node

	teardown([]any{li})
	setup([]any{li})
	if lv.subRoots[li].node != root {
		t.Fatal("recycled setup rebuilt the sub-root")
	}
	if lv.subRoots[li].pending != nil {
		t.Fatal("recycled setup did not cancel the pending removal")
	}
	last := (*renders)[len(*renders)-1]
	if last.sub != root || last.item != nil {
		t.Fatal("recycled setup must rerender the nil placeholder")
	}
}

func TestItemModelOperations(t *testing.T) {
	env, lv, _ := newListViewEnv(t)
	a := env.mustNew(t, "TestButton", Props{})
	b := env.mustNew(t, "TestButton", Props{})

	if err := AppendChild(lv, a); err != nil {
		t.Fatalf("append: %v", err)
	}
	appends := env.rec.CallsTo("test_list_store_append")
	if len(appends) != 1 || argHandle(t, appends[0], 0) != lv.model || argHandle(t, appends[0], 1) != a.Handle() {
		t.Fatal("append did not target the backing model")
	}

	env.rec.Handlers["test_list_store_find"] = func(call ffi.Call) (any, error) {
		out := call.Args[2].Value.(*ffi.Out)
		out.Value = uint32(0)
		return true, nil
	}
	if err := InsertBefore(lv, b, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	inserts := env.rec.CallsTo("test_list_store_insert")
	if len(inserts) != 1 {
		t.Fatalf("insert called %d times, want 1", len(inserts))
	}
	if pos := inserts[0].Args[1].Value; pos != uint32(0) {
		t.Fatalf("inserted at %v, want 0", pos)
	}

	if err := lv.UpdateItem(a); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if got := len(env.rec.CallsTo("test_list_model_items_changed")); got != 1 {
		t.Fatalf("items_changed called %d times, want 1", got)
	}

	if err := RemoveChild(lv, a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(env.rec.CallsTo("test_list_store_remove")); got != 1 {
		t.Fatalf("store remove called %d times, want 1", got)
	}
}

// The live engine widens unsigned out slots to uint64 on readback; the
// position must survive that shape, not just a pre-narrowed uint32.
func TestItemPositionAcceptsWidenedOutValue(t *testing.T) {
	env, lv, _ := newListViewEnv(t)
	a := env.mustNew(t, "TestButton", Props{})
	b := env.mustNew(t, "TestButton", Props{})
	for _, child := range []Node{a, b} {
		if err := AppendChild(lv, child); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	env.rec.Handlers["test_list_store_find"] = func(call ffi.Call) (any, error) {
		out := call.Args[2].Value.(*ffi.Out)
		out.Value = uint64(1)
		return true, nil
	}

	if err := RemoveChild(lv, b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	removes := env.rec.CallsTo("test_list_store_remove")
	if len(removes) != 1 {
		t.Fatalf("store remove called %d times, want 1", len(removes))
	}
	if pos := removes[0].Args[1].Value; pos != uint32(1) {
		t.Fatalf("removed position %v, want 1", pos)
	}
}

func TestItemNotInModel(t *testing.T) {
	env, lv, _ := newListViewEnv(t)
	stranger := env.mustNew(t, "TestButton", Props{})

	env.rec.Returns["test_list_store_find"] = false
	if err := lv.RemoveItem(stranger); err == nil {
		t.Fatal("expected error for item missing from the model")
	}
}
