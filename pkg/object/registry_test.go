package object

import (
	"testing"

	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/ffi/ffitest"
)

// fakeTypeSystem scripts a toolkit type hierarchy onto a recorder:
// GtkButton -> GtkWidget -> GObject.
func fakeTypeSystem(r *ffitest.Recorder) {
	names := map[uint64]string{3: "GtkButton", 2: "GtkWidget", 1: "GObject"}
	ids := map[string]uint64{"GtkButton": 3, "GtkWidget": 2, "GObject": 1}
	parents := map[uint64]uint64{3: 2, 2: 1, 1: 0}

	r.Handlers["g_type_name_from_instance"] = func(call ffi.Call) (any, error) {
		return "GtkButton", nil
	}
	r.Handlers["g_type_from_name"] = func(call ffi.Call) (any, error) {
		return ids[call.Args[0].Value.(string)], nil
	}
	r.Handlers["g_type_parent"] = func(call ffi.Call) (any, error) {
		gtype, _ := call.Args[0].Value.(uint64)
		return parents[gtype], nil
	}
	r.Handlers["g_type_name"] = func(call ffi.Call) (any, error) {
		gtype, _ := call.Args[0].Value.(uint64)
		return names[gtype], nil
	}
}

type buttonWrapper struct{ *Base }

type widgetWrapper struct{ *Base }

func TestWrap_ExactMatchWins(t *testing.T) {
	r := ffitest.New()
	fakeTypeSystem(r)
	reg := NewRegistry(r)
	reg.RegisterWrapper("GtkButton", func(h ffi.Handle) Wrapper {
		return buttonWrapper{NewBase(h, "GtkButton")}
	})
	reg.RegisterWrapper("GtkWidget", func(h ffi.Handle) Wrapper {
		return widgetWrapper{NewBase(h, "GtkWidget")}
	})

	w := reg.Wrap(ffi.Handle(0x100))
	if _, ok := w.(buttonWrapper); !ok {
		t.Errorf("wrapped as %T, want buttonWrapper", w)
	}
}

func TestWrap_FallsBackToClosestAncestor(t *testing.T) {
	r := ffitest.New()
	fakeTypeSystem(r)
	reg := NewRegistry(r)
	reg.RegisterWrapper("GtkWidget", func(h ffi.Handle) Wrapper {
		return widgetWrapper{NewBase(h, "GtkWidget")}
	})

	w := reg.Wrap(ffi.Handle(0x100))
	if _, ok := w.(widgetWrapper); !ok {
		t.Errorf("wrapped as %T, want widgetWrapper via ancestor walk", w)
	}
}

func TestWrap_NoRegistrationYieldsGenericShell(t *testing.T) {
	r := ffitest.New()
	fakeTypeSystem(r)
	reg := NewRegistry(r)

	w := reg.Wrap(ffi.Handle(0x100))
	base, ok := w.(*Base)
	if !ok {
		t.Fatalf("wrapped as %T, want *Base", w)
	}
	if base.TypeName() != "GtkButton" {
		t.Errorf("generic wrapper type = %q, want runtime type name", base.TypeName())
	}
}

func TestWrap_NullHandleIsNilNotError(t *testing.T) {
	reg := NewRegistry(ffitest.New())
	if w := reg.Wrap(0); w != nil {
		t.Errorf("Wrap(0) = %v, want nil", w)
	}
}

func TestWrap_SameHandleComparesEqual(t *testing.T) {
	r := ffitest.New()
	fakeTypeSystem(r)
	reg := NewRegistry(r)

	a := reg.Wrap(ffi.Handle(0x200))
	b := reg.Wrap(ffi.Handle(0x200))
	if !Equal(a, b) {
		t.Error("wrappers of the same handle should compare equal")
	}
	if Unwrap(a) != ffi.Handle(0x200) {
		t.Errorf("Unwrap(Wrap(h)) = %v, want 0x200", Unwrap(a))
	}
	c := reg.Wrap(ffi.Handle(0x201))
	if Equal(a, c) {
		t.Error("wrappers of different handles must not compare equal")
	}
}

func TestWrap_NeverInvokesAConstructorSymbol(t *testing.T) {
	r := ffitest.New()
	fakeTypeSystem(r)
	reg := NewRegistry(r)
	reg.Wrap(ffi.Handle(0x300))

	for _, sym := range r.Symbols() {
		switch sym {
		case "g_type_name_from_instance", "g_type_from_name", "g_type_parent", "g_type_name":
		default:
			t.Errorf("Wrap issued unexpected call %s", sym)
		}
	}
}
