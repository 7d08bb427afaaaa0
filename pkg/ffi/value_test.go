package ffi

import (
	"reflect"
	"testing"
	"unsafe"
)

func TestCoerceInt_AcceptsIntegralFloat(t *testing.T) {
	if n, ok := coerceInt(float64(42)); !ok || n != 42 {
		t.Errorf("coerceInt(42.0) = %d, %v", n, ok)
	}
	if _, ok := coerceInt(float64(4.5)); ok {
		t.Error("coerceInt(4.5) should reject a fractional float")
	}
	if _, ok := coerceInt("42"); ok {
		t.Error("coerceInt(string) should fail")
	}
}

func TestCoerceHandle_AcceptsWrapperInterface(t *testing.T) {
	w := fakeWrapper{h: 7}
	h, ok := coerceHandle(w)
	if !ok || h != 7 {
		t.Errorf("coerceHandle(wrapper) = %v, %v", h, ok)
	}
	if h, ok := coerceHandle(nil); !ok || h != 0 {
		t.Errorf("coerceHandle(nil) = %v, %v, want 0, true", h, ok)
	}
}

type fakeWrapper struct{ h Handle }

func (f fakeWrapper) Handle() Handle { return f.h }

func TestGoString_ReadsNulTerminated(t *testing.T) {
	buf := []byte("widget\x00garbage")
	got := goString(uintptr(unsafe.Pointer(&buf[0])))
	if got != "widget" {
		t.Errorf("goString = %q, want %q", got, "widget")
	}
	if goString(0) != "" {
		t.Error("goString(0) should be empty")
	}
}

func TestReadGError_CopiesFields(t *testing.T) {
	msg := []byte("file not found\x00")
	ge := gError{domain: 9, code: 4, message: uintptr(unsafe.Pointer(&msg[0]))}
	domain, code, message := readGError(uintptr(unsafe.Pointer(&ge)))
	if domain != 9 || code != 4 || message != "file not found" {
		t.Errorf("readGError = %d, %d, %q", domain, code, message)
	}
}

func TestGoABIType_WidthsAndPointers(t *testing.T) {
	cases := []struct {
		in   Type
		want reflect.Kind
	}{
		{Int32(), reflect.Int32},
		{Uint64(), reflect.Uint64},
		{Int8(), reflect.Int8},
		{Float32(), reflect.Float32},
		{Float64(), reflect.Float64},
		{Bool(), reflect.Int32},
		{String(true), reflect.Uintptr},
		{Object(true), reflect.Uintptr},
		{Ref(Int32()), reflect.Uintptr},
		{ErrorOut(), reflect.Uintptr},
	}
	for _, c := range cases {
		got, err := goABIType(c.in)
		if err != nil {
			t.Errorf("goABIType(%s): %v", c.in, err)
			continue
		}
		if got.Kind() != c.want {
			t.Errorf("goABIType(%s) = %s, want %s", c.in, got.Kind(), c.want)
		}
	}
	if _, err := goABIType(Void()); err == nil {
		t.Error("goABIType(void) should fail as an argument type")
	}
}

func TestRefSlot_RoundTrip(t *testing.T) {
	w, err := refSlotWord(Int32(), -5)
	if err != nil {
		t.Fatal(err)
	}
	got := readRefSlot(nil, Int32(), w)
	if got.(int64) != -5 {
		t.Errorf("ref round trip = %v, want -5", got)
	}

	w, err = refSlotWord(Float64(), 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if got := readRefSlot(nil, Float64(), w); got.(float64) != 2.5 {
		t.Errorf("float ref round trip = %v, want 2.5", got)
	}
}

func TestTypeString_Descriptors(t *testing.T) {
	cases := map[string]Type{
		"i32":        Int32(),
		"u8":         Uint8(),
		"f64":        Float64(),
		"boxed:GRef": Boxed("GRef", true),
		"array:i32":  Array(Int32(), ListNone, true),
		"ref:bool":   Ref(Bool()),
	}
	for want, typ := range cases {
		if got := typ.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
