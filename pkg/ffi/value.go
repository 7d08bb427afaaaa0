package ffi

import (
	"fmt"
	"math"
	"reflect"
	"unsafe"
)

// Float bit conversions for carrying float values through uintptr words.

func floatBits32(f float32) uint32 { return math.Float32bits(f) }
func floatFrom32(b uint32) float32 { return math.Float32frombits(b) }
func floatBits64(f float64) uint64 { return math.Float64bits(f) }
func floatFrom64(b uint64) float64 { return math.Float64frombits(b) }

// coerceInt accepts any Go integer value and returns it as int64.
func coerceInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uintptr:
		return int64(n), true
	case Handle:
		return int64(n), true
	case float64:
		// Property maps built from dynamic front ends carry whole numbers
		// as floats; accept them when they are integral.
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// coerceFloat accepts any Go numeric value and returns it as float64.
func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		if i, ok := coerceInt(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// coerceHandle accepts the values that stand for a native pointer.
func coerceHandle(v any) (Handle, bool) {
	switch h := v.(type) {
	case nil:
		return 0, true
	case Handle:
		return h, true
	case uintptr:
		return Handle(h), true
	case interface{ Handle() Handle }:
		return h.Handle(), true
	default:
		return 0, false
	}
}

// cBytes returns a NUL-terminated copy of s.
func cBytes(s string) []byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf
}

// bytesAddr returns the address of the first byte of buf.
func bytesAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

// goString copies a NUL-terminated native string into a Go string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

// gError mirrors the toolkit's error-object layout.
type gError struct {
	domain  uint32
	code    int32
	message uintptr
}

// readGError copies the fields of a native error object.
func readGError(p uintptr) (domain uint32, code int32, message string) {
	if p == 0 {
		return 0, 0, ""
	}
	ge := (*gError)(unsafe.Pointer(p))
	return ge.domain, ge.code, goString(ge.message)
}

// goABIType maps a descriptor to the Go type used in a registered call stub.
// Pointer-like kinds all travel as uintptr.
func goABIType(t Type) (reflect.Type, error) {
	switch t.Kind {
	case KindBool:
		// The toolkit's boolean is a 32-bit int.
		return reflect.TypeOf(int32(0)), nil
	case KindInt:
		switch {
		case t.Signed && t.Width == 8:
			return reflect.TypeOf(int8(0)), nil
		case t.Signed && t.Width == 16:
			return reflect.TypeOf(int16(0)), nil
		case t.Signed && t.Width == 32:
			return reflect.TypeOf(int32(0)), nil
		case t.Signed:
			return reflect.TypeOf(int64(0)), nil
		case t.Width == 8:
			return reflect.TypeOf(uint8(0)), nil
		case t.Width == 16:
			return reflect.TypeOf(uint16(0)), nil
		case t.Width == 32:
			return reflect.TypeOf(uint32(0)), nil
		default:
			return reflect.TypeOf(uint64(0)), nil
		}
	case KindFloat:
		if t.Width == 32 {
			return reflect.TypeOf(float32(0)), nil
		}
		return reflect.TypeOf(float64(0)), nil
	case KindNull, KindString, KindObject, KindBoxed, KindArray, KindRef,
		KindCallback, KindErrorOut, KindCallbackData:
		return reflect.TypeOf(uintptr(0)), nil
	default:
		return nil, fmt.Errorf("type %s cannot cross the call boundary", t)
	}
}

// sliceLen returns the length of any supported array value.
func sliceLen(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return 0, false
	}
	return rv.Len(), true
}

// sliceIndex returns element i of any supported array value.
func sliceIndex(v any, i int) any {
	return reflect.ValueOf(v).Index(i).Interface()
}
