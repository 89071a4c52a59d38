package dbus

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lindenhall/dbusconn/wire"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	enc := &wire.Encoder{Order: wire.LittleEndian}
	if err := EncodeValue(enc, v); err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	dec := &wire.Decoder{Order: wire.LittleEndian, In: bytes.NewReader(enc.Out)}
	got, err := DecodeValue(dec, TypeOf(v))
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	return got
}

func TestValueRoundTrip(t *testing.T) {
	tests := []Value{
		Byte(0xAB),
		Boolean(true),
		Boolean(false),
		Int16(-1234),
		Uint16(4321),
		Int32(-123456),
		Uint32(123456),
		Int64(-1 << 40),
		Uint64(1 << 40),
		Double(3.14159),
		Str("hello, world"),
		Str(""),
		ObjectPath("/org/freedesktop/DBus"),
		Sig(MustParseSignature("a{sv}")),
		UnixFD(3),
		Array{Elem: typeString, Items: []Value{Str("a"), Str("bb"), Str("ccc")}},
		Array{Elem: typeInt32, Items: nil},
		Struct{Fields: []Value{Byte(1), Str("two"), Boolean(true)}},
		Variant{Sig: typeUint32, Value: Uint32(99)},
		Array{
			Elem: &Type{Kind: KindDictEntry, Key: typeString, Val: typeVariant},
			Items: []Value{
				DictEntry{Key: Str("k1"), Val: Variant{Sig: typeInt32, Value: Int32(1)}},
				DictEntry{Key: Str("k2"), Val: Variant{Sig: typeString, Value: Str("v2")}},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.Kind().String(), func(t *testing.T) {
			got := roundTrip(t, tc)
			if diff := cmp.Diff(tc, got, cmp.Comparer(func(a, b Sig) bool {
				return Signature(a).String() == Signature(b).String()
			})); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeValueRejectsInvalidObjectPath(t *testing.T) {
	enc := &wire.Encoder{Order: wire.LittleEndian}
	if err := EncodeValue(enc, ObjectPath("/trailing/")); err == nil {
		t.Fatal("expected error encoding object path with trailing slash, got nil")
	}
}

func TestDecodeValueRejectsInvalidObjectPath(t *testing.T) {
	enc := &wire.Encoder{Order: wire.LittleEndian}
	enc.String("/trailing/")
	dec := &wire.Decoder{Order: wire.LittleEndian, In: bytes.NewReader(enc.Out)}
	if _, err := DecodeValue(dec, typeObjectPath); err == nil {
		t.Fatal("expected error decoding object path with trailing slash, got nil")
	}
}

func TestDecodeVariantRejectsMultiTypeSignature(t *testing.T) {
	enc := &wire.Encoder{Order: wire.LittleEndian}
	enc.Signature("ss")
	dec := &wire.Decoder{Order: wire.LittleEndian, In: bytes.NewReader(enc.Out)}
	if _, err := DecodeValue(dec, typeVariant); err == nil {
		t.Fatal("expected error decoding variant with a non-single signature, got nil")
	}
}

func TestEncodeValueRejectsOversizedSignature(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'y'
	}
	sig, err := ParseSignature(string(long))
	if err != nil {
		t.Fatalf("building oversized signature: %v", err)
	}
	enc := &wire.Encoder{Order: wire.LittleEndian}
	if err := EncodeValue(enc, Sig(sig)); err == nil {
		t.Fatal("expected error encoding signature longer than 255 bytes, got nil")
	}
}
