package wire

import (
	"bytes"
	"reflect"
	"testing"
)

// padTo writes n junk bytes to enc, so a later primitive write starts at
// a chosen, possibly-unaligned offset.
func padTo(t *testing.T, enc *Encoder, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		enc.Uint8(0xAA)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type primitive struct {
		name  string
		write func(e *Encoder)
		read  func(d *Decoder) (any, error)
		want  any
	}
	prims := []primitive{
		{"uint8", func(e *Encoder) { e.Uint8(0x7F) }, func(d *Decoder) (any, error) { return d.Uint8() }, uint8(0x7F)},
		{"bool-true", func(e *Encoder) { e.Bool(true) }, func(d *Decoder) (any, error) { return d.Bool() }, true},
		{"uint16", func(e *Encoder) { e.Uint16(0x1234) }, func(d *Decoder) (any, error) { return d.Uint16() }, uint16(0x1234)},
		{"uint32", func(e *Encoder) { e.Uint32(0xCAFEBABE) }, func(d *Decoder) (any, error) { return d.Uint32() }, uint32(0xCAFEBABE)},
		{"uint64", func(e *Encoder) { e.Uint64(0x0102030405060708) }, func(d *Decoder) (any, error) { return d.Uint64() }, uint64(0x0102030405060708)},
		{"double", func(e *Encoder) { e.Double(3.5) }, func(d *Decoder) (any, error) { return d.Double() }, 3.5},
		{"string", func(e *Encoder) { e.String("hello") }, func(d *Decoder) (any, error) { return d.String() }, "hello"},
		{"signature", func(e *Encoder) { e.Signature("a{sv}") }, func(d *Decoder) (any, error) { return d.Signature() }, "a{sv}"},
		{"bytes", func(e *Encoder) { e.Bytes([]byte{1, 2, 3}) }, func(d *Decoder) (any, error) { return d.Bytes() }, []byte{1, 2, 3}},
	}

	// Alignment depends on the absolute stream offset, not local
	// context, so exercise every starting offset in two 8-byte periods.
	for offset := 0; offset < 16; offset++ {
		for _, p := range prims {
			t.Run(p.name+"@"+string(rune('0'+offset%10)), func(t *testing.T) {
				enc := &Encoder{Order: LittleEndian}
				padTo(t, enc, offset)
				p.write(enc)

				dec := &Decoder{Order: LittleEndian, In: bytes.NewReader(enc.Out)}
				if _, err := dec.Read(offset); err != nil {
					t.Fatalf("consuming leading padding: %v", err)
				}
				got, err := p.read(dec)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if !reflect.DeepEqual(got, p.want) {
					t.Errorf("decoded %#v, want %#v", got, p.want)
				}
			})
		}
	}
}

func TestBoolRejectsInvalidWireValue(t *testing.T) {
	enc := &Encoder{Order: LittleEndian}
	enc.Uint32(2)
	dec := &Decoder{Order: LittleEndian, In: bytes.NewReader(enc.Out)}
	if _, err := dec.Bool(); err == nil {
		t.Fatal("expected error decoding BOOLEAN wire value 2, got nil")
	}
}

func TestArrayRejectsOversizedLength(t *testing.T) {
	enc := &Encoder{Order: LittleEndian}
	enc.Uint32(MaxArrayBytes + 1)
	dec := &Decoder{Order: LittleEndian, In: bytes.NewReader(enc.Out)}
	_, err := dec.Array(1, func(i int) error { return nil })
	if err == nil {
		t.Fatal("expected error decoding array exceeding MaxArrayBytes, got nil")
	}
}

func TestStringRejectsMissingNUL(t *testing.T) {
	enc := &Encoder{Order: LittleEndian}
	enc.Uint32(3)
	enc.Write([]byte("abc")) // no trailing NUL
	dec := &Decoder{Order: LittleEndian, In: bytes.NewReader(enc.Out)}
	if _, err := dec.String(); err == nil {
		t.Fatal("expected error decoding non-NUL-terminated string, got nil")
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	enc := &Encoder{Order: LittleEndian}
	bad := []byte{0xff, 0xfe}
	enc.Uint32(uint32(len(bad)))
	enc.Write(bad)
	enc.Write([]byte{0})
	dec := &Decoder{Order: LittleEndian, In: bytes.NewReader(enc.Out)}
	if _, err := dec.String(); err == nil {
		t.Fatal("expected error decoding invalid UTF-8 string, got nil")
	}
}

func TestArrayEmptyStillAlignsStructHeader(t *testing.T) {
	enc := &Encoder{Order: LittleEndian}
	enc.Write([]byte{1, 2, 3, 4, 5}) // misalign by five bytes
	enc.Array(8, func() {})
	// 5 + pad-to-4(3) + length(4) + pad-to-8(4) = offset 16 before the
	// (absent) elements.
	if len(enc.Out) != 16 {
		t.Fatalf("expected empty 8-aligned array to end at offset 16, got %d", len(enc.Out))
	}

	dec := &Decoder{Order: LittleEndian, In: bytes.NewReader(enc.Out)}
	if _, err := dec.Read(5); err != nil {
		t.Fatal(err)
	}
	n, err := dec.Array(8, func(i int) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 elements, got %d", n)
	}
}

func TestByteOrderFlagRoundTrip(t *testing.T) {
	for _, order := range []ByteOrder{BigEndian, LittleEndian} {
		enc := &Encoder{Order: order}
		enc.ByteOrderFlag()
		dec := &Decoder{In: bytes.NewReader(enc.Out)}
		if err := dec.ByteOrderFlag(); err != nil {
			t.Fatal(err)
		}
		if dec.Order.DBusFlag() != order.DBusFlag() {
			t.Errorf("got flag %q, want %q", dec.Order.DBusFlag(), order.DBusFlag())
		}
	}
}
