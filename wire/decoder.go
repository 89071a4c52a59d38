package wire

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxArrayBytes is the maximum encoded length, in bytes, of an array's
// element data (spec §3.1: 2^26).
const MaxArrayBytes = 1 << 26

// A Decoder reads a D-Bus wire-format byte stream.
//
// Methods consume padding as needed to stay aligned with D-Bus rules,
// except [Decoder.Read], which consumes bytes verbatim.
type Decoder struct {
	// Order is the byte order to interpret multi-byte values with.
	Order ByteOrder
	// In is the input stream.
	In io.Reader

	// offset tracks bytes consumed modulo 8, since alignment depends on
	// the absolute offset within the enclosing message, not on local
	// context.
	offset int
	// total tracks the total number of bytes consumed from In, for
	// callers that need to enforce an overall message size limit.
	total int
}

// Consumed returns the total number of bytes read from In so far.
func (d *Decoder) Consumed() int { return d.total }

// Pad consumes padding bytes, if needed, so that the next read starts at
// a multiple of align bytes.
func (d *Decoder) Pad(align int) error {
	extra := d.offset % align
	if extra == 0 {
		return nil
	}
	skip := align - extra
	if _, err := io.CopyN(io.Discard, d.In, int64(skip)); err != nil {
		return err
	}
	d.offset = (d.offset + skip) % 8
	d.total += skip
	return nil
}

// Read reads exactly n bytes with no alignment or framing.
func (d *Decoder) Read(n int) ([]byte, error) {
	bs := make([]byte, n)
	if _, err := io.ReadFull(d.In, bs); err != nil {
		return nil, err
	}
	d.offset = (d.offset + n) % 8
	d.total += n
	return bs, nil
}

// Bytes reads a 4-byte-aligned length-prefixed byte array.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.Read(int(n))
}

// String reads a D-Bus STRING or OBJECT_PATH and validates that it is
// well-formed UTF-8 terminated by NUL (spec §3.1).
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	bs, err := d.Read(int(n) + 1)
	if err != nil {
		return "", err
	}
	if bs[len(bs)-1] != 0 {
		return "", fmt.Errorf("string is not NUL-terminated")
	}
	s := bs[:len(bs)-1]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("string is not valid UTF-8")
	}
	return string(s), nil
}

// Signature reads a D-Bus SIGNATURE: a 1-byte length, the bytes, then a
// NUL. Per spec §3.1 the body must be at most 255 bytes, which is
// structurally guaranteed since the length is a single byte.
func (d *Decoder) Signature() (string, error) {
	bs, err := d.Read(1)
	if err != nil {
		return "", err
	}
	n := int(bs[0])
	body, err := d.Read(n + 1)
	if err != nil {
		return "", err
	}
	if body[len(body)-1] != 0 {
		return "", fmt.Errorf("signature is not NUL-terminated")
	}
	return string(body[:len(body)-1]), nil
}

func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Bool reads a D-Bus BOOLEAN, rejecting any wire value other than 0 or 1
// (spec §3.1 invariant).
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid BOOLEAN wire value %d", v)
	}
}

func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

func (d *Decoder) Double() (float64, error) {
	u, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	return bitsToDouble(u), nil
}

// ByteOrderFlag reads the wire byte-order flag and sets d.Order to match.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	order, ok := OrderForFlag(v)
	if !ok {
		return fmt.Errorf("unknown byte order flag %q", v)
	}
	d.Order = order
	return nil
}

// Array reads an array's length-prefixed element data, then invokes
// readElement repeatedly (passing the element index) until the declared
// element bytes are exhausted. readElement must consume exactly its
// element's bytes, neither more nor less.
//
// elemAlign must be the alignment of the element type; for elements
// that align to 8 bytes (STRUCT, DICT_ENTRY), the header padding is
// consumed even when the array is empty, matching the encoder.
func (d *Decoder) Array(elemAlign int, readElement func(i int) error) (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if n > MaxArrayBytes {
		return 0, fmt.Errorf("array length %d exceeds maximum of %d bytes", n, MaxArrayBytes)
	}
	if elemAlign == 8 {
		if err := d.Pad(8); err != nil {
			return 0, err
		}
	}
	if n == 0 {
		return 0, nil
	}
	outer := d.In
	limit := &io.LimitedReader{R: outer, N: int64(n)}
	d.In = limit
	defer func() { d.In = outer }()

	idx := 0
	for limit.N > 0 {
		if err := readElement(idx); err != nil {
			return idx, err
		}
		idx++
	}
	return idx, nil
}

// Struct consumes the 8-byte struct alignment padding, then invokes fn to
// read the fields.
func (d *Decoder) Struct(fn func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fn()
}
