package wire

// An Encoder accumulates a D-Bus wire-format byte stream.
//
// Methods insert padding as needed to satisfy D-Bus alignment rules,
// except [Encoder.Write], which appends bytes verbatim and is the
// caller's responsibility to align beforehand.
type Encoder struct {
	// Order is the byte order used for multi-byte values.
	Order ByteOrder
	// Out accumulates the encoded bytes.
	Out []byte
}

// Pad appends zero bytes, if needed, so that the next write starts at a
// multiple of align bytes.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var zero [8]byte
	e.Out = append(e.Out, zero[:align-extra]...)
}

// Write appends bs as-is.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes a 4-byte-aligned length-prefixed byte array (no trailing
// NUL; used for ARRAY<BYTE> bodies, not for STRING).
func (e *Encoder) Bytes(bs []byte) {
	e.Pad(4)
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes a D-Bus STRING or OBJECT_PATH: 4-byte length (not
// counting the trailing NUL), the UTF-8 bytes, then a NUL.
func (e *Encoder) String(s string) {
	e.Pad(4)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes a D-Bus SIGNATURE: 1-byte length, the bytes, then a
// NUL.
func (e *Encoder) Signature(s string) {
	e.Out = append(e.Out, byte(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

func (e *Encoder) Uint8(v uint8) {
	e.Out = append(e.Out, v)
}

func (e *Encoder) Bool(v bool) {
	e.Pad(4)
	if v {
		e.Out = e.Order.AppendUint32(e.Out, 1)
	} else {
		e.Out = e.Order.AppendUint32(e.Out, 0)
	}
}

func (e *Encoder) Uint16(v uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, v)
}

func (e *Encoder) Uint32(v uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, v)
}

func (e *Encoder) Uint64(v uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, v)
}

func (e *Encoder) Double(v float64) {
	e.Uint64(doubleBits(v))
}

// ByteOrderFlag writes the wire flag byte ('l' or 'B') matching e.Order.
func (e *Encoder) ByteOrderFlag() {
	e.Out = append(e.Out, e.Order.DBusFlag())
}

// Array writes an array: a 4-byte length of the element bytes (not
// counting inter-field padding before the first element), then padding
// to the element alignment, then the elements written by fn.
//
// elemAlign must be 8 when the element type aligns to 8 bytes (STRUCT,
// DICT_ENTRY, INT64, UINT64, DOUBLE), so that the padding is written and
// the decoder can skip it even for an empty array (spec §4.1).
func (e *Encoder) Array(elemAlign int, fn func()) {
	e.Pad(4)
	lenOffset := len(e.Out)
	e.Uint32(0)
	if elemAlign == 8 {
		e.Pad(8)
	}
	start := len(e.Out)
	fn()
	end := len(e.Out)
	e.Order.PutUint32(e.Out[lenOffset:], uint32(end-start))
}

// Struct writes a struct: pad to 8 bytes, then the fields written by fn.
func (e *Encoder) Struct(fn func()) {
	e.Pad(8)
	fn()
}
