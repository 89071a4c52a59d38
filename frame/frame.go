// Package frame implements the streaming byte-level D-Bus frame layer
// (spec §4.2): assembling a complete message frame from a byte stream,
// and the symmetric encoder. It knows nothing about header-field
// semantics or the D-Bus type system — those are interpreted one layer
// up, in the root dbus package, from the raw bytes a Frame carries.
package frame

import (
	"fmt"
	"io"

	"github.com/lindenhall/dbusconn/wire"
)

// MaxMessageBytes is the maximum total size of a D-Bus message (spec
// §4.2: 2^27), counted over the whole message from its first byte: the
// 12-byte fixed prefix, the header-field array with its length and
// padding, and the body.
const MaxMessageBytes = 1 << 27

// A Frame is the raw, type-agnostic structure of one D-Bus message as it
// appears on the wire.
type Frame struct {
	Order   wire.ByteOrder
	Type    byte
	Flags   byte
	Version byte
	Serial  uint32

	// HeaderFields holds the exact encoded bytes of the header-field
	// array's elements (an ARRAY<STRUCT<BYTE,VARIANT>>), not including
	// the 4-byte length prefix or the padding before the first element.
	HeaderFields []byte

	// Body holds the exact encoded message body bytes.
	Body []byte
}

// Decoder assembles Frames from a byte stream.
type Decoder struct {
	In io.Reader
}

// Next reads and returns one complete Frame from d.In.
//
// It enforces the maximum message length and the maximum header-array
// length from spec §3.1/§4.2; any violation is returned as an error and
// the stream should be considered unusable afterward (spec §7: codec and
// framing errors are fatal, since misalignment cannot be recovered
// mid-stream).
func (d *Decoder) Next() (*Frame, error) {
	dec := &wire.Decoder{In: d.In}

	if err := dec.ByteOrderFlag(); err != nil {
		return nil, err
	}
	f := &Frame{Order: dec.Order}

	typ, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	f.Type = typ

	flags, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	f.Flags = flags

	version, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	f.Version = version
	if version != 1 {
		return nil, fmt.Errorf("frame: unsupported protocol version %d", version)
	}

	bodyLen, err := dec.Uint32()
	if err != nil {
		return nil, err
	}

	serial, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	f.Serial = serial

	fieldsLen, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	if fieldsLen > wire.MaxArrayBytes {
		return nil, fmt.Errorf("frame: header field array length %d exceeds maximum of %d bytes", fieldsLen, wire.MaxArrayBytes)
	}

	// STRUCT elements align to 8 bytes, even for a zero-length array.
	if err := dec.Pad(8); err != nil {
		return nil, err
	}
	f.HeaderFields, err = dec.Read(int(fieldsLen))
	if err != nil {
		return nil, err
	}

	// Pad to 8-byte boundary after the header array, before the body.
	if err := dec.Pad(8); err != nil {
		return nil, err
	}

	if dec.Consumed()+int(bodyLen) > MaxMessageBytes {
		return nil, fmt.Errorf("frame: message length %d exceeds maximum of %d bytes", dec.Consumed()+int(bodyLen), MaxMessageBytes)
	}

	f.Body, err = dec.Read(int(bodyLen))
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Encode renders f back into its wire-format bytes. Per spec §4.2, the
// encoder always emits big-endian, regardless of f.Order; the decoder
// supports either.
func Encode(f *Frame) []byte {
	enc := &wire.Encoder{Order: wire.BigEndian}
	enc.ByteOrderFlag()
	enc.Uint8(f.Type)
	enc.Uint8(f.Flags)
	enc.Uint8(f.Version)
	enc.Uint32(uint32(len(f.Body)))
	enc.Uint32(f.Serial)
	enc.Uint32(uint32(len(f.HeaderFields)))
	enc.Pad(8)
	enc.Write(f.HeaderFields)
	enc.Pad(8)
	enc.Write(f.Body)
	return enc.Out
}
