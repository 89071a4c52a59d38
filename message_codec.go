package dbus

import (
	"bytes"
	"fmt"

	"github.com/lindenhall/dbusconn/frame"
	"github.com/lindenhall/dbusconn/wire"
)

// EncodeMessage renders m into a [frame.Frame], validating the body
// against m.Signature as it goes (spec §9 Open Question: this
// specification requires validation on every outbound message, returning
// InvalidSignature on mismatch, rather than the inconsistent validation
// some reference clients perform).
func EncodeMessage(m *Message) (*frame.Frame, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	bodyEnc := &wire.Encoder{Order: wire.BigEndian}
	for _, v := range m.Body {
		if err := EncodeValue(bodyEnc, v); err != nil {
			return nil, err
		}
	}
	bodySig := m.BodySignature()
	if !m.Signature.IsZero() && m.Signature.String() != bodySig.String() {
		return nil, newCallError(ErrInvalidSignature, fmt.Sprintf("declared signature %q does not match body signature %q", m.Signature, bodySig), nil)
	}

	fieldsEnc := &wire.Encoder{Order: wire.BigEndian}
	writeHeaderFields(fieldsEnc, m, bodySig)

	f := &frame.Frame{
		Order:        wire.BigEndian,
		Type:         byte(m.Type),
		Flags:        byte(m.Flags),
		Version:      ProtocolVersion,
		Serial:       m.Serial,
		HeaderFields: fieldsEnc.Out,
		Body:         bodyEnc.Out,
	}
	return f, nil
}

func writeHeaderFields(enc *wire.Encoder, m *Message, bodySig Signature) {
	put := func(code byte, t *Type, v Value) {
		enc.Struct(func() {
			enc.Uint8(code)
			enc.Signature(t.String())
			_ = EncodeValue(enc, v)
		})
	}
	if m.Path != "" {
		put(FieldPath, typeObjectPath, m.Path)
	}
	if m.Interface != "" {
		put(FieldInterface, typeString, Str(m.Interface))
	}
	if m.Member != "" {
		put(FieldMember, typeString, Str(m.Member))
	}
	if m.ErrorName != "" {
		put(FieldErrorName, typeString, Str(m.ErrorName))
	}
	if m.ReplySerial != 0 {
		put(FieldReplySerial, typeUint32, Uint32(m.ReplySerial))
	}
	if m.Destination != "" {
		put(FieldDestination, typeString, Str(m.Destination))
	}
	if m.Sender != "" {
		put(FieldSender, typeString, Str(m.Sender))
	}
	if !bodySig.IsZero() {
		put(FieldSignature, typeSignature, Sig(bodySig))
	}
	if m.UnixFDs != 0 {
		put(FieldUnixFDs, typeUint32, Uint32(m.UnixFDs))
	}
	for code, v := range m.Unknown {
		put(code, v.Sig, v.Value)
	}
}

// DecodeMessage interprets a [frame.Frame]'s raw bytes as a Message.
func DecodeMessage(f *frame.Frame) (*Message, error) {
	m := &Message{
		Type:            MsgType(f.Type),
		Flags:           Flags(f.Flags),
		ProtocolVersion: f.Version,
		Serial:          f.Serial,
	}

	fieldsDec := &wire.Decoder{Order: f.Order, In: bytes.NewReader(f.HeaderFields)}
	if err := readHeaderFields(fieldsDec, len(f.HeaderFields), m); err != nil {
		return nil, frameErr("decoding header fields", err)
	}

	bodySig := m.Signature
	bodyDec := &wire.Decoder{Order: f.Order, In: bytes.NewReader(f.Body)}
	for _, t := range bodySig.Types() {
		v, err := DecodeValue(bodyDec, t)
		if err != nil {
			return nil, frameErr("decoding message body", err)
		}
		m.Body = append(m.Body, v)
	}

	if err := m.Validate(); err != nil {
		return nil, frameErr("validating header", err)
	}
	return m, nil
}

func readHeaderFields(dec *wire.Decoder, n int, m *Message) error {
	remaining := n
	for remaining > 0 {
		before := dec.Consumed()
		var code byte
		var sigStr string
		err := dec.Struct(func() error {
			var err error
			code, err = dec.Uint8()
			if err != nil {
				return err
			}
			sigStr, err = dec.Signature()
			return err
		})
		if err != nil {
			return err
		}
		sig, err := ParseSignature(sigStr)
		if err != nil {
			return err
		}
		if !sig.IsSingle() {
			return fmt.Errorf("header field %d has non-single signature %q", code, sigStr)
		}
		v, err := DecodeValue(dec, sig.Single())
		if err != nil {
			return fmt.Errorf("decoding header field %d: %w", code, err)
		}
		switch code {
		case FieldPath:
			m.Path, _ = v.(ObjectPath)
		case FieldInterface:
			m.Interface = string(v.(Str))
		case FieldMember:
			m.Member = string(v.(Str))
		case FieldErrorName:
			m.ErrorName = string(v.(Str))
		case FieldReplySerial:
			m.ReplySerial = uint32(v.(Uint32))
		case FieldDestination:
			m.Destination = string(v.(Str))
		case FieldSender:
			m.Sender = string(v.(Str))
		case FieldSignature:
			m.Signature = Signature(v.(Sig))
		case FieldUnixFDs:
			m.UnixFDs = uint32(v.(Uint32))
		default:
			if m.Unknown == nil {
				m.Unknown = map[byte]Variant{}
			}
			m.Unknown[code] = Variant{Sig: sig.Single(), Value: v}
		}
		remaining -= dec.Consumed() - before
	}
	return nil
}
