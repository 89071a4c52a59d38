package dbus

import (
	"fmt"

	"github.com/lindenhall/dbusconn/wire"
)

// EncodeValue writes v to enc, dispatching on v's concrete Kind.
//
// The switch below is exhaustive over the closed [Value] sum (spec §9:
// replace reflective type-dispatch chains with a closed sum the compiler
// can check coverage of).
func EncodeValue(enc *wire.Encoder, v Value) error {
	switch vv := v.(type) {
	case Byte:
		enc.Uint8(uint8(vv))
	case Boolean:
		enc.Bool(bool(vv))
	case Int16:
		enc.Uint16(uint16(vv))
	case Uint16:
		enc.Uint16(uint16(vv))
	case Int32:
		enc.Uint32(uint32(vv))
	case Uint32:
		enc.Uint32(uint32(vv))
	case Int64:
		enc.Uint64(uint64(vv))
	case Uint64:
		enc.Uint64(uint64(vv))
	case Double:
		enc.Double(float64(vv))
	case Str:
		enc.String(string(vv))
	case ObjectPath:
		if err := vv.Validate(); err != nil {
			return fmt.Errorf("encoding object path: %w", err)
		}
		enc.String(string(vv))
	case Sig:
		str := Signature(vv).String()
		if len(str) > 255 {
			return fmt.Errorf("signature %q exceeds maximum length of 255 bytes", str)
		}
		enc.Signature(str)
	case UnixFD:
		enc.Uint32(uint32(vv))
	case Array:
		return encodeArray(enc, vv)
	case Struct:
		return encodeStruct(enc, vv)
	case DictEntry:
		return encodeDictEntry(enc, vv)
	case Variant:
		return encodeVariant(enc, vv)
	default:
		return fmt.Errorf("dbus: unhandled Value kind %T", v)
	}
	return nil
}

func encodeArray(enc *wire.Encoder, a Array) error {
	var outerErr error
	enc.Array(a.Elem.Kind.Align(), func() {
		for _, item := range a.Items {
			if outerErr != nil {
				return
			}
			outerErr = EncodeValue(enc, item)
		}
	})
	return outerErr
}

func encodeStruct(enc *wire.Encoder, s Struct) error {
	var err error
	enc.Struct(func() {
		for _, f := range s.Fields {
			if err != nil {
				return
			}
			err = EncodeValue(enc, f)
		}
	})
	return err
}

func encodeDictEntry(enc *wire.Encoder, e DictEntry) error {
	var err error
	enc.Struct(func() {
		if err = EncodeValue(enc, e.Key); err != nil {
			return
		}
		err = EncodeValue(enc, e.Val)
	})
	return err
}

func encodeVariant(enc *wire.Encoder, v Variant) error {
	sigStr := v.Sig.String()
	if len(sigStr) > 255 {
		return fmt.Errorf("variant signature %q exceeds maximum length", sigStr)
	}
	enc.Signature(sigStr)
	return EncodeValue(enc, v.Value)
}

// DecodeValue reads a value of shape t from dec.
//
// Like EncodeValue, the switch over t.Kind is exhaustive over the closed
// set of [Kind] values.
func DecodeValue(dec *wire.Decoder, t *Type) (Value, error) {
	switch t.Kind {
	case KindByte:
		v, err := dec.Uint8()
		return Byte(v), err
	case KindBoolean:
		v, err := dec.Bool()
		return Boolean(v), err
	case KindInt16:
		v, err := dec.Uint16()
		return Int16(v), err
	case KindUint16:
		v, err := dec.Uint16()
		return Uint16(v), err
	case KindInt32:
		v, err := dec.Uint32()
		return Int32(v), err
	case KindUint32:
		v, err := dec.Uint32()
		return Uint32(v), err
	case KindInt64:
		v, err := dec.Uint64()
		return Int64(v), err
	case KindUint64:
		v, err := dec.Uint64()
		return Uint64(v), err
	case KindDouble:
		v, err := dec.Double()
		return Double(v), err
	case KindString:
		v, err := dec.String()
		return Str(v), err
	case KindObjectPath:
		v, err := dec.String()
		if err != nil {
			return nil, err
		}
		op := ObjectPath(v)
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("decoding object path: %w", err)
		}
		return op, nil
	case KindSignature:
		v, err := dec.Signature()
		if err != nil {
			return nil, err
		}
		sig, err := ParseSignature(v)
		if err != nil {
			return nil, err
		}
		return Sig(sig), nil
	case KindUnixFD:
		v, err := dec.Uint32()
		return UnixFD(v), err
	case KindArray:
		return decodeArray(dec, t)
	case KindStruct:
		return decodeStruct(dec, t)
	case KindDictEntry:
		return decodeDictEntry(dec, t)
	case KindVariant:
		return decodeVariant(dec)
	default:
		return nil, fmt.Errorf("dbus: unhandled type kind %v", t.Kind)
	}
}

func decodeArray(dec *wire.Decoder, t *Type) (Value, error) {
	ret := Array{Elem: t.Elem}
	_, err := dec.Array(t.Elem.Kind.Align(), func(i int) error {
		v, err := DecodeValue(dec, t.Elem)
		if err != nil {
			return err
		}
		ret.Items = append(ret.Items, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func decodeStruct(dec *wire.Decoder, t *Type) (Value, error) {
	ret := Struct{Fields: make([]Value, len(t.Fields))}
	err := dec.Struct(func() error {
		for i, f := range t.Fields {
			v, err := DecodeValue(dec, f)
			if err != nil {
				return err
			}
			ret.Fields[i] = v
		}
		return nil
	})
	return ret, err
}

func decodeDictEntry(dec *wire.Decoder, t *Type) (Value, error) {
	var ret DictEntry
	err := dec.Struct(func() error {
		k, err := DecodeValue(dec, t.Key)
		if err != nil {
			return err
		}
		v, err := DecodeValue(dec, t.Val)
		if err != nil {
			return err
		}
		ret.Key, ret.Val = k, v
		return nil
	})
	return ret, err
}

func decodeVariant(dec *wire.Decoder) (Value, error) {
	sigStr, err := dec.Signature()
	if err != nil {
		return nil, fmt.Errorf("reading variant signature: %w", err)
	}
	sig, err := ParseSignature(sigStr)
	if err != nil {
		return nil, fmt.Errorf("reading variant signature: %w", err)
	}
	if !sig.IsSingle() {
		return nil, fmt.Errorf("variant signature %q is not exactly one complete type", sigStr)
	}
	inner := sig.Single()
	v, err := DecodeValue(dec, inner)
	if err != nil {
		return nil, fmt.Errorf("reading variant value (signature %q): %w", sigStr, err)
	}
	return Variant{Sig: inner, Value: v}, nil
}
