package dbus

import (
	"fmt"
	"strings"
)

// A Type describes the shape of a D-Bus value: a basic type, or a
// container (array, struct, variant, dict-entry) built from other Types.
//
// Type is the signature-tree counterpart of [Kind]: where Kind names
// which wire shape a value has, Type additionally carries the nested
// shape for containers.
type Type struct {
	Kind Kind

	// Elem is the element type, set only when Kind == KindArray.
	Elem *Type
	// Fields are the member types, set only when Kind == KindStruct.
	Fields []*Type
	// Key and Val are set only when Kind == KindDictEntry.
	Key *Type
	Val *Type
}

func basic(k Kind) *Type { return &Type{Kind: k} }

var (
	typeByte       = basic(KindByte)
	typeBoolean    = basic(KindBoolean)
	typeInt16      = basic(KindInt16)
	typeUint16     = basic(KindUint16)
	typeInt32      = basic(KindInt32)
	typeUint32     = basic(KindUint32)
	typeInt64      = basic(KindInt64)
	typeUint64     = basic(KindUint64)
	typeDouble     = basic(KindDouble)
	typeString     = basic(KindString)
	typeObjectPath = basic(KindObjectPath)
	typeSignature  = basic(KindSignature)
	typeUnixFD     = basic(KindUnixFD)
	typeVariant    = basic(KindVariant)
)

var codeToBasic = map[byte]*Type{
	'y': typeByte,
	'b': typeBoolean,
	'n': typeInt16,
	'q': typeUint16,
	'i': typeInt32,
	'u': typeUint32,
	'x': typeInt64,
	't': typeUint64,
	'd': typeDouble,
	's': typeString,
	'o': typeObjectPath,
	'g': typeSignature,
	'h': typeUnixFD,
	'v': typeVariant,
}

// IsDict reports whether t is an array whose elements are dict
// entries, i.e. a D-Bus dictionary.
func (t *Type) IsDict() bool {
	return t.Kind == KindArray && t.Elem != nil && t.Elem.Kind == KindDictEntry
}

// String renders t back into its D-Bus signature form.
func (t *Type) String() string {
	var b strings.Builder
	t.writeTo(&b)
	return b.String()
}

func (t *Type) writeTo(b *strings.Builder) {
	switch t.Kind {
	case KindArray:
		b.WriteByte('a')
		t.Elem.writeTo(b)
	case KindStruct:
		b.WriteByte('(')
		for _, f := range t.Fields {
			f.writeTo(b)
		}
		b.WriteByte(')')
	case KindDictEntry:
		b.WriteByte('{')
		t.Key.writeTo(b)
		t.Val.writeTo(b)
		b.WriteByte('}')
	default:
		b.WriteByte(byte(t.Kind))
	}
}

// A Signature is a sequence of zero or more complete Types, as found in a
// message body or a header SIGNATURE field.
type Signature struct {
	parts []*Type
}

// ParseSignature parses a D-Bus type signature string.
//
// Per spec §3.1, the body must be at most 255 bytes (checked by callers
// that decode it off the wire; ParseSignature itself only enforces
// syntax) and must be a sequence of single complete types.
func ParseSignature(sig string) (Signature, error) {
	var parts []*Type
	rest := sig
	for rest != "" {
		t, tail, err := parseOneType(rest, false)
		if err != nil {
			return Signature{}, fmt.Errorf("invalid signature %q: %w", sig, err)
		}
		parts = append(parts, t)
		rest = tail
	}
	return Signature{parts}, nil
}

// MustParseSignature is like ParseSignature but panics on error. It is
// meant for package-level signature constants, not for parsing
// wire-supplied data.
func MustParseSignature(sig string) Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return s
}

func parseOneType(sig string, inArray bool) (*Type, string, error) {
	if sig == "" {
		return nil, "", fmt.Errorf("empty type")
	}
	if t, ok := codeToBasic[sig[0]]; ok {
		return t, sig[1:], nil
	}
	switch sig[0] {
	case 'a':
		if len(sig) < 2 {
			return nil, "", fmt.Errorf("truncated array type")
		}
		elem, rest, err := parseOneType(sig[1:], true)
		if err != nil {
			return nil, "", err
		}
		return &Type{Kind: KindArray, Elem: elem}, rest, nil
	case '(':
		rest := sig[1:]
		var fields []*Type
		for rest != "" && rest[0] != ')' {
			var f *Type
			var err error
			f, rest, err = parseOneType(rest, false)
			if err != nil {
				return nil, "", err
			}
			fields = append(fields, f)
		}
		if rest == "" {
			return nil, "", fmt.Errorf("missing closing ) in struct")
		}
		if len(fields) == 0 {
			return nil, "", fmt.Errorf("struct with no fields")
		}
		return &Type{Kind: KindStruct, Fields: fields}, rest[1:], nil
	case '{':
		if !inArray {
			return nil, "", fmt.Errorf("dict entry outside of array")
		}
		key, rest, err := parseOneType(sig[1:], false)
		if err != nil {
			return nil, "", err
		}
		if !key.Kind.IsBasic() {
			return nil, "", fmt.Errorf("dict entry key type %s is not a basic type", key)
		}
		val, rest2, err := parseOneType(rest, false)
		if err != nil {
			return nil, "", err
		}
		if rest2 == "" || rest2[0] != '}' {
			return nil, "", fmt.Errorf("missing closing } in dict entry")
		}
		return &Type{Kind: KindDictEntry, Key: key, Val: val}, rest2[1:], nil
	default:
		return nil, "", fmt.Errorf("unknown type code %q", sig[0])
	}
}

// String renders the Signature back into its wire string form.
func (s Signature) String() string {
	var b strings.Builder
	for _, p := range s.parts {
		p.writeTo(&b)
	}
	return b.String()
}

// IsZero reports whether s describes no value at all (an empty body).
func (s Signature) IsZero() bool { return len(s.parts) == 0 }

// IsSingle reports whether s contains exactly one complete type, as
// required for the signature carried inside a VARIANT.
func (s Signature) IsSingle() bool { return len(s.parts) == 1 }

// Single returns the lone Type in s. It panics if !s.IsSingle().
func (s Signature) Single() *Type {
	if !s.IsSingle() {
		panic("Single called on non-single Signature")
	}
	return s.parts[0]
}

// Types returns the component Types of the signature, in order.
func (s Signature) Types() []*Type { return s.parts }
