package dbus

import (
	"fmt"
	"regexp"
	"strings"
)

// A Value is any single D-Bus value: a basic scalar, or a container built
// from other Values.
//
// Value is a closed sum: the only implementations are the concrete types
// declared in this file. Codec code switches over the dynamic type with
// a plain type switch, and the compiler (with the help of `default: panic`
// clauses during development) keeps that switch honest as Kinds are added.
type Value interface {
	// Kind reports which wire type this value has.
	Kind() Kind
	isValue()
}

type (
	Byte       uint8
	Boolean    bool
	Int16      int16
	Uint16     uint16
	Int32      int32
	Uint32     uint32
	Int64      int64
	Uint64     uint64
	Double     float64
	Str        string
	ObjectPath string
	Sig        Signature
	UnixFD     uint32
)

func (Byte) Kind() Kind       { return KindByte }
func (Boolean) Kind() Kind    { return KindBoolean }
func (Int16) Kind() Kind      { return KindInt16 }
func (Uint16) Kind() Kind     { return KindUint16 }
func (Int32) Kind() Kind      { return KindInt32 }
func (Uint32) Kind() Kind     { return KindUint32 }
func (Int64) Kind() Kind      { return KindInt64 }
func (Uint64) Kind() Kind     { return KindUint64 }
func (Double) Kind() Kind     { return KindDouble }
func (Str) Kind() Kind        { return KindString }
func (ObjectPath) Kind() Kind { return KindObjectPath }
func (Sig) Kind() Kind        { return KindSignature }
func (UnixFD) Kind() Kind     { return KindUnixFD }

func (Byte) isValue()       {}
func (Boolean) isValue()    {}
func (Int16) isValue()      {}
func (Uint16) isValue()     {}
func (Int32) isValue()      {}
func (Uint32) isValue()     {}
func (Int64) isValue()      {}
func (Uint64) isValue()     {}
func (Double) isValue()     {}
func (Str) isValue()        {}
func (ObjectPath) isValue() {}
func (Sig) isValue()        {}
func (UnixFD) isValue()     {}

// Array is an ordered, homogeneously-typed D-Bus array (or dictionary, if
// Elem.Kind == KindDictEntry).
type Array struct {
	Elem  *Type
	Items []Value
}

func (Array) Kind() Kind { return KindArray }
func (Array) isValue()   {}

// Struct is an ordered, heterogeneously-typed D-Bus struct.
type Struct struct {
	Fields []Value
}

func (Struct) Kind() Kind { return KindStruct }
func (Struct) isValue()   {}

// DictEntry is a single key/value pair; it is only meaningful as an
// element of an Array whose Elem.Kind is KindDictEntry.
type DictEntry struct {
	Key Value
	Val Value
}

func (DictEntry) Kind() Kind { return KindDictEntry }
func (DictEntry) isValue()   {}

// Variant is a self-describing value: it carries its own Signature
// alongside the value.
type Variant struct {
	Sig   *Type
	Value Value
}

func (Variant) Kind() Kind { return KindVariant }
func (Variant) isValue()   {}

// TypeOf returns the Type describing v's shape.
func TypeOf(v Value) *Type {
	switch vv := v.(type) {
	case Array:
		return &Type{Kind: KindArray, Elem: vv.Elem}
	case Struct:
		fs := make([]*Type, len(vv.Fields))
		for i, f := range vv.Fields {
			fs[i] = TypeOf(f)
		}
		return &Type{Kind: KindStruct, Fields: fs}
	case DictEntry:
		return &Type{Kind: KindDictEntry, Key: TypeOf(vv.Key), Val: TypeOf(vv.Val)}
	case Variant:
		return typeVariant
	default:
		if t, ok := codeToBasic[byte(v.Kind())]; ok {
			return t
		}
		panic(fmt.Sprintf("dbus: no Type for Value kind %v", v.Kind()))
	}
}

// objectPathRE matches the D-Bus object path grammar: a sequence of
// '/'-separated elements of [A-Za-z0-9_]+, or the root path "/" alone.
var objectPathRE = regexp.MustCompile(`^/([A-Za-z0-9_]+(/[A-Za-z0-9_]+)*)?$`)

// Validate reports whether p conforms to the D-Bus object path grammar
// (spec §3.1 OBJECT_PATH, GLOSSARY "Object path").
func (p ObjectPath) Validate() error {
	s := string(p)
	if s == "" {
		return fmt.Errorf("object path is empty")
	}
	if s != "/" && strings.HasSuffix(s, "/") {
		return fmt.Errorf("object path %q has a trailing slash", s)
	}
	if !objectPathRE.MatchString(s) {
		return fmt.Errorf("object path %q does not match the D-Bus path grammar", s)
	}
	return nil
}
