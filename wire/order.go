// Package wire provides alignment-aware primitives for reading and
// writing the D-Bus wire format to and from a byte buffer.
//
// It is deliberately low-level: callers drive it field by field (much
// like encoding/binary or encoding/gob's internal state machines), with
// the type-directed traversal living one layer up in the root dbus
// package's codec.
package wire

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// A ByteOrder is a D-Bus-aware byte order: the usual encoding/binary
// operations, plus the wire flag byte ('l' or 'B') that identifies it in
// a message's fixed header.
type ByteOrder interface {
	byteOrder
	DBusFlag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) DBusFlag() byte {
	switch w.byteOrder {
	case binary.BigEndian:
		return 'B'
	case binary.LittleEndian:
		return 'l'
	case binary.NativeEndian:
		if cpu.IsBigEndian {
			return 'B'
		}
		return 'l'
	default:
		panic("wire: unknown ByteOrder")
	}
}

// OrderForFlag returns the ByteOrder corresponding to a D-Bus wire flag
// byte ('l' for little-endian, 'B' for big-endian).
func OrderForFlag(flag byte) (ByteOrder, bool) {
	switch flag {
	case 'l':
		return LittleEndian, true
	case 'B':
		return BigEndian, true
	default:
		return nil, false
	}
}

var (
	BigEndian    ByteOrder = wrapStd{binary.BigEndian}
	LittleEndian ByteOrder = wrapStd{binary.LittleEndian}
	NativeEndian ByteOrder = wrapStd{binary.NativeEndian}
)
