// Package transport provides the byte-stream transports D-Bus runs over
// (spec §6.2): Unix domain sockets and TCP. The rest of this module
// treats a Transport as an opaque io.ReadWriteCloser plus a leading-NUL
// convention; the concrete dialing logic (address parsing, environment
// variables, credential passing) lives here.
package transport

import "io"

// Transport is a raw, already-connected D-Bus byte stream.
//
// Implementations must serialize their own Read and Write calls
// internally if that matters to them; the connection controller that
// owns a Transport guarantees only one outstanding Read and one
// outstanding Write at a time (spec §5: "the transport may not be read
// or written by more than one task at a time"), never two concurrent
// calls to the same method.
type Transport interface {
	io.ReadWriteCloser

	// SupportsFDPassing reports whether this transport can carry Unix
	// file descriptors as ancillary data. The library never uses this
	// to transfer descriptors (spec §1 Non-goals), but records it for
	// parity with peers that negotiate NEGOTIATE_UNIX_FD.
	SupportsFDPassing() bool
}
