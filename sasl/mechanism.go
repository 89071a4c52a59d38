// Package sasl implements the client side of the D-Bus SASL
// authentication dialogue (spec §4.3): a line-oriented handshake over
// the raw transport stream, with pluggable mechanisms and mechanism
// fallback, that hands off unambiguously to the binary message stream
// once authentication completes.
package sasl

import (
	"context"
	"errors"
)

// ErrMechanismUnusable is returned by [Mechanism.Init] when the
// mechanism cannot be used in the current environment (e.g. no cookie
// file present for DBUS_COOKIE_SHA1).
var ErrMechanismUnusable = errors.New("sasl: mechanism unusable in this environment")

// Challenge is the result of processing a server DATA challenge.
type Challenge struct {
	// Response is the hex-encoded response to send back in a DATA
	// command. Empty if Done is true and no further data is needed.
	Response string
	// Done indicates the mechanism has nothing more to say and is
	// waiting for the server's OK (or REJECTED).
	Done bool
}

// A Mechanism implements one SASL authentication method.
//
// For a mechanism that is tried, methods are called in this order: Init
// once, then InitialResponse once, then ProcessChallenge zero or more
// times. Every mechanism handed to a Client, tried or not, gets Dispose
// exactly once regardless of outcome.
type Mechanism interface {
	// Name is the mechanism's ASCII wire name, e.g. "EXTERNAL".
	Name() string

	// Init prepares the mechanism for use. It may return
	// ErrMechanismUnusable if the mechanism cannot be used here.
	Init(ctx context.Context) error

	// InitialResponse returns the hex-encoded initial response to send
	// alongside "AUTH <mech>", or "" if the mechanism has none.
	InitialResponse(ctx context.Context) (string, error)

	// ProcessChallenge handles a hex-encoded server DATA challenge and
	// returns the client's next move.
	ProcessChallenge(ctx context.Context, challengeHex string) (Challenge, error)

	// Dispose releases any resources held by the mechanism. It must be
	// idempotent.
	Dispose()
}
