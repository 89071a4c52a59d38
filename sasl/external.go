package sasl

import (
	"context"
	"encoding/hex"
)

// External implements the EXTERNAL mechanism: the client asserts its
// identity (the decimal UID on Unix, the string-form SID on Windows,
// hex-encoded) and relies on the transport (a Unix domain socket's peer
// credentials, or an equivalent named-pipe credential on Windows) to
// vouch for it. It sends no challenges.
type External struct{}

func (External) Name() string { return "EXTERNAL" }

func (External) Init(ctx context.Context) error { return nil }

func (External) InitialResponse(ctx context.Context) (string, error) {
	id, err := identity()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString([]byte(id)), nil
}

func (External) ProcessChallenge(ctx context.Context, challengeHex string) (Challenge, error) {
	// The reference server never challenges EXTERNAL; if one arrives
	// anyway, there's nothing meaningful to answer with.
	return Challenge{}, nil
}

func (External) Dispose() {}
