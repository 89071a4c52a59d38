package sasl

import (
	"context"
	"fmt"
)

// Anonymous implements the ANONYMOUS mechanism: no credentials are
// asserted at all, and the server is not expected to challenge.
type Anonymous struct{}

func (Anonymous) Name() string { return "ANONYMOUS" }

func (Anonymous) Init(ctx context.Context) error { return nil }

func (Anonymous) InitialResponse(ctx context.Context) (string, error) { return "", nil }

func (Anonymous) ProcessChallenge(ctx context.Context, challengeHex string) (Challenge, error) {
	return Challenge{}, fmt.Errorf("sasl: ANONYMOUS mechanism does not accept challenges")
}

func (Anonymous) Dispose() {}
