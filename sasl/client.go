package sasl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes is the maximum length of one SASL line, including the
// trailing CRLF (spec §4.3).
const maxLineBytes = 2048

// State is the SASL client's current position in the handshake.
type State int

const (
	StateIdle State = iota
	StateAwaitingServerMechs
	StateNegotiating
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingServerMechs:
		return "AWAITING_SERVER_MECHS"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DefaultMechanisms returns the client's default mechanism preference
// order: EXTERNAL, then DBUS_COOKIE_SHA1, then ANONYMOUS (spec §4.3).
func DefaultMechanisms() []Mechanism {
	return []Mechanism{External{}, &CookieSHA1{}, Anonymous{}}
}

// Client runs the client side of the SASL authentication dialogue over a
// raw byte stream, per spec §4.3.
type Client struct {
	r *bufio.Reader
	w io.Writer

	remaining []Mechanism
	current   Mechanism
	state     State

	// GUID is the server's GUID, recorded once authentication succeeds.
	GUID string
}

// NewClient constructs a Client that will try mechs in order, falling
// back to the next whenever the server rejects one or a mechanism turns
// out to be unusable in this environment.
func NewClient(rw io.Reader, w io.Writer, mechs ...Mechanism) *Client {
	if len(mechs) == 0 {
		mechs = DefaultMechanisms()
	}
	return &Client{
		r:         bufio.NewReaderSize(rw, maxLineBytes),
		w:         w,
		remaining: append([]Mechanism(nil), mechs...),
		state:     StateIdle,
	}
}

// State reports the client's current handshake state.
func (c *Client) State() State { return c.state }

// Reader returns the buffered reader Authenticate read server lines
// from. After Authenticate succeeds, any bytes already buffered here
// are the start of the binary message stream; callers must read the
// rest of the connection through this reader, not directly from the
// underlying stream, or they will skip whatever SASL left buffered.
func (c *Client) Reader() *bufio.Reader { return c.r }

// Authenticate drives the handshake to completion: it writes the leading
// NUL byte, negotiates a mechanism, and on success sends BEGIN and
// returns nil. After Authenticate returns successfully, the next bytes
// of the connection are the first bytes of a D-Bus message; some of
// them may already sit in [Client.Reader], so the binary message codec
// must read through that reader.
func (c *Client) Authenticate(ctx context.Context) error {
	defer c.disposeAll()

	if _, err := c.w.Write([]byte{0}); err != nil {
		return fmt.Errorf("sasl: writing leading NUL: %w", err)
	}
	if err := c.writeLine("AUTH"); err != nil {
		return err
	}
	c.state = StateAwaitingServerMechs

	for {
		line, err := c.readLine()
		if err != nil {
			c.state = StateFailed
			return err
		}

		switch {
		case strings.HasPrefix(line, "OK "):
			c.GUID = strings.TrimSpace(strings.TrimPrefix(line, "OK "))
			if err := c.writeLine("BEGIN"); err != nil {
				return err
			}
			c.state = StateAuthenticated
			return nil

		case line == "REJECTED" || strings.HasPrefix(line, "REJECTED "):
			supported := fieldSet(strings.TrimPrefix(line, "REJECTED"))
			if err := c.tryNext(ctx, supported); err != nil {
				c.state = StateFailed
				return fmt.Errorf("sasl: authentication failed: %w", err)
			}
			c.state = StateNegotiating

		case strings.HasPrefix(line, "DATA "):
			if c.current == nil {
				c.state = StateFailed
				return errors.New("sasl: received DATA with no mechanism in progress")
			}
			hex := strings.TrimSpace(strings.TrimPrefix(line, "DATA "))
			ch, err := c.current.ProcessChallenge(ctx, hex)
			if err != nil {
				if err := c.writeLine("CANCEL"); err != nil {
					return err
				}
				continue
			}
			if !ch.Done {
				if err := c.writeLine("DATA " + ch.Response); err != nil {
					return err
				}
			}

		case line == "ERROR" || strings.HasPrefix(line, "ERROR "):
			if err := c.writeLine("CANCEL"); err != nil {
				return err
			}

		default:
			c.state = StateFailed
			return fmt.Errorf("sasl: unexpected server line %q", line)
		}
	}
}

func (c *Client) tryNext(ctx context.Context, serverSupported map[string]bool) error {
	if c.current != nil {
		c.current.Dispose()
		c.current = nil
	}
	for len(c.remaining) > 0 {
		m := c.remaining[0]
		c.remaining = c.remaining[1:]
		if len(serverSupported) > 0 && !serverSupported[m.Name()] {
			m.Dispose()
			continue
		}
		if err := m.Init(ctx); err != nil {
			m.Dispose()
			if errors.Is(err, ErrMechanismUnusable) {
				continue
			}
			return err
		}
		resp, err := m.InitialResponse(ctx)
		if err != nil {
			m.Dispose()
			continue
		}
		c.current = m
		line := "AUTH " + m.Name()
		if resp != "" {
			line += " " + resp
		}
		return c.writeLine(line)
	}
	return errors.New("no usable mechanism remains")
}

func (c *Client) disposeAll() {
	if c.current != nil {
		c.current.Dispose()
	}
	for _, m := range c.remaining {
		m.Dispose()
	}
}

func (c *Client) writeLine(s string) error {
	if len(s)+2 > maxLineBytes {
		return fmt.Errorf("sasl: outgoing line exceeds %d bytes", maxLineBytes)
	}
	_, err := c.w.Write([]byte(s + "\r\n"))
	return err
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("sasl: incoming line exceeds %d bytes", maxLineBytes)
		}
		return "", err
	}
	if len(line) > maxLineBytes {
		return "", fmt.Errorf("sasl: incoming line exceeds %d bytes", maxLineBytes)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fieldSet(s string) map[string]bool {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
