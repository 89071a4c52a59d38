package transport

import (
	"context"
	"fmt"
	"net"
)

// DialTCP connects to a TCP bus address, e.g.
// "tcp:host=localhost,port=5000,family=ipv4" (spec §6.2). It sends the
// same leading NUL byte as the Unix transport.
func DialTCP(ctx context.Context, a Address) (Transport, error) {
	host, ok := a.Params["host"]
	if !ok {
		return nil, fmt.Errorf("transport: tcp address missing \"host\"")
	}
	port, ok := a.Params["port"]
	if !ok {
		return nil, fmt.Errorf("transport: tcp address missing \"port\"")
	}
	network := "tcp"
	switch a.Params["family"] {
	case "", "ipv4":
		network = "tcp4"
	case "ipv6":
		network = "tcp6"
	default:
		return nil, fmt.Errorf("transport: unknown tcp family %q", a.Params["family"])
	}
	if a.Params["family"] == "" {
		network = "tcp"
	}

	d := net.Dialer{}
	if dl, ok := ctx.Deadline(); ok {
		d.Deadline = dl
	}
	conn, err := d.DialContext(ctx, network, net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte{0}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: writing leading NUL: %w", err)
	}
	return &tcpTransport{conn: conn}, nil
}

type tcpTransport struct {
	conn net.Conn
}

func (t *tcpTransport) Read(bs []byte) (int, error)  { return t.conn.Read(bs) }
func (t *tcpTransport) Write(bs []byte) (int, error) { return t.conn.Write(bs) }
func (t *tcpTransport) Close() error                 { return t.conn.Close() }
func (t *tcpTransport) SupportsFDPassing() bool      { return false }
