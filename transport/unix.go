package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"

	"context"

	"github.com/creachadair/mds/queue"
	"golang.org/x/sys/unix"
)

// DialUnix connects to a Unix domain socket bus address
// ("unix:path=…" or "unix:abstract=…"), sending the single leading NUL
// byte the protocol requires before the SASL dialogue begins.
//
// Grounded on the teacher's transport/unix.go: a buffered net.UnixConn
// wrapper that also drains any Unix-rights ancillary data the server
// sends so that stray descriptors never leak, even though this
// transport never offers NEGOTIATE_UNIX_FD (spec §1 Non-goals).
func DialUnix(ctx context.Context, a Address) (Transport, error) {
	addr, err := unixSockAddr(a)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{}
	if dl, ok := ctx.Deadline(); ok {
		d.Deadline = dl
	}
	c, err := d.DialContext(ctx, "unix", addr)
	if err != nil {
		return nil, err
	}
	conn, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("transport: dialed connection is not a *net.UnixConn")
	}

	if sc, err := conn.SyscallConn(); err == nil {
		sc.Control(func(fd uintptr) {
			// SO_PASSCRED asks the kernel to attach sender credentials
			// to datagrams on this socket, which is what lets the
			// bus's EXTERNAL mechanism trust our asserted UID.
			unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PASSCRED, 1)
		})
	}

	ut := &unixTransport{conn: conn, fds: queue.New[*os.File]()}
	ut.buf = bufio.NewReader(funcReader(ut.readToBuf))

	if _, err := conn.Write([]byte{0}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: writing leading NUL: %w", err)
	}
	return ut, nil
}

func unixSockAddr(a Address) (string, error) {
	if p, ok := a.Params["path"]; ok {
		return p, nil
	}
	if abs, ok := a.Params["abstract"]; ok {
		// Linux abstract sockets are addressed with a leading NUL,
		// which Go's net package spells as a leading '@'.
		return "@" + abs, nil
	}
	return "", fmt.Errorf("transport: unix address missing both \"path\" and \"abstract\"")
}

type unixTransport struct {
	conn *net.UnixConn
	oob  [512]byte
	buf  *bufio.Reader
	fds  *queue.Queue[*os.File]
}

func (u *unixTransport) Read(bs []byte) (int, error)  { return u.buf.Read(bs) }
func (u *unixTransport) Write(bs []byte) (int, error) { return u.conn.Write(bs) }

func (u *unixTransport) Close() error {
	u.fds.Each(func(f *os.File) bool {
		f.Close()
		return true
	})
	u.fds.Clear()
	return u.conn.Close()
}

func (u *unixTransport) SupportsFDPassing() bool { return true }

func (u *unixTransport) readToBuf(bs []byte) (int, error) {
	n, oobn, flags, _, err := u.conn.ReadMsgUnix(bs, u.oob[:])
	if flags&unix.MSG_CTRUNC != 0 {
		return 0, errors.New("transport: control message truncated")
	}
	if oobn > 0 {
		if oobErr := u.drainFDs(u.oob[:oobn]); oobErr != nil {
			return 0, oobErr
		}
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// drainFDs collects any file descriptors the peer attached as ancillary
// data into u.fds, where Close closes them. This library never
// negotiates NEGOTIATE_UNIX_FD, so no well-behaved peer should send any;
// those that arrive anyway are kept out of use and released with the
// transport.
func (u *unixTransport) drainFDs(oob []byte) error {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("transport: parsing control message: %w", err)
	}
	var errs []error
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, fd := range fds {
			if f := os.NewFile(uintptr(fd), ""); f != nil {
				u.fds.Add(f)
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type funcReader func([]byte) (int, error)

func (f funcReader) Read(bs []byte) (int, error) { return f(bs) }
