package sasl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// pipeConn wires a Client's reader/writer to a fake server goroutine
// driven by the test, the way a real transport would.
type pipeConn struct {
	serverIn  *io.PipeReader
	serverOut *io.PipeWriter
	clientIn  *io.PipeReader
	clientOut *io.PipeWriter
}

func newPipeConn() *pipeConn {
	cr, sw := io.Pipe() // server writes, client reads
	sr, cw := io.Pipe() // client writes, server reads
	return &pipeConn{serverIn: sr, serverOut: sw, clientIn: cr, clientOut: cw}
}

func TestAuthenticateExternalSucceeds(t *testing.T) {
	pc := newPipeConn()
	client := NewClient(pc.clientIn, pc.clientOut, External{})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runFakeServer(pc, func(r *bufio.Reader, w io.Writer) error {
			if _, err := readLeadingNUL(r); err != nil {
				return err
			}
			line, err := readServerLine(r)
			if err != nil {
				return err
			}
			if line != "AUTH" {
				return errf("expected AUTH, got %q", line)
			}
			writeServerLine(w, "REJECTED EXTERNAL DBUS_COOKIE_SHA1 ANONYMOUS")

			line, err = readServerLine(r)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(line, "AUTH EXTERNAL ") {
				return errf("expected AUTH EXTERNAL <id>, got %q", line)
			}
			writeServerLine(w, "OK 1234deadbeef")

			line, err = readServerLine(r)
			if err != nil {
				return err
			}
			if line != "BEGIN" {
				return errf("expected BEGIN, got %q", line)
			}
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if client.GUID != "1234deadbeef" {
		t.Errorf("GUID = %q, want %q", client.GUID, "1234deadbeef")
	}
	if client.State() != StateAuthenticated {
		t.Errorf("State() = %v, want StateAuthenticated", client.State())
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("fake server: %v", err)
	}
}

func TestAuthenticateFallsBackToAnonymous(t *testing.T) {
	pc := newPipeConn()
	client := NewClient(pc.clientIn, pc.clientOut, External{}, Anonymous{})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runFakeServer(pc, func(r *bufio.Reader, w io.Writer) error {
			if _, err := readLeadingNUL(r); err != nil {
				return err
			}
			if _, err := readServerLine(r); err != nil { // AUTH
				return err
			}
			writeServerLine(w, "REJECTED EXTERNAL DBUS_COOKIE_SHA1 ANONYMOUS")

			line, err := readServerLine(r)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(line, "AUTH EXTERNAL ") {
				return errf("expected AUTH EXTERNAL, got %q", line)
			}
			// Server rejects EXTERNAL too.
			writeServerLine(w, "REJECTED DBUS_COOKIE_SHA1 ANONYMOUS")

			line, err = readServerLine(r)
			if err != nil {
				return err
			}
			if line != "AUTH ANONYMOUS" {
				return errf("expected AUTH ANONYMOUS, got %q", line)
			}
			writeServerLine(w, "OK cafe")

			line, err = readServerLine(r)
			if err != nil {
				return err
			}
			if line != "BEGIN" {
				return errf("expected BEGIN, got %q", line)
			}
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("fake server: %v", err)
	}
}

func TestAuthenticateFailsWhenAllMechanismsRejected(t *testing.T) {
	pc := newPipeConn()
	client := NewClient(pc.clientIn, pc.clientOut, Anonymous{})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runFakeServer(pc, func(r *bufio.Reader, w io.Writer) error {
			if _, err := readLeadingNUL(r); err != nil {
				return err
			}
			if _, err := readServerLine(r); err != nil { // AUTH
				return err
			}
			writeServerLine(w, "REJECTED ANONYMOUS")
			if _, err := readServerLine(r); err != nil { // AUTH ANONYMOUS
				return err
			}
			writeServerLine(w, "REJECTED")
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Authenticate(ctx); err == nil {
		t.Fatal("expected Authenticate to fail when every mechanism is rejected")
	}
	<-serverDone
}

func TestReaderExposesBufferedBytesAfterBegin(t *testing.T) {
	pc := newPipeConn()
	client := NewClient(pc.clientIn, pc.clientOut, External{})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runFakeServer(pc, func(r *bufio.Reader, w io.Writer) error {
			if _, err := readLeadingNUL(r); err != nil {
				return err
			}
			if _, err := readServerLine(r); err != nil {
				return err
			}
			writeServerLine(w, "REJECTED EXTERNAL")
			if _, err := readServerLine(r); err != nil {
				return err
			}
			writeServerLine(w, "OK deadbeef")
			if _, err := readServerLine(r); err != nil { // BEGIN
				return err
			}
			// First bytes of the "binary" message stream, sent right
			// after BEGIN with no separating delay.
			_, err := w.Write([]byte{0xde, 0xad, 0xbe, 0xef})
			return err
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(client.Reader(), buf); err != nil {
		t.Fatalf("reading buffered binary stream start: %v", err)
	}
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buffered bytes = %x, want %x", buf, want)
		}
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("fake server: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fake server to finish")
	}
}

func runFakeServer(pc *pipeConn, fn func(r *bufio.Reader, w io.Writer) error) error {
	r := bufio.NewReader(pc.serverIn)
	return fn(r, pc.serverOut)
}

func readLeadingNUL(r *bufio.Reader) (byte, error) {
	return r.ReadByte()
}

func readServerLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeServerLine(w io.Writer, s string) {
	io.WriteString(w, s+"\r\n")
}

func errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
