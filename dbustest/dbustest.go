// Package dbustest runs an isolated dbus-daemon instance for integration
// tests, the way a test of a real bus client needs: a throwaway bus with
// its own socket and no interference from the host's system or session
// bus.
package dbustest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dbus "github.com/lindenhall/dbusconn"
)

// busConfig is a minimal dbus-daemon configuration: no service
// activation, no default policy restrictions beyond what dbus-daemon
// itself requires, listening only on the generated socket path.
const busConfig = `<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-Bus Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <type>session</type>
  <listen>unix:path=__SOCKET__</listen>
  <auth>EXTERNAL</auth>
  <auth>ANONYMOUS</auth>
  <allow_anonymous/>
  <policy context="default">
    <allow send_destination="*" eavesdrop="true"/>
    <allow eavesdrop="true"/>
    <allow own="*"/>
    <allow user="*"/>
  </policy>
</busconfig>
`

// Available reports whether dbus-daemon can be found on PATH.
func Available() bool {
	_, err := exec.LookPath("dbus-daemon")
	return err == nil
}

// Bus is a throwaway dbus-daemon instance owned by a single test.
type Bus struct {
	cmd  *exec.Cmd
	sock string

	stop    chan struct{}
	stopped chan struct{}
}

// New launches a dbus-daemon dedicated to the calling test and arranges
// for it to be killed when the test finishes. It calls t.Skip if
// [Available] is false.
func New(t *testing.T) *Bus {
	t.Helper()
	if !Available() {
		t.Skip("dbus-daemon not available, cannot run test bus")
	}

	tmp := t.TempDir()
	sock := filepath.Join(tmp, "bus.sock")
	cfgPath := filepath.Join(tmp, "bus.config")
	cfg := strings.Replace(busConfig, "__SOCKET__", sock, 1)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatalf("writing dbus config: %v", err)
	}

	b := &Bus{
		sock:    sock,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.cmd = exec.Command("dbus-daemon", "--config-file="+cfgPath, "--nofork", "--nopidfile", "--nosyslog")
	b.cmd.Stdout = os.Stdout
	b.cmd.Stderr = os.Stderr
	if err := b.cmd.Start(); err != nil {
		t.Fatalf("starting dbus-daemon: %v", err)
	}
	t.Cleanup(b.close)

	go func() {
		defer close(b.stopped)
		err := b.cmd.Wait()
		select {
		case <-b.stop:
		default:
			panic(fmt.Errorf("dbustest: bus exited prematurely: %w", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		if _, err := os.Stat(sock); err == nil {
			return b
		} else if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("waiting for bus socket: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("bus failed to start within %s", 10*time.Second)
	return nil
}

func (b *Bus) close() {
	close(b.stop)
	b.cmd.Process.Kill()
	select {
	case <-b.stopped:
	case <-time.After(10 * time.Second):
	}
}

// Address returns the bus's D-Bus address string.
func (b *Bus) Address() string {
	return "unix:path=" + b.sock
}

// MustConn connects to the test bus, failing the test immediately if it
// cannot connect within a short deadline.
func (b *Bus) MustConn(t *testing.T, opts ...dbus.Option) *dbus.Conn {
	t.Helper()
	conn, err := dbus.NewConn(b.Address(), opts...)
	if err != nil {
		t.Fatalf("dbustest: building connection: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("dbustest: connecting to test bus: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
