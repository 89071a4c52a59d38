package dbus_test

import (
	"context"
	"testing"
	"time"

	dbus "github.com/lindenhall/dbusconn"
	"github.com/lindenhall/dbusconn/dbustest"
)

func TestConnectAndHello(t *testing.T) {
	bus := dbustest.New(t)
	conn := bus.MustConn(t)

	if conn.UniqueName() == "" {
		t.Error("UniqueName() is empty after a successful Hello")
	}
	if !conn.IsConnected() {
		t.Error("IsConnected() = false right after Connect")
	}
}

func TestGetId(t *testing.T) {
	bus := dbustest.New(t)
	conn := bus.MustConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := conn.SendRequest(ctx, &dbus.Message{
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "GetId",
		Destination: "org.freedesktop.DBus",
	})
	if err != nil {
		t.Fatalf("GetId: %v", err)
	}
	if len(reply.Body) != 1 {
		t.Fatalf("GetId reply body = %v, want one string", reply.Body)
	}
	if _, ok := reply.Body[0].(dbus.Str); !ok {
		t.Fatalf("GetId reply body[0] = %T, want dbus.Str", reply.Body[0])
	}
}

func TestUnknownDestinationReturnsServiceUnknown(t *testing.T) {
	bus := dbustest.New(t)
	conn := bus.MustConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := conn.SendRequest(ctx, &dbus.Message{
		Path:        "/org/example/Nothing",
		Interface:   "org.example.Nothing",
		Member:      "DoStuff",
		Destination: "org.example.NoSuchService",
	})
	if err == nil {
		t.Fatal("expected an error calling an unowned destination")
	}
	ce, ok := err.(*dbus.CallError)
	if !ok {
		t.Fatalf("got %T, want *dbus.CallError", err)
	}
	if ce.Name != dbus.ErrServiceUnknown {
		t.Errorf("CallError.Name = %q, want %q", ce.Name, dbus.ErrServiceUnknown)
	}
}

func TestMethodCallTimeout(t *testing.T) {
	bus := dbustest.New(t)
	conn := bus.MustConn(t, dbus.WithMethodCallTimeout(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := conn.SendRequest(ctx, &dbus.Message{
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "GetId",
		Destination: "org.freedesktop.DBus",
	})
	if err == nil {
		t.Fatal("expected an error for a call whose context already expired")
	}
}

func TestTwoConnectionsSeeEachOther(t *testing.T) {
	bus := dbustest.New(t)
	a := bus.MustConn(t)
	b := bus.MustConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := a.SendRequest(ctx, &dbus.Message{
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "GetNameOwner",
		Destination: "org.freedesktop.DBus",
		Body:        []dbus.Value{dbus.Str(b.UniqueName())},
	})
	if err != nil {
		t.Fatalf("GetNameOwner: %v", err)
	}
	owner, ok := reply.Body[0].(dbus.Str)
	if !ok || string(owner) != b.UniqueName() {
		t.Fatalf("GetNameOwner = %v, want %q", reply.Body, b.UniqueName())
	}
}

func TestCloseFailsSubsequentRequests(t *testing.T) {
	bus := dbustest.New(t)
	conn := bus.MustConn(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := conn.SendRequest(ctx, &dbus.Message{
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "GetId",
		Destination: "org.freedesktop.DBus",
	})
	if err == nil {
		t.Fatal("expected SendRequest on a closed connection to fail")
	}
}
