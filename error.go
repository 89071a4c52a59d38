package dbus

import "fmt"

// Standard D-Bus error names, used both to classify errors received from
// the wire and to name errors this library synthesizes locally (spec §7).
const (
	ErrServiceUnknown                 = "org.freedesktop.DBus.Error.ServiceUnknown"
	ErrUnknownMethod                  = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrUnknownInterface               = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrUnknownObject                  = "org.freedesktop.DBus.Error.UnknownObject"
	ErrUnknownProperty                = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrInvalidArgs                    = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrInvalidSignature               = "org.freedesktop.DBus.Error.InvalidSignature"
	ErrInconsistentMessage            = "org.freedesktop.DBus.Error.InconsistentMessage"
	ErrAccessDenied                   = "org.freedesktop.DBus.Error.AccessDenied"
	ErrInteractiveAuthorizationReqd   = "org.freedesktop.DBus.Error.InteractiveAuthorizationRequired"
	ErrNoReply                        = "org.freedesktop.DBus.Error.NoReply"
	ErrTimeout                        = "org.freedesktop.DBus.Error.Timeout"
	ErrDisconnected                   = "org.freedesktop.DBus.Error.Disconnected"
	ErrAuthFailed                     = "org.freedesktop.DBus.Error.AuthFailed"
	ErrBadAddress                     = "org.freedesktop.DBus.Error.BadAddress"
	ErrNoServer                       = "org.freedesktop.DBus.Error.NoServer"
	ErrAddressInUse                   = "org.freedesktop.DBus.Error.AddressInUse"
	ErrLimitsExceeded                 = "org.freedesktop.DBus.Error.LimitsExceeded"
	ErrNoMemory                       = "org.freedesktop.DBus.Error.NoMemory"
	ErrFailed                         = "org.freedesktop.DBus.Error.Failed"
)

// CallError is returned by [Conn.SendRequest] when the remote peer replies
// with a D-Bus ERROR message, or when the library synthesizes an error
// locally (timeout, disconnect, and so on).
type CallError struct {
	// Name is the D-Bus error name, e.g. "org.freedesktop.DBus.Error.Timeout".
	Name string
	// Detail is a human-readable explanation, taken from the error body
	// when the wire supplied one.
	Detail string
	// Cause, if non-nil, is the underlying Go error that produced this
	// CallError (e.g. a context.DeadlineExceeded for a Timeout).
	Cause error
}

func (e *CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dbus: call error %s", e.Name)
	}
	return fmt.Sprintf("dbus: call error %s: %s", e.Name, e.Detail)
}

func (e *CallError) Unwrap() error { return e.Cause }

// Is reports whether target names the same D-Bus error as e, so that
// callers can write errors.Is(err, &dbus.CallError{Name: dbus.ErrTimeout}).
func (e *CallError) Is(target error) bool {
	o, ok := target.(*CallError)
	if !ok {
		return false
	}
	return o.Name == e.Name
}

func newCallError(name, detail string, cause error) *CallError {
	return &CallError{Name: name, Detail: detail, Cause: cause}
}

// FrameError is returned when an inbound byte stream cannot be parsed as
// a valid D-Bus frame (bad alignment, invalid UTF-8, oversized array,
// and so on). Per spec §7, a FrameError is always fatal to the current
// connection: the frame layer cannot resynchronize mid-stream.
type FrameError struct {
	Reason string
	Cause  error
}

func (e *FrameError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dbus: malformed frame: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("dbus: malformed frame: %s", e.Reason)
}

func (e *FrameError) Unwrap() error { return e.Cause }

func frameErr(reason string, cause error) *FrameError {
	return &FrameError{Reason: reason, Cause: cause}
}

// TypeError reports that a Go-level value could not be represented as a
// D-Bus type, or that a signature failed validation.
type TypeError struct {
	What   string
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("dbus: %s: %s", e.What, e.Reason)
}
