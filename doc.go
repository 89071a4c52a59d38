// Package dbus is a client-side D-Bus connection engine.
//
// It speaks the D-Bus wire protocol over a Unix domain socket or TCP
// stream, authenticates via SASL, marshals and unmarshals typed messages,
// and dispatches them through an ordered, bidirectional handler pipeline
// with request/response correlation, auto-reconnection, and health
// monitoring.
//
// The package does not implement the high-level object-annotation
// machinery that exposes user types as D-Bus services, nor does it
// implement Unix file-descriptor passing or message encryption.
package dbus
