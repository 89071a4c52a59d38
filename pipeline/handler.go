// Package pipeline implements the ordered, bidirectional handler chain
// described in spec §4.4: an ordered slice of named handlers, read
// through a copy-on-write snapshot, through which inbound messages
// travel head→tail and outbound messages travel tail→head. The head
// (adjacent to the transport) and tail (fallback) are ordinary handlers
// that the owner installs at the two ends.
//
// The package is deliberately agnostic to the D-Bus message type so that
// it has no import-cycle dependency on the root package: messages,
// failures, and user events are passed through as `any`, and the owner
// (the connection controller) is responsible for the concrete types.
package pipeline

// A Handler participates in the pipeline. Every method has a default,
// propagate-unchanged behavior provided by embedding [Base]; implement
// only the events a given handler cares about.
type Handler interface {
	// OnInboundMessage handles a message arriving from the transport.
	OnInboundMessage(ctx *Context, msg any)
	// OnInboundFailure handles a failure detected while reading or
	// decoding from the transport (a codec error, an EOF, and so on).
	OnInboundFailure(ctx *Context, cause error)
	// OnOutboundMessage handles a message on its way to the transport.
	// completion is resolved once the bytes are committed to the
	// transport (or the attempt fails).
	OnOutboundMessage(ctx *Context, msg any, completion *Completion)
	// OnConnectionActive fires once the connection reaches READY.
	OnConnectionActive(ctx *Context)
	// OnConnectionInactive fires once the connection is no longer usable.
	OnConnectionInactive(ctx *Context)
	// OnUserEvent handles an out-of-band lifecycle event (SASL
	// completion, reconnect notices, and so on).
	OnUserEvent(ctx *Context, evt any)
	// OnHandlerAdded fires once, when the handler is inserted into a
	// pipeline.
	OnHandlerAdded(ctx *Context)
	// OnHandlerRemoved fires once, when the handler is removed.
	OnHandlerRemoved(ctx *Context)
}

// Base provides no-op, propagate-unchanged implementations of every
// [Handler] method. Embed it in concrete handlers that only care about a
// subset of events.
type Base struct{}

func (Base) OnInboundMessage(ctx *Context, msg any)                 { ctx.FireInboundMessage(msg) }
func (Base) OnInboundFailure(ctx *Context, cause error)             { ctx.FireInboundFailure(cause) }
func (Base) OnOutboundMessage(ctx *Context, msg any, c *Completion) { ctx.FireOutboundMessage(msg, c) }
func (Base) OnConnectionActive(ctx *Context)                       { ctx.FireConnectionActive() }
func (Base) OnConnectionInactive(ctx *Context)                     { ctx.FireConnectionInactive() }
func (Base) OnUserEvent(ctx *Context, evt any)                     { ctx.FireUserEvent(evt) }
func (Base) OnHandlerAdded(ctx *Context)                            {}
func (Base) OnHandlerRemoved(ctx *Context)                          {}

// A Completion is resolved exactly once, when an outbound write either
// commits to the transport or fails. It normalizes the callback/future
// mixing spec §9 flags in the reference client: every outbound write
// returns a completion.
type Completion struct {
	done chan struct{}
	err  error
}

// NewCompletion returns an unresolved Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve completes c with err (nil for success). Resolve must be called
// at most once.
func (c *Completion) Resolve(err error) {
	c.err = err
	close(c.done)
}

// Wait blocks until c is resolved and returns its error.
func (c *Completion) Wait() error {
	<-c.done
	return c.err
}

// Done returns a channel closed when c is resolved, for use in select
// statements.
func (c *Completion) Done() <-chan struct{} { return c.done }
